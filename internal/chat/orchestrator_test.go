package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/migrachat/migrachat/internal/nlsql"
)

type fakeTranslator struct {
	calls  int
	result nlsql.QueryResult
}

func (f *fakeTranslator) Translate(_ context.Context, _ string) nlsql.QueryResult {
	f.calls++
	return f.result
}

type fakeSynthesizer struct {
	calls      int
	gotResult  string
	err        error
	answerFunc func(question, resultText string) string
}

func (f *fakeSynthesizer) Synthesize(_ context.Context, question, resultText string) (string, error) {
	f.calls++
	f.gotResult = resultText
	if f.err != nil {
		return "", f.err
	}
	if f.answerFunc != nil {
		return f.answerFunc(question, resultText), nil
	}
	return "answer to: " + question, nil
}

func readyOrchestrator(translator *fakeTranslator, synthesizer *fakeSynthesizer) *Orchestrator {
	o := NewOrchestrator(translator, synthesizer, nil)
	o.SetConnected(true)
	return o
}

func TestProcessAppendsAlternatingEntries(t *testing.T) {
	translator := &fakeTranslator{result: nlsql.QueryResult{Text: "data"}}
	synthesizer := &fakeSynthesizer{}
	o := readyOrchestrator(translator, synthesizer)

	questions := []string{"first?", "second?", "third?"}
	for _, q := range questions {
		if _, err := o.Process(context.Background(), q); err != nil {
			t.Fatalf("Process(%q) error = %v", q, err)
		}
	}

	record := o.History()
	if len(record) != 6 {
		t.Fatalf("record length = %d", len(record))
	}
	for i, entry := range record {
		wantSpeaker := SpeakerUser
		if i%2 == 1 {
			wantSpeaker = SpeakerAssistant
		}
		if entry.Speaker != wantSpeaker {
			t.Fatalf("entry %d speaker = %q, want %q", i, entry.Speaker, wantSpeaker)
		}
	}
	for i, q := range questions {
		if record[2*i].Text != q {
			t.Fatalf("user entry %d = %q, want %q", i, record[2*i].Text, q)
		}
		if record[2*i+1].Text != "answer to: "+q {
			t.Fatalf("assistant entry %d = %q", i, record[2*i+1].Text)
		}
	}
}

func TestExitPhrasesShortCircuitPipeline(t *testing.T) {
	for _, phrase := range []string{"exit", "QUIT", "  bye  ", "Goodbye"} {
		translator := &fakeTranslator{}
		synthesizer := &fakeSynthesizer{}
		o := readyOrchestrator(translator, synthesizer)

		outcome, err := o.Process(context.Background(), phrase)
		if err != nil {
			t.Fatalf("Process(%q) error = %v", phrase, err)
		}
		if !outcome.Terminated {
			t.Fatalf("Process(%q) not terminated", phrase)
		}
		if outcome.Answer == "" {
			t.Fatalf("Process(%q) empty acknowledgment", phrase)
		}
		if translator.calls != 0 || synthesizer.calls != 0 {
			t.Fatalf("Process(%q) invoked pipeline: %d/%d", phrase, translator.calls, synthesizer.calls)
		}
		if len(o.History()) != 0 {
			t.Fatalf("Process(%q) mutated record", phrase)
		}
	}
}

func TestProcessRejectedWhileDisconnected(t *testing.T) {
	translator := &fakeTranslator{}
	synthesizer := &fakeSynthesizer{}
	o := NewOrchestrator(translator, synthesizer, nil)

	_, err := o.Process(context.Background(), "How many students went to Canada?")
	if !errors.Is(err, ErrNotReady) {
		t.Fatalf("error = %v, want ErrNotReady", err)
	}
	if translator.calls != 0 || synthesizer.calls != 0 {
		t.Fatal("pipeline should not run while disconnected")
	}
	if len(o.History()) != 0 {
		t.Fatal("record should stay empty while disconnected")
	}
}

func TestTranslationFailureFlowsToSynthesizer(t *testing.T) {
	translator := &fakeTranslator{result: nlsql.QueryResult{Failed: true, Cause: "dial tcp: connection refused"}}
	synthesizer := &fakeSynthesizer{answerFunc: func(_, resultText string) string {
		return "I could not reach the data: " + resultText
	}}
	o := readyOrchestrator(translator, synthesizer)

	outcome, err := o.Process(context.Background(), "How many students went to Canada?")
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if !strings.Contains(synthesizer.gotResult, "connection refused") {
		t.Fatalf("synthesizer received %q", synthesizer.gotResult)
	}
	if outcome.Answer == "" {
		t.Fatal("answer must be non-empty")
	}
}

func TestSynthesisFailureFallsBackToApology(t *testing.T) {
	translator := &fakeTranslator{result: nlsql.QueryResult{Text: "data"}}
	synthesizer := &fakeSynthesizer{err: errors.New("model unavailable")}
	o := readyOrchestrator(translator, synthesizer)

	outcome, err := o.Process(context.Background(), "any question at all; DROP TABLE x; --")
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if !strings.Contains(outcome.Answer, "Sorry, I encountered an error") {
		t.Fatalf("Answer = %q", outcome.Answer)
	}
	if !strings.Contains(outcome.Answer, "model unavailable") {
		t.Fatalf("Answer = %q", outcome.Answer)
	}
	record := o.History()
	if len(record) != 2 || record[1].Speaker != SpeakerAssistant {
		t.Fatalf("record = %v", record)
	}
}

func TestCanadaScenario(t *testing.T) {
	translator := &fakeTranslator{result: nlsql.QueryResult{Text: "There are 120 students in the database who went to Canada."}}
	synthesizer := &fakeSynthesizer{answerFunc: func(_, resultText string) string {
		return fmt.Sprintf("Based on the data: %s", resultText)
	}}
	o := readyOrchestrator(translator, synthesizer)

	outcome, err := o.Process(context.Background(), "How many students went to Canada?")
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if !strings.Contains(outcome.Answer, "120") || !strings.Contains(outcome.Answer, "Canada") {
		t.Fatalf("Answer = %q", outcome.Answer)
	}
}

func TestResetClearsRecord(t *testing.T) {
	translator := &fakeTranslator{result: nlsql.QueryResult{Text: "data"}}
	o := readyOrchestrator(translator, &fakeSynthesizer{})

	if _, err := o.Process(context.Background(), "q1"); err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if o.QuestionsAsked() != 1 {
		t.Fatalf("QuestionsAsked() = %d", o.QuestionsAsked())
	}
	o.Reset()
	if len(o.History()) != 0 {
		t.Fatal("Reset() should clear the record")
	}
	if o.QuestionsAsked() != 0 {
		t.Fatalf("QuestionsAsked() = %d after reset", o.QuestionsAsked())
	}
}

func TestPresetTokenLifecycle(t *testing.T) {
	o := NewOrchestrator(&fakeTranslator{}, &fakeSynthesizer{}, nil)

	o.SetPreset("  Which country has the most students?  ")
	if got := o.TakePreset(); got != "Which country has the most students?" {
		t.Fatalf("TakePreset() = %q", got)
	}
	if got := o.TakePreset(); got != "" {
		t.Fatalf("TakePreset() after take = %q", got)
	}
}

func TestIsExitPhrase(t *testing.T) {
	for phrase, want := range map[string]bool{
		"exit":        true,
		"Goodbye":     true,
		" quit\n":     true,
		"exit please": false,
		"":            false,
	} {
		if got := IsExitPhrase(phrase); got != want {
			t.Fatalf("IsExitPhrase(%q) = %v, want %v", phrase, got, want)
		}
	}
}
