// Package chat sequences the question-answering pipeline and owns all
// session-scoped state: the connected flag, the append-only record, and the
// pending preset question.
package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/migrachat/migrachat/internal/answer"
	"github.com/migrachat/migrachat/internal/nlsql"
	"github.com/migrachat/migrachat/internal/observability"
)

var ErrNotReady = errors.New("the data source is not connected")

var exitPhrases = map[string]struct{}{
	"exit":    {},
	"quit":    {},
	"bye":     {},
	"goodbye": {},
}

const exitAcknowledgment = "Thank you for using Student Migration Analytics! Feel free to ask more questions anytime."

type Translator interface {
	Translate(ctx context.Context, question string) nlsql.QueryResult
}

type Synthesizer interface {
	Synthesize(ctx context.Context, question, resultText string) (string, error)
}

type Outcome struct {
	Answer     string
	Terminated bool
}

// Orchestrator processes one question at a time: the mutex is held for the
// full pipeline, so a second submission blocks until the first completes.
type Orchestrator struct {
	mu          sync.Mutex
	translator  Translator
	synthesizer Synthesizer
	logger      *slog.Logger

	connected bool
	record    []Entry
	preset    string
}

func NewOrchestrator(translator Translator, synthesizer Synthesizer, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		translator:  translator,
		synthesizer: synthesizer,
		logger:      logger,
	}
}

// SetPipeline installs a fresh translator, typically after a manual
// reconnect rebuilt the schema context.
func (o *Orchestrator) SetPipeline(translator Translator) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.translator = translator
}

func (o *Orchestrator) SetConnected(connected bool) {
	o.mu.Lock()
	o.connected = connected
	o.mu.Unlock()
	observability.SetDatabaseConnected(connected)
}

func (o *Orchestrator) Connected() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.connected
}

// Process runs the full pipeline for one question. The only error it returns
// is ErrNotReady; every pipeline failure ends in a well-formed answer.
func (o *Orchestrator) Process(ctx context.Context, question string) (Outcome, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.connected {
		return Outcome{}, ErrNotReady
	}

	if IsExitPhrase(question) {
		observability.IncrementExitShortCircuit()
		return Outcome{Answer: exitAcknowledgment, Terminated: true}, nil
	}

	start := time.Now()
	o.record = append(o.record, Entry{Speaker: SpeakerUser, Text: question})

	result := o.translator.Translate(ctx, question)
	if result.Failed {
		o.logger.WarnContext(ctx, "translation failed", slog.String("cause", result.Cause))
	}

	reply, err := o.synthesizer.Synthesize(ctx, question, result.Payload())
	if err != nil {
		o.logger.ErrorContext(ctx, "synthesis failed", slog.Any("error", err))
		reply = answer.Fallback(err)
	}

	o.record = append(o.record, Entry{Speaker: SpeakerAssistant, Text: reply})
	observability.ObserveQuestion(result.Failed, err != nil, time.Since(start))

	return Outcome{Answer: reply}, nil
}

// History returns a copy of the record in submission order.
func (o *Orchestrator) History() []Entry {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]Entry, len(o.record))
	copy(out, o.record)
	return out
}

func (o *Orchestrator) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.record = nil
}

// QuestionsAsked counts completed question/answer exchanges.
func (o *Orchestrator) QuestionsAsked() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.record) / 2
}

func (o *Orchestrator) SetPreset(question string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.preset = strings.TrimSpace(question)
}

// TakePreset returns the pending preset question and clears it.
func (o *Orchestrator) TakePreset() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	preset := o.preset
	o.preset = ""
	return preset
}

func IsExitPhrase(text string) bool {
	_, ok := exitPhrases[strings.ToLower(strings.TrimSpace(text))]
	return ok
}
