package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/migrachat/migrachat/internal/chat"
	"github.com/migrachat/migrachat/internal/config"
	"github.com/migrachat/migrachat/internal/schema"
)

type stubSession struct {
	outcome   chat.Outcome
	err       error
	processed []string
	history   []chat.Entry
	connected bool
	preset    string
	resets    int
}

func (s *stubSession) Process(_ context.Context, question string) (chat.Outcome, error) {
	s.processed = append(s.processed, question)
	if s.err != nil {
		return chat.Outcome{}, s.err
	}
	return s.outcome, nil
}

func (s *stubSession) History() []chat.Entry { return s.history }
func (s *stubSession) Reset()                { s.resets++; s.history = nil }
func (s *stubSession) Connected() bool       { return s.connected }
func (s *stubSession) QuestionsAsked() int   { return len(s.history) / 2 }
func (s *stubSession) SetPreset(q string)    { s.preset = q }
func (s *stubSession) TakePreset() string {
	preset := s.preset
	s.preset = ""
	return preset
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg, err := config.Load("migrachat-api", func(string) (string, bool) { return "", false })
	if err != nil {
		t.Fatalf("config load failed: %v", err)
	}
	return cfg
}

func TestHealthEndpoint(t *testing.T) {
	h := NewHandler(testConfig(t), Dependencies{})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/health", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestReadyEndpointReturns503WhenDependencyFails(t *testing.T) {
	h := NewHandler(testConfig(t), Dependencies{
		Readiness: func(context.Context) error { return errors.New("dependency down") },
	})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/ready", nil))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestSubmitQuestionReturnsAnswer(t *testing.T) {
	session := &stubSession{outcome: chat.Outcome{Answer: "Based on the data, 120 students went to Canada."}}
	h := NewHandler(testConfig(t), Dependencies{Session: session})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/chat",
		strings.NewReader(`{"question":"How many students went to Canada?"}`)))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
	var resp submitResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !strings.Contains(resp.Answer, "120") {
		t.Fatalf("answer = %q", resp.Answer)
	}
	if len(session.processed) != 1 || session.processed[0] != "How many students went to Canada?" {
		t.Fatalf("processed = %v", session.processed)
	}
}

func TestSubmitQuestionRequiresBody(t *testing.T) {
	h := NewHandler(testConfig(t), Dependencies{Session: &stubSession{}})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/chat", strings.NewReader(`{"question":"  "}`)))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestSubmitQuestionBlockedWhileNotReady(t *testing.T) {
	session := &stubSession{err: chat.ErrNotReady}
	h := NewHandler(testConfig(t), Dependencies{Session: session})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/chat", strings.NewReader(`{"question":"hi"}`)))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rr.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["error_code"] != "NOT_READY" {
		t.Fatalf("error_code = %v", resp["error_code"])
	}
}

func TestHistoryRoundTrip(t *testing.T) {
	session := &stubSession{history: []chat.Entry{
		{Speaker: chat.SpeakerUser, Text: "q"},
		{Speaker: chat.SpeakerAssistant, Text: "a"},
	}}
	h := NewHandler(testConfig(t), Dependencies{Session: session})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/chat/history", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var resp struct {
		Entries []chat.Entry `json:"entries"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Entries) != 2 || resp.Entries[1].Speaker != chat.SpeakerAssistant {
		t.Fatalf("entries = %v", resp.Entries)
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/v1/chat/history", nil))
	if rr.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rr.Code)
	}
	if session.resets != 1 {
		t.Fatalf("resets = %d", session.resets)
	}
}

func TestSampleQuestionsEndpoint(t *testing.T) {
	h := NewHandler(testConfig(t), Dependencies{})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/chat/samples", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var resp struct {
		Questions []string `json:"questions"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Questions) == 0 {
		t.Fatal("expected sample questions")
	}
}

func TestPresetLifecycleOverHTTP(t *testing.T) {
	session := &stubSession{}
	h := NewHandler(testConfig(t), Dependencies{Session: session})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/chat/preset",
		strings.NewReader(`{"question":"Which country has the most students?"}`)))
	if rr.Code != http.StatusNoContent {
		t.Fatalf("set status = %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/chat/preset", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("take status = %d", rr.Code)
	}
	var resp map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["question"] != "Which country has the most students?" {
		t.Fatalf("question = %q", resp["question"])
	}
}

func TestStatusEndpoint(t *testing.T) {
	session := &stubSession{connected: true, history: []chat.Entry{
		{Speaker: chat.SpeakerUser, Text: "q"},
		{Speaker: chat.SpeakerAssistant, Text: "a"},
	}}
	h := NewHandler(testConfig(t), Dependencies{Session: session})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/status", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["db_connected"] != true {
		t.Fatalf("db_connected = %v", resp["db_connected"])
	}
	if resp["questions_asked"].(float64) != 1 {
		t.Fatalf("questions_asked = %v", resp["questions_asked"])
	}
}

func TestSchemaInfoEndpoint(t *testing.T) {
	h := NewHandler(testConfig(t), Dependencies{
		DatabaseLabel: "localhost:3306/sahasra",
		SchemaContext: func() schema.Context {
			return schema.Context{Tables: []schema.Table{{Name: "global_student_migration"}}}
		},
	})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/schema", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	body := rr.Body.String()
	if !strings.Contains(body, "global_student_migration") || !strings.Contains(body, "sahasra") {
		t.Fatalf("body = %s", body)
	}
}

func TestReconnectEndpoint(t *testing.T) {
	session := &stubSession{connected: true}
	called := 0
	h := NewHandler(testConfig(t), Dependencies{
		Session: session,
		Reconnect: func(context.Context) error {
			called++
			return nil
		},
	})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/reconnect", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if called != 1 {
		t.Fatalf("reconnect calls = %d", called)
	}
}

func TestReconnectFailureReturns503(t *testing.T) {
	h := NewHandler(testConfig(t), Dependencies{
		Session:   &stubSession{},
		Reconnect: func(context.Context) error { return errors.New("dial tcp: connection refused") },
	})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/reconnect", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "connection refused") {
		t.Fatalf("body = %s", rr.Body.String())
	}
}

func TestChatEndpointsRequireSession(t *testing.T) {
	h := NewHandler(testConfig(t), Dependencies{})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/chat", strings.NewReader(`{"question":"hi"}`)))
	if rr.Code != http.StatusNotImplemented {
		t.Fatalf("status = %d", rr.Code)
	}
}
