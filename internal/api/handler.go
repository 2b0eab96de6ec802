// Package api adapts the conversation pipeline to HTTP for the presentation
// layer. It exposes exactly the session operations the core defines plus the
// usual service plumbing (health, readiness, metrics).
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/migrachat/migrachat/internal/chat"
	"github.com/migrachat/migrachat/internal/config"
	"github.com/migrachat/migrachat/internal/observability"
	"github.com/migrachat/migrachat/internal/schema"
)

type ReadinessCheck func(ctx context.Context) error

var errNoDSN = errors.New("database dsn is not configured")

// Session is the orchestrator surface the presentation layer may call.
type Session interface {
	Process(ctx context.Context, question string) (chat.Outcome, error)
	History() []chat.Entry
	Reset()
	Connected() bool
	QuestionsAsked() int
	SetPreset(question string)
	TakePreset() string
}

type Dependencies struct {
	Logger           *slog.Logger
	Session          Session
	Readiness        ReadinessCheck
	DependencyTimout time.Duration

	// SchemaContext reports the current schema context; it changes only
	// across reconnects.
	SchemaContext func() schema.Context
	// Reconnect re-initializes the data source; nil disables the endpoint.
	Reconnect func(ctx context.Context) error
	// DatabaseLabel is a display string for the connected database
	// (host/schema), shown by the schema info endpoint.
	DatabaseLabel string
}

func NewHandler(cfg config.Config, deps Dependencies) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "service": cfg.Service.Name})
	})

	mux.HandleFunc("GET /v1/ready", func(w http.ResponseWriter, r *http.Request) {
		if deps.Readiness == nil {
			writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
			return
		}
		timeout := deps.DependencyTimout
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		if err := deps.Readiness(ctx); err != nil {
			writeError(r.Context(), w, http.StatusServiceUnavailable, "NOT_READY", err.Error(), true, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
	})

	mux.Handle("GET /v1/metrics", promhttp.Handler())

	mux.HandleFunc("POST /v1/chat", func(w http.ResponseWriter, r *http.Request) {
		handleSubmitQuestion(deps, w, r)
	})
	mux.HandleFunc("GET /v1/chat/history", func(w http.ResponseWriter, r *http.Request) {
		handleGetHistory(deps, w, r)
	})
	mux.HandleFunc("DELETE /v1/chat/history", func(w http.ResponseWriter, r *http.Request) {
		handleClearHistory(deps, w, r)
	})
	mux.HandleFunc("GET /v1/chat/samples", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"questions": chat.SampleQuestions()})
	})
	mux.HandleFunc("POST /v1/chat/preset", func(w http.ResponseWriter, r *http.Request) {
		handleSetPreset(deps, w, r)
	})
	mux.HandleFunc("GET /v1/chat/preset", func(w http.ResponseWriter, r *http.Request) {
		handleTakePreset(deps, w, r)
	})
	mux.HandleFunc("GET /v1/status", func(w http.ResponseWriter, r *http.Request) {
		handleStatus(deps, w, r)
	})
	mux.HandleFunc("GET /v1/schema", func(w http.ResponseWriter, r *http.Request) {
		handleSchemaInfo(deps, w, r)
	})
	mux.HandleFunc("POST /v1/reconnect", func(w http.ResponseWriter, r *http.Request) {
		handleReconnect(deps, w, r)
	})

	middlewares := []func(http.Handler) http.Handler{
		observability.TraceMiddleware,
		observability.MetricsMiddleware,
	}
	if deps.Logger != nil {
		middlewares = append(middlewares, observability.LoggingMiddleware(deps.Logger))
	}
	return chain(mux, middlewares...)
}

func CheckDatabaseDSN(cfg config.Config) ReadinessCheck {
	return func(_ context.Context) error {
		if cfg.Database.DSN == "" {
			return errNoDSN
		}
		return nil
	}
}

func CombineReadinessChecks(checks ...ReadinessCheck) ReadinessCheck {
	filtered := make([]ReadinessCheck, 0, len(checks))
	for _, check := range checks {
		if check != nil {
			filtered = append(filtered, check)
		}
	}
	return func(ctx context.Context) error {
		for _, check := range filtered {
			if err := check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

func chain(base http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	wrapped := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		wrapped = middlewares[i](wrapped)
	}
	return wrapped
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(ctx context.Context, w http.ResponseWriter, status int, code, message string, retryable bool, extra map[string]any) {
	writeJSON(w, status, map[string]any{
		"error_code": code,
		"message":    message,
		"retryable":  retryable,
		"context":    extra,
		"trace_id":   observability.TraceIDFromContext(ctx),
	})
}
