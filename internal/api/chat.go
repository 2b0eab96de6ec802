package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/migrachat/migrachat/internal/chat"
)

type submitRequest struct {
	Question string `json:"question"`
}

type submitResponse struct {
	Answer     string `json:"answer"`
	Terminated bool   `json:"terminated"`
}

func handleSubmitQuestion(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Session == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "CHAT_NOT_CONFIGURED", "chat session is not configured", false, nil)
		return
	}

	var req submitRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid chat request body", false, map[string]any{"details": err.Error()})
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "QUESTION_REQUIRED", "question is required", false, nil)
		return
	}

	outcome, err := deps.Session.Process(r.Context(), req.Question)
	if err != nil {
		if errors.Is(err, chat.ErrNotReady) {
			writeError(r.Context(), w, http.StatusServiceUnavailable, "NOT_READY", "the database connection is down; reconnect and try again", true, nil)
			return
		}
		writeError(r.Context(), w, http.StatusInternalServerError, "CHAT_FAILED", err.Error(), true, nil)
		return
	}

	writeJSON(w, http.StatusOK, submitResponse{Answer: outcome.Answer, Terminated: outcome.Terminated})
}

func handleGetHistory(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Session == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "CHAT_NOT_CONFIGURED", "chat session is not configured", false, nil)
		return
	}
	entries := deps.Session.History()
	if entries == nil {
		entries = []chat.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func handleClearHistory(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Session == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "CHAT_NOT_CONFIGURED", "chat session is not configured", false, nil)
		return
	}
	deps.Session.Reset()
	w.WriteHeader(http.StatusNoContent)
}

func handleSetPreset(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Session == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "CHAT_NOT_CONFIGURED", "chat session is not configured", false, nil)
		return
	}

	var req submitRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid preset request body", false, map[string]any{"details": err.Error()})
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "QUESTION_REQUIRED", "question is required", false, nil)
		return
	}

	deps.Session.SetPreset(req.Question)
	w.WriteHeader(http.StatusNoContent)
}

func handleTakePreset(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Session == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "CHAT_NOT_CONFIGURED", "chat session is not configured", false, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"question": deps.Session.TakePreset()})
}

func handleStatus(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Session == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "CHAT_NOT_CONFIGURED", "chat session is not configured", false, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"db_connected":    deps.Session.Connected(),
		"questions_asked": deps.Session.QuestionsAsked(),
	})
}

func handleSchemaInfo(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.SchemaContext == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "SCHEMA_NOT_CONFIGURED", "schema context is not configured", false, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"database": deps.DatabaseLabel,
		"tables":   deps.SchemaContext().Tables,
	})
}

func handleReconnect(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Reconnect == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "RECONNECT_NOT_CONFIGURED", "reconnect is not configured", false, nil)
		return
	}
	if err := deps.Reconnect(r.Context()); err != nil {
		writeError(r.Context(), w, http.StatusServiceUnavailable, "RECONNECT_FAILED", err.Error(), true, nil)
		return
	}
	connected := false
	if deps.Session != nil {
		connected = deps.Session.Connected()
	}
	writeJSON(w, http.StatusOK, map[string]any{"db_connected": connected})
}
