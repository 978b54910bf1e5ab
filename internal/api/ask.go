package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/opsassist/opsassist/internal/agent"
	"github.com/opsassist/opsassist/internal/config"
	"github.com/opsassist/opsassist/internal/guardrail"
	"github.com/opsassist/opsassist/internal/session"
)

type askRequest struct {
	Question string `json:"question"`
	// SessionID selects a server-side conversation. When empty, History is
	// used as sent and nothing is remembered.
	SessionID      string         `json:"session_id"`
	History        []session.Turn `json:"history"`
	IncludeRawRows bool           `json:"include_raw_rows"`
	ReturnSQL      bool           `json:"return_sql"`
}

type askResponse struct {
	Answer    string      `json:"answer"`
	SQL       string      `json:"sql,omitempty"`
	Columns   []string    `json:"columns,omitempty"`
	Rows      [][]*string `json:"rows,omitempty"`
	Attempts  int         `json:"attempts"`
	SessionID string      `json:"session_id,omitempty"`
}

func handleAsk(cfg config.Config, deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Assistant == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "ASK_NOT_CONFIGURED", "assistant is not configured", false, nil)
		return
	}

	var request askRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid ask request body", false, map[string]any{"details": err.Error()})
		return
	}
	question := strings.TrimSpace(request.Question)
	if question == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "QUESTION_REQUIRED", "question is required", false, nil)
		return
	}

	var conversation *session.Conversation
	history := request.History
	if request.SessionID != "" {
		if deps.Sessions == nil {
			writeError(r.Context(), w, http.StatusNotImplemented, "SESSIONS_NOT_CONFIGURED", "session store is not configured", false, nil)
			return
		}
		conversation = deps.Sessions.Get(request.SessionID)
		history = conversation.History()
	} else if limit := cfg.Agent.HistorySize; len(history) > limit {
		history = history[len(history)-limit:]
	}

	answer, err := deps.Assistant.Answer(r.Context(), question, history, agent.Options{
		IncludeRawRows: request.IncludeRawRows,
		ReturnSQL:      request.ReturnSQL,
	})
	if err != nil {
		writeAskError(r.Context(), w, err)
		return
	}
	if conversation != nil {
		conversation.Record(question, answer.Summary)
	}

	response := askResponse{
		Answer:    answer.Summary,
		SQL:       answer.SQL,
		Attempts:  answer.Attempts,
		SessionID: request.SessionID,
	}
	if answer.Rows != nil {
		response.Columns = answer.Rows.Columns
		response.Rows = make([][]*string, 0, len(answer.Rows.Rows))
		for _, row := range answer.Rows.DataRows() {
			response.Rows = append(response.Rows, []*string(row))
		}
	}
	writeJSON(w, http.StatusOK, response)
}

func writeAskError(ctx context.Context, w http.ResponseWriter, err error) {
	var (
		exhausted *agent.ExhaustedRetriesError
		modelErr  *agent.ModelError
		summary   *agent.SummarizeError
	)
	switch {
	case errors.As(err, &exhausted):
		extra := map[string]any{"attempts": exhausted.Attempts}
		if errors.Is(err, guardrail.ErrGuardrail) {
			extra["guardrail"] = true
		}
		writeError(ctx, w, http.StatusUnprocessableEntity, "SQL_GENERATION_FAILED", err.Error(), false, extra)
	case errors.As(err, &modelErr):
		writeError(ctx, w, http.StatusBadGateway, "MODEL_UNAVAILABLE", err.Error(), true, nil)
	case errors.As(err, &summary):
		writeError(ctx, w, http.StatusBadGateway, "SUMMARY_FAILED", err.Error(), true, map[string]any{"sql": summary.SQL})
	case errors.Is(err, context.DeadlineExceeded):
		writeError(ctx, w, http.StatusGatewayTimeout, "QUERY_TIMEOUT", err.Error(), true, nil)
	case errors.Is(err, context.Canceled):
		writeError(ctx, w, http.StatusServiceUnavailable, "REQUEST_CANCELED", err.Error(), true, nil)
	default:
		writeError(ctx, w, http.StatusInternalServerError, "ASK_FAILED", err.Error(), false, nil)
	}
}
