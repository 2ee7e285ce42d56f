// Copyright (c) 2025 CohortIQ
// Licensed under the MIT License. See LICENSE file in the project root for details.

package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"cohortiq/assistant/internal/assistant"
	"cohortiq/assistant/internal/session"
)

type queryRequest struct {
	Query     string     `json:"query"`
	SessionID *uuid.UUID `json:"session_id,omitempty"`
	RagSystem string     `json:"rag_system,omitempty"`
}

type queryResponse struct {
	SessionID  uuid.UUID          `json:"session_id"`
	Answer     string             `json:"answer"`
	Sources    []assistant.Source `json:"sources"`
	Strategy   assistant.Strategy `json:"strategy"`
	SQL        string             `json:"sql,omitempty"`
	TokensUsed int                `json:"tokens_used,omitempty"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		s.respondError(w, http.StatusBadRequest, "query is required")
		return
	}

	sessionID := uuid.New()
	if req.SessionID != nil {
		sessionID = *req.SessionID
	}
	s.logger.Debug("query request",
		zap.String("session_id", sessionID.String()),
		zap.String("rag_system", req.RagSystem))

	ctx := r.Context()
	if err := s.sessions.EnsureSession(ctx, sessionID, session.AnonymousUserID); err != nil {
		s.logger.Error("ensure session failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if _, err := s.sessions.AppendMessage(ctx, sessionID, "user", req.Query, nil); err != nil {
		s.logger.Error("store user message failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	var strategy assistant.Strategy
	if req.RagSystem == "vector" {
		strategy = assistant.StrategyVector
	}
	env := s.pipeline.Answer(ctx, assistant.Request{Question: req.Query, Strategy: strategy}, s.memory(sessionID))
	if env.Diagnostic != "" {
		s.logger.Warn("degraded answer", zap.String("strategy", string(env.Strategy)), zap.String("diagnostic", env.Diagnostic))
	}

	meta := map[string]any{"sources": env.Sources, "strategy": env.Strategy}
	if _, err := s.sessions.AppendMessage(ctx, sessionID, "assistant", env.Answer, meta); err != nil {
		s.logger.Error("store assistant message failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, queryResponse{
		SessionID:  sessionID,
		Answer:     env.Answer,
		Sources:    env.Sources,
		Strategy:   env.Strategy,
		SQL:        env.SQL,
		TokensUsed: env.TokensUsed,
	})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.sessions.ListSessions(r.Context(), session.AnonymousUserID)
	if err != nil {
		s.logger.Error("list sessions failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if sessions == nil {
		sessions = []session.Summary{}
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid session id")
		return
	}
	messages, err := s.sessions.ListMessages(r.Context(), id)
	if err != nil {
		s.logger.Error("list messages failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if messages == nil {
		messages = []session.Message{}
	}
	s.respondJSON(w, http.StatusOK, map[string]any{
		"session_id": id,
		"messages":   messages,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
