// Copyright (c) 2025 CohortIQ
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package server provides the HTTP API for the assistant.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"cohortiq/assistant/internal/assistant"
	"cohortiq/assistant/internal/config"
	"cohortiq/assistant/internal/session"
)

// Pipeline answers questions; satisfied by assistant.Orchestrator.
type Pipeline interface {
	Answer(ctx context.Context, req assistant.Request, mem *assistant.Memory) *assistant.Envelope
}

// Sessions persists chat history; satisfied by session.Store.
type Sessions interface {
	EnsureSession(ctx context.Context, id, userID uuid.UUID) error
	AppendMessage(ctx context.Context, sessionID uuid.UUID, role, content string, metadata map[string]any) (uuid.UUID, error)
	ListMessages(ctx context.Context, sessionID uuid.UUID) ([]session.Message, error)
	ListSessions(ctx context.Context, userID uuid.UUID) ([]session.Summary, error)
}

// Server is the HTTP server for the assistant API.
type Server struct {
	pipeline Pipeline
	sessions Sessions
	config   *config.ServerConfig
	logger   *zap.Logger
	server   *http.Server

	// Conversation memory is per session, created on first use.
	mu       sync.Mutex
	memories map[uuid.UUID]*assistant.Memory
}

// NewServer creates a server with the given dependencies.
func NewServer(pipeline Pipeline, sessions Sessions, cfg *config.ServerConfig, logger *zap.Logger) *Server {
	return &Server{
		pipeline: pipeline,
		sessions: sessions,
		config:   cfg,
		logger:   logger,
		memories: make(map[uuid.UUID]*assistant.Memory),
	}
}

// Router builds the HTTP routing table.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Post("/api/v1/assistant/query", s.handleQuery)
	r.Get("/api/v1/assistant/sessions", s.handleListSessions)
	r.Get("/api/v1/assistant/sessions/{id}/messages", s.handleListMessages)
	r.Get("/health", s.handleHealth)
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Router(),
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// memory returns the session's conversation memory, creating it on first use.
func (s *Server) memory(id uuid.UUID) *assistant.Memory {
	s.mu.Lock()
	defer s.mu.Unlock()
	mem, ok := s.memories[id]
	if !ok {
		mem = assistant.NewMemory()
		s.memories[id] = mem
	}
	return mem
}
