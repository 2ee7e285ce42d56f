// Copyright (c) 2025 CohortIQ
// Licensed under the MIT License. See LICENSE file in the project root for details.

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"cohortiq/assistant/internal/assistant"
	"cohortiq/assistant/internal/config"
	"cohortiq/assistant/internal/session"
)

type fakePipeline struct {
	env      *assistant.Envelope
	lastReq  assistant.Request
	memories []*assistant.Memory
}

func (f *fakePipeline) Answer(ctx context.Context, req assistant.Request, mem *assistant.Memory) *assistant.Envelope {
	f.lastReq = req
	f.memories = append(f.memories, mem)
	mem.Append(req.Question, f.env.Answer)
	return f.env
}

type fakeSessions struct {
	ensured  []uuid.UUID
	appended []string
	messages []session.Message
	sessions []session.Summary
}

func (f *fakeSessions) EnsureSession(ctx context.Context, id, userID uuid.UUID) error {
	f.ensured = append(f.ensured, id)
	return nil
}

func (f *fakeSessions) AppendMessage(ctx context.Context, sessionID uuid.UUID, role, content string, metadata map[string]any) (uuid.UUID, error) {
	f.appended = append(f.appended, role)
	return uuid.New(), nil
}

func (f *fakeSessions) ListMessages(ctx context.Context, sessionID uuid.UUID) ([]session.Message, error) {
	return f.messages, nil
}

func (f *fakeSessions) ListSessions(ctx context.Context, userID uuid.UUID) ([]session.Summary, error) {
	return f.sessions, nil
}

func newTestServer(p *fakePipeline, st *fakeSessions) *Server {
	cfg := &config.ServerConfig{Host: "127.0.0.1", Port: 0}
	return NewServer(p, st, cfg, zap.NewNop())
}

func TestHandleQuery(t *testing.T) {
	p := &fakePipeline{env: &assistant.Envelope{
		Answer:   "There are 42 students enrolled in bootcamp 3.",
		Strategy: assistant.StrategySQL,
		SQL:      "SELECT COUNT(*) FROM students WHERE bootcamp_id = 3 LIMIT 200",
		Sources:  []assistant.Source{{Type: "database_query", RowCount: 1}},
	}}
	st := &fakeSessions{}
	srv := newTestServer(p, st)

	body, _ := json.Marshal(map[string]string{"query": "How many students are enrolled in bootcamp 3?"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/assistant/query", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp queryResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.SessionID == uuid.Nil {
		t.Error("no session id assigned")
	}
	if resp.Strategy != assistant.StrategySQL {
		t.Errorf("strategy = %q", resp.Strategy)
	}
	if len(st.ensured) != 1 {
		t.Errorf("session ensured %d times", len(st.ensured))
	}
	if len(st.appended) != 2 || st.appended[0] != "user" || st.appended[1] != "assistant" {
		t.Errorf("stored roles = %v", st.appended)
	}
}

func TestHandleQueryReusesSessionMemory(t *testing.T) {
	p := &fakePipeline{env: &assistant.Envelope{Answer: "a", Strategy: assistant.StrategySQL}}
	srv := newTestServer(p, &fakeSessions{})
	id := uuid.New()

	for i := 0; i < 2; i++ {
		body, _ := json.Marshal(map[string]any{"query": "q", "session_id": id})
		req := httptest.NewRequest(http.MethodPost, "/api/v1/assistant/query", bytes.NewReader(body))
		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
	}
	if p.memories[0] != p.memories[1] {
		t.Error("same session got distinct memories")
	}
	if got := len(p.memories[0].Last()); got != 2 {
		t.Errorf("memory turns = %d, want 2", got)
	}
}

func TestHandleQueryVectorPreference(t *testing.T) {
	p := &fakePipeline{env: &assistant.Envelope{Answer: "a", Strategy: assistant.StrategyVector}}
	srv := newTestServer(p, &fakeSessions{})

	body, _ := json.Marshal(map[string]string{"query": "q", "rag_system": "vector"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/assistant/query", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if p.lastReq.Strategy != assistant.StrategyVector {
		t.Errorf("pipeline strategy = %q, want vector", p.lastReq.Strategy)
	}
}

func TestHandleQueryValidation(t *testing.T) {
	srv := newTestServer(&fakePipeline{env: &assistant.Envelope{}}, &fakeSessions{})

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", "{"},
		{"empty query", `{"query": "   "}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/assistant/query", bytes.NewReader([]byte(tt.body)))
			rec := httptest.NewRecorder()
			srv.Router().ServeHTTP(rec, req)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestHandleListMessages(t *testing.T) {
	st := &fakeSessions{messages: []session.Message{{ID: uuid.New(), Role: "user", Content: "hi"}}}
	srv := newTestServer(&fakePipeline{env: &assistant.Envelope{}}, st)

	id := uuid.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/assistant/sessions/"+id.String()+"/messages", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp struct {
		SessionID uuid.UUID         `json:"session_id"`
		Messages  []session.Message `json:"messages"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.SessionID != id || len(resp.Messages) != 1 {
		t.Errorf("resp = %+v", resp)
	}
}

func TestHandleListMessagesBadID(t *testing.T) {
	srv := newTestServer(&fakePipeline{env: &assistant.Envelope{}}, &fakeSessions{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/assistant/sessions/not-a-uuid/messages", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestHandleHealth(t *testing.T) {
	srv := newTestServer(&fakePipeline{env: &assistant.Envelope{}}, &fakeSessions{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
}
