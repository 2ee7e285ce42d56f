// Copyright (c) 2025 CohortIQ
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package session persists chat sessions and messages. The answering core only
// calls these operations around the orchestration boundary; it never manages
// schema for session storage.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AnonymousUserID tags sessions created without an authenticated caller.
var AnonymousUserID = uuid.Nil

// DefaultTitle is the title of a freshly created session.
const DefaultTitle = "New Conversation"

// Message is one stored chat message.
type Message struct {
	ID        uuid.UUID      `json:"message_id"`
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Summary describes one session for listing.
type Summary struct {
	ID           uuid.UUID `json:"session_id"`
	Title        string    `json:"title"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	MessageCount int       `json:"message_count"`
}

// Store persists sessions and messages in chat_sessions and chat_messages.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a Store over an existing pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// EnsureSession creates the session if missing, otherwise bumps its
// updated_at timestamp.
func (s *Store) EnsureSession(ctx context.Context, id, userID uuid.UUID) error {
	var exists int
	err := s.pool.QueryRow(ctx, "SELECT 1 FROM chat_sessions WHERE id = $1", id).Scan(&exists)
	switch err {
	case nil:
		_, err = s.pool.Exec(ctx, "UPDATE chat_sessions SET updated_at = NOW() WHERE id = $1", id)
	case pgx.ErrNoRows:
		_, err = s.pool.Exec(ctx, `
			INSERT INTO chat_sessions (id, user_id, title, created_at, updated_at)
			VALUES ($1, $2, $3, NOW(), NOW())`,
			id, userID, DefaultTitle)
	}
	if err != nil {
		return fmt.Errorf("ensuring session %s: %w", id, err)
	}
	return nil
}

// AppendMessage stores one message and returns its id.
func (s *Store) AppendMessage(ctx context.Context, sessionID uuid.UUID, role, content string, metadata map[string]any) (uuid.UUID, error) {
	id := uuid.New()
	if metadata == nil {
		metadata = map[string]any{}
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO chat_messages (id, session_id, role, content, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())`,
		id, sessionID, role, content, metadata)
	if err != nil {
		return uuid.Nil, fmt.Errorf("appending message to session %s: %w", sessionID, err)
	}
	return id, nil
}

// ListMessages returns a session's messages in chronological order.
func (s *Store) ListMessages(ctx context.Context, sessionID uuid.UUID) ([]Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, role, content, metadata, created_at
		FROM chat_messages
		WHERE session_id = $1
		ORDER BY created_at ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("listing messages for session %s: %w", sessionID, err)
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.Role, &m.Content, &m.Metadata, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// ListSessions returns a user's sessions, most recently active first, with
// per-session message counts.
func (s *Store) ListSessions(ctx context.Context, userID uuid.UUID) ([]Summary, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT cs.id, cs.title, cs.created_at, cs.updated_at, COUNT(cm.id)
		FROM chat_sessions cs
		LEFT JOIN chat_messages cm ON cs.id = cm.session_id
		WHERE cs.user_id = $1
		GROUP BY cs.id, cs.title, cs.created_at, cs.updated_at
		ORDER BY cs.updated_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Summary
	for rows.Next() {
		var sum Summary
		if err := rows.Scan(&sum.ID, &sum.Title, &sum.CreatedAt, &sum.UpdatedAt, &sum.MessageCount); err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		sessions = append(sessions, sum)
	}
	return sessions, rows.Err()
}
