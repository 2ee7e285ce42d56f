// Copyright (c) 2025 CohortIQ
// Licensed under the MIT License. See LICENSE file in the project root for details.

package assistant

import (
	"sync"

	"cohortiq/assistant/internal/answer"
)

// HistoryTurns is the number of past exchanges carried into each prompt.
const HistoryTurns = 5

// Memory is a bounded per-session conversation log. Appends are serialized and
// reads return a consistent snapshot, so concurrent pipeline completions never
// interleave partial writes.
type Memory struct {
	mu    sync.Mutex
	turns []answer.Turn
	limit int
}

// NewMemory creates a Memory bounded to HistoryTurns exchanges.
func NewMemory() *Memory {
	return &Memory{limit: HistoryTurns}
}

// Append records a finished exchange, evicting the oldest beyond the bound.
func (m *Memory) Append(question, ans string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns = append(m.turns, answer.Turn{Question: question, Answer: ans})
	if len(m.turns) > m.limit {
		m.turns = m.turns[len(m.turns)-m.limit:]
	}
}

// Last returns a copy of the retained exchanges, oldest first.
func (m *Memory) Last() []answer.Turn {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]answer.Turn, len(m.turns))
	copy(out, m.turns)
	return out
}
