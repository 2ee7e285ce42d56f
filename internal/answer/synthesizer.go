// Copyright (c) 2025 CohortIQ
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package answer turns retrieved evidence (SQL result rows or semantic chunks)
// into a natural-language answer via the chat model. Empty evidence
// short-circuits to a fixed guidance message without calling the model.
package answer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"cohortiq/assistant/internal/errors"
	"cohortiq/assistant/internal/llm"
	"cohortiq/assistant/internal/sqlexec"
	"cohortiq/assistant/internal/vector"
)

// NoDataMessage is returned when a query produced zero rows.
const NoDataMessage = "No relevant data found. Please check that you entered the correct student name, bootcamp, or unit title."

// NoChunksMessage is returned when semantic retrieval produced zero chunks.
const NoChunksMessage = "No relevant information was found in the knowledge base."

const rowsSystemPrompt = "You are a precise analyst. Use the provided rows and context to answer succinctly. " +
	"Always check whether the student has taken the unit or is enrolled in the bootcamp. " +
	"Do not mention the SQL query in your final output."

// Turn is one completed question/answer exchange.
type Turn struct {
	Question string
	Answer   string
}

// Answer is synthesized text plus the token cost of producing it.
type Answer struct {
	Text       string
	TokensUsed int
}

// CompletionClient is the chat collaborator consumed by the synthesizer.
type CompletionClient interface {
	Complete(ctx context.Context, messages []llm.Message) (*llm.Completion, error)
}

// Synthesizer composes answers from evidence and bounded conversation history.
type Synthesizer struct {
	client CompletionClient
}

// New creates a Synthesizer backed by the given chat client.
func New(client CompletionClient) *Synthesizer {
	return &Synthesizer{client: client}
}

// FromRows answers a question from SQL result rows. An empty result returns
// NoDataMessage without consulting the model.
func (s *Synthesizer) FromRows(ctx context.Context, question, sql string, res *sqlexec.Result, history []Turn) (*Answer, error) {
	if res == nil || len(res.Rows) == 0 {
		return &Answer{Text: NoDataMessage}, nil
	}

	rowsJSON, err := json.Marshal(res.Rows)
	if err != nil {
		return nil, errors.Wrap(errors.ExecutionFailed, "encoding rows", err)
	}

	prompt := fmt.Sprintf("Conversation so far:\n%s\n\nCurrent Question: %s\nSQL: %s\nRows: %s",
		memoryContext(history), question, sql, rowsJSON)

	comp, err := s.client.Complete(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: rowsSystemPrompt},
		{Role: llm.RoleUser, Content: prompt},
	})
	if err != nil {
		return nil, errors.Wrap(errors.LLMUnavailable, "synthesizing answer from rows", err)
	}
	return &Answer{Text: strings.TrimSpace(comp.Text), TokensUsed: comp.TokensUsed}, nil
}

// FromChunks answers a question from retrieved chunks. An empty chunk set
// returns NoChunksMessage without consulting the model.
func (s *Synthesizer) FromChunks(ctx context.Context, question string, chunks []vector.Chunk, history []Turn) (*Answer, error) {
	if len(chunks) == 0 {
		return &Answer{Text: NoChunksMessage}, nil
	}

	var ctxb strings.Builder
	for i, c := range chunks {
		if i > 0 {
			ctxb.WriteString("\n\n")
		}
		ctxb.WriteString("- ")
		ctxb.WriteString(c.Text)
	}

	prompt := fmt.Sprintf(`
You are a precise assistant. Today is %s. Use only the following context to answer the question.
The context may include individual assessments or units, bootcamp summaries, and attendance breakdowns.
Use only what is relevant. Always check whether the student has taken the unit or is enrolled in the bootcamp.
Do not mention the calculations you did in your final output.

Memory:
%s

Context:
%s

Question:
%s

Answer:`, time.Now().Format("2006-01-02"), memoryContext(history), ctxb.String(), question)

	comp, err := s.client.Complete(ctx, []llm.Message{
		{Role: llm.RoleUser, Content: prompt},
	})
	if err != nil {
		return nil, errors.Wrap(errors.LLMUnavailable, "synthesizing answer from chunks", err)
	}
	return &Answer{Text: strings.TrimSpace(comp.Text), TokensUsed: comp.TokensUsed}, nil
}

// memoryContext renders history as alternating Q/A lines.
func memoryContext(history []Turn) string {
	var sb strings.Builder
	for i, t := range history {
		if i > 0 {
			sb.WriteByte('\n')
		}
		fmt.Fprintf(&sb, "Q: %s\nA: %s", t.Question, t.Answer)
	}
	return sb.String()
}
