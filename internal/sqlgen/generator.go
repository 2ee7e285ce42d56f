// Copyright (c) 2025 CohortIQ
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package sqlgen asks the language model for a single SELECT statement that
// answers a question over the snapshotted schema. It builds the prompt and
// cleans the response; it never retries - retry policy lives in the orchestrator.
package sqlgen

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"cohortiq/assistant/internal/errors"
	"cohortiq/assistant/internal/llm"
)

// systemInstructions steer the model towards one safe, schema-grounded SELECT.
const systemInstructions = `You are a careful SQL writer.
- Output ONLY a single SQL statement that answers the user's question.
- Use ANSI SQL compatible with PostgreSQL.
- It must be a single SELECT query (no DDL/DML, no CTEs that modify data).
- Prefer JOINs using the schema; avoid guessing column names that don't exist.
- Use ILIKE with wildcards for fuzzy text (e.g., ILIKE '%' || term || '%') when helpful.
- Always include an ORDER BY where relevant and a LIMIT (<= 100) to cap rows.
- Do not wrap the SQL in code fences or add commentary.
- If multiple rows tie for the same top score / value / result, return all of them.
- When asked for average attendance, give percentages.`

// Origin records whether a candidate came from the first attempt or the retry.
type Origin string

const (
	OriginInitial Origin = "initial"
	OriginRetry   Origin = "retry"
)

// Candidate is one generated SQL statement, not yet validated.
type Candidate struct {
	SQL        string
	Origin     Origin
	Question   string
	TokensUsed int
}

// CompletionClient is the completion collaborator consumed by the generator.
type CompletionClient interface {
	Complete(ctx context.Context, messages []llm.Message) (*llm.Completion, error)
}

// Generator produces candidate SQL statements from questions.
type Generator struct {
	client CompletionClient
}

// New creates a Generator backed by the given completion client.
func New(client CompletionClient) *Generator {
	return &Generator{client: client}
}

// Generate asks the model for exactly one SQL statement. On retry, priorError
// carries the previous failure so the model can revise the statement.
// A collaborator failure surfaces as an llm_unavailable error.
func (g *Generator) Generate(ctx context.Context, question, schemaText, priorError string) (*Candidate, error) {
	prompt := fmt.Sprintf("Schema:\n%s\n\nQuestion:\n%s", schemaText, question)
	origin := OriginInitial
	if priorError != "" {
		prompt += fmt.Sprintf("\n\nThe previous SQL failed with error:\n%s\n\nRevise and return ONLY a safe single SELECT with LIMIT.", priorError)
		origin = OriginRetry
	}

	resp, err := g.client.Complete(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: systemInstructions},
		{Role: llm.RoleUser, Content: prompt},
	})
	if err != nil {
		return nil, errors.Wrap(errors.LLMUnavailable, "SQL generation failed", err)
	}

	return &Candidate{
		SQL:        StripFences(resp.Text),
		Origin:     origin,
		Question:   question,
		TokensUsed: resp.TokensUsed,
	}, nil
}

var fenceRe = regexp.MustCompile("(?im)^```(?:sql)?|```$")

// StripFences removes incidental code-fence markup the model sometimes adds.
func StripFences(sql string) string {
	return strings.TrimSpace(fenceRe.ReplaceAllString(strings.TrimSpace(sql), ""))
}
