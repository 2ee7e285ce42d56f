// Copyright (c) 2025 CohortIQ
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package assistant drives the SQL-first, vector-fallback answering protocol.
// A question flows through generate, guard, execute, synthesize; a guard
// rejection or execution failure earns exactly one regeneration with the error
// as context, after which the pipeline falls back to semantic retrieval. Every
// exit path produces a well-formed envelope.
package assistant

import (
	"context"
	"regexp"
	"strings"

	"cohortiq/assistant/internal/answer"
	"cohortiq/assistant/internal/errors"
	"cohortiq/assistant/internal/schema"
	"cohortiq/assistant/internal/sqlexec"
	"cohortiq/assistant/internal/sqlgen"
	"cohortiq/assistant/internal/sqlguard"
	"cohortiq/assistant/internal/vector"
)

// Strategy records which answering path produced an envelope.
type Strategy string

const (
	StrategySQL            Strategy = "sql"
	StrategyVector         Strategy = "vector"
	StrategyVectorFallback Strategy = "vector_fallback"
	StrategyNone           Strategy = "none"
)

// ApologyMessage is the terminal answer when both strategies fail.
const ApologyMessage = "I apologize, but both answer strategies are currently unavailable. Please try again later or contact support if the issue persists."

// fallbackNote marks answers produced by semantic retrieval after an SQL failure.
const fallbackNote = "\n\n*Note: Answered using backup semantic retrieval due to primary system unavailability.*"

// maxEnvelopeRows bounds the raw rows echoed back to the caller.
const maxEnvelopeRows = 10

// maxSources bounds chunk provenance entries; maxSourceChars truncates their text.
const (
	maxSources     = 5
	maxSourceChars = 200
)

// Source describes one piece of evidence behind an answer.
type Source struct {
	Type       string         `json:"type"`
	SQL        string         `json:"sql,omitempty"`
	RowCount   int            `json:"row_count,omitempty"`
	TablesUsed []string       `json:"tables_used,omitempty"`
	Retry      bool           `json:"retry,omitempty"`
	Content    string         `json:"content,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Rank       int            `json:"relevance_rank,omitempty"`
}

// Envelope is the complete result of answering one question.
type Envelope struct {
	Answer     string        `json:"answer"`
	Strategy   Strategy      `json:"strategy"`
	SQL        string        `json:"sql,omitempty"`
	Sources    []Source      `json:"sources"`
	Rows       []sqlexec.Row `json:"rows,omitempty"`
	TokensUsed int           `json:"tokens_used,omitempty"`
	Diagnostic string        `json:"diagnostic,omitempty"`
}

// Request is one question plus the caller's strategy preference. An empty
// Strategy means SQL-first with vector fallback.
type Request struct {
	Question string
	Strategy Strategy
}

// SchemaSource supplies the cached schema snapshot.
type SchemaSource interface {
	Snapshot(ctx context.Context, forceRefresh bool) (*schema.Snapshot, error)
}

// Generator proposes SQL for a question.
type Generator interface {
	Generate(ctx context.Context, question, schemaText, priorError string) (*sqlgen.Candidate, error)
}

// Executor runs guard-approved SQL.
type Executor interface {
	Execute(ctx context.Context, sql string) (*sqlexec.Result, error)
}

// Retriever fetches nearest chunks for a question.
type Retriever interface {
	Retrieve(ctx context.Context, question string, k int) ([]vector.Chunk, error)
}

// Synthesizer turns evidence into answer text.
type Synthesizer interface {
	FromRows(ctx context.Context, question, sql string, res *sqlexec.Result, history []answer.Turn) (*answer.Answer, error)
	FromChunks(ctx context.Context, question string, chunks []vector.Chunk, history []answer.Turn) (*answer.Answer, error)
}

// Orchestrator wires the pipeline stages together.
type Orchestrator struct {
	schema    SchemaSource
	generator Generator
	executor  Executor
	retriever Retriever
	synth     Synthesizer
	topK      int
}

// New creates an Orchestrator. topK bounds vector retrieval.
func New(schema SchemaSource, generator Generator, executor Executor, retriever Retriever, synth Synthesizer, topK int) *Orchestrator {
	if topK <= 0 {
		topK = 50
	}
	return &Orchestrator{
		schema:    schema,
		generator: generator,
		executor:  executor,
		retriever: retriever,
		synth:     synth,
		topK:      topK,
	}
}

// Answer processes one question and always returns a well-formed envelope.
// The finished exchange is appended to mem on every terminal path.
func (o *Orchestrator) Answer(ctx context.Context, req Request, mem *Memory) *Envelope {
	question := strings.TrimSpace(req.Question)
	history := mem.Last()

	var env *Envelope
	if req.Strategy == StrategyVector {
		env = o.answerVector(ctx, question, history, StrategyVector)
	} else {
		env = o.answerSQL(ctx, question, history)
	}

	mem.Append(question, env.Answer)
	return env
}

// answerSQL runs the SQL path with one retry, falling back to vector retrieval
// when the retry also fails.
func (o *Orchestrator) answerSQL(ctx context.Context, question string, history []answer.Turn) *Envelope {
	snap, err := o.schema.Snapshot(ctx, false)
	if err != nil {
		return o.answerVector(ctx, question, history, StrategyVectorFallback)
	}

	env, err := o.attemptSQL(ctx, question, snap.Text(), "", history)
	if err == nil {
		return env
	}
	if errors.KindOf(err) == errors.LLMUnavailable {
		// Generation never produced SQL; retrying the same dead model is pointless.
		return o.answerVector(ctx, question, history, StrategyVectorFallback)
	}

	env, retryErr := o.attemptSQL(ctx, question, snap.Text(), err.Error(), history)
	if retryErr != nil {
		return o.answerVector(ctx, question, history, StrategyVectorFallback)
	}
	return env
}

// attemptSQL runs one generate-guard-execute-synthesize pass.
func (o *Orchestrator) attemptSQL(ctx context.Context, question, schemaText, priorError string, history []answer.Turn) (*Envelope, error) {
	cand, err := o.generator.Generate(ctx, question, schemaText, priorError)
	if err != nil {
		return nil, err
	}

	safe, err := sqlguard.Validate(cand.SQL)
	if err != nil {
		return nil, err
	}

	res, err := o.executor.Execute(ctx, safe)
	if err != nil {
		return nil, err
	}

	ans, err := o.synth.FromRows(ctx, question, safe, res, history)
	if err != nil {
		return nil, err
	}

	env := &Envelope{
		Answer:     ans.Text,
		Strategy:   StrategySQL,
		SQL:        safe,
		Sources:    []Source{},
		TokensUsed: cand.TokensUsed + ans.TokensUsed,
	}
	if len(res.Rows) > 0 {
		env.Rows = res.Rows
		if len(env.Rows) > maxEnvelopeRows {
			env.Rows = env.Rows[:maxEnvelopeRows]
		}
		env.Sources = append(env.Sources, Source{
			Type:       "database_query",
			SQL:        safe,
			RowCount:   len(res.Rows),
			TablesUsed: extractTableNames(safe),
			Retry:      cand.Origin == sqlgen.OriginRetry,
		})
	}
	return env, nil
}

// answerVector runs the semantic-retrieval path. strategy distinguishes an
// explicit vector request from an SQL-failure fallback.
func (o *Orchestrator) answerVector(ctx context.Context, question string, history []answer.Turn, strategy Strategy) *Envelope {
	chunks, err := o.retriever.Retrieve(ctx, question, o.topK)
	if err != nil {
		return apology(err)
	}

	ans, err := o.synth.FromChunks(ctx, question, chunks, history)
	if err != nil {
		return apology(err)
	}

	env := &Envelope{
		Answer:     ans.Text,
		Strategy:   strategy,
		Sources:    chunkSources(chunks),
		TokensUsed: ans.TokensUsed,
	}
	if strategy == StrategyVectorFallback {
		env.Answer += fallbackNote
	}
	return env
}

// apology is the terminal envelope when no strategy can answer. The raw error
// stays in the diagnostic field, never in the user-facing text.
func apology(err error) *Envelope {
	return &Envelope{
		Answer:     ApologyMessage,
		Strategy:   StrategyNone,
		Sources:    []Source{},
		Diagnostic: err.Error(),
	}
}

// chunkSources builds provenance for the top retrieved chunks.
func chunkSources(chunks []vector.Chunk) []Source {
	sources := []Source{}
	for i, c := range chunks {
		if i == maxSources {
			break
		}
		content := c.Text
		if len(content) > maxSourceChars {
			content = content[:maxSourceChars] + "..."
		}
		sources = append(sources, Source{
			Type:     "document_chunk",
			Content:  content,
			Metadata: c.Metadata,
			Rank:     i + 1,
		})
	}
	return sources
}

var tableRe = regexp.MustCompile(`(?i)\b(?:FROM|JOIN)\s+(\w+)`)

// extractTableNames pulls relation names out of FROM and JOIN clauses,
// deduplicated in first-appearance order.
func extractTableNames(sql string) []string {
	seen := make(map[string]bool)
	var tables []string
	for _, m := range tableRe.FindAllStringSubmatch(sql, -1) {
		name := strings.ToLower(m[1])
		if !seen[name] {
			seen[name] = true
			tables = append(tables, name)
		}
	}
	return tables
}
