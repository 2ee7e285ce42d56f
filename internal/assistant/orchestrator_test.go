// Copyright (c) 2025 CohortIQ
// Licensed under the MIT License. See LICENSE file in the project root for details.

package assistant

import (
	"context"
	"strings"
	"testing"

	"cohortiq/assistant/internal/answer"
	"cohortiq/assistant/internal/errors"
	"cohortiq/assistant/internal/schema"
	"cohortiq/assistant/internal/sqlexec"
	"cohortiq/assistant/internal/sqlgen"
	"cohortiq/assistant/internal/vector"
)

type fakeSchema struct{ snap *schema.Snapshot }

func (f *fakeSchema) Snapshot(ctx context.Context, force bool) (*schema.Snapshot, error) {
	return f.snap, nil
}

type fakeGenerator struct {
	replies []string
	errs    []error
	calls   int
	prior   []string
}

func (f *fakeGenerator) Generate(ctx context.Context, question, schemaText, priorError string) (*sqlgen.Candidate, error) {
	i := f.calls
	f.calls++
	f.prior = append(f.prior, priorError)
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	origin := sqlgen.OriginInitial
	if priorError != "" {
		origin = sqlgen.OriginRetry
	}
	return &sqlgen.Candidate{SQL: f.replies[i], Origin: origin, Question: question, TokensUsed: 5}, nil
}

type fakeExecutor struct {
	results []*sqlexec.Result
	errs    []error
	calls   int
	seen    []string
}

func (f *fakeExecutor) Execute(ctx context.Context, sql string) (*sqlexec.Result, error) {
	i := f.calls
	f.calls++
	f.seen = append(f.seen, sql)
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	return f.results[i], nil
}

type fakeRetriever struct {
	chunks []vector.Chunk
	err    error
	calls  int
}

func (f *fakeRetriever) Retrieve(ctx context.Context, question string, k int) ([]vector.Chunk, error) {
	f.calls++
	return f.chunks, f.err
}

type fakeSynth struct {
	rowsText   string
	chunksText string
	rowCalls   int
	chunkCalls int
}

func (f *fakeSynth) FromRows(ctx context.Context, question, sql string, res *sqlexec.Result, history []answer.Turn) (*answer.Answer, error) {
	f.rowCalls++
	if res == nil || len(res.Rows) == 0 {
		return &answer.Answer{Text: answer.NoDataMessage}, nil
	}
	return &answer.Answer{Text: f.rowsText, TokensUsed: 3}, nil
}

func (f *fakeSynth) FromChunks(ctx context.Context, question string, chunks []vector.Chunk, history []answer.Turn) (*answer.Answer, error) {
	f.chunkCalls++
	if len(chunks) == 0 {
		return &answer.Answer{Text: answer.NoChunksMessage}, nil
	}
	return &answer.Answer{Text: f.chunksText, TokensUsed: 3}, nil
}

func newOrchestrator(g *fakeGenerator, x *fakeExecutor, r *fakeRetriever, s *fakeSynth) *Orchestrator {
	return New(&fakeSchema{snap: &schema.Snapshot{}}, g, x, r, s, 50)
}

func TestAnswerSQLSuccess(t *testing.T) {
	gen := &fakeGenerator{replies: []string{"SELECT COUNT(*) FROM students WHERE bootcamp_id = 3"}}
	exec := &fakeExecutor{results: []*sqlexec.Result{{
		Columns: []string{"count"},
		Rows:    []sqlexec.Row{{"count": int64(42)}},
	}}}
	synth := &fakeSynth{rowsText: "There are 42 students enrolled in bootcamp 3."}
	ret := &fakeRetriever{}
	o := newOrchestrator(gen, exec, ret, synth)

	mem := NewMemory()
	env := o.Answer(context.Background(), Request{Question: "How many students are enrolled in bootcamp 3?"}, mem)

	if env.Strategy != StrategySQL {
		t.Errorf("strategy = %q, want sql", env.Strategy)
	}
	if env.Answer != "There are 42 students enrolled in bootcamp 3." {
		t.Errorf("answer = %q", env.Answer)
	}
	if !strings.HasSuffix(env.SQL, "LIMIT 200") {
		t.Errorf("guard did not append limit: %q", env.SQL)
	}
	if ret.calls != 0 {
		t.Error("vector path used on SQL success")
	}
	if len(env.Sources) != 1 || env.Sources[0].Type != "database_query" {
		t.Fatalf("sources = %+v", env.Sources)
	}
	if env.Sources[0].Retry {
		t.Error("retry flag set on first attempt")
	}
	if got := env.Sources[0].TablesUsed; len(got) != 1 || got[0] != "students" {
		t.Errorf("tables_used = %v", got)
	}
	if turns := mem.Last(); len(turns) != 1 || turns[0].Answer != env.Answer {
		t.Errorf("memory not appended: %+v", turns)
	}
}

func TestAnswerRetriesExactlyOnce(t *testing.T) {
	gen := &fakeGenerator{replies: []string{"SELECT bad FROM students", "SELECT worse FROM students"}}
	exec := &fakeExecutor{errs: []error{
		errors.New(errors.ExecutionFailed, `column "bad" does not exist`),
		errors.New(errors.ExecutionFailed, `column "worse" does not exist`),
	}}
	synth := &fakeSynth{chunksText: "From the chunks: 42."}
	ret := &fakeRetriever{chunks: []vector.Chunk{{Text: "bootcamp 3 has 42 students"}}}
	o := newOrchestrator(gen, exec, ret, synth)

	env := o.Answer(context.Background(), Request{Question: "q"}, NewMemory())

	if gen.calls != 2 {
		t.Errorf("generator called %d times, want exactly 2", gen.calls)
	}
	if gen.prior[0] != "" || !strings.Contains(gen.prior[1], "does not exist") {
		t.Errorf("retry did not carry prior error: %v", gen.prior)
	}
	if env.Strategy != StrategyVectorFallback {
		t.Errorf("strategy = %q, want vector_fallback", env.Strategy)
	}
	if !strings.Contains(env.Answer, "From the chunks: 42.") || !strings.Contains(env.Answer, "backup semantic retrieval") {
		t.Errorf("answer = %q", env.Answer)
	}
}

func TestAnswerGuardRejectionTriggersRetry(t *testing.T) {
	gen := &fakeGenerator{replies: []string{"DROP TABLE students", "SELECT name FROM students"}}
	exec := &fakeExecutor{results: []*sqlexec.Result{{
		Columns: []string{"name"},
		Rows:    []sqlexec.Row{{"name": "Ada"}},
	}}}
	synth := &fakeSynth{rowsText: "Ada."}
	o := newOrchestrator(gen, exec, &fakeRetriever{}, synth)

	env := o.Answer(context.Background(), Request{Question: "q"}, NewMemory())

	if env.Strategy != StrategySQL {
		t.Errorf("strategy = %q, want sql after successful retry", env.Strategy)
	}
	if gen.calls != 2 {
		t.Errorf("generator called %d times", gen.calls)
	}
	if exec.calls != 1 {
		t.Errorf("executor called %d times; rejected SQL must never execute", exec.calls)
	}
	if !env.Sources[0].Retry {
		t.Error("retry flag not set on retried attempt")
	}
}

func TestAnswerGenerationDownFallsBackWithoutRetry(t *testing.T) {
	gen := &fakeGenerator{errs: []error{errors.New(errors.LLMUnavailable, "connection refused")}}
	synth := &fakeSynth{chunksText: "chunk answer"}
	ret := &fakeRetriever{chunks: []vector.Chunk{{Text: "c"}}}
	o := newOrchestrator(gen, &fakeExecutor{}, ret, synth)

	env := o.Answer(context.Background(), Request{Question: "q"}, NewMemory())

	if gen.calls != 1 {
		t.Errorf("generator called %d times, want 1 when the model is down", gen.calls)
	}
	if env.Strategy != StrategyVectorFallback {
		t.Errorf("strategy = %q", env.Strategy)
	}
}

func TestAnswerBothPathsDownYieldsApology(t *testing.T) {
	gen := &fakeGenerator{errs: []error{errors.New(errors.LLMUnavailable, "down")}}
	ret := &fakeRetriever{err: errors.New(errors.RetrievalFailed, "chunk store unreachable")}
	o := newOrchestrator(gen, &fakeExecutor{}, ret, &fakeSynth{})

	mem := NewMemory()
	env := o.Answer(context.Background(), Request{Question: "q"}, mem)

	if env.Strategy != StrategyNone {
		t.Errorf("strategy = %q, want none", env.Strategy)
	}
	if env.Answer != ApologyMessage {
		t.Errorf("answer = %q", env.Answer)
	}
	if !strings.Contains(env.Diagnostic, "chunk store unreachable") {
		t.Errorf("diagnostic = %q", env.Diagnostic)
	}
	if turns := mem.Last(); len(turns) != 1 {
		t.Error("failure terminal state must still append to memory")
	}
}

func TestAnswerExplicitVectorStrategy(t *testing.T) {
	gen := &fakeGenerator{}
	ret := &fakeRetriever{chunks: []vector.Chunk{
		{Text: strings.Repeat("x", 250), Metadata: map[string]any{"unit": "2"}},
		{Text: "short"},
	}}
	synth := &fakeSynth{chunksText: "vector answer"}
	o := newOrchestrator(gen, &fakeExecutor{}, ret, synth)

	env := o.Answer(context.Background(), Request{Question: "q", Strategy: StrategyVector}, NewMemory())

	if gen.calls != 0 {
		t.Error("SQL path used despite explicit vector request")
	}
	if env.Strategy != StrategyVector {
		t.Errorf("strategy = %q", env.Strategy)
	}
	if strings.Contains(env.Answer, "backup semantic retrieval") {
		t.Error("fallback note on an explicitly requested vector answer")
	}
	if len(env.Sources) != 2 {
		t.Fatalf("sources = %d", len(env.Sources))
	}
	if got := env.Sources[0].Content; len(got) != 203 || !strings.HasSuffix(got, "...") {
		t.Errorf("first source not truncated to 200+ellipsis: %d chars", len(got))
	}
	if env.Sources[1].Rank != 2 {
		t.Errorf("rank = %d", env.Sources[1].Rank)
	}
}

func TestAnswerEmptyChunksShortCircuit(t *testing.T) {
	o := newOrchestrator(&fakeGenerator{}, &fakeExecutor{}, &fakeRetriever{}, &fakeSynth{})

	env := o.Answer(context.Background(), Request{Question: "q", Strategy: StrategyVector}, NewMemory())

	if env.Answer != answer.NoChunksMessage {
		t.Errorf("answer = %q", env.Answer)
	}
	if len(env.Sources) != 0 {
		t.Errorf("sources = %+v, want empty", env.Sources)
	}
}

func TestMemoryBound(t *testing.T) {
	mem := NewMemory()
	for i := 0; i < 8; i++ {
		mem.Append("q", "a")
	}
	if got := len(mem.Last()); got != HistoryTurns {
		t.Errorf("retained %d turns, want %d", got, HistoryTurns)
	}
}

func TestExtractTableNames(t *testing.T) {
	sql := "SELECT s.name FROM students s JOIN grades g ON g.student_id = s.id JOIN students s2 ON s2.id = g.peer_id"
	got := extractTableNames(sql)
	want := []string{"students", "grades"}
	if len(got) != len(want) {
		t.Fatalf("tables = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("tables[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
