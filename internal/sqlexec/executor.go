// Copyright (c) 2025 CohortIQ
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package sqlexec runs guard-approved SELECT statements over a pgx connection pool.
// Every statement executes inside an explicitly read-only transaction with a
// server-side statement timeout, so read-only is enforced by the database
// session, not just by the guard. Results are materialized as column-name-keyed
// records with PostgreSQL-specific types (UUIDs, byte arrays) normalized.
package sqlexec

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"cohortiq/assistant/internal/errors"
)

// StatementTimeout is the hard server-side cap on a single query.
const StatementTimeout = 5 * time.Second

// Row is one result record keyed by column name. Values are flat (no nesting).
type Row map[string]any

// Result is an ordered set of rows from a single statement.
type Result struct {
	Columns []string
	Rows    []Row
}

// Executor executes validated statements using a connection pool.
type Executor struct {
	pool *pgxpool.Pool
}

// New creates an Executor from an existing pgx pool.
func New(pool *pgxpool.Pool) *Executor {
	return &Executor{pool: pool}
}

// Execute runs one statement in a read-only transaction and returns its rows.
// Any database error (timeout, unknown column, type error) surfaces as an
// execution_failed error. The transaction is released on every exit path.
func (e *Executor) Execute(ctx context.Context, sql string) (*Result, error) {
	conn, err := e.pool.Acquire(ctx)
	if err != nil {
		return nil, errors.Wrap(errors.ExecutionFailed, "acquiring connection", err)
	}
	defer conn.Release()

	tx, err := conn.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, errors.Wrap(errors.ExecutionFailed, "starting read-only transaction", err)
	}
	defer tx.Rollback(ctx) // no-op after commit

	// SET LOCAL scopes the timeout to this transaction.
	if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL statement_timeout = %d", StatementTimeout.Milliseconds())); err != nil {
		return nil, errors.Wrap(errors.ExecutionFailed, "setting statement timeout", err)
	}

	rows, err := tx.Query(ctx, sql)
	if err != nil {
		return nil, errors.Wrap(errors.ExecutionFailed, "query failed", err)
	}

	fds := rows.FieldDescriptions()
	cols := make([]string, len(fds))
	for i, fd := range fds {
		cols[i] = string(fd.Name)
	}

	res := &Result{Columns: cols}
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			rows.Close()
			return nil, errors.Wrap(errors.ExecutionFailed, "reading row", err)
		}
		row := make(Row, len(cols))
		for i, col := range cols {
			row[col] = normalizeValue(vals[i])
		}
		res.Rows = append(res.Rows, row)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.ExecutionFailed, "query failed", err)
	}

	// A read-only commit is a no-op but keeps the transaction lifecycle explicit.
	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Wrap(errors.ExecutionFailed, "commit failed", err)
	}
	return res, nil
}

// normalizeValue converts pgx-returned values into plain serializable ones.
func normalizeValue(v any) any {
	switch val := v.(type) {
	case [16]byte:
		return uuidString(val)
	case []byte:
		if len(val) == 16 {
			var b [16]byte
			copy(b[:], val)
			return uuidString(b)
		}
		return fmt.Sprintf(`\x%x`, val)
	default:
		return v
	}
}

// uuidString formats 16 raw bytes as xxxxxxxx-xxxx-xxxx-xxxx-xxxxxxxxxxxx.
func uuidString(v [16]byte) string {
	return fmt.Sprintf("%02x%02x%02x%02x-%02x%02x-%02x%02x-%02x%02x-%02x%02x%02x%02x%02x%02x",
		v[0], v[1], v[2], v[3], v[4], v[5], v[6], v[7],
		v[8], v[9], v[10], v[11], v[12], v[13], v[14], v[15])
}
