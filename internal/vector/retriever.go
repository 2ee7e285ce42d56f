// Copyright (c) 2025 CohortIQ
// Licensed under the MIT License. See LICENSE file in the project root for details.

package vector

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"cohortiq/assistant/internal/errors"
)

// undefinedTable is the PostgreSQL error code for a missing relation.
const undefinedTable = "42P01"

// Embedder is the embedding collaborator consumed by the retriever.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Retriever fetches the nearest chunks for a question from the chunk store.
type Retriever struct {
	pool     *pgxpool.Pool
	embedder Embedder
	table    string
}

// NewRetriever creates a Retriever over the given chunk table.
func NewRetriever(pool *pgxpool.Pool, embedder Embedder, table string) *Retriever {
	if table == "" {
		table = "rag_chunks4"
	}
	return &Retriever{pool: pool, embedder: embedder, table: table}
}

// Retrieve embeds the question and returns the k nearest chunks by inner
// product, closest first; ties break by insertion order. A missing chunk table
// yields an empty result; embedding or connectivity failures surface as
// retrieval_failed errors.
func (r *Retriever) Retrieve(ctx context.Context, question string, k int) ([]Chunk, error) {
	if k <= 0 {
		k = 50
	}

	vec, err := r.embedder.Embed(ctx, question)
	if err != nil {
		return nil, errors.Wrap(errors.RetrievalFailed, "embedding question", err)
	}
	literal := Literal(Normalize(vec))

	chunks, err := r.query(ctx, r.table, literal, k)
	if err == nil {
		return chunks, nil
	}
	if !isUndefinedTable(err) {
		return nil, errors.Wrap(errors.RetrievalFailed, "querying chunk store", err)
	}

	// Older datasets keep the chunk table in the archive schema.
	chunks, err = r.query(ctx, "archive."+r.table, literal, k)
	if err != nil {
		if isUndefinedTable(err) {
			return nil, nil
		}
		return nil, errors.Wrap(errors.RetrievalFailed, "querying chunk store", err)
	}
	return chunks, nil
}

// query runs the nearest-neighbor scan against one chunk table.
func (r *Retriever) query(ctx context.Context, table, literal string, k int) ([]Chunk, error) {
	sql := fmt.Sprintf(`
		SELECT chunk_text, metadata
		FROM %s
		ORDER BY embedding <#> $1::vector, id
		LIMIT $2`, table)

	rows, err := r.pool.Query(ctx, sql, literal, k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []Chunk
	for rows.Next() {
		var c Chunk
		if err := rows.Scan(&c.Text, &c.Metadata); err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return chunks, nil
}

// isUndefinedTable reports whether err is PostgreSQL's undefined_table.
func isUndefinedTable(err error) bool {
	var pgErr *pgconn.PgError
	return stderrors.As(err, &pgErr) && pgErr.Code == undefinedTable
}
