// Copyright (c) 2025 CohortIQ
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package vector retrieves semantically similar text chunks from a
// pgvector-backed chunk store. Question embeddings are L2-normalized so the
// inner-product operator (<#>) ranks by cosine similarity; chunk embeddings
// are normalized at indexing time by the ingestion pipeline.
package vector

import (
	"math"
	"strconv"
	"strings"
)

// Chunk is a stored unit of semantic retrieval: text plus free-form metadata.
// Embeddings stay in the store; they are never materialized on retrieval.
type Chunk struct {
	Text     string
	Metadata map[string]any
}

// Normalize scales vec to unit length. A zero vector is returned unchanged.
func Normalize(vec []float32) []float32 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return vec
	}
	norm := 1.0 / math.Sqrt(sum)
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = float32(float64(v) * norm)
	}
	return out
}

// Literal renders a vector as a pgvector text literal: [0.1,0.2,...].
func Literal(vec []float32) string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, v := range vec {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.FormatFloat(float64(v), 'f', -1, 32))
	}
	sb.WriteByte(']')
	return sb.String()
}
