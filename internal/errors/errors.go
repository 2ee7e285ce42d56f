// Copyright (c) 2025 CohortIQ
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package errors defines typed errors with categories for the answer pipeline.
// It provides a structured approach to error handling with machine-readable error
// kinds and human-friendly messages. The orchestrator branches on kinds to decide
// between retrying SQL generation, falling back to vector retrieval, or giving up.
//
// The package supports wrapping underlying errors while maintaining error kind
// information, so the original database or HTTP failure stays available for
// diagnostics without leaking into user-facing answers.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind is a machine-readable error category.
type Kind string

const (
	// LLMUnavailable indicates a completion or embedding call failed or timed out.
	LLMUnavailable Kind = "llm_unavailable"
	// UnsafeSQL indicates the safety guard rejected a generated statement.
	UnsafeSQL Kind = "unsafe_sql"
	// ExecutionFailed indicates the database rejected a guard-approved statement.
	ExecutionFailed Kind = "execution_failed"
	// RetrievalFailed indicates the embedding or chunk-store call failed.
	RetrievalFailed Kind = "retrieval_failed"
	// NoEvidence indicates retrieval succeeded but returned nothing.
	NoEvidence Kind = "no_evidence"
)

// E wraps an error with kind and human-friendly message.
type E struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *E) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As chains.
func (e *E) Unwrap() error { return e.Err }

func Wrap(kind Kind, msg string, err error) *E { return &E{Kind: kind, Message: msg, Err: err} }
func New(kind Kind, msg string) *E             { return &E{Kind: kind, Message: msg} }

// KindOf returns the kind of err, or "" when err carries no kind.
func KindOf(err error) Kind {
	var e *E
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// HasKind reports whether err carries the given kind anywhere in its chain.
func HasKind(err error, kind Kind) bool { return KindOf(err) == kind }
