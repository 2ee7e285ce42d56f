// Copyright (c) 2025 CohortIQ
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package sqlguard validates model-generated SQL before execution.
// The SQL text comes from an untrusted generative process, so validation is
// conservative and purely syntactic: no attempt to fix semantics, only to bound
// blast radius (read-only, single statement, bounded rows).
package sqlguard

import (
	"regexp"
	"strconv"
	"strings"

	"cohortiq/assistant/internal/errors"
)

// DefaultLimit is appended when the statement carries no LIMIT clause.
const DefaultLimit = 200

var (
	denyRe   = regexp.MustCompile(`(?i)\b(INSERT|UPDATE|DELETE|DROP|TRUNCATE|ALTER|CREATE|GRANT|REVOKE|MERGE)\b`)
	selectRe = regexp.MustCompile(`(?i)^\s*SELECT\b`)
	limitRe  = regexp.MustCompile(`(?i)\bLIMIT\s+\d+\b`)
)

// Validate normalizes a candidate statement or rejects it with an unsafe_sql error.
// Rules, applied in order: no denylisted keyword anywhere, must begin with SELECT,
// single statement only, and a LIMIT is appended when missing.
//
// Known over-strict edge case: a ';' inside a string literal is treated as a
// statement separator and rejected.
func Validate(sql string) (string, error) {
	if denyRe.MatchString(sql) {
		return "", errors.New(errors.UnsafeSQL, "unsafe SQL detected; only SELECT queries are allowed")
	}
	if !selectRe.MatchString(sql) {
		return "", errors.New(errors.UnsafeSQL, "only a single SELECT statement is allowed")
	}

	trimmed := strings.TrimSpace(sql)
	if strings.Contains(trimmed[:len(trimmed)-1], ";") {
		return "", errors.New(errors.UnsafeSQL, "multiple statements detected; provide exactly one SELECT")
	}

	if !limitRe.MatchString(trimmed) {
		return strings.TrimRight(trimmed, "; \t\n") + " LIMIT " + strconv.Itoa(DefaultLimit), nil
	}
	return sql, nil
}
