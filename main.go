// Package main is the entry point for the CohortIQ assistant CLI.
// It answers natural-language questions about bootcamp education data
// using generated SQL and semantic retrieval over PostgreSQL.
package main

import (
	"cohortiq/assistant/cmd"
)

// main is the entry point for the CohortIQ assistant CLI.
// It initializes and executes the command-line interface.
func main() {
	cmd.Execute()
}
