// Copyright (c) 2025 CohortIQ
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package cmd provides the command-line interface for the CohortIQ assistant.
// It implements subcommands for connecting to the dataset, asking questions,
// chatting interactively, and serving the HTTP API, using the Cobra CLI
// framework.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	showVersion bool
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:           "cohortiq",
	Short:         "CohortIQ assistant for bootcamp education data",
	Long:          `CohortIQ answers natural-language questions about bootcamp attendance, grades, and enrollment held in PostgreSQL, using generated read-only SQL with a semantic-retrieval fallback.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if showVersion {
			fmt.Printf("cohortiq %s\n", Version)
			return nil
		}
		return cmd.Help()
	},
}

// Execute runs the CLI application.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.Flags().BoolVar(&showVersion, "version", false, "Show version information")
}
