// Copyright (c) 2025 CohortIQ
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"errors"
	"os"
	"strings"
	"time"

	"cohortiq/assistant/internal/assistant"
	"cohortiq/assistant/internal/logging"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var (
	askVector  bool
	askShowSQL bool
)

// askCmd answers a single question and exits.
var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a single question about the dataset",
	Long: `The ask command answers one natural-language question about the bootcamp
dataset and exits. By default the answer is produced from generated read-only
SQL, falling back to semantic retrieval when the SQL path fails.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		question := strings.TrimSpace(strings.Join(args, " "))
		if question == "" {
			return errors.New("question is required")
		}

		ctx := cmd.Context()
		deps, err := buildPipeline(ctx)
		if err != nil {
			pterm.Println("❌ " + logging.PresentError("setting up pipeline", err))
			return err
		}
		defer deps.Close()

		stopSpinner := startInlineSpinner(os.Stdout, "thinking", []string{"-", "\\", "|", "/"}, 100*time.Millisecond)
		req := assistant.Request{Question: question}
		if askVector {
			req.Strategy = assistant.StrategyVector
		}
		env := deps.orchestrator.Answer(ctx, req, assistant.NewMemory())
		stopSpinner()

		printEnvelope(env)
		return nil
	},
}

// printEnvelope renders an answer envelope for terminal display.
func printEnvelope(env *assistant.Envelope) {
	pterm.DefaultBox.
		WithTitle(pterm.NewStyle(pterm.FgCyan, pterm.Bold).Sprint("Answer")).
		WithPadding(1).
		Println(env.Answer)

	pterm.Println(pterm.Gray("strategy: " + string(env.Strategy)))
	if askShowSQL && env.SQL != "" {
		pterm.Println(pterm.Gray("sql: " + env.SQL))
	}
	if env.Diagnostic != "" {
		pterm.Println(pterm.Gray("diagnostic: " + logging.Mask(env.Diagnostic)))
	}
	pterm.Println()
}

func init() {
	rootCmd.AddCommand(askCmd)
	askCmd.Flags().BoolVar(&askVector, "vector", false, "Answer from semantic retrieval instead of generated SQL")
	askCmd.Flags().BoolVar(&askShowSQL, "show-sql", false, "Print the executed SQL statement")
}
