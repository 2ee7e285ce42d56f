// Copyright (c) 2025 CohortIQ
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"fmt"

	"cohortiq/assistant/internal/config"
	"cohortiq/assistant/internal/logging"
	"cohortiq/assistant/internal/schema"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var schemaRefresh bool

// schemaCmd prints the schema snapshot handed to the SQL generator. Useful for
// checking what the model actually sees.
var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the schema snapshot used for SQL generation",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		connString, err := resolveDSN()
		if err != nil {
			return err
		}
		pool, err := pgxpool.New(ctx, connString)
		if err != nil {
			return fmt.Errorf("creating connection pool: %w", err)
		}
		defer pool.Close()

		snap, err := schema.New(pool, cfg.Schema.Tables, cfg.Schema.SampleRows).Snapshot(ctx, schemaRefresh)
		if err != nil {
			pterm.Println("❌ " + logging.PresentError("building schema snapshot", err))
			return err
		}
		fmt.Println(snap.Text())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(schemaCmd)
	schemaCmd.Flags().BoolVar(&schemaRefresh, "refresh", false, "Rebuild the snapshot instead of using the cache")
}
