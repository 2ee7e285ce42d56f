// Copyright (c) 2025 CohortIQ
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"fmt"

	"cohortiq/assistant/internal/session"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

// sessionsCmd lists stored chat sessions, or the messages of one session when
// a session id is given.
var sessionsCmd = &cobra.Command{
	Use:   "sessions [session-id]",
	Short: "List stored chat sessions or show one session's messages",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		connString, err := resolveDSN()
		if err != nil {
			return err
		}
		pool, err := pgxpool.New(ctx, connString)
		if err != nil {
			return fmt.Errorf("creating connection pool: %w", err)
		}
		defer pool.Close()
		store := session.NewStore(pool)

		if len(args) == 1 {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid session id %q", args[0])
			}
			messages, err := store.ListMessages(ctx, id)
			if err != nil {
				return err
			}
			if len(messages) == 0 {
				pterm.Println("No messages in session " + id.String())
				return nil
			}
			for _, m := range messages {
				prefix := pterm.Gray(m.CreatedAt.Format("2006-01-02 15:04") + " " + m.Role + ":")
				pterm.Println(prefix + " " + m.Content)
			}
			return nil
		}

		sessions, err := store.ListSessions(ctx, session.AnonymousUserID)
		if err != nil {
			return err
		}
		if len(sessions) == 0 {
			pterm.Println("No stored sessions.")
			return nil
		}

		rows := pterm.TableData{{"Session", "Title", "Messages", "Last activity"}}
		for _, s := range sessions {
			rows = append(rows, []string{
				s.ID.String(),
				s.Title,
				fmt.Sprintf("%d", s.MessageCount),
				s.UpdatedAt.Format("2006-01-02 15:04"),
			})
		}
		return pterm.DefaultTable.WithHasHeader().WithData(rows).Render()
	},
}

func init() {
	rootCmd.AddCommand(sessionsCmd)
}
