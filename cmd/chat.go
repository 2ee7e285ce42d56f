// Copyright (c) 2025 CohortIQ
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"cohortiq/assistant/internal/assistant"
	"cohortiq/assistant/internal/logging"
	"cohortiq/assistant/internal/session"

	"github.com/google/uuid"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var chatPersist bool

// chatCmd runs an interactive question-answering loop. Conversation memory is
// carried across turns so follow-up questions can reference earlier answers.
var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat interactively with the assistant",
	Long: `The chat command starts an interactive loop. Each answer feeds the bounded
conversation memory, so follow-up questions can build on previous turns.
Type "exit" or "quit" (or press Ctrl-D) to leave.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		deps, err := buildPipeline(ctx)
		if err != nil {
			pterm.Println("❌ " + logging.PresentError("setting up pipeline", err))
			return err
		}
		defer deps.Close()

		sessionID := uuid.New()
		if chatPersist {
			if err := deps.store.EnsureSession(ctx, sessionID, session.AnonymousUserID); err != nil {
				pterm.Println("⚠️  " + logging.PresentError("session persistence unavailable", err))
				chatPersist = false
			} else {
				pterm.Println(pterm.Gray("session: " + sessionID.String()))
			}
		}

		mem := assistant.NewMemory()
		scanner := bufio.NewScanner(os.Stdin)
		pterm.Println("Ask about attendance, grades, or enrollment. Type \"exit\" to leave.")
		for {
			fmt.Print("> ")
			if !scanner.Scan() {
				fmt.Println()
				return scanner.Err()
			}
			question := strings.TrimSpace(scanner.Text())
			if question == "" {
				continue
			}
			if question == "exit" || question == "quit" {
				return nil
			}

			stopSpinner := startInlineSpinner(os.Stdout, "thinking", []string{"-", "\\", "|", "/"}, 100*time.Millisecond)
			env := deps.orchestrator.Answer(ctx, assistant.Request{Question: question}, mem)
			stopSpinner()

			printEnvelope(env)

			if chatPersist {
				// Persistence failures should not end the conversation.
				if _, err := deps.store.AppendMessage(ctx, sessionID, "user", question, nil); err == nil {
					meta := map[string]any{"sources": env.Sources, "strategy": env.Strategy}
					_, _ = deps.store.AppendMessage(ctx, sessionID, "assistant", env.Answer, meta)
				}
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().BoolVar(&chatPersist, "persist", false, "Store the conversation in chat_sessions/chat_messages")
}
