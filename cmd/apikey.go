// Copyright (c) 2025 CohortIQ
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"cohortiq/assistant/internal/keychain"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var clearAPIKey bool

// apikeyCmd stores the language-model API key in the OS keychain. Input is
// read without echo so the key never appears on screen or in scrollback.
var apikeyCmd = &cobra.Command{
	Use:   "apikey",
	Short: "Store the model API key in the OS keychain",
	Long: `The apikey command prompts for the language-model API key and stores it
securely in the OS keychain. The OPENAI_API_KEY and COHORTIQ_API_KEY
environment variables take precedence over the stored key.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		km, err := keychain.GetManager()
		if err != nil {
			fmt.Println("❌ Secure storage is not available on this system.")
			fmt.Println("   Keychain is only supported on macOS and Windows.")
			return err
		}

		if clearAPIKey {
			if err := km.ClearAPIKey(); err != nil {
				return err
			}
			fmt.Println("✅ Stored API key removed.")
			return nil
		}

		fmt.Print("Enter API key: ")
		raw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		if err != nil {
			return fmt.Errorf("reading API key: %w", err)
		}
		key := strings.TrimSpace(string(raw))
		if key == "" {
			return errors.New("API key is required")
		}

		if err := km.SaveAPIKey(key); err != nil {
			fmt.Println("❌ Failed to save API key securely.")
			return err
		}
		fmt.Println("✅ API key saved!")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(apikeyCmd)
	apikeyCmd.Flags().BoolVar(&clearAPIKey, "clear", false, "Remove the stored API key")
}
