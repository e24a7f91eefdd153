package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// keyCmd manages the stored provider key
var keyCmd = &cobra.Command{
	Use:   "key",
	Short: "Manage the stored Gemini API key",
}

var keySetCmd = &cobra.Command{
	Use:   "set <value>",
	Short: "Store the Gemini API key in the key-value store",
	Long: `Store the Gemini API key under credentials/gemini in the configured
key-value store. GEMINI_API_KEY in the environment still takes precedence.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := strings.TrimSpace(args[0])
		if key == "" {
			return errors.New("key must not be empty")
		}
		ctx := cmd.Context()
		c, err := openContainer(ctx, cmd)
		if err != nil {
			return err
		}
		defer c.Close()
		if err := c.Credentials.SetGeminiAPIKey(ctx, key); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Gemini API key stored.")
		return nil
	},
}

func init() {
	keyCmd.AddCommand(keySetCmd)
}
