package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"vaultx/internal/bootstrap"
	"vaultx/internal/infra"
)

var (
	// Global flags
	verbose bool
	kvURL   string
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "vaultx",
	Short: "vaultx - image, video and chat generation from the terminal",
	Long: `vaultx drives the generation engine locally.

Prompts are spell-checked before dispatch; when a correction is proposed you
are asked whether to accept it. Without GEMINI_API_KEY (or a key stored with
"vaultx key set") the deterministic synthetic provider is used.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log at debug level")
	rootCmd.PersistentFlags().StringVar(&kvURL, "kv", "", "Key-value store URL (overrides KV_STORE)")

	rootCmd.AddCommand(serveCmd, imageCmd, editCmd, videoCmd, chatCmd, keyCmd)
}

// openContainer loads configuration and wires the engine for one command.
func openContainer(ctx context.Context, cmd *cobra.Command) (*bootstrap.Container, error) {
	cfg, err := infra.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if kvURL != "" {
		cfg.KVStoreURL = kvURL
	}
	logger := infra.NewCLILogger(cmd.ErrOrStderr(), verbose)
	if cmd.Name() == "serve" {
		logger = infra.NewLogger(cfg.AppEnv)
	}
	return bootstrap.New(ctx, cfg, &logger)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
