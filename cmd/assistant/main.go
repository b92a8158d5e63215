// Command assistant is the thin local entrypoint used to drive and debug
// the classification/orchestration pipeline from a terminal: the service's
// own HTTP/voice surface is out of scope, so this CLI is the only place the
// components are exercised end to end outside of tests.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/atlasvoice/assistant/internal/config"
	"github.com/atlasvoice/assistant/internal/telemetry"
)

// Shared globals populated by the root command's PersistentPreRunE.
var (
	cfg    *config.Config
	logger *slog.Logger
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "assistant",
		Short: "Voice-assistant intent classification and task orchestration CLI",
		Long: `assistant drives the classification and orchestration pipeline from the
command line: classify an utterance, run it end to end through
slot-filling and task orchestration, or inspect a session's state.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			res, err := telemetry.Init(telemetry.Config{
				ServiceName: "assistant-cli",
				Environment: "cli",
				PrettyTrace: true,
			})
			if err != nil {
				return fmt.Errorf("init telemetry: %w", err)
			}
			logger = res.Logger

			return nil
		},
	}

	rootCmd.AddCommand(
		classifyCmd(),
		orchestrateCmd(),
		sessionCmd(),
		reloadCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
