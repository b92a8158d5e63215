package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/atlasvoice/assistant/internal/application"
)

// orchestrateCmd runs an utterance through the full ProcessUtterance use
// case: classification, slot-filling, decomposition, and orchestration.
func orchestrateCmd() *cobra.Command {
	var catalogueFile, actionsFile, catalogueSource, sessionID, userID string

	cmd := &cobra.Command{
		Use:   "orchestrate <utterance>",
		Short: "Run an utterance through the full classify-to-execute pipeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			wired, err := wireComponents(ctx, wireOptions{
				catalogueSource: catalogueSource,
				catalogueFile:   catalogueFile,
				actionsFile:     actionsFile,
			})
			if err != nil {
				return err
			}
			defer wired.close()

			out, err := wired.App.Execute(ctx, application.Input{
				SessionID: sessionID,
				UserID:    userID,
				Utterance: args[0],
				Now:       time.Now(),
			})
			if err != nil {
				return fmt.Errorf("process utterance: %w", err)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}

	cmd.Flags().StringVar(&catalogueSource, "catalogue-source", "yaml", `catalogue backing: "yaml" or "postgres"`)
	cmd.Flags().StringVar(&catalogueFile, "catalogue-file", "catalogue.yaml", "path to the YAML intent catalogue")
	cmd.Flags().StringVar(&actionsFile, "actions-file", "actions.yaml", "path to the YAML tool-action catalogue")
	cmd.Flags().StringVar(&sessionID, "session", "", "session id to continue; empty creates a new session")
	cmd.Flags().StringVar(&userID, "user", "cli-user", "user id attached to a newly created session")
	return cmd
}
