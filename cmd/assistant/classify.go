package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	id "github.com/atlasvoice/assistant/internal/idgen"
	"github.com/atlasvoice/assistant/internal/intent"
)

// classifyCmd runs only the C7-C9 classification step (internal/intent)
// against a single utterance, without slot-filling or orchestration,
// useful for inspecting catalogue/confidence-weight changes in isolation.
func classifyCmd() *cobra.Command {
	var catalogueFile, actionsFile, catalogueSource string

	cmd := &cobra.Command{
		Use:   "classify <utterance>",
		Short: "Classify a single utterance and print the result",
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

			out, err := wired.IntentEngine.Classify(ctx, intent.Input{
				RequestID:    id.NewRequest(),
				Utterance:    args[0],
				KnownIntents: wired.Catalogue.Current().IDs(),
			})
			if err != nil {
				return fmt.Errorf("classify: %w", err)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}

	cmd.Flags().StringVar(&catalogueSource, "catalogue-source", "yaml", `catalogue backing: "yaml" or "postgres"`)
	cmd.Flags().StringVar(&catalogueFile, "catalogue-file", "catalogue.yaml", "path to the YAML intent catalogue")
	cmd.Flags().StringVar(&actionsFile, "actions-file", "actions.yaml", "path to the YAML tool-action catalogue")
	return cmd
}
