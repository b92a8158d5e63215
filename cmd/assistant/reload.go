package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// reloadCmd force-triggers a catalogue reload (C2) and reports whether the
// checksum changed, useful after editing a YAML catalogue file by hand.
func reloadCmd() *cobra.Command {
	var catalogueFile, actionsFile, catalogueSource string

	cmd := &cobra.Command{
		Use:   "reload",
		Short: "Reload the intent catalogue and report whether it changed",
		Args:  cobra.NoArgs,
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

			changed, err := wired.Catalogue.Reload(ctx)
			if err != nil {
				return fmt.Errorf("reload catalogue: %w", err)
			}
			if changed {
				fmt.Fprintln(cmd.OutOrStdout(), "catalogue changed, swapped in new version")
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "catalogue unchanged")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&catalogueSource, "catalogue-source", "yaml", `catalogue backing: "yaml" or "postgres"`)
	cmd.Flags().StringVar(&catalogueFile, "catalogue-file", "catalogue.yaml", "path to the YAML intent catalogue")
	cmd.Flags().StringVar(&actionsFile, "actions-file", "actions.yaml", "path to the YAML tool-action catalogue")
	return cmd
}
