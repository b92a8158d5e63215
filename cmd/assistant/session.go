package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// sessionCmd groups session-store debugging subcommands: show, clear, and
// the expiry sweep, all operating directly against ports.SessionStore
// without running classification.
func sessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Inspect and manage session-store state (C1)",
	}
	cmd.AddCommand(sessionShowCmd(), sessionClearCmd(), sessionSweepCmd())
	return cmd
}

func sessionShowCmd() *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "show <session-id>",
		Short: "Print a session's current context and turn history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			wired, err := wireComponents(ctx, defaultWireOptions())
			if err != nil {
				return err
			}
			defer wired.close()

			session, err := wired.Sessions.CreateOrLoad(ctx, args[0], userID)
			if err != nil {
				return fmt.Errorf("load session: %w", err)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(session)
		},
	}
	cmd.Flags().StringVar(&userID, "user", "cli-user", "user id, used only if the session does not yet exist")
	return cmd
}

func sessionClearCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clear <session-id>",
		Short: "Delete a session from cache and the backing store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			wired, err := wireComponents(ctx, defaultWireOptions())
			if err != nil {
				return err
			}
			defer wired.close()

			if err := wired.Sessions.Delete(ctx, args[0]); err != nil {
				return fmt.Errorf("delete session: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted session %s\n", args[0])
			return nil
		},
	}
	return cmd
}

func sessionSweepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "List session ids whose idle TTL has elapsed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			wired, err := wireComponents(ctx, defaultWireOptions())
			if err != nil {
				return err
			}
			defer wired.close()

			expired, err := wired.Sessions.ListExpired(ctx, time.Now())
			if err != nil {
				return fmt.Errorf("list expired sessions: %w", err)
			}
			for _, id := range expired {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return nil
		},
	}
	return cmd
}

func defaultWireOptions() wireOptions {
	return wireOptions{
		catalogueSource: "yaml",
		catalogueFile:   "catalogue.yaml",
		actionsFile:     "actions.yaml",
	}
}
