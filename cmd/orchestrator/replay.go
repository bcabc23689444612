package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/flowbase/orchestrator/graph/store"
)

// newReplayCmd implements the spec §6 "subcommand to replay a thread from a
// given checkpoint for debugging": it reads the checkpoint chain through
// the same graph/store.Store.List call GET /threads/:thread_id/checkpoints
// uses (pkg/api/handler_checkpoints.go), so there is exactly one read path
// for checkpoint history, not a duplicated query.
func newReplayCmd() *cobra.Command {
	var checkpointID string

	cmd := &cobra.Command{
		Use:   "replay <thread_id>",
		Short: "Print a thread's checkpoint history, or one checkpoint's state, for debugging",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			threadID := args[0]

			configPath, _ := cmd.Flags().GetString("config")
			envPath, _ := cmd.Flags().GetString("env")

			cfg, err := loadConfig(configPath, envPath)
			if err != nil {
				return err
			}

			a, err := newApp(cfg)
			if err != nil {
				return fmt.Errorf("constructing components: %w", err)
			}

			ctx := context.Background()

			if checkpointID != "" {
				cp, err := a.store.Get(ctx, threadID, checkpointID)
				if err != nil {
					return fmt.Errorf("loading checkpoint %s for thread %s: %w", checkpointID, threadID, err)
				}
				return printJSON(cp)
			}

			checkpoints, err := a.store.List(ctx, threadID)
			if err != nil {
				if err == store.ErrNotFound {
					return fmt.Errorf("no checkpoints for thread %s", threadID)
				}
				return fmt.Errorf("listing checkpoints for thread %s: %w", threadID, err)
			}
			return printJSON(checkpoints)
		},
	}

	cmd.Flags().StringVar(&checkpointID, "checkpoint", "", "print one specific checkpoint instead of the full history")
	return cmd
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
