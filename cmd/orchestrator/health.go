package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/flowbase/orchestrator/graph/store"
)

func newHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Probe the checkpoint store and exit non-zero if unreachable",
		RunE: func(cmd *cobra.Command, args []string) error {
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

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			if _, err := a.store.GetLatest(ctx, "__healthcheck__"); err != nil && err != store.ErrNotFound {
				return fmt.Errorf("checkpoint store unavailable: %w", err)
			}

			fmt.Println("ok")
			return nil
		},
	}
}
