package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/flowbase/orchestrator/pkg/api"
)

func newServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server (chat/stream, execute/stream, webhooks)",
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			envPath, _ := cmd.Flags().GetString("env")

			cfg, err := loadConfig(configPath, envPath)
			if err != nil {
				return err
			}

			a, err := newApp(cfg)
			if err != nil {
				return err
			}

			if addr != "" {
				cfg.HTTPAddr = addr
			}

			server := api.NewServer(api.Deps{
				Engine:         a.engine,
				Store:          a.store,
				Agents:         a.agents,
				Approvals:      a.approvals,
				Subscribers:    a.subs,
				Metrics:        a.metrics,
				Logger:         a.logger,
				WebhookSecret:  cfg.TrackerWebhookSecret,
				ApprovedStates: cfg.AllowedWebhookStates.Approved,
				RejectedStates: cfg.AllowedWebhookStates.Rejected,
			})

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			go a.expireApprovalsLoop(ctx, time.Minute)

			errCh := make(chan error, 1)
			go func() {
				a.logger.Info("http server listening", "addr", cfg.HTTPAddr)
				errCh <- server.Start(cfg.HTTPAddr)
			}()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

			select {
			case err := <-errCh:
				return err
			case <-sigCh:
				a.logger.Info("shutting down")
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer shutdownCancel()
				return server.Shutdown(shutdownCtx)
			}
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "override http_addr from config")
	return cmd
}
