package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/agroguard/agroguard/pkg/config"
	"github.com/agroguard/agroguard/pkg/mcp"
)

func newMCPCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the advisory tools over MCP on stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			// stdout carries the protocol.
			a, err := newApp(*configPath, func(cfg *config.Config) {
				cfg.Log.OutputPaths = slices.DeleteFunc(cfg.Log.OutputPaths, func(p string) bool { return p == "stdout" })
			})
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			opts := []mcp.Option{
				mcp.WithCache(a.cache),
				mcp.WithAuditor(a.auditor),
				mcp.WithLogger(a.logger),
			}
			if a.tracker != nil {
				opts = append(opts, mcp.WithTracker(a.tracker))
			}
			if a.enforcer != nil {
				opts = append(opts, mcp.WithBudget(a.enforcer, a.providerNames()))
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			srv := mcp.New(a.gateway, version, opts...)
			if err := srv.Run(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			drainCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			return a.gateway.Drain(drainCtx)
		},
	}
}
