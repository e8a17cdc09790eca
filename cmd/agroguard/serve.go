package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/agroguard/agroguard/pkg/ratelimit"
	"github.com/agroguard/agroguard/pkg/server"
)

func newServeCmd(configPath *string) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the advisory HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*configPath)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			if listen != "" {
				a.cfg.Listen = listen
			}

			opts := []server.Option{server.WithLogger(a.logger)}
			if a.cfg.RateLimit.Enabled {
				limiter, err := ratelimit.New(a.cfg.RateLimit)
				if err != nil {
					return fmt.Errorf("init rate limiter: %w", err)
				}
				defer func() { _ = limiter.Close() }()
				opts = append(opts, server.WithLimiter(limiter))
			}

			srv := server.New(a.cfg.Listen, a.gateway, a.cache, opts...)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a.logger.Info("starting agroguard",
				zap.String("config", *configPath),
				zap.Strings("providers", a.providerNames()),
				zap.Bool("rate_limit", a.cfg.RateLimit.Enabled),
				zap.Bool("audit", a.cfg.Audit.Enabled),
			)
			return srv.ListenAndServe(ctx)
		},
	}

	cmd.Flags().StringVarP(&listen, "listen", "l", "", "listen address (overrides config)")
	return cmd
}
