package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"discussion-agent/internal/app"
	"discussion-agent/internal/config"
	"discussion-agent/internal/logging"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(opts.configFile)
			if err != nil {
				return err
			}
			logger, err := logging.New(cfg.Logging)
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			application, _, err := app.Build(ctx, cfg, logger)
			if err != nil {
				logger.With(logging.F("err", err)).Error("failed to assemble service")
				return err
			}
			if err := application.Run(ctx); err != nil && ctx.Err() == nil {
				return err
			}
			return nil
		},
	}
}
