package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/storefront/backend/internal/bootstrap"
	"github.com/storefront/backend/internal/infrastructure/config"
	"github.com/storefront/backend/internal/infrastructure/logger"
	"go.uber.org/zap"
)

type rootOptions struct {
	configFile string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:          "ledgerctl",
		Short:        "Settlement ledger maintenance",
		Long:         `Operational commands for the delivery-agent settlement ledger.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "config file (default searches ./config.toml, ./config, /etc/storefront)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "log level (debug, info, warn, error)")

	cmd.AddCommand(
		newRebuildCmd(opts),
		newVerifyCmd(opts),
		newExportCmd(opts),
		newTokenCmd(opts),
	)
	return cmd
}

func (o *rootOptions) config() (*config.Config, error) {
	if o.configFile != "" {
		return config.LoadFile(o.configFile)
	}
	return config.Load()
}

func (o *rootOptions) logger() (*zap.Logger, error) {
	return logger.New(&logger.Config{Level: o.logLevel, Format: "console", Output: "stderr"})
}

// withApp loads configuration, wires the settlement stack and runs fn
func (o *rootOptions) withApp(ctx context.Context, fn func(ctx context.Context, app *bootstrap.App) error) error {
	cfg, err := o.config()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log, err := o.logger()
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync(log) }()

	app, err := bootstrap.New(ctx, cfg, log, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(context.Background()); err != nil {
			log.Warn("close failed", zap.Error(err))
		}
	}()
	return fn(ctx, app)
}
