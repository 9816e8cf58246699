// Command equisaddles runs the EquiSaddles storefront chat relay.
//
//	equisaddles serve --config config/config.yaml
//	equisaddles migrate
//	equisaddles admin create --email owner@equisaddles.com --name Owner --password ...
//	equisaddles send-test-email
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"EquiSaddles/config"
	"EquiSaddles/logger"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type rootOptions struct {
	configPath string
	verbose    bool
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "equisaddles",
		Short:         "EquiSaddles chat relay and notification service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", config.DefaultPath,
		"Path to JSON or YAML configuration file")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false,
		"Enable debug logging")

	root.AddCommand(
		buildServeCmd(opts),
		buildMigrateCmd(opts),
		buildAdminCmd(opts),
		buildSendTestEmailCmd(opts),
	)
	return root
}

// load reads the configuration and builds the logger every command uses.
func (o *rootOptions) load() (config.Config, *zap.Logger, error) {
	cfg, err := config.LoadConfig(o.configPath)
	if err != nil {
		return cfg, nil, fmt.Errorf("load config: %w", err)
	}
	log, err := logger.New(cfg.Log, o.verbose)
	if err != nil {
		return cfg, nil, err
	}
	return cfg, log, nil
}
