package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(ctx).Execute(); err != nil {
		log.Error().Err(err).Msg("pricesync failed")
		stop()
		os.Exit(1)
	}
}

func newRootCmd(ctx context.Context) *cobra.Command {
	var cfgPath string
	root := &cobra.Command{
		Use:           "pricesync",
		Short:         "Daily OHLCV ingestion and sync engine for Yahoo Finance",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "", "config file (default $CONFIG_PATH or configs/config.yaml)")

	root.AddCommand(serveCmd(ctx, &cfgPath))
	root.AddCommand(syncCmd(ctx, &cfgPath))
	root.AddCommand(exportCmd(ctx, &cfgPath))
	return root
}

func configPath(flag string) string {
	if flag != "" {
		return flag
	}
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		return v
	}
	return "configs/config.yaml"
}
