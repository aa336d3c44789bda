package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"PriceSync/internal/model"
)

func syncCmd(ctx context.Context, cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "sync [SYMBOL ...]",
		Short: "Run one bulk sync and exit",
		Long: "Run one bulk sync over the given symbols, or over the configured " +
			"allow-list (or the whole catalog) when none are given.",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(ctx, *cfgPath)
			if err != nil {
				return err
			}
			defer a.Close()

			var summary *model.RunSummary
			if len(args) > 0 {
				summary, err = a.syncer.SyncSymbols(ctx, args)
			} else {
				summary, err = a.syncer.SyncAll(ctx)
			}
			if err != nil {
				return err
			}
			for _, r := range summary.Results {
				fmt.Fprintf(cmd.OutOrStdout(), "%-12s %-8s %-22s %d\n", r.Symbol, r.State, r.Skip, r.RowsInserted)
			}
			if summary.Failed > 0 {
				return fmt.Errorf("%d of %d symbols failed", summary.Failed, len(summary.Results))
			}
			return nil
		},
	}
}
