package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"PriceSync/internal/archive"
	"PriceSync/internal/model"
)

func exportCmd(ctx context.Context, cfgPath *string) *cobra.Command {
	var (
		dir  string
		from string
	)
	cmd := &cobra.Command{
		Use:   "export [SYMBOL ...]",
		Short: "Export stored bars to Parquet, one file per symbol",
		RunE: func(cmd *cobra.Command, args []string) error {
			var since time.Time
			if from != "" {
				t, err := time.ParseInLocation(model.DateFormat, from, time.UTC)
				if err != nil {
					return fmt.Errorf("--from: %w", err)
				}
				since = t
			}

			a, err := newApp(ctx, *cfgPath)
			if err != nil {
				return err
			}
			defer a.Close()

			rep, err := archive.NewExporter(a.store, dir, a.log).Export(ctx, args, since)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported %d rows to %d files in %s\n", rep.Rows, rep.Files, dir)
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "data/export", "output directory")
	cmd.Flags().StringVar(&from, "from", "", "only export bars on or after this date (YYYY-MM-DD)")
	return cmd
}
