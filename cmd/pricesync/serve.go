package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"PriceSync/internal/api"
	"PriceSync/internal/notifier"
	"PriceSync/internal/scheduler"
)

func serveCmd(ctx context.Context, cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler and the HTTP read API",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(ctx, *cfgPath)
			if err != nil {
				return err
			}
			defer a.Close()
			return a.serve(ctx)
		},
	}
}

func (a *app) serve(ctx context.Context) error {
	a.log.Info().Str("db", a.cfg.Database.Driver).Msg("PriceSync starting")

	var note scheduler.Notifier
	tn := notifier.NewTelegramNotifier(a.cfg.Telegram.BotToken, a.cfg.Telegram.ChatID, a.client, a.log)
	if tn.Enabled() {
		note = tn
	}

	sched := scheduler.NewScheduler(ctx, a.syncer, note, scheduler.Options{
		SkipWeekends: a.cfg.Schedule.SkipWeekends,
	}, a.log)
	if a.cfg.Schedule.Enabled {
		if err := sched.RegisterAll(a.cfg.Schedule.DailyCron); err != nil {
			return err
		}
		sched.Start()
	}
	defer sched.Stop()

	if tn.Enabled() {
		go tn.StartPolling(ctx, sched.HandleCommand)
		a.log.Info().Msg("telegram polling started")
	}

	if a.cfg.Schedule.RunOnStart {
		sched.RunOnStart()
	}

	srv := api.NewServer(a.cfg.Server.Addr, api.Deps{
		Store:   a.store,
		Syncer:  a.syncer,
		Aliases: a.aliases,
		Trigger: sched,
		Metrics: a.metrics,
	}, a.log)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	a.log.Info().Msg("PriceSync is running. Press Ctrl+C to stop.")
	select {
	case <-ctx.Done():
		a.log.Info().Msg("shutdown signal received, stopping...")
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Warn().Err(err).Msg("http shutdown")
	}
	return nil
}
