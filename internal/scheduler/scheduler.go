package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"PriceSync/internal/model"
	"PriceSync/internal/notifier"
	"PriceSync/internal/window"
)

// ErrRunInProgress is returned when a bulk run is already executing.
var ErrRunInProgress = errors.New("bulk run already in progress")

// Runner performs bulk syncs.
type Runner interface {
	SyncAll(ctx context.Context) (*model.RunSummary, error)
	SyncSymbols(ctx context.Context, symbols []string) (*model.RunSummary, error)
}

// Notifier delivers run reports.
type Notifier interface {
	SendWithRetry(ctx context.Context, text string, maxRetries int) error
}

// Options tunes trigger behaviour.
type Options struct {
	SkipWeekends bool
	Now          func() time.Time
}

// Scheduler owns the cron trigger and guarantees bulk runs never overlap.
type Scheduler struct {
	Cron     *cron.Cron
	Runner   Runner
	Notifier Notifier // nil disables reports
	Ctx      context.Context

	skipWeekends bool
	now          func() time.Time
	log          zerolog.Logger

	running sync.Mutex
	wg      sync.WaitGroup

	mu   sync.RWMutex
	last *model.RunSummary
}

// NewScheduler creates a new Scheduler. Runs use ctx, so cancelling it
// stops an in-flight run between symbols.
func NewScheduler(ctx context.Context, runner Runner, n Notifier, opts Options, log zerolog.Logger) *Scheduler {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Scheduler{
		Cron:         cron.New(cron.WithSeconds()),
		Runner:       runner,
		Notifier:     n,
		Ctx:          ctx,
		skipWeekends: opts.SkipWeekends,
		now:          now,
		log:          log.With().Str("component", "scheduler").Logger(),
	}
}

// RegisterAll registers the daily bulk sync.
func (s *Scheduler) RegisterAll(dailyCron string) error {
	if _, err := s.Cron.AddFunc(dailyCron, s.scheduledTask); err != nil {
		return fmt.Errorf("register daily sync: %w", err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	s.log.Info().Int("jobs", len(s.Cron.Entries())).Msg("scheduler started")
}

// Stop stops the cron scheduler and waits for background runs to return.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	s.wg.Wait()
	s.log.Info().Msg("scheduler stopped")
}

// RunOnStart executes the scheduled task in the background, honouring the
// weekend rule.
func (s *Scheduler) RunOnStart() {
	s.log.Info().Msg("run on start enabled, executing bulk sync now")
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.scheduledTask()
	}()
}

// RunNow executes a bulk run synchronously, ignoring the weekend rule.
func (s *Scheduler) RunNow(ctx context.Context) (*model.RunSummary, error) {
	return s.run(ctx, func(ctx context.Context) (*model.RunSummary, error) {
		return s.Runner.SyncAll(ctx)
	})
}

// Trigger starts a bulk run in the background. It returns ErrRunInProgress
// without starting anything when a run is executing.
func (s *Scheduler) Trigger() error {
	return s.triggerWith(func(ctx context.Context) (*model.RunSummary, error) {
		return s.Runner.SyncAll(ctx)
	})
}

// TriggerSymbols starts a background run over the given symbols only.
func (s *Scheduler) TriggerSymbols(symbols []string) error {
	return s.triggerWith(func(ctx context.Context) (*model.RunSummary, error) {
		return s.Runner.SyncSymbols(ctx, symbols)
	})
}

func (s *Scheduler) triggerWith(fn func(context.Context) (*model.RunSummary, error)) error {
	if !s.running.TryLock() {
		return ErrRunInProgress
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.running.Unlock()
		s.execute(s.Ctx, fn)
	}()
	return nil
}

// Last returns the most recent finished run, or nil.
func (s *Scheduler) Last() *model.RunSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}

func (s *Scheduler) scheduledTask() {
	if s.skipWeekends && window.IsWeekend(s.now()) {
		s.log.Info().Str("day", s.now().Weekday().String()).Msg("weekend, skipping scheduled sync")
		return
	}
	_, err := s.run(s.Ctx, func(ctx context.Context) (*model.RunSummary, error) {
		return s.Runner.SyncAll(ctx)
	})
	if errors.Is(err, ErrRunInProgress) {
		s.log.Warn().Msg("previous bulk sync still running, skipping")
	}
}

func (s *Scheduler) run(ctx context.Context, fn func(context.Context) (*model.RunSummary, error)) (*model.RunSummary, error) {
	if !s.running.TryLock() {
		return nil, ErrRunInProgress
	}
	defer s.running.Unlock()
	return s.execute(ctx, fn)
}

func (s *Scheduler) execute(ctx context.Context, fn func(context.Context) (*model.RunSummary, error)) (*model.RunSummary, error) {
	s.log.Info().Msg("running bulk sync")
	summary, err := fn(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("bulk sync")
	}
	if summary == nil {
		return nil, err
	}

	s.mu.Lock()
	s.last = summary
	s.mu.Unlock()

	s.trySend(notifier.FormatRunSummary(summary))
	return summary, err
}

// HandleCommand processes a chat command and returns a reply.
func (s *Scheduler) HandleCommand(_ context.Context, command string) string {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return help
	}
	switch fields[0] {
	case "/sync":
		var err error
		if len(fields) > 1 {
			err = s.TriggerSymbols(fields[1:])
		} else {
			err = s.Trigger()
		}
		if errors.Is(err, ErrRunInProgress) {
			return "A bulk sync is already running."
		}
		return "Bulk sync started."
	case "/status":
		return notifier.FormatStatus(s.Last())
	default:
		return help
	}
}

const help = "Commands:\n• /sync [SYMBOL ...]\n• /status"

func (s *Scheduler) trySend(text string) {
	if s.Notifier == nil {
		return
	}
	if err := s.Notifier.SendWithRetry(s.Ctx, text, 3); err != nil {
		s.log.Error().Err(err).Msg("send notification")
	}
}
