package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/camuig/coin-trader/internal/logger"
	"github.com/camuig/coin-trader/internal/metrics"
	"github.com/camuig/coin-trader/internal/remote"
	"github.com/camuig/coin-trader/internal/storage"
	"github.com/camuig/coin-trader/internal/telegram"
	"github.com/camuig/coin-trader/internal/trading"
	"github.com/camuig/coin-trader/internal/wallet"
)

// commandPoll is how often queued remote commands are applied.
const commandPoll = time.Second

type Scheduler struct {
	wallet   *wallet.Manager
	settings *trading.Settings
	queue    *remote.Queue
	applier  *remote.Applier
	repo     *storage.Repository
	notifier *telegram.Notifier
	logger   *logger.Logger
}

func NewScheduler(
	w *wallet.Manager,
	settings *trading.Settings,
	queue *remote.Queue,
	applier *remote.Applier,
	repo *storage.Repository,
	notifier *telegram.Notifier,
	log *logger.Logger,
) *Scheduler {
	return &Scheduler{
		wallet:   w,
		settings: settings,
		queue:    queue,
		applier:  applier,
		repo:     repo,
		notifier: notifier,
		logger:   log,
	}
}

// Run starts the screening/buying loop and the update loop and blocks until
// ctx is done.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("scheduler started",
		"screening_gap", s.settings.ScreeningGap().String(),
		"buying_gap", s.settings.BuyingGap().String(),
		"updating_gap", s.settings.UpdatingGap().String(),
		"enabled", s.settings.Enabled())
	metrics.SetEnabled(s.settings.Enabled())

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.tradingLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		s.updateLoop(ctx)
	}()
	wg.Wait()

	s.logger.Info("scheduler stopped")
}

// tradingLoop screens and buys on two independent timers. Gaps are re-read
// after every cycle.
func (s *Scheduler) tradingLoop(ctx context.Context) {
	// Run screening immediately on start
	screen := time.NewTimer(0)
	buy := time.NewTimer(s.settings.BuyingGap())
	defer screen.Stop()
	defer buy.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-screen.C:
			s.runCycle(ctx, "screen", s.screenCycle)
			screen.Reset(s.settings.ScreeningGap())
		case <-buy.C:
			s.runCycle(ctx, "buy", s.buyCycle)
			buy.Reset(s.settings.BuyingGap())
		}
	}
}

// updateLoop re-prices held positions and applies remote commands. Commands
// are applied even while the trader is disabled.
func (s *Scheduler) updateLoop(ctx context.Context) {
	update := time.NewTimer(s.settings.UpdatingGap())
	poll := time.NewTicker(commandPoll)
	defer update.Stop()
	defer poll.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-update.C:
			s.runCycle(ctx, "update", s.updateCycle)
			update.Reset(s.settings.UpdatingGap())
		case <-poll.C:
			s.PollCommands()
		}
	}
}

// PollCommands applies every queued remote command.
func (s *Scheduler) PollCommands() int {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic applying remote commands", "panic", fmt.Sprint(r))
		}
	}()
	n := s.applier.Drain(s.queue)
	if n > 0 {
		metrics.SetEnabled(s.settings.Enabled())
	}
	return n
}

type cycleFunc func(ctx context.Context) (string, error)

// runCycle runs one cycle with panic recovery. A disabled trader skips the
// work but the loops keep ticking.
func (s *Scheduler) runCycle(ctx context.Context, kind string, fn cycleFunc) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic in scheduler cycle", "kind", kind, "panic", fmt.Sprint(r))
			metrics.CyclesTotal.WithLabelValues(kind, "panic").Inc()
			s.notifier.NotifyError("scheduler panic", fmt.Errorf("%s: %v", kind, r))
		}
	}()

	if !s.settings.Enabled() {
		metrics.CyclesTotal.WithLabelValues(kind, "skipped").Inc()
		s.logger.Debug("trader disabled, skipping cycle", "kind", kind)
		return
	}

	start := time.Now()
	summary, err := fn(ctx)
	elapsed := time.Since(start)
	metrics.CycleDuration.WithLabelValues(kind).Observe(elapsed.Seconds())

	if err != nil {
		metrics.CyclesTotal.WithLabelValues(kind, "error").Inc()
		s.logger.Error("cycle failed", "kind", kind, "error", err)
	} else {
		metrics.CyclesTotal.WithLabelValues(kind, "ok").Inc()
		s.logger.Debug("cycle completed", "kind", kind, "summary", summary, "duration", elapsed.String())
	}
	s.saveCycleLog(kind, elapsed, summary, err)
}

func (s *Scheduler) screenCycle(ctx context.Context) (string, error) {
	stats, err := s.wallet.Screen(ctx)
	if err != nil {
		return "", err
	}
	if stats.Accepted > 0 {
		s.logger.Info("screening completed", "evaluated", stats.Evaluated, "accepted", stats.Accepted)
	}
	return fmt.Sprintf("evaluated=%d out_of_phase=%d below_forecast=%d no_history=%d accepted=%d",
		stats.Evaluated, stats.OutOfPhase, stats.BelowForecast, stats.ForecastFailed, stats.Accepted), nil
}

func (s *Scheduler) buyCycle(ctx context.Context) (string, error) {
	stats, err := s.wallet.BuyCandidates(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("candidates=%d bought=%d not_sizable=%d no_funds=%d failed=%d",
		stats.Candidates, stats.Bought, stats.NotSizable, stats.NoFunds, stats.Failed), nil
}

func (s *Scheduler) updateCycle(ctx context.Context) (string, error) {
	stats, err := s.wallet.UpdatePositions(ctx)
	if err != nil {
		return "", err
	}
	if err := s.wallet.RefreshBalances(ctx); err != nil {
		// non-fatal, coins are refreshed again next cycle
		s.logger.Warn("refresh balances", "error", err)
	}
	return fmt.Sprintf("held=%d sold=%d failed=%d", stats.Held, stats.Sold, stats.Failed), nil
}

func (s *Scheduler) saveCycleLog(kind string, elapsed time.Duration, summary string, err error) {
	log := &storage.CycleLog{
		Kind:     kind,
		Duration: elapsed.Milliseconds(),
		Summary:  summary,
	}
	if err != nil {
		log.Error = err.Error()
	}
	if dbErr := s.repo.SaveCycleLog(log); dbErr != nil {
		s.logger.Error("save cycle log", "error", dbErr)
	}
}
