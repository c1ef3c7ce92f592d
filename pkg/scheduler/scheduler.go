// Package scheduler drives periodic passes over active alerts.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ogulcanaydogan/fare-guardian/pkg/matcher"
	"github.com/ogulcanaydogan/fare-guardian/pkg/model"
	"github.com/ogulcanaydogan/fare-guardian/pkg/notify"
	"github.com/ogulcanaydogan/fare-guardian/pkg/pricesource"
	"github.com/ogulcanaydogan/fare-guardian/pkg/storage"
)

// Sources resolves the price source for an alert; an empty name means the
// default source. Satisfied by *pricesource.Registry.
type Sources interface {
	Get(name string) (pricesource.Source, error)
}

// Options tunes a scheduler.
type Options struct {
	InterAlertDelay       time.Duration
	PurgeHour             int
	DealRetention         time.Duration
	NotificationRetention time.Duration

	// DryRun searches and matches without persisting or notifying.
	DryRun bool
}

// DefaultOptions returns the stock scheduler settings.
func DefaultOptions() Options {
	return Options{
		InterAlertDelay:       2 * time.Second,
		PurgeHour:             3,
		DealRetention:         30 * 24 * time.Hour,
		NotificationRetention: 90 * 24 * time.Hour,
	}
}

// PassStats summarizes one pass.
type PassStats struct {
	Checked     int           `json:"checked"`
	Matched     int           `json:"matched"`
	Deals       int           `json:"deals"`
	Notified    int           `json:"notified"`
	Suppressed  int           `json:"suppressed"`
	Placeholder int           `json:"placeholder"`
	Errors      int           `json:"errors"`
	Duration    time.Duration `json:"duration"`
}

// Status is a point-in-time view of the scheduler.
type Status struct {
	Running          bool       `json:"running"`
	Interval         string     `json:"interval,omitempty"`
	Passes           int        `json:"passes"`
	LastPassStarted  *time.Time `json:"last_pass_started,omitempty"`
	LastPassFinished *time.Time `json:"last_pass_finished,omitempty"`
	LastPass         PassStats  `json:"last_pass"`
	LastPurge        *time.Time `json:"last_purge,omitempty"`
}

// Scheduler runs one sequential pass over all active alerts per interval.
type Scheduler struct {
	storage  storage.Storage
	sources  Sources
	notifier *notify.Notifier
	logger   *slog.Logger
	opts     Options
	now      func() time.Time
	wait     func(ctx context.Context, d time.Duration) error

	mu           sync.Mutex
	running      bool
	stopCh       chan struct{}
	wg           sync.WaitGroup
	status       Status
	lastPurgeDay string

	// passMu keeps passes from overlapping when RunPass is also called directly.
	passMu sync.Mutex
}

// New creates a stopped scheduler.
func New(store storage.Storage, sources Sources, notifier *notify.Notifier, opts Options, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		storage:  store,
		sources:  sources,
		notifier: notifier,
		logger:   logger,
		opts:     opts,
		now:      time.Now,
		wait:     wait,
	}
}

// Start runs one pass immediately and then one per interval until Stop is
// called or ctx is canceled. Starting a running scheduler, or starting with a
// non-positive interval, only logs.
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		s.logger.Error("scheduler not started: interval must be positive", "interval", interval)
		return
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.logger.Warn("scheduler already running")
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.status.Running = true
	s.status.Interval = interval.String()
	stop := s.stopCh
	s.wg.Add(1)
	s.mu.Unlock()

	s.logger.Info("scheduler started", "interval", interval)
	go s.loop(ctx, interval, stop)
}

// Stop prevents further passes and waits for an in-flight pass to finish.
// Stopping a stopped scheduler is a no-op.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.status.Running = false
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

// Running reports whether the loop is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Status returns a snapshot of the scheduler state.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Scheduler) loop(ctx context.Context, interval time.Duration, stop <-chan struct{}) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		if s.stopCh == stop {
			s.running = false
			s.status.Running = false
		}
		s.mu.Unlock()
	}()

	s.RunPass(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			// A tick and a stop can both be ready; stop wins.
			select {
			case <-stop:
				return
			default:
			}
			s.RunPass(ctx)
		}
	}
}

// RunPass checks every active alert once, in fairness order. A failing
// alert is logged and counted; it never ends the pass.
func (s *Scheduler) RunPass(ctx context.Context) PassStats {
	s.passMu.Lock()
	defer s.passMu.Unlock()

	started := s.now()
	s.mu.Lock()
	s.status.LastPassStarted = &started
	s.mu.Unlock()

	var stats PassStats
	alerts, err := s.storage.ListActiveAlerts(ctx)
	if err != nil {
		s.logger.Error("list active alerts", "error", err)
		stats.Errors++
	}

	for i := range alerts {
		if i > 0 && s.opts.InterAlertDelay > 0 {
			if err := s.wait(ctx, s.opts.InterAlertDelay); err != nil {
				s.logger.Warn("pass interrupted", "remaining", len(alerts)-i, "error", err)
				break
			}
		}
		s.checkAlert(ctx, &alerts[i], &stats)
	}

	if !s.opts.DryRun {
		s.maybePurge(ctx)
	}

	finished := s.now()
	stats.Duration = finished.Sub(started)

	s.mu.Lock()
	s.status.Passes++
	s.status.LastPassFinished = &finished
	s.status.LastPass = stats
	s.mu.Unlock()

	s.logger.Info("pass complete",
		"checked", stats.Checked,
		"matched", stats.Matched,
		"notified", stats.Notified,
		"suppressed", stats.Suppressed,
		"placeholder", stats.Placeholder,
		"errors", stats.Errors,
		"elapsed", stats.Duration,
	)
	return stats
}

func (s *Scheduler) checkAlert(ctx context.Context, alert *model.Alert, stats *PassStats) {
	stats.Checked++
	log := s.logger.With("alert_id", alert.ID, "route", alert.Route())

	if err := s.processAlert(ctx, alert, stats); err != nil {
		stats.Errors++
		log.Error("alert check failed", "kind", classify(err), "error", err)
	}

	if s.opts.DryRun {
		return
	}
	if err := s.storage.UpdateLastChecked(ctx, alert.ID, s.now()); err != nil {
		stats.Errors++
		log.Error("update last checked", "error", err)
	}
}

func (s *Scheduler) processAlert(ctx context.Context, alert *model.Alert, stats *PassStats) error {
	source, err := s.sources.Get(alert.Source)
	if err != nil {
		return fmt.Errorf("resolve source: %w", err)
	}

	result, err := source.SearchDeals(ctx, pricesource.QueryForAlert(alert))
	if err != nil {
		return fmt.Errorf("search %s: %w", source.Name(), err)
	}
	if result.Placeholder {
		stats.Placeholder++
		s.logger.Debug("placeholder results ignored", "alert_id", alert.ID, "source", source.Name())
		return nil
	}

	matched := matcher.Match(alert, result.Prices)
	if len(matched) == 0 {
		return nil
	}
	stats.Matched++
	stats.Deals += len(matched)

	deals := matcher.ToDeals(alert.ID, matched, s.now())
	if s.opts.DryRun {
		s.logger.Info("dry run match", "alert_id", alert.ID, "deals", len(deals), "max_price", alert.MaxPrice.String())
		return nil
	}

	if err := s.storage.SaveDeals(ctx, deals); err != nil {
		return fmt.Errorf("save deals: %w", err)
	}

	res, err := s.notifier.Notify(ctx, alert, deals)
	if err != nil {
		return err
	}
	switch {
	case res.Suppressed:
		stats.Suppressed++
	case res.Notification != nil:
		stats.Notified++
	}
	return nil
}

// maybePurge runs the retention purge on the first pass at or after the
// purge hour each local day.
func (s *Scheduler) maybePurge(ctx context.Context) {
	now := s.now()
	if now.Hour() < s.opts.PurgeHour {
		return
	}
	day := now.Format(model.DateLayout)

	s.mu.Lock()
	done := s.lastPurgeDay == day
	s.mu.Unlock()
	if done {
		return
	}

	if _, err := s.Purge(ctx); err != nil {
		s.logger.Error("retention purge failed", "error", err)
		return
	}

	s.mu.Lock()
	s.lastPurgeDay = day
	s.mu.Unlock()
}

// Purge deletes deals and notifications past their retention.
func (s *Scheduler) Purge(ctx context.Context) (model.PurgeResult, error) {
	now := s.now()
	res, err := s.storage.PurgeOlderThan(ctx, now.Add(-s.opts.DealRetention), now.Add(-s.opts.NotificationRetention))
	if err != nil {
		return res, fmt.Errorf("purge: %w", err)
	}

	s.mu.Lock()
	s.status.LastPurge = &now
	s.mu.Unlock()

	s.logger.Info("retention purge complete", "deals", res.Deals, "notifications", res.Notifications)
	return res, nil
}

func classify(err error) string {
	switch {
	case errors.Is(err, model.ErrSourceUnavailable):
		return "source_unavailable"
	case errors.Is(err, model.ErrDeliveryFailure):
		return "delivery_failure"
	case errors.Is(err, model.ErrPersistence):
		return "persistence"
	case errors.Is(err, model.ErrMalformedResponse):
		return "malformed_response"
	default:
		return "unknown"
	}
}

func wait(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
