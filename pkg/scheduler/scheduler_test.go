package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ogulcanaydogan/fare-guardian/pkg/alerts"
	"github.com/ogulcanaydogan/fare-guardian/pkg/model"
	"github.com/ogulcanaydogan/fare-guardian/pkg/notify"
	"github.com/ogulcanaydogan/fare-guardian/pkg/pricesource"
	"github.com/ogulcanaydogan/fare-guardian/pkg/storage"
)

type stubSource struct {
	mu     sync.Mutex
	calls  int
	prices map[string][]int64
	fail   map[string]bool
	onCall func(n int)
}

func (s *stubSource) Name() string { return "stub" }

func (s *stubSource) Get(string) (pricesource.Source, error) { return s, nil }

func (s *stubSource) SearchDeals(_ context.Context, q pricesource.Query) (*pricesource.SearchResult, error) {
	s.mu.Lock()
	s.calls++
	n := s.calls
	hook := s.onCall
	s.mu.Unlock()
	if hook != nil {
		hook(n)
	}

	if s.fail[q.Origin] {
		return nil, fmt.Errorf("GET fares after 3 attempts: %w", model.ErrSourceUnavailable)
	}
	var prices []model.FlightPrice
	for i, p := range s.prices[q.Origin] {
		prices = append(prices, model.FlightPrice{
			Date:         fmt.Sprintf("2026-02-%02d", 3+i),
			PriceTotal:   decimal.NewFromInt(p),
			FareClass:    "Y",
			FlightNumber: fmt.Sprintf("H2 %d", 101+i),
		})
	}
	return &pricesource.SearchResult{Prices: prices}, nil
}

func (s *stubSource) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type countingSender struct {
	mu   sync.Mutex
	sent int
}

func (c *countingSender) Name() string { return "counter" }

func (c *countingSender) Send(context.Context, alerts.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent++
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestScheduler(t *testing.T, src Sources, opts Options) (*Scheduler, *storage.Memory, *countingSender) {
	t.Helper()
	store := storage.NewMemory()
	sender := &countingSender{}
	channels := alerts.NewChannels("")
	channels.Add(sender)

	notifier := notify.NewNotifier(store, channels, notify.DefaultCooldown, testLogger())
	s := New(store, src, notifier, opts, testLogger())
	s.wait = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }
	return s, store, sender
}

func createAlert(t *testing.T, store storage.Storage, origin, destination string, maxPrice int64) *model.Alert {
	t.Helper()
	alert := &model.Alert{
		OwnerID:       "user-1",
		DestinationID: "42",
		Origin:        origin,
		Destination:   destination,
		MaxPrice:      decimal.NewFromInt(maxPrice),
		Passengers: []model.Passenger{
			{FareClass: model.FareAdult, Count: 2},
			{FareClass: model.FareChild, Count: 1},
			{FareClass: model.FareInfant, Count: 1},
		},
		Window: model.SearchWindow{Month: "2026-02"},
	}
	require.NoError(t, store.CreateAlert(context.Background(), alert))
	return alert
}

func TestRunPass_SclPujScenario(t *testing.T) {
	src := &stubSource{prices: map[string][]int64{"SCL": {650, 820, 799}}}
	s, store, sender := newTestScheduler(t, src, DefaultOptions())
	ctx := context.Background()

	alert := createAlert(t, store, "SCL", "PUJ", 800)

	stats := s.RunPass(ctx)
	assert.Equal(t, 1, stats.Checked)
	assert.Equal(t, 1, stats.Matched)
	assert.Equal(t, 2, stats.Deals)
	assert.Equal(t, 1, stats.Notified)
	assert.Zero(t, stats.Errors)

	deals, err := store.ListDeals(ctx, alert.ID, 10)
	require.NoError(t, err)
	require.Len(t, deals, 2)
	var prices []string
	for _, d := range deals {
		prices = append(prices, d.Price.String())
	}
	assert.ElementsMatch(t, []string{"650", "799"}, prices)

	notifications := store.Notifications()
	require.Len(t, notifications, 1)
	assert.Len(t, notifications[0].DealIDs, 2)
	assert.Equal(t, 1, sender.sent)

	got, err := store.GetAlert(ctx, alert.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.NotificationsSent)
	assert.NotNil(t, got.LastCheckedAt)
}

func TestRunPass_RepeatedDealsAreSuppressed(t *testing.T) {
	src := &stubSource{prices: map[string][]int64{"SCL": {650}}}
	s, store, sender := newTestScheduler(t, src, DefaultOptions())
	createAlert(t, store, "SCL", "PUJ", 800)

	s.RunPass(context.Background())
	stats := s.RunPass(context.Background())

	assert.Equal(t, 1, stats.Suppressed)
	assert.Zero(t, stats.Notified)
	assert.Equal(t, 1, sender.sent)
}

func TestRunPass_FailureIsolation(t *testing.T) {
	src := &stubSource{
		prices: map[string][]int64{"SCL": {500}, "LIM": {300}},
		fail:   map[string]bool{"EZE": true},
	}
	s, store, sender := newTestScheduler(t, src, DefaultOptions())
	ctx := context.Background()

	first := createAlert(t, store, "SCL", "PUJ", 800)
	failing := createAlert(t, store, "EZE", "MIA", 800)
	last := createAlert(t, store, "LIM", "CUN", 800)

	stats := s.RunPass(ctx)
	assert.Equal(t, 3, stats.Checked)
	assert.Equal(t, 1, stats.Errors)
	assert.Equal(t, 2, stats.Notified)
	assert.Equal(t, 2, sender.sent)

	for _, id := range []string{first.ID, failing.ID, last.ID} {
		got, err := store.GetAlert(ctx, id)
		require.NoError(t, err)
		assert.NotNil(t, got.LastCheckedAt, "alert %s should be stamped", id)
	}

	got, err := store.GetAlert(ctx, last.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.NotificationsSent)
}

func TestRunPass_NoMatches(t *testing.T) {
	src := &stubSource{prices: map[string][]int64{"SCL": {900, 1200}}}
	s, store, sender := newTestScheduler(t, src, DefaultOptions())
	alert := createAlert(t, store, "SCL", "PUJ", 800)

	stats := s.RunPass(context.Background())
	assert.Zero(t, stats.Matched)
	assert.Zero(t, sender.sent)

	got, err := store.GetAlert(context.Background(), alert.ID)
	require.NoError(t, err)
	assert.NotNil(t, got.LastCheckedAt)
}

func TestRunPass_PlaceholderResultsAreNotNotified(t *testing.T) {
	placeholder := pricesource.NewHTTPSource(pricesource.SourceConfig{Name: "unwired"}, nil, testLogger())
	registry := pricesource.NewRegistry()
	require.NoError(t, registry.Register(placeholder))

	s, store, sender := newTestScheduler(t, registry, DefaultOptions())
	alert := createAlert(t, store, "SCL", "PUJ", 100000)

	stats := s.RunPass(context.Background())
	assert.Equal(t, 1, stats.Placeholder)
	assert.Zero(t, stats.Matched)
	assert.Zero(t, sender.sent)

	deals, err := store.ListDeals(context.Background(), alert.ID, 10)
	require.NoError(t, err)
	assert.Empty(t, deals)
}

func TestRunPass_DryRun(t *testing.T) {
	src := &stubSource{prices: map[string][]int64{"SCL": {650}}}
	opts := DefaultOptions()
	opts.DryRun = true
	s, store, sender := newTestScheduler(t, src, opts)
	alert := createAlert(t, store, "SCL", "PUJ", 800)

	stats := s.RunPass(context.Background())
	assert.Equal(t, 1, stats.Deals)
	assert.Zero(t, sender.sent)

	got, err := store.GetAlert(context.Background(), alert.ID)
	require.NoError(t, err)
	assert.Nil(t, got.LastCheckedAt)
	deals, err := store.ListDeals(context.Background(), alert.ID, 10)
	require.NoError(t, err)
	assert.Empty(t, deals)
}

func TestStop_LetsInFlightPassFinish(t *testing.T) {
	reached := make(chan struct{})
	release := make(chan struct{})
	src := &stubSource{prices: map[string][]int64{}}
	src.onCall = func(n int) {
		if n == 3 {
			close(reached)
			<-release
		}
	}

	s, store, _ := newTestScheduler(t, src, DefaultOptions())
	origins := []string{"SCL", "EZE", "LIM", "BOG", "GRU"}
	for _, o := range origins {
		createAlert(t, store, o, "PUJ", 800)
	}

	s.Start(context.Background(), time.Hour)
	<-reached

	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while a pass was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return after the pass finished")
	}

	assert.False(t, s.Running())
	assert.Equal(t, 5, src.callCount())

	active, err := store.ListActiveAlerts(context.Background())
	require.NoError(t, err)
	for _, a := range active {
		assert.NotNil(t, a.LastCheckedAt, "alert %s should have been checked", a.Route())
	}
	assert.Equal(t, 1, s.Status().Passes)
}

func TestStartTwiceAndStopTwice(t *testing.T) {
	src := &stubSource{}
	s, _, _ := newTestScheduler(t, src, DefaultOptions())

	s.Stop()
	assert.False(t, s.Running())

	s.Start(context.Background(), time.Hour)
	s.Start(context.Background(), time.Hour)
	assert.True(t, s.Running())
	assert.True(t, s.Status().Running)

	s.Stop()
	s.Stop()
	assert.False(t, s.Running())
	assert.False(t, s.Status().Running)
}

func TestStart_RunsPassPerTick(t *testing.T) {
	src := &stubSource{}
	s, store, _ := newTestScheduler(t, src, DefaultOptions())
	createAlert(t, store, "SCL", "PUJ", 800)

	s.Start(context.Background(), 10*time.Millisecond)
	require.Eventually(t, func() bool { return src.callCount() >= 3 }, 2*time.Second, 5*time.Millisecond)
	s.Stop()

	calls := src.callCount()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, calls, src.callCount(), "no passes after Stop")
}

func TestStart_ContextCancelStopsLoop(t *testing.T) {
	src := &stubSource{}
	s, _, _ := newTestScheduler(t, src, DefaultOptions())

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx, time.Hour)
	cancel()

	require.Eventually(t, func() bool { return !s.Running() }, 2*time.Second, 5*time.Millisecond)
	s.Stop()
}

func TestStart_NonPositiveIntervalIsRejected(t *testing.T) {
	src := &stubSource{}
	s, store, _ := newTestScheduler(t, src, DefaultOptions())
	createAlert(t, store, "SCL", "PUJ", 800)

	for _, interval := range []time.Duration{0, -time.Minute} {
		s.Start(context.Background(), interval)
		assert.False(t, s.Running())
		assert.False(t, s.Status().Running)
	}
	s.Stop()

	assert.Zero(t, src.callCount())
	assert.Zero(t, s.Status().Passes)
}

func TestRunPass_WaitsBetweenAlerts(t *testing.T) {
	src := &stubSource{}
	s, store, _ := newTestScheduler(t, src, DefaultOptions())
	createAlert(t, store, "SCL", "PUJ", 800)
	createAlert(t, store, "LIM", "CUN", 800)
	createAlert(t, store, "EZE", "MIA", 800)

	var waits []time.Duration
	s.wait = func(ctx context.Context, d time.Duration) error {
		waits = append(waits, d)
		return ctx.Err()
	}

	stats := s.RunPass(context.Background())
	assert.Equal(t, 3, stats.Checked)
	assert.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second}, waits)
}

func TestRunPass_CanceledDuringDelayEndsPass(t *testing.T) {
	src := &stubSource{}
	s, store, _ := newTestScheduler(t, src, DefaultOptions())
	createAlert(t, store, "SCL", "PUJ", 800)
	createAlert(t, store, "LIM", "CUN", 800)
	createAlert(t, store, "EZE", "MIA", 800)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.wait = func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	}

	stats := s.RunPass(ctx)
	assert.Equal(t, 1, stats.Checked)
	assert.Equal(t, 1, src.callCount())

	active, err := store.ListActiveAlerts(context.Background())
	require.NoError(t, err)
	var checked int
	for _, a := range active {
		if a.LastCheckedAt != nil {
			checked++
		}
	}
	assert.Equal(t, 1, checked)
}

func TestWait_HonorsDurationAndCancel(t *testing.T) {
	start := time.Now()
	require.NoError(t, wait(context.Background(), 20*time.Millisecond))
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, wait(ctx, time.Hour), context.Canceled)
}

func TestMaybePurge_DailyGate(t *testing.T) {
	s, store, _ := newTestScheduler(t, &stubSource{}, DefaultOptions())
	ctx := context.Background()
	alert := createAlert(t, store, "SCL", "PUJ", 800)

	clock := time.Date(2026, 3, 10, 2, 30, 0, 0, time.Local)
	s.now = func() time.Time { return clock }

	old := []model.Deal{{
		AlertID: alert.ID,
		Date:    "2026-02-03",
		Price:   decimal.NewFromInt(650),
		FoundAt: clock.AddDate(0, 0, -40),
	}}
	require.NoError(t, store.SaveDeals(ctx, old))

	s.RunPass(ctx)
	assert.Nil(t, s.Status().LastPurge, "no purge before the purge hour")

	clock = time.Date(2026, 3, 10, 3, 5, 0, 0, time.Local)
	s.RunPass(ctx)
	require.NotNil(t, s.Status().LastPurge)
	firstPurge := *s.Status().LastPurge
	assert.True(t, firstPurge.Equal(clock))

	deals, err := store.ListDeals(ctx, alert.ID, 10)
	require.NoError(t, err)
	assert.Empty(t, deals)

	clock = time.Date(2026, 3, 10, 18, 0, 0, 0, time.Local)
	s.RunPass(ctx)
	assert.True(t, s.Status().LastPurge.Equal(firstPurge), "only one purge per day")

	clock = time.Date(2026, 3, 11, 3, 0, 0, 0, time.Local)
	s.RunPass(ctx)
	assert.True(t, s.Status().LastPurge.Equal(clock))
}

func TestClassify(t *testing.T) {
	assert.Equal(t, "source_unavailable", classify(fmt.Errorf("x: %w", model.ErrSourceUnavailable)))
	assert.Equal(t, "delivery_failure", classify(fmt.Errorf("x: %w", model.ErrDeliveryFailure)))
	assert.Equal(t, "persistence", classify(fmt.Errorf("x: %w", model.ErrPersistence)))
	assert.Equal(t, "unknown", classify(fmt.Errorf("boom")))
}
