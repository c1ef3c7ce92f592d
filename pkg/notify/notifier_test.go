package notify

import (
	"context"
	"errors"
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
	"github.com/ogulcanaydogan/fare-guardian/pkg/storage"
)

type recordingSender struct {
	mu   sync.Mutex
	sent []alerts.Message
	err  error
}

func (s *recordingSender) Name() string { return "recorder" }

func (s *recordingSender) Send(_ context.Context, msg alerts.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, msg)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func sclPujAlert(t *testing.T, store storage.Storage) *model.Alert {
	t.Helper()
	alert := &model.Alert{
		OwnerID:       "user-1",
		DestinationID: "-100123",
		Origin:        "SCL",
		Destination:   "PUJ",
		MaxPrice:      decimal.NewFromInt(800),
		Currency:      "USD",
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

func savedDeals(t *testing.T, store storage.Storage, alertID string, prices ...int64) []model.Deal {
	t.Helper()
	deals := make([]model.Deal, len(prices))
	for i, p := range prices {
		deals[i] = model.Deal{
			AlertID:      alertID,
			Date:         time.Date(2026, 2, 3+7*i, 0, 0, 0, 0, time.UTC).Format(model.DateLayout),
			Price:        decimal.NewFromInt(p),
			FareClass:    "Y",
			FlightNumber: "H2 101",
		}
	}
	require.NoError(t, store.SaveDeals(context.Background(), deals))
	return deals
}

func newTestNotifier(store storage.Storage, sender alerts.Sender, cooldown time.Duration) *Notifier {
	channels := alerts.NewChannels("")
	channels.Add(sender)
	return NewNotifier(store, channels, cooldown, testLogger())
}

func TestNotify_OneNotificationPerPass(t *testing.T) {
	store := storage.NewMemory()
	sender := &recordingSender{}
	n := newTestNotifier(store, sender, DefaultCooldown)
	ctx := context.Background()

	alert := sclPujAlert(t, store)
	deals := savedDeals(t, store, alert.ID, 650, 799)

	res, err := n.Notify(ctx, alert, deals)
	require.NoError(t, err)
	require.NotNil(t, res.Notification)
	assert.False(t, res.Suppressed)

	require.Len(t, sender.sent, 1)
	assert.Equal(t, "-100123", sender.sent[0].Destination)
	assert.Equal(t, 2, sender.sent[0].DealCount)
	assert.Equal(t, "650.00", sender.sent[0].LowestPrice)

	notifications := store.Notifications()
	require.Len(t, notifications, 1)
	assert.ElementsMatch(t, []string{deals[0].ID, deals[1].ID}, notifications[0].DealIDs)
	assert.Equal(t, 2, notifications[0].DealCount)
	assert.Equal(t, "recorder", notifications[0].Channel)

	got, err := store.GetAlert(ctx, alert.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.NotificationsSent)
}

func TestNotify_DeliveryFailureRecordsNothing(t *testing.T) {
	store := storage.NewMemory()
	sender := &recordingSender{err: errors.New("chat not found")}
	n := newTestNotifier(store, sender, DefaultCooldown)
	ctx := context.Background()

	alert := sclPujAlert(t, store)
	deals := savedDeals(t, store, alert.ID, 650)

	_, err := n.Notify(ctx, alert, deals)
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrDeliveryFailure)
	assert.Empty(t, store.Notifications())

	got, err := store.GetAlert(ctx, alert.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.NotificationsSent)
}

type failingSaveStore struct {
	*storage.Memory
}

func (failingSaveStore) SaveNotification(context.Context, *model.Notification) error {
	return fmt.Errorf("insert notification: %w", model.ErrPersistence)
}

func TestNotify_RecordFailureLeavesCounterAlone(t *testing.T) {
	store := failingSaveStore{storage.NewMemory()}
	sender := &recordingSender{}
	n := newTestNotifier(store, sender, DefaultCooldown)
	ctx := context.Background()

	alert := sclPujAlert(t, store)
	deals := savedDeals(t, store, alert.ID, 650)

	_, err := n.Notify(ctx, alert, deals)
	assert.ErrorIs(t, err, model.ErrPersistence)
	assert.Len(t, sender.sent, 1)

	got, err := store.GetAlert(ctx, alert.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.NotificationsSent)
	assert.Empty(t, store.Notifications())
}

func TestNotify_UnknownChannel(t *testing.T) {
	store := storage.NewMemory()
	n := newTestNotifier(store, &recordingSender{}, 0)

	alert := sclPujAlert(t, store)
	alert.Channel = "telegram"
	deals := savedDeals(t, store, alert.ID, 650)

	_, err := n.Notify(context.Background(), alert, deals)
	assert.ErrorIs(t, err, model.ErrDeliveryFailure)
}

func TestNotify_NoDeals(t *testing.T) {
	store := storage.NewMemory()
	sender := &recordingSender{}
	n := newTestNotifier(store, sender, DefaultCooldown)

	res, err := n.Notify(context.Background(), sclPujAlert(t, store), nil)
	require.NoError(t, err)
	assert.Nil(t, res.Notification)
	assert.Empty(t, sender.sent)
}

func TestNotify_SuppressesUnchangedDealsWithinCooldown(t *testing.T) {
	store := storage.NewMemory()
	sender := &recordingSender{}
	n := newTestNotifier(store, sender, time.Hour)
	clock := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	n.now = func() time.Time { return clock }
	ctx := context.Background()

	alert := sclPujAlert(t, store)

	_, err := n.Notify(ctx, alert, savedDeals(t, store, alert.ID, 650, 799))
	require.NoError(t, err)

	// Same fares on the next pass, new deal rows.
	clock = clock.Add(30 * time.Minute)
	res, err := n.Notify(ctx, alert, savedDeals(t, store, alert.ID, 799, 650))
	require.NoError(t, err)
	assert.True(t, res.Suppressed)
	assert.Len(t, sender.sent, 1)

	// A price change goes out immediately.
	res, err = n.Notify(ctx, alert, savedDeals(t, store, alert.ID, 640, 799))
	require.NoError(t, err)
	assert.False(t, res.Suppressed)
	assert.Len(t, sender.sent, 2)

	// The same set again after the cooldown goes out too.
	clock = clock.Add(2 * time.Hour)
	res, err = n.Notify(ctx, alert, savedDeals(t, store, alert.ID, 640, 799))
	require.NoError(t, err)
	assert.False(t, res.Suppressed)
	assert.Len(t, sender.sent, 3)

	got, err := store.GetAlert(ctx, alert.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.NotificationsSent)
}

func TestNotify_ZeroCooldownAlwaysSends(t *testing.T) {
	store := storage.NewMemory()
	sender := &recordingSender{}
	n := newTestNotifier(store, sender, 0)
	ctx := context.Background()

	alert := sclPujAlert(t, store)
	for i := 0; i < 3; i++ {
		res, err := n.Notify(ctx, alert, savedDeals(t, store, alert.ID, 650))
		require.NoError(t, err)
		assert.False(t, res.Suppressed)
	}
	assert.Len(t, sender.sent, 3)
}
