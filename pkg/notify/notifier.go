// Package notify renders deal messages, delivers them and records what was
// sent.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ogulcanaydogan/fare-guardian/pkg/alerts"
	"github.com/ogulcanaydogan/fare-guardian/pkg/model"
	"github.com/ogulcanaydogan/fare-guardian/pkg/storage"
)

// DefaultCooldown is how long an unchanged deal set stays suppressed.
const DefaultCooldown = 24 * time.Hour

// Result describes the outcome of one Notify call.
type Result struct {
	Notification *model.Notification
	Suppressed   bool
}

// Notifier sends one message per alert per pass and records it.
type Notifier struct {
	storage  storage.Storage
	channels *alerts.Channels
	cooldown time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// NewNotifier creates a notifier. A zero cooldown disables deduplication.
func NewNotifier(store storage.Storage, channels *alerts.Channels, cooldown time.Duration, logger *slog.Logger) *Notifier {
	return &Notifier{
		storage:  store,
		channels: channels,
		cooldown: cooldown,
		logger:   logger,
		now:      time.Now,
	}
}

// Notify delivers deals for alert through the alert's channel. The deals
// must already be persisted. Nothing is recorded when delivery fails.
func (n *Notifier) Notify(ctx context.Context, alert *model.Alert, deals []model.Deal) (*Result, error) {
	if len(deals) == 0 {
		return &Result{}, nil
	}

	hash := ContentHash(deals)
	suppress, err := n.recentlySent(ctx, alert.ID, hash)
	if err != nil {
		return nil, err
	}
	if suppress {
		n.logger.Info("suppressing unchanged deals",
			"alert_id", alert.ID,
			"deals", len(deals),
			"cooldown", n.cooldown,
		)
		return &Result{Suppressed: true}, nil
	}

	sender, err := n.channels.Get(alert.Channel)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrDeliveryFailure, err)
	}

	msg := Render(alert, deals)
	if err := sender.Send(ctx, msg); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", model.ErrDeliveryFailure, sender.Name(), err)
	}

	record := &model.Notification{
		AlertID:       alert.ID,
		Channel:       sender.Name(),
		DestinationID: alert.DestinationID,
		DealIDs:       dealIDs(deals),
		DealCount:     len(deals),
		Message:       msg.Subject + "\n\n" + msg.Text,
		ContentHash:   hash,
		SentAt:        n.now(),
	}
	if err := n.storage.SaveNotification(ctx, record); err != nil {
		return nil, fmt.Errorf("record notification: %w", err)
	}

	n.logger.Info("notification sent",
		"alert_id", alert.ID,
		"channel", sender.Name(),
		"deals", len(deals),
	)
	return &Result{Notification: record}, nil
}

func (n *Notifier) recentlySent(ctx context.Context, alertID, hash string) (bool, error) {
	if n.cooldown <= 0 {
		return false, nil
	}
	last, err := n.storage.LastNotification(ctx, alertID)
	if errors.Is(err, model.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load last notification: %w", err)
	}
	return last.ContentHash == hash && n.now().Sub(last.SentAt) < n.cooldown, nil
}

func dealIDs(deals []model.Deal) []string {
	ids := make([]string, len(deals))
	for i, d := range deals {
		ids[i] = d.ID
	}
	return ids
}
