package storage

import (
	"context"
	"time"

	"github.com/ogulcanaydogan/fare-guardian/pkg/model"
)

// Storage defines the persistence layer for alerts, deals and notifications.
type Storage interface {
	// CreateAlert validates and persists a new alert, assigning its ID.
	CreateAlert(ctx context.Context, alert *model.Alert) error

	// GetAlert retrieves an alert by ID.
	GetAlert(ctx context.Context, id string) (*model.Alert, error)

	// ListActiveAlerts returns active, unpaused alerts, least recently checked first.
	ListActiveAlerts(ctx context.Context) ([]model.Alert, error)

	// ListAlertsByOwner returns every alert belonging to owner.
	ListAlertsByOwner(ctx context.Context, ownerID string) ([]model.Alert, error)

	// UpdateLastChecked stamps the alert as checked at the given time.
	UpdateLastChecked(ctx context.Context, id string, at time.Time) error

	// IncrementSendCount adds one to the alert's notification counter.
	IncrementSendCount(ctx context.Context, id string) error

	// DeactivateAlert soft-deletes an alert owned by ownerID.
	DeactivateAlert(ctx context.Context, id, ownerID string) error

	// SetPaused pauses or resumes an alert owned by ownerID.
	SetPaused(ctx context.Context, id, ownerID string, paused bool) error

	// DeleteAlert removes an alert owned by ownerID with its deals and notifications.
	DeleteAlert(ctx context.Context, id, ownerID string) error

	// SaveDeals inserts deals in a single transaction, assigning IDs.
	SaveDeals(ctx context.Context, deals []model.Deal) error

	// ListDeals returns the most recent deals for an alert.
	ListDeals(ctx context.Context, alertID string, limit int) ([]model.Deal, error)

	// SaveNotification persists a notification with its deal links and bumps
	// the alert's send counter, all or nothing.
	SaveNotification(ctx context.Context, n *model.Notification) error

	// LastNotification returns the most recent notification for an alert.
	LastNotification(ctx context.Context, alertID string) (*model.Notification, error)

	// PurgeOlderThan deletes deals and notifications older than the cutoffs.
	PurgeOlderThan(ctx context.Context, dealsCutoff, notificationsCutoff time.Time) (model.PurgeResult, error)

	// Close releases resources.
	Close() error
}
