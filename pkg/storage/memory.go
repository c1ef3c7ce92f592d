package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ogulcanaydogan/fare-guardian/pkg/model"
)

// Memory is an in-process Storage used by tests and dry runs.
type Memory struct {
	mu            sync.Mutex
	alerts        map[string]*model.Alert
	deals         []model.Deal
	notifications []model.Notification
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{alerts: make(map[string]*model.Alert)}
}

func cloneAlert(a *model.Alert) model.Alert {
	c := *a
	c.Passengers = append([]model.Passenger(nil), a.Passengers...)
	if a.LastCheckedAt != nil {
		t := *a.LastCheckedAt
		c.LastCheckedAt = &t
	}
	return c
}

func (m *Memory) CreateAlert(_ context.Context, alert *model.Alert) error {
	alert.Normalize()
	if err := alert.Validate(); err != nil {
		return err
	}
	if alert.ID == "" {
		alert.ID = uuid.New().String()
	}
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = time.Now().UTC()
	}
	alert.Active = true

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.alerts[alert.ID]; exists {
		return fmt.Errorf("insert alert: %w: duplicate id %q", model.ErrPersistence, alert.ID)
	}
	c := cloneAlert(alert)
	m.alerts[alert.ID] = &c
	return nil
}

func (m *Memory) GetAlert(_ context.Context, id string) (*model.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.alerts[id]
	if !ok {
		return nil, fmt.Errorf("alert %q: %w", id, model.ErrNotFound)
	}
	c := cloneAlert(a)
	return &c, nil
}

func (m *Memory) ListActiveAlerts(_ context.Context) ([]model.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []model.Alert
	for _, a := range m.alerts {
		if a.Active && !a.Paused {
			out = append(out, cloneAlert(a))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].LastCheckedAt, out[j].LastCheckedAt
		switch {
		case a == nil && b != nil:
			return true
		case a != nil && b == nil:
			return false
		case a != nil && b != nil && !a.Equal(*b):
			return a.Before(*b)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (m *Memory) ListAlertsByOwner(_ context.Context, ownerID string) ([]model.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []model.Alert
	for _, a := range m.alerts {
		if a.OwnerID == ownerID {
			out = append(out, cloneAlert(a))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) UpdateLastChecked(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.alerts[id]
	if !ok {
		return fmt.Errorf("alert %q: %w", id, model.ErrNotFound)
	}
	t := at.UTC()
	a.LastCheckedAt = &t
	return nil
}

func (m *Memory) IncrementSendCount(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.alerts[id]
	if !ok {
		return fmt.Errorf("alert %q: %w", id, model.ErrNotFound)
	}
	a.NotificationsSent++
	return nil
}

// owned must be called with mu held.
func (m *Memory) owned(id, ownerID string) (*model.Alert, error) {
	a, ok := m.alerts[id]
	if !ok {
		return nil, fmt.Errorf("alert %q: %w", id, model.ErrNotFound)
	}
	if a.OwnerID != ownerID {
		return nil, fmt.Errorf("alert %q requested by %q: %w", id, ownerID, model.ErrUnauthorized)
	}
	return a, nil
}

func (m *Memory) DeactivateAlert(_ context.Context, id, ownerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, err := m.owned(id, ownerID)
	if err != nil {
		return err
	}
	a.Active = false
	return nil
}

func (m *Memory) SetPaused(_ context.Context, id, ownerID string, paused bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, err := m.owned(id, ownerID)
	if err != nil {
		return err
	}
	a.Paused = paused
	return nil
}

func (m *Memory) DeleteAlert(_ context.Context, id, ownerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.owned(id, ownerID); err != nil {
		return err
	}
	delete(m.alerts, id)

	deals := m.deals[:0]
	for _, d := range m.deals {
		if d.AlertID != id {
			deals = append(deals, d)
		}
	}
	m.deals = deals

	notifications := m.notifications[:0]
	for _, n := range m.notifications {
		if n.AlertID != id {
			notifications = append(notifications, n)
		}
	}
	m.notifications = notifications
	return nil
}

func (m *Memory) SaveDeals(_ context.Context, deals []model.Deal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	for i := range deals {
		if deals[i].ID == "" {
			deals[i].ID = uuid.New().String()
		}
		if deals[i].FoundAt.IsZero() {
			deals[i].FoundAt = now
		}
	}
	m.deals = append(m.deals, deals...)
	return nil
}

func (m *Memory) ListDeals(_ context.Context, alertID string, limit int) ([]model.Deal, error) {
	if limit <= 0 {
		limit = 50
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []model.Deal
	for i := len(m.deals) - 1; i >= 0 && len(out) < limit; i-- {
		if m.deals[i].AlertID == alertID {
			out = append(out, m.deals[i])
		}
	}
	return out, nil
}

func (m *Memory) SaveNotification(_ context.Context, n *model.Notification) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.SentAt.IsZero() {
		n.SentAt = time.Now().UTC()
	}
	if n.DealCount == 0 {
		n.DealCount = len(n.DealIDs)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.alerts[n.AlertID]
	if !ok {
		return fmt.Errorf("alert %q: %w", n.AlertID, model.ErrNotFound)
	}
	c := *n
	c.DealIDs = append([]string(nil), n.DealIDs...)
	m.notifications = append(m.notifications, c)
	a.NotificationsSent++
	return nil
}

func (m *Memory) LastNotification(_ context.Context, alertID string) (*model.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var last *model.Notification
	for i := range m.notifications {
		n := &m.notifications[i]
		if n.AlertID == alertID && (last == nil || !n.SentAt.Before(last.SentAt)) {
			last = n
		}
	}
	if last == nil {
		return nil, fmt.Errorf("notification for alert %q: %w", alertID, model.ErrNotFound)
	}
	c := *last
	c.DealIDs = append([]string(nil), last.DealIDs...)
	return &c, nil
}

// Notifications returns a copy of every stored notification.
func (m *Memory) Notifications() []model.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.Notification(nil), m.notifications...)
}

func (m *Memory) PurgeOlderThan(_ context.Context, dealsCutoff, notificationsCutoff time.Time) (model.PurgeResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var res model.PurgeResult
	deals := m.deals[:0]
	for _, d := range m.deals {
		if d.FoundAt.Before(dealsCutoff) {
			res.Deals++
			continue
		}
		deals = append(deals, d)
	}
	m.deals = deals

	notifications := m.notifications[:0]
	for _, n := range m.notifications {
		if n.SentAt.Before(notificationsCutoff) {
			res.Notifications++
			continue
		}
		notifications = append(notifications, n)
	}
	m.notifications = notifications
	return res, nil
}

func (m *Memory) Close() error { return nil }
