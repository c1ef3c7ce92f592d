package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ogulcanaydogan/fare-guardian/pkg/model"
)

// SQL implements Storage on top of database/sql for SQLite and Postgres.
type SQL struct {
	db      *sql.DB
	dialect dialect
}

const alertColumns = `id, owner_id, channel, destination_id, origin, destination, max_price, currency,
	passengers, search_month, date_from, date_to, source, active, paused, created_at,
	last_checked_at, notifications_sent`

const dealColumns = `id, alert_id, date, price, price_excluding_tax, fare_class, flight_number,
	departure_time, arrival_time, cheapest_of_window, found_at`

func persistErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, model.ErrPersistence, err)
}

func (s *SQL) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, s.dialect.rebind(query), args...)
}

func (s *SQL) CreateAlert(ctx context.Context, alert *model.Alert) error {
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

	passengers, err := json.Marshal(alert.Passengers)
	if err != nil {
		return fmt.Errorf("encode passengers: %w", err)
	}

	_, err = s.exec(ctx,
		`INSERT INTO alerts (`+alertColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		alert.ID, alert.OwnerID, alert.Channel, alert.DestinationID,
		alert.Origin, alert.Destination, alert.MaxPrice.String(), alert.Currency,
		string(passengers), alert.Window.Month, alert.Window.From, alert.Window.To,
		alert.Source, alert.Active, alert.Paused, alert.CreatedAt,
		nullTime(alert.LastCheckedAt), alert.NotificationsSent,
	)
	if err != nil {
		return persistErr("insert alert", err)
	}
	return nil
}

func (s *SQL) GetAlert(ctx context.Context, id string) (*model.Alert, error) {
	row := s.db.QueryRowContext(ctx, s.dialect.rebind(`SELECT `+alertColumns+` FROM alerts WHERE id = ?`), id)
	alert, err := scanAlert(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("alert %q: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return nil, persistErr("get alert", err)
	}
	return alert, nil
}

func (s *SQL) ListActiveAlerts(ctx context.Context) ([]model.Alert, error) {
	return s.queryAlerts(ctx,
		`SELECT `+alertColumns+` FROM alerts
		 WHERE active = ? AND paused = ?
		 ORDER BY last_checked_at IS NOT NULL, last_checked_at ASC, created_at ASC`,
		true, false,
	)
}

func (s *SQL) ListAlertsByOwner(ctx context.Context, ownerID string) ([]model.Alert, error) {
	return s.queryAlerts(ctx,
		`SELECT `+alertColumns+` FROM alerts WHERE owner_id = ? ORDER BY created_at ASC`,
		ownerID,
	)
}

func (s *SQL) queryAlerts(ctx context.Context, query string, args ...any) ([]model.Alert, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(query), args...)
	if err != nil {
		return nil, persistErr("query alerts", err)
	}
	defer rows.Close()

	var alerts []model.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, persistErr("scan alert row", err)
		}
		alerts = append(alerts, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("iterate alerts", err)
	}
	return alerts, nil
}

func (s *SQL) UpdateLastChecked(ctx context.Context, id string, at time.Time) error {
	return s.updateOne(ctx, "update last checked", id,
		`UPDATE alerts SET last_checked_at = ? WHERE id = ?`, at.UTC(), id)
}

func (s *SQL) IncrementSendCount(ctx context.Context, id string) error {
	return s.updateOne(ctx, "increment send count", id,
		`UPDATE alerts SET notifications_sent = notifications_sent + 1 WHERE id = ?`, id)
}

func (s *SQL) updateOne(ctx context.Context, op, id, query string, args ...any) error {
	result, err := s.exec(ctx, query, args...)
	if err != nil {
		return persistErr(op, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return persistErr("check rows affected", err)
	}
	if rows == 0 {
		return fmt.Errorf("alert %q: %w", id, model.ErrNotFound)
	}
	return nil
}

func (s *SQL) DeactivateAlert(ctx context.Context, id, ownerID string) error {
	return s.updateOwned(ctx, "deactivate alert", id, ownerID,
		`UPDATE alerts SET active = ? WHERE id = ? AND owner_id = ?`, false, id, ownerID)
}

func (s *SQL) SetPaused(ctx context.Context, id, ownerID string, paused bool) error {
	return s.updateOwned(ctx, "set paused", id, ownerID,
		`UPDATE alerts SET paused = ? WHERE id = ? AND owner_id = ?`, paused, id, ownerID)
}

// updateOwned runs an owner-scoped update and explains a zero-row result.
func (s *SQL) updateOwned(ctx context.Context, op, id, ownerID, query string, args ...any) error {
	result, err := s.exec(ctx, query, args...)
	if err != nil {
		return persistErr(op, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return persistErr("check rows affected", err)
	}
	if rows == 0 {
		return s.checkOwner(ctx, s.db, id, ownerID)
	}
	return nil
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// checkOwner returns nil only when the alert exists and belongs to ownerID.
func (s *SQL) checkOwner(ctx context.Context, q queryRower, id, ownerID string) error {
	var owner string
	err := q.QueryRowContext(ctx, s.dialect.rebind(`SELECT owner_id FROM alerts WHERE id = ?`), id).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("alert %q: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return persistErr("check alert owner", err)
	}
	if owner != ownerID {
		return fmt.Errorf("alert %q requested by %q: %w", id, ownerID, model.ErrUnauthorized)
	}
	return nil
}

func (s *SQL) DeleteAlert(ctx context.Context, id, ownerID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return persistErr("begin delete alert", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := s.checkOwner(ctx, tx, id, ownerID); err != nil {
		return err
	}

	stmts := []string{
		`DELETE FROM notification_deals WHERE notification_id IN (SELECT id FROM notifications WHERE alert_id = ?)`,
		`DELETE FROM notifications WHERE alert_id = ?`,
		`DELETE FROM deals WHERE alert_id = ?`,
		`DELETE FROM alerts WHERE id = ?`,
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, s.dialect.rebind(stmt), id); err != nil {
			return persistErr("delete alert", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return persistErr("commit delete alert", err)
	}
	return nil
}

func (s *SQL) SaveDeals(ctx context.Context, deals []model.Deal) error {
	if len(deals) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return persistErr("begin save deals", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, s.dialect.rebind(
		`INSERT INTO deals (`+dealColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`))
	if err != nil {
		return persistErr("prepare deal insert", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for i := range deals {
		d := &deals[i]
		if d.ID == "" {
			d.ID = uuid.New().String()
		}
		if d.FoundAt.IsZero() {
			d.FoundAt = now
		}
		d.FoundAt = d.FoundAt.UTC()
		if _, err := stmt.ExecContext(ctx,
			d.ID, d.AlertID, d.Date, d.Price.String(), d.PriceExcludingTax.String(),
			d.FareClass, d.FlightNumber, d.DepartureTime, d.ArrivalTime,
			d.CheapestOfWindow, d.FoundAt,
		); err != nil {
			return persistErr("insert deal", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return persistErr("commit deals", err)
	}
	return nil
}

func (s *SQL) ListDeals(ctx context.Context, alertID string, limit int) ([]model.Deal, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(
		`SELECT `+dealColumns+` FROM deals WHERE alert_id = ? ORDER BY found_at DESC, date ASC LIMIT ?`),
		alertID, limit,
	)
	if err != nil {
		return nil, persistErr("query deals", err)
	}
	defer rows.Close()

	var deals []model.Deal
	for rows.Next() {
		var d model.Deal
		if err := rows.Scan(&d.ID, &d.AlertID, &d.Date, &d.Price, &d.PriceExcludingTax,
			&d.FareClass, &d.FlightNumber, &d.DepartureTime, &d.ArrivalTime,
			&d.CheapestOfWindow, &d.FoundAt); err != nil {
			return nil, persistErr("scan deal row", err)
		}
		deals = append(deals, d)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("iterate deals", err)
	}
	return deals, nil
}

func (s *SQL) SaveNotification(ctx context.Context, n *model.Notification) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.SentAt.IsZero() {
		n.SentAt = time.Now()
	}
	n.SentAt = n.SentAt.UTC()
	if n.DealCount == 0 {
		n.DealCount = len(n.DealIDs)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return persistErr("begin save notification", err)
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, s.dialect.rebind(
		`UPDATE alerts SET notifications_sent = notifications_sent + 1 WHERE id = ?`), n.AlertID)
	if err != nil {
		return persistErr("increment send count", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return persistErr("check rows affected", err)
	}
	if rows == 0 {
		return fmt.Errorf("alert %q: %w", n.AlertID, model.ErrNotFound)
	}

	_, err = tx.ExecContext(ctx, s.dialect.rebind(
		`INSERT INTO notifications (id, alert_id, channel, destination_id, deal_count, message, content_hash, sent_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		n.ID, n.AlertID, n.Channel, n.DestinationID, n.DealCount, n.Message, n.ContentHash, n.SentAt,
	)
	if err != nil {
		return persistErr("insert notification", err)
	}

	for _, dealID := range n.DealIDs {
		if _, err := tx.ExecContext(ctx, s.dialect.rebind(
			`INSERT INTO notification_deals (notification_id, deal_id) VALUES (?, ?)`),
			n.ID, dealID,
		); err != nil {
			return persistErr("link notification deal", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return persistErr("commit notification", err)
	}
	return nil
}

func (s *SQL) LastNotification(ctx context.Context, alertID string) (*model.Notification, error) {
	var n model.Notification
	err := s.db.QueryRowContext(ctx, s.dialect.rebind(
		`SELECT id, alert_id, channel, destination_id, deal_count, message, content_hash, sent_at
		 FROM notifications WHERE alert_id = ? ORDER BY sent_at DESC LIMIT 1`), alertID,
	).Scan(&n.ID, &n.AlertID, &n.Channel, &n.DestinationID, &n.DealCount, &n.Message, &n.ContentHash, &n.SentAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("notification for alert %q: %w", alertID, model.ErrNotFound)
	}
	if err != nil {
		return nil, persistErr("get last notification", err)
	}

	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(
		`SELECT deal_id FROM notification_deals WHERE notification_id = ? ORDER BY deal_id`), n.ID)
	if err != nil {
		return nil, persistErr("query notification deals", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, persistErr("scan notification deal", err)
		}
		n.DealIDs = append(n.DealIDs, id)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("iterate notification deals", err)
	}
	return &n, nil
}

func (s *SQL) PurgeOlderThan(ctx context.Context, dealsCutoff, notificationsCutoff time.Time) (model.PurgeResult, error) {
	var res model.PurgeResult
	dealsCutoff, notificationsCutoff = dealsCutoff.UTC(), notificationsCutoff.UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return res, persistErr("begin purge", err)
	}
	defer func() { _ = tx.Rollback() }()

	links := []struct {
		query string
		arg   time.Time
	}{
		{`DELETE FROM notification_deals WHERE notification_id IN (SELECT id FROM notifications WHERE sent_at < ?)`, notificationsCutoff},
		{`DELETE FROM notification_deals WHERE deal_id IN (SELECT id FROM deals WHERE found_at < ?)`, dealsCutoff},
	}
	for _, l := range links {
		if _, err := tx.ExecContext(ctx, s.dialect.rebind(l.query), l.arg); err != nil {
			return res, persistErr("purge notification links", err)
		}
	}

	result, err := tx.ExecContext(ctx, s.dialect.rebind(`DELETE FROM notifications WHERE sent_at < ?`), notificationsCutoff)
	if err != nil {
		return res, persistErr("purge notifications", err)
	}
	res.Notifications, _ = result.RowsAffected()

	result, err = tx.ExecContext(ctx, s.dialect.rebind(`DELETE FROM deals WHERE found_at < ?`), dealsCutoff)
	if err != nil {
		return res, persistErr("purge deals", err)
	}
	res.Deals, _ = result.RowsAffected()

	if err := tx.Commit(); err != nil {
		return model.PurgeResult{}, persistErr("commit purge", err)
	}
	return res, nil
}

func (s *SQL) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAlert(row rowScanner) (*model.Alert, error) {
	var (
		a          model.Alert
		passengers string
		lastCheck  sql.NullTime
	)
	if err := row.Scan(&a.ID, &a.OwnerID, &a.Channel, &a.DestinationID, &a.Origin, &a.Destination,
		&a.MaxPrice, &a.Currency, &passengers, &a.Window.Month, &a.Window.From, &a.Window.To,
		&a.Source, &a.Active, &a.Paused, &a.CreatedAt, &lastCheck, &a.NotificationsSent); err != nil {
		return nil, err
	}
	if err := json.NewDecoder(strings.NewReader(passengers)).Decode(&a.Passengers); err != nil {
		return nil, fmt.Errorf("decode passengers: %w", err)
	}
	if lastCheck.Valid {
		t := lastCheck.Time
		a.LastCheckedAt = &t
	}
	return &a, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
