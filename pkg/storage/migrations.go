package storage

import (
	"database/sql"
	"fmt"
	"strings"
)

// Migrations use {{timestamp}} for the dialect's time column type.
var migrations = []string{
	// Migration 1: Initial schema
	`CREATE TABLE IF NOT EXISTS alerts (
		id                 TEXT PRIMARY KEY,
		owner_id           TEXT NOT NULL,
		channel            TEXT NOT NULL DEFAULT '',
		destination_id     TEXT NOT NULL,
		origin             TEXT NOT NULL,
		destination        TEXT NOT NULL,
		max_price          TEXT NOT NULL,
		currency           TEXT NOT NULL DEFAULT 'USD',
		passengers         TEXT NOT NULL DEFAULT '[]',
		search_month       TEXT NOT NULL DEFAULT '',
		date_from          TEXT NOT NULL DEFAULT '',
		date_to            TEXT NOT NULL DEFAULT '',
		source             TEXT NOT NULL DEFAULT '',
		active             BOOLEAN NOT NULL DEFAULT TRUE,
		paused             BOOLEAN NOT NULL DEFAULT FALSE,
		created_at         {{timestamp}} NOT NULL,
		last_checked_at    {{timestamp}},
		notifications_sent INTEGER NOT NULL DEFAULT 0,
		CHECK (origin <> destination)
	);

	CREATE INDEX IF NOT EXISTS idx_alerts_owner ON alerts(owner_id);
	CREATE INDEX IF NOT EXISTS idx_alerts_active ON alerts(active, paused);

	CREATE TABLE IF NOT EXISTS deals (
		id                  TEXT PRIMARY KEY,
		alert_id            TEXT NOT NULL,
		date                TEXT NOT NULL,
		price               TEXT NOT NULL,
		price_excluding_tax TEXT NOT NULL DEFAULT '0',
		fare_class          TEXT NOT NULL DEFAULT '',
		flight_number       TEXT NOT NULL DEFAULT '',
		departure_time      TEXT NOT NULL DEFAULT '',
		arrival_time        TEXT NOT NULL DEFAULT '',
		cheapest_of_window  BOOLEAN NOT NULL DEFAULT FALSE,
		found_at            {{timestamp}} NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_deals_alert ON deals(alert_id);
	CREATE INDEX IF NOT EXISTS idx_deals_found_at ON deals(found_at);

	CREATE TABLE IF NOT EXISTS notifications (
		id             TEXT PRIMARY KEY,
		alert_id       TEXT NOT NULL,
		channel        TEXT NOT NULL DEFAULT '',
		destination_id TEXT NOT NULL,
		deal_count     INTEGER NOT NULL DEFAULT 0,
		message        TEXT NOT NULL,
		content_hash   TEXT NOT NULL DEFAULT '',
		sent_at        {{timestamp}} NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_notifications_alert ON notifications(alert_id, sent_at);

	CREATE TABLE IF NOT EXISTS notification_deals (
		notification_id TEXT NOT NULL,
		deal_id         TEXT NOT NULL,
		PRIMARY KEY (notification_id, deal_id)
	);`,
}

// runMigrations applies pending schema migrations.
func runMigrations(db *sql.DB, d dialect) error {
	_, err := db.Exec(d.expand(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		applied_at {{timestamp}} NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`))
	if err != nil {
		return fmt.Errorf("create migration table: %w", err)
	}

	var currentVersion int
	row := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("check migration version: %w", err)
	}

	for i := currentVersion; i < len(migrations); i++ {
		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", i+1, err)
		}

		if _, err := tx.Exec(d.expand(migrations[i])); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("run migration %d: %w", i+1, err)
		}

		if _, err := tx.Exec(d.rebind("INSERT INTO schema_migrations (version) VALUES (?)"), i+1); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %d: %w", i+1, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", i+1, err)
		}
	}

	return nil
}

// dialect carries the few differences between the supported SQL engines.
type dialect struct {
	name          string
	timestampType string
	numbered      bool
}

var (
	sqliteDialect   = dialect{name: "sqlite", timestampType: "DATETIME"}
	postgresDialect = dialect{name: "postgres", timestampType: "TIMESTAMPTZ", numbered: true}
)

func (d dialect) expand(ddl string) string {
	return strings.ReplaceAll(ddl, "{{timestamp}}", d.timestampType)
}

// rebind rewrites ? placeholders to $N for engines that need numbered ones.
func (d dialect) rebind(query string) string {
	if !d.numbered {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
