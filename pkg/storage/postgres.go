package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// NewPostgres connects to a Postgres database using a lib/pq DSN.
func NewPostgres(dsn string) (*SQL, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrations(db, postgresDialect); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQL{db: db, dialect: postgresDialect}, nil
}

// Open selects a backend by driver name.
func Open(driver, path, dsn string) (Storage, error) {
	switch driver {
	case "", "sqlite":
		return NewSQLite(path)
	case "postgres":
		return NewPostgres(dsn)
	case "memory":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", driver)
	}
}
