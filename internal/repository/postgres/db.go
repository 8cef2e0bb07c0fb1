package postgres

import (
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/lib/pq"
)

// InitDB opens the connection pool, pings it, and applies the inline
// bootstrap DDL for the event and projection tables.
func InitDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := migrateDB(db); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	slog.Info("database connected and migrated")
	return db, nil
}

func migrateDB(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS cart_events (
			event_id          TEXT PRIMARY KEY,
			aggregate_id      TEXT NOT NULL,
			aggregate_version INT NOT NULL,
			event_type        TEXT NOT NULL,
			event_data        JSONB NOT NULL,
			occurred_at       TIMESTAMPTZ NOT NULL,
			created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (aggregate_id, aggregate_version)
		);
		CREATE INDEX IF NOT EXISTS idx_cart_events_aggregate_id ON cart_events (aggregate_id);

		CREATE TABLE IF NOT EXISTS product_events (
			event_id          TEXT PRIMARY KEY,
			aggregate_id      TEXT NOT NULL,
			aggregate_version INT NOT NULL,
			event_type        TEXT NOT NULL,
			event_data        JSONB NOT NULL,
			occurred_at       TIMESTAMPTZ NOT NULL,
			created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (aggregate_id, aggregate_version)
		);
		CREATE INDEX IF NOT EXISTS idx_product_events_aggregate_id ON product_events (aggregate_id);

		CREATE TABLE IF NOT EXISTS cart_projections (
			cart_id        TEXT PRIMARY KEY,
			user_id        TEXT NOT NULL,
			status         TEXT NOT NULL,
			items          JSONB NOT NULL DEFAULT '[]',
			total_amount   DOUBLE PRECISION NOT NULL DEFAULT 0,
			item_count     INT NOT NULL DEFAULT 0,
			version        INT NOT NULL,
			created_at     TIMESTAMPTZ NOT NULL,
			last_activity  TIMESTAMPTZ NOT NULL,
			updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_cart_projections_user_status ON cart_projections (user_id, status);
		CREATE INDEX IF NOT EXISTS idx_cart_projections_last_activity ON cart_projections (last_activity);

		CREATE TABLE IF NOT EXISTS product_projections (
			product_id      TEXT PRIMARY KEY,
			name            TEXT NOT NULL,
			price           DOUBLE PRECISION NOT NULL DEFAULT 0,
			description     TEXT NOT NULL DEFAULT '',
			total_stock     INT NOT NULL DEFAULT 0,
			reserved_stock  INT NOT NULL DEFAULT 0,
			available_stock INT NOT NULL DEFAULT 0,
			version         INT NOT NULL,
			created_at      TIMESTAMPTZ NOT NULL,
			updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_product_projections_available_stock ON product_projections (available_stock);
	`)
	return err
}
