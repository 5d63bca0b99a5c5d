package database

import (
	"context"
	"fmt"
)

// schemaStatements creates the ledger schema. Every statement is idempotent.
var schemaStatements = []string{
	`CREATE SCHEMA IF NOT EXISTS ledger`,
	`CREATE TABLE IF NOT EXISTS ledger.rigs (
		id         BIGSERIAL PRIMARY KEY,
		name       TEXT NOT NULL DEFAULT '',
		status     TEXT NOT NULL DEFAULT 'active',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS ledger.lots (
		id         BIGSERIAL PRIMARY KEY,
		rig_id     BIGINT NOT NULL,
		lot_date   DATE NOT NULL,
		status     TEXT NOT NULL DEFAULT 'open',
		total_qty  NUMERIC(18,3) NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CONSTRAINT lots_rig_date_key UNIQUE (rig_id, lot_date)
	)`,
	`CREATE TABLE IF NOT EXISTS ledger.readings (
		id             BIGSERIAL PRIMARY KEY,
		lot_id         BIGINT NOT NULL REFERENCES ledger.lots(id),
		rig_id         BIGINT NOT NULL,
		recorded_at    TIMESTAMPTZ NOT NULL,
		quantity       DOUBLE PRECISION,
		pressure       DOUBLE PRECISION,
		temperature    DOUBLE PRECISION,
		humidity       DOUBLE PRECISION,
		co2            DOUBLE PRECISION,
		h2s            DOUBLE PRECISION,
		mercury        DOUBLE PRECISION,
		water          DOUBLE PRECISION,
		product_status TEXT,
		created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS readings_rig_recorded_idx ON ledger.readings (rig_id, recorded_at)`,
	`CREATE INDEX IF NOT EXISTS readings_lot_idx ON ledger.readings (lot_id)`,
}

// Migrate creates the ledger schema if it does not exist yet
func (db *DB) Migrate(ctx context.Context) error {
	for i, stmt := range schemaStatements {
		if _, err := db.Pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate statement %d: %w", i, err)
		}
	}
	return nil
}
