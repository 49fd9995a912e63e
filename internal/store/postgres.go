// Package store keeps the sync service's history in Postgres.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

const schema = `
CREATE TABLE IF NOT EXISTS sensor_readings (
	id          BIGSERIAL PRIMARY KEY,
	key         TEXT NOT NULL,
	value       DOUBLE PRECISION NOT NULL,
	recorded_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS sensor_readings_key_time ON sensor_readings (key, recorded_at DESC);
CREATE TABLE IF NOT EXISTS device_status (
	device     TEXT PRIMARY KEY,
	state      TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS settings (
	name  TEXT PRIMARY KEY,
	value DOUBLE PRECISION NOT NULL
);`

// Postgres implements recorder.Store.
type Postgres struct {
	db *sql.DB
}

// Open connects and creates the tables if needed.
func Open(ctx context.Context, dsn string) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	p := &Postgres{db: db}
	if err := p.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return p, nil
}

// Migrate creates the tables the store uses.
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (p *Postgres) InsertReading(ctx context.Context, key string, value float64, at time.Time) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO sensor_readings (key, value, recorded_at) VALUES ($1, $2, $3)`,
		key, value, at.UTC())
	return err
}

func (p *Postgres) UpsertStatus(ctx context.Context, device, state string, at time.Time) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO device_status (device, state, updated_at) VALUES ($1, $2, $3)
		 ON CONFLICT (device) DO UPDATE SET state = EXCLUDED.state, updated_at = EXCLUDED.updated_at`,
		device, state, at.UTC())
	return err
}

// Thresholds returns every settings row, e.g. ambient_temp_high -> 30.
func (p *Postgres) Thresholds(ctx context.Context) (map[string]float64, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT name, value FROM settings`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]float64{}
	for rows.Next() {
		var name string
		var v float64
		if err := rows.Scan(&name, &v); err != nil {
			return nil, err
		}
		out[name] = v
	}
	return out, rows.Err()
}

// SetThreshold writes one settings row.
func (p *Postgres) SetThreshold(ctx context.Context, name string, value float64) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO settings (name, value) VALUES ($1, $2)
		 ON CONFLICT (name) DO UPDATE SET value = EXCLUDED.value`, name, value)
	return err
}

// Latest returns the newest value stored for key.
func (p *Postgres) Latest(ctx context.Context, key string) (float64, time.Time, error) {
	var v float64
	var at time.Time
	err := p.db.QueryRowContext(ctx,
		`SELECT value, recorded_at FROM sensor_readings WHERE key = $1 ORDER BY recorded_at DESC LIMIT 1`,
		key).Scan(&v, &at)
	return v, at, err
}

func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

func (p *Postgres) Close() error { return p.db.Close() }
