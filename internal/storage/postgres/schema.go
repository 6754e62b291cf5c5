package postgres

import (
	"context"
	"fmt"
)

const schemaTemplate = `
CREATE TABLE IF NOT EXISTS %[1]s (
	id uuid PRIMARY KEY DEFAULT gen_random_uuid(),
	external_id text NOT NULL UNIQUE,
	source text NOT NULL,
	city text NOT NULL DEFAULT 'Salvador',
	title text NOT NULL,
	start_datetime timestamp NOT NULL,
	venue_name text,
	price_text text,
	is_free boolean NOT NULL DEFAULT false,
	url text NOT NULL,
	image_url text,
	category text,
	click_count bigint NOT NULL DEFAULT 0,
	raw_payload jsonb,
	created_at timestamptz NOT NULL DEFAULT now(),
	updated_at timestamptz NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS %[1]s_start_idx ON %[1]s (start_datetime);
CREATE TABLE IF NOT EXISTS %[2]s (
	id uuid PRIMARY KEY,
	source text NOT NULL,
	city text,
	started_at timestamptz NOT NULL,
	ended_at timestamptz,
	status text NOT NULL,
	items_fetched integer NOT NULL DEFAULT 0,
	items_valid integer NOT NULL DEFAULT 0,
	items_upserted integer NOT NULL DEFAULT 0,
	items_invalid integer NOT NULL DEFAULT 0,
	error_message text
);`

// EnsureSchema creates the events and scrape run tables when missing.
func EnsureSchema(ctx context.Context, pool Pool, cfg Config) error {
	eventsTable, err := tableName(cfg.EventsTable, "events")
	if err != nil {
		return err
	}
	runsTable, err := tableName(cfg.RunsTable, "scrape_runs")
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, fmt.Sprintf(schemaTemplate, eventsTable, runsTable)); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
