package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/agenda-cultural-salvador/internal/events"
	"github.com/JakeFAU/agenda-cultural-salvador/internal/store"
)

const runColumns = `id::text, source, city, started_at, ended_at, status,
	items_fetched, items_valid, items_upserted, items_invalid, error_message`

// RunStore implements store.ScrapeRunRepository on a scrape_runs table.
type RunStore struct {
	pool  Pool
	table string
}

var _ store.ScrapeRunRepository = (*RunStore)(nil)

// NewRunStore wraps pool. An empty table name defaults to "scrape_runs".
func NewRunStore(pool Pool, table string) (*RunStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	name, err := tableName(table, "scrape_runs")
	if err != nil {
		return nil, err
	}
	return &RunStore{pool: pool, table: name}, nil
}

// StartRun inserts a running row.
func (s *RunStore) StartRun(ctx context.Context, run events.ScrapeRun) error {
	query := fmt.Sprintf(`
INSERT INTO %s (id, source, city, started_at, status)
VALUES ($1::uuid, $2, $3, $4, $5)`, s.table)
	_, err := s.pool.Exec(ctx, query, run.ID, run.Source, run.City, run.StartedAt, events.RunRunning)
	if err != nil {
		return fmt.Errorf("failed to start scrape run: %w", err)
	}
	return nil
}

// CompleteRun marks a run finished with its counters.
func (s *RunStore) CompleteRun(
	ctx context.Context,
	id string,
	endedAt time.Time,
	status events.RunStatus,
	counters events.RunCounters,
	errMsg string,
) error {
	query := fmt.Sprintf(`
UPDATE %s
SET ended_at = $1, status = $2, items_fetched = $3, items_valid = $4,
	items_upserted = $5, items_invalid = $6, error_message = $7
WHERE id = $8::uuid`, s.table)
	tag, err := s.pool.Exec(ctx, query,
		endedAt,
		status,
		counters.Fetched,
		counters.Valid,
		counters.Upserted,
		counters.Invalid,
		nullable(errMsg),
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to complete scrape run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// ListRuns returns the newest runs first.
func (s *RunStore) ListRuns(ctx context.Context, limit int) ([]events.ScrapeRun, error) {
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf(`SELECT %s FROM %s ORDER BY started_at DESC LIMIT $1`, runColumns, s.table)
	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list scrape runs: %w", err)
	}
	defer rows.Close()

	var runs []events.ScrapeRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate scrape runs: %w", err)
	}
	return runs, nil
}

// LastSuccess returns the latest successful run or store.ErrNotFound.
func (s *RunStore) LastSuccess(ctx context.Context) (events.ScrapeRun, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE status = $1 ORDER BY started_at DESC LIMIT 1`, runColumns, s.table)
	run, err := scanRun(s.pool.QueryRow(ctx, query, events.RunSuccess))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return events.ScrapeRun{}, store.ErrNotFound
		}
		return events.ScrapeRun{}, err
	}
	return run, nil
}

func scanRun(row scanner) (events.ScrapeRun, error) {
	var (
		run    events.ScrapeRun
		city   *string
		status string
		errMsg *string
	)
	err := row.Scan(
		&run.ID,
		&run.Source,
		&city,
		&run.StartedAt,
		&run.EndedAt,
		&status,
		&run.ItemsFetched,
		&run.ItemsValid,
		&run.ItemsUpserted,
		&run.ItemsInvalid,
		&errMsg,
	)
	if err != nil {
		return events.ScrapeRun{}, fmt.Errorf("scan scrape run: %w", err)
	}
	run.City = value(city)
	run.Status = events.RunStatus(status)
	run.ErrorMessage = value(errMsg)
	return run, nil
}
