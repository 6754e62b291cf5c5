package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/agenda-cultural-salvador/internal/events"
	"github.com/JakeFAU/agenda-cultural-salvador/internal/store"
)

const eventColumns = `id::text, external_id, source, city, title, start_datetime, venue_name,
	price_text, is_free, url, image_url, category, click_count, raw_payload`

// EventStore implements store.EventRepository on an events table.
type EventStore struct {
	pool  Pool
	table string
}

var _ store.EventRepository = (*EventStore)(nil)

// NewEventStore wraps pool. An empty table name defaults to "events".
func NewEventStore(pool Pool, table string) (*EventStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	name, err := tableName(table, "events")
	if err != nil {
		return nil, err
	}
	return &EventStore{pool: pool, table: name}, nil
}

// Ping checks connectivity.
func (s *EventStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// Close releases the underlying pool resources.
func (s *EventStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *EventStore) upsertQuery(policy store.ConflictPolicy) string {
	conflict := "DO NOTHING"
	if policy == store.ConflictOverwrite {
		conflict = `DO UPDATE SET
	source = EXCLUDED.source,
	city = EXCLUDED.city,
	title = EXCLUDED.title,
	start_datetime = EXCLUDED.start_datetime,
	venue_name = EXCLUDED.venue_name,
	price_text = EXCLUDED.price_text,
	is_free = EXCLUDED.is_free,
	url = EXCLUDED.url,
	image_url = EXCLUDED.image_url,
	category = EXCLUDED.category,
	raw_payload = EXCLUDED.raw_payload,
	updated_at = now()`
	}
	return fmt.Sprintf(`
INSERT INTO %s (
	external_id,
	source,
	city,
	title,
	start_datetime,
	venue_name,
	price_text,
	is_free,
	url,
	image_url,
	category,
	raw_payload
) VALUES ($1, $2, $3, $4, $5::timestamp, $6, $7, $8, $9, $10, $11, $12)
ON CONFLICT (external_id) %s`, s.table, conflict)
}

// UpsertEvents writes all records in one transaction.
func (s *EventStore) UpsertEvents(ctx context.Context, records []events.Record, policy store.ConflictPolicy) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	query := s.upsertQuery(policy)
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin upsert: %w", err)
	}
	written := 0
	for _, r := range records {
		args, err := upsertArgs(r)
		if err != nil {
			_ = tx.Rollback(ctx)
			return 0, err
		}
		tag, err := tx.Exec(ctx, query, args...)
		if err != nil {
			_ = tx.Rollback(ctx)
			return 0, fmt.Errorf("upsert event %s: %w", r.ExternalID, err)
		}
		written += int(tag.RowsAffected())
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit upsert: %w", err)
	}
	return written, nil
}

func upsertArgs(r events.Record) ([]any, error) {
	if r.ExternalID == "" {
		return nil, fmt.Errorf("record %q has no external id", r.Title)
	}
	var raw []byte
	if len(r.Raw) > 0 {
		data, err := json.Marshal(r.Raw)
		if err != nil {
			return nil, fmt.Errorf("marshal raw payload: %w", err)
		}
		raw = data
	}
	return []any{
		r.ExternalID,
		r.Source,
		r.City,
		r.Title,
		events.FormatNaive(r.Start),
		nullable(r.Venue),
		nullable(r.PriceText),
		r.IsFree,
		r.JoinedURL(),
		nullable(r.ImageURL),
		r.Category,
		raw,
	}, nil
}

// ExistingExternalIDs reports which ids are already stored.
func (s *EventStore) ExistingExternalIDs(ctx context.Context, ids []string) (map[string]struct{}, error) {
	out := make(map[string]struct{})
	if len(ids) == 0 {
		return out, nil
	}
	query := fmt.Sprintf(`SELECT external_id FROM %s WHERE external_id = ANY($1)`, s.table)
	rows, err := s.pool.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("query external ids: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan external id: %w", err)
		}
		out[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate external ids: %w", err)
	}
	return out, nil
}

// ListUpcoming builds a filtered select ordered by start time.
func (s *EventStore) ListUpcoming(ctx context.Context, filter store.ListFilter) ([]events.Record, error) {
	query, args := s.listQuery(filter)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var out []events.Record
	for rows.Next() {
		r, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return out, nil
}

func (s *EventStore) listQuery(filter store.ListFilter) (string, []any) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if !filter.From.IsZero() {
		where = append(where, "start_datetime >= "+arg(events.FormatNaive(filter.From))+"::timestamp")
	}
	if !filter.To.IsZero() {
		where = append(where, "start_datetime < "+arg(events.FormatNaive(filter.To))+"::timestamp")
	}
	if filter.Category != "" {
		where = append(where, "category = "+arg(filter.Category))
	}
	if filter.FreeOnly {
		where = append(where, "is_free")
	}
	if term := strings.TrimSpace(filter.Search); term != "" {
		p := arg("%" + escapeLike(term) + "%")
		where = append(where, fmt.Sprintf("(title ILIKE %s OR venue_name ILIKE %s)", p, p))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s", eventColumns, s.table)
	if len(where) > 0 {
		b.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	order := make([]string, 0, 4)
	if filter.FreeFirst {
		order = append(order, "is_free DESC")
	}
	if filter.OrderByClicks {
		order = append(order, "click_count DESC")
	}
	order = append(order, "start_datetime ASC", "id ASC")
	b.WriteString(" ORDER BY " + strings.Join(order, ", "))
	if filter.Limit > 0 {
		b.WriteString(" LIMIT " + arg(filter.Limit))
	}
	return b.String(), args
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// GetByID loads a single event. Ids that are not UUIDs cannot exist.
func (s *EventStore) GetByID(ctx context.Context, id string) (events.Record, error) {
	if _, err := uuid.Parse(id); err != nil {
		return events.Record{}, store.ErrNotFound
	}
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1::uuid`, eventColumns, s.table)
	r, err := scanEvent(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return events.Record{}, store.ErrNotFound
		}
		return events.Record{}, err
	}
	return r, nil
}

func scanEvent(row scanner) (events.Record, error) {
	var (
		r        events.Record
		start    time.Time
		city     *string
		venue    *string
		price    *string
		url      string
		image    *string
		category *string
		raw      []byte
	)
	err := row.Scan(
		&r.ID,
		&r.ExternalID,
		&r.Source,
		&city,
		&r.Title,
		&start,
		&venue,
		&price,
		&r.IsFree,
		&url,
		&image,
		&category,
		&r.Clicks,
		&raw,
	)
	if err != nil {
		return events.Record{}, fmt.Errorf("scan event: %w", err)
	}
	r.City = value(city)
	r.Start = events.FromWallClock(start)
	r.Venue = value(venue)
	r.PriceText = value(price)
	r.ImageURL = value(image)
	r.Category = value(category)
	r.Sources = events.SplitURLs(url, r.ID)
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &r.Raw); err != nil {
			return events.Record{}, fmt.Errorf("decode raw payload: %w", err)
		}
	}
	return r, nil
}

// IncrementClicks adds one click to each distinct id.
func (s *EventStore) IncrementClicks(ctx context.Context, ids ...string) error {
	valid := make([]string, 0, len(ids))
	for _, id := range events.Unique(ids) {
		if _, err := uuid.Parse(id); err == nil {
			valid = append(valid, id)
		}
	}
	if len(valid) == 0 {
		return nil
	}
	query := fmt.Sprintf(`UPDATE %s SET click_count = click_count + 1 WHERE id = ANY($1::uuid[])`, s.table)
	if _, err := s.pool.Exec(ctx, query, valid); err != nil {
		return fmt.Errorf("increment clicks: %w", err)
	}
	return nil
}

// CountBySource tallies stored events per source.
func (s *EventStore) CountBySource(ctx context.Context) (map[string]int64, error) {
	query := fmt.Sprintf(`SELECT source, count(*) FROM %s GROUP BY source`, s.table)
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("count by source: %w", err)
	}
	defer rows.Close()
	out := make(map[string]int64)
	for rows.Next() {
		var (
			source string
			n      int64
		)
		if err := rows.Scan(&source, &n); err != nil {
			return nil, fmt.Errorf("scan source count: %w", err)
		}
		out[source] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate source counts: %w", err)
	}
	return out, nil
}
