package store

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/JakeFAU/agenda-cultural-salvador/internal/events"
)

// ErrNotFound signals that the requested record does not exist.
var ErrNotFound = errors.New("record not found")

// ConflictPolicy decides what an upsert does when external_id already exists.
type ConflictPolicy int

const (
	// ConflictIgnore keeps the stored row untouched.
	ConflictIgnore ConflictPolicy = iota
	// ConflictOverwrite replaces the mutable columns of the stored row.
	ConflictOverwrite
)

func (p ConflictPolicy) String() string {
	if p == ConflictOverwrite {
		return "overwrite"
	}
	return "ignore"
}

// ListFilter narrows ListUpcoming. Zero values mean "no constraint".
type ListFilter struct {
	// From and To bound start_datetime (inclusive, exclusive).
	From time.Time
	To   time.Time
	// Category matches the category column exactly.
	Category string
	// FreeOnly keeps only is_free rows.
	FreeOnly bool
	// Search matches title or venue case-insensitively.
	Search string
	// OrderByClicks sorts by click_count descending before start time.
	OrderByClicks bool
	// FreeFirst sorts free rows first.
	FreeFirst bool
	// Limit caps the number of rows; <= 0 means no limit.
	Limit int
}

// EventRepository persists event records.
type EventRepository interface {
	// UpsertEvents writes records in one batch keyed on external_id and
	// returns how many rows were inserted or updated.
	UpsertEvents(ctx context.Context, records []events.Record, policy ConflictPolicy) (int, error)
	// ExistingExternalIDs reports which of ids are already stored.
	ExistingExternalIDs(ctx context.Context, ids []string) (map[string]struct{}, error)
	// ListUpcoming returns events matching filter ordered by start time.
	ListUpcoming(ctx context.Context, filter ListFilter) ([]events.Record, error)
	// GetByID loads one event or returns ErrNotFound.
	GetByID(ctx context.Context, id string) (events.Record, error)
	// IncrementClicks adds one click to every id; unknown ids are ignored.
	IncrementClicks(ctx context.Context, ids ...string) error
	// CountBySource returns the number of stored events per source.
	CountBySource(ctx context.Context) (map[string]int64, error)
}

// ScrapeRunRepository logs ingestion passes.
type ScrapeRunRepository interface {
	// StartRun records a new running pass.
	StartRun(ctx context.Context, run events.ScrapeRun) error
	// CompleteRun marks the run finished with the provided status, counters and error.
	CompleteRun(
		ctx context.Context,
		id string,
		endedAt time.Time,
		status events.RunStatus,
		counters events.RunCounters,
		errMsg string,
	) error
	// ListRuns returns the most recent runs first.
	ListRuns(ctx context.Context, limit int) ([]events.ScrapeRun, error)
	// LastSuccess returns the latest successful run or ErrNotFound.
	LastSuccess(ctx context.Context) (events.ScrapeRun, error)
}

// BlobStore persists rendered images and uploaded assets.
type BlobStore interface {
	// PutObject stores data under path and returns an addressable URI.
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}
