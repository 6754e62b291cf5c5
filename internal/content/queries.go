// Package content selects events for the daily social media posts and
// writes their Portuguese captions.
package content

import (
	"context"
	"fmt"
	"time"

	"github.com/JakeFAU/agenda-cultural-salvador/internal/events"
	"github.com/JakeFAU/agenda-cultural-salvador/internal/store"
)

// List sizes of the daily posts.
const (
	TodayLimit   = 5
	WeekendLimit = 8
	FreeLimit    = 3
	StoryLimit   = 5
)

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
}

// Queries reads post candidates from the event repository.
type Queries struct {
	repo  store.EventRepository
	clock Clock
}

// NewQueries wires a repository and clock.
func NewQueries(repo store.EventRepository, clock Clock) *Queries {
	return &Queries{repo: repo, clock: clock}
}

func (q *Queries) now() time.Time {
	return q.clock.Now().In(events.Local)
}

// Highlight returns the most clicked event of the next seven days.
func (q *Queries) Highlight(ctx context.Context) (events.Record, bool, error) {
	now := q.now()
	out, err := q.repo.ListUpcoming(ctx, store.ListFilter{
		From:          now,
		To:            now.AddDate(0, 0, 7),
		OrderByClicks: true,
		Limit:         1,
	})
	if err != nil {
		return events.Record{}, false, fmt.Errorf("highlight query: %w", err)
	}
	if len(out) == 0 {
		return events.Record{}, false, nil
	}
	return out[0], true, nil
}

// Today returns up to five events of today, free ones first.
func (q *Queries) Today(ctx context.Context) ([]events.Record, error) {
	day := events.Day(q.now())
	out, err := q.repo.ListUpcoming(ctx, store.ListFilter{
		From:          day,
		To:            day.AddDate(0, 0, 1),
		FreeFirst:     true,
		OrderByClicks: true,
		Limit:         TodayLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("today query: %w", err)
	}
	return out, nil
}

// WeekendRange returns the next Saturday 00:00 and the Monday after it. On a
// Saturday the range starts a week later.
func WeekendRange(now time.Time) (from, to time.Time) {
	day := events.Day(now)
	until := (int(time.Saturday) - int(day.Weekday()) + 7) % 7
	if until == 0 {
		until = 7
	}
	from = day.AddDate(0, 0, until)
	return from, from.AddDate(0, 0, 2)
}

// Weekend returns up to eight events of the coming weekend, most clicked first.
func (q *Queries) Weekend(ctx context.Context) ([]events.Record, error) {
	from, to := WeekendRange(q.now())
	out, err := q.repo.ListUpcoming(ctx, store.ListFilter{
		From:          from,
		To:            to,
		OrderByClicks: true,
		Limit:         WeekendLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("weekend query: %w", err)
	}
	return out, nil
}

// FreeToday returns up to three free events of today.
func (q *Queries) FreeToday(ctx context.Context) ([]events.Record, error) {
	day := events.Day(q.now())
	out, err := q.repo.ListUpcoming(ctx, store.ListFilter{
		From:          day,
		To:            day.AddDate(0, 0, 1),
		FreeOnly:      true,
		OrderByClicks: true,
		Limit:         FreeLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("free today query: %w", err)
	}
	return out, nil
}

// Upcoming returns the most clicked events of the next seven days.
func (q *Queries) Upcoming(ctx context.Context, limit int) ([]events.Record, error) {
	now := q.now()
	out, err := q.repo.ListUpcoming(ctx, store.ListFilter{
		From:          now,
		To:            now.AddDate(0, 0, 7),
		OrderByClicks: true,
		Limit:         limit,
	})
	if err != nil {
		return nil, fmt.Errorf("upcoming query: %w", err)
	}
	return out, nil
}
