package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/JakeFAU/agenda-cultural-salvador/internal/events"
	"github.com/JakeFAU/agenda-cultural-salvador/internal/id/uuid"
	"github.com/JakeFAU/agenda-cultural-salvador/internal/store"
)

// IDGenerator assigns row ids to new events and runs.
type IDGenerator interface {
	NewID() (string, error)
}

// EventStore implements store.EventRepository in memory.
type EventStore struct {
	mu         sync.RWMutex
	ids        IDGenerator
	rows       map[string]events.Record
	byExternal map[string]string
}

var _ store.EventRepository = (*EventStore)(nil)

// NewEventStore constructs an EventStore. A nil generator uses UUID v7 ids.
func NewEventStore(ids IDGenerator) *EventStore {
	if ids == nil {
		ids = uuid.NewUUIDGenerator()
	}
	return &EventStore{
		ids:        ids,
		rows:       make(map[string]events.Record),
		byExternal: make(map[string]string),
	}
}

// UpsertEvents inserts new records and applies policy to existing ones.
func (s *EventStore) UpsertEvents(_ context.Context, records []events.Record, policy store.ConflictPolicy) (int, error) {
	for _, r := range records {
		if r.ExternalID == "" {
			return 0, fmt.Errorf("record %q has no external id", r.Title)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	written := 0
	for _, r := range records {
		if id, ok := s.byExternal[r.ExternalID]; ok {
			if policy != store.ConflictOverwrite {
				continue
			}
			prev := s.rows[id]
			next := r.WithIdentity(id)
			next.Clicks = prev.Clicks
			s.rows[id] = next
			written++
			continue
		}
		id, err := s.ids.NewID()
		if err != nil {
			return written, fmt.Errorf("assign event id: %w", err)
		}
		row := r.WithIdentity(id)
		row.Clicks = 0
		s.rows[id] = row
		s.byExternal[r.ExternalID] = id
		written++
	}
	return written, nil
}

// ExistingExternalIDs reports which ids are already stored.
func (s *EventStore) ExistingExternalIDs(_ context.Context, ids []string) (map[string]struct{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]struct{})
	for _, id := range ids {
		if _, ok := s.byExternal[id]; ok {
			out[id] = struct{}{}
		}
	}
	return out, nil
}

// ListUpcoming filters and orders the stored events.
func (s *EventStore) ListUpcoming(_ context.Context, filter store.ListFilter) ([]events.Record, error) {
	search := strings.ToLower(strings.TrimSpace(filter.Search))

	s.mu.RLock()
	out := make([]events.Record, 0, len(s.rows))
	for _, r := range s.rows {
		if !filter.From.IsZero() && r.Start.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && !r.Start.Before(filter.To) {
			continue
		}
		if filter.Category != "" && r.Category != filter.Category {
			continue
		}
		if filter.FreeOnly && !r.IsFree {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(r.Title), search) &&
			!strings.Contains(strings.ToLower(r.Venue), search) {
			continue
		}
		out = append(out, r.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if filter.FreeFirst && a.IsFree != b.IsFree {
			return a.IsFree
		}
		if filter.OrderByClicks && a.Clicks != b.Clicks {
			return a.Clicks > b.Clicks
		}
		if !a.Start.Equal(b.Start) {
			return a.Start.Before(b.Start)
		}
		return a.ID < b.ID
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// GetByID loads one event.
func (s *EventStore) GetByID(_ context.Context, id string) (events.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rows[id]
	if !ok {
		return events.Record{}, store.ErrNotFound
	}
	return r.Clone(), nil
}

// IncrementClicks bumps the counter of every known id once.
func (s *EventStore) IncrementClicks(_ context.Context, ids ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range events.Unique(ids) {
		r, ok := s.rows[id]
		if !ok {
			continue
		}
		r.Clicks++
		s.rows[id] = r
	}
	return nil
}

// CountBySource tallies stored events per source.
func (s *EventStore) CountBySource(_ context.Context) (map[string]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]int64)
	for _, r := range s.rows {
		out[r.Source]++
	}
	return out, nil
}
