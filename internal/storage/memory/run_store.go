package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/JakeFAU/agenda-cultural-salvador/internal/events"
	"github.com/JakeFAU/agenda-cultural-salvador/internal/store"
)

// RunStore implements store.ScrapeRunRepository in memory.
type RunStore struct {
	mu   sync.RWMutex
	runs map[string]events.ScrapeRun
}

var _ store.ScrapeRunRepository = (*RunStore)(nil)

// NewRunStore constructs a RunStore.
func NewRunStore() *RunStore {
	return &RunStore{runs: make(map[string]events.ScrapeRun)}
}

// StartRun stores a new run in running status.
func (s *RunStore) StartRun(_ context.Context, run events.ScrapeRun) error {
	if run.ID == "" {
		return errors.New("run id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.runs[run.ID]; exists {
		return errors.New("run already exists")
	}
	run.Status = events.RunRunning
	s.runs[run.ID] = run
	return nil
}

// CompleteRun records the final status and counters.
func (s *RunStore) CompleteRun(
	_ context.Context,
	id string,
	endedAt time.Time,
	status events.RunStatus,
	counters events.RunCounters,
	errMsg string,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		return store.ErrNotFound
	}
	ended := endedAt
	run.EndedAt = &ended
	run.Status = status
	run.ItemsFetched = counters.Fetched
	run.ItemsValid = counters.Valid
	run.ItemsUpserted = counters.Upserted
	run.ItemsInvalid = counters.Invalid
	run.ErrorMessage = errMsg
	s.runs[id] = run
	return nil
}

// ListRuns returns the newest runs first.
func (s *RunStore) ListRuns(_ context.Context, limit int) ([]events.ScrapeRun, error) {
	s.mu.RLock()
	out := make([]events.ScrapeRun, 0, len(s.runs))
	for _, run := range s.runs {
		out = append(out, run)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.After(out[j].StartedAt)
		}
		return out[i].ID > out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// LastSuccess returns the most recently started successful run.
func (s *RunStore) LastSuccess(ctx context.Context) (events.ScrapeRun, error) {
	runs, err := s.ListRuns(ctx, 0)
	if err != nil {
		return events.ScrapeRun{}, err
	}
	for _, run := range runs {
		if run.Status == events.RunSuccess {
			return run, nil
		}
	}
	return events.ScrapeRun{}, store.ErrNotFound
}
