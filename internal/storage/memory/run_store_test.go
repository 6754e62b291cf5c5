package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/agenda-cultural-salvador/internal/events"
	"github.com/JakeFAU/agenda-cultural-salvador/internal/store"
)

func TestRunStoreLifecycle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewRunStore()
	t0 := time.Date(2025, 3, 1, 6, 0, 0, 0, time.UTC)

	_, err := s.LastSuccess(ctx)
	require.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, s.StartRun(ctx, events.ScrapeRun{ID: "r1", Source: "sympla", StartedAt: t0}))
	require.Error(t, s.StartRun(ctx, events.ScrapeRun{ID: "r1"}))
	require.NoError(t, s.StartRun(ctx, events.ScrapeRun{ID: "r2", Source: "elcabong", StartedAt: t0.Add(time.Hour)}))

	counters := events.RunCounters{Fetched: 10, Valid: 8, Upserted: 7, Invalid: 2}
	require.NoError(t, s.CompleteRun(ctx, "r1", t0.Add(time.Minute), events.RunSuccess, counters, ""))
	require.NoError(t, s.CompleteRun(ctx, "r2", t0.Add(61*time.Minute), events.RunError, events.RunCounters{}, "boom"))
	assert.ErrorIs(t, s.CompleteRun(ctx, "nope", t0, events.RunError, events.RunCounters{}, ""), store.ErrNotFound)

	runs, err := s.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "r2", runs[0].ID)
	assert.Equal(t, "boom", runs[0].ErrorMessage)

	last, err := s.LastSuccess(ctx)
	require.NoError(t, err)
	assert.Equal(t, "r1", last.ID)
	assert.Equal(t, 7, last.ItemsUpserted)
	require.NotNil(t, last.EndedAt)

	limited, err := s.ListRuns(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}
