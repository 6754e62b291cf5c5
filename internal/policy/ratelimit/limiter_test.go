package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiterWaitSpacesRequestsPerDomain(t *testing.T) {
	l := New(Config{DefaultRPS: 10, DefaultBurst: 1})
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "https://www.sympla.com.br/a"))

	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://www.sympla.com.br/b"))
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)

	// Another host has its own bucket.
	start = time.Now()
	require.NoError(t, l.Wait(ctx, "https://elcabong.com.br/agenda"))
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestLimiterDomainOverride(t *testing.T) {
	l := New(Config{DefaultRPS: 0.1, DomainRPS: map[string]float64{"ELCABONG.com.br": 0}})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, l.Wait(ctx, "https://elcabong.com.br/agenda"))
	}
}

func TestLimiterWaitHonorsContext(t *testing.T) {
	l := New(Config{DefaultRPS: 0.01, DefaultBurst: 1})
	require.NoError(t, l.Wait(context.Background(), "https://example.com"))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.Error(t, l.Wait(ctx, "https://example.com"))
}
