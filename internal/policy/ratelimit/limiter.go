// Package ratelimit implements per-domain token buckets that keep the
// scraper polite towards ticketing sites.
package ratelimit

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/agenda-cultural-salvador/internal/metrics"
)

// Limiter manages per-domain rate limits.
type Limiter struct {
	mu           sync.Mutex
	limiters     map[string]*rate.Limiter
	defaultRate  rate.Limit
	defaultBurst int
	overrides    map[string]float64
}

// Config holds rate limiter configuration.
type Config struct {
	DefaultRPS   float64 `mapstructure:"rps"`
	DefaultBurst int     `mapstructure:"burst"`
	// DomainRPS overrides DefaultRPS for specific hosts.
	DomainRPS map[string]float64 `mapstructure:"domain_rps"`
}

// New creates a new Limiter. Non-positive rates disable limiting.
func New(cfg Config) *Limiter {
	burst := cfg.DefaultBurst
	if burst <= 0 {
		burst = 1
	}
	overrides := make(map[string]float64, len(cfg.DomainRPS))
	for host, rps := range cfg.DomainRPS {
		overrides[strings.ToLower(host)] = rps
	}
	return &Limiter{
		limiters:     make(map[string]*rate.Limiter),
		defaultRate:  limitFor(cfg.DefaultRPS),
		defaultBurst: burst,
		overrides:    overrides,
	}
}

func limitFor(rps float64) rate.Limit {
	if rps <= 0 {
		return rate.Inf
	}
	return rate.Limit(rps)
}

func (l *Limiter) limiter(domain string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.limiters[domain]
	if !ok {
		r := l.defaultRate
		if rps, found := l.overrides[domain]; found {
			r = limitFor(rps)
		}
		lim = rate.NewLimiter(r, l.defaultBurst)
		l.limiters[domain] = lim
	}
	return lim
}

// Wait blocks until a token is available for the URL's host.
func (l *Limiter) Wait(ctx context.Context, rawURL string) error {
	domain := "unknown"
	if u, err := url.Parse(rawURL); err == nil && u.Hostname() != "" {
		domain = strings.ToLower(u.Hostname())
	}

	start := time.Now()
	if err := l.limiter(domain).Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	if waited := time.Since(start); waited > time.Millisecond {
		metrics.ObserveRateLimitDelay(domain, waited)
	}
	return nil
}
