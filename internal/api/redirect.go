package api

import (
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/agenda-cultural-salvador/internal/events"
	"github.com/JakeFAU/agenda-cultural-salvador/internal/metrics"
	"github.com/JakeFAU/agenda-cultural-salvador/internal/store"
)

// clickGuard suppresses repeated clicks from one client on one link within
// window. Entries older than window are swept at most once per window.
type clickGuard struct {
	mu     sync.Mutex
	window time.Duration
	now    func() time.Time
	seen   map[string]time.Time
	swept  time.Time
}

func newClickGuard(window time.Duration, now func() time.Time) *clickGuard {
	if now == nil {
		now = time.Now
	}
	return &clickGuard{
		window: window,
		now:    now,
		seen:   make(map[string]time.Time),
	}
}

// Allow reports whether a click for key should be counted and records it.
func (g *clickGuard) Allow(key string) bool {
	if g.window <= 0 {
		return true
	}
	now := g.now()
	g.mu.Lock()
	defer g.mu.Unlock()
	if now.Sub(g.swept) >= g.window {
		for k, at := range g.seen {
			if now.Sub(at) >= g.window {
				delete(g.seen, k)
			}
		}
		g.swept = now
	}
	if at, ok := g.seen[key]; ok && now.Sub(at) < g.window {
		return false
	}
	g.seen[key] = now
	return true
}

// Len returns the number of tracked entries.
func (g *clickGuard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.seen)
}

// redirect handles GET /r/{id}. The id may be a comma-joined list for merged
// events; every listed row is credited and the first stored one decides the
// target.
func (s *Server) redirect(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "id")
	ids := events.Unique(events.SplitIDs(raw))
	if len(ids) == 0 {
		metrics.ObserveClick("invalid")
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}

	var (
		rec   events.Record
		found bool
	)
	for _, id := range ids {
		got, err := s.deps.Events.GetByID(r.Context(), id)
		if err == nil {
			rec, found = got, true
			break
		}
		if !errors.Is(err, store.ErrNotFound) {
			s.logger.Warn("redirect lookup failed", zap.String("id", id), zap.Error(err))
		}
	}
	if !found {
		metrics.ObserveClick("not_found")
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}

	if s.clicks.Allow(clientIP(r) + "|" + strings.Join(ids, events.IDSeparator)) {
		if err := s.deps.Events.IncrementClicks(r.Context(), ids...); err != nil {
			s.logger.Warn("increment clicks failed", zap.Strings("ids", ids), zap.Error(err))
		}
		metrics.ObserveClick("counted")
	} else {
		metrics.ObserveClick("duplicate")
	}

	target := rec.CanonicalURL()
	if target == "" {
		target = "/"
	}
	http.Redirect(w, r, target, http.StatusFound)
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
