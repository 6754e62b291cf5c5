package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/agenda-cultural-salvador/internal/events"
	"github.com/JakeFAU/agenda-cultural-salvador/internal/store"
)

const (
	defaultRunLimit = 20
	maxRunLimit     = 200
	runsTimeout     = 3 * time.Second
)

// RunsHandler exposes read-only scrape run history.
type RunsHandler struct {
	repo    store.ScrapeRunRepository
	timeout time.Duration
	logger  *zap.Logger
}

// NewRunsHandler wires the repository and logger.
func NewRunsHandler(repo store.ScrapeRunRepository, logger *zap.Logger) *RunsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RunsHandler{
		repo:    repo,
		timeout: runsTimeout,
		logger:  logger,
	}
}

// ListRuns handles GET /api/admin/scrape-runs?status=&limit=. It returns
// {"runs": [...]} newest first, 400 for invalid filters, 503 when no run
// repository is configured, or 500 if the repository call fails.
func (h *RunsHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "scrape run repository unavailable", "")
		return
	}
	limit, err := parseLimit(r, defaultRunLimit, maxRunLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "")
		return
	}
	var status events.RunStatus
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		status, err = parseStatus(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error(), "")
			return
		}
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	runs, err := h.repo.ListRuns(ctx, limit)
	if err != nil {
		h.logger.Error("list scrape runs failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list scrape runs", err.Error())
		return
	}
	if status != "" {
		filtered := make([]events.ScrapeRun, 0, len(runs))
		for _, run := range runs {
			if run.Status == status {
				filtered = append(filtered, run)
			}
		}
		runs = filtered
	}
	if runs == nil {
		runs = []events.ScrapeRun{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

// LastUpdated returns the end time of the newest successful run, or nil when
// there is none.
func (h *RunsHandler) LastUpdated(ctx context.Context) *time.Time {
	if h.repo == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()
	run, err := h.repo.LastSuccess(ctx)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			h.logger.Warn("last successful run lookup failed", zap.Error(err))
		}
		return nil
	}
	return run.EndedAt
}

func parseLimit(r *http.Request, def, maxLimit int) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil || val <= 0 {
		return 0, errors.New("invalid limit")
	}
	if val > maxLimit {
		val = maxLimit
	}
	return val, nil
}

func parseStatus(input string) (events.RunStatus, error) {
	switch strings.ToLower(input) {
	case "running":
		return events.RunRunning, nil
	case "success":
		return events.RunSuccess, nil
	case "error", "failed", "failure":
		return events.RunError, nil
	default:
		return "", errors.New("invalid status")
	}
}
