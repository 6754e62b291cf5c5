package content

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/agenda-cultural-salvador/internal/events"
)

// Option is one post the editor can pick.
type Option struct {
	Type     string          `json:"type"`
	Title    string          `json:"title"`
	Copy     string          `json:"copy"`
	ImageURL string          `json:"image_url"`
	Events   []events.Record `json:"events,omitempty"`
}

// DailyBundle is the set of post options generated for one day.
type DailyBundle struct {
	Date        string    `json:"date"`
	GeneratedAt time.Time `json:"generated_at"`
	Options     []Option  `json:"options"`
}

// Builder assembles daily bundles.
type Builder struct {
	queries *Queries
	baseURL string
	logger  *zap.Logger
}

// NewBuilder returns a Builder whose card links point at baseURL.
func NewBuilder(queries *Queries, baseURL string, logger *zap.Logger) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	return &Builder{
		queries: queries,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger.Named("content"),
	}
}

// Build runs every query and returns the options that found events. The
// weekend option is only offered on Thursdays.
func (b *Builder) Build(ctx context.Context) (DailyBundle, error) {
	now := b.queries.now()
	bundle := DailyBundle{
		Date:        now.Format("2006-01-02"),
		GeneratedAt: now,
		Options:     []Option{},
	}

	highlight, ok, err := b.queries.Highlight(ctx)
	if err != nil {
		return DailyBundle{}, err
	}
	if ok {
		bundle.Options = append(bundle.Options, Option{
			Type:     "single",
			Title:    "Evento em Destaque",
			Copy:     SingleEventCopy(highlight),
			ImageURL: b.CardURL(highlight),
			Events:   []events.Record{highlight},
		})
	}

	today, err := b.queries.Today(ctx)
	if err != nil {
		return DailyBundle{}, err
	}
	if len(today) > 0 {
		bundle.Options = append(bundle.Options, Option{
			Type:     "list",
			Title:    "Hoje em Salvador",
			Copy:     TodayListCopy(today),
			ImageURL: b.ListCardURL("O que fazer HOJE em Salvador", len(today)),
			Events:   today,
		})
	}

	if now.Weekday() == time.Thursday {
		weekend, err := b.queries.Weekend(ctx)
		if err != nil {
			return DailyBundle{}, err
		}
		if len(weekend) > 0 {
			bundle.Options = append(bundle.Options, Option{
				Type:     "list",
				Title:    "Fim de Semana",
				Copy:     WeekendListCopy(weekend),
				ImageURL: b.ListCardURL("Fim de Semana em Salvador", len(weekend)),
				Events:   weekend,
			})
		}
	}

	free, err := b.queries.FreeToday(ctx)
	if err != nil {
		return DailyBundle{}, err
	}
	if len(free) > 0 {
		bundle.Options = append(bundle.Options, Option{
			Type:     "list",
			Title:    "Gratuitos Hoje",
			Copy:     FreeEventsListCopy(free),
			ImageURL: b.ListCardURL("Rolês GRATUITOS em Salvador", len(free)),
			Events:   free,
		})
	}

	b.logger.Info("daily content built",
		zap.String("date", bundle.Date),
		zap.Int("options", len(bundle.Options)),
	)
	return bundle, nil
}

// CardURL links the single-event card of r.
func (b *Builder) CardURL(r events.Record) string {
	params := url.Values{}
	params.Set("title", r.Title)
	params.Set("venue", venueOf(r))
	params.Set("date", FormatDate(r.Start))
	params.Set("time", FormatTime(r.Start))
	params.Set("price", priceOf(r))
	params.Set("type", "single")
	if r.ImageURL != "" {
		params.Set("image", r.ImageURL)
	}
	return b.baseURL + "/api/generate-card?" + params.Encode()
}

// ListCardURL links a list card titled title for count events.
func (b *Builder) ListCardURL(title string, count int) string {
	params := url.Values{}
	params.Set("title", title)
	params.Set("venue", fmt.Sprintf("%d eventos", count))
	params.Set("type", "list")
	return b.baseURL + "/api/generate-card?" + params.Encode()
}

// WriteBundle stores bundle as <dir>/<date>.json and returns the path.
func WriteBundle(dir string, bundle DailyBundle) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create content dir: %w", err)
	}
	data, err := json.MarshalIndent(bundle, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal bundle: %w", err)
	}
	path := filepath.Join(dir, bundle.Date+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write bundle: %w", err)
	}
	return path, nil
}
