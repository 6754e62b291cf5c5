package content

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/JakeFAU/agenda-cultural-salvador/internal/events"
	"github.com/JakeFAU/agenda-cultural-salvador/internal/render"
	"github.com/JakeFAU/agenda-cultural-salvador/internal/store"
)

// StoryEvents returns the events drawn on a story of kind.
func (q *Queries) StoryEvents(ctx context.Context, kind render.StoryType) ([]events.Record, error) {
	var (
		out []events.Record
		err error
	)
	switch kind {
	case render.StoryWeekend:
		out, err = q.Weekend(ctx)
	case render.StoryFree:
		out, err = q.FreeToday(ctx)
	case render.StoryHighlight:
		out, err = q.Upcoming(ctx, StoryLimit)
	default:
		out, err = q.Today(ctx)
	}
	if err != nil {
		return nil, err
	}
	if len(out) > StoryLimit {
		out = out[:StoryLimit]
	}
	return out, nil
}

// StoryItems converts records to story entries.
func StoryItems(records []events.Record) []render.StoryItem {
	items := make([]render.StoryItem, 0, len(records))
	for _, r := range records {
		items = append(items, render.StoryItem{
			Title: truncate(r.Title, 50),
			Date:  FormatDate(r.Start),
			Time:  FormatTime(r.Start),
			Venue: truncate(venueOf(r), 30),
			Price: listPrice(r),
		})
	}
	return items
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// Story is one rendered and stored story image.
type Story struct {
	Type   render.StoryType `json:"type"`
	URL    string           `json:"url"`
	Events int              `json:"event_count"`
}

// StoryPublisher renders stories and stores them in a blob store.
type StoryPublisher struct {
	queries  *Queries
	renderer render.Renderer
	blobs    store.BlobStore
	prefix   string
	logger   *zap.Logger
}

// NewStoryPublisher wires the story pipeline. prefix is the blob path prefix.
func NewStoryPublisher(queries *Queries, renderer render.Renderer, blobs store.BlobStore, prefix string, logger *zap.Logger) *StoryPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if prefix == "" {
		prefix = "instagram-stories"
	}
	return &StoryPublisher{
		queries:  queries,
		renderer: renderer,
		blobs:    blobs,
		prefix:   prefix,
		logger:   logger.Named("stories"),
	}
}

// Publish renders one story per kind. Kinds without events are skipped and
// a failing kind does not stop the others.
func (p *StoryPublisher) Publish(ctx context.Context, kinds []render.StoryType) ([]Story, error) {
	now := p.queries.now()
	out := make([]Story, 0, len(kinds))
	var firstErr error
	for _, kind := range kinds {
		recs, err := p.queries.StoryEvents(ctx, kind)
		if err != nil {
			return out, err
		}
		if len(recs) == 0 {
			p.logger.Info("no events for story", zap.String("type", string(kind)))
			continue
		}
		png, err := p.renderer.Story(ctx, kind, StoryItems(recs))
		if err != nil {
			p.logger.Error("story render failed", zap.String("type", string(kind)), zap.Error(err))
			if firstErr == nil {
				firstErr = fmt.Errorf("render %s story: %w", kind, err)
			}
			continue
		}
		name := path.Join(p.prefix, fmt.Sprintf("story-%s-%d.png", kind, now.UnixMilli()))
		uri, err := p.blobs.PutObject(ctx, name, "image/png", bytes.NewReader(png))
		if err != nil {
			return out, fmt.Errorf("store %s story: %w", kind, err)
		}
		out = append(out, Story{Type: kind, URL: uri, Events: len(recs)})
	}
	return out, firstErr
}
