// Package ingest turns captions, story screenshots and scraped listings into
// stored events. It owns the order of operations (parse, validate, dedup,
// upsert, notify) and the bookkeeping of scrape runs; the individual steps
// live in their own packages.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/agenda-cultural-salvador/internal/caption"
	"github.com/JakeFAU/agenda-cultural-salvador/internal/dedup"
	"github.com/JakeFAU/agenda-cultural-salvador/internal/events"
	"github.com/JakeFAU/agenda-cultural-salvador/internal/metrics"
	"github.com/JakeFAU/agenda-cultural-salvador/internal/publisher"
	"github.com/JakeFAU/agenda-cultural-salvador/internal/scraper"
	"github.com/JakeFAU/agenda-cultural-salvador/internal/store"
	"github.com/JakeFAU/agenda-cultural-salvador/internal/vision"
)

var (
	// ErrVisionDisabled is returned when no vision model is configured.
	ErrVisionDisabled = errors.New("vision extraction is not configured")
	// ErrScraperDisabled is returned when no listing scraper is configured.
	ErrScraperDisabled = errors.New("scraper is not configured")
	// ErrUnknownSource is returned when a scrape names a source that is not configured.
	ErrUnknownSource = errors.New("unknown scrape source")
	// ErrMissingChannel is returned when a vision upload has no channel name.
	ErrMissingChannel = errors.New("channel name is required")
	// ErrNoImages is returned when a vision upload carries no images.
	ErrNoImages = errors.New("at least one image is required")
)

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
}

// IDGenerator produces scrape run identifiers.
type IDGenerator interface {
	NewID() (string, error)
}

// Vision extracts records from screenshots; vision.Extractor implements it.
type Vision interface {
	Extract(ctx context.Context, channel, logoURL string, images []vision.Image, today time.Time) (vision.Batch, error)
}

// Config controls Service behavior.
type Config struct {
	// Topic receives a Notice after each ingestion; empty disables publishing.
	Topic string
	// Sources are the listing pages scraped by ScrapeAll.
	Sources []scraper.Source
	// Concurrency bounds how many sources are scraped at once.
	Concurrency int
	// LogoPrefix is the blob path prefix for uploaded channel logos.
	LogoPrefix string
	// City is recorded on scrape runs.
	City string
}

// Deps groups the collaborators of a Service. Vision, Scraper, Runs, Blobs
// and Publisher are optional.
type Deps struct {
	Events    store.EventRepository
	Runs      store.ScrapeRunRepository
	Blobs     store.BlobStore
	Parser    *caption.Parser
	Dedup     *dedup.Deduplicator
	Scraper   scraper.Scraper
	Vision    Vision
	Publisher publisher.Publisher
	Clock     Clock
	IDs       IDGenerator
}

// Service runs the ingestion paths.
type Service struct {
	deps   Deps
	cfg    Config
	logger *zap.Logger
}

// New validates deps and returns a Service.
func New(deps Deps, cfg Config, logger *zap.Logger) (*Service, error) {
	if deps.Events == nil {
		return nil, errors.New("event repository is required")
	}
	if deps.Parser == nil {
		return nil, errors.New("caption parser is required")
	}
	if deps.Dedup == nil {
		return nil, errors.New("deduplicator is required")
	}
	if deps.Clock == nil {
		return nil, errors.New("clock is required")
	}
	if deps.Scraper != nil && (deps.Runs == nil || deps.IDs == nil) {
		return nil, errors.New("scraping requires a run repository and id generator")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 2
	}
	if cfg.LogoPrefix == "" {
		cfg.LogoPrefix = "instagram-logos"
	}
	if cfg.City == "" {
		cfg.City = events.DefaultCity
	}
	return &Service{deps: deps, cfg: cfg, logger: logger.Named("ingest")}, nil
}

// Sources returns the configured scrape sources.
func (s *Service) Sources() []scraper.Source {
	out := make([]scraper.Source, len(s.cfg.Sources))
	copy(out, s.cfg.Sources)
	return out
}

// CaptionResult reports what IngestCaption stored.
type CaptionResult struct {
	Parsed  []events.Record
	Stored  []events.Record
	Skipped int
}

// IngestCaption parses one post caption and inserts the events that are not
// stored yet. Existing external ids are left untouched.
func (s *Service) IngestCaption(ctx context.Context, text, postURL string) (CaptionResult, error) {
	parsed, err := s.deps.Parser.Parse(text, postURL, s.deps.Clock.Now())
	if err != nil {
		return CaptionResult{}, fmt.Errorf("parse caption: %w", err)
	}
	valid, invalid := events.Partition(parsed)
	for _, err := range invalid {
		s.logger.Warn("dropping invalid caption event", zap.Error(err))
	}
	metrics.ObserveParsed(s.deps.Parser.Source(), len(valid), len(invalid))
	if len(valid) == 0 {
		return CaptionResult{}, caption.ErrNoEvents
	}

	ids := make([]string, 0, len(valid))
	for _, r := range valid {
		ids = append(ids, r.ExternalID)
	}
	existing, err := s.deps.Events.ExistingExternalIDs(ctx, ids)
	if err != nil {
		return CaptionResult{}, fmt.Errorf("lookup existing events: %w", err)
	}
	fresh := make([]events.Record, 0, len(valid))
	for _, r := range valid {
		if _, ok := existing[r.ExternalID]; ok {
			continue
		}
		fresh = append(fresh, r)
	}
	result := CaptionResult{Parsed: valid, Stored: fresh, Skipped: len(valid) - len(fresh)}
	s.logger.Info("caption parsed",
		zap.Int("events", len(valid)),
		zap.Int("existing", result.Skipped),
	)
	if len(fresh) == 0 {
		return result, nil
	}

	n, err := s.deps.Events.UpsertEvents(ctx, fresh, store.ConflictIgnore)
	if err != nil {
		return CaptionResult{}, fmt.Errorf("store caption events: %w", err)
	}
	metrics.ObserveUpserted(s.deps.Parser.Source(), n)
	s.notify(ctx, Notice{
		Kind:     KindCaption,
		Source:   s.deps.Parser.Source(),
		Stored:   n,
		Skipped:  result.Skipped,
		EventIDs: externalIDs(fresh),
	})
	return result, nil
}

// Logo is an optional channel avatar uploaded with a vision batch.
type Logo struct {
	MimeType string
	Data     io.Reader
}

// VisionResult reports what IngestVision stored.
type VisionResult struct {
	Stored       []events.Record
	Skipped      int
	FailedImages int
	LogoURL      string
}

// IngestVision extracts events from story screenshots of channel and
// upserts them, overwriting earlier extractions of the same event.
func (s *Service) IngestVision(ctx context.Context, channel string, images []vision.Image, logo *Logo) (VisionResult, error) {
	if s.deps.Vision == nil {
		return VisionResult{}, ErrVisionDisabled
	}
	channel = strings.TrimSpace(channel)
	if channel == "" {
		return VisionResult{}, ErrMissingChannel
	}
	if len(images) == 0 {
		return VisionResult{}, ErrNoImages
	}

	now := s.deps.Clock.Now()
	logoURL := s.uploadLogo(ctx, channel, logo, now)

	batch, err := s.deps.Vision.Extract(ctx, channel, logoURL, images, now)
	if err != nil {
		return VisionResult{}, fmt.Errorf("extract events: %w", err)
	}
	valid, invalid := events.Partition(batch.Records)
	metrics.ObserveParsed(channel, len(valid), len(invalid)+batch.Skipped)
	result := VisionResult{
		Skipped:      batch.Skipped + len(invalid),
		FailedImages: batch.FailedImages,
		LogoURL:      logoURL,
	}
	if len(valid) == 0 {
		return result, nil
	}

	n, err := s.deps.Events.UpsertEvents(ctx, valid, store.ConflictOverwrite)
	if err != nil {
		return VisionResult{}, fmt.Errorf("store vision events: %w", err)
	}
	metrics.ObserveUpserted(channel, n)
	result.Stored = valid
	s.logger.Info("vision batch stored",
		zap.String("channel", channel),
		zap.Int("images", len(images)),
		zap.Int("stored", n),
		zap.Int("skipped", result.Skipped),
	)
	s.notify(ctx, Notice{
		Kind:     KindVision,
		Source:   channel,
		Stored:   n,
		Skipped:  result.Skipped,
		EventIDs: externalIDs(valid),
	})
	return result, nil
}

// uploadLogo stores the logo and returns its URL. Failures are logged and
// leave the events without an image.
func (s *Service) uploadLogo(ctx context.Context, channel string, logo *Logo, now time.Time) string {
	if logo == nil || logo.Data == nil || s.deps.Blobs == nil {
		return ""
	}
	ext := "png"
	if _, sub, ok := strings.Cut(logo.MimeType, "/"); ok && sub != "" {
		ext = sub
	}
	name := fmt.Sprintf("%s-%d.%s", strings.TrimPrefix(channel, "@"), now.UnixMilli(), ext)
	uri, err := s.deps.Blobs.PutObject(ctx, path.Join(s.cfg.LogoPrefix, name), logo.MimeType, logo.Data)
	if err != nil {
		s.logger.Error("logo upload failed", zap.String("channel", channel), zap.Error(err))
		return ""
	}
	return uri
}

// Dedup merges records without storing anything.
func (s *Service) Dedup(records []events.Record) ([]events.Record, dedup.Stats) {
	out, stats := s.deps.Dedup.MergeWithStats(records)
	metrics.ObserveDedup(stats.Merged)
	return out, stats
}

// ScrapeAll scrapes every configured source, at most Concurrency at a time.
// A failing source does not stop the others; the returned runs are in
// source order.
func (s *Service) ScrapeAll(ctx context.Context) ([]events.ScrapeRun, error) {
	runs := make([]events.ScrapeRun, len(s.cfg.Sources))
	var (
		mu   sync.Mutex
		errs []error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for i, src := range s.cfg.Sources {
		g.Go(func() error {
			run, err := s.scrape(gctx, src)
			runs[i] = run
			if err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", src.Name, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return runs, errors.Join(errs...)
}

// ScrapeSource runs one configured source by name.
func (s *Service) ScrapeSource(ctx context.Context, name string) (events.ScrapeRun, error) {
	for _, src := range s.cfg.Sources {
		if strings.EqualFold(src.Name, name) {
			return s.scrape(ctx, src)
		}
	}
	return events.ScrapeRun{}, fmt.Errorf("%w: %s", ErrUnknownSource, name)
}

func (s *Service) scrape(ctx context.Context, src scraper.Source) (events.ScrapeRun, error) {
	if s.deps.Scraper == nil {
		return events.ScrapeRun{}, ErrScraperDisabled
	}
	id, err := s.deps.IDs.NewID()
	if err != nil {
		return events.ScrapeRun{}, fmt.Errorf("generate run id: %w", err)
	}
	city := src.City
	if city == "" {
		city = s.cfg.City
	}
	run := events.ScrapeRun{
		ID:        id,
		Source:    src.Name,
		City:      city,
		StartedAt: s.deps.Clock.Now(),
		Status:    events.RunRunning,
	}
	if err := s.deps.Runs.StartRun(ctx, run); err != nil {
		return run, fmt.Errorf("start run: %w", err)
	}
	logger := s.logger.With(zap.String("run_id", id), zap.String("source", src.Name))
	logger.Info("scrape run started", zap.String("url", src.URL))

	counters, scrapeErr := s.scrapeAndStore(ctx, src, run.StartedAt, logger)
	ended := s.deps.Clock.Now()
	run.EndedAt = &ended
	run.ItemsFetched = counters.Fetched
	run.ItemsValid = counters.Valid
	run.ItemsUpserted = counters.Upserted
	run.ItemsInvalid = counters.Invalid
	run.Status = events.RunSuccess
	if scrapeErr != nil {
		run.Status = events.RunError
		run.ErrorMessage = scrapeErr.Error()
	}

	// The run row is closed even when the scrape was canceled.
	completeCtx := context.WithoutCancel(ctx)
	if err := s.deps.Runs.CompleteRun(completeCtx, id, ended, run.Status, counters, run.ErrorMessage); err != nil {
		logger.Error("complete run failed", zap.Error(err))
		return run, errors.Join(scrapeErr, fmt.Errorf("complete run: %w", err))
	}
	metrics.ObserveScrapeRun(src.Name, string(run.Status))
	logger.Info("scrape run finished",
		zap.String("status", string(run.Status)),
		zap.Int("fetched", counters.Fetched),
		zap.Int("valid", counters.Valid),
		zap.Int("upserted", counters.Upserted),
		zap.Int("invalid", counters.Invalid),
	)
	if scrapeErr != nil {
		return run, scrapeErr
	}
	if counters.Upserted > 0 {
		s.notify(ctx, Notice{
			Kind:   KindScrape,
			Source: src.Name,
			RunID:  id,
			Stored: counters.Upserted,
		})
	}
	return run, nil
}

func (s *Service) scrapeAndStore(
	ctx context.Context,
	src scraper.Source,
	ref time.Time,
	logger *zap.Logger,
) (events.RunCounters, error) {
	var counters events.RunCounters
	result, err := s.deps.Scraper.Scrape(ctx, src, ref)
	if err != nil {
		return counters, fmt.Errorf("scrape: %w", err)
	}
	valid, invalid := events.Partition(result.Records)
	counters.Fetched = result.Fetched
	counters.Valid = len(valid)
	counters.Invalid = len(result.Invalid) + len(invalid)
	for _, err := range invalid {
		logger.Debug("invalid scraped record", zap.Error(err))
	}
	metrics.ObserveParsed(src.Name, counters.Valid, counters.Invalid)
	if len(valid) == 0 {
		if result.Fetched == 0 {
			return counters, errors.New("no items were fetched")
		}
		return counters, nil
	}

	merged, _ := s.Dedup(valid)
	n, err := s.deps.Events.UpsertEvents(ctx, merged, store.ConflictOverwrite)
	if err != nil {
		return counters, fmt.Errorf("store scraped events: %w", err)
	}
	counters.Upserted = n
	metrics.ObserveUpserted(src.Name, n)
	return counters, nil
}

func (s *Service) notify(ctx context.Context, n Notice) {
	if s.cfg.Topic == "" || s.deps.Publisher == nil {
		return
	}
	n.At = s.deps.Clock.Now()
	id, err := s.deps.Publisher.Publish(ctx, s.cfg.Topic, n)
	if err != nil {
		metrics.ObservePublish("error")
		s.logger.Error("publish notice failed", zap.String("kind", string(n.Kind)), zap.Error(err))
		return
	}
	metrics.ObservePublish("ok")
	s.logger.Debug("notice published", zap.String("kind", string(n.Kind)), zap.String("message_id", id))
}

func externalIDs(records []events.Record) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.ExternalID)
	}
	return out
}
