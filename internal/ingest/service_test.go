package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/agenda-cultural-salvador/internal/caption"
	"github.com/JakeFAU/agenda-cultural-salvador/internal/dedup"
	"github.com/JakeFAU/agenda-cultural-salvador/internal/events"
	"github.com/JakeFAU/agenda-cultural-salvador/internal/hash/sha256"
	pubmemory "github.com/JakeFAU/agenda-cultural-salvador/internal/publisher/memory"
	"github.com/JakeFAU/agenda-cultural-salvador/internal/scraper"
	"github.com/JakeFAU/agenda-cultural-salvador/internal/storage/memory"
	"github.com/JakeFAU/agenda-cultural-salvador/internal/store"
	"github.com/JakeFAU/agenda-cultural-salvador/internal/vision"
)

const agendaPost = "♫ Agenda de #Sexta, 16 de Janeiro ♫\n\n" +
	"Projeto: Baile da Massa Real\nLocal: Rio Vermelho\nHorário: 21h\n" +
	"_____\n" +
	"Atrações: Magary\nLocal: Mariposa\nQuanto: R$40\nHorário: 20h"

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type seqIDs struct {
	mu sync.Mutex
	n  int
}

func (g *seqIDs) NewID() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("run-%d", g.n), nil
}

type fakeScraper struct {
	results map[string]scraper.Result
	errs    map[string]error
}

func (f *fakeScraper) Scrape(_ context.Context, src scraper.Source, _ time.Time) (scraper.Result, error) {
	if err := f.errs[src.Name]; err != nil {
		return scraper.Result{Source: src.Name}, err
	}
	return f.results[src.Name], nil
}

type fakeVision struct {
	batch   vision.Batch
	err     error
	logoURL string
}

func (f *fakeVision) Extract(_ context.Context, _ string, logoURL string, _ []vision.Image, _ time.Time) (vision.Batch, error) {
	f.logoURL = logoURL
	return f.batch, f.err
}

type fixture struct {
	svc    *Service
	events *memory.EventStore
	runs   *memory.RunStore
	blobs  *memory.BlobStore
	pub    *pubmemory.Publisher
}

var now = time.Date(2026, 1, 10, 15, 30, 0, 0, events.Local)

func newFixture(t *testing.T, deps Deps, cfg Config) fixture {
	t.Helper()
	d, err := dedup.New(dedup.DefaultConfig())
	require.NoError(t, err)
	f := fixture{
		events: memory.NewEventStore(nil),
		runs:   memory.NewRunStore(),
		blobs:  memory.NewBlobStore(),
		pub:    pubmemory.New(),
	}
	deps.Events = f.events
	deps.Runs = f.runs
	deps.Blobs = f.blobs
	deps.Publisher = f.pub
	deps.Parser = caption.New(caption.DefaultConfig(), sha256.New())
	deps.Dedup = d
	deps.Clock = fixedClock{now: now}
	deps.IDs = &seqIDs{}
	if cfg.Topic == "" {
		cfg.Topic = "agenda-ingest"
	}
	f.svc, err = New(deps, cfg, nil)
	require.NoError(t, err)
	return f
}

func scraped(source, title, venue, link string, start time.Time) events.Record {
	return events.Record{
		ExternalID: source + "-" + strings.ReplaceAll(strings.ToLower(title), " ", "-"),
		Source:     source,
		City:       events.DefaultCity,
		Title:      title,
		Venue:      venue,
		Start:      start,
		Sources:    []events.SourceRef{{URL: link}},
		Category:   events.DefaultCategory,
	}
}

func TestIngestCaptionSkipsExisting(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Deps{}, Config{})
	ctx := context.Background()

	first, err := f.svc.IngestCaption(ctx, agendaPost, "https://www.instagram.com/p/abc/")
	require.NoError(t, err)
	assert.Len(t, first.Stored, 2)
	assert.Zero(t, first.Skipped)

	second, err := f.svc.IngestCaption(ctx, agendaPost, "https://www.instagram.com/p/abc/")
	require.NoError(t, err)
	assert.Empty(t, second.Stored)
	assert.Equal(t, 2, second.Skipped)

	msgs := f.pub.ByTopic("agenda-ingest")
	require.Len(t, msgs, 1)
	assert.Equal(t, "caption", msgs[0].Attributes["kind"])
	assert.Equal(t, "2", msgs[0].Attributes["stored"])

	counts, err := f.events.CountBySource(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts["instagram"])
}

func TestIngestCaptionErrors(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Deps{}, Config{})
	_, err := f.svc.IngestCaption(context.Background(), "   ", "")
	assert.ErrorIs(t, err, caption.ErrMissingInput)

	_, err = f.svc.IngestCaption(context.Background(), "bom dia salvador", "")
	assert.ErrorIs(t, err, caption.ErrNoEvents)
}

func TestIngestVisionOverwritesAndUploadsLogo(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 1, 16, 19, 0, 0, 0, events.Local)
	rec := events.Record{
		ExternalID: "instagram-vision-agenda-abc",
		Source:     "agenda",
		Title:      "Exposição",
		Start:      start,
		Sources:    []events.SourceRef{{URL: "https://www.instagram.com/agenda/"}},
	}
	fv := &fakeVision{batch: vision.Batch{Records: []events.Record{rec}, Skipped: 1}}
	f := newFixture(t, Deps{Vision: fv}, Config{})
	ctx := context.Background()

	res, err := f.svc.IngestVision(ctx, "@agenda", []vision.Image{{Name: "1.jpg"}},
		&Logo{MimeType: "image/jpeg", Data: strings.NewReader("logo")})
	require.NoError(t, err)
	assert.Len(t, res.Stored, 1)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, fmt.Sprintf("memory://instagram-logos/agenda-%d.jpeg", now.UnixMilli()), res.LogoURL)
	assert.Equal(t, res.LogoURL, fv.logoURL)
	assert.Equal(t, 1, f.blobs.Len())

	fv.batch.Records[0].Title = "Exposição Nova"
	_, err = f.svc.IngestVision(ctx, "@agenda", []vision.Image{{Name: "1.jpg"}}, nil)
	require.NoError(t, err)
	list, err := f.events.ListUpcoming(ctx, store.ListFilter{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Exposição Nova", list[0].Title)
}

func TestIngestVisionValidation(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Deps{}, Config{})
	_, err := f.svc.IngestVision(context.Background(), "agenda", []vision.Image{{}}, nil)
	assert.ErrorIs(t, err, ErrVisionDisabled)

	g := newFixture(t, Deps{Vision: &fakeVision{}}, Config{})
	_, err = g.svc.IngestVision(context.Background(), " ", []vision.Image{{}}, nil)
	assert.ErrorIs(t, err, ErrMissingChannel)
	_, err = g.svc.IngestVision(context.Background(), "agenda", nil, nil)
	assert.ErrorIs(t, err, ErrNoImages)

	h := newFixture(t, Deps{Vision: &fakeVision{err: vision.ErrUnavailable}}, Config{})
	_, err = h.svc.IngestVision(context.Background(), "agenda", []vision.Image{{}}, nil)
	assert.ErrorIs(t, err, vision.ErrUnavailable)
}

func TestScrapeAllRecordsRuns(t *testing.T) {
	t.Parallel()

	day := time.Date(2026, 1, 17, 20, 0, 0, 0, events.Local)
	fs := &fakeScraper{
		results: map[string]scraper.Result{
			"sympla": {
				Source:  "sympla",
				Fetched: 3,
				Records: []events.Record{
					scraped("sympla", "Show Ivete Sangalo", "Arena Fonte Nova", "https://www.sympla.com.br/a", day),
					scraped("sympla", "Show Ivete Sangalo Especial", "Arena Fonte Nova - Salvador", "https://www.sympla.com.br/b", day),
					scraped("sympla", "Orquestra Afrosinfônica", "Teatro Castro Alves", "https://www.sympla.com.br/c", day),
				},
				Invalid: []error{errors.New("no title")},
			},
		},
		errs: map[string]error{"elcabong": errors.New("connection refused")},
	}
	f := newFixture(t, Deps{Scraper: fs}, Config{Sources: []scraper.Source{
		{Name: "sympla", URL: "https://www.sympla.com.br/eventos/salvador-ba"},
		{Name: "elcabong", URL: "https://elcabong.com.br/agenda"},
	}})

	runs, err := f.svc.ScrapeAll(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "elcabong")
	require.Len(t, runs, 2)

	assert.Equal(t, events.RunSuccess, runs[0].Status)
	assert.Equal(t, 3, runs[0].ItemsFetched)
	assert.Equal(t, 3, runs[0].ItemsValid)
	assert.Equal(t, 2, runs[0].ItemsUpserted)
	assert.Equal(t, 1, runs[0].ItemsInvalid)
	assert.Equal(t, events.RunError, runs[1].Status)
	assert.Contains(t, runs[1].ErrorMessage, "connection refused")

	stored, err := f.runs.ListRuns(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	for _, run := range stored {
		assert.NotEqual(t, events.RunRunning, run.Status)
		assert.NotNil(t, run.EndedAt)
	}

	last, err := f.runs.LastSuccess(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "sympla", last.Source)

	list, err := f.events.ListUpcoming(context.Background(), store.ListFilter{})
	require.NoError(t, err)
	require.Len(t, list, 2)
	byTitle := map[string]events.Record{}
	for _, r := range list {
		byTitle[r.Title] = r
	}
	require.Contains(t, byTitle, "Show Ivete Sangalo Especial")
	assert.Len(t, byTitle["Show Ivete Sangalo Especial"].Sources, 2)

	msgs := f.pub.ByTopic("agenda-ingest")
	require.Len(t, msgs, 1)
	assert.Equal(t, "scrape", msgs[0].Attributes["kind"])
}

func TestScrapeSourceUnknown(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Deps{Scraper: &fakeScraper{}}, Config{})
	_, err := f.svc.ScrapeSource(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrUnknownSource)
}

func TestNoticeAttributes(t *testing.T) {
	t.Parallel()

	n := Notice{Kind: KindScrape, Source: "sympla", RunID: "run-1", Stored: 4}
	assert.Equal(t, map[string]string{
		"kind": "scrape", "source": "sympla", "stored": "4", "run_id": "run-1",
	}, n.Attributes())
}
