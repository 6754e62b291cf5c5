package scraper

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/agenda-cultural-salvador/internal/caption"
	"github.com/JakeFAU/agenda-cultural-salvador/internal/events"
	"github.com/JakeFAU/agenda-cultural-salvador/internal/hash/sha256"
)

const page1 = `<html><body>
<div class="event">
  <h2>Show Ivete Sangalo</h2>
  <time datetime="2025-03-01T20:00:00">1 de março</time>
  <span class="venue">Arena Fonte Nova</span>
  <span class="price">R$ 120</span>
  <a class="ticket" href="/e/ivete">ingressos</a>
  <img src="/img/ivete.jpg">
</div>
<div class="event">
  <h2>Roda de   Samba</h2>
  <time>15 de março</time><span class="hour">19:30</span>
  <span class="venue">Pelourinho</span>
  <span class="price">Gratuito</span>
  <a class="ticket" href="/e/samba">ingressos</a>
</div>
<div class="event"><h2></h2><time>2 de março</time></div>
<a class="next" href="/page2">próxima</a>
</body></html>`

const page2 = `<html><body>
<div class="event"><h2>Peça Infantil</h2><time>em breve</time></div>
<div class="event">
  <h2>Jazz no MAM</h2>
  <time>22 de março 18h</time>
  <span class="price">Ingressos no Sympla</span>
  <a class="ticket" href="https://www.sympla.com.br/jazz">ingressos</a>
</div>
</body></html>`

type countingWaiter struct{ calls atomic.Int32 }

func (w *countingWaiter) Wait(context.Context, string) error {
	w.calls.Add(1)
	return nil
}

func listingServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/agenda", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(page1))
	})
	mux.HandleFunc("/page2", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(page2))
	})
	mux.HandleFunc("/broken", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newScraper(t *testing.T, waiter Waiter) *CollyScraper {
	t.Helper()
	s, err := New(Config{UserAgent: "agenda-test", Timeout: 5 * time.Second}, waiter,
		sha256.New(), caption.New(caption.DefaultConfig(), sha256.New()), nil)
	require.NoError(t, err)
	return s
}

func testSource(base string) Source {
	return Source{
		Name: "sympla",
		URL:  base + "/agenda",
		Selectors: Selectors{
			Item:  "div.event",
			Title: "h2",
			Date:  "time",
			Time:  ".hour",
			Venue: ".venue",
			Price: ".price",
			Link:  "a.ticket",
			Image: "img",
			Next:  "a.next",
		},
	}
}

func TestScrapeMapsItemsAndFollowsPagination(t *testing.T) {
	srv := listingServer(t)
	waiter := &countingWaiter{}
	s := newScraper(t, waiter)
	ref := time.Date(2025, 2, 20, 10, 0, 0, 0, events.Local)

	res, err := s.Scrape(context.Background(), testSource(srv.URL), ref)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Pages)
	assert.Equal(t, 5, res.Fetched)
	require.Len(t, res.Records, 3)
	require.Len(t, res.Invalid, 2)
	assert.True(t, errors.Is(res.Invalid[0], ErrNoTitle))
	assert.True(t, errors.Is(res.Invalid[1], ErrNoDate))
	assert.Equal(t, int32(2), waiter.calls.Load())

	ivete := res.Records[0]
	assert.Equal(t, "Show Ivete Sangalo", ivete.Title)
	assert.Equal(t, "2025-03-01T20:00:00", events.FormatNaive(ivete.Start))
	assert.Equal(t, "Arena Fonte Nova", ivete.Venue)
	assert.Equal(t, "R$ 120", ivete.PriceText)
	assert.False(t, ivete.IsFree)
	assert.Equal(t, srv.URL+"/e/ivete", ivete.CanonicalURL())
	assert.Equal(t, srv.URL+"/img/ivete.jpg", ivete.ImageURL)
	assert.Equal(t, "sympla", ivete.Source)
	assert.Equal(t, events.DefaultCity, ivete.City)
	assert.Equal(t, events.DefaultCategory, ivete.Category)

	sum, err := sha256.New().Hash([]byte(srv.URL + "/e/ivete"))
	require.NoError(t, err)
	assert.Equal(t, "sympla-"+sum[:32], ivete.ExternalID)
	require.NoError(t, ivete.Validate())

	samba := res.Records[1]
	assert.Equal(t, "Roda de Samba", samba.Title)
	assert.Equal(t, "2025-03-15T19:30:00", events.FormatNaive(samba.Start))
	assert.True(t, samba.IsFree)
	assert.Empty(t, samba.PriceText)
	assert.Empty(t, samba.ImageURL)

	jazz := res.Records[2]
	assert.Equal(t, "2025-03-22T18:00:00", events.FormatNaive(jazz.Start))
	assert.Equal(t, "Ver Sympla", jazz.PriceText)
	assert.Equal(t, "https://www.sympla.com.br/jazz", jazz.CanonicalURL())
}

func TestScrapeRespectsPageBudget(t *testing.T) {
	srv := listingServer(t)
	s := newScraper(t, nil)
	src := testSource(srv.URL)
	src.MaxPages = 1

	res, err := s.Scrape(context.Background(), src, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Pages)
	assert.Equal(t, 3, res.Fetched)
}

func TestScrapeReportsTransportFailure(t *testing.T) {
	srv := listingServer(t)
	s := newScraper(t, nil)
	src := testSource(srv.URL)
	src.URL = srv.URL + "/broken"

	_, err := s.Scrape(context.Background(), src, time.Now())
	assert.Error(t, err)
}

func TestScrapeValidatesSource(t *testing.T) {
	s := newScraper(t, nil)
	_, err := s.Scrape(context.Background(), Source{Name: "x", URL: "http://example.invalid"}, time.Now())
	assert.Error(t, err)
}

func TestScrapeCanceledContext(t *testing.T) {
	srv := listingServer(t)
	s := newScraper(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Scrape(ctx, testSource(srv.URL), time.Now())
	assert.Error(t, err)
}

func TestParseStart(t *testing.T) {
	t.Parallel()

	ref := time.Date(2025, 2, 20, 10, 0, 0, 0, events.Local)
	cases := []struct {
		name   string
		layout string
		item   Item
		want   string
		ok     bool
	}{
		{"datetime attribute", "", Item{DateAttr: "2025-04-02T21:00"}, "2025-04-02T21:00:00", true},
		{"layout", "02/01/2006 15:04", Item{DateText: "05/04/2025", TimeText: "22:15"}, "2025-04-05T22:15:00", true},
		{"layout date only", "02/01/2006", Item{DateText: "05/04/2025", TimeText: "22:15"}, "2025-04-05T00:00:00", true},
		{"portuguese with h", "", Item{DateText: "Sábado, 12 de abril às 21h30"}, "2025-04-12T21:30:00", true},
		{"portuguese default time", "", Item{DateText: "12 de abril"}, "2025-04-12T20:00:00", true},
		{"unreadable", "", Item{DateText: "em breve"}, "", false},
		{"empty", "", Item{}, "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := ParseStart(tc.layout, tc.item, ref)
			require.Equal(t, tc.ok, ok)
			if ok {
				assert.Equal(t, tc.want, events.FormatNaive(got))
			}
		})
	}
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(Config{}, nil, nil, caption.New(caption.DefaultConfig(), sha256.New()), nil)
	assert.Error(t, err)
	_, err = New(Config{}, nil, sha256.New(), nil, nil)
	assert.Error(t, err)
}
