package vision

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/agenda-cultural-salvador/internal/events"
	"github.com/JakeFAU/agenda-cultural-salvador/internal/hash/sha256"
	"github.com/JakeFAU/agenda-cultural-salvador/internal/metrics"
)

type fakeModel struct {
	mu      sync.Mutex
	answers []string
	errs    []error
	prompts []string
}

func (m *fakeModel) Generate(_ context.Context, prompt string, _ []byte, _ string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := len(m.prompts)
	m.prompts = append(m.prompts, prompt)
	var err error
	if i < len(m.errs) {
		err = m.errs[i]
	}
	if err != nil {
		return "", err
	}
	if i < len(m.answers) {
		return m.answers[i], nil
	}
	return "[]", nil
}

func newExtractor(t *testing.T, model Model, cfg Config) *Extractor {
	t.Helper()
	metrics.Init()
	e, err := New(model, cfg, sha256.New(), nil)
	require.NoError(t, err)
	return e
}

var today = time.Date(2026, 1, 14, 10, 0, 0, 0, events.Local)

func TestParseResponseFindsArray(t *testing.T) {
	t.Parallel()

	got, err := ParseResponse("Aqui estão os eventos:\n```json\n[{\"title\":\"Samba\",\"date\":\"16/01/2026\",\"time\":\"21:00\"}]\n```")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Samba", got[0].Title)

	_, err = ParseResponse("nenhum evento")
	assert.ErrorIs(t, err, ErrNoJSON)

	_, err = ParseResponse("[{broken")
	assert.Error(t, err)
}

func TestParseStart(t *testing.T) {
	t.Parallel()

	start, ok := ParseStart("16/01/2026", "21:30")
	require.True(t, ok)
	assert.Equal(t, "2026-01-16T21:30:00", events.FormatNaive(start))

	start, ok = ParseStart("16/01/2026", "")
	require.True(t, ok)
	assert.Equal(t, "2026-01-16T19:00:00", events.FormatNaive(start))

	_, ok = ParseStart("31/02/2026", "")
	assert.False(t, ok)
	_, ok = ParseStart("amanhã", "20:00")
	assert.False(t, ok)
}

func TestToRecordNormalizesPrice(t *testing.T) {
	t.Parallel()

	e := newExtractor(t, &fakeModel{}, Config{})
	free, err := e.ToRecord("@agendasalvador", "https://cdn/logo.png", Extracted{
		Title: "Teatro na Praça", Date: "17/01/2026", Time: "18:00", Venue: "Campo Grande", Price: "Grátis",
	})
	require.NoError(t, err)
	assert.True(t, free.IsFree)
	assert.Empty(t, free.PriceText)
	assert.Equal(t, "Teatro", free.Category)
	assert.Equal(t, "https://www.instagram.com/agendasalvador/", free.CanonicalURL())
	assert.Equal(t, "https://cdn/logo.png", free.ImageURL)
	assert.Regexp(t, `^instagram-vision-@agendasalvador-[0-9a-f]{32}$`, free.ExternalID)
	require.NoError(t, free.Validate())

	consult, err := e.ToRecord("agendasalvador", "", Extracted{Title: "Jazz", Date: "17/01/2026", Price: "Consulte"})
	require.NoError(t, err)
	assert.False(t, consult.IsFree)
	assert.Empty(t, consult.PriceText)

	_, err = e.ToRecord("agendasalvador", "", Extracted{Title: "", Date: "17/01/2026"})
	assert.Error(t, err)
}

func TestExtractThreadsPreviousDate(t *testing.T) {
	t.Parallel()

	model := &fakeModel{answers: []string{
		`[{"title":"Show de Samba","date":"16/01/2026","time":"21:00","venue":"Pelourinho","price":"R$ 20"}]`,
		`[{"title":"Exposição Bahia","date":"16/01/2026","time":"","venue":"MAM","price":"Gratuito"}]`,
	}}
	e := newExtractor(t, model, Config{})
	batch, err := e.Extract(context.Background(), "agendasalvador", "", []Image{
		{Name: "1.jpg", MimeType: "image/jpeg", Data: []byte{1}},
		{Name: "2.jpg", MimeType: "image/jpeg", Data: []byte{2}},
	}, today)
	require.NoError(t, err)
	require.Len(t, batch.Records, 2)
	assert.Equal(t, "Shows e Festas", batch.Records[0].Category)
	assert.Equal(t, "Arte e Cultura", batch.Records[1].Category)

	require.Len(t, model.prompts, 2)
	assert.NotContains(t, model.prompts[0], "16/01/2026")
	assert.Contains(t, model.prompts[1], "16/01/2026")
}

func TestExtractSkipsFailedImage(t *testing.T) {
	t.Parallel()

	model := &fakeModel{
		errs:    []error{errors.New("boom")},
		answers: []string{"", `[{"title":"Forró","date":"18/01/2026"}]`},
	}
	e := newExtractor(t, model, Config{FailureThreshold: 5})
	batch, err := e.Extract(context.Background(), "agendasalvador", "", []Image{{Name: "a"}, {Name: "b"}}, today)
	require.NoError(t, err)
	assert.Equal(t, 1, batch.FailedImages)
	require.Len(t, batch.Records, 1)
	assert.Equal(t, "Forró", batch.Records[0].Title)
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	t.Parallel()

	boom := errors.New("upstream down")
	model := &fakeModel{errs: []error{boom, boom, boom, boom}}
	e := newExtractor(t, model, Config{FailureThreshold: 2, OpenTimeout: time.Hour})

	images := []Image{{Name: "1"}, {Name: "2"}, {Name: "3"}, {Name: "4"}}
	batch, err := e.Extract(context.Background(), "agendasalvador", "", images, today)
	require.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, 2, batch.FailedImages)
	assert.Len(t, model.prompts, 2)
}
