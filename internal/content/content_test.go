package content

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/agenda-cultural-salvador/internal/events"
	"github.com/JakeFAU/agenda-cultural-salvador/internal/render"
	"github.com/JakeFAU/agenda-cultural-salvador/internal/storage/memory"
	"github.com/JakeFAU/agenda-cultural-salvador/internal/store"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

// Thursday.
var thursday = time.Date(2026, 1, 15, 8, 0, 0, 0, events.Local)

func at(day, hour int) time.Time {
	return time.Date(2026, 1, day, hour, 0, 0, 0, events.Local)
}

func rec(id, title string, start time.Time, free bool, price string) events.Record {
	return events.Record{
		ExternalID: id,
		Source:     "sympla",
		Title:      title,
		Start:      start,
		Venue:      "Pelourinho",
		IsFree:     free,
		PriceText:  price,
		Sources:    []events.SourceRef{{URL: "https://www.sympla.com.br/" + id}},
	}
}

func seed(t *testing.T, records ...events.Record) *memory.EventStore {
	t.Helper()
	s := memory.NewEventStore(nil)
	_, err := s.UpsertEvents(context.Background(), records, store.ConflictIgnore)
	require.NoError(t, err)
	return s
}

func clickByTitle(t *testing.T, s *memory.EventStore, title string, n int) {
	t.Helper()
	all, err := s.ListUpcoming(context.Background(), store.ListFilter{})
	require.NoError(t, err)
	for _, r := range all {
		if r.Title == title {
			for i := 0; i < n; i++ {
				require.NoError(t, s.IncrementClicks(context.Background(), r.ID))
			}
			return
		}
	}
	t.Fatalf("no event %q", title)
}

func TestCopyFormatting(t *testing.T) {
	t.Parallel()

	r := rec("a", "Baile da Massa Real", at(17, 21), false, "")
	assert.Equal(t, "17 de Janeiro", FormatDate(r.Start))
	assert.Equal(t, "21:00", FormatTime(r.Start))
	assert.Equal(t, "Sábado", Weekday(r.Start))

	single := SingleEventCopy(r)
	assert.True(t, strings.HasPrefix(single, "🎭 Baile da Massa Real\n\n📍 Pelourinho\n📅 Sábado, 17 de Janeiro • 21:00\n\n💰 Consulte"))

	today := TodayListCopy([]events.Record{r, rec("b", "Samba", at(17, 19), true, "")})
	assert.Contains(t, today, "1️⃣ Baile da Massa Real\n   📍 Pelourinho • 21:00 • Consulte")
	assert.Contains(t, today, "2️⃣ Samba\n   📍 Pelourinho • 19:00 • Grátis")
	assert.True(t, strings.HasPrefix(today, "O que fazer em Salvador HOJE 👇"))

	weekend := WeekendListCopy([]events.Record{r})
	assert.Contains(t, weekend, "1️⃣ Baile da Massa Real\n   Sábado • 21:00 • Pelourinho • Consulte")

	free := FreeEventsListCopy([]events.Record{rec("c", "Jazz", at(15, 18), true, "")})
	assert.Contains(t, free, "1️⃣ Jazz\n   📍 Pelourinho • 18:00")

	assert.True(t, strings.HasPrefix(TodayListCopy(nil), "Nenhum evento encontrado para hoje"))
	assert.True(t, strings.HasPrefix(WeekendListCopy(nil), "Nenhum evento encontrado para o fim de semana"))
	assert.True(t, strings.HasPrefix(FreeEventsListCopy(nil), "Nenhum evento gratuito"))
}

func TestWeekendRange(t *testing.T) {
	t.Parallel()

	from, to := WeekendRange(thursday)
	assert.Equal(t, at(17, 0), from)
	assert.Equal(t, at(19, 0), to)

	from, _ = WeekendRange(at(17, 10))
	assert.Equal(t, at(24, 0), from, "saturday looks at next weekend")
}

func TestQueries(t *testing.T) {
	t.Parallel()

	s := seed(t,
		rec("t1", "Paid Today", at(15, 20), false, "R$ 20"),
		rec("t2", "Free Today", at(15, 18), true, ""),
		rec("t3", "Popular Today", at(15, 21), false, "R$ 50"),
		rec("w1", "Saturday Show", at(17, 20), false, "R$ 30"),
		rec("w2", "Sunday Show", at(18, 16), true, ""),
		rec("m1", "Monday Show", at(19, 20), false, "R$ 30"),
		rec("f1", "Far Away", at(30, 20), false, "R$ 30"),
	)
	clickByTitle(t, s, "Popular Today", 3)
	clickByTitle(t, s, "Sunday Show", 5)
	q := NewQueries(s, fixedClock{now: thursday})
	ctx := context.Background()

	today, err := q.Today(ctx)
	require.NoError(t, err)
	require.Len(t, today, 3)
	assert.Equal(t, []string{"Free Today", "Popular Today", "Paid Today"}, titles(today))

	weekend, err := q.Weekend(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Sunday Show", "Saturday Show"}, titles(weekend))

	free, err := q.FreeToday(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Free Today"}, titles(free))

	highlight, ok, err := q.Highlight(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Sunday Show", highlight.Title)
}

func TestBuildBundleOnThursday(t *testing.T) {
	t.Parallel()

	s := seed(t,
		rec("t1", "Roda de Samba", at(15, 20), true, ""),
		rec("w1", "Saturday Show", at(17, 20), false, "R$ 30"),
	)
	b := NewBuilder(NewQueries(s, fixedClock{now: thursday}), "https://agenda.example.com/", nil)
	bundle, err := b.Build(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "2026-01-15", bundle.Date)
	got := make([]string, 0, len(bundle.Options))
	for _, o := range bundle.Options {
		got = append(got, o.Title)
	}
	assert.Equal(t, []string{"Evento em Destaque", "Hoje em Salvador", "Fim de Semana", "Gratuitos Hoje"}, got)
	assert.True(t, strings.HasPrefix(bundle.Options[1].ImageURL, "https://agenda.example.com/api/generate-card?"))
	assert.Contains(t, bundle.Options[1].ImageURL, "type=list")
	assert.Contains(t, bundle.Options[1].ImageURL, "venue=1+eventos")

	dir := t.TempDir()
	path, err := WriteBundle(filepath.Join(dir, "content", "pending"), bundle)
	require.NoError(t, err)
	assert.Equal(t, "2026-01-15.json", filepath.Base(path))
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Len(t, decoded["options"], 4)
}

func TestBuildBundleSkipsWeekendOtherDays(t *testing.T) {
	t.Parallel()

	s := seed(t, rec("w1", "Saturday Show", at(17, 20), false, "R$ 30"))
	friday := thursday.AddDate(0, 0, 1)
	bundle, err := NewBuilder(NewQueries(s, fixedClock{now: friday}), "", nil).Build(context.Background())
	require.NoError(t, err)
	for _, o := range bundle.Options {
		assert.NotEqual(t, "Fim de Semana", o.Title)
	}
}

type fakeRenderer struct{ kinds []render.StoryType }

func (f *fakeRenderer) Card(context.Context, render.Card) ([]byte, error) { return []byte("png"), nil }

func (f *fakeRenderer) Story(_ context.Context, kind render.StoryType, items []render.StoryItem) ([]byte, error) {
	f.kinds = append(f.kinds, kind)
	return []byte("png"), nil
}

func TestStoryPublisher(t *testing.T) {
	t.Parallel()

	s := seed(t, rec("t1", "Roda de Samba", at(15, 20), false, "R$ 10"))
	blobs := memory.NewBlobStore()
	r := &fakeRenderer{}
	p := NewStoryPublisher(NewQueries(s, fixedClock{now: thursday}), r, blobs, "", nil)

	stories, err := p.Publish(context.Background(), []render.StoryType{render.StoryToday, render.StoryFree})
	require.NoError(t, err)
	require.Len(t, stories, 1)
	assert.Equal(t, render.StoryToday, stories[0].Type)
	assert.True(t, strings.HasPrefix(stories[0].URL, "memory://instagram-stories/story-today-"))
	assert.Equal(t, []render.StoryType{render.StoryToday}, r.kinds)
	assert.Equal(t, 1, blobs.Len())
}

func titles(records []events.Record) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.Title)
	}
	return out
}
