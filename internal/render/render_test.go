package render

import (
	"context"
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCardHTMLSingle(t *testing.T) {
	t.Parallel()

	doc, err := CardHTML(Card{
		Title:    "Baile da Massa Real <ao vivo>",
		Venue:    "Rio Vermelho",
		Date:     "16 de Janeiro",
		Time:     "21:00",
		ImageURL: "https://cdn.example.com/massa.jpg",
	})
	require.NoError(t, err)
	assert.Contains(t, doc, "Baile da Massa Real &lt;ao vivo&gt;")
	assert.Contains(t, doc, "16 de Janeiro • 21:00")
	assert.Contains(t, doc, "Consulte", "empty price falls back")
	assert.Contains(t, doc, `src="https://cdn.example.com/massa.jpg"`)
	assert.Contains(t, doc, "width:1080px;height:1080px")
	assert.Contains(t, doc, Handle)
	assert.NotContains(t, doc, "AGENDA")
}

func TestCardHTMLDefaultsAndList(t *testing.T) {
	t.Parallel()

	doc, err := CardHTML(Card{})
	require.NoError(t, err)
	assert.Contains(t, doc, "Evento em Salvador")
	assert.Contains(t, doc, "📍 Salvador")

	list, err := CardHTML(Card{Type: CardList, Title: "Hoje em Salvador", Venue: "5 eventos"})
	require.NoError(t, err)
	assert.Contains(t, list, "AGENDA")
	assert.Contains(t, list, "hoje em salvador")
	assert.Contains(t, list, "<b>5</b>")
}

func TestStoryHTML(t *testing.T) {
	t.Parallel()

	items := make([]StoryItem, 0, 7)
	for i := 0; i < 7; i++ {
		items = append(items, StoryItem{Title: "Evento " + string(rune('A'+i)), Date: "16/01", Time: "20:00", Venue: "Pelourinho"})
	}
	doc, err := StoryHTML(StoryWeekend, items)
	require.NoError(t, err)
	assert.Contains(t, doc, "FIM DE SEMANA")
	assert.Contains(t, doc, "#f093fb")
	assert.Equal(t, MaxStoryEvents, strings.Count(doc, `class="event"`))
	assert.Contains(t, doc, "Evento E")
	assert.NotContains(t, doc, "Evento F")
	assert.Contains(t, doc, "width:1080px;height:1920px")

	empty, err := StoryHTML(StoryFree, nil)
	require.NoError(t, err)
	assert.Contains(t, empty, "Sem eventos")
	assert.Contains(t, empty, "GRATUITOS")
}

func TestParseStoryType(t *testing.T) {
	t.Parallel()

	assert.Equal(t, StoryHighlight, ParseStoryType("Highlight"))
	assert.Equal(t, StoryToday, ParseStoryType("unknown"))
	assert.Equal(t, "HOJE", StoryType("nope").Theme().Title)
}

func TestDataURLRoundTrip(t *testing.T) {
	t.Parallel()

	u := DataURL("<p>olá</p>")
	require.True(t, strings.HasPrefix(u, "data:text/html;charset=utf-8;base64,"))
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(u, "data:text/html;charset=utf-8;base64,"))
	require.NoError(t, err)
	assert.Equal(t, "<p>olá</p>", string(raw))
}

func TestNewChromeLimiter(t *testing.T) {
	t.Parallel()

	_, err := NewChrome(Config{MaxParallel: -1}, nil)
	assert.Error(t, err)

	c, err := NewChrome(Config{MaxParallel: 2}, nil)
	require.NoError(t, err)
	defer c.Close()
	assert.Equal(t, 2, cap(c.limiter))

	require.NoError(t, c.acquire(context.Background()))
	require.NoError(t, c.acquire(context.Background()))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, c.acquire(ctx))
	c.release()
	c.release()
}

func TestNoopRenderer(t *testing.T) {
	t.Parallel()

	_, err := Noop{}.Card(context.Background(), Card{})
	assert.ErrorIs(t, err, ErrDisabled)
	_, err = Noop{}.Story(context.Background(), StoryToday, nil)
	assert.ErrorIs(t, err, ErrDisabled)
}
