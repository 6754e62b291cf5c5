package caption

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/agenda-cultural-salvador/internal/events"
	"github.com/JakeFAU/agenda-cultural-salvador/internal/hash/sha256"
)

const agendaPost = "♫ Agenda de #Sexta, 16 de Janeiro ♫\n\n" +
	"Projeto: Baile da Massa Real\nLocal: Rio Vermelho\nHorário: 21h\n" +
	"_____\n" +
	"Atrações: Magary\nLocal: Mariposa\nQuanto: R$40\nHorário: 20h"

var ref = time.Date(2026, 1, 10, 15, 30, 0, 0, events.Local)

func newParser() *Parser {
	return New(DefaultConfig(), sha256.New())
}

func TestParseAgendaPost(t *testing.T) {
	t.Parallel()

	recs, err := newParser().Parse(agendaPost, "https://www.instagram.com/p/abc/", ref)
	require.NoError(t, err)
	require.Len(t, recs, 2)

	first := recs[0]
	assert.Equal(t, "Baile da Massa Real", first.Title)
	assert.Equal(t, "2026-01-16T21:00:00", events.FormatNaive(first.Start))
	assert.Equal(t, "Rio Vermelho", first.Venue)
	assert.False(t, first.IsFree)
	assert.Empty(t, first.PriceText)
	assert.Equal(t, "instagram", first.Source)
	assert.Equal(t, events.DefaultCategory, first.Category)
	assert.Equal(t, "https://www.instagram.com/p/abc/", first.CanonicalURL())

	second := recs[1]
	assert.Equal(t, "Magary", second.Title)
	assert.Equal(t, "2026-01-16T20:00:00", events.FormatNaive(second.Start))
	assert.Equal(t, "Mariposa", second.Venue)
	assert.Equal(t, "R$40", second.PriceText)
	assert.False(t, second.IsFree)

	for _, r := range recs {
		require.NoError(t, r.Validate())
	}
}

func TestParseExternalIDIsStable(t *testing.T) {
	t.Parallel()

	p := newParser()
	a, err := p.Parse(agendaPost, "", ref)
	require.NoError(t, err)
	b, err := p.Parse(agendaPost, "", ref.Add(5*time.Hour))
	require.NoError(t, err)
	require.Len(t, b, len(a))
	for i := range a {
		assert.Equal(t, a[i].ExternalID, b[i].ExternalID)
		assert.True(t, strings.HasPrefix(a[i].ExternalID, "instagram-"))
		assert.Len(t, a[i].ExternalID, len("instagram-")+32)
	}
	assert.NotEqual(t, a[0].ExternalID, a[1].ExternalID)
}

func TestParseFallsBackToReferenceDate(t *testing.T) {
	t.Parallel()

	now := time.Now().In(events.Local)
	recs, err := newParser().Parse("Projeto: Roda de Samba\nLocal: Pelourinho", "", now)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	y, m, d := recs[0].Start.Date()
	wy, wm, wd := now.Date()
	assert.Equal(t, []int{wy, int(wm), wd}, []int{y, int(m), d})
	assert.Equal(t, 20, recs[0].Start.Hour())
	assert.Equal(t, 0, recs[0].Start.Minute())
}

func TestParseUnknownMonthFallsBack(t *testing.T) {
	t.Parallel()

	recs, err := newParser().Parse("Dia 16 de Brumário\n\nProjeto: Forró\nHorário: 19h30", "", ref)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "2026-01-10T19:30:00", events.FormatNaive(recs[0].Start))
}

func TestParseProjetoWinsOverAtracoes(t *testing.T) {
	t.Parallel()

	recs, err := newParser().Parse("Atrações: Banda X\nProjeto: Festival Y\nLocal: Barra", "", ref)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "Festival Y", recs[0].Title)
}

func TestParsePriceClassification(t *testing.T) {
	t.Parallel()

	cases := []struct {
		quanto    string
		wantFree  bool
		wantPrice string
	}{
		{"Gratuito", true, ""},
		{"GRÁTIS até 22h", true, ""},
		{"Sympla", false, "Ver Sympla"},
		{"Ingressos no sympla.com.br", false, "Ver Sympla"},
		{"R$40", false, "R$40"},
	}
	for _, tc := range cases {
		t.Run(tc.quanto, func(t *testing.T) {
			recs, err := newParser().Parse("Projeto: Show\nQuanto: "+tc.quanto, "", ref)
			require.NoError(t, err)
			require.Len(t, recs, 1)
			assert.Equal(t, tc.wantFree, recs[0].IsFree)
			assert.Equal(t, tc.wantPrice, recs[0].PriceText)
		})
	}
}

func TestParseSegmentsOnSeparators(t *testing.T) {
	t.Parallel()

	text := "Projeto: A\n" + strings.Repeat("_", 10) + "\nProjeto: B\n─────\nProjeto: C\n____\nLocal: not a separator"
	blocks := Segment(text)
	require.Len(t, blocks, 3)

	recs, err := newParser().Parse(text, "", ref)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, "A", recs[0].Title)
	assert.Equal(t, "B", recs[1].Title)
	assert.Equal(t, "C", recs[2].Title)
	assert.Equal(t, "not a separator", recs[2].Venue)
}

func TestParseSkipsBlocksWithoutTitle(t *testing.T) {
	t.Parallel()

	recs, err := newParser().Parse("Local: Barra\nQuanto: R$10\n______\nSó texto solto", "", ref)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestParseHeaderBlockWithoutFields(t *testing.T) {
	t.Parallel()

	recs, err := newParser().Parse("♫ Agenda #Sábado ♫\nsem programação", "", ref)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestParseMissingInput(t *testing.T) {
	t.Parallel()

	_, err := newParser().Parse("   \n\t", "", ref)
	assert.True(t, errors.Is(err, ErrMissingInput))
}

func TestParseIgnoresInstagramChrome(t *testing.T) {
	t.Parallel()

	text := "agendassa\n3 h\nCurtido por fulano e outras pessoas\n" +
		"♫ 16 de Janeiro ♫\nProjeto: Sarau\nHorário: 21h30\n" +
		"1 curtida\nResponder\nAdicione um comentário...\n" +
		"Meta · Sobre · Blog · Carreiras · Ajuda\n© 2026 Instagram from Meta"
	recs, err := newParser().Parse(text, "", ref)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "Sarau", recs[0].Title)
	assert.Equal(t, "2026-01-16T21:30:00", events.FormatNaive(recs[0].Start))
}

func TestParseTruncatesLongTitles(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("á", TitleMaxRunes+20)
	recs, err := newParser().Parse("Projeto: "+long, "", ref)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, TitleMaxRunes, len([]rune(recs[0].Title)))
}

func TestParseTime(t *testing.T) {
	t.Parallel()

	cases := map[string][2]int{
		"21h":           {21, 0},
		"21h30":         {21, 30},
		"9h":            {9, 0},
		"a partir 22h":  {22, 0},
		"às 19 h 15":    {19, 15},
		"meia-noite":    {20, 0},
		"":              {20, 0},
		"25h":           {20, 0},
		"Portas 18h30!": {18, 30},
	}
	for in, want := range cases {
		h, m := ParseTime(in)
		assert.Equal(t, want, [2]int{h, m}, in)
	}
}

func TestBaseDate(t *testing.T) {
	t.Parallel()

	got, ok := BaseDate("Sábado, 5 de março", ref)
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, time.March, 5, 0, 0, 0, 0, events.Local), got)

	_, ok = BaseDate("31 de fevereiro", ref)
	assert.False(t, ok)

	_, ok = BaseDate("sem data", ref)
	assert.False(t, ok)
}

func TestParseBlockFieldPrecedence(t *testing.T) {
	t.Parallel()

	fields, ok := ParseBlock("Atração: Solo\n  Horario: 22h  \nobs: livre")
	require.True(t, ok)
	v, _ := fields.Get(FieldAtracoes)
	assert.Equal(t, "Solo", v)
	v, _ = fields.Get(FieldHorario)
	assert.Equal(t, "22h", v)
	assert.Len(t, fields, 2)

	_, ok = ParseBlock("Local: X")
	assert.False(t, ok)
}

func TestConfigPlatformsOverride(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Platforms = append(cfg.Platforms, Platform{Match: "shotgun", Display: "Ver Shotgun"})
	p := New(cfg, sha256.New())
	free, price := p.ClassifyPrice("Shotgun lote 1")
	assert.False(t, free)
	assert.Equal(t, "Ver Shotgun", price)
}
