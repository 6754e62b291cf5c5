package events

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRecord() Record {
	return Record{
		ID:         "row-1",
		ExternalID: "sympla-abc",
		Source:     "sympla",
		City:       DefaultCity,
		Title:      "Show Ivete Sangalo",
		Start:      time.Date(2025, 3, 1, 20, 0, 0, 0, Local),
		Venue:      "Arena Fonte Nova",
		PriceText:  "R$ 120",
		Sources: []SourceRef{
			{ID: "row-1", URL: "https://www.sympla.com.br/a"},
			{ID: "row-2", URL: "https://elcabong.com.br/b"},
		},
		Category: DefaultCategory,
	}
}

func TestNaiveRoundTripKeepsWallClock(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 1, 16, 21, 0, 0, 0, Local)
	s := FormatNaive(start)
	require.Equal(t, "2026-01-16T21:00:00", s)

	got, err := ParseNaive(s)
	require.NoError(t, err)
	assert.True(t, got.Equal(start))

	short, err := ParseNaive("2026-01-16T21:00")
	require.NoError(t, err)
	assert.True(t, short.Equal(start))

	_, err = ParseNaive("16/01/2026")
	assert.Error(t, err)
}

func TestFromWallClockIgnoresZone(t *testing.T) {
	t.Parallel()

	scanned := time.Date(2026, 1, 16, 21, 0, 0, 0, time.UTC)
	got := FromWallClock(scanned)
	assert.Equal(t, "2026-01-16T21:00:00", FormatNaive(got))
	assert.Equal(t, time.Date(2026, 1, 16, 0, 0, 0, 0, Local), Day(got))
}

func TestJoinedURLAndIDsStayParallel(t *testing.T) {
	t.Parallel()

	r := sampleRecord()
	assert.Equal(t, "https://www.sympla.com.br/a|https://elcabong.com.br/b", r.JoinedURL())
	assert.Equal(t, "row-1,row-2", r.JoinedIDs())
	assert.Equal(t, "https://www.sympla.com.br/a", r.CanonicalURL())

	single := Record{ID: "row-9", Sources: []SourceRef{{URL: "https://x"}}}
	assert.Equal(t, "row-9", single.JoinedIDs())
}

func TestWithIdentityOwnsAllSources(t *testing.T) {
	t.Parallel()

	r := sampleRecord()
	owned := r.WithIdentity("row-7")
	assert.Equal(t, "row-7,row-7", owned.JoinedIDs())
	assert.Equal(t, []string{"row-7"}, owned.UniqueIDs())
	assert.Equal(t, "row-1,row-2", r.JoinedIDs(), "original must not change")
}

func TestSourceLabel(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"https://www.sympla.com.br/evento/1": "Sympla",
		"https://elcabong.com.br/agenda":     "El Cabong",
		"https://www.instagram.com/p/abc":    "Instagram",
		"https://example.com":                "Outro",
	}
	for in, want := range cases {
		assert.Equal(t, want, SourceLabel(in), in)
	}
}

func TestPayloadJSONRoundTrip(t *testing.T) {
	t.Parallel()

	r := sampleRecord()
	data, err := json.Marshal(r)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"url":"https://www.sympla.com.br/a|https://elcabong.com.br/b"`)
	assert.Contains(t, string(data), `"ids":"row-1,row-2"`)
	assert.Contains(t, string(data), `"start_datetime":"2025-03-01T20:00:00"`)

	var back Record
	require.NoError(t, json.Unmarshal(data, &back))
	if diff := cmp.Diff(r, back); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestPayloadRejectsMisalignedIDs(t *testing.T) {
	t.Parallel()

	p := Payload{ExternalID: "x", URL: "https://a|https://b", IDs: "1"}
	_, err := p.Record()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	require.NoError(t, sampleRecord().Validate())

	missingTitle := sampleRecord()
	missingTitle.Title = ""
	assert.True(t, errors.Is(missingTitle.Validate(), ErrInvalidRecord))

	freeWithPrice := sampleRecord()
	freeWithPrice.IsFree = true
	assert.True(t, errors.Is(freeWithPrice.Validate(), ErrInvalidRecord))

	noSources := sampleRecord()
	noSources.Sources = nil
	assert.True(t, errors.Is(noSources.Validate(), ErrInvalidRecord))

	valid, invalid := Partition([]Record{sampleRecord(), missingTitle})
	assert.Len(t, valid, 1)
	assert.Len(t, invalid, 1)
}
