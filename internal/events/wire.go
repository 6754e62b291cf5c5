package events

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Payload is the JSON shape of a Record, matching the events table columns.
// Multi-source records keep the joined `url` column for backward
// compatibility and expose the parallel id list alongside it.
type Payload struct {
	ID            string         `json:"id,omitempty"`
	ExternalID    string         `json:"external_id"`
	Source        string         `json:"source"`
	City          string         `json:"city,omitempty"`
	Title         string         `json:"title"`
	StartDatetime string         `json:"start_datetime"`
	VenueName     *string        `json:"venue_name"`
	PriceText     *string        `json:"price_text"`
	IsFree        bool           `json:"is_free"`
	URL           string         `json:"url"`
	IDs           string         `json:"ids,omitempty"`
	ImageURL      *string        `json:"image_url,omitempty"`
	Category      string         `json:"category,omitempty"`
	ClickCount    int64          `json:"click_count"`
	RawPayload    map[string]any `json:"raw_payload,omitempty"`
}

// Payload converts r to its wire form.
func (r Record) Payload() Payload {
	p := Payload{
		ID:         r.ID,
		ExternalID: r.ExternalID,
		Source:     r.Source,
		City:       r.City,
		Title:      r.Title,
		VenueName:  optional(r.Venue),
		PriceText:  optional(r.PriceText),
		IsFree:     r.IsFree,
		URL:        r.JoinedURL(),
		ImageURL:   optional(r.ImageURL),
		Category:   r.Category,
		ClickCount: r.Clicks,
		RawPayload: r.Raw,
	}
	if !r.Start.IsZero() {
		p.StartDatetime = FormatNaive(r.Start)
	}
	if ids := r.IDs(); len(ids) > 1 && !hasBlank(ids) {
		p.IDs = strings.Join(ids, IDSeparator)
	}
	return p
}

// Record converts a wire payload back into a Record. When the payload carries
// a parallel id list it must line up with the joined urls.
func (p Payload) Record() (Record, error) {
	r := Record{
		ID:         p.ID,
		ExternalID: p.ExternalID,
		Source:     p.Source,
		City:       p.City,
		Title:      p.Title,
		Venue:      deref(p.VenueName),
		PriceText:  deref(p.PriceText),
		IsFree:     p.IsFree,
		ImageURL:   deref(p.ImageURL),
		Category:   p.Category,
		Clicks:     p.ClickCount,
		Raw:        p.RawPayload,
	}
	if p.StartDatetime != "" {
		start, err := ParseNaive(p.StartDatetime)
		if err != nil {
			return Record{}, err
		}
		r.Start = start
	}
	owner := p.ID
	if owner == "" {
		owner = p.ExternalID
	}
	r.Sources = SplitURLs(p.URL, owner)
	if p.IDs != "" {
		ids := SplitIDs(p.IDs)
		if len(ids) != len(r.Sources) {
			return Record{}, fmt.Errorf("ids/url mismatch: %d ids for %d urls", len(ids), len(r.Sources))
		}
		for i := range r.Sources {
			r.Sources[i].ID = ids[i]
		}
	}
	return r, nil
}

// MarshalJSON encodes the record as its Payload.
func (r Record) MarshalJSON() ([]byte, error) {
	data, err := json.Marshal(r.Payload())
	if err != nil {
		return nil, fmt.Errorf("marshal event payload: %w", err)
	}
	return data, nil
}

// UnmarshalJSON decodes a Payload into the record.
func (r *Record) UnmarshalJSON(data []byte) error {
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("unmarshal event payload: %w", err)
	}
	rec, err := p.Record()
	if err != nil {
		return err
	}
	*r = rec
	return nil
}

func hasBlank(values []string) bool {
	for _, v := range values {
		if v == "" {
			return true
		}
	}
	return false
}

func optional(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
