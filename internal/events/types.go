// Package events defines the core types shared across the ingestion, storage and
// presentation subsystems.
package events

import (
	"strings"
	"time"
)

// Default values applied to records that do not carry their own.
const (
	DefaultCity     = "Salvador"
	DefaultCategory = "Shows e Festas"

	// URLSeparator joins the source URLs of a merged record on the wire.
	URLSeparator = "|"
	// IDSeparator joins the identities of a merged record on the wire.
	IDSeparator = ","
)

// SourceRef ties one contributing record identity to the URL it was found at.
// ID is the database id once persisted and the external id before that.
type SourceRef struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// Record is a single listed event. Start is a naive local wall-clock value in
// Local; it is never converted to another zone on the way to storage.
type Record struct {
	ID         string
	ExternalID string `validate:"required,max=200"`
	Source     string `validate:"required"`
	City       string
	Title      string `validate:"required,max=300"`
	Start      time.Time
	Venue      string
	PriceText  string
	IsFree     bool
	Sources    []SourceRef `validate:"required,min=1,dive"`
	ImageURL   string
	Category   string
	Clicks     int64
	Raw        map[string]any
}

// URLs returns the source URLs in order.
func (r Record) URLs() []string {
	out := make([]string, 0, len(r.Sources))
	for _, src := range r.Sources {
		if src.URL == "" {
			continue
		}
		out = append(out, src.URL)
	}
	return out
}

// CanonicalURL is the first source URL, used for redirects.
func (r Record) CanonicalURL() string {
	for _, src := range r.Sources {
		if src.URL != "" {
			return src.URL
		}
	}
	return ""
}

// JoinedURL returns the source URLs joined with URLSeparator.
func (r Record) JoinedURL() string {
	return strings.Join(r.URLs(), URLSeparator)
}

// IDs returns one identity per source, parallel to URLs. Sources without an
// id take the record's own id.
func (r Record) IDs() []string {
	out := make([]string, 0, len(r.Sources))
	for _, src := range r.Sources {
		if src.URL == "" {
			continue
		}
		id := src.ID
		if id == "" {
			id = r.ID
		}
		out = append(out, id)
	}
	if len(out) == 0 && r.ID != "" {
		out = append(out, r.ID)
	}
	return out
}

// UniqueIDs returns IDs without repeats, in first-seen order.
func (r Record) UniqueIDs() []string {
	return Unique(r.IDs())
}

// Unique drops blank and repeated values, keeping first-seen order.
func Unique(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// JoinedIDs returns IDs joined with IDSeparator.
func (r Record) JoinedIDs() string {
	return strings.Join(r.IDs(), IDSeparator)
}

// Clone returns a deep copy so callers can derive new records without
// sharing slices or maps with the original.
func (r Record) Clone() Record {
	cp := r
	if r.Sources != nil {
		cp.Sources = append([]SourceRef(nil), r.Sources...)
	}
	if r.Raw != nil {
		cp.Raw = make(map[string]any, len(r.Raw))
		for k, v := range r.Raw {
			cp.Raw[k] = v
		}
	}
	return cp
}

// WithIdentity returns a copy owned by the given database id. Every source
// collapses into the single stored row, so all of them take the row id.
func (r Record) WithIdentity(id string) Record {
	cp := r.Clone()
	cp.ID = id
	for i := range cp.Sources {
		cp.Sources[i].ID = id
	}
	return cp
}

// SplitURLs splits a joined url column back into source refs owned by id.
func SplitURLs(joined, id string) []SourceRef {
	parts := strings.Split(joined, URLSeparator)
	out := make([]SourceRef, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, SourceRef{ID: id, URL: p})
	}
	return out
}

// SplitIDs splits a joined id parameter, dropping blanks.
func SplitIDs(joined string) []string {
	parts := strings.Split(joined, IDSeparator)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// SourceLabel names the ticketing platform behind a URL for display.
func SourceLabel(rawURL string) string {
	lower := strings.ToLower(rawURL)
	switch {
	case strings.Contains(lower, "sympla.com"):
		return "Sympla"
	case strings.Contains(lower, "elcabong.com"):
		return "El Cabong"
	case strings.Contains(lower, "instagram.com"):
		return "Instagram"
	default:
		return "Outro"
	}
}

// RunStatus mirrors the scrape_runs status column.
type RunStatus string

// Scrape run statuses persisted in scrape_runs.status.
const (
	RunRunning RunStatus = "running"
	RunSuccess RunStatus = "success"
	RunError   RunStatus = "error"
)

// ScrapeRun logs one ingestion pass over a source.
type ScrapeRun struct {
	ID            string     `json:"id"`
	Source        string     `json:"source"`
	City          string     `json:"city"`
	StartedAt     time.Time  `json:"started_at"`
	EndedAt       *time.Time `json:"ended_at,omitempty"`
	Status        RunStatus  `json:"status"`
	ItemsFetched  int        `json:"items_fetched"`
	ItemsValid    int        `json:"items_valid"`
	ItemsUpserted int        `json:"items_upserted"`
	ItemsInvalid  int        `json:"items_invalid"`
	ErrorMessage  string     `json:"error_message,omitempty"`
}

// RunCounters carries the item tallies reported when a run completes.
type RunCounters struct {
	Fetched  int
	Valid    int
	Upserted int
	Invalid  int
}
