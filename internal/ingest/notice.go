package ingest

import (
	"strconv"
	"time"
)

// Kind names the ingestion path that produced a Notice.
type Kind string

// Ingestion paths.
const (
	KindCaption Kind = "caption"
	KindVision  Kind = "vision"
	KindScrape  Kind = "scrape"
)

// Notice is published after every ingestion that stored at least one event.
type Notice struct {
	Kind     Kind      `json:"kind"`
	Source   string    `json:"source"`
	RunID    string    `json:"run_id,omitempty"`
	Stored   int       `json:"stored"`
	Skipped  int       `json:"skipped"`
	EventIDs []string  `json:"external_ids,omitempty"`
	At       time.Time `json:"at"`
}

// Attributes lets subscribers filter without decoding the body.
func (n Notice) Attributes() map[string]string {
	attrs := map[string]string{
		"kind":   string(n.Kind),
		"source": n.Source,
		"stored": strconv.Itoa(n.Stored),
	}
	if n.RunID != "" {
		attrs["run_id"] = n.RunID
	}
	return attrs
}
