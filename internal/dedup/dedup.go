// Package dedup collapses event records scraped from several sources into one
// record per real-world event.
package dedup

import (
	"fmt"
	"regexp"
	"sort"
	"unicode/utf8"

	"github.com/JakeFAU/agenda-cultural-salvador/internal/events"
)

// Config holds the heuristic thresholds, tuned for Salvador venue names.
type Config struct {
	// TitleWords is how many significant title words form the title key.
	TitleWords int `mapstructure:"title_words"`
	// MinWordLength is the shortest word, in runes, counted as significant.
	MinWordLength int `mapstructure:"min_word_length"`
	// VenueTokens is how many leading venue tokens form the venue key.
	VenueTokens int `mapstructure:"venue_tokens"`
	// VenueSuffixes are regexps removed from the folded venue.
	VenueSuffixes []string `mapstructure:"venue_suffixes"`
}

// DefaultConfig returns the thresholds used in production.
func DefaultConfig() Config {
	return Config{
		TitleWords:    3,
		MinWordLength: 3,
		VenueTokens:   3,
		VenueSuffixes: []string{
			`\s+-\s+salvador.*$`,
			`\s+-\s+ba\b.*$`,
			`\s+-\s+rio vermelho.*$`,
			`\s+-\s+pelourinho.*$`,
		},
	}
}

// Stats summarizes one Merge pass.
type Stats struct {
	Input  int `json:"input"`
	Output int `json:"output"`
	Merged int `json:"merged_groups"`
}

// Deduplicator groups and merges records. It holds no mutable state and is
// safe for concurrent use.
type Deduplicator struct {
	cfg      Config
	suffixes []*regexp.Regexp
}

// New compiles cfg. Non-positive thresholds take their defaults.
func New(cfg Config) (*Deduplicator, error) {
	def := DefaultConfig()
	if cfg.TitleWords <= 0 {
		cfg.TitleWords = def.TitleWords
	}
	if cfg.MinWordLength <= 0 {
		cfg.MinWordLength = def.MinWordLength
	}
	if cfg.VenueTokens <= 0 {
		cfg.VenueTokens = def.VenueTokens
	}
	if cfg.VenueSuffixes == nil {
		cfg.VenueSuffixes = def.VenueSuffixes
	}
	suffixes := make([]*regexp.Regexp, 0, len(cfg.VenueSuffixes))
	for _, pattern := range cfg.VenueSuffixes {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("compile venue suffix %q: %w", pattern, err)
		}
		suffixes = append(suffixes, re)
	}
	return &Deduplicator{cfg: cfg, suffixes: suffixes}, nil
}

// Merge returns one record per composite key, in the order each key was
// first seen. See MergeWithStats.
func (d *Deduplicator) Merge(records []events.Record) []events.Record {
	out, _ := d.MergeWithStats(records)
	return out
}

// MergeWithStats groups records by composite key. A group of one passes
// through unchanged. Larger groups are ordered by title length, longest
// first with ties kept in input order; the first member is the template for
// every field and the sources of all members are concatenated in that order.
// Inputs are never modified.
func (d *Deduplicator) MergeWithStats(records []events.Record) ([]events.Record, Stats) {
	order := make([]CompositeKey, 0, len(records))
	groups := make(map[CompositeKey][]events.Record, len(records))
	for _, r := range records {
		k := d.Key(r)
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], r)
	}

	stats := Stats{Input: len(records)}
	out := make([]events.Record, 0, len(order))
	for _, k := range order {
		members := groups[k]
		if len(members) == 1 {
			out = append(out, members[0].Clone())
			continue
		}
		out = append(out, mergeGroup(members))
		stats.Merged++
	}
	stats.Output = len(out)
	return out, stats
}

func mergeGroup(members []events.Record) events.Record {
	sorted := make([]events.Record, len(members))
	copy(sorted, members)
	sort.SliceStable(sorted, func(i, j int) bool {
		return utf8.RuneCountInString(sorted[i].Title) > utf8.RuneCountInString(sorted[j].Title)
	})

	merged := sorted[0].Clone()
	sources := make([]events.SourceRef, 0, len(sorted))
	for _, m := range sorted {
		for _, src := range m.Sources {
			if src.ID == "" {
				src.ID = firstNonEmpty(m.ID, m.ExternalID)
			}
			sources = append(sources, src)
		}
	}
	merged.Sources = sources
	return merged
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
