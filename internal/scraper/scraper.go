// Package scraper pulls event listings from ticketing sites with colly.
package scraper

import (
	"context"
	"time"

	"github.com/JakeFAU/agenda-cultural-salvador/internal/events"
)

// Selectors locate the fields of one listing item. Child selectors are
// relative to Item; an empty Link selector reads href from the item itself.
type Selectors struct {
	Item  string `mapstructure:"item"`
	Title string `mapstructure:"title"`
	Date  string `mapstructure:"date"`
	Time  string `mapstructure:"time"`
	Venue string `mapstructure:"venue"`
	Price string `mapstructure:"price"`
	Link  string `mapstructure:"link"`
	Image string `mapstructure:"image"`
	// Next points at the pagination link, if any.
	Next string `mapstructure:"next"`
}

// Source describes one listing page to scrape.
type Source struct {
	Name      string    `mapstructure:"name"`
	URL       string    `mapstructure:"url"`
	Selectors Selectors `mapstructure:"selectors"`
	// DateLayout is a Go time layout for the date text, e.g. "02/01/2006 15:04".
	// Empty means Portuguese "16 de janeiro" text with "21h" or "21:00" times.
	DateLayout string `mapstructure:"date_layout"`
	Category   string `mapstructure:"category"`
	City       string `mapstructure:"city"`
	MaxPages   int    `mapstructure:"max_pages"`
}

// Result is the outcome of scraping one source.
type Result struct {
	Source  string
	Pages   int
	Fetched int
	Records []events.Record
	Invalid []error
}

// Scraper fetches one source. ref anchors dates that omit the year.
type Scraper interface {
	Scrape(ctx context.Context, src Source, ref time.Time) (Result, error)
}

// Waiter throttles requests per host; see internal/policy/ratelimit.
type Waiter interface {
	Wait(ctx context.Context, url string) error
}

// Hasher produces a hex digest; see internal/hash/sha256.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// PriceClassifier maps listing price text to the free flag and display
// text; caption.Parser implements it.
type PriceClassifier interface {
	ClassifyPrice(value string) (isFree bool, priceText string)
}
