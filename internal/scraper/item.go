package scraper

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/agenda-cultural-salvador/internal/caption"
	"github.com/JakeFAU/agenda-cultural-salvador/internal/events"
)

const idHexLength = 32

var (
	// ErrNoTitle marks a listing item without a title.
	ErrNoTitle = errors.New("listing item has no title")
	// ErrNoDate marks a listing item whose date could not be read.
	ErrNoDate = errors.New("listing item has no readable date")

	clockPattern = regexp.MustCompile(`\b(\d{1,2}):(\d{2})\b`)
	spaces       = regexp.MustCompile(`\s+`)
)

// Item is the raw text of one listing entry.
type Item struct {
	Title    string
	DateAttr string
	DateText string
	TimeText string
	Venue    string
	Price    string
	Link     string
	Image    string
}

func (s *CollyScraper) mapItem(src Source, e *colly.HTMLElement, ref time.Time) (events.Record, error) {
	sel := src.Selectors
	item := Item{
		Title:    clean(e.ChildText(sel.Title)),
		DateAttr: childAttr(e, sel.Date, "datetime"),
		DateText: childText(e, sel.Date),
		TimeText: childText(e, sel.Time),
		Venue:    childText(e, sel.Venue),
		Price:    childText(e, sel.Price),
		Image:    absolute(e, childAttr(e, sel.Image, "src")),
	}
	if sel.Link == "" {
		item.Link = absolute(e, e.Attr("href"))
	} else {
		item.Link = absolute(e, e.ChildAttr(sel.Link, "href"))
	}
	return s.buildRecord(src, item, ref)
}

func (s *CollyScraper) buildRecord(src Source, item Item, ref time.Time) (events.Record, error) {
	if item.Title == "" {
		return events.Record{}, fmt.Errorf("%s: %w", src.Name, ErrNoTitle)
	}
	start, ok := ParseStart(src.DateLayout, item, ref)
	if !ok {
		return events.Record{}, fmt.Errorf("%s %q: %w", src.Name, item.Title, ErrNoDate)
	}

	link := item.Link
	if link == "" {
		link = src.URL
	}
	key := item.Link
	if key == "" {
		key = fmt.Sprintf("%s-%s-%s", item.Title, events.FormatNaive(start), item.Venue)
	}
	sum, err := s.hasher.Hash([]byte(key))
	if err != nil {
		return events.Record{}, fmt.Errorf("hash external id: %w", err)
	}
	if len(sum) > idHexLength {
		sum = sum[:idHexLength]
	}
	externalID := src.Name + "-" + sum

	var (
		isFree    bool
		priceText string
	)
	if item.Price != "" {
		isFree, priceText = s.prices.ClassifyPrice(item.Price)
	}
	return events.Record{
		ExternalID: externalID,
		Source:     src.Name,
		City:       firstNonEmpty(src.City, events.DefaultCity),
		Title:      item.Title,
		Start:      start,
		Venue:      item.Venue,
		PriceText:  priceText,
		IsFree:     isFree,
		Sources:    []events.SourceRef{{ID: externalID, URL: link}},
		ImageURL:   item.Image,
		Category:   firstNonEmpty(src.Category, events.DefaultCategory),
	}, nil
}

// ParseStart resolves an item's start time. A datetime attribute wins, then
// the source's layout, then Portuguese "16 de janeiro" dates with "21h" or
// "21:00" times. Dates without a time start at 20:00.
func ParseStart(layout string, item Item, ref time.Time) (time.Time, bool) {
	if item.DateAttr != "" {
		if t, err := events.ParseNaive(item.DateAttr); err == nil {
			return t, true
		}
	}
	text := strings.TrimSpace(item.DateText + " " + item.TimeText)
	if text == "" {
		return time.Time{}, false
	}
	if layout != "" {
		if t, err := time.ParseInLocation(layout, text, events.Local); err == nil {
			return t, true
		}
		if t, err := time.ParseInLocation(layout, item.DateText, events.Local); err == nil {
			return t, true
		}
	}
	day, ok := caption.BaseDate(text, ref)
	if !ok {
		return time.Time{}, false
	}
	hour, minute := caption.ParseTime(text)
	if m := clockPattern.FindStringSubmatch(text); m != nil {
		h, _ := strconv.Atoi(m[1])
		mm, _ := strconv.Atoi(m[2])
		if h <= 23 && mm <= 59 {
			hour, minute = h, mm
		}
	}
	return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, events.Local), true
}

func childText(e *colly.HTMLElement, selector string) string {
	if selector == "" {
		return ""
	}
	return clean(e.ChildText(selector))
}

func childAttr(e *colly.HTMLElement, selector, attr string) string {
	if selector == "" {
		return ""
	}
	return strings.TrimSpace(e.ChildAttr(selector, attr))
}

func absolute(e *colly.HTMLElement, raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	return e.Request.AbsoluteURL(raw)
}

func clean(s string) string {
	return strings.TrimSpace(spaces.ReplaceAllString(s, " "))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
