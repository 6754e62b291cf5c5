package dedup

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/JakeFAU/agenda-cultural-salvador/internal/events"
)

// CompositeKey groups records that likely describe the same event.
type CompositeKey struct {
	Title string
	Date  string
	Venue string
}

func (k CompositeKey) String() string {
	return fmt.Sprintf("%s|%s|%s", k.Title, k.Date, k.Venue)
}

var nonAlnum = regexp.MustCompile(`[^\p{L}\p{N}]+`)

// Fold lowercases s and strips diacritics.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.ToLower(folded)
}

// TitleKey keeps the first significant words of the folded title. Words
// shorter than the configured minimum are skipped.
func (d *Deduplicator) TitleKey(title string) string {
	words := strings.Fields(nonAlnum.ReplaceAllString(Fold(title), " "))
	kept := make([]string, 0, d.cfg.TitleWords)
	for _, w := range words {
		if len(kept) == d.cfg.TitleWords {
			break
		}
		if utf8.RuneCountInString(w) < d.cfg.MinWordLength {
			continue
		}
		kept = append(kept, w)
	}
	return strings.Join(kept, " ")
}

// VenueKey drops city and neighborhood qualifiers from the folded venue and
// keeps its first tokens.
func (d *Deduplicator) VenueKey(venue string) string {
	v := Fold(venue)
	for _, re := range d.suffixes {
		v = re.ReplaceAllString(v, "")
	}
	tokens := strings.Fields(v)
	if len(tokens) > d.cfg.VenueTokens {
		tokens = tokens[:d.cfg.VenueTokens]
	}
	return strings.Join(tokens, " ")
}

// DateKey is the calendar day of start in the local zone.
func DateKey(r events.Record) string {
	if r.Start.IsZero() {
		return ""
	}
	return events.Day(r.Start).Format("2006-01-02")
}

// Key computes the composite grouping key for r.
func (d *Deduplicator) Key(r events.Record) CompositeKey {
	return CompositeKey{
		Title: d.TitleKey(r.Title),
		Date:  DateKey(r),
		Venue: d.VenueKey(r.Venue),
	}
}
