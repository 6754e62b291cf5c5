// Package caption turns the free text of an Instagram agenda post into event
// records. Parsing is pure: the reference date is an argument and nothing is
// read from or written to the outside world.
package caption

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/JakeFAU/agenda-cultural-salvador/internal/events"
)

var (
	// ErrMissingInput is returned when there is no caption text at all.
	ErrMissingInput = errors.New("caption text is required")
	// ErrNoEvents is reported by callers when a caption parsed to nothing.
	ErrNoEvents = errors.New(`no events found in post; make sure the text includes event details like "Projeto:", "Atrações:", "Local:"`)
)

// TitleMaxRunes bounds machine-extracted titles.
const TitleMaxRunes = 100

const (
	defaultHour   = 20
	defaultMinute = 0
	idHexLength   = 32
)

var (
	baseDatePattern = regexp.MustCompile(`(?i)(\d{1,2})\s+de\s+(\p{L}+)`)
	separator       = regexp.MustCompile(`_{5,}|[─━]{5,}`)
	timePattern     = regexp.MustCompile(`(?i)(\d{1,2})\s*h\s*(\d{2})?`)
)

var months = map[string]time.Month{
	"janeiro":   time.January,
	"fevereiro": time.February,
	"março":     time.March,
	"marco":     time.March,
	"abril":     time.April,
	"maio":      time.May,
	"junho":     time.June,
	"julho":     time.July,
	"agosto":    time.August,
	"setembro":  time.September,
	"outubro":   time.October,
	"novembro":  time.November,
	"dezembro":  time.December,
}

// Hasher produces a hex digest; see internal/hash/sha256.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Platform maps a ticketing platform mentioned in a price line to the text
// shown in its place.
type Platform struct {
	Match   string `mapstructure:"match"`
	Display string `mapstructure:"display"`
}

// Config controls the constant parts of a parsed record.
type Config struct {
	Source       string     `mapstructure:"source"`
	DefaultURL   string     `mapstructure:"default_url"`
	Category     string     `mapstructure:"category"`
	City         string     `mapstructure:"city"`
	FreeKeywords []string   `mapstructure:"free_keywords"`
	Platforms    []Platform `mapstructure:"platforms"`
}

// DefaultConfig returns the settings used for the Salvador agenda posts.
func DefaultConfig() Config {
	return Config{
		Source:       "instagram",
		DefaultURL:   "https://instagram.com",
		Category:     events.DefaultCategory,
		City:         events.DefaultCity,
		FreeKeywords: []string{"gratuito", "grátis", "gratis", "free"},
		Platforms:    []Platform{{Match: "sympla", Display: "Ver Sympla"}},
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Source == "" {
		c.Source = def.Source
	}
	if c.DefaultURL == "" {
		c.DefaultURL = def.DefaultURL
	}
	if c.Category == "" {
		c.Category = def.Category
	}
	if c.City == "" {
		c.City = def.City
	}
	if len(c.FreeKeywords) == 0 {
		c.FreeKeywords = def.FreeKeywords
	}
	if c.Platforms == nil {
		c.Platforms = def.Platforms
	}
	return c
}

// Parser converts caption text into records.
type Parser struct {
	cfg    Config
	hasher Hasher
}

// New builds a Parser. Zero config values fall back to DefaultConfig.
func New(cfg Config, hasher Hasher) *Parser {
	return &Parser{cfg: cfg.withDefaults(), hasher: hasher}
}

// Source is the source label stamped on parsed records.
func (p *Parser) Source() string {
	return p.cfg.Source
}

// Parse extracts every event block of text. ref supplies the year and the
// fallback date. postURL may be empty. An empty result is not an error.
func (p *Parser) Parse(text, postURL string, ref time.Time) ([]events.Record, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrMissingInput
	}
	text = strings.ReplaceAll(text, "\r\n", "\n")
	if postURL = strings.TrimSpace(postURL); postURL == "" {
		postURL = p.cfg.DefaultURL
	}

	base, ok := BaseDate(text, ref)
	if !ok {
		base = events.Day(ref)
	}

	var out []events.Record
	for _, block := range Segment(StripNoise(text)) {
		fields, ok := ParseBlock(eventSection(block))
		if !ok {
			continue
		}
		rec, err := p.build(fields, base, postURL)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// BaseDate finds the first "<day> de <month>" in text and places it in ref's
// year. ok is false when there is no match, the month name is unknown or the
// day does not exist in that month; later matches are not consulted.
func BaseDate(text string, ref time.Time) (time.Time, bool) {
	m := baseDatePattern.FindStringSubmatch(text)
	if m == nil {
		return time.Time{}, false
	}
	month, ok := months[strings.ToLower(m[2])]
	if !ok {
		return time.Time{}, false
	}
	day, err := strconv.Atoi(m[1])
	if err != nil {
		return time.Time{}, false
	}
	year := ref.In(events.Local).Year()
	date := time.Date(year, month, day, 0, 0, 0, 0, events.Local)
	if day < 1 || date.Month() != month {
		return time.Time{}, false
	}
	return date, true
}

// Segment splits text on runs of five or more underscores or box-drawing
// dashes and drops blank segments.
func Segment(text string) []string {
	parts := separator.Split(text, -1)
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if strings.TrimSpace(part) == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}

// eventSection drops the header of blocks that open with a decorated title
// (♫ or a hashtag) so only the field lines are parsed.
func eventSection(block string) string {
	if !strings.ContainsAny(block, "♫#") {
		return block
	}
	lines := strings.Split(block, "\n")
	for i, line := range lines {
		if _, _, ok := matchField(strings.TrimSpace(line)); ok {
			return strings.Join(lines[i:], "\n")
		}
	}
	return ""
}

// ParseTime reads "21h" or "21h30" style times. Missing or out of range
// values yield 20:00.
func ParseTime(s string) (hour, minute int) {
	m := timePattern.FindStringSubmatch(s)
	if m == nil {
		return defaultHour, defaultMinute
	}
	h, err := strconv.Atoi(m[1])
	if err != nil || h > 23 {
		return defaultHour, defaultMinute
	}
	mm := 0
	if m[2] != "" {
		mm, err = strconv.Atoi(m[2])
		if err != nil || mm > 59 {
			return defaultHour, defaultMinute
		}
	}
	return h, mm
}

// ClassifyPrice maps a "Quanto:" value to the free flag and display text.
func (p *Parser) ClassifyPrice(value string) (isFree bool, priceText string) {
	lower := strings.ToLower(value)
	for _, kw := range p.cfg.FreeKeywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			return true, ""
		}
	}
	for _, platform := range p.cfg.Platforms {
		if platform.Match != "" && strings.Contains(lower, strings.ToLower(platform.Match)) {
			return false, platform.Display
		}
	}
	return false, value
}

func (p *Parser) build(fields Fields, base time.Time, postURL string) (events.Record, error) {
	title, ok := fields.Get(FieldProjeto)
	if !ok {
		if title, ok = fields.Get(FieldAtracoes); !ok {
			title = "Evento"
		}
	}
	title = truncateRunes(title, TitleMaxRunes)

	hour, minute := defaultHour, defaultMinute
	if horario, ok := fields.Get(FieldHorario); ok {
		hour, minute = ParseTime(horario)
	}
	start := time.Date(base.Year(), base.Month(), base.Day(), hour, minute, 0, 0, events.Local)

	venue, _ := fields.Get(FieldLocal)
	var (
		isFree    bool
		priceText string
	)
	if quanto, ok := fields.Get(FieldQuanto); ok {
		isFree, priceText = p.ClassifyPrice(quanto)
	}

	externalID, err := p.externalID(title, start, venue)
	if err != nil {
		return events.Record{}, err
	}
	return events.Record{
		ExternalID: externalID,
		Source:     p.cfg.Source,
		City:       p.cfg.City,
		Title:      title,
		Start:      start,
		Venue:      venue,
		PriceText:  priceText,
		IsFree:     isFree,
		Sources:    []events.SourceRef{{ID: externalID, URL: postURL}},
		Category:   p.cfg.Category,
	}, nil
}

// externalID derives a fixed-length id from title, naive start and venue so
// re-parsing the same post produces the same upsert key.
func (p *Parser) externalID(title string, start time.Time, venue string) (string, error) {
	key := fmt.Sprintf("%s-%s-%s", title, events.FormatNaive(start), venue)
	sum, err := p.hasher.Hash([]byte(key))
	if err != nil {
		return "", fmt.Errorf("hash external id: %w", err)
	}
	if len(sum) > idHexLength {
		sum = sum[:idHexLength]
	}
	return p.cfg.Source + "-" + sum, nil
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:n]))
}
