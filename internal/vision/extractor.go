// Package vision extracts event listings from story screenshots with a
// multimodal model. Model calls go through a circuit breaker so a failing
// upstream is reported as ErrUnavailable instead of piling up requests.
package vision

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/agenda-cultural-salvador/internal/events"
	"github.com/JakeFAU/agenda-cultural-salvador/internal/metrics"
)

var (
	// ErrUnavailable is returned while the breaker rejects model calls.
	ErrUnavailable = errors.New("vision model unavailable")
	// ErrNoJSON marks a model answer without a JSON array.
	ErrNoJSON = errors.New("no JSON array in model response")
)

const (
	defaultHour   = 19
	idHexLength   = 32
	titleMaxRunes = 100
)

var (
	jsonArray   = regexp.MustCompile(`(?s)\[.*\]`)
	datePattern = regexp.MustCompile(`(\d{1,2})/(\d{1,2})/(\d{4})`)
	timePattern = regexp.MustCompile(`(\d{1,2}):(\d{2})`)
)

// Extracted is one event as the model reports it.
type Extracted struct {
	Title       string `json:"title"`
	Date        string `json:"date"`
	Time        string `json:"time"`
	Venue       string `json:"venue"`
	Price       string `json:"price"`
	Description string `json:"description,omitempty"`
}

// Image is one uploaded screenshot.
type Image struct {
	Name     string
	MimeType string
	Data     []byte
}

// Hasher produces a hex digest; see internal/hash/sha256.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Config tunes the breaker and record defaults.
type Config struct {
	// FailureThreshold is how many consecutive failures open the breaker.
	FailureThreshold uint32 `mapstructure:"failure_threshold"`
	// OpenTimeout is how long the breaker stays open before probing again.
	OpenTimeout time.Duration `mapstructure:"open_timeout"`
	City        string        `mapstructure:"city"`
}

// Batch is the outcome of one multi-image extraction.
type Batch struct {
	Records      []events.Record
	Skipped      int
	FailedImages int
}

// Extractor turns screenshots into records.
type Extractor struct {
	model   Model
	breaker *gobreaker.CircuitBreaker[string]
	hasher  Hasher
	city    string
	logger  *zap.Logger
}

// New wires model behind a circuit breaker.
func New(model Model, cfg Config, hasher Hasher, logger *zap.Logger) (*Extractor, error) {
	if model == nil {
		return nil, errors.New("vision model is required")
	}
	if hasher == nil {
		return nil, errors.New("hasher is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 3
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = time.Minute
	}
	if cfg.City == "" {
		cfg.City = events.DefaultCity
	}
	logger = logger.Named("vision")
	threshold := cfg.FailureThreshold
	breaker := gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:        "vision-model",
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	return &Extractor{
		model:   model,
		breaker: breaker,
		hasher:  hasher,
		city:    cfg.City,
		logger:  logger,
	}, nil
}

// ExtractImage asks the model for the events in one image.
func (e *Extractor) ExtractImage(ctx context.Context, img Image, today time.Time, previousDate string) ([]Extracted, error) {
	prompt := BuildPrompt(today, previousDate)
	text, err := e.breaker.Execute(func() (string, error) {
		return e.model.Generate(ctx, prompt, img.Data, img.MimeType)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.ObserveVision("rejected")
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		metrics.ObserveVision("failure")
		return nil, fmt.Errorf("vision model: %w", err)
	}
	metrics.ObserveVision("success")
	return ParseResponse(text)
}

// Extract processes images in order, carrying the last accepted date into
// the next prompt. A failed image is logged and skipped; an open breaker
// aborts the batch with ErrUnavailable.
func (e *Extractor) Extract(ctx context.Context, channel, logoURL string, images []Image, today time.Time) (Batch, error) {
	var (
		batch    Batch
		lastDate string
	)
	for i, img := range images {
		extracted, err := e.ExtractImage(ctx, img, today, lastDate)
		if err != nil {
			if errors.Is(err, ErrUnavailable) || ctx.Err() != nil {
				return batch, err
			}
			batch.FailedImages++
			e.logger.Warn("image extraction failed",
				zap.Int("index", i),
				zap.String("image", img.Name),
				zap.Error(err),
			)
			continue
		}
		e.logger.Info("image extracted",
			zap.Int("index", i),
			zap.String("image", img.Name),
			zap.Int("events", len(extracted)),
		)
		for _, ev := range extracted {
			rec, err := e.ToRecord(channel, logoURL, ev)
			if err != nil {
				batch.Skipped++
				e.logger.Debug("skipping extracted event", zap.String("title", ev.Title), zap.Error(err))
				continue
			}
			batch.Records = append(batch.Records, rec)
			lastDate = ev.Date
		}
	}
	return batch, nil
}

// ParseResponse decodes the first JSON array found in the model's answer.
func ParseResponse(text string) ([]Extracted, error) {
	raw := jsonArray.FindString(text)
	if raw == "" {
		return nil, ErrNoJSON
	}
	var out []Extracted
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("decode model response: %w", err)
	}
	return out, nil
}

// ParseStart reads DD/MM/YYYY and HH:MM; a missing time starts at 19:00.
func ParseStart(date, clock string) (time.Time, bool) {
	m := datePattern.FindStringSubmatch(date)
	if m == nil {
		return time.Time{}, false
	}
	day, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	year, _ := strconv.Atoi(m[3])
	if month < 1 || month > 12 {
		return time.Time{}, false
	}
	hour, minute := defaultHour, 0
	if t := timePattern.FindStringSubmatch(clock); t != nil {
		h, _ := strconv.Atoi(t[1])
		mm, _ := strconv.Atoi(t[2])
		if h <= 23 && mm <= 59 {
			hour, minute = h, mm
		}
	}
	start := time.Date(year, time.Month(month), day, hour, minute, 0, 0, events.Local)
	if start.Day() != day {
		return time.Time{}, false
	}
	return start, true
}

// ToRecord converts one extracted event for channel.
func (e *Extractor) ToRecord(channel, logoURL string, ev Extracted) (events.Record, error) {
	title := strings.TrimSpace(ev.Title)
	if title == "" {
		return events.Record{}, errors.New("missing title")
	}
	if utf8.RuneCountInString(title) > titleMaxRunes {
		title = strings.TrimSpace(string([]rune(title)[:titleMaxRunes]))
	}
	start, ok := ParseStart(ev.Date, ev.Time)
	if !ok {
		return events.Record{}, fmt.Errorf("invalid date %q %q", ev.Date, ev.Time)
	}

	channel = strings.TrimSpace(channel)
	sum, err := e.hasher.Hash([]byte(ev.Title + ev.Date))
	if err != nil {
		return events.Record{}, fmt.Errorf("hash external id: %w", err)
	}
	if len(sum) > idHexLength {
		sum = sum[:idHexLength]
	}
	externalID := fmt.Sprintf("instagram-vision-%s-%s", channel, sum)

	price := strings.TrimSpace(ev.Price)
	lower := strings.ToLower(price)
	isFree := strings.Contains(lower, "grátis") || strings.Contains(lower, "gratuito")
	if isFree || strings.EqualFold(price, "consulte") {
		price = ""
	}

	return events.Record{
		ExternalID: externalID,
		Source:     channel,
		City:       e.city,
		Title:      title,
		Start:      start,
		Venue:      strings.TrimSpace(ev.Venue),
		PriceText:  price,
		IsFree:     isFree,
		Sources: []events.SourceRef{{
			ID:  externalID,
			URL: fmt.Sprintf("https://www.instagram.com/%s/", strings.TrimPrefix(channel, "@")),
		}},
		ImageURL: logoURL,
		Category: Categorize(ev.Title, ev.Description),
		Raw: map[string]any{
			"title":       ev.Title,
			"date":        ev.Date,
			"time":        ev.Time,
			"venue":       ev.Venue,
			"price":       ev.Price,
			"description": ev.Description,
		},
	}, nil
}
