package scraper

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"
)

// Config controls collector behavior.
type Config struct {
	UserAgent     string        `mapstructure:"user_agent"`
	Timeout       time.Duration `mapstructure:"timeout"`
	RespectRobots bool          `mapstructure:"respect_robots"`
	MaxPages      int           `mapstructure:"max_pages"`
}

// CollyScraper implements Scraper using the Colly collector.
type CollyScraper struct {
	cfg       Config
	transport http.RoundTripper
	limiter   Waiter
	hasher    Hasher
	prices    PriceClassifier
	logger    *zap.Logger
}

var _ Scraper = (*CollyScraper)(nil)

// New builds a CollyScraper. limiter may be nil.
func New(cfg Config, limiter Waiter, hasher Hasher, prices PriceClassifier, logger *zap.Logger) (*CollyScraper, error) {
	if hasher == nil {
		return nil, errors.New("hasher is required")
	}
	if prices == nil {
		return nil, errors.New("price classifier is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 5
	}
	return &CollyScraper{
		cfg:       cfg,
		transport: newHTTPTransport(),
		limiter:   limiter,
		hasher:    hasher,
		prices:    prices,
		logger:    logger.Named("scraper"),
	}, nil
}

// Scrape visits src.URL, follows pagination up to the page budget and maps
// every item to a record. Items that cannot be mapped are reported in
// Result.Invalid; only transport failures are returned as errors.
func (s *CollyScraper) Scrape(ctx context.Context, src Source, ref time.Time) (Result, error) {
	if src.URL == "" || src.Selectors.Item == "" || src.Selectors.Title == "" {
		return Result{}, fmt.Errorf("source %q needs url, item and title selectors", src.Name)
	}
	result := Result{Source: src.Name}
	maxPages := src.MaxPages
	if maxPages <= 0 {
		maxPages = s.cfg.MaxPages
	}

	collector := s.newCollector(ctx)
	var fetchErr error

	collector.OnRequest(func(r *colly.Request) {
		if s.limiter == nil {
			return
		}
		if err := s.limiter.Wait(ctx, r.URL.String()); err != nil {
			fetchErr = err
			r.Abort()
		}
	})
	collector.OnResponse(func(r *colly.Response) {
		result.Pages++
		s.logger.Debug("listing page fetched",
			zap.String("source", src.Name),
			zap.String("url", r.Request.URL.String()),
			zap.Int("status", r.StatusCode),
		)
	})
	collector.OnError(func(r *colly.Response, err error) {
		if result.Pages == 0 {
			fetchErr = err
		}
		s.logger.Warn("listing page failed",
			zap.String("source", src.Name),
			zap.String("url", r.Request.URL.String()),
			zap.Error(err),
		)
	})
	collector.OnHTML(src.Selectors.Item, func(e *colly.HTMLElement) {
		result.Fetched++
		rec, err := s.mapItem(src, e, ref)
		if err != nil {
			result.Invalid = append(result.Invalid, err)
			return
		}
		result.Records = append(result.Records, rec)
	})
	if src.Selectors.Next != "" {
		collector.OnHTML(src.Selectors.Next, func(e *colly.HTMLElement) {
			if result.Pages >= maxPages {
				return
			}
			next := e.Request.AbsoluteURL(e.Attr("href"))
			if next == "" {
				return
			}
			if err := e.Request.Visit(next); err != nil {
				s.logger.Debug("pagination stopped", zap.String("url", next), zap.Error(err))
			}
		})
	}

	if err := runCollector(ctx, collector, src.URL, &fetchErr); err != nil {
		return Result{Source: src.Name}, err
	}
	s.logger.Info("source scraped",
		zap.String("source", src.Name),
		zap.Int("pages", result.Pages),
		zap.Int("items", result.Fetched),
		zap.Int("valid", len(result.Records)),
		zap.Int("invalid", len(result.Invalid)),
	)
	return result, nil
}

func (s *CollyScraper) newCollector(ctx context.Context) *colly.Collector {
	opts := []colly.CollectorOption{
		colly.Async(false),
		colly.StdlibContext(ctx),
	}
	if s.cfg.UserAgent != "" {
		opts = append(opts, colly.UserAgent(s.cfg.UserAgent))
	}
	c := colly.NewCollector(opts...)
	c.IgnoreRobotsTxt = !s.cfg.RespectRobots
	c.WithTransport(s.transport)
	c.SetRequestTimeout(s.cfg.Timeout)
	return c
}

func runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("scrape canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		return nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
