// Package render draws event cards and stories as PNG images by loading a
// generated HTML document into headless Chrome and taking a screenshot.
package render

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/agenda-cultural-salvador/internal/metrics"
)

// ErrDisabled is returned by the no-op renderer.
var ErrDisabled = errors.New("image rendering is disabled")

// Renderer produces PNG images.
type Renderer interface {
	Card(ctx context.Context, c Card) ([]byte, error)
	Story(ctx context.Context, kind StoryType, items []StoryItem) ([]byte, error)
}

// Config controls the Chrome renderer.
type Config struct {
	// MaxParallel bounds concurrent browser tabs; 0 means unbounded.
	MaxParallel int `mapstructure:"max_parallel"`
	// Timeout bounds one render.
	Timeout time.Duration `mapstructure:"timeout"`
	// ExecPath overrides the Chrome binary.
	ExecPath string `mapstructure:"exec_path"`
}

// Chrome renders with chromedp.
type Chrome struct {
	cfg         Config
	limiter     chan struct{}
	allocator   context.Context
	allocCancel context.CancelFunc
	logger      *zap.Logger
}

var _ Renderer = (*Chrome)(nil)

// NewChrome prepares a browser allocator. Chrome itself starts lazily on
// the first render.
func NewChrome(cfg Config, logger *zap.Logger) (*Chrome, error) {
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("max parallel must be >= 0")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	var limiter chan struct{}
	if cfg.MaxParallel > 0 {
		limiter = make(chan struct{}, cfg.MaxParallel)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Chrome{
		cfg:         cfg,
		limiter:     limiter,
		allocator:   allocCtx,
		allocCancel: allocCancel,
		logger:      logger.Named("render"),
	}, nil
}

// Close shuts the browser down.
func (c *Chrome) Close() {
	c.allocCancel()
}

// Card renders a 1080x1080 card.
func (c *Chrome) Card(ctx context.Context, card Card) ([]byte, error) {
	doc, err := CardHTML(card)
	if err != nil {
		return nil, err
	}
	return c.screenshot(ctx, "card_"+string(card.withDefaults().Type), doc, CardWidth, CardHeight)
}

// Story renders a 1080x1920 story.
func (c *Chrome) Story(ctx context.Context, kind StoryType, items []StoryItem) ([]byte, error) {
	doc, err := StoryHTML(kind, items)
	if err != nil {
		return nil, err
	}
	return c.screenshot(ctx, "story_"+string(kind), doc, StoryWidth, StoryHeight)
}

func (c *Chrome) screenshot(ctx context.Context, kind, doc string, width, height int64) ([]byte, error) {
	if err := c.acquire(ctx); err != nil {
		return nil, err
	}
	defer c.release()

	taskCtx, taskCancel := chromedp.NewContext(c.allocator)
	defer taskCancel()
	taskCtx, cancel := context.WithTimeout(taskCtx, c.cfg.Timeout)
	defer cancel()
	// Stop the tab when the caller goes away.
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	start := time.Now()
	var png []byte
	err := chromedp.Run(taskCtx,
		emulation.SetDeviceMetricsOverride(width, height, 1, false),
		chromedp.Navigate(DataURL(doc)),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.FullScreenshot(&png, 100),
	)
	if err != nil {
		return nil, fmt.Errorf("chromedp render %s: %w", kind, err)
	}
	elapsed := time.Since(start)
	metrics.ObserveRender(kind, elapsed)
	c.logger.Debug("rendered image",
		zap.String("kind", kind),
		zap.Int("bytes", len(png)),
		zap.Duration("duration", elapsed),
	)
	return png, nil
}

func (c *Chrome) acquire(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	select {
	case c.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("render slot wait canceled: %w", ctx.Err())
	}
}

func (c *Chrome) release() {
	if c.limiter == nil {
		return
	}
	select {
	case <-c.limiter:
	default:
	}
}

// DataURL embeds an HTML document in a data: URL.
func DataURL(doc string) string {
	return "data:text/html;charset=utf-8;base64," + base64.StdEncoding.EncodeToString([]byte(doc))
}

// Noop is used when rendering is disabled.
type Noop struct{}

var _ Renderer = Noop{}

// Card returns ErrDisabled.
func (Noop) Card(context.Context, Card) ([]byte, error) { return nil, ErrDisabled }

// Story returns ErrDisabled.
func (Noop) Story(context.Context, StoryType, []StoryItem) ([]byte, error) { return nil, ErrDisabled }
