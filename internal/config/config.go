// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/agenda-cultural-salvador/internal/caption"
	"github.com/JakeFAU/agenda-cultural-salvador/internal/dedup"
	"github.com/JakeFAU/agenda-cultural-salvador/internal/policy/ratelimit"
	"github.com/JakeFAU/agenda-cultural-salvador/internal/scraper"
	"github.com/JakeFAU/agenda-cultural-salvador/internal/telemetry"
)

// EnvPrefix prefixes every environment override, e.g. AGENDA_DB_DSN.
const EnvPrefix = "AGENDA"

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig     `mapstructure:"server"`
	Auth      AuthConfig       `mapstructure:"auth"`
	DB        DBConfig         `mapstructure:"db"`
	Storage   StorageConfig    `mapstructure:"storage"`
	PubSub    PubSubConfig     `mapstructure:"pubsub"`
	Logging   LoggingConfig    `mapstructure:"logging"`
	Telemetry telemetry.Config `mapstructure:"telemetry"`
	Caption   caption.Config   `mapstructure:"caption"`
	Dedup     dedup.Config     `mapstructure:"dedup"`
	Scraper   ScraperConfig    `mapstructure:"scraper"`
	Vision    VisionConfig     `mapstructure:"vision"`
	Render    RenderConfig     `mapstructure:"render"`
	Redirect  RedirectConfig   `mapstructure:"redirect"`
	Content   ContentConfig    `mapstructure:"content"`
	Scheduler SchedulerConfig  `mapstructure:"scheduler"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
	// PublicBaseURL is the externally visible origin, used in links and the sitemap.
	PublicBaseURL  string `mapstructure:"public_base_url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	// MaxUploadMB bounds multipart uploads on the vision endpoint.
	MaxUploadMB int `mapstructure:"max_upload_mb"`
}

// AuthConfig defines API authentication toggles for admin routes.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// DBConfig controls access to Postgres. An empty DSN selects the in-memory store.
type DBConfig struct {
	DSN             string `mapstructure:"dsn"`
	EventsTable     string `mapstructure:"events_table"`
	ScrapeRunsTable string `mapstructure:"scrape_runs_table"`
	MaxConns        int32  `mapstructure:"max_conns"`
	MinConns        int32  `mapstructure:"min_conns"`
	// EnsureSchema creates missing tables on startup.
	EnsureSchema bool `mapstructure:"ensure_schema"`
}

// StorageConfig selects and configures the blob store.
type StorageConfig struct {
	// Backend is one of memory, local or gcs.
	Backend       string `mapstructure:"backend"`
	BaseDir       string `mapstructure:"base_dir"`
	PublicBaseURL string `mapstructure:"public_base_url"`
	GCSBucket     string `mapstructure:"gcs_bucket"`
	Prefix        string `mapstructure:"prefix"`
	Public        bool   `mapstructure:"public"`
}

// PubSubConfig holds metadata for ingestion notices. An empty project
// keeps notices in memory.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// ScraperConfig governs the listing scraper.
type ScraperConfig struct {
	UserAgent      string           `mapstructure:"user_agent"`
	TimeoutSeconds int              `mapstructure:"timeout_seconds"`
	RespectRobots  bool             `mapstructure:"respect_robots"`
	MaxPages       int              `mapstructure:"max_pages"`
	Concurrency    int              `mapstructure:"concurrency"`
	RateLimit      ratelimit.Config `mapstructure:"rate_limit"`
	Sources        []scraper.Source `mapstructure:"sources"`
}

// VisionConfig configures the screenshot extractor. An empty APIKey
// disables the vision endpoint.
type VisionConfig struct {
	APIKey             string `mapstructure:"api_key"`
	Model              string `mapstructure:"model"`
	FailureThreshold   uint32 `mapstructure:"failure_threshold"`
	OpenTimeoutSeconds int    `mapstructure:"open_timeout_seconds"`
}

// RenderConfig configures headless Chrome image rendering.
type RenderConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	MaxParallel    int    `mapstructure:"max_parallel"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	ExecPath       string `mapstructure:"exec_path"`
}

// RedirectConfig tunes the click redirect.
type RedirectConfig struct {
	// DedupWindowSeconds ignores repeated clicks from one client inside the window.
	DedupWindowSeconds int `mapstructure:"dedup_window_seconds"`
	RateLimitPerMinute int `mapstructure:"rate_limit_per_minute"`
}

// ContentConfig controls daily content output.
type ContentConfig struct {
	PendingDir    string `mapstructure:"pending_dir"`
	StoriesPrefix string `mapstructure:"stories_prefix"`
}

// SchedulerConfig holds the cron specs of periodic jobs.
type SchedulerConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	ScrapeSpec     string `mapstructure:"scrape_spec"`
	ContentSpec    string `mapstructure:"content_spec"`
	JobTimeoutMins int    `mapstructure:"job_timeout_minutes"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.public_base_url", "http://localhost:8080")
	v.SetDefault("server.timeout_seconds", 60)
	v.SetDefault("server.max_upload_mb", 50)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.api_key", "")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.events_table", "events")
	v.SetDefault("db.scrape_runs_table", "scrape_runs")
	v.SetDefault("db.max_conns", 10)
	v.SetDefault("db.min_conns", 0)
	v.SetDefault("db.ensure_schema", false)
	v.SetDefault("storage.backend", "memory")
	v.SetDefault("storage.base_dir", "data/blobs")
	v.SetDefault("storage.public_base_url", "")
	v.SetDefault("storage.gcs_bucket", "")
	v.SetDefault("storage.prefix", "")
	v.SetDefault("storage.public", true)
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "agenda-ingest")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("telemetry.service_name", "agenda-cultural-salvador")
	v.SetDefault("telemetry.otlp_endpoint", "")
	v.SetDefault("telemetry.sample_ratio", 1.0)

	def := caption.DefaultConfig()
	v.SetDefault("caption.source", def.Source)
	v.SetDefault("caption.default_url", def.DefaultURL)
	v.SetDefault("caption.category", def.Category)
	v.SetDefault("caption.city", def.City)
	v.SetDefault("caption.free_keywords", def.FreeKeywords)

	dd := dedup.DefaultConfig()
	v.SetDefault("dedup.title_words", dd.TitleWords)
	v.SetDefault("dedup.min_word_length", dd.MinWordLength)
	v.SetDefault("dedup.venue_tokens", dd.VenueTokens)
	v.SetDefault("dedup.venue_suffixes", dd.VenueSuffixes)

	v.SetDefault("scraper.user_agent", "agenda-cultural-bot/1.0")
	v.SetDefault("scraper.timeout_seconds", 20)
	v.SetDefault("scraper.respect_robots", true)
	v.SetDefault("scraper.max_pages", 5)
	v.SetDefault("scraper.concurrency", 2)
	v.SetDefault("scraper.rate_limit.rps", 1.0)
	v.SetDefault("scraper.rate_limit.burst", 1)

	v.SetDefault("vision.api_key", "")
	v.SetDefault("vision.model", "gemini-2.0-flash")
	v.SetDefault("vision.failure_threshold", 3)
	v.SetDefault("vision.open_timeout_seconds", 60)

	v.SetDefault("render.enabled", false)
	v.SetDefault("render.max_parallel", 2)
	v.SetDefault("render.timeout_seconds", 30)
	v.SetDefault("render.exec_path", "")

	v.SetDefault("redirect.dedup_window_seconds", 5)
	v.SetDefault("redirect.rate_limit_per_minute", 120)

	v.SetDefault("content.pending_dir", "content/pending")
	v.SetDefault("content.stories_prefix", "instagram-stories")

	v.SetDefault("scheduler.enabled", false)
	v.SetDefault("scheduler.scrape_spec", "0 */6 * * *")
	v.SetDefault("scheduler.content_spec", "0 8 * * *")
	v.SetDefault("scheduler.job_timeout_minutes", 30)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	switch c.Storage.Backend {
	case "memory":
	case "local":
		if c.Storage.BaseDir == "" {
			return fmt.Errorf("storage.base_dir must be set for the local backend")
		}
	case "gcs":
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket must be set for the gcs backend")
		}
	default:
		return fmt.Errorf("storage.backend must be one of memory, local, gcs; got %q", c.Storage.Backend)
	}
	if c.Scraper.TimeoutSeconds <= 0 {
		return fmt.Errorf("scraper.timeout_seconds must be > 0")
	}
	if c.Scraper.Concurrency <= 0 {
		return fmt.Errorf("scraper.concurrency must be > 0")
	}
	seen := make(map[string]struct{}, len(c.Scraper.Sources))
	for i, src := range c.Scraper.Sources {
		if src.Name == "" || src.URL == "" || src.Selectors.Item == "" {
			return fmt.Errorf("scraper.sources[%d] needs name, url and selectors.item", i)
		}
		if _, dup := seen[src.Name]; dup {
			return fmt.Errorf("scraper.sources[%d]: duplicate name %q", i, src.Name)
		}
		seen[src.Name] = struct{}{}
	}
	if c.Render.Enabled && c.Render.MaxParallel <= 0 {
		return fmt.Errorf("render.max_parallel must be > 0 when rendering is enabled")
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry.sample_ratio must be between 0 and 1")
	}
	if c.Redirect.DedupWindowSeconds < 0 {
		return fmt.Errorf("redirect.dedup_window_seconds must be >= 0")
	}
	if c.Scheduler.Enabled && (c.Scheduler.ScrapeSpec == "" || c.Scheduler.ContentSpec == "") {
		return fmt.Errorf("scheduler specs must be set when the scheduler is enabled")
	}
	return nil
}

// ScraperTimeout is the per-request timeout of the scraper.
func (c Config) ScraperTimeout() time.Duration {
	return time.Duration(c.Scraper.TimeoutSeconds) * time.Second
}

// RenderTimeout bounds one image render.
func (c Config) RenderTimeout() time.Duration {
	return time.Duration(c.Render.TimeoutSeconds) * time.Second
}

// RequestTimeout bounds one HTTP request.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.TimeoutSeconds) * time.Second
}

// ClickWindow is the duplicate click suppression window.
func (c Config) ClickWindow() time.Duration {
	return time.Duration(c.Redirect.DedupWindowSeconds) * time.Second
}

// VisionOpenTimeout is how long the vision breaker stays open.
func (c Config) VisionOpenTimeout() time.Duration {
	return time.Duration(c.Vision.OpenTimeoutSeconds) * time.Second
}

// JobTimeout bounds one scheduled job.
func (c Config) JobTimeout() time.Duration {
	return time.Duration(c.Scheduler.JobTimeoutMins) * time.Minute
}
