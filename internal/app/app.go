// Package app builds the long-lived services of the agenda service from
// configuration and owns their startup and shutdown.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/agenda-cultural-salvador/internal/api"
	"github.com/JakeFAU/agenda-cultural-salvador/internal/caption"
	"github.com/JakeFAU/agenda-cultural-salvador/internal/clock/system"
	"github.com/JakeFAU/agenda-cultural-salvador/internal/config"
	"github.com/JakeFAU/agenda-cultural-salvador/internal/content"
	"github.com/JakeFAU/agenda-cultural-salvador/internal/dedup"
	"github.com/JakeFAU/agenda-cultural-salvador/internal/hash/sha256"
	"github.com/JakeFAU/agenda-cultural-salvador/internal/id/uuid"
	"github.com/JakeFAU/agenda-cultural-salvador/internal/ingest"
	"github.com/JakeFAU/agenda-cultural-salvador/internal/metrics"
	"github.com/JakeFAU/agenda-cultural-salvador/internal/policy/ratelimit"
	"github.com/JakeFAU/agenda-cultural-salvador/internal/publisher"
	memorypublisher "github.com/JakeFAU/agenda-cultural-salvador/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/agenda-cultural-salvador/internal/publisher/pubsub"
	"github.com/JakeFAU/agenda-cultural-salvador/internal/render"
	"github.com/JakeFAU/agenda-cultural-salvador/internal/scheduler"
	"github.com/JakeFAU/agenda-cultural-salvador/internal/scraper"
	gcsstorage "github.com/JakeFAU/agenda-cultural-salvador/internal/storage/gcs"
	localstorage "github.com/JakeFAU/agenda-cultural-salvador/internal/storage/local"
	memorystorage "github.com/JakeFAU/agenda-cultural-salvador/internal/storage/memory"
	pgstore "github.com/JakeFAU/agenda-cultural-salvador/internal/storage/postgres"
	"github.com/JakeFAU/agenda-cultural-salvador/internal/store"
	"github.com/JakeFAU/agenda-cultural-salvador/internal/telemetry"
	"github.com/JakeFAU/agenda-cultural-salvador/internal/vision"
)

// Scheduled job names.
const (
	JobScrape  = "scrape"
	JobContent = "content"
)

// App contains the application's dependencies.
type App struct {
	cfg    config.Config
	logger *zap.Logger
	clock  *system.Clock
	tel    *telemetry.Telemetry

	pool         *pgxpool.Pool
	events       store.EventRepository
	runs         store.ScrapeRunRepository
	blobs        store.BlobStore
	storage      *storage.Client
	pubsubClient *pubsub.Client
	gcpPublisher *gcppublisher.Publisher
	publisher    publisher.Publisher
	chrome       *render.Chrome
	renderer     render.Renderer

	ingest    *ingest.Service
	queries   *content.Queries
	builder   *content.Builder
	stories   *content.StoryPublisher
	scheduler *scheduler.Scheduler
	apiServer *api.Server
}

// Build creates the application's dependencies. Postgres is used when a DSN
// is configured and in-memory stores otherwise.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	a := &App{cfg: cfg, logger: logger, clock: system.New()}
	a.logger.Info("building application dependencies",
		zap.Int("server_port", cfg.Server.Port),
		zap.String("storage_backend", cfg.Storage.Backend),
		zap.Bool("postgres", cfg.DB.DSN != ""),
	)

	var err error
	a.tel, err = telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("telemetry init failed: %w", err)
	}
	if err := a.setupDatabase(ctx); err != nil {
		a.Close(ctx)
		return nil, err
	}
	if err := a.setupStorage(ctx); err != nil {
		a.Close(ctx)
		return nil, err
	}
	if err := a.setupPublisher(ctx); err != nil {
		a.Close(ctx)
		return nil, err
	}
	if err := a.setupRenderer(); err != nil {
		a.Close(ctx)
		return nil, err
	}
	if err := a.setupIngest(ctx); err != nil {
		a.Close(ctx)
		return nil, err
	}

	a.queries = content.NewQueries(a.events, a.clock)
	a.builder = content.NewBuilder(a.queries, cfg.Server.PublicBaseURL, logger.Named("content"))
	a.stories = content.NewStoryPublisher(a.queries, a.renderer, a.blobs, cfg.Content.StoriesPrefix, logger.Named("stories"))

	deps := api.Deps{
		Ingest:   a.ingest,
		Events:   a.events,
		Runs:     a.runs,
		Queries:  a.queries,
		Content:  a.builder,
		Renderer: a.renderer,
		Clock:    a.clock,
	}
	if a.pool != nil {
		deps.Ready = a.pool
	}
	a.apiServer, err = api.NewServer(deps, cfg, logger)
	if err != nil {
		a.Close(ctx)
		return nil, fmt.Errorf("api server init failed: %w", err)
	}

	if cfg.Scheduler.Enabled {
		if err := a.setupScheduler(); err != nil {
			a.Close(ctx)
			return nil, err
		}
	}
	return a, nil
}

func (a *App) setupDatabase(ctx context.Context) error {
	if a.cfg.DB.DSN == "" {
		a.logger.Warn("no DSN specified for database, using in-memory event and run stores")
		a.events = memorystorage.NewEventStore(nil)
		a.runs = memorystorage.NewRunStore()
		return nil
	}
	pgCfg := pgstore.Config{
		DSN:         a.cfg.DB.DSN,
		EventsTable: a.cfg.DB.EventsTable,
		RunsTable:   a.cfg.DB.ScrapeRunsTable,
		MaxConns:    a.cfg.DB.MaxConns,
		MinConns:    a.cfg.DB.MinConns,
	}
	pool, err := pgstore.Connect(ctx, pgCfg)
	if err != nil {
		return fmt.Errorf("postgres init failed: %w", err)
	}
	a.pool = pool
	if a.cfg.DB.EnsureSchema {
		if err := pgstore.EnsureSchema(ctx, pool, pgCfg); err != nil {
			return fmt.Errorf("ensure schema failed: %w", err)
		}
	}
	eventStore, err := pgstore.NewEventStore(pool, pgCfg.EventsTable)
	if err != nil {
		return fmt.Errorf("event store init failed: %w", err)
	}
	runStore, err := pgstore.NewRunStore(pool, pgCfg.RunsTable)
	if err != nil {
		return fmt.Errorf("run store init failed: %w", err)
	}
	a.events, a.runs = eventStore, runStore
	a.logger.Info("postgres stores initialized",
		zap.String("events_table", pgCfg.EventsTable),
		zap.String("runs_table", pgCfg.RunsTable),
	)
	return nil
}

func (a *App) setupStorage(ctx context.Context) error {
	var err error
	switch a.cfg.Storage.Backend {
	case "gcs":
		a.logger.Info("using GCS storage backend", zap.String("bucket", a.cfg.Storage.GCSBucket))
		a.storage, err = storage.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("gcs client init failed: %w", err)
		}
		a.blobs, err = gcsstorage.New(a.storage, gcsstorage.Config{
			Bucket: a.cfg.Storage.GCSBucket,
			Prefix: a.cfg.Storage.Prefix,
			Public: a.cfg.Storage.Public,
		})
		if err != nil {
			return fmt.Errorf("gcs blob store init failed: %w", err)
		}
	case "local":
		a.logger.Info("using local storage backend", zap.String("path", a.cfg.Storage.BaseDir))
		a.blobs, err = localstorage.New(localstorage.Config{
			BaseDir:       a.cfg.Storage.BaseDir,
			PublicBaseURL: a.cfg.Storage.PublicBaseURL,
		})
		if err != nil {
			return fmt.Errorf("local blob store init failed: %w", err)
		}
	default:
		a.logger.Info("using in-memory storage backend")
		a.blobs = memorystorage.NewBlobStore()
	}
	return nil
}

func (a *App) setupPublisher(ctx context.Context) error {
	if a.cfg.PubSub.TopicName == "" || a.cfg.PubSub.ProjectID == "" {
		a.logger.Warn("no Pub/Sub topic configured, using in-memory publisher")
		a.publisher = memorypublisher.New()
		return nil
	}
	var err error
	a.pubsubClient, err = pubsub.NewClient(ctx, a.cfg.PubSub.ProjectID)
	if err != nil {
		return fmt.Errorf("pubsub client init failed: %w", err)
	}
	a.gcpPublisher, err = gcppublisher.New(a.pubsubClient, a.cfg.PubSub.TopicName)
	if err != nil {
		return fmt.Errorf("pubsub publisher init failed: %w", err)
	}
	a.publisher = a.gcpPublisher
	a.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", a.cfg.PubSub.ProjectID),
		zap.String("topic", a.cfg.PubSub.TopicName),
	)
	return nil
}

func (a *App) setupRenderer() error {
	if !a.cfg.Render.Enabled {
		a.logger.Info("image rendering disabled")
		a.renderer = render.Noop{}
		return nil
	}
	var err error
	a.chrome, err = render.NewChrome(render.Config{
		MaxParallel: a.cfg.Render.MaxParallel,
		Timeout:     a.cfg.RenderTimeout(),
		ExecPath:    a.cfg.Render.ExecPath,
	}, a.logger)
	if err != nil {
		return fmt.Errorf("renderer init failed: %w", err)
	}
	a.renderer = a.chrome
	a.logger.Info("using headless chrome renderer", zap.Int("max_parallel", a.cfg.Render.MaxParallel))
	return nil
}

func (a *App) setupIngest(ctx context.Context) error {
	hasher := sha256.New()
	parser := caption.New(a.cfg.Caption, hasher)
	deduper, err := dedup.New(a.cfg.Dedup)
	if err != nil {
		return fmt.Errorf("dedup init failed: %w", err)
	}
	limiter := ratelimit.New(a.cfg.Scraper.RateLimit)
	collyScraper, err := scraper.New(scraper.Config{
		UserAgent:     a.cfg.Scraper.UserAgent,
		Timeout:       a.cfg.ScraperTimeout(),
		RespectRobots: a.cfg.Scraper.RespectRobots,
		MaxPages:      a.cfg.Scraper.MaxPages,
	}, limiter, hasher, parser, a.logger)
	if err != nil {
		return fmt.Errorf("scraper init failed: %w", err)
	}

	deps := ingest.Deps{
		Events:    a.events,
		Runs:      a.runs,
		Blobs:     a.blobs,
		Parser:    parser,
		Dedup:     deduper,
		Scraper:   collyScraper,
		Publisher: a.publisher,
		Clock:     a.clock,
		IDs:       uuid.NewUUIDGenerator(),
	}
	if a.cfg.Vision.APIKey != "" {
		model, err := vision.NewGeminiModel(ctx, a.cfg.Vision.APIKey, a.cfg.Vision.Model)
		if err != nil {
			return fmt.Errorf("vision model init failed: %w", err)
		}
		extractor, err := vision.New(model, vision.Config{
			FailureThreshold: a.cfg.Vision.FailureThreshold,
			OpenTimeout:      a.cfg.VisionOpenTimeout(),
			City:             a.cfg.Caption.City,
		}, hasher, a.logger)
		if err != nil {
			return fmt.Errorf("vision extractor init failed: %w", err)
		}
		deps.Vision = extractor
		a.logger.Info("vision extraction enabled", zap.String("model", a.cfg.Vision.Model))
	} else {
		a.logger.Warn("no vision api key configured, story screenshot ingestion disabled")
	}

	a.ingest, err = ingest.New(deps, ingest.Config{
		Topic:       a.cfg.PubSub.TopicName,
		Sources:     a.cfg.Scraper.Sources,
		Concurrency: a.cfg.Scraper.Concurrency,
		City:        a.cfg.Caption.City,
	}, a.logger)
	if err != nil {
		return fmt.Errorf("ingest service init failed: %w", err)
	}
	a.logger.Info("ingest service initialized", zap.Int("sources", len(a.cfg.Scraper.Sources)))
	return nil
}

func (a *App) setupScheduler() error {
	a.scheduler = scheduler.New(a.logger, a.cfg.JobTimeout())
	if err := a.scheduler.Add(JobScrape, a.cfg.Scheduler.ScrapeSpec, func(ctx context.Context) error {
		_, err := a.ingest.ScrapeAll(ctx)
		return err
	}); err != nil {
		return fmt.Errorf("schedule scrape: %w", err)
	}
	if err := a.scheduler.Add(JobContent, a.cfg.Scheduler.ContentSpec, func(ctx context.Context) error {
		_, err := a.GenerateContent(ctx)
		return err
	}); err != nil {
		return fmt.Errorf("schedule content: %w", err)
	}
	return nil
}

// Ingest returns the ingestion service.
func (a *App) Ingest() *ingest.Service {
	return a.ingest
}

// Handler returns the HTTP handler of the API server.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Scheduler returns the cron scheduler, or nil when it is disabled.
func (a *App) Scheduler() *scheduler.Scheduler {
	return a.scheduler
}

// ContentResult reports what GenerateContent produced.
type ContentResult struct {
	Path    string
	Bundle  content.DailyBundle
	Stories []content.Story
}

// GenerateContent builds the daily bundle, writes it to the pending content
// directory and, when rendering is enabled, publishes the story images.
func (a *App) GenerateContent(ctx context.Context) (ContentResult, error) {
	bundle, err := a.builder.Build(ctx)
	if err != nil {
		return ContentResult{}, fmt.Errorf("build content: %w", err)
	}
	path, err := content.WriteBundle(a.cfg.Content.PendingDir, bundle)
	if err != nil {
		return ContentResult{}, err
	}
	result := ContentResult{Path: path, Bundle: bundle}
	a.logger.Info("daily content written", zap.String("path", path), zap.Int("options", len(bundle.Options)))
	if a.chrome == nil {
		return result, nil
	}
	result.Stories, err = a.stories.Publish(ctx, []render.StoryType{
		render.StoryToday,
		render.StoryFree,
		render.StoryHighlight,
	})
	if err != nil {
		return result, fmt.Errorf("publish stories: %w", err)
	}
	return result, nil
}

// Run serves HTTP and, when enabled, the scheduler until ctx is canceled or
// one of them fails.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("shutdown initiated")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	})
	if a.scheduler != nil {
		g.Go(func() error {
			return a.scheduler.Start(gctx)
		})
	}
	return g.Wait()
}

// Close releases clients and pools. It is safe to call on a partially built
// App.
func (a *App) Close(ctx context.Context) {
	if a.chrome != nil {
		a.chrome.Close()
	}
	if a.gcpPublisher != nil {
		a.gcpPublisher.Close()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.storage != nil {
		if err := a.storage.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
	if err := a.tel.Shutdown(ctx); err != nil {
		a.logger.Warn("telemetry shutdown failed", zap.Error(err))
	}
	a.logger.Info("shutdown complete")
}
