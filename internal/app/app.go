package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"sunkelo/internal/config"
	"sunkelo/internal/domain"
	"sunkelo/internal/infrastructure/blob"
	"sunkelo/internal/infrastructure/cache"
	"sunkelo/internal/infrastructure/llm"
	"sunkelo/internal/infrastructure/parser"
	"sunkelo/internal/infrastructure/scheduler"
	"sunkelo/internal/infrastructure/speech"
	"sunkelo/internal/infrastructure/storage"
	"sunkelo/internal/infrastructure/webcrawl"
	"sunkelo/internal/logging"
	"sunkelo/internal/metrics"
	"sunkelo/internal/ports"
	"sunkelo/internal/scanner"
	"sunkelo/internal/server"
	"sunkelo/internal/usecase"
)

const defaultShutdownTimeout = 10 * time.Second

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg       config.Config
	logger    *slog.Logger
	db        *sql.DB
	redis     *redis.Client
	store     *storage.PostgresRepository
	http      *http.Server
	scheduler *usecase.Scheduler
}

// New builds every adapter and the HTTP server. It does not touch the network.
func New(cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
	}
	component := func(name string) *slog.Logger {
		return baseLogger.With("component", name)
	}

	db, err := storage.Open(cfg.Database.DSN)
	if err != nil {
		return nil, err
	}
	store := storage.NewPostgresRepository(db)

	redisClient := cache.NewClient(cfg.Redis)
	caches := cache.NewStore(redisClient, cfg.Cache, component("cache"))

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	pipelineMetrics := metrics.New(registry)

	speechClient := speech.NewClient(cfg.Speech, component("speech"))
	chatClient := llm.NewChatClient(cfg.Chat, component("llm"))
	webClient := webcrawl.NewClient(cfg.WebSearch, component("webcrawl"))

	scanners := scanner.NewRegistry()
	scanners.Register(parser.NewTrustedScanner(webClient, component("scanner.trusted")))
	source := parser.NewStrategySource(scanners, cfg.Sources, component("source"))

	var blobs ports.BlobStore = blob.NewAssetStore(store)
	if cfg.Blob.Enabled() {
		s3Store, err := blob.NewS3Store(cfg.Blob, component("blob"))
		if err != nil {
			return nil, fmt.Errorf("blob store: %w", err)
		}
		blobs = s3Store
	}

	trending := usecase.NewTrendingSuggestions(store, cfg.Cache.TrendingTTL, component("trending"))

	pipeline := usecase.NewPipeline(usecase.PipelineDeps{
		Rate:         usecase.NewRateGovernor(caches, cfg.RateLimit, cfg.IsProduction()),
		SpeechToText: speechClient,
		Languages:    usecase.NewQueryLanguageDetector(speechClient, component("language")),
		Entities:     usecase.NewEntityResolver(chatClient, caches, store, component("entity")),
		Cache:        caches,
		Source:       source,
		Normalizer:   usecase.NewSourceNormalizer(speechClient, component("normalize")),
		Synthesizer:  usecase.NewReviewSynthesizer(chatClient, component("synthesize")),
		Localizer: usecase.NewLocalizer(usecase.LocalizerDeps{
			Translator:  speechClient,
			Narrator:    usecase.NewScriptWriter(chatClient, cfg.Narration),
			Synthesizer: speechClient,
			Blobs:       blobs,
			Reviews:     store,
			Metrics:     pipelineMetrics,
			Logger:      component("localize"),
		}),
		Products:  store,
		Reviews:   store,
		QueryLogs: store,
		Trending:  trending,
		Messages:  usecase.NewErrorMessages(chatClient),
		EvidencePolicy: func() domain.EvidencePolicy {
			return usecase.LoadEvidencePolicy(cfg.Evidence)
		},
		Metrics: pipelineMetrics,
		Logger:  component("pipeline"),
	})

	srv := server.New(server.Deps{
		Pipeline: pipeline,
		Assets:   store,
		Health: map[string]ports.HealthChecker{
			"postgres": store,
			"redis":    caches,
		},
		Metrics: metrics.Handler(registry),
		Config:  cfg.Server,
		Logger:  component("http"),
	})

	cronDriver := scheduler.NewCronScheduler(cfg.Scheduler.CronExpression, cfg.Scheduler.Location(), component("scheduler"))

	return &Application{
		cfg:    cfg,
		logger: baseLogger,
		db:     db,
		redis:  redisClient,
		store:  store,
		http: &http.Server{
			Addr:              cfg.Server.Addr,
			Handler:           srv.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		},
		scheduler: usecase.NewScheduler(cronDriver, trending, component("scheduler")),
	}, nil
}

// Run migrates the schema, starts the trending refresh and serves HTTP until
// ctx is cancelled.
func (a *Application) Run(ctx context.Context) error {
	defer a.close()

	if err := a.store.Migrate(ctx); err != nil {
		return err
	}
	if err := a.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server listening", "addr", a.http.Addr, "environment", a.cfg.Environment)
		if err := a.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown requested")
	case serveErr = <-errCh:
		a.logger.Error("http server stopped", "error", serveErr)
	}

	timeout := a.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := a.http.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("http shutdown failed", "error", err)
	}
	if err := a.scheduler.Stop(shutdownCtx); err != nil {
		a.logger.Warn("scheduler shutdown failed", "error", err)
	}
	return serveErr
}

func (a *Application) close() {
	if err := a.redis.Close(); err != nil {
		a.logger.Warn("redis close failed", "error", err)
	}
	if err := a.db.Close(); err != nil {
		a.logger.Warn("postgres close failed", "error", err)
	}
}
