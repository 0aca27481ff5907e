package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/AngelCh415/funnel-insights/internal/analytics"
	"github.com/AngelCh415/funnel-insights/internal/config"
	"github.com/AngelCh415/funnel-insights/internal/httpx"
	"github.com/AngelCh415/funnel-insights/internal/ingest"
	"github.com/AngelCh415/funnel-insights/internal/metrics"
	"github.com/AngelCh415/funnel-insights/internal/store"
	"github.com/AngelCh415/funnel-insights/internal/telemetry"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server", slog.String("err", err.Error()))
		os.Exit(1)
	}
}

// run returns instead of exiting so deferred cleanup closes the stores.
func run() error {
	cfg, err := config.Load("")
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tel := telemetry.NewCollector()
	eng, err := analytics.NewEngine(cfg.Thresholds, analytics.WithEngineLogger(logger), analytics.WithRecorder(tel))
	if err != nil {
		return fmt.Errorf("thresholds: %w", err)
	}

	src, sink, ready, cleanup, err := openStore(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	defer cleanup()

	cl := ingest.NewHTTPClient(cfg.HTTPTimeout)
	var seen ingest.Seen = store.NewMemoryStore()
	if mem, ok := sink.(*store.MemoryStore); ok {
		seen = mem
	}
	etl := ingest.NewETL(cl, sink, seen, logger, cfg)
	etl.OnIngest(tel.LeadsIngested)
	mSvc := metrics.NewService(src, eng, logger)

	r := httpx.NewRouter(httpx.Deps{
		Log:         logger,
		ETL:         etl,
		Service:     mSvc,
		Telemetry:   tel,
		Ready:       ready,
		CORSOrigins: cfg.CORSOrigins,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info("starting server", slog.String("port", cfg.Port))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// openStore picks postgres (with a redis or in-process window cache) when
// DATABASE_URL is set and the in-memory store otherwise.
func openStore(ctx context.Context, cfg config.Config, log *slog.Logger) (store.LeadSource, ingest.LeadSink, httpx.Pinger, func(), error) {
	if cfg.DatabaseURL == "" {
		mem := store.NewMemoryStore()
		log.Info("lead store", slog.String("backend", "memory"))
		return mem, mem, nil, func() {}, nil
	}

	db, err := store.OpenPostgres(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	pg := store.NewPostgresLeads(db, cfg.ExcludedStatuses)
	if err := pg.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, nil, nil, nil, err
	}
	closers := []func() error{db.Close}

	var cache store.SnapshotCache = store.NewMemoryCache()
	backend := "memory"
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			db.Close()
			return nil, nil, nil, nil, err
		}
		rdb := redis.NewClient(opt)
		closers = append(closers, rdb.Close)
		cache = store.NewRedisCache(rdb, "funnel:")
		backend = "redis"
	}
	log.Info("lead store",
		slog.String("backend", "postgres"),
		slog.String("cache", backend),
		slog.Duration("cache_ttl", cfg.CacheTTL))

	cleanup := func() {
		for _, c := range closers {
			c()
		}
	}
	return store.NewCachedSource(pg, cache, cfg.CacheTTL, log), pg, pg, cleanup, nil
}
