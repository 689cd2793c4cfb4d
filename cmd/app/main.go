package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	cfgpkg "github.com/local/minitools/internal/config"
	"github.com/local/minitools/internal/dispatcher"
	"github.com/local/minitools/internal/layout"
	"github.com/local/minitools/internal/limiter"
	logpkg "github.com/local/minitools/internal/logger"
	"github.com/local/minitools/internal/metrics"
	"github.com/local/minitools/internal/orchestrator"
	"github.com/local/minitools/internal/queue"
	"github.com/local/minitools/internal/statuscheck"
	"github.com/local/minitools/internal/storage"
	"github.com/local/minitools/internal/store"
	"github.com/local/minitools/internal/tools"
	web "github.com/local/minitools/internal/web"
)

func main() {
	cfg, err := cfgpkg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load .env")
	}

	// Init logging
	if err := logpkg.Init(logpkg.Options{
		Level:        cfg.Logging.Level,
		Pretty:       cfg.Logging.Pretty,
		File:         cfg.Logging.File,
		MaxSizeMB:    cfg.Logging.MaxSizeMB,
		MaxBackups:   cfg.Logging.MaxBackups,
		MaxAgeDays:   cfg.Logging.MaxAgeDays,
		Compress:     cfg.Logging.Compress,
		Service:      "minitools",
		SendToAxiom:  cfg.Axiom.Send && cfg.Axiom.APIKey != "",
		AxiomAPIKey:  cfg.Axiom.APIKey,
		AxiomOrgID:   cfg.Axiom.OrgID,
		AxiomDataset: cfg.Axiom.Dataset,
		AxiomFlush:   cfg.Axiom.FlushInterval,
	}); err != nil {
		log.Error().Err(err).Msg("logger init failed, continuing with defaults")
	}
	defer logpkg.Close()
	metrics.Init()

	ctx, stopBackground := context.WithCancel(context.Background())
	defer stopBackground()

	svc := tools.NewService(toolDefaults(cfg.Tools))

	// Redis-backed pieces exist only when a queue is configured.
	var (
		rdb *redis.Client
		rq  *queue.RedisQueue
	)
	if cfg.AsyncEnabled() {
		rq, err = queue.NewRedisQueue(cfg.Queue.RedisURL, cfg.Queue.Stream, cfg.Queue.Group, cfg.Queue.PollInterval)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer rq.Close()
		// status, artifacts and rate limits share the queue's connection pool
		rdb = rq.Client()
	}

	artifacts, s3Store := openArtifacts(ctx, cfg, rdb)
	artifacts = storage.NewSealed(artifacts, cfg.Artifacts.SealSecret)

	lim := limiter.New(limiter.Options{
		Client:      rdb,
		PerWindow:   cfg.Limits.RequestsPerMinute,
		MaxInflight: cfg.Limits.ConcurrentRenders,
	})

	health := statusOptions(cfg.Artifacts.Backend, rq, s3Store)

	deps := orchestrator.Dependencies{
		Tools:     svc,
		Artifacts: artifacts,
		Limiter:   lim,
		Health:    statuscheck.New(health),
	}

	var worker *dispatcher.Worker
	if rq != nil {
		status := store.NewRedisStatusClient(rdb, cfg.Artifacts.TTL)
		deps.Queue = rq
		deps.Status = status

		if cfg.Worker.Run {
			worker = dispatcher.New(dispatcher.Config{
				Concurrency:    cfg.Worker.Concurrency,
				MaxAttempts:    cfg.Worker.JobMaxAttempts,
				RetryBaseDelay: cfg.Worker.RetryBaseDelay,
				BackoffFactor:  cfg.Worker.RetryBackoffFactor,
				JobTimeout:     cfg.Worker.JobTimeout,
			}, dispatcher.Dependencies{
				Queue:     rq,
				Status:    status,
				Artifacts: artifacts,
				Tools:     svc,
			})
			worker.Start()
			go dispatcher.ReportDepths(ctx, rq, 15*time.Second)
		}
	}

	orch := orchestrator.New(deps, orchestrator.Options{
		MaxUploadBytes: int64(cfg.HTTP.MaxUploadMB) << 20,
		RemoteInputs:   cfg.HTTP.RemoteInputs,
		TrustedProxies: cfg.Limits.TrustedProxies,
	})
	mux := http.NewServeMux()
	orch.RegisterRoutes(mux)

	// Dashboard
	web.New().RegisterRoutes(mux)

	srv := &http.Server{
		Addr:              ":" + cfg.HTTP.Port,
		Handler:           orch.Wrap(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.HTTP.Port).Bool("async", cfg.AsyncEnabled()).Str("artifacts", cfg.Artifacts.Backend).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server error")
		}
	}()

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http shutdown incomplete")
	}
	if worker != nil {
		if err := worker.Stop(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("workers did not stop in time")
		}
	}
	stopBackground()
	log.Info().Msg("shutdown complete")
}

func toolDefaults(c cfgpkg.ToolsConfig) tools.Defaults {
	d := tools.DefaultDefaults()
	if ps, err := layout.ParsePageSize(c.PageSize); err == nil {
		d.Images.PageSize = ps
	} else {
		log.Warn().Str("page_size", c.PageSize).Msg("unknown DEFAULT_PAGE_SIZE, using a4")
	}
	if fit, err := layout.ParseFitMode(c.Fit); err == nil {
		d.Images.Fit = fit
	} else {
		log.Warn().Str("fit", c.Fit).Msg("unknown DEFAULT_FIT, using contain")
	}
	if c.MarginPt >= 0 {
		d.Images.Margin = c.MarginPt
	}
	if c.MaxImageSide > 0 {
		d.Images.MaxSide = c.MaxImageSide
	}
	if c.MaxImagePixels > 0 {
		d.Images.MaxPixels = c.MaxImagePixels
	}
	d.Images.Downscale = true
	if c.RenderScale > 0 {
		d.RenderScale = c.RenderScale
	}
	if c.JPEGQuality > 0 && c.JPEGQuality <= 1 {
		d.JPEGQuality = c.JPEGQuality
	}
	if c.MaxRenderPages > 0 {
		d.MaxRenderPages = c.MaxRenderPages
	}
	return d
}

// openArtifacts picks the artifact backend. The S3 store is returned
// separately so health checks can ping it.
func openArtifacts(ctx context.Context, cfg cfgpkg.Config, rdb *redis.Client) (store.ArtifactStore, *storage.S3Store) {
	switch cfg.Artifacts.Backend {
	case "s3":
		s3s, err := storage.NewS3Store(ctx, storage.S3Options{
			Bucket:          cfg.S3.Bucket,
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			Prefix:          cfg.S3.Prefix,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to init s3 artifact store")
		}
		return s3s, s3s
	case "redis":
		if rdb == nil {
			log.Fatal().Msg("ARTIFACT_BACKEND=redis requires REDIS_URL")
		}
		return store.NewRedisArtifactsClient(rdb, cfg.Artifacts.TTL), nil
	default:
		local, err := orchestrator.NewLocalArtifacts(cfg.Artifacts.Dir)
		if err != nil {
			log.Fatal().Err(err).Str("dir", cfg.Artifacts.Dir).Msg("failed to init artifact dir")
		}
		orchestrator.StartJanitor(ctx, local.Dir, cfg.Artifacts.TTL, 10*time.Minute)
		return local, nil
	}
}

func statusOptions(backend string, rq *queue.RedisQueue, s3s *storage.S3Store) statuscheck.Options {
	opts := statuscheck.Options{Backend: backend}
	if rq != nil {
		opts.Redis = rq
	}
	if s3s != nil {
		opts.Storage = s3s
	}
	return opts
}
