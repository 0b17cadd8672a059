package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/faceswap/internal/adapter/amqp"
	"github.com/pscheid92/faceswap/internal/adapter/faceengine"
	"github.com/pscheid92/faceswap/internal/adapter/ffmpeg"
	"github.com/pscheid92/faceswap/internal/adapter/httpserver"
	"github.com/pscheid92/faceswap/internal/adapter/metrics"
	"github.com/pscheid92/faceswap/internal/adapter/postgres"
	"github.com/pscheid92/faceswap/internal/adapter/redis"
	"github.com/pscheid92/faceswap/internal/adapter/storage"
	"github.com/pscheid92/faceswap/internal/adapter/websocket"
	"github.com/pscheid92/faceswap/internal/app"
	"github.com/pscheid92/faceswap/internal/domain"
	"github.com/pscheid92/faceswap/internal/facecache"
	"github.com/pscheid92/faceswap/internal/jobs"
	"github.com/pscheid92/faceswap/internal/live"
	"github.com/pscheid92/faceswap/internal/pipeline"
	"github.com/pscheid92/faceswap/internal/platform/config"
	"github.com/pscheid92/faceswap/internal/platform/logging"
	"github.com/pscheid92/faceswap/internal/platform/version"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
)

const shutdownTimeout = 30 * time.Second

// infra holds the optional adapters. Each field is nil when its URL is unset.
type infra struct {
	pool      *pgxpool.Pool
	archive   *postgres.JobArchive
	rdb       *goredis.Client
	mirror    *redis.JobMirror
	publisher *amqp.Publisher
}

func (i *infra) observers() []domain.JobObserver {
	var obs []domain.JobObserver
	if i.mirror != nil {
		obs = append(obs, i.mirror)
	}
	if i.archive != nil {
		obs = append(obs, i.archive)
	}
	if i.publisher != nil {
		obs = append(obs, i.publisher)
	}
	return obs
}

func (i *infra) statusSources() []domain.JobStatusSource {
	var sources []domain.JobStatusSource
	if i.mirror != nil {
		sources = append(sources, i.mirror)
	}
	if i.archive != nil {
		sources = append(sources, i.archive)
	}
	return sources
}

func (i *infra) healthChecks() []httpserver.HealthCheck {
	var checks []httpserver.HealthCheck
	if i.rdb != nil {
		checks = append(checks, httpserver.HealthCheck{
			Name:  "redis",
			Check: func(ctx context.Context) error { return i.rdb.Ping(ctx).Err() },
		})
	}
	if i.pool != nil {
		checks = append(checks, httpserver.HealthCheck{
			Name:  "postgres",
			Check: func(ctx context.Context) error { return i.pool.Ping(ctx) },
		})
	}
	return checks
}

func (i *infra) Close() {
	if i.publisher != nil {
		if err := i.publisher.Close(); err != nil {
			slog.Error("Failed to close AMQP publisher", "error", err)
		}
	}
	if i.rdb != nil {
		_ = i.rdb.Close()
	}
	if i.pool != nil {
		i.pool.Close()
	}
}

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupDB(cfg *config.Config) *pgxpool.Pool {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := postgres.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}

	if err := postgres.RunMigrationsWithLock(ctx, pool); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}

	return pool
}

func setupRedis(cfg *config.Config, deps *metrics.DependencyMetrics) *goredis.Client {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := redis.NewClient(ctx, cfg.RedisURL, redis.NewMetricsHook(deps), redis.NewCircuitBreakerHook(deps))
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	return client
}

func setupAMQP(cfg *config.Config, deps *metrics.DependencyMetrics) *amqp.Publisher {
	publisher, err := amqp.Dial(cfg.AMQPURL, cfg.AMQPExchange, deps)
	if err != nil {
		slog.Error("Failed to connect to message broker", "error", err)
		os.Exit(1)
	}
	return publisher
}

func setupInfra(cfg *config.Config, deps *metrics.DependencyMetrics) *infra {
	i := &infra{}
	if cfg.DatabaseURL != "" {
		i.pool = setupDB(cfg)
		i.archive = postgres.NewJobArchive(i.pool)
	}
	if cfg.RedisURL != "" {
		i.rdb = setupRedis(cfg, deps)
		i.mirror = redis.NewJobMirror(i.rdb, cfg.JobRetention)
	}
	if cfg.AMQPURL != "" {
		i.publisher = setupAMQP(cfg, deps)
	}
	slog.Info("Optional infrastructure",
		"postgres", i.pool != nil,
		"redis", i.rdb != nil,
		"amqp", i.publisher != nil)
	return i
}

func setupPipeline(cfg *config.Config, engine domain.FaceEngine, reg prometheus.Registerer) (*pipeline.Pipeline, *metrics.JobMetrics) {
	codec, err := ffmpeg.New(ffmpeg.Config{
		FFmpegPath:  cfg.FFmpegPath,
		FFprobePath: cfg.FFprobePath,
		OutputDir:   cfg.ResultsDir,
		MaxFrames:   cfg.MaxFrames,
	})
	if err != nil {
		slog.Error("Failed to set up video codec", "error", err)
		os.Exit(1)
	}

	faces, err := facecache.New(cfg.FaceCacheSize, metrics.NewFaceCacheMetrics(reg))
	if err != nil {
		slog.Error("Failed to create face cache", "error", err)
		os.Exit(1)
	}

	jobMetrics := metrics.NewJobMetrics(reg)
	p := pipeline.New(codec, engine, faces, pipeline.Options{
		Concurrency: cfg.SwapWorkers,
		BatchSize:   cfg.BatchSize,
	}, metrics.NewBatchMetrics(reg), jobMetrics)
	return p, jobMetrics
}

func runGracefulShutdown(srv *httpserver.Server, liveHandler *websocket.LiveHandler, appSvc *app.Service, stopBackground context.CancelFunc) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		liveHandler.Shutdown()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		stopBackground()
		if err := appSvc.Stop(shutdownCtx); err != nil {
			slog.Error("Job workers shutdown error", "error", err)
		}

		close(done)
	}()

	return done
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "version", version.Get().String(), "env", cfg.AppEnv, "port", cfg.Port)

	reg := metrics.NewRegistry()
	deps := metrics.NewDependencyMetrics(reg)

	opt := setupInfra(cfg, deps)
	defer opt.Close()

	store, err := storage.NewLocalStorage(cfg.UploadDir, cfg.ResultsDir)
	if err != nil {
		slog.Error("Failed to set up storage", "error", err)
		os.Exit(1)
	}

	engine := faceengine.NewClient(faceengine.Config{
		BaseURL: cfg.FaceEngineURL,
		Timeout: cfg.FaceEngineTimeout,
	}, deps)

	p, jobMetrics := setupPipeline(cfg, engine, reg)
	tracker := jobs.NewTracker(clock, jobMetrics, opt.observers()...)

	sessions := live.NewManager(engine, clock, metrics.NewLiveMetrics(reg))
	liveHandler := websocket.NewLiveHandler(
		sessions,
		websocket.NewCheckOrigin(cfg.AppURL, !cfg.IsProduction()),
		cfg.MaxWebSocketConnections,
		clock,
		metrics.NewWebSocketMetrics(reg),
	)

	appSvc := app.NewService(store, tracker, p, sessions, app.Options{
		Workers:   cfg.JobWorkers,
		QueueSize: cfg.JobQueueSize,
		Enhancer:  engine,
	}, jobMetrics, opt.statusSources()...)

	var archive domain.JobArchive
	if opt.archive != nil {
		archive = opt.archive
	}
	sweeper := app.NewRetentionSweeper(store, tracker, archive, clock, app.RetentionPolicy{
		Interval:     cfg.CleanupInterval,
		FileMaxAge:   cfg.FileMaxAge,
		JobRetention: cfg.JobRetention,
	})
	reaper := live.NewReaper(sessions, clock, cfg.SessionSweepInterval, cfg.SessionIdleTimeout, liveHandler.CloseSessions)

	bgCtx, stopBackground := context.WithCancel(context.Background())
	go sweeper.Run(bgCtx)
	go reaper.Run(bgCtx)

	healthChecks := append(opt.healthChecks(), httpserver.HealthCheck{
		Name: "face_engine",
		Check: func(context.Context) error {
			if engine.State() == gobreaker.StateOpen {
				return errors.New("circuit breaker is open")
			}
			return nil
		},
	})

	srv := httpserver.NewServer(cfg, appSvc, liveHandler, metrics.Handler(reg), metrics.NewHTTPMetrics(reg), healthChecks)

	done := runGracefulShutdown(srv, liveHandler, appSvc, stopBackground)

	slog.Info("Server starting", "port", cfg.Port)
	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
