// Package main provides the headless tracker: it consumes device positions
// from a broker and emits proximity notifications without serving the API.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/pathnote/pathnote/internal/api/handler"
	"github.com/pathnote/pathnote/internal/api/middleware"
	"github.com/pathnote/pathnote/internal/broker"
	"github.com/pathnote/pathnote/internal/config"
	"github.com/pathnote/pathnote/internal/database"
	"github.com/pathnote/pathnote/internal/destination"
	"github.com/pathnote/pathnote/internal/notify"
	"github.com/pathnote/pathnote/internal/proximity"
	"github.com/pathnote/pathnote/internal/telemetry"
	"github.com/pathnote/pathnote/internal/tracking"
)

// Version and BuildTime are set at compile time via ldflags
var (
	Version   = "dev"
	BuildTime = "unknown"
)

// restartInterval is how often a stopped session is restarted.
const restartInterval = 15 * time.Second

func main() {
	const serviceName = "pathnote-tracker"

	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	log.Info().Str("build_time", BuildTime).Msg("starting pathnote tracker")

	cfg, err := config.Load(serviceName, Version)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	if cfg.PositionSource == config.SourceFeed {
		log.Fatal().Msg("the tracker needs a broker: set POSITION_SOURCE to mqtt or pubsub")
	}
	if cfg.Store != config.StorePostgres {
		log.Warn().Msg("tracker is using the in-memory store; destinations created through the API are not visible")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tp, err := telemetry.Init(ctx, cfg.Telemetry)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	proximityMetrics, err := proximity.NewMetrics()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize proximity metrics")
	}

	var checks []handler.Check

	var repo destination.Repository = destination.NewInMemoryRepository()
	if cfg.Store == config.StorePostgres {
		pool, err := database.Connect(ctx, cfg.Database)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer pool.Close()

		pgRepo := destination.NewPostgresRepository(pool)
		if cfg.Database.AutoMigrate {
			if err := pgRepo.EnsureSchema(ctx); err != nil {
				log.Fatal().Err(err).Msg("failed to create schema")
			}
		}
		repo = pgRepo
		checks = append(checks, handler.Check{Name: "database", Fn: database.Check(pool)})
	}
	destinations := destination.NewService(repo, log)

	notifiers := notify.Multi{notify.NewLogNotifier(log)}
	if cfg.AMQP.URL != "" {
		conn, err := broker.NewRabbitMQ(cfg.AMQP)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to rabbitmq")
		}
		defer conn.Close()

		amqpNotifier, err := notify.NewAMQPNotifier(conn)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize amqp notifier")
		}
		notifiers = append(notifiers, amqpNotifier)
		checks = append(checks, handler.Check{Name: "rabbitmq", Fn: broker.AMQPCheck(conn)})
	}
	if cfg.Redis.Addr != "" {
		rdb := broker.NewRedis(cfg.Redis)
		defer rdb.Close()

		notifiers = append(notifiers, notify.NewRedisNotifier(rdb, cfg.Redis.Channel))
		checks = append(checks, handler.Check{Name: "redis", Fn: broker.RedisCheck(rdb)})
		log.Info().Str("channel", cfg.Redis.Channel).Msg("redis notifications enabled")
	}

	source, err := broker.OpenSource(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open position source")
	}
	defer source.Close()
	if source.Check != nil {
		checks = append(checks, handler.Check{Name: cfg.PositionSource, Fn: source.Check})
	}

	monitorCfg := proximity.DefaultConfig()
	monitorCfg.Notifier = notifiers
	monitorCfg.Recorder = tracking.NewArrivalRecorder(destinations)
	monitorCfg.Metrics = proximityMetrics
	monitorCfg.Logger = log
	monitor := proximity.NewMonitor(monitorCfg)

	tracker := tracking.NewTracker(tracking.Config{
		Source:       source,
		Destinations: destinations,
		Monitor:      monitor,
		Logger:       log,
	})
	defer func() {
		tracker.Close()
		monitor.Wait()
	}()

	// Health endpoints for the platform
	ops := handler.NewOpsHandler(handler.OpsConfig{
		Version:   Version,
		BuildTime: BuildTime,
		Checks:    checks,
	})
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(log))
	r.Use(middleware.ContentTypeJSON)
	r.Get("/health", ops.HealthCheck)
	r.Get("/ready", ops.ReadinessCheck)

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("health server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("health server error")
		}
	}()

	go supervise(ctx, tracker, cfg.Tracking, log)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down tracker")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("health server forced to shutdown")
	}

	log.Info().Msg("tracker stopped")
}

// supervise keeps a tracking session running. Source errors end a session,
// so a stopped session is restarted on the next tick.
func supervise(ctx context.Context, tracker *tracking.Tracker, cfg config.TrackingConfig, log zerolog.Logger) {
	start := func() {
		err := tracker.Start(ctx, cfg.Options())
		switch {
		case err == nil:
			log.Info().Msg("tracking session started")
		case errors.Is(err, tracking.ErrAlreadyTracking):
		default:
			log.Error().Err(err).Msg("failed to start tracking session")
		}
	}

	start()

	ticker := time.NewTicker(restartInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			status := tracker.Status()
			if status.Tracking {
				continue
			}
			if status.LastError != nil {
				log.Warn().
					Str("kind", string(status.LastError.Kind)).
					Msg("tracking session ended, restarting")
			}
			start()
		}
	}
}
