// Package main provides the entrypoint for the pathnote API server.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/pathnote/pathnote/internal/api"
	"github.com/pathnote/pathnote/internal/api/handler"
	"github.com/pathnote/pathnote/internal/api/middleware"
	"github.com/pathnote/pathnote/internal/broker"
	"github.com/pathnote/pathnote/internal/config"
	"github.com/pathnote/pathnote/internal/database"
	"github.com/pathnote/pathnote/internal/destination"
	"github.com/pathnote/pathnote/internal/geocode"
	"github.com/pathnote/pathnote/internal/geocode/nominatim"
	"github.com/pathnote/pathnote/internal/notify"
	"github.com/pathnote/pathnote/internal/provider/resilience"
	"github.com/pathnote/pathnote/internal/proximity"
	"github.com/pathnote/pathnote/internal/telemetry"
	"github.com/pathnote/pathnote/internal/tracking"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "pathnote-api"

	// Setup structured logging
	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	log.Info().
		Str("build_time", BuildTime).
		Msg("starting pathnote API")

	cfg, err := config.Load(serviceName, Version)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	// Initialize OpenTelemetry
	ctx := context.Background()
	tp, err := telemetry.Init(ctx, cfg.Telemetry)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	if cfg.Telemetry.Enabled {
		log.Info().
			Str("otlp_endpoint", cfg.Telemetry.OTLPEndpoint).
			Msg("OpenTelemetry initialized")
	}

	// Initialize metrics
	httpMetrics, err := middleware.NewMetrics()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize HTTP metrics")
	}
	proximityMetrics, err := proximity.NewMetrics()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize proximity metrics")
	}
	providerMetrics, err := resilience.NewMetrics()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize provider metrics")
	}

	var checks []handler.Check

	// Destination store
	repo, closeRepo, check, err := openRepository(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open destination store")
	}
	defer closeRepo()
	if check != nil {
		checks = append(checks, handler.Check{Name: "database", Fn: check})
	}
	destinations := destination.NewService(repo, log)

	// Notifications
	hub := notify.NewHub(log)
	defer hub.Close()
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
		log.Info().Str("exchange", notify.ExchangeName).Msg("amqp notifications enabled")
	}
	if cfg.Redis.Addr != "" {
		rdb := broker.NewRedis(cfg.Redis)
		defer rdb.Close()

		// Every replica and the headless tracker publish to the channel;
		// websocket clients are fed from the subscription.
		sub := rdb.Subscribe(ctx, cfg.Redis.Channel)
		defer sub.Close()
		relayCtx, stopRelay := context.WithCancel(ctx)
		defer stopRelay()
		go notify.Relay(relayCtx, sub.Channel(), hub, log)

		notifiers = append(notifiers, notify.NewRedisNotifier(rdb, cfg.Redis.Channel))
		checks = append(checks, handler.Check{Name: "redis", Fn: broker.RedisCheck(rdb)})
		log.Info().Str("channel", cfg.Redis.Channel).Msg("redis notifications enabled")
	} else {
		notifiers = append(notifiers, hub)
	}

	// Position source
	source, err := broker.OpenSource(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open position source")
	}
	defer source.Close()
	if source.Check != nil {
		checks = append(checks, handler.Check{Name: cfg.PositionSource, Fn: source.Check})
	}
	log.Info().Str("source", cfg.PositionSource).Msg("position source ready")

	// Proximity monitor and tracker
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

	if cfg.Tracking.AutoStart {
		if err := tracker.Start(ctx, cfg.Tracking.Options()); err != nil {
			log.Error().Err(err).Msg("failed to auto-start tracking")
		}
	}

	// Geocoding
	registry := resilience.NewRegistry()
	var geocoder geocode.Provider
	if cfg.Nominatim.Enabled {
		geocoder = nominatim.NewClient(nominatim.ClientConfig{
			BaseURL:   cfg.Nominatim.BaseURL,
			UserAgent: cfg.Nominatim.UserAgent,
			Email:     cfg.Nominatim.Email,
			Language:  cfg.Nominatim.Language,
			Timeout:   cfg.Nominatim.Timeout,
			Registry:  registry,
			Metrics:   providerMetrics,
			Logger:    log,
		})
	}

	// HTTP ingestion only when the feed is the source
	var feed handler.Feed
	if source.Feed != nil {
		feed = source.Feed
	}

	// Create router with configuration
	router := api.NewRouter(api.RouterConfig{
		Version:      Version,
		BuildTime:    BuildTime,
		Logger:       log,
		ServiceName:  serviceName,
		Metrics:      httpMetrics,
		Destinations: destinations,
		Tracker:      tracker,
		Feed:         feed,
		Geocoder:     geocoder,
		Events:       hub,
		Registry:     registry,
		Checks:       checks,
		RequireTLS:   cfg.RequireTLS,
	})

	// Create HTTP server
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      20 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().
			Str("addr", server.Addr).
			Msg("server listening")

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

// openRepository returns the configured destination repository, a cleanup
// function and an optional readiness check.
func openRepository(ctx context.Context, cfg config.Config, log zerolog.Logger) (destination.Repository, func(), func(context.Context) error, error) {
	if cfg.Store != config.StorePostgres {
		log.Info().Msg("using in-memory destination store")
		return destination.NewInMemoryRepository(), func() {}, nil, nil
	}

	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		return nil, nil, nil, err
	}
	log.Info().
		Str("host", cfg.Database.Host).
		Int("port", cfg.Database.Port).
		Str("database", cfg.Database.Database).
		Msg("database connected")

	repo := destination.NewPostgresRepository(pool)
	if cfg.Database.AutoMigrate {
		if err := repo.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, nil, err
		}
	}
	return repo, pool.Close, database.Check(pool), nil
}
