// Package api provides the HTTP API for pathnote.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/pathnote/pathnote/internal/api/handler"
	"github.com/pathnote/pathnote/internal/api/middleware"
	"github.com/pathnote/pathnote/internal/destination"
	"github.com/pathnote/pathnote/internal/geocode"
	"github.com/pathnote/pathnote/internal/provider/resilience"
	"github.com/pathnote/pathnote/internal/tracking"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version      string
	BuildTime    string
	Logger       zerolog.Logger
	ServiceName  string
	Metrics      *middleware.Metrics
	Destinations *destination.Service
	Tracker      *tracking.Tracker
	// Feed receives positions posted over HTTP. Nil disables ingestion.
	Feed handler.Feed
	// Geocoder is optional; geocode routes are not mounted without it.
	Geocoder geocode.Provider
	// Events serves the notification websocket. Optional.
	Events   http.Handler
	Registry *resilience.Registry
	Checks   []handler.Check
	// RequireTLS rejects plain HTTP behind a TLS-terminating proxy.
	RequireTLS bool
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Set default service name if not provided
	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "pathnote-api"
	}

	// Global middleware - order matters
	r.Use(middleware.RequestID)            // Generate/propagate request ID first
	r.Use(chimiddleware.RealIP)            // Real IP extraction, before rate limiting
	r.Use(middleware.Tracing(serviceName)) // Distributed tracing
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware()) // HTTP metrics
	}
	r.Use(middleware.Logger(cfg.Logger))   // Structured logging
	r.Use(middleware.Recovery(cfg.Logger)) // Panic recovery
	r.Use(middleware.Security(middleware.SecurityConfig{
		RequireTLS:     cfg.RequireTLS,
		ExemptPrefixes: []string{"/v1/ops/"},
	}))

	// Initialize handlers
	opsHandler := handler.NewOpsHandler(handler.OpsConfig{
		Version:   cfg.Version,
		BuildTime: cfg.BuildTime,
		Checks:    cfg.Checks,
		Registry:  cfg.Registry,
	})
	destinationHandler := handler.NewDestinationHandler(cfg.Destinations, cfg.Logger)
	trackingHandler := handler.NewTrackingHandler(cfg.Tracker, cfg.Feed, cfg.Logger)

	// Create rate limit middleware for different endpoint categories
	standardRateLimit := middleware.RateLimitByIP(middleware.StandardRateLimit) // 100 req/min
	ingestRateLimit := middleware.RateLimitByDevice(middleware.IngestRateLimit)  // 600 req/min per device
	geocodeRateLimit := middleware.RateLimitByIP(middleware.GeocodeRateLimit)    // 30 req/min

	r.Route("/v1", func(r chi.Router) {
		// Websocket upgrade, outside the JSON middleware
		if cfg.Events != nil {
			r.Handle("/events", cfg.Events)
		}

		r.Group(func(r chi.Router) {
			r.Use(middleware.ContentTypeJSON)
			r.Use(middleware.RequireJSON)

			// Ops endpoints
			r.Route("/ops", func(r chi.Router) {
				r.Get("/health", opsHandler.HealthCheck)
				r.Get("/ready", opsHandler.ReadinessCheck)
				r.Get("/status", opsHandler.SystemStatus)
			})

			r.Route("/destinations", func(r chi.Router) {
				r.Use(standardRateLimit)
				r.Get("/", destinationHandler.ListDestinations)
				r.Post("/", destinationHandler.CreateDestination)
				r.Route("/{destinationId}", func(r chi.Router) {
					r.Get("/", destinationHandler.GetDestination)
					r.Patch("/", destinationHandler.UpdateDestination)
					r.Delete("/", destinationHandler.DeleteDestination)
					r.Post("/activate", destinationHandler.ActivateDestination)
					r.Post("/deactivate", destinationHandler.DeactivateDestination)
					r.Post("/arrived", destinationHandler.MarkArrived)
				})
			})

			r.Route("/tracking", func(r chi.Router) {
				r.With(standardRateLimit).Post("/start", trackingHandler.StartTracking)
				r.With(standardRateLimit).Post("/stop", trackingHandler.StopTracking)
				r.With(standardRateLimit).Get("/status", trackingHandler.GetStatus)
				r.With(standardRateLimit).Post("/permission", trackingHandler.RequestPermission)

				// Device ingestion - per-device rate limiting
				r.With(ingestRateLimit).Post("/positions", trackingHandler.IngestPosition)
				r.With(ingestRateLimit).Post("/errors", trackingHandler.ReportError)
			})

			if cfg.Geocoder != nil {
				geocodeHandler := handler.NewGeocodeHandler(cfg.Geocoder, cfg.Logger)
				r.Route("/geocode", func(r chi.Router) {
					r.Use(geocodeRateLimit)
					r.Get("/", geocodeHandler.Search)
					r.Get("/reverse", geocodeHandler.Reverse)
				})
			}
		})
	})

	return r
}
