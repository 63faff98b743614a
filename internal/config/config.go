// Package config loads service configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pathnote/pathnote/internal/database"
	"github.com/pathnote/pathnote/internal/position"
	"github.com/pathnote/pathnote/internal/telemetry"
)

// Position source kinds.
const (
	SourceFeed   = "feed"
	SourceMQTT   = "mqtt"
	SourcePubSub = "pubsub"
)

// Store kinds.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

// Config is the complete configuration of a pathnote binary.
type Config struct {
	Port           string
	Environment    string
	Store          string
	PositionSource string
	// RequireTLS rejects plain HTTP requests forwarded by the load balancer.
	RequireTLS bool

	Tracking  TrackingConfig
	MQTT      MQTTConfig
	PubSub    PubSubConfig
	AMQP      AMQPConfig
	Redis     RedisConfig
	Nominatim NominatimConfig
	Database  database.Config
	Telemetry telemetry.Config
}

// TrackingConfig holds the default watch options and session behavior.
type TrackingConfig struct {
	HighAccuracy bool
	Timeout      time.Duration
	MaxCacheAge  time.Duration
	// AutoStart starts a tracking session as soon as the binary is up.
	AutoStart bool
}

// Options returns the watch options.
func (c TrackingConfig) Options() position.Options {
	return position.Options{
		HighAccuracy: c.HighAccuracy,
		Timeout:      c.Timeout,
		MaxCacheAge:  c.MaxCacheAge,
	}
}

// MQTTConfig holds MQTT broker settings.
type MQTTConfig struct {
	BrokerURL string
	ClientID  string
	Username  string
	Password  string
	Topic     string
	QoS       byte
}

// PubSubConfig holds Google Cloud Pub/Sub settings.
type PubSubConfig struct {
	ProjectID              string
	Subscription           string
	MaxOutstandingMessages int
}

// AMQPConfig holds RabbitMQ settings. An empty URL disables AMQP
// notifications.
type AMQPConfig struct {
	URL string
}

// RedisConfig holds Redis settings. An empty Addr disables Redis
// notifications.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Channel  string
}

// NominatimConfig holds geocoding settings.
type NominatimConfig struct {
	Enabled   bool
	BaseURL   string
	UserAgent string
	Email     string
	Language  string
	Timeout   time.Duration
}

// Load reads the configuration for the named service and validates it.
func Load(serviceName, version string) (Config, error) {
	var errs []error

	cfg := Config{
		Port:           getEnvOrDefault("APP_PORT", "8080"),
		Environment:    getEnvOrDefault("APP_ENV", "development"),
		Store:          strings.ToLower(getEnvOrDefault("STORE", StoreMemory)),
		PositionSource: strings.ToLower(getEnvOrDefault("POSITION_SOURCE", SourceFeed)),
		RequireTLS:     parseBool("REQUIRE_TLS", false, &errs),
		Tracking: TrackingConfig{
			HighAccuracy: parseBool("TRACKING_HIGH_ACCURACY", true, &errs),
			Timeout:      parseDuration("TRACKING_TIMEOUT", "10s", &errs),
			MaxCacheAge:  parseDuration("TRACKING_MAX_CACHE_AGE", "0s", &errs),
			AutoStart:    parseBool("TRACKING_AUTO_START", false, &errs),
		},
		MQTT: MQTTConfig{
			BrokerURL: os.Getenv("MQTT_BROKER_URL"),
			ClientID:  getEnvOrDefault("MQTT_CLIENT_ID", serviceName),
			Username:  os.Getenv("MQTT_USERNAME"),
			Password:  os.Getenv("MQTT_PASSWORD"),
			Topic:     getEnvOrDefault("MQTT_TOPIC", position.DefaultMQTTTopic),
			QoS:       byte(parseInt("MQTT_QOS", 1, &errs)), //nolint:gosec // range checked in validate
		},
		PubSub: PubSubConfig{
			ProjectID:              os.Getenv("PUBSUB_PROJECT_ID"),
			Subscription:           getEnvOrDefault("PUBSUB_SUBSCRIPTION", "device-positions"),
			MaxOutstandingMessages: parseInt("PUBSUB_MAX_OUTSTANDING", 100, &errs),
		},
		AMQP: AMQPConfig{
			URL: os.Getenv("AMQP_URL"),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       parseInt("REDIS_DB", 0, &errs),
			Channel:  getEnvOrDefault("REDIS_CHANNEL", "pathnote:events"),
		},
		Nominatim: NominatimConfig{
			Enabled:   parseBool("GEOCODING_ENABLED", true, &errs),
			BaseURL:   os.Getenv("NOMINATIM_BASE_URL"),
			UserAgent: os.Getenv("NOMINATIM_USER_AGENT"),
			Email:     os.Getenv("NOMINATIM_EMAIL"),
			Language:  os.Getenv("NOMINATIM_LANGUAGE"),
			Timeout:   parseDuration("NOMINATIM_TIMEOUT", "10s", &errs),
		},
		Database:  database.ConfigFromEnv(),
		Telemetry: telemetry.ConfigFromEnv(serviceName, version),
	}

	errs = append(errs, cfg.validate()...)
	if len(errs) > 0 {
		return Config{}, fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return cfg, nil
}

func (c Config) validate() []error {
	var errs []error

	switch c.Store {
	case StoreMemory, StorePostgres:
	default:
		errs = append(errs, fmt.Errorf("STORE must be %q or %q, got %q", StoreMemory, StorePostgres, c.Store))
	}

	switch c.PositionSource {
	case SourceFeed:
	case SourceMQTT:
		if c.MQTT.BrokerURL == "" {
			errs = append(errs, errors.New("MQTT_BROKER_URL is required for the mqtt position source"))
		}
	case SourcePubSub:
		if c.PubSub.ProjectID == "" {
			errs = append(errs, errors.New("PUBSUB_PROJECT_ID is required for the pubsub position source"))
		}
	default:
		errs = append(errs, fmt.Errorf("POSITION_SOURCE must be feed, mqtt or pubsub, got %q", c.PositionSource))
	}

	if c.MQTT.QoS > 2 {
		errs = append(errs, fmt.Errorf("MQTT_QOS must be 0, 1 or 2, got %d", c.MQTT.QoS))
	}
	if c.Redis.DB < 0 {
		errs = append(errs, fmt.Errorf("REDIS_DB must not be negative, got %d", c.Redis.DB))
	}
	if c.Tracking.Timeout < 0 || c.Tracking.MaxCacheAge < 0 {
		errs = append(errs, errors.New("tracking durations must not be negative"))
	}
	return errs
}

func parseBool(key string, def bool, errs *[]error) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return v
}

func parseInt(key string, def int, errs *[]error) int {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return v
}

func parseDuration(key, def string, errs *[]error) time.Duration {
	raw := getEnvOrDefault(key, def)
	v, err := time.ParseDuration(raw)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return 0
	}
	return v
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
