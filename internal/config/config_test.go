package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pathnote/pathnote/internal/config"
	"github.com/pathnote/pathnote/internal/position"
)

var keys = []string{
	"APP_PORT", "STORE", "POSITION_SOURCE", "REQUIRE_TLS",
	"TRACKING_HIGH_ACCURACY", "TRACKING_TIMEOUT", "TRACKING_MAX_CACHE_AGE", "TRACKING_AUTO_START",
	"MQTT_BROKER_URL", "MQTT_CLIENT_ID", "MQTT_TOPIC", "MQTT_QOS",
	"PUBSUB_PROJECT_ID", "PUBSUB_SUBSCRIPTION", "PUBSUB_MAX_OUTSTANDING",
	"AMQP_URL", "REDIS_ADDR", "REDIS_DB", "REDIS_CHANNEL",
	"GEOCODING_ENABLED", "NOMINATIM_TIMEOUT",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := config.Load("pathnote-api", "dev")
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, config.StoreMemory, cfg.Store)
	assert.Equal(t, config.SourceFeed, cfg.PositionSource)
	assert.False(t, cfg.RequireTLS)
	assert.Equal(t, position.DefaultOptions(), cfg.Tracking.Options())
	assert.False(t, cfg.Tracking.AutoStart)
	assert.Equal(t, "pathnote-api", cfg.MQTT.ClientID)
	assert.Equal(t, position.DefaultMQTTTopic, cfg.MQTT.Topic)
	assert.Equal(t, byte(1), cfg.MQTT.QoS)
	assert.Empty(t, cfg.Redis.Addr)
	assert.Equal(t, "pathnote:events", cfg.Redis.Channel)
	assert.True(t, cfg.Nominatim.Enabled)
	assert.Equal(t, 10*time.Second, cfg.Nominatim.Timeout)
	assert.Equal(t, "pathnote-api", cfg.Telemetry.ServiceName)
}

func TestLoad_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("STORE", "Postgres")
	t.Setenv("POSITION_SOURCE", "mqtt")
	t.Setenv("MQTT_BROKER_URL", "tcp://broker:1883")
	t.Setenv("MQTT_QOS", "0")
	t.Setenv("TRACKING_HIGH_ACCURACY", "false")
	t.Setenv("TRACKING_TIMEOUT", "30s")
	t.Setenv("TRACKING_MAX_CACHE_AGE", "1m")
	t.Setenv("TRACKING_AUTO_START", "true")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("REDIS_DB", "2")

	cfg, err := config.Load("pathnote-tracker", "dev")
	require.NoError(t, err)

	assert.Equal(t, config.StorePostgres, cfg.Store)
	assert.Equal(t, config.SourceMQTT, cfg.PositionSource)
	assert.Equal(t, "tcp://broker:1883", cfg.MQTT.BrokerURL)
	assert.Equal(t, byte(0), cfg.MQTT.QoS)
	assert.Equal(t, position.Options{HighAccuracy: false, Timeout: 30 * time.Second, MaxCacheAge: time.Minute}, cfg.Tracking.Options())
	assert.True(t, cfg.Tracking.AutoStart)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.Equal(t, 2, cfg.Redis.DB)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{"unknown store", map[string]string{"STORE": "redis"}, "STORE"},
		{"unknown source", map[string]string{"POSITION_SOURCE": "gps"}, "POSITION_SOURCE"},
		{"mqtt without broker", map[string]string{"POSITION_SOURCE": "mqtt"}, "MQTT_BROKER_URL"},
		{"pubsub without project", map[string]string{"POSITION_SOURCE": "pubsub"}, "PUBSUB_PROJECT_ID"},
		{"bad qos", map[string]string{"MQTT_QOS": "3"}, "MQTT_QOS"},
		{"bad duration", map[string]string{"TRACKING_TIMEOUT": "soon"}, "TRACKING_TIMEOUT"},
		{"negative duration", map[string]string{"TRACKING_MAX_CACHE_AGE": "-1s"}, "negative"},
		{"bad bool", map[string]string{"TRACKING_AUTO_START": "sometimes"}, "TRACKING_AUTO_START"},
		{"negative redis db", map[string]string{"REDIS_DB": "-1"}, "REDIS_DB"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := config.Load("pathnote-api", "dev")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
