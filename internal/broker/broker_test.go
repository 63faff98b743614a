package broker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pathnote/pathnote/internal/config"
)

type connected bool

func (c connected) IsConnected() bool { return bool(c) }

type closed bool

func (c closed) IsClosed() bool { return bool(c) }

func TestMQTTCheck(t *testing.T) {
	ctx := context.Background()
	assert.NoError(t, MQTTCheck(connected(true))(ctx))
	assert.ErrorIs(t, MQTTCheck(connected(false))(ctx), ErrMQTTDisconnected)
}

func TestAMQPCheck(t *testing.T) {
	ctx := context.Background()
	assert.NoError(t, AMQPCheck(closed(false))(ctx))
	assert.ErrorIs(t, AMQPCheck(closed(true))(ctx), ErrAMQPClosed)
}

type pinger struct{ err error }

func (p pinger) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", p.err)
}

func TestRedisCheck(t *testing.T) {
	ctx := context.Background()
	assert.NoError(t, RedisCheck(pinger{})(ctx))

	err := RedisCheck(pinger{err: errors.New("connection refused")})(ctx)
	assert.ErrorContains(t, err, "redis ping")
}

func TestNewRedis_Options(t *testing.T) {
	client := NewRedis(config.RedisConfig{Addr: "redis:6379", DB: 3})
	defer client.Close()

	opts := client.Options()
	assert.Equal(t, "redis:6379", opts.Addr)
	assert.Equal(t, 3, opts.DB)
	assert.Equal(t, 10, opts.PoolSize)
}

func TestNewMQTT_Options(t *testing.T) {
	client := NewMQTT(config.MQTTConfig{
		BrokerURL: "tcp://localhost:1883",
		ClientID:  "pathnote-test",
		Username:  "device",
		Password:  "secret",
	}, nil)

	reader := client.OptionsReader()
	assert.Equal(t, "pathnote-test", reader.ClientID())
	assert.Equal(t, "device", reader.Username())
	assert.True(t, reader.AutoReconnect())
	assert.Equal(t, DefaultConnectTimeout, reader.ConnectTimeout())
	assert.False(t, client.IsConnected())
}

func TestConnectMQTT_Unreachable(t *testing.T) {
	client := NewMQTT(config.MQTTConfig{BrokerURL: "tcp://127.0.0.1:1", ClientID: "pathnote-test"}, nil)

	err := ConnectMQTT(client, 5*time.Second)
	assert.Error(t, err)
}

func TestOpenSource_Feed(t *testing.T) {
	src, err := OpenSource(context.Background(), config.Config{PositionSource: config.SourceFeed}, zerolog.Nop())
	require.NoError(t, err)
	defer src.Close()

	assert.NotNil(t, src.Feed)
	assert.True(t, src.Supported())
	assert.Nil(t, src.Check)
}

func TestOpenSource_Unknown(t *testing.T) {
	_, err := OpenSource(context.Background(), config.Config{PositionSource: "gps"}, zerolog.Nop())
	assert.Error(t, err)
}
