package main

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	rlapp "message-board/ratelimit/application"
	rlinfra "message-board/ratelimit/infra"

	"github.com/redis/go-redis/v9"

	"github.com/stretchr/testify/require"
)

func TestReadConfig_Defaults(t *testing.T) {
	req := require.New(t)
	t.Chdir(t.TempDir()) // sem .env

	cfg, err := readConfig()
	req.NoError(err)
	req.Equal(":8080", cfg.ListenAddr)
	req.Equal(time.Hour, cfg.RateWindow)
	req.Equal(int64(10), cfg.RateMaxRequests)
	req.Equal(backendMongo, cfg.StoreBackend)
	req.Equal(5*time.Second, cfg.ChainLockTimeout)
	req.Empty(cfg.NATSURL)
}

func TestReadConfig_Overrides(t *testing.T) {
	req := require.New(t)
	t.Chdir(t.TempDir())
	t.Setenv("RATE_WINDOW", "90s")
	t.Setenv("RATE_MAX_REQUESTS", "3")
	t.Setenv("STORE_BACKEND", " Badger ")
	t.Setenv("LOG_FORMAT", "console")

	cfg, err := readConfig()
	req.NoError(err)
	req.Equal(90*time.Second, cfg.RateWindow)
	req.Equal(int64(3), cfg.RateMaxRequests)
	req.Equal(backendBadger, cfg.StoreBackend)

	log, err := newLogger(cfg)
	req.NoError(err)
	req.NotNil(log)
}

func TestConfig_Validate(t *testing.T) {
	base := config{
		RateWindow:      time.Hour,
		RateMaxRequests: 10,
		StoreBackend:    backendMemory,
		LogFormat:       "json",
		LogLevel:        "info",
		RateStatsBucket: "minute",
		ShutdownTimeout: time.Second,
	}
	require.NoError(t, base.validate())

	cases := []struct {
		name   string
		mutate func(*config)
		want   string
	}{
		{name: "zero window", mutate: func(c *config) { c.RateWindow = 0 }, want: "RATE_WINDOW"},
		{name: "sub-millisecond window", mutate: func(c *config) { c.RateWindow = 1500 * time.Microsecond }, want: "RATE_WINDOW"},
		{name: "zero max", mutate: func(c *config) { c.RateMaxRequests = 0 }, want: "RATE_MAX_REQUESTS"},
		{name: "unknown backend", mutate: func(c *config) { c.StoreBackend = "postgres" }, want: "STORE_BACKEND"},
		{name: "mongo without uri", mutate: func(c *config) { c.StoreBackend = backendMongo }, want: "MONGO_URI"},
		{name: "bad level", mutate: func(c *config) { c.LogLevel = "loud" }, want: "LOG_LEVEL"},
		{name: "bad bucket", mutate: func(c *config) { c.RateStatsBucket = "hour" }, want: "RATE_STATS_BUCKET"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := base
			tc.mutate(&c)
			err := c.validate()
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestConfig_RedisOptionsNoRetries(t *testing.T) {
	req := require.New(t)
	t.Chdir(t.TempDir())
	t.Setenv("REDIS_ADDR", "redis.internal:6380")
	t.Setenv("REDIS_TIMEOUT", "300ms")

	cfg, err := readConfig()
	req.NoError(err)

	opts := cfg.redisOptions()
	req.Equal("redis.internal:6380", opts.Addr)
	req.Equal(300*time.Millisecond, opts.DialTimeout)
	req.Equal(-1, opts.MaxRetries)
}

// countDials conta as tentativas de conexão feitas por um CheckAndRecord
// contra um Redis que recusa toda conexão.
func countDials(t *testing.T, opts *redis.Options) (int64, bool) {
	t.Helper()
	var dials atomic.Int64
	opts.PoolSize = 100
	opts.Dialer = func(context.Context, string, string) (net.Conn, error) {
		dials.Add(1)
		return nil, errors.New("connection refused")
	}
	rdb := redis.NewClient(opts)
	defer func() { _ = rdb.Close() }()

	limiter := rlapp.NewService(rlinfra.NewRedisCounterStore(rdb), rlapp.Config{MaxRequests: 10, Window: time.Hour})
	info := limiter.CheckAndRecord(context.Background(), "u1")
	return dials.Load(), info.Allowed && info.FailOpen
}

func TestConfig_RedisDownFailsOpenWithoutRetry(t *testing.T) {
	req := require.New(t)
	cfg := config{RedisAddr: "127.0.0.1:1", RedisTimeout: 200 * time.Millisecond}

	noRetry, failOpen := countDials(t, cfg.redisOptions())
	req.True(failOpen)

	// mesmo cliente com os retries padrão do go-redis
	withRetry := cfg.redisOptions()
	withRetry.MaxRetries = 0
	retried, failOpen := countDials(t, withRetry)
	req.True(failOpen)

	req.Positive(noRetry)
	req.Greater(retried, noRetry)
}
