package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	backendMongo  = "mongo"
	backendBadger = "badger"
	backendMemory = "memory"
)

type config struct {
	ListenAddr string `envconfig:"LISTEN_ADDR" default:":8080"`
	LogLevel   string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat  string `envconfig:"LOG_FORMAT" default:"json"`

	RateWindow      time.Duration `envconfig:"RATE_WINDOW" default:"1h"`
	RateMaxRequests int64         `envconfig:"RATE_MAX_REQUESTS" default:"10"`
	RateKeyPrefix   string        `envconfig:"RATE_KEY_PREFIX" default:"ratelimit"`

	RedisAddr     string        `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPassword string        `envconfig:"REDIS_PASSWORD"`
	RedisDB       int           `envconfig:"REDIS_DB" default:"0"`
	RedisTimeout  time.Duration `envconfig:"REDIS_TIMEOUT" default:"2s"`

	RateStatsEnabled   bool          `envconfig:"RATE_STATS_ENABLED" default:"false"`
	RateStatsPrefix    string        `envconfig:"RATE_STATS_PREFIX" default:"ratelimit:stats"`
	RateStatsTTL       time.Duration `envconfig:"RATE_STATS_TTL" default:"24h"`
	RateStatsBucket    string        `envconfig:"RATE_STATS_BUCKET" default:"minute"`
	RateStatsTrackKeys bool          `envconfig:"RATE_STATS_TRACK_KEYS" default:"false"`

	StoreBackend  string        `envconfig:"STORE_BACKEND" default:"mongo"`
	MongoURI      string        `envconfig:"MONGO_URI" default:"mongodb://localhost:27017"`
	MongoDatabase string        `envconfig:"MONGO_DATABASE" default:"board"`
	MongoTimeout  time.Duration `envconfig:"MONGO_TIMEOUT" default:"5s"`
	BadgerPath    string        `envconfig:"BADGER_PATH" default:"data/badger"`

	NATSURL           string `envconfig:"NATS_URL"`
	NATSSubjectPrefix string `envconfig:"NATS_SUBJECT_PREFIX" default:"board"`

	ChainLockTimeout   time.Duration `envconfig:"CHAIN_LOCK_TIMEOUT" default:"5s"`
	ConcurrencyMax     int           `envconfig:"CONCURRENCY_MAX" default:"0"`
	ConcurrencyTimeout time.Duration `envconfig:"CONCURRENCY_TIMEOUT" default:"0"`
	ShutdownTimeout    time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
}

// readConfig carrega o .env (se existir), lê o ambiente e valida.
func readConfig() (config, error) {
	_ = godotenv.Load()

	var cfg config
	if err := envconfig.Process("", &cfg); err != nil {
		return config{}, err
	}
	cfg.StoreBackend = strings.ToLower(strings.TrimSpace(cfg.StoreBackend))
	cfg.LogFormat = strings.ToLower(strings.TrimSpace(cfg.LogFormat))
	return cfg, cfg.validate()
}

func (c config) validate() error {
	var errs []error
	if c.RateWindow <= 0 {
		errs = append(errs, fmt.Errorf("RATE_WINDOW must be > 0, got %s", c.RateWindow))
	}
	if c.RateWindow > 0 && c.RateWindow%time.Millisecond != 0 {
		errs = append(errs, fmt.Errorf("RATE_WINDOW must be a whole number of milliseconds, got %s", c.RateWindow))
	}
	if c.RateMaxRequests <= 0 {
		errs = append(errs, fmt.Errorf("RATE_MAX_REQUESTS must be > 0, got %d", c.RateMaxRequests))
	}
	switch c.StoreBackend {
	case backendMongo:
		if c.MongoURI == "" {
			errs = append(errs, errors.New("MONGO_URI is required when STORE_BACKEND=mongo"))
		}
	case backendBadger, backendMemory:
	default:
		errs = append(errs, fmt.Errorf("STORE_BACKEND must be mongo, badger or memory, got %q", c.StoreBackend))
	}
	switch c.LogFormat {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be json or console, got %q", c.LogFormat))
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("LOG_LEVEL: %w", err))
	}
	if c.RateStatsBucket != "minute" && c.RateStatsBucket != "none" {
		errs = append(errs, fmt.Errorf("RATE_STATS_BUCKET must be minute or none, got %q", c.RateStatsBucket))
	}
	if c.ConcurrencyMax < 0 {
		errs = append(errs, fmt.Errorf("CONCURRENCY_MAX must be >= 0, got %d", c.ConcurrencyMax))
	}
	if c.ShutdownTimeout <= 0 {
		errs = append(errs, fmt.Errorf("SHUTDOWN_TIMEOUT must be > 0, got %s", c.ShutdownTimeout))
	}
	return errors.Join(errs...)
}

// redisOptions desliga os retries do go-redis: com o Redis fora, o rate
// limit falha aberto na primeira tentativa.
func (c config) redisOptions() *redis.Options {
	return &redis.Options{
		Addr:         c.RedisAddr,
		Password:     c.RedisPassword,
		DB:           c.RedisDB,
		DialTimeout:  c.RedisTimeout,
		ReadTimeout:  c.RedisTimeout,
		WriteTimeout: c.RedisTimeout,
		MaxRetries:   -1,
	}
}

func newLogger(c config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	if c.LogFormat == "console" {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}
