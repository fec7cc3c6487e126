package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"message-board/board"
	"message-board/board/application"
	"message-board/board/chain"
	"message-board/board/domain"
	"message-board/board/infra"
	"message-board/ratelimit"
	rlapp "message-board/ratelimit/application"
	rldomain "message-board/ratelimit/domain"
	rlinfra "message-board/ratelimit/infra"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	cfg, err := readConfig()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	logger, err := newLogger(cfg)
	if err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rdb := redis.NewClient(cfg.redisOptions())
	defer func() { _ = rdb.Close() }()

	pingCtx, pingCancel := context.WithTimeout(ctx, cfg.RedisTimeout)
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		// sem Redis o rate limit falha aberto; sobe mesmo assim
		logger.Warn("redis ping failed, rate limiter will fail open", zap.String("addr", cfg.RedisAddr), zap.Error(err))
	}
	pingCancel()

	var stats rldomain.StatsStore
	if cfg.RateStatsEnabled {
		stats = rlinfra.NewRedisStatsStore(
			rdb,
			rlinfra.WithStatsPrefix(cfg.RateStatsPrefix),
			rlinfra.WithStatsTTL(cfg.RateStatsTTL),
			rlinfra.WithStatsBucket(cfg.RateStatsBucket),
			rlinfra.WithStatsTrackKeys(cfg.RateStatsTrackKeys),
		)
	}

	limiter := rlapp.NewService(
		rlinfra.NewRedisCounterStore(rdb),
		rlapp.Config{MaxRequests: cfg.RateMaxRequests, Window: cfg.RateWindow, KeyPrefix: cfg.RateKeyPrefix},
		rlapp.WithStats(stats),
		rlapp.WithLogger(logger.Named("ratelimit")),
	)

	store, closeStore, err := openRecordStore(ctx, cfg)
	if err != nil {
		logger.Fatal("record store error", zap.String("backend", cfg.StoreBackend), zap.Error(err))
	}
	defer closeStore()

	events, closeEvents := openEvents(cfg, logger)
	defer closeEvents()

	msgChain := chain.New(store,
		chain.WithSerializer(rlapp.KeyedConcurrencyService{
			Pool:           rlinfra.NewKeyedPool(),
			AcquireTimeout: cfg.ChainLockTimeout,
		}),
		chain.WithLogger(logger.Named("chain")),
	)
	svc := application.NewService(store, limiter, msgChain,
		application.WithEvents(events),
		application.WithLogger(logger.Named("board")),
	)

	h := board.NewRouter(
		board.NewHandler(svc, logger.Named("http")),
		ratelimit.ConcurrencyMiddleware(ratelimit.ConcurrencyOptions{
			Max:            cfg.ConcurrencyMax,
			RejectStatus:   http.StatusServiceUnavailable,
			AcquireTimeout: cfg.ConcurrencyTimeout,
			Log:            logger.Named("http"),
		}),
	)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("board listening",
		zap.String("addr", cfg.ListenAddr),
		zap.String("store", cfg.StoreBackend),
		zap.Duration("rate_window", cfg.RateWindow),
		zap.Int64("rate_max", cfg.RateMaxRequests),
		zap.Bool("rate_stats", cfg.RateStatsEnabled),
		zap.Bool("events", cfg.NATSURL != ""),
		zap.Int("concurrency_max", cfg.ConcurrencyMax),
	)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server error", zap.Error(err))
	}
}

func openRecordStore(ctx context.Context, cfg config) (domain.RecordStore, func(), error) {
	switch cfg.StoreBackend {
	case backendMongo:
		cli, err := infra.ConnectMongo(ctx, cfg.MongoURI, cfg.MongoTimeout)
		if err != nil {
			return nil, nil, err
		}
		closeFn := func() { _ = cli.Disconnect(context.Background()) }

		idxCtx, cancel := context.WithTimeout(ctx, cfg.MongoTimeout)
		defer cancel()
		s, err := infra.NewMongoRecordStore(idxCtx, cli.Database(cfg.MongoDatabase))
		if err != nil {
			closeFn()
			return nil, nil, err
		}
		return s, closeFn, nil
	case backendBadger:
		db, err := infra.OpenBadger(cfg.BadgerPath)
		if err != nil {
			return nil, nil, err
		}
		return infra.NewBadgerRecordStore(db), func() { _ = db.Close() }, nil
	default:
		return infra.NewMemoryRecordStore(), func() {}, nil
	}
}

// openEvents nunca derruba o processo: sem NATS os eventos são descartados.
func openEvents(cfg config, logger *zap.Logger) (domain.EventPublisher, func()) {
	if cfg.NATSURL == "" {
		return infra.NopPublisher{}, func() {}
	}
	nc, err := infra.ConnectNATS(cfg.NATSURL, "message-board", 2*time.Second)
	if err != nil {
		logger.Warn("nats unavailable, events disabled", zap.String("url", cfg.NATSURL), zap.Error(err))
		return infra.NopPublisher{}, func() {}
	}
	return infra.NewNATSPublisher(nc, cfg.NATSSubjectPrefix), func() { _ = nc.Drain() }
}
