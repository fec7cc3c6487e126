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
	"message-board/board/infra"
	"message-board/ratelimit"
	rlapp "message-board/ratelimit/application"
	rlinfra "message-board/ratelimit/infra"

	"github.com/kelseyhightower/envconfig"
	"go.uber.org/zap"
)

// Exemplo: mural inteiro em memória, sem Redis, Mongo nem NATS.
// Cria um usuário de demonstração e imprime o id no log.
type config struct {
	ListenAddr      string        `envconfig:"LISTEN_ADDR" default:":8081"`
	RateWindow      time.Duration `envconfig:"RATE_WINDOW" default:"1m"`
	RateMaxRequests int64         `envconfig:"RATE_MAX_REQUESTS" default:"5"`
}

func main() {
	var cfg config
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("config error: %v", err)
	}
	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	counters := rlinfra.NewMemoryCounterStore()
	counters.StartJanitor(ctx)
	stats := rlinfra.NewMemoryStatsStore(rlinfra.WithTrackKeys(true))

	limiter := rlapp.NewService(counters,
		rlapp.Config{MaxRequests: cfg.RateMaxRequests, Window: cfg.RateWindow},
		rlapp.WithStats(stats),
		rlapp.WithLogger(logger.Named("ratelimit")),
	)
	store := infra.NewMemoryRecordStore()
	svc := application.NewService(store, limiter, chain.New(store, chain.WithLogger(logger.Named("chain"))),
		application.WithLogger(logger.Named("board")),
	)

	demo, err := svc.CreateUser(ctx, application.CreateUserInput{Name: "Demo", Email: "demo@example.com"})
	if err != nil {
		logger.Fatal("create demo user", zap.Error(err))
	}

	h := board.NewRouter(
		board.NewHandler(svc, logger.Named("http")),
		ratelimit.ConcurrencyMiddleware(ratelimit.ConcurrencyOptions{Max: 50, Log: logger.Named("http")}),
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
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)

		t := stats.Total()
		logger.Info("rate limit decisions", zap.Int64("allowed", t.Allowed), zap.Int64("denied", t.Denied))
	}()

	logger.Info("example server listening",
		zap.String("addr", cfg.ListenAddr),
		zap.String("demo_user_id", demo.ID),
		zap.Duration("rate_window", cfg.RateWindow),
		zap.Int64("rate_max", cfg.RateMaxRequests),
	)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server error", zap.Error(err))
	}
}
