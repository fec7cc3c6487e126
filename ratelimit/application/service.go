package application

import (
	"context"
	"fmt"
	"time"

	"message-board/ratelimit/domain"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	DefaultMaxRequests = 10
	DefaultWindow      = time.Hour
	DefaultKeyPrefix   = "ratelimit"

	OperationCheck  = "check"
	OperationStatus = "status"
)

type Config struct {
	MaxRequests int64
	Window      time.Duration
	KeyPrefix   string
}

// Service concentra a regra de aplicação do rate limit por janela fixa.
//
// Política de falha: se a CounterStore falhar, o Service libera (fail-open)
// e não tenta de novo. Disponibilidade do mural vale mais que a cota exata.
type Service struct {
	store domain.CounterStore
	stats domain.StatsStore
	cfg   Config
	now   func() time.Time
	log   *zap.Logger

	// limita o warning de fail-open para não inundar o log durante uma queda.
	failOpenLog rate.Sometimes
}

type Option func(*Service)

func WithStats(stats domain.StatsStore) Option {
	return func(s *Service) { s.stats = stats }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithLogger(log *zap.Logger) Option {
	return func(s *Service) { s.log = log }
}

func WithFailOpenLogInterval(d time.Duration) Option {
	return func(s *Service) { s.failOpenLog = rate.Sometimes{Interval: d} }
}

func NewService(store domain.CounterStore, cfg Config, opts ...Option) *Service {
	if cfg.MaxRequests < 0 {
		cfg.MaxRequests = 0
	}
	if cfg.MaxRequests == 0 {
		cfg.MaxRequests = DefaultMaxRequests
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = DefaultKeyPrefix
	}
	s := &Service{
		store:       store,
		cfg:         cfg,
		now:         time.Now,
		log:         zap.NewNop(),
		failOpenLog: rate.Sometimes{Interval: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Config() Config { return s.cfg }

// CheckAndRecord decide e contabiliza numa única ida à store.
func (s *Service) CheckAndRecord(ctx context.Context, key domain.Key) domain.Info {
	now := s.now()
	w := domain.WindowAt(now, s.cfg.Window)

	if s.store == nil {
		return s.failOpen(now)
	}

	// o contador expira no fim da janela (windowStart + window).
	ttl := w.End.Sub(now)
	if ttl < time.Millisecond {
		ttl = time.Millisecond
	}

	res, err := s.store.CheckAndIncrement(ctx, s.counterKey(key, w), s.cfg.MaxRequests, ttl)
	if err != nil {
		s.warnFailOpen(key, OperationCheck, err)
		info := s.failOpen(now)
		s.record(ctx, key, info, OperationCheck, now)
		return info
	}

	info := domain.Info{
		Allowed:      !res.Limited,
		CurrentCount: res.Count,
		Remaining:    domain.Remaining(s.cfg.MaxRequests, res.Count),
		ResetTime:    resetTime(now, w, res.TTL),
		Limit:        s.cfg.MaxRequests,
		Window:       s.cfg.Window,
	}
	s.record(ctx, key, info, OperationCheck, now)
	return info
}

// Status é somente leitura: nunca incrementa.
//
// Se a store falhar, devolve um snapshot otimista (contagem zero).
func (s *Service) Status(ctx context.Context, key domain.Key) domain.Info {
	now := s.now()
	w := domain.WindowAt(now, s.cfg.Window)
	ck := s.counterKey(key, w)

	empty := domain.Info{
		Allowed:   true,
		Remaining: s.cfg.MaxRequests,
		ResetTime: w.End,
		Limit:     s.cfg.MaxRequests,
		Window:    s.cfg.Window,
	}
	if s.store == nil {
		empty.FailOpen = true
		return empty
	}

	count, ok, err := s.store.Get(ctx, ck)
	if err != nil {
		s.warnFailOpen(key, OperationStatus, err)
		empty.FailOpen = true
		return empty
	}
	if !ok {
		return empty
	}

	ttl, hasTTL, err := s.store.TTL(ctx, ck)
	if err != nil || !hasTTL {
		ttl = 0
	}

	return domain.Info{
		Allowed:      count < s.cfg.MaxRequests,
		CurrentCount: count,
		Remaining:    domain.Remaining(s.cfg.MaxRequests, count),
		ResetTime:    resetTime(now, w, ttl),
		Limit:        s.cfg.MaxRequests,
		Window:       s.cfg.Window,
	}
}

// Reset apaga o contador da janela atual. Uso administrativo/testes.
func (s *Service) Reset(ctx context.Context, key domain.Key) error {
	if s.store == nil {
		return nil
	}
	w := domain.WindowAt(s.now(), s.cfg.Window)
	if err := s.store.Delete(ctx, s.counterKey(key, w)); err != nil {
		return fmt.Errorf("reset rate limit for %q: %w", key, err)
	}
	return nil
}

func (s *Service) counterKey(key domain.Key, w domain.Window) string {
	return domain.CounterKey(s.cfg.KeyPrefix, key, w)
}

// failOpen sintetiza: permitido, restante = max-1, reset a uma janela de distância.
func (s *Service) failOpen(now time.Time) domain.Info {
	return domain.Info{
		Allowed:      true,
		CurrentCount: 1,
		Remaining:    domain.Remaining(s.cfg.MaxRequests, 1),
		ResetTime:    now.Add(s.cfg.Window),
		Limit:        s.cfg.MaxRequests,
		Window:       s.cfg.Window,
		FailOpen:     true,
	}
}

func (s *Service) warnFailOpen(key domain.Key, op string, err error) {
	s.failOpenLog.Do(func() {
		s.log.Warn("rate limit store unavailable, failing open",
			zap.String("key", string(key)),
			zap.String("operation", op),
			zap.Error(err),
		)
	})
}

func (s *Service) record(ctx context.Context, key domain.Key, info domain.Info, op string, at time.Time) {
	if s.stats == nil {
		return
	}
	_ = s.stats.Record(ctx, domain.StatsEvent{
		Key:       key,
		Allowed:   info.Allowed,
		FailOpen:  info.FailOpen,
		Operation: op,
		At:        at,
	})
}

func resetTime(now time.Time, w domain.Window, ttl time.Duration) time.Time {
	if ttl > 0 {
		return now.Add(ttl)
	}
	return w.End
}
