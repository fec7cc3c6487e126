package infra

import (
	"context"
	"sync"
	"time"

	"message-board/ratelimit/domain"
)

// MemoryCounterStore implementa domain.CounterStore em memória.
//
// O check-and-increment roda inteiro sob o mutex, então é atômico para
// chamadas concorrentes no mesmo processo. Útil para testes e desenvolvimento;
// não é compartilhado entre réplicas.
type MemoryCounterStore struct {
	mu           sync.Mutex
	entries      map[string]*counterEntry
	now          func() time.Time
	cleanupEvery time.Duration
}

type counterEntry struct {
	count     int64
	expiresAt time.Time
}

type MemoryCounterOption func(*MemoryCounterStore)

func WithCleanupEvery(d time.Duration) MemoryCounterOption {
	return func(s *MemoryCounterStore) { s.cleanupEvery = d }
}

func WithCounterClock(now func() time.Time) MemoryCounterOption {
	return func(s *MemoryCounterStore) { s.now = now }
}

func NewMemoryCounterStore(opts ...MemoryCounterOption) *MemoryCounterStore {
	s := &MemoryCounterStore{
		entries:      make(map[string]*counterEntry),
		now:          time.Now,
		cleanupEvery: 2 * time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryCounterStore) CleanupEvery() time.Duration { return s.cleanupEvery }

func (s *MemoryCounterStore) CheckAndIncrement(_ context.Context, key string, max int64, ttl time.Duration) (domain.CounterResult, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	ent := s.live(key, now)
	if ent != nil && ent.count >= max {
		return domain.CounterResult{Count: ent.count, Limited: true, TTL: ent.expiresAt.Sub(now)}, nil
	}
	if ent == nil {
		if max <= 0 {
			return domain.CounterResult{Limited: true}, nil
		}
		ent = &counterEntry{expiresAt: now.Add(ttl)}
		s.entries[key] = ent
	}
	ent.count++
	return domain.CounterResult{Count: ent.count, TTL: ent.expiresAt.Sub(now)}, nil
}

func (s *MemoryCounterStore) Get(_ context.Context, key string) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ent := s.live(key, s.now())
	if ent == nil {
		return 0, false, nil
	}
	return ent.count, true, nil
}

func (s *MemoryCounterStore) TTL(_ context.Context, key string) (time.Duration, bool, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	ent := s.live(key, now)
	if ent == nil {
		return 0, false, nil
	}
	return ent.expiresAt.Sub(now), true, nil
}

func (s *MemoryCounterStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, key)
	return nil
}

// Len devolve quantos contadores estão guardados (inclusive expirados ainda não limpos).
func (s *MemoryCounterStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// live devolve a entrada se ela não expirou. Chamar com s.mu travado.
func (s *MemoryCounterStore) live(key string, now time.Time) *counterEntry {
	ent, ok := s.entries[key]
	if !ok {
		return nil
	}
	if !now.Before(ent.expiresAt) {
		delete(s.entries, key)
		return nil
	}
	return ent
}

func (s *MemoryCounterStore) Cleanup() {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for k, ent := range s.entries {
		if !now.Before(ent.expiresAt) {
			delete(s.entries, k)
		}
	}
}

// StartJanitor inicia uma goroutine que remove contadores expirados periodicamente.
// Pare cancelando o contexto.
func (s *MemoryCounterStore) StartJanitor(ctx DoneContext) {
	if s.cleanupEvery <= 0 {
		return
	}

	t := time.NewTicker(s.cleanupEvery)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.Cleanup()
			}
		}
	}()
}

// DoneContext é o mínimo necessário para aceitar context.Context sem importar context aqui.
// (Permite reuso em libs sem acoplar.)
type DoneContext interface {
	Done() <-chan struct{}
}
