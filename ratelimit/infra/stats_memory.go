package infra

import (
	"context"
	"sync"

	"message-board/ratelimit/domain"
)

type Counters struct {
	Allowed  int64
	Denied   int64
	FailOpen int64
}

func (c *Counters) add(ev domain.StatsEvent) {
	if ev.Allowed {
		c.Allowed++
	} else {
		c.Denied++
	}
	if ev.FailOpen {
		c.FailOpen++
	}
}

// MemoryStatsStore é uma implementação simples em memória.
// Útil para testes e para o example-server.
//
// Não faz expiração e não é indicada para produção.
type MemoryStatsStore struct {
	mu          sync.Mutex
	total       Counters
	byOperation map[string]Counters
	byKey       map[domain.Key]Counters

	trackKeys bool
}

type MemoryStatsOption func(*MemoryStatsStore)

func WithTrackKeys(track bool) MemoryStatsOption {
	return func(s *MemoryStatsStore) { s.trackKeys = track }
}

func NewMemoryStatsStore(opts ...MemoryStatsOption) *MemoryStatsStore {
	s := &MemoryStatsStore{
		byOperation: make(map[string]Counters),
		byKey:       make(map[domain.Key]Counters),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStatsStore) Record(_ context.Context, ev domain.StatsEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.total.add(ev)

	c := s.byOperation[ev.Operation]
	c.add(ev)
	s.byOperation[ev.Operation] = c

	if s.trackKeys {
		k := s.byKey[ev.Key]
		k.add(ev)
		s.byKey[ev.Key] = k
	}
	return nil
}

func (s *MemoryStatsStore) Total() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

func (s *MemoryStatsStore) ByOperation() map[string]Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Counters, len(s.byOperation))
	for k, v := range s.byOperation {
		out[k] = v
	}
	return out
}

func (s *MemoryStatsStore) ByKey() map[domain.Key]Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[domain.Key]Counters, len(s.byKey))
	for k, v := range s.byKey {
		out[k] = v
	}
	return out
}
