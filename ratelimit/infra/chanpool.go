package infra

import (
	"context"
	"sync"

	"message-board/ratelimit/domain"
)

type chanPool struct {
	sem chan struct{}
}

// NewChanPool cria um pool simples baseado em channel com capacidade `max`.
func NewChanPool(max int) domain.SlotPool {
	return &chanPool{sem: make(chan struct{}, max)}
}

func (p *chanPool) Acquire(ctx context.Context) (func(), bool) {
	select {
	case p.sem <- struct{}{}:
		return func() { <-p.sem }, true
	case <-ctx.Done():
		return nil, false
	}
}

// KeyedPool mantém um semáforo de uma vaga por chave.
// Semáforos sem ninguém usando ou esperando são removidos.
type KeyedPool struct {
	mu    sync.Mutex
	slots map[domain.Key]*keyedSlot
}

type keyedSlot struct {
	sem  chan struct{}
	refs int
}

func NewKeyedPool() *KeyedPool {
	return &KeyedPool{slots: make(map[domain.Key]*keyedSlot)}
}

func (p *KeyedPool) Acquire(ctx context.Context, key domain.Key) (func(), bool) {
	p.mu.Lock()
	s, ok := p.slots[key]
	if !ok {
		s = &keyedSlot{sem: make(chan struct{}, 1)}
		p.slots[key] = s
	}
	s.refs++
	p.mu.Unlock()

	select {
	case s.sem <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-s.sem
				p.unref(key, s)
			})
		}, true
	case <-ctx.Done():
		p.unref(key, s)
		return nil, false
	}
}

func (p *KeyedPool) unref(key domain.Key, s *keyedSlot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(p.slots, key)
	}
}

// Len devolve quantas chaves têm semáforo ativo.
func (p *KeyedPool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.slots)
}
