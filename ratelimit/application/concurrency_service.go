package application

import (
	"context"
	"time"

	"message-board/ratelimit/domain"
)

// ConcurrencyService concentra a regra de aquisição/liberação de vagas com timeout,
// sem saber nada sobre HTTP.
type ConcurrencyService struct {
	Pool           domain.SlotPool
	AcquireTimeout time.Duration
}

// Acquire tenta adquirir uma vaga.
// - Se `AcquireTimeout <= 0`, espera indefinidamente (até ctx cancelar).
// - Se `AcquireTimeout > 0`, espera até o timeout.
// Retorna (release, ok). Se ok=false, nenhuma vaga foi adquirida.
func (s ConcurrencyService) Acquire(ctx context.Context) (func(), bool) {
	if s.Pool == nil {
		return func() {}, true
	}

	acqCtx, cancel := withAcquireTimeout(ctx, s.AcquireTimeout)
	defer cancel()
	return s.Pool.Acquire(acqCtx)
}

// KeyedConcurrencyService é a mesma regra com uma vaga por chave.
// Usado para serializar as escritas na cadeia de mensagens de um mesmo usuário.
//
// Pool nil desliga a serialização.
type KeyedConcurrencyService struct {
	Pool           domain.KeyedPool
	AcquireTimeout time.Duration
}

func (s KeyedConcurrencyService) Acquire(ctx context.Context, key domain.Key) (func(), bool) {
	if s.Pool == nil {
		return func() {}, true
	}

	acqCtx, cancel := withAcquireTimeout(ctx, s.AcquireTimeout)
	defer cancel()
	return s.Pool.Acquire(acqCtx, key)
}

func withAcquireTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}
