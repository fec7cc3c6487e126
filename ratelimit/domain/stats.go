package domain

import (
	"context"
	"time"
)

// StatsEvent representa um evento de decisão do rate limit.
//
// Operation é uma string genérica ("post_message", "status", ...), sem
// acoplamento com HTTP.
//
// Observação: cuidado com cardinalidade ao rastrear Key (um hash por usuário).
type StatsEvent struct {
	Key       Key
	Allowed   bool
	FailOpen  bool
	Operation string

	At time.Time
}

// StatsStore é a estratégia de persistência para estatísticas do rate limit.
//
// Implementações podem armazenar em Redis, memória, etc.
// O chamador trata erro como best-effort (não derruba a operação).
type StatsStore interface {
	Record(ctx context.Context, ev StatsEvent) error
}
