package domain

// Camada de domínio do rate limit.
//
// Janela fixa: o tempo é dividido em intervalos de mesmo tamanho e cada
// intervalo tem seu próprio contador, que começa do zero.

import (
	"context"
	"strconv"
	"time"
)

// Key identifica quem está sendo limitado (ex: id do usuário).
type Key string

// Window é a janela fixa que contém um instante.
type Window struct {
	Index int64
	Start time.Time
	End   time.Time
}

// WindowAt calcula a janela de `now` com índice floor(now / length).
func WindowAt(now time.Time, length time.Duration) Window {
	ms := length.Milliseconds()
	if ms <= 0 {
		ms = 1
	}
	idx := now.UnixMilli() / ms
	start := time.UnixMilli(idx * ms).UTC()
	return Window{Index: idx, Start: start, End: start.Add(time.Duration(ms) * time.Millisecond)}
}

// CounterKey monta a chave do contador no formato {prefix}:{key}:{windowIndex}.
// Uma janela nova gera uma chave nova, então contadores nunca cruzam fronteiras.
func CounterKey(prefix string, key Key, w Window) string {
	return prefix + ":" + string(key) + ":" + strconv.FormatInt(w.Index, 10)
}

// CounterResult é a resposta do check-and-increment atômico.
type CounterResult struct {
	Count   int64
	Limited bool
	// TTL restante do contador. <= 0 quando a store não sabe informar.
	TTL time.Duration
}

// CounterStore é o contador compartilhado (ex: Redis).
//
// CheckAndIncrement deve ser uma única operação indivisível: ler, comparar com
// max e incrementar (criando com ttl no primeiro incremento). Se o contador já
// está em max, nada é escrito e Limited=true.
type CounterStore interface {
	CheckAndIncrement(ctx context.Context, key string, max int64, ttl time.Duration) (CounterResult, error)
	Get(ctx context.Context, key string) (count int64, ok bool, err error)
	TTL(ctx context.Context, key string) (ttl time.Duration, ok bool, err error)
	Delete(ctx context.Context, key string) error
}

// Info é o estado do limite devolvido a quem chamou.
type Info struct {
	Allowed      bool
	CurrentCount int64
	Remaining    int64
	ResetTime    time.Time
	Limit        int64
	Window       time.Duration
	// FailOpen indica que a store falhou e a decisão foi sintetizada.
	FailOpen bool
}

// Remaining = max(0, limit - count).
func Remaining(limit, count int64) int64 {
	if r := limit - count; r > 0 {
		return r
	}
	return 0
}
