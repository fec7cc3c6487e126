package infra

import (
	"context"
	"errors"
	"fmt"
	"time"

	"message-board/ratelimit/domain"

	"github.com/redis/go-redis/v9"
)

// Check-and-increment atômico: KEYS[1]=contador; ARGV[1]=max; ARGV[2]=ttl em ms.
// Retorna {count, limited(0|1), pttl}. Quando limitado nada é escrito.
var checkAndIncrementScript = redis.NewScript(`
local current = tonumber(redis.call('GET', KEYS[1]) or '0')
local max = tonumber(ARGV[1])
if current >= max then
  return {current, 1, redis.call('PTTL', KEYS[1])}
end
local n = redis.call('INCR', KEYS[1])
local ttl = redis.call('PTTL', KEYS[1])
if ttl < 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[2])
  ttl = tonumber(ARGV[2])
end
return {n, 0, ttl}
`)

// RedisCounterStore implementa domain.CounterStore com Redis.
//
// O check-and-increment é um único EVAL, então N chamadas simultâneas na mesma
// chave nunca passam de max.
type RedisCounterStore struct {
	rdb redis.UniversalClient
}

func NewRedisCounterStore(rdb redis.UniversalClient) *RedisCounterStore {
	return &RedisCounterStore{rdb: rdb}
}

func (s *RedisCounterStore) CheckAndIncrement(ctx context.Context, key string, max int64, ttl time.Duration) (domain.CounterResult, error) {
	ttlMs := ttl.Milliseconds()
	if ttlMs <= 0 {
		ttlMs = 1
	}

	vals, err := checkAndIncrementScript.Run(ctx, s.rdb, []string{key}, max, ttlMs).Int64Slice()
	if err != nil {
		return domain.CounterResult{}, fmt.Errorf("redis check-and-increment %q: %w", key, err)
	}
	if len(vals) != 3 {
		return domain.CounterResult{}, fmt.Errorf("unexpected lua result: %v", vals)
	}

	res := domain.CounterResult{
		Count:   vals[0],
		Limited: vals[1] == 1,
	}
	if vals[2] > 0 {
		res.TTL = time.Duration(vals[2]) * time.Millisecond
	}
	return res, nil
}

func (s *RedisCounterStore) Get(ctx context.Context, key string) (int64, bool, error) {
	n, err := s.rdb.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("redis get %q: %w", key, err)
	}
	return n, true, nil
}

// TTL devolve ok=false quando a chave não existe ou não tem expiração.
func (s *RedisCounterStore) TTL(ctx context.Context, key string) (time.Duration, bool, error) {
	d, err := s.rdb.PTTL(ctx, key).Result()
	if err != nil {
		return 0, false, fmt.Errorf("redis pttl %q: %w", key, err)
	}
	if d <= 0 {
		return 0, false, nil
	}
	return d, true, nil
}

func (s *RedisCounterStore) Delete(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del %q: %w", key, err)
	}
	return nil
}
