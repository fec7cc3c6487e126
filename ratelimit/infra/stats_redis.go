package infra

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"message-board/ratelimit/domain"

	"github.com/redis/go-redis/v9"
)

const (
	fieldAllowed  = "allowed"
	fieldDenied   = "denied"
	fieldFailOpen = "fail_open"
)

type RedisStatsStore struct {
	rdb redis.UniversalClient

	prefix string
	// ttl aplica apenas em chaves de série temporal / por key.
	// total é cumulativo e não expira.
	ttl time.Duration

	bucket string // "minute" (padrão) ou "none"

	trackKeys bool
}

type RedisStatsOption func(*RedisStatsStore)

func WithStatsPrefix(prefix string) RedisStatsOption {
	return func(s *RedisStatsStore) {
		s.prefix = strings.Trim(prefix, ":")
	}
}

func WithStatsTTL(d time.Duration) RedisStatsOption {
	return func(s *RedisStatsStore) { s.ttl = d }
}

func WithStatsBucket(bucket string) RedisStatsOption {
	return func(s *RedisStatsStore) { s.bucket = strings.ToLower(strings.TrimSpace(bucket)) }
}

func WithStatsTrackKeys(track bool) RedisStatsOption {
	return func(s *RedisStatsStore) { s.trackKeys = track }
}

func NewRedisStatsStore(rdb redis.UniversalClient, opts ...RedisStatsOption) *RedisStatsStore {
	s := &RedisStatsStore{
		rdb:    rdb,
		prefix: "ratelimit:stats",
		ttl:    24 * time.Hour,
		bucket: "minute",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStatsStore) totalKey() string { return s.prefix + ":total" }

func (s *RedisStatsStore) bucketKey(at time.Time) string {
	return fmt.Sprintf("%s:minute:%s", s.prefix, at.UTC().Format("200601021504"))
}

func (s *RedisStatsStore) Record(ctx context.Context, ev domain.StatsEvent) error {
	if s == nil || s.rdb == nil {
		return nil
	}

	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}

	field := fieldDenied
	if ev.Allowed {
		field = fieldAllowed
	}

	pipe := s.rdb.Pipeline()
	pipe.HIncrBy(ctx, s.totalKey(), field, 1)
	if ev.FailOpen {
		pipe.HIncrBy(ctx, s.totalKey(), fieldFailOpen, 1)
	}

	if s.bucket == "minute" {
		bucketKey := s.bucketKey(at)
		pipe.HIncrBy(ctx, bucketKey, field, 1)
		if s.ttl > 0 {
			pipe.Expire(ctx, bucketKey, s.ttl)
		}
	}

	if op := strings.TrimSpace(ev.Operation); op != "" {
		pipe.HIncrBy(ctx, s.prefix+":op", op+":"+field, 1)
	}

	if s.trackKeys {
		k := strings.TrimSpace(string(ev.Key))
		if k != "" {
			keyKey := s.prefix + ":key:" + k
			pipe.HIncrBy(ctx, keyKey, field, 1)
			if s.ttl > 0 {
				pipe.Expire(ctx, keyKey, s.ttl)
			}
		}
	}

	_, err := pipe.Exec(ctx)
	return err
}

// Total lê os contadores cumulativos.
func (s *RedisStatsStore) Total(ctx context.Context) (Counters, error) {
	vals, err := s.rdb.HGetAll(ctx, s.totalKey()).Result()
	if err != nil {
		return Counters{}, err
	}
	var c Counters
	for field, raw := range vals {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return Counters{}, fmt.Errorf("stats field %s: %w", field, err)
		}
		switch field {
		case fieldAllowed:
			c.Allowed = n
		case fieldDenied:
			c.Denied = n
		case fieldFailOpen:
			c.FailOpen = n
		}
	}
	return c, nil
}
