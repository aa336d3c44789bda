package symbol

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// DefaultRedisKey is the hash holding persisted aliases.
const DefaultRedisKey = "pricesync:aliases"

// RedisAliases keeps aliases in memory and writes them through to a Redis hash
// so they survive restarts. Redis errors are logged and never surface; the
// memory tier keeps serving.
type RedisAliases struct {
	mem *MemoryAliases
	rdb redis.Cmdable
	key string
	log zerolog.Logger
}

// NewRedisAliases wraps mem with a Redis tier stored under key.
func NewRedisAliases(mem *MemoryAliases, rdb redis.Cmdable, key string, log zerolog.Logger) *RedisAliases {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisAliases{
		mem: mem,
		rdb: rdb,
		key: key,
		log: log.With().Str("component", "aliases").Logger(),
	}
}

// Connect creates a Redis client and pings it.
func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

func (r *RedisAliases) Lookup(ctx context.Context, raw string) (string, bool) {
	if v, ok := r.mem.Lookup(ctx, raw); ok {
		return v, true
	}
	key := Normalize(raw)
	v, err := r.rdb.HGet(ctx, r.key, key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.log.Warn().Err(err).Str("raw", key).Msg("redis alias lookup failed")
		}
		return "", false
	}
	r.mem.Store(ctx, key, v)
	return v, true
}

func (r *RedisAliases) Store(ctx context.Context, raw, canonical string) {
	r.mem.Store(ctx, raw, canonical)
	if err := r.rdb.HSet(ctx, r.key, Normalize(raw), Normalize(canonical)).Err(); err != nil {
		r.log.Warn().Err(err).Str("raw", Normalize(raw)).Msg("redis alias store failed")
	}
}

func (r *RedisAliases) Forget(ctx context.Context, raw string) {
	r.mem.Forget(ctx, raw)
	if err := r.rdb.HDel(ctx, r.key, Normalize(raw)).Err(); err != nil {
		r.log.Warn().Err(err).Str("raw", Normalize(raw)).Msg("redis alias delete failed")
	}
}

func (r *RedisAliases) RecordMiss(ctx context.Context, raw string) bool {
	if !r.mem.RecordMiss(ctx, raw) {
		return false
	}
	if err := r.rdb.HDel(ctx, r.key, Normalize(raw)).Err(); err != nil {
		r.log.Warn().Err(err).Str("raw", Normalize(raw)).Msg("redis alias delete failed")
	}
	return true
}

func (r *RedisAliases) RecordHit(ctx context.Context, raw string) {
	r.mem.RecordHit(ctx, raw)
}
