package labelcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lueurxax/catalog-resolver/internal/core/domain"
	"github.com/lueurxax/catalog-resolver/internal/platform/config"
)

const (
	keyPrefix   = "labelcache:"
	pingTimeout = 5 * time.Second
	defaultTTL  = 24 * time.Hour
)

// redisCmdable is the subset of the redis client the front uses.
type redisCmdable interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisFront stores resolved label cache entries in redis with a TTL.
type RedisFront struct {
	rdb redisCmdable
	ttl time.Duration
}

// NewRedisFront wraps a redis client.
func NewRedisFront(rdb redisCmdable, ttl time.Duration) *RedisFront {
	if ttl <= 0 {
		ttl = defaultTTL
	}

	return &RedisFront{rdb: rdb, ttl: ttl}
}

// Dial connects to redis and verifies the connection.
func Dial(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Addr, err)
	}

	return rdb, nil
}

func redisKey(key domain.LabelKey) string {
	return keyPrefix + strconv.FormatInt(key.SupplierID, 10) + ":" + key.NormalizedLabel
}

func (f *RedisFront) Get(ctx context.Context, key domain.LabelKey) (*domain.LabelCacheEntry, error) {
	data, err := f.rdb.Get(ctx, redisKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var entry domain.LabelCacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("decode cached entry: %w", err)
	}

	return &entry, nil
}

func (f *RedisFront) Set(ctx context.Context, entry domain.LabelCacheEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode cached entry: %w", err)
	}

	key := domain.LabelKey{SupplierID: entry.SupplierID, NormalizedLabel: entry.NormalizedLabel}
	if err := f.rdb.Set(ctx, redisKey(key), data, f.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}

	return nil
}

func (f *RedisFront) Delete(ctx context.Context, keys ...domain.LabelKey) error {
	if len(keys) == 0 {
		return nil
	}

	names := make([]string, len(keys))
	for i, k := range keys {
		names[i] = redisKey(k)
	}

	if err := f.rdb.Del(ctx, names...).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}

	return nil
}
