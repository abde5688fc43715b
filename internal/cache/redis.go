package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "market:snapshot:"

// Redis shares snapshots between processes. Expiry is left to the server TTL.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	return &Redis{client: client, ttl: ttl}
}

func (r *Redis) Get(ctx context.Context, symbol string) (*Entry, error) {
	data, err := r.client.Get(ctx, keyPrefix+symbol).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", symbol, err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("decode cached snapshot %s: %w", symbol, err)
	}
	return &entry, nil
}

func (r *Redis) Set(ctx context.Context, entry Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode snapshot %s: %w", entry.Symbol, err)
	}

	if err := r.client.Set(ctx, keyPrefix+entry.Symbol, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", entry.Symbol, err)
	}
	return nil
}
