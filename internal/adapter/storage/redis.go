package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/tmachen/shopfloor/internal/port"
)

const configKeyPrefix = "config:"

// RedisConfigSource reads engine configuration from the external Redis
// key/value store. Keys are stored under the "config:" prefix; a missing
// key is not an error, callers fall back to defaults.
type RedisConfigSource struct {
	client *redis.Client
}

var _ port.ConfigSource = (*RedisConfigSource)(nil)

func NewRedisConfigSource(client *redis.Client) *RedisConfigSource {
	return &RedisConfigSource{client: client}
}

func (r *RedisConfigSource) Lookup(ctx context.Context, key string) (string, bool, error) {
	val, err := r.client.Get(ctx, configKeyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("config get %s: %w", key, err)
	}
	return val, true, nil
}

// Seed writes configuration values, mainly for provisioning and tests.
func (r *RedisConfigSource) Seed(ctx context.Context, values map[string]string) error {
	for k, v := range values {
		if err := r.client.Set(ctx, configKeyPrefix+k, v, 0).Err(); err != nil {
			return fmt.Errorf("config set %s: %w", k, err)
		}
	}
	return nil
}
