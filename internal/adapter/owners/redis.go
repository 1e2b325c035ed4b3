package owners

import (
	"context"

	"github.com/dimencity996-star/lighearth-pro-dev/internal/config"
	"github.com/dimencity996-star/lighearth-pro-dev/internal/core/port"

	"github.com/redis/go-redis/v9"
)

const ownersHashKey = "lighearth:owners"

// RedisRegistry looks device owners up in a redis hash, falling back to a
// secondary registry when the hash has no entry or redis is unreachable.
// Owner persistence itself is an external collaborator's concern; this
// adapter only reads.
type RedisRegistry struct {
	client   *redis.Client
	fallback port.OwnerRegistry
}

func NewRedisRegistry(addr string, fallback port.OwnerRegistry) *RedisRegistry {
	return &RedisRegistry{
		client: redis.NewClient(&redis.Options{
			Addr:       addr,
			MaxRetries: 3,
		}),
		fallback: fallback,
	}
}

func (r *RedisRegistry) OwnerOf(ctx context.Context, deviceId string) (string, error) {
	owner, err := r.client.HGet(ctx, ownersHashKey, deviceId).Result()
	if err == redis.Nil || (err == nil && owner == "") {
		return r.fallback.OwnerOf(ctx, deviceId)
	}
	if err != nil {
		// unreachable redis degrades to the static map, it never blocks
		// an alert
		return r.fallback.OwnerOf(ctx, deviceId)
	}
	return owner, nil
}

func (r *RedisRegistry) Close() error {
	return r.client.Close()
}

// NewRegistry builds the owner lookup chain from config: redis when an
// address is set, static map otherwise.
func NewRegistry(cfg config.OwnersConfig) port.OwnerRegistry {
	static := NewStaticRegistry(cfg.Static)
	if cfg.RedisAddr == "" {
		return static
	}
	return NewRedisRegistry(cfg.RedisAddr, static)
}
