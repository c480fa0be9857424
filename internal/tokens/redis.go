package tokens

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const blacklistKeyPrefix = "revoked_refresh:"

// RedisBlacklist stores revoked refresh-token IDs in Redis, sharing the
// revocation list across server instances. Keys expire together with
// the tokens they block.
type RedisBlacklist struct {
	client *redis.Client
}

// NewRedisBlacklist connects to Redis using a redis:// URL and verifies
// the connection with a ping.
func NewRedisBlacklist(ctx context.Context, url string) (*RedisBlacklist, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	opt.DialTimeout = 5 * time.Second
	opt.ReadTimeout = 3 * time.Second
	opt.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}

	return &RedisBlacklist{client: client}, nil
}

func (b *RedisBlacklist) Add(ctx context.Context, jti string, ttl time.Duration) error {
	return b.client.Set(ctx, blacklistKeyPrefix+jti, "1", ttl).Err()
}

func (b *RedisBlacklist) Contains(ctx context.Context, jti string) (bool, error) {
	n, err := b.client.Exists(ctx, blacklistKeyPrefix+jti).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Close releases the underlying Redis connection.
func (b *RedisBlacklist) Close() error {
	return b.client.Close()
}
