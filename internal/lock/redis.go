package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only if it still holds our token, so an
// expired lock taken over by another run is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0
`)

// DefaultTTL bounds how long a crashed run can keep an entity locked.
const DefaultTTL = 15 * time.Minute

const retryInterval = 200 * time.Millisecond

// Redis is a Locker backed by SET NX PX.
type Redis struct {
	client redis.UniversalClient
	ttl    time.Duration
	wait   time.Duration
}

// NewRedis wraps an existing client.
func NewRedis(client redis.UniversalClient, ttl, wait time.Duration) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Redis{client: client, ttl: ttl, wait: wait}
}

// OpenRedis connects to a redis:// URL and pings it.
func OpenRedis(ctx context.Context, url string, ttl, wait time.Duration) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewRedis(client, ttl, wait), nil
}

// Close closes the client.
func (r *Redis) Close() error {
	return r.client.Close()
}

// Acquire sets key to a fresh token if it is unset, retrying until the wait
// time runs out.
func (r *Redis) Acquire(ctx context.Context, key string) (Release, error) {
	token := uuid.NewString()
	deadline := time.Now().Add(r.wait)

	for {
		ok, err := r.client.SetNX(ctx, key, token, r.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			return r.releaser(key, token), nil
		}
		if !time.Now().Before(deadline) {
			return nil, ErrLocked
		}

		select {
		case <-time.After(retryInterval):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (r *Redis) releaser(key, token string) Release {
	return func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, r.client, []string{key}, token).Err(); err != nil {
			return fmt.Errorf("release lock %s: %w", key, err)
		}
		return nil
	}
}
