package lock

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// deleteIfOwnerScript performs the check-and-delete atomically on the
// server.  GET followed by DEL from the client would race with TTL
// expiry and a competing acquire.
var deleteIfOwnerScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisStore backs a Locker with a shared Redis instance using
// SET NX PX for acquisition and a Lua script for release.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore returns a RedisStore over the given client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// SetIfAbsent maps directly onto SET key token NX PX ttl.
func (s *RedisStore) SetIfAbsent(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	return s.client.SetNX(ctx, key, token, ttl).Result()
}

// DeleteIfOwner runs the check-and-delete script.
func (s *RedisStore) DeleteIfOwner(ctx context.Context, key, token string) (bool, error) {
	n, err := deleteIfOwnerScript.Run(ctx, s.client, []string{key}, token).Int64()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
