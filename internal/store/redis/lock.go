package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

const CycleLockKey = "lock:analysis-cycle"

// releaseScript deletes the key only if it still holds our token.
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Lock is a SET NX PX lock shared by every process using the same Redis.
type Lock struct {
	c   *Client
	key string
	ttl time.Duration
}

// NewLock creates a lock on key that expires after ttl if never released.
func NewLock(c *Client, key string, ttl time.Duration) *Lock {
	return &Lock{c: c, key: key, ttl: ttl}
}

// TryAcquire takes the lock without waiting. It returns a release func when
// acquired and ok=false when another holder owns it.
func (l *Lock) TryAcquire(ctx context.Context) (release func(context.Context) error, ok bool, err error) {
	token := uuid.NewString()
	ok, err = l.c.rdb.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("redis lock %s: %w", l.key, err)
	}
	if !ok {
		return nil, false, nil
	}
	release = func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, l.c.rdb, []string{l.key}, token).Err(); err != nil && err != goredis.Nil {
			return fmt.Errorf("redis unlock %s: %w", l.key, err)
		}
		return nil
	}
	return release, true, nil
}
