package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v7"
	"github.com/google/uuid"
	extErrors "github.com/pkg/errors"
)

// Deletes the key only while it still holds our token
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`)

// RedisLock is a single-holder lease stored in Redis
type RedisLock struct {
	client redis.UniversalClient
}

// Lease is a held lock. It expires on its own after the ttl passed to Acquire
type Lease struct {
	Key   string
	token string
}

func NewRedisLock(client redis.UniversalClient) (*RedisLock, error) {
	if client == nil {
		return nil, fmt.Errorf("nil Client is invalid")
	}
	return &RedisLock{
		client: client,
	}, nil
}

// Acquire takes the lock for ttl. It returns nil without an error when someone else holds it
func (l *RedisLock) Acquire(ctx context.Context, key string, ttl time.Duration) (*Lease, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	token := uuid.New().String()
	ok, err := l.client.SetNX(key, token, ttl).Result()
	if err != nil {
		return nil, extErrors.Wrap(err, "Cannot acquire lock")
	}
	if !ok {
		return nil, nil
	}
	return &Lease{
		Key:   key,
		token: token,
	}, nil
}

// Release gives up the lease. Releasing a lease that already expired is a no-op
func (l *RedisLock) Release(ctx context.Context, lease *Lease) error {
	if lease == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := releaseScript.Run(l.client, []string{lease.Key}, lease.token).Err(); err != nil {
		return extErrors.Wrap(err, "Cannot release lock")
	}
	return nil
}
