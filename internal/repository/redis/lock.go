package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dom/werewolf/internal/repository"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

var errLockHeld = errors.New("lock held by another owner")

// releaseScript deletes the lock only if we still own it.
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type locker struct {
	rdb  *goredis.Client
	ttl  time.Duration
	wait time.Duration
}

// NewLocker returns a Locker built on SET NX PX. Locks expire after ttl even
// if never released; Acquire gives up after wait.
func NewLocker(rdb *goredis.Client, ttl, wait time.Duration) *locker {
	return &locker{rdb: rdb, ttl: ttl, wait: wait}
}

func (l *locker) Acquire(ctx context.Context, roomID string) (repository.Lock, error) {
	key := lockKey(roomID)
	token := uuid.NewString()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 10 * time.Millisecond
	b.MaxInterval = 200 * time.Millisecond
	b.MaxElapsedTime = l.wait

	err := backoff.Retry(func() error {
		ok, err := l.rdb.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return backoff.Permanent(err)
		}
		if !ok {
			return errLockHeld
		}
		return nil
	}, backoff.WithContext(b, ctx))

	switch {
	case err == nil:
		return &lock{rdb: l.rdb, key: key, token: token}, nil
	case errors.Is(err, errLockHeld):
		return nil, repository.ErrLockTimeout
	default:
		return nil, fmt.Errorf("acquiring lock for room %s: %w", roomID, err)
	}
}

type lock struct {
	rdb   *goredis.Client
	key   string
	token string
}

func (l *lock) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, l.rdb, []string{l.key}, l.token).Err(); err != nil {
		return fmt.Errorf("releasing %s: %w", l.key, err)
	}
	return nil
}
