package redis

import (
	"context"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

type presenceRepository struct {
	rdb *goredis.Client
	ttl time.Duration
	now func() time.Time
}

// NewPresenceRepository keeps one sorted set per player. Each member is a
// process holding a socket for that player, scored by when its claim expires.
// The key itself expires ttl after the last touch.
func NewPresenceRepository(rdb *goredis.Client, ttl time.Duration) *presenceRepository {
	return &presenceRepository{rdb: rdb, ttl: ttl, now: time.Now}
}

func (r *presenceRepository) Touch(ctx context.Context, roomID, playerID, holder string) error {
	key := presenceKey(roomID, playerID)
	now := r.now()
	_, err := r.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.ZRemRangeByScore(ctx, key, "-inf", millis(now))
		pipe.ZAdd(ctx, key, goredis.Z{Score: float64(now.Add(r.ttl).UnixMilli()), Member: holder})
		pipe.PExpire(ctx, key, r.ttl)
		return nil
	})
	return err
}

func (r *presenceRepository) Release(ctx context.Context, roomID, playerID, holder string) error {
	return r.rdb.ZRem(ctx, presenceKey(roomID, playerID), holder).Err()
}

func (r *presenceRepository) Remove(ctx context.Context, roomID, playerID string) error {
	return r.rdb.Del(ctx, presenceKey(roomID, playerID)).Err()
}

func (r *presenceRepository) IsOnline(ctx context.Context, roomID, playerID string) (bool, error) {
	n, err := r.rdb.ZCount(ctx, presenceKey(roomID, playerID), "("+millis(r.now()), "+inf").Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *presenceRepository) Online(ctx context.Context, roomID string, playerIDs []string) (map[string]bool, error) {
	online := make(map[string]bool, len(playerIDs))
	if len(playerIDs) == 0 {
		return online, nil
	}
	fresh := "(" + millis(r.now())
	counts := make([]*goredis.IntCmd, len(playerIDs))
	_, err := r.rdb.Pipelined(ctx, func(pipe goredis.Pipeliner) error {
		for i, id := range playerIDs {
			counts[i] = pipe.ZCount(ctx, presenceKey(roomID, id), fresh, "+inf")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for i, id := range playerIDs {
		online[id] = counts[i].Val() > 0
	}
	return online, nil
}

func millis(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}
