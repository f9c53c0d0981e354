package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dom/werewolf/internal/domain"
	goredis "github.com/redis/go-redis/v9"
)

type gameRepository struct {
	rdb *goredis.Client
	ttl time.Duration
}

// NewGameRepository stores each game as one JSON value that expires after ttl
// without writes.
func NewGameRepository(rdb *goredis.Client, ttl time.Duration) *gameRepository {
	return &gameRepository{rdb: rdb, ttl: ttl}
}

func (r *gameRepository) Get(ctx context.Context, roomID string) (*domain.Game, error) {
	data, err := r.rdb.Get(ctx, gameKey(roomID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, domain.ErrRoomNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading game %s: %w", roomID, err)
	}

	var game domain.Game
	if err := json.Unmarshal(data, &game); err != nil {
		return nil, fmt.Errorf("decoding game %s: %w", roomID, err)
	}
	return &game, nil
}

func (r *gameRepository) Save(ctx context.Context, game *domain.Game) error {
	data, err := json.Marshal(game)
	if err != nil {
		return fmt.Errorf("encoding game %s: %w", game.RoomID, err)
	}
	if err := r.rdb.Set(ctx, gameKey(game.RoomID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("saving game %s: %w", game.RoomID, err)
	}
	return nil
}

func (r *gameRepository) Exists(ctx context.Context, roomID string) (bool, error) {
	n, err := r.rdb.Exists(ctx, gameKey(roomID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *gameRepository) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}
