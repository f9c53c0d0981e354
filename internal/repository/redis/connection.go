package redis

import (
	"context"
	"fmt"

	"github.com/dom/werewolf/internal/repository"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// NewClient parses a redis:// URL and checks the server is reachable.
func NewClient(ctx context.Context, rawURL string) (*goredis.Client, error) {
	opt, err := goredis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	rdb := goredis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}
	return rdb, nil
}

// NewRepositories wires every Redis backed repository onto one client.
func NewRepositories(rdb *goredis.Client, opts repository.Options, logger *zap.Logger) *repository.Repositories {
	return &repository.Repositories{
		Games:    NewGameRepository(rdb, opts.RoomTTL),
		Locks:    NewLocker(rdb, opts.LockTTL, opts.LockWait),
		Presence: NewPresenceRepository(rdb, opts.PresenceTTL),
		Bus:      NewBus(rdb, logger),
	}
}

func gameKey(roomID string) string { return "game:" + roomID }

func lockKey(roomID string) string { return "game:" + roomID + ":lock" }

func presenceKey(roomID, playerID string) string {
	return "presence:" + roomID + ":" + playerID
}

const channelPrefix = "room:"

func channelName(roomID string) string { return channelPrefix + roomID }
