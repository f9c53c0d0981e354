package repository

import (
	"context"
	"errors"
	"time"

	"github.com/dom/werewolf/internal/domain"
)

// ErrLockTimeout is returned when a room lock could not be taken in time.
var ErrLockTimeout = errors.New("timed out waiting for room lock")

// GameRepository stores whole game aggregates keyed by room id.
type GameRepository interface {
	// Get returns domain.ErrRoomNotFound when nothing is stored for the room.
	Get(ctx context.Context, roomID string) (*domain.Game, error)
	Save(ctx context.Context, game *domain.Game) error
	Exists(ctx context.Context, roomID string) (bool, error)
	Ping(ctx context.Context) error
}

// Lock is a held room lock.
type Lock interface {
	Release(ctx context.Context) error
}

// Locker hands out per-room mutual exclusion.
type Locker interface {
	// Acquire blocks until the lock is held, ctx is done, or the wait budget
	// runs out, in which case it returns ErrLockTimeout.
	Acquire(ctx context.Context, roomID string) (Lock, error)
}

// PresenceRepository tracks which players currently hold a live connection.
// A player is online while at least one holder, usually a server process,
// has a fresh claim.
type PresenceRepository interface {
	// Touch claims or refreshes presence for playerID on behalf of holder.
	Touch(ctx context.Context, roomID, playerID, holder string) error
	// Release drops the claim of one holder only.
	Release(ctx context.Context, roomID, playerID, holder string) error
	// Remove clears every claim, e.g. when the player leaves the room.
	Remove(ctx context.Context, roomID, playerID string) error
	IsOnline(ctx context.Context, roomID, playerID string) (bool, error)
	Online(ctx context.Context, roomID string, playerIDs []string) (map[string]bool, error)
}

// Subscription is a live subscription to room channels.
type Subscription interface {
	// Messages yields raw payloads with the room id they were published to.
	Messages() <-chan BusMessage
	Close() error
}

// BusMessage is one payload received from the bus.
type BusMessage struct {
	RoomID  string
	Payload []byte
}

// Bus relays room events between server processes.
type Bus interface {
	Publish(ctx context.Context, roomID string, payload []byte) error
	// SubscribeAll receives every room's events.
	SubscribeAll(ctx context.Context) (Subscription, error)
}

// Repositories bundles the storage backends used by the services.
type Repositories struct {
	Games    GameRepository
	Locks    Locker
	Presence PresenceRepository
	Bus      Bus
}

// Options tune key expiry and lock behavior for every backend.
type Options struct {
	RoomTTL     time.Duration
	LockTTL     time.Duration
	LockWait    time.Duration
	PresenceTTL time.Duration
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{
		RoomTTL:     time.Hour,
		LockTTL:     5 * time.Second,
		LockWait:    5 * time.Second,
		PresenceTTL: 30 * time.Second,
	}
}
