package websocket

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dom/werewolf/internal/domain"
	"github.com/dom/werewolf/internal/repository"
	"go.uber.org/zap"
)

// Broadcaster publishes room events on the bus. Every process running a Hub
// relays them to its local sockets.
type Broadcaster struct {
	bus      repository.Bus
	presence repository.PresenceRepository
	logger   *zap.Logger
}

func NewBroadcaster(bus repository.Bus, presence repository.PresenceRepository, logger *zap.Logger) *Broadcaster {
	return &Broadcaster{bus: bus, presence: presence, logger: logger.Named("broadcaster")}
}

// BroadcastGame publishes one filtered view per player plus the public view.
func (b *Broadcaster) BroadcastGame(ctx context.Context, game *domain.Game) error {
	ids := game.PlayerIDs()
	online, err := b.presence.Online(ctx, game.RoomID, ids)
	if err != nil {
		b.logger.Warn("failed to read presence", zap.String("room_id", game.RoomID), zap.Error(err))
		online = nil
	}

	env := envelope{
		Type:    MessageTypeStateUpdate,
		RoomID:  game.RoomID,
		Version: game.Version,
		Views:   make(map[string]json.RawMessage, len(ids)),
	}
	for _, id := range ids {
		view, err := json.Marshal(domain.Project(game, id, online))
		if err != nil {
			return fmt.Errorf("encoding view for %s: %w", id, err)
		}
		env.Views[id] = view
	}
	if env.Public, err = json.Marshal(domain.Project(game, "", online)); err != nil {
		return fmt.Errorf("encoding public view: %w", err)
	}
	return b.publish(ctx, &env)
}

// BroadcastPresence publishes a PLAYER_DISCONNECTED or PLAYER_RECONNECTED event.
func (b *Broadcaster) BroadcastPresence(ctx context.Context, msgType MessageType, roomID, playerID, nickname string) error {
	payload, err := json.Marshal(PresencePayload{PlayerID: playerID, Nickname: nickname})
	if err != nil {
		return err
	}
	return b.publish(ctx, &envelope{Type: msgType, RoomID: roomID, Payload: payload})
}

func (b *Broadcaster) publish(ctx context.Context, env *envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	if err := b.bus.Publish(ctx, env.RoomID, data); err != nil {
		return fmt.Errorf("publishing to room %s: %w", env.RoomID, err)
	}
	return nil
}
