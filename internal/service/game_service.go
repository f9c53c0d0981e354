package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/dom/werewolf/internal/domain"
	"github.com/dom/werewolf/internal/repository"
	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"go.uber.org/zap"
)

const (
	roomIDAlphabet = "abcdefghijkmnpqrstuvwxyz23456789"
	roomIDLength   = 8
	roomIDAttempts = 5
)

// StateBroadcaster pushes the latest state of a room to every connection.
type StateBroadcaster interface {
	BroadcastGame(ctx context.Context, game *domain.Game) error
}

// GameService serializes every mutation of a room behind its lock: lock, load,
// mutate, save, unlock, then broadcast.
type GameService struct {
	games       repository.GameRepository
	locks       repository.Locker
	presence    repository.PresenceRepository
	broadcaster StateBroadcaster
	logger      *zap.Logger

	defaultSettings domain.Settings
	newRoomID       func() (string, error)
	shuffle         domain.Shuffler
}

func NewGameService(
	repos *repository.Repositories,
	broadcaster StateBroadcaster,
	defaults domain.Settings,
	logger *zap.Logger,
) *GameService {
	return &GameService{
		games:           repos.Games,
		locks:           repos.Locks,
		presence:        repos.Presence,
		broadcaster:     broadcaster,
		logger:          logger.Named("game"),
		defaultSettings: defaults,
		newRoomID: func() (string, error) {
			return gonanoid.Generate(roomIDAlphabet, roomIDLength)
		},
	}
}

// JoinResult is returned to a player entering a room.
type JoinResult struct {
	PlayerID string
	View     *domain.GameView
}

// mutation changes a loaded game. It reports whether anything changed so
// rejoins and other no-ops skip the save and broadcast.
type mutation func(g *domain.Game) (bool, error)

// CreateRoom stores a new empty room. nil settings use the defaults.
func (s *GameService) CreateRoom(ctx context.Context, settings *domain.Settings) (*domain.GameView, error) {
	cfg := s.defaultSettings.Clone()
	if settings != nil {
		cfg = settings.Clone()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	roomID, err := s.allocateRoomID(ctx)
	if err != nil {
		return nil, err
	}

	game := domain.NewGame(roomID, cfg)
	if err := s.games.Save(ctx, game); err != nil {
		return nil, err
	}
	s.logger.Info("room created", zap.String("room_id", roomID))
	return domain.Project(game, "", nil), nil
}

func (s *GameService) allocateRoomID(ctx context.Context) (string, error) {
	for i := 0; i < roomIDAttempts; i++ {
		id, err := s.newRoomID()
		if err != nil {
			return "", fmt.Errorf("generating room id: %w", err)
		}
		exists, err := s.games.Exists(ctx, id)
		if err != nil {
			return "", err
		}
		if !exists {
			return id, nil
		}
	}
	return "", errors.New("could not allocate a free room id")
}

// GetView returns the room as seen by playerID, or the public view when
// playerID is empty. It does not take the lock.
func (s *GameService) GetView(ctx context.Context, roomID, playerID string) (*domain.GameView, error) {
	game, err := s.games.Get(ctx, roomID)
	if err != nil {
		return nil, err
	}
	return domain.Project(game, playerID, s.online(ctx, game)), nil
}

// GetGame loads the raw aggregate.
func (s *GameService) GetGame(ctx context.Context, roomID string) (*domain.Game, error) {
	return s.games.Get(ctx, roomID)
}

// RoomExists reports whether a room is currently stored.
func (s *GameService) RoomExists(ctx context.Context, roomID string) (bool, error) {
	return s.games.Exists(ctx, roomID)
}

// JoinRoom adds a player. A known playerID rejoins without changing anything.
func (s *GameService) JoinRoom(ctx context.Context, roomID, nickname, playerID string) (*JoinResult, error) {
	var joined string
	game, err := s.withRoomLock(ctx, roomID, func(g *domain.Game) (bool, error) {
		if playerID != "" {
			if _, ok := g.Players[playerID]; ok {
				joined = playerID
				return false, nil
			}
		}
		id := playerID
		if id == "" {
			id = uuid.NewString()
		}
		if _, err := g.AddPlayer(id, nickname); err != nil {
			return false, err
		}
		joined = id
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return &JoinResult{PlayerID: joined, View: s.project(ctx, game, joined)}, nil
}

func (s *GameService) UpdateSettings(ctx context.Context, roomID, playerID string, settings domain.Settings) (*domain.GameView, error) {
	return s.mutate(ctx, roomID, playerID, func(g *domain.Game) (bool, error) {
		return true, g.UpdateSettings(playerID, settings)
	})
}

func (s *GameService) AutoBalance(ctx context.Context, roomID, playerID string) (*domain.GameView, error) {
	return s.mutate(ctx, roomID, playerID, func(g *domain.Game) (bool, error) {
		return true, g.AutoBalance(playerID)
	})
}

// StartInput carries the optional parts of a start request.
type StartInput struct {
	Settings    *domain.Settings
	AutoBalance bool
}

func (s *GameService) StartGame(ctx context.Context, roomID, playerID string, in StartInput) (*domain.GameView, error) {
	return s.mutate(ctx, roomID, playerID, func(g *domain.Game) (bool, error) {
		return true, g.Start(playerID, domain.StartOptions{
			Settings:    in.Settings,
			AutoBalance: in.AutoBalance,
			Shuffle:     s.shuffle,
		})
	})
}

func (s *GameService) SubmitAction(ctx context.Context, roomID, playerID string, action domain.Action) (*domain.GameView, error) {
	return s.mutate(ctx, roomID, playerID, func(g *domain.Game) (bool, error) {
		_, err := g.SubmitAction(playerID, action)
		return true, err
	})
}

func (s *GameService) SubmitVote(ctx context.Context, roomID, playerID, targetID string) (*domain.GameView, error) {
	return s.mutate(ctx, roomID, playerID, func(g *domain.Game) (bool, error) {
		_, err := g.SubmitVote(playerID, targetID)
		return true, err
	})
}

// EndGame cancels a running game. It takes the room lock like every other
// mutation.
func (s *GameService) EndGame(ctx context.Context, roomID, playerID string) (*domain.GameView, error) {
	return s.mutate(ctx, roomID, playerID, func(g *domain.Game) (bool, error) {
		return true, g.End(playerID)
	})
}

func (s *GameService) RestartGame(ctx context.Context, roomID, playerID string) (*domain.GameView, error) {
	return s.mutate(ctx, roomID, playerID, func(g *domain.Game) (bool, error) {
		return true, g.Restart(playerID)
	})
}

func (s *GameService) KickPlayer(ctx context.Context, roomID, playerID, targetID string) (*domain.GameView, error) {
	view, err := s.mutate(ctx, roomID, playerID, func(g *domain.Game) (bool, error) {
		return true, g.Kick(playerID, targetID)
	})
	if err != nil {
		return nil, err
	}
	s.dropPresence(ctx, roomID, targetID)
	return view, nil
}

func (s *GameService) LeaveRoom(ctx context.Context, roomID, playerID string) (*domain.GameView, error) {
	view, err := s.mutate(ctx, roomID, "", func(g *domain.Game) (bool, error) {
		return true, g.Leave(playerID)
	})
	if err != nil {
		return nil, err
	}
	s.dropPresence(ctx, roomID, playerID)
	return view, nil
}

func (s *GameService) mutate(ctx context.Context, roomID, viewerID string, fn mutation) (*domain.GameView, error) {
	game, err := s.withRoomLock(ctx, roomID, fn)
	if err != nil {
		return nil, err
	}
	return s.project(ctx, game, viewerID), nil
}

// withRoomLock runs fn on a freshly loaded game while holding the room lock.
// The game is saved only when fn succeeds and reports a change. The broadcast
// also happens under the lock so rooms publish their states in save order.
func (s *GameService) withRoomLock(ctx context.Context, roomID string, fn mutation) (*domain.Game, error) {
	lock, err := s.locks.Acquire(ctx, roomID)
	if err != nil {
		return nil, err
	}
	defer func() {
		if rerr := lock.Release(context.WithoutCancel(ctx)); rerr != nil {
			s.logger.Warn("failed to release room lock", zap.String("room_id", roomID), zap.Error(rerr))
		}
	}()

	game, changed, err := s.loadAndApply(ctx, roomID, fn)
	if err != nil {
		return nil, err
	}

	if changed {
		if berr := s.broadcaster.BroadcastGame(ctx, game); berr != nil {
			s.logger.Error("failed to broadcast state", zap.String("room_id", roomID), zap.Error(berr))
		}
	}
	return game, nil
}

func (s *GameService) loadAndApply(ctx context.Context, roomID string, fn mutation) (*domain.Game, bool, error) {
	game, err := s.games.Get(ctx, roomID)
	if err != nil {
		return nil, false, err
	}

	before := game.Phase
	changed, err := fn(game)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidAction) || errors.Is(err, domain.ErrInvalidSettings) {
			s.logger.Debug("rejected", zap.String("room_id", roomID), zap.Error(err))
		}
		return nil, false, err
	}
	if !changed {
		return game, false, nil
	}

	game.Version++
	if err := s.games.Save(ctx, game); err != nil {
		return nil, false, err
	}

	if game.Phase != before {
		fields := []zap.Field{
			zap.String("room_id", roomID),
			zap.String("from", string(before)),
			zap.String("to", string(game.Phase)),
			zap.Int("turn", game.TurnCount),
		}
		if game.Winners != "" {
			fields = append(fields, zap.String("winners", string(game.Winners)))
		}
		s.logger.Info("phase changed", fields...)
	}
	return game, true, nil
}

func (s *GameService) project(ctx context.Context, game *domain.Game, viewerID string) *domain.GameView {
	return domain.Project(game, viewerID, s.online(ctx, game))
}

func (s *GameService) online(ctx context.Context, game *domain.Game) map[string]bool {
	if s.presence == nil {
		return nil
	}
	online, err := s.presence.Online(ctx, game.RoomID, game.PlayerIDs())
	if err != nil {
		s.logger.Warn("failed to read presence", zap.String("room_id", game.RoomID), zap.Error(err))
		return nil
	}
	return online
}

func (s *GameService) dropPresence(ctx context.Context, roomID, playerID string) {
	if s.presence == nil {
		return
	}
	if err := s.presence.Remove(ctx, roomID, playerID); err != nil {
		s.logger.Warn("failed to clear presence", zap.String("room_id", roomID), zap.String("player_id", playerID), zap.Error(err))
	}
}
