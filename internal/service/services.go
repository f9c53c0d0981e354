package service

import (
	"github.com/dom/werewolf/internal/config"
	"github.com/dom/werewolf/internal/domain"
	"github.com/dom/werewolf/internal/repository"
	"go.uber.org/zap"
)

type Services struct {
	Game *GameService
}

func NewServices(repos *repository.Repositories, broadcaster StateBroadcaster, cfg *config.Config, logger *zap.Logger) *Services {
	defaults := domain.DefaultSettings()
	defaults.PhaseDurationSeconds = cfg.DefaultPhaseDuration

	return &Services{
		Game: NewGameService(repos, broadcaster, defaults, logger),
	}
}
