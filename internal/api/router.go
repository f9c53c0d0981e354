package api

import (
	"net/http"

	"github.com/dom/werewolf/internal/api/handlers"
	"github.com/dom/werewolf/internal/api/middleware"
	"github.com/dom/werewolf/internal/config"
	"github.com/dom/werewolf/internal/service"
	"github.com/dom/werewolf/internal/websocket"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

func NewRouter(services *service.Services, hub *websocket.Hub, checks map[string]handlers.Pinger, cfg *config.Config, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chiMiddleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.CORSOrigins))

	// Initialize handlers
	healthHandler := handlers.NewHealthHandler(checks, cfg.Version, cfg.CommitSHA)
	roomHandler := handlers.NewRoomHandler(services.Game, logger)
	wsHandler := handlers.NewWebSocketHandler(hub, logger)

	r.Get("/health", healthHandler.Check)

	r.Route("/api", func(r chi.Router) {
		r.Get("/roles", handlers.ListRoles)

		r.Route("/rooms", func(r chi.Router) {
			r.Post("/", roomHandler.Create)
			r.Get("/{roomID}", roomHandler.Get)
			r.Post("/{roomID}/join", roomHandler.Join)
			r.Post("/{roomID}/leave", roomHandler.Leave)

			// Admin operations
			r.Post("/{roomID}/settings", roomHandler.UpdateSettings)
			r.Post("/{roomID}/auto-balance", roomHandler.AutoBalance)
			r.Post("/{roomID}/start", roomHandler.Start)
			r.Post("/{roomID}/end", roomHandler.End)
			r.Post("/{roomID}/restart", roomHandler.Restart)
			r.Post("/{roomID}/kick", roomHandler.Kick)

			// Gameplay
			r.Post("/{roomID}/action", roomHandler.Action)
			r.Post("/{roomID}/vote", roomHandler.Vote)
		})
	})

	// WebSocket endpoint
	r.Get("/ws/{roomID}/{playerID}", wsHandler.Handle)

	return r
}
