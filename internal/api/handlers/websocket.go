package handlers

import (
	"net/http"

	"github.com/dom/werewolf/internal/websocket"
	"github.com/go-chi/chi/v5"
	ws "github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = ws.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type WebSocketHandler struct {
	hub    *websocket.Hub
	logger *zap.Logger
}

func NewWebSocketHandler(hub *websocket.Hub, logger *zap.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		hub:    hub,
		logger: logger.Named("ws"),
	}
}

// Handle upgrades /ws/{roomID}/{playerID}. The room is checked after the
// upgrade so an unknown room gets a proper close code.
func (h *WebSocketHandler) Handle(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")
	playerID := chi.URLParam(r, "playerID")

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	h.hub.Serve(r.Context(), conn, roomID, playerID)
}
