package handlers

import (
	"context"
	"net/http"

	"github.com/dom/werewolf/internal/domain"
	"github.com/dom/werewolf/internal/service"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type RoomHandler struct {
	games  *service.GameService
	logger *zap.Logger
}

func NewRoomHandler(games *service.GameService, logger *zap.Logger) *RoomHandler {
	return &RoomHandler{
		games:  games,
		logger: logger.Named("rooms"),
	}
}

type CreateRoomRequest struct {
	Settings *domain.Settings `json:"settings"`
}

type JoinRoomRequest struct {
	Nickname string `json:"nickname"`
	PlayerID string `json:"player_id"`
}

type PlayerIDRequest struct {
	PlayerID string `json:"player_id"`
}

type StartGameRequest struct {
	PlayerID    string           `json:"player_id"`
	Settings    *domain.Settings `json:"settings"`
	AutoBalance bool             `json:"auto_balance"`
}

type ActionRequest struct {
	PlayerID   string            `json:"player_id"`
	ActionType domain.ActionType `json:"action_type"`
	TargetID   string            `json:"target_id"`
	// Confirmed defaults to true when omitted.
	Confirmed *bool `json:"confirmed"`
}

type VoteRequest struct {
	PlayerID string `json:"player_id"`
	TargetID string `json:"target_id"`
}

type KickPlayerRequest struct {
	PlayerID string `json:"player_id"`
	TargetID string `json:"target_id"`
}

// playerID prefers the body value and falls back to the player_id query
// parameter.
func playerID(r *http.Request, fromBody string) string {
	if fromBody != "" {
		return fromBody
	}
	return r.URL.Query().Get("player_id")
}

func (h *RoomHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateRoomRequest
	if err := decodeBody(r, &req); err != nil {
		writeDetail(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	view, err := h.games.CreateRoom(r.Context(), req.Settings)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *RoomHandler) Get(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")

	view, err := h.games.GetView(r.Context(), roomID, r.URL.Query().Get("player_id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *RoomHandler) Join(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")

	var req JoinRoomRequest
	if err := decodeBody(r, &req); err != nil {
		writeDetail(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	result, err := h.games.JoinRoom(r.Context(), roomID, req.Nickname, req.PlayerID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, result.View)
}

// UpdateSettings takes the settings object as the body and the acting player
// from the query string.
func (h *RoomHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")

	var settings domain.Settings
	if err := decodeBody(r, &settings); err != nil {
		writeDetail(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if settings.RoleDistribution == nil {
		settings = domain.DefaultSettings()
	}

	view, err := h.games.UpdateSettings(r.Context(), roomID, playerID(r, ""), settings)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *RoomHandler) AutoBalance(w http.ResponseWriter, r *http.Request) {
	h.playerOp(w, r, h.games.AutoBalance)
}

func (h *RoomHandler) Start(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")

	var req StartGameRequest
	if err := decodeBody(r, &req); err != nil {
		writeDetail(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	view, err := h.games.StartGame(r.Context(), roomID, playerID(r, req.PlayerID), service.StartInput{
		Settings:    req.Settings,
		AutoBalance: req.AutoBalance,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *RoomHandler) Action(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")

	var req ActionRequest
	if err := decodeBody(r, &req); err != nil {
		writeDetail(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	confirmed := true
	if req.Confirmed != nil {
		confirmed = *req.Confirmed
	}

	view, err := h.games.SubmitAction(r.Context(), roomID, playerID(r, req.PlayerID), domain.Action{
		Type:      req.ActionType,
		TargetID:  req.TargetID,
		Confirmed: confirmed,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *RoomHandler) Vote(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")

	var req VoteRequest
	if err := decodeBody(r, &req); err != nil {
		writeDetail(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	view, err := h.games.SubmitVote(r.Context(), roomID, playerID(r, req.PlayerID), req.TargetID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *RoomHandler) End(w http.ResponseWriter, r *http.Request) {
	h.playerOp(w, r, h.games.EndGame)
}

func (h *RoomHandler) Restart(w http.ResponseWriter, r *http.Request) {
	h.playerOp(w, r, h.games.RestartGame)
}

func (h *RoomHandler) Leave(w http.ResponseWriter, r *http.Request) {
	h.playerOp(w, r, h.games.LeaveRoom)
}

func (h *RoomHandler) Kick(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")

	var req KickPlayerRequest
	if err := decodeBody(r, &req); err != nil {
		writeDetail(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	view, err := h.games.KickPlayer(r.Context(), roomID, playerID(r, req.PlayerID), req.TargetID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// playerOp handles the endpoints whose only input is the acting player.
func (h *RoomHandler) playerOp(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, roomID, playerID string) (*domain.GameView, error)) {
	roomID := chi.URLParam(r, "roomID")

	var req PlayerIDRequest
	if err := decodeBody(r, &req); err != nil {
		writeDetail(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	view, err := op(r.Context(), roomID, playerID(r, req.PlayerID))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}
