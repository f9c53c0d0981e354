package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/dom/werewolf/internal/domain"
	"github.com/dom/werewolf/internal/repository"
	"go.uber.org/zap"
)

type ErrorResponse struct {
	Detail string `json:"detail"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, ErrorResponse{Detail: detail})
}

// writeError maps service errors onto status codes. Rule violations carry
// their message to the client; anything else is logged and hidden.
func writeError(w http.ResponseWriter, logger *zap.Logger, err error) {
	switch {
	case errors.Is(err, domain.ErrRoomNotFound):
		writeDetail(w, http.StatusNotFound, "Room not found")
	case errors.Is(err, domain.ErrInvalidAction), errors.Is(err, domain.ErrInvalidSettings):
		writeDetail(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, repository.ErrLockTimeout):
		writeDetail(w, http.StatusConflict, "Room is busy, try again")
	default:
		logger.Error("request failed", zap.Error(err))
		writeDetail(w, http.StatusInternalServerError, "Internal server error")
	}
}

// decodeBody reads an optional JSON body. An empty body leaves v untouched.
func decodeBody(r *http.Request, v interface{}) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
