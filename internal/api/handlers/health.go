package handlers

import (
	"context"
	"net/http"
	"time"
)

// Pinger is a backing store the health check can ping.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

type HealthHandler struct {
	checks    map[string]Pinger
	version   string
	commitSHA string
}

func NewHealthHandler(checks map[string]Pinger, version, commitSHA string) *HealthHandler {
	return &HealthHandler{checks: checks, version: version, commitSHA: commitSHA}
}

type HealthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version"`
	CommitSHA string            `json:"commit_sha"`
	Checks    map[string]string `json:"checks"`
}

func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := HealthResponse{
		Status:    "ok",
		Version:   h.version,
		CommitSHA: h.commitSHA,
		Checks:    make(map[string]string, len(h.checks)),
	}
	for name, check := range h.checks {
		if err := check.Ping(ctx); err != nil {
			resp.Status = "degraded"
			resp.Checks[name] = err.Error()
			continue
		}
		resp.Checks[name] = "ok"
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}
