package handlers

import (
	"context"
	"net/http"
	"time"
)

// Pinger is anything the readiness check can ping.
type Pinger interface {
	Health(ctx context.Context) error
}

type HealthHandler struct {
	db    Pinger
	redis Pinger
	games func() int
}

// NewHealthHandler builds the health endpoints. db may be nil when history is disabled.
func NewHealthHandler(db, redis Pinger, games func() int) *HealthHandler {
	return &HealthHandler{db: db, redis: redis, games: games}
}

type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
	Games  *int              `json:"games,omitempty"`
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok"}
	if h.games != nil {
		n := h.games()
		resp.Games = &n
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	checks := make(map[string]string)
	ready := true
	for name, p := range map[string]Pinger{"postgres": h.db, "redis": h.redis} {
		if p == nil {
			continue
		}
		if err := p.Health(ctx); err != nil {
			checks[name] = err.Error()
			ready = false
			continue
		}
		checks[name] = "ok"
	}

	if !ready {
		writeJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "unavailable", Checks: checks})
		return
	}
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ready", Checks: checks})
}

func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "alive"})
}
