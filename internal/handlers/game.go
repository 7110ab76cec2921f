package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/HammerMeetNail/livebingo/internal/game"
	"github.com/HammerMeetNail/livebingo/internal/logging"
	"github.com/HammerMeetNail/livebingo/internal/models"
	"github.com/HammerMeetNail/livebingo/internal/services"
)

const (
	HeaderPlayerID  = "X-Player-ID"
	HeaderHostToken = "X-Host-Token"
)

type GameHandler struct {
	games services.GameServiceInterface
}

func NewGameHandler(games services.GameServiceInterface) *GameHandler {
	return &GameHandler{games: games}
}

type CreateGameRequest struct {
	HostID   string `json:"host_id"`
	HostName string `json:"host_name"`
}

type JoinGameRequest struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type MarkRequest struct {
	Number int `json:"number"`
}

type DrawResponse struct {
	Number int                 `json:"number"`
	State  models.GameSnapshot `json:"state"`
}

type MarkResponse struct {
	Changed bool                `json:"changed"`
	State   models.GameSnapshot `json:"state"`
}

type WinResponse struct {
	Bingo bool `json:"bingo"`
}

type ClaimResponse struct {
	Accepted bool                `json:"accepted"`
	State    models.GameSnapshot `json:"state"`
}

type HistoryResponse struct {
	Events []models.GameEvent `json:"events"`
}

func callerFromRequest(r *http.Request) models.Caller {
	return models.Caller{
		PlayerID:  strings.TrimSpace(r.Header.Get(HeaderPlayerID)),
		HostToken: strings.TrimSpace(r.Header.Get(HeaderHostToken)),
	}
}

// writeGameError maps service and engine errors to responses.
func writeGameError(w http.ResponseWriter, err error, action string) {
	switch {
	case errors.Is(err, services.ErrGameNotFound):
		writeError(w, http.StatusNotFound, "Game not found")
	case errors.Is(err, services.ErrPlayerNotFound):
		writeError(w, http.StatusNotFound, "Player not found")
	case errors.Is(err, services.ErrHistoryDisabled):
		writeError(w, http.StatusNotFound, "History is not enabled")
	case errors.Is(err, services.ErrNotHost):
		writeError(w, http.StatusForbidden, "Only the host can do that")
	case errors.Is(err, game.ErrInvalidPlayerData):
		writeError(w, http.StatusBadRequest, "Player id and name are required")
	case errors.Is(err, game.ErrInvalidMark):
		writeError(w, http.StatusBadRequest, "Number cannot be marked")
	case errors.Is(err, game.ErrHostAlreadyAssigned):
		writeError(w, http.StatusConflict, "Game already has a host")
	case errors.Is(err, game.ErrInvalidStateTransition):
		writeError(w, http.StatusConflict, err.Error())
	default:
		logging.Error("Game request failed", map[string]interface{}{
			"action": action,
			"error":  err.Error(),
		})
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func (h *GameHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateGameRequest
	if err := readJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	req.HostName = strings.TrimSpace(req.HostName)
	if req.HostName == "" {
		writeError(w, http.StatusBadRequest, "Host name is required")
		return
	}
	if strings.TrimSpace(req.HostID) == "" {
		req.HostID = uuid.NewString()
	}

	created, err := h.games.CreateGame(r.Context(), req.HostID, req.HostName)
	if err != nil {
		writeGameError(w, err, "create")
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *GameHandler) Get(w http.ResponseWriter, r *http.Request) {
	state, err := h.games.GetState(r.Context(), r.PathValue("id"))
	if err != nil {
		writeGameError(w, err, "get")
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (h *GameHandler) Join(w http.ResponseWriter, r *http.Request) {
	var req JoinGameRequest
	if err := readJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.ID) == "" {
		req.ID = uuid.NewString()
	}

	player, err := h.games.JoinGame(r.Context(), r.PathValue("id"), req.ID, strings.TrimSpace(req.Name))
	if err != nil {
		writeGameError(w, err, "join")
		return
	}
	writeJSON(w, http.StatusCreated, player)
}

func (h *GameHandler) Remove(w http.ResponseWriter, r *http.Request) {
	state, err := h.games.RemovePlayer(r.Context(), r.PathValue("id"), r.PathValue("playerId"), callerFromRequest(r))
	if err != nil {
		writeGameError(w, err, "remove")
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (h *GameHandler) Start(w http.ResponseWriter, r *http.Request) {
	state, err := h.games.StartGame(r.Context(), r.PathValue("id"), callerFromRequest(r))
	if err != nil {
		writeGameError(w, err, "start")
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (h *GameHandler) Draw(w http.ResponseWriter, r *http.Request) {
	n, state, err := h.games.DrawNumber(r.Context(), r.PathValue("id"), callerFromRequest(r))
	if err != nil {
		writeGameError(w, err, "draw")
		return
	}
	writeJSON(w, http.StatusOK, DrawResponse{Number: n, State: state})
}

func (h *GameHandler) End(w http.ResponseWriter, r *http.Request) {
	state, err := h.games.EndGame(r.Context(), r.PathValue("id"), callerFromRequest(r))
	if err != nil {
		writeGameError(w, err, "end")
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (h *GameHandler) Mark(w http.ResponseWriter, r *http.Request) {
	var req MarkRequest
	if err := readJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	changed, state, err := h.games.MarkNumber(r.Context(), r.PathValue("id"), r.PathValue("playerId"), req.Number)
	if err != nil {
		writeGameError(w, err, "mark")
		return
	}
	writeJSON(w, http.StatusOK, MarkResponse{Changed: changed, State: state})
}

func (h *GameHandler) CheckWin(w http.ResponseWriter, r *http.Request) {
	bingo, err := h.games.CheckWin(r.Context(), r.PathValue("id"), r.PathValue("playerId"))
	if err != nil {
		writeGameError(w, err, "check win")
		return
	}
	writeJSON(w, http.StatusOK, WinResponse{Bingo: bingo})
}

func (h *GameHandler) Claim(w http.ResponseWriter, r *http.Request) {
	accepted, state, err := h.games.ClaimWin(r.Context(), r.PathValue("id"), r.PathValue("playerId"))
	if err != nil {
		writeGameError(w, err, "claim")
		return
	}
	writeJSON(w, http.StatusOK, ClaimResponse{Accepted: accepted, State: state})
}

func (h *GameHandler) CardImage(w http.ResponseWriter, r *http.Request) {
	data, err := h.games.CardImage(r.Context(), r.PathValue("id"), r.PathValue("playerId"))
	if err != nil {
		writeGameError(w, err, "card image")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (h *GameHandler) History(w http.ResponseWriter, r *http.Request) {
	events, err := h.games.History(r.Context(), r.PathValue("id"))
	if err != nil {
		writeGameError(w, err, "history")
		return
	}
	if events == nil {
		events = []models.GameEvent{}
	}
	writeJSON(w, http.StatusOK, HistoryResponse{Events: events})
}
