package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/HammerMeetNail/livebingo/internal/logging"
	"github.com/HammerMeetNail/livebingo/internal/models"
	"github.com/HammerMeetNail/livebingo/internal/services"
)

const (
	streamWriteWait  = 10 * time.Second
	streamPongWait   = time.Minute
	streamPingPeriod = (streamPongWait * 9) / 10
	streamReadLimit  = 512
)

// StreamMessage is what every websocket frame carries.
type StreamMessage struct {
	Type  string              `json:"type"`
	State models.GameSnapshot `json:"state"`
}

// StreamHandler pushes game snapshots to websocket clients. The first frame
// is always the current state.
type StreamHandler struct {
	games    services.GameServiceInterface
	upgrader websocket.Upgrader
	logger   *logging.Logger

	mu      sync.Mutex
	streams map[streamKey]int
}

type streamKey struct {
	gameID   string
	playerID string
}

func NewStreamHandler(games services.GameServiceInterface, checkOrigin func(r *http.Request) bool) *StreamHandler {
	return &StreamHandler{
		games: games,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     checkOrigin,
		},
		logger:  logging.Default.WithField("component", "stream"),
		streams: make(map[streamKey]int),
	}
}

func (h *StreamHandler) open(key streamKey) {
	h.mu.Lock()
	h.streams[key]++
	h.mu.Unlock()
}

// release reports whether key has no streams left.
func (h *StreamHandler) release(key streamKey) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.streams[key]--
	if h.streams[key] > 0 {
		return false
	}
	delete(h.streams, key)
	return true
}

func (h *StreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	gameID := r.PathValue("id")
	playerID := r.URL.Query().Get("player_id")

	if _, err := h.games.GetState(r.Context(), gameID); err != nil {
		writeGameError(w, err, "stream")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		h.logger.Warn("Websocket upgrade failed", map[string]interface{}{"game_id": gameID, "error": err.Error()})
		return
	}
	defer conn.Close()

	// Latest-wins mailbox: a slow client skips intermediate states.
	send := make(chan models.GameSnapshot, 1)
	deliver := func(s models.GameSnapshot) {
		select {
		case send <- s:
		default:
			select {
			case <-send:
			default:
			}
			select {
			case send <- s:
			default:
			}
		}
	}

	unsubscribe, err := h.games.Subscribe(r.Context(), gameID, deliver)
	if err != nil {
		h.logger.Warn("Stream subscribe failed", map[string]interface{}{"game_id": gameID, "error": err.Error()})
		return
	}
	defer unsubscribe()

	// A player stays active while any of their streams is open.
	if playerID != "" {
		key := streamKey{gameID: gameID, playerID: playerID}
		h.open(key)
		defer func() {
			if !h.release(key) {
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := h.games.DisconnectPlayer(ctx, gameID, playerID); err != nil {
				h.logger.Warn("Failed to mark player disconnected", map[string]interface{}{
					"game_id":   gameID,
					"player_id": playerID,
					"error":     err.Error(),
				})
			}
		}()
	}

	closed := make(chan struct{})
	go h.readLoop(conn, closed)
	h.writeLoop(conn, send, closed)
}

// readLoop discards client frames and closes closed when the peer goes away.
func (h *StreamHandler) readLoop(conn *websocket.Conn, closed chan<- struct{}) {
	defer close(closed)
	conn.SetReadLimit(streamReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(streamPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(streamPongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *StreamHandler) writeLoop(conn *websocket.Conn, send <-chan models.GameSnapshot, closed <-chan struct{}) {
	ticker := time.NewTicker(streamPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-closed:
			return
		case snap := <-send:
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteJSON(StreamMessage{Type: "state", State: snap}); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
