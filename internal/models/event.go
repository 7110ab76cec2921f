package models

import (
	"time"

	"github.com/google/uuid"
)

type GameEventKind string

const (
	EventGameCreated   GameEventKind = "game_created"
	EventPlayerJoined  GameEventKind = "player_joined"
	EventPlayerLeft    GameEventKind = "player_left"
	EventGameStarted   GameEventKind = "game_started"
	EventNumberDrawn   GameEventKind = "number_drawn"
	EventWinAccepted   GameEventKind = "win_accepted"
	EventGameCompleted GameEventKind = "game_completed"
)

// GameEvent is one row of a game's audit history.
type GameEvent struct {
	ID        uuid.UUID     `json:"id"`
	GameID    uuid.UUID     `json:"game_id"`
	Kind      GameEventKind `json:"kind"`
	PlayerID  *string       `json:"player_id,omitempty"`
	Number    *int          `json:"number,omitempty"`
	Rank      *int          `json:"rank,omitempty"`
	Detail    *string       `json:"detail,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}
