package models

import (
	"sort"
)

type GameStatus string

const (
	StatusWaiting   GameStatus = "waiting"
	StatusActive    GameStatus = "active"
	StatusCompleted GameStatus = "completed"
)

// rank orders statuses so transitions can be checked for monotonicity.
func (s GameStatus) rank() int {
	switch s {
	case StatusWaiting:
		return 0
	case StatusActive:
		return 1
	case StatusCompleted:
		return 2
	default:
		return -1
	}
}

func (s GameStatus) IsValid() bool {
	return s.rank() >= 0
}

// CanTransitionTo reports whether moving from s to next keeps the lifecycle
// monotonic (waiting -> active -> completed).
func (s GameStatus) CanTransitionTo(next GameStatus) bool {
	return s.IsValid() && next.IsValid() && next.rank() > s.rank()
}

// PlayerSnapshot is a copied view of one player.
type PlayerSnapshot struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	IsHost        bool   `json:"isHost"`
	Active        bool   `json:"active"`
	Card          Card   `json:"card"`
	MarkedNumbers []int  `json:"markedNumbers"`
}

// GameSnapshot is the full state of a game at one point in time. It is the
// value handed to subscribers and written to the sync store.
type GameSnapshot struct {
	GameID        string                    `json:"gameId"`
	Status        GameStatus                `json:"status"`
	CurrentNumber *int                      `json:"currentNumber"`
	DrawnNumbers  []int                     `json:"drawnNumbers"`
	HostID        string                    `json:"hostId"`
	Players       map[string]PlayerSnapshot `json:"players"`
	Winners       []string                  `json:"winners"`
	LastUpdate    int64                     `json:"lastUpdate"`
}

// Clone returns a deep copy so the receiver and the result share no slices or maps.
func (s GameSnapshot) Clone() GameSnapshot {
	out := s
	if s.CurrentNumber != nil {
		n := *s.CurrentNumber
		out.CurrentNumber = &n
	}
	out.DrawnNumbers = append([]int{}, s.DrawnNumbers...)
	out.Winners = append([]string{}, s.Winners...)
	out.Players = make(map[string]PlayerSnapshot, len(s.Players))
	for id, p := range s.Players {
		p.MarkedNumbers = append([]int{}, p.MarkedNumbers...)
		out.Players[id] = p
	}
	return out
}

// ActivePlayers returns the ids of connected players, sorted.
func (s GameSnapshot) ActivePlayers() []string {
	ids := make([]string, 0, len(s.Players))
	for id, p := range s.Players {
		if p.Active {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Caller identifies who is invoking a privileged operation.
type Caller struct {
	PlayerID  string
	HostToken string
}
