package game

import (
	"fmt"
	"time"

	"github.com/HammerMeetNail/livebingo/internal/models"
)

// Restore rebuilds an engine from a persisted snapshot. The snapshot is
// rejected with ErrCorruptSnapshot when it breaks a game invariant.
func Restore(snap models.GameSnapshot, opts Options) (*Engine, error) {
	if err := validateSnapshot(snap); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}

	e := New(snap.GameID, opts)
	e.status = snap.Status
	e.hostID = snap.HostID
	e.drawn = append([]int{}, snap.DrawnNumbers...)
	for _, n := range e.drawn {
		e.drawnSet[n] = true
	}
	e.winners = append([]string{}, snap.Winners...)
	if snap.LastUpdate > 0 {
		e.lastUpdate = time.UnixMilli(snap.LastUpdate)
	}
	for id, ps := range snap.Players {
		e.players[id] = &player{
			id:     ps.ID,
			name:   ps.Name,
			isHost: ps.IsHost,
			active: ps.Active,
			card:   ps.Card,
			marks:  NewMarkSet(ps.MarkedNumbers...),
		}
	}
	return e, nil
}

func validateSnapshot(snap models.GameSnapshot) error {
	if snap.GameID == "" {
		return fmt.Errorf("missing game id")
	}
	if !snap.Status.IsValid() {
		return fmt.Errorf("unknown status %q", snap.Status)
	}
	if len(snap.DrawnNumbers) > models.MaxBall {
		return fmt.Errorf("%d numbers drawn", len(snap.DrawnNumbers))
	}

	seen := make(map[int]struct{}, len(snap.DrawnNumbers))
	for _, n := range snap.DrawnNumbers {
		if !models.IsValidBall(n) {
			return fmt.Errorf("drawn number %d out of range", n)
		}
		if _, dup := seen[n]; dup {
			return fmt.Errorf("number %d drawn twice", n)
		}
		seen[n] = struct{}{}
	}
	if len(snap.DrawnNumbers) > 0 && snap.Status == models.StatusWaiting {
		return fmt.Errorf("numbers drawn before the game started")
	}

	switch {
	case len(snap.DrawnNumbers) == 0 && snap.CurrentNumber != nil:
		return fmt.Errorf("current number set with nothing drawn")
	case len(snap.DrawnNumbers) > 0 && snap.CurrentNumber == nil:
		return fmt.Errorf("current number missing")
	case snap.CurrentNumber != nil && *snap.CurrentNumber != snap.DrawnNumbers[len(snap.DrawnNumbers)-1]:
		return fmt.Errorf("current number %d is not the last drawn", *snap.CurrentNumber)
	}

	for id, p := range snap.Players {
		if id == "" || p.ID != id || p.Name == "" {
			return fmt.Errorf("player %q has invalid identity", id)
		}
		if p.IsHost != (snap.HostID != "" && id == snap.HostID) {
			return fmt.Errorf("player %q host flag disagrees with host %q", id, snap.HostID)
		}
		if err := p.Card.Validate(); err != nil {
			return fmt.Errorf("player %q: %v", id, err)
		}
		for _, n := range p.MarkedNumbers {
			if !models.IsValidBall(n) {
				return fmt.Errorf("player %q marked %d", id, n)
			}
		}
	}
	return nil
}
