package game

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidPlayerData      = errors.New("player id and name are required")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrHostAlreadyAssigned    = errors.New("game already has a host")
	ErrInvalidMark            = errors.New("number cannot be marked")
	ErrCorruptSnapshot        = errors.New("snapshot violates game invariants")

	// errUnknownPlayer never leaves the package; operations on unknown
	// players are silent no-ops so add/remove races stay harmless.
	errUnknownPlayer = errors.New("unknown player")
)

// RemovalPolicy decides whether removing a player from an active game ends it.
type RemovalPolicy string

const (
	RemovalKeepsGame     RemovalPolicy = "keep"
	RemovalEndsOnHost    RemovalPolicy = "end_on_host"
	RemovalEndsWhenEmpty RemovalPolicy = "end_when_empty"
)

func ParseRemovalPolicy(s string) (RemovalPolicy, error) {
	switch p := RemovalPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return RemovalKeepsGame, nil
	case RemovalKeepsGame, RemovalEndsOnHost, RemovalEndsWhenEmpty:
		return p, nil
	default:
		return "", fmt.Errorf("unknown removal policy %q", s)
	}
}

// Options configures the product policies of one engine. Start from
// DefaultOptions; the zero value disables RequireDrawnMarks.
type Options struct {
	// FreeCenter counts cell [2][2] as marked for win detection.
	FreeCenter bool
	Patterns   []Pattern
	// RequireDrawnMarks rejects marks for numbers that have not been drawn.
	RequireDrawnMarks bool
	// Strict surfaces ErrInvalidStateTransition and ErrInvalidMark instead of
	// treating those calls as silent no-ops.
	Strict   bool
	Removal  RemovalPolicy
	EndOnWin bool

	Rand Rand
	Now  func() time.Time
}

func DefaultOptions() Options {
	return Options{
		Patterns:          DefaultPatterns,
		RequireDrawnMarks: true,
		Removal:           RemovalKeepsGame,
	}
}

func (o Options) withDefaults() Options {
	if len(o.Patterns) == 0 {
		o.Patterns = DefaultPatterns
	}
	if o.Removal == "" {
		o.Removal = RemovalKeepsGame
	}
	if o.Rand == nil {
		o.Rand = DefaultRand
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}
