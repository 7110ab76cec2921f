package game

import (
	"math/rand/v2"

	"github.com/HammerMeetNail/livebingo/internal/models"
)

// Rand is the randomness source used for cards and draws. *rand.Rand from
// math/rand/v2 satisfies it; tests inject seeded sources.
type Rand interface {
	IntN(n int) int
}

type globalRand struct{}

func (globalRand) IntN(n int) int { return rand.IntN(n) }

// DefaultRand draws from the process-wide math/rand/v2 source, which is safe
// for concurrent use.
var DefaultRand Rand = globalRand{}

// CardGenerator produces column-ranged 5x5 cards.
type CardGenerator struct {
	rng Rand
}

func NewCardGenerator(rng Rand) *CardGenerator {
	if rng == nil {
		rng = DefaultRand
	}
	return &CardGenerator{rng: rng}
}

// Generate fills each column with five distinct values from its range using
// rejection sampling. Each pool has 15 values for 5 slots, so it always terminates.
func (g *CardGenerator) Generate() models.Card {
	var card models.Card
	for col := 0; col < models.GridSize; col++ {
		lo, _ := models.ColumnRange(col)
		used := make(map[int]struct{}, models.GridSize)
		for row := 0; row < models.GridSize; {
			candidate := lo + g.rng.IntN(models.BallsPerRange)
			if _, taken := used[candidate]; taken {
				continue
			}
			used[candidate] = struct{}{}
			card[row][col] = candidate
			row++
		}
	}
	return card
}
