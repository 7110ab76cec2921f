package models

import (
	"fmt"
)

const (
	GridSize      = 5
	MinBall       = 1
	MaxBall       = 75
	BallsPerRange = MaxBall / GridSize
	CenterRow     = GridSize / 2
	CenterCol     = GridSize / 2
)

// HeaderText is printed above the five columns, one letter per column.
const HeaderText = "BINGO"

// Card is a player's 5x5 grid, indexed [row][col]. Column c draws from
// [15c+1, 15c+15].
type Card [GridSize][GridSize]int

// ColumnRange returns the inclusive bounds for column col.
func ColumnRange(col int) (lo, hi int) {
	lo = col*BallsPerRange + 1
	return lo, lo + BallsPerRange - 1
}

// IsValidBall reports whether n can be drawn in a 75-ball game.
func IsValidBall(n int) bool {
	return n >= MinBall && n <= MaxBall
}

// BallLetter returns the column letter a ball is called under, e.g. "N" for 42.
func BallLetter(n int) string {
	if !IsValidBall(n) {
		return ""
	}
	col := (n - 1) / BallsPerRange
	return HeaderText[col : col+1]
}

// CallName formats a ball the way a caller announces it ("B7", "O64").
func CallName(n int) string {
	letter := BallLetter(n)
	if letter == "" {
		return ""
	}
	return fmt.Sprintf("%s%d", letter, n)
}

// Validate checks the column ranges and that no value repeats on the card.
func (c Card) Validate() error {
	seen := make(map[int]struct{}, GridSize*GridSize)
	for col := 0; col < GridSize; col++ {
		lo, hi := ColumnRange(col)
		for row := 0; row < GridSize; row++ {
			v := c[row][col]
			if v < lo || v > hi {
				return fmt.Errorf("cell [%d][%d] = %d outside column range %d-%d", row, col, v, lo, hi)
			}
			if _, dup := seen[v]; dup {
				return fmt.Errorf("cell [%d][%d] = %d is duplicated", row, col, v)
			}
			seen[v] = struct{}{}
		}
	}
	return nil
}

// Contains reports whether n appears anywhere on the card.
func (c Card) Contains(n int) bool {
	for row := 0; row < GridSize; row++ {
		for col := 0; col < GridSize; col++ {
			if c[row][col] == n {
				return true
			}
		}
	}
	return false
}

// Column returns the five values of column col, top to bottom.
func (c Card) Column(col int) [GridSize]int {
	var out [GridSize]int
	for row := 0; row < GridSize; row++ {
		out[row] = c[row][col]
	}
	return out
}
