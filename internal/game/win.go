package game

import (
	"fmt"
	"sort"
	"strings"

	"github.com/HammerMeetNail/livebingo/internal/models"
)

type Pattern string

const (
	PatternRow         Pattern = "row"
	PatternColumn      Pattern = "column"
	PatternDiagonal    Pattern = "diagonal"
	PatternFourCorners Pattern = "corners"
	PatternFullHouse   Pattern = "full_house"
)

// DefaultPatterns are the classic line wins.
var DefaultPatterns = []Pattern{PatternRow, PatternColumn, PatternDiagonal}

// ParsePatterns turns a list like "row,column,corners" into patterns.
func ParsePatterns(names []string) ([]Pattern, error) {
	out := make([]Pattern, 0, len(names))
	for _, name := range names {
		p := Pattern(strings.ToLower(strings.TrimSpace(name)))
		switch p {
		case PatternRow, PatternColumn, PatternDiagonal, PatternFourCorners, PatternFullHouse:
			out = append(out, p)
		default:
			return nil, fmt.Errorf("unknown win pattern %q", name)
		}
	}
	return out, nil
}

// Cell addresses one square on a card.
type Cell struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

// Line is a completed win: which pattern matched and the cells it covers.
type Line struct {
	Pattern Pattern `json:"pattern"`
	Index   int     `json:"index"`
	Cells   []Cell  `json:"cells"`
}

func (l Line) String() string {
	return fmt.Sprintf("%s %d", l.Pattern, l.Index)
}

// MarkSet is the set of numbers a player has marked.
type MarkSet map[int]struct{}

func NewMarkSet(numbers ...int) MarkSet {
	m := make(MarkSet, len(numbers))
	for _, n := range numbers {
		m[n] = struct{}{}
	}
	return m
}

func (m MarkSet) Has(n int) bool {
	_, ok := m[n]
	return ok
}

// Sorted returns the marks in ascending order.
func (m MarkSet) Sorted() []int {
	out := make([]int, 0, len(m))
	for n := range m {
		out = append(out, n)
	}
	sort.Ints(out)
	return out
}

// WinEvaluator decides whether a card's marks complete any configured pattern.
type WinEvaluator struct {
	FreeCenter bool
	Patterns   []Pattern
}

func NewWinEvaluator(freeCenter bool, patterns []Pattern) WinEvaluator {
	if len(patterns) == 0 {
		patterns = DefaultPatterns
	}
	return WinEvaluator{FreeCenter: freeCenter, Patterns: patterns}
}

func (e WinEvaluator) CheckWin(card models.Card, marks MarkSet) bool {
	_, ok := e.FindWin(card, marks)
	return ok
}

// FindWin returns the first complete line. Rows are checked first, then
// columns, then the two diagonals, then any opt-in patterns.
func (e WinEvaluator) FindWin(card models.Card, marks MarkSet) (Line, bool) {
	patterns := e.Patterns
	if len(patterns) == 0 {
		patterns = DefaultPatterns
	}
	for _, p := range orderPatterns(patterns) {
		for i, cells := range patternLines(p) {
			if e.complete(card, marks, cells) {
				return Line{Pattern: p, Index: i, Cells: append([]Cell(nil), cells...)}, true
			}
		}
	}
	return Line{}, false
}

func (e WinEvaluator) complete(card models.Card, marks MarkSet, cells []Cell) bool {
	for _, c := range cells {
		if e.FreeCenter && c.Row == models.CenterRow && c.Col == models.CenterCol {
			continue
		}
		if !marks.Has(card[c.Row][c.Col]) {
			return false
		}
	}
	return true
}

var patternOrder = map[Pattern]int{
	PatternRow:         0,
	PatternColumn:      1,
	PatternDiagonal:    2,
	PatternFourCorners: 3,
	PatternFullHouse:   4,
}

func orderPatterns(in []Pattern) []Pattern {
	out := append([]Pattern(nil), in...)
	sort.SliceStable(out, func(i, j int) bool {
		return patternOrder[out[i]] < patternOrder[out[j]]
	})
	return out
}

var lineCache = buildLines()

func patternLines(p Pattern) [][]Cell {
	return lineCache[p]
}

func buildLines() map[Pattern][][]Cell {
	const n = models.GridSize
	lines := make(map[Pattern][][]Cell, len(patternOrder))

	for row := 0; row < n; row++ {
		cells := make([]Cell, 0, n)
		for col := 0; col < n; col++ {
			cells = append(cells, Cell{Row: row, Col: col})
		}
		lines[PatternRow] = append(lines[PatternRow], cells)
	}
	for col := 0; col < n; col++ {
		cells := make([]Cell, 0, n)
		for row := 0; row < n; row++ {
			cells = append(cells, Cell{Row: row, Col: col})
		}
		lines[PatternColumn] = append(lines[PatternColumn], cells)
	}

	down := make([]Cell, 0, n)
	up := make([]Cell, 0, n)
	for i := 0; i < n; i++ {
		down = append(down, Cell{Row: i, Col: i})
		up = append(up, Cell{Row: i, Col: n - 1 - i})
	}
	lines[PatternDiagonal] = [][]Cell{down, up}

	lines[PatternFourCorners] = [][]Cell{{
		{Row: 0, Col: 0}, {Row: 0, Col: n - 1}, {Row: n - 1, Col: 0}, {Row: n - 1, Col: n - 1},
	}}

	full := make([]Cell, 0, n*n)
	for row := 0; row < n; row++ {
		for col := 0; col < n; col++ {
			full = append(full, Cell{Row: row, Col: col})
		}
	}
	lines[PatternFullHouse] = [][]Cell{full}

	return lines
}
