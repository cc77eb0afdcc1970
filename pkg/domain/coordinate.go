package domain

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// Coordinate identifies one physical storage slot.
type Coordinate struct {
	Freezer  string
	Rack     string
	Box      string
	Position string
}

// NewCoordinate builds a coordinate with every component canonicalized.
func NewCoordinate(freezer, rack, box, position string) Coordinate {
	return Coordinate{
		Freezer:  CanonicalFreezer(freezer),
		Rack:     strings.TrimSpace(rack),
		Box:      strings.TrimSpace(box),
		Position: CanonicalPosition(position),
	}
}

// Complete reports whether all four components are non-blank.
func (c Coordinate) Complete() bool {
	return c.Freezer != "" && c.Rack != "" && c.Box != "" && c.Position != ""
}

// BoxKey identifies the box holding the slot.
func (c Coordinate) BoxKey() BoxKey {
	return BoxKey{Freezer: c.Freezer, Rack: c.Rack, Box: c.Box}
}

func (c Coordinate) String() string {
	return fmt.Sprintf("(%s, %s, %s, %s)", c.Freezer, c.Rack, c.Box, c.Position)
}

// BoxKey identifies a box by freezer, rack and box number.
type BoxKey struct {
	Freezer string
	Rack    string
	Box     string
}

// PositionCode joins a row letter and a 1-based column number, e.g. "G12".
func PositionCode(row string, col int) string {
	return CanonicalPosition(row) + strconv.Itoa(col)
}

// SplitPosition separates a position code into its row letters and column
// number. ok is false when the code has no letter prefix or no numeric suffix.
func SplitPosition(pos string) (row string, col int, ok bool) {
	pos = CanonicalPosition(pos)
	i := strings.IndexFunc(pos, unicode.IsDigit)
	if i <= 0 {
		return pos, 0, false
	}
	col, err := strconv.Atoi(pos[i:])
	if err != nil {
		return pos, 0, false
	}
	return pos[:i], col, true
}

// CanonicalFreezer trims and lower-cases a freezer id ("4DEG" -> "4deg").
func CanonicalFreezer(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// CanonicalPosition trims and upper-cases a position code ("a1" -> "A1").
func CanonicalPosition(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
