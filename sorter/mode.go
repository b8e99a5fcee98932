package sorter

import (
	"fmt"

	"github.com/hupe1980/rtnn/grid"
)

// Mode selects how a particle set is ordered before search.
type Mode int

const (
	// ModeNone keeps the input order.
	ModeNone Mode = iota
	// ModeMorton sorts by grid cell along a Morton curve per meta-grid block.
	ModeMorton
	// ModeRaster sorts by grid cell in raster order.
	ModeRaster
	// ModeLinear sorts by one coordinate.
	ModeLinear
)

func (m Mode) String() string {
	switch m {
	case ModeNone:
		return "none"
	case ModeMorton:
		return "morton"
	case ModeRaster:
		return "raster"
	case ModeLinear:
		return "linear"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode parses the textual form of a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "none", "0":
		return ModeNone, nil
	case "morton", "1":
		return ModeMorton, nil
	case "raster", "2":
		return ModeRaster, nil
	case "linear", "1d", "3":
		return ModeLinear, nil
	}
	return ModeNone, fmt.Errorf("unknown sort mode %q", s)
}

// UsesGrid reports whether m bins particles into grid cells.
func (m Mode) UsesGrid() bool {
	return m == ModeMorton || m == ModeRaster
}

// Ordering returns the cell ordering of a grid mode.
func (m Mode) Ordering() grid.Ordering {
	if m == ModeMorton {
		return grid.Morton
	}
	return grid.Raster
}
