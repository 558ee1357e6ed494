package cucache

import (
	"fmt"
	"math"

	"github.com/zsiec/lens/internal/codec"
)

// SpatialIndex maps grid cells to coding units for O(1) point lookup.
// Cell (gx, gy) covers the pixel rectangle
// [gx*cellW, (gx+1)*cellW) x [gy*cellH, (gy+1)*cellH). Each cell stores
// the index of the first unit in traversal order that overlaps it;
// cells no unit touches stay empty.
type SpatialIndex struct {
	gridW, gridH int
	cellW, cellH int
	cells        []int32
}

// BuildSpatialIndex indexes units over a gridW x gridH cell grid.
func BuildSpatialIndex(units []codec.CodingUnit, gridW, gridH, cellW, cellH int) (*SpatialIndex, error) {
	if gridW <= 0 || gridH <= 0 || cellW <= 0 || cellH <= 0 {
		return nil, fmt.Errorf("%w: spatial index geometry %dx%d cells of %dx%d", codec.ErrStructural, gridW, gridH, cellW, cellH)
	}
	// Guard the allocation size: gridW*gridH must not overflow.
	if uint64(gridW)*uint64(gridH) > math.MaxInt32 {
		return nil, fmt.Errorf("%w: spatial index grid %dx%d too large", codec.ErrStructural, gridW, gridH)
	}

	ix := &SpatialIndex{
		gridW: gridW, gridH: gridH,
		cellW: cellW, cellH: cellH,
		cells: make([]int32, gridW*gridH),
	}
	for i := range ix.cells {
		ix.cells[i] = -1
	}

	for i, u := range units {
		if u.W <= 0 || u.H <= 0 {
			continue
		}
		gx0 := max(u.X/cellW, 0)
		gy0 := max(u.Y/cellH, 0)
		gx1 := min((u.X+u.W-1)/cellW, gridW-1)
		gy1 := min((u.Y+u.H-1)/cellH, gridH-1)
		for gy := gy0; gy <= gy1; gy++ {
			for gx := gx0; gx <= gx1; gx++ {
				cell := &ix.cells[gy*gridW+gx]
				if *cell == -1 {
					*cell = int32(i)
				}
			}
		}
	}
	return ix, nil
}

// CUIndex returns the index of the unit covering cell (gx, gy) and
// whether the cell is populated. Out-of-grid cells report unpopulated.
func (ix *SpatialIndex) CUIndex(gx, gy int) (int, bool) {
	if gx < 0 || gy < 0 || gx >= ix.gridW || gy >= ix.gridH {
		return 0, false
	}
	i := ix.cells[gy*ix.gridW+gx]
	if i < 0 {
		return 0, false
	}
	return int(i), true
}

// Size returns the grid dimensions in cells.
func (ix *SpatialIndex) Size() (gridW, gridH int) {
	return ix.gridW, ix.gridH
}

// CellSize returns the pixel dimensions of one cell.
func (ix *SpatialIndex) CellSize() (cellW, cellH int) {
	return ix.cellW, ix.cellH
}
