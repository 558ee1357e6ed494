// Package overlay turns a parsed tile or frame into the cell grids the
// visualization layers draw: QP heatmap, motion-vector field, and
// partition wireframe. Per-cell extractors resolve units through the
// spatial index, never by scanning the whole unit slice.
package overlay

import (
	"math/bits"

	"github.com/zsiec/lens/internal/codec"
	"github.com/zsiec/lens/internal/cucache"
)

// QPGrid is the per-cell quantization heatmap. Cells no unit covers
// (frame edges, superblocks dropped by recovery) are marked unset.
type QPGrid struct {
	W, H int
	QP   []uint8
	Set  []bool
}

// At returns the QP of cell (gx, gy) and whether the cell is populated.
func (g *QPGrid) At(gx, gy int) (uint8, bool) {
	if gx < 0 || gy < 0 || gx >= g.W || gy >= g.H {
		return 0, false
	}
	i := gy*g.W + gx
	return g.QP[i], g.Set[i]
}

// BuildQPGrid extracts one QP per index cell.
func BuildQPGrid(units []codec.CodingUnit, ix *cucache.SpatialIndex) *QPGrid {
	w, h := ix.Size()
	g := &QPGrid{W: w, H: h, QP: make([]uint8, w*h), Set: make([]bool, w*h)}
	for gy := 0; gy < h; gy++ {
		for gx := 0; gx < w; gx++ {
			i, ok := ix.CUIndex(gx, gy)
			if !ok {
				continue
			}
			g.QP[gy*w+gx] = units[i].QP
			g.Set[gy*w+gx] = true
		}
	}
	return g
}

// MVCell is one cell of the motion-vector field.
type MVCell struct {
	Count int
	MV    [2]codec.MotionVector
	Ref   [2]int8
	Class codec.BlockClass
	Set   bool
}

// MVGrid is the per-cell motion-vector field.
type MVGrid struct {
	W, H  int
	Cells []MVCell
}

// At returns cell (gx, gy); out-of-grid cells come back unset.
func (g *MVGrid) At(gx, gy int) MVCell {
	if gx < 0 || gy < 0 || gx >= g.W || gy >= g.H {
		return MVCell{}
	}
	return g.Cells[gy*g.W+gx]
}

// BuildMVGrid extracts per-cell motion state. Intra cells carry a zero
// count but still record the block class, so the overlay can dim them
// rather than skip them.
func BuildMVGrid(units []codec.CodingUnit, ix *cucache.SpatialIndex) *MVGrid {
	w, h := ix.Size()
	g := &MVGrid{W: w, H: h, Cells: make([]MVCell, w*h)}
	for gy := 0; gy < h; gy++ {
		for gx := 0; gx < w; gx++ {
			i, ok := ix.CUIndex(gx, gy)
			if !ok {
				continue
			}
			u := units[i]
			g.Cells[gy*g.W+gx] = MVCell{
				Count: u.MVCount,
				MV:    u.MV,
				Ref:   u.Ref,
				Class: u.Class(),
				Set:   true,
			}
		}
	}
	return g
}

// PartitionBlock is one wireframe rectangle with its depth in the
// partition tree, derived from block size relative to the superblock.
type PartitionBlock struct {
	X, Y, W, H int
	Depth      int
	Class      codec.BlockClass
}

// BuildPartitionGrid flattens the unit list into wireframe rectangles.
// Depth is recovered from geometry: a block whose larger side is the
// superblock size sits at depth 0, each halving adds one level.
func BuildPartitionGrid(units []codec.CodingUnit, sbSize int) []PartitionBlock {
	blocks := make([]PartitionBlock, 0, len(units))
	for _, u := range units {
		blocks = append(blocks, PartitionBlock{
			X: u.X, Y: u.Y, W: u.W, H: u.H,
			Depth: partitionDepth(u.W, u.H, sbSize),
			Class: u.Class(),
		})
	}
	return blocks
}

func partitionDepth(w, h, sbSize int) int {
	side := max(w, h)
	if side <= 0 || side >= sbSize {
		return 0
	}
	// Edge-cropped blocks are not powers of two; depth follows the
	// uncropped size they were split from.
	return bits.Len(uint(sbSize/side)) - 1
}
