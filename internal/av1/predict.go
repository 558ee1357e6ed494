package av1

import "github.com/zsiec/lens/internal/codec"

// ResetPolicy states when motion-vector predictor state is cleared.
// The choice is codec-specific and affects correctness at tile
// boundaries, so it is an explicit constructor argument rather than a
// default: AV1 tiles are independently decodable and use ResetPerTile;
// codecs whose spatial candidates may cross tile boundaries within a
// frame use ResetPerFrame and share one context across the frame's
// tiles.
type ResetPolicy uint8

const (
	ResetPerTile ResetPolicy = iota
	ResetPerFrame
)

func (p ResetPolicy) String() string {
	if p == ResetPerFrame {
		return "per-frame"
	}
	return "per-tile"
}

type mvCell struct {
	mv    codec.MotionVector
	ref   int8
	valid bool
}

// MVContext is a grid of per-superblock reference-motion-vector state.
// Each cell holds the most recent vector observed at that location. The
// parser mutates it in raster order and reads only causal neighbors
// (above and left), so prediction never depends on undecoded blocks.
type MVContext struct {
	cols, rows int
	cellSize   int
	policy     ResetPolicy
	cells      []mvCell
}

// NewMVContext creates a predictor grid covering a frameW x frameH
// frame at superblock granularity.
func NewMVContext(frameW, frameH, sbSize int, policy ResetPolicy) *MVContext {
	cols := (frameW + sbSize - 1) / sbSize
	rows := (frameH + sbSize - 1) / sbSize
	if cols < 1 {
		cols = 1
	}
	if rows < 1 {
		rows = 1
	}
	return &MVContext{
		cols:     cols,
		rows:     rows,
		cellSize: sbSize,
		policy:   policy,
		cells:    make([]mvCell, cols*rows),
	}
}

// Policy returns the context's reset policy.
func (c *MVContext) Policy() ResetPolicy {
	return c.policy
}

// Reset clears all predictor state. Called per frame or per tile
// according to the policy.
func (c *MVContext) Reset() {
	for i := range c.cells {
		c.cells[i] = mvCell{}
	}
}

func (c *MVContext) cellAt(cx, cy int) *mvCell {
	if cx < 0 || cy < 0 || cx >= c.cols || cy >= c.rows {
		return nil
	}
	return &c.cells[cy*c.cols+cx]
}

// Record writes the block's vector into every grid cell its rectangle
// covers. Out-of-grid portions are ignored.
func (c *MVContext) Record(x, y, w, h int, mv codec.MotionVector, ref int8) {
	if w <= 0 || h <= 0 || x+w <= 0 || y+h <= 0 {
		return
	}
	cx0 := max(x, 0) / c.cellSize
	cy0 := max(y, 0) / c.cellSize
	cx1 := (x + w - 1) / c.cellSize
	cy1 := (y + h - 1) / c.cellSize
	for cy := cy0; cy <= cy1; cy++ {
		for cx := cx0; cx <= cx1; cx++ {
			if cell := c.cellAt(cx, cy); cell != nil {
				*cell = mvCell{mv: mv, ref: ref, valid: true}
			}
		}
	}
}

// Predict returns prediction candidates for a block at (x, y): the cell
// above, then the cell to the left, then a zero-vector fallback. The
// returned slice is never empty.
func (c *MVContext) Predict(x, y int) []codec.MVCandidate {
	cx := x / c.cellSize
	cy := y / c.cellSize

	cands := make([]codec.MVCandidate, 0, 3)
	if above := c.cellAt(cx, cy-1); above != nil && above.valid {
		cands = append(cands, codec.MVCandidate{MV: above.mv, Ref: above.ref})
	}
	if left := c.cellAt(cx-1, cy); left != nil && left.valid {
		cands = append(cands, codec.MVCandidate{MV: left.mv, Ref: left.ref})
	}
	cands = append(cands, codec.MVCandidate{})
	return cands
}
