package av1

import (
	"testing"

	"github.com/zsiec/lens/internal/codec"
)

func TestMVContextPredictOrder(t *testing.T) {
	t.Parallel()

	c := NewMVContext(256, 256, 64, ResetPerTile)

	// Nothing recorded yet: only the zero fallback.
	cands := c.Predict(64, 64)
	if len(cands) != 1 || !cands[0].MV.IsZero() {
		t.Fatalf("empty context candidates = %+v", cands)
	}

	above := codec.MotionVector{Row: 4, Col: -4}
	left := codec.MotionVector{Row: -8, Col: 8}
	c.Record(64, 0, 64, 64, above, 1)
	c.Record(0, 64, 64, 64, left, 0)

	cands = c.Predict(64, 64)
	if len(cands) != 3 {
		t.Fatalf("got %d candidates, want 3", len(cands))
	}
	if cands[0].MV != above || cands[0].Ref != 1 {
		t.Errorf("candidate 0 = %+v, want above %+v", cands[0], above)
	}
	if cands[1].MV != left || cands[1].Ref != 0 {
		t.Errorf("candidate 1 = %+v, want left %+v", cands[1], left)
	}
	if !cands[2].MV.IsZero() {
		t.Errorf("candidate 2 = %+v, want zero fallback", cands[2])
	}
}

func TestMVContextRecordCoversCells(t *testing.T) {
	t.Parallel()

	c := NewMVContext(256, 256, 64, ResetPerTile)
	mv := codec.MotionVector{Row: 1, Col: 2}

	// A 128x128 block covers a 2x2 cell region: it must be visible from
	// below each covered column and from the right of the covered rows.
	c.Record(0, 0, 128, 128, mv, 0)
	for _, at := range [][2]int{{0, 128}, {64, 128}, {128, 64}} {
		cands := c.Predict(at[0], at[1])
		if cands[0].MV != mv {
			t.Errorf("Predict(%d,%d) candidate 0 = %+v, want %+v", at[0], at[1], cands[0], mv)
		}
	}
}

func TestMVContextReset(t *testing.T) {
	t.Parallel()

	c := NewMVContext(128, 128, 64, ResetPerTile)
	c.Record(0, 0, 64, 64, codec.MotionVector{Row: 9, Col: 9}, 1)
	c.Reset()

	cands := c.Predict(64, 0)
	if len(cands) != 1 || !cands[0].MV.IsZero() {
		t.Errorf("candidates after reset = %+v", cands)
	}
}

func TestMVContextOutOfGrid(t *testing.T) {
	t.Parallel()

	c := NewMVContext(128, 128, 64, ResetPerFrame)

	// Records past the grid edge must not panic or corrupt state.
	c.Record(1024, 1024, 64, 64, codec.MotionVector{Row: 1, Col: 1}, 0)
	c.Record(-64, -64, 64, 64, codec.MotionVector{Row: 1, Col: 1}, 0)

	cands := c.Predict(0, 0)
	if len(cands) != 1 || !cands[0].MV.IsZero() {
		t.Errorf("candidates = %+v", cands)
	}
	if c.Policy() != ResetPerFrame {
		t.Errorf("policy = %v", c.Policy())
	}
}

func TestResetPolicyString(t *testing.T) {
	t.Parallel()

	if ResetPerTile.String() != "per-tile" || ResetPerFrame.String() != "per-frame" {
		t.Error("unexpected policy strings")
	}
}
