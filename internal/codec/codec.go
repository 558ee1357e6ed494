// Package codec holds the structural types shared by every codec
// implementation: coding units, motion vectors, tile parse results, and
// the closed set of supported codec identifiers. Codec-specific bit
// layouts live in their own packages (internal/av1 for the AV1 family);
// everything downstream of the parser — cache, spatial index, overlay
// extraction — works purely in these shared types.
package codec

import "context"

// ID identifies a codec family. The set is closed: visualization
// overlays dispatch on it rather than on ad hoc strings.
type ID uint8

const (
	AV1 ID = iota + 1
	VP9
	H264
	H265
	VVC
)

func (id ID) String() string {
	switch id {
	case AV1:
		return "av1"
	case VP9:
		return "vp9"
	case H264:
		return "h264"
	case H265:
		return "h265"
	case VVC:
		return "vvc"
	default:
		return "unknown"
	}
}

// MotionVector is a block motion vector in quarter-pel units.
type MotionVector struct {
	Row int16
	Col int16
}

// IsZero reports whether the vector is the zero vector.
func (mv MotionVector) IsZero() bool {
	return mv.Row == 0 && mv.Col == 0
}

// PredMode is a coding unit's prediction mode. Intra modes come first;
// Inter() distinguishes the two halves.
type PredMode uint8

const (
	ModeDC PredMode = iota
	ModeVert
	ModeHorz
	ModeSmooth
	ModeNearestMV
	ModeNearMV
	ModeGlobalMV
	ModeNewMV
)

// Inter reports whether the mode is inter predicted.
func (m PredMode) Inter() bool {
	return m >= ModeNearestMV
}

func (m PredMode) String() string {
	switch m {
	case ModeDC:
		return "dc"
	case ModeVert:
		return "vert"
	case ModeHorz:
		return "horz"
	case ModeSmooth:
		return "smooth"
	case ModeNearestMV:
		return "nearest_mv"
	case ModeNearMV:
		return "near_mv"
	case ModeGlobalMV:
		return "global_mv"
	case ModeNewMV:
		return "new_mv"
	default:
		return "invalid"
	}
}

// BlockClass is the coarse classification used by the MV overlay.
type BlockClass uint8

const (
	ClassIntra BlockClass = iota
	ClassInter
	ClassSkip
	ClassCompound
)

func (c BlockClass) String() string {
	switch c {
	case ClassIntra:
		return "intra"
	case ClassInter:
		return "inter"
	case ClassSkip:
		return "skip"
	case ClassCompound:
		return "compound"
	default:
		return "invalid"
	}
}

// CodingUnit is one leaf of the partition tree: position and size in
// pixels, prediction mode, per-block quantization parameter, and up to
// two motion vectors with their reference slots. Units are immutable
// once emitted by the parser.
type CodingUnit struct {
	X, Y int
	W, H int

	Mode PredMode
	Skip bool
	QP   uint8

	MVCount int
	MV      [2]MotionVector
	Ref     [2]int8
}

// Class returns the unit's coarse block classification.
func (u CodingUnit) Class() BlockClass {
	switch {
	case u.Skip:
		return ClassSkip
	case u.MVCount == 2:
		return ClassCompound
	case u.Mode.Inter():
		return ClassInter
	default:
		return ClassIntra
	}
}

// MVCandidate is one motion-vector prediction candidate.
type MVCandidate struct {
	MV  MotionVector
	Ref int8
}

// MVPredictor accumulates spatial neighbor motion state during a parse
// and serves prediction candidates for later blocks. Implementations
// are visited in raster order, so only causal (already decoded)
// neighbors are ever observable.
type MVPredictor interface {
	// Record writes the block's vector into every predictor cell the
	// rectangle covers.
	Record(x, y, w, h int, mv MotionVector, ref int8)
	// Predict returns candidates for a block at (x, y) in fixed
	// priority order. The list is never empty: a zero-vector fallback
	// is always last.
	Predict(x, y int) []MVCandidate
}

// SuperblockError records a failure recovered locally during a tile
// parse: the superblock's partial output was dropped and parsing
// continued with the rest of the tile.
type SuperblockError struct {
	SBX, SBY int // superblock origin in pixels
	Err      error
}

// TileResult is the ordered coding-unit sequence produced by parsing
// one tile's compressed payload, plus the running quantization state at
// tile end so the caller can carry it forward. Immutable once returned.
type TileResult struct {
	Units     []CodingUnit
	FinalQP   uint8
	Recovered []SuperblockError
	// Partial is set when the parse stopped early due to cancellation;
	// the units present are a valid prefix.
	Partial bool
}

// TileConfig carries the frame-header state a tile parse depends on.
type TileConfig struct {
	// Frame dimensions in pixels; superblocks at the right/bottom edge
	// are cropped against them.
	FrameW, FrameH int
	// SBSize is the superblock size, 64 or 128.
	SBSize int
	// Tile origin and size in pixels.
	OriginX, OriginY int
	TileW, TileH     int

	BaseQP    int
	DeltaQ    bool
	IntraOnly bool

	// MV is the motion-vector predictor context to thread through the
	// parse. Nil means the parser creates a tile-local one.
	MV MVPredictor

	// Ctx, when non-nil, is polled between superblocks; on cancellation
	// the parser returns the partial result produced so far.
	Ctx context.Context
}

// TileParser parses one tile's compressed payload into coding units.
// Implementations must be safe for concurrent use across distinct
// payloads: all mutable decode state lives in per-call values.
type TileParser interface {
	ID() ID
	ParseTile(payload []byte, cfg TileConfig) (*TileResult, error)
}
