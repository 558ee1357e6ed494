package av1

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/zsiec/lens/internal/codec"
	"github.com/zsiec/lens/internal/entropy"
)

const (
	// minCUSize is the smallest coding unit the partition tree may
	// produce; a tree that would recurse below it is malformed.
	minCUSize = 8
	// maxDepth covers 128 -> 64 -> 32 -> 16 -> 8.
	maxDepth = 5
	// mvClamp bounds motion-vector components in quarter-pel units so
	// chained prediction can never overflow int16.
	mvClamp = 8191
)

// Entropy context layout for the tile payload. Partition contexts are
// indexed by tree depth; multi-bit fields get one context per bit.
const (
	ctxPartNone   = 0
	ctxPartSplit  = ctxPartNone + maxDepth
	ctxPartRect   = ctxPartSplit + maxDepth
	ctxSkip       = ctxPartRect + maxDepth
	ctxIsInter    = ctxSkip + 1
	ctxIntraMode  = ctxIsInter + 1
	ctxInterMode  = ctxIntraMode + intraModeBits
	ctxCompound   = ctxInterMode + interModeBits
	ctxRefFrame   = ctxCompound + 1 // two contexts, one per reference slot
	ctxDeltaQ     = ctxRefFrame + 2
	ctxDeltaQSign = ctxDeltaQ + 1
	ctxDeltaQMag  = ctxDeltaQSign + 1
	ctxMVNonzero  = ctxDeltaQMag + deltaQMagBits // two contexts, row/col
	ctxMVSign     = ctxMVNonzero + 2
	ctxMVMag      = ctxMVSign + 2
	numContexts   = ctxMVMag + 2*mvMagBits

	intraModeBits = 2
	interModeBits = 2
	deltaQMagBits = 4
	mvMagBits     = 10
)

// Parser is the AV1 tile parser. It holds no per-parse state, so one
// Parser may serve concurrent ParseTile calls on distinct payloads.
type Parser struct {
	log *slog.Logger
}

// NewParser creates a tile parser. If log is nil, slog.Default() is used.
func NewParser(log *slog.Logger) *Parser {
	if log == nil {
		log = slog.Default()
	}
	return &Parser{log: log.With("component", "av1-tile-parser")}
}

// ID returns codec.AV1.
func (p *Parser) ID() codec.ID {
	return codec.AV1
}

func clampQP(qp int) int {
	if qp < 0 {
		return 0
	}
	if qp > 255 {
		return 255
	}
	return qp
}

func clampMV(v int) int16 {
	if v > mvClamp {
		return mvClamp
	}
	if v < -mvClamp {
		return -mvClamp
	}
	return int16(v)
}

// ParseTile parses one tile's compressed payload into a flat,
// traversal-ordered coding-unit sequence.
//
// Superblocks are visited in raster order and each partition tree is
// walked depth first, because the QP and MV predictors are causal: only
// already-visited neighbors may be referenced. A failure inside one
// superblock is recovered locally — its partial output is dropped, the
// error recorded, and parsing continues — except decoder exhaustion,
// which abandons the rest of the tile since no later symbol can be
// decoded either.
func (p *Parser) ParseTile(payload []byte, cfg codec.TileConfig) (*codec.TileResult, error) {
	if cfg.SBSize != 64 && cfg.SBSize != 128 {
		return nil, fmt.Errorf("%w: superblock size %d", codec.ErrInvalidSyntax, cfg.SBSize)
	}
	if cfg.FrameW <= 0 || cfg.FrameH <= 0 {
		return nil, fmt.Errorf("%w: frame %dx%d", codec.ErrStructural, cfg.FrameW, cfg.FrameH)
	}

	dec := entropy.NewDecoder(payload, numContexts)
	mv := cfg.MV
	if mv == nil {
		mv = NewMVContext(cfg.FrameW, cfg.FrameH, cfg.SBSize, ResetPerTile)
	}

	res := &codec.TileResult{}
	qp := clampQP(cfg.BaseQP)
	endX := min(cfg.OriginX+cfg.TileW, cfg.FrameW)
	endY := min(cfg.OriginY+cfg.TileH, cfg.FrameH)

	for sbY := cfg.OriginY; sbY < endY; sbY += cfg.SBSize {
		for sbX := cfg.OriginX; sbX < endX; sbX += cfg.SBSize {
			if cfg.Ctx != nil && cfg.Ctx.Err() != nil {
				res.Partial = true
				res.FinalQP = uint8(qp)
				return res, nil
			}

			mark := len(res.Units)
			qpIn := qp
			if err := p.parsePartition(dec, mv, cfg, sbX, sbY, cfg.SBSize, 0, &qp, &res.Units); err != nil {
				res.Units = res.Units[:mark]
				qp = qpIn
				res.Recovered = append(res.Recovered, codec.SuperblockError{SBX: sbX, SBY: sbY, Err: err})
				p.log.Debug("superblock parse recovered",
					"sb_x", sbX, "sb_y", sbY, "error", err)
				if errors.Is(err, entropy.ErrExhausted) {
					res.FinalQP = uint8(qp)
					return res, nil
				}
			}
		}
	}

	res.FinalQP = uint8(qp)
	return res, nil
}

// parsePartition walks one node of the partition tree. size is the
// square block size at this node; rectangular partitions terminate in
// leaves directly, quad splits recurse.
func (p *Parser) parsePartition(dec *entropy.Decoder, mv codec.MVPredictor, cfg codec.TileConfig, x, y, size, depth int, qp *int, out *[]codec.CodingUnit) error {
	if x >= cfg.FrameW || y >= cfg.FrameH {
		// Wholly outside the frame: nothing is coded for this node.
		return nil
	}
	if size < minCUSize || depth >= maxDepth {
		return fmt.Errorf("%w: partition recursed to size %d at depth %d", codec.ErrStructural, size, depth)
	}
	if size == minCUSize {
		return p.parseCodingUnit(dec, mv, cfg, x, y, size, size, qp, out)
	}

	none, err := dec.DecodeBool(ctxPartNone + depth)
	if err != nil {
		return err
	}
	if none {
		return p.parseCodingUnit(dec, mv, cfg, x, y, size, size, qp, out)
	}

	split, err := dec.DecodeBool(ctxPartSplit + depth)
	if err != nil {
		return err
	}
	half := size / 2
	if split {
		// Fixed visiting order: top-left, top-right, bottom-left,
		// bottom-right.
		quads := [4][2]int{{0, 0}, {half, 0}, {0, half}, {half, half}}
		for _, q := range quads {
			if err := p.parsePartition(dec, mv, cfg, x+q[0], y+q[1], half, depth+1, qp, out); err != nil {
				return err
			}
		}
		return nil
	}

	vert, err := dec.DecodeBool(ctxPartRect + depth)
	if err != nil {
		return err
	}
	if vert {
		if err := p.parseCodingUnit(dec, mv, cfg, x, y, half, size, qp, out); err != nil {
			return err
		}
		return p.parseCodingUnit(dec, mv, cfg, x+half, y, half, size, qp, out)
	}
	if err := p.parseCodingUnit(dec, mv, cfg, x, y, size, half, qp, out); err != nil {
		return err
	}
	return p.parseCodingUnit(dec, mv, cfg, x, y+half, size, half, qp, out)
}

// parseCodingUnit decodes one leaf: skip flag, mode, delta-QP, and
// motion, then records the unit's vector into the predictor context.
func (p *Parser) parseCodingUnit(dec *entropy.Decoder, mv codec.MVPredictor, cfg codec.TileConfig, x, y, w, h int, qp *int, out *[]codec.CodingUnit) error {
	if x >= cfg.FrameW || y >= cfg.FrameH {
		return nil
	}
	// Crop edge blocks against the frame.
	cw := min(w, cfg.FrameW-x)
	ch := min(h, cfg.FrameH-y)
	if cw <= 0 || ch <= 0 {
		return fmt.Errorf("%w: empty coding unit at (%d,%d)", codec.ErrStructural, x, y)
	}

	skip, err := dec.DecodeBool(ctxSkip)
	if err != nil {
		return err
	}

	isInter := false
	if !cfg.IntraOnly {
		isInter, err = dec.DecodeBool(ctxIsInter)
		if err != nil {
			return err
		}
	}

	u := codec.CodingUnit{X: x, Y: y, W: cw, H: ch, Skip: skip}
	if isInter {
		m, err := dec.DecodeBits(ctxInterMode, interModeBits)
		if err != nil {
			return err
		}
		u.Mode = codec.ModeNearestMV + codec.PredMode(m)
	} else {
		m, err := dec.DecodeBits(ctxIntraMode, intraModeBits)
		if err != nil {
			return err
		}
		u.Mode = codec.PredMode(m)
	}

	if cfg.DeltaQ && !skip {
		has, err := dec.DecodeBool(ctxDeltaQ)
		if err != nil {
			return err
		}
		if has {
			sign, err := dec.DecodeBool(ctxDeltaQSign)
			if err != nil {
				return err
			}
			mag, err := dec.DecodeBits(ctxDeltaQMag, deltaQMagBits)
			if err != nil {
				return err
			}
			delta := int(mag)
			if sign {
				delta = -delta
			}
			*qp = clampQP(*qp + delta)
		}
	}
	u.QP = uint8(*qp)

	if isInter {
		if err := p.parseMotion(dec, mv, &u); err != nil {
			return err
		}
		mv.Record(u.X, u.Y, u.W, u.H, u.MV[0], u.Ref[0])
	}

	*out = append(*out, u)
	return nil
}

// parseMotion decodes the reference slot(s) and motion vector(s) of an
// inter-coded unit, predicting through the causal neighbor context.
func (p *Parser) parseMotion(dec *entropy.Decoder, mv codec.MVPredictor, u *codec.CodingUnit) error {
	cands := mv.Predict(u.X, u.Y)

	ref0, err := dec.DecodeBool(ctxRefFrame)
	if err != nil {
		return err
	}
	if ref0 {
		u.Ref[0] = 1
	}

	switch u.Mode {
	case codec.ModeNearestMV:
		u.MV[0] = cands[0].MV
	case codec.ModeNearMV:
		u.MV[0] = cands[min(1, len(cands)-1)].MV
	case codec.ModeGlobalMV:
		// Zero vector; translation-only global motion model.
	case codec.ModeNewMV:
		diff, err := p.parseMVDiff(dec)
		if err != nil {
			return err
		}
		base := cands[0].MV
		u.MV[0] = codec.MotionVector{
			Row: clampMV(int(base.Row) + int(diff.Row)),
			Col: clampMV(int(base.Col) + int(diff.Col)),
		}
	}
	u.MVCount = 1

	if u.Mode == codec.ModeNewMV {
		compound, err := dec.DecodeBool(ctxCompound)
		if err != nil {
			return err
		}
		if compound {
			ref1, err := dec.DecodeBool(ctxRefFrame + 1)
			if err != nil {
				return err
			}
			if ref1 {
				u.Ref[1] = 1
			}
			diff, err := p.parseMVDiff(dec)
			if err != nil {
				return err
			}
			base := cands[0].MV
			u.MV[1] = codec.MotionVector{
				Row: clampMV(int(base.Row) + int(diff.Row)),
				Col: clampMV(int(base.Col) + int(diff.Col)),
			}
			u.MVCount = 2
		}
	}
	return nil
}

// parseMVDiff decodes a motion-vector difference: per component a
// nonzero flag, then sign and a magnitude whose coded value is
// magnitude-1.
func (p *Parser) parseMVDiff(dec *entropy.Decoder) (codec.MotionVector, error) {
	var comps [2]int
	for i := 0; i < 2; i++ {
		nonzero, err := dec.DecodeBool(ctxMVNonzero + i)
		if err != nil {
			return codec.MotionVector{}, err
		}
		if !nonzero {
			continue
		}
		sign, err := dec.DecodeBool(ctxMVSign + i)
		if err != nil {
			return codec.MotionVector{}, err
		}
		mag, err := dec.DecodeBits(ctxMVMag+i*mvMagBits, mvMagBits)
		if err != nil {
			return codec.MotionVector{}, err
		}
		v := int(mag) + 1
		if sign {
			v = -v
		}
		comps[i] = v
	}
	return codec.MotionVector{Row: clampMV(comps[0]), Col: clampMV(comps[1])}, nil
}
