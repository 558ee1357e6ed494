package av1

import (
	"encoding/binary"

	"github.com/zsiec/lens/internal/bitio"
	"github.com/zsiec/lens/internal/codec"
	"github.com/zsiec/lens/internal/entropy"
)

// UnitSpec describes one coding unit for TileBuilder.Leaf. Zero value is
// an intra DC block with no delta-QP.
type UnitSpec struct {
	Skip  bool
	Inter bool
	Mode  codec.PredMode

	HasDeltaQ bool
	DeltaQ    int // signed, magnitude <= 15

	Ref int8
	// DiffRow/DiffCol are the signed vector differences for ModeNewMV.
	// A zero component encodes as the nonzero flag being false.
	DiffRow, DiffCol int

	Compound           bool
	Ref2               int8
	Diff2Row, Diff2Col int
}

// TileBuilder emits a tile payload symbol for symbol in the order the
// tile parser consumes it. The caller drives the partition tree
// explicitly: emit a partition symbol, then the leaves it implies, in
// the parser's traversal order. Blocks already at the minimum coding
// unit size carry no partition symbol, so Leaf is called directly.
type TileBuilder struct {
	enc       *entropy.Encoder
	deltaQ    bool
	intraOnly bool
}

// NewTileBuilder creates a builder matching a tile parsed with the given
// delta-QP and intra-only settings.
func NewTileBuilder(deltaQEnabled, intraOnly bool) *TileBuilder {
	return &TileBuilder{
		enc:       entropy.NewEncoder(numContexts),
		deltaQ:    deltaQEnabled,
		intraOnly: intraOnly,
	}
}

// PartitionNone encodes "this node is a single block" at the given depth.
func (b *TileBuilder) PartitionNone(depth int) *TileBuilder {
	b.enc.EncodeBool(ctxPartNone+depth, true)
	return b
}

// PartitionSplit encodes a quad split; the caller then emits the four
// quadrants top-left, top-right, bottom-left, bottom-right.
func (b *TileBuilder) PartitionSplit(depth int) *TileBuilder {
	b.enc.EncodeBool(ctxPartNone+depth, false)
	b.enc.EncodeBool(ctxPartSplit+depth, true)
	return b
}

// PartitionVert encodes a vertical split into two half-width blocks.
func (b *TileBuilder) PartitionVert(depth int) *TileBuilder {
	b.enc.EncodeBool(ctxPartNone+depth, false)
	b.enc.EncodeBool(ctxPartSplit+depth, false)
	b.enc.EncodeBool(ctxPartRect+depth, true)
	return b
}

// PartitionHorz encodes a horizontal split into two half-height blocks.
func (b *TileBuilder) PartitionHorz(depth int) *TileBuilder {
	b.enc.EncodeBool(ctxPartNone+depth, false)
	b.enc.EncodeBool(ctxPartSplit+depth, false)
	b.enc.EncodeBool(ctxPartRect+depth, false)
	return b
}

// Leaf encodes one coding unit's syntax elements.
func (b *TileBuilder) Leaf(u UnitSpec) *TileBuilder {
	b.enc.EncodeBool(ctxSkip, u.Skip)
	if !b.intraOnly {
		b.enc.EncodeBool(ctxIsInter, u.Inter)
	}

	if u.Inter {
		b.enc.EncodeBits(ctxInterMode, interModeBits, uint32(u.Mode-codec.ModeNearestMV))
	} else {
		b.enc.EncodeBits(ctxIntraMode, intraModeBits, uint32(u.Mode))
	}

	if b.deltaQ && !u.Skip {
		b.enc.EncodeBool(ctxDeltaQ, u.HasDeltaQ)
		if u.HasDeltaQ {
			mag := u.DeltaQ
			b.enc.EncodeBool(ctxDeltaQSign, u.DeltaQ < 0)
			if mag < 0 {
				mag = -mag
			}
			b.enc.EncodeBits(ctxDeltaQMag, deltaQMagBits, uint32(mag))
		}
	}

	if u.Inter {
		b.enc.EncodeBool(ctxRefFrame, u.Ref != 0)
		if u.Mode == codec.ModeNewMV {
			b.encodeMVDiff(u.DiffRow, u.DiffCol)
			b.enc.EncodeBool(ctxCompound, u.Compound)
			if u.Compound {
				b.enc.EncodeBool(ctxRefFrame+1, u.Ref2 != 0)
				b.encodeMVDiff(u.Diff2Row, u.Diff2Col)
			}
		}
	}
	return b
}

func (b *TileBuilder) encodeMVDiff(row, col int) {
	for i, v := range [2]int{row, col} {
		b.enc.EncodeBool(ctxMVNonzero+i, v != 0)
		if v == 0 {
			continue
		}
		b.enc.EncodeBool(ctxMVSign+i, v < 0)
		if v < 0 {
			v = -v
		}
		b.enc.EncodeBits(ctxMVMag+i*mvMagBits, mvMagBits, uint32(v-1))
	}
}

// Bytes flushes the arithmetic coder and returns the tile payload.
func (b *TileBuilder) Bytes() []byte {
	return b.enc.Bytes()
}

// FrameSpec parametrizes a synthetic frame OBU.
type FrameSpec struct {
	Type         FrameType
	Show         bool
	BaseQ        uint8
	DeltaQ       bool
	RefIdx       [2]uint8
	TileColsLog2 int
	TileRowsLog2 int
}

// Intra mirrors FrameHeader.Intra.
func (s FrameSpec) Intra() bool {
	return s.Type == FrameKey || s.Type == FrameIntraOnly
}

// StreamBuilder assembles a low-overhead bitstream from synthetic OBUs.
// Every method appends one complete, size-delimited unit.
type StreamBuilder struct {
	buf []byte
}

// NewStreamBuilder creates an empty stream.
func NewStreamBuilder() *StreamBuilder {
	return &StreamBuilder{}
}

func obuWrap(typ OBUType, payload []byte) []byte {
	w := bitio.NewWriter()
	w.PutBit(0) // forbidden
	w.PutBits(4, uint32(typ))
	w.PutBit(0) // no extension
	w.PutBit(1) // has size
	w.PutBit(0) // reserved
	w.PutLEB128(uint64(len(payload)))
	return append(w.Bytes(), payload...)
}

// TemporalDelimiter appends an empty temporal delimiter OBU.
func (b *StreamBuilder) TemporalDelimiter() *StreamBuilder {
	b.buf = append(b.buf, obuWrap(OBUTemporalDelimiter, nil)...)
	return b
}

// SequenceHeader appends a sequence header OBU.
func (b *StreamBuilder) SequenceHeader(profile uint8, sb128 bool, width, height int) *StreamBuilder {
	w := bitio.NewWriter()
	w.PutBits(3, uint32(profile))
	if sb128 {
		w.PutBit(1)
	} else {
		w.PutBit(0)
	}
	w.PutBits(16, uint32(width-1))
	w.PutBits(16, uint32(height-1))
	w.ByteAlign()
	b.buf = append(b.buf, obuWrap(OBUSequenceHeader, w.Bytes())...)
	return b
}

// Frame appends a frame OBU: the frame header followed by the tile
// payloads, every tile but the last prefixed with a 4-byte little-endian
// size. The tile count must match the spec's tile grid.
func (b *StreamBuilder) Frame(spec FrameSpec, tiles ...[]byte) *StreamBuilder {
	w := bitio.NewWriter()
	w.PutBits(2, uint32(spec.Type))
	if spec.Show {
		w.PutBit(1)
	} else {
		w.PutBit(0)
	}
	w.PutBits(8, uint32(spec.BaseQ))
	if spec.DeltaQ {
		w.PutBit(1)
	} else {
		w.PutBit(0)
	}
	if !spec.Intra() {
		for _, ref := range spec.RefIdx {
			w.PutBits(3, uint32(ref))
		}
	}
	w.PutBits(2, uint32(spec.TileColsLog2))
	w.PutBits(2, uint32(spec.TileRowsLog2))
	w.ByteAlign()

	payload := w.Bytes()
	for i, tile := range tiles {
		if i < len(tiles)-1 {
			var sz [4]byte
			binary.LittleEndian.PutUint32(sz[:], uint32(len(tile)))
			payload = append(payload, sz[:]...)
		}
		payload = append(payload, tile...)
	}
	b.buf = append(b.buf, obuWrap(OBUFrame, payload)...)
	return b
}

// Bytes returns the assembled bitstream.
func (b *StreamBuilder) Bytes() []byte {
	return b.buf
}
