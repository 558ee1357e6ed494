package av1

import (
	"encoding/binary"
	"fmt"

	"github.com/zsiec/lens/internal/bitio"
	"github.com/zsiec/lens/internal/codec"
)

// FrameType is the 2-bit frame type field.
type FrameType uint8

const (
	FrameKey FrameType = iota
	FrameInter
	FrameIntraOnly
	FrameSwitch
)

func (t FrameType) String() string {
	switch t {
	case FrameKey:
		return "key"
	case FrameInter:
		return "inter"
	case FrameIntraOnly:
		return "intra_only"
	case FrameSwitch:
		return "switch"
	default:
		return "invalid"
	}
}

// Field is one parsed header field together with the absolute bit range
// it occupied in the file, for the provenance view.
type Field struct {
	Name string
	Span bitio.Span
}

// SequenceHeader holds the sequence-level parameters the tile parser
// depends on.
type SequenceHeader struct {
	Profile   uint8
	SB128     bool
	MaxWidth  int
	MaxHeight int
	Fields    []Field
}

// SBSize returns the superblock size in pixels.
func (s *SequenceHeader) SBSize() int {
	if s.SB128 {
		return 128
	}
	return 64
}

// ParseSequenceHeader parses a sequence header OBU payload. bitBase is
// the absolute bit offset of the payload within the file, used to
// anchor field provenance.
func ParseSequenceHeader(payload []byte, bitBase uint64) (*SequenceHeader, error) {
	r := bitio.NewTrackedReader(payload, bitBase)
	s := &SequenceHeader{}

	profile, span, err := r.ReadBits(3)
	if err != nil {
		return nil, err
	}
	if profile > 2 {
		return nil, fmt.Errorf("%w: seq_profile %d", codec.ErrInvalidSyntax, profile)
	}
	s.Profile = uint8(profile)
	s.Fields = append(s.Fields, Field{"seq_profile", span})

	sb128, span, err := r.ReadBit()
	if err != nil {
		return nil, err
	}
	s.SB128 = sb128 == 1
	s.Fields = append(s.Fields, Field{"use_128x128_superblock", span})

	w, span, err := r.ReadBits(16)
	if err != nil {
		return nil, err
	}
	s.MaxWidth = int(w) + 1
	s.Fields = append(s.Fields, Field{"max_frame_width_minus_1", span})

	h, span, err := r.ReadBits(16)
	if err != nil {
		return nil, err
	}
	s.MaxHeight = int(h) + 1
	s.Fields = append(s.Fields, Field{"max_frame_height_minus_1", span})

	return s, nil
}

// FrameHeader holds the frame-level parameters parsed from the start of
// a frame OBU payload. The compressed tile data follows immediately
// after HeaderBytes.
type FrameHeader struct {
	Type      FrameType
	ShowFrame bool
	BaseQ     uint8
	DeltaQ    bool
	// RefIdx maps the frame's two reference slots to decoder reference
	// buffer indices; only meaningful for inter and switch frames.
	RefIdx       [2]uint8
	TileColsLog2 int
	TileRowsLog2 int
	// HeaderBytes is the byte length of the frame header within the OBU
	// payload, after byte alignment.
	HeaderBytes int
	Fields      []Field
}

// Intra reports whether every block of the frame is intra coded.
func (h *FrameHeader) Intra() bool {
	return h.Type == FrameKey || h.Type == FrameIntraOnly
}

// Tiles returns the number of tiles in the frame.
func (h *FrameHeader) Tiles() int {
	return 1 << uint(h.TileColsLog2+h.TileRowsLog2)
}

// ParseFrameHeader parses the frame header at the start of a frame OBU
// payload. bitBase anchors provenance as in ParseSequenceHeader. Header
// errors are fatal for the unit: everything downstream depends on these
// fields.
func ParseFrameHeader(payload []byte, bitBase uint64) (*FrameHeader, error) {
	r := bitio.NewTrackedReader(payload, bitBase)
	h := &FrameHeader{}

	ft, span, err := r.ReadBits(2)
	if err != nil {
		return nil, err
	}
	h.Type = FrameType(ft)
	h.Fields = append(h.Fields, Field{"frame_type", span})

	show, span, err := r.ReadBit()
	if err != nil {
		return nil, err
	}
	h.ShowFrame = show == 1
	h.Fields = append(h.Fields, Field{"show_frame", span})

	baseQ, span, err := r.ReadBits(8)
	if err != nil {
		return nil, err
	}
	h.BaseQ = uint8(baseQ)
	h.Fields = append(h.Fields, Field{"base_q_idx", span})

	deltaQ, span, err := r.ReadBit()
	if err != nil {
		return nil, err
	}
	h.DeltaQ = deltaQ == 1
	h.Fields = append(h.Fields, Field{"delta_q_present", span})

	if !h.Intra() {
		for i := range h.RefIdx {
			ref, span, err := r.ReadBits(3)
			if err != nil {
				return nil, err
			}
			h.RefIdx[i] = uint8(ref)
			h.Fields = append(h.Fields, Field{fmt.Sprintf("ref_frame_idx[%d]", i), span})
		}
	}

	cols, span, err := r.ReadBits(2)
	if err != nil {
		return nil, err
	}
	h.TileColsLog2 = int(cols)
	h.Fields = append(h.Fields, Field{"tile_cols_log2", span})

	rows, span, err := r.ReadBits(2)
	if err != nil {
		return nil, err
	}
	h.TileRowsLog2 = int(rows)
	h.Fields = append(h.Fields, Field{"tile_rows_log2", span})

	r.ByteAlign()
	h.HeaderBytes = int((r.Position() - bitBase) / 8)
	return h, nil
}

// TileSpan locates one tile's compressed payload within the tile data
// that follows a frame header.
type TileSpan struct {
	Offset int
	Size   int
}

// TileSpans splits the post-header tile data into per-tile byte ranges.
// Every tile except the last is preceded by a 4-byte little-endian size
// field; the last tile extends to the end of the data.
func (h *FrameHeader) TileSpans(data []byte) ([]TileSpan, error) {
	n := h.Tiles()
	if n == 1 {
		return []TileSpan{{Offset: 0, Size: len(data)}}, nil
	}
	spans := make([]TileSpan, 0, n)
	off := 0
	for i := 0; i < n-1; i++ {
		if len(data)-off < 4 {
			return nil, fmt.Errorf("%w: tile %d size field truncated", codec.ErrStructural, i)
		}
		size := binary.LittleEndian.Uint32(data[off:])
		off += 4
		// uint64 compare so a hostile size cannot wrap the offset math.
		if uint64(size) > uint64(len(data)-off) {
			return nil, fmt.Errorf("%w: tile %d size %d exceeds remaining %d bytes", codec.ErrStructural, i, size, len(data)-off)
		}
		spans = append(spans, TileSpan{Offset: off, Size: int(size)})
		off += int(size)
	}
	spans = append(spans, TileSpan{Offset: off, Size: len(data) - off})
	return spans, nil
}

// TileGeometry is the pixel rectangle one tile covers within the frame.
type TileGeometry struct {
	Index            int
	OriginX, OriginY int
	W, H             int
}

// TileLayout computes the tile grid for a frame: tiles split the
// superblock grid as evenly as possible, in row-major order. Tiles that
// fall entirely outside a small frame come back with zero size.
func TileLayout(frameW, frameH, sbSize, tileColsLog2, tileRowsLog2 int) []TileGeometry {
	tileCols := 1 << uint(tileColsLog2)
	tileRows := 1 << uint(tileRowsLog2)
	sbCols := (frameW + sbSize - 1) / sbSize
	sbRows := (frameH + sbSize - 1) / sbSize
	tileSBCols := (sbCols + tileCols - 1) / tileCols
	tileSBRows := (sbRows + tileRows - 1) / tileRows

	tiles := make([]TileGeometry, 0, tileCols*tileRows)
	for tr := 0; tr < tileRows; tr++ {
		for tc := 0; tc < tileCols; tc++ {
			g := TileGeometry{
				Index:   tr*tileCols + tc,
				OriginX: tc * tileSBCols * sbSize,
				OriginY: tr * tileSBRows * sbSize,
			}
			w := min(tileSBCols*sbSize, frameW-g.OriginX)
			h := min(tileSBRows*sbSize, frameH-g.OriginY)
			g.W = max(w, 0)
			g.H = max(h, 0)
			tiles = append(tiles, g)
		}
	}
	return tiles
}
