package av1

import (
	"fmt"

	"github.com/zsiec/lens/internal/bitio"
	"github.com/zsiec/lens/internal/codec"
)

// OBUType is the 4-bit OBU type tag.
type OBUType uint8

// OBU types, AV1 spec §5.3.1.
const (
	OBUSequenceHeader       OBUType = 1
	OBUTemporalDelimiter    OBUType = 2
	OBUFrameHeader          OBUType = 3
	OBUTileGroup            OBUType = 4
	OBUMetadata             OBUType = 5
	OBUFrame                OBUType = 6
	OBURedundantFrameHeader OBUType = 7
	OBUTileList             OBUType = 8
	OBUPadding              OBUType = 15
)

func (t OBUType) String() string {
	switch t {
	case OBUSequenceHeader:
		return "OBU_SEQUENCE_HEADER"
	case OBUTemporalDelimiter:
		return "OBU_TEMPORAL_DELIMITER"
	case OBUFrameHeader:
		return "OBU_FRAME_HEADER"
	case OBUTileGroup:
		return "OBU_TILE_GROUP"
	case OBUMetadata:
		return "OBU_METADATA"
	case OBUFrame:
		return "OBU_FRAME"
	case OBURedundantFrameHeader:
		return "OBU_REDUNDANT_FRAME_HEADER"
	case OBUTileList:
		return "OBU_TILE_LIST"
	case OBUPadding:
		return "OBU_PADDING"
	default:
		return "OBU_RESERVED"
	}
}

// OBUHeader holds the fields of an OBU header and optional extension.
type OBUHeader struct {
	Type         OBUType
	HasExtension bool
	TemporalID   uint8
	SpatialID    uint8
	HasSize      bool
}

// OBU is one self-delimited bitstream unit: parsed header plus the raw
// payload bytes. Immutable after splitting; the payload aliases the
// input buffer rather than copying it.
type OBU struct {
	Header  OBUHeader
	Payload []byte
	// Offset is the byte offset of the OBU header within the input
	// buffer; PayloadOffset is the byte offset of the first payload byte.
	Offset        int
	PayloadOffset int
}

// PayloadBitOffset returns the absolute bit offset of the payload,
// for seeding provenance-tracking readers.
func (o OBU) PayloadBitOffset() uint64 {
	return uint64(o.PayloadOffset) * 8
}

// SplitOBUs splits a low-overhead bitstream buffer into its OBUs.
// Header errors are fatal for the whole split: a corrupt unit header
// makes every later unit boundary unreliable.
func SplitOBUs(data []byte) ([]OBU, error) {
	var units []OBU
	off := 0
	for off < len(data) {
		r := bitio.NewReader(data[off:])

		forbidden, err := r.ReadBit()
		if err != nil {
			return nil, &codec.UnitError{Offset: off, Err: err}
		}
		if forbidden != 0 {
			return nil, &codec.UnitError{Offset: off, Err: fmt.Errorf("%w: forbidden bit set", codec.ErrInvalidSyntax)}
		}

		var h OBUHeader
		typ, err := r.ReadBits(4)
		if err != nil {
			return nil, &codec.UnitError{Offset: off, Err: err}
		}
		h.Type = OBUType(typ)

		ext, err := r.ReadBit()
		if err != nil {
			return nil, &codec.UnitError{Offset: off, Err: err}
		}
		hasSize, err := r.ReadBit()
		if err != nil {
			return nil, &codec.UnitError{Offset: off, Err: err}
		}
		h.HasSize = hasSize == 1
		if err := r.Skip(1); err != nil { // obu_reserved_1bit
			return nil, &codec.UnitError{Offset: off, Err: err}
		}

		if ext == 1 {
			h.HasExtension = true
			tid, err := r.ReadBits(3)
			if err != nil {
				return nil, &codec.UnitError{Offset: off, Err: err}
			}
			sid, err := r.ReadBits(2)
			if err != nil {
				return nil, &codec.UnitError{Offset: off, Err: err}
			}
			if err := r.Skip(3); err != nil { // extension_header_reserved_3bits
				return nil, &codec.UnitError{Offset: off, Err: err}
			}
			h.TemporalID = uint8(tid)
			h.SpatialID = uint8(sid)
		}

		var size uint64
		if h.HasSize {
			size, err = r.ReadLEB128()
			if err != nil {
				return nil, &codec.UnitError{Offset: off, Err: err}
			}
		} else {
			// Implicit size: the unit extends to the end of the buffer.
			size = uint64(r.BitsLeft() / 8)
		}

		headerBytes := r.BitsRead() / 8
		// Compare in uint64: a hostile LEB128 size must not wrap the
		// offset arithmetic.
		if size > uint64(len(data)-off-headerBytes) {
			return nil, &codec.UnitError{Offset: off, Err: fmt.Errorf("%w: payload size %d exceeds remaining %d bytes", codec.ErrStructural, size, len(data)-off-headerBytes)}
		}

		payloadOff := off + headerBytes
		units = append(units, OBU{
			Header:        h,
			Payload:       data[payloadOff : payloadOff+int(size)],
			Offset:        off,
			PayloadOffset: payloadOff,
		})
		off = payloadOff + int(size)
	}
	return units, nil
}
