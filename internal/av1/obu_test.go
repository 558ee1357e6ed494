package av1

import (
	"errors"
	"testing"

	"github.com/zsiec/lens/internal/bitio"
	"github.com/zsiec/lens/internal/codec"
)

func TestSplitOBUs(t *testing.T) {
	t.Parallel()

	data := NewStreamBuilder().
		TemporalDelimiter().
		SequenceHeader(0, false, 1920, 1080).
		Frame(FrameSpec{Type: FrameKey, Show: true, BaseQ: 64}, []byte{0xAA, 0xBB}).
		Bytes()

	units, err := SplitOBUs(data)
	if err != nil {
		t.Fatalf("SplitOBUs: %v", err)
	}
	if len(units) != 3 {
		t.Fatalf("got %d units, want 3", len(units))
	}

	wantTypes := []OBUType{OBUTemporalDelimiter, OBUSequenceHeader, OBUFrame}
	for i, u := range units {
		if u.Header.Type != wantTypes[i] {
			t.Errorf("unit %d: type %v, want %v", i, u.Header.Type, wantTypes[i])
		}
		if !u.Header.HasSize {
			t.Errorf("unit %d: HasSize false", i)
		}
	}

	if len(units[0].Payload) != 0 {
		t.Errorf("temporal delimiter payload %d bytes, want 0", len(units[0].Payload))
	}
	if units[0].Offset != 0 {
		t.Errorf("first unit offset %d, want 0", units[0].Offset)
	}
	// Each unit must start where the previous one ended.
	for i := 1; i < len(units); i++ {
		prevEnd := units[i-1].PayloadOffset + len(units[i-1].Payload)
		if units[i].Offset != prevEnd {
			t.Errorf("unit %d offset %d, want %d", i, units[i].Offset, prevEnd)
		}
	}
	if got := units[1].PayloadBitOffset(); got != uint64(units[1].PayloadOffset)*8 {
		t.Errorf("PayloadBitOffset %d, want %d", got, units[1].PayloadOffset*8)
	}
}

func TestSplitOBUsExtension(t *testing.T) {
	t.Parallel()

	// Metadata OBU with extension: temporal_id 2, spatial_id 1, size 1.
	data := []byte{0x2E, 0x48, 0x01, 0xAB}
	units, err := SplitOBUs(data)
	if err != nil {
		t.Fatalf("SplitOBUs: %v", err)
	}
	if len(units) != 1 {
		t.Fatalf("got %d units, want 1", len(units))
	}
	h := units[0].Header
	if h.Type != OBUMetadata || !h.HasExtension || h.TemporalID != 2 || h.SpatialID != 1 {
		t.Errorf("header = %+v", h)
	}
	if len(units[0].Payload) != 1 || units[0].Payload[0] != 0xAB {
		t.Errorf("payload = %x", units[0].Payload)
	}
}

func TestSplitOBUsImplicitSize(t *testing.T) {
	t.Parallel()

	// Padding OBU without a size field: it runs to the end of the buffer.
	data := []byte{0x78, 0x01, 0x02, 0x03}
	units, err := SplitOBUs(data)
	if err != nil {
		t.Fatalf("SplitOBUs: %v", err)
	}
	if len(units) != 1 {
		t.Fatalf("got %d units, want 1", len(units))
	}
	if units[0].Header.Type != OBUPadding || units[0].Header.HasSize {
		t.Errorf("header = %+v", units[0].Header)
	}
	if len(units[0].Payload) != 3 {
		t.Errorf("payload %d bytes, want 3", len(units[0].Payload))
	}
}

func TestSplitOBUsErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"forbidden bit", []byte{0x80, 0x00}, codec.ErrInvalidSyntax},
		{"truncated header", []byte{}, nil}, // empty input: no units, no error
		{"truncated size", []byte{0x2A, 0x80}, bitio.ErrOutOfData},
		{"size exceeds buffer", []byte{0x2A, 0x7F, 0x00}, codec.ErrStructural},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			units, err := SplitOBUs(tt.data)
			if tt.want == nil {
				if err != nil || len(units) != 0 {
					t.Fatalf("got %v units, err %v", units, err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			var ue *codec.UnitError
			if !errors.As(err, &ue) {
				t.Fatalf("err %v is not a UnitError", err)
			}
			if ue.Offset != 0 {
				t.Errorf("offset %d, want 0", ue.Offset)
			}
		})
	}
}

func TestSplitOBUsSecondUnitOffset(t *testing.T) {
	t.Parallel()

	// Valid delimiter followed by a corrupt header: the error must carry
	// the second unit's offset.
	data := []byte{0x12, 0x00, 0x80, 0x00}
	_, err := SplitOBUs(data)
	var ue *codec.UnitError
	if !errors.As(err, &ue) {
		t.Fatalf("err %v is not a UnitError", err)
	}
	if ue.Offset != 2 {
		t.Errorf("offset %d, want 2", ue.Offset)
	}
}
