package bitio

import (
	"errors"
	"testing"
)

func TestReadBits_RoundTrip(t *testing.T) {
	t.Parallel()
	// Writing values of every width and reading them back must
	// reconstruct the original sequence.
	widths := []int{1, 2, 3, 5, 7, 8, 9, 12, 16, 24, 31, 32}
	values := []uint32{0, 1, 0x5A, 0xFFFF, 0x7FFFFFFF, 0xFFFFFFFF}

	w := NewWriter()
	var want []uint32
	for _, n := range widths {
		for _, v := range values {
			masked := v
			if n < 32 {
				masked = v & (1<<uint(n) - 1)
			}
			w.PutBits(n, masked)
			want = append(want, masked)
		}
	}

	r := NewReader(w.Bytes())
	i := 0
	for _, n := range widths {
		for range values {
			got, err := r.ReadBits(n)
			if err != nil {
				t.Fatalf("ReadBits(%d) at %d: %v", n, i, err)
			}
			if got != want[i] {
				t.Errorf("ReadBits(%d) = %#x, want %#x", n, got, want[i])
			}
			i++
		}
	}
}

func TestReadBits64_RoundTrip(t *testing.T) {
	t.Parallel()
	w := NewWriter()
	vals := []uint64{0, 1, 0xDEADBEEFCAFE, 1<<63 - 1, ^uint64(0)}
	for _, v := range vals {
		w.PutBits64(64, v)
	}
	r := NewReader(w.Bytes())
	for _, v := range vals {
		got, err := r.ReadBits64(64)
		if err != nil {
			t.Fatal(err)
		}
		if got != v {
			t.Errorf("ReadBits64 = %#x, want %#x", got, v)
		}
	}
}

func TestReadBit_Sequence(t *testing.T) {
	t.Parallel()
	r := NewReader([]byte{0xA5}) // 1010 0101
	want := []uint8{1, 0, 1, 0, 0, 1, 0, 1}
	for i, wb := range want {
		b, err := r.ReadBit()
		if err != nil {
			t.Fatal(err)
		}
		if b != wb {
			t.Errorf("bit %d = %d, want %d", i, b, wb)
		}
	}
	if _, err := r.ReadBit(); !errors.Is(err, ErrOutOfData) {
		t.Errorf("read past end = %v, want ErrOutOfData", err)
	}
}

func TestReadUVLC_SelfInverse(t *testing.T) {
	t.Parallel()
	for _, v := range []uint32{0, 1, 2, 3, 255, 65535} {
		w := NewWriter()
		w.PutUVLC(v)
		r := NewReader(w.Bytes())
		got, err := r.ReadUVLC()
		if err != nil {
			t.Fatalf("ReadUVLC(%d): %v", v, err)
		}
		if got != v {
			t.Errorf("ReadUVLC = %d, want %d", got, v)
		}
	}
}

func TestReadLEB128_SelfInverse(t *testing.T) {
	t.Parallel()
	for _, v := range []uint64{0, 1, 127, 128, 300, 1 << 20, 1 << 35} {
		w := NewWriter()
		w.PutLEB128(v)
		r := NewReader(w.Bytes())
		got, err := r.ReadLEB128()
		if err != nil {
			t.Fatalf("ReadLEB128(%d): %v", v, err)
		}
		if got != v {
			t.Errorf("ReadLEB128 = %d, want %d", got, v)
		}
	}
}

func TestReadSigned(t *testing.T) {
	t.Parallel()
	for _, v := range []int32{0, 1, -1, 63, -63} {
		w := NewWriter()
		w.PutSigned(6, v)
		r := NewReader(w.Bytes())
		got, err := r.ReadSigned(6)
		if err != nil {
			t.Fatal(err)
		}
		if got != v {
			t.Errorf("ReadSigned = %d, want %d", got, v)
		}
	}
}

func TestReader_ErrOutOfData(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		read func(r *Reader) error
	}{
		{"bits_past_end", func(r *Reader) error { _, err := r.ReadBits(32); return err }},
		{"bits64_past_end", func(r *Reader) error { _, err := r.ReadBits64(64); return err }},
		{"byte_past_end", func(r *Reader) error { r.Skip(16); _, err := r.ReadByte(); return err }},
		{"skip_past_end", func(r *Reader) error { return r.Skip(17) }},
		{"uvlc_all_zeros", func(r *Reader) error { _, err := r.ReadUVLC(); return err }},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			r := NewReader([]byte{0x00, 0x00})
			if err := tc.read(r); !errors.Is(err, ErrOutOfData) {
				t.Errorf("err = %v, want ErrOutOfData", err)
			}
		})
	}
}

func TestReader_ErrBadWidth(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		read func(r *Reader) error
	}{
		{"bits_negative", func(r *Reader) error { _, err := r.ReadBits(-1); return err }},
		{"bits_too_wide", func(r *Reader) error { _, err := r.ReadBits(33); return err }},
		{"bits64_negative", func(r *Reader) error { _, err := r.ReadBits64(-1); return err }},
		{"bits64_too_wide", func(r *Reader) error { _, err := r.ReadBits64(65); return err }},
		{"skip_negative", func(r *Reader) error { return r.Skip(-1) }},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			// Plenty of data: the width itself is the problem, so the
			// truncation error must not be reported.
			r := NewReader(make([]byte, 16))
			if err := tc.read(r); !errors.Is(err, ErrBadWidth) {
				t.Errorf("err = %v, want ErrBadWidth", err)
			}
			if r.BitsRead() != 0 {
				t.Errorf("BitsRead = %d after rejected call, want 0", r.BitsRead())
			}
		})
	}
}

func TestReader_FailedReadDoesNotAdvance(t *testing.T) {
	t.Parallel()
	r := NewReader([]byte{0xFF})
	if _, err := r.ReadBits(16); !errors.Is(err, ErrOutOfData) {
		t.Fatalf("err = %v, want ErrOutOfData", err)
	}
	// The failed wide read must not have consumed the remaining bits.
	got, err := r.ReadBits(8)
	if err != nil {
		t.Fatal(err)
	}
	if got != 0xFF {
		t.Errorf("ReadBits(8) after failed read = %#x, want 0xFF", got)
	}
}

func TestByteAlign(t *testing.T) {
	t.Parallel()
	r := NewReader([]byte{0x80, 0x42})
	if _, err := r.ReadBits(3); err != nil {
		t.Fatal(err)
	}
	r.ByteAlign()
	b, err := r.ReadByte()
	if err != nil {
		t.Fatal(err)
	}
	if b != 0x42 {
		t.Errorf("byte after align = %#x, want 0x42", b)
	}
	r.ByteAlign() // aligned already, must be a no-op
	if r.BitsRead() != 16 {
		t.Errorf("BitsRead = %d, want 16", r.BitsRead())
	}
}

func FuzzReader(f *testing.F) {
	f.Add([]byte{0x00}, uint8(3))
	f.Add([]byte{0xFF, 0x12, 0x34}, uint8(17))
	f.Fuzz(func(t *testing.T, data []byte, n uint8) {
		r := NewReader(data)
		total := len(data) * 8
		for {
			width := int(n%33) + 1
			before := r.BitsRead()
			if _, err := r.ReadBits64(width % 65); err != nil {
				// A failed read must not move the cursor.
				if r.BitsRead() != before {
					t.Fatalf("cursor moved on failed read: %d -> %d", before, r.BitsRead())
				}
				break
			}
			if r.BitsRead() > total {
				t.Fatalf("cursor past end: %d > %d", r.BitsRead(), total)
			}
		}
	})
}
