package bitio

import "errors"

var (
	// ErrOutOfData is returned when a read would pass the end of the
	// buffer. The cursor is left at its pre-read position, so no read
	// ever consumes or returns partially valid data.
	ErrOutOfData = errors.New("bitio: read past end of data")
	// ErrBadWidth is returned for a bit count outside the supported
	// range of the call. This is a caller bug, not truncated input.
	ErrBadWidth = errors.New("bitio: bit count out of range")
)

// Reader is an MSB-first bit cursor over a byte buffer.
type Reader struct {
	data []byte
	pos  int // bit position from the start of data
}

// NewReader creates a Reader positioned at the first bit of data.
func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// BitsRead returns the number of bits consumed so far.
func (r *Reader) BitsRead() int {
	return r.pos
}

// BitsLeft returns the number of unread bits remaining.
func (r *Reader) BitsLeft() int {
	total := len(r.data) * 8
	if r.pos > total {
		return 0
	}
	return total - r.pos
}

// ReadBit reads a single bit.
func (r *Reader) ReadBit() (uint8, error) {
	if r.pos >= len(r.data)*8 {
		return 0, ErrOutOfData
	}
	b := (r.data[r.pos/8] >> (7 - uint(r.pos%8))) & 1
	r.pos++
	return b, nil
}

// ReadBits reads n bits, 0 <= n <= 32, MSB first.
func (r *Reader) ReadBits(n int) (uint32, error) {
	if n < 0 || n > 32 {
		return 0, ErrBadWidth
	}
	v, err := r.ReadBits64(n)
	return uint32(v), err
}

// ReadBits64 reads n bits, 0 <= n <= 64, MSB first.
func (r *Reader) ReadBits64(n int) (uint64, error) {
	if n < 0 || n > 64 {
		return 0, ErrBadWidth
	}
	if r.pos+n > len(r.data)*8 {
		return 0, ErrOutOfData
	}
	var v uint64
	for i := 0; i < n; i++ {
		b := (r.data[r.pos/8] >> (7 - uint(r.pos%8))) & 1
		v = v<<1 | uint64(b)
		r.pos++
	}
	return v, nil
}

// ReadByte reads 8 bits as a byte. The cursor need not be byte aligned.
func (r *Reader) ReadByte() (byte, error) {
	v, err := r.ReadBits(8)
	return byte(v), err
}

// ReadUVLC reads an unsigned variable-length code: k leading zero bits,
// a one bit, then a k-bit suffix. The decoded value is (1<<k)-1+suffix.
func (r *Reader) ReadUVLC() (uint32, error) {
	start := r.pos
	zeros := 0
	for {
		b, err := r.ReadBit()
		if err != nil {
			r.pos = start
			return 0, err
		}
		if b == 1 {
			break
		}
		zeros++
		if zeros > 31 {
			r.pos = start
			return 0, ErrOutOfData
		}
	}
	if zeros == 0 {
		return 0, nil
	}
	suffix, err := r.ReadBits(zeros)
	if err != nil {
		r.pos = start
		return 0, err
	}
	return (1 << uint(zeros)) - 1 + suffix, nil
}

// ReadLEB128 reads a little-endian base-128 value of at most 8 bytes.
// The cursor should be byte aligned; AV1 only uses LEB128 at byte
// boundaries.
func (r *Reader) ReadLEB128() (uint64, error) {
	start := r.pos
	var v uint64
	for i := 0; i < 8; i++ {
		b, err := r.ReadByte()
		if err != nil {
			r.pos = start
			return 0, err
		}
		v |= uint64(b&0x7F) << uint(7*i)
		if b&0x80 == 0 {
			return v, nil
		}
	}
	r.pos = start
	return 0, ErrOutOfData
}

// ReadSigned reads an n-bit magnitude followed by a sign bit.
// A set sign bit negates the magnitude.
func (r *Reader) ReadSigned(n int) (int32, error) {
	start := r.pos
	mag, err := r.ReadBits(n)
	if err != nil {
		return 0, err
	}
	sign, err := r.ReadBit()
	if err != nil {
		r.pos = start
		return 0, err
	}
	if sign == 1 {
		return -int32(mag), nil
	}
	return int32(mag), nil
}

// Skip advances the cursor by n bits.
func (r *Reader) Skip(n int) error {
	if n < 0 {
		return ErrBadWidth
	}
	if r.pos+n > len(r.data)*8 {
		return ErrOutOfData
	}
	r.pos += n
	return nil
}

// ByteAlign advances the cursor to the next byte boundary. It is a no-op
// when already aligned, and never fails: the buffer end is byte aligned.
func (r *Reader) ByteAlign() {
	if rem := r.pos % 8; rem != 0 {
		r.pos += 8 - rem
	}
}
