package bitio

// Writer writes bits MSB-first into a growing byte slice. It mirrors
// Reader so that tests and synthetic stream builders can round-trip
// every read primitive.
type Writer struct {
	data []byte
	pos  int // bit position
}

// NewWriter creates an empty Writer.
func NewWriter() *Writer {
	return &Writer{}
}

// PutBit appends a single bit.
func (w *Writer) PutBit(v uint8) {
	if w.pos%8 == 0 {
		w.data = append(w.data, 0)
	}
	if v&1 == 1 {
		w.data[w.pos/8] |= 1 << (7 - uint(w.pos%8))
	}
	w.pos++
}

// PutBits appends the low n bits of v, MSB first, n <= 32.
func (w *Writer) PutBits(n int, v uint32) {
	w.PutBits64(n, uint64(v))
}

// PutBits64 appends the low n bits of v, MSB first, n <= 64.
func (w *Writer) PutBits64(n int, v uint64) {
	for i := n - 1; i >= 0; i-- {
		w.PutBit(uint8(v >> uint(i) & 1))
	}
}

// PutByte appends 8 bits.
func (w *Writer) PutByte(b byte) {
	w.PutBits(8, uint32(b))
}

// PutUVLC appends v as an unsigned variable-length code, the inverse of
// Reader.ReadUVLC.
func (w *Writer) PutUVLC(v uint32) {
	k := 0
	for (uint64(1)<<uint(k+1))-1 <= uint64(v) {
		k++
	}
	suffix := v - (1<<uint(k) - 1)
	for i := 0; i < k; i++ {
		w.PutBit(0)
	}
	w.PutBit(1)
	w.PutBits(k, suffix)
}

// PutLEB128 appends v as a little-endian base-128 value.
func (w *Writer) PutLEB128(v uint64) {
	for {
		b := byte(v & 0x7F)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		w.PutByte(b)
		if v == 0 {
			return
		}
	}
}

// PutSigned appends an n-bit magnitude followed by a sign bit.
func (w *Writer) PutSigned(n int, v int32) {
	mag := v
	sign := uint8(0)
	if v < 0 {
		mag = -v
		sign = 1
	}
	w.PutBits(n, uint32(mag))
	w.PutBit(sign)
}

// ByteAlign pads with zero bits to the next byte boundary.
func (w *Writer) ByteAlign() {
	for w.pos%8 != 0 {
		w.PutBit(0)
	}
}

// BitsWritten returns the number of bits written so far.
func (w *Writer) BitsWritten() int {
	return w.pos
}

// Bytes returns the written bytes. The final partial byte, if any, is
// zero padded in its low bits.
func (w *Writer) Bytes() []byte {
	return w.data
}
