package bitio

// Span is an absolute bit range [Start, Start+Size) within the whole
// file, not just the buffer a value was decoded from.
type Span struct {
	Start uint64
	Size  uint64
}

// End returns the exclusive end of the span. Callers that need overflow
// safety should use ContainsBit instead of comparing against End.
func (s Span) End() uint64 {
	return s.Start + s.Size
}

// ContainsBit reports whether pos lies inside the span. The end-of-span
// computation is overflow checked: a span whose Start+Size would wrap
// contains nothing, rather than silently wrapping around.
func (s Span) ContainsBit(pos uint64) bool {
	if pos < s.Start {
		return false
	}
	end := s.Start + s.Size
	if end < s.Start {
		return false
	}
	return pos < end
}

// TrackedReader is a Reader that reports, for every read, the absolute
// bit range the value occupied in the original file. The base offset is
// the bit position of the buffer's first byte within that file.
type TrackedReader struct {
	r    Reader
	base uint64
}

// NewTrackedReader creates a TrackedReader over data whose first bit sits
// at absolute bit offset base within the file.
func NewTrackedReader(data []byte, base uint64) *TrackedReader {
	return &TrackedReader{r: Reader{data: data}, base: base}
}

// Position returns the absolute bit position of the cursor.
func (t *TrackedReader) Position() uint64 {
	return t.base + uint64(t.r.BitsRead())
}

// BitsLeft returns the number of unread bits remaining in the buffer.
func (t *TrackedReader) BitsLeft() int {
	return t.r.BitsLeft()
}

func (t *TrackedReader) span(start uint64) Span {
	return Span{Start: start, Size: t.Position() - start}
}

// ReadBit reads a single bit and its absolute span.
func (t *TrackedReader) ReadBit() (uint8, Span, error) {
	start := t.Position()
	v, err := t.r.ReadBit()
	return v, t.span(start), err
}

// ReadBits reads n bits (n <= 32) and their absolute span.
func (t *TrackedReader) ReadBits(n int) (uint32, Span, error) {
	start := t.Position()
	v, err := t.r.ReadBits(n)
	return v, t.span(start), err
}

// ReadBits64 reads n bits (n <= 64) and their absolute span.
func (t *TrackedReader) ReadBits64(n int) (uint64, Span, error) {
	start := t.Position()
	v, err := t.r.ReadBits64(n)
	return v, t.span(start), err
}

// ReadUVLC reads an unsigned variable-length code and its absolute span.
func (t *TrackedReader) ReadUVLC() (uint32, Span, error) {
	start := t.Position()
	v, err := t.r.ReadUVLC()
	return v, t.span(start), err
}

// ReadLEB128 reads a LEB128 value and its absolute span.
func (t *TrackedReader) ReadLEB128() (uint64, Span, error) {
	start := t.Position()
	v, err := t.r.ReadLEB128()
	return v, t.span(start), err
}

// ReadSigned reads an n-bit magnitude plus sign bit and its absolute span.
func (t *TrackedReader) ReadSigned(n int) (int32, Span, error) {
	start := t.Position()
	v, err := t.r.ReadSigned(n)
	return v, t.span(start), err
}

// Skip advances the cursor by n bits.
func (t *TrackedReader) Skip(n int) error {
	return t.r.Skip(n)
}

// ByteAlign advances the cursor to the next byte boundary.
func (t *TrackedReader) ByteAlign() {
	t.r.ByteAlign()
}
