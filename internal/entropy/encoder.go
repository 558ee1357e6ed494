package entropy

// Encoder is the mirror of Decoder: the same boolean range coder with
// the same per-context adaptation schedule. It exists so tests and
// synthetic stream builders can produce payloads that the Decoder
// reproduces symbol for symbol.
type Encoder struct {
	out      []byte
	low      uint32
	rng      uint32
	bitCount int
	probs    []uint8
}

// NewEncoder creates an Encoder with numContexts adaptive contexts.
func NewEncoder(numContexts int) *Encoder {
	e := &Encoder{
		rng:      255,
		bitCount: 24,
		probs:    make([]uint8, numContexts),
	}
	for i := range e.probs {
		e.probs[i] = probInit
	}
	return e
}

// addCarry propagates a carry into already-emitted bytes.
func addCarry(out []byte) {
	for i := len(out) - 1; i >= 0; i-- {
		if out[i] == 0xFF {
			out[i] = 0
			continue
		}
		out[i]++
		return
	}
}

// encodeBool encodes one bit against an explicit probability.
func (e *Encoder) encodeBool(prob uint8, bit bool) {
	split := 1 + ((e.rng-1)*uint32(prob))>>8
	if bit {
		e.low += split
		e.rng -= split
	} else {
		e.rng = split
	}

	for e.rng < 128 {
		e.rng <<= 1
		if e.low&(1<<31) != 0 {
			addCarry(e.out)
		}
		e.low <<= 1
		e.bitCount--
		if e.bitCount == 0 {
			e.out = append(e.out, byte(e.low>>24))
			e.low &= 1<<24 - 1
			e.bitCount = 8
		}
	}
}

// EncodeBool encodes one bit in context ctx and adapts the context
// exactly as the decoder will.
func (e *Encoder) EncodeBool(ctx int, bit bool) {
	e.encodeBool(e.probs[ctx], bit)
	e.probs[ctx] = adapt(e.probs[ctx], bit)
}

// EncodeBits encodes the low n bits of v, MSB first, using contexts
// ctxBase..ctxBase+n-1.
func (e *Encoder) EncodeBits(ctxBase, n int, v uint32) {
	for i := n - 1; i >= 0; i-- {
		e.EncodeBool(ctxBase+(n-1-i), v>>uint(i)&1 == 1)
	}
}

// EncodeLiteral encodes the low n bits of v with a fixed one-half
// probability and no adaptation.
func (e *Encoder) EncodeLiteral(n int, v uint32) {
	for i := n - 1; i >= 0; i-- {
		e.encodeBool(probInit, v>>uint(i)&1 == 1)
	}
}

// Bytes flushes the coder state and returns the finished payload. The
// encoder itself is left untouched, so Bytes may be called repeatedly.
func (e *Encoder) Bytes() []byte {
	out := append([]byte(nil), e.out...)
	c := e.bitCount
	v := e.low
	if v&(1<<uint(32-c)) != 0 {
		addCarry(out)
	}
	v <<= uint(c)
	for i := 0; i < 4; i++ {
		out = append(out, byte(v>>24))
		v <<= 8
	}
	return out
}
