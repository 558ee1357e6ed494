// Package entropy implements the adaptive binary range coder used for
// compressed tile payloads. The core arithmetic follows the classic
// boolean coder (RFC 6386 §7); on top of it each context slot carries an
// adaptive probability that decays exponentially toward the observed
// outcomes. Decoder and Encoder apply identical adaptation, so a payload
// produced by the Encoder decodes to the same symbol sequence.
//
// All probability state is owned by the Decoder/Encoder instance. There
// is no package-level mutable state, so independent tiles can be decoded
// concurrently without synchronization.
package entropy

import "errors"

// ErrExhausted is returned when the decoder needs more payload bytes
// than remain. It is a per-tile condition: the caller abandons the
// remaining coding units of the tile and resumes at the next tile.
var ErrExhausted = errors.New("entropy: payload exhausted")

const (
	// probInit is the initial probability (of a zero bit) for every
	// context, in the coder's 1..255 scale.
	probInit = 128

	// adaptShift controls the exponential decay of the per-context
	// adaptation: larger values adapt more slowly.
	adaptShift = 4
)

// Decoder decodes an adaptive binary arithmetic bitstream produced by
// Encoder. Each context id indexes an independent adaptive probability.
type Decoder struct {
	buf       []byte
	pos       int
	value     uint32 // 16-bit code window
	rng       uint32 // current range, kept in [128, 255]
	bitCount  int
	probs     []uint8
	exhausted bool
}

// NewDecoder creates a Decoder over payload with numContexts adaptive
// contexts, all initialized to probInit. A payload shorter than the
// 2-byte code window is treated as already exhausted: construction
// succeeds but every decode returns ErrExhausted.
func NewDecoder(payload []byte, numContexts int) *Decoder {
	d := &Decoder{
		buf:   payload,
		rng:   255,
		probs: make([]uint8, numContexts),
	}
	for i := range d.probs {
		d.probs[i] = probInit
	}
	if len(payload) < 2 {
		d.exhausted = true
		return d
	}
	d.value = uint32(payload[0])<<8 | uint32(payload[1])
	d.pos = 2
	return d
}

// Exhausted reports whether the decoder has run out of payload bytes.
func (d *Decoder) Exhausted() bool {
	return d.exhausted
}

// BytesRead returns the number of payload bytes consumed so far.
func (d *Decoder) BytesRead() int {
	return d.pos
}

// decodeBool decodes one bit against an explicit probability without
// touching any context state.
func (d *Decoder) decodeBool(prob uint8) (bool, error) {
	if d.exhausted {
		return false, ErrExhausted
	}
	split := 1 + ((d.rng-1)*uint32(prob))>>8
	bigSplit := split << 8

	var bit bool
	if d.value >= bigSplit {
		bit = true
		d.rng -= split
		d.value -= bigSplit
	} else {
		d.rng = split
	}

	for d.rng < 128 {
		d.value <<= 1
		d.rng <<= 1
		d.bitCount++
		if d.bitCount == 8 {
			d.bitCount = 0
			if d.pos >= len(d.buf) {
				d.exhausted = true
				return false, ErrExhausted
			}
			d.value |= uint32(d.buf[d.pos])
			d.pos++
		}
	}
	return bit, nil
}

// DecodeBool decodes one bit using the adaptive probability of context
// ctx, then moves that probability toward the observed outcome.
func (d *Decoder) DecodeBool(ctx int) (bool, error) {
	bit, err := d.decodeBool(d.probs[ctx])
	if err != nil {
		return false, err
	}
	d.probs[ctx] = adapt(d.probs[ctx], bit)
	return bit, nil
}

// DecodeBits decodes an n-bit value MSB first, each bit in its own
// adaptive context ctxBase+i.
func (d *Decoder) DecodeBits(ctxBase, n int) (uint32, error) {
	var v uint32
	for i := 0; i < n; i++ {
		bit, err := d.DecodeBool(ctxBase + i)
		if err != nil {
			return 0, err
		}
		v <<= 1
		if bit {
			v |= 1
		}
	}
	return v, nil
}

// DecodeLiteral decodes an n-bit value with a fixed one-half probability
// and no adaptation, for syntax elements with no useful context model.
func (d *Decoder) DecodeLiteral(n int) (uint32, error) {
	var v uint32
	for i := 0; i < n; i++ {
		bit, err := d.decodeBool(probInit)
		if err != nil {
			return 0, err
		}
		v <<= 1
		if bit {
			v |= 1
		}
	}
	return v, nil
}

// adapt moves prob toward the observed bit with exponential decay.
// prob is the probability of a zero bit; the update keeps it in
// [1, 255), so a context never becomes deterministic.
func adapt(prob uint8, bit bool) uint8 {
	if bit {
		return prob - prob>>adaptShift
	}
	return prob + (255-prob)>>adaptShift
}
