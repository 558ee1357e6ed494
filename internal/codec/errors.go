package codec

import (
	"errors"
	"fmt"
)

// Sentinel errors for the structural-decode engine. Callers distinguish
// failure modes with errors.Is; every failure is a returned value, the
// engine never panics on malformed input.
var (
	// ErrInvalidSyntax marks a decoded field outside its legal range.
	ErrInvalidSyntax = errors.New("codec: invalid syntax element")
	// ErrStructural marks a coding unit or offset computation that
	// would escape its parent bounds or wrap around.
	ErrStructural = errors.New("codec: structural violation")
	// ErrUnsupportedCodec marks a codec ID with no parser implementation.
	ErrUnsupportedCodec = errors.New("codec: unsupported codec")
)

// UnitError indicates a fatal failure while parsing a bitstream unit's
// header. Header fields are prerequisites for everything downstream, so
// these propagate to the caller instead of being recovered locally.
type UnitError struct {
	Offset int // byte offset of the unit within the input buffer
	Err    error
}

func (e *UnitError) Error() string {
	return fmt.Sprintf("codec: unit at byte %d: %v", e.Offset, e.Err)
}

func (e *UnitError) Unwrap() error {
	return e.Err
}
