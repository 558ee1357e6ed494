package main

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/zsiec/lens/internal/codec"
)

const (
	ivfMagic      = "DKIF"
	ivfHeaderSize = 32
	ivfFrameSize  = 12
)

// isIVF reports whether the buffer starts with an IVF file header.
func isIVF(data []byte) bool {
	return len(data) >= ivfHeaderSize && bytes.HasPrefix(data, []byte(ivfMagic))
}

// splitIVF strips the IVF container: the 32-byte file header and the
// 12-byte per-frame headers. The frame payloads are concatenated into
// one OBU stream — OBUs are self-delimiting, so the engine splits them
// back out. Container demuxing beyond this lives outside the engine.
func splitIVF(data []byte) ([]byte, error) {
	if !isIVF(data) {
		return nil, fmt.Errorf("%w: not an IVF file", codec.ErrStructural)
	}
	headerSize := int(binary.LittleEndian.Uint16(data[6:8]))
	if headerSize < ivfHeaderSize || headerSize > len(data) {
		return nil, fmt.Errorf("%w: IVF header size %d", codec.ErrStructural, headerSize)
	}

	out := make([]byte, 0, len(data)-headerSize)
	off := headerSize
	for off < len(data) {
		if len(data)-off < ivfFrameSize {
			return nil, fmt.Errorf("%w: truncated IVF frame header at byte %d", codec.ErrStructural, off)
		}
		size := binary.LittleEndian.Uint32(data[off:])
		off += ivfFrameSize
		if uint64(size) > uint64(len(data)-off) {
			return nil, fmt.Errorf("%w: IVF frame size %d exceeds remaining %d bytes", codec.ErrStructural, size, len(data)-off)
		}
		out = append(out, data[off:off+int(size)]...)
		off += int(size)
	}
	return out, nil
}
