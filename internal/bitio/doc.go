// Package bitio provides MSB-first bit-level cursors over byte buffers.
//
// [Reader] is the plain cursor used by header and payload parsing.
// [TrackedReader] wraps a Reader with a global bit offset so every read
// reports the absolute bit range it consumed within the original file,
// which the visualization layer uses to map decoded fields back to their
// provenance. [Writer] is the mirror image, used by tests and synthetic
// stream generation.
package bitio
