// Package av1 implements structural parsing for AV1-family bitstreams:
// OBU splitting, sequence and frame header parsing with bit-level
// provenance, and the recursive superblock partition parser that turns a
// tile's compressed payload into a flat sequence of coding units.
//
// The central type is [Parser], the codec.TileParser for AV1. Input
// buffers are split with [SplitOBUs]; headers are parsed by
// [ParseSequenceHeader] and [ParseFrameHeader]. [StreamBuilder] and
// [TileBuilder] assemble synthetic streams the parser accepts, used by
// tests and the demo generator.
//
// No pixel reconstruction happens here: the parser reproduces the
// entropy-coding and tree-traversal state machines only as far as needed
// to recover per-block geometry, modes, QP, and motion vectors.
package av1
