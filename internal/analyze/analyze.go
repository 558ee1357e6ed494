// Package analyze orchestrates full-stream structural decoding: OBU
// splitting, header tracking, tile layout, cached tile parsing, and the
// assembly of per-frame structural indexes. It is the seam between the
// raw bitstream and the overlay extractors.
//
// Only the combined frame OBU form (OBU_FRAME) is indexed. Streams that
// split a frame into OBU_FRAME_HEADER plus OBU_TILE_GROUP units are
// still split structurally, but those units are skipped: indexing them
// requires carrying frame-header state across OBUs.
package analyze

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/zsiec/lens/internal/av1"
	"github.com/zsiec/lens/internal/codec"
	"github.com/zsiec/lens/internal/cucache"
)

// NewTileParser returns the tile parser for a codec family. Families
// whose parsers have not landed report ErrUnsupportedCodec.
func NewTileParser(id codec.ID, log *slog.Logger) (codec.TileParser, error) {
	switch id {
	case codec.AV1:
		return av1.NewParser(log), nil
	case codec.VP9, codec.H264, codec.H265, codec.VVC:
		return nil, fmt.Errorf("%w: %s", codec.ErrUnsupportedCodec, id)
	default:
		return nil, fmt.Errorf("%w: id %d", codec.ErrUnsupportedCodec, uint8(id))
	}
}

// FrameIndex is the structural index of one parsed frame: header-level
// facts plus the coding units of all its tiles in tile order.
type FrameIndex struct {
	Number    int
	OBUOffset int

	Type          av1.FrameType
	Show          bool
	BaseQ         uint8
	Width, Height int
	SBSize        int

	Units     []codec.CodingUnit
	Recovered []codec.SuperblockError
	// Partial is set when cancellation cut this frame short.
	Partial bool
}

// FileIndex is the structural index of a whole stream.
type FileIndex struct {
	Codec    codec.ID
	Sequence *av1.SequenceHeader
	Frames   []FrameIndex
	// Partial is set when cancellation stopped indexing before the end
	// of the stream; Frames holds everything finished by then.
	Partial bool
}

// Engine parses streams of one codec family through a shared result
// cache. Safe for concurrent use.
type Engine struct {
	id     codec.ID
	parser codec.TileParser
	cache  *cucache.Cache
	log    *slog.Logger
}

// NewEngine creates an engine for the given codec family with a result
// cache of cacheBudget bytes. If log is nil, slog.Default() is used.
func NewEngine(id codec.ID, cacheBudget int64, log *slog.Logger) (*Engine, error) {
	if log == nil {
		log = slog.Default()
	}
	parser, err := NewTileParser(id, log)
	if err != nil {
		return nil, err
	}
	return &Engine{
		id:     id,
		parser: parser,
		cache:  cucache.New(cacheBudget, log),
		log:    log.With("component", "analyze", "codec", id.String()),
	}, nil
}

// CacheStats exposes the engine cache counters.
func (e *Engine) CacheStats() cucache.Stats {
	return e.cache.Stats()
}

// ParseTile parses one tile through the cache: repeated calls with the
// same payload and the same parse-shaping config share one parse and
// one entry.
func (e *Engine) ParseTile(payload []byte, cfg codec.TileConfig) (*cucache.Entry, error) {
	key := cucache.MakeKey(payload, cfg)
	return e.cache.GetOrParse(key, func() (*cucache.Entry, error) {
		res, err := e.parser.ParseTile(payload, cfg)
		if err != nil {
			return nil, err
		}
		return cucache.NewEntry(res), nil
	})
}

// BuildIndex parses a whole low-overhead bitstream into a FileIndex.
// Frames are processed sequentially; the tiles of one frame are parsed
// in parallel, which is sound because the motion-vector context resets
// per tile. Cancellation between frames or superblocks keeps everything
// already parsed and marks the index partial. Header and structural
// errors are fatal.
func (e *Engine) BuildIndex(ctx context.Context, data []byte) (*FileIndex, error) {
	units, err := av1.SplitOBUs(data)
	if err != nil {
		return nil, err
	}

	idx := &FileIndex{Codec: e.id}
	for _, obu := range units {
		if ctx != nil && ctx.Err() != nil {
			idx.Partial = true
			e.log.Debug("indexing cancelled", "frames", len(idx.Frames))
			return idx, nil
		}

		switch obu.Header.Type {
		case av1.OBUSequenceHeader:
			seq, err := av1.ParseSequenceHeader(obu.Payload, obu.PayloadBitOffset())
			if err != nil {
				return nil, &codec.UnitError{Offset: obu.Offset, Err: err}
			}
			idx.Sequence = seq

		case av1.OBUFrame:
			if idx.Sequence == nil {
				return nil, &codec.UnitError{Offset: obu.Offset, Err: fmt.Errorf("%w: frame before sequence header", codec.ErrStructural)}
			}
			frame, err := e.parseFrame(ctx, idx.Sequence, obu, len(idx.Frames))
			if err != nil {
				return nil, err
			}
			idx.Frames = append(idx.Frames, *frame)
			if frame.Partial {
				idx.Partial = true
				return idx, nil
			}

		default:
			// Delimiters, metadata, padding: structurally noted by the
			// splitter, nothing to index. Split frame-header plus
			// tile-group units are skipped too, see the package doc.
		}
	}
	return idx, nil
}

func (e *Engine) parseFrame(ctx context.Context, seq *av1.SequenceHeader, obu av1.OBU, number int) (*FrameIndex, error) {
	hdr, err := av1.ParseFrameHeader(obu.Payload, obu.PayloadBitOffset())
	if err != nil {
		return nil, &codec.UnitError{Offset: obu.Offset, Err: err}
	}
	tileData := obu.Payload[hdr.HeaderBytes:]
	spans, err := hdr.TileSpans(tileData)
	if err != nil {
		return nil, &codec.UnitError{Offset: obu.Offset, Err: err}
	}

	sbSize := seq.SBSize()
	layout := av1.TileLayout(seq.MaxWidth, seq.MaxHeight, sbSize, hdr.TileColsLog2, hdr.TileRowsLog2)
	if len(layout) != len(spans) {
		return nil, &codec.UnitError{Offset: obu.Offset, Err: fmt.Errorf("%w: %d tile payloads for %d-tile layout", codec.ErrStructural, len(spans), len(layout))}
	}

	frame := &FrameIndex{
		Number:    number,
		OBUOffset: obu.Offset,
		Type:      hdr.Type,
		Show:      hdr.ShowFrame,
		BaseQ:     hdr.BaseQ,
		Width:     seq.MaxWidth,
		Height:    seq.MaxHeight,
		SBSize:    sbSize,
	}

	results := make([]*cucache.Entry, len(layout))
	g, gctx := errgroup.WithContext(nonNil(ctx))
	for i, geo := range layout {
		i := i
		if geo.W <= 0 || geo.H <= 0 {
			continue
		}
		payload := tileData[spans[i].Offset : spans[i].Offset+spans[i].Size]
		cfg := codec.TileConfig{
			FrameW: seq.MaxWidth, FrameH: seq.MaxHeight,
			SBSize:  sbSize,
			OriginX: geo.OriginX, OriginY: geo.OriginY,
			TileW: geo.W, TileH: geo.H,
			BaseQP:    int(hdr.BaseQ),
			DeltaQ:    hdr.DeltaQ,
			IntraOnly: hdr.Intra(),
			Ctx:       gctx,
		}
		g.Go(func() error {
			entry, err := e.ParseTile(payload, cfg)
			if err != nil {
				return &codec.UnitError{Offset: obu.Offset, Err: err}
			}
			results[i] = entry
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, entry := range results {
		if entry == nil {
			continue
		}
		frame.Units = append(frame.Units, entry.Units...)
		frame.Recovered = append(frame.Recovered, entry.Recovered...)
		if entry.Partial {
			frame.Partial = true
		}
	}
	e.log.Debug("frame indexed",
		"frame", number,
		"type", hdr.Type.String(),
		"tiles", len(layout),
		"units", len(frame.Units),
		"recovered", len(frame.Recovered))
	return frame, nil
}

func nonNil(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
