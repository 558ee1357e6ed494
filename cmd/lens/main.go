package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/zsiec/lens/internal/analyze"
	"github.com/zsiec/lens/internal/av1"
	"github.com/zsiec/lens/internal/codec"
	"github.com/zsiec/lens/internal/overlay"
)

var version = "dev"

func main() {
	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	var (
		demo       = flag.Bool("demo", false, "index a built-in synthetic stream instead of a file")
		cacheBytes = flag.Int64("cache-bytes", 64<<20, "tile result cache budget in bytes")
	)
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: lens [flags] <file.ivf|file.obu>\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	var data []byte
	switch {
	case *demo:
		data = demoStream()
		slog.Info("using synthetic demo stream", "bytes", len(data))
	case flag.NArg() == 1:
		var err error
		data, err = os.ReadFile(flag.Arg(0))
		if err != nil {
			slog.Error("failed to read input", "error", err)
			os.Exit(1)
		}
	default:
		flag.Usage()
		os.Exit(2)
	}

	if isIVF(data) {
		stripped, err := splitIVF(data)
		if err != nil {
			slog.Error("failed to split IVF container", "error", err)
			os.Exit(1)
		}
		slog.Info("IVF container stripped", "payload_bytes", len(stripped))
		data = stripped
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	engine, err := analyze.NewEngine(codec.AV1, *cacheBytes, slog.Default())
	if err != nil {
		slog.Error("failed to create engine", "error", err)
		os.Exit(1)
	}

	slog.Info("lens starting", "version", version, "input_bytes", len(data))
	idx, err := engine.BuildIndex(ctx, data)
	if err != nil {
		slog.Error("indexing failed", "error", err)
		os.Exit(1)
	}

	printIndex(idx)
	stats := engine.CacheStats()
	slog.Info("done",
		"frames", len(idx.Frames),
		"partial", idx.Partial,
		"cache_hits", stats.Hits,
		"cache_misses", stats.Misses,
	)
}

func printIndex(idx *analyze.FileIndex) {
	if idx.Sequence != nil {
		fmt.Printf("sequence: profile %d, %dx%d, %dpx superblocks\n",
			idx.Sequence.Profile, idx.Sequence.MaxWidth, idx.Sequence.MaxHeight, idx.Sequence.SBSize())
	}
	for _, f := range idx.Frames {
		fmt.Printf("frame %d: %s show=%v base_q=%d units=%d recovered=%d%s\n",
			f.Number, f.Type, f.Show, f.BaseQ, len(f.Units), len(f.Recovered),
			partialSuffix(f.Partial))
		printFrameSummary(f)
	}
	if idx.Partial {
		fmt.Println("index is partial (cancelled)")
	}
}

func partialSuffix(partial bool) string {
	if partial {
		return " (partial)"
	}
	return ""
}

// printFrameSummary prints QP range, block class counts, and partition
// depth distribution for one frame.
func printFrameSummary(f analyze.FrameIndex) {
	if len(f.Units) == 0 {
		return
	}

	minQP, maxQP := f.Units[0].QP, f.Units[0].QP
	var classes [4]int
	for _, u := range f.Units {
		minQP = min(minQP, u.QP)
		maxQP = max(maxQP, u.QP)
		classes[u.Class()]++
	}
	fmt.Printf("  qp %d..%d  intra=%d inter=%d skip=%d compound=%d\n",
		minQP, maxQP,
		classes[codec.ClassIntra], classes[codec.ClassInter],
		classes[codec.ClassSkip], classes[codec.ClassCompound])

	var depths [8]int
	maxDepth := 0
	for _, b := range overlay.BuildPartitionGrid(f.Units, f.SBSize) {
		if b.Depth < len(depths) {
			depths[b.Depth]++
			maxDepth = max(maxDepth, b.Depth)
		}
	}
	fmt.Print("  partition depth")
	for d := 0; d <= maxDepth; d++ {
		fmt.Printf(" %d:%d", d, depths[d])
	}
	fmt.Println()
}

// demoStream synthesizes a small two-frame stream exercising splits,
// delta-QP, and motion, so the tool can be run without a capture file.
func demoStream() []byte {
	keyTile := av1.NewTileBuilder(true, true)
	// Superblock (0,0): quad split, one sub-block re-quantized.
	keyTile.PartitionSplit(0)
	keyTile.PartitionNone(1).Leaf(av1.UnitSpec{Mode: codec.ModeDC})
	keyTile.PartitionNone(1).Leaf(av1.UnitSpec{Mode: codec.ModeVert})
	keyTile.PartitionNone(1).Leaf(av1.UnitSpec{Mode: codec.ModeSmooth, HasDeltaQ: true, DeltaQ: -12})
	keyTile.PartitionNone(1).Leaf(av1.UnitSpec{Mode: codec.ModeHorz})
	// Superblock (64,0): left as one block.
	keyTile.PartitionNone(0).Leaf(av1.UnitSpec{Skip: true, Mode: codec.ModeDC})

	interTile := av1.NewTileBuilder(false, false)
	interTile.PartitionVert(0)
	interTile.Leaf(av1.UnitSpec{Inter: true, Mode: codec.ModeNewMV, DiffRow: 6, DiffCol: -3})
	interTile.Leaf(av1.UnitSpec{Inter: true, Mode: codec.ModeNearestMV})
	interTile.PartitionNone(0).Leaf(av1.UnitSpec{
		Inter: true, Mode: codec.ModeNewMV, Ref: 1,
		DiffRow: 1, DiffCol: 1, Compound: true, Ref2: 1, Diff2Row: -2, Diff2Col: 4,
	})

	return av1.NewStreamBuilder().
		TemporalDelimiter().
		SequenceHeader(0, false, 128, 64).
		Frame(av1.FrameSpec{Type: av1.FrameKey, Show: true, BaseQ: 96, DeltaQ: true},
			keyTile.Bytes()).
		Frame(av1.FrameSpec{Type: av1.FrameInter, Show: true, BaseQ: 72, RefIdx: [2]uint8{0, 1}},
			interTile.Bytes()).
		Bytes()
}
