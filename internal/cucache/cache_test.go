package cucache

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zsiec/lens/internal/codec"
)

func testEntry(n int) *Entry {
	units := make([]codec.CodingUnit, n)
	for i := range units {
		units[i] = codec.CodingUnit{X: i * 8, W: 8, H: 8, QP: 100}
	}
	return NewEntry(&codec.TileResult{Units: units, FinalQP: 100})
}

func testCfg(baseQP, originX, originY int) codec.TileConfig {
	return codec.TileConfig{
		FrameW: 128, FrameH: 128, SBSize: 64,
		OriginX: originX, OriginY: originY,
		TileW: 64, TileH: 64,
		BaseQP: baseQP,
	}
}

func TestMakeKey(t *testing.T) {
	t.Parallel()

	payload := []byte{0x01, 0x02, 0x03}
	base := testCfg(50, 0, 0)
	assert.Equal(t, MakeKey(payload, base), MakeKey(payload, base))
	assert.NotEqual(t, MakeKey(payload, base), MakeKey(payload, testCfg(51, 0, 0)))
	assert.NotEqual(t, MakeKey(payload, base), MakeKey([]byte{0x01, 0x02}, base))
	assert.NotEqual(t, MakeKey(payload, base), MakeKey([]byte{0x01, 0x02, 0x04}, base))

	// Same bytes at another tile origin must not collide: unit
	// coordinates are absolute.
	assert.NotEqual(t, MakeKey(payload, base), MakeKey(payload, testCfg(50, 64, 0)))
	assert.NotEqual(t, MakeKey(payload, base), MakeKey(payload, testCfg(50, 0, 64)))

	// Every field the parser branches on separates keys: the same bytes
	// decode differently under each of these configs.
	for name, mutate := range map[string]func(*codec.TileConfig){
		"intra only": func(c *codec.TileConfig) { c.IntraOnly = true },
		"delta q":    func(c *codec.TileConfig) { c.DeltaQ = true },
		"frame w":    func(c *codec.TileConfig) { c.FrameW = 100 },
		"frame h":    func(c *codec.TileConfig) { c.FrameH = 100 },
		"sb size":    func(c *codec.TileConfig) { c.SBSize = 128 },
		"tile w":     func(c *codec.TileConfig) { c.TileW = 128 },
		"tile h":     func(c *codec.TileConfig) { c.TileH = 128 },
	} {
		mutated := base
		mutate(&mutated)
		assert.NotEqual(t, MakeKey(payload, base), MakeKey(payload, mutated), name)
	}
}

func TestGetOrParseMemoizes(t *testing.T) {
	t.Parallel()

	c := New(1<<20, nil)
	key := MakeKey([]byte{0xAA}, testCfg(100, 0, 0))

	var parses int
	parse := func() (*Entry, error) {
		parses++
		return testEntry(4), nil
	}

	first, err := c.GetOrParse(key, parse)
	require.NoError(t, err)
	second, err := c.GetOrParse(key, parse)
	require.NoError(t, err)

	assert.Equal(t, 1, parses, "second call must hit the cache")
	assert.Same(t, first, second)
	assert.Equal(t, 1, c.Len())

	stats := c.Stats()
	assert.Equal(t, uint64(1), stats.Hits)
	assert.NotZero(t, stats.Misses)
}

func TestGetOrParseDistinctKeys(t *testing.T) {
	t.Parallel()

	c := New(1<<20, nil)
	var parses atomic.Int64
	parse := func() (*Entry, error) {
		parses.Add(1)
		return testEntry(1), nil
	}

	_, err := c.GetOrParse(MakeKey([]byte{1}, testCfg(0, 0, 0)), parse)
	require.NoError(t, err)
	_, err = c.GetOrParse(MakeKey([]byte{2}, testCfg(0, 0, 0)), parse)
	require.NoError(t, err)

	assert.Equal(t, int64(2), parses.Load())
	assert.Equal(t, 2, c.Len())
}

func TestGetOrParseSingleFlight(t *testing.T) {
	t.Parallel()

	c := New(1<<20, nil)
	key := MakeKey([]byte{0xBB}, testCfg(64, 0, 0))

	var parses atomic.Int64
	release := make(chan struct{})
	parse := func() (*Entry, error) {
		parses.Add(1)
		<-release
		return testEntry(2), nil
	}

	const callers = 8
	var wg sync.WaitGroup
	results := make([]*Entry, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			e, err := c.GetOrParse(key, parse)
			assert.NoError(t, err)
			results[i] = e
		}(i)
	}
	close(release)
	wg.Wait()

	assert.Equal(t, int64(1), parses.Load(), "all callers share one parse")
	for i := 1; i < callers; i++ {
		assert.Same(t, results[0], results[i])
	}
}

func TestGetOrParseError(t *testing.T) {
	t.Parallel()

	c := New(1<<20, nil)
	key := MakeKey([]byte{0xCC}, testCfg(0, 0, 0))
	parseErr := errors.New("tile corrupt")

	_, err := c.GetOrParse(key, func() (*Entry, error) { return nil, parseErr })
	require.ErrorIs(t, err, parseErr)
	assert.Equal(t, 0, c.Len(), "failed parses are not cached")

	// The next call must retry rather than replay the failure.
	e, err := c.GetOrParse(key, func() (*Entry, error) { return testEntry(1), nil })
	require.NoError(t, err)
	assert.NotNil(t, e)
}

func TestGetOrParsePartialNotCached(t *testing.T) {
	t.Parallel()

	c := New(1<<20, nil)
	key := MakeKey([]byte{0xDD}, testCfg(0, 0, 0))

	partial := NewEntry(&codec.TileResult{Partial: true})
	e, err := c.GetOrParse(key, func() (*Entry, error) { return partial, nil })
	require.NoError(t, err)
	assert.True(t, e.Partial)
	assert.Equal(t, 0, c.Len(), "partial results must not be cached")

	full, err := c.GetOrParse(key, func() (*Entry, error) { return testEntry(1), nil })
	require.NoError(t, err)
	assert.False(t, full.Partial)
	assert.Equal(t, 1, c.Len())
}

func TestEviction(t *testing.T) {
	t.Parallel()

	// Room for two empty entries but not three.
	c := New(2*entryBytes+1, nil)

	keys := []Key{1, 2, 3}
	for _, k := range keys {
		_, err := c.GetOrParse(k, func() (*Entry, error) { return testEntry(0), nil })
		require.NoError(t, err)
	}

	assert.Equal(t, 2, c.Len())
	_, ok := c.Get(keys[0])
	assert.False(t, ok, "oldest entry must be evicted")
	_, ok = c.Get(keys[2])
	assert.True(t, ok)
	assert.NotZero(t, c.Stats().Evictions)
}

func TestEvictionKeepsLastEntry(t *testing.T) {
	t.Parallel()

	// A single entry larger than the whole budget still stays resident.
	c := New(1, nil)
	key := Key(7)
	_, err := c.GetOrParse(key, func() (*Entry, error) { return testEntry(100), nil })
	require.NoError(t, err)

	_, ok := c.Get(key)
	assert.True(t, ok)
	assert.Equal(t, 1, c.Len())
	assert.Greater(t, c.SizeBytes(), int64(1))
}

func TestEvictionLRUOrder(t *testing.T) {
	t.Parallel()

	c := New(2*entryBytes+1, nil)
	parse := func() (*Entry, error) { return testEntry(0), nil }

	_, err := c.GetOrParse(Key(1), parse)
	require.NoError(t, err)
	_, err = c.GetOrParse(Key(2), parse)
	require.NoError(t, err)

	// Touch key 1 so key 2 becomes the eviction candidate.
	_, ok := c.Get(Key(1))
	require.True(t, ok)

	_, err = c.GetOrParse(Key(3), parse)
	require.NoError(t, err)

	_, ok = c.Get(Key(1))
	assert.True(t, ok)
	_, ok = c.Get(Key(2))
	assert.False(t, ok)
}

func TestEntryIndexMemoized(t *testing.T) {
	t.Parallel()

	e := testEntry(8)

	first, err := e.Index(8, 8, 8, 8)
	require.NoError(t, err)
	second, err := e.Index(8, 8, 8, 8)
	require.NoError(t, err)
	assert.Same(t, first, second, "same geometry reuses the built index")

	other, err := e.Index(4, 4, 16, 16)
	require.NoError(t, err)
	assert.NotSame(t, first, other)
}

func TestEntryIndexBadGeometry(t *testing.T) {
	t.Parallel()

	e := testEntry(1)
	_, err := e.Index(0, 8, 8, 8)
	require.ErrorIs(t, err, codec.ErrStructural)
}
