// Package cucache memoizes parsed tile results. Parsing a tile is pure
// (payload + tile config fully determine the output), so results are
// cached by content key, deduplicated in flight, and shared immutably
// across readers. Entries carry lazily built spatial indexes for O(1) cell
// lookup by the overlay extractors.
package cucache

import (
	"container/list"
	"encoding/binary"
	"hash/fnv"
	"log/slog"
	"strconv"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/zsiec/lens/internal/codec"
)

// Key identifies one parse: a content hash of the tile payload plus
// every config field that shapes the output. Equal keys imply
// value-equal parse results, so anything the parser branches on must be
// folded in: the same bytes decode along different symbol paths under a
// key frame and an inter frame, and unit coordinates are absolute, so
// one payload parsed at two origins yields different units.
type Key uint64

// MakeKey hashes the payload, its length, and the parse-shaping config
// fields with FNV-1a: frame geometry, superblock size, tile origin and
// size, base QP, and the delta-Q and intra-only flags.
func MakeKey(payload []byte, cfg codec.TileConfig) Key {
	h := fnv.New64a()
	h.Write(payload)
	var tail [73]byte
	fields := [9]int{
		len(payload),
		cfg.FrameW, cfg.FrameH, cfg.SBSize,
		cfg.OriginX, cfg.OriginY, cfg.TileW, cfg.TileH,
		cfg.BaseQP,
	}
	for i, v := range fields {
		binary.BigEndian.PutUint64(tail[i*8:], uint64(int64(v)))
	}
	if cfg.DeltaQ {
		tail[72] |= 1
	}
	if cfg.IntraOnly {
		tail[72] |= 2
	}
	h.Write(tail[:])
	return Key(h.Sum64())
}

type geometry struct {
	gridW, gridH int
	cellW, cellH int
}

// Entry is one immutable cached parse result. The units, final QP, and
// recovered errors never change after publication; only the memoized
// spatial indexes are built lazily, under the entry's own lock.
type Entry struct {
	Units     []codec.CodingUnit
	FinalQP   uint8
	Recovered []codec.SuperblockError
	Partial   bool

	mu      sync.Mutex
	indexes map[geometry]*SpatialIndex
}

// NewEntry wraps a tile result for caching.
func NewEntry(res *codec.TileResult) *Entry {
	return &Entry{
		Units:     res.Units,
		FinalQP:   res.FinalQP,
		Recovered: res.Recovered,
		Partial:   res.Partial,
	}
}

// Index returns the spatial index for the given grid geometry, building
// it on first use. Indexes are memoized per geometry: repeated overlay
// extraction at the same resolution costs one build.
func (e *Entry) Index(gridW, gridH, cellW, cellH int) (*SpatialIndex, error) {
	g := geometry{gridW, gridH, cellW, cellH}

	e.mu.Lock()
	defer e.mu.Unlock()
	if ix, ok := e.indexes[g]; ok {
		return ix, nil
	}
	ix, err := BuildSpatialIndex(e.Units, gridW, gridH, cellW, cellH)
	if err != nil {
		return nil, err
	}
	if e.indexes == nil {
		e.indexes = make(map[geometry]*SpatialIndex)
	}
	e.indexes[g] = ix
	return ix, nil
}

const (
	unitBytes  = 40 // approximate in-memory size of one CodingUnit
	entryBytes = 256
)

func (e *Entry) size() int64 {
	return entryBytes + int64(len(e.Units))*unitBytes
}

// Stats is a point-in-time snapshot of cache effectiveness counters.
type Stats struct {
	Hits      uint64
	Misses    uint64
	Evictions uint64
}

type cacheItem struct {
	key   Key
	entry *Entry
}

// Cache is a byte-budgeted LRU of parse results with single-flight
// admission: concurrent GetOrParse calls for one key run parseFn once
// and share the entry.
type Cache struct {
	log    *slog.Logger
	budget int64
	group  singleflight.Group

	mu    sync.Mutex
	items map[Key]*list.Element
	lru   *list.List // front = most recently used
	size  int64
	stats Stats
}

// New creates a cache holding at most budget bytes of parse results. If
// log is nil, slog.Default() is used.
func New(budget int64, log *slog.Logger) *Cache {
	if log == nil {
		log = slog.Default()
	}
	return &Cache{
		log:    log.With("component", "cucache"),
		budget: budget,
		items:  make(map[Key]*list.Element),
		lru:    list.New(),
	}
}

// GetOrParse returns the cached entry for key, or runs parseFn to
// produce it. At most one parseFn runs per key at a time; every waiter
// receives the same entry. A parseFn error is returned to all waiters
// and nothing is cached.
func (c *Cache) GetOrParse(key Key, parseFn func() (*Entry, error)) (*Entry, error) {
	if e, ok := c.lookup(key); ok {
		return e, nil
	}

	v, err, _ := c.group.Do(strconv.FormatUint(uint64(key), 16), func() (any, error) {
		// A concurrent flight may have inserted the entry between the
		// miss and this callback.
		if e, ok := c.lookup(key); ok {
			return e, nil
		}
		e, err := parseFn()
		if err != nil {
			return nil, err
		}
		// A cancellation-truncated result is valid for this caller but
		// must not satisfy future lookups.
		if !e.Partial {
			c.insert(key, e)
		}
		return e, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Entry), nil
}

// Get returns the cached entry for key without parsing.
func (c *Cache) Get(key Key) (*Entry, bool) {
	return c.lookup(key)
}

func (c *Cache) lookup(key Key) (*Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.items[key]
	if !ok {
		c.stats.Misses++
		return nil, false
	}
	c.lru.MoveToFront(el)
	c.stats.Hits++
	return el.Value.(cacheItem).entry, true
}

func (c *Cache) insert(key Key, e *Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.items[key]; ok {
		return
	}
	c.items[key] = c.lru.PushFront(cacheItem{key: key, entry: e})
	c.size += e.size()

	for c.size > c.budget && c.lru.Len() > 1 {
		back := c.lru.Back()
		item := back.Value.(cacheItem)
		c.lru.Remove(back)
		delete(c.items, item.key)
		c.size -= item.entry.size()
		c.stats.Evictions++
		c.log.Debug("evicted entry", "key", item.key, "cache_bytes", c.size)
	}
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// SizeBytes returns the current accounted size of the cache.
func (c *Cache) SizeBytes() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

// Stats returns a snapshot of the hit/miss/eviction counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}
