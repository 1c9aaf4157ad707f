package waveform

import (
	"container/list"
	"slices"

	"github.com/cbegin/midisynth-go/internal/handle"
)

// DefaultCacheSize is the number of tables a TableCache keeps.
const DefaultCacheSize = 32

// TableKey identifies a built table by generator type and parameters.
type TableKey struct {
	Type  handle.WaveformType
	Param int
	Seed  int64
	Data  string
}

type cacheEntry struct {
	key   TableKey
	table []float64
}

// TableCache memoizes normalized tables, most recently used first.
// It is owned by one render context and is not safe for concurrent use.
type TableCache struct {
	capacity int
	order    *list.List
	entries  map[TableKey]*list.Element
	hits     int
	misses   int
}

func NewTableCache(capacity int) *TableCache {
	if capacity <= 0 {
		capacity = DefaultCacheSize
	}
	return &TableCache{
		capacity: capacity,
		order:    list.New(),
		entries:  make(map[TableKey]*list.Element, capacity),
	}
}

// Lookup returns the table for key, calling build on a miss. With resizable
// set the caller receives its own copy and may append to it; otherwise the
// cached table is shared and must not be modified.
func (c *TableCache) Lookup(key TableKey, resizable bool, build func() []float64) []float64 {
	if c == nil {
		return build()
	}
	if el, ok := c.entries[key]; ok {
		c.hits++
		c.order.MoveToFront(el)
		table := el.Value.(*cacheEntry).table
		if resizable {
			return slices.Clone(table)
		}
		return table
	}
	c.misses++
	table := build()
	c.entries[key] = c.order.PushFront(&cacheEntry{key: key, table: table})
	for c.order.Len() > c.capacity {
		last := c.order.Back()
		c.order.Remove(last)
		delete(c.entries, last.Value.(*cacheEntry).key)
	}
	if resizable {
		return slices.Clone(table)
	}
	return table
}

func (c *TableCache) Len() int {
	if c == nil {
		return 0
	}
	return c.order.Len()
}

// Stats returns the hit and miss counters.
func (c *TableCache) Stats() (hits, misses int) {
	if c == nil {
		return 0, 0
	}
	return c.hits, c.misses
}
