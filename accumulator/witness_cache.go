package accumulator

import (
	"crypto/sha256"
	"sync"
	"sync/atomic"
)

// WitnessCache memoises BatchWitgen results keyed by hash(tuple(X)), since
// batch witness generation is O(N log N) and a stage's data set is
// immutable once it stops accepting contributions. Unlike a generic LRU,
// this cache has no size limit or TTL: its lifetime is tied to the owning
// Stage and it is discarded wholesale when the stage is.
type WitnessCache struct {
	mu      sync.RWMutex
	entries map[[32]byte][]Witness

	hits   atomic.Uint64
	misses atomic.Uint64
}

// NewWitnessCache returns an empty cache.
func NewWitnessCache() *WitnessCache {
	return &WitnessCache{entries: make(map[[32]byte][]Witness)}
}

// KeyOf hashes the tuple of data elements to a cache key. Order-sensitive:
// two data sets in a different order are different tuples.
func KeyOf(x [][]byte) [32]byte {
	h := sha256.New()
	for _, xi := range x {
		var lenPrefix [8]byte
		n := len(xi)
		for i := 0; i < 8; i++ {
			lenPrefix[7-i] = byte(n)
			n >>= 8
		}
		h.Write(lenPrefix[:])
		h.Write(xi)
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// Get returns the cached batch witness set for x, if present.
func (c *WitnessCache) Get(x [][]byte) ([]Witness, bool) {
	key := KeyOf(x)
	c.mu.RLock()
	defer c.mu.RUnlock()
	w, ok := c.entries[key]
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return w, ok
}

// Put stores the batch witness set for x.
func (c *WitnessCache) Put(x [][]byte, witnesses []Witness) {
	key := KeyOf(x)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = witnesses
}

// GetOrCompute returns the cached witness set for x, computing and caching
// it via acc.BatchWitgen if absent.
func (c *WitnessCache) GetOrCompute(acc Accumulator, x [][]byte) ([]Witness, error) {
	if w, ok := c.Get(x); ok {
		return w, nil
	}
	w, err := acc.BatchWitgen(x)
	if err != nil {
		return nil, err
	}
	c.Put(x, w)
	return w, nil
}

// Clear discards all cached entries. Called when the owning stage is
// discarded.
func (c *WitnessCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[[32]byte][]Witness)
}

// Size returns the number of distinct data sets currently cached.
func (c *WitnessCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
