// Package cache keeps uploaded wasm code and the modules compiled from it.
// Pinned modules are never evicted; the others live in an LRU of bounded size.
package cache

import (
	"context"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/tetratelabs/wazero"

	"github.com/CosmWasm/actorvm/types"
)

type item struct {
	compiled wazero.CompiledModule
	size     uint64
	hits     uint32
	// pinned items leave the LRU without being closed.
	pinned bool
}

// Cache manages compiled Wasm modules
type Cache struct {
	mu      sync.Mutex
	codes   map[types.CodeID][]byte
	pinned  map[types.CodeID]*item
	memory  *lru.Cache[types.CodeID, *item]
	metrics types.Metrics
}

// New creates a cache holding at most capacity unpinned compiled modules.
func New(capacity int) *Cache {
	if capacity < 1 {
		capacity = 1
	}
	// Only a non-positive size is rejected.
	memory, _ := lru.NewWithEvict(capacity, func(_ types.CodeID, it *item) {
		if !it.pinned {
			_ = it.compiled.Close(context.Background())
		}
	})
	return &Cache{
		codes:  make(map[types.CodeID][]byte),
		pinned: make(map[types.CodeID]*item),
		memory: memory,
	}
}

// SaveCode stores code under its id.
func (c *Cache) SaveCode(code []byte) types.CodeID {
	id := types.NewCodeID(code)

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.codes[id]; !ok {
		c.codes[id] = append([]byte(nil), code...)
	}
	return id
}

// LoadCode returns the code stored under id.
func (c *Cache) LoadCode(id types.CodeID) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	code, ok := c.codes[id]
	return code, ok
}

// Compiled returns the compiled module for id, compiling it with compile on a
// miss.
func (c *Cache) Compiled(id types.CodeID, compile func(code []byte) (wazero.CompiledModule, error)) (wazero.CompiledModule, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if it, ok := c.pinned[id]; ok {
		c.metrics.HitsPinnedMemoryCache++
		it.hits++
		return it.compiled, nil
	}
	if it, ok := c.memory.Get(id); ok {
		c.metrics.HitsMemoryCache++
		it.hits++
		return it.compiled, nil
	}

	code, ok := c.codes[id]
	if !ok {
		return nil, ErrCodeNotFound{ID: id}
	}
	compiled, err := compile(code)
	if err != nil {
		return nil, err
	}
	c.metrics.Misses++
	c.memory.Add(id, &item{compiled: compiled, size: uint64(len(code))})
	return compiled, nil
}

// Pin moves the module of id into the pinned set, compiling it if needed.
func (c *Cache) Pin(id types.CodeID, compile func(code []byte) (wazero.CompiledModule, error)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.pinned[id]; ok {
		return nil
	}
	if it, ok := c.memory.Peek(id); ok {
		it.pinned = true
		c.memory.Remove(id)
		c.pinned[id] = it
		return nil
	}
	code, ok := c.codes[id]
	if !ok {
		return ErrCodeNotFound{ID: id}
	}
	compiled, err := compile(code)
	if err != nil {
		return err
	}
	c.pinned[id] = &item{compiled: compiled, size: uint64(len(code)), pinned: true}
	return nil
}

// Unpin returns a pinned module to the LRU.
func (c *Cache) Unpin(id types.CodeID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	it, ok := c.pinned[id]
	if !ok {
		return
	}
	delete(c.pinned, id)
	it.pinned = false
	c.memory.Add(id, it)
}

// Remove deletes the code of id and its compiled module. Pinned code is kept.
func (c *Cache) Remove(id types.CodeID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, isPinned := c.pinned[id]; isPinned {
		return false
	}
	c.memory.Remove(id)
	delete(c.codes, id)
	return true
}

// Metrics returns a snapshot of the counters.
func (c *Cache) Metrics() types.Metrics {
	c.mu.Lock()
	defer c.mu.Unlock()

	m := c.metrics
	m.ElementsPinnedMemoryCache = uint64(len(c.pinned))
	m.ElementsMemoryCache = uint64(c.memory.Len())
	m.CodeElements = uint64(len(c.codes))
	for _, it := range c.pinned {
		m.SizePinnedMemoryCache += it.size
	}
	for _, it := range c.memory.Values() {
		m.SizeMemoryCache += it.size
	}
	return m
}

// PinnedMetrics returns the hits and size of every pinned module.
func (c *Cache) PinnedMetrics() types.PinnedMetrics {
	c.mu.Lock()
	defer c.mu.Unlock()

	var pm types.PinnedMetrics
	for id, it := range c.pinned {
		pm.PerModule = append(pm.PerModule, types.PerModuleEntry{
			CodeID:  id,
			Metrics: types.PerModuleMetrics{Hits: it.hits, Size: it.size},
		})
	}
	pm.Sort()
	return pm
}

// Close releases every compiled module.
func (c *Cache) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var firstErr error
	for _, it := range c.pinned {
		if err := it.compiled.Close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	c.pinned = make(map[types.CodeID]*item)
	c.memory.Purge()
	return firstErr
}

// ErrCodeNotFound is returned for an unknown code id.
type ErrCodeNotFound struct {
	ID types.CodeID
}

func (e ErrCodeNotFound) Error() string {
	return "code " + e.ID.String() + " not found"
}
