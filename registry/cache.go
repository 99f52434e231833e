// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package registry

import (
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/devblok/korugraph/assets"
)

// package errors
var (
	ErrStaleRef = errors.New("reference to an evicted entry")
	ErrHeld     = errors.New("entry is still referenced")
)

// Resource is anything a cache can own.
type Resource interface {
	Destroy()
}

// Loader loads the resource at a path.
type Loader[T Resource] interface {
	Load(respath string) (T, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc[T Resource] func(respath string) (T, error)

// Load implements Loader.
func (f LoaderFunc[T]) Load(respath string) (T, error) {
	return f(respath)
}

// Ref identifies a cache entry. A Ref outlives its entry safely: after
// eviction the slot's generation changes and lookups miss.
type Ref struct {
	index      uint32
	generation uint32
}

// Valid reports whether r was ever returned by Request.
func (r Ref) Valid() bool {
	return r.generation != 0
}

type entry[T Resource] struct {
	path       string
	value      T
	refs       int
	generation uint32
	live       bool
}

// Cache shares resources by path. Each entry is loaded once, counts
// its owners, and is destroyed only on explicit eviction.
type Cache[T Resource] struct {
	name   string
	loader Loader[T]
	log    log.FieldLogger

	mutex   sync.Mutex
	entries []entry[T]
	free    []uint32
	byPath  map[string]uint32
	loads   int
	group   singleflight.Group
}

// NewCache creates a cache loading through loader.
func NewCache[T Resource](name string, loader Loader[T], logger log.FieldLogger) *Cache[T] {
	return &Cache[T]{
		name:   name,
		loader: loader,
		log:    logger.WithField("cache", name),
		byPath: make(map[string]uint32),
	}
}

// key names the entry of respath. Paths that resolve to the same asset
// share a key; malformed ones are kept as given and fail in the loader.
func key(respath string) string {
	if clean, err := assets.Clean(respath); err == nil {
		return clean
	}
	return respath
}

// Request returns a reference to the entry for respath, loading it
// first when absent. Concurrent requests for the same path share one
// load. Every successful Request must be paired with a Release.
func (c *Cache[T]) Request(respath string) (Ref, error) {
	respath = key(respath)
	for {
		c.mutex.Lock()
		if idx, ok := c.byPath[respath]; ok {
			ref := c.acquire(idx)
			c.mutex.Unlock()
			return ref, nil
		}
		c.mutex.Unlock()

		_, err, _ := c.group.Do(respath, func() (interface{}, error) {
			return nil, c.load(respath)
		})
		if err != nil {
			return Ref{}, err
		}
		// an eviction may race the reacquire; the loop retries
	}
}

func (c *Cache[T]) load(respath string) error {
	c.mutex.Lock()
	_, ok := c.byPath[respath]
	c.mutex.Unlock()
	if ok {
		return nil
	}

	value, err := c.loader.Load(respath)
	if err != nil {
		return errors.Wrapf(err, "load %s", respath)
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()
	var idx uint32
	if n := len(c.free); n > 0 {
		idx = c.free[n-1]
		c.free = c.free[:n-1]
	} else {
		idx = uint32(len(c.entries))
		c.entries = append(c.entries, entry[T]{})
	}
	e := &c.entries[idx]
	e.path = respath
	e.value = value
	e.refs = 0
	e.generation++
	e.live = true
	c.byPath[respath] = idx
	c.loads++
	c.log.WithField("path", respath).Debug("loaded")
	return nil
}

func (c *Cache[T]) acquire(idx uint32) Ref {
	e := &c.entries[idx]
	e.refs++
	return Ref{index: idx, generation: e.generation}
}

func (c *Cache[T]) lookup(ref Ref) (*entry[T], bool) {
	if int(ref.index) >= len(c.entries) {
		return nil, false
	}
	e := &c.entries[ref.index]
	if !e.live || e.generation != ref.generation {
		return nil, false
	}
	return e, true
}

// Get returns the resource behind ref without taking ownership.
func (c *Cache[T]) Get(ref Ref) (T, bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	e, ok := c.lookup(ref)
	if !ok {
		var zero T
		return zero, false
	}
	return e.value, true
}

// Release gives up one ownership of ref. The entry stays loaded.
func (c *Cache[T]) Release(ref Ref) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	e, ok := c.lookup(ref)
	if !ok {
		return ErrStaleRef
	}
	if e.refs == 0 {
		c.log.WithField("path", e.path).Warn("release of an entry nobody holds")
		return nil
	}
	e.refs--
	return nil
}

// Refs returns the reference count of respath, or -1 when not loaded.
func (c *Cache[T]) Refs(respath string) int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	idx, ok := c.byPath[key(respath)]
	if !ok {
		return -1
	}
	return c.entries[idx].refs
}

// Len returns the number of loaded entries.
func (c *Cache[T]) Len() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return len(c.byPath)
}

// Loads returns how many loads the cache has performed.
func (c *Cache[T]) Loads() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.loads
}

// Evict destroys the entry for respath once nobody holds it. The GPU
// must no longer use the resource.
func (c *Cache[T]) Evict(respath string) error {
	respath = key(respath)
	c.mutex.Lock()
	defer c.mutex.Unlock()
	idx, ok := c.byPath[respath]
	if !ok {
		return nil
	}
	if c.entries[idx].refs > 0 {
		return errors.Wrapf(ErrHeld, "%s has %d owners", respath, c.entries[idx].refs)
	}
	c.destroy(idx)
	return nil
}

// EvictUnused destroys every entry nobody holds and returns how many.
func (c *Cache[T]) EvictUnused() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	evicted := 0
	for _, idx := range c.byPath {
		if c.entries[idx].refs == 0 {
			c.destroy(idx)
			evicted++
		}
	}
	return evicted
}

func (c *Cache[T]) destroy(idx uint32) {
	e := &c.entries[idx]
	e.value.Destroy()
	delete(c.byPath, e.path)
	var zero T
	e.value = zero
	e.live = false
	e.refs = 0
	e.generation++
	c.free = append(c.free, idx)
	c.log.WithField("path", e.path).Debug("evicted")
}

// DestroyAll destroys every entry, warning about the ones still held.
// The device must be idle.
func (c *Cache[T]) DestroyAll() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	for path, idx := range c.byPath {
		if refs := c.entries[idx].refs; refs > 0 {
			c.log.WithFields(log.Fields{"path": path, "refs": refs}).Warn("destroying entry still held")
		}
		c.destroy(idx)
	}
}
