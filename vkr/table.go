// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vkr

import (
	"sync"
	"sync/atomic"

	"github.com/devblok/korugraph/gfx"
)

// ids hands out handles unique across every table of a device.
type ids struct {
	last atomic.Uint64
}

func (i *ids) next() gfx.Handle {
	return gfx.Handle(i.last.Add(1))
}

// table maps gfx handles to Vulkan objects of one kind.
type table[T any] struct {
	ids   *ids
	mutex sync.RWMutex
	items map[gfx.Handle]T
}

func newTable[T any](ids *ids) *table[T] {
	return &table[T]{ids: ids, items: make(map[gfx.Handle]T)}
}

func (t *table[T]) put(v T) gfx.Handle {
	h := t.ids.next()
	t.mutex.Lock()
	t.items[h] = v
	t.mutex.Unlock()
	return h
}

func (t *table[T]) get(h gfx.Handle) (T, bool) {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	v, ok := t.items[h]
	return v, ok
}

// take removes h and returns what it mapped to.
func (t *table[T]) take(h gfx.Handle) (T, bool) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	v, ok := t.items[h]
	delete(t.items, h)
	return v, ok
}

func (t *table[T]) len() int {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	return len(t.items)
}
