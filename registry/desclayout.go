// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package registry owns the resources shared between passes and frames:
// descriptor set layouts by name, and reference counted textures and
// models by resource path.
package registry

import (
	"sort"
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/devblok/korugraph/core"
	"github.com/devblok/korugraph/gfx"
)

// package errors
var (
	ErrDuplicateLayout = errors.New("descriptor set layout already registered")
	ErrUnknownLayout   = errors.New("descriptor set layout not registered")
)

// LayoutBuilder accumulates the bindings of a layout, numbering them in
// the order they are added.
type LayoutBuilder struct {
	name     string
	bindings []gfx.DescriptorBinding
}

// NewLayout starts a layout called name.
func NewLayout(name string) *LayoutBuilder {
	return &LayoutBuilder{name: name}
}

func (b *LayoutBuilder) add(t gfx.DescriptorType, stages gfx.ShaderStage, count uint32) *LayoutBuilder {
	b.bindings = append(b.bindings, gfx.DescriptorBinding{
		Binding: uint32(len(b.bindings)),
		Type:    t,
		Count:   count,
		Stages:  stages,
	})
	return b
}

// AddUniformBuffer adds a uniform buffer binding.
func (b *LayoutBuilder) AddUniformBuffer(stages gfx.ShaderStage, count uint32) *LayoutBuilder {
	return b.add(gfx.DescriptorUniformBuffer, stages, count)
}

// AddImage adds a combined image sampler binding.
func (b *LayoutBuilder) AddImage(stages gfx.ShaderStage, count uint32) *LayoutBuilder {
	return b.add(gfx.DescriptorCombinedImageSampler, stages, count)
}

// AddInputAttachment adds an input attachment binding.
func (b *LayoutBuilder) AddInputAttachment(stages gfx.ShaderStage, count uint32) *LayoutBuilder {
	return b.add(gfx.DescriptorInputAttachment, stages, count)
}

// Name returns the layout name.
func (b *LayoutBuilder) Name() string {
	return b.name
}

// Bindings returns the bindings added so far.
func (b *LayoutBuilder) Bindings() []gfx.DescriptorBinding {
	return b.bindings
}

// DescLayout is an immutable, named descriptor set layout.
type DescLayout struct {
	name     string
	handle   gfx.Handle
	bindings []gfx.DescriptorBinding
}

// Name returns the layout name.
func (l *DescLayout) Name() string {
	return l.name
}

// Get returns the layout handle.
func (l *DescLayout) Get() gfx.Handle {
	return l.handle
}

// Bindings returns the layout bindings.
func (l *DescLayout) Bindings() []gfx.DescriptorBinding {
	return l.bindings
}

// PoolSizes returns the descriptor counts a pool needs to allocate
// sets of this layout.
func (l *DescLayout) PoolSizes(sets uint32) []gfx.PoolSize {
	counts := make(map[gfx.DescriptorType]uint32)
	for _, b := range l.bindings {
		counts[b.Type] += b.Count * sets
	}
	sizes := make([]gfx.PoolSize, 0, len(counts))
	for t, n := range counts {
		sizes = append(sizes, gfx.PoolSize{Type: t, Count: n})
	}
	sort.Slice(sizes, func(i, j int) bool { return sizes[i].Type < sizes[j].Type })
	return sizes
}

// DescLayouts is the catalog of descriptor set layouts. Layouts are
// added during setup and only read afterwards.
type DescLayouts struct {
	ctx *core.Context
	dev gfx.Binder
	log log.FieldLogger

	mutex   sync.RWMutex
	layouts map[string]*DescLayout
	order   []string
}

// NewDescLayouts creates an empty catalog.
func NewDescLayouts(ctx *core.Context, dev gfx.Binder) *DescLayouts {
	return &DescLayouts{
		ctx:     ctx,
		dev:     dev,
		log:     ctx.Logger("desclayouts"),
		layouts: make(map[string]*DescLayout),
	}
}

// Add creates and registers the layout built by b. A duplicate name or
// a failed creation aborts the process.
func (d *DescLayouts) Add(b *LayoutBuilder) gfx.Handle {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if _, ok := d.layouts[b.name]; ok {
		d.ctx.Fatal(errors.Wrap(ErrDuplicateLayout, b.name), "descriptor set layout catalog")
		return gfx.NullHandle
	}
	handle, err := d.dev.CreateDescriptorSetLayout(b.bindings)
	if err != nil {
		d.ctx.Fatal(errors.Wrapf(gfx.ErrAllocation, "descriptor set layout %s: %s", b.name, err), "descriptor set layout catalog")
		return gfx.NullHandle
	}

	bindings := make([]gfx.DescriptorBinding, len(b.bindings))
	copy(bindings, b.bindings)
	d.layouts[b.name] = &DescLayout{name: b.name, handle: handle, bindings: bindings}
	d.order = append(d.order, b.name)
	d.log.WithField("layout", b.name).Debug("descriptor set layout added")
	return handle
}

// Get returns the layout called name. A miss is a programming error and
// aborts the process.
func (d *DescLayouts) Get(name string) *DescLayout {
	d.mutex.RLock()
	l, ok := d.layouts[name]
	d.mutex.RUnlock()
	if !ok {
		d.ctx.Fatal(errors.Wrap(ErrUnknownLayout, name), "descriptor set layout catalog")
		return &DescLayout{name: name}
	}
	return l
}

// Has reports whether a layout called name is registered.
func (d *DescLayouts) Has(name string) bool {
	d.mutex.RLock()
	defer d.mutex.RUnlock()
	_, ok := d.layouts[name]
	return ok
}

// PoolSizes returns the pool sizes for sets sets of layout name.
func (d *DescLayouts) PoolSizes(name string, sets uint32) []gfx.PoolSize {
	return d.Get(name).PoolSizes(sets)
}

// Destroy destroys every layout in reverse registration order.
func (d *DescLayouts) Destroy() {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	for i := len(d.order) - 1; i >= 0; i-- {
		d.dev.DestroyDescriptorSetLayout(d.layouts[d.order[i]].handle)
	}
	d.layouts = make(map[string]*DescLayout)
	d.order = nil
}
