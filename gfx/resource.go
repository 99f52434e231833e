// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package gfx

import "github.com/pkg/errors"

// Buffer is a device-memory-backed buffer. The zero value is a valid,
// uninitialised buffer; Destroy on it is a no-op.
type Buffer struct {
	dev    Allocator
	info   BufferInfo
	buffer Handle
	memory Handle
}

// NewBuffer creates, allocates and binds a new buffer.
func NewBuffer(dev Allocator, info BufferInfo) (*Buffer, error) {
	b := &Buffer{}
	if err := b.Init(dev, info); err != nil {
		return nil, err
	}
	return b, nil
}

// Init creates the buffer and its allocation. An initialised
// buffer is destroyed first.
func (b *Buffer) Init(dev Allocator, info BufferInfo) error {
	b.Destroy()

	buffer, memory, err := dev.CreateBuffer(info)
	if err != nil {
		return errors.Wrapf(ErrAllocation, "buffer of %d bytes: %s", info.Size, err)
	}
	b.dev = dev
	b.info = info
	b.buffer = buffer
	b.memory = memory
	return nil
}

// Get returns the buffer handle.
func (b *Buffer) Get() Handle {
	return b.buffer
}

// Size returns the capacity in bytes.
func (b *Buffer) Size() uint64 {
	return b.info.Size
}

// Usage returns the usage flags the buffer was created with.
func (b *Buffer) Usage() BufferUsage {
	return b.info.Usage
}

// Initialised reports whether the buffer holds a live handle.
func (b *Buffer) Initialised() bool {
	return !b.buffer.IsNull()
}

// SetData maps the buffer, copies min(len(data), Size()) bytes and unmaps.
// Data beyond capacity is dropped; the returned count tells how much was
// written so callers can detect it.
func (b *Buffer) SetData(data []byte) (int, error) {
	if !b.Initialised() {
		return 0, ErrNotInitialised
	}
	if !b.info.HostVisible {
		return 0, ErrNotHostVisible
	}

	mapped, err := b.dev.MapMemory(b.memory, b.info.Size)
	if err != nil {
		return 0, errors.Wrap(err, "map buffer memory")
	}
	n := copy(mapped, data)
	b.dev.UnmapMemory(b.memory)
	return n, nil
}

// Destroy destroys the buffer and frees its memory. Safe to call twice.
func (b *Buffer) Destroy() {
	if b.buffer.IsNull() {
		return
	}
	b.dev.DestroyBuffer(b.buffer, b.memory)
	b.buffer = NullHandle
	b.memory = NullHandle
}

// Image is a device-memory-backed 2D image.
type Image struct {
	dev    Allocator
	info   ImageInfo
	image  Handle
	memory Handle
}

// NewImage creates an image with its own memory.
func NewImage(dev Allocator, info ImageInfo) (*Image, error) {
	img := &Image{}
	if err := img.Init(dev, info); err != nil {
		return nil, err
	}
	return img, nil
}

// Init creates the image and its allocation.
func (i *Image) Init(dev Allocator, info ImageInfo) error {
	i.Destroy()

	image, memory, err := dev.CreateImage(info)
	if err != nil {
		return errors.Wrapf(ErrAllocation, "image %s format %d: %s", info.Extent, info.Format, err)
	}
	i.dev = dev
	i.info = info
	i.image = image
	i.memory = memory
	return nil
}

// Get returns the image handle.
func (i *Image) Get() Handle {
	return i.image
}

// Format returns the image format.
func (i *Image) Format() Format {
	return i.info.Format
}

// Extent returns the image size.
func (i *Image) Extent() Extent2D {
	return i.info.Extent
}

// Usage returns the usage flags.
func (i *Image) Usage() ImageUsage {
	return i.info.Usage
}

// Initialised reports whether the image holds a live handle.
func (i *Image) Initialised() bool {
	return !i.image.IsNull()
}

// Destroy destroys the image and frees its memory.
func (i *Image) Destroy() {
	if i.image.IsNull() {
		return
	}
	i.dev.DestroyImage(i.image, i.memory)
	i.image = NullHandle
	i.memory = NullHandle
}

// ImageView is a view over an image.
type ImageView struct {
	dev  Allocator
	view Handle
}

// Init creates a view of image covering aspect.
func (v *ImageView) Init(dev Allocator, image Handle, format Format, aspect Aspect) error {
	v.Destroy()

	view, err := dev.CreateImageView(image, format, aspect)
	if err != nil {
		return errors.Wrap(err, "create image view")
	}
	v.dev = dev
	v.view = view
	return nil
}

// Get returns the view handle.
func (v *ImageView) Get() Handle {
	return v.view
}

// Destroy destroys the view.
func (v *ImageView) Destroy() {
	if v.view.IsNull() {
		return
	}
	v.dev.DestroyImageView(v.view)
	v.view = NullHandle
}

// Sampler wraps a sampler object.
type Sampler struct {
	dev     Allocator
	sampler Handle
}

// Init creates the sampler.
func (s *Sampler) Init(dev Allocator, info SamplerInfo) error {
	s.Destroy()

	sampler, err := dev.CreateSampler(info)
	if err != nil {
		return errors.Wrapf(ErrAllocation, "sampler: %s", err)
	}
	s.dev = dev
	s.sampler = sampler
	return nil
}

// Get returns the sampler handle.
func (s *Sampler) Get() Handle {
	return s.sampler
}

// Destroy destroys the sampler.
func (s *Sampler) Destroy() {
	if s.sampler.IsNull() {
		return
	}
	s.dev.DestroySampler(s.sampler)
	s.sampler = NullHandle
}

// DescriptorPool owns a pool and every set allocated from it. Sets die
// with the pool.
type DescriptorPool struct {
	dev  Binder
	pool Handle
}

// Init creates a pool able to hold maxSets sets of the given sizes.
func (p *DescriptorPool) Init(dev Binder, maxSets uint32, sizes []PoolSize) error {
	p.Destroy()

	pool, err := dev.CreateDescriptorPool(maxSets, sizes)
	if err != nil {
		return errors.Wrapf(ErrAllocation, "descriptor pool: %s", err)
	}
	p.dev = dev
	p.pool = pool
	return nil
}

// Get returns the pool handle.
func (p *DescriptorPool) Get() Handle {
	return p.pool
}

// Alloc allocates one set per layout.
func (p *DescriptorPool) Alloc(layouts ...Handle) ([]Handle, error) {
	if p.pool.IsNull() {
		return nil, ErrNotInitialised
	}
	sets, err := p.dev.AllocateDescriptorSets(p.pool, layouts)
	if err != nil {
		return nil, errors.Wrapf(ErrAllocation, "descriptor sets: %s", err)
	}
	return sets, nil
}

// Destroy destroys the pool and its sets.
func (p *DescriptorPool) Destroy() {
	if p.pool.IsNull() {
		return
	}
	p.dev.DestroyDescriptorPool(p.pool)
	p.pool = NullHandle
}
