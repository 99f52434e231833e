// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package gfxtest provides an in-memory gfx.Device for tests. It completes
// GPU work when its fence is waited on, keeps a log of every call and
// records synchronization misuse as violations instead of hanging.
package gfxtest

import (
	"fmt"
	"sort"
	"sync"

	"github.com/pkg/errors"

	"github.com/devblok/korugraph/gfx"
)

// ErrInjected is returned by calls made to fail with Fail.
var ErrInjected = errors.New("injected failure")

type fence struct {
	signaled bool
	pending  bool
}

type swapchain struct {
	info   gfx.SwapchainInfo
	images []gfx.Handle
	next   uint32
}

// Device implements gfx.Device in memory. It is safe for concurrent use.
type Device struct {
	mu sync.Mutex

	next       gfx.Handle
	live       map[gfx.Handle]string
	memory     map[gfx.Handle][]byte
	images     map[gfx.Handle]gfx.ImageInfo
	views      map[gfx.Handle]gfx.Handle
	passes     map[gfx.Handle]gfx.RenderPassInfo
	fbs        map[gfx.Handle]gfx.FramebufferInfo
	fences     map[gfx.Handle]*fence
	semaphores map[gfx.Handle]bool
	swapchains map[gfx.Handle]*swapchain

	caps    gfx.SurfaceCapabilities
	formats []gfx.SurfaceFormat
	modes   []gfx.PresentMode

	acquireResults []gfx.Result
	presentResults []gfx.Result
	failing        map[string]bool

	events         []string
	violations     []string
	submits        int
	presents       int
	uploads        int
	outstanding    int
	maxOutstanding int
	destroyed      bool
}

// New creates a device whose surface accepts any extent between 1x1
// and 4096x4096 and lets the swapchain pick the size.
func New() *Device {
	return &Device{
		next:       1,
		live:       make(map[gfx.Handle]string),
		memory:     make(map[gfx.Handle][]byte),
		images:     make(map[gfx.Handle]gfx.ImageInfo),
		views:      make(map[gfx.Handle]gfx.Handle),
		passes:     make(map[gfx.Handle]gfx.RenderPassInfo),
		fbs:        make(map[gfx.Handle]gfx.FramebufferInfo),
		fences:     make(map[gfx.Handle]*fence),
		semaphores: make(map[gfx.Handle]bool),
		swapchains: make(map[gfx.Handle]*swapchain),
		failing:    make(map[string]bool),
		caps: gfx.SurfaceCapabilities{
			MinImageCount: 2,
			MaxImageCount: 8,
			CurrentExtent: gfx.Extent2D{Width: gfx.UndefinedExtent, Height: gfx.UndefinedExtent},
			MinExtent:     gfx.Extent2D{Width: 1, Height: 1},
			MaxExtent:     gfx.Extent2D{Width: 4096, Height: 4096},
		},
		formats: []gfx.SurfaceFormat{
			{Format: gfx.FormatB8g8r8a8Unorm, ColorSpace: gfx.ColorSpaceSrgbNonlinear},
			{Format: gfx.FormatB8g8r8a8Srgb, ColorSpace: gfx.ColorSpaceSrgbNonlinear},
		},
		modes: []gfx.PresentMode{gfx.PresentFifo, gfx.PresentMailbox},
	}
}

// SetCapabilities replaces the reported surface capabilities.
func (d *Device) SetCapabilities(caps gfx.SurfaceCapabilities) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.caps = caps
}

// SetFormats replaces the reported surface formats.
func (d *Device) SetFormats(formats ...gfx.SurfaceFormat) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.formats = formats
}

// SetPresentModes replaces the reported present modes.
func (d *Device) SetPresentModes(modes ...gfx.PresentMode) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.modes = modes
}

// QueueAcquireResults scripts the results of the next acquires.
// Unscripted acquires succeed.
func (d *Device) QueueAcquireResults(results ...gfx.Result) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.acquireResults = append(d.acquireResults, results...)
}

// QueuePresentResults scripts the results of the next presents.
func (d *Device) QueuePresentResults(results ...gfx.Result) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.presentResults = append(d.presentResults, results...)
}

// Fail makes every following creation of kind fail, kind being one of
// "buffer", "image", "view", "sampler", "layout", "pool", "sets",
// "semaphore", "fence", "renderpass", "framebuffer", "cmdpool", "swapchain",
// "upload", "submit".
func (d *Device) Fail(kind string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failing[kind] = true
}

// Events returns the call log.
func (d *Device) Events() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.events...)
}

// ClearEvents empties the call log.
func (d *Device) ClearEvents() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = nil
}

// Violations returns every synchronization or lifetime misuse seen.
func (d *Device) Violations() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.violations...)
}

// Submits returns the number of queue submissions.
func (d *Device) Submits() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.submits
}

// Presents returns the number of present calls.
func (d *Device) Presents() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.presents
}

// Uploads returns the number of image uploads.
func (d *Device) Uploads() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.uploads
}

// MaxOutstanding returns the largest number of fenced submissions that
// were pending at once.
func (d *Device) MaxOutstanding() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.maxOutstanding
}

// Live returns the number of live objects per kind.
func (d *Device) Live() map[string]int {
	d.mu.Lock()
	defer d.mu.Unlock()
	counts := make(map[string]int)
	for _, kind := range d.live {
		counts[kind]++
	}
	return counts
}

// LiveHandles returns the live handles of kind in creation order.
func (d *Device) LiveHandles(kind string) []gfx.Handle {
	d.mu.Lock()
	defer d.mu.Unlock()
	var handles []gfx.Handle
	for h, k := range d.live {
		if k == kind {
			handles = append(handles, h)
		}
	}
	sort.Slice(handles, func(i, j int) bool { return handles[i] < handles[j] })
	return handles
}

// IsLive reports whether h is a live object.
func (d *Device) IsLive(h gfx.Handle) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.live[h]
	return ok
}

// ImageInfo returns the creation info of a live or dead image.
func (d *Device) ImageInfo(image gfx.Handle) gfx.ImageInfo {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.images[image]
}

// ViewImage returns the image a view was created for.
func (d *Device) ViewImage(view gfx.Handle) gfx.Handle {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.views[view]
}

// FramebufferInfo returns the creation info of a framebuffer.
func (d *Device) FramebufferInfo(fb gfx.Handle) gfx.FramebufferInfo {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.fbs[fb]
}

// SwapchainInfo returns the creation info of a swapchain.
func (d *Device) SwapchainInfo(sc gfx.Handle) gfx.SwapchainInfo {
	d.mu.Lock()
	defer d.mu.Unlock()
	if s, ok := d.swapchains[sc]; ok {
		return s.info
	}
	return gfx.SwapchainInfo{}
}

// FenceSignaled reports the state of a fence.
func (d *Device) FenceSignaled(f gfx.Handle) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if fc, ok := d.fences[f]; ok {
		return fc.signaled
	}
	return false
}

// Memory returns the backing bytes of a host visible allocation.
func (d *Device) Memory(memory gfx.Handle) []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.memory[memory]
}

func (d *Device) logf(format string, args ...interface{}) {
	d.events = append(d.events, fmt.Sprintf(format, args...))
}

func (d *Device) violate(format string, args ...interface{}) {
	d.violations = append(d.violations, fmt.Sprintf(format, args...))
}

func (d *Device) create(kind string) (gfx.Handle, error) {
	if d.destroyed {
		d.violate("create %s on destroyed device", kind)
	}
	if d.failing[kind] {
		return gfx.NullHandle, errors.Wrap(ErrInjected, kind)
	}
	h := d.next
	d.next++
	d.live[h] = kind
	d.logf("create %s %d", kind, h)
	return h, nil
}

func (d *Device) destroy(kind string, h gfx.Handle) bool {
	if h.IsNull() {
		return false
	}
	if k, ok := d.live[h]; !ok || k != kind {
		d.violate("destroy of dead %s %d", kind, h)
		return false
	}
	delete(d.live, h)
	d.logf("destroy %s %d", kind, h)
	return true
}

// CreateBuffer implements gfx.Allocator.
func (d *Device) CreateBuffer(info gfx.BufferInfo) (gfx.Handle, gfx.Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	buffer, err := d.create("buffer")
	if err != nil {
		return gfx.NullHandle, gfx.NullHandle, err
	}
	memory, err := d.create("memory")
	if err != nil {
		d.destroy("buffer", buffer)
		return gfx.NullHandle, gfx.NullHandle, err
	}
	if info.HostVisible {
		d.memory[memory] = make([]byte, info.Size)
	}
	return buffer, memory, nil
}

// DestroyBuffer implements gfx.Allocator.
func (d *Device) DestroyBuffer(buffer, memory gfx.Handle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroy("buffer", buffer)
	if d.destroy("memory", memory) {
		delete(d.memory, memory)
	}
}

// MapMemory implements gfx.Allocator.
func (d *Device) MapMemory(memory gfx.Handle, size uint64) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	mem, ok := d.memory[memory]
	if !ok {
		return nil, errors.Errorf("memory %d is not mappable", memory)
	}
	d.logf("map memory %d", memory)
	if size > uint64(len(mem)) {
		size = uint64(len(mem))
	}
	return mem[:size], nil
}

// UnmapMemory implements gfx.Allocator.
func (d *Device) UnmapMemory(memory gfx.Handle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.logf("unmap memory %d", memory)
}

// CreateImage implements gfx.Allocator.
func (d *Device) CreateImage(info gfx.ImageInfo) (gfx.Handle, gfx.Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	image, err := d.create("image")
	if err != nil {
		return gfx.NullHandle, gfx.NullHandle, err
	}
	memory, err := d.create("memory")
	if err != nil {
		d.destroy("image", image)
		return gfx.NullHandle, gfx.NullHandle, err
	}
	d.images[image] = info
	return image, memory, nil
}

// DestroyImage implements gfx.Allocator.
func (d *Device) DestroyImage(image, memory gfx.Handle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroy("image", image)
	d.destroy("memory", memory)
}

// CreateImageView implements gfx.Allocator.
func (d *Device) CreateImageView(image gfx.Handle, format gfx.Format, aspect gfx.Aspect) (gfx.Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.live[image]; !ok {
		d.violate("view of dead image %d", image)
	}
	view, err := d.create("view")
	if err != nil {
		return gfx.NullHandle, err
	}
	d.views[view] = image
	return view, nil
}

// DestroyImageView implements gfx.Allocator.
func (d *Device) DestroyImageView(view gfx.Handle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroy("view", view)
}

// CreateSampler implements gfx.Allocator.
func (d *Device) CreateSampler(info gfx.SamplerInfo) (gfx.Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.create("sampler")
}

// DestroySampler implements gfx.Allocator.
func (d *Device) DestroySampler(sampler gfx.Handle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroy("sampler", sampler)
}

// UploadImage implements gfx.Allocator.
func (d *Device) UploadImage(image gfx.Handle, extent gfx.Extent2D, pixels []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failing["upload"] {
		return errors.Wrap(ErrInjected, "upload")
	}
	if want := int(extent.Width * extent.Height * 4); len(pixels) != want {
		return errors.Errorf("upload of %d bytes into %s image, want %d", len(pixels), extent, want)
	}
	d.uploads++
	d.logf("upload image %d", image)
	return nil
}

// CreateDescriptorSetLayout implements gfx.Binder.
func (d *Device) CreateDescriptorSetLayout(bindings []gfx.DescriptorBinding) (gfx.Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.create("layout")
}

// DestroyDescriptorSetLayout implements gfx.Binder.
func (d *Device) DestroyDescriptorSetLayout(layout gfx.Handle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroy("layout", layout)
}

// CreateDescriptorPool implements gfx.Binder.
func (d *Device) CreateDescriptorPool(maxSets uint32, sizes []gfx.PoolSize) (gfx.Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.create("pool")
}

// DestroyDescriptorPool implements gfx.Binder. Sets allocated from the
// pool die with it.
func (d *Device) DestroyDescriptorPool(pool gfx.Handle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroy("pool", pool)
	for h, kind := range d.live {
		if kind == "set:"+fmt.Sprint(pool) {
			delete(d.live, h)
		}
	}
}

// AllocateDescriptorSets implements gfx.Binder.
func (d *Device) AllocateDescriptorSets(pool gfx.Handle, layouts []gfx.Handle) ([]gfx.Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failing["sets"] {
		return nil, errors.Wrap(ErrInjected, "sets")
	}
	sets := make([]gfx.Handle, len(layouts))
	for i := range layouts {
		h, _ := d.create("set:" + fmt.Sprint(pool))
		sets[i] = h
	}
	return sets, nil
}

// WriteBufferDescriptor implements gfx.Binder.
func (d *Device) WriteBufferDescriptor(set gfx.Handle, binding uint32, buffer gfx.Handle, size uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.logf("write set %d binding %d buffer %d", set, binding, buffer)
}

// WriteImageDescriptor implements gfx.Binder.
func (d *Device) WriteImageDescriptor(set gfx.Handle, binding uint32, view, sampler gfx.Handle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.logf("write set %d binding %d view %d", set, binding, view)
}

// CreateSemaphore implements gfx.Synchronizer.
func (d *Device) CreateSemaphore() (gfx.Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	h, err := d.create("semaphore")
	if err == nil {
		d.semaphores[h] = false
	}
	return h, err
}

// DestroySemaphore implements gfx.Synchronizer.
func (d *Device) DestroySemaphore(semaphore gfx.Handle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.destroy("semaphore", semaphore) {
		delete(d.semaphores, semaphore)
	}
}

// CreateFence implements gfx.Synchronizer.
func (d *Device) CreateFence(signaled bool) (gfx.Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	h, err := d.create("fence")
	if err == nil {
		d.fences[h] = &fence{signaled: signaled}
	}
	return h, err
}

// DestroyFence implements gfx.Synchronizer.
func (d *Device) DestroyFence(f gfx.Handle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if fc, ok := d.fences[f]; ok && fc.pending {
		d.violate("fence %d destroyed while its work is pending", f)
	}
	if d.destroy("fence", f) {
		delete(d.fences, f)
	}
}

// WaitFence implements gfx.Synchronizer. Pending work completes on wait.
func (d *Device) WaitFence(f gfx.Handle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	fc, ok := d.fences[f]
	if !ok {
		d.violate("wait on dead fence %d", f)
		return errors.Errorf("fence %d is not live", f)
	}
	d.logf("wait fence %d", f)
	switch {
	case fc.signaled:
	case fc.pending:
		fc.pending = false
		fc.signaled = true
		d.outstanding--
	default:
		d.violate("wait on fence %d that nothing will signal", f)
		return errors.Errorf("fence %d would never signal", f)
	}
	return nil
}

// ResetFence implements gfx.Synchronizer.
func (d *Device) ResetFence(f gfx.Handle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	fc, ok := d.fences[f]
	if !ok {
		d.violate("reset of dead fence %d", f)
		return errors.Errorf("fence %d is not live", f)
	}
	if fc.pending {
		d.violate("reset of fence %d with pending work", f)
	}
	d.logf("reset fence %d", f)
	fc.signaled = false
	return nil
}

// WaitIdle implements gfx.Synchronizer.
func (d *Device) WaitIdle() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.logf("wait idle")
	for _, fc := range d.fences {
		if fc.pending {
			fc.pending = false
			fc.signaled = true
		}
	}
	d.outstanding = 0
	return nil
}

// CreateRenderPass implements gfx.Commander.
func (d *Device) CreateRenderPass(info gfx.RenderPassInfo) (gfx.Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	h, err := d.create("renderpass")
	if err == nil {
		d.passes[h] = info
	}
	return h, err
}

// DestroyRenderPass implements gfx.Commander.
func (d *Device) DestroyRenderPass(rp gfx.Handle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroy("renderpass", rp)
}

// CreateFramebuffer implements gfx.Commander.
func (d *Device) CreateFramebuffer(info gfx.FramebufferInfo) (gfx.Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, view := range info.Attachments {
		if _, ok := d.live[view]; !ok {
			d.violate("framebuffer over dead view %d", view)
		}
	}
	h, err := d.create("framebuffer")
	if err == nil {
		d.fbs[h] = info
	}
	return h, err
}

// DestroyFramebuffer implements gfx.Commander.
func (d *Device) DestroyFramebuffer(fb gfx.Handle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroy("framebuffer", fb)
}

// CreateCommandPool implements gfx.Commander.
func (d *Device) CreateCommandPool() (gfx.Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.create("cmdpool")
}

// DestroyCommandPool implements gfx.Commander.
func (d *Device) DestroyCommandPool(pool gfx.Handle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroy("cmdpool", pool)
	for h, kind := range d.live {
		if kind == "cmd:"+fmt.Sprint(pool) {
			delete(d.live, h)
		}
	}
}

// AllocateCommandBuffers implements gfx.Commander.
func (d *Device) AllocateCommandBuffers(pool gfx.Handle, count int) ([]gfx.Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	cmds := make([]gfx.Handle, count)
	for i := range cmds {
		h, err := d.create("cmd:" + fmt.Sprint(pool))
		if err != nil {
			return nil, err
		}
		cmds[i] = h
	}
	return cmds, nil
}

// BeginCommandBuffer implements gfx.Commander.
func (d *Device) BeginCommandBuffer(cmd gfx.Handle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.logf("begin cmd %d", cmd)
	return nil
}

// EndCommandBuffer implements gfx.Commander.
func (d *Device) EndCommandBuffer(cmd gfx.Handle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.logf("end cmd %d", cmd)
	return nil
}

// CmdBeginRenderPass implements gfx.Commander.
func (d *Device) CmdBeginRenderPass(cmd gfx.Handle, begin gfx.RenderPassBegin) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.live[begin.Framebuffer]; !ok {
		d.violate("render pass begun on dead framebuffer %d", begin.Framebuffer)
	}
	d.logf("begin pass %s fb %d", d.passes[begin.RenderPass].Name, begin.Framebuffer)
}

// CmdEndRenderPass implements gfx.Commander.
func (d *Device) CmdEndRenderPass(cmd gfx.Handle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.logf("end pass")
}

// Submit implements gfx.Commander.
func (d *Device) Submit(info gfx.SubmitInfo) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failing["submit"] {
		return errors.Wrap(ErrInjected, "submit")
	}
	if !info.Wait.IsNull() {
		if !d.semaphores[info.Wait] {
			d.violate("submit waits on unsignaled semaphore %d", info.Wait)
		}
		d.semaphores[info.Wait] = false
	}
	if !info.Signal.IsNull() {
		d.semaphores[info.Signal] = true
	}
	if !info.Fence.IsNull() {
		fc, ok := d.fences[info.Fence]
		switch {
		case !ok:
			d.violate("submit with dead fence %d", info.Fence)
		case fc.signaled || fc.pending:
			d.violate("submit with fence %d that was not reset", info.Fence)
		default:
			fc.pending = true
			d.outstanding++
			if d.outstanding > d.maxOutstanding {
				d.maxOutstanding = d.outstanding
			}
		}
	}
	d.submits++
	d.logf("submit fence %d", info.Fence)
	return nil
}

// SurfaceCapabilities implements gfx.Presenter.
func (d *Device) SurfaceCapabilities() (gfx.SurfaceCapabilities, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.caps, nil
}

// SurfaceFormats implements gfx.Presenter.
func (d *Device) SurfaceFormats() ([]gfx.SurfaceFormat, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]gfx.SurfaceFormat(nil), d.formats...), nil
}

// PresentModes implements gfx.Presenter.
func (d *Device) PresentModes() ([]gfx.PresentMode, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]gfx.PresentMode(nil), d.modes...), nil
}

// CreateSwapchain implements gfx.Presenter.
func (d *Device) CreateSwapchain(info gfx.SwapchainInfo) (gfx.Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !info.Old.IsNull() {
		if _, ok := d.live[info.Old]; !ok {
			d.violate("swapchain created from dead swapchain %d", info.Old)
		}
	}
	h, err := d.create("swapchain")
	if err != nil {
		return h, err
	}
	sc := &swapchain{info: info}
	for i := uint32(0); i < info.ImageCount; i++ {
		img := d.next
		d.next++
		d.live[img] = "swapimage"
		d.images[img] = gfx.ImageInfo{Format: info.Format.Format, Extent: info.Extent, Usage: gfx.UsageColorAttachment}
		sc.images = append(sc.images, img)
	}
	d.swapchains[h] = sc
	return h, nil
}

// DestroySwapchain implements gfx.Presenter.
func (d *Device) DestroySwapchain(sc gfx.Handle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.destroy("swapchain", sc) {
		return
	}
	for _, img := range d.swapchains[sc].images {
		for view, of := range d.views {
			if of == img {
				if _, ok := d.live[view]; ok {
					d.violate("swapchain %d destroyed before view %d", sc, view)
				}
			}
		}
		delete(d.live, img)
	}
	delete(d.swapchains, sc)
}

// SwapchainImages implements gfx.Presenter.
func (d *Device) SwapchainImages(sc gfx.Handle) ([]gfx.Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.swapchains[sc]
	if !ok {
		return nil, errors.Errorf("swapchain %d is not live", sc)
	}
	return append([]gfx.Handle(nil), s.images...), nil
}

// AcquireNextImage implements gfx.Presenter.
func (d *Device) AcquireNextImage(sc, signal gfx.Handle) (uint32, gfx.Result) {
	d.mu.Lock()
	defer d.mu.Unlock()
	result := gfx.Success
	if len(d.acquireResults) > 0 {
		result = d.acquireResults[0]
		d.acquireResults = d.acquireResults[1:]
	}
	d.logf("acquire %s", result)

	s, ok := d.swapchains[sc]
	if !ok {
		d.violate("acquire from dead swapchain %d", sc)
		return 0, gfx.Failed
	}
	if result != gfx.Success && result != gfx.Suboptimal {
		return 0, result
	}
	if d.semaphores[signal] {
		d.violate("acquire signals semaphore %d that is already signaled", signal)
	}
	d.semaphores[signal] = true
	idx := s.next
	s.next = (s.next + 1) % uint32(len(s.images))
	return idx, result
}

// Present implements gfx.Presenter.
func (d *Device) Present(info gfx.PresentInfo) gfx.Result {
	d.mu.Lock()
	defer d.mu.Unlock()
	result := gfx.Success
	if len(d.presentResults) > 0 {
		result = d.presentResults[0]
		d.presentResults = d.presentResults[1:]
	}
	if !d.semaphores[info.Wait] {
		d.violate("present waits on unsignaled semaphore %d", info.Wait)
	}
	d.semaphores[info.Wait] = false
	d.presents++
	d.logf("present %d %s", info.ImageIndex, result)
	return result
}

// Destroy implements gfx.Device. Objects still alive are violations.
func (d *Device) Destroy() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for h, kind := range d.live {
		d.violate("%s %d alive at device destruction", kind, h)
	}
	d.destroyed = true
}
