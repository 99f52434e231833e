// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package renderer drives frames: it waits for a frame slot, acquires a
// presentable image, records the render graph, submits and presents, and
// rebuilds the surface and the graph when the window changes.
package renderer

import (
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/devblok/korugraph/core"
	"github.com/devblok/korugraph/framesync"
	"github.com/devblok/korugraph/gfx"
	"github.com/devblok/korugraph/graph"
	"github.com/devblok/korugraph/model"
	"github.com/devblok/korugraph/registry"
	"github.com/devblok/korugraph/surface"
)

// FrameLayout is the descriptor set layout of the per-frame uniform block.
const FrameLayout = "frame"

// Stage is where a frame is in its sequence.
type Stage int

// Stages
const (
	Idle Stage = iota
	WaitFence
	AcquireImage
	Record
	Submit
	Present
)

func (s Stage) String() string {
	return [...]string{"idle", "wait fence", "acquire image", "record", "submit", "present"}[s]
}

// Stats counts what happened to frames so far.
type Stats struct {
	Frames    uint64
	Submitted uint64
	Presented uint64
	Skipped   uint64
	Rebuilds  uint64
	Deferred  uint64
}

// Renderer owns the surface, the frame slots and the render graph built
// from a declaration. It is driven from one goroutine; NotifyResize may
// be called from any.
type Renderer struct {
	ctx *core.Context
	log log.FieldLogger
	dev gfx.Device

	surface  *surface.Manager
	sync     *framesync.Set
	def      *graph.Def
	graph    *graph.Graph
	registry *registry.Registry

	commandPool gfx.Handle
	commands    []gfx.Handle
	uniforms    []gfx.Buffer
	descPool    gfx.DescriptorPool
	frameSets   []gfx.Handle
	camera      model.Camera

	mutex     sync.Mutex
	requested gfx.Extent2D
	resized   bool

	stage Stage
	stats Stats
}

// New creates a renderer presenting def for a window of width by height.
// Allocation failures abort the process; an invalid declaration is
// returned as an error. A degenerate initial size defers the first build
// to a later DrawFrame.
func New(ctx *core.Context, dev gfx.Device, reg *registry.Registry, def *graph.Def, width, height uint32) (*Renderer, error) {
	frames := ctx.Config.Renderer.FramesInFlight
	r := &Renderer{
		ctx:       ctx,
		log:       ctx.Logger("renderer"),
		dev:       dev,
		surface:   surface.New(dev, ctx.Logger("surface")),
		def:       def,
		registry:  reg,
		camera:    model.DefaultCamera(),
		requested: gfx.Extent2D{Width: width, Height: height},
	}

	var err error
	r.sync, err = framesync.New(dev, frames)
	ctx.Must(err, "frame synchronization")

	r.commandPool, err = dev.CreateCommandPool()
	ctx.Must(errors.Wrap(err, "command pool"), "frame commands")
	r.commands, err = dev.AllocateCommandBuffers(r.commandPool, frames)
	ctx.Must(errors.Wrap(err, "command buffers"), "frame commands")

	r.createUniforms(frames)

	if _, err := r.rebuild(); err != nil {
		r.Destroy()
		return nil, err
	}
	r.log.WithFields(log.Fields{
		"frames": frames,
		"extent": r.requested.String(),
	}).Info("renderer created")
	return r, nil
}

func (r *Renderer) createUniforms(frames int) {
	if !r.registry.Layouts.Has(FrameLayout) {
		r.registry.Layouts.Add(registry.NewLayout(FrameLayout).AddUniformBuffer(gfx.StageVertex, 1))
	}
	layout := r.registry.Layouts.Get(FrameLayout)

	r.uniforms = make([]gfx.Buffer, frames)
	for i := range r.uniforms {
		r.ctx.Must(r.uniforms[i].Init(r.dev, gfx.BufferInfo{
			Size:        model.FrameUniformSize,
			Usage:       gfx.BufferUniform,
			HostVisible: true,
		}), "frame uniforms")
	}

	r.ctx.Must(r.descPool.Init(r.dev, uint32(frames), layout.PoolSizes(uint32(frames))), "frame descriptors")
	layouts := make([]gfx.Handle, frames)
	for i := range layouts {
		layouts[i] = layout.Get()
	}
	sets, err := r.descPool.Alloc(layouts...)
	r.ctx.Must(err, "frame descriptors")
	for i, set := range sets {
		r.dev.WriteBufferDescriptor(set, 0, r.uniforms[i].Get(), r.uniforms[i].Size())
	}
	r.frameSets = sets
}

// NotifyResize records the size the window now has. The surface is
// rebuilt at the start of the next frame.
func (r *Renderer) NotifyResize(width, height uint32) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.requested = gfx.Extent2D{Width: width, Height: height}
	r.resized = true
}

func (r *Renderer) takeResize() (gfx.Extent2D, bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	resized := r.resized
	r.resized = false
	return r.requested, resized
}

// SetCamera sets the camera the frame uniforms are computed from.
func (r *Renderer) SetCamera(camera model.Camera) {
	r.camera = camera
}

// DrawFrame runs one frame. A frame that cannot be presented, because
// the surface is out of date, suboptimal or too small, returns nil
// without advancing the frame index after rebuilding what it can.
func (r *Renderer) DrawFrame() error {
	r.stats.Frames++
	defer func() { r.stage = Idle }()

	if _, resized := r.takeResize(); resized && r.surface.State() == surface.Ready {
		r.surface.Invalidate()
	}
	if r.surface.State() != surface.Ready {
		built, err := r.rebuild()
		if err != nil {
			return err
		}
		if !built {
			r.skip("surface deferred")
			return nil
		}
	}

	r.stage = WaitFence
	if err := r.sync.WaitCurrentFence(); err != nil {
		return err
	}

	r.stage = AcquireImage
	index, result := r.surface.Acquire(r.sync.ImageAvailable())
	switch result {
	case gfx.Success:
	case gfx.Suboptimal, gfx.OutOfDate:
		r.surface.Invalidate()
		r.skip("acquire " + result.String())
		// a degenerate extent leaves the surface invalidated until a
		// later frame
		_, err := r.rebuild()
		return err
	case gfx.NotReady, gfx.Timeout:
		r.skip("acquire " + result.String())
		return nil
	default:
		return errors.Errorf("acquire next image: %s", result)
	}
	if err := r.sync.ResetCurrentFence(); err != nil {
		return err
	}

	frame := r.sync.Index()
	r.updateUniforms(frame)

	r.stage = Record
	cmd := r.commands[frame]
	if err := r.dev.BeginCommandBuffer(cmd); err != nil {
		return errors.Wrap(err, "begin frame commands")
	}
	r.graph.Record(frame, int(index), cmd)
	if err := r.dev.EndCommandBuffer(cmd); err != nil {
		return errors.Wrap(err, "end frame commands")
	}

	r.stage = Submit
	if err := r.dev.Submit(gfx.SubmitInfo{
		CommandBuffers: []gfx.Handle{cmd},
		Wait:           r.sync.ImageAvailable(),
		Signal:         r.sync.RenderFinished(),
		Fence:          r.sync.InFlightFence(),
	}); err != nil {
		return errors.Wrap(err, "submit frame")
	}
	r.stats.Submitted++

	r.stage = Present
	switch result := r.surface.Present(index, r.sync.RenderFinished()); result {
	case gfx.Success:
		r.stats.Presented++
	case gfx.Suboptimal, gfx.OutOfDate:
		r.stats.Presented++
		r.log.WithField("result", result.String()).Debug("surface invalidated by present")
	default:
		return errors.Errorf("present: %s", result)
	}

	r.sync.Advance()
	return nil
}

func (r *Renderer) skip(reason string) {
	r.stats.Skipped++
	r.log.WithFields(log.Fields{
		"reason": reason,
		"stage":  r.stage.String(),
	}).Debug("frame skipped")
}

// updateUniforms writes the frame uniform block of slot frame, whose
// fence was just observed signaled.
func (r *Renderer) updateUniforms(frame int) {
	extent := r.surface.Extent()
	uniform := r.camera.Uniform(extent.Width, extent.Height)
	data := uniform.Bytes()
	n, err := r.uniforms[frame].SetData(data)
	if err != nil {
		r.log.WithError(err).Warn("frame uniforms not written")
		return
	}
	if n < len(data) {
		r.log.WithFields(log.Fields{
			"written": n,
			"size":    len(data),
		}).Warn("frame uniforms truncated")
	}
}

// rebuild waits for the device to idle, then builds the surface for the
// requested extent and builds or resizes the graph to match. It reports
// false when the extent is degenerate and the build was deferred.
func (r *Renderer) rebuild() (bool, error) {
	r.mutex.Lock()
	requested := r.requested
	r.mutex.Unlock()

	if err := r.dev.WaitIdle(); err != nil {
		return false, errors.Wrap(err, "wait idle before rebuild")
	}
	if err := r.surface.Build(requested); err != nil {
		if errors.Cause(err) == surface.ErrDegenerateExtent {
			r.stats.Deferred++
			r.log.WithField("extent", requested.String()).Debug("surface build deferred")
			return false, nil
		}
		r.ctx.Fatal(err, "surface")
		return false, err
	}

	if r.graph == nil {
		g, err := r.def.Build(r.dev, r.surface, r.sync.Depth(), r.ctx.Logger("graph"))
		if err != nil {
			if errors.Cause(err) == gfx.ErrAllocation {
				r.ctx.Fatal(err, "render graph")
			}
			return false, errors.Wrap(err, "render graph")
		}
		r.graph = g
	} else if err := r.graph.Resize(r.surface); err != nil {
		r.ctx.Fatal(err, "render graph")
		return false, err
	}
	r.ctx.Must(r.sync.RecreateImageSemaphores(), "frame synchronization")

	r.stats.Rebuilds++
	r.log.WithFields(log.Fields{
		"extent": r.surface.Extent().String(),
		"images": r.surface.ImageCount(),
	}).Info("surface rebuilt")
	return true, nil
}

// Stage returns the stage the current frame is in. It is Idle between
// frames.
func (r *Renderer) Stage() Stage {
	return r.stage
}

// Stats returns the frame counters.
func (r *Renderer) Stats() Stats {
	return r.stats
}

// FrameIndex returns the current frame slot.
func (r *Renderer) FrameIndex() int {
	return r.sync.Index()
}

// Surface returns the surface manager.
func (r *Renderer) Surface() *surface.Manager {
	return r.surface
}

// Graph returns the built graph, or nil before the first build.
func (r *Renderer) Graph() *graph.Graph {
	return r.graph
}

// FrameSet returns the descriptor set holding the uniforms of slot frame.
func (r *Renderer) FrameSet(frame int) gfx.Handle {
	return r.frameSets[frame%len(r.frameSets)]
}

// Uniforms returns the uniform buffer of slot frame.
func (r *Renderer) Uniforms(frame int) *gfx.Buffer {
	return &r.uniforms[frame%len(r.uniforms)]
}

// Destroy waits for the device to idle and destroys everything the
// renderer owns, the registry included.
func (r *Renderer) Destroy() {
	if err := r.dev.WaitIdle(); err != nil {
		r.log.WithError(err).Warn("wait idle before destroy")
	}
	if r.graph != nil {
		r.graph.Destroy()
		r.graph = nil
	}
	for i := range r.uniforms {
		r.uniforms[i].Destroy()
	}
	r.descPool.Destroy()
	r.frameSets = nil
	r.registry.Destroy()
	if !r.commandPool.IsNull() {
		r.dev.DestroyCommandPool(r.commandPool)
		r.commandPool = gfx.NullHandle
		r.commands = nil
	}
	r.sync.Destroy()
	r.surface.Destroy()
	r.log.Info("renderer destroyed")
}
