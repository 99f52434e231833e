// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package graph

import (
	"math"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/devblok/korugraph/gfx"
)

// Device is what a graph needs of a gfx.Device.
type Device interface {
	gfx.Allocator
	gfx.Commander
}

// Target is the presentation surface a graph renders for.
type Target interface {
	Extent() gfx.Extent2D
	Format() gfx.SurfaceFormat
	Views() []gfx.Handle
}

// RecordContext is handed to pass callbacks.
type RecordContext struct {
	Pass    string
	Frame   int
	Image   int
	Command gfx.Handle
	Extent  gfx.Extent2D

	graph *Graph
}

// View returns the view of image name that this frame reads or writes.
func (rc *RecordContext) View(name string) gfx.Handle {
	return rc.graph.ImageView(name, rc.Frame, rc.Image)
}

type instance struct {
	image gfx.Image
	view  gfx.ImageView
}

type image struct {
	def       ImageDef
	usage     gfx.ImageUsage
	extent    gfx.Extent2D
	instances []instance
	produced  bool
	consumed  bool
	sampled   bool
}

type pass struct {
	name         string
	record       RecordFunc
	attachments  []*image
	infos        []gfx.AttachmentInfo
	clearValues  []gfx.ClearValue
	renderPass   gfx.Handle
	framebuffers []gfx.Handle
	fbFrames     int
	fbImages     int
	extent       gfx.Extent2D
}

func (p *pass) surfaceDependent() bool {
	for _, img := range p.attachments {
		if img.def.relative() {
			return true
		}
	}
	return false
}

func (p *pass) presents() bool {
	for _, img := range p.attachments {
		if img.def.swapchain {
			return true
		}
	}
	return false
}

// Graph is a built render graph: the ordered passes with their render
// passes and framebuffers, and the physical images behind the
// declaration. It is owned by the renderer; callbacks only read it.
type Graph struct {
	dev    Device
	log    log.FieldLogger
	frames int

	target    Target
	extent    gfx.Extent2D
	format    gfx.Format
	swapViews []gfx.Handle

	images map[string]*image
	passes []*pass
	byName map[string]*pass
}

// Build validates the declaration, orders the passes and allocates the
// images, render passes and framebuffers for framesInFlight frames
// presenting to target. On error nothing stays allocated.
func (d *Def) Build(dev Device, target Target, framesInFlight int, logger log.FieldLogger) (*Graph, error) {
	if framesInFlight < 1 {
		return nil, errors.Errorf("frames in flight must be at least 1, got %d", framesInFlight)
	}
	if err := d.validate(); err != nil {
		return nil, err
	}
	order, err := d.order()
	if err != nil {
		return nil, err
	}

	g := &Graph{
		dev:    dev,
		log:    logger,
		frames: framesInFlight,
		images: make(map[string]*image, len(d.images)),
		byName: make(map[string]*pass, len(d.passes)),
	}
	g.bindTarget(target)
	g.collect(d)

	for _, idx := range order {
		g.passes = append(g.passes, g.newPass(d.passes[idx]))
	}
	for _, img := range g.images {
		if img.consumed && !img.produced {
			g.log.WithField("image", img.def.name).Warn("image is read but no pass renders into it")
		}
	}

	if err := g.allocate(false); err != nil {
		g.Destroy()
		return nil, err
	}
	for _, p := range g.passes {
		if err := g.createRenderPass(p); err != nil {
			g.Destroy()
			return nil, err
		}
	}
	if err := g.createFramebuffers(false); err != nil {
		g.Destroy()
		return nil, err
	}
	g.log.WithFields(log.Fields{
		"passes": len(g.passes),
		"images": len(g.images),
		"extent": g.extent.String(),
	}).Debug("render graph built")
	return g, nil
}

func (g *Graph) bindTarget(target Target) {
	g.target = target
	g.extent = target.Extent()
	g.format = target.Format().Format
	g.swapViews = target.Views()
}

// collect copies the declarations and derives usage from every read and
// write.
func (g *Graph) collect(d *Def) {
	for _, def := range d.images {
		g.images[def.name] = &image{def: *def}
	}
	for _, p := range d.passes {
		for _, out := range p.outputs {
			img := g.images[out.name]
			img.produced = true
			switch out.Type() {
			case gfx.ImageDepth, gfx.ImageStencil, gfx.ImageDepthStencil:
				img.usage |= gfx.UsageDepthStencilAttachment
			default:
				img.usage |= gfx.UsageColorAttachment
			}
		}
		for _, in := range p.inputs {
			img := g.images[in.image.name]
			img.consumed = true
			switch in.kind {
			case Texture:
				img.sampled = true
				img.usage |= gfx.UsageSampled
			case Attachment:
				img.usage |= gfx.UsageInputAttachment
			}
		}
	}
	for _, img := range g.images {
		if img.def.Type() == gfx.ImageStorage {
			img.usage |= gfx.UsageStorage
		}
	}
}

func (g *Graph) newPass(def *PassDef) *pass {
	p := &pass{name: def.name, record: def.record}
	for _, out := range def.outputs {
		img := g.images[out.name]
		info := gfx.AttachmentInfo{
			Format:  img.def.format,
			Load:    def.readsAsAttachment(out),
			Sampled: img.sampled,
		}
		clear := gfx.ClearValue{Color: def.clearColor}
		switch out.Type() {
		case gfx.ImageSwapchain:
			info.Kind = gfx.AttachmentPresent
		case gfx.ImageDepth, gfx.ImageStencil, gfx.ImageDepthStencil:
			info.Kind = gfx.AttachmentDepth
			clear = gfx.ClearValue{Depth: def.clearDepth}
		default:
			info.Kind = gfx.AttachmentColor
		}
		p.attachments = append(p.attachments, img)
		p.infos = append(p.infos, info)
		p.clearValues = append(p.clearValues, clear)
	}
	for _, in := range def.inputs {
		if in.kind != Attachment || def.writes(in.image) {
			continue
		}
		img := g.images[in.image.name]
		p.attachments = append(p.attachments, img)
		p.infos = append(p.infos, gfx.AttachmentInfo{
			Format:  img.def.format,
			Kind:    gfx.AttachmentInput,
			Load:    true,
			Sampled: img.sampled,
		})
		p.clearValues = append(p.clearValues, gfx.ClearValue{})
	}

	p.fbFrames, p.fbImages = 1, 1
	for _, img := range p.attachments {
		if img.def.count == PerFrame {
			p.fbFrames = g.frames
		}
		if img.def.swapchain {
			p.fbImages = len(g.swapViews)
		}
	}
	g.byName[p.name] = p
	return p
}

func (g *Graph) resolveExtent(img *image) gfx.Extent2D {
	switch {
	case img.def.swapchain:
		return g.extent
	case img.def.size == Absolute:
		return gfx.Extent2D{Width: img.def.width, Height: img.def.height}
	default:
		return gfx.Extent2D{
			Width:  scale(g.extent.Width, img.def.ratioW),
			Height: scale(g.extent.Height, img.def.ratioH),
		}
	}
}

func scale(v uint32, ratio float64) uint32 {
	s := math.Round(float64(v) * ratio)
	if s < 1 {
		return 1
	}
	return uint32(s)
}

// allocate creates the physical instances of every image, or of the
// surface relative ones only.
func (g *Graph) allocate(relativeOnly bool) error {
	for _, img := range g.images {
		if relativeOnly && !img.def.relative() {
			continue
		}
		img.extent = g.resolveExtent(img)
		if img.def.swapchain {
			img.def.format = g.format
			continue
		}
		count := 1
		if img.def.count == PerFrame {
			count = g.frames
		}
		img.instances = make([]instance, count)
		for i := range img.instances {
			inst := &img.instances[i]
			if err := inst.image.Init(g.dev, gfx.ImageInfo{
				Format: img.def.format,
				Extent: img.extent,
				Usage:  img.usage,
			}); err != nil {
				return errors.Wrapf(err, "graph image %q", img.def.name)
			}
			if err := inst.view.Init(g.dev, inst.image.Get(), img.def.format, gfx.AspectOf(img.def.Type())); err != nil {
				return errors.Wrapf(err, "graph image %q", img.def.name)
			}
		}
	}
	return nil
}

func (g *Graph) release(relativeOnly bool) {
	for _, img := range g.images {
		if relativeOnly && !img.def.relative() {
			continue
		}
		for i := range img.instances {
			img.instances[i].view.Destroy()
			img.instances[i].image.Destroy()
		}
		img.instances = nil
	}
}

func (g *Graph) createRenderPass(p *pass) error {
	for i, img := range p.attachments {
		p.infos[i].Format = img.def.format
	}
	rp, err := g.dev.CreateRenderPass(gfx.RenderPassInfo{Name: p.name, Attachments: p.infos})
	if err != nil {
		return errors.Wrapf(gfx.ErrAllocation, "render pass %q: %s", p.name, err)
	}
	p.renderPass = rp
	return nil
}

func (g *Graph) createFramebuffers(surfaceOnly bool) error {
	for _, p := range g.passes {
		if surfaceOnly && !p.surfaceDependent() {
			continue
		}
		p.extent = g.passExtent(p)
		if p.presents() {
			p.fbImages = len(g.swapViews)
		}
		p.framebuffers = make([]gfx.Handle, p.fbFrames*p.fbImages)
		for frame := 0; frame < p.fbFrames; frame++ {
			for idx := 0; idx < p.fbImages; idx++ {
				views := make([]gfx.Handle, len(p.attachments))
				for a, img := range p.attachments {
					views[a] = g.view(img, frame, idx)
				}
				fb, err := g.dev.CreateFramebuffer(gfx.FramebufferInfo{
					RenderPass:  p.renderPass,
					Attachments: views,
					Extent:      p.extent,
				})
				if err != nil {
					return errors.Wrapf(gfx.ErrAllocation, "framebuffer of %q: %s", p.name, err)
				}
				p.framebuffers[frame*p.fbImages+idx] = fb
			}
		}
	}
	return nil
}

func (g *Graph) destroyFramebuffers(surfaceOnly bool) {
	for _, p := range g.passes {
		if surfaceOnly && !p.surfaceDependent() {
			continue
		}
		for _, fb := range p.framebuffers {
			if !fb.IsNull() {
				g.dev.DestroyFramebuffer(fb)
			}
		}
		p.framebuffers = nil
	}
}

// passExtent is the largest extent every attachment covers. Attachments
// of different sizes are legal but suspicious.
func (g *Graph) passExtent(p *pass) gfx.Extent2D {
	extent := p.attachments[0].extent
	mismatch := false
	for _, img := range p.attachments[1:] {
		if img.extent != extent {
			mismatch = true
		}
		if img.extent.Width < extent.Width {
			extent.Width = img.extent.Width
		}
		if img.extent.Height < extent.Height {
			extent.Height = img.extent.Height
		}
	}
	if mismatch {
		g.log.WithFields(log.Fields{"pass": p.name, "extent": extent.String()}).Warn("pass attachments differ in size")
	}
	return extent
}

func (g *Graph) view(img *image, frame, index int) gfx.Handle {
	if img.def.swapchain {
		if len(g.swapViews) == 0 {
			return gfx.NullHandle
		}
		return g.swapViews[index%len(g.swapViews)]
	}
	if len(img.instances) == 0 {
		return gfx.NullHandle
	}
	return img.instances[frame%len(img.instances)].view.Get()
}

// Resize follows a rebuilt surface. Surface relative images and the
// framebuffers over them are recreated; absolute images survive, and
// render passes only change when the surface format did. The device
// must be idle.
func (g *Graph) Resize(target Target) error {
	oldFormat := g.format
	g.destroyFramebuffers(true)
	g.release(true)
	g.bindTarget(target)

	if err := g.allocate(true); err != nil {
		return err
	}
	if g.format != oldFormat {
		for _, p := range g.passes {
			if !p.presents() {
				continue
			}
			g.dev.DestroyRenderPass(p.renderPass)
			p.renderPass = gfx.NullHandle
			if err := g.createRenderPass(p); err != nil {
				return err
			}
		}
	}
	if err := g.createFramebuffers(true); err != nil {
		return err
	}
	g.log.WithField("extent", g.extent.String()).Debug("render graph resized")
	return nil
}

// Record records every pass in order into cmd for frame slot frame and
// presentable image index.
func (g *Graph) Record(frame, index int, cmd gfx.Handle) {
	for _, p := range g.passes {
		g.recordPass(p, frame, index, cmd)
	}
}

// RecordPass records the single pass called name.
func (g *Graph) RecordPass(name string, frame, index int, cmd gfx.Handle) error {
	p, ok := g.byName[name]
	if !ok {
		return errors.Errorf("no pass %q in the graph", name)
	}
	g.recordPass(p, frame, index, cmd)
	return nil
}

func (g *Graph) recordPass(p *pass, frame, index int, cmd gfx.Handle) {
	g.dev.CmdBeginRenderPass(cmd, gfx.RenderPassBegin{
		RenderPass:  p.renderPass,
		Framebuffer: p.framebuffers[(frame%p.fbFrames)*p.fbImages+index%p.fbImages],
		Extent:      p.extent,
		ClearValues: p.clearValues,
	})
	if p.record != nil {
		p.record(&RecordContext{
			Pass:    p.name,
			Frame:   frame,
			Image:   index,
			Command: cmd,
			Extent:  p.extent,
			graph:   g,
		})
	}
	g.dev.CmdEndRenderPass(cmd)
}

// Order returns the pass names in recording order.
func (g *Graph) Order() []string {
	names := make([]string, len(g.passes))
	for i, p := range g.passes {
		names[i] = p.name
	}
	return names
}

// Frames returns the number of frames in flight the graph was built for.
func (g *Graph) Frames() int {
	return g.frames
}

// Extent returns the surface extent the graph is sized for.
func (g *Graph) Extent() gfx.Extent2D {
	return g.extent
}

// ImageView returns the view of image name for a frame slot and
// presentable image index, or the null handle for unknown names.
func (g *Graph) ImageView(name string, frame, index int) gfx.Handle {
	img, ok := g.images[name]
	if !ok {
		return gfx.NullHandle
	}
	return g.view(img, frame, index)
}

// ImageInstances returns how many physical images back name. The
// swapchain image reports the surface image count.
func (g *Graph) ImageInstances(name string) int {
	img, ok := g.images[name]
	switch {
	case !ok:
		return 0
	case img.def.swapchain:
		return len(g.swapViews)
	default:
		return len(img.instances)
	}
}

// ImageExtent returns the resolved extent of image name.
func (g *Graph) ImageExtent(name string) gfx.Extent2D {
	if img, ok := g.images[name]; ok {
		return img.extent
	}
	return gfx.Extent2D{}
}

// ImageUsage returns the usage derived for image name.
func (g *Graph) ImageUsage(name string) gfx.ImageUsage {
	if img, ok := g.images[name]; ok {
		return img.usage
	}
	return 0
}

// ImageType returns the type of image name.
func (g *Graph) ImageType(name string) gfx.ImageType {
	if img, ok := g.images[name]; ok {
		return img.def.Type()
	}
	return gfx.ImageColor
}

// RenderPass returns the render pass object of pass name.
func (g *Graph) RenderPass(name string) gfx.Handle {
	if p, ok := g.byName[name]; ok {
		return p.renderPass
	}
	return gfx.NullHandle
}

// Framebuffers returns the framebuffers of pass name, indexed by
// frame slot times presentable images plus image index.
func (g *Graph) Framebuffers(name string) []gfx.Handle {
	if p, ok := g.byName[name]; ok {
		return p.framebuffers
	}
	return nil
}

// Destroy destroys framebuffers, render passes and images. The device
// must be idle.
func (g *Graph) Destroy() {
	g.destroyFramebuffers(false)
	for _, p := range g.passes {
		if !p.renderPass.IsNull() {
			g.dev.DestroyRenderPass(p.renderPass)
			p.renderPass = gfx.NullHandle
		}
	}
	g.release(false)
}
