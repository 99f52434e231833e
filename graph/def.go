// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package graph turns a declaration of passes and the images they read
// and write into an ordered, allocated plan that records a frame.
package graph

import "github.com/devblok/korugraph/gfx"

// SizePolicy tells how an image's extent is resolved.
type SizePolicy int

// Size policies
const (
	Absolute SizePolicy = iota
	RelativeToSurface
)

// Count tells how many physical instances an image gets.
type Count int

// Counts
const (
	// Single images are shared by every frame in flight.
	Single Count = iota

	// PerFrame images get one instance per frame in flight.
	PerFrame
)

// ImageDef declares a graph image.
type ImageDef struct {
	name      string
	format    gfx.Format
	imageType gfx.ImageType
	typeSet   bool
	size      SizePolicy
	width     uint32
	height    uint32
	ratioW    float64
	ratioH    float64
	count     Count
	swapchain bool
}

// Name returns the image name.
func (i *ImageDef) Name() string {
	return i.name
}

// SetFormat sets the pixel format. The image type follows the format
// unless set explicitly.
func (i *ImageDef) SetFormat(format gfx.Format) *ImageDef {
	i.format = format
	return i
}

// SetType overrides the type deduced from the format.
func (i *ImageDef) SetType(t gfx.ImageType) *ImageDef {
	i.imageType = t
	i.typeSet = true
	return i
}

// SetSize gives the image an absolute extent.
func (i *ImageDef) SetSize(width, height uint32) *ImageDef {
	i.size = Absolute
	i.width = width
	i.height = height
	return i
}

// SetSizeRelative sizes the image as a fraction of the surface extent,
// per axis.
func (i *ImageDef) SetSizeRelative(ratioW, ratioH float64) *ImageDef {
	i.size = RelativeToSurface
	i.ratioW = ratioW
	i.ratioH = ratioH
	return i
}

// SetCount sets how many instances the image gets.
func (i *ImageDef) SetCount(count Count) *ImageDef {
	i.count = count
	return i
}

// Type returns the declared or deduced image type.
func (i *ImageDef) Type() gfx.ImageType {
	switch {
	case i.swapchain:
		return gfx.ImageSwapchain
	case i.typeSet:
		return i.imageType
	default:
		return gfx.ClassifyFormat(i.format)
	}
}

func (i *ImageDef) relative() bool {
	return i.swapchain || i.size == RelativeToSurface
}

// InputKind is how a pass reads an image.
type InputKind int

// Input kinds
const (
	// Texture inputs are sampled from shaders.
	Texture InputKind = iota

	// Attachment inputs are read in place as input attachments.
	Attachment
)

type input struct {
	image *ImageDef
	kind  InputKind
}

// RecordFunc records the commands of a pass between the begin and the
// end of its render pass.
type RecordFunc func(rc *RecordContext)

// PassDef declares a graph pass.
type PassDef struct {
	name       string
	inputs     []input
	outputs    []*ImageDef
	record     RecordFunc
	clearColor [4]float32
	clearDepth float32
}

// Name returns the pass name.
func (p *PassDef) Name() string {
	return p.name
}

// AddInputTexture makes the pass sample img.
func (p *PassDef) AddInputTexture(img *ImageDef) *PassDef {
	p.inputs = append(p.inputs, input{image: img, kind: Texture})
	return p
}

// AddInputAttachment makes the pass read img as an input attachment.
func (p *PassDef) AddInputAttachment(img *ImageDef) *PassDef {
	p.inputs = append(p.inputs, input{image: img, kind: Attachment})
	return p
}

// AddOutput makes the pass render into img.
func (p *PassDef) AddOutput(img *ImageDef) *PassDef {
	p.outputs = append(p.outputs, img)
	return p
}

// AddInOutAttachment makes the pass read and keep writing img in place.
func (p *PassDef) AddInOutAttachment(img *ImageDef) *PassDef {
	return p.AddInputAttachment(img).AddOutput(img)
}

// SetRecord sets the pass callback.
func (p *PassDef) SetRecord(fn RecordFunc) *PassDef {
	p.record = fn
	return p
}

// SetClearColor sets the color color outputs are cleared to.
func (p *PassDef) SetClearColor(rgba [4]float32) *PassDef {
	p.clearColor = rgba
	return p
}

func (p *PassDef) readsAsAttachment(img *ImageDef) bool {
	for _, in := range p.inputs {
		if in.image == img && in.kind == Attachment {
			return true
		}
	}
	return false
}

func (p *PassDef) writes(img *ImageDef) bool {
	for _, out := range p.outputs {
		if out == img {
			return true
		}
	}
	return false
}

// Def is a render graph declaration. It is turned into a Graph by Build.
type Def struct {
	images []*ImageDef
	passes []*PassDef
}

// NewDef creates an empty declaration.
func NewDef() *Def {
	return &Def{}
}

// NewImage declares an image. Names must be unique; Build reports
// duplicates.
func (d *Def) NewImage(name string) *ImageDef {
	img := &ImageDef{
		name:   name,
		size:   RelativeToSurface,
		ratioW: 1,
		ratioH: 1,
	}
	d.images = append(d.images, img)
	return img
}

// SwapchainImage declares the presentable image. Its format and extent
// come from the surface.
func (d *Def) SwapchainImage(name string) *ImageDef {
	img := d.NewImage(name)
	img.swapchain = true
	return img
}

// Image returns the image called name, or nil.
func (d *Def) Image(name string) *ImageDef {
	for _, img := range d.images {
		if img.name == name {
			return img
		}
	}
	return nil
}

// NewPass declares a pass. Names must be unique; Build reports
// duplicates.
func (d *Def) NewPass(name string) *PassDef {
	p := &PassDef{
		name:       name,
		clearColor: [4]float32{0, 0, 0, 1},
		clearDepth: 1,
	}
	d.passes = append(d.passes, p)
	return p
}
