// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package registry

import (
	"github.com/pkg/errors"

	"github.com/devblok/korugraph/assets"
	"github.com/devblok/korugraph/gfx"
	"github.com/devblok/korugraph/model"
)

// Texture is a sampled image uploaded from an asset.
type Texture struct {
	image gfx.Image
	view  gfx.ImageView
}

// View returns the image view to bind.
func (t *Texture) View() gfx.Handle {
	return t.view.Get()
}

// Image returns the image handle.
func (t *Texture) Image() gfx.Handle {
	return t.image.Get()
}

// Extent returns the texture size.
func (t *Texture) Extent() gfx.Extent2D {
	return t.image.Extent()
}

// Format returns the texture format.
func (t *Texture) Format() gfx.Format {
	return t.image.Format()
}

// Destroy destroys the view and the image.
func (t *Texture) Destroy() {
	t.view.Destroy()
	t.image.Destroy()
}

// TextureLoader decodes images from the asset root and uploads them.
type TextureLoader struct {
	dev  gfx.Allocator
	fsys assets.FS
	srgb bool
}

// NewTextureLoader creates a loader. Color textures are sRGB encoded;
// data textures such as normal maps are not.
func NewTextureLoader(dev gfx.Allocator, fsys assets.FS, srgb bool) *TextureLoader {
	return &TextureLoader{dev: dev, fsys: fsys, srgb: srgb}
}

// Load implements Loader.
func (l *TextureLoader) Load(respath string) (*Texture, error) {
	px, err := assets.LoadImage(l.fsys, respath)
	if err != nil {
		return nil, err
	}

	format := gfx.FormatR8g8b8a8Unorm
	if l.srgb {
		format = gfx.FormatR8g8b8a8Srgb
	}
	extent := gfx.Extent2D{Width: px.Width, Height: px.Height}

	t := &Texture{}
	if err := t.image.Init(l.dev, gfx.ImageInfo{
		Format: format,
		Extent: extent,
		Usage:  gfx.UsageSampled | gfx.UsageTransferDst,
	}); err != nil {
		return nil, err
	}
	if err := l.dev.UploadImage(t.image.Get(), extent, px.Data); err != nil {
		t.Destroy()
		return nil, errors.Wrap(err, "upload texture")
	}
	if err := t.view.Init(l.dev, t.image.Get(), format, gfx.AspectColor); err != nil {
		t.Destroy()
		return nil, err
	}
	return t, nil
}

// Model is a mesh in vertex and index buffers.
type Model struct {
	vertices   gfx.Buffer
	indices    gfx.Buffer
	indexCount uint32
}

// VertexBuffer returns the vertex buffer handle.
func (m *Model) VertexBuffer() gfx.Handle {
	return m.vertices.Get()
}

// IndexBuffer returns the index buffer handle.
func (m *Model) IndexBuffer() gfx.Handle {
	return m.indices.Get()
}

// IndexCount returns the number of indices to draw.
func (m *Model) IndexCount() uint32 {
	return m.indexCount
}

// Destroy destroys both buffers.
func (m *Model) Destroy() {
	m.indices.Destroy()
	m.vertices.Destroy()
}

// MeshDecoder turns the bytes of a model asset into a mesh.
type MeshDecoder func(data []byte) (*model.Mesh, error)

// ModelLoader reads meshes from the asset root into buffers.
type ModelLoader struct {
	dev    gfx.Allocator
	fsys   assets.FS
	decode MeshDecoder
}

// NewModelLoader creates a loader decoding with decode.
func NewModelLoader(dev gfx.Allocator, fsys assets.FS, decode MeshDecoder) *ModelLoader {
	return &ModelLoader{dev: dev, fsys: fsys, decode: decode}
}

// Load implements Loader.
func (l *ModelLoader) Load(respath string) (*Model, error) {
	data, err := l.fsys.ReadFile(respath)
	if err != nil {
		return nil, err
	}
	mesh, err := l.decode(data)
	if err != nil {
		return nil, errors.Wrapf(err, "decode %s", respath)
	}
	if len(mesh.Vertices) == 0 || len(mesh.Indices) == 0 {
		return nil, errors.Errorf("%s holds an empty mesh", respath)
	}

	m := &Model{indexCount: uint32(len(mesh.Indices))}
	if err := fill(l.dev, &m.vertices, gfx.BufferVertex, mesh.VertexBytes()); err != nil {
		return nil, err
	}
	if err := fill(l.dev, &m.indices, gfx.BufferIndex, mesh.IndexBytes()); err != nil {
		m.Destroy()
		return nil, err
	}
	return m, nil
}

func fill(dev gfx.Allocator, buf *gfx.Buffer, usage gfx.BufferUsage, data []byte) error {
	if err := buf.Init(dev, gfx.BufferInfo{Size: uint64(len(data)), Usage: usage, HostVisible: true}); err != nil {
		return err
	}
	if _, err := buf.SetData(data); err != nil {
		buf.Destroy()
		return err
	}
	return nil
}
