// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package registry

import (
	"github.com/devblok/korugraph/assets"
	"github.com/devblok/korugraph/core"
	"github.com/devblok/korugraph/gfx"
)

// Registry bundles the catalogs a renderer shares across passes.
type Registry struct {
	Layouts  *DescLayouts
	Textures *Cache[*Texture]
	Models   *Cache[*Model]
}

// New creates a registry reading assets from fsys. decode may be nil
// when no models are loaded.
func New(ctx *core.Context, dev gfx.Device, fsys assets.FS, decode MeshDecoder) *Registry {
	logger := ctx.Logger("registry")
	r := &Registry{
		Layouts:  NewDescLayouts(ctx, dev),
		Textures: NewCache[*Texture]("textures", NewTextureLoader(dev, fsys, true), logger),
	}
	if decode != nil {
		r.Models = NewCache[*Model]("models", NewModelLoader(dev, fsys, decode), logger)
	}
	return r
}

// Destroy destroys models, textures and layouts. The device must be idle.
func (r *Registry) Destroy() {
	if r.Models != nil {
		r.Models.DestroyAll()
	}
	r.Textures.DestroyAll()
	r.Layouts.Destroy()
}
