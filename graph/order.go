// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package graph

import (
	"math"
	"strings"

	"github.com/pkg/errors"

	"github.com/devblok/korugraph/gfx"
)

// package errors
var (
	ErrDuplicateName  = errors.New("duplicate name")
	ErrUnknownImage   = errors.New("image not declared in this graph")
	ErrInvalidImage   = errors.New("invalid image declaration")
	ErrInvalidPass    = errors.New("invalid pass declaration")
	ErrSelfDependency = errors.New("pass samples an image it renders into")
	ErrCycle          = errors.New("passes form a cycle")
)

// edge is a producer to consumer dependency between pass indices.
type edge struct {
	from, to int
}

func (d *Def) validate() error {
	images := make(map[*ImageDef]bool, len(d.images))
	names := make(map[string]bool, len(d.images))
	swapchains := 0
	for _, img := range d.images {
		if names[img.name] {
			return errors.Wrapf(ErrDuplicateName, "image %q", img.name)
		}
		names[img.name] = true
		images[img] = true

		if img.swapchain {
			swapchains++
			continue
		}
		if img.format == gfx.FormatUndefined {
			return errors.Wrapf(ErrInvalidImage, "image %q has no format", img.name)
		}
		switch img.size {
		case Absolute:
			if img.width == 0 || img.height == 0 {
				return errors.Wrapf(ErrInvalidImage, "image %q has a zero size", img.name)
			}
		case RelativeToSurface:
			if !(img.ratioW > 0) || !(img.ratioH > 0) || math.IsInf(img.ratioW, 0) || math.IsInf(img.ratioH, 0) {
				return errors.Wrapf(ErrInvalidImage, "image %q has ratio %gx%g", img.name, img.ratioW, img.ratioH)
			}
		}
	}
	if swapchains > 1 {
		return errors.Wrap(ErrInvalidImage, "more than one swapchain image")
	}

	passNames := make(map[string]bool, len(d.passes))
	for _, p := range d.passes {
		if passNames[p.name] {
			return errors.Wrapf(ErrDuplicateName, "pass %q", p.name)
		}
		passNames[p.name] = true

		if len(p.outputs) == 0 {
			return errors.Wrapf(ErrInvalidPass, "pass %q has no outputs", p.name)
		}
		depth := 0
		for _, out := range p.outputs {
			if !images[out] {
				return errors.Wrapf(ErrUnknownImage, "pass %q output %q", p.name, out.name)
			}
			switch out.Type() {
			case gfx.ImageDepth, gfx.ImageStencil, gfx.ImageDepthStencil:
				depth++
			case gfx.ImageStorage:
				return errors.Wrapf(ErrInvalidPass, "pass %q renders into storage image %q", p.name, out.name)
			}
		}
		if depth > 1 {
			return errors.Wrapf(ErrInvalidPass, "pass %q has %d depth outputs", p.name, depth)
		}
		for _, in := range p.inputs {
			if !images[in.image] {
				return errors.Wrapf(ErrUnknownImage, "pass %q input %q", p.name, in.image.name)
			}
			if in.kind == Texture && p.writes(in.image) {
				return errors.Wrapf(ErrSelfDependency, "pass %q image %q", p.name, in.image.name)
			}
			if in.image.swapchain && in.kind == Texture {
				return errors.Wrapf(ErrInvalidPass, "pass %q samples the swapchain image", p.name)
			}
		}
	}
	return nil
}

// edges derives the dependencies: every consumer of an image depends on
// each of its producers, and producers of the same image are ordered as
// declared.
func (d *Def) edges() []edge {
	index := make(map[*PassDef]int, len(d.passes))
	for i, p := range d.passes {
		index[p] = i
	}
	producers := make(map[*ImageDef][]int)
	for i, p := range d.passes {
		for _, out := range p.outputs {
			if last := producers[out]; len(last) == 0 || last[len(last)-1] != i {
				producers[out] = append(producers[out], i)
			}
		}
	}

	seen := make(map[edge]bool)
	var edges []edge
	add := func(e edge) {
		if e.from != e.to && !seen[e] {
			seen[e] = true
			edges = append(edges, e)
		}
	}
	for _, img := range d.images {
		prods := producers[img]
		for k := 1; k < len(prods); k++ {
			add(edge{from: prods[k-1], to: prods[k]})
		}
	}
	for i, p := range d.passes {
		for _, in := range p.inputs {
			for _, prod := range producers[in.image] {
				if prod == i {
					continue
				}
				// an in-place writer reads what earlier producers left
				if p.readsAsAttachment(in.image) && p.writes(in.image) && prod > i {
					continue
				}
				add(edge{from: prod, to: i})
			}
		}
	}
	return edges
}

// order sorts the passes topologically. Among passes whose dependencies
// are met, the one declared first goes first.
func (d *Def) order() ([]int, error) {
	n := len(d.passes)
	indegree := make([]int, n)
	successors := make([][]int, n)
	for _, e := range d.edges() {
		successors[e.from] = append(successors[e.from], e.to)
		indegree[e.to]++
	}

	done := make([]bool, n)
	order := make([]int, 0, n)
	for len(order) < n {
		next := -1
		for i := 0; i < n; i++ {
			if !done[i] && indegree[i] == 0 {
				next = i
				break
			}
		}
		if next < 0 {
			var stuck []string
			for i := 0; i < n; i++ {
				if !done[i] {
					stuck = append(stuck, d.passes[i].name)
				}
			}
			return nil, errors.Wrap(ErrCycle, strings.Join(stuck, ", "))
		}
		done[next] = true
		order = append(order, next)
		for _, s := range successors[next] {
			indegree[s]--
		}
	}
	return order, nil
}

// Order validates the declaration and returns the pass names in the
// order they would be recorded.
func (d *Def) Order() ([]string, error) {
	if err := d.validate(); err != nil {
		return nil, err
	}
	order, err := d.order()
	if err != nil {
		return nil, err
	}
	names := make([]string, len(order))
	for i, idx := range order {
		names[i] = d.passes[idx].name
	}
	return names, nil
}
