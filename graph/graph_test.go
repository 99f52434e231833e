// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package graph_test

import (
	"fmt"
	"math/rand"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/devblok/korugraph/gfx"
	"github.com/devblok/korugraph/gfx/gfxtest"
	"github.com/devblok/korugraph/graph"
	"github.com/devblok/korugraph/surface"
)

type fixture struct {
	dev     *gfxtest.Device
	surface *surface.Manager
	logger  *log.Logger
	hook    *test.Hook
}

func newFixture(c *qt.C, width, height uint32) *fixture {
	logger, hook := test.NewNullLogger()
	dev := gfxtest.New()
	m := surface.New(dev, logger)
	c.Assert(m.Build(gfx.Extent2D{Width: width, Height: height}), qt.IsNil)
	return &fixture{dev: dev, surface: m, logger: logger, hook: hook}
}

func (f *fixture) resize(c *qt.C, width, height uint32) {
	c.Assert(f.surface.Invalidate(), qt.IsNil)
	c.Assert(f.surface.Build(gfx.Extent2D{Width: width, Height: height}), qt.IsNil)
}

func (f *fixture) close(c *qt.C) {
	f.surface.Destroy()
	c.Assert(f.dev.Live(), qt.HasLen, 0)
	c.Assert(f.dev.Violations(), qt.HasLen, 0)
}

func depthAndColor() *graph.Def {
	def := graph.NewDef()
	depth := def.NewImage("depth").SetFormat(gfx.FormatD32Sfloat)
	color := def.SwapchainImage("color")
	def.NewPass("main").AddOutput(color).AddOutput(depth)
	return def
}

func TestBuildAndResize(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c, 800, 600)

	g, err := depthAndColor().Build(f.dev, f.surface, 2, f.logger)
	c.Assert(err, qt.IsNil)

	c.Assert(g.Order(), qt.DeepEquals, []string{"main"})
	c.Assert(g.ImageType("depth"), qt.Equals, gfx.ImageDepth)
	c.Assert(g.ImageType("color"), qt.Equals, gfx.ImageSwapchain)
	c.Assert(g.ImageExtent("depth"), qt.Equals, gfx.Extent2D{Width: 800, Height: 600})
	c.Assert(g.ImageUsage("depth")&gfx.UsageDepthStencilAttachment, qt.Not(qt.Equals), gfx.ImageUsage(0))
	c.Assert(g.ImageInstances("depth"), qt.Equals, 1)
	c.Assert(g.ImageInstances("color"), qt.Equals, f.surface.ImageCount())

	fbs := g.Framebuffers("main")
	c.Assert(fbs, qt.HasLen, f.surface.ImageCount())
	for i, fb := range fbs {
		info := f.dev.FramebufferInfo(fb)
		c.Assert(info.Extent, qt.Equals, gfx.Extent2D{Width: 800, Height: 600})
		c.Assert(info.Attachments[0], qt.Equals, f.surface.Views()[i])
		c.Assert(info.Attachments[1], qt.Equals, g.ImageView("depth", 0, i))
	}
	renderPass := g.RenderPass("main")

	f.resize(c, 1280, 720)
	c.Assert(g.Resize(f.surface), qt.IsNil)

	c.Assert(g.ImageExtent("depth"), qt.Equals, gfx.Extent2D{Width: 1280, Height: 720})
	c.Assert(f.dev.ImageInfo(f.dev.ViewImage(g.ImageView("depth", 0, 0))).Extent, qt.Equals, gfx.Extent2D{Width: 1280, Height: 720})
	for i, fb := range g.Framebuffers("main") {
		info := f.dev.FramebufferInfo(fb)
		c.Assert(info.Extent, qt.Equals, gfx.Extent2D{Width: 1280, Height: 720})
		c.Assert(info.Attachments[0], qt.Equals, f.surface.Views()[i])
	}
	for _, old := range fbs {
		c.Assert(f.dev.IsLive(old), qt.IsFalse)
	}
	// same surface format, same render pass
	c.Assert(g.RenderPass("main"), qt.Equals, renderPass)

	g.Destroy()
	f.close(c)
}

func TestAbsoluteImagesSurviveResize(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c, 800, 600)

	def := graph.NewDef()
	shadow := def.NewImage("shadow").SetFormat(gfx.FormatD16Unorm).SetSize(1024, 1024)
	half := def.NewImage("half").SetFormat(gfx.FormatR16g16b16a16Sfloat).SetSizeRelative(0.5, 0.5)
	color := def.SwapchainImage("color")
	def.NewPass("shadow").AddOutput(shadow)
	def.NewPass("bloom").AddInputTexture(shadow).AddOutput(half)
	def.NewPass("compose").AddInputTexture(half).AddOutput(color)

	g, err := def.Build(f.dev, f.surface, 2, f.logger)
	c.Assert(err, qt.IsNil)
	c.Assert(g.ImageExtent("half"), qt.Equals, gfx.Extent2D{Width: 400, Height: 300})

	shadowView := g.ImageView("shadow", 0, 0)
	shadowFB := g.Framebuffers("shadow")[0]

	f.resize(c, 1001, 501)
	c.Assert(g.Resize(f.surface), qt.IsNil)

	c.Assert(g.ImageView("shadow", 0, 0), qt.Equals, shadowView)
	c.Assert(g.Framebuffers("shadow")[0], qt.Equals, shadowFB)
	c.Assert(g.ImageExtent("shadow"), qt.Equals, gfx.Extent2D{Width: 1024, Height: 1024})
	c.Assert(g.ImageExtent("half"), qt.Equals, gfx.Extent2D{Width: 501, Height: 251})

	g.Destroy()
	f.close(c)
}

func TestFramesInFlightAndSwapchainImages(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c, 640, 480)
	images := f.surface.ImageCount()

	def := graph.NewDef()
	gbuffer := def.NewImage("gbuffer").SetFormat(gfx.FormatR16g16b16a16Sfloat).SetCount(graph.PerFrame)
	depth := def.NewImage("depth").SetFormat(gfx.FormatD32Sfloat)
	color := def.SwapchainImage("color")
	def.NewPass("geometry").AddOutput(gbuffer).AddOutput(depth)
	def.NewPass("lighting").AddInputTexture(gbuffer).AddOutput(color)

	const frames = 2
	g, err := def.Build(f.dev, f.surface, frames, f.logger)
	c.Assert(err, qt.IsNil)
	c.Assert(g.Frames(), qt.Equals, frames)

	c.Assert(g.ImageInstances("gbuffer"), qt.Equals, frames)
	c.Assert(g.ImageInstances("depth"), qt.Equals, 1)
	c.Assert(g.ImageUsage("gbuffer"), qt.Equals, gfx.UsageColorAttachment|gfx.UsageSampled)

	// per frame attachments multiply by frames, the swapchain by images
	c.Assert(g.Framebuffers("geometry"), qt.HasLen, frames)
	c.Assert(g.Framebuffers("lighting"), qt.HasLen, images)
	c.Assert(g.ImageView("gbuffer", 0, 0), qt.Not(qt.Equals), g.ImageView("gbuffer", 1, 0))
	c.Assert(g.ImageView("gbuffer", 2, 0), qt.Equals, g.ImageView("gbuffer", 0, 0))
	c.Assert(g.ImageView("missing", 0, 0), qt.Equals, gfx.NullHandle)

	g.Destroy()
	f.close(c)
}

func TestRecord(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c, 320, 240)

	var recorded []graph.RecordContext
	def := graph.NewDef()
	hdr := def.NewImage("hdr").SetFormat(gfx.FormatR16g16b16a16Sfloat).SetCount(graph.PerFrame)
	color := def.SwapchainImage("color")
	def.NewPass("post").AddInputTexture(hdr).AddOutput(color).SetRecord(func(rc *graph.RecordContext) {
		c.Check(rc.View("hdr"), qt.Not(qt.Equals), gfx.NullHandle)
		recorded = append(recorded, *rc)
	})
	def.NewPass("scene").AddOutput(hdr).SetRecord(func(rc *graph.RecordContext) {
		recorded = append(recorded, *rc)
	})

	g, err := def.Build(f.dev, f.surface, 2, f.logger)
	c.Assert(err, qt.IsNil)
	c.Assert(g.Order(), qt.DeepEquals, []string{"scene", "post"})

	f.dev.ClearEvents()
	g.Record(1, 2, gfx.Handle(99))
	c.Assert(recorded, qt.HasLen, 2)
	c.Assert(recorded[0].Pass, qt.Equals, "scene")
	c.Assert(recorded[1].Pass, qt.Equals, "post")
	c.Assert(recorded[1].Frame, qt.Equals, 1)
	c.Assert(recorded[1].Image, qt.Equals, 2)
	c.Assert(recorded[1].Command, qt.Equals, gfx.Handle(99))
	c.Assert(recorded[1].Extent, qt.Equals, gfx.Extent2D{Width: 320, Height: 240})
	c.Assert(f.dev.Events(), qt.DeepEquals, []string{
		fmt.Sprintf("begin pass scene fb %d", g.Framebuffers("scene")[1]),
		"end pass",
		fmt.Sprintf("begin pass post fb %d", g.Framebuffers("post")[2]),
		"end pass",
	})

	c.Assert(g.RecordPass("post", 0, 0, gfx.Handle(99)), qt.IsNil)
	c.Assert(recorded, qt.HasLen, 3)
	c.Assert(g.RecordPass("nope", 0, 0, gfx.Handle(99)), qt.ErrorMatches, `no pass "nope" in the graph`)

	g.Destroy()
	f.close(c)
}

func TestOrder(t *testing.T) {
	c := qt.New(t)
	def := graph.NewDef()
	a := def.NewImage("a").SetFormat(gfx.FormatR8g8b8a8Unorm)
	b := def.NewImage("b").SetFormat(gfx.FormatR8g8b8a8Unorm)
	out := def.SwapchainImage("out")

	def.NewPass("combine").AddInputTexture(a).AddInputTexture(b).AddOutput(out)
	def.NewPass("second").AddOutput(b)
	def.NewPass("first").AddOutput(a)
	def.NewPass("overlay").AddInOutAttachment(out)

	order, err := def.Order()
	c.Assert(err, qt.IsNil)
	c.Assert(order, qt.DeepEquals, []string{"second", "first", "combine", "overlay"})
}

func TestOrderKeepsSuccessiveWriters(t *testing.T) {
	c := qt.New(t)
	def := graph.NewDef()
	color := def.NewImage("color").SetFormat(gfx.FormatR8g8b8a8Unorm)
	out := def.SwapchainImage("out")

	def.NewPass("present").AddInputTexture(color).AddOutput(out)
	def.NewPass("clear").AddOutput(color)
	def.NewPass("decals").AddInOutAttachment(color)

	order, err := def.Order()
	c.Assert(err, qt.IsNil)
	c.Assert(order, qt.DeepEquals, []string{"clear", "decals", "present"})
}

type link struct {
	from, to int
}

// randomDef declares n passes linked by links, each link carried by an
// image the first pass writes and the second samples.
func randomDef(n int, links []link) *graph.Def {
	def := graph.NewDef()
	passes := make([]*graph.PassDef, n)
	for i := range passes {
		own := def.NewImage(fmt.Sprintf("own%d", i)).SetFormat(gfx.FormatR8g8b8a8Unorm)
		passes[i] = def.NewPass(fmt.Sprintf("p%d", i)).AddOutput(own)
	}
	for i, l := range links {
		img := def.NewImage(fmt.Sprintf("link%d", i)).SetFormat(gfx.FormatR8g8b8a8Unorm)
		passes[l.from].AddOutput(img)
		passes[l.to].AddInputTexture(img)
	}
	return def
}

func TestOrderRandomGraphs(t *testing.T) {
	c := qt.New(t)
	for seed := int64(1); seed <= 50; seed++ {
		rng := rand.New(rand.NewSource(seed))
		n := 2 + rng.Intn(12)
		// rank[i] is the position of pass i in some valid order
		rank := rng.Perm(n)

		var links []link
		for u := 0; u < n; u++ {
			for v := 0; v < n; v++ {
				if rank[u] < rank[v] && rng.Intn(3) == 0 {
					links = append(links, link{u, v})
				}
			}
		}

		order, err := randomDef(n, links).Order()
		c.Assert(err, qt.IsNil, qt.Commentf("seed %d", seed))
		c.Assert(order, qt.HasLen, n)
		pos := make(map[string]int, n)
		for i, name := range order {
			pos[name] = i
		}
		for _, l := range links {
			from, to := fmt.Sprintf("p%d", l.from), fmt.Sprintf("p%d", l.to)
			c.Assert(pos[from] < pos[to], qt.IsTrue, qt.Commentf("seed %d: %s before %s in %v", seed, from, to, order))
		}

		// close a loop over two passes of the same graph
		u, v := rng.Intn(n), rng.Intn(n)
		for u == v {
			v = rng.Intn(n)
		}
		if rank[u] > rank[v] {
			u, v = v, u
		}
		closed := append(append([]link(nil), links...), link{u, v}, link{v, u})
		_, err = randomDef(n, closed).Order()
		c.Assert(errors.Cause(err), qt.Equals, graph.ErrCycle, qt.Commentf("seed %d", seed))
	}
}

func TestRejectedDeclarations(t *testing.T) {
	tests := []struct {
		about string
		def   func() *graph.Def
		want  error
	}{{
		about: "cycle",
		def: func() *graph.Def {
			def := graph.NewDef()
			x := def.NewImage("x").SetFormat(gfx.FormatR8g8b8a8Unorm)
			y := def.NewImage("y").SetFormat(gfx.FormatR8g8b8a8Unorm)
			def.NewPass("a").AddInputTexture(x).AddOutput(y)
			def.NewPass("b").AddInputTexture(y).AddOutput(x)
			return def
		},
		want: graph.ErrCycle,
	}, {
		about: "sampling own output",
		def: func() *graph.Def {
			def := graph.NewDef()
			x := def.NewImage("x").SetFormat(gfx.FormatR8g8b8a8Unorm)
			def.NewPass("a").AddInputTexture(x).AddOutput(x)
			return def
		},
		want: graph.ErrSelfDependency,
	}, {
		about: "duplicate image",
		def: func() *graph.Def {
			def := graph.NewDef()
			x := def.NewImage("x").SetFormat(gfx.FormatR8g8b8a8Unorm)
			def.NewImage("x").SetFormat(gfx.FormatR8g8b8a8Unorm)
			def.NewPass("a").AddOutput(x)
			return def
		},
		want: graph.ErrDuplicateName,
	}, {
		about: "duplicate pass",
		def: func() *graph.Def {
			def := graph.NewDef()
			x := def.NewImage("x").SetFormat(gfx.FormatR8g8b8a8Unorm)
			def.NewPass("a").AddOutput(x)
			def.NewPass("a").AddOutput(x)
			return def
		},
		want: graph.ErrDuplicateName,
	}, {
		about: "image of another graph",
		def: func() *graph.Def {
			other := graph.NewDef().NewImage("x").SetFormat(gfx.FormatR8g8b8a8Unorm)
			def := graph.NewDef()
			def.NewPass("a").AddOutput(other)
			return def
		},
		want: graph.ErrUnknownImage,
	}, {
		about: "missing format",
		def: func() *graph.Def {
			def := graph.NewDef()
			def.NewPass("a").AddOutput(def.NewImage("x"))
			return def
		},
		want: graph.ErrInvalidImage,
	}, {
		about: "zero ratio",
		def: func() *graph.Def {
			def := graph.NewDef()
			def.NewPass("a").AddOutput(def.NewImage("x").SetFormat(gfx.FormatR8g8b8a8Unorm).SetSizeRelative(0, 1))
			return def
		},
		want: graph.ErrInvalidImage,
	}, {
		about: "two depth outputs",
		def: func() *graph.Def {
			def := graph.NewDef()
			d1 := def.NewImage("d1").SetFormat(gfx.FormatD32Sfloat)
			d2 := def.NewImage("d2").SetFormat(gfx.FormatD16Unorm)
			def.NewPass("a").AddOutput(d1).AddOutput(d2)
			return def
		},
		want: graph.ErrInvalidPass,
	}, {
		about: "no outputs",
		def: func() *graph.Def {
			def := graph.NewDef()
			def.NewPass("a")
			return def
		},
		want: graph.ErrInvalidPass,
	}, {
		about: "storage image rendered into",
		def: func() *graph.Def {
			def := graph.NewDef()
			s := def.NewImage("s").SetFormat(gfx.FormatR32Sfloat).SetType(gfx.ImageStorage)
			def.NewPass("a").AddOutput(s)
			return def
		},
		want: graph.ErrInvalidPass,
	}, {
		about: "two swapchain images",
		def: func() *graph.Def {
			def := graph.NewDef()
			def.SwapchainImage("one")
			def.NewPass("a").AddOutput(def.SwapchainImage("two"))
			return def
		},
		want: graph.ErrInvalidImage,
	}}

	for _, test := range tests {
		t.Run(test.about, func(t *testing.T) {
			c := qt.New(t)
			_, err := test.def().Order()
			c.Assert(errors.Cause(err), qt.Equals, test.want)
		})
	}
}

func TestCycleNamesPasses(t *testing.T) {
	c := qt.New(t)
	def := graph.NewDef()
	x := def.NewImage("x").SetFormat(gfx.FormatR8g8b8a8Unorm)
	y := def.NewImage("y").SetFormat(gfx.FormatR8g8b8a8Unorm)
	z := def.NewImage("z").SetFormat(gfx.FormatR8g8b8a8Unorm)
	def.NewPass("free").AddOutput(z)
	def.NewPass("a").AddInputTexture(x).AddOutput(y)
	def.NewPass("b").AddInputTexture(y).AddOutput(x)

	_, err := def.Order()
	c.Assert(err, qt.ErrorMatches, `a, b: passes form a cycle`)
}

func TestBuildWarnsOnUnproducedInput(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c, 320, 240)

	def := graph.NewDef()
	lut := def.NewImage("lut").SetFormat(gfx.FormatR8g8b8a8Unorm).SetSize(32, 32)
	def.NewPass("grade").AddInputTexture(lut).AddOutput(def.SwapchainImage("color"))

	g, err := def.Build(f.dev, f.surface, 1, f.logger)
	c.Assert(err, qt.IsNil)

	var warned bool
	for _, entry := range f.hook.AllEntries() {
		if entry.Level == log.WarnLevel && entry.Data["image"] == "lut" {
			warned = true
		}
	}
	c.Assert(warned, qt.IsTrue)

	g.Destroy()
	f.close(c)
}

func TestBuildFailureReleasesEverything(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c, 320, 240)
	f.dev.Fail("framebuffer")

	_, err := depthAndColor().Build(f.dev, f.surface, 2, f.logger)
	c.Assert(errors.Cause(err), qt.Equals, gfx.ErrAllocation)
	c.Assert(f.dev.Live()["image"], qt.Equals, 0)
	c.Assert(f.dev.Live()["renderpass"], qt.Equals, 0)

	_, err = depthAndColor().Build(f.dev, f.surface, 0, f.logger)
	c.Assert(err, qt.ErrorMatches, `frames in flight must be at least 1, got 0`)

	f.close(c)
}
