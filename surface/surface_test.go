// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package surface_test

import (
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/devblok/korugraph/gfx"
	"github.com/devblok/korugraph/gfx/gfxtest"
	"github.com/devblok/korugraph/surface"
)

func newManager() (*surface.Manager, *gfxtest.Device) {
	logger, _ := test.NewNullLogger()
	dev := gfxtest.New()
	return surface.New(dev, logger), dev
}

func extent(w, h uint32) gfx.Extent2D {
	return gfx.Extent2D{Width: w, Height: h}
}

func TestBuild(t *testing.T) {
	c := qt.New(t)
	m, dev := newManager()
	c.Assert(m.State(), qt.Equals, surface.Uninitialised)

	c.Assert(m.Build(extent(800, 600)), qt.IsNil)
	c.Assert(m.State(), qt.Equals, surface.Ready)
	c.Assert(m.Extent(), qt.Equals, extent(800, 600))
	c.Assert(m.ImageCount(), qt.Equals, 3)
	c.Assert(m.Views(), qt.HasLen, 3)
	c.Assert(m.Format(), qt.Equals, gfx.SurfaceFormat{Format: gfx.FormatB8g8r8a8Srgb, ColorSpace: gfx.ColorSpaceSrgbNonlinear})
	c.Assert(m.PresentMode(), qt.Equals, gfx.PresentMailbox)

	for i, view := range m.Views() {
		c.Assert(dev.ViewImage(view), qt.Equals, m.Images()[i])
	}

	m.Destroy()
	c.Assert(m.State(), qt.Equals, surface.Destroyed)
	c.Assert(dev.Live(), qt.HasLen, 0)
	c.Assert(dev.Violations(), qt.HasLen, 0)
}

func TestRebuildClampsAndReplacesSwapchain(t *testing.T) {
	c := qt.New(t)
	m, dev := newManager()
	dev.SetCapabilities(gfx.SurfaceCapabilities{
		MinImageCount: 2,
		CurrentExtent: extent(gfx.UndefinedExtent, gfx.UndefinedExtent),
		MinExtent:     extent(64, 64),
		MaxExtent:     extent(1920, 1080),
	})
	c.Assert(m.Build(extent(800, 600)), qt.IsNil)
	old := m.Swapchain()

	// rebuild needs an invalidation first
	c.Assert(errors.Cause(m.Build(extent(1280, 720))), qt.Equals, surface.ErrIllegalTransition)

	c.Assert(m.Invalidate(), qt.IsNil)
	c.Assert(m.Build(extent(4000, 10)), qt.IsNil)
	c.Assert(m.Extent(), qt.Equals, extent(1920, 64))
	c.Assert(dev.SwapchainInfo(m.Swapchain()).Old, qt.Equals, old)
	c.Assert(dev.IsLive(old), qt.IsFalse)
	c.Assert(dev.Live()["swapchain"], qt.Equals, 1)
	c.Assert(dev.Live()["view"], qt.Equals, m.ImageCount())

	m.Destroy()
	c.Assert(dev.Live(), qt.HasLen, 0)
}

func TestCurrentExtentWins(t *testing.T) {
	c := qt.New(t)
	m, dev := newManager()
	dev.SetCapabilities(gfx.SurfaceCapabilities{
		MinImageCount: 2,
		MaxImageCount: 2,
		CurrentExtent: extent(1024, 768),
		MinExtent:     extent(1, 1),
		MaxExtent:     extent(4096, 4096),
	})
	c.Assert(m.Build(extent(800, 600)), qt.IsNil)
	c.Assert(m.Extent(), qt.Equals, extent(1024, 768))
	c.Assert(m.ImageCount(), qt.Equals, 2)
	m.Destroy()
}

func TestDegenerateExtentDefers(t *testing.T) {
	c := qt.New(t)
	m, dev := newManager()

	err := m.Build(extent(4, 600))
	c.Assert(errors.Cause(err), qt.Equals, surface.ErrDegenerateExtent)
	c.Assert(m.State(), qt.Equals, surface.Uninitialised)
	c.Assert(dev.Live(), qt.HasLen, 0)

	c.Assert(m.Build(extent(800, 600)), qt.IsNil)
	c.Assert(m.Invalidate(), qt.IsNil)
	err = m.Build(extent(800, 0))
	c.Assert(errors.Cause(err), qt.Equals, surface.ErrDegenerateExtent)
	c.Assert(m.State(), qt.Equals, surface.Invalidated)

	c.Assert(m.Build(extent(5, 5)), qt.IsNil)
	c.Assert(m.State(), qt.Equals, surface.Ready)
	m.Destroy()
	c.Assert(dev.Violations(), qt.HasLen, 0)
}

func TestAcquireAndPresentInvalidate(t *testing.T) {
	c := qt.New(t)
	m, dev := newManager()
	c.Assert(m.Build(extent(800, 600)), qt.IsNil)
	sem, err := dev.CreateSemaphore()
	c.Assert(err, qt.IsNil)

	dev.QueueAcquireResults(gfx.Success, gfx.OutOfDate)
	index, result := m.Acquire(sem)
	c.Assert(result, qt.Equals, gfx.Success)
	c.Assert(index, qt.Equals, uint32(0))

	dev.QueuePresentResults(gfx.Suboptimal)
	c.Assert(m.Present(index, sem), qt.Equals, gfx.Suboptimal)
	c.Assert(m.State(), qt.Equals, surface.Invalidated)

	// invalidated managers do not reach the device
	_, result = m.Acquire(sem)
	c.Assert(result, qt.Equals, gfx.OutOfDate)

	c.Assert(m.Build(extent(800, 600)), qt.IsNil)
	_, result = m.Acquire(sem)
	c.Assert(result, qt.Equals, gfx.OutOfDate)
	c.Assert(m.State(), qt.Equals, surface.Invalidated)

	m.Destroy()
	dev.DestroySemaphore(sem)
	c.Assert(dev.Violations(), qt.HasLen, 0)
}

func TestIllegalTransitions(t *testing.T) {
	c := qt.New(t)
	m, _ := newManager()
	c.Assert(errors.Cause(m.Invalidate()), qt.Equals, surface.ErrIllegalTransition)

	m.Destroy()
	m.Destroy()
	c.Assert(errors.Cause(m.Build(extent(800, 600))), qt.Equals, surface.ErrIllegalTransition)
}

func TestChooseFormat(t *testing.T) {
	c := qt.New(t)
	srgb := gfx.ColorSpaceSrgbNonlinear

	_, err := surface.ChooseFormat(nil)
	c.Assert(err, qt.Equals, surface.ErrNoSurfaceFormat)

	got, err := surface.ChooseFormat([]gfx.SurfaceFormat{{Format: gfx.FormatUndefined}})
	c.Assert(err, qt.IsNil)
	c.Assert(got.Format, qt.Equals, gfx.FormatB8g8r8a8Srgb)

	got, _ = surface.ChooseFormat([]gfx.SurfaceFormat{
		{Format: gfx.FormatB8g8r8a8Unorm, ColorSpace: srgb},
		{Format: gfx.FormatR8g8b8a8Srgb, ColorSpace: srgb},
	})
	c.Assert(got.Format, qt.Equals, gfx.FormatR8g8b8a8Srgb)

	got, _ = surface.ChooseFormat([]gfx.SurfaceFormat{
		{Format: gfx.FormatR16g16b16a16Sfloat, ColorSpace: 1000104002},
		{Format: gfx.FormatB8g8r8a8Srgb, ColorSpace: 1000104002},
	})
	c.Assert(got.Format, qt.Equals, gfx.FormatR16g16b16a16Sfloat)
}

func TestChoosePresentModeAndImageCount(t *testing.T) {
	c := qt.New(t)
	c.Assert(surface.ChoosePresentMode([]gfx.PresentMode{gfx.PresentImmediate, gfx.PresentFifo}), qt.Equals, gfx.PresentFifo)
	c.Assert(surface.ChoosePresentMode([]gfx.PresentMode{gfx.PresentFifo, gfx.PresentMailbox}), qt.Equals, gfx.PresentMailbox)

	c.Assert(surface.ChooseImageCount(gfx.SurfaceCapabilities{MinImageCount: 2}), qt.Equals, uint32(3))
	c.Assert(surface.ChooseImageCount(gfx.SurfaceCapabilities{MinImageCount: 3, MaxImageCount: 3}), qt.Equals, uint32(3))
}
