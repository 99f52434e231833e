// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package framesync_test

import (
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/pkg/errors"

	"github.com/devblok/korugraph/framesync"
	"github.com/devblok/korugraph/gfx"
	"github.com/devblok/korugraph/gfx/gfxtest"
)

func TestIndexStaysInRange(t *testing.T) {
	c := qt.New(t)
	for depth := 1; depth <= 4; depth++ {
		set, err := framesync.New(gfxtest.New(), depth)
		c.Assert(err, qt.IsNil)
		c.Assert(set.Depth(), qt.Equals, depth)

		for frame := 0; frame < 3*depth; frame++ {
			c.Assert(set.Index(), qt.Equals, frame%depth)
			set.Advance()
		}
		set.Destroy()
	}
}

func TestFencesStartSignaled(t *testing.T) {
	c := qt.New(t)
	dev := gfxtest.New()
	set, err := framesync.New(dev, 3)
	c.Assert(err, qt.IsNil)
	defer set.Destroy()

	for i := 0; i < set.Depth(); i++ {
		c.Assert(dev.FenceSignaled(set.InFlightFence()), qt.IsTrue)
		c.Assert(set.WaitCurrentFence(), qt.IsNil)
		set.Advance()
	}
	c.Assert(dev.Violations(), qt.HasLen, 0)
}

func TestSlotReuseWaitsForFence(t *testing.T) {
	c := qt.New(t)
	dev := gfxtest.New()
	set, err := framesync.New(dev, 2)
	c.Assert(err, qt.IsNil)
	defer set.Destroy()

	for frame := 0; frame < 6; frame++ {
		c.Assert(set.WaitCurrentFence(), qt.IsNil)
		c.Assert(set.ResetCurrentFence(), qt.IsNil)
		c.Assert(dev.Submit(gfx.SubmitInfo{Fence: set.InFlightFence()}), qt.IsNil)
		set.Advance()
	}
	c.Assert(dev.MaxOutstanding(), qt.Equals, 2)
	c.Assert(dev.Violations(), qt.HasLen, 0)
}

func TestDistinctObjectsPerSlot(t *testing.T) {
	c := qt.New(t)
	set, err := framesync.New(gfxtest.New(), 2)
	c.Assert(err, qt.IsNil)
	defer set.Destroy()

	seen := make(map[gfx.Handle]bool)
	for i := 0; i < 2; i++ {
		for _, h := range []gfx.Handle{set.ImageAvailable(), set.RenderFinished(), set.InFlightFence()} {
			c.Assert(seen[h], qt.IsFalse)
			seen[h] = true
		}
		set.Advance()
	}
}

func TestRecreateImageSemaphores(t *testing.T) {
	c := qt.New(t)
	dev := gfxtest.New()
	set, err := framesync.New(dev, 2)
	c.Assert(err, qt.IsNil)

	old := set.ImageAvailable()
	c.Assert(set.RecreateImageSemaphores(), qt.IsNil)
	c.Assert(set.ImageAvailable(), qt.Not(qt.Equals), old)
	c.Assert(dev.IsLive(old), qt.IsFalse)
	c.Assert(dev.Live()["semaphore"], qt.Equals, 4)

	set.Destroy()
	set.Destroy()
	c.Assert(dev.Live(), qt.HasLen, 0)
	c.Assert(dev.Violations(), qt.HasLen, 0)
}

func TestNewFailures(t *testing.T) {
	c := qt.New(t)
	_, err := framesync.New(gfxtest.New(), 0)
	c.Assert(err, qt.Equals, framesync.ErrDepth)

	dev := gfxtest.New()
	dev.Fail("fence")
	_, err = framesync.New(dev, 2)
	c.Assert(errors.Cause(err), qt.Equals, gfx.ErrAllocation)
	c.Assert(dev.Live(), qt.HasLen, 0)
}
