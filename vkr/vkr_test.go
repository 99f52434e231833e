// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vkr

import (
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"

	"github.com/devblok/korugraph/gfx"
)

func TestTableHandlesAreUnique(t *testing.T) {
	c := qt.New(t)
	var shared ids
	a := newTable[string](&shared)
	b := newTable[int](&shared)

	ha := a.put("first")
	hb := b.put(2)
	c.Assert(ha.IsNull(), qt.IsFalse)
	c.Assert(ha, qt.Not(qt.Equals), hb)

	v, ok := a.get(ha)
	c.Assert(ok, qt.IsTrue)
	c.Assert(v, qt.Equals, "first")
	_, ok = a.get(hb)
	c.Assert(ok, qt.IsFalse)

	v, ok = a.take(ha)
	c.Assert(ok, qt.IsTrue)
	c.Assert(v, qt.Equals, "first")
	_, ok = a.take(ha)
	c.Assert(ok, qt.IsFalse)
	c.Assert(a.len(), qt.Equals, 0)
	c.Assert(b.len(), qt.Equals, 1)
}

func TestAttachmentLayouts(t *testing.T) {
	c := qt.New(t)
	tests := []struct {
		name    string
		info    gfx.AttachmentInfo
		load    vk.AttachmentLoadOp
		initial vk.ImageLayout
		sub     vk.ImageLayout
		final   vk.ImageLayout
	}{{
		name:    "present",
		info:    gfx.AttachmentInfo{Format: gfx.FormatB8g8r8a8Srgb, Kind: gfx.AttachmentPresent},
		load:    vk.AttachmentLoadOpClear,
		initial: vk.ImageLayoutUndefined,
		sub:     vk.ImageLayoutColorAttachmentOptimal,
		final:   vk.ImageLayoutPresentSrc,
	}, {
		name:    "depth",
		info:    gfx.AttachmentInfo{Format: gfx.FormatD32Sfloat, Kind: gfx.AttachmentDepth},
		load:    vk.AttachmentLoadOpClear,
		initial: vk.ImageLayoutUndefined,
		sub:     vk.ImageLayoutDepthStencilAttachmentOptimal,
		final:   vk.ImageLayoutDepthStencilAttachmentOptimal,
	}, {
		name:    "sampled color",
		info:    gfx.AttachmentInfo{Format: gfx.FormatR16g16b16a16Sfloat, Kind: gfx.AttachmentColor, Sampled: true},
		load:    vk.AttachmentLoadOpClear,
		initial: vk.ImageLayoutUndefined,
		sub:     vk.ImageLayoutColorAttachmentOptimal,
		final:   vk.ImageLayoutShaderReadOnlyOptimal,
	}, {
		name:    "loaded color",
		info:    gfx.AttachmentInfo{Format: gfx.FormatR8g8b8a8Unorm, Kind: gfx.AttachmentColor, Load: true},
		load:    vk.AttachmentLoadOpLoad,
		initial: vk.ImageLayoutColorAttachmentOptimal,
		sub:     vk.ImageLayoutColorAttachmentOptimal,
		final:   vk.ImageLayoutColorAttachmentOptimal,
	}, {
		name:    "input",
		info:    gfx.AttachmentInfo{Format: gfx.FormatR8g8b8a8Unorm, Kind: gfx.AttachmentInput, Load: true},
		load:    vk.AttachmentLoadOpLoad,
		initial: vk.ImageLayoutColorAttachmentOptimal,
		sub:     vk.ImageLayoutShaderReadOnlyOptimal,
		final:   vk.ImageLayoutColorAttachmentOptimal,
	}}
	for _, test := range tests {
		c.Run(test.name, func(c *qt.C) {
			desc, sub := attachmentDescription(test.info)
			c.Assert(desc.Format, qt.Equals, vk.Format(test.info.Format))
			c.Assert(desc.LoadOp, qt.Equals, test.load)
			c.Assert(desc.InitialLayout, qt.Equals, test.initial)
			c.Assert(sub, qt.Equals, test.sub)
			c.Assert(desc.FinalLayout, qt.Equals, test.final)
		})
	}
}

func TestTerminated(t *testing.T) {
	c := qt.New(t)
	c.Assert(terminated([]string{"VK_KHR_swapchain", "VK_KHR_surface\x00"}), qt.DeepEquals,
		[]string{"VK_KHR_swapchain\x00", "VK_KHR_surface\x00"})
}

func TestResultMapping(t *testing.T) {
	c := qt.New(t)
	c.Assert(result(vk.Success), qt.Equals, gfx.Success)
	c.Assert(result(vk.Suboptimal), qt.Equals, gfx.Suboptimal)
	c.Assert(result(vk.ErrorOutOfDate), qt.Equals, gfx.OutOfDate)
	c.Assert(result(vk.ErrorDeviceLost), qt.Equals, gfx.Failed)
}

func TestCheckClassifiesOutOfMemory(t *testing.T) {
	c := qt.New(t)
	c.Assert(check("vk.CreateBuffer", vk.Success), qt.IsNil)

	err := check("vk.AllocateMemory", vk.ErrorOutOfDeviceMemory)
	c.Assert(errors.Cause(err), qt.Equals, gfx.ErrAllocation)
	c.Assert(err, qt.ErrorMatches, `vk.AllocateMemory\(\): .*`)

	err = check("vk.CreateRenderPass", vk.ErrorInitializationFailed)
	c.Assert(errors.Cause(err), qt.Not(qt.Equals), gfx.ErrAllocation)
}
