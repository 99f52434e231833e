// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vkr

import (
	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"

	"github.com/devblok/korugraph/gfx"
)

// restingLayout is the layout an attachment is left in between passes.
// Attachments loaded by a later pass start from the same layout.
func restingLayout(a gfx.AttachmentInfo) vk.ImageLayout {
	switch {
	case a.Kind == gfx.AttachmentPresent:
		return vk.ImageLayoutPresentSrc
	case a.Sampled:
		return vk.ImageLayoutShaderReadOnlyOptimal
	case gfx.ClassifyFormat(a.Format) != gfx.ImageColor:
		return vk.ImageLayoutDepthStencilAttachmentOptimal
	default:
		return vk.ImageLayoutColorAttachmentOptimal
	}
}

// attachmentDescription describes a as used by a single subpass. It
// returns the description and the layout the subpass uses.
func attachmentDescription(a gfx.AttachmentInfo) (vk.AttachmentDescription, vk.ImageLayout) {
	desc := vk.AttachmentDescription{
		Format:         vk.Format(a.Format),
		Samples:        vk.SampleCount1Bit,
		LoadOp:         vk.AttachmentLoadOpClear,
		StoreOp:        vk.AttachmentStoreOpStore,
		StencilLoadOp:  vk.AttachmentLoadOpDontCare,
		StencilStoreOp: vk.AttachmentStoreOpDontCare,
		InitialLayout:  vk.ImageLayoutUndefined,
		FinalLayout:    restingLayout(a),
	}
	if a.Load || a.Kind == gfx.AttachmentInput {
		desc.LoadOp = vk.AttachmentLoadOpLoad
		desc.InitialLayout = desc.FinalLayout
	}
	if t := gfx.ClassifyFormat(a.Format); t == gfx.ImageStencil || t == gfx.ImageDepthStencil {
		desc.StencilLoadOp = desc.LoadOp
		desc.StencilStoreOp = vk.AttachmentStoreOpStore
	}

	switch a.Kind {
	case gfx.AttachmentInput:
		return desc, vk.ImageLayoutShaderReadOnlyOptimal
	case gfx.AttachmentDepth:
		return desc, vk.ImageLayoutDepthStencilAttachmentOptimal
	default:
		return desc, vk.ImageLayoutColorAttachmentOptimal
	}
}

// CreateRenderPass implements gfx.Commander. The pass has a single
// subpass; at most one depth attachment is used.
func (d *Device) CreateRenderPass(info gfx.RenderPassInfo) (gfx.Handle, error) {
	var (
		attachments []vk.AttachmentDescription
		colorRefs   []vk.AttachmentReference
		inputRefs   []vk.AttachmentReference
		depthRef    *vk.AttachmentReference
	)
	for i, a := range info.Attachments {
		desc, layout := attachmentDescription(a)
		attachments = append(attachments, desc)
		ref := vk.AttachmentReference{Attachment: uint32(i), Layout: layout}
		switch a.Kind {
		case gfx.AttachmentInput:
			inputRefs = append(inputRefs, ref)
		case gfx.AttachmentDepth:
			if depthRef != nil {
				return gfx.NullHandle, errors.Errorf("render pass %s: more than one depth attachment", info.Name)
			}
			depthRef = &ref
		default:
			colorRefs = append(colorRefs, ref)
		}
	}

	subpass := vk.SubpassDescription{
		PipelineBindPoint:       vk.PipelineBindPointGraphics,
		ColorAttachmentCount:    uint32(len(colorRefs)),
		PColorAttachments:       colorRefs,
		InputAttachmentCount:    uint32(len(inputRefs)),
		PInputAttachments:       inputRefs,
		PDepthStencilAttachment: depthRef,
	}
	dependency := vk.SubpassDependency{
		SrcSubpass: vk.SubpassExternal,
		DstSubpass: 0,
		SrcStageMask: vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit |
			vk.PipelineStageEarlyFragmentTestsBit | vk.PipelineStageFragmentShaderBit),
		DstStageMask: vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit |
			vk.PipelineStageEarlyFragmentTestsBit | vk.PipelineStageFragmentShaderBit),
		SrcAccessMask: vk.AccessFlags(vk.AccessColorAttachmentWriteBit | vk.AccessDepthStencilAttachmentWriteBit),
		DstAccessMask: vk.AccessFlags(vk.AccessColorAttachmentReadBit | vk.AccessColorAttachmentWriteBit |
			vk.AccessDepthStencilAttachmentReadBit | vk.AccessDepthStencilAttachmentWriteBit |
			vk.AccessInputAttachmentReadBit | vk.AccessShaderReadBit),
	}

	rpci := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{subpass},
		DependencyCount: 1,
		PDependencies:   []vk.SubpassDependency{dependency},
	}
	var renderPass vk.RenderPass
	if err := check("vk.CreateRenderPass", vk.CreateRenderPass(d.device, &rpci, nil, &renderPass)); err != nil {
		return gfx.NullHandle, errors.Wrapf(err, "render pass %s", info.Name)
	}
	return d.renderPasses.put(renderPass), nil
}

// DestroyRenderPass implements gfx.Commander.
func (d *Device) DestroyRenderPass(renderPass gfx.Handle) {
	if rp, ok := d.renderPasses.take(renderPass); ok {
		vk.DestroyRenderPass(d.device, rp, nil)
	}
}

// CreateFramebuffer implements gfx.Commander.
func (d *Device) CreateFramebuffer(info gfx.FramebufferInfo) (gfx.Handle, error) {
	rp, ok := d.renderPasses.get(info.RenderPass)
	if !ok {
		return gfx.NullHandle, errors.Errorf("framebuffer of unknown render pass %d", info.RenderPass)
	}
	attachments := make([]vk.ImageView, len(info.Attachments))
	for i, h := range info.Attachments {
		if attachments[i], ok = d.views.get(h); !ok {
			return gfx.NullHandle, errors.Errorf("framebuffer attachment %d: unknown view %d", i, h)
		}
	}
	fci := vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      rp,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		Width:           info.Extent.Width,
		Height:          info.Extent.Height,
		Layers:          1,
	}
	var framebuffer vk.Framebuffer
	if err := check("vk.CreateFramebuffer", vk.CreateFramebuffer(d.device, &fci, nil, &framebuffer)); err != nil {
		return gfx.NullHandle, err
	}
	return d.framebuffers.put(framebuffer), nil
}

// DestroyFramebuffer implements gfx.Commander.
func (d *Device) DestroyFramebuffer(framebuffer gfx.Handle) {
	if fb, ok := d.framebuffers.take(framebuffer); ok {
		vk.DestroyFramebuffer(d.device, fb, nil)
	}
}

// CreateCommandPool implements gfx.Commander. Buffers of the pool are
// reset individually when recording begins.
func (d *Device) CreateCommandPool() (gfx.Handle, error) {
	cpci := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
		QueueFamilyIndex: d.family,
	}
	var pool vk.CommandPool
	if err := check("vk.CreateCommandPool", vk.CreateCommandPool(d.device, &cpci, nil, &pool)); err != nil {
		return gfx.NullHandle, err
	}
	return d.cmdPools.put(&commandPool{pool: pool}), nil
}

// DestroyCommandPool implements gfx.Commander, freeing its buffers.
func (d *Device) DestroyCommandPool(pool gfx.Handle) {
	p, ok := d.cmdPools.take(pool)
	if !ok {
		return
	}
	for _, h := range p.buffers {
		d.cmds.take(h)
	}
	vk.DestroyCommandPool(d.device, p.pool, nil)
}

// AllocateCommandBuffers implements gfx.Commander.
func (d *Device) AllocateCommandBuffers(pool gfx.Handle, count int) ([]gfx.Handle, error) {
	p, ok := d.cmdPools.get(pool)
	if !ok {
		return nil, errors.Errorf("allocate from unknown command pool %d", pool)
	}
	cbai := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        p.pool,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: uint32(count),
	}
	commandBuffers := make([]vk.CommandBuffer, count)
	if err := check("vk.AllocateCommandBuffers", vk.AllocateCommandBuffers(d.device, &cbai, commandBuffers)); err != nil {
		return nil, err
	}
	handles := make([]gfx.Handle, count)
	for i, cmd := range commandBuffers {
		handles[i] = d.cmds.put(cmd)
	}
	p.buffers = append(p.buffers, handles...)
	return handles, nil
}

func (d *Device) commandBuffer(cmd gfx.Handle) (vk.CommandBuffer, error) {
	c, ok := d.cmds.get(cmd)
	if !ok {
		return nil, errors.Errorf("unknown command buffer %d", cmd)
	}
	return c, nil
}

// BeginCommandBuffer implements gfx.Commander.
func (d *Device) BeginCommandBuffer(cmd gfx.Handle) error {
	c, err := d.commandBuffer(cmd)
	if err != nil {
		return err
	}
	cbbi := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	}
	return check("vk.BeginCommandBuffer", vk.BeginCommandBuffer(c, &cbbi))
}

// EndCommandBuffer implements gfx.Commander.
func (d *Device) EndCommandBuffer(cmd gfx.Handle) error {
	c, err := d.commandBuffer(cmd)
	if err != nil {
		return err
	}
	return check("vk.EndCommandBuffer", vk.EndCommandBuffer(c))
}

// CmdBeginRenderPass implements gfx.Commander. Viewport and scissor
// are set to cover the render area.
func (d *Device) CmdBeginRenderPass(cmd gfx.Handle, begin gfx.RenderPassBegin) {
	c, err := d.commandBuffer(cmd)
	if err != nil {
		d.log.WithError(err).Error("begin render pass")
		return
	}
	rp, _ := d.renderPasses.get(begin.RenderPass)
	fb, _ := d.framebuffers.get(begin.Framebuffer)

	clearValues := make([]vk.ClearValue, len(begin.ClearValues))
	for i, cv := range begin.ClearValues {
		if cv.Depth != 0 || cv.Stencil != 0 {
			clearValues[i].SetDepthStencil(cv.Depth, cv.Stencil)
		} else {
			clearValues[i].SetColor(cv.Color[:])
		}
	}
	extent := vk.Extent2D{Width: begin.Extent.Width, Height: begin.Extent.Height}
	rpbi := vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  rp,
		Framebuffer: fb,
		RenderArea: vk.Rect2D{
			Offset: vk.Offset2D{X: 0, Y: 0},
			Extent: extent,
		},
		ClearValueCount: uint32(len(clearValues)),
		PClearValues:    clearValues,
	}
	vk.CmdBeginRenderPass(c, &rpbi, vk.SubpassContentsInline)
	vk.CmdSetViewport(c, 0, 1, []vk.Viewport{{
		Width:    float32(extent.Width),
		Height:   float32(extent.Height),
		MinDepth: 0,
		MaxDepth: 1,
	}})
	vk.CmdSetScissor(c, 0, 1, []vk.Rect2D{{Extent: extent}})
}

// CmdEndRenderPass implements gfx.Commander.
func (d *Device) CmdEndRenderPass(cmd gfx.Handle) {
	c, err := d.commandBuffer(cmd)
	if err != nil {
		d.log.WithError(err).Error("end render pass")
		return
	}
	vk.CmdEndRenderPass(c)
}

// Submit implements gfx.Commander. The wait semaphore blocks color
// attachment output only.
func (d *Device) Submit(info gfx.SubmitInfo) error {
	cmds := make([]vk.CommandBuffer, len(info.CommandBuffers))
	for i, h := range info.CommandBuffers {
		c, err := d.commandBuffer(h)
		if err != nil {
			return err
		}
		cmds[i] = c
	}
	si := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: uint32(len(cmds)),
		PCommandBuffers:    cmds,
	}
	if s, ok := d.semaphores.get(info.Wait); ok {
		si.WaitSemaphoreCount = 1
		si.PWaitSemaphores = []vk.Semaphore{s}
		si.PWaitDstStageMask = []vk.PipelineStageFlags{
			vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		}
	}
	if s, ok := d.semaphores.get(info.Signal); ok {
		si.SignalSemaphoreCount = 1
		si.PSignalSemaphores = []vk.Semaphore{s}
	}
	var fence vk.Fence
	if f, ok := d.fences.get(info.Fence); ok {
		fence = f
	}
	return check("vk.QueueSubmit", vk.QueueSubmit(d.queue, 1, []vk.SubmitInfo{si}, fence))
}
