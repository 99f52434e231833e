// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vkr

import (
	"unsafe"

	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"

	"github.com/devblok/korugraph/gfx"
)

func (d *Device) allocate(req vk.MemoryRequirements, properties vk.MemoryPropertyFlagBits) (vk.DeviceMemory, error) {
	memoryType, err := d.findMemoryType(req.MemoryTypeBits, vk.MemoryPropertyFlags(properties))
	if err != nil {
		return nil, err
	}
	mai := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  req.Size,
		MemoryTypeIndex: memoryType,
	}
	var memory vk.DeviceMemory
	if err := check("vk.AllocateMemory", vk.AllocateMemory(d.device, &mai, nil, &memory)); err != nil {
		return nil, err
	}
	return memory, nil
}

func (d *Device) createBuffer(size uint64, usage vk.BufferUsageFlags, properties vk.MemoryPropertyFlagBits) (vk.Buffer, vk.DeviceMemory, error) {
	bci := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(size),
		Usage:       usage,
		SharingMode: vk.SharingModeExclusive,
	}
	var buffer vk.Buffer
	if err := check("vk.CreateBuffer", vk.CreateBuffer(d.device, &bci, nil, &buffer)); err != nil {
		return nil, nil, err
	}

	var req vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(d.device, buffer, &req)
	req.Deref()

	memory, err := d.allocate(req, properties)
	if err != nil {
		vk.DestroyBuffer(d.device, buffer, nil)
		return nil, nil, err
	}
	if err := check("vk.BindBufferMemory", vk.BindBufferMemory(d.device, buffer, memory, 0)); err != nil {
		vk.FreeMemory(d.device, memory, nil)
		vk.DestroyBuffer(d.device, buffer, nil)
		return nil, nil, err
	}
	return buffer, memory, nil
}

// CreateBuffer implements gfx.Allocator. Host visible buffers are also
// host coherent, so writes need no flush.
func (d *Device) CreateBuffer(info gfx.BufferInfo) (gfx.Handle, gfx.Handle, error) {
	properties := vk.MemoryPropertyDeviceLocalBit
	if info.HostVisible {
		properties = vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit
	}
	buffer, memory, err := d.createBuffer(info.Size, vk.BufferUsageFlags(info.Usage), properties)
	if err != nil {
		return gfx.NullHandle, gfx.NullHandle, err
	}
	return d.buffers.put(buffer), d.memories.put(memoryObject{memory: memory, size: info.Size}), nil
}

// DestroyBuffer implements gfx.Allocator.
func (d *Device) DestroyBuffer(buffer, memory gfx.Handle) {
	if b, ok := d.buffers.take(buffer); ok {
		vk.DestroyBuffer(d.device, b, nil)
	}
	if m, ok := d.memories.take(memory); ok {
		vk.FreeMemory(d.device, m.memory, nil)
	}
}

// MapMemory implements gfx.Allocator.
func (d *Device) MapMemory(memory gfx.Handle, size uint64) ([]byte, error) {
	m, ok := d.memories.get(memory)
	if !ok {
		return nil, errors.Errorf("map unknown memory %d", memory)
	}
	if size > m.size {
		size = m.size
	}
	var mapped unsafe.Pointer
	if err := check("vk.MapMemory", vk.MapMemory(d.device, m.memory, 0, vk.DeviceSize(size), 0, &mapped)); err != nil {
		return nil, err
	}
	return unsafe.Slice((*byte)(mapped), size), nil
}

// UnmapMemory implements gfx.Allocator.
func (d *Device) UnmapMemory(memory gfx.Handle) {
	if m, ok := d.memories.get(memory); ok {
		vk.UnmapMemory(d.device, m.memory)
	}
}

// CreateImage implements gfx.Allocator. Images are 2D, single sampled,
// with one mip level, in device local memory.
func (d *Device) CreateImage(info gfx.ImageInfo) (gfx.Handle, gfx.Handle, error) {
	ici := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Format:    vk.Format(info.Format),
		Extent: vk.Extent3D{
			Width:  info.Extent.Width,
			Height: info.Extent.Height,
			Depth:  1,
		},
		MipLevels:     1,
		ArrayLayers:   1,
		Samples:       vk.SampleCount1Bit,
		Tiling:        vk.ImageTilingOptimal,
		Usage:         vk.ImageUsageFlags(info.Usage),
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}
	var image vk.Image
	if err := check("vk.CreateImage", vk.CreateImage(d.device, &ici, nil, &image)); err != nil {
		return gfx.NullHandle, gfx.NullHandle, err
	}

	var req vk.MemoryRequirements
	vk.GetImageMemoryRequirements(d.device, image, &req)
	req.Deref()

	memory, err := d.allocate(req, vk.MemoryPropertyDeviceLocalBit)
	if err != nil {
		vk.DestroyImage(d.device, image, nil)
		return gfx.NullHandle, gfx.NullHandle, err
	}
	if err := check("vk.BindImageMemory", vk.BindImageMemory(d.device, image, memory, 0)); err != nil {
		vk.FreeMemory(d.device, memory, nil)
		vk.DestroyImage(d.device, image, nil)
		return gfx.NullHandle, gfx.NullHandle, err
	}
	return d.images.put(image), d.memories.put(memoryObject{memory: memory, size: uint64(req.Size)}), nil
}

// DestroyImage implements gfx.Allocator.
func (d *Device) DestroyImage(image, memory gfx.Handle) {
	if i, ok := d.images.take(image); ok {
		vk.DestroyImage(d.device, i, nil)
	}
	if m, ok := d.memories.take(memory); ok {
		vk.FreeMemory(d.device, m.memory, nil)
	}
}

// CreateImageView implements gfx.Allocator.
func (d *Device) CreateImageView(image gfx.Handle, format gfx.Format, aspect gfx.Aspect) (gfx.Handle, error) {
	img, ok := d.images.get(image)
	if !ok {
		return gfx.NullHandle, errors.Errorf("view of unknown image %d", image)
	}
	ivci := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    img,
		ViewType: vk.ImageViewType2d,
		Format:   vk.Format(format),
		Components: vk.ComponentMapping{
			R: vk.ComponentSwizzleIdentity,
			G: vk.ComponentSwizzleIdentity,
			B: vk.ComponentSwizzleIdentity,
			A: vk.ComponentSwizzleIdentity,
		},
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask: vk.ImageAspectFlags(aspect),
			LevelCount: 1,
			LayerCount: 1,
		},
	}
	var view vk.ImageView
	if err := check("vk.CreateImageView", vk.CreateImageView(d.device, &ivci, nil, &view)); err != nil {
		return gfx.NullHandle, err
	}
	return d.views.put(view), nil
}

// DestroyImageView implements gfx.Allocator.
func (d *Device) DestroyImageView(view gfx.Handle) {
	if v, ok := d.views.take(view); ok {
		vk.DestroyImageView(d.device, v, nil)
	}
}

// CreateSampler implements gfx.Allocator.
func (d *Device) CreateSampler(info gfx.SamplerInfo) (gfx.Handle, error) {
	filter, mipmap := vk.FilterNearest, vk.SamplerMipmapModeNearest
	if info.Linear {
		filter, mipmap = vk.FilterLinear, vk.SamplerMipmapModeLinear
	}
	address := vk.SamplerAddressModeClampToEdge
	if info.Repeat {
		address = vk.SamplerAddressModeRepeat
	}
	anisotropy := vk.False
	if info.MaxAnisotropy > 1 {
		anisotropy = vk.True
	}
	sci := vk.SamplerCreateInfo{
		SType:                   vk.StructureTypeSamplerCreateInfo,
		MagFilter:               filter,
		MinFilter:               filter,
		AddressModeU:            address,
		AddressModeV:            address,
		AddressModeW:            address,
		AnisotropyEnable:        vk.Bool32(anisotropy),
		MaxAnisotropy:           info.MaxAnisotropy,
		BorderColor:             vk.BorderColorFloatOpaqueBlack,
		UnnormalizedCoordinates: vk.False,
		CompareEnable:           vk.False,
		CompareOp:               vk.CompareOpAlways,
		MipmapMode:              mipmap,
	}
	var sampler vk.Sampler
	if err := check("vk.CreateSampler", vk.CreateSampler(d.device, &sci, nil, &sampler)); err != nil {
		return gfx.NullHandle, err
	}
	return d.samplers.put(sampler), nil
}

// DestroySampler implements gfx.Allocator.
func (d *Device) DestroySampler(sampler gfx.Handle) {
	if s, ok := d.samplers.take(sampler); ok {
		vk.DestroySampler(d.device, s, nil)
	}
}

// UploadImage implements gfx.Allocator. It blocks until the copy
// has completed.
func (d *Device) UploadImage(image gfx.Handle, extent gfx.Extent2D, pixels []byte) error {
	img, ok := d.images.get(image)
	if !ok {
		return errors.Errorf("upload to unknown image %d", image)
	}
	size := uint64(len(pixels))
	staging, memory, err := d.createBuffer(size, vk.BufferUsageFlags(vk.BufferUsageTransferSrcBit),
		vk.MemoryPropertyHostVisibleBit|vk.MemoryPropertyHostCoherentBit)
	if err != nil {
		return errors.Wrap(err, "staging buffer")
	}
	defer func() {
		vk.DestroyBuffer(d.device, staging, nil)
		vk.FreeMemory(d.device, memory, nil)
	}()

	var mapped unsafe.Pointer
	if err := check("vk.MapMemory", vk.MapMemory(d.device, memory, 0, vk.DeviceSize(size), 0, &mapped)); err != nil {
		return err
	}
	copy(unsafe.Slice((*byte)(mapped), size), pixels)
	vk.UnmapMemory(d.device, memory)

	cmd, err := d.beginSingleTimeCommands()
	if err != nil {
		return err
	}
	transitionLayout(cmd, img, vk.ImageLayoutUndefined, vk.ImageLayoutTransferDstOptimal)
	vk.CmdCopyBufferToImage(cmd, staging, img, vk.ImageLayoutTransferDstOptimal, 1, []vk.BufferImageCopy{{
		ImageExtent: vk.Extent3D{
			Width:  extent.Width,
			Height: extent.Height,
			Depth:  1,
		},
		ImageSubresource: vk.ImageSubresourceLayers{
			AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
			LayerCount: 1,
		},
	}})
	transitionLayout(cmd, img, vk.ImageLayoutTransferDstOptimal, vk.ImageLayoutShaderReadOnlyOptimal)
	return d.endSingleTimeCommands(cmd)
}

// transitionLayout records a barrier for the two transitions an upload
// makes.
func transitionLayout(cmd vk.CommandBuffer, img vk.Image, old, new vk.ImageLayout) {
	barrier := vk.ImageMemoryBarrier{
		SType:               vk.StructureTypeImageMemoryBarrier,
		OldLayout:           old,
		NewLayout:           new,
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Image:               img,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
			LevelCount: 1,
			LayerCount: 1,
		},
	}

	var srcStage, dstStage vk.PipelineStageFlags
	if old == vk.ImageLayoutUndefined {
		barrier.DstAccessMask = vk.AccessFlags(vk.AccessTransferWriteBit)
		srcStage = vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit)
		dstStage = vk.PipelineStageFlags(vk.PipelineStageTransferBit)
	} else {
		barrier.SrcAccessMask = vk.AccessFlags(vk.AccessTransferWriteBit)
		barrier.DstAccessMask = vk.AccessFlags(vk.AccessShaderReadBit)
		srcStage = vk.PipelineStageFlags(vk.PipelineStageTransferBit)
		dstStage = vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit)
	}
	vk.CmdPipelineBarrier(cmd, srcStage, dstStage, 0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{barrier})
}

func (d *Device) beginSingleTimeCommands() (vk.CommandBuffer, error) {
	cbai := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		Level:              vk.CommandBufferLevelPrimary,
		CommandPool:        d.uploads,
		CommandBufferCount: 1,
	}
	commandBuffers := make([]vk.CommandBuffer, 1)
	if err := check("vk.AllocateCommandBuffers", vk.AllocateCommandBuffers(d.device, &cbai, commandBuffers)); err != nil {
		return nil, err
	}
	cbbi := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	}
	if err := check("vk.BeginCommandBuffer", vk.BeginCommandBuffer(commandBuffers[0], &cbbi)); err != nil {
		vk.FreeCommandBuffers(d.device, d.uploads, 1, commandBuffers)
		return nil, err
	}
	return commandBuffers[0], nil
}

func (d *Device) endSingleTimeCommands(cmd vk.CommandBuffer) error {
	defer vk.FreeCommandBuffers(d.device, d.uploads, 1, []vk.CommandBuffer{cmd})
	if err := check("vk.EndCommandBuffer", vk.EndCommandBuffer(cmd)); err != nil {
		return err
	}
	si := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    []vk.CommandBuffer{cmd},
	}
	if err := check("vk.QueueSubmit", vk.QueueSubmit(d.queue, 1, []vk.SubmitInfo{si}, nil)); err != nil {
		return err
	}
	return check("vk.QueueWaitIdle", vk.QueueWaitIdle(d.queue))
}
