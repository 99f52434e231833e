// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vkr

import (
	"math"

	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"

	"github.com/devblok/korugraph/gfx"
)

// SurfaceCapabilities implements gfx.Presenter.
func (d *Device) SurfaceCapabilities() (gfx.SurfaceCapabilities, error) {
	caps, err := d.capabilities()
	if err != nil {
		return gfx.SurfaceCapabilities{}, err
	}
	return gfx.SurfaceCapabilities{
		MinImageCount: caps.MinImageCount,
		MaxImageCount: caps.MaxImageCount,
		CurrentExtent: gfx.Extent2D{Width: caps.CurrentExtent.Width, Height: caps.CurrentExtent.Height},
		MinExtent:     gfx.Extent2D{Width: caps.MinImageExtent.Width, Height: caps.MinImageExtent.Height},
		MaxExtent:     gfx.Extent2D{Width: caps.MaxImageExtent.Width, Height: caps.MaxImageExtent.Height},
	}, nil
}

func (d *Device) capabilities() (vk.SurfaceCapabilities, error) {
	var caps vk.SurfaceCapabilities
	if err := check("vk.GetPhysicalDeviceSurfaceCapabilities",
		vk.GetPhysicalDeviceSurfaceCapabilities(d.physical, d.instance.Surface(), &caps)); err != nil {
		return caps, err
	}
	caps.Deref()
	caps.CurrentExtent.Deref()
	caps.MinImageExtent.Deref()
	caps.MaxImageExtent.Deref()
	return caps, nil
}

// SurfaceFormats implements gfx.Presenter.
func (d *Device) SurfaceFormats() ([]gfx.SurfaceFormat, error) {
	var count uint32
	if err := check("vk.GetPhysicalDeviceSurfaceFormats",
		vk.GetPhysicalDeviceSurfaceFormats(d.physical, d.instance.Surface(), &count, nil)); err != nil {
		return nil, err
	}
	formats := make([]vk.SurfaceFormat, count)
	if err := check("vk.GetPhysicalDeviceSurfaceFormats",
		vk.GetPhysicalDeviceSurfaceFormats(d.physical, d.instance.Surface(), &count, formats)); err != nil {
		return nil, err
	}
	out := make([]gfx.SurfaceFormat, count)
	for i := range formats {
		formats[i].Deref()
		out[i] = gfx.SurfaceFormat{
			Format:     gfx.Format(formats[i].Format),
			ColorSpace: gfx.ColorSpace(formats[i].ColorSpace),
		}
	}
	return out, nil
}

// PresentModes implements gfx.Presenter.
func (d *Device) PresentModes() ([]gfx.PresentMode, error) {
	var count uint32
	if err := check("vk.GetPhysicalDeviceSurfacePresentModes",
		vk.GetPhysicalDeviceSurfacePresentModes(d.physical, d.instance.Surface(), &count, nil)); err != nil {
		return nil, err
	}
	modes := make([]vk.PresentMode, count)
	if err := check("vk.GetPhysicalDeviceSurfacePresentModes",
		vk.GetPhysicalDeviceSurfacePresentModes(d.physical, d.instance.Surface(), &count, modes)); err != nil {
		return nil, err
	}
	out := make([]gfx.PresentMode, count)
	for i, m := range modes {
		out[i] = gfx.PresentMode(m)
	}
	return out, nil
}

var compositeAlphaFlags = []vk.CompositeAlphaFlagBits{
	vk.CompositeAlphaOpaqueBit,
	vk.CompositeAlphaPreMultipliedBit,
	vk.CompositeAlphaPostMultipliedBit,
	vk.CompositeAlphaInheritBit,
}

// CreateSwapchain implements gfx.Presenter.
func (d *Device) CreateSwapchain(info gfx.SwapchainInfo) (gfx.Handle, error) {
	caps, err := d.capabilities()
	if err != nil {
		return gfx.NullHandle, err
	}

	compositeAlpha := vk.CompositeAlphaOpaqueBit
	for _, flag := range compositeAlphaFlags {
		if caps.SupportedCompositeAlpha&vk.CompositeAlphaFlags(flag) != 0 {
			compositeAlpha = flag
			break
		}
	}

	preTransform := caps.CurrentTransform
	if caps.SupportedTransforms&vk.SurfaceTransformFlags(vk.SurfaceTransformIdentityBit) != 0 {
		preTransform = vk.SurfaceTransformIdentityBit
	}

	var old vk.Swapchain
	if sc, ok := d.swapchains.get(info.Old); ok {
		old = sc.swapchain
	}

	scci := vk.SwapchainCreateInfo{
		SType:           vk.StructureTypeSwapchainCreateInfo,
		Surface:         d.instance.Surface(),
		MinImageCount:   info.ImageCount,
		ImageFormat:     vk.Format(info.Format.Format),
		ImageColorSpace: vk.ColorSpace(info.Format.ColorSpace),
		ImageExtent: vk.Extent2D{
			Width:  info.Extent.Width,
			Height: info.Extent.Height,
		},
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit),
		PreTransform:     preTransform,
		CompositeAlpha:   compositeAlpha,
		PresentMode:      vk.PresentMode(info.PresentMode),
		Clipped:          vk.True,
		ImageArrayLayers: 1,
		ImageSharingMode: vk.SharingModeExclusive,
		OldSwapchain:     old,
	}
	var sc vk.Swapchain
	if err := check("vk.CreateSwapchain", vk.CreateSwapchain(d.device, &scci, nil, &sc)); err != nil {
		return gfx.NullHandle, err
	}
	return d.swapchains.put(&swapchain{swapchain: sc}), nil
}

// DestroySwapchain implements gfx.Presenter. Its images go with it.
func (d *Device) DestroySwapchain(handle gfx.Handle) {
	sc, ok := d.swapchains.take(handle)
	if !ok {
		return
	}
	for _, h := range sc.images {
		d.images.take(h)
	}
	vk.DestroySwapchain(d.device, sc.swapchain, nil)
}

// SwapchainImages implements gfx.Presenter. The images are owned by
// the swapchain and must not be destroyed.
func (d *Device) SwapchainImages(handle gfx.Handle) ([]gfx.Handle, error) {
	sc, ok := d.swapchains.get(handle)
	if !ok {
		return nil, errors.Errorf("images of unknown swapchain %d", handle)
	}
	if sc.images != nil {
		return sc.images, nil
	}

	var numImages uint32
	if err := check("vk.GetSwapchainImages", vk.GetSwapchainImages(d.device, sc.swapchain, &numImages, nil)); err != nil {
		return nil, err
	}
	images := make([]vk.Image, numImages)
	if err := check("vk.GetSwapchainImages", vk.GetSwapchainImages(d.device, sc.swapchain, &numImages, images)); err != nil {
		return nil, err
	}
	sc.images = make([]gfx.Handle, len(images))
	for i, img := range images {
		sc.images[i] = d.images.put(img)
	}
	return sc.images, nil
}

// result maps the outcomes acquire and present can have.
func result(r vk.Result) gfx.Result {
	switch r {
	case vk.Success:
		return gfx.Success
	case vk.NotReady:
		return gfx.NotReady
	case vk.Timeout:
		return gfx.Timeout
	case vk.Suboptimal:
		return gfx.Suboptimal
	case vk.ErrorOutOfDate:
		return gfx.OutOfDate
	default:
		return gfx.Failed
	}
}

// AcquireNextImage implements gfx.Presenter.
func (d *Device) AcquireNextImage(handle, signal gfx.Handle) (uint32, gfx.Result) {
	sc, ok := d.swapchains.get(handle)
	if !ok {
		return 0, gfx.OutOfDate
	}
	semaphore, _ := d.semaphores.get(signal)

	var index uint32
	r := vk.AcquireNextImage(d.device, sc.swapchain, math.MaxUint64, semaphore, nil, &index)
	res := result(r)
	if res == gfx.Failed {
		d.log.WithError(vk.Error(r)).Error("vk.AcquireNextImage()")
	}
	return index, res
}

// Present implements gfx.Presenter.
func (d *Device) Present(info gfx.PresentInfo) gfx.Result {
	sc, ok := d.swapchains.get(info.Swapchain)
	if !ok {
		return gfx.OutOfDate
	}
	presentInfo := vk.PresentInfo{
		SType:          vk.StructureTypePresentInfo,
		SwapchainCount: 1,
		PSwapchains:    []vk.Swapchain{sc.swapchain},
		PImageIndices:  []uint32{info.ImageIndex},
	}
	if s, ok := d.semaphores.get(info.Wait); ok {
		presentInfo.WaitSemaphoreCount = 1
		presentInfo.PWaitSemaphores = []vk.Semaphore{s}
	}
	r := vk.QueuePresent(d.queue, &presentInfo)
	res := result(r)
	if res == gfx.Failed {
		d.log.WithError(vk.Error(r)).Error("vk.QueuePresent()")
	}
	return res
}
