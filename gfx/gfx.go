// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package gfx defines the narrow GPU API the frame core is written against,
// and the resource primitives built on top of it. The vkr package implements
// Device over Vulkan; gfxtest implements it in memory.
package gfx

import "github.com/pkg/errors"

// package errors
var (
	ErrAllocation     = errors.New("gpu object or memory allocation failed")
	ErrNotHostVisible = errors.New("buffer memory is not host visible")
	ErrNotInitialised = errors.New("primitive is not initialised")
)

// Handle is an opaque backend object handle. NullHandle is never
// a valid object and marks uninitialised or destroyed primitives.
type Handle uint64

// NullHandle is the null-handle sentinel.
const NullHandle Handle = 0

// IsNull reports whether h is the null handle.
func (h Handle) IsNull() bool {
	return h == NullHandle
}

// Allocator creates device-memory-backed objects. CreateBuffer and
// CreateImage return the object together with its one allocation;
// a failure leaves nothing behind.
type Allocator interface {
	CreateBuffer(info BufferInfo) (buffer, memory Handle, err error)
	DestroyBuffer(buffer, memory Handle)

	// MapMemory maps size bytes of memory and returns them as a slice
	// that is valid until UnmapMemory.
	MapMemory(memory Handle, size uint64) ([]byte, error)
	UnmapMemory(memory Handle)

	CreateImage(info ImageInfo) (image, memory Handle, err error)
	DestroyImage(image, memory Handle)

	CreateImageView(image Handle, format Format, aspect Aspect) (Handle, error)
	DestroyImageView(view Handle)

	CreateSampler(info SamplerInfo) (Handle, error)
	DestroySampler(sampler Handle)

	// UploadImage copies tightly packed pixels into image through a
	// staging buffer and leaves the image in shader-read layout.
	UploadImage(image Handle, extent Extent2D, pixels []byte) error
}

// Binder manages descriptor layouts, pools and sets.
type Binder interface {
	CreateDescriptorSetLayout(bindings []DescriptorBinding) (Handle, error)
	DestroyDescriptorSetLayout(layout Handle)

	CreateDescriptorPool(maxSets uint32, sizes []PoolSize) (Handle, error)
	DestroyDescriptorPool(pool Handle)
	AllocateDescriptorSets(pool Handle, layouts []Handle) ([]Handle, error)

	WriteBufferDescriptor(set Handle, binding uint32, buffer Handle, size uint64)
	WriteImageDescriptor(set Handle, binding uint32, view, sampler Handle)
}

// Synchronizer creates GPU-side signals and waits on CPU-observable ones.
type Synchronizer interface {
	CreateSemaphore() (Handle, error)
	DestroySemaphore(semaphore Handle)

	// CreateFence creates a fence, signaled when signaled is true.
	CreateFence(signaled bool) (Handle, error)
	DestroyFence(fence Handle)

	// WaitFence blocks until fence is signaled. There is no timeout.
	WaitFence(fence Handle) error
	ResetFence(fence Handle) error

	// WaitIdle blocks until the device has no outstanding work.
	WaitIdle() error
}

// Commander records and submits command buffers.
type Commander interface {
	CreateRenderPass(info RenderPassInfo) (Handle, error)
	DestroyRenderPass(renderPass Handle)

	CreateFramebuffer(info FramebufferInfo) (Handle, error)
	DestroyFramebuffer(framebuffer Handle)

	CreateCommandPool() (Handle, error)
	DestroyCommandPool(pool Handle)
	AllocateCommandBuffers(pool Handle, count int) ([]Handle, error)

	BeginCommandBuffer(cmd Handle) error
	EndCommandBuffer(cmd Handle) error
	CmdBeginRenderPass(cmd Handle, begin RenderPassBegin)
	CmdEndRenderPass(cmd Handle)

	Submit(info SubmitInfo) error
}

// Presenter talks to the platform surface.
type Presenter interface {
	SurfaceCapabilities() (SurfaceCapabilities, error)
	SurfaceFormats() ([]SurfaceFormat, error)
	PresentModes() ([]PresentMode, error)

	CreateSwapchain(info SwapchainInfo) (Handle, error)
	DestroySwapchain(swapchain Handle)
	SwapchainImages(swapchain Handle) ([]Handle, error)

	// AcquireNextImage waits without timeout for a presentable image and
	// arranges for signal to be signaled once it can be written.
	AcquireNextImage(swapchain, signal Handle) (uint32, Result)
	Present(info PresentInfo) Result
}

// Device is the logical device the frame core drives.
type Device interface {
	Allocator
	Binder
	Synchronizer
	Commander
	Presenter

	// Destroy destroys the logical device. Every primitive
	// must be destroyed before.
	Destroy()
}
