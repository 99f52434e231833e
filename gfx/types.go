// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package gfx

import "fmt"

// Extent2D is a width and height in pixels.
type Extent2D struct {
	Width  uint32
	Height uint32
}

func (e Extent2D) String() string {
	return fmt.Sprintf("%dx%d", e.Width, e.Height)
}

// Clamp clamps e component-wise into [min, max].
func (e Extent2D) Clamp(min, max Extent2D) Extent2D {
	return Extent2D{
		Width:  clampUint32(e.Width, min.Width, max.Width),
		Height: clampUint32(e.Height, min.Height, max.Height),
	}
}

func clampUint32(v, lo, hi uint32) uint32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Format is a pixel format. Values match VkFormat.
type Format int32

// Formats used by the core
const (
	FormatUndefined          Format = 0
	FormatR8g8b8a8Unorm      Format = 37
	FormatR8g8b8a8Srgb       Format = 43
	FormatB8g8r8a8Unorm      Format = 44
	FormatB8g8r8a8Srgb       Format = 50
	FormatR16g16b16a16Sfloat Format = 97
	FormatR32Sfloat          Format = 100
	FormatD16Unorm           Format = 124
	FormatX8D24UnormPack32   Format = 125
	FormatD32Sfloat          Format = 126
	FormatS8Uint             Format = 127
	FormatD24UnormS8Uint     Format = 129
	FormatD32SfloatS8Uint    Format = 130
)

// ColorSpace matches VkColorSpaceKHR.
type ColorSpace int32

// ColorSpaceSrgbNonlinear is the only color space the core asks for.
const ColorSpaceSrgbNonlinear ColorSpace = 0

// ImageType classifies what an image holds.
type ImageType int

// Image types
const (
	ImageColor ImageType = iota
	ImageDepth
	ImageStencil
	ImageDepthStencil
	ImageStorage
	ImageSwapchain
)

func (t ImageType) String() string {
	return [...]string{"color", "depth", "stencil", "depth_stencil", "storage", "swapchain"}[t]
}

// ClassifyFormat deduces the image type from its format.
func ClassifyFormat(format Format) ImageType {
	switch format {
	case FormatD16Unorm, FormatX8D24UnormPack32, FormatD32Sfloat:
		return ImageDepth
	case FormatS8Uint:
		return ImageStencil
	case FormatD24UnormS8Uint, FormatD32SfloatS8Uint:
		return ImageDepthStencil
	default:
		return ImageColor
	}
}

// Aspect selects the image aspect a view covers.
type Aspect uint32

// Aspects, matching VkImageAspectFlagBits
const (
	AspectColor   Aspect = 0x1
	AspectDepth   Aspect = 0x2
	AspectStencil Aspect = 0x4
)

// AspectOf returns the view aspect for an image type.
func AspectOf(t ImageType) Aspect {
	switch t {
	case ImageDepth:
		return AspectDepth
	case ImageStencil:
		return AspectStencil
	case ImageDepthStencil:
		return AspectDepth | AspectStencil
	default:
		return AspectColor
	}
}

// ImageUsage matches VkImageUsageFlags.
type ImageUsage uint32

// Image usage bits
const (
	UsageTransferSrc            ImageUsage = 0x1
	UsageTransferDst            ImageUsage = 0x2
	UsageSampled                ImageUsage = 0x4
	UsageStorage                ImageUsage = 0x8
	UsageColorAttachment        ImageUsage = 0x10
	UsageDepthStencilAttachment ImageUsage = 0x20
	UsageInputAttachment        ImageUsage = 0x80
)

// BufferUsage matches VkBufferUsageFlags.
type BufferUsage uint32

// Buffer usage bits
const (
	BufferTransferSrc BufferUsage = 0x1
	BufferTransferDst BufferUsage = 0x2
	BufferUniform     BufferUsage = 0x10
	BufferIndex       BufferUsage = 0x40
	BufferVertex      BufferUsage = 0x80
)

// BufferInfo describes a buffer to create.
type BufferInfo struct {
	Size        uint64
	Usage       BufferUsage
	HostVisible bool
}

// ImageInfo describes a 2D image to create.
type ImageInfo struct {
	Format Format
	Extent Extent2D
	Usage  ImageUsage
}

// SamplerInfo describes a sampler.
type SamplerInfo struct {
	Linear        bool
	Repeat        bool
	MaxAnisotropy float32
}

// DescriptorType matches VkDescriptorType.
type DescriptorType int32

// Descriptor types
const (
	DescriptorCombinedImageSampler DescriptorType = 1
	DescriptorUniformBuffer        DescriptorType = 6
	DescriptorInputAttachment      DescriptorType = 10
)

// ShaderStage matches VkShaderStageFlags.
type ShaderStage uint32

// Shader stages
const (
	StageVertex   ShaderStage = 0x1
	StageFragment ShaderStage = 0x10
	StageCompute  ShaderStage = 0x20
)

// DescriptorBinding is one binding of a descriptor set layout.
type DescriptorBinding struct {
	Binding uint32
	Type    DescriptorType
	Count   uint32
	Stages  ShaderStage
}

// PoolSize is the number of descriptors of one type a pool holds.
type PoolSize struct {
	Type  DescriptorType
	Count uint32
}

// AttachmentKind tells the backend how an attachment is used by a pass.
type AttachmentKind int

// Attachment kinds
const (
	AttachmentColor AttachmentKind = iota
	AttachmentDepth
	AttachmentInput
	AttachmentPresent
)

// AttachmentInfo describes one attachment of a render pass.
type AttachmentInfo struct {
	Format Format
	Kind   AttachmentKind

	// Load keeps previous contents instead of clearing.
	Load bool

	// Sampled is set when a later pass samples the attachment.
	Sampled bool
}

// RenderPassInfo describes a single-subpass render pass.
type RenderPassInfo struct {
	Name        string
	Attachments []AttachmentInfo
}

// FramebufferInfo binds views to a render pass.
type FramebufferInfo struct {
	RenderPass  Handle
	Attachments []Handle
	Extent      Extent2D
}

// ClearValue is either a color or a depth/stencil clear.
type ClearValue struct {
	Color   [4]float32
	Depth   float32
	Stencil uint32
}

// RenderPassBegin starts a render pass on a framebuffer.
type RenderPassBegin struct {
	RenderPass  Handle
	Framebuffer Handle
	Extent      Extent2D
	ClearValues []ClearValue
}

// SubmitInfo submits command buffers to the graphics queue.
type SubmitInfo struct {
	CommandBuffers []Handle
	Wait           Handle
	Signal         Handle
	Fence          Handle
}

// PresentInfo presents an image of a swapchain.
type PresentInfo struct {
	Swapchain  Handle
	ImageIndex uint32
	Wait       Handle
}

// Result is the outcome of acquire and present.
type Result int

// Results
const (
	Success Result = iota
	NotReady
	Timeout
	Suboptimal
	OutOfDate
	Failed
)

func (r Result) String() string {
	return [...]string{"success", "not ready", "timeout", "suboptimal", "out of date", "failed"}[r]
}

// PresentMode matches VkPresentModeKHR.
type PresentMode int32

// Present modes
const (
	PresentImmediate PresentMode = 0
	PresentMailbox   PresentMode = 1
	PresentFifo      PresentMode = 2
)

// UndefinedExtent is the current-extent value a platform reports when
// the swapchain decides the size.
const UndefinedExtent = ^uint32(0)

// SurfaceCapabilities mirrors the parts of VkSurfaceCapabilitiesKHR
// the core uses.
type SurfaceCapabilities struct {
	MinImageCount uint32
	MaxImageCount uint32
	CurrentExtent Extent2D
	MinExtent     Extent2D
	MaxExtent     Extent2D
}

// SurfaceFormat is a format and color space pair.
type SurfaceFormat struct {
	Format     Format
	ColorSpace ColorSpace
}

// SwapchainInfo describes a swapchain to create.
type SwapchainInfo struct {
	ImageCount  uint32
	Format      SurfaceFormat
	Extent      Extent2D
	PresentMode PresentMode
	Old         Handle
}
