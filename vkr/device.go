// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vkr

import (
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	vk "github.com/vulkan-go/vulkan"

	"github.com/devblok/korugraph/gfx"
)

var _ gfx.Device = (*Device)(nil)

type memoryObject struct {
	memory vk.DeviceMemory
	size   uint64
}

type commandPool struct {
	pool    vk.CommandPool
	buffers []gfx.Handle
}

type swapchain struct {
	swapchain vk.Swapchain
	images    []gfx.Handle
}

// Device is a logical device with one queue that both renders and
// presents to the instance surface.
type Device struct {
	log      log.FieldLogger
	instance *Instance
	physical vk.PhysicalDevice
	device   vk.Device
	queue    vk.Queue
	family   uint32
	memory   vk.PhysicalDeviceMemoryProperties

	// uploads records one-shot transfer commands
	uploads vk.CommandPool

	ids          ids
	buffers      *table[vk.Buffer]
	memories     *table[memoryObject]
	images       *table[vk.Image]
	views        *table[vk.ImageView]
	samplers     *table[vk.Sampler]
	layouts      *table[vk.DescriptorSetLayout]
	descPools    *table[vk.DescriptorPool]
	sets         *table[vk.DescriptorSet]
	semaphores   *table[vk.Semaphore]
	fences       *table[vk.Fence]
	renderPasses *table[vk.RenderPass]
	framebuffers *table[vk.Framebuffer]
	cmdPools     *table[*commandPool]
	cmds         *table[vk.CommandBuffer]
	swapchains   *table[*swapchain]
}

// NewDevice creates a logical device on the physical device at index,
// with a queue family that supports graphics and presenting to the
// instance surface.
func NewDevice(instance *Instance, index int, extensions []string, logger log.FieldLogger) (*Device, error) {
	if index < 0 || index >= len(instance.devices) {
		return nil, errors.Errorf("no physical device %d, %d available", index, len(instance.devices))
	}
	if instance.Surface() == vk.NullSurface {
		return nil, errors.New("instance has no surface")
	}

	d := &Device{
		log:      logger,
		instance: instance,
		physical: instance.devices[index],
	}
	d.buffers = newTable[vk.Buffer](&d.ids)
	d.memories = newTable[memoryObject](&d.ids)
	d.images = newTable[vk.Image](&d.ids)
	d.views = newTable[vk.ImageView](&d.ids)
	d.samplers = newTable[vk.Sampler](&d.ids)
	d.layouts = newTable[vk.DescriptorSetLayout](&d.ids)
	d.descPools = newTable[vk.DescriptorPool](&d.ids)
	d.sets = newTable[vk.DescriptorSet](&d.ids)
	d.semaphores = newTable[vk.Semaphore](&d.ids)
	d.fences = newTable[vk.Fence](&d.ids)
	d.renderPasses = newTable[vk.RenderPass](&d.ids)
	d.framebuffers = newTable[vk.Framebuffer](&d.ids)
	d.cmdPools = newTable[*commandPool](&d.ids)
	d.cmds = newTable[vk.CommandBuffer](&d.ids)
	d.swapchains = newTable[*swapchain](&d.ids)

	family, err := d.findQueueFamily()
	if err != nil {
		return nil, err
	}
	d.family = family

	names := terminated(extensions)
	queueInfos := []vk.DeviceQueueCreateInfo{{
		SType:            vk.StructureTypeDeviceQueueCreateInfo,
		QueueFamilyIndex: family,
		QueueCount:       1,
		PQueuePriorities: []float32{1},
	}}
	dci := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueInfos)),
		PQueueCreateInfos:       queueInfos,
		EnabledExtensionCount:   uint32(len(names)),
		PpEnabledExtensionNames: names,
	}
	var device vk.Device
	if err := check("vk.CreateDevice", vk.CreateDevice(d.physical, &dci, nil, &device)); err != nil {
		return nil, err
	}
	d.device = device

	var queue vk.Queue
	vk.GetDeviceQueue(device, family, 0, &queue)
	d.queue = queue

	vk.GetPhysicalDeviceMemoryProperties(d.physical, &d.memory)
	d.memory.Deref()

	cpci := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateTransientBit),
		QueueFamilyIndex: family,
	}
	var uploads vk.CommandPool
	if err := check("vk.CreateCommandPool", vk.CreateCommandPool(device, &cpci, nil, &uploads)); err != nil {
		vk.DestroyDevice(device, nil)
		return nil, err
	}
	d.uploads = uploads

	d.log.WithFields(log.Fields{
		"device": index,
		"family": family,
	}).Info("logical device created")
	return d, nil
}

func (d *Device) findQueueFamily() (uint32, error) {
	var count uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(d.physical, &count, nil)
	if count == 0 {
		return 0, errors.New("vk.GetPhysicalDeviceQueueFamilyProperties(): no queue families on GPU")
	}
	families := make([]vk.QueueFamilyProperties, count)
	vk.GetPhysicalDeviceQueueFamilyProperties(d.physical, &count, families)

	for i := uint32(0); i < count; i++ {
		families[i].Deref()
		if families[i].QueueFlags&vk.QueueFlags(vk.QueueGraphicsBit) == 0 {
			continue
		}
		var supportsPresent vk.Bool32
		vk.GetPhysicalDeviceSurfaceSupport(d.physical, i, d.instance.Surface(), &supportsPresent)
		if supportsPresent.B() {
			return i, nil
		}
	}
	return 0, errors.New("no queue family can both render and present")
}

func (d *Device) findMemoryType(filter uint32, properties vk.MemoryPropertyFlags) (uint32, error) {
	for i := uint32(0); i < d.memory.MemoryTypeCount; i++ {
		d.memory.MemoryTypes[i].Deref()
		if filter&(1<<i) != 0 && d.memory.MemoryTypes[i].PropertyFlags&properties == properties {
			return i, nil
		}
	}
	return 0, errors.Wrap(gfx.ErrAllocation, "requested memory type not found")
}

// check turns a failed result into an error naming call. Running out
// of memory is reported as gfx.ErrAllocation.
func check(call string, result vk.Result) error {
	err := vk.Error(result)
	if err == nil {
		return nil
	}
	if result == vk.ErrorOutOfHostMemory || result == vk.ErrorOutOfDeviceMemory {
		return errors.Wrapf(gfx.ErrAllocation, "%s(): %s", call, err)
	}
	return errors.Errorf("%s(): %s", call, err)
}

// Destroy implements gfx.Device. Objects still alive are reported.
func (d *Device) Destroy() {
	if d.device == nil {
		return
	}
	live := log.Fields{}
	for name, n := range map[string]int{
		"buffers":       d.buffers.len(),
		"images":        d.images.len(),
		"views":         d.views.len(),
		"render passes": d.renderPasses.len(),
		"framebuffers":  d.framebuffers.len(),
		"swapchains":    d.swapchains.len(),
	} {
		if n > 0 {
			live[name] = n
		}
	}
	if len(live) > 0 {
		d.log.WithFields(live).Warn("device destroyed with live objects")
	}

	vk.DestroyCommandPool(d.device, d.uploads, nil)
	vk.DestroyDevice(d.device, nil)
	d.device = nil
}
