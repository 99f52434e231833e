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

// CreateSemaphore implements gfx.Synchronizer.
func (d *Device) CreateSemaphore() (gfx.Handle, error) {
	sci := vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}
	var semaphore vk.Semaphore
	if err := check("vk.CreateSemaphore", vk.CreateSemaphore(d.device, &sci, nil, &semaphore)); err != nil {
		return gfx.NullHandle, err
	}
	return d.semaphores.put(semaphore), nil
}

// DestroySemaphore implements gfx.Synchronizer.
func (d *Device) DestroySemaphore(semaphore gfx.Handle) {
	if s, ok := d.semaphores.take(semaphore); ok {
		vk.DestroySemaphore(d.device, s, nil)
	}
}

// CreateFence implements gfx.Synchronizer.
func (d *Device) CreateFence(signaled bool) (gfx.Handle, error) {
	fci := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}
	if signaled {
		fci.Flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}
	var fence vk.Fence
	if err := check("vk.CreateFence", vk.CreateFence(d.device, &fci, nil, &fence)); err != nil {
		return gfx.NullHandle, err
	}
	return d.fences.put(fence), nil
}

// DestroyFence implements gfx.Synchronizer.
func (d *Device) DestroyFence(fence gfx.Handle) {
	if f, ok := d.fences.take(fence); ok {
		vk.DestroyFence(d.device, f, nil)
	}
}

// WaitFence implements gfx.Synchronizer.
func (d *Device) WaitFence(fence gfx.Handle) error {
	f, ok := d.fences.get(fence)
	if !ok {
		return errors.Errorf("wait on unknown fence %d", fence)
	}
	return check("vk.WaitForFences", vk.WaitForFences(d.device, 1, []vk.Fence{f}, vk.True, math.MaxUint64))
}

// ResetFence implements gfx.Synchronizer.
func (d *Device) ResetFence(fence gfx.Handle) error {
	f, ok := d.fences.get(fence)
	if !ok {
		return errors.Errorf("reset of unknown fence %d", fence)
	}
	return check("vk.ResetFences", vk.ResetFences(d.device, 1, []vk.Fence{f}))
}

// WaitIdle implements gfx.Synchronizer.
func (d *Device) WaitIdle() error {
	return check("vk.DeviceWaitIdle", vk.DeviceWaitIdle(d.device))
}
