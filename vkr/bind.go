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

// CreateDescriptorSetLayout implements gfx.Binder.
func (d *Device) CreateDescriptorSetLayout(bindings []gfx.DescriptorBinding) (gfx.Handle, error) {
	vkBindings := make([]vk.DescriptorSetLayoutBinding, len(bindings))
	for i, b := range bindings {
		vkBindings[i] = vk.DescriptorSetLayoutBinding{
			Binding:         b.Binding,
			DescriptorType:  vk.DescriptorType(b.Type),
			DescriptorCount: b.Count,
			StageFlags:      vk.ShaderStageFlags(b.Stages),
		}
	}
	dslci := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(vkBindings)),
		PBindings:    vkBindings,
	}
	var layout vk.DescriptorSetLayout
	if err := check("vk.CreateDescriptorSetLayout", vk.CreateDescriptorSetLayout(d.device, &dslci, nil, &layout)); err != nil {
		return gfx.NullHandle, err
	}
	return d.layouts.put(layout), nil
}

// DestroyDescriptorSetLayout implements gfx.Binder.
func (d *Device) DestroyDescriptorSetLayout(layout gfx.Handle) {
	if l, ok := d.layouts.take(layout); ok {
		vk.DestroyDescriptorSetLayout(d.device, l, nil)
	}
}

// CreateDescriptorPool implements gfx.Binder.
func (d *Device) CreateDescriptorPool(maxSets uint32, sizes []gfx.PoolSize) (gfx.Handle, error) {
	poolSizes := make([]vk.DescriptorPoolSize, len(sizes))
	for i, s := range sizes {
		poolSizes[i] = vk.DescriptorPoolSize{
			Type:            vk.DescriptorType(s.Type),
			DescriptorCount: s.Count,
		}
	}
	dpci := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		MaxSets:       maxSets,
		PoolSizeCount: uint32(len(poolSizes)),
		PPoolSizes:    poolSizes,
	}
	var pool vk.DescriptorPool
	if err := check("vk.CreateDescriptorPool", vk.CreateDescriptorPool(d.device, &dpci, nil, &pool)); err != nil {
		return gfx.NullHandle, err
	}
	return d.descPools.put(pool), nil
}

// DestroyDescriptorPool implements gfx.Binder. Sets allocated from the
// pool go with it; their handles must not be used afterwards.
func (d *Device) DestroyDescriptorPool(pool gfx.Handle) {
	if p, ok := d.descPools.take(pool); ok {
		vk.DestroyDescriptorPool(d.device, p, nil)
	}
}

// AllocateDescriptorSets implements gfx.Binder, one set per layout.
func (d *Device) AllocateDescriptorSets(pool gfx.Handle, layouts []gfx.Handle) ([]gfx.Handle, error) {
	p, ok := d.descPools.get(pool)
	if !ok {
		return nil, errors.Errorf("allocate from unknown descriptor pool %d", pool)
	}
	sets := make([]gfx.Handle, len(layouts))
	for idx, layout := range layouts {
		l, ok := d.layouts.get(layout)
		if !ok {
			return nil, errors.Errorf("unknown descriptor set layout %d", layout)
		}
		dsai := vk.DescriptorSetAllocateInfo{
			SType:              vk.StructureTypeDescriptorSetAllocateInfo,
			DescriptorPool:     p,
			DescriptorSetCount: 1,
			PSetLayouts:        []vk.DescriptorSetLayout{l},
		}
		var set vk.DescriptorSet
		if err := check("vk.AllocateDescriptorSets", vk.AllocateDescriptorSets(d.device, &dsai, &set)); err != nil {
			return nil, err
		}
		sets[idx] = d.sets.put(set)
	}
	return sets, nil
}

// WriteBufferDescriptor implements gfx.Binder.
func (d *Device) WriteBufferDescriptor(set gfx.Handle, binding uint32, buffer gfx.Handle, size uint64) {
	s, ok := d.sets.get(set)
	if !ok {
		d.log.WithField("set", set).Error("write to unknown descriptor set")
		return
	}
	b, ok := d.buffers.get(buffer)
	if !ok {
		d.log.WithField("buffer", buffer).Error("unknown buffer written to descriptor set")
		return
	}
	wds := []vk.WriteDescriptorSet{{
		SType:           vk.StructureTypeWriteDescriptorSet,
		DstSet:          s,
		DstBinding:      binding,
		DescriptorType:  vk.DescriptorTypeUniformBuffer,
		DescriptorCount: 1,
		PBufferInfo: []vk.DescriptorBufferInfo{{
			Buffer: b,
			Range:  vk.DeviceSize(size),
		}},
	}}
	vk.UpdateDescriptorSets(d.device, uint32(len(wds)), wds, 0, nil)
}

// WriteImageDescriptor implements gfx.Binder.
func (d *Device) WriteImageDescriptor(set gfx.Handle, binding uint32, view, sampler gfx.Handle) {
	s, ok := d.sets.get(set)
	if !ok {
		d.log.WithField("set", set).Error("write to unknown descriptor set")
		return
	}
	v, _ := d.views.get(view)
	smp, _ := d.samplers.get(sampler)
	wds := []vk.WriteDescriptorSet{{
		SType:           vk.StructureTypeWriteDescriptorSet,
		DstSet:          s,
		DstBinding:      binding,
		DescriptorType:  vk.DescriptorTypeCombinedImageSampler,
		DescriptorCount: 1,
		PImageInfo: []vk.DescriptorImageInfo{{
			ImageLayout: vk.ImageLayoutShaderReadOnlyOptimal,
			ImageView:   v,
			Sampler:     smp,
		}},
	}}
	vk.UpdateDescriptorSets(d.device, uint32(len(wds)), wds, 0, nil)
}
