// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package vk

import (
	vk "github.com/goki/vulkan"

	"github.com/gviegas/deferred/driver"
)

// descLayout implements driver.DescLayout.
type descLayout struct {
	d      *Driver
	layout vk.DescriptorSetLayout
	// Descriptor types indexed by binding number.
	types map[int]driver.DescType
	// Bindings that use immutable samplers.
	immut map[int]bool
}

// NewDescLayout creates a new descriptor set layout.
func (d *Driver) NewDescLayout(ds []driver.Descriptor) (driver.DescLayout, error) {
	binds := make([]vk.DescriptorSetLayoutBinding, len(ds))
	dl := &descLayout{
		d:     d,
		types: make(map[int]driver.DescType, len(ds)),
		immut: make(map[int]bool),
	}
	for i := range ds {
		n := max(ds[i].Len, 1)
		binds[i] = vk.DescriptorSetLayoutBinding{
			Binding:         uint32(ds[i].Nr),
			DescriptorType:  convDescType(ds[i].Type),
			DescriptorCount: uint32(n),
			StageFlags:      convStage(ds[i].Stages),
		}
		if s, ok := ds[i].Sampler.(*sampler); ok && s != nil {
			splrs := make([]vk.Sampler, n)
			for j := range splrs {
				splrs[j] = s.splr
			}
			binds[i].PImmutableSamplers = splrs
			dl.immut[ds[i].Nr] = true
		}
		dl.types[ds[i].Nr] = ds[i].Type
	}
	info := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(binds)),
		PBindings:    binds,
	}
	if err := checkResult(vk.CreateDescriptorSetLayout(d.dev, &info, nil, &dl.layout)); err != nil {
		return nil, err
	}
	return dl, nil
}

// Destroy destroys the descriptor set layout.
func (dl *descLayout) Destroy() {
	if dl == nil {
		return
	}
	if dl.d != nil {
		vk.DestroyDescriptorSetLayout(dl.d.dev, dl.layout, nil)
	}
	*dl = descLayout{}
}

// descPool implements driver.DescPool.
type descPool struct {
	d    *Driver
	pool vk.DescriptorPool
}

// NewDescPool creates a new descriptor pool.
func (d *Driver) NewDescPool(maxSets int, cnt []driver.DescCount) (driver.DescPool, error) {
	sizes := make([]vk.DescriptorPoolSize, 0, len(cnt))
	for _, c := range cnt {
		if c.Count <= 0 {
			continue
		}
		sizes = append(sizes, vk.DescriptorPoolSize{
			Type:            convDescType(c.Type),
			DescriptorCount: uint32(c.Count),
		})
	}
	info := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		MaxSets:       uint32(maxSets),
		PoolSizeCount: uint32(len(sizes)),
		PPoolSizes:    sizes,
	}
	p := &descPool{d: d}
	if err := checkResult(vk.CreateDescriptorPool(d.dev, &info, nil, &p.pool)); err != nil {
		return nil, err
	}
	return p, nil
}

// Alloc allocates a descriptor set from the pool.
func (p *descPool) Alloc(layout driver.DescLayout) (driver.DescSet, error) {
	dl := layout.(*descLayout)
	info := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     p.pool,
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{dl.layout},
	}
	var set vk.DescriptorSet
	if res := vk.AllocateDescriptorSets(p.d.dev, &info, &set); res != vk.Success {
		// Out of pool memory and fragmentation are both
		// reported as exhaustion.
		if err := checkResult(res); err == driver.ErrNoHostMemory {
			return nil, err
		}
		return nil, driver.ErrNoDeviceMemory
	}
	return &descSet{d: p.d, layout: dl, set: set}, nil
}

// Reset frees every set allocated from the pool.
func (p *descPool) Reset() error {
	return checkResult(vk.ResetDescriptorPool(p.d.dev, p.pool, 0))
}

// Destroy destroys the descriptor pool.
func (p *descPool) Destroy() {
	if p == nil {
		return
	}
	if p.d != nil {
		vk.DestroyDescriptorPool(p.d.dev, p.pool, nil)
	}
	*p = descPool{}
}

// descSet implements driver.DescSet.
type descSet struct {
	d      *Driver
	layout *descLayout
	set    vk.DescriptorSet
}

// write updates a single image descriptor.
func (s *descSet) write(nr int, typ vk.DescriptorType, info vk.DescriptorImageInfo) {
	vk.UpdateDescriptorSets(s.d.dev, 1, []vk.WriteDescriptorSet{{
		SType:           vk.StructureTypeWriteDescriptorSet,
		DstSet:          s.set,
		DstBinding:      uint32(nr),
		DescriptorCount: 1,
		DescriptorType:  typ,
		PImageInfo:      []vk.DescriptorImageInfo{info},
	}}, 0, nil)
}

// SetImage updates a storage image descriptor.
func (s *descSet) SetImage(nr int, iv driver.ImageView, layout driver.Layout) {
	if s.layout.types[nr] != driver.DImage {
		panic("descriptor is not of type DImage")
	}
	s.write(nr, vk.DescriptorTypeStorageImage, vk.DescriptorImageInfo{
		ImageView:   iv.(*imageView).view,
		ImageLayout: convLayout(layout),
	})
}

// SetTexture updates a combined image/sampler descriptor.
func (s *descSet) SetTexture(nr int, iv driver.ImageView, layout driver.Layout, splr driver.Sampler) {
	if s.layout.types[nr] != driver.DTexture {
		panic("descriptor is not of type DTexture")
	}
	info := vk.DescriptorImageInfo{
		ImageView:   iv.(*imageView).view,
		ImageLayout: convLayout(layout),
	}
	if !s.layout.immut[nr] {
		info.Sampler = splr.(*sampler).splr
	}
	s.write(nr, vk.DescriptorTypeCombinedImageSampler, info)
}

// pipelineLayout implements driver.PipelineLayout.
type pipelineLayout struct {
	d      *Driver
	layout vk.PipelineLayout
}

// NewPipelineLayout creates a new pipeline layout.
func (d *Driver) NewPipelineLayout(sets []driver.DescLayout, push []driver.PushRange) (driver.PipelineLayout, error) {
	dls := make([]vk.DescriptorSetLayout, len(sets))
	for i := range sets {
		dls[i] = sets[i].(*descLayout).layout
	}
	rngs := make([]vk.PushConstantRange, len(push))
	for i := range push {
		rngs[i] = vk.PushConstantRange{
			StageFlags: convStage(push[i].Stages),
			Offset:     uint32(push[i].Off),
			Size:       uint32(push[i].Size),
		}
	}
	info := vk.PipelineLayoutCreateInfo{
		SType:                  vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount:         uint32(len(dls)),
		PSetLayouts:            dls,
		PushConstantRangeCount: uint32(len(rngs)),
		PPushConstantRanges:    rngs,
	}
	pl := &pipelineLayout{d: d}
	if err := checkResult(vk.CreatePipelineLayout(d.dev, &info, nil, &pl.layout)); err != nil {
		return nil, err
	}
	return pl, nil
}

// Destroy destroys the pipeline layout.
func (pl *pipelineLayout) Destroy() {
	if pl == nil {
		return
	}
	if pl.d != nil {
		vk.DestroyPipelineLayout(pl.d.dev, pl.layout, nil)
	}
	*pl = pipelineLayout{}
}
