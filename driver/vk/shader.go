// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package vk

import (
	"encoding/binary"

	vk "github.com/goki/vulkan"
	"github.com/pkg/errors"

	"github.com/gviegas/deferred/driver"
)

// spirvMagic is the first word of every SPIR-V module.
const spirvMagic = 0x07230203

// shader implements driver.Shader.
// Vertex and fragment shaders only hold their module
// until a draw links them into a graphics pipeline.
// Compute shaders are linked at creation.
type shader struct {
	d      *Driver
	name   string
	stage  driver.Stage
	entry  string
	mod    vk.ShaderModule
	layout *pipelineLayout
	pipe   vk.Pipeline
}

// spirvWords converts SPIR-V code to its word
// representation. It returns nil if code is not a
// valid SPIR-V module.
func spirvWords(code []byte) []uint32 {
	if len(code) < 20 || len(code)%4 != 0 {
		return nil
	}
	words := make([]uint32, len(code)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(code[i*4:])
	}
	if words[0] != spirvMagic {
		return nil
	}
	return words
}

// NewShader creates a new shader.
func (d *Driver) NewShader(desc *driver.ShaderDesc) (driver.Shader, error) {
	switch desc.Stage {
	case driver.SVertex, driver.SFragment, driver.SCompute:
	default:
		panic("shader must have exactly one stage")
	}
	words := spirvWords(desc.Code)
	if words == nil {
		return nil, errors.Wrapf(driver.ErrInvalidShader, "vk: %s: not SPIR-V", desc.Name)
	}
	s := &shader{
		d:     d,
		name:  desc.Name,
		stage: desc.Stage,
		entry: desc.Entry,
	}
	if s.entry == "" {
		s.entry = "main"
	}
	if desc.Layout != nil {
		s.layout = desc.Layout.(*pipelineLayout)
	}
	info := vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint64(len(desc.Code)),
		PCode:    words,
	}
	if err := checkResult(vk.CreateShaderModule(d.dev, &info, nil, &s.mod)); err != nil {
		return nil, errors.Wrapf(driver.ErrInvalidShader, "vk: %s: %v", desc.Name, err)
	}
	if s.stage == driver.SCompute {
		if s.layout == nil {
			s.Destroy()
			return nil, errors.Wrapf(driver.ErrInvalidShader, "vk: %s: compute shader has no layout", desc.Name)
		}
		pipes := make([]vk.Pipeline, 1)
		res := vk.CreateComputePipelines(d.dev, vk.PipelineCache(vk.NullHandle), 1, []vk.ComputePipelineCreateInfo{{
			SType:              vk.StructureTypeComputePipelineCreateInfo,
			Stage:              s.stageInfo(),
			Layout:             s.layout.layout,
			BasePipelineHandle: vk.Pipeline(vk.NullHandle),
			BasePipelineIndex:  -1,
		}}, nil, pipes)
		if err := checkResult(res); err != nil {
			s.Destroy()
			return nil, errors.Wrapf(driver.ErrInvalidShader, "vk: %s: %v", desc.Name, err)
		}
		s.pipe = pipes[0]
	}
	return s, nil
}

// stageInfo returns the stage description used to link
// the shader into a pipeline.
func (s *shader) stageInfo() vk.PipelineShaderStageCreateInfo {
	return vk.PipelineShaderStageCreateInfo{
		SType:  vk.StructureTypePipelineShaderStageCreateInfo,
		Stage:  vk.ShaderStageFlagBits(convStage(s.stage)),
		Module: s.mod,
		PName:  safeString(s.entry),
	}
}

// Stage returns the stage of the shader.
func (s *shader) Stage() driver.Stage { return s.stage }

// Destroy destroys the shader and every graphics pipeline
// that it was linked into.
func (s *shader) Destroy() {
	if s == nil {
		return
	}
	if s.d != nil {
		s.d.pipes.evict(s)
		if s.stage == driver.SCompute && s.pipe != vk.Pipeline(vk.NullHandle) {
			vk.DestroyPipeline(s.d.dev, s.pipe, nil)
		}
		vk.DestroyShaderModule(s.d.dev, s.mod, nil)
	}
	*s = shader{}
}
