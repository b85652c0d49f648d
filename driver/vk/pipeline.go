// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package vk

import (
	"sync"

	vk "github.com/goki/vulkan"
	"github.com/pkg/errors"

	"github.com/gviegas/deferred/driver"
)

// pipeKey identifies a graphics pipeline.
// Viewport and scissor are dynamic, so they are zeroed
// in rs.
type pipeKey struct {
	vert, frag *shader
	layout     *pipelineLayout
	pass       vk.RenderPass
	rs         driver.RasterState
}

// pipelineCache links vertex and fragment shaders into
// graphics pipelines as draws require them.
type pipelineCache struct {
	d     *Driver
	mu    sync.Mutex
	cache vk.PipelineCache
	pipes map[pipeKey]vk.Pipeline
}

func (c *pipelineCache) init(d *Driver) {
	c.d = d
	c.pipes = make(map[pipeKey]vk.Pipeline)
	info := vk.PipelineCacheCreateInfo{SType: vk.StructureTypePipelineCacheCreateInfo}
	var cache vk.PipelineCache
	if err := checkResult(vk.CreatePipelineCache(d.dev, &info, nil, &cache)); err != nil {
		// Not having a cache only slows down creation.
		d.logger().Warn("vk: vkCreatePipelineCache failed", "err", err)
		cache = vk.PipelineCache(vk.NullHandle)
	}
	c.cache = cache
}

// get returns the pipeline identified by k, creating it
// if needed.
func (c *pipelineCache) get(k *pipeKey) (vk.Pipeline, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.pipes[*k]; ok {
		return p, nil
	}
	p, err := c.newPipeline(k)
	if err != nil {
		return vk.Pipeline(vk.NullHandle), err
	}
	c.pipes[*k] = p
	return p, nil
}

// newPipeline creates a graphics pipeline.
func (c *pipelineCache) newPipeline(k *pipeKey) (vk.Pipeline, error) {
	stages := make([]vk.PipelineShaderStageCreateInfo, 0, 2)
	if k.vert != nil {
		stages = append(stages, k.vert.stageInfo())
	}
	if k.frag != nil {
		stages = append(stages, k.frag.stageInfo())
	}
	rs := &k.rs

	raster := vk.PipelineRasterizationStateCreateInfo{
		SType:       vk.StructureTypePipelineRasterizationStateCreateInfo,
		PolygonMode: convFillMode(rs.Fill),
		CullMode:    convCullMode(rs.Cull),
		FrontFace:   vk.FrontFaceCounterClockwise,
		LineWidth:   1,
	}
	if rs.Clockwise {
		raster.FrontFace = vk.FrontFaceClockwise
	}
	if rs.Fill == driver.FLines && c.d.feat.FillModeNonSolid != vk.True {
		raster.PolygonMode = vk.PolygonModeFill
	}
	if rs.DepthBias {
		raster.DepthBiasEnable = vk.True
		raster.DepthBiasConstantFactor = rs.BiasValue
		raster.DepthBiasSlopeFactor = rs.BiasSlope
		if c.d.feat.DepthBiasClamp == vk.True {
			raster.DepthBiasClamp = rs.BiasClamp
		}
	}

	depth := vk.PipelineDepthStencilStateCreateInfo{
		SType:          vk.StructureTypePipelineDepthStencilStateCreateInfo,
		DepthCompareOp: convCmpFunc(rs.DepthCmp),
		MaxDepthBounds: 1,
	}
	if rs.DepthTest {
		depth.DepthTestEnable = vk.True
	}
	if rs.DepthWrite {
		depth.DepthWriteEnable = vk.True
	}

	blends := make([]vk.PipelineColorBlendAttachmentState, rs.ColorCount)
	for i := range blends {
		blends[i] = vk.PipelineColorBlendAttachmentState{
			ColorWriteMask:      convColorMask(rs.WriteMask[i]),
			SrcColorBlendFactor: vk.BlendFactorOne,
			DstColorBlendFactor: vk.BlendFactorZero,
			ColorBlendOp:        vk.BlendOpAdd,
			SrcAlphaBlendFactor: vk.BlendFactorOne,
			DstAlphaBlendFactor: vk.BlendFactorZero,
			AlphaBlendOp:        vk.BlendOpAdd,
		}
		if rs.Blend[i] {
			blends[i].BlendEnable = vk.True
			blends[i].SrcColorBlendFactor = vk.BlendFactorSrcAlpha
			blends[i].DstColorBlendFactor = vk.BlendFactorOneMinusSrcAlpha
			blends[i].DstAlphaBlendFactor = vk.BlendFactorOneMinusSrcAlpha
		}
	}

	dyn := []vk.DynamicState{vk.DynamicStateViewport, vk.DynamicStateScissor}
	info := vk.GraphicsPipelineCreateInfo{
		SType:      vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount: uint32(len(stages)),
		PStages:    stages,
		// Vertex data is pulled from buffer addresses.
		PVertexInputState: &vk.PipelineVertexInputStateCreateInfo{
			SType: vk.StructureTypePipelineVertexInputStateCreateInfo,
		},
		PInputAssemblyState: &vk.PipelineInputAssemblyStateCreateInfo{
			SType:    vk.StructureTypePipelineInputAssemblyStateCreateInfo,
			Topology: convTopology(rs.Topology),
		},
		PViewportState: &vk.PipelineViewportStateCreateInfo{
			SType:         vk.StructureTypePipelineViewportStateCreateInfo,
			ViewportCount: 1,
			ScissorCount:  1,
		},
		PRasterizationState: &raster,
		PMultisampleState: &vk.PipelineMultisampleStateCreateInfo{
			SType:                vk.StructureTypePipelineMultisampleStateCreateInfo,
			RasterizationSamples: vk.SampleCount1Bit,
			MinSampleShading:     1,
		},
		PDepthStencilState: &depth,
		PColorBlendState: &vk.PipelineColorBlendStateCreateInfo{
			SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
			LogicOp:         vk.LogicOpCopy,
			AttachmentCount: uint32(len(blends)),
			PAttachments:    blends,
		},
		PDynamicState: &vk.PipelineDynamicStateCreateInfo{
			SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
			DynamicStateCount: uint32(len(dyn)),
			PDynamicStates:    dyn,
		},
		Layout:             k.layout.layout,
		RenderPass:         k.pass,
		BasePipelineHandle: vk.Pipeline(vk.NullHandle),
		BasePipelineIndex:  -1,
	}
	pipes := make([]vk.Pipeline, 1)
	res := vk.CreateGraphicsPipelines(c.d.dev, c.cache, 1, []vk.GraphicsPipelineCreateInfo{info}, nil, pipes)
	if err := checkResult(res); err != nil {
		return vk.Pipeline(vk.NullHandle), errors.Wrap(driver.ErrInvalidShader, err.Error())
	}
	return pipes[0], nil
}

// evict destroys every pipeline that s was linked into.
func (c *pipelineCache) evict(s *shader) {
	if s.stage == driver.SCompute {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, p := range c.pipes {
		if k.vert == s || k.frag == s {
			vk.DestroyPipeline(c.d.dev, p, nil)
			delete(c.pipes, k)
		}
	}
}

// destroy destroys every cached pipeline.
func (c *pipelineCache) destroy() {
	if c.d == nil {
		return
	}
	for _, p := range c.pipes {
		vk.DestroyPipeline(c.d.dev, p, nil)
	}
	if c.cache != vk.PipelineCache(vk.NullHandle) {
		vk.DestroyPipelineCache(c.d.dev, c.cache, nil)
	}
	*c = pipelineCache{}
}
