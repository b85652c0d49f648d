// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package engine

import (
	"github.com/pkg/errors"

	"github.com/gviegas/deferred/driver"
	"github.com/gviegas/deferred/engine/internal/shader"
)

// Deferred shaders.
const (
	gbufferVert  = "deferred/offscreen.vert.spv"
	gbufferFrag  = "deferred/offscreen.frag.spv"
	shadowVert   = "deferred/shadowmap.vert.spv"
	lightingComp = "deferred/directional_light.comp.spv"
	skyComp      = "deferred/sky.comp.spv"
)

// Indices of deferredShaders.
const (
	srcGBufferVert = iota
	srcGBufferFrag
	srcShadowVert
	srcLighting
	srcSky
)

func deferredShaders() []ShaderRequest {
	return []ShaderRequest{
		srcGBufferVert: {Path: gbufferVert, Stage: driver.SVertex, Next: driver.SFragment, PushSize: sizeOf[shader.GBufferPush]()},
		srcGBufferFrag: {Path: gbufferFrag, Stage: driver.SFragment},
		srcShadowVert:  {Path: shadowVert, Stage: driver.SVertex, Next: driver.SFragment, PushSize: sizeOf[shader.ShadowPush]()},
		srcLighting:    {Path: lightingComp, Stage: driver.SCompute, PushSize: sizeOf[shader.LightingPush]()},
		srcSky:         {Path: skyComp, Stage: driver.SCompute, PushSize: sizeOf[shader.SkyPush]()},
	}
}

// Passes that can be skipped.
const (
	passShadow = iota
	passGBuffer
	passLighting
	passSky
	passCount
)

var passNames = [passCount]string{"shadow", "gbuffer", "lighting", "sky"}

// Compute shaders run in 16x16 tiles.
const computeTile = 16

// rasterState returns the state shared by every draw:
// the whole extent is drawn, nothing is culled, front
// faces wind clockwise and depth is tested and written
// with a reversed-Z comparison.
func rasterState(extent driver.Dim3D) driver.RasterState {
	return driver.RasterState{
		Viewport: driver.Viewport{
			Width:  float32(extent.Width),
			Height: float32(extent.Height),
			Zfar:   1,
		},
		Scissor: driver.Scissor{
			Width:  extent.Width,
			Height: extent.Height,
		},
		Topology:   driver.TTriangle,
		Clockwise:  true,
		Cull:       driver.CNone,
		Fill:       driver.FFill,
		DepthTest:  true,
		DepthWrite: true,
		DepthCmp:   driver.CGreater,
	}
}

// DeferredPipeline records the passes of a deferred
// frame: shadow, GBuffer, lighting and sky.
// Passes whose resources or shaders could not be created
// are skipped.
type DeferredPipeline struct {
	// Either may be nil, in which case the passes that
	// depend on it are skipped.
	GBuffer *GBuffer
	Shadow  *ShadowPass

	ShadowParams *Control[ShadowParams]
	GBufferPush  *Control[shader.GBufferPush]
	LightingPush *Control[shader.LightingPush]
	SkyPush      *Control[shader.SkyPush]

	drawImageLayout driver.DescLayout
	drawImageSet    driver.DescSet
	depthSampler    driver.Sampler
	depthLayout     driver.DescLayout
	depthSet        driver.DescSet

	gbufferLayout  driver.PipelineLayout
	gbufferVert    ShaderObject
	gbufferFrag    ShaderObject
	lightingLayout driver.PipelineLayout
	lighting       ShaderObject
	skyLayout      driver.PipelineLayout
	sky            ShaderObject

	dirLights  *StagedBuffer[shader.DirectionalLightLayout]
	spotLights *StagedBuffer[shader.SpotLightLayout]

	warned [passCount]bool
}

// NewDeferredPipeline creates a deferred pipeline whose
// GBuffer has the given extent. Descriptor sets are
// allocated from alloc.
// Failures to create the GBuffer, the shadow pass or a
// shader are logged; they disable the affected passes.
func NewDeferredPipeline(ctx *Context, alloc *DescriptorAllocator, extent driver.Dim3D) (d *DeferredPipeline, err error) {
	srcs := readShaders(ctx, deferredShaders())
	d = &DeferredPipeline{
		ShadowParams: NewControl("ShadowParams", DefaultShadowParams()),
		GBufferPush:  NewControl("GBufferPush", shader.GBufferPush{}),
		LightingPush: NewControl("LightingPush", shader.LightingPush{}),
		SkyPush:      NewControl("SkyPush", shader.SkyPush{}),
		gbufferVert:  InvalidShader(gbufferVert, driver.SVertex),
		gbufferFrag:  InvalidShader(gbufferFrag, driver.SFragment),
		lighting:     InvalidShader(lightingComp, driver.SCompute),
		sky:          InvalidShader(skyComp, driver.SCompute),
	}
	defer func() {
		if err != nil {
			d.Cleanup()
			d = nil
		}
	}()

	if d.drawImageLayout, err = newDescLayout(ctx, shader.DrawImageDescs()); err != nil {
		return
	}
	if d.drawImageSet, err = alloc.Allocate(d.drawImageLayout); err != nil {
		return
	}
	if d.depthSampler, err = ctx.GPU().NewSampler(&driver.Sampling{
		Min:   driver.FNearest,
		Mag:   driver.FNearest,
		AddrU: driver.ABorder,
		AddrV: driver.ABorder,
		AddrW: driver.ABorder,
	}); err != nil {
		err = errors.Wrap(err, "engine: creating depth image sampler")
		return
	}
	if d.depthLayout, err = newDescLayout(ctx, shader.DepthImageDescs(d.depthSampler)); err != nil {
		return
	}
	if d.depthSet, err = alloc.Allocate(d.depthLayout); err != nil {
		return
	}

	if d.dirLights, err = NewStagedBuffer[shader.DirectionalLightLayout](ctx, driver.UShaderRead, maxDirectionalLights); err != nil {
		return
	}
	if d.spotLights, err = NewStagedBuffer[shader.SpotLightLayout](ctx, driver.UShaderRead, maxSpotLights); err != nil {
		return
	}

	var shadowLayout, gbufferLayout driver.DescLayout
	if s, serr := newShadowPass(ctx, alloc, &srcs[srcShadowVert], ctx.Config().ShadowMapSize); serr != nil {
		ctx.Logger().Warn("failed to create shadow pass", "err", serr)
	} else {
		d.Shadow = s
		shadowLayout = s.Layout
	}
	if g, gerr := NewGBuffer(ctx, alloc, extent.Width, extent.Height); gerr != nil {
		ctx.Logger().Warn("failed to create GBuffer", "err", gerr)
	} else {
		d.GBuffer = g
		gbufferLayout = g.Layout
	}

	// Only the vertex stage has push constants.
	d.gbufferLayout = newPipelineLayout(ctx, nil, &srcs[srcGBufferVert])
	d.gbufferVert = newShaderObject(ctx, &srcs[srcGBufferVert], d.gbufferLayout)
	d.gbufferFrag = newShaderObject(ctx, &srcs[srcGBufferFrag], d.gbufferLayout)

	d.lightingLayout = newPipelineLayout(ctx, []driver.DescLayout{
		shader.LightingDrawImage: d.drawImageLayout,
		shader.LightingGBuffer:   gbufferLayout,
		shader.LightingShadowMap: shadowLayout,
	}, &srcs[srcLighting])
	d.lighting = newShaderObject(ctx, &srcs[srcLighting], d.lightingLayout)

	d.skyLayout = newPipelineLayout(ctx, []driver.DescLayout{
		shader.SkyDrawImage:  d.drawImageLayout,
		shader.SkyDepthImage: d.depthLayout,
	}, &srcs[srcSky])
	d.sky = newShaderObject(ctx, &srcs[srcSky], d.skyLayout)
	return
}

// UpdateRenderTargets points the compute passes at the
// draw and depth images. It must be called before the
// first frame and whenever the images are recreated.
func (d *DeferredPipeline) UpdateRenderTargets(color, depth *AllocatedImage) {
	d.drawImageSet.SetImage(shader.DrawImageNr, color.View, driver.LCommon)
	d.depthSet.SetTexture(shader.DepthImageNr, depth.View, driver.LDSRead, nil)
}

// StageLights stages the given lights for the next
// frame. The camera of each directional light is pushed
// to cameras, which must not be copied to the device
// before this call.
// Lights that do not fit are dropped with a warning.
func (d *DeferredPipeline) StageLights(ctx *Context, cameras *StagedBuffer[shader.CameraLayout], dirs []DirectionalLight, spots []shader.SpotLightLayout) {
	d.dirLights.ClearStaged()
	for i := range dirs {
		idx := cameras.StagedSize()
		if d.dirLights.StagedSize() == d.dirLights.Capacity() || cameras.Push(dirs[i].Camera) != nil {
			ctx.Logger().Warn("directional light dropped: no room for its camera", "light", i)
			break
		}
		l := dirs[i].Light
		l.SetCamera(uint32(idx))
		d.dirLights.Push(l)
	}
	if len(spots) > d.spotLights.Capacity() {
		ctx.Logger().Warn("spot lights dropped", "have", len(spots), "max", d.spotLights.Capacity())
		spots = spots[:d.spotLights.Capacity()]
	}
	d.spotLights.Stage(spots)
}

// DrawParams are the inputs of a deferred frame.
// The buffers are borrowed for the duration of the call
// to RecordDrawCommands and must have been copied to the
// device in the same command buffer.
type DrawParams struct {
	// Color must be in layout LCommon. It remains so.
	Color *AllocatedImage
	// Depth ends in layout LDSRead.
	Depth *AllocatedImage
	// The area of Color and Depth to render.
	Extent driver.Dim3D

	CameraIndex     uint32
	Cameras         *StagedBuffer[shader.CameraLayout]
	AtmosphereIndex uint32
	Atmospheres     *StagedBuffer[shader.AtmosphereLayout]

	Mesh      *MeshAsset
	Instances *MeshInstances
}

// skip logs, once per pass, that the pass is skipped.
func (d *DeferredPipeline) skip(ctx *Context, pass int, reason string) {
	if !d.warned[pass] {
		ctx.Logger().Warn("deferred pass skipped", "pass", passNames[pass], "reason", reason)
		d.warned[pass] = true
	}
}

// shadowCamera returns the camera of the first staged
// directional light, or fallback if there is none.
func (d *DeferredPipeline) shadowCamera(fallback uint32) uint32 {
	if lights := d.dirLights.MapValidStaged(); len(lights) > 0 {
		return lights[0].Camera()
	}
	return fallback
}

// RecordDrawCommands records a deferred frame into cb.
func (d *DeferredPipeline) RecordDrawCommands(ctx *Context, cb driver.CmdBuffer, p *DrawParams) {
	d.dirLights.RecordCopyToDevice(cb)
	d.spotLights.RecordCopyToDevice(cb)

	const (
		bufStages = driver.SVertexShading | driver.SComputeShading
		bufAccess = driver.AShaderRead
	)
	p.Cameras.RecordTotalCopyBarrier(cb, bufStages, bufAccess)
	p.Atmospheres.RecordTotalCopyBarrier(cb, bufStages, bufAccess)
	p.Instances.Models.RecordTotalCopyBarrier(cb, bufStages, bufAccess)
	p.Instances.ModelInvTs.RecordTotalCopyBarrier(cb, bufStages, bufAccess)
	d.dirLights.RecordTotalCopyBarrier(cb, bufStages, bufAccess)
	d.spotLights.RecordTotalCopyBarrier(cb, bufStages, bufAccess)

	if d.Shadow != nil {
		d.Shadow.record(ctx, cb, &shadowDraw{
			mesh:        p.Mesh,
			models:      p.Instances.Models,
			cameras:     p.Cameras,
			cameraIndex: d.shadowCamera(p.CameraIndex),
			params:      d.ShadowParams.Value(),
		})
	} else {
		d.skip(ctx, passShadow, "no shadow map")
	}

	d.recordGBuffer(ctx, cb, p)

	transition(cb, p.Color.Image, driver.LUndefined, driver.LCommon)
	cb.ClearColor(p.Color.Image, driver.LCommon, [4]float32{1, 0, 0, 1})
	transition(cb, p.Color.Image, driver.LCommon, driver.LCommon)

	groups := [3]int{
		(p.Extent.Width + computeTile - 1) / computeTile,
		(p.Extent.Height + computeTile - 1) / computeTile,
		1,
	}

	switch {
	case d.GBuffer == nil || d.Shadow == nil:
		d.skip(ctx, passLighting, "missing GBuffer or shadow map")
	case !d.lighting.Valid():
		d.skip(ctx, passLighting, "invalid shader")
	default:
		push := shader.LightingPush{
			CameraBuffer:           p.Cameras.Addr(),
			AtmosphereBuffer:       p.Atmospheres.Addr(),
			DirectionalLightBuffer: d.dirLights.Addr(),
			SpotLightBuffer:        d.spotLights.Addr(),
			AtmosphereIndex:        p.AtmosphereIndex,
			CameraIndex:            p.CameraIndex,
			DirectionalLightCount:  uint32(d.dirLights.DeviceSize()),
			SpotLightCount:         uint32(d.spotLights.DeviceSize()),
		}
		d.LightingPush.Set(push)
		d.recordCompute(cb, &d.lighting, d.lightingLayout, []driver.DescSet{
			shader.LightingDrawImage: d.drawImageSet,
			shader.LightingGBuffer:   d.GBuffer.Set,
			shader.LightingShadowMap: d.Shadow.Set,
		}, shader.Bytes(&push), groups)
	}

	transition(cb, p.Color.Image, driver.LCommon, driver.LCommon)
	transition(cb, p.Depth.Image, driver.LDSTarget, driver.LDSRead)

	if !d.sky.Valid() {
		d.skip(ctx, passSky, "invalid shader")
		return
	}
	push := shader.SkyPush{
		AtmosphereBuffer: p.Atmospheres.Addr(),
		CameraBuffer:     p.Cameras.Addr(),
		AtmosphereIndex:  p.AtmosphereIndex,
		CameraIndex:      p.CameraIndex,
	}
	d.SkyPush.Set(push)
	d.recordCompute(cb, &d.sky, d.skyLayout, []driver.DescSet{
		shader.SkyDrawImage:  d.drawImageSet,
		shader.SkyDepthImage: d.depthSet,
	}, shader.Bytes(&push), groups)
}

// recordGBuffer renders the scene into the GBuffer and
// the depth image. The GBuffer ends in layout
// LShaderRead and the depth image in LDSTarget.
// Without a GBuffer, only depth is cleared.
func (d *DeferredPipeline) recordGBuffer(ctx *Context, cb driver.CmdBuffer, p *DrawParams) {
	var color []driver.ColorTarget
	if d.GBuffer != nil {
		d.GBuffer.recordTransition(cb, driver.LUndefined, driver.LColorTarget)
		color = d.GBuffer.colorTargets()
	}
	transition(cb, p.Depth.Image, driver.LUndefined, driver.LDSTarget)

	cb.BeginPass(&driver.PassDesc{
		Color: color,
		DS: &driver.DSTarget{
			View:  p.Depth.View,
			Load:  driver.LClear,
			Store: driver.SStore,
			Clear: driver.ClearValue{Depth: 0},
		},
		Width:  p.Extent.Width,
		Height: p.Extent.Height,
	})

	switch {
	case d.GBuffer == nil:
		d.skip(ctx, passGBuffer, "no GBuffer")
	case !d.gbufferVert.Valid() || !d.gbufferFrag.Valid():
		d.skip(ctx, passGBuffer, "invalid shader")
	case p.Mesh == nil || len(p.Mesh.Surfaces) == 0:
		d.skip(ctx, passGBuffer, "no mesh")
	default:
		rs := rasterState(p.Extent)
		rs.Cull = driver.CBack
		rs.ColorCount = shader.GBufferTargets
		for i := range shader.GBufferTargets {
			rs.WriteMask[i] = driver.CAll
		}
		cb.SetRaster(&rs)
		stages := []driver.Stage{driver.SVertex, driver.SFragment}
		cb.BindShaders(stages, []driver.Shader{d.gbufferVert.Shader(), d.gbufferFrag.Shader()})
		push := shader.GBufferPush{
			VertexBuffer:    p.Mesh.Buffers.VertexAddr(),
			ModelBuffer:     p.Instances.Models.Addr(),
			ModelInvTBuffer: p.Instances.ModelInvTs.Addr(),
			CameraBuffer:    p.Cameras.Addr(),
			CameraIndex:     p.CameraIndex,
		}
		d.GBufferPush.Set(push)
		d.gbufferVert.recordPush(cb, d.gbufferLayout, shader.Bytes(&push))
		// The whole index buffer is bound, but only the
		// first surface is drawn.
		surf := p.Mesh.Surfaces[0]
		cb.SetIndexBuf(driver.Index32, p.Mesh.Buffers.Index.Buffer, 0)
		cb.DrawIndexed(surf.IndexCount, p.Instances.Models.DeviceSize(), surf.FirstIndex, 0, 0)
		cb.BindShaders(stages, []driver.Shader{nil, nil})
	}

	cb.EndPass()
	if d.GBuffer != nil {
		d.GBuffer.recordTransition(cb, driver.LColorTarget, driver.LShaderRead)
	}
}

// recordCompute binds a compute shader with its sets,
// pushes data and dispatches groups.
func (d *DeferredPipeline) recordCompute(cb driver.CmdBuffer, sh *ShaderObject, layout driver.PipelineLayout, sets []driver.DescSet, data []byte, groups [3]int) {
	stages := []driver.Stage{driver.SCompute}
	cb.BindShaders(stages, []driver.Shader{sh.Shader()})
	cb.SetDescSets(layout, true, 0, sets)
	sh.recordPush(cb, layout, data)
	cb.Dispatch(groups[0], groups[1], groups[2])
	cb.BindShaders(stages, []driver.Shader{nil})
}

// Controls returns the controllers of the pipeline's
// parameters. The push constant controllers hold the
// values recorded last; setting them has no effect on
// the next frame.
func (d *DeferredPipeline) Controls() []Controller {
	return []Controller{d.ShadowParams, d.GBufferPush, d.LightingPush, d.SkyPush}
}

// Cleanup destroys everything that d owns.
// The GPU must be idle.
func (d *DeferredPipeline) Cleanup() {
	for _, s := range [...]*ShaderObject{&d.gbufferVert, &d.gbufferFrag, &d.lighting, &d.sky} {
		s.Cleanup()
	}
	for _, pl := range [...]*driver.PipelineLayout{&d.gbufferLayout, &d.lightingLayout, &d.skyLayout} {
		if *pl != nil {
			(*pl).Destroy()
			*pl = nil
		}
	}
	if d.Shadow != nil {
		d.Shadow.Cleanup()
		d.Shadow = nil
	}
	if d.GBuffer != nil {
		d.GBuffer.Cleanup()
		d.GBuffer = nil
	}
	if d.dirLights != nil {
		d.dirLights.Cleanup()
		d.dirLights = nil
	}
	if d.spotLights != nil {
		d.spotLights.Cleanup()
		d.spotLights = nil
	}
	for _, dl := range [...]*driver.DescLayout{&d.drawImageLayout, &d.depthLayout} {
		if *dl != nil {
			(*dl).Destroy()
			*dl = nil
		}
	}
	if d.depthSampler != nil {
		d.depthSampler.Destroy()
		d.depthSampler = nil
	}
	d.drawImageSet, d.depthSet = nil, nil
}
