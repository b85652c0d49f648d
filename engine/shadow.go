// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package engine

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"

	"github.com/gviegas/deferred/driver"
	"github.com/gviegas/deferred/engine/internal/shader"
)

// ShadowParams controls the depth bias of the shadow
// pass.
type ShadowParams struct {
	DepthBiasConstant float32
	DepthBiasSlope    float32
}

// DefaultShadowParams returns the default shadow pass
// parameters.
func DefaultShadowParams() ShadowParams {
	return ShadowParams{
		DepthBiasConstant: 2,
		DepthBiasSlope:    -5,
	}
}

// ShadowPass renders scene depth from the point of view
// of a single light into a square depth image whose size
// does not depend on the swapchain.
type ShadowPass struct {
	Depth  *AllocatedImage
	Layout driver.DescLayout
	Set    driver.DescSet

	sampler    driver.Sampler
	pipeLayout driver.PipelineLayout
	vert       ShaderObject
	warned     bool
}

// newShadowPass creates the depth image, its descriptor
// set and the depth-only vertex shader read into src.
// An unusable shader is logged and leaves the pass able
// only to clear its depth image.
func newShadowPass(ctx *Context, alloc *DescriptorAllocator, src *shaderSource, size int) (s *ShadowPass, err error) {
	s = &ShadowPass{vert: InvalidShader(src.req.Path, driver.SVertex)}
	defer func() {
		if err != nil {
			s.Cleanup()
			s = nil
		}
	}()

	extent := driver.Dim3D{Width: size, Height: size, Depth: 1}
	if s.Depth, err = AllocateImage(ctx, driver.D32f, extent, driver.URenderTarget|driver.UShaderSample); err != nil {
		return
	}
	if s.sampler, err = ctx.GPU().NewSampler(&driver.Sampling{
		Min:   driver.FNearest,
		Mag:   driver.FNearest,
		AddrU: driver.ABorder,
		AddrV: driver.ABorder,
		AddrW: driver.ABorder,
	}); err != nil {
		err = errors.Wrap(err, "engine: creating shadow map sampler")
		return
	}
	if s.Layout, err = newDescLayout(ctx, shader.ShadowMapDescs(s.sampler)); err != nil {
		return
	}
	if s.Set, err = alloc.Allocate(s.Layout); err != nil {
		return
	}
	s.Set.SetTexture(shader.ShadowMapNr, s.Depth.View, driver.LDSRead, nil)

	s.pipeLayout = newPipelineLayout(ctx, nil, src)
	s.vert = newShaderObject(ctx, src, s.pipeLayout)
	return
}

// shadowDraw is the input of ShadowPass.record.
type shadowDraw struct {
	mesh        *MeshAsset
	models      *StagedBuffer[mgl32.Mat4]
	cameras     *StagedBuffer[shader.CameraLayout]
	cameraIndex uint32
	params      ShadowParams
}

// record renders the depth of d.mesh as seen from
// camera d.cameraIndex. The depth image ends in layout
// LDSRead.
func (s *ShadowPass) record(ctx *Context, cb driver.CmdBuffer, d *shadowDraw) {
	extent := s.Depth.Extent
	transition(cb, s.Depth.Image, driver.LUndefined, driver.LDSTarget)
	cb.BeginPass(&driver.PassDesc{
		DS: &driver.DSTarget{
			View:  s.Depth.View,
			Load:  driver.LClear,
			Store: driver.SStore,
			Clear: driver.ClearValue{Depth: 0},
		},
		Width:  extent.Width,
		Height: extent.Height,
	})

	switch {
	case !s.vert.Valid():
		if !s.warned {
			ctx.Logger().Warn("shadow pass skipped: invalid shader", "shader", s.vert.Name())
			s.warned = true
		}
	case d.mesh == nil || len(d.mesh.Surfaces) == 0:
	default:
		rs := rasterState(extent)
		rs.DepthBias = true
		rs.BiasValue = d.params.DepthBiasConstant
		rs.BiasSlope = d.params.DepthBiasSlope
		cb.SetRaster(&rs)
		stages := []driver.Stage{driver.SVertex, driver.SFragment}
		cb.BindShaders(stages, []driver.Shader{s.vert.Shader(), nil})
		push := shader.ShadowPush{
			VertexBuffer: d.mesh.Buffers.VertexAddr(),
			ModelBuffer:  d.models.Addr(),
			CameraBuffer: d.cameras.Addr(),
			CameraIndex:  d.cameraIndex,
		}
		s.vert.recordPush(cb, s.pipeLayout, shader.Bytes(&push))
		surf := d.mesh.Surfaces[0]
		cb.SetIndexBuf(driver.Index32, d.mesh.Buffers.Index.Buffer, 0)
		cb.DrawIndexed(surf.IndexCount, d.models.DeviceSize(), surf.FirstIndex, 0, 0)
		cb.BindShaders(stages, []driver.Shader{nil, nil})
	}

	cb.EndPass()
	transition(cb, s.Depth.Image, driver.LDSTarget, driver.LDSRead)
}

// Cleanup destroys everything that s owns.
func (s *ShadowPass) Cleanup() {
	s.vert.Cleanup()
	if s.pipeLayout != nil {
		s.pipeLayout.Destroy()
		s.pipeLayout = nil
	}
	if s.Depth != nil {
		s.Depth.Cleanup()
		s.Depth = nil
	}
	if s.Layout != nil {
		s.Layout.Destroy()
		s.Layout = nil
	}
	if s.sampler != nil {
		s.sampler.Destroy()
		s.sampler = nil
	}
	s.Set = nil
}
