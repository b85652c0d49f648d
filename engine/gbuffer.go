// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package engine

import (
	"github.com/pkg/errors"

	"github.com/gviegas/deferred/driver"
	"github.com/gviegas/deferred/engine/internal/shader"
)

// GBuffer formats, indexed by binding number.
var gbufferFormats = [shader.GBufferTargets]driver.PixelFmt{
	shader.DiffuseNr:  driver.RGBA16f,
	shader.SpecularNr: driver.RGBA16f,
	shader.NormalNr:   driver.RGBA16f,
	shader.PositionNr: driver.RGBA32f,
}

// GBuffer is the set of color targets that the geometry
// pass writes and the lighting pass samples.
// Every target has the same extent.
type GBuffer struct {
	Diffuse  *AllocatedImage
	Specular *AllocatedImage
	Normal   *AllocatedImage
	Position *AllocatedImage

	Layout  driver.DescLayout
	Set     driver.DescSet
	sampler driver.Sampler
}

// NewGBuffer creates the targets of a GBuffer with the
// given extent and a descriptor set, allocated from
// alloc, that exposes them in binding order.
func NewGBuffer(ctx *Context, alloc *DescriptorAllocator, width, height int) (g *GBuffer, err error) {
	g = new(GBuffer)
	defer func() {
		if err != nil {
			g.Cleanup()
			g = nil
		}
	}()

	extent := driver.Dim3D{Width: width, Height: height, Depth: 1}
	for i, p := range g.targets() {
		if *p, err = AllocateImage(ctx, gbufferFormats[i], extent, driver.URenderTarget|driver.UShaderSample); err != nil {
			return
		}
	}

	if g.sampler, err = ctx.GPU().NewSampler(&driver.Sampling{
		Min:   driver.FNearest,
		Mag:   driver.FNearest,
		AddrU: driver.AClamp,
		AddrV: driver.AClamp,
		AddrW: driver.AClamp,
	}); err != nil {
		err = errors.Wrap(err, "engine: creating GBuffer sampler")
		return
	}
	if g.Layout, err = newDescLayout(ctx, shader.GBufferDescs(g.sampler)); err != nil {
		return
	}
	if g.Set, err = alloc.Allocate(g.Layout); err != nil {
		return
	}
	for i, p := range g.targets() {
		g.Set.SetTexture(i, (*p).View, driver.LShaderRead, nil)
	}
	return
}

// targets returns pointers to the four targets, indexed
// by binding number.
func (g *GBuffer) targets() [shader.GBufferTargets]**AllocatedImage {
	return [...]**AllocatedImage{
		shader.DiffuseNr:  &g.Diffuse,
		shader.SpecularNr: &g.Specular,
		shader.NormalNr:   &g.Normal,
		shader.PositionNr: &g.Position,
	}
}

// Images returns the four targets in binding order.
func (g *GBuffer) Images() [shader.GBufferTargets]*AllocatedImage {
	return [...]*AllocatedImage{g.Diffuse, g.Specular, g.Normal, g.Position}
}

// Extent returns the extent shared by the targets.
func (g *GBuffer) Extent() driver.Dim3D { return g.Diffuse.Extent }

// recordTransition records a transition of every target.
func (g *GBuffer) recordTransition(cb driver.CmdBuffer, before, after driver.Layout) {
	var t [shader.GBufferTargets]driver.Transition
	for i, img := range g.Images() {
		t[i] = transitionOf(img.Image, before, after)
	}
	cb.Transition(t[:])
}

// colorTargets returns the pass targets that clear every
// image to zero.
func (g *GBuffer) colorTargets() []driver.ColorTarget {
	ct := make([]driver.ColorTarget, 0, shader.GBufferTargets)
	for _, img := range g.Images() {
		ct = append(ct, driver.ColorTarget{
			View:  img.View,
			Load:  driver.LClear,
			Store: driver.SStore,
		})
	}
	return ct
}

// Cleanup destroys the targets, the layout and the
// sampler. The set returns to the allocator's pool when
// the pool is cleared.
func (g *GBuffer) Cleanup() {
	for _, p := range g.targets() {
		if *p != nil {
			(*p).Cleanup()
			*p = nil
		}
	}
	if g.Layout != nil {
		g.Layout.Destroy()
		g.Layout = nil
	}
	if g.sampler != nil {
		g.sampler.Destroy()
		g.sampler = nil
	}
	g.Set = nil
}
