// Copyright 2023 Gustavo C. Viegas. All rights reserved.

// Descriptor set layouts of the deferred shaders.
//
// The lighting shader uses the following sets:
//
//	LightingDrawImage | DImage at DrawImageNr
//	LightingGBuffer   | DTexture at DiffuseNr..PositionNr
//	LightingShadowMap | DTexture at ShadowMapNr (immutable sampler)
//
// The sky shader uses the following sets:
//
//	SkyDrawImage  | DImage at DrawImageNr
//	SkyDepthImage | DTexture at DepthImageNr (immutable sampler)
//
// (the above names refer to the driver package).

package shader

import (
	"github.com/gviegas/deferred/driver"
)

// Set indices of the lighting shader.
const (
	LightingDrawImage = iota
	LightingGBuffer
	LightingShadowMap
)

// Set indices of the sky shader.
const (
	SkyDrawImage = iota
	SkyDepthImage
)

// Binding numbers.
const (
	DrawImageNr = 0

	DiffuseNr  = 0
	SpecularNr = 1
	NormalNr   = 2
	PositionNr = 3

	ShadowMapNr  = 0
	DepthImageNr = 0
)

// GBufferTargets is the number of color targets that
// the GBuffer shader writes.
const GBufferTargets = PositionNr + 1

func imageDesc(nr int, stages driver.Stage) driver.Descriptor {
	return driver.Descriptor{
		Type:   driver.DImage,
		Stages: stages,
		Nr:     nr,
		Len:    1,
	}
}

func textureDesc(nr int, stages driver.Stage, splr driver.Sampler) driver.Descriptor {
	return driver.Descriptor{
		Type:    driver.DTexture,
		Stages:  stages,
		Nr:      nr,
		Len:     1,
		Sampler: splr,
	}
}

// DrawImageDescs describes the storage image that the
// compute passes write.
func DrawImageDescs() []driver.Descriptor {
	return []driver.Descriptor{imageDesc(DrawImageNr, driver.SCompute)}
}

// GBufferDescs describes the GBuffer targets as sampled
// by the lighting shader, in binding order.
// splr may be nil, in which case a sampler must be given
// when the set is updated.
func GBufferDescs(splr driver.Sampler) []driver.Descriptor {
	return []driver.Descriptor{
		textureDesc(DiffuseNr, driver.SCompute, splr),
		textureDesc(SpecularNr, driver.SCompute, splr),
		textureDesc(NormalNr, driver.SCompute, splr),
		textureDesc(PositionNr, driver.SCompute, splr),
	}
}

// ShadowMapDescs describes the shadow map as sampled by
// the lighting shader.
func ShadowMapDescs(splr driver.Sampler) []driver.Descriptor {
	return []driver.Descriptor{textureDesc(ShadowMapNr, driver.SCompute, splr)}
}

// DepthImageDescs describes the scene depth as sampled
// by the sky shader.
func DepthImageDescs(splr driver.Sampler) []driver.Descriptor {
	return []driver.Descriptor{textureDesc(DepthImageNr, driver.SCompute, splr)}
}
