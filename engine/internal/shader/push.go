// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package shader

import (
	"unsafe"
)

// GBufferPush is the push constant of the GBuffer vertex
// shader.
type GBufferPush struct {
	VertexBuffer    uint64
	ModelBuffer     uint64
	ModelInvTBuffer uint64
	CameraBuffer    uint64
	CameraIndex     uint32
	_               [3]uint32
}

// ShadowPush is the push constant of the shadow vertex
// shader.
type ShadowPush struct {
	VertexBuffer uint64
	ModelBuffer  uint64
	CameraBuffer uint64
	CameraIndex  uint32
	_            uint32
}

// LightingPush is the push constant of the lighting
// compute shader.
type LightingPush struct {
	CameraBuffer           uint64
	AtmosphereBuffer       uint64
	DirectionalLightBuffer uint64
	SpotLightBuffer        uint64
	AtmosphereIndex        uint32
	CameraIndex            uint32
	DirectionalLightCount  uint32
	SpotLightCount         uint32
}

// SkyPush is the push constant of the sky compute
// shader.
type SkyPush struct {
	AtmosphereBuffer uint64
	CameraBuffer     uint64
	AtmosphereIndex  uint32
	CameraIndex      uint32
	_                [2]uint32
}

// LinePush is the push constant of the debug line
// vertex shader.
type LinePush struct {
	VertexBuffer uint64
	CameraBuffer uint64
	CameraIndex  uint32
	_            [3]uint32
}

// Bytes returns the memory of *p as a byte slice.
// T must not contain pointers.
func Bytes[T any](p *T) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(p)), unsafe.Sizeof(*p))
}
