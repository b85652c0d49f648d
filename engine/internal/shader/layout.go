// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package shader

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// CameraLayout is the layout of camera data.
// It is defined as follows:
//
//	[0:16]  | projection matrix
//	[16:32] | view matrix
//	[32:48] | view-projection matrix
//	[48:51] | world position
//	[51]    | near plane
//	[52:55] | forward direction
//	[55]    | far plane
//	[56:64] | (unused)
type CameraLayout [64]float32

// SetP sets the projection matrix.
func (l *CameraLayout) SetP(m *mgl32.Mat4) { copy(l[:16], m[:]) }

// SetV sets the view matrix.
func (l *CameraLayout) SetV(m *mgl32.Mat4) { copy(l[16:32], m[:]) }

// SetVP sets the view-projection matrix.
func (l *CameraLayout) SetVP(m *mgl32.Mat4) { copy(l[32:48], m[:]) }

// SetPosition sets the world position.
func (l *CameraLayout) SetPosition(p mgl32.Vec3) { l[48], l[49], l[50] = p[0], p[1], p[2] }

// SetForward sets the forward direction.
func (l *CameraLayout) SetForward(d mgl32.Vec3) { l[52], l[53], l[54] = d[0], d[1], d[2] }

// SetPlanes sets the near and far planes.
func (l *CameraLayout) SetPlanes(near, far float32) { l[51], l[55] = near, far }

// P returns the projection matrix.
func (l *CameraLayout) P() mgl32.Mat4 { return mgl32.Mat4(l[:16]) }

// V returns the view matrix.
func (l *CameraLayout) V() mgl32.Mat4 { return mgl32.Mat4(l[16:32]) }

// VP returns the view-projection matrix.
func (l *CameraLayout) VP() mgl32.Mat4 { return mgl32.Mat4(l[32:48]) }

// AtmosphereLayout is the layout of atmosphere data.
// It is defined as follows:
//
//	[0:3]   | direction to the sun
//	[3]     | earth radius
//	[4:7]   | sunlight color
//	[7]     | atmosphere radius
//	[8:11]  | ground color
//	[11]    | Rayleigh scale height
//	[12:15] | Rayleigh scattering coefficient
//	[15]    | Mie scale height
//	[16:19] | Mie scattering coefficient
//	[19:32] | (unused)
type AtmosphereLayout [32]float32

// SetSunDirection sets the direction to the sun.
func (l *AtmosphereLayout) SetSunDirection(d mgl32.Vec3) { l[0], l[1], l[2] = d[0], d[1], d[2] }

// SunDirection returns the direction to the sun.
func (l *AtmosphereLayout) SunDirection() mgl32.Vec3 { return mgl32.Vec3{l[0], l[1], l[2]} }

// SetSunlightColor sets the sunlight color.
func (l *AtmosphereLayout) SetSunlightColor(c mgl32.Vec3) { l[4], l[5], l[6] = c[0], c[1], c[2] }

// SunlightColor returns the sunlight color.
func (l *AtmosphereLayout) SunlightColor() mgl32.Vec3 { return mgl32.Vec3{l[4], l[5], l[6]} }

// SetRadii sets the earth and atmosphere radii.
func (l *AtmosphereLayout) SetRadii(earth, atmosphere float32) { l[3], l[7] = earth, atmosphere }

// SetGroundColor sets the ground color.
func (l *AtmosphereLayout) SetGroundColor(c mgl32.Vec3) { l[8], l[9], l[10] = c[0], c[1], c[2] }

// SetRayleigh sets the Rayleigh scattering coefficient
// and scale height.
func (l *AtmosphereLayout) SetRayleigh(coef mgl32.Vec3, height float32) {
	l[12], l[13], l[14] = coef[0], coef[1], coef[2]
	l[11] = height
}

// SetMie sets the Mie scattering coefficient and scale
// height.
func (l *AtmosphereLayout) SetMie(coef mgl32.Vec3, height float32) {
	l[16], l[17], l[18] = coef[0], coef[1], coef[2]
	l[15] = height
}

// DirectionalLightLayout is the layout of directional
// light data.
// It is defined as follows:
//
//	[0:4]  | color
//	[4:7]  | forward direction
//	[7]    | strength
//	[8]    | camera index (uint32)
//	[9:12] | (unused)
type DirectionalLightLayout [12]float32

// SetColor sets the color.
func (l *DirectionalLightLayout) SetColor(c mgl32.Vec4) { copy(l[:4], c[:]) }

// SetForward sets the forward direction.
func (l *DirectionalLightLayout) SetForward(d mgl32.Vec3) { l[4], l[5], l[6] = d[0], d[1], d[2] }

// SetStrength sets the strength.
func (l *DirectionalLightLayout) SetStrength(s float32) { l[7] = s }

// Strength returns the strength.
func (l *DirectionalLightLayout) Strength() float32 { return l[7] }

// SetCamera sets the index of the light's camera.
func (l *DirectionalLightLayout) SetCamera(idx uint32) { l[8] = math.Float32frombits(idx) }

// Camera returns the index of the light's camera.
func (l *DirectionalLightLayout) Camera() uint32 { return math.Float32bits(l[8]) }

// SpotLightLayout is the layout of spot light data.
// It is defined as follows:
//
//	[0:4]   | color
//	[4]     | strength
//	[5]     | falloff factor
//	[6]     | falloff distance
//	[7]     | (unused)
//	[8:11]  | forward direction
//	[11]    | (unused)
//	[12:15] | world position
//	[15]    | (unused)
//	[16:32] | projection matrix
//	[32:48] | view matrix
type SpotLightLayout [48]float32

// SetColor sets the color.
func (l *SpotLightLayout) SetColor(c mgl32.Vec4) { copy(l[:4], c[:]) }

// SetStrength sets the strength.
func (l *SpotLightLayout) SetStrength(s float32) { l[4] = s }

// SetFalloff sets the falloff factor and distance.
func (l *SpotLightLayout) SetFalloff(factor, distance float32) { l[5], l[6] = factor, distance }

// SetForward sets the forward direction.
func (l *SpotLightLayout) SetForward(d mgl32.Vec3) { l[8], l[9], l[10] = d[0], d[1], d[2] }

// SetPosition sets the world position.
func (l *SpotLightLayout) SetPosition(p mgl32.Vec3) { l[12], l[13], l[14] = p[0], p[1], p[2] }

// SetP sets the projection matrix.
func (l *SpotLightLayout) SetP(m *mgl32.Mat4) { copy(l[16:32], m[:]) }

// SetV sets the view matrix.
func (l *SpotLightLayout) SetV(m *mgl32.Mat4) { copy(l[32:48], m[:]) }
