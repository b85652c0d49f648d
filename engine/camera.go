// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package engine

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gviegas/deferred/engine/internal/shader"
)

// World axes.
// Y points down, matching the device's clip space, and
// cameras look down +Z.
var (
	worldUp      = mgl32.Vec3{0, -1, 0}
	worldRight   = mgl32.Vec3{1, 0, 0}
	worldForward = mgl32.Vec3{0, 0, 1}
)

// orientation returns the rotation described by euler
// angles: pitch about X, yaw about Y and roll about Z,
// applied in Z, X, Y order.
func orientation(euler mgl32.Vec3) mgl32.Quat {
	return mgl32.AnglesToQuat(euler[1], euler[0], euler[2], mgl32.YXZ)
}

// CameraParams describes the main camera.
type CameraParams struct {
	Position mgl32.Vec3
	// Pitch, yaw and roll in radians.
	EulerAngles mgl32.Vec3
	// Vertical field of view in degrees.
	FOV  float32
	Near float32
	Far  float32
}

// DefaultCameraParams returns the default main camera.
func DefaultCameraParams() CameraParams {
	return CameraParams{
		Position:    mgl32.Vec3{0, -8, -8},
		EulerAngles: mgl32.Vec3{-0.3, 0, 0},
		FOV:         70,
		Near:        0.1,
		Far:         10000,
	}
}

// Forward returns the direction that the camera faces.
func (p *CameraParams) Forward() mgl32.Vec3 {
	return orientation(p.EulerAngles).Rotate(worldForward)
}

// view returns the view matrix of a camera at pos with
// the given orientation.
func view(pos mgl32.Vec3, q mgl32.Quat) mgl32.Mat4 {
	return q.Inverse().Mat4().Mul4(mgl32.Translate3D(-pos[0], -pos[1], -pos[2]))
}

// perspectiveRZ returns a perspective projection that
// maps the near plane to depth 1 and the far plane to
// depth 0. fovy is in radians.
func perspectiveRZ(fovy, aspect, near, far float32) mgl32.Mat4 {
	f := float32(1 / math.Tan(float64(fovy)/2))
	var m mgl32.Mat4
	m[0] = f / aspect
	m[5] = f
	m[10] = near / (near - far)
	m[11] = 1
	m[14] = near * far / (far - near)
	return m
}

// orthoRZ returns an orthographic projection of the box
// [left, right]x[top, bottom]x[near, far] that maps near
// to depth 1 and far to depth 0.
func orthoRZ(left, right, top, bottom, near, far float32) mgl32.Mat4 {
	var m mgl32.Mat4
	m[0] = 2 / (right - left)
	m[5] = 2 / (bottom - top)
	m[10] = -1 / (far - near)
	m[12] = -(right + left) / (right - left)
	m[13] = -(bottom + top) / (bottom - top)
	m[14] = far / (far - near)
	m[15] = 1
	return m
}

// cameraLayout fills a shader.CameraLayout.
func cameraLayout(proj, view *mgl32.Mat4, pos, fwd mgl32.Vec3, near, far float32) shader.CameraLayout {
	var l shader.CameraLayout
	vp := proj.Mul4(*view)
	l.SetP(proj)
	l.SetV(view)
	l.SetVP(&vp)
	l.SetPosition(pos)
	l.SetForward(fwd)
	l.SetPlanes(near, far)
	return l
}

// Layout returns the perspective camera for the given
// aspect ratio.
func (p *CameraParams) Layout(aspect float32) shader.CameraLayout {
	q := orientation(p.EulerAngles)
	proj := perspectiveRZ(mgl32.DegToRad(p.FOV), aspect, p.Near, p.Far)
	v := view(p.Position, q)
	return cameraLayout(&proj, &v, p.Position, q.Rotate(worldForward), p.Near, p.Far)
}

// OrthographicLayout returns an orthographic camera
// whose view volume is size units tall.
func (p *CameraParams) OrthographicLayout(aspect, size float32) shader.CameraLayout {
	q := orientation(p.EulerAngles)
	hw, hh := size*aspect/2, size/2
	proj := orthoRZ(-hw, hw, -hh, hh, p.Near, p.Far)
	v := view(p.Position, q)
	return cameraLayout(&proj, &v, p.Position, q.Rotate(worldForward), p.Near, p.Far)
}

// orthographicSize is the height of the main camera's
// view volume when Config.Orthographic is set.
const orthographicSize = 5
