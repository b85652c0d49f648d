// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package engine

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/gviegas/deferred/engine/internal/shader"
)

// maxDirectionalLights is the number of directional
// lights that can be active at once: the sun and the
// moon overlap around sunset.
const maxDirectionalLights = 2

// maxSpotLights is the capacity of the spot light
// buffer.
const maxSpotLights = 8

// SceneBounds is the box that directional light cameras
// must enclose.
type SceneBounds struct {
	Center mgl32.Vec3
	Extent mgl32.Vec3
}

// DefaultSceneBounds returns bounds that enclose the
// default world.
func DefaultSceneBounds() SceneBounds {
	return SceneBounds{
		Center: mgl32.Vec3{0, -4, 0},
		Extent: mgl32.Vec3{40, 5, 40},
	}
}

// lookRotation returns the rotation that takes the
// world's forward axis to fwd.
func lookRotation(fwd mgl32.Vec3) mgl32.Quat {
	return mgl32.QuatBetweenVectors(worldForward, fwd.Normalize())
}

// DirectionalLight is a directional light and the camera
// that its shadows are rendered from.
type DirectionalLight struct {
	Light  shader.DirectionalLightLayout
	Camera shader.CameraLayout
}

// makeDirectional creates a light travelling along fwd.
// Its camera is an orthographic projection that encloses
// bounds.
func makeDirectional(color mgl32.Vec4, strength float32, fwd mgl32.Vec3, bounds *SceneBounds) DirectionalLight {
	fwd = fwd.Normalize()
	q := lookRotation(fwd)
	r := max(bounds.Extent.Len(), 1e-3)
	eye := bounds.Center.Sub(fwd.Mul(r))
	proj := orthoRZ(-r, r, -r, r, 0, 2*r)
	v := view(eye, q)

	var d DirectionalLight
	d.Light.SetColor(color)
	d.Light.SetForward(fwd)
	d.Light.SetStrength(strength)
	d.Camera = cameraLayout(&proj, &v, eye, fwd, 0, 2*r)
	return d
}

// makeSpot creates a spot light at pos pointing along
// fwd. vfov is in degrees and hscale is the aspect ratio
// of its projection.
func makeSpot(color mgl32.Vec4, strength, falloffFactor, falloffDistance, vfov, hscale float32, fwd, pos mgl32.Vec3, near, far float32) shader.SpotLightLayout {
	fwd = fwd.Normalize()
	proj := perspectiveRZ(mgl32.DegToRad(vfov), hscale, near, far)
	v := view(pos, lookRotation(fwd))

	var l shader.SpotLightLayout
	l.SetColor(color)
	l.SetStrength(strength)
	l.SetFalloff(falloffFactor, falloffDistance)
	l.SetForward(fwd)
	l.SetPosition(pos)
	l.SetP(&proj)
	l.SetV(&v)
	return l
}

// Sun and moon parameters.
const (
	sunStrength = 0.5
	// Sun height below which the moon shines.
	timeSunset = 0.06
	// Sun height range over which the moon rises.
	moonrisePeriod = 0.08
	moonStrength   = 0.1
)

// moonForward points straight down.
var moonForward = orientation(mgl32.Vec3{-1.5708, 0, 0}).Rotate(worldForward)

// directionalLights returns the lights of the given
// atmosphere: the sun while it is above the horizon and
// the moon around and after sunset. A nil atmosphere
// yields a single white light pointing down.
func directionalLights(atmos *shader.AtmosphereLayout, bounds *SceneBounds) []DirectionalLight {
	if atmos == nil {
		return []DirectionalLight{makeDirectional(mgl32.Vec4{1, 1, 1, 1}, 1, moonForward, bounds)}
	}
	lights := make([]DirectionalLight, 0, maxDirectionalLights)
	dir := atmos.SunDirection()
	time := sunTime(dir)
	if time > 0 {
		lights = append(lights, makeDirectional(atmos.SunlightColor().Vec4(1), sunStrength, dir.Mul(-1), bounds))
	}
	if time < timeSunset {
		strength := float32(moonStrength)
		if time >= timeSunset-moonrisePeriod {
			strength *= mgl32.Abs(time-timeSunset) / moonrisePeriod
		}
		color := mgl32.Vec3{0.3, 0.4, 0.6}.Normalize().Vec4(1)
		lights = append(lights, makeDirectional(color, strength, moonForward, bounds))
	}
	return lights
}

// spotLights returns the fixed spot lights of the
// default world.
func spotLights() []shader.SpotLightLayout {
	return []shader.SpotLightLayout{
		makeSpot(mgl32.Vec4{0, 1, 0, 1}, 30, 1, 1, 60, 1,
			mgl32.Vec3{-1, 0, 1}, mgl32.Vec3{-8, -10, -2}, 0.1, 1000),
		makeSpot(mgl32.Vec4{1, 0, 0, 1}, 30, 1, 1, 60, 1,
			mgl32.Vec3{-1, 0, -1}, mgl32.Vec3{8, -10, 2}, 0.1, 1000),
	}
}
