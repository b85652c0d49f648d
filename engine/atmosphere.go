// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package engine

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gviegas/deferred/engine/internal/shader"
)

// AtmosphereAnimation controls the motion of the sun.
type AtmosphereAnimation struct {
	Animate bool
	// Jump over the part of the cycle in which the sun
	// is below the horizon.
	SkipNight bool
	// Radians per second.
	Speed float32
}

// AtmosphereParams describes a planet's atmosphere and
// the position of its sun.
type AtmosphereParams struct {
	// Orientation of the direction to the sun.
	SunEulerAngles mgl32.Vec3

	EarthRadius      float32
	AtmosphereRadius float32
	GroundColor      mgl32.Vec3

	ScatteringCoefficientRayleigh mgl32.Vec3
	AltitudeDecayRayleigh         float32
	ScatteringCoefficientMie      mgl32.Vec3
	AltitudeDecayMie              float32

	Animation AtmosphereAnimation
}

// DefaultAtmosphereParams returns the default
// atmosphere, which is Earth's.
func DefaultAtmosphereParams() AtmosphereParams {
	return AtmosphereParams{
		SunEulerAngles:                mgl32.Vec3{1, 0, 0},
		EarthRadius:                   6378000,
		AtmosphereRadius:              6420000,
		GroundColor:                   mgl32.Vec3{0.9, 0.8, 0.6},
		ScatteringCoefficientRayleigh: mgl32.Vec3{3.8e-6, 13.5e-6, 33.1e-6},
		AltitudeDecayRayleigh:         7994,
		ScatteringCoefficientMie:      mgl32.Vec3{21e-6, 21e-6, 21e-6},
		AltitudeDecayMie:              1200,
		Animation: AtmosphereAnimation{
			Animate:   false,
			SkipNight: false,
			Speed:     0.1,
		},
	}
}

// DirectionToSun returns the unit vector pointing at the
// sun.
func (p *AtmosphereParams) DirectionToSun() mgl32.Vec3 {
	return orientation(p.SunEulerAngles).Rotate(worldForward).Normalize()
}

// sunTime returns the sun's height above the horizon,
// which stands in for the time of day.
func sunTime(dirToSun mgl32.Vec3) float32 { return worldUp.Dot(dirToSun) }

// Sun height below which it is night.
const nightTime = -0.11

// sunriseAngle is the pitch at which the sun rises
// when the pitch increases.
var sunriseAngle = float32(math.Asin(0.1))

// sunlightColor approximates the color of sunlight that
// crossed the atmosphere at the given sun height.
// Shorter wavelengths are attenuated more the longer the
// path through the atmosphere is.
func (p *AtmosphereParams) sunlightColor(time float32) mgl32.Vec3 {
	// Relative optical depth, infinite below the horizon.
	h := max(float64(time), 1e-3)
	depth := float32(1 / h)
	scale := (p.AtmosphereRadius - p.EarthRadius) / 4
	var c mgl32.Vec3
	for i := range c {
		ext := (p.ScatteringCoefficientRayleigh[i] + p.ScatteringCoefficientMie[i]) * scale
		c[i] = float32(math.Exp(float64(-ext * depth)))
	}
	return c
}

// Layout returns the atmosphere as read by shaders.
func (p *AtmosphereParams) Layout() shader.AtmosphereLayout {
	var l shader.AtmosphereLayout
	dir := p.DirectionToSun()
	l.SetSunDirection(dir)
	l.SetSunlightColor(p.sunlightColor(sunTime(dir)))
	l.SetRadii(p.EarthRadius, p.AtmosphereRadius)
	l.SetGroundColor(p.GroundColor)
	l.SetRayleigh(p.ScatteringCoefficientRayleigh, p.AltitudeDecayRayleigh)
	l.SetMie(p.ScatteringCoefficientMie, p.AltitudeDecayMie)
	return l
}

// animate advances the sun by dt seconds.
// Angles are kept in [0, 2π).
func (p *AtmosphereParams) animate(dt float64) {
	anim := p.Animation
	if !anim.Animate {
		return
	}
	night := sunTime(p.DirectionToSun()) < nightTime
	switch {
	case night && anim.SkipNight && anim.Speed > 0:
		p.SunEulerAngles[0] = sunriseAngle
	case night && anim.SkipNight:
		p.SunEulerAngles[0] = math.Pi - sunriseAngle
	default:
		p.SunEulerAngles[0] += float32(dt) * anim.Speed
	}
	for i := range p.SunEulerAngles {
		a := math.Mod(float64(p.SunEulerAngles[i]), 2*math.Pi)
		if a < 0 {
			a += 2 * math.Pi
		}
		p.SunEulerAngles[i] = float32(a)
	}
}
