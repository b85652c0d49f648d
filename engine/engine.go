// Copyright 2023 Gustavo C. Viegas. All rights reserved.

// Package engine implements a deferred shading renderer.
//
// A frame is recorded in a fixed order: staged buffers
// are copied to the device and barrier-gated, then the
// shadow map and the GBuffer are rendered, then compute
// passes light the scene and composite the sky into the
// draw image, which is finally blitted to the swapchain.
package engine

import (
	"time"

	"github.com/pkg/errors"
)

const (
	// The minimum number of frames in flight.
	MinFrame = 2

	dflFramesInFlight   = MinFrame
	dflTargetFPS        = 144
	dflFenceTimeout     = time.Second
	dflImmediateTimeout = 100 * time.Second
	dflShadowMapSize    = 16384
	dflMaxCameras       = 20
	dflMaxAtmospheres   = 1
	dflMaxDebugLines    = 1000
	dflMaxDrawExtent    = 4096
	dflShaderDir        = "shaders"
	dflDescMaxSets      = 10
	dflWorldExtent      = 40
)

// Config is used to configure the engine.
type Config struct {
	// The number of frames in flight.
	// It must be at least MinFrame.
	//
	// Default is 2.
	FramesInFlight int

	// The frame rate that the main loop aims for.
	// Iterations that arrive earlier than 1/TargetFPS
	// only poll events.
	//
	// Default is 144.
	TargetFPS int

	// How long to wait on a frame's fence before
	// declaring the GPU hung.
	//
	// Default is 1s.
	FenceTimeout time.Duration

	// How long to wait on an immediate submission.
	//
	// Default is 100s.
	ImmediateTimeout time.Duration

	// The width and height of the shadow map.
	//
	// Default is 16384.
	ShadowMapSize int

	// The capacity of the camera buffer.
	// It includes the main camera and the cameras of
	// directional lights.
	//
	// Default is 20.
	MaxCameras int

	// The capacity of the atmosphere buffer.
	//
	// Default is 1.
	MaxAtmospheres int

	// The maximum number of debug lines per frame.
	//
	// Default is 1000.
	MaxDebugLines int

	// The size of the draw image. The rendered area is
	// its intersection with the swapchain extent.
	//
	// Default is 4096x4096.
	MaxDrawWidth  int
	MaxDrawHeight int

	// The directory that compiled shaders are read from.
	//
	// Default is "shaders".
	ShaderDir string

	// The number of sets that a descriptor pool holds.
	//
	// Default is 10.
	DescMaxSets int

	// Use an orthographic projection for the main
	// camera.
	//
	// Default is false.
	Orthographic bool

	// Light the scene with spot lights in addition to
	// directional lights.
	//
	// Default is false.
	ShowSpotlights bool

	// The half width, in cells, of the instance grids
	// of the default world.
	//
	// Default is 40.
	WorldExtent int

	// The seed of the random orientations of the
	// default world.
	//
	// Default is 0.
	Seed uint64
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		FramesInFlight:   dflFramesInFlight,
		TargetFPS:        dflTargetFPS,
		FenceTimeout:     dflFenceTimeout,
		ImmediateTimeout: dflImmediateTimeout,
		ShadowMapSize:    dflShadowMapSize,
		MaxCameras:       dflMaxCameras,
		MaxAtmospheres:   dflMaxAtmospheres,
		MaxDebugLines:    dflMaxDebugLines,
		MaxDrawWidth:     dflMaxDrawExtent,
		MaxDrawHeight:    dflMaxDrawExtent,
		ShaderDir:        dflShaderDir,
		DescMaxSets:      dflDescMaxSets,
		WorldExtent:      dflWorldExtent,
	}
}

// Validate replaces invalid values in c with defaults.
// FramesInFlight is raised to MinFrame.
func (c *Config) Validate() {
	dfl := DefaultConfig()
	if c.FramesInFlight < MinFrame {
		c.FramesInFlight = MinFrame
	}
	if c.TargetFPS <= 0 {
		c.TargetFPS = dfl.TargetFPS
	}
	if c.FenceTimeout <= 0 {
		c.FenceTimeout = dfl.FenceTimeout
	}
	if c.ImmediateTimeout <= 0 {
		c.ImmediateTimeout = dfl.ImmediateTimeout
	}
	if c.ShadowMapSize <= 0 {
		c.ShadowMapSize = dfl.ShadowMapSize
	}
	// The main camera and the two directional lights
	// need a camera each.
	if c.MaxCameras < 1+maxDirectionalLights {
		c.MaxCameras = dfl.MaxCameras
	}
	if c.MaxAtmospheres <= 0 {
		c.MaxAtmospheres = dfl.MaxAtmospheres
	}
	if c.MaxDebugLines <= 0 {
		c.MaxDebugLines = dfl.MaxDebugLines
	}
	if c.MaxDrawWidth <= 0 {
		c.MaxDrawWidth = dfl.MaxDrawWidth
	}
	if c.MaxDrawHeight <= 0 {
		c.MaxDrawHeight = dfl.MaxDrawHeight
	}
	if c.ShaderDir == "" {
		c.ShaderDir = dfl.ShaderDir
	}
	if c.DescMaxSets <= 0 {
		c.DescMaxSets = dfl.DescMaxSets
	}
	if c.WorldExtent < 0 {
		c.WorldExtent = dfl.WorldExtent
	}
}

// ErrCapacity means that more elements were staged than
// a StagedBuffer can hold.
var ErrCapacity = errors.New("engine: staged buffer capacity exceeded")

// ErrOutOfSync means that the model buffers do not hold
// the same number of elements.
var ErrOutOfSync = errors.New("engine: models and modelInverseTransposes out of sync")

// ErrNoDriver means that no registered driver could be
// opened.
var ErrNoDriver = errors.New("engine: driver not found")

// ErrNoPresenter means that the GPU cannot present.
var ErrNoPresenter = errors.New("engine: GPU does not implement driver.Presenter")
