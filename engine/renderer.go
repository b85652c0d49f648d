// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package engine

import (
	"math/rand/v2"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"

	"github.com/gviegas/deferred/driver"
	"github.com/gviegas/deferred/engine/internal/shader"
)

// Window is the window that a Renderer presents to.
// Its method set is a subset of the one of glfw.Window,
// except for Iconified.
type Window interface {
	driver.Surface

	// ShouldClose returns whether the user requested
	// the window to be closed.
	ShouldClose() bool

	// Iconified returns whether the window is
	// minimized.
	Iconified() bool

	// PollEvents processes pending window events.
	PollEvents()
}

// Selection selects the camera and the atmosphere that
// a frame is rendered with.
type Selection struct {
	CameraIndex     uint32
	AtmosphereIndex uint32
}

// Number of cameras that precede the cameras of
// directional lights in the camera buffer.
const userCameras = 1

// How long an iteration sleeps while the window is
// iconified.
const iconifiedSleep = 100 * time.Millisecond

// Draw image formats.
const (
	drawFormat  = driver.RGBA16f
	depthFormat = driver.D32f
)

// Renderer renders the default world to a Window.
type Renderer struct {
	Camera     *Control[CameraParams]
	Atmosphere *Control[AtmosphereParams]
	Bounds     *Control[SceneBounds]
	Selection  *Control[Selection]

	// Frame rate samples, newest last.
	FPS *FPSHistory

	ctx    *Context
	win    Window
	sc     driver.Swapchain
	frames *FrameRing
	imm    *Immediate
	alloc  *DescriptorAllocator
	ui     UI

	deferred *DeferredPipeline
	lines    *DebugLines

	drawImage  *AllocatedImage
	depthImage *AllocatedImage
	drawExtent driver.Dim3D

	meshes      MeshRegistry
	meshID      MeshID
	instances   *MeshInstances
	cameras     *StagedBuffer[shader.CameraLayout]
	atmospheres *StagedBuffer[shader.AtmosphereLayout]

	resize   bool
	interval time.Duration
	start    time.Time
	last     time.Time
	now      func() time.Time
	sleep    func(time.Duration)
}

// NewRenderer creates a renderer that presents to win.
// ui may be nil.
// The GPU of ctx must implement driver.Presenter.
func NewRenderer(ctx *Context, win Window, ui UI) (r *Renderer, err error) {
	pres, ok := ctx.GPU().(driver.Presenter)
	if !ok {
		return nil, ErrNoPresenter
	}
	cfg := ctx.Config()
	r = &Renderer{
		Camera:     NewControl("Camera", DefaultCameraParams()),
		Atmosphere: NewControl("Atmosphere", DefaultAtmosphereParams()),
		Bounds:     NewControl("SceneBounds", DefaultSceneBounds()),
		Selection:  NewControl("Selection", Selection{}),
		FPS:        NewFPSHistory(fpsHistoryLen),
		ctx:        ctx,
		win:        win,
		ui:         ui,
		interval:   time.Second / time.Duration(cfg.TargetFPS),
		now:        time.Now,
		sleep:      time.Sleep,
	}
	defer func() {
		if err != nil {
			r.Cleanup()
			r = nil
		}
	}()

	if r.sc, err = pres.NewSwapchain(win, cfg.FramesInFlight+1); err != nil {
		err = errors.Wrap(err, "engine: creating swapchain")
		return
	}
	if r.frames, err = NewFrameRing(ctx, cfg.FramesInFlight, cfg.FenceTimeout); err != nil {
		return
	}
	if r.imm, err = NewImmediate(ctx, cfg.ImmediateTimeout); err != nil {
		return
	}
	if r.alloc, err = NewDescriptorAllocator(ctx, cfg.DescMaxSets, defaultPoolRatios); err != nil {
		return
	}
	if err = r.initDrawImages(); err != nil {
		return
	}
	if r.deferred, err = NewDeferredPipeline(ctx, r.alloc, r.drawImage.Extent); err != nil {
		return
	}
	r.deferred.UpdateRenderTargets(r.drawImage, r.depthImage)
	if r.lines, err = NewDebugLines(ctx, cfg.MaxDebugLines); err != nil {
		return
	}
	if err = r.initWorld(); err != nil {
		return
	}
	r.start = r.now()
	r.last = r.start.Add(-r.interval)
	return
}

// initDrawImages creates the color and depth images that
// frames are rendered to before being copied to the
// swapchain.
func (r *Renderer) initDrawImages() (err error) {
	cfg := r.ctx.Config()
	extent := driver.Dim3D{Width: cfg.MaxDrawWidth, Height: cfg.MaxDrawHeight, Depth: 1}
	usg := driver.UCopySrc | driver.UCopyDst | driver.UShaderWrite | driver.URenderTarget
	if r.drawImage, err = AllocateImage(r.ctx, drawFormat, extent, usg); err != nil {
		return
	}
	r.depthImage, err = AllocateImage(r.ctx, depthFormat, extent, driver.URenderTarget|driver.UShaderSample)
	return
}

// initWorld uploads the box mesh, creates the default
// instances and stages the main camera and atmosphere.
func (r *Renderer) initWorld() error {
	cfg := r.ctx.Config()
	box, err := NewBoxMesh(r.ctx, r.imm, "box")
	if err != nil {
		return err
	}
	r.meshID = r.meshes.Add(box)

	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed))
	originals, dynamic := worldGrid(cfg.WorldExtent, rng)
	if r.instances, err = NewMeshInstances(r.ctx, r.imm, originals, dynamic); err != nil {
		return err
	}

	if r.cameras, err = NewStagedBuffer[shader.CameraLayout](r.ctx, driver.UShaderRead, cfg.MaxCameras); err != nil {
		return err
	}
	if r.atmospheres, err = NewStagedBuffer[shader.AtmosphereLayout](r.ctx, driver.UShaderRead, cfg.MaxAtmospheres); err != nil {
		return err
	}
	cam := r.Camera.Value()
	atmos := r.Atmosphere.Value()
	r.cameras.Push(cam.Layout(1))
	r.atmospheres.Push(atmos.Layout())
	return r.imm.Submit(func(cb driver.CmdBuffer) {
		r.cameras.RecordCopyToDevice(cb)
		r.atmospheres.RecordCopyToDevice(cb)
	})
}

// Lines returns the debug lines, which are cleared at
// the start of every iteration.
func (r *Renderer) Lines() *DebugLines { return r.lines }

// Meshes returns the mesh registry.
func (r *Renderer) Meshes() *MeshRegistry { return &r.meshes }

// SetMesh adds m to the registry and draws it in place
// of the current mesh, which is removed.
func (r *Renderer) SetMesh(m *MeshAsset) MeshID {
	old := r.meshID
	r.meshID = r.meshes.Add(m)
	r.RemoveMesh(old)
	return r.meshID
}

// RemoveMesh removes the mesh identified by id from the
// registry. Its buffers are destroyed once the frames
// that may have drawn it complete.
// It returns false if id does not identify a mesh.
func (r *Renderer) RemoveMesh(id MeshID) bool {
	m := r.meshes.Remove(id)
	if m == nil {
		return false
	}
	r.frames.Defer(m.Buffers.Cleanup)
	return true
}

// DrawExtent returns the area of the draw image that
// the last frame rendered to.
func (r *Renderer) DrawExtent() driver.Dim3D { return r.drawExtent }

// Frame returns the number of frames rendered.
func (r *Renderer) Frame() int { return r.frames.Number() }

// ImmediateSubmit records fn into a one-shot command
// buffer, submits it and waits for it to complete.
func (r *Renderer) ImmediateSubmit(fn func(cb driver.CmdBuffer)) error { return r.imm.Submit(fn) }

// Controls returns every parameter that a UI can edit.
func (r *Renderer) Controls() Controls {
	cs := make(Controls)
	cs.add(r.Camera, r.Atmosphere, r.Bounds, r.Selection, r.lines.Params)
	cs.add(r.deferred.Controls()...)
	return cs
}

// Run calls Step until the window is closed or an error
// occurs, then waits for the GPU to become idle.
func (r *Renderer) Run() error {
	for {
		ok, err := r.Step()
		if err != nil {
			r.ctx.GPU().WaitIdle()
			return err
		}
		if !ok {
			return errors.Wrap(r.ctx.GPU().WaitIdle(), "engine: waiting for GPU")
		}
	}
}

// Step runs one iteration of the main loop.
// It returns false once the window should close.
// Iterations that arrive before the frame interval has
// elapsed only poll events.
func (r *Renderer) Step() (bool, error) {
	if r.win.ShouldClose() {
		return false, nil
	}
	r.win.PollEvents()
	if r.win.Iconified() {
		r.sleep(iconifiedSleep)
		return true, nil
	}
	now := r.now()
	dt := now.Sub(r.last)
	if dt < r.interval {
		return true, nil
	}
	r.last = now
	r.FPS.Push(1 / dt.Seconds())

	r.lines.Clear()
	r.tickWorld(now.Sub(r.start).Seconds(), dt.Seconds())
	if r.resize {
		if err := r.resizeSwapchain(); err != nil {
			return false, err
		}
	}
	return true, r.draw()
}

// tickWorld advances the world to time t, dt seconds
// after the last tick.
func (r *Renderer) tickWorld(t, dt float64) {
	r.Atmosphere.Ptr().animate(dt)
	if err := r.instances.tick(t); err != nil {
		r.ctx.Logger().Warn("models and modelInverseTransposes out of sync",
			"models", r.instances.Models.StagedSize(),
			"modelInverseTransposes", r.instances.ModelInvTs.StagedSize())
	}
	b := r.Bounds.Value()
	r.lines.PushBox(b.Center, mgl32.QuatIdent(), b.Extent)
}

// resizeSwapchain recreates the swapchain with the
// window's current size.
func (r *Renderer) resizeSwapchain() error {
	if err := r.ctx.GPU().WaitIdle(); err != nil {
		return errors.Wrap(err, "engine: waiting for GPU before resize")
	}
	if err := r.sc.Recreate(); err != nil {
		return errors.Wrap(err, "engine: recreating swapchain")
	}
	r.resize = false
	r.ctx.Logger().Debug("swapchain recreated", "size", r.sc.Size())
	return nil
}

// stageScene writes the main camera, the atmosphere and
// the lights of the next frame.
func (r *Renderer) stageScene() Selection {
	log := r.ctx.Logger()
	sel := r.Selection.Ptr()

	r.cameras.Truncate(userCameras)
	if n := r.cameras.StagedSize(); int(sel.CameraIndex) >= n {
		log.Warn("camera index does not point to valid camera, resetting to 0",
			"index", sel.CameraIndex, "staged", n)
		sel.CameraIndex = 0
	}
	if n := r.atmospheres.StagedSize(); int(sel.AtmosphereIndex) >= n {
		log.Warn("atmosphere index does not point to valid atmosphere, resetting to 0",
			"index", sel.AtmosphereIndex, "staged", n)
		sel.AtmosphereIndex = 0
	}

	aspect := float32(r.drawExtent.Width) / float32(max(r.drawExtent.Height, 1))
	cam := r.Camera.Ptr()
	cams := r.cameras.MapValidStaged()
	if r.ctx.Config().Orthographic {
		cams[sel.CameraIndex] = cam.OrthographicLayout(aspect, orthographicSize)
	} else {
		cams[sel.CameraIndex] = cam.Layout(aspect)
	}
	atmos := r.Atmosphere.Ptr().Layout()
	r.atmospheres.MapValidStaged()[sel.AtmosphereIndex] = atmos

	bounds := r.Bounds.Value()
	var spots []shader.SpotLightLayout
	if r.ctx.Config().ShowSpotlights {
		spots = spotLights()
	}
	r.deferred.StageLights(r.ctx, r.cameras, directionalLights(&atmos, &bounds), spots)
	return *sel
}

// draw renders and presents a frame.
// An out of date swapchain requests a resize and skips
// the frame.
func (r *Renderer) draw() error {
	gpu := r.ctx.GPU()
	f, err := r.frames.Begin()
	if err != nil {
		return err
	}
	idx, err := r.sc.Next(f.SwapchainSem, r.ctx.Config().FenceTimeout)
	if err != nil {
		if abortErr := r.frames.Abort(gpu); abortErr != nil {
			return abortErr
		}
		if errors.Is(err, driver.ErrSwapchain) {
			r.resize = true
			return nil
		}
		return errors.Wrap(err, "engine: acquiring swapchain image")
	}

	scSize := r.sc.Size()
	r.drawExtent = driver.Dim3D{
		Width:  min(r.drawImage.Extent.Width, scSize.Width),
		Height: min(r.drawImage.Extent.Height, scSize.Height),
		Depth:  1,
	}
	sel := r.stageScene()

	cb := f.Cmd
	r.cameras.RecordCopyToDevice(cb)
	r.atmospheres.RecordCopyToDevice(cb)
	r.instances.recordCopy(cb)

	r.deferred.RecordDrawCommands(r.ctx, cb, &DrawParams{
		Color:           r.drawImage,
		Depth:           r.depthImage,
		Extent:          r.drawExtent,
		CameraIndex:     sel.CameraIndex,
		Cameras:         r.cameras,
		AtmosphereIndex: sel.AtmosphereIndex,
		Atmospheres:     r.atmospheres,
		Mesh:            r.meshes.Get(r.meshID),
		Instances:       r.instances,
	})
	r.lines.record(r.ctx, cb, &lineDraw{
		color:       r.drawImage,
		depth:       r.depthImage,
		extent:      r.drawExtent,
		cameras:     r.cameras,
		cameraIndex: sel.CameraIndex,
	})
	if r.ui != nil {
		r.ui.Record(cb, r.drawImage, r.drawExtent)
	}

	swap := r.sc.Images()[idx]
	cb.Transition([]driver.Transition{
		transitionOf(r.drawImage.Image, driver.LCommon, driver.LCopySrc),
		transitionOf(swap, driver.LUndefined, driver.LCopyDst),
	})
	cb.BlitImage(&driver.ImageBlit{
		From:     r.drawImage.Image,
		FromSize: r.drawExtent,
		To:       swap,
		ToSize:   driver.Dim3D{Width: scSize.Width, Height: scSize.Height, Depth: 1},
		Filter:   driver.FLinear,
	})
	transition(cb, swap, driver.LCopyDst, driver.LPresent)

	if err := r.frames.Submit(gpu); err != nil {
		return err
	}
	r.frames.Advance()
	if err := r.sc.Present(idx, f.RenderSem); err != nil {
		if errors.Is(err, driver.ErrSwapchain) {
			r.resize = true
			return nil
		}
		return errors.Wrap(err, "engine: presenting")
	}
	return nil
}

// Cleanup waits for the GPU to become idle and destroys
// everything that r owns.
func (r *Renderer) Cleanup() {
	r.ctx.GPU().WaitIdle()
	if r.lines != nil {
		r.lines.Cleanup()
		r.lines = nil
	}
	if r.deferred != nil {
		r.deferred.Cleanup()
		r.deferred = nil
	}
	if r.alloc != nil {
		r.alloc.Cleanup()
		r.alloc = nil
	}
	if r.instances != nil {
		r.instances.Cleanup()
		r.instances = nil
	}
	r.meshes.Cleanup()
	if r.cameras != nil {
		r.cameras.Cleanup()
		r.cameras = nil
	}
	if r.atmospheres != nil {
		r.atmospheres.Cleanup()
		r.atmospheres = nil
	}
	for _, img := range [...]*AllocatedImage{r.drawImage, r.depthImage} {
		if img != nil {
			img.Cleanup()
		}
	}
	r.drawImage, r.depthImage = nil, nil
	if r.imm != nil {
		r.imm.Cleanup()
		r.imm = nil
	}
	if r.frames != nil {
		r.frames.Cleanup()
		r.frames = nil
	}
	if r.sc != nil {
		r.sc.Destroy()
		r.sc = nil
	}
}
