// Copyright 2024 Gustavo C. Viegas. All rights reserved.

// Deferred opens a window and renders the default world
// with the deferred shading engine.
package main

import (
	"flag"
	"log/slog"
	"os"
	"runtime"

	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/pkg/errors"
	"golang.org/x/term"

	_ "github.com/gviegas/deferred/driver/vk"
	"github.com/gviegas/deferred/engine"
)

func init() {
	// GLFW calls must happen on the main thread.
	runtime.LockOSThread()
}

var (
	width   = flag.Int("width", 1600, "window width")
	height  = flag.Int("height", 900, "window height")
	fps     = flag.Int("fps", 0, "target frame rate (0 for the default)")
	shaders = flag.String("shaders", "", "directory of compiled shaders (empty for the default)")
	frames  = flag.Int("frames", 0, "exit after this many frames (0 to run until closed)")
	drv     = flag.String("driver", "vulkan", "name of the driver to use")
	seed    = flag.Uint64("seed", 0, "seed of the world's random orientations")
	ortho   = flag.Bool("ortho", false, "use an orthographic projection")
	spots   = flag.Bool("spotlights", false, "light the scene with spot lights")
	verbose = flag.Bool("v", false, "log debug messages")
)

func main() {
	flag.Parse()
	log := newLogger(*verbose)
	if err := run(log); err != nil {
		log.Error("deferred: exiting", "err", err)
		os.Exit(1)
	}
}

// newLogger writes text records to a terminal and JSON
// records otherwise.
func newLogger(debug bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if debug {
		opts.Level = slog.LevelDebug
	}
	var h slog.Handler
	if term.IsTerminal(int(os.Stderr.Fd())) {
		h = slog.NewTextHandler(os.Stderr, opts)
	} else {
		h = slog.NewJSONHandler(os.Stderr, opts)
	}
	return slog.New(h)
}

func run(log *slog.Logger) error {
	if err := glfw.Init(); err != nil {
		return errors.Wrap(err, "glfw.Init")
	}
	defer glfw.Terminate()
	if !glfw.VulkanSupported() {
		return errors.New("glfw: Vulkan is not supported")
	}
	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)
	w, err := glfw.CreateWindow(*width, *height, "deferred", nil, nil)
	if err != nil {
		return errors.Wrap(err, "glfw.CreateWindow")
	}
	defer w.Destroy()
	win := &window{w}

	cfg := engine.DefaultConfig()
	if *fps > 0 {
		cfg.TargetFPS = *fps
	}
	if *shaders != "" {
		cfg.ShaderDir = *shaders
	}
	cfg.Seed = *seed
	cfg.Orthographic = *ortho
	cfg.ShowSpotlights = *spots

	ctx, err := engine.OpenContext(*drv, cfg, log)
	if err != nil {
		return err
	}
	defer ctx.Close()
	log.Info("driver opened", "driver", ctx.GPU().Driver().Name())

	r, err := engine.NewRenderer(ctx, win, nil)
	if err != nil {
		return err
	}
	defer r.Cleanup()

	if *frames <= 0 {
		return r.Run()
	}
	for r.Frame() < *frames {
		ok, err := r.Step()
		if err != nil || !ok {
			ctx.GPU().WaitIdle()
			return err
		}
	}
	log.Info("frame limit reached", "frames", r.Frame(), "fps", r.FPS.Average())
	return ctx.GPU().WaitIdle()
}

// window adapts a GLFW window to engine.Window.
// The embedded window provides the surface and the
// close request.
type window struct {
	*glfw.Window
}

func (w *window) Iconified() bool { return w.GetAttrib(glfw.Iconified) == glfw.True }

func (w *window) PollEvents() { glfw.PollEvents() }
