// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package engine

import (
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/gviegas/deferred/driver"
	"github.com/gviegas/deferred/driver/drivertest"
)

// lastCmds returns the commands of the last submission.
func lastCmds(t *testing.T, gpu *drivertest.GPU) []drivertest.Cmd {
	t.Helper()
	subs := gpu.Submissions()
	if len(subs) == 0 {
		t.Fatal("no submissions")
	}
	return cmdsOf(subs[len(subs)-1].Cmds[0])
}

func countEvents(gpu *drivertest.GPU, kind string) (n int) {
	for _, e := range gpu.Events() {
		if e.Kind == kind {
			n++
		}
	}
	return
}

func TestRendererStep(t *testing.T) {
	for _, x := range [...]struct {
		width, height int
		want          driver.Dim3D
	}{
		{200, 100, driver.Dim3D{Width: 200, Height: 100, Depth: 1}},
		{640, 480, driver.Dim3D{Width: 320, Height: 240, Depth: 1}},
	} {
		r, gpu, rec := newTestRenderer(t, testConfig(), &testWindow{width: x.width, height: x.height})
		ok, err := r.Step()
		if !ok || err != nil {
			t.Fatalf("Renderer.Step:\nhave %t, %v\nwant true, nil", ok, err)
		}
		if n := r.Frame(); n != 1 {
			t.Fatalf("Renderer.Frame:\nhave %d\nwant 1", n)
		}
		if e := r.DrawExtent(); e != x.want {
			t.Fatalf("Renderer.DrawExtent:\nhave %v\nwant %v", e, x.want)
		}
		sc := r.sc.(*drivertest.Swapchain)
		if !slices.Equal(sc.Presented, []int{0}) {
			t.Fatalf("Swapchain.Presented:\nhave %v\nwant [0]", sc.Presented)
		}
		if n := r.Lines().Len(); n != 24 {
			t.Fatalf("Renderer.Lines().Len (bounds box):\nhave %d\nwant 24", n)
		}
		if r.FPS.Len() != 1 || r.FPS.Current() <= 0 {
			t.Fatalf("Renderer.FPS: have %v", r.FPS.Values())
		}
		if w := rec.warnings(); len(w) != 0 {
			t.Fatalf("Renderer.Step: unexpected warnings: %v", w)
		}

		cmds := lastCmds(t, gpu)
		i := slices.IndexFunc(cmds, func(c drivertest.Cmd) bool { return c.Op == drivertest.OpBlitImage })
		if i < 0 {
			t.Fatal("Renderer.Step: no blit to the swapchain")
		}
		blit := cmds[i].Blit
		toSize := driver.Dim3D{Width: x.width, Height: x.height, Depth: 1}
		if blit.From != r.drawImage.Image || blit.To != sc.Images()[0] {
			t.Fatal("Renderer.Step: blit from/to wrong images")
		}
		if blit.FromSize != x.want || blit.ToSize != toSize || blit.Filter != driver.FLinear {
			t.Fatalf("Renderer.Step blit:\nhave %v -> %v (%v)\nwant %v -> %v (FLinear)",
				blit.FromSize, blit.ToSize, blit.Filter, x.want, toSize)
		}
		last := cmds[len(cmds)-1]
		if last.Op != drivertest.OpTransition || last.Transitions[0].LayoutAfter != driver.LPresent {
			t.Fatalf("Renderer.Step: last command should transition to LPresent, have %+v", last)
		}

		r.Step()
		r.Step()
		if !slices.Equal(sc.Presented, []int{0, 1, 2}) {
			t.Fatalf("Swapchain.Presented:\nhave %v\nwant [0 1 2]", sc.Presented)
		}
	}
}

func TestRendererSelection(t *testing.T) {
	r, _, rec := newTestRenderer(t, testConfig(), &testWindow{width: 200, height: 100})
	r.Selection.Set(Selection{CameraIndex: 5, AtmosphereIndex: 3})
	for range 2 {
		if _, err := r.Step(); err != nil {
			t.Fatalf("Renderer.Step: unexpected error: %v", err)
		}
	}
	const (
		camMsg   = "camera index does not point to valid camera, resetting to 0"
		atmosMsg = "atmosphere index does not point to valid atmosphere, resetting to 0"
	)
	if n := rec.count(camMsg); n != 1 {
		t.Fatalf("%q warnings:\nhave %d\nwant 1", camMsg, n)
	}
	if n := rec.count(atmosMsg); n != 1 {
		t.Fatalf("%q warnings:\nhave %d\nwant 1", atmosMsg, n)
	}
	if sel := r.Selection.Value(); sel != (Selection{}) {
		t.Fatalf("Renderer.Selection:\nhave %+v\nwant %+v", sel, Selection{})
	}
	// Light cameras go after the user cameras.
	atmos := r.Atmosphere.Ptr().Layout()
	bounds := r.Bounds.Value()
	want := userCameras + len(directionalLights(&atmos, &bounds))
	if n := r.cameras.StagedSize(); n != want {
		t.Fatalf("Renderer cameras staged:\nhave %d\nwant %d", n, want)
	}
}

func TestRendererAcquireOutOfDate(t *testing.T) {
	r, gpu, _ := newTestRenderer(t, testConfig(), &testWindow{width: 200, height: 100})
	sc := r.sc.(*drivertest.Swapchain)
	gpu.Faults.AcquireOutOfDate = 1

	ok, err := r.Step()
	if !ok || err != nil {
		t.Fatalf("Renderer.Step:\nhave %t, %v\nwant true, nil", ok, err)
	}
	if r.Frame() != 0 || len(sc.Presented) != 0 || sc.Recreated != 0 {
		t.Fatalf("Renderer.Step: frame %d presented %v recreated %d after failed acquire",
			r.Frame(), sc.Presented, sc.Recreated)
	}
	if !r.resize {
		t.Fatal("Renderer.Step: resize not requested")
	}

	// The aborted frame's fence must be waitable.
	gpu.ClearEvents()
	if _, err = r.Step(); err != nil {
		t.Fatalf("Renderer.Step: unexpected error: %v", err)
	}
	if sc.Recreated != 1 || r.resize {
		t.Fatalf("Renderer.Step: Recreated %d resize %t\nwant 1 false", sc.Recreated, r.resize)
	}
	if r.Frame() != 1 || len(sc.Presented) != 1 {
		t.Fatalf("Renderer.Step: frame %d presented %v\nwant 1 [0]", r.Frame(), sc.Presented)
	}
	evs := gpu.Events()
	idle := slices.IndexFunc(evs, func(e drivertest.Event) bool { return e.Kind == drivertest.EvWaitIdle })
	recr := slices.IndexFunc(evs, func(e drivertest.Event) bool { return e.Kind == drivertest.EvRecreate })
	if idle < 0 || recr < idle {
		t.Fatalf("Renderer.Step: should wait idle before recreating, events %v", evs)
	}
}

func TestRendererPresentOutOfDate(t *testing.T) {
	r, gpu, _ := newTestRenderer(t, testConfig(), &testWindow{width: 200, height: 100})
	sc := r.sc.(*drivertest.Swapchain)
	gpu.Faults.PresentOutOfDate = 1

	if _, err := r.Step(); err != nil {
		t.Fatalf("Renderer.Step: unexpected error: %v", err)
	}
	if !r.resize || r.Frame() != 1 || len(sc.Presented) != 0 {
		t.Fatalf("Renderer.Step: resize %t frame %d presented %v", r.resize, r.Frame(), sc.Presented)
	}
	if _, err := r.Step(); err != nil {
		t.Fatalf("Renderer.Step: unexpected error: %v", err)
	}
	if sc.Recreated != 1 || len(sc.Presented) != 1 {
		t.Fatalf("Renderer.Step: recreated %d presented %v", sc.Recreated, sc.Presented)
	}
}

func TestRendererIconified(t *testing.T) {
	win := &testWindow{width: 200, height: 100, iconified: true}
	r, gpu, _ := newTestRenderer(t, testConfig(), win)
	var slept []time.Duration
	r.sleep = func(d time.Duration) { slept = append(slept, d) }
	gpu.ClearEvents()

	for range 3 {
		if ok, err := r.Step(); !ok || err != nil {
			t.Fatalf("Renderer.Step:\nhave %t, %v\nwant true, nil", ok, err)
		}
	}
	if win.polls != 3 {
		t.Fatalf("Window.PollEvents calls:\nhave %d\nwant 3", win.polls)
	}
	if !slices.Equal(slept, []time.Duration{iconifiedSleep, iconifiedSleep, iconifiedSleep}) {
		t.Fatalf("Renderer.Step sleeps:\nhave %v\nwant 3 × %v", slept, iconifiedSleep)
	}
	if n := countEvents(gpu, drivertest.EvAcquire); n != 0 || r.Frame() != 0 {
		t.Fatalf("Renderer.Step: rendered while iconified (%d acquires)", n)
	}

	win.iconified = false
	r.Step()
	if r.Frame() != 1 {
		t.Fatalf("Renderer.Frame:\nhave %d\nwant 1", r.Frame())
	}
}

func TestRendererRateLimit(t *testing.T) {
	r, _, _ := newTestRenderer(t, testConfig(), &testWindow{width: 200, height: 100})
	clk := &fakeClock{t: r.start, step: r.interval / 2}
	r.now = clk.now

	// Times: 1.5, 0.5 and 1 interval after the previous
	// frame.
	var frames []int
	for range 3 {
		if _, err := r.Step(); err != nil {
			t.Fatalf("Renderer.Step: unexpected error: %v", err)
		}
		frames = append(frames, r.Frame())
	}
	if want := []int{1, 1, 2}; !slices.Equal(frames, want) {
		t.Fatalf("Renderer.Frame:\nhave %v\nwant %v", frames, want)
	}
	if n := r.FPS.Len(); n != 2 {
		t.Fatalf("Renderer.FPS.Len:\nhave %d\nwant 2", n)
	}
}

func TestRendererOutOfSync(t *testing.T) {
	r, _, rec := newTestRenderer(t, testConfig(), &testWindow{width: 200, height: 100})
	r.instances.ModelInvTs.Truncate(1)
	if _, err := r.Step(); err != nil {
		t.Fatalf("Renderer.Step: unexpected error: %v", err)
	}
	const msg = "models and modelInverseTransposes out of sync"
	if n := rec.count(msg); n != 1 {
		t.Fatalf("%q warnings:\nhave %d\nwant 1", msg, n)
	}
	if r.Frame() != 1 {
		t.Fatal("Renderer.Step: should render despite out of sync models")
	}
}

func TestRendererRun(t *testing.T) {
	win := &testWindow{width: 200, height: 100, closeAfter: 3}
	r, gpu, _ := newTestRenderer(t, testConfig(), win)
	if err := r.Run(); err != nil {
		t.Fatalf("Renderer.Run: unexpected error: %v", err)
	}
	if r.Frame() != 3 {
		t.Fatalf("Renderer.Frame:\nhave %d\nwant 3", r.Frame())
	}
	evs := gpu.Events()
	if evs[len(evs)-1].Kind != drivertest.EvWaitIdle {
		t.Fatalf("Renderer.Run: should wait idle last, have %v", evs[len(evs)-1])
	}
}

func TestRendererControls(t *testing.T) {
	r, _, _ := newTestRenderer(t, testConfig(), &testWindow{width: 200, height: 100})
	cs := r.Controls()
	want := []string{
		"Atmosphere",
		"Camera",
		"DebugLines",
		"GBufferPush",
		"LightingPush",
		"SceneBounds",
		"Selection",
		"ShadowParams",
		"SkyPush",
	}
	if names := cs.Names(); !slices.Equal(names, want) {
		t.Fatalf("Renderer.Controls:\nhave %v\nwant %v", names, want)
	}
	if err := cs["Selection"].SetAny(Selection{CameraIndex: 1}); err != nil {
		t.Fatalf("Controller.SetAny: unexpected error: %v", err)
	}
	if r.Selection.Value().CameraIndex != 1 {
		t.Fatal("Controller.SetAny: value not shared with the renderer")
	}
}

func TestRendererCleanup(t *testing.T) {
	ctx, gpu, rec := newTestContext(t, testConfig())
	live := gpu.Live()
	r, _, _ := startTestRenderer(t, ctx, gpu, rec, &testWindow{width: 200, height: 100})
	r.Step()
	r.Cleanup()
	if n := gpu.Live(); n != live {
		t.Fatalf("Renderer.Cleanup: live objects:\nhave %d\nwant %d", n, live)
	}
}

func TestRendererNoPresenter(t *testing.T) {
	gpu := drivertest.New()
	ctx := NewContext(struct{ driver.GPU }{gpu}, testConfig(), nil, testShaders())
	if r, err := NewRenderer(ctx, &testWindow{width: 1, height: 1}, nil); err != ErrNoPresenter || r != nil {
		t.Fatalf("NewRenderer:\nhave %v, %v\nwant nil, %v", r, err, ErrNoPresenter)
	}
}

func TestRendererFailure(t *testing.T) {
	for _, x := range [...]struct {
		name     string
		maxSets  int
		noMemory bool
	}{
		{"pool exhausted", 1, false},
		{"no device memory", DefaultConfig().DescMaxSets, true},
	} {
		cfg := testConfig()
		cfg.DescMaxSets = x.maxSets
		ctx, gpu, _ := newTestContext(t, cfg)
		gpu.Faults.NoDeviceMemory = x.noMemory
		live := gpu.Live()
		r, err := NewRenderer(ctx, &testWindow{width: 200, height: 100}, nil)
		if r != nil || !errors.Is(err, driver.ErrNoDeviceMemory) {
			t.Fatalf("NewRenderer (%s):\nhave %v, %v\nwant nil, %v", x.name, r, err, driver.ErrNoDeviceMemory)
		}
		if n := gpu.Live(); n != live {
			t.Fatalf("NewRenderer (%s): leaked objects on failure:\nhave %d\nwant %d", x.name, n, live)
		}
	}
}

func TestRendererSetMesh(t *testing.T) {
	r, gpu, _ := newTestRenderer(t, testConfig(), &testWindow{width: 200, height: 100})
	for range 3 {
		r.Step()
	}
	oldID := r.meshID
	box, err := NewBoxMesh(r.ctx, r.imm, "other box")
	if err != nil {
		t.Fatalf("NewBoxMesh: unexpected error: %v", err)
	}
	live := gpu.Live()
	id := r.SetMesh(box)
	if r.Meshes().Get(id) != box || r.Meshes().Get(oldID) != nil || r.Meshes().Len() != 1 {
		t.Fatal("Renderer.SetMesh: registry not updated")
	}
	if r.RemoveMesh(oldID) {
		t.Fatal("Renderer.RemoveMesh (removed id):\nhave true\nwant false")
	}
	// The old buffers outlive the frames in flight.
	n := r.ctx.Config().FramesInFlight
	for i := range n {
		if have := gpu.Live(); have != live {
			t.Fatalf("live objects after %d frames:\nhave %d\nwant %d", i, have, live)
		}
		if ok, err := r.Step(); !ok || err != nil {
			t.Fatalf("Renderer.Step:\nhave %t, %v\nwant true, nil", ok, err)
		}
	}
	if have := gpu.Live(); have != live-2 {
		t.Fatalf("live objects after %d frames:\nhave %d\nwant %d", n, have, live-2)
	}
}
