// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package engine

import (
	"context"
	"encoding/binary"
	"log/slog"
	"sync"
	"testing"
	"testing/fstest"
	"time"
	"unsafe"

	"github.com/gviegas/deferred/driver"
	"github.com/gviegas/deferred/driver/drivertest"
	"github.com/gviegas/deferred/engine/internal/shader"
)

// SPIR-V opcodes and operands used by spvModule.
const (
	spvMagic         = 0x07230203
	spvEntryPoint    = 15
	spvTypeInt       = 21
	spvTypeStruct    = 30
	spvTypePointer   = 32
	spvVariable      = 59
	spvMemberDecor   = 72
	spvDecOffset     = 35
	spvPushConstant  = 9
	spvExecGLCompute = 5
)

// spvModule assembles a module with a "main" entry
// point whose push constant block is pushSize bytes of
// 32-bit integers. pushSize 0 omits the block.
func spvModule(pushSize int) []byte {
	const (
		idMain = iota + 1
		idUint
		idPC
		idPtrPC
		idVar
	)
	var w []uint32
	op := func(op uint32, args ...uint32) {
		w = append(w, uint32(len(args)+1)<<16|op)
		w = append(w, args...)
	}
	// "main\0" padded to two words.
	name := []uint32{binary.LittleEndian.Uint32([]byte("main")), 0}
	entry := append([]uint32{spvExecGLCompute, idMain}, name...)
	if pushSize > 0 {
		entry = append(entry, idVar)
	}
	op(spvEntryPoint, entry...)
	if pushSize > 0 {
		n := pushSize / 4
		members := make([]uint32, n)
		for i := range n {
			op(spvMemberDecor, idPC, uint32(i), spvDecOffset, uint32(i*4))
			members[i] = idUint
		}
		op(spvTypeInt, idUint, 32, 0)
		op(spvTypeStruct, append([]uint32{idPC}, members...)...)
		op(spvTypePointer, idPtrPC, spvPushConstant, idPC)
		op(spvVariable, idPtrPC, idVar, spvPushConstant)
	}
	words := append([]uint32{spvMagic, 0x00010500, 0, 100, 0}, w...)
	b := make([]byte, len(words)*4)
	for i, x := range words {
		binary.LittleEndian.PutUint32(b[i*4:], x)
	}
	return b
}

// testShaders returns every shader that the engine
// loads, with correctly sized push constants.
func testShaders() fstest.MapFS {
	fsys := make(fstest.MapFS)
	add := func(reqs []ShaderRequest) {
		for _, r := range reqs {
			fsys[r.Path] = &fstest.MapFile{Data: spvModule(r.PushSize)}
		}
	}
	add(deferredShaders())
	add([]ShaderRequest{
		{Path: debugLineVert, PushSize: int(unsafe.Sizeof(shader.LinePush{}))},
		{Path: debugLineFrag},
	})
	return fsys
}

// logRecorder is a slog.Handler that keeps every
// record.
type logRecorder struct {
	mu   sync.Mutex
	recs []slog.Record
}

func (h *logRecorder) Enabled(context.Context, slog.Level) bool { return true }

func (h *logRecorder) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	h.recs = append(h.recs, r.Clone())
	h.mu.Unlock()
	return nil
}

func (h *logRecorder) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *logRecorder) WithGroup(string) slog.Handler      { return h }

// warnings returns the messages of the warnings logged
// so far.
func (h *logRecorder) warnings() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	var s []string
	for _, r := range h.recs {
		if r.Level == slog.LevelWarn {
			s = append(s, r.Message)
		}
	}
	return s
}

// count returns how many warnings have the message msg.
func (h *logRecorder) count(msg string) (n int) {
	for _, s := range h.warnings() {
		if s == msg {
			n++
		}
	}
	return
}

func (h *logRecorder) reset() {
	h.mu.Lock()
	h.recs = nil
	h.mu.Unlock()
}

// testConfig returns a configuration with small images
// and a small world.
func testConfig() Config {
	cfg := DefaultConfig()
	cfg.ShadowMapSize = 256
	cfg.MaxDrawWidth = 320
	cfg.MaxDrawHeight = 240
	cfg.WorldExtent = 1
	cfg.MaxDebugLines = 64
	return cfg
}

// newTestContext creates a Context backed by a fake GPU
// and the test shaders.
func newTestContext(t *testing.T, cfg Config) (*Context, *drivertest.GPU, *logRecorder) {
	t.Helper()
	return newTestContextFS(t, cfg, testShaders())
}

// newTestContextFS is like newTestContext but reads
// shaders from fsys.
func newTestContextFS(t *testing.T, cfg Config, fsys fstest.MapFS) (*Context, *drivertest.GPU, *logRecorder) {
	t.Helper()
	gpu := drivertest.New()
	rec := new(logRecorder)
	return NewContext(gpu, cfg, slog.New(rec), fsys), gpu, rec
}

// testWindow is a Window of fixed size.
type testWindow struct {
	width, height int
	closeAfter    int
	iconified     bool
	polls         int
}

func (w *testWindow) CreateWindowSurface(interface{}, unsafe.Pointer) (uintptr, error) {
	return 1, nil
}

func (w *testWindow) GetFramebufferSize() (int, int) { return w.width, w.height }

func (w *testWindow) ShouldClose() bool { return w.closeAfter > 0 && w.polls >= w.closeAfter }

func (w *testWindow) Iconified() bool { return w.iconified }

func (w *testWindow) PollEvents() { w.polls++ }

// fakeClock advances by step every time it is read.
type fakeClock struct {
	t    time.Time
	step time.Duration
}

func (c *fakeClock) now() time.Time {
	c.t = c.t.Add(c.step)
	return c.t
}

// newTestRenderer creates a Renderer whose clock
// advances one frame interval per read, so that every
// Step renders.
func newTestRenderer(t *testing.T, cfg Config, win *testWindow) (*Renderer, *drivertest.GPU, *logRecorder) {
	t.Helper()
	ctx, gpu, rec := newTestContext(t, cfg)
	return startTestRenderer(t, ctx, gpu, rec, win)
}

// startTestRenderer creates a Renderer using ctx, which
// must be backed by gpu and log to rec.
func startTestRenderer(t *testing.T, ctx *Context, gpu *drivertest.GPU, rec *logRecorder, win *testWindow) (*Renderer, *drivertest.GPU, *logRecorder) {
	t.Helper()
	r, err := NewRenderer(ctx, win, nil)
	if err != nil {
		t.Fatalf("NewRenderer: unexpected error: %v", err)
	}
	clk := &fakeClock{t: r.start, step: r.interval}
	r.now = clk.now
	r.sleep = func(time.Duration) {}
	t.Cleanup(r.Cleanup)
	return r, gpu, rec
}

// cmdsOf returns the commands recorded into cb.
func cmdsOf(cb driver.CmdBuffer) []drivertest.Cmd { return cb.(*drivertest.CmdBuffer).Cmds() }

// ops returns the operations of cmds.
func ops(cmds []drivertest.Cmd) []drivertest.Op {
	s := make([]drivertest.Op, len(cmds))
	for i := range cmds {
		s[i] = cmds[i].Op
	}
	return s
}
