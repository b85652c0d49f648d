// Copyright 2024 Gustavo C. Viegas. All rights reserved.

// Package drivertest provides a driver.GPU that records
// every command instead of executing it on a device.
// Copies are carried out on submission so that buffer
// contents can be inspected, and faults can be injected
// to exercise timeout and out-of-date paths.
package drivertest

import (
	"sync"
	"time"
	"unsafe"

	"github.com/gviegas/deferred/driver"
)

// Faults controls which failures the GPU injects.
type Faults struct {
	// FenceTimeout makes every Fence.Wait fail with
	// driver.ErrTimeout.
	FenceTimeout bool
	// AcquireOutOfDate is the number of subsequent
	// Swapchain.Next calls that fail with
	// driver.ErrSwapchain.
	AcquireOutOfDate int
	// PresentOutOfDate is the number of subsequent
	// Swapchain.Present calls that fail with
	// driver.ErrSwapchain.
	PresentOutOfDate int
	// ShaderFailure names shaders whose creation fails.
	ShaderFailure map[string]bool
	// NoDeviceMemory makes buffer and image creation
	// fail with driver.ErrNoDeviceMemory.
	NoDeviceMemory bool
}

// Event is an entry in the GPU's event log.
type Event struct {
	Kind string
	// ID identifies the object involved.
	ID int
}

// Event kinds.
const (
	EvFenceWait  = "fence.wait"
	EvFenceReset = "fence.reset"
	EvCmdReset   = "cmd.reset"
	EvCmdBegin   = "cmd.begin"
	EvCmdEnd     = "cmd.end"
	EvSubmit     = "submit"
	EvWaitIdle   = "waitidle"
	EvAcquire    = "acquire"
	EvPresent    = "present"
	EvRecreate   = "recreate"
)

// Driver is a driver.Driver whose GPU is a *GPU.
type Driver struct {
	gpu *GPU
}

// Open returns the driver's GPU, creating it on first use.
func (d *Driver) Open() (driver.GPU, error) {
	if d.gpu == nil {
		d.gpu = New()
		d.gpu.drv = d
	}
	return d.gpu, nil
}

// Name returns "drivertest".
func (*Driver) Name() string { return "drivertest" }

// Close discards the GPU.
func (d *Driver) Close() { d.gpu = nil }

// GPU implements driver.GPU and driver.Presenter.
type GPU struct {
	Faults Faults

	mu      sync.Mutex
	drv     driver.Driver
	nextID  int
	nextAdr uint64
	events  []Event
	submits []driver.Submission
	live    map[int]string
}

// New creates a new GPU.
func New() *GPU {
	return &GPU{
		nextAdr: 1 << 32,
		live:    make(map[int]string),
	}
}

func (g *GPU) newID(kind string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nextID++
	g.live[g.nextID] = kind
	return g.nextID
}

func (g *GPU) destroy(id int) {
	g.mu.Lock()
	delete(g.live, id)
	g.mu.Unlock()
}

func (g *GPU) event(kind string, id int) {
	g.mu.Lock()
	g.events = append(g.events, Event{kind, id})
	g.mu.Unlock()
}

// Events returns a copy of the event log.
func (g *GPU) Events() []Event {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]Event(nil), g.events...)
}

// ClearEvents empties the event log.
func (g *GPU) ClearEvents() {
	g.mu.Lock()
	g.events = g.events[:0]
	g.mu.Unlock()
}

// Submissions returns a copy of every submission made
// so far.
func (g *GPU) Submissions() []driver.Submission {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]driver.Submission(nil), g.submits...)
}

// Live returns the number of objects that were created
// and not yet destroyed.
func (g *GPU) Live() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.live)
}

// Driver returns the Driver that owns g, which is nil
// if g was created with New.
func (g *GPU) Driver() driver.Driver { return g.drv }

// NewCmdBuffer creates a new *CmdBuffer.
func (g *GPU) NewCmdBuffer() (driver.CmdBuffer, error) {
	return &CmdBuffer{gpu: g, ID: g.newID("cmd")}, nil
}

// NewFence creates a new *Fence.
func (g *GPU) NewFence(signaled bool) (driver.Fence, error) {
	return &Fence{gpu: g, ID: g.newID("fence"), signaled: signaled}, nil
}

// NewSemaphore creates a new *Semaphore.
func (g *GPU) NewSemaphore() (driver.Semaphore, error) {
	return &Semaphore{gpu: g, ID: g.newID("semaphore")}, nil
}

// Submit executes the copies recorded in sub.Cmds and
// signals sub.Fence.
func (g *GPU) Submit(sub *driver.Submission) error {
	for _, cb := range sub.Cmds {
		cb := cb.(*CmdBuffer)
		if cb.recording {
			panic("drivertest: submitting command buffer that is still recording")
		}
		g.event(EvSubmit, cb.ID)
		cb.execute()
	}
	if sub.Fence != nil {
		sub.Fence.(*Fence).signaled = true
	}
	g.mu.Lock()
	g.submits = append(g.submits, driver.Submission{
		Cmds:   append([]driver.CmdBuffer(nil), sub.Cmds...),
		Wait:   append([]driver.SemaphoreWait(nil), sub.Wait...),
		Signal: append([]driver.Semaphore(nil), sub.Signal...),
		Fence:  sub.Fence,
	})
	g.mu.Unlock()
	return nil
}

// WaitIdle records an EvWaitIdle event.
func (g *GPU) WaitIdle() error {
	g.event(EvWaitIdle, 0)
	return nil
}

// NewBuffer creates a new *Buffer.
// Every buffer has backing memory, including the ones
// that are not host visible.
func (g *GPU) NewBuffer(size int64, visible bool, usg driver.Usage) (driver.Buffer, error) {
	if g.Faults.NoDeviceMemory {
		return nil, driver.ErrNoDeviceMemory
	}
	b := &Buffer{
		gpu:     g,
		ID:      g.newID("buffer"),
		Usage:   usg,
		visible: visible,
		data:    make([]byte, size),
	}
	if usg&driver.UAddress != 0 {
		g.mu.Lock()
		b.addr = g.nextAdr
		g.nextAdr += uint64(size+0xffff) &^ 0xffff
		g.mu.Unlock()
	}
	return b, nil
}

// NewImage creates a new *Image.
func (g *GPU) NewImage(pf driver.PixelFmt, size driver.Dim3D, layers, levels, samples int, usg driver.Usage) (driver.Image, error) {
	if g.Faults.NoDeviceMemory {
		return nil, driver.ErrNoDeviceMemory
	}
	return g.newImage(pf, size, usg), nil
}

func (g *GPU) newImage(pf driver.PixelFmt, size driver.Dim3D, usg driver.Usage) *Image {
	return &Image{
		gpu:    g,
		ID:     g.newID("image"),
		Usage:  usg,
		format: pf,
		size:   size,
	}
}

// NewSampler creates a new *Sampler.
func (g *GPU) NewSampler(spln *driver.Sampling) (driver.Sampler, error) {
	return &Sampler{gpu: g, ID: g.newID("sampler"), Sampling: *spln}, nil
}

// NewDescLayout creates a new *DescLayout.
func (g *GPU) NewDescLayout(ds []driver.Descriptor) (driver.DescLayout, error) {
	return &DescLayout{
		gpu:  g,
		ID:   g.newID("desclayout"),
		Desc: append([]driver.Descriptor(nil), ds...),
	}, nil
}

// NewDescPool creates a new *DescPool.
func (g *GPU) NewDescPool(maxSets int, cnt []driver.DescCount) (driver.DescPool, error) {
	return &DescPool{
		gpu:     g,
		ID:      g.newID("descpool"),
		MaxSets: maxSets,
		Counts:  append([]driver.DescCount(nil), cnt...),
	}, nil
}

// NewPipelineLayout creates a new *PipelineLayout.
func (g *GPU) NewPipelineLayout(sets []driver.DescLayout, push []driver.PushRange) (driver.PipelineLayout, error) {
	return &PipelineLayout{
		gpu:  g,
		ID:   g.newID("pipelinelayout"),
		Sets: append([]driver.DescLayout(nil), sets...),
		Push: append([]driver.PushRange(nil), push...),
	}, nil
}

// NewShader creates a new *Shader, unless desc.Name is
// in g.Faults.ShaderFailure.
func (g *GPU) NewShader(desc *driver.ShaderDesc) (driver.Shader, error) {
	if g.Faults.ShaderFailure[desc.Name] {
		return nil, driver.ErrInvalidShader
	}
	return &Shader{
		gpu:  g,
		ID:   g.newID("shader"),
		Name: desc.Name,
		stg:  desc.Stage,
	}, nil
}

// Limits returns fixed limits.
func (g *GPU) Limits() driver.Limits {
	return driver.Limits{
		MaxImage2D:       16384,
		MaxPushConstants: 256,
		MaxDescSets:      8,
		MaxColorTargets:  8,
		MaxDispatch:      [3]int{65535, 65535, 65535},
	}
}

// NewSwapchain creates a new *Swapchain.
func (g *GPU) NewSwapchain(sf driver.Surface, imageCount int) (driver.Swapchain, error) {
	if sf == nil {
		return nil, driver.ErrWindow
	}
	sc := &Swapchain{gpu: g, ID: g.newID("swapchain"), sf: sf, n: imageCount}
	sc.create()
	return sc, nil
}

// Fence implements driver.Fence.
type Fence struct {
	gpu      *GPU
	ID       int
	signaled bool
}

// Wait returns driver.ErrTimeout if f is not signaled.
func (f *Fence) Wait(time.Duration) error {
	f.gpu.event(EvFenceWait, f.ID)
	if f.gpu.Faults.FenceTimeout || !f.signaled {
		return driver.ErrTimeout
	}
	return nil
}

// Reset unsignals f.
func (f *Fence) Reset() error {
	f.gpu.event(EvFenceReset, f.ID)
	f.signaled = false
	return nil
}

// Signaled returns whether f is signaled.
func (f *Fence) Signaled() bool { return f.signaled }

// Destroy destroys f.
func (f *Fence) Destroy() { f.gpu.destroy(f.ID) }

// Semaphore implements driver.Semaphore.
type Semaphore struct {
	gpu *GPU
	ID  int
}

// Destroy destroys s.
func (s *Semaphore) Destroy() { s.gpu.destroy(s.ID) }

// Buffer implements driver.Buffer.
type Buffer struct {
	gpu     *GPU
	ID      int
	Usage   driver.Usage
	visible bool
	data    []byte
	addr    uint64
}

// Visible returns whether b was created host visible.
func (b *Buffer) Visible() bool { return b.visible }

// Bytes returns b's memory if it is host visible.
func (b *Buffer) Bytes() []byte {
	if !b.visible {
		return nil
	}
	return b.data
}

// Data returns b's memory regardless of visibility.
func (b *Buffer) Data() []byte { return b.data }

// Cap returns the size of b.
func (b *Buffer) Cap() int64 { return int64(len(b.data)) }

// Addr returns the fake device address of b.
func (b *Buffer) Addr() uint64 { return b.addr }

// Destroy destroys b.
func (b *Buffer) Destroy() { b.gpu.destroy(b.ID) }

// Image implements driver.Image.
type Image struct {
	gpu    *GPU
	ID     int
	Usage  driver.Usage
	format driver.PixelFmt
	size   driver.Dim3D
	// Layout is the layout set by the last executed
	// transition.
	Layout driver.Layout
}

// NewView creates a new *ImageView.
func (im *Image) NewView() (driver.ImageView, error) {
	return &ImageView{gpu: im.gpu, ID: im.gpu.newID("imageview"), img: im}, nil
}

// Format returns the pixel format of im.
func (im *Image) Format() driver.PixelFmt { return im.format }

// Size returns the extent of im.
func (im *Image) Size() driver.Dim3D { return im.size }

// Destroy destroys im.
func (im *Image) Destroy() { im.gpu.destroy(im.ID) }

// ImageView implements driver.ImageView.
type ImageView struct {
	gpu *GPU
	ID  int
	img *Image
}

// Image returns the image of v.
func (v *ImageView) Image() driver.Image { return v.img }

// Destroy destroys v.
func (v *ImageView) Destroy() { v.gpu.destroy(v.ID) }

// Sampler implements driver.Sampler.
type Sampler struct {
	gpu *GPU
	ID  int
	driver.Sampling
}

// Destroy destroys s.
func (s *Sampler) Destroy() { s.gpu.destroy(s.ID) }

// DescLayout implements driver.DescLayout.
type DescLayout struct {
	gpu  *GPU
	ID   int
	Desc []driver.Descriptor
}

// Destroy destroys l.
func (l *DescLayout) Destroy() { l.gpu.destroy(l.ID) }

// DescPool implements driver.DescPool.
type DescPool struct {
	gpu     *GPU
	ID      int
	MaxSets int
	Counts  []driver.DescCount
	// Sets holds the sets allocated since the last
	// Reset.
	Sets []*DescSet
	// Resets counts the calls to Reset.
	Resets int
}

// Alloc allocates a new *DescSet.
func (p *DescPool) Alloc(layout driver.DescLayout) (driver.DescSet, error) {
	if len(p.Sets) >= p.MaxSets {
		return nil, driver.ErrNoDeviceMemory
	}
	ds := &DescSet{
		Layout:   layout.(*DescLayout),
		Bindings: make(map[int]Binding),
	}
	p.Sets = append(p.Sets, ds)
	return ds, nil
}

// Reset frees every set allocated from p.
func (p *DescPool) Reset() error {
	p.Sets = p.Sets[:0]
	p.Resets++
	return nil
}

// Destroy destroys p.
func (p *DescPool) Destroy() { p.gpu.destroy(p.ID) }

// Binding is the content of a descriptor.
type Binding struct {
	View    driver.ImageView
	Layout  driver.Layout
	Sampler driver.Sampler
}

// DescSet implements driver.DescSet.
type DescSet struct {
	Layout   *DescLayout
	Bindings map[int]Binding
}

// SetImage stores a storage image binding.
func (s *DescSet) SetImage(nr int, iv driver.ImageView, layout driver.Layout) {
	s.Bindings[nr] = Binding{View: iv, Layout: layout}
}

// SetTexture stores a combined image/sampler binding.
func (s *DescSet) SetTexture(nr int, iv driver.ImageView, layout driver.Layout, splr driver.Sampler) {
	s.Bindings[nr] = Binding{View: iv, Layout: layout, Sampler: splr}
}

// PipelineLayout implements driver.PipelineLayout.
type PipelineLayout struct {
	gpu  *GPU
	ID   int
	Sets []driver.DescLayout
	Push []driver.PushRange
}

// Destroy destroys l.
func (l *PipelineLayout) Destroy() { l.gpu.destroy(l.ID) }

// Shader implements driver.Shader.
type Shader struct {
	gpu  *GPU
	ID   int
	Name string
	stg  driver.Stage
}

// Stage returns the shader stage.
func (s *Shader) Stage() driver.Stage { return s.stg }

// Destroy destroys s.
func (s *Shader) Destroy() { s.gpu.destroy(s.ID) }

// Swapchain implements driver.Swapchain.
type Swapchain struct {
	gpu  *GPU
	ID   int
	sf   driver.Surface
	n    int
	imgs []driver.Image
	size driver.Dim3D
	next int
	// Recreated counts the calls to Recreate.
	Recreated int
	// Presented holds the indices passed to Present.
	Presented []int
}

func (s *Swapchain) create() {
	w, h := s.sf.GetFramebufferSize()
	s.size = driver.Dim3D{Width: w, Height: h, Depth: 1}
	s.imgs = s.imgs[:0]
	// Presentation images are not subject to
	// Faults.NoDeviceMemory.
	for range s.n {
		s.imgs = append(s.imgs, s.gpu.newImage(driver.BGRA8un, s.size, driver.URenderTarget|driver.UCopyDst))
	}
}

// Images returns the swapchain images.
func (s *Swapchain) Images() []driver.Image { return s.imgs }

// Next returns image indices in round-robin order.
func (s *Swapchain) Next(sem driver.Semaphore, timeout time.Duration) (int, error) {
	s.gpu.event(EvAcquire, s.ID)
	if s.gpu.Faults.AcquireOutOfDate > 0 {
		s.gpu.Faults.AcquireOutOfDate--
		return -1, driver.ErrSwapchain
	}
	i := s.next
	s.next = (s.next + 1) % len(s.imgs)
	return i, nil
}

// Present records index in s.Presented.
func (s *Swapchain) Present(index int, wait driver.Semaphore) error {
	s.gpu.event(EvPresent, s.ID)
	if s.gpu.Faults.PresentOutOfDate > 0 {
		s.gpu.Faults.PresentOutOfDate--
		return driver.ErrSwapchain
	}
	s.Presented = append(s.Presented, index)
	return nil
}

// Recreate recreates the images using the surface's
// current size.
func (s *Swapchain) Recreate() error {
	s.gpu.event(EvRecreate, s.ID)
	for _, img := range s.imgs {
		img.Destroy()
	}
	s.create()
	s.next = 0
	s.Recreated++
	return nil
}

// Format returns driver.BGRA8un.
func (s *Swapchain) Format() driver.PixelFmt { return driver.BGRA8un }

// Size returns the extent of the images.
func (s *Swapchain) Size() driver.Dim3D { return s.size }

// Destroy destroys s.
func (s *Swapchain) Destroy() {
	for _, img := range s.imgs {
		img.Destroy()
	}
	s.gpu.destroy(s.ID)
}

// Bytes returns the in-memory representation of v.
func Bytes[T any](v []T) []byte {
	if len(v) == 0 {
		return nil
	}
	var x T
	return unsafe.Slice((*byte)(unsafe.Pointer(&v[0])), len(v)*int(unsafe.Sizeof(x)))
}
