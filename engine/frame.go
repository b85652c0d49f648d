// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package engine

import (
	"time"

	"github.com/pkg/errors"

	"github.com/gviegas/deferred/driver"
)

// DeletionQueue holds cleanup functions that must run
// once the GPU is done with the resources they release.
type DeletionQueue struct {
	fns []func()
}

// Push queues fn.
func (q *DeletionQueue) Push(fn func()) { q.fns = append(q.fns, fn) }

// Flush calls the queued functions in reverse order and
// empties the queue.
func (q *DeletionQueue) Flush() {
	for i := len(q.fns) - 1; i >= 0; i-- {
		q.fns[i]()
		q.fns[i] = nil
	}
	q.fns = q.fns[:0]
}

// Len returns the number of queued functions.
func (q *DeletionQueue) Len() int { return len(q.fns) }

// FrameData is the state of a frame slot.
type FrameData struct {
	Cmd driver.CmdBuffer
	// Signaled when the slot's last submission
	// completes.
	Fence driver.Fence
	// Signaled when the acquired swapchain image can
	// be written.
	SwapchainSem driver.Semaphore
	// Signaled when rendering completes, gating
	// presentation.
	RenderSem driver.Semaphore
	// Flushed the next time the slot is reused.
	Deletion DeletionQueue
}

func newFrameData(ctx *Context) (f FrameData, err error) {
	gpu := ctx.GPU()
	defer func() {
		if err != nil {
			f.destroy()
		}
	}()
	if f.Cmd, err = gpu.NewCmdBuffer(); err != nil {
		return
	}
	// Signaled, so that the first wait on the slot
	// does not block.
	if f.Fence, err = gpu.NewFence(true); err != nil {
		return
	}
	if f.SwapchainSem, err = gpu.NewSemaphore(); err != nil {
		return
	}
	f.RenderSem, err = gpu.NewSemaphore()
	return
}

func (f *FrameData) destroy() {
	f.Deletion.Flush()
	for _, d := range [...]driver.Destroyer{f.Cmd, f.Fence, f.SwapchainSem, f.RenderSem} {
		if d != nil {
			d.Destroy()
		}
	}
	*f = FrameData{}
}

// FrameRing is a fixed ring of frame slots.
// The current slot is the frame number modulo the
// number of slots.
type FrameRing struct {
	frames  []FrameData
	number  int
	timeout time.Duration
}

// NewFrameRing creates a ring of n slots, n >= MinFrame.
// timeout bounds the wait on a slot's fence.
func NewFrameRing(ctx *Context, n int, timeout time.Duration) (*FrameRing, error) {
	if n < MinFrame {
		n = MinFrame
	}
	r := &FrameRing{frames: make([]FrameData, n), timeout: timeout}
	for i := range r.frames {
		f, err := newFrameData(ctx)
		if err != nil {
			r.Cleanup()
			return nil, errors.Wrap(err, "engine: creating frame data")
		}
		r.frames[i] = f
	}
	return r, nil
}

// Len returns the number of slots.
func (r *FrameRing) Len() int { return len(r.frames) }

// Number returns the frame number.
func (r *FrameRing) Number() int { return r.number }

// Current returns the current slot.
func (r *FrameRing) Current() *FrameData { return &r.frames[r.number%len(r.frames)] }

// Advance makes the next slot current.
func (r *FrameRing) Advance() { r.number++ }

// Defer queues fn on the slot of the last submitted
// frame. It runs when that slot is next reused, at which
// point every frame submitted before the call has
// completed, or when r is cleaned up.
func (r *FrameRing) Defer(fn func()) {
	i := (r.number + len(r.frames) - 1) % len(r.frames)
	r.frames[i].Deletion.Push(fn)
}

// Begin prepares the current slot for recording.
// It waits on the slot's fence, flushes its deletion
// queue, resets the fence and the command buffer and
// then begins recording.
// A fence timeout means that the GPU is hung; the error
// wraps driver.ErrTimeout and is not recoverable.
func (r *FrameRing) Begin() (*FrameData, error) {
	f := r.Current()
	if err := f.Fence.Wait(r.timeout); err != nil {
		return nil, errors.Wrapf(err, "engine: waiting on frame %d", r.number)
	}
	f.Deletion.Flush()
	if err := f.Fence.Reset(); err != nil {
		return nil, errors.Wrap(err, "engine: resetting frame fence")
	}
	if err := f.Cmd.Reset(); err != nil {
		return nil, errors.Wrap(err, "engine: resetting frame command buffer")
	}
	if err := f.Cmd.Begin(); err != nil {
		return nil, errors.Wrap(err, "engine: beginning frame command buffer")
	}
	return f, nil
}

// Submit ends the current slot's command buffer and
// submits it. Execution waits on the SwapchainSem at
// color output and signals RenderSem and the Fence.
func (r *FrameRing) Submit(gpu driver.GPU) error {
	f := r.Current()
	if err := f.Cmd.End(); err != nil {
		return errors.Wrap(err, "engine: ending frame command buffer")
	}
	err := gpu.Submit(&driver.Submission{
		Cmds:   []driver.CmdBuffer{f.Cmd},
		Wait:   []driver.SemaphoreWait{{Sem: f.SwapchainSem, Stage: driver.SColorOutput}},
		Signal: []driver.Semaphore{f.RenderSem},
		Fence:  f.Fence,
	})
	return errors.Wrap(err, "engine: submitting frame")
}

// Abort discards the current slot's recording.
// The command buffer is ended but not submitted, and the
// fence is signaled by an empty submission so that the
// slot can be reused.
func (r *FrameRing) Abort(gpu driver.GPU) error {
	f := r.Current()
	if f.Cmd.IsRecording() {
		if err := f.Cmd.End(); err != nil {
			return errors.Wrap(err, "engine: ending aborted frame")
		}
	}
	return errors.Wrap(gpu.Submit(&driver.Submission{Fence: f.Fence}), "engine: signaling aborted frame")
}

// Cleanup destroys every slot.
// The GPU must be idle.
func (r *FrameRing) Cleanup() {
	for i := range r.frames {
		r.frames[i].destroy()
	}
	r.frames = nil
}

// Immediate submits one-shot work, such as uploads,
// and waits for it to complete.
type Immediate struct {
	gpu     driver.GPU
	cmd     driver.CmdBuffer
	fence   driver.Fence
	timeout time.Duration
}

// NewImmediate creates an Immediate whose waits are
// bounded by timeout.
func NewImmediate(ctx *Context, timeout time.Duration) (*Immediate, error) {
	cmd, err := ctx.GPU().NewCmdBuffer()
	if err != nil {
		return nil, errors.Wrap(err, "engine: creating immediate command buffer")
	}
	fence, err := ctx.GPU().NewFence(false)
	if err != nil {
		cmd.Destroy()
		return nil, errors.Wrap(err, "engine: creating immediate fence")
	}
	return &Immediate{
		gpu:     ctx.GPU(),
		cmd:     cmd,
		fence:   fence,
		timeout: timeout,
	}, nil
}

// Submit records fn, submits it and blocks until the GPU
// completes it or the timeout elapses.
func (im *Immediate) Submit(fn func(cb driver.CmdBuffer)) error {
	if err := im.fence.Reset(); err != nil {
		return errors.Wrap(err, "engine: resetting immediate fence")
	}
	if err := im.cmd.Reset(); err != nil {
		return errors.Wrap(err, "engine: resetting immediate command buffer")
	}
	if err := im.cmd.Begin(); err != nil {
		return errors.Wrap(err, "engine: beginning immediate command buffer")
	}
	fn(im.cmd)
	if err := im.cmd.End(); err != nil {
		return errors.Wrap(err, "engine: ending immediate command buffer")
	}
	if err := im.gpu.Submit(&driver.Submission{
		Cmds:  []driver.CmdBuffer{im.cmd},
		Fence: im.fence,
	}); err != nil {
		return errors.Wrap(err, "engine: submitting immediate command buffer")
	}
	return errors.Wrap(im.fence.Wait(im.timeout), "engine: waiting on immediate submission")
}

// Cleanup destroys the command buffer and the fence.
func (im *Immediate) Cleanup() {
	if im.cmd != nil {
		im.cmd.Destroy()
		im.fence.Destroy()
		im.cmd, im.fence = nil, nil
	}
}
