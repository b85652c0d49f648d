// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package engine

import (
	"errors"
	"slices"
	"testing"

	"github.com/gviegas/deferred/driver"
	"github.com/gviegas/deferred/driver/drivertest"
)

func TestDeletionQueue(t *testing.T) {
	var q DeletionQueue
	var order []int
	for i := range 3 {
		q.Push(func() { order = append(order, i) })
	}
	if n := q.Len(); n != 3 {
		t.Fatalf("DeletionQueue.Len:\nhave %d\nwant 3", n)
	}
	q.Flush()
	if want := []int{2, 1, 0}; !slices.Equal(order, want) {
		t.Fatalf("DeletionQueue.Flush: order:\nhave %v\nwant %v", order, want)
	}
	if n := q.Len(); n != 0 {
		t.Fatalf("DeletionQueue.Len after Flush:\nhave %d\nwant 0", n)
	}
	q.Flush()
	if len(order) != 3 {
		t.Fatal("DeletionQueue.Flush: functions called twice")
	}
}

func TestFrameRing(t *testing.T) {
	ctx, gpu, _ := newTestContext(t, testConfig())
	for _, n := range [...]int{0, 1, 2, 3} {
		r, err := NewFrameRing(ctx, n, ctx.Config().FenceTimeout)
		if err != nil {
			t.Fatalf("NewFrameRing: unexpected error: %v", err)
		}
		want := max(n, MinFrame)
		if r.Len() != want {
			t.Fatalf("FrameRing.Len:\nhave %d\nwant %d", r.Len(), want)
		}
		seen := make(map[*FrameData]int)
		for i := range 2 * want {
			f, err := r.Begin()
			if err != nil {
				t.Fatalf("FrameRing.Begin: unexpected error: %v", err)
			}
			if f != r.Current() {
				t.Fatal("FrameRing.Begin: should return the current slot")
			}
			seen[f]++
			if err := r.Submit(gpu); err != nil {
				t.Fatalf("FrameRing.Submit: unexpected error: %v", err)
			}
			r.Advance()
			if r.Number() != i+1 {
				t.Fatalf("FrameRing.Number:\nhave %d\nwant %d", r.Number(), i+1)
			}
		}
		if len(seen) != want {
			t.Fatalf("FrameRing: distinct slots:\nhave %d\nwant %d", len(seen), want)
		}
		for _, k := range seen {
			if k != 2 {
				t.Fatalf("FrameRing: slot reuse:\nhave %d\nwant 2", k)
			}
		}
		r.Cleanup()
	}
}

// The fence of a slot is waited on before it is reset,
// and both happen before the command buffer is reset and
// recorded again.
func TestFrameRingWaitBeforeReset(t *testing.T) {
	ctx, gpu, _ := newTestContext(t, testConfig())
	r, err := NewFrameRing(ctx, 2, ctx.Config().FenceTimeout)
	if err != nil {
		t.Fatalf("NewFrameRing: unexpected error: %v", err)
	}
	defer r.Cleanup()
	var flushed int
	for range 6 {
		gpu.ClearEvents()
		f, err := r.Begin()
		if err != nil {
			t.Fatalf("FrameRing.Begin: unexpected error: %v", err)
		}
		fence := f.Fence.(*drivertest.Fence).ID
		cmd := f.Cmd.(*drivertest.CmdBuffer).ID
		want := []drivertest.Event{
			{Kind: drivertest.EvFenceWait, ID: fence},
			{Kind: drivertest.EvFenceReset, ID: fence},
			{Kind: drivertest.EvCmdReset, ID: cmd},
			{Kind: drivertest.EvCmdBegin, ID: cmd},
		}
		if have := gpu.Events(); !slices.Equal(have, want) {
			t.Fatalf("FrameRing.Begin: events:\nhave %v\nwant %v", have, want)
		}
		f.Deletion.Push(func() { flushed++ })
		r.Submit(gpu)
		r.Advance()
	}
	// The last two slots have not been reused yet.
	if flushed != 4 {
		t.Fatalf("FrameRing.Begin: deletion queue flushes:\nhave %d\nwant 4", flushed)
	}
	sub := gpu.Submissions()
	last := sub[len(sub)-1]
	if len(last.Wait) != 1 || last.Wait[0].Stage != driver.SColorOutput {
		t.Fatalf("FrameRing.Submit: wait:\nhave %+v\nwant SwapchainSem at SColorOutput", last.Wait)
	}
	if len(last.Signal) != 1 || last.Fence == nil {
		t.Fatal("FrameRing.Submit: should signal RenderSem and the fence")
	}
}

func TestFrameRingDefer(t *testing.T) {
	ctx, gpu, _ := newTestContext(t, testConfig())
	r, err := NewFrameRing(ctx, 3, ctx.Config().FenceTimeout)
	if err != nil {
		t.Fatalf("NewFrameRing: unexpected error: %v", err)
	}
	frame := func() {
		if _, err := r.Begin(); err != nil {
			t.Fatalf("FrameRing.Begin: unexpected error: %v", err)
		}
		r.Submit(gpu)
		r.Advance()
	}
	frame()
	frame()
	var ran bool
	r.Defer(func() { ran = true })
	// Frame 1 was the last submitted, so the function
	// runs when frame 4 begins.
	frame()
	frame()
	if ran {
		t.Fatal("FrameRing.Defer: ran before the slot was reused")
	}
	frame()
	if !ran {
		t.Fatal("FrameRing.Defer: did not run when the slot was reused")
	}

	ran = false
	r.Defer(func() { ran = true })
	r.Cleanup()
	if !ran {
		t.Fatal("FrameRing.Cleanup: deferred function not run")
	}
}

func TestFrameRingTimeout(t *testing.T) {
	ctx, gpu, _ := newTestContext(t, testConfig())
	r, err := NewFrameRing(ctx, 2, ctx.Config().FenceTimeout)
	if err != nil {
		t.Fatalf("NewFrameRing: unexpected error: %v", err)
	}
	defer r.Cleanup()
	gpu.Faults.FenceTimeout = true
	if _, err := r.Begin(); !errors.Is(err, driver.ErrTimeout) {
		t.Fatalf("FrameRing.Begin:\nhave %v\nwant %v", err, driver.ErrTimeout)
	}
	if r.Current().Cmd.IsRecording() {
		t.Fatal("FrameRing.Begin: recording after fence timeout")
	}
}

func TestFrameRingAbort(t *testing.T) {
	ctx, gpu, _ := newTestContext(t, testConfig())
	r, err := NewFrameRing(ctx, 2, ctx.Config().FenceTimeout)
	if err != nil {
		t.Fatalf("NewFrameRing: unexpected error: %v", err)
	}
	defer r.Cleanup()
	f, _ := r.Begin()
	if err := r.Abort(gpu); err != nil {
		t.Fatalf("FrameRing.Abort: unexpected error: %v", err)
	}
	if f.Cmd.IsRecording() {
		t.Fatal("FrameRing.Abort: command buffer still recording")
	}
	if !f.Fence.(*drivertest.Fence).Signaled() {
		t.Fatal("FrameRing.Abort: fence not signaled")
	}
	sub := gpu.Submissions()
	if len(sub) != 1 || len(sub[0].Cmds) != 0 {
		t.Fatalf("FrameRing.Abort: commands were submitted: %+v", sub)
	}
	// The slot can be used again.
	if _, err := r.Begin(); err != nil {
		t.Fatalf("FrameRing.Begin after Abort: unexpected error: %v", err)
	}
}

func TestImmediate(t *testing.T) {
	ctx, gpu, _ := newTestContext(t, testConfig())
	imm, err := NewImmediate(ctx, ctx.Config().ImmediateTimeout)
	if err != nil {
		t.Fatalf("NewImmediate: unexpected error: %v", err)
	}
	defer imm.Cleanup()
	var called int
	for range 3 {
		if err := imm.Submit(func(cb driver.CmdBuffer) {
			if !cb.IsRecording() {
				t.Fatal("Immediate.Submit: fn called outside recording")
			}
			called++
		}); err != nil {
			t.Fatalf("Immediate.Submit: unexpected error: %v", err)
		}
	}
	if called != 3 || len(gpu.Submissions()) != 3 {
		t.Fatalf("Immediate.Submit: calls/submissions:\nhave %d/%d\nwant 3/3", called, len(gpu.Submissions()))
	}
	gpu.Faults.FenceTimeout = true
	if err := imm.Submit(func(driver.CmdBuffer) {}); !errors.Is(err, driver.ErrTimeout) {
		t.Fatalf("Immediate.Submit:\nhave %v\nwant %v", err, driver.ErrTimeout)
	}
}
