// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package vk

import (
	"time"

	vk "github.com/goki/vulkan"

	"github.com/gviegas/deferred/driver"
)

// fence implements driver.Fence.
type fence struct {
	d     *Driver
	fence vk.Fence
}

// NewFence creates a new fence.
func (d *Driver) NewFence(signaled bool) (driver.Fence, error) {
	info := vk.FenceCreateInfo{SType: vk.StructureTypeFenceCreateInfo}
	if signaled {
		info.Flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}
	f := &fence{d: d}
	if err := checkResult(vk.CreateFence(d.dev, &info, nil, &f.fence)); err != nil {
		return nil, err
	}
	return f, nil
}

// Wait waits for the fence to be signaled.
func (f *fence) Wait(timeout time.Duration) error {
	res := vk.WaitForFences(f.d.dev, 1, []vk.Fence{f.fence}, vk.True, uint64(max(timeout, 0)))
	return checkResult(res)
}

// Reset resets the fence.
func (f *fence) Reset() error {
	return checkResult(vk.ResetFences(f.d.dev, 1, []vk.Fence{f.fence}))
}

// Destroy destroys the fence.
func (f *fence) Destroy() {
	if f == nil {
		return
	}
	if f.d != nil {
		vk.DestroyFence(f.d.dev, f.fence, nil)
	}
	*f = fence{}
}

// semaphore implements driver.Semaphore.
type semaphore struct {
	d   *Driver
	sem vk.Semaphore
}

// NewSemaphore creates a new binary semaphore.
func (d *Driver) NewSemaphore() (driver.Semaphore, error) {
	info := vk.SemaphoreCreateInfo{SType: vk.StructureTypeSemaphoreCreateInfo}
	s := &semaphore{d: d}
	if err := checkResult(vk.CreateSemaphore(d.dev, &info, nil, &s.sem)); err != nil {
		return nil, err
	}
	return s, nil
}

// Destroy destroys the semaphore.
func (s *semaphore) Destroy() {
	if s == nil {
		return
	}
	if s.d != nil {
		vk.DestroySemaphore(s.d.dev, s.sem, nil)
	}
	*s = semaphore{}
}

// Submit submits command buffers for execution.
func (d *Driver) Submit(sub *driver.Submission) error {
	info := vk.SubmitInfo{
		SType:                vk.StructureTypeSubmitInfo,
		WaitSemaphoreCount:   uint32(len(sub.Wait)),
		CommandBufferCount:   uint32(len(sub.Cmds)),
		SignalSemaphoreCount: uint32(len(sub.Signal)),
	}
	if len(sub.Wait) > 0 {
		info.PWaitSemaphores = make([]vk.Semaphore, len(sub.Wait))
		info.PWaitDstStageMask = make([]vk.PipelineStageFlags, len(sub.Wait))
		for i, w := range sub.Wait {
			info.PWaitSemaphores[i] = w.Sem.(*semaphore).sem
			info.PWaitDstStageMask[i] = convSync(w.Stage, false)
		}
	}
	info.PCommandBuffers = make([]vk.CommandBuffer, len(sub.Cmds))
	for i, cb := range sub.Cmds {
		info.PCommandBuffers[i] = cb.(*cmdBuffer).cb
	}
	if len(sub.Signal) > 0 {
		info.PSignalSemaphores = make([]vk.Semaphore, len(sub.Signal))
		for i, s := range sub.Signal {
			info.PSignalSemaphores[i] = s.(*semaphore).sem
		}
	}
	fnc := vk.Fence(vk.NullHandle)
	if sub.Fence != nil {
		fnc = sub.Fence.(*fence).fence
	}
	d.qmu.Lock()
	defer d.qmu.Unlock()
	return checkResult(vk.QueueSubmit(d.que, 1, []vk.SubmitInfo{info}, fnc))
}
