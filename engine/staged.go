// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package engine

import (
	"unsafe"

	"github.com/gviegas/deferred/driver"
)

// StagedBuffer pairs host-visible staging buffers with
// a device buffer of identical capacity.
// Elements are written to the current staging buffer and
// reach the device buffer only through
// RecordCopyToDevice.
// There is one staging buffer per frame in flight, so
// that staging never overwrites the source of a copy
// that the GPU may not have executed yet. This holds as
// long as copies are recorded at most once per frame.
// T must not contain pointers.
type StagedBuffer[T any] struct {
	staging []*AllocatedBuffer
	// Index of the current staging buffer.
	slot   int
	device *AllocatedBuffer
	cap    int
	// Number of valid elements in the staging buffer.
	staged int
	// Number of elements copied by the last
	// RecordCopyToDevice call.
	devSize int
}

// NewStagedBuffer creates a StagedBuffer that holds at
// most capacity elements.
// usg is added to the device buffer's usage, which
// always includes copies and device addressing.
func NewStagedBuffer[T any](ctx *Context, usg driver.Usage, capacity int) (b *StagedBuffer[T], err error) {
	size := int64(capacity) * int64(unsafe.Sizeof(*new(T)))
	b = &StagedBuffer[T]{
		staging: make([]*AllocatedBuffer, max(1, ctx.Config().FramesInFlight)),
		cap:     capacity,
	}
	defer func() {
		if err != nil {
			b.Cleanup()
			b = nil
		}
	}()
	if b.device, err = AllocateBuffer(ctx, size, false, usg|driver.UCopyDst|driver.UCopySrc|driver.UAddress); err != nil {
		return
	}
	for i := range b.staging {
		if b.staging[i], err = AllocateBuffer(ctx, size, true, driver.UCopySrc|driver.UCopyDst); err != nil {
			return
		}
	}
	return
}

// sizeOf returns the size of T in bytes.
func sizeOf[T any]() int { return int(unsafe.Sizeof(*new(T))) }

func (b *StagedBuffer[T]) elemSize() int64 { return int64(sizeOf[T]()) }

// elems returns the whole memory of the current staging
// buffer as a slice of T.
func (b *StagedBuffer[T]) elems() []T { return b.slotElems(b.slot) }

func (b *StagedBuffer[T]) slotElems(slot int) []T {
	if b.cap == 0 {
		return nil
	}
	p := unsafe.Pointer(unsafe.SliceData(b.staging[slot].Buffer.Bytes()))
	return unsafe.Slice((*T)(p), b.cap)
}

// Stage replaces the staged elements with data.
// It fails with ErrCapacity, leaving b unchanged, if
// data does not fit.
func (b *StagedBuffer[T]) Stage(data []T) error {
	if len(data) > b.cap {
		return ErrCapacity
	}
	copy(b.elems(), data)
	b.staged = len(data)
	return nil
}

// Push appends data to the staged elements.
// It fails with ErrCapacity, leaving b unchanged, if
// data does not fit.
func (b *StagedBuffer[T]) Push(data ...T) error {
	if len(data) > b.cap-b.staged {
		return ErrCapacity
	}
	copy(b.elems()[b.staged:], data)
	b.staged += len(data)
	return nil
}

// ClearStaged discards the staged elements.
// The buffers are not deallocated.
func (b *StagedBuffer[T]) ClearStaged() { b.staged = 0 }

// Truncate discards the staged elements past the first
// n. It has no effect if n >= StagedSize.
func (b *StagedBuffer[T]) Truncate(n int) { b.staged = max(0, min(n, b.staged)) }

// StagedSize returns the number of staged elements.
func (b *StagedBuffer[T]) StagedSize() int { return b.staged }

// DeviceSize returns the number of elements that the
// last copy to the device transferred.
func (b *StagedBuffer[T]) DeviceSize() int { return b.devSize }

// Capacity returns the maximum number of elements.
func (b *StagedBuffer[T]) Capacity() int { return b.cap }

// MapValidStaged returns the staged elements.
// The slice aliases the current staging memory, so
// writes to it are staged. It is valid until the next
// call to RecordCopyToDevice.
func (b *StagedBuffer[T]) MapValidStaged() []T { return b.elems()[:b.staged:b.staged] }

// ReadValidStaged returns a copy of the staged elements.
func (b *StagedBuffer[T]) ReadValidStaged() []T {
	return append([]T(nil), b.MapValidStaged()...)
}

// RecordCopyToDevice records a copy of the staged
// elements into the device buffer and moves them to the
// next staging buffer.
// Prior shader reads of the device buffer are made to
// complete before the copy writes it. Nothing is
// recorded when no elements are staged.
// RecordTotalCopyBarrier must be recorded before any
// shader reads the device buffer.
func (b *StagedBuffer[T]) RecordCopyToDevice(cb driver.CmdBuffer) {
	b.devSize = b.staged
	if b.staged == 0 {
		return
	}
	size := int64(b.staged) * b.elemSize()
	cb.BufferBarrier([]driver.BufferBarrier{{
		Barrier: driver.Barrier{
			SyncBefore:   driver.SAll,
			SyncAfter:    driver.SCopy,
			AccessBefore: driver.AShaderRead,
			AccessAfter:  driver.ACopyWrite,
		},
		Buf:  b.device.Buffer,
		Size: size,
	}})
	cb.CopyBuffer(&driver.BufferCopy{
		From: b.staging[b.slot].Buffer,
		To:   b.device.Buffer,
		Size: size,
	})
	next := (b.slot + 1) % len(b.staging)
	if next != b.slot {
		copy(b.slotElems(next), b.elems()[:b.staged])
		b.slot = next
	}
}

// RecordTotalCopyBarrier records a barrier that makes
// the whole device buffer, as written by copies, ready
// for access by the given stages.
func (b *StagedBuffer[T]) RecordTotalCopyBarrier(cb driver.CmdBuffer, stages driver.Sync, access driver.Access) {
	cb.BufferBarrier([]driver.BufferBarrier{{
		Barrier: driver.Barrier{
			SyncBefore:   driver.SCopy,
			SyncAfter:    stages,
			AccessBefore: driver.ACopyWrite,
			AccessAfter:  access,
		},
		Buf: b.device.Buffer,
	}})
}

// Addr returns the device buffer's address.
func (b *StagedBuffer[T]) Addr() uint64 { return b.device.Addr() }

// Device returns the device buffer.
func (b *StagedBuffer[T]) Device() driver.Buffer { return b.device.Buffer }

// Cleanup destroys both buffers.
// It is a no-op on a nil b.
func (b *StagedBuffer[T]) Cleanup() {
	if b == nil {
		return
	}
	for _, s := range b.staging {
		if s != nil {
			s.Cleanup()
		}
	}
	if b.device != nil {
		b.device.Cleanup()
	}
	b.staging, b.device = nil, nil
	b.slot, b.cap, b.staged, b.devSize = 0, 0, 0, 0
}
