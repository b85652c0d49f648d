// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package vk

import (
	vk "github.com/goki/vulkan"

	"github.com/gviegas/deferred/driver"
)

// buffer implements driver.Buffer.
type buffer struct {
	m    *memory
	buf  vk.Buffer
	addr uint64
}

// NewBuffer creates a new buffer.
// Host-visible buffers stay mapped until destroyed.
func (d *Driver) NewBuffer(size int64, visible bool, usg driver.Usage) (driver.Buffer, error) {
	if size <= 0 {
		panic("buffer size must be greater than 0")
	}
	info := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(size),
		Usage:       convBufferUsage(usg),
		SharingMode: vk.SharingModeExclusive,
	}
	var buf vk.Buffer
	if err := checkResult(vk.CreateBuffer(d.dev, &info, nil, &buf)); err != nil {
		return nil, err
	}
	var req vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(d.dev, buf, &req)
	req.Deref()
	addr := usg&driver.UAddress != 0
	m, err := d.newMemory(&req, visible, addr)
	if err != nil {
		vk.DestroyBuffer(d.dev, buf, nil)
		return nil, err
	}
	b := &buffer{m: m, buf: buf}
	if err := checkResult(vk.BindBufferMemory(d.dev, buf, m.mem, 0)); err != nil {
		b.Destroy()
		return nil, err
	}
	if visible {
		if err := m.mmap(); err != nil {
			b.Destroy()
			return nil, err
		}
	}
	if addr {
		b.addr = d.procs.bufferAddr(d.dev, buf)
	}
	return b, nil
}

// Visible returns whether the buffer is host visible.
func (b *buffer) Visible() bool { return b.m.vis }

// Bytes returns a slice of length b.Cap() referring to
// the mapped memory.
func (b *buffer) Bytes() []byte { return b.m.p }

// Cap returns the capacity of the buffer.
func (b *buffer) Cap() int64 { return b.m.size }

// Addr returns the device address of the buffer.
func (b *buffer) Addr() uint64 { return b.addr }

// Destroy destroys the buffer.
func (b *buffer) Destroy() {
	if b == nil {
		return
	}
	if b.m != nil {
		vk.DestroyBuffer(b.m.d.dev, b.buf, nil)
		b.m.free()
	}
	*b = buffer{}
}
