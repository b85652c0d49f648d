// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package vk

import (
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/gviegas/deferred/driver"
)

// cmdBuffer implements driver.CmdBuffer.
type cmdBuffer struct {
	d    *Driver
	pool vk.CommandPool
	cb   vk.CommandBuffer
	rec  bool

	// Pass state.
	pass   vk.RenderPass
	inPass bool

	// Bound shaders.
	vert, frag, comp *shader
	// Set when BindShaders is given an invalid shader.
	invalid bool

	rs      driver.RasterState
	hasRS   bool
	bound   vk.Pipeline
	dirty   bool
	compSet bool
}

// NewCmdBuffer creates a new command buffer.
// Each command buffer has its own command pool.
func (d *Driver) NewCmdBuffer() (driver.CmdBuffer, error) {
	info := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateTransientBit),
		QueueFamilyIndex: d.qfam,
	}
	var pool vk.CommandPool
	if err := checkResult(vk.CreateCommandPool(d.dev, &info, nil, &pool)); err != nil {
		return nil, err
	}
	cbs := make([]vk.CommandBuffer, 1)
	ainfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        pool,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	}
	if err := checkResult(vk.AllocateCommandBuffers(d.dev, &ainfo, cbs)); err != nil {
		vk.DestroyCommandPool(d.dev, pool, nil)
		return nil, err
	}
	return &cmdBuffer{d: d, pool: pool, cb: cbs[0]}, nil
}

// Begin prepares the command buffer for recording.
func (cb *cmdBuffer) Begin() error {
	if cb.rec {
		panic("command buffer is already recording")
	}
	info := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	}
	if err := checkResult(vk.BeginCommandBuffer(cb.cb, &info)); err != nil {
		return err
	}
	cb.clearState()
	cb.rec = true
	return nil
}

// End ends recording.
func (cb *cmdBuffer) End() error {
	if !cb.rec {
		panic("command buffer is not recording")
	}
	cb.rec = false
	return checkResult(vk.EndCommandBuffer(cb.cb))
}

// Reset discards all recorded commands.
func (cb *cmdBuffer) Reset() error {
	cb.rec = false
	cb.clearState()
	return checkResult(vk.ResetCommandPool(cb.d.dev, cb.pool, 0))
}

// clearState clears the state tracked between commands.
func (cb *cmdBuffer) clearState() {
	cb.pass = vk.RenderPass(vk.NullHandle)
	cb.inPass = false
	cb.vert, cb.frag, cb.comp = nil, nil, nil
	cb.invalid = false
	cb.hasRS = false
	cb.bound = vk.Pipeline(vk.NullHandle)
	cb.dirty = true
	cb.compSet = false
}

// IsRecording returns whether the command buffer is
// recording.
func (cb *cmdBuffer) IsRecording() bool { return cb.rec }

// Barrier inserts global barriers.
func (cb *cmdBuffer) Barrier(b []driver.Barrier) {
	if len(b) == 0 {
		return
	}
	var src, dst vk.PipelineStageFlags
	mbs := make([]vk.MemoryBarrier, len(b))
	for i := range b {
		src |= convSync(b[i].SyncBefore, true)
		dst |= convSync(b[i].SyncAfter, false)
		mbs[i] = vk.MemoryBarrier{
			SType:         vk.StructureTypeMemoryBarrier,
			SrcAccessMask: convAccess(b[i].AccessBefore),
			DstAccessMask: convAccess(b[i].AccessAfter),
		}
	}
	vk.CmdPipelineBarrier(cb.cb, src, dst, 0, uint32(len(mbs)), mbs, 0, nil, 0, nil)
}

// BufferBarrier inserts buffer range barriers.
func (cb *cmdBuffer) BufferBarrier(b []driver.BufferBarrier) {
	if len(b) == 0 {
		return
	}
	var src, dst vk.PipelineStageFlags
	bbs := make([]vk.BufferMemoryBarrier, len(b))
	for i := range b {
		src |= convSync(b[i].SyncBefore, true)
		dst |= convSync(b[i].SyncAfter, false)
		size := vk.DeviceSize(b[i].Size)
		if size == 0 {
			size = vk.DeviceSize(vk.WholeSize)
		}
		bbs[i] = vk.BufferMemoryBarrier{
			SType:               vk.StructureTypeBufferMemoryBarrier,
			SrcAccessMask:       convAccess(b[i].AccessBefore),
			DstAccessMask:       convAccess(b[i].AccessAfter),
			SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
			DstQueueFamilyIndex: vk.QueueFamilyIgnored,
			Buffer:              b[i].Buf.(*buffer).buf,
			Offset:              vk.DeviceSize(b[i].Off),
			Size:                size,
		}
	}
	vk.CmdPipelineBarrier(cb.cb, src, dst, 0, 0, nil, uint32(len(bbs)), bbs, 0, nil)
}

// Transition inserts image layout transitions.
func (cb *cmdBuffer) Transition(t []driver.Transition) {
	if len(t) == 0 {
		return
	}
	var src, dst vk.PipelineStageFlags
	ibs := make([]vk.ImageMemoryBarrier, len(t))
	for i := range t {
		src |= convSync(t[i].SyncBefore, true)
		dst |= convSync(t[i].SyncAfter, false)
		im := t[i].Img.(*image)
		ibs[i] = vk.ImageMemoryBarrier{
			SType:               vk.StructureTypeImageMemoryBarrier,
			SrcAccessMask:       convAccess(t[i].AccessBefore),
			DstAccessMask:       convAccess(t[i].AccessAfter),
			OldLayout:           convLayout(t[i].LayoutBefore),
			NewLayout:           convLayout(t[i].LayoutAfter),
			SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
			DstQueueFamilyIndex: vk.QueueFamilyIgnored,
			Image:               im.img,
			SubresourceRange:    im.subresource(),
		}
	}
	vk.CmdPipelineBarrier(cb.cb, src, dst, 0, 0, nil, 0, nil, uint32(len(ibs)), ibs)
}

// BeginPass begins a render pass.
// Failing to create the render pass or framebuffer
// leaves the command buffer outside a pass, so the draws
// that follow record nothing.
func (cb *cmdBuffer) BeginPass(pass *driver.PassDesc) {
	if cb.inPass {
		panic("BeginPass must not be nested")
	}
	rp, fb, err := cb.d.passes.get(pass)
	if err != nil {
		return
	}
	clears := make([]vk.ClearValue, 0, len(pass.Color)+1)
	for _, ct := range pass.Color {
		clears = append(clears, vk.NewClearValue(ct.Clear.Color[:]))
	}
	if pass.DS != nil {
		clears = append(clears, vk.NewClearDepthStencil(pass.DS.Clear.Depth, pass.DS.Clear.Stencil))
	}
	vk.CmdBeginRenderPass(cb.cb, &vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  rp,
		Framebuffer: fb,
		RenderArea: vk.Rect2D{
			Extent: vk.Extent2D{Width: uint32(pass.Width), Height: uint32(pass.Height)},
		},
		ClearValueCount: uint32(len(clears)),
		PClearValues:    clears,
	}, vk.SubpassContentsInline)
	cb.pass = rp
	cb.inPass = true
	cb.dirty = true
}

// EndPass ends the current render pass.
func (cb *cmdBuffer) EndPass() {
	if !cb.inPass {
		return
	}
	vk.CmdEndRenderPass(cb.cb)
	cb.inPass = false
	cb.bound = vk.Pipeline(vk.NullHandle)
}

// ClearColor clears a color image.
func (cb *cmdBuffer) ClearColor(img driver.Image, layout driver.Layout, color [4]float32) {
	im := img.(*image)
	var val vk.ClearColorValue
	*(*[4]float32)(unsafe.Pointer(&val)) = color
	rng := im.subresource()
	vk.CmdClearColorImage(cb.cb, im.img, convLayout(layout), &val, 1, []vk.ImageSubresourceRange{rng})
}

// BindShaders binds shaders to their stages.
func (cb *cmdBuffer) BindShaders(stages []driver.Stage, shaders []driver.Shader) error {
	for i, st := range stages {
		var s *shader
		if i < len(shaders) && shaders[i] != nil {
			var ok bool
			if s, ok = shaders[i].(*shader); !ok || s.d == nil || s.stage != st {
				cb.invalid = true
				return driver.ErrInvalidShader
			}
		}
		switch st {
		case driver.SVertex:
			cb.vert = s
		case driver.SFragment:
			cb.frag = s
		case driver.SCompute:
			cb.comp = s
			cb.compSet = false
		}
	}
	cb.invalid = false
	cb.dirty = true
	return nil
}

// SetRaster sets the rasterization state of the next
// draws.
func (cb *cmdBuffer) SetRaster(rs *driver.RasterState) {
	cb.rs = *rs
	cb.hasRS = true
	cb.dirty = true
	vk.CmdSetViewport(cb.cb, 0, 1, []vk.Viewport{{
		X:        rs.Viewport.X,
		Y:        rs.Viewport.Y,
		Width:    rs.Viewport.Width,
		Height:   rs.Viewport.Height,
		MinDepth: rs.Viewport.Znear,
		MaxDepth: rs.Viewport.Zfar,
	}})
	vk.CmdSetScissor(cb.cb, 0, 1, []vk.Rect2D{{
		Offset: vk.Offset2D{X: int32(rs.Scissor.X), Y: int32(rs.Scissor.Y)},
		Extent: vk.Extent2D{Width: uint32(rs.Scissor.Width), Height: uint32(rs.Scissor.Height)},
	}})
}

// flushGraphics binds the graphics pipeline that matches
// the current state.
func (cb *cmdBuffer) flushGraphics() error {
	if cb.invalid || !cb.inPass || !cb.hasRS || cb.vert == nil {
		return driver.ErrInvalidShader
	}
	if !cb.dirty {
		return nil
	}
	k := pipeKey{
		vert:   cb.vert,
		frag:   cb.frag,
		layout: cb.vert.layout,
		pass:   cb.pass,
		rs:     cb.rs,
	}
	if k.layout == nil {
		return driver.ErrInvalidShader
	}
	k.rs.Viewport = driver.Viewport{}
	k.rs.Scissor = driver.Scissor{}
	p, err := cb.d.pipes.get(&k)
	if err != nil {
		cb.invalid = true
		return err
	}
	if p != cb.bound {
		vk.CmdBindPipeline(cb.cb, vk.PipelineBindPointGraphics, p)
		cb.bound = p
	}
	cb.dirty = false
	return nil
}

// SetDescSets binds descriptor sets.
func (cb *cmdBuffer) SetDescSets(pl driver.PipelineLayout, compute bool, start int, ds []driver.DescSet) {
	if len(ds) == 0 {
		return
	}
	sets := make([]vk.DescriptorSet, len(ds))
	for i := range ds {
		sets[i] = ds[i].(*descSet).set
	}
	bp := vk.PipelineBindPointGraphics
	if compute {
		bp = vk.PipelineBindPointCompute
	}
	vk.CmdBindDescriptorSets(cb.cb, bp, pl.(*pipelineLayout).layout, uint32(start), uint32(len(sets)), sets, 0, nil)
}

// PushConstants updates push constant data.
func (cb *cmdBuffer) PushConstants(pl driver.PipelineLayout, stages driver.Stage, off int, data []byte) {
	if len(data) == 0 {
		return
	}
	vk.CmdPushConstants(cb.cb, pl.(*pipelineLayout).layout, convStage(stages), uint32(off), uint32(len(data)), unsafe.Pointer(&data[0]))
}

// SetIndexBuf sets the index buffer.
func (cb *cmdBuffer) SetIndexBuf(format driver.IndexFmt, buf driver.Buffer, off int64) {
	vk.CmdBindIndexBuffer(cb.cb, buf.(*buffer).buf, vk.DeviceSize(off), convIndexFmt(format))
}

// Draw draws primitives.
func (cb *cmdBuffer) Draw(vertCount, instCount, baseVert, baseInst int) error {
	if err := cb.flushGraphics(); err != nil {
		return err
	}
	vk.CmdDraw(cb.cb, uint32(vertCount), uint32(instCount), uint32(baseVert), uint32(baseInst))
	return nil
}

// DrawIndexed draws indexed primitives.
func (cb *cmdBuffer) DrawIndexed(idxCount, instCount, baseIdx, vertOff, baseInst int) error {
	if err := cb.flushGraphics(); err != nil {
		return err
	}
	vk.CmdDrawIndexed(cb.cb, uint32(idxCount), uint32(instCount), uint32(baseIdx), int32(vertOff), uint32(baseInst))
	return nil
}

// Dispatch dispatches compute thread groups.
func (cb *cmdBuffer) Dispatch(grpCountX, grpCountY, grpCountZ int) error {
	if cb.invalid || cb.comp == nil || cb.inPass {
		return driver.ErrInvalidShader
	}
	if !cb.compSet {
		vk.CmdBindPipeline(cb.cb, vk.PipelineBindPointCompute, cb.comp.pipe)
		cb.compSet = true
	}
	vk.CmdDispatch(cb.cb, uint32(grpCountX), uint32(grpCountY), uint32(grpCountZ))
	return nil
}

// CopyBuffer copies data between buffers.
func (cb *cmdBuffer) CopyBuffer(param *driver.BufferCopy) {
	vk.CmdCopyBuffer(cb.cb, param.From.(*buffer).buf, param.To.(*buffer).buf, 1, []vk.BufferCopy{{
		SrcOffset: vk.DeviceSize(param.FromOff),
		DstOffset: vk.DeviceSize(param.ToOff),
		Size:      vk.DeviceSize(param.Size),
	}})
}

// BlitImage copies a region of an image to a region of
// another, scaling as needed.
func (cb *cmdBuffer) BlitImage(param *driver.ImageBlit) {
	from := param.From.(*image)
	to := param.To.(*image)
	region := vk.ImageBlit{
		SrcSubresource: vk.ImageSubresourceLayers{
			AspectMask: aspectOf(from.fmt),
			LayerCount: 1,
		},
		SrcOffsets: [2]vk.Offset3D{
			{X: int32(param.FromOff.X), Y: int32(param.FromOff.Y), Z: int32(param.FromOff.Z)},
			{
				X: int32(param.FromOff.X + param.FromSize.Width),
				Y: int32(param.FromOff.Y + param.FromSize.Height),
				Z: int32(param.FromOff.Z + max(param.FromSize.Depth, 1)),
			},
		},
		DstSubresource: vk.ImageSubresourceLayers{
			AspectMask: aspectOf(to.fmt),
			LayerCount: 1,
		},
		DstOffsets: [2]vk.Offset3D{
			{X: int32(param.ToOff.X), Y: int32(param.ToOff.Y), Z: int32(param.ToOff.Z)},
			{
				X: int32(param.ToOff.X + param.ToSize.Width),
				Y: int32(param.ToOff.Y + param.ToSize.Height),
				Z: int32(param.ToOff.Z + max(param.ToSize.Depth, 1)),
			},
		},
	}
	vk.CmdBlitImage(cb.cb, from.img, vk.ImageLayoutTransferSrcOptimal, to.img, vk.ImageLayoutTransferDstOptimal,
		1, []vk.ImageBlit{region}, convFilter(param.Filter))
}

// Destroy destroys the command buffer and its pool.
func (cb *cmdBuffer) Destroy() {
	if cb == nil {
		return
	}
	if cb.d != nil {
		vk.DestroyCommandPool(cb.d.dev, cb.pool, nil)
	}
	*cb = cmdBuffer{}
}
