// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package engine

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/gviegas/deferred/driver"
	"github.com/gviegas/deferred/engine/internal/shader"
)

// Debug line shaders.
const (
	debugLineVert = "debug/debugline.vert.spv"
	debugLineFrag = "debug/debugline.frag.spv"
)

// DebugLineParams controls debug line drawing.
type DebugLineParams struct {
	Enabled bool
}

// DebugLines is a per-frame list of line segments drawn
// over the scene. Lines are cleared every tick.
type DebugLines struct {
	Params *Control[DebugLineParams]

	indices  *StagedBuffer[uint32]
	vertices *StagedBuffer[Vertex]

	pipeLayout driver.PipelineLayout
	vert       ShaderObject
	frag       ShaderObject
	warned     bool
}

// NewDebugLines creates buffers for maxLines lines and
// loads the line shaders.
func NewDebugLines(ctx *Context, maxLines int) (d *DebugLines, err error) {
	srcs := readShaders(ctx, []ShaderRequest{
		{Path: debugLineVert, Stage: driver.SVertex, Next: driver.SFragment, PushSize: sizeOf[shader.LinePush]()},
		{Path: debugLineFrag, Stage: driver.SFragment},
	})
	d = &DebugLines{
		Params: NewControl("DebugLines", DebugLineParams{Enabled: true}),
	}
	defer func() {
		if err != nil {
			d.Cleanup()
			d = nil
		}
	}()
	if d.indices, err = NewStagedBuffer[uint32](ctx, driver.UIndexData, 2*maxLines); err != nil {
		return
	}
	if d.vertices, err = NewStagedBuffer[Vertex](ctx, driver.UShaderRead, 2*maxLines); err != nil {
		return
	}
	d.pipeLayout = newPipelineLayout(ctx, nil, &srcs[0], &srcs[1])
	d.vert = newShaderObject(ctx, &srcs[0], d.pipeLayout)
	d.frag = newShaderObject(ctx, &srcs[1], d.pipeLayout)
	return
}

// Push adds a line from start to end.
// The start is colored red and the end blue.
// It fails with ErrCapacity when the buffers are full.
func (d *DebugLines) Push(start, end mgl32.Vec3) error {
	idx := uint32(d.vertices.StagedSize())
	if d.vertices.Capacity()-int(idx) < 2 || d.indices.Capacity()-d.indices.StagedSize() < 2 {
		return ErrCapacity
	}
	d.vertices.Push(
		Vertex{Position: start, UVX: 0, Color: [4]float32{1, 0, 0, 1}},
		Vertex{Position: end, UVX: 1, Color: [4]float32{0, 0, 1, 1}},
	)
	d.indices.Push(idx, idx+1)
	return nil
}

// PushQuad adds the four edges a-b, b-c, c-d and d-a.
func (d *DebugLines) PushQuad(a, b, c, e mgl32.Vec3) error {
	for _, l := range [...][2]mgl32.Vec3{{a, b}, {b, c}, {c, e}, {e, a}} {
		if err := d.Push(l[0], l[1]); err != nil {
			return err
		}
	}
	return nil
}

// PushRectangleAxes adds a rectangle whose half extents
// are given by the axes extentA and extentB.
func (d *DebugLines) PushRectangleAxes(center, extentA, extentB mgl32.Vec3) error {
	return d.PushQuad(
		center.Add(extentA).Add(extentB),
		center.Add(extentA).Sub(extentB),
		center.Sub(extentA).Sub(extentB),
		center.Sub(extentA).Add(extentB),
	)
}

// PushRectangleOriented adds a rectangle lying on the
// plane spanned by the right and forward axes rotated by
// q, with half extents extent.
func (d *DebugLines) PushRectangleOriented(center mgl32.Vec3, q mgl32.Quat, extent mgl32.Vec2) error {
	right := q.Rotate(worldRight.Mul(extent[0]))
	fwd := q.Rotate(worldForward.Mul(extent[1]))
	return d.PushRectangleAxes(center, right, fwd)
}

// PushBox adds the six faces of a box with half extents
// extent rotated by q.
func (d *DebugLines) PushBox(center mgl32.Vec3, q mgl32.Quat, extent mgl32.Vec3) error {
	axes := [3]mgl32.Vec3{
		q.Rotate(mgl32.Vec3{extent[0], 0, 0}),
		q.Rotate(mgl32.Vec3{0, extent[1], 0}),
		q.Rotate(mgl32.Vec3{0, 0, extent[2]}),
	}
	for i := range axes {
		a, b := axes[(i+1)%3], axes[(i+2)%3]
		for _, c := range [...]mgl32.Vec3{center.Add(axes[i]), center.Sub(axes[i])} {
			if err := d.PushRectangleAxes(c, a, b); err != nil {
				return err
			}
		}
	}
	return nil
}

// Len returns the number of lines pushed since the last
// Clear.
func (d *DebugLines) Len() int { return d.indices.StagedSize() / 2 }

// Clear removes every line.
func (d *DebugLines) Clear() {
	d.indices.ClearStaged()
	d.vertices.ClearStaged()
}

// RecordCopy copies the lines to the device.
func (d *DebugLines) RecordCopy(cb driver.CmdBuffer) {
	d.indices.RecordCopyToDevice(cb)
	d.vertices.RecordCopyToDevice(cb)
	d.indices.RecordTotalCopyBarrier(cb, driver.SVertexInput, driver.AIndexBufRead)
	d.vertices.RecordTotalCopyBarrier(cb, driver.SVertexShading, driver.AShaderRead)
}

// lineDraw is the input of DebugLines.record.
type lineDraw struct {
	color       *AllocatedImage
	depth       *AllocatedImage
	extent      driver.Dim3D
	cameras     *StagedBuffer[shader.CameraLayout]
	cameraIndex uint32
}

// record draws the lines into l.color, testing against
// l.depth without writing it. The color image must be in
// layout LCommon and the depth image in LDSRead; both
// end in the same layouts.
// Nothing is recorded if lines are disabled or none
// were pushed.
func (d *DebugLines) record(ctx *Context, cb driver.CmdBuffer, l *lineDraw) {
	if !d.Params.Value().Enabled || d.indices.StagedSize() == 0 {
		return
	}
	if !d.vert.Valid() || !d.frag.Valid() {
		if !d.warned {
			ctx.Logger().Warn("debug lines skipped: invalid shader")
			d.warned = true
		}
		return
	}
	d.RecordCopy(cb)

	transition(cb, l.color.Image, driver.LCommon, driver.LColorTarget)
	cb.BeginPass(&driver.PassDesc{
		Color: []driver.ColorTarget{{
			View:  l.color.View,
			Load:  driver.LLoad,
			Store: driver.SStore,
		}},
		DS: &driver.DSTarget{
			View:     l.depth.View,
			Load:     driver.LLoad,
			Store:    driver.SDontCare,
			ReadOnly: true,
		},
		Width:  l.extent.Width,
		Height: l.extent.Height,
	})
	rs := rasterState(l.extent)
	rs.Topology = driver.TLine
	rs.DepthWrite = false
	rs.ColorCount = 1
	rs.WriteMask[0] = driver.CAll
	cb.SetRaster(&rs)
	stages := []driver.Stage{driver.SVertex, driver.SFragment}
	cb.BindShaders(stages, []driver.Shader{d.vert.Shader(), d.frag.Shader()})
	push := shader.LinePush{
		VertexBuffer: d.vertices.Addr(),
		CameraBuffer: l.cameras.Addr(),
		CameraIndex:  l.cameraIndex,
	}
	d.vert.recordPush(cb, d.pipeLayout, shader.Bytes(&push))
	cb.SetIndexBuf(driver.Index32, d.indices.Device(), 0)
	cb.DrawIndexed(d.indices.DeviceSize(), 1, 0, 0, 0)
	cb.BindShaders(stages, []driver.Shader{nil, nil})
	cb.EndPass()
	transition(cb, l.color.Image, driver.LColorTarget, driver.LCommon)
}

// Cleanup destroys the buffers and shaders.
func (d *DebugLines) Cleanup() {
	d.vert.Cleanup()
	d.frag.Cleanup()
	if d.pipeLayout != nil {
		d.pipeLayout.Destroy()
		d.pipeLayout = nil
	}
	if d.indices != nil {
		d.indices.Cleanup()
		d.indices = nil
	}
	if d.vertices != nil {
		d.vertices.Cleanup()
		d.vertices = nil
	}
}
