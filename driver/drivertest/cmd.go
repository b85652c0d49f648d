// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package drivertest

import (
	"github.com/gviegas/deferred/driver"
)

// Op identifies a recorded command.
type Op int

// Recorded commands.
const (
	OpBarrier Op = iota
	OpBufferBarrier
	OpTransition
	OpBeginPass
	OpEndPass
	OpClearColor
	OpBindShaders
	OpSetRaster
	OpSetDescSets
	OpPushConstants
	OpSetIndexBuf
	OpDraw
	OpDrawIndexed
	OpDispatch
	OpCopyBuffer
	OpBlitImage
)

var opNames = [...]string{
	OpBarrier:       "Barrier",
	OpBufferBarrier: "BufferBarrier",
	OpTransition:    "Transition",
	OpBeginPass:     "BeginPass",
	OpEndPass:       "EndPass",
	OpClearColor:    "ClearColor",
	OpBindShaders:   "BindShaders",
	OpSetRaster:     "SetRaster",
	OpSetDescSets:   "SetDescSets",
	OpPushConstants: "PushConstants",
	OpSetIndexBuf:   "SetIndexBuf",
	OpDraw:          "Draw",
	OpDrawIndexed:   "DrawIndexed",
	OpDispatch:      "Dispatch",
	OpCopyBuffer:    "CopyBuffer",
	OpBlitImage:     "BlitImage",
}

func (op Op) String() string {
	if int(op) < len(opNames) {
		return opNames[op]
	}
	return "Op(?)"
}

// Cmd is a recorded command.
// Only the fields relevant to Op are set.
type Cmd struct {
	Op Op

	Barriers    []driver.Barrier
	BufBarriers []driver.BufferBarrier
	Transitions []driver.Transition

	Pass driver.PassDesc

	Stages  []driver.Stage
	Shaders []driver.Shader

	Raster driver.RasterState

	Layout  driver.PipelineLayout
	Compute bool
	Start   int
	Sets    []driver.DescSet

	PushStages driver.Stage
	PushOff    int
	Push       []byte

	IndexFmt driver.IndexFmt
	Buf      driver.Buffer
	BufOff   int64

	// Draw: vertCount, instCount, baseVert, baseInst.
	// DrawIndexed: idxCount, instCount, baseIdx, vertOff, baseInst.
	// Dispatch: x, y, z.
	Args [5]int

	Copy driver.BufferCopy
	Blit driver.ImageBlit

	Img        driver.Image
	ImgLayout  driver.Layout
	ClearColor [4]float32
}

// CmdBuffer implements driver.CmdBuffer.
type CmdBuffer struct {
	gpu       *GPU
	ID        int
	recording bool
	cmds      []Cmd
}

// Cmds returns the commands recorded since the last
// Begin or Reset.
func (cb *CmdBuffer) Cmds() []Cmd { return cb.cmds }

// Begin starts recording.
func (cb *CmdBuffer) Begin() error {
	if cb.recording {
		panic("drivertest: Begin called while recording")
	}
	cb.gpu.event(EvCmdBegin, cb.ID)
	cb.recording = true
	cb.cmds = cb.cmds[:0]
	return nil
}

// End stops recording.
func (cb *CmdBuffer) End() error {
	cb.gpu.event(EvCmdEnd, cb.ID)
	cb.recording = false
	return nil
}

// Reset discards the recorded commands.
func (cb *CmdBuffer) Reset() error {
	cb.gpu.event(EvCmdReset, cb.ID)
	cb.recording = false
	cb.cmds = cb.cmds[:0]
	return nil
}

// IsRecording returns whether cb is recording.
func (cb *CmdBuffer) IsRecording() bool { return cb.recording }

func (cb *CmdBuffer) record(c Cmd) {
	if !cb.recording {
		panic("drivertest: recording " + c.Op.String() + " outside Begin/End")
	}
	cb.cmds = append(cb.cmds, c)
}

// Barrier records OpBarrier.
func (cb *CmdBuffer) Barrier(b []driver.Barrier) {
	cb.record(Cmd{Op: OpBarrier, Barriers: append([]driver.Barrier(nil), b...)})
}

// BufferBarrier records OpBufferBarrier.
func (cb *CmdBuffer) BufferBarrier(b []driver.BufferBarrier) {
	cb.record(Cmd{Op: OpBufferBarrier, BufBarriers: append([]driver.BufferBarrier(nil), b...)})
}

// Transition records OpTransition.
func (cb *CmdBuffer) Transition(t []driver.Transition) {
	cb.record(Cmd{Op: OpTransition, Transitions: append([]driver.Transition(nil), t...)})
}

// BeginPass records OpBeginPass.
func (cb *CmdBuffer) BeginPass(pass *driver.PassDesc) {
	p := *pass
	p.Color = append([]driver.ColorTarget(nil), pass.Color...)
	if pass.DS != nil {
		ds := *pass.DS
		p.DS = &ds
	}
	cb.record(Cmd{Op: OpBeginPass, Pass: p})
}

// EndPass records OpEndPass.
func (cb *CmdBuffer) EndPass() { cb.record(Cmd{Op: OpEndPass}) }

// ClearColor records OpClearColor.
func (cb *CmdBuffer) ClearColor(img driver.Image, layout driver.Layout, color [4]float32) {
	cb.record(Cmd{Op: OpClearColor, Img: img, ImgLayout: layout, ClearColor: color})
}

// BindShaders records OpBindShaders.
func (cb *CmdBuffer) BindShaders(stages []driver.Stage, shaders []driver.Shader) error {
	cb.record(Cmd{
		Op:      OpBindShaders,
		Stages:  append([]driver.Stage(nil), stages...),
		Shaders: append([]driver.Shader(nil), shaders...),
	})
	return nil
}

// SetRaster records OpSetRaster.
func (cb *CmdBuffer) SetRaster(rs *driver.RasterState) {
	cb.record(Cmd{Op: OpSetRaster, Raster: *rs})
}

// SetDescSets records OpSetDescSets.
func (cb *CmdBuffer) SetDescSets(pl driver.PipelineLayout, compute bool, start int, ds []driver.DescSet) {
	cb.record(Cmd{
		Op:      OpSetDescSets,
		Layout:  pl,
		Compute: compute,
		Start:   start,
		Sets:    append([]driver.DescSet(nil), ds...),
	})
}

// PushConstants records OpPushConstants.
func (cb *CmdBuffer) PushConstants(pl driver.PipelineLayout, stages driver.Stage, off int, data []byte) {
	cb.record(Cmd{
		Op:         OpPushConstants,
		Layout:     pl,
		PushStages: stages,
		PushOff:    off,
		Push:       append([]byte(nil), data...),
	})
}

// SetIndexBuf records OpSetIndexBuf.
func (cb *CmdBuffer) SetIndexBuf(format driver.IndexFmt, buf driver.Buffer, off int64) {
	cb.record(Cmd{Op: OpSetIndexBuf, IndexFmt: format, Buf: buf, BufOff: off})
}

// Draw records OpDraw.
func (cb *CmdBuffer) Draw(vertCount, instCount, baseVert, baseInst int) error {
	cb.record(Cmd{Op: OpDraw, Args: [5]int{vertCount, instCount, baseVert, baseInst}})
	return nil
}

// DrawIndexed records OpDrawIndexed.
func (cb *CmdBuffer) DrawIndexed(idxCount, instCount, baseIdx, vertOff, baseInst int) error {
	cb.record(Cmd{Op: OpDrawIndexed, Args: [5]int{idxCount, instCount, baseIdx, vertOff, baseInst}})
	return nil
}

// Dispatch records OpDispatch.
func (cb *CmdBuffer) Dispatch(x, y, z int) error {
	cb.record(Cmd{Op: OpDispatch, Args: [5]int{x, y, z}})
	return nil
}

// CopyBuffer records OpCopyBuffer.
func (cb *CmdBuffer) CopyBuffer(param *driver.BufferCopy) {
	cb.record(Cmd{Op: OpCopyBuffer, Copy: *param})
}

// BlitImage records OpBlitImage.
func (cb *CmdBuffer) BlitImage(param *driver.ImageBlit) {
	cb.record(Cmd{Op: OpBlitImage, Blit: *param})
}

// Destroy destroys cb.
func (cb *CmdBuffer) Destroy() { cb.gpu.destroy(cb.ID) }

// execute carries out the effects of the recorded
// commands that the fake GPU can observe.
func (cb *CmdBuffer) execute() {
	for i := range cb.cmds {
		c := &cb.cmds[i]
		switch c.Op {
		case OpCopyBuffer:
			from := c.Copy.From.(*Buffer).data[c.Copy.FromOff:]
			to := c.Copy.To.(*Buffer).data[c.Copy.ToOff:]
			copy(to[:c.Copy.Size], from[:c.Copy.Size])
		case OpTransition:
			for _, t := range c.Transitions {
				t.Img.(*Image).Layout = t.LayoutAfter
			}
		}
	}
}
