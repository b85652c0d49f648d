// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package driver

import (
	"time"
)

// GPU is the main interface to an underlying driver
// implementation.
// It is used to create other types and to execute commands.
// A GPU is obtained from a call to Driver.Open.
type GPU interface {
	// Driver returns the Driver that owns the GPU.
	Driver() Driver

	// NewCmdBuffer creates a new command buffer.
	// Each command buffer owns its command pool, so
	// resetting one never affects another.
	NewCmdBuffer() (CmdBuffer, error)

	// NewFence creates a new fence.
	// If signaled is true, the first Wait call returns
	// immediately.
	NewFence(signaled bool) (Fence, error)

	// NewSemaphore creates a new binary semaphore.
	NewSemaphore() (Semaphore, error)

	// Submit submits command buffers for execution.
	// The GPU waits on sub.Wait before the given stages
	// execute, signals sub.Signal once all commands
	// complete and then signals sub.Fence, if not nil.
	Submit(sub *Submission) error

	// WaitIdle blocks until the GPU has no pending work.
	WaitIdle() error

	// NewBuffer creates a new buffer.
	NewBuffer(size int64, visible bool, usg Usage) (Buffer, error)

	// NewImage creates a new image.
	NewImage(pf PixelFmt, size Dim3D, layers, levels, samples int, usg Usage) (Image, error)

	// NewSampler creates a new Sampler.
	NewSampler(spln *Sampling) (Sampler, error)

	// NewDescLayout creates a new descriptor set layout.
	NewDescLayout(ds []Descriptor) (DescLayout, error)

	// NewDescPool creates a new descriptor pool from
	// which at most maxSets descriptor sets can be
	// allocated.
	NewDescPool(maxSets int, cnt []DescCount) (DescPool, error)

	// NewPipelineLayout creates a new pipeline layout.
	NewPipelineLayout(sets []DescLayout, push []PushRange) (PipelineLayout, error)

	// NewShader creates a new shader.
	// The shader can be bound on its own, without
	// having to be linked to the other stages of a
	// pipeline up front.
	NewShader(desc *ShaderDesc) (Shader, error)

	// Limits returns the implementation limits.
	// They are immutable for the lifetime of the GPU.
	Limits() Limits
}

// Destroyer is the interface that wraps the Destroy method.
// Types that implement this interface may allocate external
// memory that is not managed by GC, so Destroy must be
// called explicitly to ensure such memory is deallocated.
type Destroyer interface {
	Destroy()
}

// Fence is the interface that defines a CPU-waitable
// synchronization primitive signaled by the GPU.
type Fence interface {
	Destroyer

	// Wait blocks until the fence is signaled or the
	// timeout elapses, in which case it returns
	// ErrTimeout.
	Wait(timeout time.Duration) error

	// Reset puts the fence in the unsignaled state.
	Reset() error
}

// Semaphore is the interface that defines a GPU-side
// synchronization primitive.
type Semaphore interface {
	Destroyer
}

// SemaphoreWait describes a semaphore that a submission
// waits on before Stage executes.
type SemaphoreWait struct {
	Sem   Semaphore
	Stage Sync
}

// Submission describes a batch of command buffers to
// execute.
type Submission struct {
	Cmds   []CmdBuffer
	Wait   []SemaphoreWait
	Signal []Semaphore
	Fence  Fence
}

// CmdBuffer is the interface that defines a command buffer.
// The usage is as follows:
// First, call Begin to prepare the command buffer for
// recording. Then, if it succeeds:
//
//  1. record barriers/transitions/copies as needed
//  2. for rendering, call BeginPass, then BindShaders,
//     SetRaster, SetDescSets and PushConstants, then
//     Draw* commands, and finally EndPass
//  3. for compute, call BindShaders, SetDescSets and
//     PushConstants, then Dispatch
//
// Finally, call End and, if it succeeds, GPU.Submit.
// BeginPass must not be nested.
type CmdBuffer interface {
	Destroyer

	// Begin prepares the command buffer for recording.
	// It needs to be called again if the command buffer
	// is executed or reset.
	Begin() error

	// End ends recording.
	End() error

	// Reset discards all recorded commands.
	// It must not be called while the command buffer
	// is pending execution.
	Reset() error

	// IsRecording returns whether Begin was called
	// without a matching End.
	IsRecording() bool

	// Barrier inserts a number of global barriers.
	Barrier(b []Barrier)

	// BufferBarrier inserts a number of barriers that
	// apply to a range of a buffer.
	BufferBarrier(b []BufferBarrier)

	// Transition inserts a number of image layout
	// transitions.
	Transition(t []Transition)

	// BeginPass begins rendering into the given
	// attachments.
	BeginPass(pass *PassDesc)

	// EndPass ends the current pass.
	EndPass()

	// ClearColor clears a color image outside a pass.
	// The image must be in layout LCommon or LCopyDst.
	ClearColor(img Image, layout Layout, color [4]float32)

	// BindShaders binds shaders to their stages.
	// A nil shader unbinds the corresponding stage.
	// Binding an invalid shader causes subsequent
	// Draw*/Dispatch calls to record nothing.
	BindShaders(stages []Stage, shaders []Shader) error

	// SetRaster sets the rasterization state that
	// the next draws will use.
	SetRaster(rs *RasterState)

	// SetDescSets binds descriptor sets starting at
	// index start of the given layout.
	// If compute is true, they are bound for dispatches,
	// otherwise for draws.
	SetDescSets(pl PipelineLayout, compute bool, start int, ds []DescSet)

	// PushConstants updates push constant data.
	// off is the byte offset in the push constant
	// block where data begins.
	PushConstants(pl PipelineLayout, stages Stage, off int, data []byte)

	// SetIndexBuf sets the index buffer.
	SetIndexBuf(format IndexFmt, buf Buffer, off int64)

	// Draw draws primitives.
	Draw(vertCount, instCount, baseVert, baseInst int) error

	// DrawIndexed draws indexed primitives.
	DrawIndexed(idxCount, instCount, baseIdx, vertOff, baseInst int) error

	// Dispatch dispatches compute thread groups.
	Dispatch(grpCountX, grpCountY, grpCountZ int) error

	// CopyBuffer copies data between buffers.
	CopyBuffer(param *BufferCopy)

	// BlitImage copies a region of an image to a
	// region of another, scaling as needed.
	BlitImage(param *ImageBlit)
}

// Sync is the type of a synchronization scope.
type Sync int

// Synchronization scopes.
const (
	SVertexInput Sync = 1 << iota
	SVertexShading
	SFragmentShading
	SDSOutput
	SColorOutput
	SComputeShading
	SCopy
	SDraw
	SGraphics
	SAll
	SNone Sync = 0
)

// Access is the type of a memory access scope.
type Access int

// Memory access scopes.
const (
	AVertexBufRead Access = 1 << iota
	AIndexBufRead
	AColorRead
	AColorWrite
	ADSRead
	ADSWrite
	AShaderRead
	AShaderWrite
	ACopyRead
	ACopyWrite
	AAnyRead
	AAnyWrite
	ANone Access = 0
)

// Layout is the type of an image layout.
type Layout int

// Image layouts.
const (
	LUndefined Layout = iota
	// Usable for any access, including storage writes.
	LCommon
	LColorTarget
	LDSTarget
	LDSRead
	LCopySrc
	LCopyDst
	// Read-only access from shaders.
	LShaderRead
	LPresent
)

// Barrier represents a synchronization barrier.
type Barrier struct {
	SyncBefore   Sync
	SyncAfter    Sync
	AccessBefore Access
	AccessAfter  Access
}

// BufferBarrier represents a synchronization barrier
// that applies to the range [Off, Off+Size) of Buf.
// A Size of zero means the whole buffer.
type BufferBarrier struct {
	Barrier

	Buf  Buffer
	Off  int64
	Size int64
}

// Transition represents a layout transition on every
// subresource of an image.
type Transition struct {
	Barrier

	LayoutBefore Layout
	LayoutAfter  Layout
	Img          Image
}

// LoadOp is the type of an attachment's load operation.
type LoadOp int

// Load operations.
const (
	LDontCare LoadOp = iota
	LClear
	LLoad
)

// StoreOp is the type of an attachment's store operation.
type StoreOp int

// Store operations.
const (
	SDontCare StoreOp = iota
	SStore
)

// ClearValue defines clear values for color or depth/stencil
// aspects of a render target.
type ClearValue struct {
	Color   [4]float32
	Depth   float32
	Stencil uint32
}

// ColorTarget describes a color attachment of a pass.
// The view's image must be in layout LColorTarget.
type ColorTarget struct {
	View  ImageView
	Load  LoadOp
	Store StoreOp
	Clear ClearValue
}

// DSTarget describes a depth/stencil attachment of a
// pass. The view's image must be in layout LDSTarget,
// or in LDSRead if ReadOnly is set.
type DSTarget struct {
	View     ImageView
	Load     LoadOp
	Store    StoreOp
	Clear    ClearValue
	ReadOnly bool
}

// PassDesc describes the attachments of a pass.
type PassDesc struct {
	Color  []ColorTarget
	DS     *DSTarget
	Width  int
	Height int
}

// Stage is a mask of programmable stages.
type Stage int

// Stages.
const (
	SVertex Stage = 1 << iota
	SFragment
	SCompute
)

// ShaderDesc describes how to create a Shader.
type ShaderDesc struct {
	// Name is used for diagnostics.
	Name string
	// Code is the SPIR-V binary.
	Code []byte
	// Entry is the name of the entry point.
	// Empty means "main".
	Entry string
	Stage Stage
	// Next is the mask of stages that may follow
	// this one.
	Next   Stage
	Layout PipelineLayout
}

// Shader is the interface that defines an independently
// bindable shader stage.
type Shader interface {
	Destroyer

	// Stage returns the stage of the shader.
	Stage() Stage
}

// DescType is the type of a descriptor.
type DescType int

// Descriptor types.
const (
	// Read/write buffer.
	DBuffer DescType = iota
	// Read/write image.
	DImage
	// Constant buffer.
	DConstant
	// Sampled texture, combined with a sampler.
	DTexture
	// Texture sampler.
	DSampler
)

// Descriptor describes data for use in shaders.
// Sampler, when set, is an immutable sampler that
// applies to a DTexture or DSampler descriptor.
type Descriptor struct {
	Type    DescType
	Stages  Stage
	Nr      int
	Len     int
	Sampler Sampler
}

// DescCount is the number of descriptors of a given
// type that a DescPool reserves.
type DescCount struct {
	Type  DescType
	Count int
}

// DescLayout is the interface that defines the layout
// of a descriptor set.
type DescLayout interface {
	Destroyer
}

// DescPool is the interface that defines a pool from
// which descriptor sets are allocated.
type DescPool interface {
	Destroyer

	// Alloc allocates a descriptor set.
	// It returns ErrNoDeviceMemory when the pool is
	// exhausted.
	Alloc(layout DescLayout) (DescSet, error)

	// Reset frees every set allocated from the pool.
	Reset() error
}

// DescSet is the interface that defines a set of
// descriptors allocated from a DescPool.
type DescSet interface {
	// SetImage updates the image view referred by the
	// given descriptor, which must be of type DImage.
	SetImage(nr int, iv ImageView, layout Layout)

	// SetTexture updates the image view and sampler
	// referred by the given descriptor, which must be
	// of type DTexture. splr is ignored when the layout
	// uses an immutable sampler.
	SetTexture(nr int, iv ImageView, layout Layout, splr Sampler)
}

// PushRange describes a range of push constant data.
type PushRange struct {
	Stages Stage
	Off    int
	Size   int
}

// PipelineLayout is the interface that defines the
// descriptor set layouts and push constant ranges that
// shaders can access.
type PipelineLayout interface {
	Destroyer
}

// IndexFmt describes the format of index buffer data.
type IndexFmt int

// Index formats.
const (
	Index16 IndexFmt = 2
	Index32 IndexFmt = 4
)

// Topology is the type of primitive topologies,
// which determines how vertex data is assembled.
type Topology int

// Primitive topologies.
const (
	TTriangle Topology = iota
	TLine
	TPoint
)

// Viewport defines the bounds of a viewport.
type Viewport struct {
	X, Y, Width, Height, Znear, Zfar float32
}

// Scissor defines a scissor rectangle.
type Scissor struct {
	X, Y, Width, Height int
}

// CullMode is the type of cull modes, which
// determines primitive culling based on triangle
// facing direction.
type CullMode int

// Cull modes.
const (
	CNone CullMode = iota
	CFront
	CBack
)

// FillMode is the type of triangle fill modes, which
// determines the final rasterization of triangles.
type FillMode int

// Triangle fill modes.
const (
	FFill FillMode = iota
	FLines
)

// CmpFunc is the type of comparison functions.
type CmpFunc int

// Comparison functions.
const (
	CNever CmpFunc = iota
	CLess
	CEqual
	CLessEqual
	CGreater
	CNotEqual
	CGreaterEqual
	CAlways
)

// ColorMask is the type of a color write mask.
type ColorMask int

// Color write masks.
const (
	CRed ColorMask = 1 << iota
	CGreen
	CBlue
	CAlpha
	// Write to all channels.
	CAll ColorMask = 1<<iota - 1
)

// MaxColorTargets is the maximum number of color
// targets that a RasterState describes.
const MaxColorTargets = 8

// RasterState defines the fixed-function state applied
// to draws recorded after a call to SetRaster.
// It is a comparable value so that implementations can
// cache whatever backend objects they derive from it.
type RasterState struct {
	Viewport Viewport
	Scissor  Scissor
	Topology Topology
	// Winding order is either clockwise or counter-clockwise.
	Clockwise bool
	Cull      CullMode
	Fill      FillMode

	DepthTest  bool
	DepthWrite bool
	DepthCmp   CmpFunc
	// DepthBias enables depth bias computation.
	DepthBias bool
	BiasValue float32
	BiasSlope float32
	BiasClamp float32

	// ColorCount is the number of valid entries in
	// WriteMask and Blend.
	ColorCount int
	WriteMask  [MaxColorTargets]ColorMask
	// Blend enables standard alpha blending.
	Blend [MaxColorTargets]bool
}

// Usage is a mask indicating valid uses for a resource.
type Usage int

// Usage flags for Buffer and Image.
const (
	// The resource can be read in shaders.
	UShaderRead Usage = 1 << iota
	// The resource can be written in shaders.
	UShaderWrite
	// The resource can provide constant data for shaders.
	// Valid only for Buffer.
	UShaderConst
	// The resource can be sampled in shaders.
	// Valid only for Image.
	UShaderSample
	// The resource can provide vertex data for draw calls.
	// Valid only for Buffer.
	UVertexData
	// The resource can provide index data for draw calls.
	// Valid only for Buffer.
	UIndexData
	// The resource can be used as render target.
	// Valid only for Image.
	URenderTarget
	// The resource can be the source of a copy.
	UCopySrc
	// The resource can be the destination of a copy.
	UCopyDst
	// The buffer's device address can be queried.
	// Valid only for Buffer.
	UAddress
	// The resource can be used for any purpose.
	UGeneric Usage = 1<<iota - 1
)

// Buffer is the interface that defines a GPU buffer.
// The size of the buffer is fixed.
type Buffer interface {
	Destroyer

	// Visible returns whether the buffer is host visible.
	// Non-visible memory cannot be accessed by the CPU.
	Visible() bool

	// Bytes returns a slice of length Cap referring to the
	// underlying data. If the buffer is not host visible,
	// it returns nil instead.
	// The slice is valid for the lifetime of the buffer.
	Bytes() []byte

	// Cap returns the capacity of the buffer in bytes,
	// which may be greater than the size requested during
	// buffer creation.
	Cap() int64

	// Addr returns the device address of the buffer.
	// It is zero unless the buffer was created with
	// UAddress usage.
	Addr() uint64
}

// BufferCopy describes a copy between buffers.
type BufferCopy struct {
	From    Buffer
	FromOff int64
	To      Buffer
	ToOff   int64
	Size    int64
}

// PixelFmt describes the format of a pixel.
type PixelFmt int

// Pixel formats.
const (
	FInvalid PixelFmt = iota
	// Color, 8-bit channels.
	RGBA8un
	RGBA8sRGB
	BGRA8un
	BGRA8sRGB
	// Color, 16-bit channels.
	RGBA16f
	// Color, 32-bit channels.
	RGBA32f
	// Depth.
	D16un
	D32f
)

// IsDepth returns whether f is a depth format.
func (f PixelFmt) IsDepth() bool { return f == D16un || f == D32f }

// Size returns the size in bytes of a single pixel.
func (f PixelFmt) Size() int {
	switch f {
	case RGBA8un, RGBA8sRGB, BGRA8un, BGRA8sRGB, D32f:
		return 4
	case RGBA16f:
		return 8
	case RGBA32f:
		return 16
	case D16un:
		return 2
	}
	return 0
}

// Dim3D is a three-dimensional size.
type Dim3D struct {
	Width, Height, Depth int
}

// Off3D is a three-dimensional offset.
type Off3D struct {
	X, Y, Z int
}

// Image is the interface that defines a GPU image.
type Image interface {
	Destroyer

	// NewView creates a new 2D image view of the first
	// layer and level.
	// All views created from a given image must be
	// destroyed before the image itself is destroyed.
	NewView() (ImageView, error)

	// Format returns the pixel format.
	Format() PixelFmt

	// Size returns the image extent.
	Size() Dim3D
}

// ImageView is the interface that defines a typed view of
// an Image resource.
type ImageView interface {
	Destroyer

	// Image returns the image that the view refers to.
	Image() Image
}

// ImageBlit describes a scaled image copy.
// From must be in layout LCopySrc and To in LCopyDst.
type ImageBlit struct {
	From     Image
	FromOff  Off3D
	FromSize Dim3D
	To       Image
	ToOff    Off3D
	ToSize   Dim3D
	Filter   Filter
}

// Filter is the type of sampler filters.
type Filter int

// Filters.
const (
	FNearest Filter = iota
	FLinear
)

// AddrMode is the type of sampler address modes.
type AddrMode int

// Address modes.
const (
	AWrap AddrMode = iota
	AMirror
	AClamp
	// Out-of-range coordinates produce the border
	// color, which is opaque white.
	ABorder
)

// Sampler is the interface that defines an image sampler.
type Sampler interface {
	Destroyer
}

// Sampling describes image sampler state.
type Sampling struct {
	Min    Filter
	Mag    Filter
	Mipmap Filter
	AddrU  AddrMode
	AddrV  AddrMode
	AddrW  AddrMode
	MinLOD float32
	MaxLOD float32
}

// Limits describes implementation limits.
// These may vary across drivers and devices.
type Limits struct {
	// Maximum width and height of 2D images.
	MaxImage2D int
	// Maximum size of push constant data.
	MaxPushConstants int
	// Maximum number of bound descriptor sets.
	MaxDescSets int
	// Maximum number of color render targets in
	// a pass.
	MaxColorTargets int
	// Maximum dispatch count.
	MaxDispatch [3]int
}
