// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package engine

import (
	"io/fs"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/gviegas/deferred/driver"
	"github.com/gviegas/deferred/engine/internal/shader"
)

// ShaderObject is a loaded shader and its reflection.
// A ShaderObject that failed to load is invalid: it has
// no driver.Shader and passes that use it are skipped.
type ShaderObject struct {
	name   string
	stage  driver.Stage
	shader driver.Shader
	refl   *shader.Reflection
	// Where pushed data begins.
	pushOff int
}

// InvalidShader returns an invalid ShaderObject.
func InvalidShader(name string, stage driver.Stage) ShaderObject {
	return ShaderObject{name: name, stage: stage}
}

// Valid returns whether s can be bound.
func (s *ShaderObject) Valid() bool { return s.shader != nil }

// Name returns the path that s was loaded from.
func (s *ShaderObject) Name() string { return s.name }

// Stage returns the stage of s.
func (s *ShaderObject) Stage() driver.Stage { return s.stage }

// Shader returns the driver.Shader, which is nil if s is
// not valid.
func (s *ShaderObject) Shader() driver.Shader { return s.shader }

// Reflection returns the reflection data of s.
// It is nil if s could not be read.
func (s *ShaderObject) Reflection() *shader.Reflection { return s.refl }

// recordPush pushes the bytes of data that the shader's
// push constant block covers.
func (s *ShaderObject) recordPush(cb driver.CmdBuffer, layout driver.PipelineLayout, data []byte) {
	if s.pushOff >= len(data) {
		return
	}
	cb.PushConstants(layout, s.stage, s.pushOff, data[s.pushOff:])
}

// Cleanup destroys the shader, leaving s invalid.
func (s *ShaderObject) Cleanup() {
	if s.shader != nil {
		s.shader.Destroy()
		s.shader = nil
	}
}

// ShaderRequest describes a shader to load.
type ShaderRequest struct {
	// Path within Context.Shaders.
	Path  string
	Stage driver.Stage
	Next  driver.Stage
	// The size of the Go push constant struct that is
	// pushed to the shader, or 0 if none.
	PushSize int
}

// shaderSource is a shader read from disk.
type shaderSource struct {
	req  ShaderRequest
	code []byte
	refl *shader.Reflection
	err  error
}

// readShaders reads and reflects the requested shaders
// concurrently. Failures are recorded per source.
func readShaders(ctx *Context, reqs []ShaderRequest) []shaderSource {
	srcs := make([]shaderSource, len(reqs))
	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	fsys := ctx.Shaders()
	for i := range reqs {
		src := &srcs[i]
		src.req = reqs[i]
		g.Go(func() error {
			if src.code, src.err = fs.ReadFile(fsys, src.req.Path); src.err != nil {
				return nil
			}
			src.refl, src.err = shader.Reflect(src.code)
			return nil
		})
	}
	g.Wait()
	return srcs
}

// pushOffset returns the offset at which the shader's
// push constant data begins.
func (src *shaderSource) pushOffset() int {
	if src.refl != nil {
		if pc, ok := src.refl.DefaultPushConstant(); ok {
			return pc.LayoutOffset
		}
	}
	return 0
}

// pushRange returns the push constant range that covers
// the data pushed to src, or false if nothing is pushed.
// Push constants are addressed offset-relative: bytes
// [off, PushSize) of the Go struct are pushed at off.
func (src *shaderSource) pushRange(stages driver.Stage) (driver.PushRange, bool) {
	if src.req.PushSize == 0 {
		return driver.PushRange{}, false
	}
	off := src.pushOffset()
	if off >= src.req.PushSize {
		off = 0
	}
	return driver.PushRange{Stages: stages, Off: off, Size: src.req.PushSize - off}, true
}

// validatePushConstant logs a warning if the reflected
// push constant of src is not compatible with the size
// that the engine pushes. It returns whether they match.
func validatePushConstant(ctx *Context, src *shaderSource) bool {
	want := src.req.PushSize
	pc, ok := src.refl.DefaultPushConstant()
	switch {
	case !ok && want == 0:
		return true
	case !ok:
		ctx.Logger().Warn("loaded shader had no push constant",
			"shader", src.req.Path, "want", want)
		return false
	case pc.Type.PaddedSize != shader.PaddedSize(want):
		ctx.Logger().Warn("loaded shader had a push constant of unexpected size",
			"shader", src.req.Path, "have", pc.Type.PaddedSize, "want", want)
		return false
	}
	return true
}

// newShaderObject creates the shader read into src.
// Failures are logged and produce an invalid shader.
func newShaderObject(ctx *Context, src *shaderSource, layout driver.PipelineLayout) ShaderObject {
	obj := InvalidShader(src.req.Path, src.req.Stage)
	if src.err != nil {
		ctx.Logger().Warn("failed to load shader", "shader", src.req.Path, "err", src.err)
		return obj
	}
	obj.refl = src.refl
	if r, ok := src.pushRange(src.req.Stage); ok {
		obj.pushOff = r.Off
	}
	if layout == nil {
		ctx.Logger().Warn("no pipeline layout for shader", "shader", src.req.Path)
		return obj
	}
	validatePushConstant(ctx, src)
	sh, err := ctx.GPU().NewShader(&driver.ShaderDesc{
		Name:   src.req.Path,
		Code:   src.code,
		Entry:  src.refl.DefaultEntryPoint,
		Stage:  src.req.Stage,
		Next:   src.req.Next,
		Layout: layout,
	})
	if err != nil {
		ctx.Logger().Warn("failed to create shader", "shader", src.req.Path, "err", err)
		return obj
	}
	obj.shader = sh
	return obj
}

// newPipelineLayout creates a pipeline layout for the
// given sets and the push constant ranges of srcs.
// Failure is logged and yields a nil layout.
func newPipelineLayout(ctx *Context, sets []driver.DescLayout, srcs ...*shaderSource) driver.PipelineLayout {
	var push []driver.PushRange
	for _, src := range srcs {
		if r, ok := src.pushRange(src.req.Stage); ok {
			push = append(push, r)
		}
	}
	for _, s := range sets {
		if s == nil {
			ctx.Logger().Warn("missing descriptor set layout, pipeline layout not created")
			return nil
		}
	}
	pl, err := ctx.GPU().NewPipelineLayout(sets, push)
	if err != nil {
		ctx.Logger().Warn("failed to create pipeline layout", "err", err)
		return nil
	}
	return pl
}
