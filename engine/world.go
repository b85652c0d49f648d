// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package engine

import (
	"math"
	"math/rand/v2"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gviegas/deferred/driver"
)

// MeshInstances are the instances of the drawn mesh.
// Originals holds the model matrix of every instance as
// created; instances from DynamicIndex on are animated.
// Models and ModelInvTs are kept at equal staged sizes.
type MeshInstances struct {
	Originals    []mgl32.Mat4
	DynamicIndex int
	Models       *StagedBuffer[mgl32.Mat4]
	ModelInvTs   *StagedBuffer[mgl32.Mat4]
}

// inverseTranspose returns the matrix that transforms
// normals for the model matrix m.
func inverseTranspose(m *mgl32.Mat4) mgl32.Mat4 { return m.Inv().Transpose() }

// NewMeshInstances stages originals in new model buffers
// and copies them to the device with imm.
func NewMeshInstances(ctx *Context, imm *Immediate, originals []mgl32.Mat4, dynamicIndex int) (mi *MeshInstances, err error) {
	n := max(1, len(originals))
	mi = &MeshInstances{
		Originals:    originals,
		DynamicIndex: min(dynamicIndex, len(originals)),
	}
	defer func() {
		if err != nil {
			mi.Cleanup()
			mi = nil
		}
	}()
	if mi.Models, err = NewStagedBuffer[mgl32.Mat4](ctx, driver.UShaderRead, n); err != nil {
		return
	}
	if mi.ModelInvTs, err = NewStagedBuffer[mgl32.Mat4](ctx, driver.UShaderRead, n); err != nil {
		return
	}
	invTs := make([]mgl32.Mat4, len(originals))
	for i := range originals {
		invTs[i] = inverseTranspose(&originals[i])
	}
	if err = mi.Models.Stage(originals); err != nil {
		return
	}
	if err = mi.ModelInvTs.Stage(invTs); err != nil {
		return
	}
	err = imm.Submit(func(cb driver.CmdBuffer) {
		mi.Models.RecordCopyToDevice(cb)
		mi.ModelInvTs.RecordCopyToDevice(cb)
	})
	return
}

// recordCopy copies both model buffers to the device.
func (mi *MeshInstances) recordCopy(cb driver.CmdBuffer) {
	mi.Models.RecordCopyToDevice(cb)
	mi.ModelInvTs.RecordCopyToDevice(cb)
}

// tick animates the dynamic instances at time t, in
// seconds. Each one bobs vertically with a phase that
// depends on its position.
// It fails with ErrOutOfSync, writing nothing, if the
// model buffers do not have the same staged size.
func (mi *MeshInstances) tick(t float64) error {
	models := mi.Models.MapValidStaged()
	invTs := mi.ModelInvTs.MapValidStaged()
	if len(models) != len(invTs) {
		return ErrOutOfSync
	}
	n := min(len(models), len(mi.Originals))
	for i := mi.DynamicIndex; i < n; i++ {
		orig := &mi.Originals[i]
		pos := orig.Col(3)
		y := math.Sin(t + float64(pos[0]+10+pos[2]+10)/3.1415)
		models[i] = mgl32.Translate3D(0, float32(y), 0).Mul4(*orig)
		invTs[i] = inverseTranspose(&models[i])
	}
	return nil
}

// Cleanup destroys the model buffers.
func (mi *MeshInstances) Cleanup() {
	for _, b := range [...]*StagedBuffer[mgl32.Mat4]{mi.Models, mi.ModelInvTs} {
		if b != nil {
			b.Cleanup()
		}
	}
	mi.Models, mi.ModelInvTs = nil, nil
}

// diskRand returns a point uniformly distributed in the
// disk of the given radius.
func diskRand(rng *rand.Rand, radius float32) mgl32.Vec2 {
	for {
		p := mgl32.Vec2{rng.Float32()*2 - 1, rng.Float32()*2 - 1}
		if l := p.Dot(p); l <= 1 && l > 0 {
			return p.Mul(radius)
		}
	}
}

// randomQuat returns a uniformly distributed unit
// quaternion.
func randomQuat(rng *rand.Rand) mgl32.Quat {
	xy := diskRand(rng, 1)
	uv := diskRand(rng, 1)
	s := float32(math.Sqrt(float64((1 - xy.Dot(xy)) / uv.Dot(uv))))
	return mgl32.Quat{
		W: s * uv[1],
		V: mgl32.Vec3{xy[0], xy[1], s * uv[0]},
	}
}

// worldGrid returns the instances of the default world:
// a floor of wide tiles followed by a grid of small,
// randomly oriented boxes. The boxes start at the
// returned dynamic index.
// extent is the grid's half width in cells.
func worldGrid(extent int, rng *rand.Rand) (originals []mgl32.Mat4, dynamicIndex int) {
	side := 2*extent + 1
	originals = make([]mgl32.Mat4, 0, 2*side*side)
	for x := -extent; x <= extent; x++ {
		for z := -extent; z <= extent; z++ {
			m := mgl32.Translate3D(float32(x)*20, 1, float32(z)*20).
				Mul4(mgl32.Scale3D(10, 2, 10))
			originals = append(originals, m)
		}
	}
	dynamicIndex = len(originals)
	for x := -extent; x <= extent; x++ {
		for z := -extent; z <= extent; z++ {
			m := mgl32.Translate3D(float32(x), -4, float32(z)).
				Mul4(randomQuat(rng).Mat4()).
				Mul4(mgl32.Scale3D(0.2, 0.2, 0.2))
			originals = append(originals, m)
		}
	}
	return
}
