// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package engine

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

const eps = 1e-4

// floatsNear reports whether each pair of elements of a
// and b differs by at most eps, scaled by the larger
// magnitude when it exceeds 1.
func floatsNear(a, b []float32) bool {
	for i := range a {
		tol := float32(eps)
		if m := max(mgl32.Abs(a[i]), mgl32.Abs(b[i])); m > 1 {
			tol *= m
		}
		if mgl32.Abs(a[i]-b[i]) > tol {
			return false
		}
	}
	return true
}

func vecNear(a, b mgl32.Vec3) bool { return floatsNear(a[:], b[:]) }

func matNear(a, b mgl32.Mat4) bool { return floatsNear(a[:], b[:]) }

func TestVecNear(t *testing.T) {
	// Relative comparison fails for values of
	// opposite sign close to zero.
	a, b := mgl32.Vec3{1e-8, 1, 0}, mgl32.Vec3{-1e-8, 1, 0}
	if !vecNear(a, b) {
		t.Fatalf("vecNear(%v, %v):\nhave false\nwant true", a, b)
	}
	if c := (mgl32.Vec3{1e-3, 1, 0}); vecNear(a, c) {
		t.Fatalf("vecNear(%v, %v):\nhave true\nwant false", a, c)
	}
	m := mgl32.Ident4().Mul(1000)
	n := m
	n[0] += 0.05
	if !matNear(m, n) {
		t.Fatal("matNear: large elements should compare relatively")
	}
}

// project returns the normalized device coordinates of p.
func project(m *mgl32.Mat4, p mgl32.Vec3) mgl32.Vec3 {
	c := m.Mul4x1(p.Vec4(1))
	return c.Vec3().Mul(1 / c[3])
}

func TestPerspectiveRZ(t *testing.T) {
	const near, far = 0.1, 1000
	m := perspectiveRZ(mgl32.DegToRad(90), 2, near, far)
	depth := func(z float32) float32 { return near * (far - z) / ((far - near) * z) }
	for _, x := range [...]struct {
		p    mgl32.Vec3
		want mgl32.Vec3
	}{
		{mgl32.Vec3{0, 0, near}, mgl32.Vec3{0, 0, 1}},
		{mgl32.Vec3{0, 0, far}, mgl32.Vec3{0, 0, 0}},
		{mgl32.Vec3{2, 1, 1}, mgl32.Vec3{1, 1, depth(1)}},
		{mgl32.Vec3{-20, 10, 10}, mgl32.Vec3{-1, 1, depth(10)}},
	} {
		if have := project(&m, x.p); !vecNear(have, x.want) {
			t.Fatalf("perspectiveRZ: project(%v):\nhave %v\nwant %v", x.p, have, x.want)
		}
	}
}

func TestOrthoRZ(t *testing.T) {
	m := orthoRZ(-4, 2, -1, 3, 1, 11)
	for _, x := range [...]struct {
		p    mgl32.Vec3
		want mgl32.Vec3
	}{
		{mgl32.Vec3{-4, -1, 1}, mgl32.Vec3{-1, -1, 1}},
		{mgl32.Vec3{2, 3, 11}, mgl32.Vec3{1, 1, 0}},
		{mgl32.Vec3{-1, 1, 6}, mgl32.Vec3{0, 0, 0.5}},
	} {
		if have := project(&m, x.p); !vecNear(have, x.want) {
			t.Fatalf("orthoRZ: project(%v):\nhave %v\nwant %v", x.p, have, x.want)
		}
	}
}

func TestOrientation(t *testing.T) {
	if q := orientation(mgl32.Vec3{}); !vecNear(q.Rotate(worldForward), worldForward) {
		t.Fatal("orientation: zero angles should not rotate")
	}

	// Negative pitch looks down, which is +Y.
	p := DefaultCameraParams()
	s, c := math.Sincos(0.3)
	want := mgl32.Vec3{0, float32(s), float32(c)}
	if fwd := p.Forward(); !vecNear(fwd, want) {
		t.Fatalf("CameraParams.Forward:\nhave %v\nwant %v", fwd, want)
	}

	// Yaw turns right.
	q := orientation(mgl32.Vec3{0, math.Pi / 2, 0})
	if fwd := q.Rotate(worldForward); !vecNear(fwd, worldRight) {
		t.Fatalf("orientation(yaw π/2):\nhave %v\nwant %v", fwd, worldRight)
	}
}

func TestView(t *testing.T) {
	pos := mgl32.Vec3{3, -2, 7}
	q := orientation(mgl32.Vec3{0.4, -1.2, 0.1})
	v := view(pos, q)
	if have := project(&v, pos); !vecNear(have, mgl32.Vec3{}) {
		t.Fatalf("view: eye:\nhave %v\nwant origin", have)
	}
	ahead := pos.Add(q.Rotate(worldForward).Mul(5))
	if have := project(&v, ahead); !vecNear(have, mgl32.Vec3{0, 0, 5}) {
		t.Fatalf("view: point ahead:\nhave %v\nwant %v", have, mgl32.Vec3{0, 0, 5})
	}
}

func TestCameraLayout(t *testing.T) {
	p := DefaultCameraParams()
	for _, l := range [...]struct {
		name string
		fn   func() [64]float32
	}{
		{"Layout", func() [64]float32 { return p.Layout(16.0 / 9) }},
		{"OrthographicLayout", func() [64]float32 { return p.OrthographicLayout(16.0/9, orthographicSize) }},
	} {
		cam := l.fn()
		proj := mgl32.Mat4(cam[:16])
		v := mgl32.Mat4(cam[16:32])
		vp := mgl32.Mat4(cam[32:48])
		if want := proj.Mul4(v); !matNear(vp, want) {
			t.Fatalf("CameraParams.%s: VP differs from P·V", l.name)
		}
		if pos := (mgl32.Vec3{cam[48], cam[49], cam[50]}); pos != p.Position {
			t.Fatalf("CameraParams.%s position:\nhave %v\nwant %v", l.name, pos, p.Position)
		}
		if near, far := cam[51], cam[55]; near != p.Near || far != p.Far {
			t.Fatalf("CameraParams.%s planes:\nhave %v, %v\nwant %v, %v", l.name, near, far, p.Near, p.Far)
		}
		fwd := mgl32.Vec3{cam[52], cam[53], cam[54]}
		if !vecNear(fwd, p.Forward()) {
			t.Fatalf("CameraParams.%s forward:\nhave %v\nwant %v", l.name, fwd, p.Forward())
		}
		// Reversed Z: nearer points have greater depth.
		a := project(&vp, p.Position.Add(fwd.Mul(1)))
		b := project(&vp, p.Position.Add(fwd.Mul(100)))
		if a[2] <= b[2] {
			t.Fatalf("CameraParams.%s: depth should decrease with distance (%v, %v)", l.name, a[2], b[2])
		}
	}
}
