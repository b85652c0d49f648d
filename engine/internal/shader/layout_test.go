// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package shader

import (
	"math"
	"testing"
	"unsafe"

	"github.com/go-gl/mathgl/mgl32"
)

func checkSlicesT(x, y []float32, t *testing.T, prefix string) {
	min := len(x)
	if n := len(y); n < min {
		min = n
	}
	for i := 0; i < min; i++ {
		if x[i] != y[i] {
			t.Fatalf("%s: slices differ at index %d\n%v != %v", prefix, i, x[i], y[i])
		}
	}
}

func TestLayoutSizes(t *testing.T) {
	for _, x := range [...]struct {
		s    string
		size uintptr
	}{
		{"CameraLayout", unsafe.Sizeof(CameraLayout{})},
		{"AtmosphereLayout", unsafe.Sizeof(AtmosphereLayout{})},
		{"DirectionalLightLayout", unsafe.Sizeof(DirectionalLightLayout{})},
		{"SpotLightLayout", unsafe.Sizeof(SpotLightLayout{})},
	} {
		if x.size%16 != 0 {
			t.Fatalf("unsafe.Sizeof(%s): %d is not a multiple of 16", x.s, x.size)
		}
	}
}

func TestCameraLayout(t *testing.T) {
	p := mgl32.Perspective(1.2, 16.0/9.0, 0.1, 100)
	v := mgl32.LookAtV(mgl32.Vec3{0, -8, -8}, mgl32.Vec3{}, mgl32.Vec3{0, -1, 0})
	vp := p.Mul4(v)
	pos := mgl32.Vec3{1, 2, 3}
	fwd := mgl32.Vec3{0, 0, 1}

	var l CameraLayout
	l.SetP(&p)
	l.SetV(&v)
	l.SetVP(&vp)
	l.SetPosition(pos)
	l.SetForward(fwd)
	l.SetPlanes(0.1, 100)

	s := "CameraLayout."

	checkSlicesT(l[0:16], p[:], t, s+"SetP")
	checkSlicesT(l[16:32], v[:], t, s+"SetV")
	checkSlicesT(l[32:48], vp[:], t, s+"SetVP")
	checkSlicesT(l[48:51], pos[:], t, s+"SetPosition")
	checkSlicesT(l[52:55], fwd[:], t, s+"SetForward")
	if l[51] != 0.1 || l[55] != 100 {
		t.Fatalf("%sSetPlanes:\nhave %f, %f\nwant 0.1, 100", s, l[51], l[55])
	}
	if m := l.VP(); m != vp {
		t.Fatalf("%sVP:\nhave %v\nwant %v", s, m, vp)
	}
	if m := l.P(); m != p {
		t.Fatalf("%sP:\nhave %v\nwant %v", s, m, p)
	}
	if m := l.V(); m != v {
		t.Fatalf("%sV:\nhave %v\nwant %v", s, m, v)
	}
}

func TestAtmosphereLayout(t *testing.T) {
	var l AtmosphereLayout
	dir := mgl32.Vec3{0, -1, 0}
	color := mgl32.Vec3{1, 0.9, 0.8}
	ground := mgl32.Vec3{0.9, 0.8, 0.6}
	ray := mgl32.Vec3{3.8e-6, 13.5e-6, 33.1e-6}
	mie := mgl32.Vec3{21e-6, 21e-6, 21e-6}
	l.SetSunDirection(dir)
	l.SetSunlightColor(color)
	l.SetRadii(6378000, 6420000)
	l.SetGroundColor(ground)
	l.SetRayleigh(ray, 7994)
	l.SetMie(mie, 1200)

	s := "AtmosphereLayout."

	if d := l.SunDirection(); d != dir {
		t.Fatalf("%sSunDirection:\nhave %v\nwant %v", s, d, dir)
	}
	if c := l.SunlightColor(); c != color {
		t.Fatalf("%sSunlightColor:\nhave %v\nwant %v", s, c, color)
	}
	if l[3] != 6378000 || l[7] != 6420000 {
		t.Fatalf("%sSetRadii:\nhave %f, %f\nwant 6378000, 6420000", s, l[3], l[7])
	}
	checkSlicesT(l[8:11], ground[:], t, s+"SetGroundColor")
	checkSlicesT(l[12:15], ray[:], t, s+"SetRayleigh")
	checkSlicesT(l[16:19], mie[:], t, s+"SetMie")
	if l[11] != 7994 || l[15] != 1200 {
		t.Fatalf("%sSetRayleigh/SetMie: scale height\nhave %f, %f\nwant 7994, 1200", s, l[11], l[15])
	}
}

func TestLightLayouts(t *testing.T) {
	var d DirectionalLightLayout
	color := mgl32.Vec4{0.3, 0.4, 0.6, 1}
	d.SetColor(color)
	d.SetForward(mgl32.Vec3{0, 1, 0})
	d.SetStrength(0.5)
	d.SetCamera(3)
	checkSlicesT(d[:4], color[:], t, "DirectionalLightLayout.SetColor")
	if d.Strength() != 0.5 {
		t.Fatalf("DirectionalLightLayout.Strength:\nhave %f\nwant 0.5", d.Strength())
	}
	if d.Camera() != 3 || math.Float32bits(d[8]) != 3 {
		t.Fatalf("DirectionalLightLayout.Camera:\nhave %d\nwant 3", d.Camera())
	}

	var sp SpotLightLayout
	p := mgl32.Perspective(mgl32.DegToRad(60), 1, 0.1, 1000)
	v := mgl32.Ident4()
	sp.SetColor(mgl32.Vec4{0, 1, 0, 1})
	sp.SetStrength(30)
	sp.SetFalloff(1, 1)
	sp.SetForward(mgl32.Vec3{-1, 0, 1})
	sp.SetPosition(mgl32.Vec3{-8, -10, -2})
	sp.SetP(&p)
	sp.SetV(&v)
	if sp[4] != 30 || sp[5] != 1 || sp[6] != 1 {
		t.Fatalf("SpotLightLayout: strength/falloff\nhave %v\nwant [30 1 1]", sp[4:7])
	}
	checkSlicesT(sp[12:15], []float32{-8, -10, -2}, t, "SpotLightLayout.SetPosition")
	checkSlicesT(sp[16:32], p[:], t, "SpotLightLayout.SetP")
	checkSlicesT(sp[32:48], v[:], t, "SpotLightLayout.SetV")
}
