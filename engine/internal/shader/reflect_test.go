// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package shader

import (
	"encoding/binary"
	"errors"
	"testing"
)

// spvAsm assembles SPIR-V modules for testing.
type spvAsm struct {
	w []uint32
}

func (a *spvAsm) op(op uint32, args ...uint32) {
	a.w = append(a.w, uint32(len(args)+1)<<16|op)
	a.w = append(a.w, args...)
}

func (a *spvAsm) bytes() []byte {
	hdr := []uint32{spvMagic, 0x00010500, 0, 100, 0}
	words := append(hdr, a.w...)
	b := make([]byte, len(words)*4)
	for i, w := range words {
		binary.LittleEndian.PutUint32(b[i*4:], w)
	}
	return b
}

func str(s string) []uint32 {
	b := append([]byte(s), 0)
	for len(b)%4 != 0 {
		b = append(b, 0)
	}
	w := make([]uint32, len(b)/4)
	for i := range w {
		w[i] = binary.LittleEndian.Uint32(b[i*4:])
	}
	return w
}

func cat(xs ...any) []uint32 {
	var w []uint32
	for _, x := range xs {
		switch x := x.(type) {
		case uint32:
			w = append(w, x)
		case int:
			w = append(w, uint32(x))
		case []uint32:
			w = append(w, x...)
		}
	}
	return w
}

// Result IDs used by pushModule.
const (
	idMain = iota + 1
	idUint
	idFloat
	idVec4
	idMat4
	idCam
	idPtrCam
	idPC
	idPtrPC
	idVar
	idBool
)

// pushModule assembles a compute module whose push
// constant block begins at firstOff.
func pushModule(firstOff int, listed bool) []byte {
	var a spvAsm
	if listed {
		a.op(opEntryPoint, cat(5, idMain, str("main"), idVar)...)
	} else {
		a.op(opEntryPoint, cat(5, idMain, str("main"))...)
	}
	a.op(opName, cat(idVar, str("pushConstant"))...)
	a.op(opName, cat(idPC, str("PushConstant"))...)
	a.op(opMemberName, cat(idPC, 0, str("cameraBuffer"))...)
	a.op(opMemberName, cat(idPC, 1, str("cameraIndex"))...)
	a.op(opMemberName, cat(idPC, 2, str("color"))...)
	a.op(opMemberName, cat(idPC, 3, str("model"))...)
	a.op(opMemberName, cat(idPC, 4, str("flags"))...)
	a.op(opMemberDecorate, idPC, 0, decOffset, uint32(firstOff))
	a.op(opMemberDecorate, idPC, 1, decOffset, uint32(firstOff+8))
	a.op(opMemberDecorate, idPC, 2, decOffset, uint32(firstOff+16))
	a.op(opMemberDecorate, idPC, 3, decOffset, uint32(firstOff+32))
	a.op(opMemberDecorate, idPC, 3, decMatrixStride, 16)
	a.op(opMemberDecorate, idPC, 4, decOffset, uint32(firstOff+96))
	a.op(opTypeInt, idUint, 32, 0)
	a.op(opTypeFloat, idFloat, 32)
	a.op(opTypeVector, idVec4, idFloat, 4)
	a.op(opTypeMatrix, idMat4, idVec4, 4)
	a.op(opTypeStruct, idCam, idFloat)
	a.op(opTypePointer, idPtrCam, scPhysicalStorageBuf, idCam)
	a.op(opTypeStruct, idPC, idPtrCam, idUint, idVec4, idMat4, idUint)
	a.op(opTypePointer, idPtrPC, scPushConstant, idPC)
	a.op(opVariable, idPtrPC, idVar, scPushConstant)
	return a.bytes()
}

func TestReflect(t *testing.T) {
	r, err := Reflect(pushModule(0, true))
	if err != nil {
		t.Fatalf("Reflect: unexpected error: %v", err)
	}
	if r.DefaultEntryPoint != "main" {
		t.Fatalf("Reflect: DefaultEntryPoint:\nhave %q\nwant \"main\"", r.DefaultEntryPoint)
	}
	pc, ok := r.DefaultPushConstant()
	if !ok {
		t.Fatal("Reflection.DefaultPushConstant: no push constant")
	}
	if pc.Name != "pushConstant" || pc.Type.Name != "PushConstant" {
		t.Fatalf("Reflect: names:\nhave %q, %q\nwant \"pushConstant\", \"PushConstant\"", pc.Name, pc.Type.Name)
	}
	if pc.LayoutOffset != 0 {
		t.Fatalf("Reflect: LayoutOffset:\nhave %d\nwant 0", pc.LayoutOffset)
	}
	if pc.Type.Size != 100 || pc.Type.PaddedSize != 112 {
		t.Fatalf("Reflect: Size/PaddedSize:\nhave %d/%d\nwant 100/112", pc.Type.Size, pc.Type.PaddedSize)
	}
	for i, x := range [...]struct {
		name string
		off  int
		size int
		data TypeData
	}{
		{"cameraBuffer", 0, 8, Pointer{StorageClass: scPhysicalStorageBuf}},
		{"cameraIndex", 8, 4, Numeric{32, Integer{Signed: false}, Scalar{}}},
		{"color", 16, 16, Numeric{32, Float{}, Vector{Components: 4}}},
		{"model", 32, 64, Numeric{32, Float{}, Matrix{Columns: 4, Rows: 4}}},
		{"flags", 96, 4, Numeric{32, Integer{Signed: false}, Scalar{}}},
	} {
		m := pc.Type.Members[i]
		if m.Name != x.name || m.Offset != x.off || m.Type.Size != x.size {
			t.Fatalf("Reflect: member %d:\nhave %q@%d (%d bytes)\nwant %q@%d (%d bytes)",
				i, m.Name, m.Offset, m.Type.Size, x.name, x.off, x.size)
		}
		if m.Type.Data != x.data {
			t.Fatalf("Reflect: member %d data:\nhave %#v\nwant %#v", i, m.Type.Data, x.data)
		}
	}
}

func TestReflectOffset(t *testing.T) {
	r, err := Reflect(pushModule(16, true))
	if err != nil {
		t.Fatalf("Reflect: unexpected error: %v", err)
	}
	pc, _ := r.DefaultPushConstant()
	if pc.LayoutOffset != 16 {
		t.Fatalf("Reflect: LayoutOffset:\nhave %d\nwant 16", pc.LayoutOffset)
	}
	if pc.Type.Size != 116 || pc.Type.PaddedSize != 128 {
		t.Fatalf("Reflect: Size/PaddedSize:\nhave %d/%d\nwant 116/128", pc.Type.Size, pc.Type.PaddedSize)
	}
}

func TestReflectUnlisted(t *testing.T) {
	r, err := Reflect(pushModule(0, false))
	if err != nil {
		t.Fatalf("Reflect: unexpected error: %v", err)
	}
	if _, ok := r.DefaultPushConstant(); !ok {
		t.Fatal("Reflection.DefaultPushConstant: unlisted push constant was not assigned")
	}
}

func TestReflectNoPushConstant(t *testing.T) {
	var a spvAsm
	a.op(opEntryPoint, cat(4, idMain, str("fragMain"))...)
	a.op(opTypeFloat, idFloat, 32)
	r, err := Reflect(a.bytes())
	if err != nil {
		t.Fatalf("Reflect: unexpected error: %v", err)
	}
	if r.DefaultEntryPoint != "fragMain" {
		t.Fatalf("Reflect: DefaultEntryPoint:\nhave %q\nwant \"fragMain\"", r.DefaultEntryPoint)
	}
	if _, ok := r.DefaultPushConstant(); ok {
		t.Fatal("Reflection.DefaultPushConstant: unexpected push constant")
	}
}

func TestReflectUnsupported(t *testing.T) {
	var a spvAsm
	a.op(opEntryPoint, cat(5, idMain, str("main"), idVar)...)
	a.op(opMemberDecorate, idPC, 0, decOffset, 0)
	a.op(opMemberDecorate, idPC, 1, decOffset, 4)
	a.op(opTypeBool, idBool)
	a.op(opTypeInt, idUint, 32, 1)
	a.op(opTypeStruct, idPC, idBool, idUint)
	a.op(opTypePointer, idPtrPC, scPushConstant, idPC)
	a.op(opVariable, idPtrPC, idVar, scPushConstant)
	r, err := Reflect(a.bytes())
	if err != nil {
		t.Fatalf("Reflect: unexpected error: %v", err)
	}
	pc, _ := r.DefaultPushConstant()
	if d, ok := pc.Type.Members[0].Type.Data.(Unsupported); !ok || d.Opcode != opTypeBool {
		t.Fatalf("Reflect: bool member:\nhave %#v\nwant Unsupported{%d}", pc.Type.Members[0].Type.Data, opTypeBool)
	}
	want := Numeric{32, Integer{Signed: true}, Scalar{}}
	if d := pc.Type.Members[1].Type.Data; d != want {
		t.Fatalf("Reflect: int member:\nhave %#v\nwant %#v", d, want)
	}
	if pc.Type.LogicallyCompatible(&pc.Type) {
		t.Fatal("Structure.LogicallyCompatible: unsupported members cannot be compatible")
	}
}

func TestReflectInvalid(t *testing.T) {
	for _, code := range [][]byte{
		nil,
		make([]byte, 19),
		make([]byte, 20),
		append(pushModule(0, true), 1, 2, 3),
	} {
		if _, err := Reflect(code); !errors.Is(err, ErrNotSPIRV) {
			t.Fatalf("Reflect: error:\nhave %v\nwant %v", err, ErrNotSPIRV)
		}
	}
	truncated := pushModule(0, true)
	truncated = truncated[:len(truncated)-4]
	if _, err := Reflect(truncated); !errors.Is(err, ErrNotSPIRV) {
		t.Fatalf("Reflect: truncated module:\nhave %v\nwant %v", err, ErrNotSPIRV)
	}
}

// memberModule assembles a compute module whose push
// constant block has a single member of type idMember,
// declared by decl.
func memberModule(idMember uint32, decl func(a *spvAsm)) []byte {
	var a spvAsm
	a.op(opEntryPoint, cat(5, idMain, str("main"), idVar)...)
	a.op(opMemberDecorate, idPC, 0, decOffset, 0)
	decl(&a)
	a.op(opTypeStruct, idPC, idMember)
	a.op(opTypePointer, idPtrPC, scPushConstant, idPC)
	a.op(opVariable, idPtrPC, idVar, scPushConstant)
	return a.bytes()
}

func TestReflectMalformedTypes(t *testing.T) {
	// OpTypeInt without width and signedness.
	code := memberModule(idUint, func(a *spvAsm) { a.op(opTypeInt, idUint) })
	if _, err := Reflect(code); !errors.Is(err, ErrNotSPIRV) {
		t.Fatalf("Reflect: truncated OpTypeInt:\nhave %v\nwant %v", err, ErrNotSPIRV)
	}
	code = memberModule(idVec4, func(a *spvAsm) {
		a.op(opTypeFloat, idFloat, 32)
		a.op(opTypeVector, idVec4, idFloat)
	})
	if _, err := Reflect(code); !errors.Is(err, ErrNotSPIRV) {
		t.Fatalf("Reflect: truncated OpTypeVector:\nhave %v\nwant %v", err, ErrNotSPIRV)
	}

	// An array whose element type is itself.
	const idArr, idLen = idBool + 1, idBool + 2
	code = memberModule(idArr, func(a *spvAsm) {
		a.op(opTypeInt, idUint, 32, 0)
		a.op(opConstant, idUint, idLen, 4)
		a.op(opTypeArray, idArr, idArr, idLen)
	})
	r, err := Reflect(code)
	if err != nil {
		t.Fatalf("Reflect: self-referential array: unexpected error: %v", err)
	}
	pc, _ := r.DefaultPushConstant()
	if d, ok := pc.Type.Members[0].Type.Data.(Unsupported); !ok || d.Opcode != opTypeArray {
		t.Fatalf("Reflect: self-referential array:\nhave %#v\nwant Unsupported{%d}", pc.Type.Members[0].Type.Data, opTypeArray)
	}
}

func TestLogicallyCompatible(t *testing.T) {
	r1, _ := Reflect(pushModule(0, true))
	r2, _ := Reflect(pushModule(0, false))
	r3, _ := Reflect(pushModule(16, true))
	pc1, _ := r1.DefaultPushConstant()
	pc2, _ := r2.DefaultPushConstant()
	pc3, _ := r3.DefaultPushConstant()
	pc2.Type.Name = "Renamed"
	pc2.Type.Members[0].Name = "renamed"
	if !pc1.Type.LogicallyCompatible(&pc2.Type) {
		t.Fatal("Structure.LogicallyCompatible: renamed structure should be compatible")
	}
	if pc1.Type.LogicallyCompatible(&pc3.Type) {
		t.Fatal("Structure.LogicallyCompatible: offset structure should not be compatible")
	}
}
