// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package shader

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// TypeData is the closed set of type descriptions that
// reflection produces.
// It is one of Numeric, Pointer or Unsupported.
type TypeData interface {
	typeData()
}

// Component is the component type of a Numeric.
// It is one of Integer or Float.
type Component interface {
	component()
}

// Integer corresponds to OpTypeInt.
type Integer struct {
	Signed bool
}

// Float corresponds to OpTypeFloat.
type Float struct{}

func (Integer) component() {}
func (Float) component()   {}

// Format is the shape of a Numeric.
// It is one of Scalar, Vector or Matrix.
type Format interface {
	format()
}

// Scalar is a single component.
type Scalar struct{}

// Vector is a number of components.
type Vector struct {
	Components int
}

// Matrix is a number of column vectors.
type Matrix struct {
	Columns int
	Rows    int
}

func (Scalar) format() {}
func (Vector) format() {}
func (Matrix) format() {}

// Numeric describes a scalar, vector or matrix type.
type Numeric struct {
	ComponentBits int
	Component     Component
	Format        Format
}

// Pointer describes a physical storage buffer pointer,
// which holds a device address.
type Pointer struct {
	StorageClass uint32
}

// Unsupported describes a type that reflection does not
// model. Opcode is the instruction that declared it.
type Unsupported struct {
	Opcode uint32
}

func (Numeric) typeData()     {}
func (Pointer) typeData()     {}
func (Unsupported) typeData() {}

// SizedType is a type along with its name and size.
type SizedType struct {
	Data       TypeData
	Name       string
	Size       int
	PaddedSize int
}

// StructureMember is a member of a Structure.
type StructureMember struct {
	Offset int
	Name   string
	Type   SizedType
}

// Structure describes a block type.
type Structure struct {
	Name       string
	Size       int
	PaddedSize int
	Members    []StructureMember
}

// LogicallyCompatible returns whether s and other have
// the same memory layout, ignoring names.
func (s *Structure) LogicallyCompatible(other *Structure) bool {
	if s.Size != other.Size || len(s.Members) != len(other.Members) {
		return false
	}
	for i := range s.Members {
		m, o := &s.Members[i], &other.Members[i]
		if m.Offset != o.Offset || m.Type.Size != o.Type.Size {
			return false
		}
		if !sameData(m.Type.Data, o.Type.Data) {
			return false
		}
	}
	return true
}

func sameData(x, y TypeData) bool {
	switch x := x.(type) {
	case Numeric:
		y, ok := y.(Numeric)
		return ok && x == y
	case Pointer:
		_, ok := y.(Pointer)
		return ok
	case Unsupported:
		// Nothing is known about the layout.
		return false
	default:
		panic("unexpected TypeData")
	}
}

// PushConstant is a push constant block declared by an
// entry point.
// LayoutOffset is the offset of the first member, which
// is where the block's data begins.
type PushConstant struct {
	Type         Structure
	Name         string
	LayoutOffset int
}

// Reflection is the data recovered from a SPIR-V module.
type Reflection struct {
	// DefaultEntryPoint is the name of the first entry
	// point declared in the module.
	DefaultEntryPoint string
	// PushConstants maps entry point names to the push
	// constant blocks they use.
	PushConstants map[string][]PushConstant
}

// DefaultPushConstant returns the first push constant
// of the default entry point.
func (r *Reflection) DefaultPushConstant() (PushConstant, bool) {
	pcs := r.PushConstants[r.DefaultEntryPoint]
	if len(pcs) == 0 {
		return PushConstant{}, false
	}
	return pcs[0], true
}

// PaddedSize returns n rounded up to the alignment used
// for the padded size of blocks.
func PaddedSize(n int) int { return (n + blockAlign - 1) &^ (blockAlign - 1) }

const blockAlign = 16

// SPIR-V constants used by Reflect.
const (
	spvMagic             = 0x07230203
	opName               = 5
	opMemberName         = 6
	opEntryPoint         = 15
	opTypeBool           = 20
	opTypeInt            = 21
	opTypeFloat          = 22
	opTypeVector         = 23
	opTypeMatrix         = 24
	opTypeArray          = 28
	opTypeRuntimeArray   = 29
	opTypeStruct         = 30
	opTypePointer        = 32
	opConstant           = 43
	opVariable           = 59
	opDecorate           = 71
	opMemberDecorate     = 72
	decArrayStride       = 6
	decMatrixStride      = 7
	decOffset            = 35
	scPushConstant       = 9
	scPhysicalStorageBuf = 5349
)

// typeOperands is the number of operands that follow the
// result ID of each type instruction.
var typeOperands = map[uint32]int{
	opTypeBool:         0,
	opTypeInt:          2,
	opTypeFloat:        1,
	opTypeVector:       2,
	opTypeMatrix:       2,
	opTypeArray:        2,
	opTypeRuntimeArray: 1,
	opTypeStruct:       0,
	opTypePointer:      2,
}

// maxTypeDepth limits the nesting of types, which in a
// malformed module may refer to themselves.
const maxTypeDepth = 64

// ErrNotSPIRV means that the data is not a valid SPIR-V
// module.
var ErrNotSPIRV = errors.New("shader: not a SPIR-V module")

type spvType struct {
	op    uint32
	words []uint32
}

type spvParser struct {
	names       map[uint32]string
	memberNames map[uint32]map[uint32]string
	offsets     map[uint32]map[uint32]int
	matStrides  map[uint32]map[uint32]int
	arrStrides  map[uint32]int
	types       map[uint32]spvType
	consts      map[uint32]uint32
	entries     []spvEntry
	pushVars    []spvVar
	depth       int
}

type spvEntry struct {
	name  string
	iface map[uint32]bool
}

type spvVar struct {
	id, ptrType uint32
}

// Reflect parses a SPIR-V module and recovers its entry
// points and push constant blocks.
func Reflect(code []byte) (*Reflection, error) {
	if len(code) < 20 || len(code)%4 != 0 {
		return nil, ErrNotSPIRV
	}
	var order binary.ByteOrder = binary.LittleEndian
	if order.Uint32(code) != spvMagic {
		order = binary.BigEndian
		if order.Uint32(code) != spvMagic {
			return nil, ErrNotSPIRV
		}
	}
	words := make([]uint32, len(code)/4)
	for i := range words {
		words[i] = order.Uint32(code[i*4:])
	}
	p := spvParser{
		names:       make(map[uint32]string),
		memberNames: make(map[uint32]map[uint32]string),
		offsets:     make(map[uint32]map[uint32]int),
		matStrides:  make(map[uint32]map[uint32]int),
		arrStrides:  make(map[uint32]int),
		types:       make(map[uint32]spvType),
		consts:      make(map[uint32]uint32),
	}
	if err := p.parse(words[5:]); err != nil {
		return nil, err
	}
	return p.reflection()
}

func (p *spvParser) parse(words []uint32) error {
	for len(words) > 0 {
		n := int(words[0] >> 16)
		op := words[0] & 0xffff
		if n == 0 || n > len(words) {
			return errors.Wrapf(ErrNotSPIRV, "bad instruction length %d", n)
		}
		args := words[1:n]
		words = words[n:]
		switch op {
		case opName:
			if len(args) >= 1 {
				p.names[args[0]] = spvString(args[1:])
			}
		case opMemberName:
			if len(args) >= 2 {
				memberMap(p.memberNames, args[0])[args[1]] = spvString(args[2:])
			}
		case opEntryPoint:
			if len(args) >= 3 {
				name := spvString(args[2:])
				e := spvEntry{name: name, iface: make(map[uint32]bool)}
				for _, id := range args[2+spvStringLen(name):] {
					e.iface[id] = true
				}
				p.entries = append(p.entries, e)
			}
		case opDecorate:
			if len(args) >= 3 && args[1] == decArrayStride {
				p.arrStrides[args[0]] = int(args[2])
			}
		case opMemberDecorate:
			if len(args) >= 4 {
				switch args[2] {
				case decOffset:
					memberMap(p.offsets, args[0])[args[1]] = int(args[3])
				case decMatrixStride:
					memberMap(p.matStrides, args[0])[args[1]] = int(args[3])
				}
			}
		case opTypeBool, opTypeInt, opTypeFloat, opTypeVector, opTypeMatrix,
			opTypeArray, opTypeRuntimeArray, opTypeStruct, opTypePointer:
			if len(args) < 1+typeOperands[op] {
				return errors.Wrapf(ErrNotSPIRV, "type instruction %d has %d operands", op, len(args))
			}
			p.types[args[0]] = spvType{op, args[1:]}
		case opConstant:
			if len(args) >= 3 {
				p.consts[args[1]] = args[2]
			}
		case opVariable:
			if len(args) >= 3 && args[2] == scPushConstant {
				p.pushVars = append(p.pushVars, spvVar{id: args[1], ptrType: args[0]})
			}
		}
	}
	return nil
}

func memberMap[V any](m map[uint32]map[uint32]V, id uint32) map[uint32]V {
	mm, ok := m[id]
	if !ok {
		mm = make(map[uint32]V)
		m[id] = mm
	}
	return mm
}

func (p *spvParser) reflection() (*Reflection, error) {
	r := &Reflection{PushConstants: make(map[string][]PushConstant)}
	if len(p.entries) == 0 {
		return r, nil
	}
	r.DefaultEntryPoint = p.entries[0].name
	for _, v := range p.pushVars {
		ptr, ok := p.types[v.ptrType]
		if !ok || ptr.op != opTypePointer || len(ptr.words) < 2 {
			return nil, errors.Wrapf(ErrNotSPIRV, "push constant %d has no pointer type", v.id)
		}
		st, err := p.structure(ptr.words[1])
		if err != nil {
			return nil, err
		}
		pc := PushConstant{Type: st, Name: p.names[v.id]}
		if len(st.Members) > 0 {
			pc.LayoutOffset = st.Members[0].Offset
		}
		// Before SPIR-V 1.4 interfaces only list
		// inputs and outputs, so a variable that no
		// entry point lists belongs to all of them.
		listed := false
		for _, e := range p.entries {
			if e.iface[v.id] {
				listed = true
				r.PushConstants[e.name] = append(r.PushConstants[e.name], pc)
			}
		}
		if !listed {
			for _, e := range p.entries {
				r.PushConstants[e.name] = append(r.PushConstants[e.name], pc)
			}
		}
	}
	return r, nil
}

func (p *spvParser) structure(id uint32) (Structure, error) {
	t, ok := p.types[id]
	if !ok || t.op != opTypeStruct {
		return Structure{}, errors.Wrapf(ErrNotSPIRV, "type %d is not a structure", id)
	}
	st := Structure{Name: p.names[id]}
	for i, mt := range t.words {
		m := uint32(i)
		off := p.offsets[id][m]
		typ := p.sizedType(mt, p.matStrides[id][m])
		st.Members = append(st.Members, StructureMember{
			Offset: off,
			Name:   p.memberNames[id][m],
			Type:   typ,
		})
		if end := off + typ.Size; end > st.Size {
			st.Size = end
		}
	}
	st.PaddedSize = PaddedSize(st.Size)
	return st, nil
}

func (p *spvParser) sizedType(id uint32, matStride int) SizedType {
	st := SizedType{Name: p.names[id]}
	st.Data, st.Size = p.typeData(id, matStride)
	st.PaddedSize = PaddedSize(st.Size)
	return st
}

// typeData returns the description and size in bytes of
// the type identified by id.
func (p *spvParser) typeData(id uint32, matStride int) (TypeData, int) {
	t, ok := p.types[id]
	if !ok {
		return Unsupported{}, 0
	}
	if p.depth >= maxTypeDepth {
		return Unsupported{Opcode: t.op}, 0
	}
	p.depth++
	defer func() { p.depth-- }()
	w := t.words
	switch t.op {
	case opTypeInt:
		return Numeric{int(w[0]), Integer{Signed: w[1] != 0}, Scalar{}}, int(w[0]) / 8
	case opTypeFloat:
		return Numeric{int(w[0]), Float{}, Scalar{}}, int(w[0]) / 8
	case opTypeVector:
		comp, size := p.typeData(w[0], 0)
		if num, ok := comp.(Numeric); ok {
			num.Format = Vector{Components: int(w[1])}
			return num, size * int(w[1])
		}
		return Unsupported{Opcode: t.op}, size * int(w[1])
	case opTypeMatrix:
		col, colSize := p.typeData(w[0], 0)
		cols := int(w[1])
		if matStride == 0 {
			matStride = colSize
		}
		if num, ok := col.(Numeric); ok {
			if v, ok := num.Format.(Vector); ok {
				num.Format = Matrix{Columns: cols, Rows: v.Components}
				return num, matStride * cols
			}
		}
		return Unsupported{Opcode: t.op}, matStride * cols
	case opTypePointer:
		if w[0] == scPhysicalStorageBuf {
			return Pointer{StorageClass: w[0]}, 8
		}
		return Unsupported{Opcode: t.op}, 8
	case opTypeArray:
		n := int(p.consts[w[1]])
		stride := p.arrStrides[id]
		if stride == 0 {
			_, stride = p.typeData(w[0], 0)
		}
		return Unsupported{Opcode: t.op}, n * stride
	case opTypeStruct:
		st, err := p.structure(id)
		if err != nil {
			return Unsupported{Opcode: t.op}, 0
		}
		return Unsupported{Opcode: t.op}, st.Size
	default:
		// Booleans and runtime arrays have no
		// defined size in a push constant block.
		return Unsupported{Opcode: t.op}, 0
	}
}

// spvString decodes a nul-terminated literal string.
func spvString(words []uint32) string {
	var b []byte
	for _, w := range words {
		for i := 0; i < 4; i++ {
			c := byte(w >> (8 * i))
			if c == 0 {
				return string(b)
			}
			b = append(b, c)
		}
	}
	return string(b)
}

// spvStringLen returns the number of words that the
// literal encoding of s occupies.
func spvStringLen(s string) int { return len(s)/4 + 1 }
