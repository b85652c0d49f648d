// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package engine

import (
	"unsafe"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"

	"github.com/gviegas/deferred/driver"
)

// Vertex is the layout of vertex data.
// Shaders fetch vertices through the vertex buffer's
// device address, so there is no vertex input state.
// The texture coordinates are split across the padding
// of Position and Normal.
type Vertex struct {
	Position [3]float32
	UVX      float32
	Normal   [3]float32
	UVY      float32
	Color    [4]float32
}

// Surface is a range of a mesh's index buffer.
type Surface struct {
	FirstIndex int
	IndexCount int
}

// GPUMeshBuffers are the device buffers of a mesh.
// Indices are 32-bit.
type GPUMeshBuffers struct {
	Index  *AllocatedBuffer
	Vertex *AllocatedBuffer
}

// VertexAddr returns the device address of the vertex
// buffer.
func (m *GPUMeshBuffers) VertexAddr() uint64 { return m.Vertex.Addr() }

// Cleanup destroys both buffers.
func (m *GPUMeshBuffers) Cleanup() {
	if m.Index != nil {
		m.Index.Cleanup()
		m.Vertex.Cleanup()
		m.Index, m.Vertex = nil, nil
	}
}

// MeshAsset is a named mesh and its surfaces.
type MeshAsset struct {
	Name     string
	Surfaces []Surface
	Buffers  GPUMeshBuffers
}

// asBytes returns the memory of s.
// T must not contain pointers.
func asBytes[T any](s []T) []byte {
	if len(s) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(s))), len(s)*int(unsafe.Sizeof(s[0])))
}

// UploadMesh creates the device buffers of a mesh and
// fills them with an immediate submission.
// A single staging buffer holds the vertices followed
// by the indices; it is destroyed before UploadMesh
// returns.
func UploadMesh(ctx *Context, imm *Immediate, indices []uint32, vertices []Vertex) (GPUMeshBuffers, error) {
	vdata := asBytes(vertices)
	idata := asBytes(indices)
	vsize := int64(len(vdata))
	isize := int64(len(idata))
	if vsize == 0 || isize == 0 {
		return GPUMeshBuffers{}, errors.New("engine: uploading empty mesh")
	}

	vbuf, err := AllocateBuffer(ctx, vsize, false, driver.UShaderRead|driver.UCopyDst|driver.UAddress)
	if err != nil {
		return GPUMeshBuffers{}, err
	}
	ibuf, err := AllocateBuffer(ctx, isize, false, driver.UIndexData|driver.UCopyDst)
	if err != nil {
		vbuf.Cleanup()
		return GPUMeshBuffers{}, err
	}
	mesh := GPUMeshBuffers{Index: ibuf, Vertex: vbuf}

	staging, err := AllocateBuffer(ctx, vsize+isize, true, driver.UCopySrc)
	if err != nil {
		mesh.Cleanup()
		return GPUMeshBuffers{}, err
	}
	defer staging.Cleanup()
	copy(staging.Buffer.Bytes(), vdata)
	copy(staging.Buffer.Bytes()[vsize:], idata)

	err = imm.Submit(func(cb driver.CmdBuffer) {
		cb.CopyBuffer(&driver.BufferCopy{
			From: staging.Buffer,
			To:   vbuf.Buffer,
			Size: vsize,
		})
		cb.CopyBuffer(&driver.BufferCopy{
			From:    staging.Buffer,
			FromOff: vsize,
			To:      ibuf.Buffer,
			Size:    isize,
		})
	})
	if err != nil {
		mesh.Cleanup()
		return GPUMeshBuffers{}, errors.Wrap(err, "engine: uploading mesh")
	}
	return mesh, nil
}

// boxGeometry returns the indices and vertices of an
// axis-aligned box with the given half extents.
// Each face has its own four vertices, wound
// counter-clockwise when seen from outside.
func boxGeometry(extent mgl32.Vec3) ([]uint32, []Vertex) {
	faces := [6][3]mgl32.Vec3{
		// normal, u, v (u x v = normal)
		{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}},
		{{-1, 0, 0}, {0, 0, 1}, {0, 1, 0}},
		{{0, 1, 0}, {0, 0, 1}, {1, 0, 0}},
		{{0, -1, 0}, {1, 0, 0}, {0, 0, 1}},
		{{0, 0, 1}, {1, 0, 0}, {0, 1, 0}},
		{{0, 0, -1}, {0, 1, 0}, {1, 0, 0}},
	}
	corners := [4][2]float32{{-1, -1}, {1, -1}, {1, 1}, {-1, 1}}

	indices := make([]uint32, 0, 36)
	vertices := make([]Vertex, 0, 24)
	for _, f := range faces {
		n, u, v := f[0], f[1], f[2]
		base := uint32(len(vertices))
		for _, c := range corners {
			p := n.Add(u.Mul(c[0])).Add(v.Mul(c[1]))
			p = mgl32.Vec3{p[0] * extent[0], p[1] * extent[1], p[2] * extent[2]}
			vertices = append(vertices, Vertex{
				Position: p,
				UVX:      (c[0] + 1) / 2,
				Normal:   n,
				UVY:      (c[1] + 1) / 2,
				Color:    [4]float32{1, 1, 1, 1},
			})
		}
		indices = append(indices, base, base+1, base+2, base, base+2, base+3)
	}
	return indices, vertices
}

// NewBoxMesh uploads a box mesh with half extents of 1.
// It has a single surface covering every index.
func NewBoxMesh(ctx *Context, imm *Immediate, name string) (*MeshAsset, error) {
	indices, vertices := boxGeometry(mgl32.Vec3{1, 1, 1})
	bufs, err := UploadMesh(ctx, imm, indices, vertices)
	if err != nil {
		return nil, err
	}
	return &MeshAsset{
		Name:     name,
		Surfaces: []Surface{{FirstIndex: 0, IndexCount: len(indices)}},
		Buffers:  bufs,
	}, nil
}

// MeshID identifies a mesh in a MeshRegistry.
type MeshID int

// MeshRegistry owns uploaded meshes and hands out small
// integer identifiers for them.
type MeshRegistry struct {
	meshes dataMap[MeshID, *MeshAsset]
}

// Add takes ownership of m.
func (r *MeshRegistry) Add(m *MeshAsset) MeshID { return r.meshes.insert(m) }

// Get returns the mesh identified by id, or nil if id
// does not belong to r.
func (r *MeshRegistry) Get(id MeshID) *MeshAsset {
	if !r.meshes.contains(id) {
		return nil
	}
	return *r.meshes.get(id)
}

// Remove removes the mesh identified by id and returns
// it. Ownership passes to the caller.
func (r *MeshRegistry) Remove(id MeshID) *MeshAsset {
	if !r.meshes.contains(id) {
		return nil
	}
	return r.meshes.remove(id)
}

// Len returns the number of meshes.
func (r *MeshRegistry) Len() int { return r.meshes.len() }

// Cleanup destroys every mesh's buffers and empties r.
func (r *MeshRegistry) Cleanup() {
	for _, m := range r.meshes.all() {
		(*m).Buffers.Cleanup()
	}
	r.meshes = dataMap[MeshID, *MeshAsset]{}
}
