package tile3d

import (
	"fmt"
	"math"

	"github.com/soypat/geometry/md3"
)

// MaterialHandle indexes into a MaterialLibrary's Materials slice.
// NoMaterial means the mesh (or a sub-mesh fragment of it) has no
// assigned material.
type MaterialHandle int32

// NoMaterial is the sentinel for "no material assigned"; NewIndexedMesh
// starts from it, while the zero MaterialHandle refers to material 0.
const NoMaterial MaterialHandle = -1

// IndexedMesh is a set of contiguous parallel attribute buffers plus a
// triangle index buffer; this shape maps directly onto the GLB layout
// with no attribute-struct indirection.
//
// Positions has length 3*VertexCount(). Normals, UVs and Colors are
// either empty or have length 3*V, 2*V and 4*V respectively. Indices has
// length divisible by 3 and every entry lies in [0, VertexCount()).
type IndexedMesh struct {
	Positions []float64
	Normals   []float64
	UVs       []float64
	Colors    []float64
	Indices   []uint32
	Material  MaterialHandle
}

// NewIndexedMesh returns an empty mesh with no material assigned.
func NewIndexedMesh() IndexedMesh {
	return IndexedMesh{Material: NoMaterial}
}

// VertexCount returns the number of vertices implied by Positions.
func (m *IndexedMesh) VertexCount() int { return len(m.Positions) / 3 }

// TriangleCount returns the number of triangles implied by Indices.
func (m *IndexedMesh) TriangleCount() int { return len(m.Indices) / 3 }

// HasNormals reports whether the per-vertex normal buffer is populated.
func (m *IndexedMesh) HasNormals() bool { return len(m.Normals) > 0 }

// HasUVs reports whether the per-vertex UV buffer is populated.
func (m *IndexedMesh) HasUVs() bool { return len(m.UVs) > 0 }

// HasColors reports whether the per-vertex color buffer is populated.
func (m *IndexedMesh) HasColors() bool { return len(m.Colors) > 0 }

// IsEmpty reports whether the mesh has zero vertices.
func (m *IndexedMesh) IsEmpty() bool { return len(m.Positions) == 0 }

// Validate checks IndexedMesh's buffer-length and index-range invariants.
func (m *IndexedMesh) Validate() error {
	v := m.VertexCount()
	if len(m.Positions)%3 != 0 {
		return NewError(KindInput, "", "positions length %d not divisible by 3", len(m.Positions))
	}
	if len(m.Normals) != 0 && len(m.Normals) != 3*v {
		return NewError(KindInput, "", "normals length %d does not match %d vertices", len(m.Normals), v)
	}
	if len(m.UVs) != 0 && len(m.UVs) != 2*v {
		return NewError(KindInput, "", "uvs length %d does not match %d vertices", len(m.UVs), v)
	}
	if len(m.Colors) != 0 && len(m.Colors) != 4*v {
		return NewError(KindInput, "", "colors length %d does not match %d vertices", len(m.Colors), v)
	}
	if len(m.Indices)%3 != 0 {
		return NewError(KindInput, "", "index count %d not divisible by 3", len(m.Indices))
	}
	for _, idx := range m.Indices {
		if int(idx) >= v {
			return NewError(KindInput, "", "index %d out of range for %d vertices", idx, v)
		}
	}
	return nil
}

// Position returns the i'th vertex position.
func (m *IndexedMesh) Position(i int) md3.Vec {
	return md3.Vec{X: m.Positions[3*i], Y: m.Positions[3*i+1], Z: m.Positions[3*i+2]}
}

// Normal returns the i'th vertex normal. Caller must check HasNormals.
func (m *IndexedMesh) Normal(i int) md3.Vec {
	return md3.Vec{X: m.Normals[3*i], Y: m.Normals[3*i+1], Z: m.Normals[3*i+2]}
}

// UV returns the i'th vertex texture coordinate. Caller must check HasUVs.
func (m *IndexedMesh) UV(i int) (u, v float64) {
	return m.UVs[2*i], m.UVs[2*i+1]
}

// Color returns the i'th vertex color as RGBA in [0,1]. Caller must check
// HasColors.
func (m *IndexedMesh) Color(i int) (r, g, b, a float64) {
	return m.Colors[4*i], m.Colors[4*i+1], m.Colors[4*i+2], m.Colors[4*i+3]
}

// AppendVertex appends one vertex's worth of attributes to the mesh's
// buffers, keeping each optional buffer either absent or in lockstep with
// Positions. hasNormal/hasUV/hasColor communicate which optional
// attributes the caller intends to populate for this mesh overall; once a
// buffer has been started it must be fed on every call.
func (m *IndexedMesh) AppendVertex(pos md3.Vec, normal md3.Vec, hasNormal bool, u, v float64, hasUV bool, r, g, b, a float64, hasColor bool) int {
	idx := m.VertexCount()
	m.Positions = append(m.Positions, pos.X, pos.Y, pos.Z)
	if hasNormal {
		m.Normals = append(m.Normals, normal.X, normal.Y, normal.Z)
	}
	if hasUV {
		m.UVs = append(m.UVs, u, v)
	}
	if hasColor {
		m.Colors = append(m.Colors, r, g, b, a)
	}
	return idx
}

// Bounds computes the mesh's axis-aligned bounding box by scanning
// Positions. Returns a zero-value BoundingBox (IsEmpty() true) for an
// empty mesh.
func (m *IndexedMesh) Bounds() BoundingBox {
	if m.IsEmpty() {
		return BoundingBox{}
	}
	bb := BoundingBox{
		Min: m.Position(0),
		Max: m.Position(0),
	}
	for i := 1; i < m.VertexCount(); i++ {
		bb = bb.IncludePoint(m.Position(i))
	}
	return bb
}

// Compact rebuilds the mesh keeping only vertices referenced by Indices,
// remapping indices to the new compacted vertex table. Vertices are
// assigned new indices in order of first appearance when scanning
// Indices left to right, matching the compaction pass the simplifier
// applies to its output.
func (m *IndexedMesh) Compact() {
	v := m.VertexCount()
	remap := make([]int32, v)
	for i := range remap {
		remap[i] = -1
	}
	var next int32
	for _, idx := range m.Indices {
		if remap[idx] == -1 {
			remap[idx] = next
			next++
		}
	}
	newV := int(next)
	newPos := make([]float64, 0, 3*newV)
	var newNorm, newUV, newCol []float64
	if m.HasNormals() {
		newNorm = make([]float64, 0, 3*newV)
	}
	if m.HasUVs() {
		newUV = make([]float64, 0, 2*newV)
	}
	if m.HasColors() {
		newCol = make([]float64, 0, 4*newV)
	}
	order := make([]int32, newV)
	for old, nu := range remap {
		if nu != -1 {
			order[nu] = int32(old)
		}
	}
	for _, old := range order {
		newPos = append(newPos, m.Positions[3*old], m.Positions[3*old+1], m.Positions[3*old+2])
		if m.HasNormals() {
			newNorm = append(newNorm, m.Normals[3*old], m.Normals[3*old+1], m.Normals[3*old+2])
		}
		if m.HasUVs() {
			newUV = append(newUV, m.UVs[2*old], m.UVs[2*old+1])
		}
		if m.HasColors() {
			newCol = append(newCol, m.Colors[4*old], m.Colors[4*old+1], m.Colors[4*old+2], m.Colors[4*old+3])
		}
	}
	newIdx := make([]uint32, len(m.Indices))
	for i, old := range m.Indices {
		newIdx[i] = uint32(remap[old])
	}
	m.Positions = newPos
	m.Normals = newNorm
	m.UVs = newUV
	m.Colors = newCol
	m.Indices = newIdx
}

// MergeMeshes concatenates the given meshes into one, offsetting indices
// by the running vertex count. An optional attribute buffer is present in
// the merge only if it is present on every contributing non-empty mesh.
// The material handle of the merge is inherited from the first
// contributor with a material assigned.
func MergeMeshes(meshes []IndexedMesh) IndexedMesh {
	out := NewIndexedMesh()
	if len(meshes) == 0 {
		return out
	}
	hasNormals, hasUVs, hasColors := true, true, true
	anyVerts := false
	for _, m := range meshes {
		if m.IsEmpty() {
			continue
		}
		anyVerts = true
		hasNormals = hasNormals && m.HasNormals()
		hasUVs = hasUVs && m.HasUVs()
		hasColors = hasColors && m.HasColors()
	}
	if !anyVerts {
		return out
	}
	var vertOffset uint32
	for _, m := range meshes {
		if m.IsEmpty() {
			continue
		}
		if out.Material == NoMaterial && m.Material != NoMaterial {
			out.Material = m.Material
		}
		out.Positions = append(out.Positions, m.Positions...)
		if hasNormals {
			out.Normals = append(out.Normals, m.Normals...)
		}
		if hasUVs {
			out.UVs = append(out.UVs, m.UVs...)
		}
		if hasColors {
			out.Colors = append(out.Colors, m.Colors...)
		}
		for _, idx := range m.Indices {
			out.Indices = append(out.Indices, idx+vertOffset)
		}
		vertOffset += uint32(m.VertexCount())
	}
	return out
}

// BoundingBox is an axis-aligned double-precision bounding box. The zero
// value represents an empty (unpopulated) box.
type BoundingBox struct {
	Min, Max md3.Vec
}

// IsEmpty reports whether both corners are at the origin: true for the
// zero value (an unpopulated box), and also for a box holding only the
// origin.
func (b BoundingBox) IsEmpty() bool {
	return b.Min == md3.Vec{} && b.Max == md3.Vec{}
}

// Center returns the box's midpoint.
func (b BoundingBox) Center() md3.Vec {
	return md3.Scale(0.5, md3.Add(b.Min, b.Max))
}

// HalfExtents returns half the box's size along each axis.
func (b BoundingBox) HalfExtents() md3.Vec {
	return md3.Scale(0.5, md3.Sub(b.Max, b.Min))
}

// Diagonal returns the box's space diagonal length.
func (b BoundingBox) Diagonal() float64 {
	d := md3.Sub(b.Max, b.Min)
	return math.Sqrt(d.X*d.X + d.Y*d.Y + d.Z*d.Z)
}

// IncludePoint grows the box, if necessary, to contain p.
func (b BoundingBox) IncludePoint(p md3.Vec) BoundingBox {
	return BoundingBox{
		Min: md3.Vec{X: math.Min(b.Min.X, p.X), Y: math.Min(b.Min.Y, p.Y), Z: math.Min(b.Min.Z, p.Z)},
		Max: md3.Vec{X: math.Max(b.Max.X, p.X), Y: math.Max(b.Max.Y, p.Y), Z: math.Max(b.Max.Z, p.Z)},
	}
}

// Octant returns the sub-box for octant index i (0..7, bit layout
// z_hi|y_hi|x_hi relative to the box's center).
func (b BoundingBox) Octant(i int) BoundingBox {
	if i < 0 || i > 7 {
		panic(fmt.Sprintf("tile3d: invalid octant index %d", i))
	}
	c := b.Center()
	lo, hi := b.Min, b.Max
	var min, max md3.Vec
	if i&1 != 0 { // x_hi
		min.X, max.X = c.X, hi.X
	} else {
		min.X, max.X = lo.X, c.X
	}
	if i&2 != 0 { // y_hi
		min.Y, max.Y = c.Y, hi.Y
	} else {
		min.Y, max.Y = lo.Y, c.Y
	}
	if i&4 != 0 { // z_hi
		min.Z, max.Z = c.Z, hi.Z
	} else {
		min.Z, max.Z = lo.Z, c.Z
	}
	return BoundingBox{Min: min, Max: max}
}

// Contains reports whether p lies inside the box, within tolerance eps on
// each axis.
func (b BoundingBox) Contains(p md3.Vec, eps float64) bool {
	return p.X >= b.Min.X-eps && p.X <= b.Max.X+eps &&
		p.Y >= b.Min.Y-eps && p.Y <= b.Max.Y+eps &&
		p.Z >= b.Min.Z-eps && p.Z <= b.Max.Z+eps
}

// ContainsBox reports whether other lies within b, within tolerance eps,
// the invariant TileNode parent/child bounds must satisfy.
func (b BoundingBox) ContainsBox(other BoundingBox, eps float64) bool {
	return other.Min.X >= b.Min.X-eps && other.Max.X <= b.Max.X+eps &&
		other.Min.Y >= b.Min.Y-eps && other.Max.Y <= b.Max.Y+eps &&
		other.Min.Z >= b.Min.Z-eps && other.Max.Z <= b.Max.Z+eps
}
