// Package clip implements the triangle clipper (C1): splitting one mesh
// into eight octant sub-meshes by Sutherland-Hodgman clipping against the
// six AABB planes of each octant, interpolating every per-vertex
// attribute along the way.
package clip

import (
	"github.com/soypat/geometry/md3"
	"github.com/soypat/glgl/math/ms1"
	"github.com/soypat/tile3d"
)

// DefaultQuantizeEpsilon is the position-quantization grid used to
// deduplicate vertices produced on octant boundaries, in mesh units.
// 1 micron is a pragmatic tolerance for meshes expressed in meters; tune
// it via Options for meshes in other units, per design note 9.5.
const DefaultQuantizeEpsilon = 1e-6

// insideTolerance keeps vertices exactly on a clip plane classified
// "inside" on both sides of it; the zero-area fragments this leaves on the
// far side of a plane are removed by the degenerate-triangle filter, and
// ToOctants does not clip a triangle against octants on the far side of an
// axis its three vertices all share.
const insideTolerance = 1e-10

// degenerateDenomFloor is the minimum |d_a - d_b| below which an
// intersection parameter is considered numerically unreliable; t falls
// back to 0.5 in that case.
const degenerateDenomFloor = 1e-15

// Options configures the clipper.
type Options struct {
	// QuantizeEpsilon is the position-quantization grid for boundary
	// vertex dedup. Zero selects DefaultQuantizeEpsilon.
	QuantizeEpsilon float64
}

func (o Options) epsilon() float64 {
	if o.QuantizeEpsilon > 0 {
		return o.QuantizeEpsilon
	}
	return DefaultQuantizeEpsilon
}

// ToOctants splits mesh into eight octant sub-meshes of bounds, indexed
// 0..7 with bit layout z_hi|y_hi|x_hi. Every original
// triangle's surface is covered by the union of the eight outputs;
// boundary vertices are produced identically on both sides so adjacent
// fragments are watertight.
func ToOctants(mesh *tile3d.IndexedMesh, bounds tile3d.BoundingBox, opts Options) [8]tile3d.IndexedMesh {
	var out [8]tile3d.IndexedMesh
	for i := range out {
		out[i] = tile3d.NewIndexedMesh()
		out[i].Material = mesh.Material
	}
	if mesh.IsEmpty() {
		return out
	}
	eps := opts.epsilon()
	accs := make([]*accumulator, 8)
	for i := range accs {
		accs[i] = newAccumulator(&out[i], mesh.HasNormals(), mesh.HasUVs(), mesh.HasColors(), eps)
	}
	center := bounds.Center()
	hasN, hasUV, hasC := mesh.HasNormals(), mesh.HasUVs(), mesh.HasColors()

	tri := make([]vertex, 3)
	for t := 0; t < mesh.TriangleCount(); t++ {
		for k := 0; k < 3; k++ {
			vi := int(mesh.Indices[3*t+k])
			tri[k] = vertexAt(mesh, vi, hasN, hasUV, hasC)
		}

		o0 := octantOf(tri[0].pos, center)
		o1 := octantOf(tri[1].pos, center)
		o2 := octantOf(tri[2].pos, center)
		if o0 == o1 && o1 == o2 {
			// Fast path: triangle lies entirely within one octant.
			accs[o0].emitTriangle(tri[0], tri[1], tri[2])
			continue
		}

		// On an axis where all three vertices share a side, the triangle
		// lies in that closed half, so octants on the other side are
		// skipped; a triangle lying in a split plane is thus emitted once.
		agree := ^(o0 ^ o1) & ^(o0 ^ o2) & 7
		for oi := 0; oi < 8; oi++ {
			if (oi^o0)&agree != 0 {
				continue
			}
			ob := bounds.Octant(oi)
			poly := []vertex{tri[0], tri[1], tri[2]}
			poly = clipAxis(poly, 0, ob.Min.X, true)
			poly = clipAxis(poly, 0, ob.Max.X, false)
			poly = clipAxis(poly, 1, ob.Min.Y, true)
			poly = clipAxis(poly, 1, ob.Max.Y, false)
			poly = clipAxis(poly, 2, ob.Min.Z, true)
			poly = clipAxis(poly, 2, ob.Max.Z, false)
			if len(poly) < 3 {
				continue
			}
			for k := 1; k < len(poly)-1; k++ {
				accs[oi].emitTriangle(poly[0], poly[k], poly[k+1])
			}
		}
	}
	return out
}

// octantOf classifies p into an octant of a box centered at center, using
// the half-open "≥ center -> high side" convention.
func octantOf(p, center md3.Vec) int {
	o := 0
	if p.X >= center.X {
		o |= 1
	}
	if p.Y >= center.Y {
		o |= 2
	}
	if p.Z >= center.Z {
		o |= 4
	}
	return o
}

// vertex carries one vertex's worth of interpolable attributes through
// clipping. Position is kept in double precision throughout.
type vertex struct {
	pos      md3.Vec
	normal   md3.Vec
	u, v     float64
	r, g, b  float64
	a        float64
}

func vertexAt(mesh *tile3d.IndexedMesh, i int, hasN, hasUV, hasC bool) vertex {
	var vx vertex
	vx.pos = mesh.Position(i)
	if hasN {
		vx.normal = mesh.Normal(i)
	}
	if hasUV {
		vx.u, vx.v = mesh.UV(i)
	}
	if hasC {
		vx.r, vx.g, vx.b, vx.a = mesh.Color(i)
	}
	return vx
}

// axisValue returns the coordinate of v along axis (0=X, 1=Y, 2=Z).
func axisValue(v md3.Vec, axis int) float64 {
	switch axis {
	case 0:
		return v.X
	case 1:
		return v.Y
	default:
		return v.Z
	}
}

// clipAxis clips poly against one half-plane: axis >= plane if keepMin is
// true (a "min" face of an octant), axis <= plane otherwise (a "max"
// face). It implements Sutherland-Hodgman: in/in emits the next vertex;
// in/out emits the intersection; out/in emits the intersection then the
// next vertex; out/out emits nothing.
func clipAxis(poly []vertex, axis int, plane float64, keepMin bool) []vertex {
	if len(poly) == 0 {
		return poly
	}
	signedDist := func(v vertex) float64 {
		d := axisValue(v.pos, axis) - plane
		if !keepMin {
			d = -d
		}
		return d
	}
	inside := func(d float64) bool { return d >= -insideTolerance }

	out := make([]vertex, 0, len(poly)+1)
	n := len(poly)
	for i := 0; i < n; i++ {
		curr := poly[i]
		next := poly[(i+1)%n]
		dc := signedDist(curr)
		dn := signedDist(next)
		currIn := inside(dc)
		nextIn := inside(dn)
		switch {
		case currIn && nextIn:
			out = append(out, next)
		case currIn && !nextIn:
			out = append(out, lerpVertex(curr, next, intersectT(dc, dn)))
		case !currIn && nextIn:
			out = append(out, lerpVertex(curr, next, intersectT(dc, dn)))
			out = append(out, next)
		default:
			// out/out: emit nothing.
		}
	}
	return out
}

// intersectT computes t = d_a / (d_a - d_b), falling back to 0.5 when
// the denominator underflows.
func intersectT(da, db float64) float64 {
	denom := da - db
	if denom < 0 {
		denom = -denom
	}
	if denom < degenerateDenomFloor {
		return 0.5
	}
	return da / (da - db)
}

// lerpVertex linearly interpolates every attribute of a and b at
// parameter t, renormalizing the interpolated normal when it has nonzero
// length.
func lerpVertex(a, b vertex, t float64) vertex {
	var out vertex
	out.pos = md3.Add(a.pos, md3.Scale(t, md3.Sub(b.pos, a.pos)))
	out.normal = md3.Add(a.normal, md3.Scale(t, md3.Sub(b.normal, a.normal)))
	if n := md3.Norm(out.normal); n > 0 {
		out.normal = md3.Scale(1/n, out.normal)
	}
	out.u = ms1.Interp(a.u, b.u, t)
	out.v = ms1.Interp(a.v, b.v, t)
	out.r = ms1.Interp(a.r, b.r, t)
	out.g = ms1.Interp(a.g, b.g, t)
	out.b = ms1.Interp(a.b, b.b, t)
	out.a = ms1.Interp(a.a, b.a, t)
	return out
}

// accumulator builds one octant's output mesh, deduplicating vertices
// whose quantized position already appeared, so adjacent boundary
// fragments share indices within one output.
type accumulator struct {
	mesh           *tile3d.IndexedMesh
	hasN, hasUV, hasC bool
	eps            float64
	index          map[[3]int64]uint32
}

func newAccumulator(mesh *tile3d.IndexedMesh, hasN, hasUV, hasC bool, eps float64) *accumulator {
	return &accumulator{mesh: mesh, hasN: hasN, hasUV: hasUV, hasC: hasC, eps: eps, index: make(map[[3]int64]uint32)}
}

func (a *accumulator) quantize(p md3.Vec) [3]int64 {
	round := func(f float64) int64 {
		if f >= 0 {
			return int64(f/a.eps + 0.5)
		}
		return -int64(-f/a.eps + 0.5)
	}
	return [3]int64{round(p.X), round(p.Y), round(p.Z)}
}

func (a *accumulator) vertexIndex(v vertex) uint32 {
	key := a.quantize(v.pos)
	if idx, ok := a.index[key]; ok {
		return idx
	}
	idx := uint32(a.mesh.AppendVertex(v.pos, v.normal, a.hasN, v.u, v.v, a.hasUV, v.r, v.g, v.b, v.a, a.hasC))
	a.index[key] = idx
	return idx
}

// emitTriangle appends one triangle to the accumulator's mesh, dropping
// it if it degenerates (two or more indices coincide) after dedup.
func (a *accumulator) emitTriangle(v0, v1, v2 vertex) {
	i0 := a.vertexIndex(v0)
	i1 := a.vertexIndex(v1)
	i2 := a.vertexIndex(v2)
	if i0 == i1 || i1 == i2 || i0 == i2 {
		return
	}
	a.mesh.Indices = append(a.mesh.Indices, i0, i1, i2)
}
