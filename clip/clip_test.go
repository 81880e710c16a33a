package clip

import (
	"math"
	"testing"

	"github.com/soypat/geometry/md3"
	"github.com/soypat/tile3d"
)

func unitBox() tile3d.BoundingBox {
	return tile3d.BoundingBox{Min: md3.Vec{X: -1, Y: -1, Z: -1}, Max: md3.Vec{X: 1, Y: 1, Z: 1}}
}

func triangleMesh(a, b, c md3.Vec) tile3d.IndexedMesh {
	m := tile3d.NewIndexedMesh()
	m.AppendVertex(a, md3.Vec{}, false, 0, 0, false, 0, 0, 0, 0, false)
	m.AppendVertex(b, md3.Vec{}, false, 0, 0, false, 0, 0, 0, 0, false)
	m.AppendVertex(c, md3.Vec{}, false, 0, 0, false, 0, 0, 0, 0, false)
	m.Indices = []uint32{0, 1, 2}
	return m
}

func triangleArea(m *tile3d.IndexedMesh, tri int) float64 {
	a := m.Position(int(m.Indices[3*tri]))
	b := m.Position(int(m.Indices[3*tri+1]))
	c := m.Position(int(m.Indices[3*tri+2]))
	ab := md3.Sub(b, a)
	ac := md3.Sub(c, a)
	cr := md3.Cross(ab, ac)
	return 0.5 * md3.Norm(cr)
}

func totalArea(meshes [8]tile3d.IndexedMesh) float64 {
	total := 0.0
	for i := range meshes {
		for t := 0; t < meshes[i].TriangleCount(); t++ {
			total += triangleArea(&meshes[i], t)
		}
	}
	return total
}

// S1 / property 1: coverage.
func TestClipperCoverage(t *testing.T) {
	mesh := triangleMesh(
		md3.Vec{X: 0, Y: 0, Z: 0},
		md3.Vec{X: 1, Y: 0, Z: 0},
		md3.Vec{X: 0, Y: 1, Z: 0},
	)
	// S1 places the triangle in the unit box [0,1]^3, whose center (0.5)
	// splits it across octants 0, 1 and 2.
	box := tile3d.BoundingBox{Min: md3.Vec{X: 0, Y: 0, Z: 0}, Max: md3.Vec{X: 1, Y: 1, Z: 1}}
	out := ToOctants(&mesh, box, Options{})
	got := totalArea(out)
	want := 0.5
	if math.Abs(got-want) > 1e-6 {
		t.Fatalf("area = %v, want %v", got, want)
	}
	nonEmpty := 0
	for i := range out {
		if out[i].TriangleCount() > 0 {
			nonEmpty++
		}
	}
	if nonEmpty < 2 {
		t.Fatalf("expected >=2 non-empty octants, got %d", nonEmpty)
	}
}

// Property 2: watertightness.
func TestClipperWatertight(t *testing.T) {
	mesh := triangleMesh(
		md3.Vec{X: -0.5, Y: 0, Z: 0},
		md3.Vec{X: 0.5, Y: 0, Z: 0},
		md3.Vec{X: 0, Y: 0.5, Z: 0},
	)
	out := ToOctants(&mesh, unitBox(), Options{})
	boundary := make(map[[3]int64]md3.Vec)
	round := func(f float64) int64 { return int64(f/1e-6 + 0.5) }
	for i := range out {
		m := &out[i]
		for v := 0; v < m.VertexCount(); v++ {
			p := m.Position(v)
			if math.Abs(p.X) < 1e-9 {
				key := [3]int64{round(p.X), round(p.Y), round(p.Z)}
				if prev, ok := boundary[key]; ok {
					if prev != p {
						t.Fatalf("boundary vertex mismatch: %v vs %v", prev, p)
					}
				} else {
					boundary[key] = p
				}
			}
		}
	}
}

// Property 3: attribute lerp.
func TestClipperAttributeLerp(t *testing.T) {
	m := tile3d.NewIndexedMesh()
	m.AppendVertex(md3.Vec{X: -1, Y: 0, Z: 0}, md3.Vec{}, false, 0, 0, true, 1, 0, 0, 1, true)
	m.AppendVertex(md3.Vec{X: 1, Y: 0, Z: 0}, md3.Vec{}, false, 1, 1, true, 0, 1, 0, 1, true)
	m.AppendVertex(md3.Vec{X: 0, Y: 1, Z: 0}, md3.Vec{}, false, 0.5, 0.5, true, 0, 0, 1, 1, true)
	m.Indices = []uint32{0, 1, 2}

	out := ToOctants(&m, unitBox(), Options{})
	// The edge from vertex 0 to vertex 1 crosses the x=0 plane at t=0.5.
	foundMidUV := false
	for i := range out {
		om := &out[i]
		for v := 0; v < om.VertexCount(); v++ {
			p := om.Position(v)
			if math.Abs(p.X) < 1e-9 && math.Abs(p.Y) < 1e-9 {
				u, uvv := om.UV(v)
				if math.Abs(u-0.5) < 1e-6 && math.Abs(uvv-0.5) < 1e-6 {
					foundMidUV = true
				}
			}
		}
	}
	if !foundMidUV {
		t.Fatalf("expected a vertex at the midpoint with UV (0.5, 0.5)")
	}
}

// Property 4: fast path.
func TestClipperFastPath(t *testing.T) {
	mesh := triangleMesh(
		md3.Vec{X: 0.1, Y: 0.1, Z: 0.1},
		md3.Vec{X: 0.2, Y: 0.1, Z: 0.1},
		md3.Vec{X: 0.1, Y: 0.2, Z: 0.1},
	)
	out := ToOctants(&mesh, unitBox(), Options{})
	total := 0
	var found *tile3d.IndexedMesh
	for i := range out {
		total += out[i].TriangleCount()
		if out[i].TriangleCount() > 0 {
			found = &out[i]
		}
	}
	if total != 1 {
		t.Fatalf("expected exactly 1 triangle across all octants, got %d", total)
	}
	if found.VertexCount() != 3 {
		t.Fatalf("expected 3 vertices for untouched fast-path triangle, got %d", found.VertexCount())
	}
}

func TestEmptyMesh(t *testing.T) {
	m := tile3d.NewIndexedMesh()
	out := ToOctants(&m, unitBox(), Options{})
	for i := range out {
		if !out[i].IsEmpty() {
			t.Fatalf("octant %d: expected empty mesh", i)
		}
	}
}
