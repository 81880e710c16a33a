package simplify

import (
	"testing"

	"github.com/soypat/geometry/md3"
	"github.com/soypat/tile3d"
)

// grid builds an n x n planar grid of vertices over [0,1]^2 at z=0, fully
// triangulated, with no optional attributes.
func grid(n int) tile3d.IndexedMesh {
	m := tile3d.NewIndexedMesh()
	for j := 0; j < n; j++ {
		for i := 0; i < n; i++ {
			x := float64(i) / float64(n-1)
			y := float64(j) / float64(n-1)
			m.AppendVertex(md3.Vec{X: x, Y: y, Z: 0}, md3.Vec{}, false, 0, 0, false, 0, 0, 0, 0, false)
		}
	}
	idx := func(i, j int) uint32 { return uint32(j*n + i) }
	for j := 0; j < n-1; j++ {
		for i := 0; i < n-1; i++ {
			a, b, c, d := idx(i, j), idx(i+1, j), idx(i+1, j+1), idx(i, j+1)
			m.Indices = append(m.Indices, a, b, c, a, c, d)
		}
	}
	return m
}

func isBorderPosition(n int, i, j int) bool {
	return i == 0 || j == 0 || i == n-1 || j == n-1
}

// Property 5 / S5: reduction and border lock.
func TestSimplifyReductionAndBorder(t *testing.T) {
	const n = 17 // 16x16 quads -> 512 triangles
	mesh := grid(n)
	inputTris := mesh.TriangleCount()

	var borderPositions []md3.Vec
	for j := 0; j < n; j++ {
		for i := 0; i < n; i++ {
			if isBorderPosition(n, i, j) {
				borderPositions = append(borderPositions, mesh.Position(j*n+i))
			}
		}
	}

	res := Simplify(&mesh, Options{Ratio: 0.25, LockBorder: true})
	if res.Mesh.TriangleCount() > inputTris {
		t.Fatalf("output triangle count %d exceeds input %d", res.Mesh.TriangleCount(), inputTris)
	}
	if res.Mesh.VertexCount() > mesh.VertexCount() {
		t.Fatalf("output vertex count exceeds input")
	}

	for _, bp := range borderPositions {
		found := false
		for v := 0; v < res.Mesh.VertexCount(); v++ {
			if res.Mesh.Position(v) == bp {
				found = true
				break
			}
		}
		if !found {
			t.Fatalf("border vertex %v missing from simplified output", bp)
		}
	}
}

func TestSimplifyEmpty(t *testing.T) {
	m := tile3d.NewIndexedMesh()
	res := Simplify(&m, Options{Ratio: 0.5})
	if !res.Mesh.IsEmpty() || res.AchievedError != 0 {
		t.Fatalf("expected empty mesh and zero error, got %+v", res)
	}
}

// A planar grid gives every quadric an evaluate() of 0: every collapse
// candidate ties on cost, so this exercises the heap's tie-break rather
// than just the common case where costs happen to differ.
func TestSimplifyDeterministic(t *testing.T) {
	const trials = 5
	var first tile3d.IndexedMesh
	var firstErr float64
	for i := 0; i < trials; i++ {
		mesh := grid(9)
		res := Simplify(&mesh, Options{Ratio: 0.5})
		if i == 0 {
			first = res.Mesh
			firstErr = res.AchievedError
			continue
		}
		if res.Mesh.TriangleCount() != first.TriangleCount() {
			t.Fatalf("run %d: nondeterministic triangle count: %d vs %d", i, res.Mesh.TriangleCount(), first.TriangleCount())
		}
		if res.AchievedError != firstErr {
			t.Fatalf("run %d: nondeterministic error: %v vs %v", i, res.AchievedError, firstErr)
		}
		if !equalFloat64s(res.Mesh.Positions, first.Positions) {
			t.Fatalf("run %d: surviving vertex positions differ across runs over tied-cost (planar) input", i)
		}
		if !equalUint32s(res.Mesh.Indices, first.Indices) {
			t.Fatalf("run %d: index buffer differs across runs over tied-cost (planar) input", i)
		}
	}
}

func equalFloat64s(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func equalUint32s(a, b []uint32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestSimplifyCompactsIndices(t *testing.T) {
	mesh := grid(9)
	res := Simplify(&mesh, Options{Ratio: 0.3})
	seen := make([]bool, res.Mesh.VertexCount())
	for _, idx := range res.Mesh.Indices {
		seen[idx] = true
	}
	for v, ok := range seen {
		if !ok {
			t.Fatalf("vertex %d unreferenced after compaction", v)
		}
	}
}
