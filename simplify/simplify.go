// Package simplify implements the mesh simplifier (C2): a
// quadric-error-metric edge-collapse reduction to a target index count,
// with optional border locking, followed by vertex-table compaction.
package simplify

import (
	"container/heap"
	"math"
	"sort"

	"github.com/soypat/geometry/md3"
	"github.com/soypat/tile3d"
)

// StallThreshold is the ratio above which callers should treat a
// reduction request as stalled.
const StallThreshold = 1 - 0.05

// Options configures one simplification pass.
type Options struct {
	// Ratio is the target fraction of the input's triangle count to
	// keep, in (0, 1].
	Ratio float64
	// LockBorder preserves boundary-edge vertices (edges belonging to
	// exactly one triangle) unchanged, forbidding their collapse.
	LockBorder bool
}

// Result is the simplifier's output mesh plus its reported error.
type Result struct {
	Mesh           tile3d.IndexedMesh
	AchievedError  float64
}

// quadric is a symmetric 4x4 error matrix, stored as its 10 distinct
// upper-triangular entries (Garland-Heckbert).
type quadric [10]float64

func (q *quadric) add(o quadric) {
	for i := range q {
		q[i] += o[i]
	}
}

// planeQuadric builds the quadric for the plane through a,b,c.
func planeQuadric(a, b, c md3.Vec) quadric {
	n := md3.Cross(md3.Sub(b, a), md3.Sub(c, a))
	length := md3.Norm(n)
	if length == 0 {
		return quadric{}
	}
	n = md3.Scale(1/length, n)
	d := -md3.Dot(n, a)
	return quadric{
		n.X * n.X, n.X * n.Y, n.X * n.Z, n.X * d,
		n.Y * n.Y, n.Y * n.Z, n.Y * d,
		n.Z * n.Z, n.Z * d,
		d * d,
	}
}

// evaluate returns v^T Q v for v = (p.X, p.Y, p.Z, 1).
func (q quadric) evaluate(p md3.Vec) float64 {
	// Layout: [0]=xx [1]=xy [2]=xz [3]=xw [4]=yy [5]=yz [6]=yw [7]=zz [8]=zw [9]=ww
	return q[0]*p.X*p.X + 2*q[1]*p.X*p.Y + 2*q[2]*p.X*p.Z + 2*q[3]*p.X +
		q[4]*p.Y*p.Y + 2*q[5]*p.Y*p.Z + 2*q[6]*p.Y +
		q[7]*p.Z*p.Z + 2*q[8]*p.Z +
		q[9]
}

type edgeKey [2]int

func mkEdge(a, b int) edgeKey {
	if a > b {
		a, b = b, a
	}
	return edgeKey{a, b}
}

type candidate struct {
	edge  edgeKey
	cost  float64
	point md3.Vec
	stale bool
}

type candidateHeap []*candidate

func (h candidateHeap) Len() int { return len(h) }
func (h candidateHeap) Less(i, j int) bool {
	if h[i].cost != h[j].cost {
		return h[i].cost < h[j].cost
	}
	// Tie-break on edge identity so equal-cost candidates (e.g. every
	// quadric on a perfectly planar mesh) pop in a fixed order instead of
	// whatever order they happened to be pushed in.
	if h[i].edge[0] != h[j].edge[0] {
		return h[i].edge[0] < h[j].edge[0]
	}
	return h[i].edge[1] < h[j].edge[1]
}
func (h candidateHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *candidateHeap) Push(x interface{}) { *h = append(*h, x.(*candidate)) }
func (h *candidateHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Simplify reduces mesh to approximately floor(|indices|*ratio/3)*3
// indices using quadric-error-metric edge collapse. An
// empty input returns an empty mesh and zero error.
func Simplify(mesh *tile3d.IndexedMesh, opts Options) Result {
	if mesh.IsEmpty() || mesh.TriangleCount() == 0 {
		return Result{Mesh: tile3d.NewIndexedMesh()}
	}
	if opts.Ratio <= 0 {
		opts.Ratio = 1
	}
	if opts.Ratio > 1 {
		opts.Ratio = 1
	}
	targetTris := int(float64(mesh.TriangleCount()) * opts.Ratio)

	work := cloneMesh(mesh)
	alive := make([]bool, work.VertexCount())
	for i := range alive {
		alive[i] = true
	}

	quadrics := computeVertexQuadrics(&work)
	border := computeBorderVertices(&work)

	bb := work.Bounds()
	scale := bb.Diagonal()
	if scale <= 0 {
		scale = 1
	}

	adjacency := buildAdjacency(&work)

	h := &candidateHeap{}
	heap.Init(h)
	pushed := make(map[edgeKey]*candidate)
	tryPush := func(a, b int) {
		if opts.LockBorder && (border[a] || border[b]) {
			return
		}
		ek := mkEdge(a, b)
		if _, ok := pushed[ek]; ok {
			return
		}
		q := quadrics[a]
		q.add(quadrics[b])
		p := bestPoint(q, work.Position(a), work.Position(b))
		c := &candidate{edge: ek, cost: q.evaluate(p), point: p}
		pushed[ek] = c
		heap.Push(h, c)
	}
	for _, a := range sortedKeys(adjacency) {
		for _, b := range sortedNeighbors(adjacency[a]) {
			if a < b {
				tryPush(a, b)
			}
		}
	}

	achievedErrorSq := 0.0
	currentTris := work.TriangleCount()

	for currentTris > targetTris && h.Len() > 0 {
		top := heap.Pop(h).(*candidate)
		if top.stale {
			continue
		}
		a, b := top.edge[0], top.edge[1]
		if !alive[a] || !alive[b] {
			continue
		}
		if opts.LockBorder && (border[a] || border[b]) {
			continue
		}
		if top.cost > achievedErrorSq {
			achievedErrorSq = top.cost
		}

		// Collapse b into a at top.point.
		work.Positions[3*a], work.Positions[3*a+1], work.Positions[3*a+2] = top.point.X, top.point.Y, top.point.Z
		quadrics[a].add(quadrics[b])
		alive[b] = false

		removed := collapseIndices(&work, a, b)
		currentTris -= removed

		for nb := range adjacency[b] {
			if nb == a || !alive[nb] {
				continue
			}
			adjacency[a][nb] = struct{}{}
			adjacency[nb][a] = struct{}{}
			delete(adjacency[nb], b)
		}
		delete(adjacency, b)

		for _, nb := range sortedNeighbors(adjacency[a]) {
			ek := mkEdge(a, nb)
			delete(pushed, ek)
		}
		for _, nb := range sortedNeighbors(adjacency[a]) {
			if alive[nb] {
				tryPush(a, nb)
			}
		}
	}

	work.Compact()
	achievedError := math.Sqrt(math.Max(achievedErrorSq, 0)) / scale

	return Result{Mesh: work, AchievedError: achievedError}
}

func cloneMesh(m *tile3d.IndexedMesh) tile3d.IndexedMesh {
	out := tile3d.NewIndexedMesh()
	out.Material = m.Material
	out.Positions = append([]float64(nil), m.Positions...)
	out.Normals = append([]float64(nil), m.Normals...)
	out.UVs = append([]float64(nil), m.UVs...)
	out.Colors = append([]float64(nil), m.Colors...)
	out.Indices = append([]uint32(nil), m.Indices...)
	return out
}

func computeVertexQuadrics(m *tile3d.IndexedMesh) []quadric {
	qs := make([]quadric, m.VertexCount())
	for t := 0; t < m.TriangleCount(); t++ {
		i0, i1, i2 := int(m.Indices[3*t]), int(m.Indices[3*t+1]), int(m.Indices[3*t+2])
		q := planeQuadric(m.Position(i0), m.Position(i1), m.Position(i2))
		qs[i0].add(q)
		qs[i1].add(q)
		qs[i2].add(q)
	}
	return qs
}

// computeBorderVertices marks vertices touching an edge used by exactly
// one triangle: the boundary of an open mesh.
func computeBorderVertices(m *tile3d.IndexedMesh) []bool {
	count := make(map[edgeKey]int)
	for t := 0; t < m.TriangleCount(); t++ {
		i0, i1, i2 := int(m.Indices[3*t]), int(m.Indices[3*t+1]), int(m.Indices[3*t+2])
		count[mkEdge(i0, i1)]++
		count[mkEdge(i1, i2)]++
		count[mkEdge(i2, i0)]++
	}
	border := make([]bool, m.VertexCount())
	for e, c := range count {
		if c == 1 {
			border[e[0]] = true
			border[e[1]] = true
		}
	}
	return border
}

// sortedKeys returns m's vertex keys in ascending order, so callers that
// seed heap state from adjacency never depend on Go's randomized map
// iteration order.
func sortedKeys(m map[int]map[int]struct{}) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}

// sortedNeighbors returns nbrs' vertex indices in ascending order.
func sortedNeighbors(nbrs map[int]struct{}) []int {
	out := make([]int, 0, len(nbrs))
	for v := range nbrs {
		out = append(out, v)
	}
	sort.Ints(out)
	return out
}

func buildAdjacency(m *tile3d.IndexedMesh) map[int]map[int]struct{} {
	adj := make(map[int]map[int]struct{}, m.VertexCount())
	ensure := func(v int) {
		if adj[v] == nil {
			adj[v] = make(map[int]struct{})
		}
	}
	link := func(a, b int) {
		ensure(a)
		ensure(b)
		adj[a][b] = struct{}{}
		adj[b][a] = struct{}{}
	}
	for t := 0; t < m.TriangleCount(); t++ {
		i0, i1, i2 := int(m.Indices[3*t]), int(m.Indices[3*t+1]), int(m.Indices[3*t+2])
		link(i0, i1)
		link(i1, i2)
		link(i2, i0)
	}
	return adj
}

// bestPoint picks the collapse target for edge (a,b): whichever of a, b
// and their midpoint costs least under q. The quadric's own minimizer is
// not solved for.
func bestPoint(q quadric, a, b md3.Vec) md3.Vec {
	mid := md3.Scale(0.5, md3.Add(a, b))
	candidates := []md3.Vec{a, b, mid}
	best := candidates[0]
	bestCost := q.evaluate(best)
	for _, c := range candidates[1:] {
		cost := q.evaluate(c)
		if cost < bestCost {
			bestCost = cost
			best = c
		}
	}
	return best
}

// collapseIndices rewrites every occurrence of vertex b to a in the
// index buffer, dropping triangles that degenerate as a result, and
// returns the number of triangles removed.
func collapseIndices(m *tile3d.IndexedMesh, a, b int) int {
	out := m.Indices[:0]
	removed := 0
	for t := 0; t < len(m.Indices)/3; t++ {
		i0, i1, i2 := m.Indices[3*t], m.Indices[3*t+1], m.Indices[3*t+2]
		if int(i0) == b {
			i0 = uint32(a)
		}
		if int(i1) == b {
			i1 = uint32(a)
		}
		if int(i2) == b {
			i2 = uint32(a)
		}
		if i0 == i1 || i1 == i2 || i0 == i2 {
			removed++
			continue
		}
		out = append(out, i0, i1, i2)
	}
	m.Indices = out
	return removed
}
