package atlas

import "github.com/soypat/tile3d"

// uvAdjacencyEpsilon bounds the per-component UV distance used to decide
// whether two faces sharing a geometric edge also share UV space, and
// thus belong to the same island.
const uvAdjacencyEpsilon = 1e-5

// island is a UV-connected set of faces plus its UV-space bounding
// rectangle, as produced by findIslands.
type island struct {
	faces    []int
	uMin     float64
	uMax     float64
	vMin     float64
	vMax     float64
}

func (isl *island) uRange() float64 {
	r := isl.uMax - isl.uMin
	if r == 0 {
		return 1
	}
	return r
}

func (isl *island) vRange() float64 {
	r := isl.vMax - isl.vMin
	if r == 0 {
		return 1
	}
	return r
}

type meshEdge struct {
	a, b int // vertex indices, a < b
}

func mkMeshEdge(a, b int) meshEdge {
	if a > b {
		a, b = b, a
	}
	return meshEdge{a, b}
}

// edgeUse records one face's use of an edge, with the UVs at its two
// endpoints in the order the face winds them.
type edgeUse struct {
	face   int
	uaU, uaV float64
	ubU, ubV float64
}

func closeUV(au, av, bu, bv float64) bool {
	du, dv := au-bu, av-bv
	if du < 0 {
		du = -du
	}
	if dv < 0 {
		dv = -dv
	}
	return du < uvAdjacencyEpsilon && dv < uvAdjacencyEpsilon
}

// findIslands detects UV-connected face components.
func findIslands(m *tile3d.IndexedMesh) []island {
	tris := m.TriangleCount()
	if tris == 0 {
		return nil
	}
	byEdge := make(map[meshEdge][]edgeUse)
	addEdge := func(face, i0, i1 int) {
		u0, v0 := m.UV(i0)
		u1, v1 := m.UV(i1)
		e := mkMeshEdge(i0, i1)
		byEdge[e] = append(byEdge[e], edgeUse{face, u0, v0, u1, v1})
	}
	for t := 0; t < tris; t++ {
		i0, i1, i2 := int(m.Indices[3*t]), int(m.Indices[3*t+1]), int(m.Indices[3*t+2])
		addEdge(t, i0, i1)
		addEdge(t, i1, i2)
		addEdge(t, i2, i0)
	}

	adj := make([][]int, tris)
	for _, uses := range byEdge {
		for i := 0; i < len(uses); i++ {
			for j := i + 1; j < len(uses); j++ {
				a, b := uses[i], uses[j]
				if a.face == b.face {
					continue
				}
				// Two faces sharing this edge are UV-adjacent if their UVs
				// at the two shared vertices match, in either vertex order.
				sameOrder := closeUV(a.uaU, a.uaV, b.uaU, b.uaV) && closeUV(a.ubU, a.ubV, b.ubU, b.ubV)
				swapOrder := closeUV(a.uaU, a.uaV, b.ubU, b.ubV) && closeUV(a.ubU, a.ubV, b.uaU, b.uaV)
				if sameOrder || swapOrder {
					adj[a.face] = append(adj[a.face], b.face)
					adj[b.face] = append(adj[b.face], a.face)
				}
			}
		}
	}

	visited := make([]bool, tris)
	var islands []island
	for start := 0; start < tris; start++ {
		if visited[start] {
			continue
		}
		queue := []int{start}
		visited[start] = true
		isl := island{}
		first := true
		for len(queue) > 0 {
			f := queue[0]
			queue = queue[1:]
			isl.faces = append(isl.faces, f)
			i0, i1, i2 := int(m.Indices[3*f]), int(m.Indices[3*f+1]), int(m.Indices[3*f+2])
			for _, vi := range [3]int{i0, i1, i2} {
				u, v := m.UV(vi)
				if first {
					isl.uMin, isl.uMax, isl.vMin, isl.vMax = u, u, v, v
					first = false
				} else {
					if u < isl.uMin {
						isl.uMin = u
					}
					if u > isl.uMax {
						isl.uMax = u
					}
					if v < isl.vMin {
						isl.vMin = v
					}
					if v > isl.vMax {
						isl.vMax = v
					}
				}
			}
			for _, nb := range adj[f] {
				if !visited[nb] {
					visited[nb] = true
					queue = append(queue, nb)
				}
			}
		}
		islands = append(islands, isl)
	}
	return islands
}
