package tile3d

// LodLevel is one level of detail of a mesh: a concrete mesh, its level
// index (0 = original, full resolution) and the geometric error
// introduced relative to the original by rendering this level instead.
type LodLevel struct {
	Mesh           IndexedMesh
	Level          int
	GeometricError float64
}

// LodChain is an ordered set of LodLevels, finest (Level 0) to coarsest,
// plus the bounds shared by every level in the chain.
//
// This implementation commits to per-node simplification rather than LOD
// cascading: a LodChain is never built by the tiling hierarchy itself.
// It exists as a convenience for callers holding a fully-built TileNode
// tree who want a flattened finest-to-coarsest view of one tile's
// ancestor chain; build one with ChainFromAncestors.
type LodChain struct {
	Levels []LodLevel
	Bounds BoundingBox
}

// ChainFromAncestors walks path, the list of TileNodes from a leaf back up
// to the root (leaf first), building a LodChain from their content. Nodes
// without content (should not occur on a valid tree, since every internal
// node carries content) are skipped.
func ChainFromAncestors(path []*TileNode) LodChain {
	chain := LodChain{}
	if len(path) == 0 {
		return chain
	}
	chain.Bounds = path[0].Bounds
	for i, n := range path {
		if n.Content == nil || n.Content.Mesh == nil {
			continue
		}
		chain.Levels = append(chain.Levels, LodLevel{
			Mesh:           *n.Content.Mesh,
			Level:          i,
			GeometricError: n.GeometricError,
		})
	}
	return chain
}
