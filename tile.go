package tile3d

import "strings"

// ContentRecord holds a tile's written GLB payload. Bytes is held only
// long enough to be written to disk, so records returned by the tileset
// builder carry a nil Bytes; Mesh is retained for callers (tests,
// LodChain reconstruction) that want the in-memory content after the
// tree has been built, and is nil once released by a caller that doesn't
// need it.
type ContentRecord struct {
	URI   string
	Bytes []byte
	Mesh  *IndexedMesh
}

// TileNode is one node of the spatial-plus-LOD hierarchy. Children own
// no back-reference to their parent: the tree is a strict tree with
// exclusive parent-to-child ownership.
type TileNode struct {
	Address        string
	Depth          int
	Bounds         BoundingBox
	GeometricError float64
	Content        *ContentRecord // nil for a leaf with no content (e.g. the empty-mesh case)
	Children       []*TileNode
}

// IsLeaf reports whether the node has no children.
func (n *TileNode) IsLeaf() bool { return len(n.Children) == 0 }

// ChildAddress returns the address a child at octant i of a node with
// address parent would carry: the root's children are unprefixed
// ("0".."7"), every other node's children are prefixed with the parent's
// address ("0_3", "0_3_1", ...).
func ChildAddress(parent string, octant int) string {
	suffix := octantDigit(octant)
	if parent == "root" {
		return suffix
	}
	return parent + "_" + suffix
}

func octantDigit(octant int) string {
	const digits = "01234567"
	if octant < 0 || octant > 7 {
		panic("tile3d: invalid octant index")
	}
	return digits[octant : octant+1]
}

// URI returns the relative output path for a node's address: "root" ->
// "tiles/root.glb", and any other address has every "_"-joined prefix
// turned into a directory segment before the final "tile.glb" ("0_3" ->
// "tiles/0/0_3/tile.glb").
func URI(address string) string {
	if address == "root" {
		return "tiles/root.glb"
	}
	parts := strings.Split(address, "_")
	segs := make([]string, 0, len(parts)+2)
	segs = append(segs, "tiles")
	prefix := ""
	for _, p := range parts {
		if prefix == "" {
			prefix = p
		} else {
			prefix = prefix + "_" + p
		}
		segs = append(segs, prefix)
	}
	segs = append(segs, "tile.glb")
	return strings.Join(segs, "/")
}

// Walk calls fn for n and every descendant, depth first, parent before
// children.
func (n *TileNode) Walk(fn func(*TileNode)) {
	if n == nil {
		return
	}
	fn(n)
	for _, c := range n.Children {
		c.Walk(fn)
	}
}

// CountContent returns the number of nodes in the tree rooted at n that
// carry a content record: the count of tiles with written GLB payloads.
func (n *TileNode) CountContent() int {
	count := 0
	n.Walk(func(t *TileNode) {
		if t.Content != nil {
			count++
		}
	})
	return count
}
