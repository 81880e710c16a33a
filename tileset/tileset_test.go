package tileset

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/soypat/geometry/md3"
	"github.com/soypat/tile3d"
)

func identityTransform() [16]float64 {
	var t [16]float64
	t[0], t[5], t[10], t[15] = 1, 1, 1, 1
	return t
}

// gridMesh builds an n x n grid of vertices ((n-1) x (n-1) quads) over
// [0,1]x[0,1] at z=0,
// with per-vertex normals and UVs, large enough to force the hierarchy
// builder through multiple levels of subdivision.
func gridMesh(n int) tile3d.IndexedMesh {
	m := tile3d.NewIndexedMesh()
	idx := make([][]int, n)
	for i := 0; i < n; i++ {
		idx[i] = make([]int, n)
		for j := 0; j < n; j++ {
			u := float64(i) / float64(n-1)
			v := float64(j) / float64(n-1)
			idx[i][j] = m.AppendVertex(md3.Vec{X: u, Y: v, Z: 0}, md3.Vec{X: 0, Y: 0, Z: 1}, true, u, v, true, 1, 1, 1, 1, false)
		}
	}
	for i := 0; i < n-1; i++ {
		for j := 0; j < n-1; j++ {
			a, b, c, d := idx[i][j], idx[i+1][j], idx[i+1][j+1], idx[i][j+1]
			m.Indices = append(m.Indices, uint32(a), uint32(b), uint32(c), uint32(a), uint32(c), uint32(d))
		}
	}
	return m
}

func baseConfig() tile3d.Config {
	return tile3d.Config{
		Tiling:      tile3d.TilingConfig{MaxTrianglesPerTile: 50, MaxDepth: 4},
		Texture:     tile3d.TextureConfig{Enabled: false},
		Compression: tile3d.CompressionConfig{Enabled: false},
	}
}

func maxDepth(n *tile3d.TileNode) int {
	d := n.Depth
	for _, c := range n.Children {
		if cd := maxDepth(c); cd > d {
			d = cd
		}
	}
	return d
}

// Hierarchy invariants over a grid mesh that forces at least two levels
// of subdivision: every internal node carries content, leaves carry zero
// geometric error, child geometric error never exceeds the parent's,
// child bounds nest inside parent bounds, and every content record
// resolves to a real GLB file on disk.
func TestBuildHierarchyInvariants(t *testing.T) {
	outDir := t.TempDir()
	mesh := gridMesh(17)
	bounds := mesh.Bounds()
	lib := &tile3d.MaterialLibrary{}

	root, count, err := Build(context.Background(), mesh, bounds, lib, baseConfig(), outDir, identityTransform())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if maxDepth(root) < 2 {
		t.Fatalf("expected hierarchy depth >= 2, got %d", maxDepth(root))
	}

	var contentNodes, glbFiles int
	var walk func(n *tile3d.TileNode)
	walk = func(n *tile3d.TileNode) {
		if !n.IsLeaf() && n.Content == nil {
			t.Fatalf("internal node %q has no content", n.Address)
		}
		if n.IsLeaf() && n.GeometricError != 0 {
			t.Fatalf("leaf %q has nonzero geometric error %v", n.Address, n.GeometricError)
		}
		for _, c := range n.Children {
			if c.GeometricError > n.GeometricError+1e-9 {
				t.Fatalf("child %q geometricError %v exceeds parent %q's %v", c.Address, c.GeometricError, n.Address, n.GeometricError)
			}
			if !n.Bounds.ContainsBox(c.Bounds, 1e-9) {
				t.Fatalf("child %q bounds not contained in parent %q bounds", c.Address, n.Address)
			}
			walk(c)
		}
		if n.Content != nil {
			contentNodes++
			full := filepath.Join(outDir, filepath.FromSlash(n.Content.URI))
			data, err := os.ReadFile(full)
			if err != nil {
				t.Fatalf("content URI %q does not resolve to a file: %v", n.Content.URI, err)
			}
			if len(data) < 12 || string(data[:4]) != "glTF" {
				t.Fatalf("file at %q does not parse as a GLB header", full)
			}
			glbFiles++
		}
	}
	walk(root)
	if contentNodes != count {
		t.Fatalf("CountContent() = %d, walked content nodes = %d", count, contentNodes)
	}
	if glbFiles != count {
		t.Fatalf("expected %d GLB files on disk, found %d", count, glbFiles)
	}
}

// Two runs over identical input produce byte-identical manifests.
func TestBuildDeterminism(t *testing.T) {
	mesh := gridMesh(9)
	bounds := mesh.Bounds()
	lib := &tile3d.MaterialLibrary{}
	cfg := baseConfig()

	dirA, dirB := t.TempDir(), t.TempDir()
	if _, _, err := Build(context.Background(), mesh, bounds, lib, cfg, dirA, identityTransform()); err != nil {
		t.Fatalf("Build A: %v", err)
	}
	if _, _, err := Build(context.Background(), mesh, bounds, lib, cfg, dirB, identityTransform()); err != nil {
		t.Fatalf("Build B: %v", err)
	}

	a, err := os.ReadFile(filepath.Join(dirA, "tileset.json"))
	if err != nil {
		t.Fatalf("read manifest A: %v", err)
	}
	b, err := os.ReadFile(filepath.Join(dirB, "tileset.json"))
	if err != nil {
		t.Fatalf("read manifest B: %v", err)
	}
	if string(a) != string(b) {
		t.Fatalf("manifests differ across identical runs")
	}
}

// An empty mesh yields a single leaf with no content and a still-valid
// manifest.
func TestBuildEmptyMesh(t *testing.T) {
	outDir := t.TempDir()
	mesh := tile3d.NewIndexedMesh()
	bounds := tile3d.BoundingBox{Min: md3.Vec{}, Max: md3.Vec{X: 1, Y: 1, Z: 1}}
	lib := &tile3d.MaterialLibrary{}

	root, count, err := Build(context.Background(), mesh, bounds, lib, baseConfig(), outDir, identityTransform())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !root.IsLeaf() {
		t.Fatalf("expected a single leaf, root has %d children", len(root.Children))
	}
	if root.Content != nil {
		t.Fatalf("expected no content for an empty mesh, got %+v", root.Content)
	}
	if count != 0 {
		t.Fatalf("expected zero content tiles, got %d", count)
	}
	data, err := os.ReadFile(filepath.Join(outDir, "tileset.json"))
	if err != nil {
		t.Fatalf("read manifest: %v", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("manifest is not valid JSON: %v", err)
	}
}

// A non-identity root transform is carried into the manifest's
// root.transform field.
func TestBuildRootTransform(t *testing.T) {
	outDir := t.TempDir()
	mesh := gridMesh(5)
	bounds := mesh.Bounds()
	lib := &tile3d.MaterialLibrary{}

	transform := identityTransform()
	transform[12], transform[13], transform[14] = 100, 200, 300

	if _, _, err := Build(context.Background(), mesh, bounds, lib, baseConfig(), outDir, transform); err != nil {
		t.Fatalf("Build: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(outDir, "tileset.json"))
	if err != nil {
		t.Fatalf("read manifest: %v", err)
	}
	var doc manifestDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("unmarshal manifest: %v", err)
	}
	if doc.Root.Transform == nil {
		t.Fatalf("root transform missing")
	}
	got := doc.Root.Transform[12:15]
	want := []float64{100, 200, 300}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("transform[%d] = %v, want %v", 12+i, got[i], want[i])
		}
	}
}
