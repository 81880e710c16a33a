package tileset

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/soypat/tile3d"
)

// generator is the producer string the manifest's asset object names.
const generator = "tile3d"

// manifestDoc is the root JSON document of a tileset manifest.
type manifestDoc struct {
	Asset struct {
		Version   string `json:"version"`
		Generator string `json:"generator,omitempty"`
	} `json:"asset"`
	GeometricError float64   `json:"geometricError"`
	Root           *tileJSON `json:"root"`
}

// tileJSON is one tile entry: an axis-aligned box volume, geometric
// error, refinement policy, optional content and children.
type tileJSON struct {
	BoundingVolume struct {
		Box [12]float64 `json:"box"`
	} `json:"boundingVolume"`
	GeometricError float64      `json:"geometricError"`
	Refine         string       `json:"refine,omitempty"`
	Content        *contentJSON `json:"content,omitempty"`
	Children       []*tileJSON  `json:"children,omitempty"`
	Transform      *[16]float64 `json:"transform,omitempty"`
}

type contentJSON struct {
	URI string `json:"uri"`
}

// writeManifest serializes root as tileset.json under outDir, attaching
// rootTransform to the root tile only.
func writeManifest(root *tile3d.TileNode, rootTransform [16]float64, outDir string) error {
	var doc manifestDoc
	doc.Asset.Version = "1.1"
	doc.Asset.Generator = generator
	doc.GeometricError = root.GeometricError
	doc.Root = tileJSONFrom(root)
	doc.Root.Transform = &rootTransform

	path := filepath.Join(outDir, "tileset.json")
	data, err := json.MarshalIndent(&doc, "", "  ")
	if err != nil {
		return tile3d.WrapError(tile3d.KindOutput, path, err)
	}
	if err := os.MkdirAll(outDir, 0o777); err != nil {
		return tile3d.WrapError(tile3d.KindOutput, outDir, err)
	}
	if err := os.WriteFile(path, data, 0o666); err != nil {
		return tile3d.WrapError(tile3d.KindOutput, path, err)
	}
	return nil
}

func tileJSONFrom(n *tile3d.TileNode) *tileJSON {
	t := &tileJSON{}
	t.BoundingVolume.Box = boxFromBounds(n.Bounds)
	t.GeometricError = n.GeometricError
	t.Refine = "REPLACE"
	if n.Content != nil {
		t.Content = &contentJSON{URI: n.Content.URI}
	}
	for _, c := range n.Children {
		t.Children = append(t.Children, tileJSONFrom(c))
	}
	return t
}

func boxFromBounds(b tile3d.BoundingBox) [12]float64 {
	c := b.Center()
	h := b.HalfExtents()
	return [12]float64{
		c.X, c.Y, c.Z,
		h.X, 0, 0,
		0, h.Y, 0,
		0, 0, h.Z,
	}
}
