// Package tileset implements the tileset builder (C5): the recursive
// octree-plus-LOD hierarchy construction that turns one merged mesh into
// a directory of GLB tiles and a tileset.json manifest.
package tileset

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"

	"github.com/soypat/tile3d"
	"github.com/soypat/tile3d/atlas"
	"github.com/soypat/tile3d/clip"
	"github.com/soypat/tile3d/glbenc"
	"github.com/soypat/tile3d/simplify"
	"golang.org/x/sync/errgroup"
)

// simplifyTriangleFloor is the triangle count below which an internal
// node uses its own mesh as content rather than simplifying it: below
// this size, simplification buys too little to be worth the pass.
const simplifyTriangleFloor = 64

// builder carries the read-only state shared by every node task:
// configuration, the material library, and the output root. Because
// these are read-only across all tasks, one builder is shared by every
// goroutine in the fork-join recursion without locking.
type builder struct {
	cfg    tile3d.Config
	lib    *tile3d.MaterialLibrary
	outDir string
}

// Build recurses mesh (already centered, unit-scaled, bounded by bounds)
// into a tile hierarchy under outDir, writing one GLB per content tile
// and a tileset.json manifest whose root carries rootTransform. It
// returns the root node and the number of content tiles written.
func Build(ctx context.Context, mesh tile3d.IndexedMesh, bounds tile3d.BoundingBox, lib *tile3d.MaterialLibrary, cfg tile3d.Config, outDir string, rootTransform [16]float64) (*tile3d.TileNode, int, error) {
	b := &builder{cfg: cfg, lib: lib, outDir: outDir}
	root, err := b.buildNode(ctx, mesh, bounds, 0, "root")
	if err != nil {
		return nil, 0, err
	}
	if err := writeManifest(root, rootTransform, outDir); err != nil {
		return nil, 0, err
	}
	count := root.CountContent()
	tile3d.Logger.Infow("tileset built", "contentTiles", count)
	return root, count, nil
}

// buildNode implements one recursive step of the hierarchy build at a
// single node: mesh, bounds, depth and address all describe that node.
func (b *builder) buildNode(ctx context.Context, mesh tile3d.IndexedMesh, bounds tile3d.BoundingBox, depth int, address string) (*tile3d.TileNode, error) {
	node := &tile3d.TileNode{Address: address, Depth: depth, Bounds: bounds}

	if mesh.TriangleCount() <= b.cfg.Tiling.MaxTrianglesPerTile || depth >= b.cfg.Tiling.MaxDepth {
		content, err := b.writeContent(&mesh, address)
		if err != nil {
			return nil, err
		}
		node.Content = content
		return node, nil
	}

	ratio, lockBorder := 0.25, true
	if depth >= 3 {
		ratio, lockBorder = 0.50, false
	}
	contentMesh := mesh
	if mesh.TriangleCount() >= simplifyTriangleFloor {
		res := simplify.Simplify(&mesh, simplify.Options{Ratio: ratio, LockBorder: lockBorder})
		contentMesh = res.Mesh
	}
	content, err := b.writeContent(&contentMesh, address)
	if err != nil {
		return nil, err
	}
	node.Content = content
	node.GeometricError = bounds.Diagonal() * math.Pow(0.5, float64(depth))

	octants := clip.ToOctants(&mesh, bounds, clip.Options{})
	mesh = tile3d.IndexedMesh{} // release the parent mesh before recursing.

	children := make([]*tile3d.TileNode, 8)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < 8; i++ {
		i := i
		sub := octants[i]
		if sub.IsEmpty() {
			continue
		}
		g.Go(func() error {
			childBounds := bounds.Octant(i)
			childAddr := tile3d.ChildAddress(address, i)
			child, err := b.buildNode(gctx, sub, childBounds, depth+1, childAddr)
			if err != nil {
				return err
			}
			children[i] = child
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	// Octant index order is preserved here regardless of which goroutine
	// finished first, so sibling ordering is deterministic.
	for _, c := range children {
		if c != nil {
			node.Children = append(node.Children, c)
		}
	}
	return node, nil
}

// writeContent runs mesh through the atlas repacker (if textures are
// enabled and applicable) and the GLB encoder, then writes the result to
// its address-derived path under the builder's output directory. An
// empty mesh writes nothing and returns a nil record: the leaf-with-no-
// content case.
func (b *builder) writeContent(mesh *tile3d.IndexedMesh, address string) (*tile3d.ContentRecord, error) {
	if mesh.IsEmpty() {
		return nil, nil
	}
	m := *mesh
	var texture *tile3d.TextureData
	if b.cfg.Texture.Enabled {
		res, err := atlas.Repack(&m, b.lib, atlas.Options{
			MaxSize: b.cfg.Texture.MaxSize,
			Quality: b.cfg.Texture.Quality,
			Format:  b.cfg.Texture.Format,
		})
		switch {
		case err == nil:
			m = res.Mesh
			texture = &res.Texture
		case errors.Is(err, atlas.ErrNotApplicable):
			// No UVs/material/texture on this tile: stays untextured.
		default:
			return nil, tile3d.WrapError(tile3d.KindTiling, address, err)
		}
	}

	data, err := glbenc.Encode(&m, b.lib, texture, glbenc.Options{Compress: b.cfg.Compression.Enabled})
	if err != nil {
		return nil, tile3d.WrapError(tile3d.KindOutput, address, err)
	}

	uri := tile3d.URI(address)
	fullPath := filepath.Join(b.outDir, filepath.FromSlash(uri))
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o777); err != nil {
		return nil, tile3d.WrapError(tile3d.KindOutput, address, err)
	}
	if err := os.WriteFile(fullPath, data, 0o666); err != nil {
		return nil, tile3d.WrapError(tile3d.KindOutput, address, err)
	}
	return &tile3d.ContentRecord{URI: uri, Mesh: &m}, nil
}
