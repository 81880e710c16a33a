package glbenc

import (
	"bytes"
	"testing"

	"github.com/qmuntal/gltf"
	"github.com/soypat/geometry/md3"
	"github.com/soypat/tile3d"
)

func triangleMesh() tile3d.IndexedMesh {
	m := tile3d.NewIndexedMesh()
	m.AppendVertex(md3.Vec{X: 0, Y: 0, Z: 0}, md3.Vec{X: 0, Y: 0, Z: 1}, true, 0, 0, true, 1, 1, 1, 1, true)
	m.AppendVertex(md3.Vec{X: 1, Y: 0, Z: 0}, md3.Vec{X: 0, Y: 0, Z: 1}, true, 1, 0, true, 1, 1, 1, 1, true)
	m.AppendVertex(md3.Vec{X: 0, Y: 1, Z: 0}, md3.Vec{X: 0, Y: 0, Z: 1}, true, 0, 1, true, 1, 1, 1, 1, true)
	m.Indices = []uint32{0, 1, 2}
	m.Material = 0
	return m
}

// Property 8: round-trip invariant.
func TestEncodeRoundTrip(t *testing.T) {
	mesh := triangleMesh()
	lib := &tile3d.MaterialLibrary{}
	lib.AddMaterial(tile3d.Material{BaseColor: [4]float64{1, 1, 1, 1}, Texture: tile3d.NoTexture})

	data, err := Encode(&mesh, lib, nil, Options{})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	var doc gltf.Document
	if err := gltf.NewDecoder(bytes.NewReader(data)).Decode(&doc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(doc.Meshes) != 1 || len(doc.Meshes[0].Primitives) != 1 {
		t.Fatalf("expected exactly one mesh primitive")
	}
	prim := doc.Meshes[0].Primitives[0]
	if _, ok := prim.Attributes["POSITION"]; !ok {
		t.Fatalf("missing POSITION attribute")
	}
	if _, ok := prim.Attributes["NORMAL"]; !ok {
		t.Fatalf("missing NORMAL attribute")
	}
	if _, ok := prim.Attributes["TEXCOORD_0"]; !ok {
		t.Fatalf("missing TEXCOORD_0 attribute")
	}
	if _, ok := prim.Attributes["COLOR_0"]; !ok {
		t.Fatalf("missing COLOR_0 attribute")
	}
	idxAcc := doc.Accessors[*prim.Indices]
	if idxAcc.Count != 3 {
		t.Fatalf("expected 3 indices (1 triangle), got %d", idxAcc.Count)
	}
}

func TestEncodeEmptyMesh(t *testing.T) {
	m := tile3d.NewIndexedMesh()
	lib := &tile3d.MaterialLibrary{}
	data, err := Encode(&m, lib, nil, Options{})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	var doc gltf.Document
	if err := gltf.NewDecoder(bytes.NewReader(data)).Decode(&doc); err != nil {
		t.Fatalf("decode empty GLB: %v", err)
	}
	if len(doc.Meshes) != 0 {
		t.Fatalf("expected no meshes in empty-input GLB")
	}
}

func TestEncodeCompressedDeclaresExtension(t *testing.T) {
	mesh := triangleMesh()
	lib := &tile3d.MaterialLibrary{}
	lib.AddMaterial(tile3d.Material{BaseColor: [4]float64{1, 1, 1, 1}, Texture: tile3d.NoTexture})

	data, err := Encode(&mesh, lib, nil, Options{Compress: true})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	var doc gltf.Document
	if err := gltf.NewDecoder(bytes.NewReader(data)).Decode(&doc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	found := false
	for _, ext := range doc.ExtensionsRequired {
		if ext == compressionExtension {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected %s in extensionsRequired", compressionExtension)
	}
}

func TestCompressRoundTrip(t *testing.T) {
	vals := []float64{0, 0, 0, 1, 0, 0, 0.5, 1, 0}
	enc := encodeFloatAttr(vals, 3)
	dec := decodeFloatAttr(enc, 3, 3)
	for i := range vals {
		if diff := vals[i] - dec[i]; diff > 1e-3 || diff < -1e-3 {
			t.Fatalf("value %d: got %v want %v", i, dec[i], vals[i])
		}
	}

	idx := []uint32{0, 1, 2, 0, 2, 3}
	encIdx := encodeIndices(idx)
	decIdx := decodeIndices(encIdx, len(idx))
	for i := range idx {
		if decIdx[i] != idx[i] {
			t.Fatalf("index %d: got %d want %d", i, decIdx[i], idx[i])
		}
	}

	colors := []byte{255, 0, 0, 255, 0, 255, 0, 128, 10, 20, 30, 255}
	encColors := encodeUint8Attr(colors, 4)
	decColors := decodeUint8Attr(encColors, 3, 4)
	for i := range colors {
		if decColors[i] != colors[i] {
			t.Fatalf("color byte %d: got %d want %d", i, decColors[i], colors[i])
		}
	}
}
