// Package glbenc implements the GLB encoder (C4): it turns a tile's
// merged mesh, material library and optional atlas texture into a
// self-contained binary glTF 2.0 document, optionally applying a
// mesh-attribute/index compression extension.
package glbenc

import (
	"bytes"
	"encoding/binary"
	"math"

	"github.com/qmuntal/gltf"
	"github.com/soypat/tile3d"
)

const compressionExtension = "EXT_meshopt_compression"

// Options configures one encode call.
type Options struct {
	// Compress, when set, runs every vertex-attribute and index buffer
	// through the mesh-optimization compression codec.
	Compress bool
}

// Encode builds a binary glTF 2.0 document for mesh and returns its
// encoded bytes. An empty mesh yields a minimal, BIN-less GLB.
func Encode(mesh *tile3d.IndexedMesh, lib *tile3d.MaterialLibrary, texture *tile3d.TextureData, opts Options) ([]byte, error) {
	doc := newDocument()
	if mesh.IsEmpty() {
		return marshalGLB(doc)
	}

	buf := &gltf.Buffer{}
	doc.Buffers = append(doc.Buffers, buf)
	data := new(bytes.Buffer)

	attrs := gltf.Attribute{}
	vertexCount := mesh.VertexCount()

	posView := writeFloatAttr(doc, data, mesh.Positions, 3, opts.Compress)
	posAcc := &gltf.Accessor{
		BufferView:    &posView,
		ComponentType: gltf.ComponentFloat,
		Type:          gltf.AccessorVec3,
		Count:         uint32(vertexCount),
	}
	bb := mesh.Bounds()
	posAcc.Min = []float32{float32(bb.Min.X), float32(bb.Min.Y), float32(bb.Min.Z)}
	posAcc.Max = []float32{float32(bb.Max.X), float32(bb.Max.Y), float32(bb.Max.Z)}
	attrs["POSITION"] = addAccessor(doc, posAcc)

	if mesh.HasNormals() {
		view := writeFloatAttr(doc, data, mesh.Normals, 3, opts.Compress)
		attrs["NORMAL"] = addAccessor(doc, &gltf.Accessor{
			BufferView:    &view,
			ComponentType: gltf.ComponentFloat,
			Type:          gltf.AccessorVec3,
			Count:         uint32(vertexCount),
		})
	}
	if mesh.HasUVs() {
		view := writeFloatAttr(doc, data, mesh.UVs, 2, opts.Compress)
		attrs["TEXCOORD_0"] = addAccessor(doc, &gltf.Accessor{
			BufferView:    &view,
			ComponentType: gltf.ComponentFloat,
			Type:          gltf.AccessorVec2,
			Count:         uint32(vertexCount),
		})
	}
	if mesh.HasColors() {
		quantized := quantizeColors(mesh.Colors)
		view := writeUint8Attr(doc, data, quantized, 4, opts.Compress)
		attrs["COLOR_0"] = addAccessor(doc, &gltf.Accessor{
			BufferView:    &view,
			ComponentType: gltf.ComponentUbyte,
			Type:          gltf.AccessorVec4,
			Normalized:    true,
			Count:         uint32(vertexCount),
		})
	}

	padTo4(data)
	indexView := writeIndices(doc, data, mesh.Indices, vertexCount, opts.Compress)
	indexComponent := gltf.ComponentUshort
	if vertexCount > 65535 {
		indexComponent = gltf.ComponentUint
	}
	indexAcc := addAccessor(doc, &gltf.Accessor{
		BufferView:    &indexView,
		ComponentType: indexComponent,
		Type:          gltf.AccessorScalar,
		Count:         uint32(len(mesh.Indices)),
	})

	var matIndex *uint32
	if texture != nil {
		padTo4(data)
		imgViewIdx := addBufferView(doc, data.Len(), len(texture.Bytes), 0)
		data.Write(texture.Bytes)
		buf.ByteLength = uint32(data.Len())

		img := &gltf.Image{MimeType: string(texture.Mime), BufferView: &imgViewIdx}
		doc.Images = append(doc.Images, img)
		sampler := &gltf.Sampler{
			MagFilter: gltf.MagLinear,
			MinFilter: gltf.MinLinearMipmapLinear,
			WrapS:     gltf.WrapClampToEdge,
			WrapT:     gltf.WrapClampToEdge,
		}
		samplerIdx := uint32(len(doc.Samplers))
		doc.Samplers = append(doc.Samplers, sampler)
		imageIdx := uint32(len(doc.Images) - 1)
		texIdx := uint32(len(doc.Textures))
		doc.Textures = append(doc.Textures, &gltf.Texture{Sampler: &samplerIdx, Source: &imageIdx})

		mat := buildMaterial(mesh, lib)
		mat.PBRMetallicRoughness.BaseColorTexture = &gltf.TextureInfo{Index: texIdx}
		mi := addMaterial(doc, mat)
		matIndex = &mi
	} else if mesh.Material != tile3d.NoMaterial {
		mat := buildMaterial(mesh, lib)
		mi := addMaterial(doc, mat)
		matIndex = &mi
	}

	buf.Data = data.Bytes()
	buf.ByteLength = uint32(len(buf.Data))

	prim := &gltf.Primitive{
		Attributes: attrs,
		Indices:    &indexAcc,
		Material:   matIndex,
		Mode:       gltf.PrimitiveTriangles,
	}
	meshIdx := uint32(len(doc.Meshes))
	doc.Meshes = append(doc.Meshes, &gltf.Mesh{Primitives: []*gltf.Primitive{prim}})
	nodeIdx := uint32(len(doc.Nodes))
	doc.Nodes = append(doc.Nodes, &gltf.Node{Mesh: &meshIdx})
	doc.Scenes[0].Nodes = append(doc.Scenes[0].Nodes, nodeIdx)

	if opts.Compress {
		doc.ExtensionsUsed = append(doc.ExtensionsUsed, compressionExtension)
		doc.ExtensionsRequired = append(doc.ExtensionsRequired, compressionExtension)
	}

	return marshalGLB(doc)
}

func newDocument() *gltf.Document {
	doc := &gltf.Document{}
	doc.Asset.Version = "2.0"
	sceneIdx := uint32(0)
	doc.Scene = &sceneIdx
	doc.Scenes = append(doc.Scenes, &gltf.Scene{})
	return doc
}

func addAccessor(doc *gltf.Document, acc *gltf.Accessor) uint32 {
	idx := uint32(len(doc.Accessors))
	doc.Accessors = append(doc.Accessors, acc)
	return idx
}

func addMaterial(doc *gltf.Document, mat *gltf.Material) uint32 {
	idx := uint32(len(doc.Materials))
	doc.Materials = append(doc.Materials, mat)
	return idx
}

func addBufferView(doc *gltf.Document, offset, length, stride int) uint32 {
	idx := uint32(len(doc.BufferViews))
	view := &gltf.BufferView{
		Buffer:     0,
		ByteOffset: uint32(offset),
		ByteLength: uint32(length),
	}
	if stride > 0 {
		view.ByteStride = uint32(stride)
	}
	doc.BufferViews = append(doc.BufferViews, view)
	return idx
}

func addCompressedBufferView(doc *gltf.Document, offset, compressedLen, elemStride, count int, mode string) uint32 {
	idx := addBufferView(doc, offset, compressedLen, 0)
	doc.BufferViews[idx].Extensions = gltf.Extensions{
		compressionExtension: map[string]interface{}{
			"buffer":     0,
			"byteOffset": offset,
			"byteLength": compressedLen,
			"byteStride": elemStride,
			"count":      count,
			"mode":       mode,
		},
	}
	return idx
}

func padTo4(buf *bytes.Buffer) {
	for buf.Len()%4 != 0 {
		buf.WriteByte(0)
	}
}

// writeFloatAttr writes an interleaved float64 attribute buffer as
// little-endian float32s (or, if compress is set, as a compressed
// channel stream) and returns the buffer view index.
func writeFloatAttr(doc *gltf.Document, data *bytes.Buffer, values []float64, stride int, compress bool) uint32 {
	padTo4(data)
	offset := data.Len()
	count := len(values) / stride
	if compress {
		compressed := encodeFloatAttr(values, stride)
		data.Write(compressed)
		return addCompressedBufferView(doc, offset, len(compressed), stride*4, count, "ATTRIBUTES")
	}
	for _, v := range values {
		writeFloat32LE(data, float32(v))
	}
	return addBufferView(doc, offset, stride*4*count, stride*4)
}

func writeUint8Attr(doc *gltf.Document, data *bytes.Buffer, values []byte, stride int, compress bool) uint32 {
	padTo4(data)
	offset := data.Len()
	count := len(values) / stride
	if compress {
		compressed := encodeUint8Attr(values, stride)
		data.Write(compressed)
		view := addCompressedBufferView(doc, offset, len(compressed), stride, count, "ATTRIBUTES")
		return view
	}
	data.Write(values)
	return addBufferView(doc, offset, len(values), stride)
}

func writeIndices(doc *gltf.Document, data *bytes.Buffer, indices []uint32, vertexCount int, compress bool) uint32 {
	offset := data.Len()
	if compress {
		compressed := encodeIndices(indices)
		data.Write(compressed)
		return addCompressedBufferView(doc, offset, len(compressed), 0, len(indices), "TRIANGLES")
	}
	if vertexCount > 65535 {
		for _, idx := range indices {
			writeUint32LE(data, idx)
		}
		return addBufferView(doc, offset, 4*len(indices), 0)
	}
	for _, idx := range indices {
		writeUint16LE(data, uint16(idx))
	}
	return addBufferView(doc, offset, 2*len(indices), 0)
}

func quantizeColors(colors []float64) []byte {
	out := make([]byte, len(colors))
	for i, c := range colors {
		v := math.Round(c * 255)
		if v < 0 {
			v = 0
		}
		if v > 255 {
			v = 255
		}
		out[i] = byte(v)
	}
	return out
}

func buildMaterial(mesh *tile3d.IndexedMesh, lib *tile3d.MaterialLibrary) *gltf.Material {
	mat := &gltf.Material{
		AlphaMode:            gltf.AlphaOpaque,
		DoubleSided:          false,
		PBRMetallicRoughness: &gltf.PBRMetallicRoughness{BaseColorFactor: &[4]float32{1, 1, 1, 1}},
	}
	m, ok := lib.Material(mesh.Material)
	if !ok {
		return mat
	}
	factor := [4]float32{float32(m.BaseColor[0]), float32(m.BaseColor[1]), float32(m.BaseColor[2]), float32(m.BaseColor[3])}
	mat.PBRMetallicRoughness.BaseColorFactor = &factor
	metallic := float32(m.Metallic)
	roughness := float32(m.Roughness)
	mat.PBRMetallicRoughness.MetallicFactor = &metallic
	mat.PBRMetallicRoughness.RoughnessFactor = &roughness
	return mat
}

func writeFloat32LE(buf *bytes.Buffer, f float32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], math.Float32bits(f))
	buf.Write(b[:])
}

func writeUint32LE(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func writeUint16LE(buf *bytes.Buffer, v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	buf.Write(b[:])
}

// marshalGLB encodes doc as a binary glTF 2.0 buffer.
func marshalGLB(doc *gltf.Document) ([]byte, error) {
	out := new(bytes.Buffer)
	enc := gltf.NewEncoder(out)
	enc.AsBinary = true
	if err := enc.Encode(doc); err != nil {
		return nil, tile3d.WrapError(tile3d.KindOutput, "", err)
	}
	return out.Bytes(), nil
}
