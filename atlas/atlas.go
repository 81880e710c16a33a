// Package atlas implements the atlas repacker (C3): finding UV-connected
// islands in a tile's mesh, packing them into a self-contained
// power-of-two texture atlas, remapping UVs (duplicating vertices shared
// across islands), and compositing the atlas from the source texture
// with bleed padding.
package atlas

import (
	"bytes"
	"errors"
	"image"
	_ "image/jpeg"
	"image/png"

	"github.com/deepteams/webp"
	"github.com/soypat/tile3d"
	"golang.org/x/image/draw"
)

// ErrNotApplicable is returned by Repack when the input mesh has no UVs,
// no material, or the material has no texture: there is nothing to
// repack.
var ErrNotApplicable = errors.New("atlas: not applicable")

// Options mirrors the core's TextureConfig for one repack call.
type Options struct {
	MaxSize int
	Quality int
	Format  tile3d.TextureFormat
}

// Result is a repacked mesh (UVs rewritten into the new atlas) and its
// encoded atlas texture.
type Result struct {
	Mesh    tile3d.IndexedMesh
	Texture tile3d.TextureData
}

// Repack implements C3's contract: given a mesh with UVs and a material
// library, produce a repacked mesh and atlas texture, or ErrNotApplicable
// if the mesh has no UVs/material/texture.
func Repack(mesh *tile3d.IndexedMesh, lib *tile3d.MaterialLibrary, opts Options) (Result, error) {
	if !mesh.HasUVs() || mesh.Material == tile3d.NoMaterial {
		return Result{}, ErrNotApplicable
	}
	mat, ok := lib.Material(mesh.Material)
	if !ok || mat.Texture == tile3d.NoTexture {
		return Result{}, ErrNotApplicable
	}
	texData, ok := lib.Texture(mat.Texture)
	if !ok {
		return Result{}, ErrNotApplicable
	}
	src, err := decodeSource(texData)
	if err != nil {
		tile3d.Logger.Warnw("atlas: undecodable source texture, skipping atlas for tile", "error", err)
		return Result{}, ErrNotApplicable
	}

	islands := findIslands(mesh)
	if len(islands) == 0 {
		return Result{}, ErrNotApplicable
	}
	srcW, srcH := src.Bounds().Dx(), src.Bounds().Dy()
	maxSize := opts.MaxSize
	if maxSize <= 0 {
		maxSize = 2048
	}
	placements, atlasW, atlasH := packIslands(islands, srcW, srcH, maxSize)

	remapped, splitVertices := remapUVs(mesh, islands, placements, atlasW, atlasH)
	if splitVertices > 0 {
		tile3d.Logger.Debugw("atlas: split vertices across island boundaries", "count", splitVertices)
	}

	atlasImg := image.NewRGBA(image.Rect(0, 0, atlasW, atlasH))
	for i, isl := range islands {
		compositeIsland(atlasImg, src, isl, placements[i])
	}

	if atlasW > maxSize || atlasH > maxSize {
		atlasImg = downsample(atlasImg, maxSize)
	}

	encoded, mime, err := encode(atlasImg, opts.Format, opts.Quality)
	if err != nil {
		return Result{}, err
	}

	return Result{
		Mesh: remapped,
		Texture: tile3d.TextureData{
			Bytes:  encoded,
			Mime:   mime,
			Width:  atlasImg.Bounds().Dx(),
			Height: atlasImg.Bounds().Dy(),
		},
	}, nil
}

// decodeSource tries encoded-image decoders, then raw RGBA, then raw RGB,
// failure-mode fallback chain.
func decodeSource(t tile3d.TextureData) (image.Image, error) {
	if img, _, err := image.Decode(bytes.NewReader(t.Bytes)); err == nil {
		return img, nil
	}
	if img, err := webp.Decode(bytes.NewReader(t.Bytes)); err == nil {
		return img, nil
	}
	if t.Width > 0 && t.Height > 0 {
		if len(t.Bytes) == t.Width*t.Height*4 {
			return rawImage(t.Bytes, t.Width, t.Height, 4), nil
		}
		if len(t.Bytes) == t.Width*t.Height*3 {
			return rawImage(t.Bytes, t.Width, t.Height, 3), nil
		}
	}
	return nil, errors.New("atlas: texture bytes do not decode and are not raw RGBA/RGB")
}

func rawImage(data []byte, w, h, stride int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			o := (y*w + x) * stride
			i := img.PixOffset(x, y)
			img.Pix[i] = data[o]
			img.Pix[i+1] = data[o+1]
			img.Pix[i+2] = data[o+2]
			if stride == 4 {
				img.Pix[i+3] = data[o+3]
			} else {
				img.Pix[i+3] = 255
			}
		}
	}
	return img
}

func downsample(src *image.RGBA, maxSize int) *image.RGBA {
	w, h := src.Bounds().Dx(), src.Bounds().Dy()
	scale := float64(maxSize) / float64(max(w, h))
	dstW := int(float64(w) * scale)
	dstH := int(float64(h) * scale)
	if dstW < 1 {
		dstW = 1
	}
	if dstH < 1 {
		dstH = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, dstW, dstH))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)
	return dst
}

// encode selects a codec per format, falling back through the priority
// list supertextured -> web-lossy -> lossless on a transient failure.
func encode(img image.Image, format tile3d.TextureFormat, quality int) ([]byte, tile3d.MimeType, error) {
	for {
		data, mime, err := encodeOnce(img, format, quality)
		if err == nil {
			return data, mime, nil
		}
		next, ok := format.Fallback()
		if !ok {
			return nil, "", err
		}
		tile3d.Logger.Warnw("atlas: texture encoder unavailable, falling back", "from", format, "to", next, "error", err)
		format = next
	}
}

func encodeOnce(img image.Image, format tile3d.TextureFormat, quality int) ([]byte, tile3d.MimeType, error) {
	var buf bytes.Buffer
	switch format {
	case tile3d.FormatWebLossy:
		if err := webp.Encode(&buf, img, webpOptions(quality)); err != nil {
			return nil, "", err
		}
		return buf.Bytes(), tile3d.MimeWebP, nil
	case tile3d.FormatSupertextured:
		data, err := encodeKTX2(img)
		if err != nil {
			return nil, "", err
		}
		return data, tile3d.MimeKTX2, nil
	default: // FormatLossless
		if err := png.Encode(&buf, img); err != nil {
			return nil, "", err
		}
		return buf.Bytes(), tile3d.MimePNG, nil
	}
}

func webpOptions(quality int) *webp.Options {
	if quality <= 0 {
		quality = 85
	}
	return &webp.Options{Lossless: false, Quality: float32(quality)}
}

