package atlas

import (
	"image"
	"image/color"
)

// compositeIsland samples src over an island's UV rectangle into dst's
// inner placement rectangle, then bleeds the outermost inner row/column
// (and corner pixels) into the padding band.
func compositeIsland(dst *image.RGBA, src image.Image, isl island, pl placement) {
	srcW, srcH := src.Bounds().Dx(), src.Bounds().Dy()
	srcMinX, srcMinY := src.Bounds().Min.X, src.Bounds().Min.Y
	ix0, iy0 := pl.innerX(), pl.innerY()

	sampleAt := func(dx, dy int) color.RGBA {
		u := isl.uMin + (float64(dx)+0.5)/float64(pl.innerW)*isl.uRange()
		v := isl.vMin + (float64(dy)+0.5)/float64(pl.innerH)*isl.vRange()
		sx := wrapInt(int(fract(u)*float64(srcW)), srcW)
		sy := wrapInt(int(fract(v)*float64(srcH)), srcH)
		r, g, b, a := src.At(srcMinX+sx, srcMinY+sy).RGBA()
		return color.RGBA{R: uint8(r >> 8), G: uint8(g >> 8), B: uint8(b >> 8), A: uint8(a >> 8)}
	}

	for dy := 0; dy < pl.innerH; dy++ {
		// Detect a monotone, non-wrapping scanline. Both branches sample
		// the source once per destination pixel; the monotone branch
		// buffers the row and writes it in one pass, and no bulk copy of
		// source pixels is made.
		u0 := isl.uMin + 0.5/float64(pl.innerW)*isl.uRange()
		u1 := isl.uMin + (float64(pl.innerW-1)+0.5)/float64(pl.innerW)*isl.uRange()
		monotone := fract(u0) <= fract(u1) || pl.innerW <= 1

		if monotone {
			row := make([]color.RGBA, pl.innerW)
			for dx := 0; dx < pl.innerW; dx++ {
				row[dx] = sampleAt(dx, dy)
			}
			for dx, c := range row {
				dst.SetRGBA(ix0+dx, iy0+dy, c)
			}
			continue
		}
		for dx := 0; dx < pl.innerW; dx++ {
			dst.SetRGBA(ix0+dx, iy0+dy, sampleAt(dx, dy))
		}
	}

	bleedPadding(dst, pl)
}

// bleedPadding replicates the inner rectangle's outermost row/column (and
// its four corners) into the surrounding padding band, so bilinear
// sampling never reads across island boundaries.
func bleedPadding(dst *image.RGBA, pl placement) {
	if pl.pad <= 0 {
		return
	}
	ix0, iy0 := pl.innerX(), pl.innerY()
	ix1, iy1 := ix0+pl.innerW-1, iy0+pl.innerH-1

	for dy := 0; dy < pl.innerH; dy++ {
		left := dst.RGBAAt(ix0, iy0+dy)
		right := dst.RGBAAt(ix1, iy0+dy)
		for p := 1; p <= pl.pad; p++ {
			dst.SetRGBA(ix0-p, iy0+dy, left)
			dst.SetRGBA(ix1+p, iy0+dy, right)
		}
	}
	for dx := 0; dx < pl.innerW; dx++ {
		top := dst.RGBAAt(ix0+dx, iy0)
		bottom := dst.RGBAAt(ix0+dx, iy1)
		for p := 1; p <= pl.pad; p++ {
			dst.SetRGBA(ix0+dx, iy0-p, top)
			dst.SetRGBA(ix0+dx, iy1+p, bottom)
		}
	}

	tl := dst.RGBAAt(ix0, iy0)
	tr := dst.RGBAAt(ix1, iy0)
	bl := dst.RGBAAt(ix0, iy1)
	br := dst.RGBAAt(ix1, iy1)
	for py := 1; py <= pl.pad; py++ {
		for px := 1; px <= pl.pad; px++ {
			dst.SetRGBA(ix0-px, iy0-py, tl)
			dst.SetRGBA(ix1+px, iy0-py, tr)
			dst.SetRGBA(ix0-px, iy1+py, bl)
			dst.SetRGBA(ix1+px, iy1+py, br)
		}
	}
}

func fract(f float64) float64 {
	f -= float64(int(f))
	if f < 0 {
		f++
	}
	return f
}

func wrapInt(v, n int) int {
	if n <= 0 {
		return 0
	}
	v %= n
	if v < 0 {
		v += n
	}
	return v
}
