package atlas

import (
	"github.com/soypat/geometry/md3"
	"github.com/soypat/tile3d"
)

// placement locates one packed island's outer (padded) rectangle and its
// inner (unpadded) pixel dimensions within the atlas.
type placement struct {
	outerX, outerY int
	innerW, innerH int
	pad            int
}

func (p placement) innerX() int { return p.outerX + p.pad }
func (p placement) innerY() int { return p.outerY + p.pad }
func (p placement) outerW() int { return p.innerW + 2*p.pad }
func (p placement) outerH() int { return p.innerH + 2*p.pad }

// padFor returns the bleed padding for an island whose larger inner
// (unpadded) pixel dimension is dim, per a fixed padding schedule.
func padFor(dim int) int {
	switch {
	case dim <= 128:
		return 2
	case dim <= 512:
		return 3
	default:
		return 5
	}
}

func nextPow2(x int) int {
	p := 1
	for p < x {
		p *= 2
	}
	return p
}

func clampMax(v, maxV int) int {
	if v > maxV {
		return maxV
	}
	return v
}

const atlasHardCap = 16384

// freeRect is a guillotine free rectangle.
type freeRect struct{ x, y, w, h int }

// guillotinePack places rects (in the given order) into a w x h bin using
// Best-Short-Side-Fit, splitting each used rectangle into two leftover
// free rectangles. It reports false if any rect does not fit.
func guillotinePack(order []int, outerW, outerH []int, w, h int) ([]placement, bool) {
	free := []freeRect{{0, 0, w, h}}
	out := make([]placement, len(order))
	for _, i := range order {
		rw, rh := outerW[i], outerH[i]
		best := -1
		bestShort := -1
		for fi, fr := range free {
			if fr.w < rw || fr.h < rh {
				continue
			}
			leftoverW := fr.w - rw
			leftoverH := fr.h - rh
			short := leftoverW
			if leftoverH < short {
				short = leftoverH
			}
			if best == -1 || short < bestShort {
				best = fi
				bestShort = short
			}
		}
		if best == -1 {
			return nil, false
		}
		fr := free[best]
		free = append(free[:best], free[best+1:]...)
		out[i] = placement{outerX: fr.x, outerY: fr.y}
		if fr.w-rw > 0 {
			free = append(free, freeRect{fr.x + rw, fr.y, fr.w - rw, rh})
		}
		if fr.h-rh > 0 {
			free = append(free, freeRect{fr.x, fr.y + rh, fr.w, fr.h - rh})
		}
	}
	return out, true
}

// packIslands sizes and packs islands into a power-of-two atlas using
// Best-Short-Side-Fit guillotine packing. The returned placements are
// index-aligned with islands.
func packIslands(islands []island, srcW, srcH, maxSize int) ([]placement, int, int) {
	n := len(islands)
	innerW := make([]int, n)
	innerH := make([]int, n)
	pad := make([]int, n)
	outerW := make([]int, n)
	outerH := make([]int, n)
	largest := 64
	for i, isl := range islands {
		iw := ceilDiv(isl.uRange()*float64(srcW), 1)
		ih := ceilDiv(isl.vRange()*float64(srcH), 1)
		if maxSize > 0 {
			iw = clampMax(iw, maxSize)
			ih = clampMax(ih, maxSize)
		}
		if iw < 1 {
			iw = 1
		}
		if ih < 1 {
			ih = 1
		}
		p := padFor(max(iw, ih))
		innerW[i], innerH[i], pad[i] = iw, ih, p
		outerW[i] = iw + 2*p
		outerH[i] = ih + 2*p
		if outerW[i] > largest {
			largest = outerW[i]
		}
		if outerH[i] > largest {
			largest = outerH[i]
		}
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	// Sort islands by outer dimension descending (Best-Short-Side-Fit
	// packs best when large islands place first).
	for i := 1; i < len(order); i++ {
		for j := i; j > 0; j-- {
			a, b := order[j-1], order[j]
			da := max(outerW[a], outerH[a])
			db := max(outerW[b], outerH[b])
			if da >= db {
				break
			}
			order[j-1], order[j] = order[j], order[j-1]
		}
	}

	atlasW := nextPow2(largest)
	atlasH := atlasW
	var placements []placement
	for {
		var ok bool
		placements, ok = guillotinePack(order, outerW, outerH, atlasW, atlasH)
		if ok {
			break
		}
		if atlasW >= atlasHardCap && atlasH >= atlasHardCap {
			tile3d.Logger.Warnw("atlas: forcing placement beyond size cap", "atlasW", atlasW, "atlasH", atlasH)
			placements = forcePack(order, outerW, outerH, &atlasW, &atlasH)
			break
		}
		if atlasW <= atlasH {
			atlasW *= 2
		} else {
			atlasH *= 2
		}
	}

	for i := range placements {
		placements[i].innerW = innerW[i]
		placements[i].innerH = innerH[i]
		placements[i].pad = pad[i]
	}

	maxX, maxY := 0, 0
	for i, p := range placements {
		if x := p.outerX + outerW[i]; x > maxX {
			maxX = x
		}
		if y := p.outerY + outerH[i]; y > maxY {
			maxY = y
		}
	}
	finalW := nextPow2(maxX)
	finalH := nextPow2(maxY)
	if finalW < 64 {
		finalW = 64
	}
	if finalH < 64 {
		finalH = 64
	}
	return placements, finalW, finalH
}

// forcePack stacks rectangles in simple shelf order without regard to
// fit, once guillotine packing has failed at the hard size cap.
func forcePack(order []int, outerW, outerH []int, atlasW, atlasH *int) []placement {
	out := make([]placement, len(order))
	x, y, shelfH := 0, 0, 0
	maxW := *atlasW
	for _, i := range order {
		if x+outerW[i] > maxW {
			x = 0
			y += shelfH
			shelfH = 0
		}
		out[i] = placement{outerX: x, outerY: y}
		x += outerW[i]
		if outerH[i] > shelfH {
			shelfH = outerH[i]
		}
	}
	totalH := y + shelfH
	if totalH > *atlasH {
		*atlasH = totalH
	}
	return out
}

func ceilDiv(v, unit float64) int {
	n := int(v / unit)
	if float64(n)*unit < v {
		n++
	}
	return n
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// remapUVs duplicates vertices shared across island boundaries and
// writes each copy's UV in destination atlas space, using a half-texel-
// inset mapping so edge texels never sample past the atlas boundary. The
// second return value is the number of original vertices that ended up
// split across more than one island.
func remapUVs(mesh *tile3d.IndexedMesh, islands []island, placements []placement, atlasW, atlasH int) (tile3d.IndexedMesh, int) {
	faceIsland := make([]int, mesh.TriangleCount())
	for isl, is := range islands {
		for _, f := range is.faces {
			faceIsland[f] = isl
		}
	}

	out := tile3d.NewIndexedMesh()
	out.Material = mesh.Material
	type key struct {
		vertex int
		island int
	}
	seen := make(map[key]int)
	vertexIslands := make(map[int]map[int]struct{})

	newVertex := func(origIdx, islandIdx int) int {
		k := key{origIdx, islandIdx}
		if ni, ok := seen[k]; ok {
			return ni
		}
		if vertexIslands[origIdx] == nil {
			vertexIslands[origIdx] = make(map[int]struct{})
		}
		vertexIslands[origIdx][islandIdx] = struct{}{}
		isl := &islands[islandIdx]
		pl := placements[islandIdx]
		u, v := mesh.UV(origIdx)
		normU := (u - isl.uMin) / isl.uRange()
		normV := (v - isl.vMin) / isl.vRange()
		atlasU := (normU*float64(pl.innerW-1) + 0.5 + float64(pl.outerX+pl.pad)) / float64(atlasW)
		atlasV := (normV*float64(pl.innerH-1) + 0.5 + float64(pl.outerY+pl.pad)) / float64(atlasH)

		pos := mesh.Position(origIdx)
		var normal md3.Vec
		hasNormal := mesh.HasNormals()
		if hasNormal {
			normal = mesh.Normal(origIdx)
		}
		var r, g, b, a float64
		hasColor := mesh.HasColors()
		if hasColor {
			r, g, b, a = mesh.Color(origIdx)
		}
		ni := out.AppendVertex(pos,
			normal, hasNormal,
			atlasU, atlasV, true,
			r, g, b, a, hasColor)
		seen[k] = ni
		return ni
	}

	for f := 0; f < mesh.TriangleCount(); f++ {
		isl := faceIsland[f]
		i0 := int(mesh.Indices[3*f])
		i1 := int(mesh.Indices[3*f+1])
		i2 := int(mesh.Indices[3*f+2])
		out.Indices = append(out.Indices,
			uint32(newVertex(i0, isl)),
			uint32(newVertex(i1, isl)),
			uint32(newVertex(i2, isl)))
	}

	splitVertices := 0
	for _, islSet := range vertexIslands {
		if len(islSet) > 1 {
			splitVertices++
		}
	}
	return out, splitVertices
}
