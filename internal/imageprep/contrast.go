package imageprep

import "image"

// EqualizeLocalContrast applies clipped histogram equalization per tile
// (tilesX x tilesY grid). Clipped mass is redistributed uniformly so flat
// regions are not over-amplified. Tile seams are acceptable here because the
// output feeds adaptive binarization, not a human viewer.
func EqualizeLocalContrast(g *image.Gray, tilesX, tilesY int, clipLimit float64) *image.Gray {
	if tilesX < 1 {
		tilesX = 1
	}
	if tilesY < 1 {
		tilesY = 1
	}
	b := g.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return g
	}

	out := image.NewGray(image.Rect(0, 0, w, h))
	tw := (w + tilesX - 1) / tilesX
	th := (h + tilesY - 1) / tilesY

	for ty := 0; ty < tilesY; ty++ {
		for tx := 0; tx < tilesX; tx++ {
			x0, y0 := tx*tw, ty*th
			x1, y1 := min(x0+tw, w), min(y0+th, h)
			if x0 >= x1 || y0 >= y1 {
				continue
			}
			lut := clippedEqualizationLUT(g, b.Min.X+x0, b.Min.Y+y0, b.Min.X+x1, b.Min.Y+y1, clipLimit)
			for y := y0; y < y1; y++ {
				for x := x0; x < x1; x++ {
					v := g.GrayAt(b.Min.X+x, b.Min.Y+y).Y
					out.Pix[out.PixOffset(x, y)] = lut[v]
				}
			}
		}
	}
	return out
}

// clippedEqualizationLUT builds the equalization lookup table for one tile.
// clipLimit is a multiple of the mean bin height; excess is spread evenly.
func clippedEqualizationLUT(g *image.Gray, x0, y0, x1, y1 int, clipLimit float64) [256]uint8 {
	var hist [256]int
	n := 0
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			hist[g.GrayAt(x, y).Y]++
			n++
		}
	}

	var lut [256]uint8
	if n == 0 {
		for i := range lut {
			lut[i] = uint8(i)
		}
		return lut
	}

	if clipLimit > 0 {
		ceil := int(clipLimit * float64(n) / 256.0)
		if ceil < 1 {
			ceil = 1
		}
		excess := 0
		for i := range hist {
			if hist[i] > ceil {
				excess += hist[i] - ceil
				hist[i] = ceil
			}
		}
		share := excess / 256
		rem := excess % 256
		for i := range hist {
			hist[i] += share
			if i < rem {
				hist[i]++
			}
		}
	}

	cum := 0
	for i := range hist {
		cum += hist[i]
		lut[i] = uint8((cum*255 + n/2) / n)
	}
	return lut
}

// AdaptiveThreshold binarizes using a local mean over a block x block window:
// a pixel becomes white when it exceeds the neighborhood mean minus offset.
// Uses an integral image so cost is independent of block size.
func AdaptiveThreshold(g *image.Gray, block, offset int) *image.Gray {
	if block < 3 {
		block = 3
	}
	if block%2 == 0 {
		block++
	}
	b := g.Bounds()
	w, h := b.Dx(), b.Dy()
	out := image.NewGray(image.Rect(0, 0, w, h))
	if w == 0 || h == 0 {
		return out
	}

	// integral[y+1][x+1] = sum of pixels in [0,x] x [0,y]
	integral := make([][]int64, h+1)
	for i := range integral {
		integral[i] = make([]int64, w+1)
	}
	for y := 0; y < h; y++ {
		var row int64
		for x := 0; x < w; x++ {
			row += int64(g.GrayAt(b.Min.X+x, b.Min.Y+y).Y)
			integral[y+1][x+1] = integral[y][x+1] + row
		}
	}

	r := block / 2
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			x0, y0 := max(0, x-r), max(0, y-r)
			x1, y1 := min(w-1, x+r), min(h-1, y+r)
			area := int64((x1 - x0 + 1) * (y1 - y0 + 1))
			sum := integral[y1+1][x1+1] - integral[y0][x1+1] - integral[y1+1][x0] + integral[y0][x0]
			mean := sum / area
			v := int64(g.GrayAt(b.Min.X+x, b.Min.Y+y).Y)
			if v > mean-int64(offset) {
				out.Pix[out.PixOffset(x, y)] = 255
			}
		}
	}
	return out
}
