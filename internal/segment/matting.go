package segment

import (
	"fmt"
	"image"

	"github.com/anthonynsimon/bild/effect"
	bildsegment "github.com/anthonynsimon/bild/segment"
)

// Alpha matting thresholds. Mask values at or above ForegroundThreshold seed
// the definite foreground, values at or below BackgroundThreshold the definite
// background; both seeds are eroded by ErodeRadius pixels.
const (
	ForegroundThreshold = 240
	BackgroundThreshold = 10
	ErodeRadius         = 8
)

const (
	// cellSize is the granularity of the colour statistics tables.
	cellSize = 16
	// windowCells is how many cells around a pixel contribute to its local means.
	windowCells = 2
	// minSeparation is the squared RGB distance below which F and B are
	// indistinguishable and the mask value is kept.
	minSeparation = 100.0
)

// trimap labels.
const (
	trimapBackground uint8 = 0
	trimapUnknown    uint8 = 128
	trimapForeground uint8 = 255
)

// alphaMatte refines mask into a soft alpha for img.
//
// Pixels in the unknown band between the eroded seeds get the projection of
// their colour onto the line between the local foreground and background mean
// colours. Means come from summed-area tables over cellSize blocks.
func alphaMatte(img *image.NRGBA, mask *image.Gray) (*image.Gray, error) {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	if mask.Bounds().Dx() != w || mask.Bounds().Dy() != h {
		return nil, fmt.Errorf("%w: mask %v does not match image %v", ErrMattingFailed, mask.Bounds(), img.Bounds())
	}

	trimap, err := buildTrimap(mask)
	if err != nil {
		return nil, err
	}

	cw, ch := (w+cellSize-1)/cellSize, (h+cellSize-1)/cellSize
	fg, bg := newSATable(cw, ch), newSATable(cw, ch)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var t *saTable
			switch trimap.Pix[y*w+x] {
			case trimapForeground:
				t = fg
			case trimapBackground:
				t = bg
			default:
				continue
			}
			i := y*img.Stride + x*4
			t.add(x/cellSize, y/cellSize, img.Pix[i], img.Pix[i+1], img.Pix[i+2])
		}
	}
	fg.integrate()
	bg.integrate()

	fgAll, bgAll := fg.sum(0, 0, cw, ch), bg.sum(0, 0, cw, ch)

	alpha := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		cy := y / cellSize
		for x := 0; x < w; x++ {
			j := y*w + x
			switch trimap.Pix[j] {
			case trimapForeground:
				alpha.Pix[j] = 255
				continue
			case trimapBackground:
				alpha.Pix[j] = 0
				continue
			}

			cx := x / cellSize
			x0, y0 := cx-windowCells, cy-windowCells
			x1, y1 := cx+windowCells+1, cy+windowCells+1

			f := fg.sum(x0, y0, x1, y1).orElse(fgAll)
			b := bg.sum(x0, y0, x1, y1).orElse(bgAll)

			i := y*img.Stride + x*4
			alpha.Pix[j] = estimateAlpha(
				float64(img.Pix[i]), float64(img.Pix[i+1]), float64(img.Pix[i+2]),
				f, b, mask.Pix[j],
			)
		}
	}
	return alpha, nil
}

// buildTrimap splits mask into eroded definite regions and an unknown band.
// It fails when either definite region is empty after erosion.
func buildTrimap(mask *image.Gray) (*image.Gray, error) {
	w, h := mask.Bounds().Dx(), mask.Bounds().Dy()

	isFg := bildsegment.Threshold(mask, ForegroundThreshold)

	isBg := image.NewGray(image.Rect(0, 0, w, h))
	for i, v := range mask.Pix {
		if v <= BackgroundThreshold {
			isBg.Pix[i] = 255
		}
	}

	fgEroded := effect.Erode(isFg, ErodeRadius)
	bgEroded := effect.Erode(isBg, ErodeRadius)

	trimap := image.NewGray(image.Rect(0, 0, w, h))
	var nFg, nBg int
	for i := range trimap.Pix {
		switch {
		case fgEroded.Pix[i*4] > 0:
			trimap.Pix[i] = trimapForeground
			nFg++
		case bgEroded.Pix[i*4] > 0:
			trimap.Pix[i] = trimapBackground
			nBg++
		default:
			trimap.Pix[i] = trimapUnknown
		}
	}

	if nFg == 0 {
		return nil, fmt.Errorf("%w: no definite foreground after erosion", ErrMattingFailed)
	}
	if nBg == 0 {
		return nil, fmt.Errorf("%w: no definite background after erosion", ErrMattingFailed)
	}
	return trimap, nil
}

// estimateAlpha projects colour (r,g,b) onto the segment from background mean
// b to foreground mean f. prior is used when the two means coincide.
func estimateAlpha(r, g, bl float64, f, b colorSum, prior uint8) uint8 {
	fr, fgc, fb := f.mean()
	br, bgc, bb := b.mean()

	dr, dg, db := fr-br, fgc-bgc, fb-bb
	den := dr*dr + dg*dg + db*db
	if den < minSeparation {
		return prior
	}

	a := ((r-br)*dr + (g-bgc)*dg + (bl-bb)*db) / den
	switch {
	case a <= 0:
		return 0
	case a >= 1:
		return 255
	}
	return uint8(a*255 + 0.5)
}

// colorSum accumulates RGB totals and a sample count.
type colorSum struct {
	r, g, b, n float64
}

func (c colorSum) plus(o colorSum) colorSum {
	return colorSum{c.r + o.r, c.g + o.g, c.b + o.b, c.n + o.n}
}

func (c colorSum) minus(o colorSum) colorSum {
	return colorSum{c.r - o.r, c.g - o.g, c.b - o.b, c.n - o.n}
}

func (c colorSum) orElse(o colorSum) colorSum {
	if c.n < 0.5 {
		return o
	}
	return c
}

func (c colorSum) mean() (r, g, b float64) {
	if c.n == 0 {
		return 0, 0, 0
	}
	return c.r / c.n, c.g / c.n, c.b / c.n
}

// saTable is a summed-area table over a w×h grid of cells.
type saTable struct {
	w, h int
	s    []colorSum // (w+1)*(h+1), row 0 and column 0 are zero
}

func newSATable(w, h int) *saTable {
	return &saTable{w: w, h: h, s: make([]colorSum, (w+1)*(h+1))}
}

func (t *saTable) add(cx, cy int, r, g, b uint8) {
	i := (cy+1)*(t.w+1) + cx + 1
	t.s[i] = t.s[i].plus(colorSum{float64(r), float64(g), float64(b), 1})
}

// integrate turns per-cell totals into prefix sums. Call once after all adds.
func (t *saTable) integrate() {
	stride := t.w + 1
	for y := 1; y <= t.h; y++ {
		for x := 1; x <= t.w; x++ {
			i := y*stride + x
			t.s[i] = t.s[i].plus(t.s[i-1]).plus(t.s[i-stride]).minus(t.s[i-stride-1])
		}
	}
}

// sum returns the totals over cells [x0,x1)×[y0,y1), clamped to the grid.
func (t *saTable) sum(x0, y0, x1, y1 int) colorSum {
	x0, y0 = max(x0, 0), max(y0, 0)
	x1, y1 = min(x1, t.w), min(y1, t.h)
	if x0 >= x1 || y0 >= y1 {
		return colorSum{}
	}
	stride := t.w + 1
	return t.s[y1*stride+x1].minus(t.s[y0*stride+x1]).minus(t.s[y1*stride+x0]).plus(t.s[y0*stride+x0])
}
