package imaging

import (
	"fmt"
	"image"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"
)

// ParseRect parses "x1,y1,x2,y2" into a rectangle.
func ParseRect(s string) (image.Rectangle, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return image.Rectangle{}, fmt.Errorf("invalid crop box %q: want x1,y1,x2,y2", s)
	}

	var v [4]int
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return image.Rectangle{}, fmt.Errorf("invalid crop box %q: %w", s, err)
		}
		v[i] = n
	}
	if v[0] >= v[2] || v[1] >= v[3] {
		return image.Rectangle{}, fmt.Errorf("invalid crop box %q: x1 must be < x2, y1 must be < y2", s)
	}
	return image.Rect(v[0], v[1], v[2], v[3]), nil
}

// ParseAspect parses a "W:H" ratio such as "3:4".
func ParseAspect(s string) (w, h int, err error) {
	ws, hs, ok := strings.Cut(s, ":")
	if !ok {
		return 0, 0, fmt.Errorf("invalid aspect ratio %q: want W:H", s)
	}
	if w, err = strconv.Atoi(strings.TrimSpace(ws)); err != nil {
		return 0, 0, fmt.Errorf("invalid aspect ratio %q: %w", s, err)
	}
	if h, err = strconv.Atoi(strings.TrimSpace(hs)); err != nil {
		return 0, 0, fmt.Errorf("invalid aspect ratio %q: %w", s, err)
	}
	if w <= 0 || h <= 0 {
		return 0, 0, fmt.Errorf("invalid aspect ratio %q: both sides must be positive", s)
	}
	return w, h, nil
}

// Crop extracts box from img. The box is clamped to the image so that the
// result always keeps at least one pixel in each direction.
func Crop(img image.Image, box image.Rectangle) *image.NRGBA {
	b := img.Bounds()

	x1 := clamp(box.Min.X, b.Min.X, b.Max.X-1)
	y1 := clamp(box.Min.Y, b.Min.Y, b.Max.Y-1)
	x2 := clamp(box.Max.X, x1+1, b.Max.X)
	y2 := clamp(box.Max.Y, y1+1, b.Max.Y)

	return imaging.Crop(img, image.Rect(x1, y1, x2, y2))
}

// CropAspect cuts the largest centred region with the given width:height
// ratio out of img.
func CropAspect(img image.Image, ratioW, ratioH int) (*image.NRGBA, error) {
	if ratioW <= 0 || ratioH <= 0 {
		return nil, fmt.Errorf("invalid aspect ratio %d:%d", ratioW, ratioH)
	}

	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	cw, ch := w, w*ratioH/ratioW
	if ch > h {
		cw, ch = h*ratioW/ratioH, h
	}
	cw, ch = max(cw, 1), max(ch, 1)

	return imaging.CropCenter(img, cw, ch), nil
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
