package imaging

import (
	"image"
	"image/color"

	"github.com/disintegration/imaging"
)

// Finish describes the post-removal steps applied to a cut-out.
type Finish struct {
	// Background fills transparent areas unless Transparent is set.
	Background  color.Color
	Transparent bool
	// Upscale enlarges by this factor with Lanczos resampling. Values <= 1
	// leave the size unchanged.
	Upscale float64
	// Border is the total border width in pixels, half white inside and half
	// black outside.
	Border int
}

// Apply runs the background, upscale and border steps in that order.
func (f Finish) Apply(cutout image.Image) *image.NRGBA {
	var out *image.NRGBA
	if f.Transparent {
		out = imaging.Clone(cutout)
	} else {
		bg := f.Background
		if bg == nil {
			bg = DefaultBackground
		}
		out = ApplyBackground(cutout, bg)
	}

	out = Upscale(out, f.Upscale)
	return AddBorder(out, f.Border)
}

// ApplyBackground composites cutout over a canvas filled with bg. The result
// is fully opaque when bg is.
func ApplyBackground(cutout image.Image, bg color.Color) *image.NRGBA {
	b := cutout.Bounds()
	canvas := imaging.New(b.Dx(), b.Dy(), bg)
	return imaging.Overlay(canvas, cutout, image.Pt(0, 0), 1.0)
}

// AddBorder frames img with border/2 pixels of white followed by border/2
// pixels of black. A border below 2 returns an unframed copy.
func AddBorder(img image.Image, border int) *image.NRGBA {
	half := border / 2
	if half <= 0 {
		return imaging.Clone(img)
	}

	out := pad(img, half, color.White)
	return pad(out, half, color.Black)
}

func pad(img image.Image, n int, fill color.Color) *image.NRGBA {
	b := img.Bounds()
	canvas := imaging.New(b.Dx()+2*n, b.Dy()+2*n, fill)
	return imaging.Paste(canvas, img, image.Pt(n, n))
}

// Upscale enlarges img by factor using Lanczos resampling.
func Upscale(img image.Image, factor float64) *image.NRGBA {
	if factor <= 1 {
		return imaging.Clone(img)
	}
	b := img.Bounds()
	w := int(float64(b.Dx()) * factor)
	h := int(float64(b.Dy()) * factor)
	return imaging.Resize(img, w, h, imaging.Lanczos)
}
