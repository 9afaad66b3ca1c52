package segment

import (
	"fmt"
	"image"
	"image/draw"

	"github.com/disintegration/imaging"
)

// Refinement describes how the alpha channel of a Cutout was produced.
type Refinement int

const (
	// RefinementNone means matting was not requested; the mask is the alpha.
	RefinementNone Refinement = iota
	// RefinementMatted means alpha matting refined the mask edges.
	RefinementMatted
	// RefinementFallback means matting was requested but failed, so the mask
	// was used directly. Cutout.MattingErr holds the reason.
	RefinementFallback
)

func (r Refinement) String() string {
	switch r {
	case RefinementNone:
		return "none"
	case RefinementMatted:
		return "matted"
	case RefinementFallback:
		return "fallback"
	default:
		return fmt.Sprintf("Refinement(%d)", int(r))
	}
}

// Options controls the cutout stage.
type Options struct {
	// AlphaMatting refines mask edges into a soft alpha.
	AlphaMatting bool
	// PostProcess cleans the combined mask (open, blur, threshold) before use.
	PostProcess bool
}

// DefaultOptions enables both refinement stages.
func DefaultOptions() Options {
	return Options{AlphaMatting: true, PostProcess: true}
}

// Cutout is the result of CombineAndCutout.
type Cutout struct {
	// Image is the source with the final alpha applied. Same size as the source.
	Image *image.NRGBA
	// Alpha is the mask that became the alpha channel.
	Alpha      *image.Gray
	Refinement Refinement
	MattingErr error
}

// CombineMasks merges the three masks into max(min(a, b), cloth) at the size
// of a. b and cloth are resampled with Lanczos when their size differs.
// cloth may be nil.
func CombineMasks(a, b, cloth *image.Gray) (*image.Gray, error) {
	if a == nil || b == nil {
		return nil, ErrMissingInput
	}

	w, h := a.Bounds().Dx(), a.Bounds().Dy()
	a = fitMask(a, w, h)
	b = fitMask(b, w, h)

	out := image.NewGray(image.Rect(0, 0, w, h))
	for i := range out.Pix {
		out.Pix[i] = min(a.Pix[i], b.Pix[i])
	}

	if cloth != nil {
		cloth = fitMask(cloth, w, h)
		for i := range out.Pix {
			out.Pix[i] = max(out.Pix[i], cloth.Pix[i])
		}
	}
	return out, nil
}

// CombineAndCutout applies the combined mask of a, b and cloth to img as an
// alpha channel. The result always has the dimensions of img.
//
// ErrMissingInput is returned when img, a or b is nil. A matting failure is
// not an error: the naive cutout is returned with Refinement set to
// RefinementFallback.
func CombineAndCutout(img image.Image, a, b, cloth *image.Gray, opts Options) (Cutout, error) {
	if img == nil || a == nil || b == nil {
		return Cutout{}, ErrMissingInput
	}

	mask, err := CombineMasks(a, b, cloth)
	if err != nil {
		return Cutout{}, err
	}

	if opts.PostProcess {
		mask = postProcess(mask)
	}

	src := imaging.Clone(img)
	w, h := src.Bounds().Dx(), src.Bounds().Dy()
	mask = fitMask(mask, w, h)

	result := Cutout{Alpha: mask, Refinement: RefinementNone}
	if opts.AlphaMatting {
		alpha, err := alphaMatte(src, mask)
		if err != nil {
			result.Refinement = RefinementFallback
			result.MattingErr = err
		} else {
			result.Alpha = alpha
			result.Refinement = RefinementMatted
		}
	}

	result.Image = applyAlpha(src, result.Alpha)
	return result, nil
}

// applyAlpha replaces the alpha channel of src (origin-anchored) with alpha.
func applyAlpha(src *image.NRGBA, alpha *image.Gray) *image.NRGBA {
	for i, a := range alpha.Pix {
		src.Pix[i*4+3] = a
	}
	return src
}

// fitMask returns m as an origin-anchored w×h mask, resampling with Lanczos
// when the size differs. m is returned unchanged when it already fits.
func fitMask(m *image.Gray, w, h int) *image.Gray {
	b := m.Bounds()
	if b.Dx() == w && b.Dy() == h {
		if b.Min == (image.Point{}) && m.Stride == w {
			return m
		}
		out := image.NewGray(image.Rect(0, 0, w, h))
		draw.Draw(out, out.Bounds(), m, b.Min, draw.Src)
		return out
	}

	resized := imaging.Resize(m, w, h, imaging.Lanczos)
	out := image.NewGray(image.Rect(0, 0, w, h))
	for i := range out.Pix {
		out.Pix[i] = resized.Pix[i*4]
	}
	return out
}
