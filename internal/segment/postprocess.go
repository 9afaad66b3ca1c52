package segment

import (
	"image"

	"github.com/anthonynsimon/bild/blur"
	"github.com/anthonynsimon/bild/effect"
	bildsegment "github.com/anthonynsimon/bild/segment"
)

const (
	openRadius   = 1 // 3×3 structuring element
	smoothRadius = 2 // sigma ≈ 2
	binaryLevel  = 127
)

// postProcess removes speckles with a morphological open, smooths the edge
// with a Gaussian blur and re-binarises the result.
func postProcess(mask *image.Gray) *image.Gray {
	opened := effect.Dilate(effect.Erode(mask, openRadius), openRadius)
	smoothed := blur.Gaussian(opened, smoothRadius)
	return bildsegment.Threshold(smoothed, binaryLevel)
}
