package imaging

import (
	"image"
	"image/color"
	"testing"
)

// createCutout creates a transparent image with an opaque red square in the middle
func createCutout(width, height int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := height / 4; y < height*3/4; y++ {
		for x := width / 4; x < width*3/4; x++ {
			img.SetNRGBA(x, y, color.NRGBA{255, 0, 0, 255})
		}
	}
	return img
}

func TestApplyBackground(t *testing.T) {
	cutout := createCutout(40, 40)
	bg := color.NRGBA{0, 0, 255, 255}

	result := ApplyBackground(cutout, bg)

	if result.Bounds() != cutout.Bounds() {
		t.Fatalf("bounds changed: %v", result.Bounds())
	}
	if c := result.NRGBAAt(0, 0); c != bg {
		t.Errorf("transparent area: got %v, want %v", c, bg)
	}
	if c := result.NRGBAAt(20, 20); c != (color.NRGBA{255, 0, 0, 255}) {
		t.Errorf("subject: got %v, want red", c)
	}
	if cutout.NRGBAAt(0, 0).A != 0 {
		t.Error("ApplyBackground must not modify the cut-out")
	}
}

func TestApplyBackground_PartialAlpha(t *testing.T) {
	cutout := createInMemoryImage(4, 4, color.NRGBA{255, 255, 255, 128})

	result := ApplyBackground(cutout, color.NRGBA{0, 0, 0, 255})

	c := result.NRGBAAt(1, 1)
	if c.A != 255 {
		t.Errorf("expected opaque result, got alpha %d", c.A)
	}
	if c.R < 120 || c.R > 136 {
		t.Errorf("expected a mid-grey blend, got %v", c)
	}
}

func TestAddBorder(t *testing.T) {
	img := createInMemoryImage(30, 40, color.NRGBA{255, 0, 0, 255})

	result := AddBorder(img, 10)

	if result.Bounds().Dx() != 40 || result.Bounds().Dy() != 50 {
		t.Fatalf("expected 40x50, got %dx%d", result.Bounds().Dx(), result.Bounds().Dy())
	}

	tests := []struct {
		name string
		x, y int
		want color.NRGBA
	}{
		{"outer black", 0, 0, color.NRGBA{0, 0, 0, 255}},
		{"outer black inner edge", 4, 25, color.NRGBA{0, 0, 0, 255}},
		{"inner white", 5, 25, color.NRGBA{255, 255, 255, 255}},
		{"inner white inner edge", 9, 25, color.NRGBA{255, 255, 255, 255}},
		{"photo", 10, 25, color.NRGBA{255, 0, 0, 255}},
		{"bottom right black", 39, 49, color.NRGBA{0, 0, 0, 255}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if c := result.NRGBAAt(tt.x, tt.y); c != tt.want {
				t.Errorf("pixel (%d,%d): got %v, want %v", tt.x, tt.y, c, tt.want)
			}
		})
	}
}

func TestAddBorder_None(t *testing.T) {
	img := createInMemoryImage(10, 10, color.White)

	for _, border := range []int{0, 1, -4} {
		result := AddBorder(img, border)
		if result.Bounds() != img.Bounds() {
			t.Errorf("border %d: expected unchanged size, got %v", border, result.Bounds())
		}
	}
}

func TestUpscale(t *testing.T) {
	img := createInMemoryImage(30, 40, color.NRGBA{50, 100, 150, 255})

	result := Upscale(img, 2)
	if result.Bounds().Dx() != 60 || result.Bounds().Dy() != 80 {
		t.Errorf("expected 60x80, got %v", result.Bounds())
	}

	c := result.NRGBAAt(30, 40)
	if c.R < 48 || c.R > 52 || c.B < 148 || c.B > 152 {
		t.Errorf("solid colour should survive resampling, got %v", c)
	}

	for _, factor := range []float64{1, 0.5, 0} {
		if got := Upscale(img, factor).Bounds(); got != img.Bounds() {
			t.Errorf("factor %v: expected unchanged size, got %v", factor, got)
		}
	}
}

func TestFinish_Apply(t *testing.T) {
	cutout := createCutout(20, 20)

	t.Run("default white background", func(t *testing.T) {
		result := Finish{}.Apply(cutout)
		if c := result.NRGBAAt(0, 0); c != DefaultBackground {
			t.Errorf("got %v, want white", c)
		}
	})

	t.Run("transparent", func(t *testing.T) {
		result := Finish{Transparent: true, Background: color.Black}.Apply(cutout)
		if result.NRGBAAt(0, 0).A != 0 {
			t.Error("transparent finish must keep alpha")
		}
	})

	t.Run("border is not upscaled", func(t *testing.T) {
		result := Finish{Background: color.White, Upscale: 2, Border: 10}.Apply(cutout)
		if result.Bounds().Dx() != 50 || result.Bounds().Dy() != 50 {
			t.Errorf("expected 50x50, got %v", result.Bounds())
		}
		if c := result.NRGBAAt(0, 0); c != (color.NRGBA{0, 0, 0, 255}) {
			t.Errorf("outer edge: got %v, want black", c)
		}
	})
}
