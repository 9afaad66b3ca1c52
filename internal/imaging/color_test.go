package imaging

import (
	"image"
	"image/color"
	"testing"
)

// createInMemoryImage creates an image in memory without saving to disk
func createInMemoryImage(width, height int, c color.Color) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

// createPatternImage creates an image with four colored quadrants
func createPatternImage(width, height int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			switch {
			case x < width/2 && y < height/2:
				img.Set(x, y, color.NRGBA{255, 0, 0, 255}) // Red
			case x >= width/2 && y < height/2:
				img.Set(x, y, color.NRGBA{0, 255, 0, 255}) // Green
			case x < width/2 && y >= height/2:
				img.Set(x, y, color.NRGBA{0, 0, 255, 255}) // Blue
			default:
				img.Set(x, y, color.NRGBA{255, 255, 0, 255}) // Yellow
			}
		}
	}
	return img
}

func TestParseHexColor(t *testing.T) {
	tests := []struct {
		input   string
		want    color.NRGBA
		wantErr bool
	}{
		{"#FFFFFF", color.NRGBA{255, 255, 255, 255}, false},
		{"#ff0000", color.NRGBA{255, 0, 0, 255}, false},
		{"00FF00", color.NRGBA{0, 255, 0, 255}, false},
		{"#0000ff", color.NRGBA{0, 0, 255, 255}, false},
		{"#1a2B3c", color.NRGBA{0x1a, 0x2b, 0x3c, 255}, false},
		{"#fff", color.NRGBA{255, 255, 255, 255}, false},
		{"  #000000 ", color.NRGBA{0, 0, 0, 255}, false},
		{"", color.NRGBA{}, true},
		{"#GGGGGG", color.NRGBA{}, true},
		{"#12345", color.NRGBA{}, true},
		{"blue", color.NRGBA{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseHexColor(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error for %q, got %v", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseHexColor(%q) failed: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseHexColor(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestHexString(t *testing.T) {
	tests := []struct {
		c    color.Color
		want string
	}{
		{color.NRGBA{255, 255, 255, 255}, "#FFFFFF"},
		{color.NRGBA{0x1a, 0x2b, 0x3c, 255}, "#1A2B3C"},
		{color.NRGBA{255, 0, 0, 0}, "#FF0000"}, // alpha is dropped
		{color.Black, "#000000"},
	}

	for _, tt := range tests {
		if got := HexString(tt.c); got != tt.want {
			t.Errorf("HexString(%v) = %s, want %s", tt.c, got, tt.want)
		}
	}
}

func TestHexString_RoundTrip(t *testing.T) {
	for _, hex := range []string{"#FFFFFF", "#C0FFEE", "#00A8FF"} {
		c, err := ParseHexColor(hex)
		if err != nil {
			t.Fatalf("ParseHexColor(%s) failed: %v", hex, err)
		}
		if got := HexString(c); got != hex {
			t.Errorf("round trip of %s gave %s", hex, got)
		}
	}
}
