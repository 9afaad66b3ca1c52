package wire

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF format decoder
	_ "image/jpeg" // Register JPEG format decoder
	"image/png"
	"io"

	_ "golang.org/x/image/webp" // Register WebP format decoder
)

// MaxPixels bounds width*height of a decoded payload. A few kilobytes of
// compressed data can otherwise declare a canvas large enough to exhaust memory.
const MaxPixels = 89_478_485

// ErrImageTooLarge is returned when a payload declares more than MaxPixels.
var ErrImageTooLarge = errors.New("image dimensions exceed limit")

var encoder = png.Encoder{CompressionLevel: png.BestSpeed}

// EncodeImage encodes img as PNG, the lossless container used on the wire.
func EncodeImage(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := encoder.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeImage decodes a PNG, JPEG, GIF or WebP payload. The header is checked
// against MaxPixels before any pixel buffer is allocated.
func DecodeImage(b []byte) (image.Image, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("failed to decode image: invalid dimensions %dx%d", cfg.Width, cfg.Height)
	}
	if int64(cfg.Width)*int64(cfg.Height) > MaxPixels {
		return nil, fmt.Errorf("%w: %dx%d", ErrImageTooLarge, cfg.Width, cfg.Height)
	}

	img, _, err := image.Decode(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}

// WriteImage encodes img and writes it as one frame.
func WriteImage(w io.Writer, img image.Image) error {
	payload, err := EncodeImage(img)
	if err != nil {
		return err
	}
	return WriteFrame(w, payload)
}

// ReadImage reads one frame and decodes its payload.
func ReadImage(r io.Reader) (image.Image, error) {
	payload, err := ReadFrame(r)
	if err != nil {
		return nil, err
	}
	return DecodeImage(payload)
}
