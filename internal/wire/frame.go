package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// MaxFrameSize is the largest payload accepted in either direction (50 MiB).
const MaxFrameSize = 50 << 20

const headerSize = 4

var (
	ErrEmptyFrame    = errors.New("wire: empty frame")
	ErrFrameTooLarge = errors.New("wire: frame exceeds maximum size")
	// ErrShortFrame wraps io.ErrUnexpectedEOF when the peer closed mid-frame.
	ErrShortFrame = errors.New("wire: short frame")
)

// checkLength validates a declared payload length.
func checkLength(n uint64) error {
	if n == 0 {
		return ErrEmptyFrame
	}
	if n > MaxFrameSize {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, n)
	}
	return nil
}

// WriteFrame writes payload as a single frame. Invalid payloads are rejected
// before anything reaches w.
func WriteFrame(w io.Writer, payload []byte) error {
	if err := checkLength(uint64(len(payload))); err != nil {
		return err
	}

	buf := make([]byte, headerSize+len(payload))
	binary.BigEndian.PutUint32(buf, uint32(len(payload)))
	copy(buf[headerSize:], payload)

	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}
	return nil
}

// ReadFrame reads one frame. The declared length is validated before any
// payload memory is allocated.
func ReadFrame(r io.Reader) ([]byte, error) {
	var header [headerSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, shortRead("header", err)
	}

	n := binary.BigEndian.Uint32(header[:])
	if err := checkLength(uint64(n)); err != nil {
		return nil, err
	}

	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, shortRead("payload", err)
	}
	return payload, nil
}

func shortRead(part string, err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: %s: %w", ErrShortFrame, part, io.ErrUnexpectedEOF)
	}
	return fmt.Errorf("failed to read frame %s: %w", part, err)
}
