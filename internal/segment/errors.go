package segment

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingInput is returned when the image or one of the two body masks is nil.
	ErrMissingInput = errors.New("segment: missing image or required mask")

	// ErrMattingFailed reports that alpha matting could not run. CombineAndCutout
	// never returns it; it is recorded in Cutout.MattingErr alongside the fallback.
	ErrMattingFailed = errors.New("segment: alpha matting failed")
)

// InferenceError wraps a model load or prediction failure with the model it came from.
type InferenceError struct {
	Model ModelID
	Err   error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("%s inference failed: %v", e.Model.ModelName(), e.Err)
}

func (e *InferenceError) Unwrap() error {
	return e.Err
}
