package segment

import (
	"fmt"
	"image"
)

// ModelID identifies one of the three segmentation models.
type ModelID int

const (
	Portrait ModelID = iota
	General
	Clothing
)

// AllModels lists every model in warm-up order.
var AllModels = []ModelID{Portrait, General, Clothing}

func (id ModelID) String() string {
	switch id {
	case Portrait:
		return "portrait"
	case General:
		return "general"
	case Clothing:
		return "clothing"
	default:
		return fmt.Sprintf("ModelID(%d)", int(id))
	}
}

// ModelName is the upstream model name, also used for the weights file.
func (id ModelID) ModelName() string {
	switch id {
	case Portrait:
		return "u2net_human_seg"
	case General:
		return "u2net"
	case Clothing:
		return "u2net_cloth_seg"
	default:
		return id.String()
	}
}

// FileName is the ONNX weights file for the model.
func (id ModelID) FileName() string {
	return id.ModelName() + ".onnx"
}

func (id ModelID) valid() bool {
	return id >= Portrait && id <= Clothing
}

// Model produces a foreground mask for an image. The returned mask may be any
// size; Engine scales it back to the input dimensions.
type Model interface {
	Predict(img image.Image) (*image.Gray, error)
}

// Loader constructs a model on first use.
type Loader func(id ModelID) (Model, error)
