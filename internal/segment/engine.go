package segment

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"io"
	"sync"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// warmSize is the edge length of the throwaway image used to force model loading.
const warmSize = 32

// Engine hosts the three models and runs the full removal pipeline.
//
// Each model slot has its own mutex so a slow first load of one model does not
// block requests that only need the others.
type Engine struct {
	loader Loader
	opts   Options
	logger *zap.Logger

	mu     [3]sync.Mutex
	models [3]Model
}

// NewEngine creates an Engine. No model is loaded until first use or Warm.
func NewEngine(loader Loader, opts Options, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		loader: loader,
		opts:   opts,
		logger: logger,
	}
}

func (e *Engine) model(id ModelID) (Model, error) {
	e.mu[id].Lock()
	defer e.mu[id].Unlock()

	if m := e.models[id]; m != nil {
		return m, nil
	}

	m, err := e.loader(id)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, fmt.Errorf("loader returned no model")
	}
	e.models[id] = m
	e.logger.Info("model loaded", zap.String("model", id.ModelName()))
	return m, nil
}

// Loaded reports which models are currently cached.
func (e *Engine) Loaded() []ModelID {
	var ids []ModelID
	for _, id := range AllModels {
		e.mu[id].Lock()
		if e.models[id] != nil {
			ids = append(ids, id)
		}
		e.mu[id].Unlock()
	}
	return ids
}

// InferMask runs one model over img and returns a mask with the same
// dimensions as img, anchored at the origin.
func (e *Engine) InferMask(id ModelID, img image.Image) (*image.Gray, error) {
	if !id.valid() {
		return nil, &InferenceError{Model: id, Err: fmt.Errorf("unknown model")}
	}
	if img == nil {
		return nil, &InferenceError{Model: id, Err: ErrMissingInput}
	}

	m, err := e.model(id)
	if err != nil {
		return nil, &InferenceError{Model: id, Err: fmt.Errorf("failed to load model: %w", err)}
	}

	mask, err := m.Predict(img)
	if err != nil {
		return nil, &InferenceError{Model: id, Err: err}
	}
	if mask == nil || mask.Bounds().Empty() {
		return nil, &InferenceError{Model: id, Err: fmt.Errorf("model returned an empty mask")}
	}

	b := img.Bounds()
	return fitMask(mask, b.Dx(), b.Dy()), nil
}

// Warm loads every model by running it once on a small white image.
// It stops at the first failure.
func (e *Engine) Warm(ctx context.Context) error {
	dummy := imaging.New(warmSize, warmSize, color.White)

	for _, id := range AllModels {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := e.InferMask(id, dummy); err != nil {
			return err
		}
	}
	return nil
}

// RemoveBackground runs the three models concurrently and combines their masks.
//
// A Portrait or General failure fails the request with an *InferenceError.
// A Clothing failure only narrows the result to min(portrait, general).
func (e *Engine) RemoveBackground(ctx context.Context, img image.Image) (Cutout, error) {
	if img == nil {
		return Cutout{}, ErrMissingInput
	}
	if err := ctx.Err(); err != nil {
		return Cutout{}, err
	}

	src := imaging.Clone(img)

	var (
		masks    [3]*image.Gray
		clothErr error
		g        errgroup.Group
	)
	for _, id := range AllModels {
		g.Go(func() error {
			m, err := e.InferMask(id, src)
			if err != nil {
				if id == Clothing {
					clothErr = err
					return nil
				}
				return err
			}
			masks[id] = m
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Cutout{}, err
	}

	if clothErr != nil {
		e.logger.Warn("clothing mask unavailable, using body masks only", zap.Error(clothErr))
	}

	return CombineAndCutout(src, masks[Portrait], masks[General], masks[Clothing], e.opts)
}

// Close releases every loaded model that holds native resources.
func (e *Engine) Close() error {
	var firstErr error
	for _, id := range AllModels {
		e.mu[id].Lock()
		if c, ok := e.models[id].(io.Closer); ok {
			if err := c.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		e.models[id] = nil
		e.mu[id].Unlock()
	}
	return firstErr
}
