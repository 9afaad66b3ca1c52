package client

import (
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/ironsheep/passport-rembg/internal/segment"
	"go.uber.org/zap"
)

// Remover removes the background of an image.
type Remover interface {
	Remove(ctx context.Context, img image.Image) (*image.NRGBA, error)
}

// ServiceRemover removes backgrounds through the running service.
type ServiceRemover struct {
	Client *Client
}

func (r ServiceRemover) Remove(ctx context.Context, img image.Image) (*image.NRGBA, error) {
	return r.Client.Exchange(ctx, img)
}

// LocalEngine is the in-process pipeline used when the service is unavailable.
type LocalEngine interface {
	RemoveBackground(ctx context.Context, img image.Image) (segment.Cutout, error)
}

// LocalRemover runs the segmentation pipeline in this process.
type LocalRemover struct {
	Engine LocalEngine
}

func (r LocalRemover) Remove(ctx context.Context, img image.Image) (*image.NRGBA, error) {
	if r.Engine == nil {
		return nil, errors.New("no local engine configured")
	}
	cutout, err := r.Engine.RemoveBackground(ctx, img)
	if err != nil {
		return nil, fmt.Errorf("failed to remove background locally: %w", err)
	}
	return cutout.Image, nil
}

// FallbackRemover tries Primary and uses Fallback when it fails.
type FallbackRemover struct {
	Primary  Remover
	Fallback Remover
	Logger   *zap.Logger
}

func (r FallbackRemover) Remove(ctx context.Context, img image.Image) (*image.NRGBA, error) {
	out, err := r.Primary.Remove(ctx, img)
	if err == nil && out != nil {
		return out, nil
	}

	if r.Logger != nil {
		r.Logger.Info("falling back to in-process background removal", zap.Error(err))
	}
	if r.Fallback == nil {
		if err == nil {
			err = errors.New("primary remover returned no image")
		}
		return nil, err
	}
	return r.Fallback.Remove(ctx, img)
}
