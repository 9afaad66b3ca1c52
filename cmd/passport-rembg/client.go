package main

import (
	"context"
	"fmt"
	"image"

	"github.com/ironsheep/passport-rembg/internal/client"
	"github.com/ironsheep/passport-rembg/internal/config"
	"github.com/ironsheep/passport-rembg/internal/imaging"
	"github.com/ironsheep/passport-rembg/internal/launcher"
	"go.uber.org/zap"
)

func runClient(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts *options, input, output string) error {
	finish, err := finishFromOptions(opts)
	if err != nil {
		return err
	}
	logger.Debug("finishing", finishFields(finish)...)

	if info, err := imaging.Inspect(input); err == nil {
		logger.Debug("input image",
			zap.String("path", input),
			zap.String("format", info.Format),
			zap.Int("width", info.Width),
			zap.Int("height", info.Height),
		)
	}

	img, err := imaging.Load(input)
	if err != nil {
		return err
	}
	if img, err = cropInput(img, opts); err != nil {
		return err
	}

	engine := newEngine(cfg, logger)
	defer engine.Close()

	var remover client.Remover = client.LocalRemover{Engine: engine}
	if !opts.local {
		c := client.FromConfig(cfg, logger)
		if err := launcher.FromConfig(cfg, c, logger).Ensure(ctx); err != nil {
			logger.Warn("service unavailable, removing background in-process", zap.Error(err))
		}
		remover = client.FallbackRemover{
			Primary:  client.ServiceRemover{Client: c},
			Fallback: remover,
			Logger:   logger,
		}
	}

	cutout, err := remover.Remove(ctx, img)
	if err != nil {
		return err
	}

	if err := imaging.Save(output, finish.Apply(cutout)); err != nil {
		return err
	}
	logger.Info("photo written", zap.String("path", output))
	return nil
}

func finishFromOptions(opts *options) (imaging.Finish, error) {
	f := imaging.Finish{
		Transparent: opts.transparent,
		Upscale:     opts.upscale,
		Border:      opts.border,
	}
	if opts.border < 0 {
		return f, fmt.Errorf("--border must not be negative")
	}
	if !opts.transparent {
		bg, err := imaging.ParseHexColor(opts.background)
		if err != nil {
			return f, fmt.Errorf("--bg: %w", err)
		}
		f.Background = bg
	}
	return f, nil
}

// finishFields describes f for logging.
func finishFields(f imaging.Finish) []zap.Field {
	bg := "transparent"
	if !f.Transparent {
		bg = imaging.HexString(f.Background)
	}
	return []zap.Field{
		zap.String("background", bg),
		zap.Float64("upscale", f.Upscale),
		zap.Int("border", f.Border),
	}
}

func cropInput(img image.Image, opts *options) (image.Image, error) {
	if opts.crop != "" {
		box, err := imaging.ParseRect(opts.crop)
		if err != nil {
			return nil, err
		}
		img = imaging.Crop(img, box)
	}
	if opts.aspect != "" {
		w, h, err := imaging.ParseAspect(opts.aspect)
		if err != nil {
			return nil, err
		}
		if img, err = imaging.CropAspect(img, w, h); err != nil {
			return nil, err
		}
	}
	return img, nil
}
