package main

import (
	"context"

	"github.com/ironsheep/passport-rembg/internal/config"
	"github.com/ironsheep/passport-rembg/internal/segment"
	"github.com/ironsheep/passport-rembg/internal/service"
	"go.uber.org/zap"
)

func newEngine(cfg *config.Config, logger *zap.Logger) *segment.Engine {
	loader := segment.NewONNXLoader(segment.ONNXConfig{
		ModelDir:        cfg.Models.Dir,
		DownloadBaseURL: cfg.Models.DownloadBaseURL,
		RuntimeLibrary:  cfg.Models.RuntimeLibrary,
		IntraOpThreads:  cfg.Models.IntraOpNumThreads,
		Logger:          logger,
	})

	return segment.NewEngine(loader, segment.Options{
		AlphaMatting: cfg.Matting.Enabled,
		PostProcess:  cfg.Matting.PostProcess,
	}, logger)
}

// runService binds the port first so launchers see it while models warm up.
func runService(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	engine := newEngine(cfg, logger)
	defer engine.Close()

	svc := service.New(service.OptionsFromConfig(cfg, Version), engine, logger)
	if err := svc.Listen(); err != nil {
		return err
	}
	return svc.Run(ctx)
}
