// Package logging builds the zap loggers shared by the service and client modes.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Modes accepted by New.
const (
	ModeRelease = "release"
	ModeDebug   = "debug"
)

// New returns a production JSON logger for ModeRelease and a development console
// logger for anything else. Output goes to stderr so client-mode stdout stays clean.
func New(mode string) (*zap.Logger, error) {
	var cfg zap.Config

	if mode == ModeRelease {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}

	return cfg.Build()
}

// OrNop returns l, or a no-op logger when l is nil.
func OrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}
