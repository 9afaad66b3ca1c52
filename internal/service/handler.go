package service

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/ironsheep/passport-rembg/internal/segment"
	"github.com/ironsheep/passport-rembg/internal/wire"
	"github.com/segmentio/ksuid"
	"go.uber.org/zap"
)

// handle serves one connection: one request frame in, one response frame out.
// Any error closes the connection without writing anything.
func (s *ServiceState) handle(conn net.Conn) {
	defer conn.Close()

	log := s.logger.With(
		zap.String("request_id", ksuid.New().String()),
		zap.String("remote", conn.RemoteAddr().String()),
	)
	start := time.Now()

	if s.opts.ExchangeTimeout > 0 {
		if err := conn.SetDeadline(start.Add(s.opts.ExchangeTimeout)); err != nil {
			log.Warn("failed to set deadline", zap.Error(err))
		}
	}

	cutout, err := s.process(conn)
	if err != nil {
		s.failed.Add(1)
		log.Warn("request failed", zap.Error(err), zap.Duration("took", time.Since(start)))
		return
	}

	s.served.Add(1)
	b := cutout.Image.Bounds()
	log.Info("request served",
		zap.Int("width", b.Dx()),
		zap.Int("height", b.Dy()),
		zap.Stringer("refinement", cutout.Refinement),
		zap.Duration("took", time.Since(start)),
	)
	if cutout.MattingErr != nil {
		log.Debug("alpha matting fell back to mask", zap.Error(cutout.MattingErr))
	}
}

func (s *ServiceState) process(conn net.Conn) (segment.Cutout, error) {
	payload, err := wire.ReadFrame(conn)
	if err != nil {
		return segment.Cutout{}, fmt.Errorf("failed to read request: %w", err)
	}

	img, err := wire.DecodeImage(payload)
	if err != nil {
		return segment.Cutout{}, err
	}

	cutout, err := s.engine.RemoveBackground(context.Background(), img)
	if err != nil {
		return segment.Cutout{}, fmt.Errorf("failed to remove background: %w", err)
	}

	// Encode fully before writing so a failure never leaves a partial frame.
	resp, err := wire.EncodeImage(cutout.Image)
	if err != nil {
		return segment.Cutout{}, err
	}
	if err := wire.WriteFrame(conn, resp); err != nil {
		return segment.Cutout{}, fmt.Errorf("failed to write response: %w", err)
	}
	return cutout, nil
}
