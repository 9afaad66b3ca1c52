// Package client talks to the background-removal service over loopback TCP.
//
// The exported surface mirrors what the rest of the application needs:
// IsReachable for a cheap liveness probe and RemoveBackground for a full
// exchange that returns nil instead of an error, so callers can fall back to
// in-process removal.
package client

import (
	"context"
	"fmt"
	"image"
	"net"
	"strconv"
	"time"

	"github.com/disintegration/imaging"
	"github.com/ironsheep/passport-rembg/internal/config"
	"github.com/ironsheep/passport-rembg/internal/logging"
	"github.com/ironsheep/passport-rembg/internal/wire"
	"go.uber.org/zap"
)

const (
	DefaultProbeTimeout    = time.Second
	DefaultExchangeTimeout = 120 * time.Second
)

type Client struct {
	Host string
	Port int

	// ProbeTimeout bounds IsReachable.
	ProbeTimeout time.Duration
	// ExchangeTimeout bounds a whole request/response exchange. It is long
	// because a cold service may still be warming up.
	ExchangeTimeout time.Duration

	Logger *zap.Logger
}

// New returns a client for the service on host:port with default timeouts.
func New(host string, port int, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		Host:            host,
		Port:            port,
		ProbeTimeout:    DefaultProbeTimeout,
		ExchangeTimeout: DefaultExchangeTimeout,
		Logger:          logger,
	}
}

// FromConfig returns a client using the configured address and timeouts.
func FromConfig(cfg *config.Config, logger *zap.Logger) *Client {
	c := New(cfg.Service.Host, cfg.Service.Port, logger)
	c.ProbeTimeout = cfg.Client.ProbeTimeout
	c.ExchangeTimeout = cfg.Client.ExchangeTimeout
	return c
}

// Addr is the host:port the client dials.
func (c *Client) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func (c *Client) logger() *zap.Logger {
	return logging.OrNop(c.Logger)
}

// IsReachable reports whether something accepts connections on the service
// port. No data is exchanged.
func (c *Client) IsReachable() bool {
	timeout := c.ProbeTimeout
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}

	conn, err := net.DialTimeout("tcp", c.Addr(), timeout)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// RemoveBackground sends img to the service and returns the RGBA cutout, or
// nil if the exchange failed for any reason.
func (c *Client) RemoveBackground(ctx context.Context, img image.Image) *image.NRGBA {
	out, err := c.Exchange(ctx, img)
	if err != nil {
		c.logger().Warn("service exchange failed", zap.String("addr", c.Addr()), zap.Error(err))
		return nil
	}
	return out
}

// Exchange performs one request/response round trip. The response must decode
// to an image of the same size as img.
func (c *Client) Exchange(ctx context.Context, img image.Image) (*image.NRGBA, error) {
	if img == nil {
		return nil, fmt.Errorf("no image to send")
	}

	timeout := c.ExchangeTimeout
	if timeout <= 0 {
		timeout = DefaultExchangeTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	payload, err := wire.EncodeImage(img)
	if err != nil {
		return nil, err
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", c.Addr())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to service: %w", err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() {
		conn.SetDeadline(time.Now())
	})
	defer stop()

	start := time.Now()
	if err := wire.WriteFrame(conn, payload); err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	resp, err := wire.ReadFrame(conn)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("failed to read response: %w", ctx.Err())
		}
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	out, err := wire.DecodeImage(resp)
	if err != nil {
		return nil, err
	}

	want, got := img.Bounds(), out.Bounds()
	if want.Dx() != got.Dx() || want.Dy() != got.Dy() {
		return nil, fmt.Errorf("unexpected response size %dx%d, want %dx%d", got.Dx(), got.Dy(), want.Dx(), want.Dy())
	}

	c.logger().Debug("service exchange complete",
		zap.Int("request_bytes", len(payload)),
		zap.Int("response_bytes", len(resp)),
		zap.Duration("took", time.Since(start)),
	)
	return imaging.Clone(out), nil
}
