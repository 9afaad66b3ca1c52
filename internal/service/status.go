package service

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// HealthStatus is the body of GET /health.
type HealthStatus struct {
	State         string   `json:"state"`
	UptimeSeconds int64    `json:"uptime_seconds"`
	Served        int64    `json:"served"`
	Failed        int64    `json:"failed"`
	InFlight      int64    `json:"in_flight"`
	Workers       int      `json:"workers"`
	PID           int      `json:"pid"`
	Models        []string `json:"models"`
}

// Health returns a snapshot of the service for the status endpoint.
func (s *ServiceState) Health() HealthStatus {
	stats := s.Stats()
	models := []string{}
	for _, id := range s.engine.Loaded() {
		models = append(models, id.ModelName())
	}

	return HealthStatus{
		State:         s.State().String(),
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
		Served:        stats.Served,
		Failed:        stats.Failed,
		InFlight:      stats.InFlight,
		Workers:       s.opts.Workers,
		PID:           os.Getpid(),
		Models:        models,
	}
}

// StatusHandler returns the gin router serving /health and /version.
func (s *ServiceState) StatusHandler() http.Handler {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(requestLogger(s.logger), gin.Recovery())

	r.GET("/health", func(c *gin.Context) {
		h := s.Health()
		code := http.StatusOK
		if h.State != StateServing.String() {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, h)
	})
	r.GET("/version", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"version": s.opts.Version})
	})
	return r
}

// startStatus serves StatusHandler on opts.StatusAddr. It returns nil when the
// endpoint is disabled.
func (s *ServiceState) startStatus() (*http.Server, error) {
	if s.opts.StatusAddr == "" {
		return nil, nil
	}

	ln, err := net.Listen("tcp", s.opts.StatusAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", s.opts.StatusAddr, err)
	}

	srv := &http.Server{
		Handler:           s.StatusHandler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Warn("status endpoint stopped", zap.Error(err))
		}
	}()

	s.logger.Info("status endpoint listening", zap.String("addr", ln.Addr().String()))
	return srv, nil
}

// requestLogger logs each status request through zap.
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		logger.Debug("status request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.String("ip", c.ClientIP()),
			zap.Duration("cost", time.Since(start)),
		)
	}
}
