package service

import (
	"context"
	"errors"
	"fmt"
	"image"
	"net"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gammazero/workerpool"
	"github.com/ironsheep/passport-rembg/internal/config"
	"github.com/ironsheep/passport-rembg/internal/logging"
	"github.com/ironsheep/passport-rembg/internal/segment"
	"go.uber.org/zap"
)

// Engine is the segmentation backend the service drives.
type Engine interface {
	Warm(ctx context.Context) error
	RemoveBackground(ctx context.Context, img image.Image) (segment.Cutout, error)
	Loaded() []segment.ModelID
}

// Options configures a ServiceState.
type Options struct {
	Host    string
	Port    int // 0 picks a free port
	Workers int

	// ExchangeTimeout bounds the whole read-infer-write cycle of a connection.
	ExchangeTimeout time.Duration

	PIDPath   string
	ErrorPath string
	ModelDir  string

	// StatusAddr enables the HTTP status endpoint when non-empty.
	StatusAddr           string
	HousekeepingSchedule string
	Version              string
}

// OptionsFromConfig maps the loaded configuration onto service options.
func OptionsFromConfig(cfg *config.Config, version string) Options {
	return Options{
		Host:                 cfg.Service.Host,
		Port:                 cfg.Service.Port,
		Workers:              cfg.Service.Workers,
		ExchangeTimeout:      cfg.Client.ExchangeTimeout,
		PIDPath:              cfg.PIDPath(),
		ErrorPath:            cfg.ErrorPath(),
		ModelDir:             cfg.Models.Dir,
		StatusAddr:           cfg.Status.Addr,
		HousekeepingSchedule: cfg.Housekeeping.Schedule,
		Version:              version,
	}
}

// ServiceState is the process-wide handle of a running service. Create it
// once with New and drive it with Listen, Warm and Serve (or Run).
type ServiceState struct {
	opts   Options
	engine Engine
	logger *zap.Logger

	state    atomic.Int32
	started  time.Time
	listener net.Listener
	// slots holds one token per connection currently owned by a worker.
	slots chan struct{}

	served   atomic.Int64
	failed   atomic.Int64
	inFlight atomic.Int64

	closeOnce sync.Once
}

// New creates a ServiceState in the starting state. Nothing is bound yet.
func New(opts Options, engine Engine, logger *zap.Logger) *ServiceState {
	logger = logging.OrNop(logger)
	if opts.Host == "" {
		opts.Host = "127.0.0.1"
	}
	if opts.Workers < 1 {
		opts.Workers = 2
	}

	s := &ServiceState{
		opts:    opts,
		engine:  engine,
		logger:  logger,
		started: time.Now(),
		slots:   make(chan struct{}, opts.Workers),
	}
	s.state.Store(int32(StateStarting))
	return s
}

// State returns the current lifecycle state.
func (s *ServiceState) State() State {
	return State(s.state.Load())
}

func (s *ServiceState) setState(st State) {
	old := State(s.state.Swap(int32(st)))
	if old != st {
		s.logger.Info("service state changed", zap.Stringer("from", old), zap.Stringer("to", st))
	}
}

// Listen binds the service port and records the PID file. It must be called
// before Warm so that clients can see the port while models load.
func (s *ServiceState) Listen() error {
	if s.listener != nil {
		return fmt.Errorf("service already listening on %s", s.listener.Addr())
	}

	s.clearDiagnostic()

	addr := net.JoinHostPort(s.opts.Host, strconv.Itoa(s.opts.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.listener = ln

	if err := s.writePID(); err != nil {
		s.logger.Warn("failed to write pid file", zap.String("path", s.opts.PIDPath), zap.Error(err))
	}

	s.logger.Info("service listening", zap.String("addr", ln.Addr().String()), zap.Int("pid", os.Getpid()))
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *ServiceState) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Port returns the bound TCP port, or 0 before Listen.
func (s *ServiceState) Port() int {
	if tcp, ok := s.Addr().(*net.TCPAddr); ok {
		return tcp.Port
	}
	return 0
}

// Warm loads every model. On failure it writes the diagnostic file, removes
// the PID file and releases the port before returning the error.
func (s *ServiceState) Warm(ctx context.Context) error {
	s.setState(StateWarming)
	start := time.Now()

	if err := s.engine.Warm(ctx); err != nil {
		s.logger.Error("model warm-up failed", zap.Error(err))
		if werr := s.writeDiagnostic(err); werr != nil {
			s.logger.Error("failed to write diagnostic file", zap.String("path", s.opts.ErrorPath), zap.Error(werr))
		}
		s.shutdownListener()
		s.removePID()
		return fmt.Errorf("failed to warm models: %w", err)
	}

	s.logger.Info("models warm", zap.Duration("took", time.Since(start)))
	return nil
}

// Serve runs the accept loop until ctx is cancelled, then waits for in-flight
// requests to finish and removes the PID file.
//
// A worker slot is taken before each Accept, so at most Workers connections
// are accepted at once and the rest wait in the listen backlog.
func (s *ServiceState) Serve(ctx context.Context) error {
	if s.listener == nil {
		return fmt.Errorf("service is not listening")
	}

	pool := workerpool.New(s.opts.Workers)
	s.setState(StateServing)

	stop := context.AfterFunc(ctx, func() {
		s.setState(StateStopping)
		s.shutdownListener()
	})
	defer stop()

	var serveErr error
	for {
		select {
		case s.slots <- struct{}{}:
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			break
		}

		conn, err := s.listener.Accept()
		if err != nil {
			<-s.slots
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			s.logger.Warn("accept failed", zap.Error(err))
			time.Sleep(50 * time.Millisecond)
			continue
		}

		s.inFlight.Add(1)
		pool.Submit(func() {
			defer func() {
				s.inFlight.Add(-1)
				<-s.slots
			}()
			s.handle(conn)
		})
	}

	if ctx.Err() == nil {
		serveErr = fmt.Errorf("listener closed unexpectedly")
	}

	s.setState(StateStopping)
	s.shutdownListener()
	pool.StopWait()
	s.removePID()

	s.logger.Info("service stopped",
		zap.Int64("served", s.served.Load()),
		zap.Int64("failed", s.failed.Load()),
	)
	return serveErr
}

// Run starts the optional status endpoint, warms the models, starts
// housekeeping, then serves until ctx is cancelled. Listen must have been
// called. The status endpoint answers 503 until warm-up completes.
func (s *ServiceState) Run(ctx context.Context) error {
	status, err := s.startStatus()
	if err != nil {
		s.logger.Warn("status endpoint disabled", zap.Error(err))
	}
	if status != nil {
		defer status.Close()
	}

	if err := s.Warm(ctx); err != nil {
		return err
	}

	stopHousekeeping, err := s.startHousekeeping()
	if err != nil {
		s.logger.Warn("housekeeping disabled", zap.Error(err))
	} else {
		defer stopHousekeeping()
	}

	return s.Serve(ctx)
}

func (s *ServiceState) shutdownListener() {
	s.closeOnce.Do(func() {
		if s.listener != nil {
			s.listener.Close()
		}
	})
}

// Stats is a snapshot of the request counters.
type Stats struct {
	Served   int64
	Failed   int64
	InFlight int64
}

func (s *ServiceState) Stats() Stats {
	return Stats{
		Served:   s.served.Load(),
		Failed:   s.failed.Load(),
		InFlight: s.inFlight.Load(),
	}
}
