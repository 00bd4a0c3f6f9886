package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/muurk/tlsecho/internal/config"
	"github.com/muurk/tlsecho/internal/logging"
	"github.com/muurk/tlsecho/internal/metrics"
	"github.com/muurk/tlsecho/internal/slots"
	"github.com/muurk/tlsecho/internal/tlsctx"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// ListenBacklog is the fixed length of the kernel accept queue.
const ListenBacklog = 128

const (
	// pollInterval bounds each read so the shutdown signal is seen promptly.
	pollInterval = 250 * time.Millisecond
	// maxAcceptDelay caps the backoff after repeated accept failures.
	maxAcceptDelay = time.Second
)

// Options holds the engine settings.
type Options struct {
	// ListenAddress empty binds all IPv4 interfaces.
	ListenAddress string
	// ListenPort zero picks an ephemeral port.
	ListenPort int

	BufferSize       int
	MaxSessionBytes  int64
	IdleTimeout      time.Duration
	HandshakeTimeout time.Duration
	DrainTimeout     time.Duration
}

// OptionsFromRecord copies the engine settings out of a configuration record.
func OptionsFromRecord(rec *config.Record) Options {
	return Options{
		ListenAddress:    rec.ListenAddress,
		ListenPort:       rec.ListenPort,
		BufferSize:       rec.BufferSize,
		MaxSessionBytes:  rec.MaxSessionBytes,
		IdleTimeout:      rec.IdleTimeout,
		HandshakeTimeout: rec.HandshakeTimeout,
		DrainTimeout:     rec.DrainTimeout,
	}
}

// withDefaults fills zero values.
func (o Options) withDefaults() Options {
	if o.BufferSize <= 0 {
		o.BufferSize = config.DefaultBufferSize
	}
	if o.MaxSessionBytes <= 0 {
		o.MaxSessionBytes = config.DefaultMaxSessionBytes
	}
	if o.IdleTimeout <= 0 {
		o.IdleTimeout = config.DefaultIdleTimeout
	}
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = config.DefaultHandshakeTimeout
	}
	if o.DrainTimeout <= 0 {
		o.DrainTimeout = config.DefaultDrainTimeout
	}
	return o
}

// Server is a multi-client echo server.
type Server struct {
	opts    Options
	tls     *tlsctx.Context
	pool    *slots.Pool
	metrics *metrics.Collector

	// stopCtx is cancelled when shutdown begins; handling units poll it.
	stopCtx context.Context
	stop    context.CancelFunc

	mu       sync.Mutex
	listener net.Listener
	ready    chan struct{}
	started  atomic.Bool
	wg       sync.WaitGroup
}

// New creates a server. tlsCtx may be nil for plaintext; when set, the
// server takes ownership and closes it when Run returns. m may be nil.
func New(opts Options, tlsCtx *tlsctx.Context, pool *slots.Pool, m *metrics.Collector) (*Server, error) {
	if pool == nil {
		return nil, errors.New("server: slot pool is nil")
	}
	if opts.ListenPort < 0 || opts.ListenPort > 65535 {
		return nil, fmt.Errorf("server: invalid port %d", opts.ListenPort)
	}
	if tlsCtx != nil && tlsCtx.Closed() {
		return nil, errors.New("server: TLS context already closed")
	}

	stopCtx, stop := context.WithCancel(context.Background())
	return &Server{
		opts:    opts.withDefaults(),
		tls:     tlsCtx,
		pool:    pool,
		metrics: m,
		stopCtx: stopCtx,
		stop:    stop,
		ready:   make(chan struct{}),
	}, nil
}

// Ready is closed once the server is listening.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Addr returns the bound address, or nil before the server is listening.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Secure reports whether connections are wrapped in TLS.
func (s *Server) Secure() bool {
	return s.tls != nil
}

// Run binds, serves until ctx is cancelled or the accept loop fails, then
// shuts down. A bind failure is returned without serving. Run may only be
// called once.
func (s *Server) Run(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return errors.New("server: already started")
	}
	defer s.tls.Close()
	defer s.stop()

	addr := net.JoinHostPort(s.opts.ListenAddress, strconv.Itoa(s.opts.ListenPort))
	ln, err := listen(ctx, s.opts.ListenAddress, s.opts.ListenPort)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	close(s.ready)

	s.metrics.SetSlots(s.pool.Active(), s.pool.Capacity())
	logging.Info("Server listening for connections",
		zap.String("addr", ln.Addr().String()),
		zap.Bool("tls", s.Secure()),
		zap.String("tls_version", s.tls.Version().String()),
		zap.Int("capacity", s.pool.Capacity()),
		zap.String("buffer_size", humanize.IBytes(uint64(s.opts.BufferSize))),
		zap.String("max_session_bytes", humanize.IBytes(uint64(s.opts.MaxSessionBytes))),
		zap.Duration("idle_timeout", s.opts.IdleTimeout),
	)

	acceptDone := make(chan error, 1)
	go func() {
		acceptDone <- s.acceptConnections(ln)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logging.Info("Shutdown requested, stopping server...")
		s.stop()
		runErr = multierr.Append(runErr, closeListener(ln))
		runErr = multierr.Append(runErr, <-acceptDone)
	case err := <-acceptDone:
		logging.Error("Accept loop failed", zap.Error(err))
		s.stop()
		runErr = multierr.Append(err, closeListener(ln))
	}

	runErr = multierr.Append(runErr, s.drain())
	logging.Info("Server stopped")
	logging.Sync()
	return runErr
}

// acceptConnections runs until the listener is closed.
func (s *Server) acceptConnections(ln net.Listener) error {
	var delay time.Duration

	for {
		slot, err := s.pool.Acquire()
		if err != nil && !errors.Is(err, slots.ErrExhausted) {
			return fmt.Errorf("slot pool: %w", err)
		}

		conn, err := ln.Accept()
		if err != nil {
			if slot != nil {
				s.pool.Release(slot)
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}

			s.metrics.AcceptError()
			if delay == 0 {
				delay = 5 * time.Millisecond
			} else {
				delay = min(2*delay, maxAcceptDelay)
			}
			logging.Error("Failed to accept connection",
				zap.Error(err),
				zap.Duration("retry_in", delay),
			)
			select {
			case <-time.After(delay):
			case <-s.stopCtx.Done():
				return nil
			}
			continue
		}
		delay = 0

		if slot == nil {
			// A slot may have been freed while blocked in Accept.
			if slot, _ = s.pool.Acquire(); slot == nil {
				s.reject(conn)
				continue
			}
		}

		slot.Attach(conn)
		s.metrics.ConnectionAccepted()
		s.metrics.SetSlots(s.pool.Active(), s.pool.Capacity())

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConnection(slot)
		}()
	}
}

// reject closes a connection that arrived while every slot was in use.
func (s *Server) reject(conn net.Conn) {
	s.metrics.ConnectionRejected()
	logging.Warn("Connection rejected, all slots in use",
		zap.String("remote_addr", conn.RemoteAddr().String()),
		zap.Int("capacity", s.pool.Capacity()),
	)
	_ = conn.Close()
}

// drain waits for handling units, force-closing them after DrainTimeout.
func (s *Server) drain() error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logging.Info("All connections closed gracefully")
		return nil
	case <-time.After(s.opts.DrainTimeout):
	}

	n, err := s.pool.CloseAll()
	logging.Warn("Drain timeout, forcing close",
		zap.Duration("drain_timeout", s.opts.DrainTimeout),
		zap.Int("connections", n),
	)

	select {
	case <-done:
	case <-time.After(s.opts.DrainTimeout):
		logging.Error("Connections still running after force close",
			zap.Int("active", s.pool.Active()),
		)
		err = multierr.Append(err, errors.New("server: handling units did not exit after force close"))
	}
	return err
}

func closeListener(ln net.Listener) error {
	if err := ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("failed to close listener: %w", err)
	}
	return nil
}

// ActiveConnections returns the number of connections holding a slot. The
// slot the accept loop reserves ahead of Accept is not counted.
func (s *Server) ActiveConnections() int {
	return s.pool.Active()
}
