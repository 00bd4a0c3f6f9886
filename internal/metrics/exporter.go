package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/muurk/tlsecho/internal/logging"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Exporter serves a collector's registry over HTTP.
type Exporter struct {
	srv *http.Server
	ln  net.Listener

	once sync.Once
	err  error
}

// StartExporter listens on addr and serves /metrics in the background.
func StartExporter(addr string, c *Collector) (*Exporter, error) {
	if c == nil {
		return nil, errors.New("metrics: collector is nil")
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics: listen: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(c.Registry(), promhttp.HandlerOpts{}))
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Warn("Metrics server stopped", zap.Error(err))
		}
	}()

	logging.Info("Serving metrics", zap.String("addr", ln.Addr().String()))
	return &Exporter{srv: srv, ln: ln}, nil
}

// Addr returns the bound address.
func (e *Exporter) Addr() net.Addr {
	return e.ln.Addr()
}

// Shutdown stops the HTTP server. Later calls return the first result.
func (e *Exporter) Shutdown(ctx context.Context) error {
	if e == nil {
		return nil
	}
	e.once.Do(func() {
		if err := e.srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			e.err = fmt.Errorf("metrics: shutdown: %w", err)
		}
	})
	return e.err
}

// Close implements io.Closer with a bounded shutdown.
func (e *Exporter) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return e.Shutdown(ctx)
}
