package app

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/dustin/go-humanize"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/muurk/tlsecho/internal/client"
	"github.com/muurk/tlsecho/internal/config"
	"github.com/muurk/tlsecho/internal/discovery"
	"github.com/muurk/tlsecho/internal/logging"
	"github.com/muurk/tlsecho/internal/metrics"
	"github.com/muurk/tlsecho/internal/server"
	"github.com/muurk/tlsecho/internal/slots"
	"github.com/muurk/tlsecho/internal/tlsctx"
	"github.com/muurk/tlsecho/internal/ui"
	"github.com/muurk/tlsecho/internal/version"
)

// defaultServerLogLevel applies in server mode when neither --log-level nor
// TLSECHO_LOG_LEVEL is set.
const defaultServerLogLevel = "info"

// Registrar receives resources to close during Cleanup.
type Registrar interface {
	AddCloser(io.Closer)
}

// Runner runs server and client mode.
type Runner struct {
	Stdin  io.Reader
	Stdout io.Writer

	// Registrar, when set, also receives every long-lived resource so the
	// state machine's Cleanup releases it even if a stage panics.
	Registrar Registrar

	// Interactive reports whether the client should use the TUI. Nil
	// detects a terminal on stdin and stdout.
	Interactive func() bool

	// Signals end server mode. Empty means SIGINT and SIGTERM.
	Signals []os.Signal

	// OnListening is called with the bound address once the server accepts.
	OnListening func(net.Addr)
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func (r *Runner) register(c io.Closer) {
	if r.Registrar != nil {
		r.Registrar.AddCloser(c)
	}
}

func (r *Runner) stdout() io.Writer {
	if r.Stdout == nil {
		return os.Stdout
	}
	return r.Stdout
}

func (r *Runner) signals() []os.Signal {
	if len(r.Signals) == 0 {
		return []os.Signal{os.Interrupt, syscall.SIGTERM}
	}
	return r.Signals
}

// RunServer serves until a shutdown signal, ctx cancellation or a fatal error.
func (r *Runner) RunServer(ctx context.Context, rec *config.Record) error {
	level := rec.LogLevel
	if level == "" && os.Getenv(logging.LogLevelEnvVar) == "" {
		level = defaultServerLogLevel
	}
	if err := logging.Initialize(level); err != nil {
		return err
	}

	// The TLS context is built before any socket exists.
	var tc *tlsctx.Context
	if rec.Encryption.Enabled() {
		var opts []tlsctx.Option
		if rec.PeerCAPath != "" {
			opts = append(opts, tlsctx.WithClientCA(rec.PeerCAPath))
		}
		var err error
		tc, err = tlsctx.Build(rec.CertPath, rec.KeyPath, rec.Encryption, opts...)
		if err != nil {
			return fmt.Errorf("failed to create TLS context: %w", err)
		}
		r.register(closerFunc(func() error { tc.Close(); return nil }))
	}

	pool, err := slots.New(rec.Capacity)
	if err != nil {
		tc.Close()
		return err
	}
	m := metrics.New()

	srv, err := server.New(server.OptionsFromRecord(rec), tc, pool, m)
	if err != nil {
		tc.Close()
		return err
	}

	fmt.Fprintln(r.stdout(), serverBanner(rec).Render())

	ctx, stop := signal.NotifyContext(ctx, r.signals()...)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := srv.Run(gctx)
		// Siblings stop however Run ended.
		stop()
		return err
	})

	if rec.MetricsListen != "" {
		exporter, err := metrics.StartExporter(rec.MetricsListen, m)
		if err != nil {
			stop()
			return multierr.Append(err, g.Wait())
		}
		r.register(exporter)
		g.Go(func() error {
			<-gctx.Done()
			return exporter.Close()
		})
	}

	g.Go(func() error {
		select {
		case <-srv.Ready():
		case <-gctx.Done():
			return nil
		}
		addr := srv.Addr()
		if r.OnListening != nil && addr != nil {
			r.OnListening(addr)
		}
		if !rec.Advertise || addr == nil {
			return nil
		}

		port := portOf(addr)
		adv, err := discovery.Advertise("", port, rec.Encryption, version.Version)
		if err != nil {
			// Advertising is best effort; the server keeps running.
			logging.Warn("mDNS advertisement failed", zap.Error(err))
			return nil
		}
		r.register(adv)
		<-gctx.Done()
		adv.Shutdown()
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logging.Info("Server exited cleanly")
	return nil
}

// RunClient runs the interactive client until the session ends.
func (r *Runner) RunClient(ctx context.Context, rec *config.Record) error {
	if err := logging.Initialize(rec.LogLevel); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, r.signals()...)
	defer stop()

	interactive := r.Interactive
	if interactive == nil {
		interactive = func() bool { return ui.IsTerminal(os.Stdin) && ui.IsTerminal(os.Stdout) }
	}

	return client.Run(ctx, rec, client.Options{
		In:          r.Stdin,
		Out:         r.Stdout,
		Interactive: interactive(),
	})
}

func serverBanner(rec *config.Record) *ui.Banner {
	listen := rec.ListenAddress
	if listen == "" {
		listen = "0.0.0.0"
	}
	params := []ui.Param{
		{Key: "Listen", Value: net.JoinHostPort(listen, strconv.Itoa(rec.ListenPort))},
		{Key: "TLS", Value: rec.Encryption.String()},
		{Key: "Capacity", Value: strconv.Itoa(rec.Capacity)},
		{Key: "Buffer", Value: humanize.IBytes(uint64(rec.BufferSize))},
		{Key: "Session cap", Value: humanize.IBytes(uint64(rec.MaxSessionBytes))},
		{Key: "Idle timeout", Value: rec.IdleTimeout.String()},
	}
	if rec.PeerCAPath != "" {
		params = append(params, ui.Param{Key: "Client CA", Value: rec.PeerCAPath})
	}
	if rec.MetricsListen != "" {
		params = append(params, ui.Param{Key: "Metrics", Value: "http://" + rec.MetricsListen + "/metrics"})
	}
	if rec.Advertise {
		params = append(params, ui.Param{Key: "mDNS", Value: discovery.ServiceType})
	}
	return ui.NewBanner("tlsecho server", version.Full(), params...)
}

func portOf(addr net.Addr) int {
	if tcp, ok := addr.(*net.TCPAddr); ok {
		return tcp.Port
	}
	_, p, err := net.SplitHostPort(addr.String())
	if err != nil {
		return 0
	}
	port, _ := strconv.Atoi(p)
	return port
}
