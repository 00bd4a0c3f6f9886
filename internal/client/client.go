package client

import (
	"context"
	"io"
	"os"

	"github.com/muurk/tlsecho/internal/config"
	"github.com/muurk/tlsecho/internal/logging"
	"go.uber.org/zap"
)

// Options selects the client front end.
type Options struct {
	In  io.Reader
	Out io.Writer
	// Interactive selects the TUI instead of the line loop.
	Interactive bool
}

// Run dials the record's remote endpoint and drives the session until it ends.
func Run(ctx context.Context, rec *config.Record, opts Options) error {
	if opts.In == nil {
		opts.In = os.Stdin
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}

	s, err := Dial(ctx, rec)
	if err != nil {
		return err
	}
	defer s.Close()

	stop := context.AfterFunc(ctx, func() { _ = s.Close() })
	defer stop()

	logging.Info("Client session started",
		zap.String("remote_addr", s.Remote()),
		zap.Bool("tls", s.Secure()),
		zap.Bool("interactive", opts.Interactive),
	)

	if opts.Interactive {
		return RunTUI(ctx, s, opts.In, opts.Out)
	}
	return RunLines(ctx, s, opts.In, opts.Out)
}
