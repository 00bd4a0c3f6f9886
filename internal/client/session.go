package client

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/muurk/tlsecho/internal/config"
	"github.com/muurk/tlsecho/internal/logging"
	"github.com/muurk/tlsecho/internal/tlsctx"
	"go.uber.org/zap"
)

// DefaultExchangeTimeout bounds one write and its echo.
const DefaultExchangeTimeout = 10 * time.Second

// ErrClosed is returned by Exchange after Close.
var ErrClosed = errors.New("session closed")

// Session is a connection to an echo server. Exchange is not safe for
// concurrent use; Close may be called from any goroutine.
type Session struct {
	conn    net.Conn
	reader  *bufio.Reader
	timeout time.Duration
	remote  string
	secure  bool

	sent     atomic.Int64
	received atomic.Int64

	closeOnce sync.Once
	closed    atomic.Bool
}

// NewSession wraps an established connection.
func NewSession(conn net.Conn, timeout time.Duration) *Session {
	if timeout <= 0 {
		timeout = DefaultExchangeTimeout
	}
	_, secure := conn.(*tls.Conn)
	return &Session{
		conn:    conn,
		reader:  bufio.NewReader(conn),
		timeout: timeout,
		remote:  conn.RemoteAddr().String(),
		secure:  secure,
	}
}

// Dial connects to the record's remote endpoint. With encryption enabled the
// TLS handshake completes before Dial returns.
func Dial(ctx context.Context, rec *config.Record) (*Session, error) {
	if !rec.HasRemote() {
		return nil, errors.New("no remote endpoint configured")
	}
	addr := rec.RemoteAddr()
	dialer := &net.Dialer{Timeout: rec.HandshakeTimeout}

	if !rec.Encryption.Enabled() {
		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
		}
		logging.LogConnection(addr, "", "connected")
		return NewSession(conn, DefaultExchangeTimeout), nil
	}

	var opts []tlsctx.ClientOption
	if rec.CertPath != "" || rec.KeyPath != "" {
		opts = append(opts, tlsctx.WithCertificate(rec.CertPath, rec.KeyPath))
	}
	cfg, err := tlsctx.ClientConfig(rec.Encryption, rec.PeerCAPath, rec.RemoteAddress, opts...)
	if err != nil {
		return nil, err
	}

	td := &tls.Dialer{NetDialer: dialer, Config: cfg}
	conn, err := td.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	if tc, ok := conn.(*tls.Conn); ok {
		logging.LogTLSHandshake(addr, tc.ConnectionState())
	}
	return NewSession(conn, DefaultExchangeTimeout), nil
}

// Exchange sends line followed by a newline and returns the echoed line
// without its newline.
func (s *Session) Exchange(line string) (string, error) {
	if s.closed.Load() {
		return "", ErrClosed
	}
	payload := line + "\n"

	if err := s.conn.SetDeadline(time.Now().Add(s.timeout)); err != nil {
		return "", s.wrap("set deadline", err)
	}
	n, err := io.WriteString(s.conn, payload)
	s.sent.Add(int64(n))
	if err != nil {
		return "", s.wrap("write", err)
	}

	buf := make([]byte, len(payload))
	n, err = io.ReadFull(s.reader, buf)
	s.received.Add(int64(n))
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return "", fmt.Errorf("server closed the connection: %w", io.EOF)
		}
		return "", s.wrap("read", err)
	}

	logging.LogRawBytes("echo", s.remote, buf)
	return strings.TrimSuffix(string(buf), "\n"), nil
}

func (s *Session) wrap(op string, err error) error {
	if s.closed.Load() {
		return ErrClosed
	}
	return fmt.Errorf("%s %s: %w", op, s.remote, err)
}

// Remote returns the server address.
func (s *Session) Remote() string {
	return s.remote
}

// Secure reports whether the session runs over TLS.
func (s *Session) Secure() bool {
	return s.secure
}

// Sent returns the number of bytes written.
func (s *Session) Sent() int64 {
	return s.sent.Load()
}

// Received returns the number of bytes read.
func (s *Session) Received() int64 {
	return s.received.Load()
}

// Close closes the connection. It is safe to call more than once.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		err = s.conn.Close()
		logging.Debug("Client session closed",
			zap.String("remote_addr", s.remote),
			zap.Int64("bytes_sent", s.sent.Load()),
			zap.Int64("bytes_received", s.received.Load()),
		)
	})
	return err
}

// isQuit reports whether a line ends the session.
func isQuit(line string) bool {
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "quit", "exit":
		return true
	}
	return false
}
