package server

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/muurk/tlsecho/internal/logging"
	"github.com/muurk/tlsecho/internal/slots"
	"go.uber.org/zap"
)

var (
	errIdleTimeout  = errors.New("idle timeout")
	errSessionLimit = errors.New("session byte limit reached")
	errShuttingDown = errors.New("server shutting down")
)

// handleConnection runs one connection from handshake to close. The
// transport is closed and the slot released on every path.
func (s *Server) handleConnection(slot *slots.Slot) {
	var (
		conn      = slot.Conn()
		stream    = conn
		remote    = slot.Peer()
		sessionID = slot.SessionID()
		echoed    int64
		reason    = "peer_closed"
	)

	defer func() {
		_ = stream.Close()
		s.pool.Release(slot)
		s.metrics.SetSlots(s.pool.Active(), s.pool.Capacity())
		s.metrics.SessionEnded(time.Since(slot.Acquired()))
		logging.Info("Connection closed",
			zap.String("remote_addr", remote),
			zap.String("session_id", sessionID),
			zap.String("reason", reason),
			zap.String("echoed", humanize.IBytes(uint64(echoed))),
			zap.Duration("duration", time.Since(slot.Acquired())),
		)
	}()

	logging.LogConnection(remote, sessionID, "connection_accepted")

	if s.tls != nil {
		tlsConn, err := s.handshake(conn, remote)
		if tlsConn != nil {
			stream = tlsConn
			slot.AttachTLS(tlsConn)
		}
		if err != nil {
			reason = "handshake_failed"
			return
		}
	}

	var err error
	echoed, err = s.echo(stream, remote)
	switch {
	case err == nil:
	case errors.Is(err, errIdleTimeout):
		reason = "idle_timeout"
	case errors.Is(err, errSessionLimit):
		reason = "session_limit"
	case errors.Is(err, errShuttingDown):
		reason = "shutdown"
	default:
		reason = "io_error"
		logging.Debug("Connection error",
			zap.String("remote_addr", remote),
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
	}
}

// handshake secures conn with the shared context under HandshakeTimeout.
// The returned *tls.Conn is non-nil whenever a handshake was attempted.
func (s *Server) handshake(conn net.Conn, remote string) (*tls.Conn, error) {
	cfg := s.tls.Config()
	if cfg == nil {
		return nil, errShuttingDown
	}

	tlsConn := tls.Server(conn, cfg)
	ctx, cancel := context.WithTimeout(s.stopCtx, s.opts.HandshakeTimeout)
	defer cancel()

	if err := tlsConn.HandshakeContext(ctx); err != nil {
		s.metrics.HandshakeFailed()
		logging.Warn("TLS handshake failed",
			zap.String("remote_addr", remote),
			zap.Error(err),
		)
		return tlsConn, err
	}

	logging.LogTLSHandshake(remote, tlsConn.ConnectionState())
	return tlsConn, nil
}

// echo copies every read back to the peer until EOF, an error, the idle
// timeout, the session byte limit or shutdown.
func (s *Server) echo(conn net.Conn, remote string) (int64, error) {
	buf := make([]byte, s.opts.BufferSize)
	var total int64
	lastActivity := time.Now()

	for {
		select {
		case <-s.stopCtx.Done():
			return total, errShuttingDown
		default:
		}

		idleAt := lastActivity.Add(s.opts.IdleTimeout)
		deadline := time.Now().Add(pollInterval)
		if idleAt.Before(deadline) {
			deadline = idleAt
		}
		if err := conn.SetReadDeadline(deadline); err != nil {
			return total, err
		}

		n, err := conn.Read(buf)
		if n > 0 {
			lastActivity = time.Now()
			chunk := buf[:n]
			if remaining := s.opts.MaxSessionBytes - total; int64(n) > remaining {
				chunk = buf[:remaining]
			}

			logging.LogRawBytes("Echoing bytes", remote, chunk)
			if werr := conn.SetWriteDeadline(time.Now().Add(s.opts.IdleTimeout)); werr != nil {
				return total, werr
			}
			written, werr := conn.Write(chunk)
			total += int64(written)
			s.metrics.BytesEchoed(written)
			if werr != nil {
				return total, werr
			}
			if total >= s.opts.MaxSessionBytes {
				return total, errSessionLimit
			}
		}

		if err != nil {
			if isTimeout(err) {
				if time.Since(lastActivity) >= s.opts.IdleTimeout {
					return total, errIdleTimeout
				}
				continue
			}
			if errors.Is(err, io.EOF) {
				return total, nil
			}
			return total, err
		}
	}
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
