// Package logging provides structured logging for the tlsecho server and client.
//
// This package wraps a process-wide zap logger with convenience functions for
// the events the server emits: connection lifecycle, TLS handshakes, state
// machine transitions and payload dumps.
//
// # Log Levels
//
//   - Debug: state transitions, payload hex dumps, slot bookkeeping
//   - Info: startup, connections accepted and closed, handshakes
//   - Warn: admission rejections, per-connection failures
//   - Error: fatal startup failures
//
// # Configuration
//
// Initialize logging once during startup:
//
//	if err := logging.Initialize("debug"); err != nil {
//	    return err
//	}
//	defer logging.Sync()
//
// An empty level falls back to TLSECHO_LOG_LEVEL. When neither is set the
// logger is a no-op, which keeps the interactive client quiet.
//
// # Output Format
//
// Logs are written to stderr in console format so that echoed data on stdout
// (client mode) is never interleaved with log lines:
//
//	2026-10-18T10:30:45.123+0200  INFO  Connection event  {"remote_addr": "10.0.0.7:51234", "event": "accepted"}
//
// # Thread Safety
//
// All logging functions are safe for concurrent use, including Initialize and
// SetLogger: the global logger is replaced atomically.
package logging
