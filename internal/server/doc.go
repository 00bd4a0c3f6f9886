// Package server implements the concurrent TCP/TLS echo engine.
//
// A Server owns the listening socket, the accept loop and one goroutine per
// admitted connection. Admission is bounded by a slots.Pool; encryption comes
// from a single tlsctx.Context shared read-only by every connection.
//
// # Accept Loop
//
// Each iteration claims a slot before calling Accept:
//   - Pool exhausted: the pending connection is accepted and closed at once,
//     so the kernel backlog never stalls and no data is exchanged
//   - Accept fails: the slot is released and the loop continues
//   - Otherwise the connection is attached to the slot and handed to its own
//     goroutine; the loop does not wait for it
//
// # Handling Unit
//
// A connection goroutine performs the TLS handshake (bounded by
// HandshakeTimeout) when encryption is enabled, then echoes every read of up
// to BufferSize bytes back verbatim. It ends when the peer closes, a read or
// write fails, the connection stays idle for IdleTimeout, MaxSessionBytes have
// been echoed, or the server shuts down. The transport is closed and the slot
// released on every path.
//
// # Shutdown
//
// Cancelling the context passed to Run:
//  1. Signals every handling unit, which stops between reads
//  2. Closes the listener and waits for the accept loop to exit
//  3. Waits up to DrainTimeout for handling units to finish
//  4. Force-closes whatever transports are still open
//  5. Tears down the TLS context exactly once
//
// # Listening Socket
//
// On unix systems the socket is created directly so SO_REUSEADDR and a fixed
// ListenBacklog can be applied. An empty listen address binds 0.0.0.0.
package server
