// Package client implements tlsecho's interactive client mode.
//
// A Session wraps one TCP or TLS connection to an echo server. Each input line
// is written with a trailing newline and exactly that many bytes are read
// back, so the echo of one line is never confused with the next.
//
// Two front ends drive a session:
//
//   - RunLines reads stdin line by line and prints each echo to stdout. It is
//     used when stdin or stdout is not a terminal.
//   - RunTUI is a Bubble Tea program with an input field, a scrolling
//     transcript and input history.
//
// Both stop on "quit", "exit", end of input or context cancellation.
package client
