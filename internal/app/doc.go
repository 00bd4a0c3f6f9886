// Package app wires tlsecho's components together for the state machine.
//
// Runner implements the ServerMode and ClientStandard stages. Server mode
// builds the TLS context before any socket is created, so a bad certificate
// fails startup without binding. The server, the optional metrics exporter and
// the optional mDNS advertiser run under one errgroup and stop together on
// SIGINT, SIGTERM or the first failure.
package app
