// Package tlsctx builds the single TLS context shared by every connection of
// a tlsecho server.
//
// A Context pins the negotiable protocol to exactly one version and restricts
// the cipher suites to a fixed AEAD list:
//
//	tls12: ECDHE key exchange with AES-GCM or ChaCha20-Poly1305
//	tls13: TLS_AES_128_GCM_SHA256, TLS_AES_256_GCM_SHA384, TLS_CHACHA20_POLY1305_SHA256
//
// crypto/tls never negotiates record compression and never accepts a
// renegotiation request on the server side, so neither needs switching off.
//
// Session tickets are enabled. Each ticket is stamped with its issue time and
// refused for resumption once SessionTimeout has passed, after which the peer
// falls back to a full handshake.
//
// The context is immutable after Build and safe for concurrent use. Close
// tears it down exactly once and is safe on a nil Context.
package tlsctx
