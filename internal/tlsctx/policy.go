package tlsctx

import (
	"crypto/tls"
	"fmt"
	"slices"
)

// tls12Suites are the TLS 1.2 suites offered, in preference order.
var tls12Suites = []uint16{
	tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
	tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
	tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
	tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
	tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305_SHA256,
	tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305_SHA256,
}

// tls13Suites cannot be configured through tls.Config; the list is enforced
// after the handshake instead.
var tls13Suites = []uint16{
	tls.TLS_AES_128_GCM_SHA256,
	tls.TLS_AES_256_GCM_SHA384,
	tls.TLS_CHACHA20_POLY1305_SHA256,
}

var curves = []tls.CurveID{tls.X25519, tls.CurveP256, tls.CurveP384}

// AllowedSuites returns the cipher suites permitted for a pinned version.
func AllowedSuites(version uint16) []uint16 {
	switch version {
	case tls.VersionTLS12:
		return slices.Clone(tls12Suites)
	case tls.VersionTLS13:
		return slices.Clone(tls13Suites)
	default:
		return nil
	}
}

// applyPolicy pins cfg to exactly one protocol version with the fixed suite list.
func applyPolicy(cfg *tls.Config, version uint16) error {
	allowed := AllowedSuites(version)
	if len(allowed) == 0 {
		return fmt.Errorf("no cipher policy for %s", tls.VersionName(version))
	}

	cfg.MinVersion = version
	cfg.MaxVersion = version
	cfg.CurvePreferences = curves
	if version == tls.VersionTLS12 {
		cfg.CipherSuites = allowed
	}

	next := cfg.VerifyConnection
	cfg.VerifyConnection = func(cs tls.ConnectionState) error {
		if cs.Version != version {
			return fmt.Errorf("negotiated %s, only %s is allowed",
				tls.VersionName(cs.Version), tls.VersionName(version))
		}
		if !slices.Contains(allowed, cs.CipherSuite) {
			return fmt.Errorf("cipher suite %s is not allowed", tls.CipherSuiteName(cs.CipherSuite))
		}
		if next != nil {
			return next(cs)
		}
		return nil
	}
	return nil
}

// suiteNames lists the human-readable names of suites.
func suiteNames(suites []uint16) []string {
	names := make([]string, 0, len(suites))
	for _, id := range suites {
		names = append(names, tls.CipherSuiteName(id))
	}
	return names
}
