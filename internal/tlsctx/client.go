package tlsctx

import (
	"crypto/tls"

	"github.com/muurk/tlsecho/internal/config"
	"github.com/muurk/tlsecho/internal/logging"
	"go.uber.org/zap"
)

// ClientOption customizes ClientConfig.
type ClientOption func(*clientOptions)

type clientOptions struct {
	certPath string
	keyPath  string
}

// WithCertificate presents the given key pair when the server asks for one.
func WithCertificate(certPath, keyPath string) ClientOption {
	return func(o *clientOptions) {
		o.certPath = certPath
		o.keyPath = keyPath
	}
}

// ClientConfig builds a client configuration pinned to the same version and
// cipher policy as the server side. Without caPath the server certificate is
// not verified.
func ClientConfig(version config.Encryption, caPath, serverName string, opts ...ClientOption) (*tls.Config, error) {
	var o clientOptions
	for _, opt := range opts {
		opt(&o)
	}

	tlsVersion, ok := version.TLSVersion()
	if !ok {
		return nil, &Error{Kind: KindArgument, Op: "validate", Err: ErrUnsupportedVersion}
	}
	if err := config.ValidatePath("peer-ca", caPath); err != nil {
		return nil, &Error{Kind: KindArgument, Op: "validate", Err: err}
	}

	cfg := &tls.Config{
		ServerName:         serverName,
		Renegotiation:      tls.RenegotiateNever,
		ClientSessionCache: tls.NewLRUClientSessionCache(0),
	}

	if caPath != "" {
		pool, err := loadCAPool(caPath)
		if err != nil {
			return nil, err
		}
		cfg.RootCAs = pool
	} else {
		cfg.InsecureSkipVerify = true
		logging.Warn("Server certificate will not be verified; pass --peer-ca to enable verification",
			zap.String("server_name", serverName),
		)
	}

	if o.certPath != "" || o.keyPath != "" {
		cert, err := tls.LoadX509KeyPair(o.certPath, o.keyPath)
		if err != nil {
			return nil, &Error{Kind: KindCertificate, Op: "load_keypair", Path: o.certPath, Err: err}
		}
		cfg.Certificates = []tls.Certificate{cert}
	}

	if err := applyPolicy(cfg, tlsVersion); err != nil {
		return nil, &Error{Kind: KindPolicy, Op: "apply_policy", Err: err}
	}
	return cfg, nil
}
