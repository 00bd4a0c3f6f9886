package tlsctx

import (
	"crypto/tls"
	"crypto/x509"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/muurk/tlsecho/internal/config"
	"github.com/muurk/tlsecho/internal/logging"
	"go.uber.org/zap"
)

// Option customizes Build.
type Option func(*options)

type options struct {
	clientCAPath string
	now          func() time.Time
}

// WithClientCA requires every client to present a certificate signed by a CA
// in the PEM bundle at path.
func WithClientCA(path string) Option {
	return func(o *options) {
		o.clientCAPath = path
	}
}

// withClock overrides the time source used for ticket expiry.
func withClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// Context owns the shared server-side TLS configuration.
type Context struct {
	config  atomic.Pointer[tls.Config]
	version config.Encryption
	mutual  bool
	once    sync.Once
}

// Build loads the key pair and returns a context pinned to version.
// Argument errors are reported before any file is touched.
func Build(certPath, keyPath string, version config.Encryption, opts ...Option) (*Context, error) {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	tlsVersion, ok := version.TLSVersion()
	if !ok {
		return nil, &Error{Kind: KindArgument, Op: "validate", Err: ErrUnsupportedVersion}
	}
	for _, p := range []struct {
		field, value string
	}{
		{"cert", certPath},
		{"key", keyPath},
	} {
		if p.value == "" {
			return nil, &Error{Kind: KindArgument, Op: "validate", Err: &config.Error{Field: p.field, Err: ErrEmptyPath}}
		}
		if err := config.ValidatePath(p.field, p.value); err != nil {
			return nil, &Error{Kind: KindArgument, Op: "validate", Err: err}
		}
	}
	if err := config.ValidatePath("peer-ca", o.clientCAPath); err != nil {
		return nil, &Error{Kind: KindArgument, Op: "validate", Err: err}
	}

	// LoadX509KeyPair fails when the private key does not match the certificate
	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return nil, &Error{Kind: KindCertificate, Op: "load_keypair", Path: certPath, Err: err}
	}

	cfg := &tls.Config{
		Certificates: []tls.Certificate{cert},
		ClientAuth:   tls.NoClientCert,
	}

	if o.clientCAPath != "" {
		pool, err := loadCAPool(o.clientCAPath)
		if err != nil {
			return nil, err
		}
		cfg.ClientCAs = pool
		cfg.ClientAuth = tls.RequireAndVerifyClientCert
	}

	if err := applyPolicy(cfg, tlsVersion); err != nil {
		return nil, &Error{Kind: KindPolicy, Op: "apply_policy", Err: err}
	}
	enableSessionCache(cfg, o.now)

	c := &Context{version: version, mutual: o.clientCAPath != ""}
	c.config.Store(cfg)

	fields := []zap.Field{
		zap.String("cert", certPath),
		zap.String("key", keyPath),
		zap.String("tls_version", tls.VersionName(tlsVersion)),
		zap.Strings("cipher_suites", suiteNames(AllowedSuites(tlsVersion))),
		zap.Duration("session_timeout", SessionTimeout),
		zap.Bool("client_auth", c.mutual),
	}
	if cert.Leaf != nil {
		fields = append(fields,
			zap.String("subject", cert.Leaf.Subject.CommonName),
			zap.Time("not_after", cert.Leaf.NotAfter),
		)
		if o.now().After(cert.Leaf.NotAfter) {
			logging.Warn("Server certificate has expired", zap.Time("not_after", cert.Leaf.NotAfter))
		}
	}
	logging.Info("TLS context created", fields...)

	return c, nil
}

// loadCAPool reads a PEM bundle into a certificate pool.
func loadCAPool(path string) (*x509.CertPool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &Error{Kind: KindCertificate, Op: "load_ca", Path: path, Err: err}
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(data) {
		return nil, &Error{Kind: KindCertificate, Op: "load_ca", Path: path, Err: ErrNoCertificates}
	}
	return pool, nil
}

// Config returns the shared configuration, or nil once the context is closed.
func (c *Context) Config() *tls.Config {
	if c == nil {
		return nil
	}
	return c.config.Load()
}

// Version returns the pinned encryption mode.
func (c *Context) Version() config.Encryption {
	if c == nil {
		return config.EncryptionNone
	}
	return c.version
}

// Closed reports whether Close has run.
func (c *Context) Closed() bool {
	return c == nil || c.config.Load() == nil
}

// Info returns human-readable policy details for logs and banners.
func (c *Context) Info() map[string]interface{} {
	cfg := c.Config()
	if cfg == nil {
		return map[string]interface{}{"closed": true}
	}
	return map[string]interface{}{
		"min_version":     tls.VersionName(cfg.MinVersion),
		"max_version":     tls.VersionName(cfg.MaxVersion),
		"cipher_suites":   suiteNames(AllowedSuites(cfg.MaxVersion)),
		"num_certs":       len(cfg.Certificates),
		"session_tickets": !cfg.SessionTicketsDisabled,
		"session_timeout": SessionTimeout.String(),
		"client_auth":     c.mutual,
	}
}

// Close drops the configuration and key material. Handshakes already holding
// the configuration finish normally. Only the first call has any effect; it is
// a no-op on a nil Context.
func (c *Context) Close() {
	if c == nil {
		return
	}
	c.once.Do(func() {
		if c.config.Swap(nil) != nil {
			logging.Debug("TLS context closed")
		}
	})
}
