package testcert

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// CertificateError represents a failure while generating or writing test
// certificates.
type CertificateError struct {
	// Operation is the step that failed (generate_key, create_certificate, write)
	Operation string
	// Path is the file involved, if any
	Path string
	// Underlying error
	Err error
}

func (e *CertificateError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("test certificate %s failed for %s: %v", e.Operation, e.Path, e.Err)
	}
	return fmt.Sprintf("test certificate %s failed: %v", e.Operation, e.Err)
}

func (e *CertificateError) Unwrap() error {
	return e.Err
}

// Bundle lists the files written by Write.
type Bundle struct {
	Dir string
	// CAPath is the PEM root certificate that signed both leaf certificates
	CAPath string
	// CertPath and KeyPath are the server credentials for localhost/127.0.0.1/::1
	CertPath string
	KeyPath  string
	// ClientCertPath and ClientKeyPath are signed by the same CA for mutual TLS
	ClientCertPath string
	ClientKeyPath  string
	// MismatchedKeyPath holds a valid key unrelated to CertPath
	MismatchedKeyPath string
	// CAPool contains the CA certificate
	CAPool *x509.CertPool
}

// New writes a bundle into a per-test temporary directory and fails the test
// on error.
func New(t testing.TB) *Bundle {
	t.Helper()
	b, err := Write(t.TempDir())
	if err != nil {
		t.Fatalf("failed to generate test certificates: %v", err)
	}
	return b
}

// Write generates a CA, server and client certificates plus a mismatched key
// into dir.
func Write(dir string) (*Bundle, error) {
	now := time.Now()

	caKey, err := newKey()
	if err != nil {
		return nil, err
	}
	caTemplate := &x509.Certificate{
		Subject:               pkix.Name{CommonName: "tlsecho test CA", Organization: []string{"tlsecho"}},
		NotBefore:             now.Add(-time.Hour),
		NotAfter:              now.Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	caDER, caCert, err := sign(caTemplate, caTemplate, caKey, caKey)
	if err != nil {
		return nil, err
	}

	serverKey, err := newKey()
	if err != nil {
		return nil, err
	}
	serverDER, _, err := sign(&x509.Certificate{
		Subject:     pkix.Name{CommonName: "localhost"},
		NotBefore:   now.Add(-time.Hour),
		NotAfter:    now.Add(24 * time.Hour),
		KeyUsage:    x509.KeyUsageDigitalSignature,
		ExtKeyUsage: []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		DNSNames:    []string{"localhost"},
		IPAddresses: []net.IP{net.IPv4(127, 0, 0, 1), net.IPv6loopback},
	}, caCert, serverKey, caKey)
	if err != nil {
		return nil, err
	}

	clientKey, err := newKey()
	if err != nil {
		return nil, err
	}
	clientDER, _, err := sign(&x509.Certificate{
		Subject:     pkix.Name{CommonName: "tlsecho test client"},
		NotBefore:   now.Add(-time.Hour),
		NotAfter:    now.Add(24 * time.Hour),
		KeyUsage:    x509.KeyUsageDigitalSignature,
		ExtKeyUsage: []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
	}, caCert, clientKey, caKey)
	if err != nil {
		return nil, err
	}

	strayKey, err := newKey()
	if err != nil {
		return nil, err
	}

	b := &Bundle{
		Dir:               dir,
		CAPath:            filepath.Join(dir, "ca.pem"),
		CertPath:          filepath.Join(dir, "server.pem"),
		KeyPath:           filepath.Join(dir, "server-key.pem"),
		ClientCertPath:    filepath.Join(dir, "client.pem"),
		ClientKeyPath:     filepath.Join(dir, "client-key.pem"),
		MismatchedKeyPath: filepath.Join(dir, "stray-key.pem"),
		CAPool:            x509.NewCertPool(),
	}
	b.CAPool.AddCert(caCert)

	files := []struct {
		path  string
		write func(string) error
	}{
		{b.CAPath, func(p string) error { return writeCert(p, caDER) }},
		{b.CertPath, func(p string) error { return writeCert(p, serverDER) }},
		{b.KeyPath, func(p string) error { return writeKey(p, serverKey) }},
		{b.ClientCertPath, func(p string) error { return writeCert(p, clientDER) }},
		{b.ClientKeyPath, func(p string) error { return writeKey(p, clientKey) }},
		{b.MismatchedKeyPath, func(p string) error { return writeKey(p, strayKey) }},
	}
	for _, f := range files {
		if err := f.write(f.path); err != nil {
			return nil, &CertificateError{Operation: "write", Path: f.path, Err: err}
		}
	}

	return b, nil
}

func newKey() (*ecdsa.PrivateKey, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, &CertificateError{Operation: "generate_key", Err: err}
	}
	return key, nil
}

func sign(template, parent *x509.Certificate, key, parentKey *ecdsa.PrivateKey) ([]byte, *x509.Certificate, error) {
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, nil, &CertificateError{Operation: "generate_serial", Err: err}
	}
	template.SerialNumber = serial

	der, err := x509.CreateCertificate(rand.Reader, template, parent, &key.PublicKey, parentKey)
	if err != nil {
		return nil, nil, &CertificateError{Operation: "create_certificate", Err: err}
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, nil, &CertificateError{Operation: "parse_certificate", Err: err}
	}
	return der, cert, nil
}

func writeCert(path string, der []byte) error {
	return os.WriteFile(path, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0600)
}

func writeKey(path string, key *ecdsa.PrivateKey) error {
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return err
	}
	return os.WriteFile(path, pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}), 0600)
}
