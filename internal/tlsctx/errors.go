package tlsctx

import (
	"errors"
	"fmt"
)

// Kind classifies a construction failure.
type Kind int

const (
	// KindArgument means the inputs were rejected before any file was read.
	KindArgument Kind = iota
	// KindCertificate means a certificate, key or CA bundle could not be loaded.
	KindCertificate
	// KindPolicy means the protocol policy could not be applied.
	KindPolicy
)

// String returns the kind name
func (k Kind) String() string {
	switch k {
	case KindArgument:
		return "argument"
	case KindCertificate:
		return "certificate"
	case KindPolicy:
		return "policy"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

var (
	// ErrEmptyPath is returned when a certificate or key path is missing.
	ErrEmptyPath = errors.New("path is empty")
	// ErrUnsupportedVersion is returned for EncryptionNone or an unknown selector.
	ErrUnsupportedVersion = errors.New("unsupported TLS version selector")
	// ErrNoCertificates is returned when a CA bundle holds no usable certificate.
	ErrNoCertificates = errors.New("no certificates found")
)

// Error reports why a TLS context could not be built.
type Error struct {
	Kind Kind
	// Op is the step that failed (validate, load_keypair, load_ca)
	Op string
	// Path is the file involved, if any
	Path string
	// Underlying error
	Err error
}

func (e *Error) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("tls %s error during %s (%s): %v", e.Kind, e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("tls %s error during %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var tlsErr *Error
	return errors.As(err, &tlsErr) && tlsErr.Kind == kind
}
