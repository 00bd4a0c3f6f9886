package config

import (
	"errors"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// ErrHelp is returned by ParseArgs when help was requested. It is not a failure.
var ErrHelp = errors.New("help requested")

// Error describes an invalid configuration value.
type Error struct {
	// Field is the flag or config key that failed
	Field string
	// Value is the rejected input
	Value string
	// Underlying error
	Err error
}

func (e *Error) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("invalid %s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("invalid %s %q: %v", e.Field, e.Value, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// hostnamePattern matches RFC 1123 host names.
var hostnamePattern = regexp.MustCompile(`^([a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)(\.[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)*\.?$`)

// ParsePort parses a TCP port in the range 1-65535.
func ParsePort(field, value string) (int, error) {
	value = strings.TrimSpace(value)
	port, err := strconv.Atoi(value)
	if err != nil {
		return 0, &Error{Field: field, Value: value, Err: errors.New("not a number")}
	}
	if port <= 0 || port > 65535 {
		return 0, &Error{Field: field, Value: value, Err: errors.New("must be between 1 and 65535")}
	}
	return port, nil
}

// ValidateAddress accepts an IP literal or an RFC 1123 host name. The empty
// string is accepted and means all interfaces.
func ValidateAddress(field, value string) error {
	if value == "" {
		return nil
	}
	if net.ParseIP(value) != nil {
		return nil
	}
	if len(value) > 253 || !hostnamePattern.MatchString(value) {
		return &Error{Field: field, Value: value, Err: errors.New("not an IP address or host name")}
	}
	return nil
}

// ParseEndpoint splits "address:port" (IPv6 in brackets) and validates both parts.
func ParseEndpoint(field, value string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(strings.TrimSpace(value))
	if err != nil {
		return "", 0, &Error{Field: field, Value: value, Err: errors.New("expected address:port")}
	}
	if host == "" {
		return "", 0, &Error{Field: field, Value: value, Err: errors.New("missing address")}
	}
	if err := ValidateAddress(field, host); err != nil {
		return "", 0, err
	}
	port, err := ParsePort(field, portStr)
	if err != nil {
		return "", 0, err
	}
	return host, port, nil
}

// ParseEncryption maps a selector to an Encryption value.
func ParseEncryption(value string) (Encryption, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "none", "plain", "off":
		return EncryptionNone, nil
	case "tls12", "tls1.2", "tlsv1.2":
		return EncryptionTLS12, nil
	case "tls13", "tls1.3", "tlsv1.3":
		return EncryptionTLS13, nil
	default:
		return EncryptionNone, &Error{Field: "tls", Value: value, Err: errors.New("expected none, tls12 or tls13")}
	}
}

// ValidatePath bounds credential paths at the configuration boundary.
func ValidatePath(field, value string) error {
	if value == "" {
		return nil
	}
	if len(value) > MaxPathLength {
		return &Error{Field: field, Err: fmt.Errorf("path longer than %d bytes", MaxPathLength)}
	}
	if strings.ContainsRune(value, 0) {
		return &Error{Field: field, Value: value, Err: errors.New("path contains NUL byte")}
	}
	return nil
}

// ParseSize parses a human byte size such as "4KiB" or "64MB" within [min, max].
// A max of zero means no upper bound.
func ParseSize(field, value string, min, max uint64) (uint64, error) {
	size, err := humanize.ParseBytes(strings.TrimSpace(value))
	if err != nil {
		return 0, &Error{Field: field, Value: value, Err: err}
	}
	if size < min {
		return 0, &Error{Field: field, Value: value, Err: fmt.Errorf("must be at least %s", humanize.IBytes(min))}
	}
	if max > 0 && size > max {
		return 0, &Error{Field: field, Value: value, Err: fmt.Errorf("must be at most %s", humanize.IBytes(max))}
	}
	return size, nil
}

// ParsePositiveDuration parses a Go duration that must be greater than zero.
func ParsePositiveDuration(field, value string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return 0, &Error{Field: field, Value: value, Err: err}
	}
	if d <= 0 {
		return 0, &Error{Field: field, Value: value, Err: errors.New("must be positive")}
	}
	return d, nil
}

// Validate performs cross-field checks once every field parsed on its own.
func Validate(rec *Record) error {
	if rec == nil {
		return errors.New("configuration record is nil")
	}
	if !rec.HasRemote() && rec.Encryption.Enabled() {
		if rec.CertPath == "" {
			return &Error{Field: "cert", Err: fmt.Errorf("required when --tls is %s", rec.Encryption)}
		}
		if rec.KeyPath == "" {
			return &Error{Field: "key", Err: fmt.Errorf("required when --tls is %s", rec.Encryption)}
		}
	}
	if rec.PeerCAPath != "" && !rec.Encryption.Enabled() {
		return &Error{Field: "peer-ca", Value: rec.PeerCAPath, Err: errors.New("requires --tls tls12 or tls13")}
	}
	return nil
}
