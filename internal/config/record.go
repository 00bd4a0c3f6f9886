package config

import (
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

// Process exit codes.
const (
	ExitSuccess = 0
	ExitFailure = 1
)

// Defaults and bounds for the configuration record.
const (
	DefaultPort             = 4433
	DefaultCapacity         = 32
	DefaultBufferSize       = 4096
	DefaultIdleTimeout      = 5 * time.Minute
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultDrainTimeout     = 10 * time.Second
	DefaultMaxSessionBytes  = 64 << 20

	MaxCapacity   = 4096
	MaxBufferSize = 1 << 20
	MaxPathLength = 4096
)

// Mode is the operating mode selected during argument parsing.
type Mode int

const (
	ModeHelp Mode = iota
	ModeServer
	ModeClientStandard
)

// String returns the mode name
func (m Mode) String() string {
	switch m {
	case ModeHelp:
		return "help"
	case ModeServer:
		return "server"
	case ModeClientStandard:
		return "client"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Encryption selects plaintext or a single pinned TLS version.
type Encryption int

const (
	EncryptionNone Encryption = iota
	EncryptionTLS12
	EncryptionTLS13
)

// String returns the canonical selector accepted by ParseEncryption.
func (e Encryption) String() string {
	switch e {
	case EncryptionNone:
		return "none"
	case EncryptionTLS12:
		return "tls12"
	case EncryptionTLS13:
		return "tls13"
	default:
		return fmt.Sprintf("Encryption(%d)", int(e))
	}
}

// Enabled reports whether the mode requires TLS.
func (e Encryption) Enabled() bool {
	return e == EncryptionTLS12 || e == EncryptionTLS13
}

// TLSVersion maps the selector to a crypto/tls version constant.
// It returns false for EncryptionNone and unknown values.
func (e Encryption) TLSVersion() (uint16, bool) {
	switch e {
	case EncryptionTLS12:
		return tls.VersionTLS12, true
	case EncryptionTLS13:
		return tls.VersionTLS13, true
	default:
		return 0, false
	}
}

// Record is the configuration shared by every stage after argument parsing.
// It is mutated only while parsing and is read-only afterwards.
type Record struct {
	Mode Mode

	// ListenAddress empty means all interfaces.
	ListenAddress string
	ListenPort    int

	// RemoteAddress and RemotePort select client mode when set.
	RemoteAddress string
	RemotePort    int

	Encryption Encryption
	CertPath   string
	KeyPath    string
	// PeerCAPath enables peer verification: client certificates in server
	// mode, the server certificate in client mode.
	PeerCAPath string

	Capacity         int
	BufferSize       int
	MaxSessionBytes  int64
	IdleTimeout      time.Duration
	HandshakeTimeout time.Duration
	DrainTimeout     time.Duration

	MetricsListen string
	Advertise     bool
	LogLevel      string

	ExitCode int
}

// Default returns a record populated with the startup defaults.
func Default() *Record {
	return &Record{
		Mode:             ModeServer,
		ListenPort:       DefaultPort,
		Encryption:       EncryptionNone,
		Capacity:         DefaultCapacity,
		BufferSize:       DefaultBufferSize,
		MaxSessionBytes:  DefaultMaxSessionBytes,
		IdleTimeout:      DefaultIdleTimeout,
		HandshakeTimeout: DefaultHandshakeTimeout,
		DrainTimeout:     DefaultDrainTimeout,
		ExitCode:         ExitSuccess,
	}
}

// HasRemote reports whether a remote endpoint was configured.
func (r *Record) HasRemote() bool {
	return r != nil && r.RemoteAddress != "" && r.RemotePort > 0
}

// ListenAddr returns the host:port to bind.
func (r *Record) ListenAddr() string {
	return net.JoinHostPort(r.ListenAddress, strconv.Itoa(r.ListenPort))
}

// RemoteAddr returns the host:port to dial in client mode.
func (r *Record) RemoteAddr() string {
	return net.JoinHostPort(r.RemoteAddress, strconv.Itoa(r.RemotePort))
}

// Release drops every owned string so nothing outlives cleanup. It is safe on
// a nil or partially initialized record and may be called more than once.
func (r *Record) Release() {
	if r == nil {
		return
	}
	r.ListenAddress = ""
	r.RemoteAddress = ""
	r.CertPath = ""
	r.KeyPath = ""
	r.PeerCAPath = ""
	r.MetricsListen = ""
	r.LogLevel = ""
}

// fileView mirrors the flag names so a dump can be loaded back as a config file.
type fileView struct {
	Listen           string `yaml:"listen,omitempty"`
	Port             string `yaml:"port"`
	Connect          string `yaml:"connect,omitempty"`
	TLS              string `yaml:"tls"`
	Cert             string `yaml:"cert,omitempty"`
	Key              string `yaml:"key,omitempty"`
	PeerCA           string `yaml:"peer-ca,omitempty"`
	MaxClients       int    `yaml:"max-clients"`
	BufferSize       string `yaml:"buffer-size"`
	MaxSessionBytes  string `yaml:"max-session-bytes"`
	IdleTimeout      string `yaml:"idle-timeout"`
	HandshakeTimeout string `yaml:"handshake-timeout"`
	DrainTimeout     string `yaml:"drain-timeout"`
	MetricsListen    string `yaml:"metrics-listen,omitempty"`
	Advertise        bool   `yaml:"advertise"`
	LogLevel         string `yaml:"log-level,omitempty"`
}

// Dump renders the record as YAML using the flag names as keys.
func (r *Record) Dump() ([]byte, error) {
	view := fileView{
		Listen:           r.ListenAddress,
		Port:             strconv.Itoa(r.ListenPort),
		TLS:              r.Encryption.String(),
		Cert:             r.CertPath,
		Key:              r.KeyPath,
		PeerCA:           r.PeerCAPath,
		MaxClients:       r.Capacity,
		BufferSize:       strings.ReplaceAll(humanize.IBytes(uint64(r.BufferSize)), " ", ""),
		MaxSessionBytes:  strings.ReplaceAll(humanize.IBytes(uint64(r.MaxSessionBytes)), " ", ""),
		IdleTimeout:      r.IdleTimeout.String(),
		HandshakeTimeout: r.HandshakeTimeout.String(),
		DrainTimeout:     r.DrainTimeout.String(),
		MetricsListen:    r.MetricsListen,
		Advertise:        r.Advertise,
		LogLevel:         r.LogLevel,
	}
	if r.HasRemote() {
		view.Connect = r.RemoteAddr()
	}

	data, err := yaml.Marshal(&view)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	return data, nil
}
