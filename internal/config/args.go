package config

import (
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/muurk/tlsecho/internal/logging"
)

// EnvPrefix is prepended to upper-cased flag names to form environment keys,
// e.g. TLSECHO_MAX_CLIENTS.
const EnvPrefix = "TLSECHO"

const usageHeader = `Usage: tlsecho [flags]

Runs a multi-client TCP/TLS echo server. With --connect, runs an interactive
client against a remote echo server instead.

Every flag can also be set through a TLSECHO_<FLAG> environment variable or a
YAML config file (keys are flag names).

Flags:
`

// NewFlagSet declares every flag with defaults taken from rec.
func NewFlagSet(rec *Record) *pflag.FlagSet {
	if rec == nil {
		rec = Default()
	}
	fs := pflag.NewFlagSet(appName, pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.SortFlags = false

	fs.BoolP("help", "h", false, "Show this help and exit")
	fs.StringP("listen", "l", rec.ListenAddress, "Listen address (empty = all interfaces)")
	fs.StringP("port", "p", strconv.Itoa(rec.ListenPort), "Listen port (1-65535)")
	fs.StringP("connect", "c", "", "Run as client against address:port")
	fs.StringP("tls", "e", rec.Encryption.String(), "Encryption mode (none, tls12, tls13)")
	fs.String("cert", rec.CertPath, "Path to PEM certificate (server TLS)")
	fs.String("key", rec.KeyPath, "Path to PEM private key (server TLS)")
	fs.String("peer-ca", rec.PeerCAPath, "CA bundle used to verify the peer certificate")
	fs.Int("max-clients", rec.Capacity, "Maximum simultaneous connections")
	fs.String("buffer-size", strconv.Itoa(rec.BufferSize), "Echo read buffer size (e.g. 4KiB)")
	fs.String("max-session-bytes", strconv.FormatInt(rec.MaxSessionBytes, 10), "Bytes echoed per connection before it is closed (e.g. 64MiB)")
	fs.String("idle-timeout", rec.IdleTimeout.String(), "Close connections idle for this long")
	fs.String("handshake-timeout", rec.HandshakeTimeout.String(), "Maximum duration of a TLS handshake")
	fs.String("drain-timeout", rec.DrainTimeout.String(), "Grace period for open connections on shutdown")
	fs.String("metrics-listen", rec.MetricsListen, "Serve Prometheus metrics on this address (e.g. 127.0.0.1:9100)")
	fs.Bool("advertise", rec.Advertise, "Advertise the server over mDNS/DNS-SD")
	fs.String("log-level", rec.LogLevel, "Log level (debug, info, warn, error, off)")
	fs.String("config", "", "Path to YAML config file (default $XDG_CONFIG_HOME/tlsecho/config.yaml)")

	return fs
}

// Usage writes the help text.
func Usage(w io.Writer) {
	fmt.Fprint(w, usageHeader)
	fmt.Fprint(w, NewFlagSet(Default()).FlagUsages())
}

// ParseArgs populates rec from args, TLSECHO_* environment variables and the
// optional config file. Help prints usage to stdout, sets ModeHelp and returns
// ErrHelp. Any other error is a configuration error and leaves rec partially
// populated.
func ParseArgs(args []string, rec *Record, stdout io.Writer) error {
	if rec == nil {
		return errors.New("configuration record is nil")
	}

	fs := NewFlagSet(rec)
	if err := fs.Parse(args); err != nil {
		return &Error{Field: "arguments", Err: err}
	}

	if help, _ := fs.GetBool("help"); help {
		rec.Mode = ModeHelp
		if stdout != nil {
			Usage(stdout)
		}
		return ErrHelp
	}
	if fs.NArg() > 0 {
		return &Error{Field: "arguments", Value: strings.Join(fs.Args(), " "), Err: errors.New("unexpected positional arguments")}
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(fs); err != nil {
		return fmt.Errorf("failed to bind flags: %w", err)
	}

	path, err := resolveConfigFile(strings.TrimSpace(v.GetString("config")))
	if err != nil {
		return err
	}
	if path != "" {
		values, err := LoadFile(path)
		if err != nil {
			return &Error{Field: "config", Value: path, Err: err}
		}
		for key, value := range values {
			if key == "config" || key == "help" || fs.Lookup(key) == nil {
				return &Error{Field: "config", Value: path, Err: fmt.Errorf("unknown key %q", key)}
			}
			v.SetDefault(key, value)
		}
	}

	return apply(v, rec)
}

// apply copies merged values into rec, validating each field.
func apply(v *viper.Viper, rec *Record) error {
	listen := strings.TrimSpace(v.GetString("listen"))
	if err := ValidateAddress("listen", listen); err != nil {
		return err
	}
	rec.ListenAddress = listen

	port, err := ParsePort("port", v.GetString("port"))
	if err != nil {
		return err
	}
	rec.ListenPort = port

	if connect := strings.TrimSpace(v.GetString("connect")); connect != "" {
		host, remotePort, err := ParseEndpoint("connect", connect)
		if err != nil {
			return err
		}
		rec.RemoteAddress = host
		rec.RemotePort = remotePort
	}

	enc, err := ParseEncryption(v.GetString("tls"))
	if err != nil {
		return err
	}
	rec.Encryption = enc

	for _, p := range []struct {
		field string
		dst   *string
	}{
		{"cert", &rec.CertPath},
		{"key", &rec.KeyPath},
		{"peer-ca", &rec.PeerCAPath},
	} {
		value := strings.TrimSpace(v.GetString(p.field))
		if err := ValidatePath(p.field, value); err != nil {
			return err
		}
		*p.dst = value
	}

	capacity := v.GetInt("max-clients")
	if capacity < 1 || capacity > MaxCapacity {
		return &Error{Field: "max-clients", Value: v.GetString("max-clients"), Err: fmt.Errorf("must be between 1 and %d", MaxCapacity)}
	}
	rec.Capacity = capacity

	bufferSize, err := ParseSize("buffer-size", v.GetString("buffer-size"), 1, MaxBufferSize)
	if err != nil {
		return err
	}
	rec.BufferSize = int(bufferSize)

	sessionBytes, err := ParseSize("max-session-bytes", v.GetString("max-session-bytes"), 1, math.MaxInt64)
	if err != nil {
		return err
	}
	rec.MaxSessionBytes = int64(sessionBytes)

	if rec.IdleTimeout, err = ParsePositiveDuration("idle-timeout", v.GetString("idle-timeout")); err != nil {
		return err
	}
	if rec.HandshakeTimeout, err = ParsePositiveDuration("handshake-timeout", v.GetString("handshake-timeout")); err != nil {
		return err
	}
	if rec.DrainTimeout, err = ParsePositiveDuration("drain-timeout", v.GetString("drain-timeout")); err != nil {
		return err
	}

	if metrics := strings.TrimSpace(v.GetString("metrics-listen")); metrics != "" {
		if _, _, err := net.SplitHostPort(metrics); err != nil {
			return &Error{Field: "metrics-listen", Value: metrics, Err: errors.New("expected address:port")}
		}
		rec.MetricsListen = metrics
	}

	rec.Advertise = v.GetBool("advertise")

	level := strings.TrimSpace(v.GetString("log-level"))
	if level != "" && level != "off" {
		if _, err := logging.ParseLevel(level); err != nil {
			return &Error{Field: "log-level", Value: level, Err: err}
		}
	}
	rec.LogLevel = level

	return nil
}
