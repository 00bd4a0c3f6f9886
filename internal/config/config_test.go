package config

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

// isolate points the default config location at an empty directory.
func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
}

func TestDefault(t *testing.T) {
	rec := Default()

	if rec.Mode != ModeServer {
		t.Errorf("Default().Mode = %v, want server", rec.Mode)
	}
	if rec.ListenPort != DefaultPort {
		t.Errorf("Default().ListenPort = %d, want %d", rec.ListenPort, DefaultPort)
	}
	if rec.Encryption != EncryptionNone {
		t.Errorf("Default().Encryption = %v, want none", rec.Encryption)
	}
	if rec.HasRemote() {
		t.Error("Default() should not have a remote endpoint")
	}
}

func TestParsePort(t *testing.T) {
	tests := []struct {
		input   string
		want    int
		wantErr bool
	}{
		{"1", 1, false},
		{"12345", 12345, false},
		{"65535", 65535, false},
		{"0", 0, true},
		{"-1", 0, true},
		{"65536", 0, true},
		{"70000", 0, true},
		{"http", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParsePort("port", tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParsePort(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParsePort(%q) = %d, want %d", tt.input, got, tt.want)
			}
			var cfgErr *Error
			if err != nil && !errors.As(err, &cfgErr) {
				t.Errorf("expected *config.Error, got %T", err)
			}
		})
	}
}

func TestParseEndpoint(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantHost string
		wantPort int
		wantErr  bool
	}{
		{"ipv4", "127.0.0.1:8080", "127.0.0.1", 8080, false},
		{"hostname", "echo.example.com:443", "echo.example.com", 443, false},
		{"ipv6", "[::1]:9000", "::1", 9000, false},
		{"missing port", "127.0.0.1", "", 0, true},
		{"missing host", ":8080", "", 0, true},
		{"bad port", "localhost:99999", "", 0, true},
		{"bad host", "bad_host!:80", "", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			host, port, err := ParseEndpoint("connect", tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseEndpoint(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if host != tt.wantHost || port != tt.wantPort {
				t.Errorf("ParseEndpoint(%q) = %q, %d, want %q, %d", tt.input, host, port, tt.wantHost, tt.wantPort)
			}
		})
	}
}

func TestParseEncryption(t *testing.T) {
	tests := []struct {
		input   string
		want    Encryption
		wantErr bool
	}{
		{"none", EncryptionNone, false},
		{"", EncryptionNone, false},
		{"tls12", EncryptionTLS12, false},
		{"TLS1.2", EncryptionTLS12, false},
		{"tls13", EncryptionTLS13, false},
		{"tlsv1.3", EncryptionTLS13, false},
		{"ssl3", EncryptionNone, true},
		{"tls11", EncryptionNone, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseEncryption(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseEncryption(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseEncryption(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestValidatePath(t *testing.T) {
	if err := ValidatePath("cert", "/etc/ssl/cert.pem"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := ValidatePath("cert", strings.Repeat("a", MaxPathLength+1)); err == nil {
		t.Error("expected error for overlong path")
	}
	if err := ValidatePath("cert", "bad\x00path"); err == nil {
		t.Error("expected error for NUL byte")
	}
}

func TestParseArgsDefaults(t *testing.T) {
	isolate(t)
	rec := Default()

	if err := ParseArgs(nil, rec, nil); err != nil {
		t.Fatalf("ParseArgs() error = %v", err)
	}
	if rec.ListenPort != DefaultPort {
		t.Errorf("ListenPort = %d, want %d", rec.ListenPort, DefaultPort)
	}
	if rec.BufferSize != DefaultBufferSize {
		t.Errorf("BufferSize = %d, want %d", rec.BufferSize, DefaultBufferSize)
	}
	if rec.IdleTimeout != DefaultIdleTimeout {
		t.Errorf("IdleTimeout = %v, want %v", rec.IdleTimeout, DefaultIdleTimeout)
	}
}

func TestParseArgsFlags(t *testing.T) {
	isolate(t)
	rec := Default()

	args := []string{
		"--listen", "127.0.0.1",
		"-p", "12345",
		"--tls", "tls13",
		"--cert", "/tmp/cert.pem",
		"--key", "/tmp/key.pem",
		"--max-clients", "4",
		"--buffer-size", "8KiB",
		"--idle-timeout", "30s",
		"--metrics-listen", "127.0.0.1:9100",
		"--advertise",
	}
	if err := ParseArgs(args, rec, nil); err != nil {
		t.Fatalf("ParseArgs() error = %v", err)
	}

	if rec.ListenAddress != "127.0.0.1" || rec.ListenPort != 12345 {
		t.Errorf("listen = %s:%d", rec.ListenAddress, rec.ListenPort)
	}
	if rec.Encryption != EncryptionTLS13 {
		t.Errorf("Encryption = %v, want tls13", rec.Encryption)
	}
	if rec.Capacity != 4 {
		t.Errorf("Capacity = %d, want 4", rec.Capacity)
	}
	if rec.BufferSize != 8192 {
		t.Errorf("BufferSize = %d, want 8192", rec.BufferSize)
	}
	if rec.IdleTimeout != 30*time.Second {
		t.Errorf("IdleTimeout = %v, want 30s", rec.IdleTimeout)
	}
	if !rec.Advertise {
		t.Error("Advertise should be true")
	}
}

func TestParseArgsConnect(t *testing.T) {
	isolate(t)
	rec := Default()

	if err := ParseArgs([]string{"--connect", "10.0.0.5:7"}, rec, nil); err != nil {
		t.Fatalf("ParseArgs() error = %v", err)
	}
	if !rec.HasRemote() {
		t.Fatal("expected remote endpoint")
	}
	if rec.RemoteAddr() != "10.0.0.5:7" {
		t.Errorf("RemoteAddr() = %s", rec.RemoteAddr())
	}
}

func TestParseArgsHelp(t *testing.T) {
	isolate(t)
	rec := Default()
	var out bytes.Buffer

	err := ParseArgs([]string{"--help"}, rec, &out)
	if !errors.Is(err, ErrHelp) {
		t.Fatalf("ParseArgs(--help) error = %v, want ErrHelp", err)
	}
	if rec.Mode != ModeHelp {
		t.Errorf("Mode = %v, want help", rec.Mode)
	}
	if !strings.Contains(out.String(), "--max-clients") {
		t.Error("usage should list --max-clients")
	}
}

func TestParseArgsErrors(t *testing.T) {
	tests := []struct {
		name  string
		args  []string
		field string
	}{
		{"port too high", []string{"--port", "70000"}, "port"},
		{"port zero", []string{"-p", "0"}, "port"},
		{"bad listen", []string{"--listen", "not an address"}, "listen"},
		{"bad connect", []string{"--connect", "nohost"}, "connect"},
		{"bad tls", []string{"--tls", "sslv3"}, "tls"},
		{"capacity zero", []string{"--max-clients", "0"}, "max-clients"},
		{"bad duration", []string{"--idle-timeout", "soon"}, "idle-timeout"},
		{"bad size", []string{"--buffer-size", "2GiB"}, "buffer-size"},
		{"session bytes overflow", []string{"--max-session-bytes", "10EiB"}, "max-session-bytes"},
		{"session bytes at 2^63", []string{"--max-session-bytes", "8EiB"}, "max-session-bytes"},
		{"session bytes zero", []string{"--max-session-bytes", "0"}, "max-session-bytes"},
		{"bad log level", []string{"--log-level", "loud"}, "log-level"},
		{"positional", []string{"extra"}, "arguments"},
		{"unknown flag", []string{"--nope"}, "arguments"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)
			err := ParseArgs(tt.args, Default(), nil)
			var cfgErr *Error
			if !errors.As(err, &cfgErr) {
				t.Fatalf("ParseArgs(%v) error = %v, want *config.Error", tt.args, err)
			}
			if cfgErr.Field != tt.field {
				t.Errorf("Field = %q, want %q", cfgErr.Field, tt.field)
			}
		})
	}
}

func TestParseArgsLargeSessionBytes(t *testing.T) {
	isolate(t)
	rec := Default()
	if err := ParseArgs([]string{"--max-session-bytes", "7EiB"}, rec, nil); err != nil {
		t.Fatalf("ParseArgs() error = %v", err)
	}
	if want := int64(7) << 60; rec.MaxSessionBytes != want {
		t.Errorf("MaxSessionBytes = %d, want %d", rec.MaxSessionBytes, want)
	}
}

func TestParseArgsEnvironment(t *testing.T) {
	isolate(t)
	t.Setenv("TLSECHO_PORT", "2222")
	t.Setenv("TLSECHO_MAX_CLIENTS", "7")

	rec := Default()
	if err := ParseArgs(nil, rec, nil); err != nil {
		t.Fatalf("ParseArgs() error = %v", err)
	}
	if rec.ListenPort != 2222 {
		t.Errorf("ListenPort = %d, want 2222", rec.ListenPort)
	}
	if rec.Capacity != 7 {
		t.Errorf("Capacity = %d, want 7", rec.Capacity)
	}

	// Flags win over the environment
	rec = Default()
	if err := ParseArgs([]string{"--port", "3333"}, rec, nil); err != nil {
		t.Fatalf("ParseArgs() error = %v", err)
	}
	if rec.ListenPort != 3333 {
		t.Errorf("ListenPort = %d, want 3333", rec.ListenPort)
	}
}

func TestParseArgsConfigFile(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "tlsecho.yaml")
	content := "port: 5555\nmax-clients: 3\nidle-timeout: 1m\n"
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	rec := Default()
	if err := ParseArgs([]string{"--config", path, "--max-clients", "9"}, rec, nil); err != nil {
		t.Fatalf("ParseArgs() error = %v", err)
	}
	if rec.ListenPort != 5555 {
		t.Errorf("ListenPort = %d, want 5555", rec.ListenPort)
	}
	if rec.Capacity != 9 {
		t.Errorf("Capacity = %d, want 9 (flag overrides file)", rec.Capacity)
	}
	if rec.IdleTimeout != time.Minute {
		t.Errorf("IdleTimeout = %v, want 1m", rec.IdleTimeout)
	}
}

func TestParseArgsConfigFileUnknownKey(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "tlsecho.yaml")
	if err := os.WriteFile(path, []byte("colour: blue\n"), 0600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	err := ParseArgs([]string{"--config", path}, Default(), nil)
	if err == nil || !strings.Contains(err.Error(), "colour") {
		t.Fatalf("expected unknown key error, got %v", err)
	}
}

func TestParseArgsMissingExplicitConfig(t *testing.T) {
	isolate(t)
	err := ParseArgs([]string{"--config", filepath.Join(t.TempDir(), "missing.yaml")}, Default(), nil)
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}

func TestDefaultConfigFileIsPickedUp(t *testing.T) {
	if runtime.GOOS == "windows" || runtime.GOOS == "darwin" {
		t.Skip("XDG_CONFIG_HOME only applies on Linux and other Unix systems")
	}
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	if err := os.MkdirAll(filepath.Join(dir, appName), 0700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, appName, configFile), []byte("port: 6000\n"), 0600); err != nil {
		t.Fatal(err)
	}

	rec := Default()
	if err := ParseArgs(nil, rec, nil); err != nil {
		t.Fatalf("ParseArgs() error = %v", err)
	}
	if rec.ListenPort != 6000 {
		t.Errorf("ListenPort = %d, want 6000", rec.ListenPort)
	}
}

func TestWriteFileRoundTrip(t *testing.T) {
	isolate(t)
	rec := Default()
	rec.ListenAddress = "127.0.0.1"
	rec.ListenPort = 7070
	rec.Capacity = 5
	rec.Encryption = EncryptionTLS12
	rec.CertPath = "/tmp/c.pem"
	rec.KeyPath = "/tmp/k.pem"

	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	if err := WriteFile(path, rec); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	loaded := Default()
	if err := ParseArgs([]string{"--config", path}, loaded, nil); err != nil {
		t.Fatalf("ParseArgs() error = %v", err)
	}
	if loaded.ListenPort != 7070 || loaded.Capacity != 5 || loaded.Encryption != EncryptionTLS12 {
		t.Errorf("round trip mismatch: %+v", loaded)
	}
	if loaded.BufferSize != rec.BufferSize {
		t.Errorf("BufferSize = %d, want %d", loaded.BufferSize, rec.BufferSize)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Record)
		wantErr bool
	}{
		{"plain server", func(r *Record) {}, false},
		{"tls server without cert", func(r *Record) { r.Encryption = EncryptionTLS13 }, true},
		{"tls server with cert", func(r *Record) {
			r.Encryption = EncryptionTLS13
			r.CertPath, r.KeyPath = "c", "k"
		}, false},
		{"tls client without cert", func(r *Record) {
			r.Encryption = EncryptionTLS12
			r.RemoteAddress, r.RemotePort = "127.0.0.1", 80
		}, false},
		{"peer ca without tls", func(r *Record) { r.PeerCAPath = "ca.pem" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := Default()
			tt.mutate(rec)
			if err := Validate(rec); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestReleaseIsNilSafe(t *testing.T) {
	var rec *Record
	rec.Release()

	rec = Default()
	rec.CertPath = "/tmp/cert.pem"
	rec.RemoteAddress = "example.com"
	rec.Release()
	rec.Release()
	if rec.CertPath != "" || rec.RemoteAddress != "" {
		t.Error("Release() should clear owned strings")
	}
}

func TestGetConfigPath(t *testing.T) {
	isolate(t)
	configPath, err := GetConfigPath()
	if err != nil {
		t.Fatalf("GetConfigPath() error = %v", err)
	}
	if filepath.Base(configPath) != "config.yaml" {
		t.Errorf("GetConfigPath() should end with 'config.yaml', got: %v", configPath)
	}
	if !strings.Contains(configPath, appName) {
		t.Errorf("GetConfigPath() = %v, should contain %q", configPath, appName)
	}
}
