package logging

import (
	"crypto/tls"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input   string
		want    zapcore.Level
		wantErr bool
	}{
		{"debug", zapcore.DebugLevel, false},
		{"INFO", zapcore.InfoLevel, false},
		{"warn", zapcore.WarnLevel, false},
		{"warning", zapcore.WarnLevel, false},
		{" error ", zapcore.ErrorLevel, false},
		{"verbose", zapcore.InfoLevel, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseLevel(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLevel(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestInitializeSilentByDefault(t *testing.T) {
	t.Setenv(LogLevelEnvVar, "")
	defer SetLogger(nil)

	if err := Initialize(""); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if GetLogger().Core().Enabled(zapcore.ErrorLevel) {
		t.Error("expected no-op logger when no level is configured")
	}
}

func TestInitializeFromEnv(t *testing.T) {
	t.Setenv(LogLevelEnvVar, "warn")
	defer SetLogger(nil)

	if err := Initialize(""); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	core := GetLogger().Core()
	if core.Enabled(zapcore.InfoLevel) {
		t.Error("info should be disabled at warn level")
	}
	if !core.Enabled(zapcore.WarnLevel) {
		t.Error("warn should be enabled at warn level")
	}
}

func TestInitializeRejectsUnknownLevel(t *testing.T) {
	defer SetLogger(nil)
	if err := Initialize("chatty"); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

func TestLogConnectionFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	SetLogger(zap.New(core))
	defer SetLogger(nil)

	LogConnection("127.0.0.1:5000", "abc", "accepted")

	entries := logs.FilterMessage("Connection event").All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	ctx := entries[0].ContextMap()
	if ctx["remote_addr"] != "127.0.0.1:5000" {
		t.Errorf("remote_addr = %v, want 127.0.0.1:5000", ctx["remote_addr"])
	}
	if ctx["event"] != "accepted" {
		t.Errorf("event = %v, want accepted", ctx["event"])
	}
}

func TestLogTLSHandshakeNames(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	SetLogger(zap.New(core))
	defer SetLogger(nil)

	LogTLSHandshake("peer", tls.ConnectionState{
		Version:     tls.VersionTLS13,
		CipherSuite: tls.TLS_AES_128_GCM_SHA256,
	})

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	ctx := entries[0].ContextMap()
	if ctx["tls_version"] != "TLS 1.3" {
		t.Errorf("tls_version = %v, want TLS 1.3", ctx["tls_version"])
	}
	if ctx["cipher_suite"] != "TLS_AES_128_GCM_SHA256" {
		t.Errorf("cipher_suite = %v", ctx["cipher_suite"])
	}
}

func TestLogRawBytesOnlyAtDebug(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	SetLogger(zap.New(core))
	defer SetLogger(nil)

	LogRawBytes("payload", "peer", []byte("ping"))
	if logs.Len() != 0 {
		t.Errorf("expected no entries at info level, got %d", logs.Len())
	}
}

func TestDumpsTruncate(t *testing.T) {
	data := []byte(strings.Repeat("a", maxDumpBytes+10))

	if got := hexDump(data); !strings.HasSuffix(got, "...") {
		t.Error("hexDump should mark truncated output")
	}
	if got := asciiDump(data); len(got) != maxDumpBytes {
		t.Errorf("asciiDump length = %d, want %d", len(got), maxDumpBytes)
	}
	if got := asciiDump([]byte{0x00, 'A', 0x7f}); got != ".A." {
		t.Errorf("asciiDump = %q, want %q", got, ".A.")
	}
}

func TestSetLoggerWhileLogging(t *testing.T) {
	defer SetLogger(nil)

	core, logs := observer.New(zapcore.InfoLevel)
	stop := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					LogConnection("192.0.2.1:5000", "s", "accepted")
				}
			}
		}()
	}

	for i := 0; i < 100; i++ {
		if i%2 == 0 {
			SetLogger(zap.New(core))
		} else {
			SetLogger(nil)
		}
	}
	SetLogger(zap.New(core))
	if err := Initialize("off"); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	close(stop)
	wg.Wait()

	if GetLogger().Core().Enabled(zapcore.ErrorLevel) {
		t.Error("expected no-op logger after Initialize(\"off\")")
	}
	t.Logf("observed %d entries during swaps", logs.Len())
}
