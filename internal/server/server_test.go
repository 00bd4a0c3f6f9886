package server

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muurk/tlsecho/internal/config"
	"github.com/muurk/tlsecho/internal/metrics"
	"github.com/muurk/tlsecho/internal/slots"
	"github.com/muurk/tlsecho/internal/testcert"
	"github.com/muurk/tlsecho/internal/tlsctx"
)

type harness struct {
	srv     *Server
	pool    *slots.Pool
	metrics *metrics.Collector
	tls     *tlsctx.Context
	cancel  context.CancelFunc
	done    chan error
}

func testOptions() Options {
	return Options{
		ListenAddress:    "127.0.0.1",
		ListenPort:       0,
		BufferSize:       config.DefaultBufferSize,
		MaxSessionBytes:  config.DefaultMaxSessionBytes,
		IdleTimeout:      time.Minute,
		HandshakeTimeout: 2 * time.Second,
		DrainTimeout:     time.Second,
	}
}

func startServer(t *testing.T, opts Options, capacity int, tlsCtx *tlsctx.Context) *harness {
	t.Helper()

	pool, err := slots.New(capacity)
	require.NoError(t, err)
	m := metrics.New()

	srv, err := New(opts, tlsCtx, pool, m)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	h := &harness{srv: srv, pool: pool, metrics: m, tls: tlsCtx, cancel: cancel, done: make(chan error, 1)}
	go func() {
		h.done <- srv.Run(ctx)
	}()

	select {
	case <-srv.Ready():
	case err := <-h.done:
		t.Fatalf("server exited before listening: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not start listening")
	}

	t.Cleanup(func() {
		h.cancel()
		select {
		case <-h.done:
		case <-time.After(10 * time.Second):
			t.Error("server did not stop")
		}
	})
	return h
}

func (h *harness) stop(t *testing.T) error {
	t.Helper()
	h.cancel()
	select {
	case err := <-h.done:
		h.done <- err
		return err
	case <-time.After(10 * time.Second):
		t.Fatal("server did not stop")
		return nil
	}
}

func (h *harness) addr() string {
	return h.srv.Addr().String()
}

func dial(t *testing.T, addr string) net.Conn {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.NoError(t, conn.SetDeadline(time.Now().Add(5*time.Second)))
	return conn
}

func roundTrip(t *testing.T, conn net.Conn, payload []byte) {
	t.Helper()
	_, err := conn.Write(payload)
	require.NoError(t, err)
	got := make([]byte, len(payload))
	_, err = io.ReadFull(conn, got)
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

// expectClosed asserts that the server closes conn without sending data.
func expectClosed(t *testing.T, conn net.Conn, within time.Duration) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(within)))
	buf := make([]byte, 16)
	n, err := conn.Read(buf)
	require.Error(t, err)
	assert.False(t, isTimeout(err), "connection was not closed within %v", within)
	assert.Zero(t, n)
}

func metricValue(t *testing.T, m *metrics.Collector, name string) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.GetMetric() {
			switch {
			case metric.GetCounter() != nil:
				return metric.GetCounter().GetValue()
			case metric.GetGauge() != nil:
				return metric.GetGauge().GetValue()
			}
		}
	}
	t.Fatalf("metric %s not found", name)
	return 0
}

func TestEchoPing(t *testing.T) {
	h := startServer(t, testOptions(), 4, nil)

	conn := dial(t, h.addr())
	roundTrip(t, conn, []byte("ping"))
	require.Equal(t, 1, h.srv.ActiveConnections())
	assert.Equal(t, float64(1), metricValue(t, h.metrics, "tlsecho_slots_in_use"))

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool {
		return h.srv.ActiveConnections() == 0
	}, 2*time.Second, 10*time.Millisecond, "slot not released after peer close")
	assert.Eventually(t, func() bool {
		return metricValue(t, h.metrics, "tlsecho_slots_in_use") == 0
	}, time.Second, 10*time.Millisecond)

	assert.Equal(t, float64(1), metricValue(t, h.metrics, "tlsecho_connections_accepted_total"))
	assert.Eventually(t, func() bool {
		return metricValue(t, h.metrics, "tlsecho_bytes_echoed_total") == 4
	}, time.Second, 10*time.Millisecond)
}

func TestEchoPreservesOrderAndContent(t *testing.T) {
	opts := testOptions()
	opts.BufferSize = 512
	h := startServer(t, opts, 2, nil)
	conn := dial(t, h.addr())

	for _, size := range []int{1, 17, 511, 512} {
		payload := make([]byte, size)
		_, err := rand.Read(payload)
		require.NoError(t, err)
		roundTrip(t, conn, payload)
	}
}

func TestCapacityRejectsExcessConnection(t *testing.T) {
	const capacity = 3
	h := startServer(t, testOptions(), capacity, nil)

	conns := make([]net.Conn, 0, capacity)
	for i := 0; i < capacity; i++ {
		conn := dial(t, h.addr())
		// A completed round trip proves the connection holds a slot.
		roundTrip(t, conn, []byte("hold"))
		conns = append(conns, conn)
	}
	require.Equal(t, capacity, h.srv.ActiveConnections())

	excess := dial(t, h.addr())
	expectClosed(t, excess, 2*time.Second)

	assert.Equal(t, capacity, h.srv.ActiveConnections())
	assert.Equal(t, float64(1), metricValue(t, h.metrics, "tlsecho_connections_rejected_total"))

	for _, conn := range conns {
		roundTrip(t, conn, []byte("still open"))
	}
}

func TestSlotReusedAfterRelease(t *testing.T) {
	h := startServer(t, testOptions(), 1, nil)

	for _, payload := range []string{"one", "two", "three"} {
		conn := dial(t, h.addr())
		roundTrip(t, conn, []byte(payload))
		require.NoError(t, conn.Close())
		require.Eventually(t, func() bool {
			return h.srv.ActiveConnections() == 0
		}, 2*time.Second, 10*time.Millisecond)
	}

	assert.Equal(t, float64(3), metricValue(t, h.metrics, "tlsecho_connections_accepted_total"))
	assert.Equal(t, float64(0), metricValue(t, h.metrics, "tlsecho_connections_rejected_total"))
}

func TestSlotFreedDuringAcceptAdmitsNext(t *testing.T) {
	h := startServer(t, testOptions(), 1, nil)

	first := dial(t, h.addr())
	roundTrip(t, first, []byte("hold"))

	// The only slot is taken, so the accept loop waits in Accept without one.
	require.Eventually(t, func() bool {
		return h.pool.InUse() == 1 && h.srv.ActiveConnections() == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, first.Close())
	require.Eventually(t, func() bool {
		return h.pool.InUse() == 0
	}, 2*time.Second, 10*time.Millisecond)

	// The loop is still blocked in Accept with no reservation; the next
	// connection must be admitted by the retry, not rejected.
	second := dial(t, h.addr())
	roundTrip(t, second, []byte("admitted"))

	assert.Equal(t, 1, h.srv.ActiveConnections())
	assert.Equal(t, float64(0), metricValue(t, h.metrics, "tlsecho_connections_rejected_total"))
	assert.Equal(t, float64(2), metricValue(t, h.metrics, "tlsecho_connections_accepted_total"))
}

func TestIdleTimeout(t *testing.T) {
	opts := testOptions()
	opts.IdleTimeout = 300 * time.Millisecond
	h := startServer(t, opts, 2, nil)

	conn := dial(t, h.addr())
	roundTrip(t, conn, []byte("ping"))
	expectClosed(t, conn, 3*time.Second)

	require.Eventually(t, func() bool {
		return h.srv.ActiveConnections() == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSessionByteLimit(t *testing.T) {
	opts := testOptions()
	opts.MaxSessionBytes = 8
	h := startServer(t, opts, 2, nil)

	conn := dial(t, h.addr())
	_, err := conn.Write([]byte("0123456789ab"))
	require.NoError(t, err)

	got := make([]byte, 8)
	_, err = io.ReadFull(conn, got)
	require.NoError(t, err)
	assert.Equal(t, "01234567", string(got))
	expectClosed(t, conn, 2*time.Second)
}

func startTLSServer(t *testing.T, opts Options, capacity int) (*harness, *testcert.Bundle) {
	t.Helper()
	b := testcert.New(t)
	tlsCtx, err := tlsctx.Build(b.CertPath, b.KeyPath, config.EncryptionTLS13)
	require.NoError(t, err)
	return startServer(t, opts, capacity, tlsCtx), b
}

func dialTLS(t *testing.T, addr string, b *testcert.Bundle) *tls.Conn {
	t.Helper()
	cfg, err := tlsctx.ClientConfig(config.EncryptionTLS13, b.CAPath, "localhost")
	require.NoError(t, err)

	dialer := &net.Dialer{Timeout: 2 * time.Second}
	conn, err := tls.DialWithDialer(dialer, "tcp", addr, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.NoError(t, conn.SetDeadline(time.Now().Add(5*time.Second)))
	return conn
}

func TestTLSEcho(t *testing.T) {
	h, b := startTLSServer(t, testOptions(), 2)

	conn := dialTLS(t, h.addr(), b)
	roundTrip(t, conn, []byte("ping over tls"))
	assert.Equal(t, uint16(tls.VersionTLS13), conn.ConnectionState().Version)

	var attached []slots.Info
	for _, info := range h.pool.Snapshot() {
		if info.Attached {
			attached = append(attached, info)
		}
	}
	require.Len(t, attached, 1)
	assert.True(t, attached[0].Secure)
}

func TestHandshakeFailureIsIsolated(t *testing.T) {
	h, b := startTLSServer(t, testOptions(), 4)

	good := dialTLS(t, h.addr(), b)
	roundTrip(t, good, []byte("before"))

	bad := dial(t, h.addr())
	_, err := bad.Write([]byte("GET / HTTP/1.0\r\n\r\n"))
	require.NoError(t, err)
	_, _ = io.Copy(io.Discard, bad)

	require.Eventually(t, func() bool {
		return h.srv.ActiveConnections() == 1
	}, 2*time.Second, 10*time.Millisecond, "failed handshake kept its slot")
	assert.Equal(t, float64(1), metricValue(t, h.metrics, "tlsecho_handshake_failures_total"))

	roundTrip(t, good, []byte("after"))
}

func TestHandshakeTimeout(t *testing.T) {
	opts := testOptions()
	opts.HandshakeTimeout = 200 * time.Millisecond
	h, _ := startTLSServer(t, opts, 2)

	silent := dial(t, h.addr())
	expectClosed(t, silent, 3*time.Second)

	require.Eventually(t, func() bool {
		return h.srv.ActiveConnections() == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestShutdownClosesConnectionsAndTLSContext(t *testing.T) {
	h, b := startTLSServer(t, testOptions(), 4)

	conn := dialTLS(t, h.addr(), b)
	roundTrip(t, conn, []byte("ping"))

	start := time.Now()
	require.NoError(t, h.stop(t))
	assert.Less(t, time.Since(start), 3*time.Second)

	assert.True(t, h.tls.Closed(), "TLS context not torn down")
	assert.Zero(t, h.srv.ActiveConnections())
	assert.Zero(t, h.pool.InUse(), "accept loop kept its reserved slot")

	_, err := conn.Read(make([]byte, 1))
	assert.Error(t, err)

	_, err = net.DialTimeout("tcp", h.addr(), time.Second)
	assert.Error(t, err, "listener still accepting after shutdown")
}

func TestShutdownForceClosesStuckWriters(t *testing.T) {
	opts := testOptions()
	opts.BufferSize = 64 << 10
	opts.DrainTimeout = 200 * time.Millisecond
	opts.IdleTimeout = time.Minute
	h := startServer(t, opts, 2, nil)

	// The client writes without reading, so the echo eventually blocks in Write.
	conn := dial(t, h.addr())
	require.NoError(t, conn.SetDeadline(time.Now().Add(30*time.Second)))
	go func() {
		chunk := bytes.Repeat([]byte("x"), 64<<10)
		for {
			if _, err := conn.Write(chunk); err != nil {
				return
			}
		}
	}()

	require.Eventually(t, func() bool {
		return metricValue(t, h.metrics, "tlsecho_bytes_echoed_total") > 0
	}, 2*time.Second, 10*time.Millisecond)
	time.Sleep(200 * time.Millisecond)

	start := time.Now()
	_ = h.stop(t)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Zero(t, h.srv.ActiveConnections())
	assert.Zero(t, h.pool.InUse())
}

func TestBindFailure(t *testing.T) {
	occupied, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer occupied.Close()

	b := testcert.New(t)
	tlsCtx, err := tlsctx.Build(b.CertPath, b.KeyPath, config.EncryptionTLS12)
	require.NoError(t, err)

	pool, _ := slots.New(1)
	opts := testOptions()
	opts.ListenPort = occupied.Addr().(*net.TCPAddr).Port
	srv, err := New(opts, tlsCtx, pool, nil)
	require.NoError(t, err)

	err = srv.Run(context.Background())
	require.Error(t, err)
	assert.Nil(t, srv.Addr())
	assert.True(t, tlsCtx.Closed(), "TLS context must be torn down on bind failure")

	select {
	case <-srv.Ready():
		t.Error("Ready closed although bind failed")
	default:
	}
}

func TestRunOnlyOnce(t *testing.T) {
	h := startServer(t, testOptions(), 1, nil)
	err := h.srv.Run(context.Background())
	require.Error(t, err)
}

func TestNewValidation(t *testing.T) {
	pool, _ := slots.New(1)

	_, err := New(testOptions(), nil, nil, nil)
	assert.Error(t, err, "nil pool")

	opts := testOptions()
	opts.ListenPort = 70000
	_, err = New(opts, nil, pool, nil)
	assert.Error(t, err, "port out of range")

	b := testcert.New(t)
	tlsCtx, err := tlsctx.Build(b.CertPath, b.KeyPath, config.EncryptionTLS13)
	require.NoError(t, err)
	tlsCtx.Close()
	_, err = New(testOptions(), tlsCtx, pool, nil)
	assert.Error(t, err, "closed TLS context")
}

func TestOptionsDefaults(t *testing.T) {
	got := Options{}.withDefaults()
	assert.Equal(t, config.DefaultBufferSize, got.BufferSize)
	assert.Equal(t, int64(config.DefaultMaxSessionBytes), got.MaxSessionBytes)
	assert.Equal(t, config.DefaultIdleTimeout, got.IdleTimeout)
	assert.Equal(t, config.DefaultHandshakeTimeout, got.HandshakeTimeout)
	assert.Equal(t, config.DefaultDrainTimeout, got.DrainTimeout)

	rec := config.Default()
	rec.ListenAddress = "127.0.0.1"
	opts := OptionsFromRecord(rec)
	assert.Equal(t, "127.0.0.1", opts.ListenAddress)
	assert.Equal(t, config.DefaultPort, opts.ListenPort)
}

func TestIsTimeout(t *testing.T) {
	assert.False(t, isTimeout(errors.New("plain")))
	assert.False(t, isTimeout(io.EOF))
	assert.True(t, isTimeout(&net.OpError{Op: "read", Err: timeoutErr{}}))
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }
