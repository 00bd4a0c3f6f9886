package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "tlsecho"

// Collector records server activity.
type Collector struct {
	registry *prometheus.Registry

	accepted          prometheus.Counter
	rejected          prometheus.Counter
	acceptErrors      prometheus.Counter
	handshakeFailures prometheus.Counter
	bytesEchoed       prometheus.Counter
	slotsInUse        prometheus.Gauge
	slotsCapacity     prometheus.Gauge
	sessionDuration   prometheus.Histogram
}

// New creates a collector on a fresh registry, including the Go runtime and
// process collectors.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		accepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_accepted_total",
			Help:      "Connections admitted into a slot.",
		}),
		rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_rejected_total",
			Help:      "Connections closed immediately because every slot was in use.",
		}),
		acceptErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "accept_errors_total",
			Help:      "Accept calls that failed at the OS level.",
		}),
		handshakeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handshake_failures_total",
			Help:      "TLS handshakes that failed or timed out.",
		}),
		bytesEchoed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_echoed_total",
			Help:      "Application bytes written back to peers.",
		}),
		slotsInUse: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "slots_in_use",
			Help:      "Connection slots currently occupied.",
		}),
		slotsCapacity: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "slots_capacity",
			Help:      "Fixed size of the connection slot pool.",
		}),
		sessionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Lifetime of admitted connections.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
		}),
	}

	c.registry.MustRegister(
		c.accepted,
		c.rejected,
		c.acceptErrors,
		c.handshakeFailures,
		c.bytesEchoed,
		c.slotsInUse,
		c.slotsCapacity,
		c.sessionDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Registry returns the registry the collectors are registered on.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

func (c *Collector) ConnectionAccepted() {
	if c != nil {
		c.accepted.Inc()
	}
}

func (c *Collector) ConnectionRejected() {
	if c != nil {
		c.rejected.Inc()
	}
}

func (c *Collector) AcceptError() {
	if c != nil {
		c.acceptErrors.Inc()
	}
}

func (c *Collector) HandshakeFailed() {
	if c != nil {
		c.handshakeFailures.Inc()
	}
}

func (c *Collector) BytesEchoed(n int) {
	if c != nil && n > 0 {
		c.bytesEchoed.Add(float64(n))
	}
}

// SetSlots publishes pool occupancy.
func (c *Collector) SetSlots(inUse, capacity int) {
	if c != nil {
		c.slotsInUse.Set(float64(inUse))
		c.slotsCapacity.Set(float64(capacity))
	}
}

func (c *Collector) SessionEnded(d time.Duration) {
	if c != nil {
		c.sessionDuration.Observe(d.Seconds())
	}
}
