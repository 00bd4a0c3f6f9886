package discovery

import (
	"fmt"
	"os"
	"sync"

	"github.com/grandcat/zeroconf"
	"github.com/muurk/tlsecho/internal/config"
	"github.com/muurk/tlsecho/internal/logging"
	"go.uber.org/zap"
)

// Advertiser keeps a service registration alive until Shutdown.
type Advertiser struct {
	server   *zeroconf.Server
	instance string
	once     sync.Once
}

// InstanceName returns the default instance name for this host.
func InstanceName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "tlsecho"
	}
	return "tlsecho on " + host
}

// TXTRecords builds the TXT records describing a server.
func TXTRecords(enc config.Encryption, version string) []string {
	txt := []string{"tls=" + enc.String()}
	if version != "" {
		txt = append(txt, "version="+version)
	}
	return txt
}

// Advertise registers a server listening on port. An empty instance uses
// InstanceName.
func Advertise(instance string, port int, enc config.Encryption, version string) (*Advertiser, error) {
	if port <= 0 || port > 65535 {
		return nil, fmt.Errorf("cannot advertise invalid port %d", port)
	}
	if instance == "" {
		instance = InstanceName()
	}

	server, err := zeroconf.Register(instance, ServiceType, ServiceDomain, port, TXTRecords(enc, version), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to register mDNS service: %w", err)
	}

	logging.Info("Advertising server over mDNS",
		zap.String("instance", instance),
		zap.String("service", ServiceType),
		zap.Int("port", port),
		zap.String("tls", enc.String()),
	)
	return &Advertiser{server: server, instance: instance}, nil
}

// Shutdown withdraws the registration. It is safe on a nil Advertiser.
func (a *Advertiser) Shutdown() {
	if a == nil || a.server == nil {
		return
	}
	a.once.Do(func() {
		a.server.Shutdown()
		logging.Debug("mDNS advertisement withdrawn", zap.String("instance", a.instance))
	})
}

// Close implements io.Closer.
func (a *Advertiser) Close() error {
	a.Shutdown()
	return nil
}
