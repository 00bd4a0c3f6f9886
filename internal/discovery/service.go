package discovery

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/muurk/tlsecho/internal/config"
)

// Service is a tlsecho server found on the network.
type Service struct {
	// Instance is the advertised instance name (e.g., "tlsecho on build01")
	Instance string

	// Hostname is the mDNS hostname (e.g., "build01.local.")
	Hostname string

	// IP is the preferred address, IPv4 when available
	IP string

	Port int

	// Encryption is parsed from the tls TXT record
	Encryption config.Encryption

	// Version is the server build version, empty if not advertised
	Version string

	// Metadata contains every TXT record
	Metadata map[string]string

	DiscoveredAt time.Time
}

// String returns a human-readable representation of the service
func (s *Service) String() string {
	return fmt.Sprintf("%s (%s) at %s [%s]", s.Instance, s.Hostname, s.Addr(), s.Encryption)
}

// Addr returns the host:port to pass to --connect.
func (s *Service) Addr() string {
	return net.JoinHostPort(s.IP, strconv.Itoa(s.Port))
}

// GetMetadata retrieves a TXT value by key, or returns empty string if not found
func (s *Service) GetMetadata(key string) string {
	if s.Metadata == nil {
		return ""
	}
	return s.Metadata[key]
}
