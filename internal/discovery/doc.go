// Package discovery advertises running tlsecho servers over mDNS/DNS-SD and
// finds them again from the client side.
//
// Servers register as "_tlsecho._tcp" in the "local." domain with TXT
// records describing how to connect:
//
//	tls=none|tls12|tls13
//	version=<build version>
//
// # Usage Example
//
//	// Server side
//	adv, err := discovery.Advertise("", 4433, config.EncryptionTLS13, version.Version)
//	if err != nil {
//	    return err
//	}
//	defer adv.Shutdown()
//
//	// Client side
//	services, err := discovery.NewScanner().Scan(ctx)
//	for _, svc := range services {
//	    fmt.Println(svc)
//	}
//
// # Network Requirements
//
// - Requires multicast support on the network interface
// - Servers and clients must be on the same local network segment
// - Firewall must allow mDNS (UDP port 5353)
package discovery
