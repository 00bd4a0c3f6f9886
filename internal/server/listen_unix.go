//go:build unix

package server

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"os"

	"golang.org/x/sys/unix"
)

// listen creates a TCP listening socket with SO_REUSEADDR and ListenBacklog.
func listen(ctx context.Context, host string, port int) (net.Listener, error) {
	ip, err := resolveListenIP(ctx, host)
	if err != nil {
		return nil, err
	}

	family := unix.AF_INET
	var sa unix.Sockaddr
	if ip.Is4() || ip.Is4In6() {
		sa = &unix.SockaddrInet4{Port: port, Addr: ip.Unmap().As4()}
	} else {
		family = unix.AF_INET6
		sa6 := &unix.SockaddrInet6{Port: port, Addr: ip.As16()}
		if zone := ip.Zone(); zone != "" {
			ifi, err := net.InterfaceByName(zone)
			if err != nil {
				return nil, fmt.Errorf("unknown interface %q: %w", zone, err)
			}
			sa6.ZoneId = uint32(ifi.Index)
		}
		sa = sa6
	}

	fd, err := unix.Socket(family, unix.SOCK_STREAM, unix.IPPROTO_TCP)
	if err != nil {
		return nil, os.NewSyscallError("socket", err)
	}
	unix.CloseOnExec(fd)

	fail := func(op string, err error) (net.Listener, error) {
		_ = unix.Close(fd)
		return nil, os.NewSyscallError(op, err)
	}

	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		return fail("setsockopt", err)
	}
	if err := unix.Bind(fd, sa); err != nil {
		return fail("bind", err)
	}
	if err := unix.Listen(fd, ListenBacklog); err != nil {
		return fail("listen", err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		return fail("setnonblock", err)
	}

	// FileListener duplicates the descriptor; the original is closed below.
	f := os.NewFile(uintptr(fd), "tlsecho-listener")
	ln, err := net.FileListener(f)
	_ = f.Close()
	if err != nil {
		return nil, fmt.Errorf("failed to wrap listening socket: %w", err)
	}
	return ln, nil
}

// resolveListenIP maps the configured address to one IP. Empty means all
// IPv4 interfaces; host names prefer an IPv4 result.
func resolveListenIP(ctx context.Context, host string) (netip.Addr, error) {
	if host == "" {
		return netip.IPv4Unspecified(), nil
	}
	if ip, err := netip.ParseAddr(host); err == nil {
		return ip, nil
	}

	addrs, err := net.DefaultResolver.LookupNetIP(ctx, "ip", host)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("failed to resolve listen address %q: %w", host, err)
	}
	if len(addrs) == 0 {
		return netip.Addr{}, fmt.Errorf("listen address %q has no IP addresses", host)
	}
	for _, a := range addrs {
		if a.Unmap().Is4() {
			return a.Unmap(), nil
		}
	}
	return addrs[0], nil
}
