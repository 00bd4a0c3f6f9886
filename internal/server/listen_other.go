//go:build !unix

package server

import (
	"context"
	"net"
	"strconv"
)

// listen falls back to the runtime listener, which applies its own backlog.
func listen(ctx context.Context, host string, port int) (net.Listener, error) {
	network := "tcp"
	if host == "" {
		network = "tcp4"
	}
	var lc net.ListenConfig
	return lc.Listen(ctx, network, net.JoinHostPort(host, strconv.Itoa(port)))
}
