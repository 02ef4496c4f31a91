//go:build !linux

package server

import (
	"context"
	"net"
	"strconv"
)

// listen falls back to the portable listener; the backlog is left to the OS.
func listen(address string, port, _ int) (net.Listener, error) {
	var lc net.ListenConfig
	return lc.Listen(context.Background(), "tcp", net.JoinHostPort(address, strconv.Itoa(port)))
}
