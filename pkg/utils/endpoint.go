package utils

import (
	"fmt"
	"net"
	"os"
	"strings"
)

// ParseEndpoint splits an endpoint like tcp://0.0.0.0:5555 or
// unix:///run/diskwarden.sock into network and address. A bare path is
// taken as a unix socket.
func ParseEndpoint(ep string) (string, string, error) {
	if strings.HasPrefix(strings.ToLower(ep), "unix://") || strings.HasPrefix(strings.ToLower(ep), "tcp://") {
		s := strings.SplitN(ep, "://", 2)
		if s[1] != "" {
			return s[0], s[1], nil
		}
		return "", "", fmt.Errorf("invalid endpoint: %v", ep)
	}
	// Assume everything else is a file path for a Unix Domain Socket.
	return "unix", ep, nil
}

// ListenEndpoint creates a listener for a unix socket or TCP endpoint
// and returns a cleanup function. A stale socket file is removed before
// binding; "tcp://*:port" binds every interface.
func ListenEndpoint(endpoint string) (net.Listener, func(), error) {
	proto, addr, err := ParseEndpoint(endpoint)
	if err != nil {
		return nil, nil, err
	}

	cleanup := func() {}
	switch proto {
	case "unix":
		if !strings.HasPrefix(addr, "/") {
			addr = "/" + addr
		}
		if err := os.Remove(addr); err != nil && !os.IsNotExist(err) {
			return nil, nil, fmt.Errorf("%s: %q", addr, err)
		}
		sock := addr
		cleanup = func() {
			os.Remove(sock)
		}
	case "tcp":
		addr = strings.TrimPrefix(addr, "*")
	}

	l, err := net.Listen(proto, addr)
	return l, cleanup, err
}
