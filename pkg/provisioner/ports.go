package provisioner

import (
	"fmt"
	"net"
)

// PortAllocator hands out unused local TCP ports
type PortAllocator interface {
	Allocate() (int, error)
}

// EphemeralPortAllocator binds an ephemeral port and releases it immediately.
// The window between release and container bind is a known race; a bind
// failure is surfaced to the caller rather than retried here.
type EphemeralPortAllocator struct{}

// Allocate returns an unused local port
func (EphemeralPortAllocator) Allocate() (int, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, fmt.Errorf("failed to bind ephemeral port: %w", err)
	}
	defer listener.Close()

	addr, ok := listener.Addr().(*net.TCPAddr)
	if !ok {
		return 0, fmt.Errorf("unexpected listener address type %T", listener.Addr())
	}

	return addr.Port, nil
}
