package gateway

import (
	"context"
)

// ContainerSpec describes one gateway container to launch
type ContainerSpec struct {
	// Name is the container name, also used as the gateway hostname on the network
	Name string
	// Image to run
	Image string
	// Network the container joins
	Network string
	// Env variables injected into the process
	Env map[string]string
	// HostPort bound on the host
	HostPort int
	// ContainerPort the process listens on
	ContainerPort int
}

// ContainerState is a minimal view of a container's runtime state
type ContainerState struct {
	ID      string
	Running bool
	Status  string
}

// ContainerRuntime starts, stops, and inspects isolated gateway processes.
// Implementations must make Stop remove the container as well, so a failed
// provisioning attempt leaves nothing behind.
type ContainerRuntime interface {
	Start(ctx context.Context, spec ContainerSpec) (id string, err error)
	Stop(ctx context.Context, id string) error
	Inspect(ctx context.Context, id string) (ContainerState, error)
	Logs(ctx context.Context, id string) (string, error)
}
