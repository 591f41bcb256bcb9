package gateway

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/Gobusters/ectologger"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
)

// DockerRuntime implements ContainerRuntime against the Docker Engine API
type DockerRuntime struct {
	cli    *client.Client
	logger ectologger.Logger
}

// NewDockerRuntime creates a runtime from the environment's Docker settings
func NewDockerRuntime(logger ectologger.Logger) (*DockerRuntime, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}

	return &DockerRuntime{
		cli:    cli,
		logger: logger,
	}, nil
}

// Client exposes the underlying engine client for health probing
func (r *DockerRuntime) Client() *client.Client {
	return r.cli
}

// Start creates and starts a container from the given spec, returning its id
func (r *DockerRuntime) Start(ctx context.Context, spec ContainerSpec) (string, error) {
	containerPort, err := nat.NewPort("tcp", fmt.Sprintf("%d", spec.ContainerPort))
	if err != nil {
		return "", fmt.Errorf("invalid container port %d: %w", spec.ContainerPort, err)
	}

	env := make([]string, 0, len(spec.Env))
	for key, value := range spec.Env {
		env = append(env, fmt.Sprintf("%s=%s", key, value))
	}
	sort.Strings(env)

	cfg := &container.Config{
		Image: spec.Image,
		Env:   env,
		ExposedPorts: nat.PortSet{
			containerPort: struct{}{},
		},
	}

	hostCfg := &container.HostConfig{
		PortBindings: nat.PortMap{
			containerPort: []nat.PortBinding{
				{HostIP: "0.0.0.0", HostPort: fmt.Sprintf("%d", spec.HostPort)},
			},
		},
		RestartPolicy: container.RestartPolicy{Name: container.RestartPolicyUnlessStopped},
	}

	var netCfg *network.NetworkingConfig
	if spec.Network != "" {
		netCfg = &network.NetworkingConfig{
			EndpointsConfig: map[string]*network.EndpointSettings{
				spec.Network: {},
			},
		}
	}

	created, err := r.cli.ContainerCreate(ctx, cfg, hostCfg, netCfg, nil, spec.Name)
	if err != nil {
		return "", fmt.Errorf("failed to create container %s: %w", spec.Name, err)
	}

	if err := r.cli.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		// creation succeeded; clean up the stopped shell
		_ = r.cli.ContainerRemove(ctx, created.ID, container.RemoveOptions{Force: true})
		return "", fmt.Errorf("failed to start container %s: %w", spec.Name, err)
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"container_id": created.ID,
		"name":         spec.Name,
		"host_port":    spec.HostPort,
	}).Info("started gateway container")

	return created.ID, nil
}

// Stop stops and removes a container
func (r *DockerRuntime) Stop(ctx context.Context, id string) error {
	timeout := 10
	if err := r.cli.ContainerStop(ctx, id, container.StopOptions{Timeout: &timeout}); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"container_id": id,
		}).Warn("failed to stop container, forcing removal")
	}

	if err := r.cli.ContainerRemove(ctx, id, container.RemoveOptions{Force: true}); err != nil {
		return fmt.Errorf("failed to remove container %s: %w", id, err)
	}

	return nil
}

// Inspect returns the container's runtime state
func (r *DockerRuntime) Inspect(ctx context.Context, id string) (ContainerState, error) {
	info, err := r.cli.ContainerInspect(ctx, id)
	if err != nil {
		return ContainerState{}, fmt.Errorf("failed to inspect container %s: %w", id, err)
	}

	state := ContainerState{ID: info.ID}
	if info.State != nil {
		state.Running = info.State.Running
		state.Status = info.State.Status
	}

	return state, nil
}

// Logs returns the tail of a container's combined output. Used to capture
// diagnostics before tearing down a failed gateway.
func (r *DockerRuntime) Logs(ctx context.Context, id string) (string, error) {
	reader, err := r.cli.ContainerLogs(ctx, id, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Tail:       "100",
	})
	if err != nil {
		return "", fmt.Errorf("failed to read container logs %s: %w", id, err)
	}
	defer reader.Close()

	out, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("failed to read container logs %s: %w", id, err)
	}

	return string(out), nil
}
