package supervisor

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	"github.com/docker/go-connections/nat"
)

// DockerAPI implements ContainerAPI against the local Docker engine.
type DockerAPI struct {
	cli *client.Client
}

// NewDockerAPI creates a Docker-backed container API using the environment's
// engine settings.
func NewDockerAPI() (*DockerAPI, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return &DockerAPI{cli: cli}, nil
}

// Inspect looks up a container by name.
func (d *DockerAPI) Inspect(ctx context.Context, name string) (ContainerState, error) {
	info, err := d.cli.ContainerInspect(ctx, name)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return ContainerState{}, ErrNotFound
		}
		return ContainerState{}, err
	}
	return ContainerState{
		ID:      info.ID,
		Running: info.State != nil && info.State.Running,
	}, nil
}

// Start starts an existing container.
func (d *DockerAPI) Start(ctx context.Context, id string) error {
	return d.cli.ContainerStart(ctx, id, container.StartOptions{})
}

// CreateAndStart pulls the image if needed, then creates and starts the
// container with the given port mapping and environment.
func (d *DockerAPI) CreateAndStart(ctx context.Context, spec ContainerSpec) error {
	reader, err := d.cli.ImagePull(ctx, spec.Image, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image %s: %w", spec.Image, err)
	}
	// The pull completes when the progress stream is drained.
	_, _ = io.Copy(io.Discard, reader)
	reader.Close()

	containerPort, err := nat.NewPort("tcp", strconv.Itoa(spec.ContainerPort))
	if err != nil {
		return fmt.Errorf("invalid container port %d: %w", spec.ContainerPort, err)
	}

	env := make([]string, 0, len(spec.Env))
	for k, v := range spec.Env {
		env = append(env, k+"="+v)
	}

	created, err := d.cli.ContainerCreate(ctx,
		&container.Config{
			Image: spec.Image,
			Env:   env,
			ExposedPorts: nat.PortSet{
				containerPort: struct{}{},
			},
		},
		&container.HostConfig{
			PortBindings: nat.PortMap{
				containerPort: []nat.PortBinding{
					{HostIP: "0.0.0.0", HostPort: strconv.Itoa(spec.HostPort)},
				},
			},
		},
		nil, nil, spec.Name)
	if err != nil {
		return fmt.Errorf("failed to create container: %w", err)
	}

	return d.cli.ContainerStart(ctx, created.ID, container.StartOptions{})
}
