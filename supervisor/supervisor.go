// Package supervisor ensures the pgvector container is running before the
// bot serves traffic.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/mkwng/poegate/config"
)

// ErrNotFound is returned by ContainerAPI.Inspect when no container with the
// given name exists.
var ErrNotFound = errors.New("container not found")

// ErrStartupTimeout is returned when the database did not become ready
// within the configured deadline.
var ErrStartupTimeout = errors.New("database startup timed out")

// ContainerState is the observed state of a container.
type ContainerState struct {
	ID      string
	Running bool
}

// ContainerSpec describes the container to create.
type ContainerSpec struct {
	Name          string
	Image         string
	HostPort      int
	ContainerPort int
	Env           map[string]string
}

// ContainerAPI is the narrow control-plane surface the supervisor needs.
type ContainerAPI interface {
	Inspect(ctx context.Context, name string) (ContainerState, error)
	Start(ctx context.Context, id string) error
	CreateAndStart(ctx context.Context, spec ContainerSpec) error
}

// ReadinessProbe reports whether the database accepts connections.
type ReadinessProbe interface {
	Ping(ctx context.Context) error
}

// Supervisor manages the lifetime of the database container.
type Supervisor struct {
	api          ContainerAPI
	probe        ReadinessProbe
	cfg          config.ContainerConfig
	readyTimeout time.Duration
	pollInterval time.Duration
	log          zerolog.Logger
}

// New creates a supervisor for the configured container.
func New(api ContainerAPI, probe ReadinessProbe, cfg config.ContainerConfig, readyTimeout time.Duration, log zerolog.Logger) *Supervisor {
	return &Supervisor{
		api:          api,
		probe:        probe,
		cfg:          cfg,
		readyTimeout: readyTimeout,
		pollInterval: time.Second,
		log:          log,
	}
}

// EnsureRunning makes sure the container exists and is running, then waits
// until the database accepts connections. Control-plane errors other than
// "not found" propagate unchanged and abort startup.
func (s *Supervisor) EnsureRunning(ctx context.Context) error {
	state, err := s.api.Inspect(ctx, s.cfg.Name)
	switch {
	case errors.Is(err, ErrNotFound):
		s.log.Info().Str("container", s.cfg.Name).Str("image", s.cfg.Image).
			Msg("container not found, creating and starting")
		spec := ContainerSpec{
			Name:          s.cfg.Name,
			Image:         s.cfg.Image,
			HostPort:      s.cfg.HostPort,
			ContainerPort: s.cfg.ContainerPort,
			Env: map[string]string{
				"POSTGRES_DB":       s.cfg.DBName,
				"POSTGRES_USER":     s.cfg.DBUser,
				"POSTGRES_PASSWORD": s.cfg.DBPassword,
			},
		}
		if err := s.api.CreateAndStart(ctx, spec); err != nil {
			return fmt.Errorf("failed to create container %s: %w", s.cfg.Name, err)
		}
	case err != nil:
		return fmt.Errorf("failed to inspect container %s: %w", s.cfg.Name, err)
	case !state.Running:
		s.log.Info().Str("container", s.cfg.Name).Msg("container stopped, starting")
		if err := s.api.Start(ctx, state.ID); err != nil {
			return fmt.Errorf("failed to start container %s: %w", s.cfg.Name, err)
		}
	}

	return s.waitReady(ctx)
}

// waitReady polls the database until it accepts connections or the deadline
// passes.
func (s *Supervisor) waitReady(ctx context.Context) error {
	deadline := time.Now().Add(s.readyTimeout)
	var lastErr error

	for {
		pingCtx, cancel := context.WithTimeout(ctx, s.pollInterval)
		err := s.probe.Ping(pingCtx)
		cancel()
		if err == nil {
			s.log.Info().Str("container", s.cfg.Name).Msg("database ready")
			return nil
		}
		lastErr = err

		if time.Now().After(deadline) {
			return fmt.Errorf("%w after %s: %v", ErrStartupTimeout, s.readyTimeout, lastErr)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.pollInterval):
		}
	}
}
