package supervisor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/mkwng/poegate/config"
)

type fakeContainerAPI struct {
	state      ContainerState
	inspectErr error

	startCalls  []string
	createCalls []ContainerSpec
}

func (f *fakeContainerAPI) Inspect(ctx context.Context, name string) (ContainerState, error) {
	if f.inspectErr != nil {
		return ContainerState{}, f.inspectErr
	}
	return f.state, nil
}

func (f *fakeContainerAPI) Start(ctx context.Context, id string) error {
	f.startCalls = append(f.startCalls, id)
	return nil
}

func (f *fakeContainerAPI) CreateAndStart(ctx context.Context, spec ContainerSpec) error {
	f.createCalls = append(f.createCalls, spec)
	return nil
}

type fakeProbe struct {
	failures int
	calls    int
}

func (f *fakeProbe) Ping(ctx context.Context) error {
	f.calls++
	if f.calls <= f.failures {
		return errors.New("connection refused")
	}
	return nil
}

func testContainerConfig() config.ContainerConfig {
	return config.ContainerConfig{
		Name:          "pgvector",
		Image:         "phidata/pgvector:16",
		HostPort:      5532,
		ContainerPort: 5432,
		DBName:        "ai",
		DBUser:        "ai",
		DBPassword:    "ai",
	}
}

func newTestSupervisor(api ContainerAPI, probe ReadinessProbe, timeout time.Duration) *Supervisor {
	s := New(api, probe, testContainerConfig(), timeout, zerolog.Nop())
	s.pollInterval = time.Millisecond
	return s
}

func TestEnsureRunningCreatesMissingContainer(t *testing.T) {
	api := &fakeContainerAPI{inspectErr: ErrNotFound}
	s := newTestSupervisor(api, &fakeProbe{}, time.Second)

	err := s.EnsureRunning(context.Background())
	assert.NoError(t, err)
	assert.Empty(t, api.startCalls)
	assert.Len(t, api.createCalls, 1)

	spec := api.createCalls[0]
	assert.Equal(t, "pgvector", spec.Name)
	assert.Equal(t, "phidata/pgvector:16", spec.Image)
	assert.Equal(t, 5532, spec.HostPort)
	assert.Equal(t, 5432, spec.ContainerPort)
	assert.Equal(t, map[string]string{
		"POSTGRES_DB":       "ai",
		"POSTGRES_USER":     "ai",
		"POSTGRES_PASSWORD": "ai",
	}, spec.Env)
}

func TestEnsureRunningStartsStoppedContainer(t *testing.T) {
	api := &fakeContainerAPI{state: ContainerState{ID: "abc123", Running: false}}
	s := newTestSupervisor(api, &fakeProbe{}, time.Second)

	err := s.EnsureRunning(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, []string{"abc123"}, api.startCalls)
	assert.Empty(t, api.createCalls)
}

func TestEnsureRunningLeavesRunningContainerAlone(t *testing.T) {
	api := &fakeContainerAPI{state: ContainerState{ID: "abc123", Running: true}}
	s := newTestSupervisor(api, &fakeProbe{}, time.Second)

	err := s.EnsureRunning(context.Background())
	assert.NoError(t, err)
	assert.Empty(t, api.startCalls)
	assert.Empty(t, api.createCalls)
}

func TestEnsureRunningPropagatesInspectError(t *testing.T) {
	inspectErr := errors.New("engine unreachable")
	api := &fakeContainerAPI{inspectErr: inspectErr}
	s := newTestSupervisor(api, &fakeProbe{}, time.Second)

	err := s.EnsureRunning(context.Background())
	assert.ErrorIs(t, err, inspectErr)
	assert.Empty(t, api.startCalls)
	assert.Empty(t, api.createCalls)
}

func TestEnsureRunningWaitsForReadiness(t *testing.T) {
	api := &fakeContainerAPI{state: ContainerState{ID: "abc123", Running: true}}
	probe := &fakeProbe{failures: 3}
	s := newTestSupervisor(api, probe, time.Second)

	err := s.EnsureRunning(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 4, probe.calls)
}

func TestEnsureRunningReadinessTimeout(t *testing.T) {
	api := &fakeContainerAPI{state: ContainerState{ID: "abc123", Running: true}}
	probe := &fakeProbe{failures: 1 << 30}
	s := newTestSupervisor(api, probe, 10*time.Millisecond)

	err := s.EnsureRunning(context.Background())
	assert.ErrorIs(t, err, ErrStartupTimeout)
}
