package stack

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zpdzap/wsport/internal/config"
	"github.com/zpdzap/wsport/internal/logging"
	"github.com/zpdzap/wsport/internal/port"
)

// fakeRuntime replays a scripted health sequence per service. The last
// entry repeats once the script runs out.
type fakeRuntime struct {
	mu         sync.Mutex
	scripts    map[string][]Health
	polls      map[string]int
	restarted  []string
	restartErr error
}

func newFakeRuntime(scripts map[string][]Health) *fakeRuntime {
	return &fakeRuntime{scripts: scripts, polls: make(map[string]int)}
}

func (f *fakeRuntime) Restart(ctx context.Context, dir string, services []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.restarted = append(f.restarted, services...)
	return f.restartErr
}

func (f *fakeRuntime) Health(ctx context.Context, service string) (Health, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	script := f.scripts[service]
	n := f.polls[service]
	f.polls[service]++
	if len(script) == 0 {
		return HealthUnknown, errors.New("no such container")
	}
	if n >= len(script) {
		n = len(script) - 1
	}
	return script[n], nil
}

func newTestUpdater(t *testing.T, rt Runtime, timeout time.Duration) (*Updater, string) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("TZ=UTC\nFIREWALL_VPN_INPUT_PORTS=1111\n"), 0o644))

	s := config.DefaultSettings()
	s.Stack.PollInterval = time.Millisecond
	s.Stack.HealthTimeout = timeout
	cfg := &config.Config{Credentials: config.Credentials{DockerPath: dir}, Settings: s}
	return NewUpdater(cfg, rt, logging.Discard()), dir
}

func testPort(t *testing.T) port.Port {
	t.Helper()
	p, err := port.Parse("40123")
	require.NoError(t, err)
	return p
}

func TestUpdateEnvThenRestartAllHealthy(t *testing.T) {
	rt := newFakeRuntime(map[string][]Health{
		"gluetun":     {HealthStarting, HealthStarting, HealthHealthy},
		"qbittorrent": {HealthHealthy},
		"prowlarr":    {HealthStarting, HealthHealthy},
	})
	u, dir := newTestUpdater(t, rt, time.Second)

	require.NoError(t, u.UpdateEnv(testPort(t)))
	statuses, err := u.Restart(context.Background())
	require.NoError(t, err)

	data, _ := os.ReadFile(filepath.Join(dir, ".env"))
	assert.Equal(t, "TZ=UTC\nFIREWALL_VPN_INPUT_PORTS=40123\n", string(data))
	assert.Equal(t, []string{"gluetun", "qbittorrent", "prowlarr"}, rt.restarted)

	for _, s := range statuses {
		assert.Equal(t, PhaseHealthy, s.Phase, s.Name)
	}
	assert.Equal(t, 3, rt.polls["gluetun"])
	assert.Equal(t, "gluetun=healthy qbittorrent=healthy prowlarr=healthy", Summary(statuses))
}

func TestHealthyOnFirstPollTakesOnePoll(t *testing.T) {
	rt := newFakeRuntime(map[string][]Health{"gluetun": {HealthHealthy}})
	u, _ := newTestUpdater(t, rt, time.Second)
	u.services = []string{"gluetun"}
	u.interval = time.Hour

	start := time.Now()
	_, err := u.Restart(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, rt.polls["gluetun"])
	assert.Less(t, time.Since(start), time.Minute)
}

func TestNeverHealthyTimesOut(t *testing.T) {
	rt := newFakeRuntime(map[string][]Health{
		"gluetun":     {HealthStarting},
		"qbittorrent": {HealthHealthy},
		"prowlarr":    {HealthHealthy},
	})
	u, _ := newTestUpdater(t, rt, 30*time.Millisecond)

	statuses, err := u.Restart(context.Background())
	require.Error(t, err)

	var he *HealthError
	require.ErrorAs(t, err, &he)
	assert.ErrorIs(t, err, ErrServiceHealth)
	assert.Equal(t, "gluetun", he.Service)
	assert.True(t, he.TimedOut)
	assert.Equal(t, PhaseTimedOut, statuses[0].Phase)
	assert.Equal(t, PhaseUnchecked, statuses[1].Phase)
	assert.Zero(t, rt.polls["qbittorrent"])
}

func TestMissingContainerTimesOut(t *testing.T) {
	rt := newFakeRuntime(map[string][]Health{})
	u, _ := newTestUpdater(t, rt, 20*time.Millisecond)
	u.services = []string{"gluetun"}

	_, err := u.Restart(context.Background())
	var he *HealthError
	require.ErrorAs(t, err, &he)
	assert.True(t, he.TimedOut)
	assert.Equal(t, HealthUnknown, he.Health)
}

func TestUnhealthyStopsSequence(t *testing.T) {
	rt := newFakeRuntime(map[string][]Health{
		"gluetun":     {HealthHealthy},
		"qbittorrent": {HealthStarting, HealthUnhealthy},
		"prowlarr":    {HealthHealthy},
	})
	u, _ := newTestUpdater(t, rt, time.Second)

	statuses, err := u.Restart(context.Background())
	require.Error(t, err)

	var he *HealthError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, "qbittorrent", he.Service)
	assert.False(t, he.TimedOut)
	assert.Contains(t, err.Error(), "qbittorrent")

	assert.Equal(t, PhaseHealthy, statuses[0].Phase)
	assert.Equal(t, PhaseUnhealthy, statuses[1].Phase)
	assert.Equal(t, PhaseUnchecked, statuses[2].Phase)
	assert.Zero(t, rt.polls["prowlarr"])
	assert.Equal(t, "gluetun=healthy qbittorrent=unhealthy prowlarr=unchecked", Summary(statuses))
}

func TestRestartFailure(t *testing.T) {
	rt := newFakeRuntime(nil)
	rt.restartErr = errors.New("no configuration file provided")
	u, _ := newTestUpdater(t, rt, time.Second)

	statuses, err := u.Restart(context.Background())
	assert.ErrorIs(t, err, ErrServiceHealth)
	assert.Len(t, statuses, 3)
	assert.Empty(t, rt.polls)
}

func TestUpdateEnvMissingKey(t *testing.T) {
	rt := newFakeRuntime(nil)
	u, dir := newTestUpdater(t, rt, time.Second)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("TZ=UTC\n"), 0o644))

	err := u.UpdateEnv(testPort(t))
	assert.ErrorIs(t, err, ErrConfigWrite)
	assert.Empty(t, rt.restarted)
}

func TestDockerRuntimeCommands(t *testing.T) {
	var calls [][]string
	var dirs []string
	d := &DockerRuntime{run: func(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
		calls = append(calls, append([]string{name}, args...))
		dirs = append(dirs, dir)
		if args[0] == "inspect" {
			return []byte("healthy\n"), nil
		}
		return nil, nil
	}}

	require.NoError(t, d.Restart(context.Background(), "/srv/stack", []string{"gluetun", "qbittorrent"}))
	h, err := d.Health(context.Background(), "gluetun")
	require.NoError(t, err)

	assert.Equal(t, HealthHealthy, h)
	assert.Equal(t, []string{"docker", "compose", "restart", "gluetun", "qbittorrent"}, calls[0])
	assert.Equal(t, "/srv/stack", dirs[0])
	assert.Equal(t, "docker", calls[1][0])
	assert.Equal(t, "inspect", calls[1][1])
	assert.Equal(t, "gluetun", calls[1][len(calls[1])-1])
}

func TestDockerRuntimeRestartError(t *testing.T) {
	d := &DockerRuntime{run: func(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
		return []byte("service \"nope\" not found\n"), errors.New("exit status 1")
	}}
	err := d.Restart(context.Background(), "/srv/stack", []string{"nope"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `service "nope" not found`)
}

func TestParseHealth(t *testing.T) {
	tests := map[string]Health{
		"healthy\n": HealthHealthy,
		"unhealthy": HealthUnhealthy,
		"starting":  HealthStarting,
		"":          HealthUnknown,
		"running":   HealthUnknown,
	}
	for in, want := range tests {
		assert.Equal(t, want, parseHealth(in), "parseHealth(%q)", in)
	}
}
