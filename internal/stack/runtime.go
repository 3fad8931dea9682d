package stack

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Health is a container's self-reported health.
type Health string

const (
	HealthStarting  Health = "starting"
	HealthHealthy   Health = "healthy"
	HealthUnhealthy Health = "unhealthy"
	HealthUnknown   Health = "unknown"
)

// Runtime restarts compose services and reports their health.
type Runtime interface {
	Restart(ctx context.Context, dir string, services []string) error
	Health(ctx context.Context, service string) (Health, error)
}

// runFunc executes a command in dir and returns its combined output.
type runFunc func(ctx context.Context, dir, name string, args ...string) ([]byte, error)

// DockerRuntime drives the docker CLI.
type DockerRuntime struct {
	run runFunc
}

// NewDockerRuntime returns a runtime that shells out to docker.
func NewDockerRuntime() *DockerRuntime {
	return &DockerRuntime{run: execRun}
}

func execRun(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	return cmd.CombinedOutput()
}

// Restart runs `docker compose restart` for services in the compose project at dir.
func (d *DockerRuntime) Restart(ctx context.Context, dir string, services []string) error {
	args := append([]string{"compose", "restart"}, services...)
	out, err := d.run(ctx, dir, "docker", args...)
	if err != nil {
		return fmt.Errorf("docker compose restart failed: %s: %w", strings.TrimSpace(string(out)), err)
	}
	return nil
}

// Health inspects the container's health check status. Containers without a
// health check report unknown.
func (d *DockerRuntime) Health(ctx context.Context, service string) (Health, error) {
	out, err := d.run(ctx, "", "docker", "inspect", "-f",
		"{{if .State.Health}}{{.State.Health.Status}}{{end}}", service)
	if err != nil {
		return HealthUnknown, fmt.Errorf("docker inspect %s: %s: %w", service, strings.TrimSpace(string(out)), err)
	}
	return parseHealth(string(out)), nil
}

func parseHealth(s string) Health {
	switch Health(strings.TrimSpace(s)) {
	case HealthHealthy:
		return HealthHealthy
	case HealthUnhealthy:
		return HealthUnhealthy
	case HealthStarting:
		return HealthStarting
	default:
		return HealthUnknown
	}
}
