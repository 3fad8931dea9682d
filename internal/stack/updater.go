// Package stack pushes a new forwarded port into a docker compose network
// stack: it patches the stack's .env, restarts the managed services and waits
// for each of them to report healthy.
package stack

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/zpdzap/wsport/internal/config"
	"github.com/zpdzap/wsport/internal/port"
	"github.com/zpdzap/wsport/internal/wait"
)

// ErrServiceHealth matches every *HealthError and restart failure.
var ErrServiceHealth = errors.New("service failed to become healthy")

// Phase is where a service is in the health check sequence.
type Phase string

const (
	PhaseUnchecked Phase = "unchecked"
	PhasePolling   Phase = "polling"
	PhaseHealthy   Phase = "healthy"
	PhaseUnhealthy Phase = "unhealthy"
	PhaseTimedOut  Phase = "timed-out"
)

// ServiceStatus is the last known state of one managed service.
type ServiceStatus struct {
	Name   string
	Phase  Phase
	Health Health
}

// HealthError names the service that stopped the sequence.
type HealthError struct {
	Service  string
	Health   Health
	TimedOut bool
	Timeout  time.Duration
}

func (e *HealthError) Error() string {
	if e.TimedOut {
		return fmt.Sprintf("%s failed to become healthy within %s (last status: %s)", e.Service, e.Timeout, e.Health)
	}
	return fmt.Sprintf("%s failed to become healthy (status: %s)", e.Service, e.Health)
}

func (e *HealthError) Is(target error) bool { return target == ErrServiceHealth }

// Summary renders statuses as "name=health" pairs in order.
func Summary(statuses []ServiceStatus) string {
	parts := make([]string, 0, len(statuses))
	for _, s := range statuses {
		h := string(s.Health)
		if s.Phase == PhaseUnchecked {
			h = string(PhaseUnchecked)
		} else if s.Phase == PhaseTimedOut {
			h = string(PhaseTimedOut)
		}
		parts = append(parts, s.Name+"="+h)
	}
	return strings.Join(parts, " ")
}

// Updater owns one compose stack.
type Updater struct {
	dir       string
	envPath   string
	targetKey string
	services  []string
	interval  time.Duration
	timeout   time.Duration
	runtime   Runtime
	logger    *slog.Logger
}

// NewUpdater builds an updater for the stack configured in cfg.
func NewUpdater(cfg *config.Config, rt Runtime, logger *slog.Logger) *Updater {
	s := cfg.Settings.Stack
	return &Updater{
		dir:       cfg.DockerPath,
		envPath:   cfg.StackEnvPath(),
		targetKey: s.TargetKey,
		services:  append([]string(nil), s.Services...),
		interval:  s.PollInterval,
		timeout:   s.HealthTimeout,
		runtime:   rt,
		logger:    logger,
	}
}

// UpdateEnv rewrites the target key in the stack's .env file.
func (u *Updater) UpdateEnv(p port.Port) error {
	if err := RewriteEnv(u.envPath, u.targetKey, p.String()); err != nil {
		return err
	}
	u.logger.Info("Docker .env file updated with new port", "path", u.envPath, "key", u.targetKey, "port", p.String())
	return nil
}

// Restart restarts all services and polls them in order. The returned
// statuses are complete even on error: services after a failing one stay
// unchecked.
func (u *Updater) Restart(ctx context.Context) ([]ServiceStatus, error) {
	statuses := u.initial()

	u.logger.Info("Restarting docker containers", "services", u.services)
	if err := u.runtime.Restart(ctx, u.dir, u.services); err != nil {
		if ctx.Err() != nil {
			return statuses, ctx.Err()
		}
		return statuses, fmt.Errorf("%w: %w", ErrServiceHealth, err)
	}

	for i := range statuses {
		if err := u.await(ctx, &statuses[i]); err != nil {
			return statuses, err
		}
		u.logger.Info("Service is healthy", "service", statuses[i].Name)
	}
	return statuses, nil
}

func (u *Updater) initial() []ServiceStatus {
	statuses := make([]ServiceStatus, len(u.services))
	for i, name := range u.services {
		statuses[i] = ServiceStatus{Name: name, Phase: PhaseUnchecked, Health: HealthUnknown}
	}
	return statuses
}

var errUnhealthy = errors.New("unhealthy")

func (u *Updater) await(ctx context.Context, st *ServiceStatus) error {
	st.Phase = PhasePolling
	err := wait.Until(ctx, u.interval, u.timeout, func(ctx context.Context) (bool, error) {
		h, err := u.runtime.Health(ctx, st.Name)
		if err != nil {
			u.logger.Debug("Health probe failed", "service", st.Name, "error", err)
			return false, ctx.Err()
		}
		st.Health = h
		u.logger.Info("Container status", "service", st.Name, "status", h)
		switch h {
		case HealthHealthy:
			return true, nil
		case HealthUnhealthy:
			return false, errUnhealthy
		}
		return false, nil
	})

	switch {
	case err == nil:
		st.Phase = PhaseHealthy
		return nil
	case errors.Is(err, errUnhealthy):
		st.Phase = PhaseUnhealthy
		return &HealthError{Service: st.Name, Health: st.Health}
	case errors.Is(err, wait.ErrTimeout):
		st.Phase = PhaseTimedOut
		return &HealthError{Service: st.Name, Health: st.Health, TimedOut: true, Timeout: u.timeout}
	default:
		return err
	}
}
