// Package run sequences one port renewal: acquire, sync the torrent client,
// update the network stack, report. It owns the status ledger and the exit
// code.
package run

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/zpdzap/wsport/internal/acquire"
	"github.com/zpdzap/wsport/internal/config"
	"github.com/zpdzap/wsport/internal/notify"
	"github.com/zpdzap/wsport/internal/port"
	"github.com/zpdzap/wsport/internal/stack"
)

// Process exit codes.
const (
	ExitOK          = 0
	ExitFailure     = 1
	ExitInterrupted = 130
)

// Acquirer obtains a fresh forwarded port from the VPN portal.
type Acquirer interface {
	Acquire(ctx context.Context) (acquire.Result, error)
}

// Syncer points the torrent client at the new port.
type Syncer interface {
	SetListeningPort(ctx context.Context, p port.Port) error
}

// StackUpdater writes the port into the compose stack and restarts it.
// Restart returns every managed service's status, also on error.
type StackUpdater interface {
	UpdateEnv(p port.Port) error
	Restart(ctx context.Context) ([]stack.ServiceStatus, error)
}

// Steps are the collaborators of one run. Stack is nil when the network
// stack integration is off.
type Steps struct {
	Acquirer Acquirer
	Syncer   Syncer
	Stack    StackUpdater
}

// Builder constructs the steps for a validated configuration. It is only
// called once configuration loaded cleanly.
type Builder func(cfg *config.Config) (Steps, error)

// Observer is told about step transitions. It must not block.
type Observer interface {
	StepStarted(step string)
	StepFinished(step string, state State, detail string)
}

// Recorder persists a summary of the outcome.
type Recorder interface {
	Record(o Outcome) error
}

// Outcome is what a run hands back to the process boundary.
type Outcome struct {
	RunID       string    `json:"run_id"`
	ExitCode    int       `json:"exit_code"`
	Port        string    `json:"port,omitempty"`
	Ledger      []Entry   `json:"-"`
	Error       string    `json:"error,omitempty"`
	Interrupted bool      `json:"interrupted,omitempty"`
	FinishedAt  time.Time `json:"finished_at"`
}

// Orchestrator runs the pipeline once per Run call.
type Orchestrator struct {
	build    Builder
	notifier notify.Notifier
	logger   *slog.Logger
	observer Observer
	recorder Recorder
	newID    func() string
	now      func() time.Time
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithObserver reports step transitions to obs.
func WithObserver(obs Observer) Option { return func(o *Orchestrator) { o.observer = obs } }

// WithRecorder persists every outcome through r.
func WithRecorder(r Recorder) Option { return func(o *Orchestrator) { o.recorder = r } }

// WithRunID replaces the random run id generator.
func WithRunID(f func() string) Option { return func(o *Orchestrator) { o.newID = f } }

// New returns an orchestrator. notifier may report into the void but must
// not be nil.
func New(build Builder, notifier notify.Notifier, logger *slog.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		build:    build,
		notifier: notifier,
		logger:   logger,
		newID:    uuid.NewString,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run executes one cycle. loadErr is the result of loading cfg; when it is
// set nothing but the failure report is attempted.
func (o *Orchestrator) Run(ctx context.Context, cfg *config.Config, loadErr error) Outcome {
	out := Outcome{RunID: o.newID()}
	log := o.logger.With("run_id", out.RunID)
	ledger := NewLedger(cfg.Features())

	log.Info("Starting Windscribe Port Manager", "steps", len(ledger.Snapshot()))

	if loadErr != nil {
		log.Error("Exiting due to configuration error", "error", loadErr)
		return o.fail(ctx, log, out, ledger, loadErr)
	}

	steps, err := o.build(cfg)
	if err != nil {
		if !errors.Is(err, config.ErrConfiguration) {
			err = fmt.Errorf("%w: %w", config.ErrConfiguration, err)
		}
		log.Error("Exiting due to configuration error", "error", err)
		return o.fail(ctx, log, out, ledger, err)
	}

	p, err := o.pipeline(ctx, log, ledger, steps)
	if err != nil {
		log.Error("Exiting due to error", "error", err)
		return o.fail(ctx, log, out, ledger, err)
	}

	out.Port = p.String()
	out.ExitCode = ExitOK
	out.Ledger = ledger.Snapshot()
	o.dispatch(ctx, log, SuccessReport(out.Port, out.Ledger), false)
	log.Info("Windscribe Port Manager completed successfully", "port", out.Port)
	return o.done(log, out)
}

func (o *Orchestrator) pipeline(ctx context.Context, log *slog.Logger, ledger *Ledger, steps Steps) (port.Port, error) {
	var p port.Port

	err := o.step(ctx, log, ledger, StepAcquire, func() (string, error) {
		res, err := steps.Acquirer.Acquire(ctx)
		if err != nil {
			return "", err
		}
		p = res.Port
		return res.Summary(), nil
	})
	if err != nil {
		return p, err
	}

	err = o.step(ctx, log, ledger, StepSync, func() (string, error) {
		return "", steps.Syncer.SetListeningPort(ctx, p)
	})
	if err != nil {
		return p, err
	}

	if !ledger.Has(StepEnv) {
		return p, nil
	}
	if steps.Stack == nil {
		return p, fmt.Errorf("%w: network stack enabled but not built", config.ErrConfiguration)
	}

	err = o.step(ctx, log, ledger, StepEnv, func() (string, error) {
		return "", steps.Stack.UpdateEnv(p)
	})
	if err != nil {
		return p, err
	}

	err = o.step(ctx, log, ledger, StepRestart, func() (string, error) {
		statuses, err := steps.Stack.Restart(ctx)
		return stack.Summary(statuses), err
	})
	return p, err
}

// step runs fn as the named ledger step. The ledger entry becomes success
// only if fn returns nil.
func (o *Orchestrator) step(ctx context.Context, log *slog.Logger, ledger *Ledger, name string, fn func() (string, error)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if o.observer != nil {
		o.observer.StepStarted(name)
	}
	log.Info("Step started", "step", name)

	detail, err := fn()
	if detail != "" {
		ledger.Detail(name, detail)
	}
	state := StateSuccess
	if err != nil {
		state = StateFailed
	}
	ledger.Mark(name, state)

	if o.observer != nil {
		o.observer.StepFinished(name, state, detail)
	}
	if err != nil {
		log.Error("Step failed", "step", name, "error", err)
		return err
	}
	log.Info("Step succeeded", "step", name)
	return nil
}

func (o *Orchestrator) fail(ctx context.Context, log *slog.Logger, out Outcome, ledger *Ledger, err error) Outcome {
	out.Ledger = ledger.Snapshot()
	out.Error = err.Error()

	if ctx.Err() != nil {
		log.Warn("Operation cancelled by user")
		out.ExitCode = ExitInterrupted
		out.Interrupted = true
		return o.done(log, out)
	}

	out.ExitCode = ExitFailure
	o.dispatch(ctx, log, FailureReport(err, out.Ledger), true)
	return o.done(log, out)
}

// dispatch sends a report. Delivery problems never change the outcome.
func (o *Orchestrator) dispatch(ctx context.Context, log *slog.Logger, text string, isError bool) {
	if err := o.notifier.Notify(ctx, text, isError); err != nil {
		log.Error("Notification not delivered", "error", err)
	}
}

func (o *Orchestrator) done(log *slog.Logger, out Outcome) Outcome {
	out.FinishedAt = o.now().UTC()
	if o.recorder != nil {
		if err := o.recorder.Record(out); err != nil {
			log.Warn("Could not record run", "error", err)
		}
	}
	return out
}
