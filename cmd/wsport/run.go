package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/zpdzap/wsport/internal/acquire"
	"github.com/zpdzap/wsport/internal/browser"
	"github.com/zpdzap/wsport/internal/config"
	"github.com/zpdzap/wsport/internal/history"
	"github.com/zpdzap/wsport/internal/logging"
	"github.com/zpdzap/wsport/internal/notify"
	"github.com/zpdzap/wsport/internal/qbt"
	"github.com/zpdzap/wsport/internal/run"
	"github.com/zpdzap/wsport/internal/stack"
	"github.com/zpdzap/wsport/internal/tui"
)

type runOptions struct {
	settingsFile string
	envFile      string
	headless     bool
	tui          bool
}

func addRunFlags(cmd *cobra.Command, opts *runOptions) {
	f := cmd.Flags()
	f.StringVar(&opts.settingsFile, "config", "", "settings file (default .wsport/config.yaml)")
	f.StringVar(&opts.envFile, "env-file", config.DefaultEnv, "file with credentials in KEY=value form")
	f.BoolVar(&opts.headless, "headless", false, "run the browser without a window (challenges pass more often with one)")
	f.BoolVar(&opts.tui, "tui", false, "show a live progress view")
}

func runCmd() *cobra.Command {
	var opts runOptions
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Request a new forwarded port and apply it",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorkflow(cmd, opts)
		},
	}
	addRunFlags(cmd, &opts)
	return cmd
}

func runWorkflow(cmd *cobra.Command, opts runOptions) error {
	projectDir, err := os.Getwd()
	if err != nil {
		return err
	}

	settingsFile := opts.settingsFile
	if settingsFile == "" {
		settingsFile = config.SettingsPath(projectDir)
	}
	cfg, loadErr := config.Load(config.Options{EnvFile: opts.envFile, SettingsFile: settingsFile})
	if cmd.Flags().Changed("headless") {
		cfg.Settings.Portal.Headless = opts.headless
	}

	interactive := opts.tui && term.IsTerminal(int(os.Stdout.Fd()))
	var console io.Writer = os.Stderr
	if interactive {
		// The progress view owns the terminal; the log file still gets everything.
		console = io.Discard
	}
	logger, closeLog, err := logging.New(logging.Options{
		Level:   cfg.Settings.Diagnostics.LogLevel,
		File:    cfg.Settings.Diagnostics.LogFile,
		Console: console,
	})
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	notifier := notify.NewWebhook(cfg.WebhookURL, logger)
	build := builder(logger)
	runOpts := []run.Option{run.WithRecorder(history.NewStore(projectDir))}

	var out run.Outcome
	if interactive {
		steps := run.NewLedger(cfg.Features()).Snapshot()
		out, err = tui.Run(ctx, steps, func(ctx context.Context, obs run.Observer) run.Outcome {
			o := run.New(build, notifier, logger, append(runOpts, run.WithObserver(obs))...)
			return o.Run(ctx, cfg, loadErr)
		})
		if err != nil {
			logger.Error("Progress view failed", "error", err)
		}
	} else {
		out = run.New(build, notifier, logger, runOpts...).Run(ctx, cfg, loadErr)
	}

	if out.ExitCode != run.ExitOK {
		return exitCode(out.ExitCode)
	}
	return nil
}

// builder wires the production collaborators of a run.
func builder(logger *slog.Logger) run.Builder {
	return func(cfg *config.Config) (run.Steps, error) {
		portal := cfg.Settings.Portal
		launcher := browser.Launcher{
			Headless:      portal.Headless,
			NoSandbox:     os.Geteuid() == 0,
			ActionTimeout: portal.Timeouts.Step,
			Logger:        logger.With("component", "browser"),
		}
		engine, err := acquire.New(launcher.Open, cfg, logger.With("component", "acquire"))
		if err != nil {
			return run.Steps{}, err
		}

		client, err := qbt.NewClient(cfg.QBTHost, cfg.QBTPort, cfg.QBTUsername, cfg.QBTPassword,
			logger.With("component", "qbittorrent"))
		if err != nil {
			return run.Steps{}, err
		}

		steps := run.Steps{Acquirer: engine, Syncer: client}
		if cfg.Features().Stack {
			steps.Stack = stack.NewUpdater(cfg, stack.NewDockerRuntime(), logger.With("component", "stack"))
		}
		return steps, nil
	}
}
