// Package acquire drives the provider portal to renew the ephemeral
// forwarded port: login, challenge handling, delete-then-request, read back.
package acquire

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/zpdzap/wsport/internal/browser"
	"github.com/zpdzap/wsport/internal/config"
	"github.com/zpdzap/wsport/internal/port"
	"github.com/zpdzap/wsport/internal/wait"
)

var (
	ErrAuthentication = errors.New("authentication failed")
	ErrChallenge      = errors.New("failed to pass challenge")
	ErrPortLifecycle  = errors.New("port lifecycle failed")
	ErrInvalidPort    = fmt.Errorf("%w: invalid port received", ErrPortLifecycle)
	ErrTimeout        = errors.New("timeout while acquiring port")
)

// Action is a port lifecycle action performed on the portal.
type Action string

const (
	ActionDelete  Action = "delete"
	ActionRequest Action = "request"
)

// Result describes one acquisition attempt.
type Result struct {
	Port       port.Port
	Actions    []Action
	Challenged bool
	Screenshot string
}

// Summary describes what the attempt did on the portal, e.g.
// "challenge bypassed, deleted old port, requested new port".
func (r Result) Summary() string {
	var parts []string
	if r.Challenged {
		parts = append(parts, "challenge bypassed")
	}
	for _, a := range r.Actions {
		switch a {
		case ActionDelete:
			parts = append(parts, "deleted old port")
		case ActionRequest:
			parts = append(parts, "requested new port")
		}
	}
	return strings.Join(parts, ", ")
}

// Credentials for the portal login form.
type Credentials struct {
	Username string
	Password string
}

// Engine runs the acquisition protocol against one portal.
type Engine struct {
	open          browser.Opener
	creds         Credentials
	portal        config.Portal
	sel           Selectors
	detector      ChallengeDetector
	screenshotDir string
	logger        *slog.Logger
	now           func() time.Time
}

// Option customizes an Engine.
type Option func(*Engine)

// WithClock sets the time source used for screenshot names.
func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

// New builds an engine from the run configuration.
func New(open browser.Opener, cfg *config.Config, logger *slog.Logger, opts ...Option) (*Engine, error) {
	e := &Engine{
		open:          open,
		creds:         Credentials{Username: cfg.WSUsername, Password: cfg.WSPassword},
		portal:        cfg.Settings.Portal,
		sel:           WindscribeSelectors(),
		screenshotDir: cfg.Settings.Diagnostics.ScreenshotDir,
		logger:        logger,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	d, err := NewDetector(e.portal, e.sel)
	if err != nil {
		return nil, err
	}
	e.detector = d
	return e, nil
}

// Acquire logs in, replaces any existing ephemeral port and returns the new
// one. The browser is always screenshotted and closed before returning.
func (e *Engine) Acquire(ctx context.Context) (res Result, err error) {
	e.logger.Info("Starting port acquisition")

	s, err := e.open(ctx)
	if err != nil {
		return res, fmt.Errorf("starting browser: %w", err)
	}
	defer func() {
		res.Screenshot = e.cleanup(ctx, s)
	}()

	e.logger.Info("Navigating to login page", "url", e.portal.LoginURL)
	if err := s.Navigate(ctx, e.portal.LoginURL); err != nil {
		return res, navError("opening login page", err)
	}

	if err := sleep(ctx, e.portal.Timeouts.Settle); err != nil {
		return res, err
	}

	e.logger.Info("Checking for challenge")
	challenged, err := e.detector.Detect(ctx, s)
	if err != nil {
		return res, classify(ErrChallenge, "detecting challenge", err)
	}
	res.Challenged = challenged
	if challenged {
		if err := e.passChallenge(ctx, s); err != nil {
			return res, err
		}
	} else {
		e.logger.Info("No challenge detected")
	}

	if err := e.login(ctx, s); err != nil {
		return res, err
	}

	actions, err := e.reconcile(ctx, s)
	res.Actions = actions
	if err != nil {
		return res, err
	}

	p, err := e.readPort(ctx, s)
	if err != nil {
		return res, err
	}
	res.Port = p
	e.logger.Info("Successfully acquired port", "port", p.String())
	return res, nil
}

func (e *Engine) passChallenge(ctx context.Context, s browser.Session) error {
	e.logger.Info("Challenge likely present, attempting bypass")
	if err := s.BypassChallenge(ctx); err != nil {
		return classify(ErrChallenge, "bypass", err)
	}
	t := e.portal.Timeouts
	if err := wait.Until(ctx, t.Poll, t.Challenge, present(s, e.sel.Username)); err != nil {
		return classify(ErrChallenge, "login form did not appear", err)
	}
	e.logger.Info("Challenge passed")
	return nil
}

func (e *Engine) login(ctx context.Context, s browser.Session) error {
	t := e.portal.Timeouts

	e.logger.Info("Entering credentials")
	if err := wait.Until(ctx, t.Poll, t.Step, present(s, e.sel.Username)); err != nil {
		return classify(ErrAuthentication, "login form", err)
	}
	if err := s.Type(ctx, e.sel.Username, e.creds.Username); err != nil {
		return classify(ErrAuthentication, "typing username", err)
	}
	if err := wait.Until(ctx, t.Poll, t.Step, present(s, e.sel.Password)); err != nil {
		return classify(ErrAuthentication, "password field", err)
	}
	if err := s.Type(ctx, e.sel.Password, e.creds.Password); err != nil {
		return classify(ErrAuthentication, "typing password", err)
	}
	if err := s.Submit(ctx, e.sel.Password); err != nil {
		return classify(ErrAuthentication, "submitting login", err)
	}

	e.logger.Info("Login submitted, waiting for authentication")
	err := wait.Until(ctx, t.Poll, t.Step, present(s, e.sel.AccountMarker))
	if err == nil {
		e.logger.Info("Successfully logged in")
		return nil
	}
	if !errors.Is(err, wait.ErrTimeout) {
		return classify(ErrAuthentication, "waiting for account page", err)
	}

	var reason string
	werr := wait.Until(ctx, t.Poll, t.Detect, textReady(s, e.sel.LoginError, &reason, nonEmpty))
	if werr != nil && !errors.Is(werr, wait.ErrTimeout) {
		return werr
	}
	if werr == nil {
		return fmt.Errorf("%w: Login failed because %s", ErrAuthentication, strings.TrimSpace(reason))
	}
	return fmt.Errorf("%w: timeout exceeded", ErrAuthentication)
}

// reconcile deletes an existing port if there is one, then requests a new
// matching port.
func (e *Engine) reconcile(ctx context.Context, s browser.Session) ([]Action, error) {
	t := e.portal.Timeouts
	var actions []Action

	e.logger.Info("Navigating to ephemeral port page", "url", e.portal.PortURL)
	if err := s.Navigate(ctx, e.portal.PortURL); err != nil {
		return actions, navError("opening port page", err)
	}
	if err := wait.Until(ctx, t.Poll, t.Page, present(s, e.sel.PortContainer)); err != nil {
		return actions, classify(ErrTimeout, "port management section", err)
	}

	var label string
	if err := wait.Until(ctx, t.Poll, t.Step, textReady(s, e.sel.PortButton, &label, nonEmpty)); err != nil {
		return actions, classify(ErrPortLifecycle, "port button", err)
	}
	label = strings.TrimSpace(label)
	e.logger.Info("Port button", "label", label)

	if label == LabelDelete {
		e.logger.Info("Deleting existing port")
		if err := s.Click(ctx, e.sel.PortButton); err != nil {
			return actions, classify(ErrPortLifecycle, "clicking delete", err)
		}
		actions = append(actions, ActionDelete)

		if err := wait.Until(ctx, t.Poll, t.Step, e.deleted(s)); err != nil {
			return actions, classify(ErrPortLifecycle, "failed to delete existing port", err)
		}
		e.logger.Info("Existing port deleted")
	}

	e.logger.Info("Requesting new ephemeral port")
	if err := wait.Until(ctx, t.Poll, t.Step, present(s, e.sel.RequestButton)); err != nil {
		return actions, classify(ErrPortLifecycle, "request button", err)
	}
	if err := s.Click(ctx, e.sel.RequestButton); err != nil {
		return actions, classify(ErrPortLifecycle, "clicking request", err)
	}
	actions = append(actions, ActionRequest)
	return actions, nil
}

// deleted holds once the control is back in its neutral state: either the
// button offers a request again or the port input reappears.
func (e *Engine) deleted(s browser.Session) wait.Condition {
	return func(ctx context.Context) (bool, error) {
		if label, err := s.Text(ctx, e.sel.PortButton); err == nil && strings.TrimSpace(label) == LabelRequest {
			return true, nil
		}
		return present(s, e.sel.PortInput)(ctx)
	}
}

func (e *Engine) readPort(ctx context.Context, s browser.Session) (port.Port, error) {
	t := e.portal.Timeouts
	var text string
	if err := wait.Until(ctx, t.Poll, t.Page, textReady(s, e.sel.PortValue, &text, nonEmpty)); err != nil {
		return port.Port{}, classify(ErrTimeout, "port value", err)
	}
	p, err := port.Parse(text)
	if err != nil {
		return port.Port{}, fmt.Errorf("%w: %v", ErrInvalidPort, err)
	}
	return p, nil
}

// cleanup takes the diagnostic screenshot and closes the session. Failures
// are logged only.
func (e *Engine) cleanup(ctx context.Context, s browser.Session) string {
	var path string
	if ctx.Err() != nil {
		e.logger.Warn("Skipping screenshot, run interrupted")
	} else {
		var err error
		path, err = e.screenshot(ctx, s)
		if err != nil {
			e.logger.Error("Failed to capture screenshot", "error", err)
			path = ""
		} else {
			e.logger.Info("Saved screenshot", "path", path)
		}
	}

	e.logger.Info("Closing browser")
	if err := s.Close(); err != nil {
		e.logger.Error("Failed to close browser", "error", err)
	}
	return path
}

func (e *Engine) screenshot(ctx context.Context, s browser.Session) (string, error) {
	dir := filepath.Join(e.screenshotDir, e.now().UTC().Format("20060102T150405Z"))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating screenshot dir: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	img, err := s.Screenshot(ctx)
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, "windscribe.png")
	if err := os.WriteFile(path, img, 0o644); err != nil {
		return "", fmt.Errorf("writing screenshot: %w", err)
	}
	return path, nil
}

// classify wraps err under kind, leaving cancellation untouched so callers
// can still tell an interrupt from a failure.
func classify(kind error, what string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", kind, what, err)
}

func navError(what string, err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %s: %w", ErrTimeout, what, err)
	default:
		return fmt.Errorf("%s: %w", what, err)
	}
}

func present(s browser.Session, sel string) wait.Condition {
	return func(ctx context.Context) (bool, error) {
		ok, err := s.Exists(ctx, sel)
		if err != nil {
			// Probes fail transiently while a page is loading.
			return false, ctx.Err()
		}
		return ok, nil
	}
}

func textReady(s browser.Session, sel string, out *string, accept func(string) bool) wait.Condition {
	return func(ctx context.Context) (bool, error) {
		text, err := s.Text(ctx, sel)
		if err != nil {
			return false, ctx.Err()
		}
		if !accept(text) {
			return false, nil
		}
		*out = text
		return true, nil
	}
}

func nonEmpty(s string) bool { return strings.TrimSpace(s) != "" }

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
