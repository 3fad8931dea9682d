package acquire

import (
	"context"
	"errors"
	"sync"

	"github.com/zpdzap/wsport/internal/browser"
)

const (
	testLoginURL = "https://portal.test/login"
	testPortURL  = "https://portal.test/myaccount#porteph"
)

// fakePortal is a scripted stand-in for the provider portal. It answers
// probes from a small state machine keyed by the Windscribe selectors.
type fakePortal struct {
	mu  sync.Mutex
	sel Selectors

	// scenario knobs
	challenge     bool
	bypassWorks   bool
	password      string
	loginError    string
	existingPort  bool
	deleteWorks   bool
	portText      string
	screenshotErr error
	openErr       error

	// observed state
	page      string
	loggedIn  bool
	submitted bool
	requested bool
	typed     map[string]string
	clicks    []string
	bypassed  int
	shots     int
	closed    bool
}

func newFakePortal() *fakePortal {
	return &fakePortal{
		sel:         WindscribeSelectors(),
		password:    "secret",
		deleteWorks: true,
		portText:    "40123",
		typed:       make(map[string]string),
	}
}

func (f *fakePortal) open(context.Context) (browser.Session, error) {
	if f.openErr != nil {
		return nil, f.openErr
	}
	return f, nil
}

func (f *fakePortal) Navigate(ctx context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch url {
	case testLoginURL:
		f.page = "login"
	case testPortURL:
		if f.loggedIn {
			f.page = "ports"
		} else {
			f.page = "login"
		}
	default:
		return errors.New("unexpected url " + url)
	}
	return ctx.Err()
}

func (f *fakePortal) Exists(ctx context.Context, sel string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.existsLocked(sel), ctx.Err()
}

func (f *fakePortal) existsLocked(sel string) bool {
	onLogin := f.page == "login" && !f.challenge
	onPorts := f.page == "ports"
	switch sel {
	case f.sel.Username, f.sel.Password:
		return onLogin
	case f.sel.LoginError:
		return onLogin && f.submitted && f.loginError != ""
	case f.sel.AccountMarker:
		return f.loggedIn && (f.page == "account" || onPorts)
	case f.sel.PortContainer, f.sel.PortButton:
		return onPorts
	case f.sel.RequestButton, f.sel.PortInput:
		return onPorts && !f.existingPort
	case f.sel.PortValue:
		return onPorts && f.requested
	}
	return false
}

func (f *fakePortal) Text(ctx context.Context, sel string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.existsLocked(sel) {
		return "", browser.ErrNotFound
	}
	switch sel {
	case f.sel.PortButton:
		if f.existingPort {
			return " " + LabelDelete + " ", nil
		}
		return LabelRequest, nil
	case f.sel.RequestButton:
		return LabelRequest, nil
	case f.sel.PortValue:
		return f.portText, nil
	case f.sel.LoginError:
		return f.loginError, nil
	}
	return "", nil
}

func (f *fakePortal) Click(ctx context.Context, sel string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.existsLocked(sel) {
		return browser.ErrNotFound
	}
	switch {
	case sel == f.sel.PortButton && f.existingPort:
		f.clicks = append(f.clicks, "delete")
		if f.deleteWorks {
			f.existingPort = false
		}
	case sel == f.sel.RequestButton:
		f.clicks = append(f.clicks, "request")
		f.requested = true
	}
	return nil
}

func (f *fakePortal) Type(ctx context.Context, sel, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.typed[sel] = text
	return nil
}

func (f *fakePortal) Submit(ctx context.Context, sel string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted = true
	if f.typed[f.sel.Password] == f.password {
		f.loggedIn = true
		f.page = "account"
	}
	return nil
}

func (f *fakePortal) PageSource(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.challenge {
		return `<html><iframe src="https://challenges.cloudflare.com/turnstile"></iframe></html>`, nil
	}
	return `<html><form id="loginform"><input id="username"></form></html>`, nil
}

func (f *fakePortal) BypassChallenge(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bypassed++
	if f.bypassWorks {
		f.challenge = false
	}
	return nil
}

func (f *fakePortal) Screenshot(ctx context.Context) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.shots++
	if f.screenshotErr != nil {
		return nil, f.screenshotErr
	}
	return []byte("\x89PNG"), nil
}

func (f *fakePortal) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}
