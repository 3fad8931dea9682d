// Package browser is the narrow surface the acquisition engine drives. All
// probes are non-blocking; waiting is the caller's job.
package browser

import (
	"context"
	"errors"
)

// ErrNotFound is returned by probes when no element matches the selector.
var ErrNotFound = errors.New("element not found")

// Session is one browser tab. Selectors are XPath expressions.
type Session interface {
	Navigate(ctx context.Context, url string) error
	Exists(ctx context.Context, sel string) (bool, error)
	Text(ctx context.Context, sel string) (string, error)
	Click(ctx context.Context, sel string) error
	Type(ctx context.Context, sel, text string) error
	Submit(ctx context.Context, sel string) error
	PageSource(ctx context.Context) (string, error)
	// BypassChallenge attempts to clear an anti-bot interstitial. Success
	// is judged by the caller from the page state afterwards.
	BypassChallenge(ctx context.Context) error
	Screenshot(ctx context.Context) ([]byte, error)
	Close() error
}

// Opener starts a fresh session.
type Opener func(ctx context.Context) (Session, error)
