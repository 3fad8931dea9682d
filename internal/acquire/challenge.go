package acquire

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/zpdzap/wsport/internal/browser"
	"github.com/zpdzap/wsport/internal/config"
	"github.com/zpdzap/wsport/internal/wait"
)

// ChallengeDetector decides whether the loaded page is an anti-bot
// interstitial. Detection signals are provider specific and unreliable, so
// they are pluggable.
type ChallengeDetector interface {
	Detect(ctx context.Context, s browser.Session) (bool, error)
}

// LoginFieldDetector assumes a challenge when the login field does not show
// up within Timeout.
type LoginFieldDetector struct {
	Selector string
	Interval time.Duration
	Timeout  time.Duration
}

func (d LoginFieldDetector) Detect(ctx context.Context, s browser.Session) (bool, error) {
	err := wait.Until(ctx, d.Interval, d.Timeout, present(s, d.Selector))
	switch {
	case err == nil:
		return false, nil
	case errors.Is(err, wait.ErrTimeout):
		return true, nil
	default:
		return false, err
	}
}

// PageSourceDetector looks for any of Markers in the page source.
type PageSourceDetector struct {
	Markers []string
}

func (d PageSourceDetector) Detect(ctx context.Context, s browser.Session) (bool, error) {
	src, err := s.PageSource(ctx)
	if err != nil {
		return false, err
	}
	for _, m := range d.Markers {
		if m != "" && strings.Contains(src, m) {
			return true, nil
		}
	}
	return false, nil
}

// AnyDetector reports a challenge as soon as one of its detectors does.
type AnyDetector []ChallengeDetector

func (a AnyDetector) Detect(ctx context.Context, s browser.Session) (bool, error) {
	for _, d := range a {
		found, err := d.Detect(ctx, s)
		if err != nil {
			return false, err
		}
		if found {
			return true, nil
		}
	}
	return false, nil
}

// NewDetector builds the detector named in the portal settings.
func NewDetector(p config.Portal, sel Selectors) (ChallengeDetector, error) {
	field := LoginFieldDetector{Selector: sel.Username, Interval: p.Timeouts.Poll, Timeout: p.Timeouts.Detect}
	source := PageSourceDetector{Markers: p.ChallengeMarkers}

	switch p.ChallengeDetector {
	case config.DetectorLoginField:
		return field, nil
	case config.DetectorPageSource:
		return source, nil
	case config.DetectorAny, "":
		return AnyDetector{source, field}, nil
	default:
		return nil, fmt.Errorf("%w: unknown challenge detector %q", config.ErrConfiguration, p.ChallengeDetector)
	}
}
