// Package wait polls a condition until it holds, fails, or a deadline passes.
package wait

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrTimeout is returned when the condition did not hold before the timeout.
var ErrTimeout = errors.New("timed out")

// Condition reports whether the awaited state has been reached. A non-nil
// error stops polling immediately and is returned as is.
type Condition func(ctx context.Context) (bool, error)

// Until evaluates cond right away and then every interval until it returns
// true, returns an error, parent is done, or timeout elapses.
func Until(parent context.Context, interval, timeout time.Duration, cond Condition) error {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}

	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		ok, err := cond(ctx)
		if err != nil {
			// A condition cut short by our own deadline is a timeout.
			if ctx.Err() != nil {
				return expired(parent, timeout)
			}
			return err
		}
		if ok {
			return nil
		}

		select {
		case <-ctx.Done():
			return expired(parent, timeout)
		case <-ticker.C:
		}
	}
}

func expired(parent context.Context, timeout time.Duration) error {
	if err := parent.Err(); err != nil {
		return err
	}
	return fmt.Errorf("%w after %s", ErrTimeout, timeout)
}
