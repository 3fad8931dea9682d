package run

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zpdzap/wsport/internal/config"
)

func TestNewLedgerFollowsFeatures(t *testing.T) {
	l := NewLedger(config.Features{})
	assert.Len(t, l.Snapshot(), 2)
	assert.False(t, l.Has(StepEnv))

	l = NewLedger(config.Features{Stack: true})
	steps := l.Snapshot()
	require.Len(t, steps, 4)
	assert.Equal(t, []string{StepAcquire, StepSync, StepEnv, StepRestart},
		[]string{steps[0].Step, steps[1].Step, steps[2].Step, steps[3].Step})
	for _, e := range steps {
		assert.Equal(t, StatePending, e.State)
	}
}

func TestLedgerMarkAndDetail(t *testing.T) {
	l := NewLedger(config.Features{Stack: true})
	l.Mark(StepRestart, StateFailed)
	l.Detail(StepRestart, "gluetun=healthy")
	l.Mark("no such step", StateSuccess)

	e, ok := l.Get(StepRestart)
	require.True(t, ok)
	assert.Equal(t, StateFailed, e.State)
	assert.Equal(t, "gluetun=healthy", e.Detail)

	_, ok = l.Get("no such step")
	assert.False(t, ok)

	// Snapshots are copies.
	snap := l.Snapshot()
	snap[0].State = StateFailed
	e, _ = l.Get(StepAcquire)
	assert.Equal(t, StatePending, e.State)
}

func TestSuccessReport(t *testing.T) {
	entries := []Entry{
		{Step: StepAcquire, State: StateSuccess},
		{Step: StepSync, State: StateSuccess},
	}
	want := "Port forwarding updated successfully!\nNew port: **40123**\n\n" +
		"✅ **new windscribe port**\n✅ **update qbittorrent port**"
	assert.Equal(t, want, SuccessReport("40123", entries))
}

func TestFailureReport(t *testing.T) {
	entries := []Entry{
		{Step: StepAcquire, State: StateSuccess},
		{Step: StepSync, State: StateFailed},
		{Step: StepEnv, State: StatePending},
	}
	got := FailureReport(errors.New("qBittorrent login failed"), entries)
	want := "Error occurred:\nqBittorrent login failed\n\nStatus:\n" +
		"✅ new windscribe port\n❌ update qbittorrent port\n➖ update docker env"
	assert.Equal(t, want, got)

	cfgErr := fmt.Errorf("%w: unknown challenge detector", config.ErrConfiguration)
	assert.Contains(t, FailureReport(cfgErr, nil), "Configuration Error:\n")
}
