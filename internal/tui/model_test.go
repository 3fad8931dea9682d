package tui

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/zpdzap/wsport/internal/run"
)

func testSteps() []run.Entry {
	return []run.Entry{
		{Step: run.StepAcquire, State: run.StatePending},
		{Step: run.StepSync, State: run.StatePending},
	}
}

func update(t *testing.T, m model, msg tea.Msg) model {
	t.Helper()
	next, _ := m.Update(msg)
	return next.(model)
}

func TestStepTransitions(t *testing.T) {
	m := newModel(testSteps(), nil)

	m = update(t, m, stepStartedMsg{step: run.StepAcquire})
	if m.current != run.StepAcquire {
		t.Fatalf("current = %q, want %q", m.current, run.StepAcquire)
	}

	m = update(t, m, stepFinishedMsg{step: run.StepAcquire, state: run.StateSuccess})
	if m.current != "" {
		t.Errorf("current = %q after finish, want empty", m.current)
	}
	if m.steps[0].State != run.StateSuccess {
		t.Errorf("state = %q, want success", m.steps[0].State)
	}
	if m.steps[1].State != run.StatePending {
		t.Errorf("untouched step changed to %q", m.steps[1].State)
	}
}

func TestRunDoneQuits(t *testing.T) {
	m := newModel(testSteps(), nil)
	out := run.Outcome{
		ExitCode: run.ExitOK,
		Port:     "40123",
		Ledger: []run.Entry{
			{Step: run.StepAcquire, State: run.StateSuccess},
			{Step: run.StepSync, State: run.StateSuccess},
		},
	}

	next, cmd := m.Update(runDoneMsg{outcome: out})
	m = next.(model)
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Errorf("cmd() = %T, want tea.QuitMsg", cmd())
	}
	if !strings.Contains(m.View(), "40123") {
		t.Errorf("view does not show the new port:\n%s", m.View())
	}
}

func TestCancelKeyCancelsOnce(t *testing.T) {
	calls := 0
	m := newModel(testSteps(), func() { calls++ })

	m = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	m = update(t, m, tea.KeyMsg{Type: tea.KeyCtrlC})

	if calls != 1 {
		t.Errorf("cancel called %d times, want 1", calls)
	}
	if !m.cancelling {
		t.Error("model not marked cancelling")
	}
	if !strings.Contains(m.View(), "Cancelling") {
		t.Errorf("view does not show cancellation:\n%s", m.View())
	}
}

func TestFailureView(t *testing.T) {
	m := newModel(testSteps(), nil)
	m = update(t, m, runDoneMsg{outcome: run.Outcome{
		ExitCode: run.ExitFailure,
		Error:    "qBittorrent login failed",
		Ledger: []run.Entry{
			{Step: run.StepAcquire, State: run.StateSuccess},
			{Step: run.StepSync, State: run.StateFailed},
		},
	}})

	v := m.View()
	if !strings.Contains(v, "qBittorrent login failed") {
		t.Errorf("view missing error:\n%s", v)
	}
	if !strings.Contains(v, "✗") {
		t.Errorf("view missing failed marker:\n%s", v)
	}
}

func TestElapsedTickUpdatesHeader(t *testing.T) {
	m := newModel(testSteps(), nil)

	next, cmd := m.Update(elapsedTickMsg(m.started.Add(42 * time.Second)))
	m = next.(model)
	if cmd == nil {
		t.Error("expected the tick to be rescheduled")
	}
	if !strings.Contains(m.View(), "42s") {
		t.Errorf("header does not show elapsed time:\n%s", m.View())
	}

	m = update(t, m, runDoneMsg{outcome: run.Outcome{ExitCode: run.ExitOK, Port: "40123"}})
	if _, cmd := m.Update(elapsedTickMsg(m.started.Add(time.Hour))); cmd != nil {
		t.Error("tick should stop once the run is done")
	}
}
