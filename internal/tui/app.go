package tui

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/zpdzap/wsport/internal/run"
)

// Workflow runs one cycle, reporting step transitions to obs.
type Workflow func(ctx context.Context, obs run.Observer) run.Outcome

// Run shows the progress of work until it returns. Pressing q cancels the
// context passed to work; the view stays up until work has unwound.
func Run(ctx context.Context, steps []run.Entry, work Workflow) (run.Outcome, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(newModel(steps, cancel))

	done := make(chan run.Outcome, 1)
	go func() {
		out := work(ctx, observer{send: p.Send})
		done <- out
		p.Send(runDoneMsg{outcome: out})
	}()

	if _, err := p.Run(); err != nil {
		cancel()
		out := <-done
		return out, fmt.Errorf("TUI error: %w", err)
	}
	return <-done, nil
}
