package tui

import (
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			if m.outcome != nil {
				return m, tea.Quit
			}
			// The workflow owns shutdown; wait for it to report back.
			if !m.cancelling && m.cancel != nil {
				m.cancelling = true
				m.cancel()
			}
		}
		return m, nil

	case stepStartedMsg:
		m.current = msg.step
		return m, nil

	case stepFinishedMsg:
		if e := m.entry(msg.step); e != nil {
			e.State = msg.state
			e.Detail = msg.detail
		}
		if m.current == msg.step {
			m.current = ""
		}
		return m, nil

	case runDoneMsg:
		out := msg.outcome
		m.outcome = &out
		m.current = ""
		// The ledger in the outcome is authoritative.
		if len(out.Ledger) > 0 {
			m.steps = append(m.steps[:0], out.Ledger...)
		}
		return m, tea.Quit

	case elapsedTickMsg:
		if m.outcome != nil {
			return m, nil
		}
		m.now = time.Time(msg)
		return m, tickCmd()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}
