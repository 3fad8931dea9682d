package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/zpdzap/wsport/internal/run"
)

// stepStartedMsg is sent when the orchestrator enters a step.
type stepStartedMsg struct {
	step string
}

// stepFinishedMsg is sent when a step reaches a terminal state.
type stepFinishedMsg struct {
	step   string
	state  run.State
	detail string
}

// runDoneMsg carries the outcome once the workflow returns.
type runDoneMsg struct {
	outcome run.Outcome
}

// elapsedTickMsg refreshes the elapsed time shown in the header.
type elapsedTickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return elapsedTickMsg(t)
	})
}

// observer forwards step transitions into the program.
type observer struct {
	send func(tea.Msg)
}

func (o observer) StepStarted(step string) {
	o.send(stepStartedMsg{step: step})
}

func (o observer) StepFinished(step string, state run.State, detail string) {
	o.send(stepFinishedMsg{step: step, state: state, detail: detail})
}
