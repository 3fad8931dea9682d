package tui

import (
	"context"
	"os"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/term"

	"github.com/zpdzap/wsport/internal/run"
)

// model is the Bubble Tea model for the run progress view.
type model struct {
	steps      []run.Entry
	current    string // step in flight, empty between steps
	spinner    spinner.Model
	cancel     context.CancelFunc
	cancelling bool
	outcome    *run.Outcome
	started    time.Time
	now        time.Time
	width      int
}

func newModel(steps []run.Entry, cancel context.CancelFunc) model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = spinnerStyle

	// Get initial terminal size so the first render isn't at width=0
	w, _, _ := term.GetSize(int(os.Stdout.Fd()))
	if w == 0 {
		w = 80
	}

	now := time.Now()
	return model{
		steps:   append([]run.Entry(nil), steps...),
		spinner: sp,
		cancel:  cancel,
		started: now,
		now:     now,
		width:   w,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tickCmd())
}

func (m *model) entry(step string) *run.Entry {
	for i := range m.steps {
		if m.steps[i].Step == step {
			return &m.steps[i]
		}
	}
	return nil
}
