package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/zpdzap/wsport/internal/run"
)

const title = "wsport"

func (m model) View() string {
	var b strings.Builder

	elapsed := m.now.Sub(m.started).Truncate(time.Second)
	right := statsStyle.Render(elapsed.String())
	gap := m.width - lipgloss.Width(title) - lipgloss.Width(right) - 4
	if gap < 1 {
		gap = 1
	}
	b.WriteString(headerStyle.Width(m.width).Render(title + strings.Repeat(" ", gap) + right))
	b.WriteString("\n")

	for _, e := range m.steps {
		b.WriteString(m.renderStep(e))
		b.WriteString("\n")
	}

	b.WriteString(dividerStyle.Render(strings.Repeat("─", m.width)))
	b.WriteString("\n")
	b.WriteString(m.renderFooter())
	b.WriteString("\n")
	return b.String()
}

func (m model) renderStep(e run.Entry) string {
	var icon string
	name := nameStyle.Render(e.Step)
	switch {
	case e.Step == m.current && m.outcome == nil:
		icon = m.spinner.View()
		name = activeNameStyle.Render(e.Step)
	case e.State == run.StateSuccess:
		icon = statusSuccess.Render("✓")
	case e.State == run.StateFailed:
		icon = statusFailed.Render("✗")
	default:
		icon = statusPending.Render("·")
	}

	line := fmt.Sprintf("  %s %s", icon, name)
	if e.Detail != "" {
		line += "  " + detailStyle.Render(e.Detail)
	}
	return line
}

func (m model) renderFooter() string {
	switch {
	case m.outcome == nil && m.cancelling:
		return messageStyle.Render("Cancelling, waiting for the current step to stop...")
	case m.outcome == nil:
		return hotkeysStyle.Render("[q] cancel")
	case m.outcome.ExitCode == run.ExitOK:
		return messageStyle.Render("New port: ") + portStyle.Render(m.outcome.Port)
	case m.outcome.Interrupted:
		return errorStyle.Render("Operation cancelled")
	default:
		return errorStyle.Render("Error: " + m.outcome.Error)
	}
}
