package run

import (
	"errors"
	"fmt"
	"strings"

	"github.com/zpdzap/wsport/internal/config"
)

func mark(s State) string {
	switch s {
	case StateSuccess:
		return "✅"
	case StateFailed:
		return "❌"
	default:
		return "➖"
	}
}

// FormatLedger renders entries one per line, in order.
func FormatLedger(entries []Entry, bold bool) string {
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Step
		if bold {
			name = "**" + name + "**"
		}
		line := mark(e.State) + " " + name
		if e.Detail != "" {
			line += " (" + e.Detail + ")"
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

// SuccessReport is the message sent after a complete run.
func SuccessReport(port string, entries []Entry) string {
	return fmt.Sprintf("Port forwarding updated successfully!\nNew port: **%s**\n\n%s", port, FormatLedger(entries, true))
}

// FailureReport embeds err and the ledger as it stood when the run stopped.
func FailureReport(err error, entries []Entry) string {
	title := "Error occurred:"
	if errors.Is(err, config.ErrConfiguration) {
		title = "Configuration Error:"
	}
	return fmt.Sprintf("%s\n%s\n\nStatus:\n%s", title, err, FormatLedger(entries, false))
}
