package cli

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"

	"github.com/quickmod/quickmod/internal/pipeline"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true)
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

func statusStyle(ok bool) lipgloss.Style {
	if ok {
		return okStyle
	}
	return failStyle
}

// renderReport prints one block per requested definition.
func renderReport(w io.Writer, report *pipeline.Report) {
	if report.Environment.Name != "" {
		fmt.Fprintf(w, "%s %s (%s)\n\n", headerStyle.Render("Environment:"), report.Environment.Name, report.Environment.Version)
	}

	for _, r := range report.Results {
		label := fmt.Sprintf("%-19s", r.Outcome)
		var style lipgloss.Style
		switch r.Outcome {
		case pipeline.Installed:
			style = okStyle
		case pipeline.Aborted, pipeline.Pending:
			style = mutedStyle
		default:
			style = failStyle
		}

		name := r.UID
		if r.Version != "" {
			name += " " + r.Version
		}
		fmt.Fprintf(w, "  %s  %s\n", style.Render(label), name)
		if r.Err != nil {
			fmt.Fprintf(w, "      %s: %v\n", r.Kind(), r.Err)
		}
		for _, p := range r.Paths {
			fmt.Fprintf(w, "      %s\n", mutedStyle.Render(p))
		}
	}

	fmt.Fprintf(w, "\n%d installed, %d failed, %d aborted\n",
		report.Count(pipeline.Installed), failedCount(report), report.Count(pipeline.Aborted))
}

func failedCount(report *pipeline.Report) int {
	n := 0
	for _, r := range report.Results {
		if r.Outcome.Failed() {
			n++
		}
	}
	return n
}
