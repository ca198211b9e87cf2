package main

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/joshuapare/earlyalloc/internal/plan"
)

// Outcome colors
var (
	okColor      = lipgloss.Color("#04B575")
	noMemColor   = lipgloss.Color("#FF4B4B")
	invalidColor = lipgloss.Color("#FFA500")
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7D56F4"))

	okStyle = lipgloss.NewStyle().
		Foreground(okColor)

	noMemStyle = lipgloss.NewStyle().
			Foreground(noMemColor)

	invalidStyle = lipgloss.NewStyle().
			Foreground(invalidColor)

	handoffStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#7D56F4")).
			Padding(0, 1)
)

// renderOutcome colors a step result by its meaning.
func renderOutcome(result string) string {
	switch result {
	case plan.ExpectOK:
		return okStyle.Render(result)
	case plan.ExpectNoMemory:
		return noMemStyle.Render(result)
	case plan.ExpectInvalidParam:
		return invalidStyle.Render(result)
	default:
		return result
	}
}
