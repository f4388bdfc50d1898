package utils

import "github.com/charmbracelet/lipgloss"

// Colors degrade to plain text when stdout is not a terminal or NO_COLOR is set.
var (
	cyanStyle        = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#0e7490", Dark: "#67e8f9"})
	greenStyle       = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#86b300", Dark: "#c2d94c"})
	yellowStyle      = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#f2ae49", Dark: "#ffb454"})
	redStyle         = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#f07171", Dark: "#f07178"})
	brightWhiteStyle = lipgloss.NewStyle().Bold(true)
	boldStyle        = lipgloss.NewStyle().Bold(true)
	dimStyle         = lipgloss.NewStyle().Faint(true)
)

func Cyan(text string) string        { return cyanStyle.Render(text) }
func Green(text string) string       { return greenStyle.Render(text) }
func Yellow(text string) string      { return yellowStyle.Render(text) }
func Red(text string) string         { return redStyle.Render(text) }
func BrightWhite(text string) string { return brightWhiteStyle.Render(text) }
func Bold(text string) string        { return boldStyle.Render(text) }
func Dim(text string) string         { return dimStyle.Render(text) }
