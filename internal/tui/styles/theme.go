package styles

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/allbin/go-devman"
	"github.com/allbin/go-devman/internal/tui/colors"
)

var (
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colors.Mauve).
			Background(colors.Surface0).
			Padding(0, 1)

	StatusReadyStyle = lipgloss.NewStyle().
				Foreground(colors.Green).
				Bold(true)

	StatusPendingStyle = lipgloss.NewStyle().
				Foreground(colors.Yellow).
				Bold(true)

	StatusDownStyle = lipgloss.NewStyle().
			Foreground(colors.Red).
			Bold(true)

	StatusIdleStyle = lipgloss.NewStyle().
			Foreground(colors.Overlay0)

	EventStyle = lipgloss.NewStyle().
			Foreground(colors.Subtext0)

	ErrorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colors.Red)

	HelpStyle = lipgloss.NewStyle().
			Foreground(colors.Subtext1)
)

// StatusStyle picks the rendering for a port status code.
func StatusStyle(s devman.Status) lipgloss.Style {
	switch s {
	case devman.StatusReady:
		return StatusReadyStyle
	case devman.StatusOpen, devman.StatusIdentifying:
		return StatusPendingStyle
	case devman.StatusError, devman.StatusDisconnected, devman.StatusClosing, devman.StatusInitFailed:
		return StatusDownStyle
	default:
		return StatusIdleStyle
	}
}
