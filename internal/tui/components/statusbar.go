package components

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/allbin/go-devman/internal/tui/colors"
)

// StatusBar summarizes the fleet below the table.
type StatusBar struct {
	width   int
	ports   int
	devices int
	events  int
	note    string
}

func NewStatusBar() *StatusBar {
	return &StatusBar{note: "starting"}
}

func (sb *StatusBar) SetWidth(width int) {
	sb.width = width
}

func (sb *StatusBar) SetCounts(ports, devices, events int) {
	sb.ports = ports
	sb.devices = devices
	sb.events = events
}

func (sb *StatusBar) SetNote(note string) {
	sb.note = note
}

func (sb *StatusBar) View() string {
	width := sb.width
	if width <= 0 {
		width = 80
	}

	titleStyle := lipgloss.NewStyle().
		Foreground(colors.Base).
		Background(colors.Mauve).
		Bold(true).
		Padding(0, 1)
	title := titleStyle.Render("devman")

	countStyle := lipgloss.NewStyle().
		Foreground(colors.Subtext0).
		Padding(0, 1)
	counts := countStyle.Render(fmt.Sprintf("%d ports · %d devices · %d events",
		sb.ports, sb.devices, sb.events))

	noteStyle := lipgloss.NewStyle().
		Foreground(colors.Subtext1).
		Padding(0, 1)
	note := noteStyle.Render(sb.note)

	left := lipgloss.JoinHorizontal(lipgloss.Left, title, counts)

	spacerWidth := width - lipgloss.Width(left) - lipgloss.Width(note)
	if spacerWidth < 1 {
		spacerWidth = 1
	}
	spacer := lipgloss.NewStyle().Width(spacerWidth).Render("")

	barStyle := lipgloss.NewStyle().
		Foreground(colors.Text).
		Background(colors.Surface0).
		Width(width)

	return barStyle.Render(lipgloss.JoinHorizontal(lipgloss.Left, left, spacer, note))
}
