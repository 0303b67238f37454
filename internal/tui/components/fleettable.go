package components

import (
	"fmt"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/allbin/go-devman"
	"github.com/allbin/go-devman/internal/tui/colors"
	"github.com/allbin/go-devman/internal/tui/styles"
)

// FleetRow is one port's line in the dashboard.
type FleetRow struct {
	Port      string
	DeviceID  string
	Status    devman.Status
	LastEvent string
}

// FleetTable renders the fleet as a scrollable table.
type FleetTable struct {
	table table.Model
	rows  []FleetRow
}

func NewFleetTable(width, height int) *FleetTable {
	if width < 80 {
		width = 80
	}
	if height < 5 {
		height = 5
	}

	t := table.New(
		table.WithColumns(fleetColumns(width)),
		table.WithFocused(true),
		table.WithHeight(height),
		table.WithWidth(width),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(colors.Subtext0).
		BorderBottom(true).
		Bold(true).
		Foreground(colors.Text)
	s.Selected = s.Selected.
		Foreground(colors.Text).
		Background(colors.Surface1).
		Bold(false)
	t.SetStyles(s)

	return &FleetTable{table: t}
}

func fleetColumns(width int) []table.Column {
	portWidth := 18
	statusWidth := 16
	codeWidth := 5
	remaining := width - portWidth - statusWidth - codeWidth - 10
	deviceWidth := remaining / 2
	if deviceWidth < 16 {
		deviceWidth = 16
	}
	eventWidth := remaining - deviceWidth
	if eventWidth < 14 {
		eventWidth = 14
	}

	return []table.Column{
		{Title: "Port", Width: portWidth},
		{Title: "Device", Width: deviceWidth},
		{Title: "Status", Width: statusWidth},
		{Title: "Code", Width: codeWidth},
		{Title: "Last Event", Width: eventWidth},
	}
}

func (ft *FleetTable) SetSize(width, height int) {
	ft.table.SetColumns(fleetColumns(width))
	ft.table.SetWidth(width)
	ft.table.SetHeight(height)
	ft.table.UpdateViewport()
}

// SetRows replaces the fleet snapshot shown in the table.
func (ft *FleetTable) SetRows(rows []FleetRow) {
	ft.rows = rows
	out := make([]table.Row, 0, len(rows))
	for _, r := range rows {
		device := r.DeviceID
		if device == "" {
			device = "-"
		}
		out = append(out, table.Row{
			r.Port,
			device,
			styles.StatusStyle(r.Status).Render(r.Status.String()),
			fmt.Sprintf("%d", int(r.Status)),
			r.LastEvent,
		})
	}
	ft.table.SetRows(out)
	ft.table.UpdateViewport()
}

func (ft *FleetTable) Update(msg tea.Msg) {
	ft.table, _ = ft.table.Update(msg)
}

func (ft *FleetTable) View() string {
	if len(ft.rows) == 0 {
		return styles.EventStyle.Render("No ports adopted yet. Waiting for enumeration...")
	}
	return ft.table.View()
}
