package models

import (
	"context"
	"fmt"
	"sort"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/allbin/go-devman"
	"github.com/allbin/go-devman/internal/tui/components"
	"github.com/allbin/go-devman/internal/tui/keys"
	"github.com/allbin/go-devman/internal/tui/styles"
)

// EventMsg delivers a manager event to the model.
type EventMsg devman.Event

// refreshDoneMsg reports the outcome of a manual refresh.
type refreshDoneMsg struct{ err error }

// FleetModel is the bubbletea model for the fleet dashboard. It keeps
// a per-port view of the manager's state, updated from the event
// stream.
type FleetModel struct {
	mgr    *devman.Manager
	events <-chan devman.Event

	table     *components.FleetTable
	statusBar *components.StatusBar
	help      help.Model
	keys      keys.WatchKeys

	lastEvent  map[string]string // port path -> description
	eventCount int
	width      int
	height     int
	showHelp   bool
}

func NewFleetModel(mgr *devman.Manager, events <-chan devman.Event) *FleetModel {
	return &FleetModel{
		mgr:       mgr,
		events:    events,
		table:     components.NewFleetTable(80, 15),
		statusBar: components.NewStatusBar(),
		help:      help.New(),
		keys:      keys.NewWatchKeys(),
		lastEvent: make(map[string]string),
	}
}

func (m *FleetModel) Init() tea.Cmd {
	return tea.Batch(m.nextEvent(), m.refresh())
}

func (m *FleetModel) nextEvent() tea.Cmd {
	return func() tea.Msg {
		e, ok := <-m.events
		if !ok {
			return nil
		}
		return EventMsg(e)
	}
}

func (m *FleetModel) refresh() tea.Cmd {
	return func() tea.Msg {
		return refreshDoneMsg{err: m.mgr.Refresh(context.Background())}
	}
}

func (m *FleetModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.table.SetSize(msg.Width, msg.Height-4)
		m.statusBar.SetWidth(msg.Width)
		m.syncRows()
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Help):
			m.showHelp = !m.showHelp
			return m, nil
		case key.Matches(msg, m.keys.Refresh):
			m.statusBar.SetNote("refreshing")
			return m, m.refresh()
		}
		m.table.Update(msg)
		return m, nil

	case refreshDoneMsg:
		if msg.err != nil {
			m.statusBar.SetNote(styles.ErrorStyle.Render(msg.err.Error()))
		} else {
			m.statusBar.SetNote("watching")
		}
		m.syncRows()
		return m, nil

	case EventMsg:
		m.eventCount++
		e := devman.Event(msg)
		if e.Port != "" {
			m.lastEvent[e.Port] = describeEvent(e)
		}
		m.syncRows()
		return m, m.nextEvent()
	}

	return m, nil
}

// syncRows rebuilds the table from the manager's current state.
func (m *FleetModel) syncRows() {
	ports := m.mgr.Ports()
	paths := make([]string, 0, len(ports))
	for path := range ports {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	rows := make([]components.FleetRow, 0, len(paths))
	for _, path := range paths {
		pm := ports[path]
		rows = append(rows, components.FleetRow{
			Port:      path,
			DeviceID:  pm.DeviceID(),
			Status:    pm.Status(),
			LastEvent: m.lastEvent[path],
		})
	}
	m.table.SetRows(rows)
	m.statusBar.SetCounts(len(paths), len(m.mgr.DeviceIDs()), m.eventCount)
}

func describeEvent(e devman.Event) string {
	switch e.Kind {
	case devman.EventStatusChanged:
		return fmt.Sprintf("status %s", e.Status)
	case devman.EventError:
		return fmt.Sprintf("error: %v", e.Err)
	case devman.EventNew, devman.EventConnect, devman.EventReady,
		devman.EventReinitialized, devman.EventIDChange, devman.EventDisconnect:
		return fmt.Sprintf("%s %s", e.Kind, e.DeviceID)
	default:
		return e.Kind.String()
	}
}

func (m *FleetModel) View() string {
	title := styles.TitleStyle.Render("Serial Device Fleet")

	sections := []string{
		title,
		m.table.View(),
		m.statusBar.View(),
	}
	if m.showHelp {
		sections = append(sections, styles.HelpStyle.Render(m.help.FullHelpView(m.keys.FullHelp())))
	} else {
		sections = append(sections, styles.HelpStyle.Render(m.help.ShortHelpView(m.keys.ShortHelp())))
	}

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}
