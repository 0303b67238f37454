/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package main

import (
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/allbin/go-devman"
	"github.com/allbin/go-devman/internal/tui/models"
)

// watchCmd represents the watch command
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch the fleet in a live dashboard",
	Long: `Open a full-screen dashboard showing every adopted port, the device
identity it currently serves, its status code and the last lifecycle
event. The view updates live as devices appear, identify, disconnect
and move between ports.

Keys: r refreshes enumeration, ? toggles help, q quits.`,
	Run: func(cmd *cobra.Command, args []string) {
		mgr, err := newManagerFromConfig()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer mgr.Close()

		// Events are dropped rather than blocking a port manager when
		// the UI falls behind; the dashboard re-reads manager state on
		// every message anyway.
		events := make(chan devman.Event, 256)
		mgr.Subscribe(func(e devman.Event) {
			select {
			case events <- e:
			default:
			}
		})

		model := models.NewFleetModel(mgr, events)
		p := tea.NewProgram(model, tea.WithAltScreen())
		if _, err := p.Run(); err != nil {
			fmt.Fprintf(os.Stderr, "Error running dashboard: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
