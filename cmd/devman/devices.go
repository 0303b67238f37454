/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

// devicesCmd represents the devices command
var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List identified devices in the fleet",
	Long: `Run an enumeration pass with the configured rules, give accepted
ports time to identify their devices, and print the resulting device
identities with the port each one currently lives on.

Examples:
  devman devices
  devman devices --settle 10s`,
	Run: func(cmd *cobra.Command, args []string) {
		mgr, err := newManagerFromConfig()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer mgr.Close()

		settle, _ := cmd.Flags().GetDuration("settle")

		ctx, cancel := context.WithTimeout(context.Background(), settle+5*time.Second)
		defer cancel()
		if err := mgr.Refresh(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Error refreshing: %v\n", err)
			os.Exit(1)
		}

		// Identification needs the init delay plus one probe round
		// trip per port. Poll until at least one device is known and
		// the count has been stable for a second, or give up at the
		// settle deadline.
		deadline := time.Now().Add(settle)
		stableSince := time.Now()
		last := -1
		for time.Now().Before(deadline) {
			n := len(mgr.DeviceIDs())
			if n != last {
				last = n
				stableSince = time.Now()
			} else if n > 0 && time.Since(stableSince) > time.Second {
				break
			}
			time.Sleep(250 * time.Millisecond)
		}

		ids := mgr.DeviceIDs()
		if len(ids) == 0 {
			fmt.Println("No devices identified")
			return
		}

		idStyle := lipgloss.NewStyle().Bold(true)
		for _, id := range ids {
			port := ""
			if pm, ok := mgr.Lookup(id); ok {
				port = pm.Path()
			}
			fmt.Printf("%s  %s\n", idStyle.Render(id), port)
		}
	},
}

func init() {
	rootCmd.AddCommand(devicesCmd)

	devicesCmd.Flags().DurationP("settle", "s", 8*time.Second, "How long to wait for identification")
}
