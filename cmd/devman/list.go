/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/allbin/go-devman"
)

// listCmd represents the list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List attached serial ports",
	Long: `List the serial ports currently attached to the system, with USB
metadata where available. Virtual terminals and pseudo-terminals are
excluded.

This shows every enumerable port, whether or not the configured rules
would accept it. Use 'devman devices' for the identity view.`,
	Run: func(cmd *cobra.Command, args []string) {
		infos, err := devman.SystemEnumerator().List()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error listing ports: %v\n", err)
			os.Exit(1)
		}

		if len(infos) == 0 {
			fmt.Println("No serial ports found")
			return
		}

		tableFormat, _ := cmd.Flags().GetBool("table")
		if tableFormat {
			renderPortTable(infos)
		} else {
			for _, info := range infos {
				fmt.Println(info.Path)
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().BoolP("table", "t", false, "Display output in a styled table format")
}

// renderPortTable renders the port list in a styled static table format
func renderPortTable(infos []devman.PortInfo) {
	fmt.Printf("Found %d serial port(s):\n\n", len(infos))

	pathWidth := 16
	descWidth := 22
	vidWidth := 10
	serialWidth := 16
	mfgWidth := 20

	headerStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("99")).
		Border(lipgloss.NormalBorder(), false, false, true, false).
		BorderForeground(lipgloss.Color("240")).
		PaddingBottom(1)

	cellStyle := lipgloss.NewStyle().
		PaddingRight(2)

	header := fmt.Sprintf("%-*s %-*s %-*s %-*s %-*s",
		pathWidth, "Port",
		descWidth, "Description",
		vidWidth, "VID:PID",
		serialWidth, "Serial",
		mfgWidth, "Manufacturer")
	fmt.Println(headerStyle.Render(header))

	for _, info := range infos {
		vidPid := ""
		if info.VendorID != "" || info.ProductID != "" {
			vidPid = fmt.Sprintf("%s:%s", info.VendorID, info.ProductID)
		}
		row := fmt.Sprintf("%-*s %-*s %-*s %-*s %-*s",
			pathWidth, info.Path,
			descWidth, info.Description,
			vidWidth, vidPid,
			serialWidth, info.SerialNumber,
			mfgWidth, info.Manufacturer)
		fmt.Println(cellStyle.Render(row))
	}
}
