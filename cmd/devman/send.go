/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/allbin/go-devman"
)

// sendCmd represents the send command
var sendCmd = &cobra.Command{
	Use:   "send <device-id> <command>",
	Short: "Send a command to a device by identity",
	Long: `Send a command to the device with the given identity and print its
response. The device is resolved through the configured rules; if it is
not yet known, an enumeration pass runs and the command waits for the
device to identify itself.

Line endings are not added automatically; use --newline to append one.

Examples:
  devman send blaster_lab_3 '!SHOW STATUS' --newline
  devman send blaster_lab_3 $'!SHOW HOST_NAME\n'
  devman send sensor_4 'READ' --newline --hex`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		deviceID := args[0]
		command := args[1]

		addNewline, _ := cmd.Flags().GetBool("newline")
		hexOutput, _ := cmd.Flags().GetBool("hex")
		wait, _ := cmd.Flags().GetDuration("wait")
		responseTimeout, _ := cmd.Flags().GetDuration("response-timeout")

		if addNewline {
			command += "\n"
		}

		mgr, err := newManagerFromConfig()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer mgr.Close()

		opts := []devman.SubmitOption{}
		if wait > 0 {
			opts = append(opts, devman.WithWaitTimeout(wait))
		}
		if responseTimeout > 0 {
			opts = append(opts, devman.WithResponseTimeout(responseTimeout))
		}

		ctx, cancel := context.WithTimeout(context.Background(), wait+30*time.Second)
		defer cancel()

		resp, err := mgr.Request(ctx, deviceID, []byte(command), opts...)
		if err != nil {
			fmt.Fprintln(os.Stderr, lipgloss.NewStyle().
				Foreground(lipgloss.Color("9")).
				Render(fmt.Sprintf("✗ %v", err)))
			os.Exit(1)
		}

		if hexOutput {
			fmt.Println(hex.Dump(resp))
		} else {
			os.Stdout.Write(resp)
			if len(resp) > 0 && resp[len(resp)-1] != '\n' {
				fmt.Println()
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(sendCmd)

	sendCmd.Flags().BoolP("newline", "n", false, "Append a newline to the command")
	sendCmd.Flags().Bool("hex", false, "Print the response as a hex dump")
	sendCmd.Flags().DurationP("wait", "w", 10*time.Second, "How long to wait for the device to appear")
	sendCmd.Flags().DurationP("response-timeout", "r", 0, "Override the response quiescence window")
}
