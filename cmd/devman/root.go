/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

// rootCmd represents the base command when called without subcommands
var rootCmd = &cobra.Command{
	Use:   "devman",
	Short: "Manage a fleet of serial-attached devices by identity",
	Long: `devman manages serial-attached devices that speak a request/response
line-oriented protocol. Devices are addressed by the identity they
report to a configured probe command, not by their port path, so
commands keep working across reboots, replugs and port renumbering.

Which ports belong to the fleet, and how each is probed, is described
by match rules in the configuration file (default: $HOME/.devman.yaml):

  rules:
    - match:
        manufacturer: "Keyspan"
      settings:
        baud_rate: 9600
        id_command: "!SHOW HOST_NAME\n"
        id_pattern: "Host Name = (.*)\r\n"`,
}

// Execute runs the root command. Called once from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.devman.yaml)")
	rootCmd.PersistentFlags().String("log-level", "warn", "log level: debug, info, warn, error")
}

// initConfig reads in the config file and environment variables.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".devman")
	}

	viper.SetEnvPrefix("DEVMAN")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		// Only a missing default config is tolerable.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			fmt.Fprintf(os.Stderr, "Error reading config: %v\n", err)
			os.Exit(1)
		}
	}

	setupLogging()
}

func setupLogging() {
	level, _ := rootCmd.PersistentFlags().GetString("log-level")
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelWarn
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
}
