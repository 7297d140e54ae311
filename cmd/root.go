// Package cmd provides the CLI commands for the concierge service.
package cmd

import (
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "concierge",
	Short: "Concierge - the Azzco marketing site chatbot backend",
	Long:  `Concierge answers marketing site visitors in French, adapting its tone to the detected visitor profile.`,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to the YAML configuration file")
}

func Execute() error {
	return rootCmd.Execute()
}
