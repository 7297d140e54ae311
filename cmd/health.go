package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/azzcolabs/concierge/core/config"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check provider availability with a minimal round trip",
	RunE:  runHealth,
}

func init() {
	rootCmd.AddCommand(healthCmd)
}

func runHealth(cmd *cobra.Command, args []string) error {
	logger := newLogger()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	service, registry, err := buildService(cmd.Context(), cfg, nil, logger)
	if err != nil {
		return err
	}
	defer registry.Close()

	health := service.CheckHealth(cmd.Context())

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(health); err != nil {
		return err
	}
	if !health.Available {
		return fmt.Errorf("provider unavailable: %s", health.Error)
	}
	return nil
}
