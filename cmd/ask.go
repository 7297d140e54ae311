package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/azzcolabs/concierge/core/config"
)

var askJSON bool

var askCmd = &cobra.Command{
	Use:   "ask [message]",
	Short: "Send one message through the pipeline and print the reply",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

func init() {
	askCmd.Flags().BoolVar(&askJSON, "json", false, "print the full result as JSON")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
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

	message := strings.Join(args, " ")
	result, err := service.Generate(cmd.Context(), message, nil, "cli", "cli")
	if err != nil {
		return err
	}

	if askJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	fmt.Println(result.Response)
	fmt.Fprintf(os.Stderr, "persona=%s confidence=%.1f model=%s\n",
		result.Persona, result.Confidence, result.Model)
	return nil
}
