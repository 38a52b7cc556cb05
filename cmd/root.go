package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "zapreply",
	Short: "WhatsApp webhook auto-responder",
	Long:  "Receives WhatsApp message webhooks, filters echoes and system events, and replies once per inbound message.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_ = args
		if path := strings.TrimSpace(configPath); path != "" {
			return os.Setenv("ZAPREPLY_CONFIG", path)
		}
		return nil
	},
	SilenceUsage: true,
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.json (overrides ZAPREPLY_CONFIG)")
}
