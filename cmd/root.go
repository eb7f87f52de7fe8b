package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gserafini/reentry-map/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "reentry-verify",
	Short: "Verification pipeline for community service directory suggestions",
	Long:  "Runs tiered automated checks (reachability, phone, geocoding, content match, cross-referencing) against suggested directory entries and auto-approves, flags, or rejects each one.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
