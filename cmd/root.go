package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/mre-cli/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "mre-cli",
	Short: "Mineral Resource Estimate extraction from ASX announcements",
	Long:  "Reads downloaded ASX announcement PDFs, extracts Mineral Resource Estimate tables, normalizes them to tonnes and g/t, and writes one row per deposit and category.",
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
