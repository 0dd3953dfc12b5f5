package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rewired-gh/quakedisagg/internal/config"
	"github.com/rewired-gh/quakedisagg/internal/logger"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "quakedisagg",
	Short: "Seismic hazard disaggregation",
	Long: `quakedisagg breaks the hazard at each site down by magnitude, distance,
location, epsilon and tectonic region type, and stores one disaggregation
matrix per realization, intensity measure and probability of exceedance.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "configs/config.yaml", "Path to configuration file")
}

// loadConfig reads and validates the configuration and sets up logging
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	logger.Debug("Configuration loaded from %s", configPath)
	return cfg, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
