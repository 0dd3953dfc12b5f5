package config

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete application configuration
type Config struct {
	Calculation  CalculationConfig  `mapstructure:"calculation"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`
	Storage      StorageConfig      `mapstructure:"storage"`
	Logging      LoggingConfig      `mapstructure:"logging"`
	Telegram     TelegramConfig     `mapstructure:"telegram"`
	Tracing      TracingConfig      `mapstructure:"tracing"`
}

// CalculationConfig holds the disaggregation parameters of a job
type CalculationConfig struct {
	InvestigationTime  float64                  `mapstructure:"investigation_time"`
	TruncationLevel    float64                  `mapstructure:"truncation_level"`
	NumEpsilonBins     int                      `mapstructure:"num_epsilon_bins"`
	MagBinWidth        float64                  `mapstructure:"mag_bin_width"`
	DistanceBinWidth   float64                  `mapstructure:"distance_bin_width"`
	CoordinateBinWidth float64                  `mapstructure:"coordinate_bin_width"`
	PoEsDisagg         []float64                `mapstructure:"poes_disagg"`
	IntensityMeasures  []IntensityMeasureConfig `mapstructure:"intensity_measures"`
	MaximumDistance    float64                  `mapstructure:"maximum_distance"`
	SourcesPerTask     int                      `mapstructure:"sources_per_task"`
}

// IntensityMeasureConfig pairs an intensity measure type with the levels of its hazard curves.
// A list is used rather than a map because viper lower-cases map keys.
type IntensityMeasureConfig struct {
	IMT    string    `mapstructure:"imt"`
	Levels []float64 `mapstructure:"levels"`
}

// OrchestratorConfig controls how units of work are dispatched
type OrchestratorConfig struct {
	Distribute  bool `mapstructure:"distribute"`
	Concurrency int  `mapstructure:"concurrency"`
}

// StorageConfig holds result persistence configuration
type StorageConfig struct {
	DBPath string `mapstructure:"db_path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TelegramConfig holds Telegram notification configuration
type TelegramConfig struct {
	BotToken       string        `mapstructure:"bot_token"`
	ChatID         string        `mapstructure:"chat_id"`
	Enabled        bool          `mapstructure:"enabled"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
	ProgressStep   int           `mapstructure:"progress_step"`
}

// TracingConfig holds OpenTelemetry configuration
type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Endpoint    string `mapstructure:"endpoint"`
	ServiceName string `mapstructure:"service_name"`
}

// Load reads configuration from file and environment variables
func Load(path string) (*Config, error) {
	v := viper.New()

	// Set config file
	v.SetConfigFile(path)

	// Set defaults
	setDefaults(v)

	// Enable environment variable override, e.g. QUAKEDISAGG_STORAGE_DB_PATH
	v.SetEnvPrefix("QUAKEDISAGG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Unmarshal into Config struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	// Calculation defaults
	v.SetDefault("calculation.investigation_time", 50.0)
	v.SetDefault("calculation.truncation_level", 3.0)
	v.SetDefault("calculation.num_epsilon_bins", 6)
	v.SetDefault("calculation.mag_bin_width", 0.5)
	v.SetDefault("calculation.distance_bin_width", 10.0)
	v.SetDefault("calculation.coordinate_bin_width", 0.5)
	v.SetDefault("calculation.poes_disagg", []float64{0.1})
	v.SetDefault("calculation.maximum_distance", 200.0)
	v.SetDefault("calculation.sources_per_task", 10)

	// Orchestrator defaults
	v.SetDefault("orchestrator.distribute", true)
	v.SetDefault("orchestrator.concurrency", runtime.NumCPU())

	// Storage defaults
	v.SetDefault("storage.db_path", "./data/quakedisagg.db")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Telegram defaults
	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.max_retries", 3)
	v.SetDefault("telegram.retry_delay_base", "1s")
	v.SetDefault("telegram.progress_step", 25)

	// Tracing defaults
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "quakedisagg")
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	// Validate Calculation config
	calc := c.Calculation
	if calc.InvestigationTime <= 0 {
		return fmt.Errorf("calculation.investigation_time must be positive")
	}
	if calc.TruncationLevel <= 0 {
		return fmt.Errorf("calculation.truncation_level must be positive")
	}
	if calc.NumEpsilonBins < 1 {
		return fmt.Errorf("calculation.num_epsilon_bins must be at least 1")
	}
	if calc.MagBinWidth <= 0 {
		return fmt.Errorf("calculation.mag_bin_width must be positive")
	}
	if calc.DistanceBinWidth <= 0 {
		return fmt.Errorf("calculation.distance_bin_width must be positive")
	}
	if calc.CoordinateBinWidth <= 0 || calc.CoordinateBinWidth > 180 {
		return fmt.Errorf("calculation.coordinate_bin_width must be in (0, 180]")
	}
	if len(calc.PoEsDisagg) == 0 {
		return fmt.Errorf("calculation.poes_disagg must contain at least one value")
	}
	for _, poe := range calc.PoEsDisagg {
		if poe <= 0 || poe > 1 {
			return fmt.Errorf("calculation.poes_disagg values must be in (0, 1], got %v", poe)
		}
	}
	if len(calc.IntensityMeasures) == 0 {
		return fmt.Errorf("calculation.intensity_measures must contain at least one entry")
	}
	for _, im := range calc.IntensityMeasures {
		if im.IMT == "" {
			return fmt.Errorf("calculation.intensity_measures entries require an imt")
		}
		if len(im.Levels) < 2 {
			return fmt.Errorf("calculation.intensity_measures %s needs at least 2 levels", im.IMT)
		}
	}
	if calc.MaximumDistance <= 0 {
		return fmt.Errorf("calculation.maximum_distance must be positive")
	}
	if calc.SourcesPerTask < 1 {
		return fmt.Errorf("calculation.sources_per_task must be at least 1")
	}

	// Validate Orchestrator config
	if c.Orchestrator.Concurrency < 1 {
		return fmt.Errorf("orchestrator.concurrency must be at least 1")
	}

	// Validate Storage config
	if c.Storage.DBPath == "" {
		return fmt.Errorf("storage.db_path is required")
	}

	// Validate Telegram config
	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == "" {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
		if c.Telegram.ProgressStep < 0 || c.Telegram.ProgressStep > 100 {
			return fmt.Errorf("telegram.progress_step must be between 0 and 100")
		}
	}

	// Validate Tracing config
	if c.Tracing.Enabled && c.Tracing.Endpoint == "" {
		return fmt.Errorf("tracing.endpoint is required when tracing is enabled")
	}

	// Validate Logging config
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}
