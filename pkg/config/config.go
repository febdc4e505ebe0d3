// Package config loads and validates the rbsoak configuration from a YAML
// file and RBSOAK_* environment variables.
package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/viper"

	"github.com/Sumatoshi-tech/rbarena/pkg/observability"
	"github.com/Sumatoshi-tech/rbarena/pkg/rbtree"
)

// Sentinel validation errors.
var (
	ErrInvalidTrees         = errors.New("trees must be positive")
	ErrInvalidOperations    = errors.New("operations must be positive")
	ErrInvalidKeySpace      = errors.New("key space must be positive")
	ErrInvalidRatio         = errors.New("insert and delete ratios must be within [0, 1] and sum to at most 1")
	ErrInvalidInterval      = errors.New("intervals must not be negative")
	ErrInvalidRate          = errors.New("ops per second must not be negative")
	ErrInvalidMemoryBudget  = errors.New("invalid memory budget")
	ErrInvalidReportFormat  = errors.New("invalid report format")
	ErrInvalidLogFormat     = errors.New("invalid log format")
	ErrInvalidKeySpaceRange = errors.New("key space exceeds the tree handle range")
)

// maxKeySpace keeps every key addressable by a uint32 slot handle.
const maxKeySpace = 1 << 31

// Config holds all configuration for rbsoak.
type Config struct {
	Workload  WorkloadConfig  `mapstructure:"workload"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Report    ReportConfig    `mapstructure:"report"`
}

// WorkloadConfig describes the randomized operation mix run against every tree.
type WorkloadConfig struct {
	Compression          string  `mapstructure:"compression"`
	MemoryBudget         string  `mapstructure:"memory_budget"`
	Seed                 int64   `mapstructure:"seed"`
	InsertRatio          float64 `mapstructure:"insert_ratio"`
	DeleteRatio          float64 `mapstructure:"delete_ratio"`
	OpsPerSecond         float64 `mapstructure:"ops_per_second"`
	Trees                int     `mapstructure:"trees"`
	Operations           int     `mapstructure:"operations"`
	KeySpace             int     `mapstructure:"key_space"`
	ValidateEvery        int     `mapstructure:"validate_every"`
	Reserve              int     `mapstructure:"reserve"`
	HibernateEvery       int     `mapstructure:"hibernate_every"`
	HibernationThreshold int     `mapstructure:"hibernation_threshold"`
}

// Codec returns the parsed hibernation codec.
func (w WorkloadConfig) Codec() (rbtree.Compression, error) {
	codec, err := rbtree.ParseCompression(w.Compression)
	if err != nil {
		return codec, fmt.Errorf("workload.compression: %w", err)
	}

	return codec, nil
}

// MemoryBudgetBytes returns the heap budget in bytes, zero meaning unlimited.
// Accepts humanized sizes such as "512MiB" or "2GB".
func (w WorkloadConfig) MemoryBudgetBytes() (uint64, error) {
	if strings.TrimSpace(w.MemoryBudget) == "" {
		return 0, nil
	}

	budget, err := humanize.ParseBytes(w.MemoryBudget)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %w", ErrInvalidMemoryBudget, w.MemoryBudget, err)
	}

	return budget, nil
}

// LoggingConfig holds logging-specific configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TelemetryConfig holds exporter configuration.
type TelemetryConfig struct {
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	OTLPHeaders  string `mapstructure:"otlp_headers"`
	MetricsAddr  string `mapstructure:"metrics_addr"`
	OTLPInsecure bool   `mapstructure:"otlp_insecure"`
}

// ReportConfig selects how the final report is rendered.
type ReportConfig struct {
	Format string `mapstructure:"format"`
}

// Observability converts the logging and telemetry sections into an
// observability configuration.
func (c *Config) Observability(version string) (observability.Config, error) {
	cfg := observability.DefaultConfig()
	cfg.ServiceVersion = version
	cfg.OTLPEndpoint = c.Telemetry.OTLPEndpoint
	cfg.OTLPInsecure = c.Telemetry.OTLPInsecure
	cfg.OTLPHeaders = observability.ParseOTLPHeaders(c.Telemetry.OTLPHeaders)
	cfg.Prometheus = c.Telemetry.MetricsAddr != ""
	cfg.LogJSON = c.Logging.Format == LogFormatJSON

	level, err := observability.ParseLogLevel(c.Logging.Level)
	if err != nil {
		return cfg, fmt.Errorf("logging.level: %w", err)
	}

	cfg.LogLevel = level

	return cfg, nil
}

// LoadConfig loads configuration from file and environment variables.
// An empty configPath searches rbsoak.yaml in ".", "./config" and "/etc/rbsoak".
func LoadConfig(configPath string) (*Config, error) {
	viperCfg := viper.New()

	setDefaults(viperCfg)

	if configPath != "" {
		viperCfg.SetConfigFile(configPath)
	} else {
		viperCfg.SetConfigName("rbsoak")
		viperCfg.SetConfigType("yaml")
		viperCfg.AddConfigPath(".")
		viperCfg.AddConfigPath("./config")
		viperCfg.AddConfigPath("/etc/rbsoak")
	}

	viperCfg.SetEnvPrefix("RBSOAK")
	viperCfg.AutomaticEnv()
	viperCfg.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	readErr := viperCfg.ReadInConfig()
	if readErr != nil {
		var notFoundErr viper.ConfigFileNotFoundError
		if !errors.As(readErr, &notFoundErr) {
			return nil, fmt.Errorf("failed to read config file: %w", readErr)
		}
	}

	var config Config

	unmarshalErr := viperCfg.Unmarshal(&config)
	if unmarshalErr != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", unmarshalErr)
	}

	validateErr := config.Validate()
	if validateErr != nil {
		return nil, fmt.Errorf("invalid configuration: %w", validateErr)
	}

	return &config, nil
}

func setDefaults(viperCfg *viper.Viper) {
	viperCfg.SetDefault("workload.trees", DefaultTrees)
	viperCfg.SetDefault("workload.operations", DefaultOperations)
	viperCfg.SetDefault("workload.key_space", DefaultKeySpace)
	viperCfg.SetDefault("workload.seed", DefaultSeed)
	viperCfg.SetDefault("workload.insert_ratio", DefaultInsertRatio)
	viperCfg.SetDefault("workload.delete_ratio", DefaultDeleteRatio)
	viperCfg.SetDefault("workload.validate_every", DefaultValidateEvery)
	viperCfg.SetDefault("workload.reserve", DefaultReserve)
	viperCfg.SetDefault("workload.ops_per_second", DefaultOpsPerSecond)
	viperCfg.SetDefault("workload.hibernate_every", DefaultHibernateEvery)
	viperCfg.SetDefault("workload.hibernation_threshold", DefaultHibernationThreshold)
	viperCfg.SetDefault("workload.compression", DefaultCompression)
	viperCfg.SetDefault("workload.memory_budget", DefaultMemoryBudget)

	viperCfg.SetDefault("logging.level", DefaultLogLevel)
	viperCfg.SetDefault("logging.format", DefaultLogFormat)

	viperCfg.SetDefault("telemetry.otlp_endpoint", DefaultOTLPEndpoint)
	viperCfg.SetDefault("telemetry.otlp_headers", "")
	viperCfg.SetDefault("telemetry.otlp_insecure", DefaultOTLPInsecure)
	viperCfg.SetDefault("telemetry.metrics_addr", DefaultMetricsAddr)

	viperCfg.SetDefault("report.format", DefaultReportFormat)
}

// Validate checks the configuration for values the soak runner cannot use.
func (c *Config) Validate() error {
	w := &c.Workload

	if w.Trees <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidTrees, w.Trees)
	}

	if w.Operations <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidOperations, w.Operations)
	}

	if w.KeySpace <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidKeySpace, w.KeySpace)
	}

	if w.KeySpace > maxKeySpace {
		return fmt.Errorf("%w: %d", ErrInvalidKeySpaceRange, w.KeySpace)
	}

	if w.InsertRatio < 0 || w.DeleteRatio < 0 || w.InsertRatio+w.DeleteRatio > 1 {
		return fmt.Errorf("%w: insert %.2f, delete %.2f", ErrInvalidRatio, w.InsertRatio, w.DeleteRatio)
	}

	if w.ValidateEvery < 0 || w.HibernateEvery < 0 || w.Reserve < 0 || w.HibernationThreshold < 0 {
		return ErrInvalidInterval
	}

	if w.OpsPerSecond < 0 {
		return fmt.Errorf("%w: %g", ErrInvalidRate, w.OpsPerSecond)
	}

	if _, err := w.Codec(); err != nil {
		return err
	}

	if _, err := w.MemoryBudgetBytes(); err != nil {
		return err
	}

	if !slices.Contains([]string{FormatTable, FormatJSON, FormatYAML}, c.Report.Format) {
		return fmt.Errorf("%w: %q", ErrInvalidReportFormat, c.Report.Format)
	}

	if !slices.Contains([]string{LogFormatText, LogFormatJSON}, c.Logging.Format) {
		return fmt.Errorf("%w: %q", ErrInvalidLogFormat, c.Logging.Format)
	}

	if _, err := observability.ParseLogLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}

	return nil
}
