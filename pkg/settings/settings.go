// Package settings loads the application settings of the firecontain tool
// from defaults, an optional config file and FIRECONTAIN_* environment
// variables, in increasing order of precedence. Command line flags bound
// with viper.BindPFlag take precedence over all three.
package settings

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/openfroyo/firecontain/pkg/telemetry"
)

// EnvPrefix prefixes environment overrides, e.g. FIRECONTAIN_STORE_PATH.
const EnvPrefix = "FIRECONTAIN"

// ConfigName is the base name of the config file searched for when none is
// given explicitly.
const ConfigName = "firecontain"

// Settings are the process-wide knobs of the command line tool.
type Settings struct {
	LogLevel    string `mapstructure:"logLevel" validate:"oneof=trace debug info warn error fatal"`
	LogFormat   string `mapstructure:"logFormat" validate:"oneof=console json"`
	Environment string `mapstructure:"environment" validate:"required"`

	Store    StoreSettings    `mapstructure:"store"`
	Batch    BatchSettings    `mapstructure:"batch"`
	Policy   PolicySettings   `mapstructure:"policy"`
	Metrics  MetricsSettings  `mapstructure:"metrics"`
	Tracing  TracingSettings  `mapstructure:"tracing"`
	Starlark StarlarkSettings `mapstructure:"starlark"`
}

// StoreSettings locate the run archive.
type StoreSettings struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path" validate:"required_if=Enabled true"`
}

// BatchSettings bound batch runs.
type BatchSettings struct {
	Workers  int  `mapstructure:"workers" validate:"gte=1,lte=1024"`
	FailFast bool `mapstructure:"failFast"`
}

// PolicySettings select acceptance policies.
type PolicySettings struct {
	Enabled bool `mapstructure:"enabled"`

	// Dir holds extra .rego policies loaded next to the builtin ones.
	Dir string `mapstructure:"dir"`

	// Builtin enables the policies shipped with the tool.
	Builtin bool `mapstructure:"builtin"`
}

// MetricsSettings control the Prometheus endpoint.
type MetricsSettings struct {
	Enabled bool   `mapstructure:"enabled"`
	Address string `mapstructure:"address" validate:"required_if=Enabled true"`
}

// TracingSettings control span export.
type TracingSettings struct {
	Exporter     string  `mapstructure:"exporter" validate:"oneof=none stdout otlp"`
	Endpoint     string  `mapstructure:"endpoint" validate:"required_if=Exporter otlp"`
	Insecure     bool    `mapstructure:"insecure"`
	SamplingRate float64 `mapstructure:"samplingRate" validate:"gte=0,lte=1"`
}

// StarlarkSettings bound generator scripts.
type StarlarkSettings struct {
	Timeout time.Duration `mapstructure:"timeout" validate:"gt=0"`
}

// SetDefaults registers the default value of every key.
func SetDefaults() {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logFormat", "console")
	viper.SetDefault("environment", "development")

	viper.SetDefault("store.enabled", true)
	viper.SetDefault("store.path", defaultStorePath())

	viper.SetDefault("batch.workers", 4)
	viper.SetDefault("batch.failFast", false)

	viper.SetDefault("policy.enabled", true)
	viper.SetDefault("policy.dir", "")
	viper.SetDefault("policy.builtin", true)

	viper.SetDefault("metrics.enabled", false)
	viper.SetDefault("metrics.address", ":9464")

	viper.SetDefault("tracing.exporter", "none")
	viper.SetDefault("tracing.endpoint", "")
	viper.SetDefault("tracing.insecure", true)
	viper.SetDefault("tracing.samplingRate", 1.0)

	viper.SetDefault("starlark.timeout", "30s")
}

func defaultStorePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "firecontain.db"
	}
	return filepath.Join(home, ".firecontain", "runs.db")
}

// Load reads the settings. An explicit configFile must exist; otherwise
// firecontain.{yaml,json,toml} is looked up in the working directory and
// in ~/.firecontain, and a missing file is not an error.
func Load(configFile string) (*Settings, error) {
	SetDefaults()

	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if configFile != "" {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	} else {
		viper.SetConfigName(ConfigName)
		viper.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(filepath.Join(home, ".firecontain"))
		}
		if err := viper.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
		}
	}

	return Current()
}

// Current decodes and validates the settings as viper holds them now.
func Current() (*Settings, error) {
	var s Settings
	if err := viper.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("failed to decode settings: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks value ranges.
func (s *Settings) Validate() error {
	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(s); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}
	return nil
}

// ConfigFileUsed returns the config file that was read, if any.
func ConfigFileUsed() string {
	return viper.ConfigFileUsed()
}

// Telemetry derives the telemetry configuration.
func (s *Settings) Telemetry(version string) *telemetry.Config {
	cfg := telemetry.DefaultConfig()
	if version != "" {
		cfg.ServiceVersion = version
	}
	cfg.Environment = s.Environment
	cfg.Logging.Level = s.LogLevel
	cfg.Logging.Format = s.LogFormat

	cfg.Metrics.Enabled = s.Metrics.Enabled
	cfg.Metrics.ListenAddress = s.Metrics.Address

	cfg.Tracing.Exporter = s.Tracing.Exporter
	cfg.Tracing.Enabled = s.Tracing.Exporter != "none"
	cfg.Tracing.Endpoint = s.Tracing.Endpoint
	cfg.Tracing.Insecure = s.Tracing.Insecure
	cfg.Tracing.SamplingRate = s.Tracing.SamplingRate
	return cfg
}
