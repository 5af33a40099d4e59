// Package config loads hallsweep run configuration from YAML, environment
// variables and defaults, and converts it into sweep settings and a bias space.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Sumatoshi-tech/hallsweep/pkg/observability"
	"github.com/Sumatoshi-tech/hallsweep/pkg/sweep"
)

// Sentinel validation errors.
var (
	ErrSchema         = errors.New("configuration does not match schema")
	ErrNoBias         = errors.New("no bias variables configured")
	ErrInvalidBias    = errors.New("invalid bias variable")
	ErrInvalidCluster = errors.New("invalid cluster configuration")
	ErrInvalidOracle  = errors.New("invalid oracle configuration")
	ErrInvalidLevel   = errors.New("invalid log level")
)

// EnvPrefix prefixes every environment override (HALLSWEEP_SWEEP_CONTACTS=4).
const EnvPrefix = "HALLSWEEP"

// DefaultFileName is looked up in the working directory and $HOME when no
// configuration path is given.
const DefaultFileName = ".hallsweep.yaml"

// Config holds all configuration for a hallsweep run.
type Config struct {
	Sweep     SweepConfig     `mapstructure:"sweep"     yaml:"sweep"`
	Bias      []BiasConfig    `mapstructure:"bias"      yaml:"bias"`
	Oracle    OracleConfig    `mapstructure:"oracle"    yaml:"oracle"`
	Cluster   ClusterConfig   `mapstructure:"cluster"   yaml:"cluster"`
	Logging   LoggingConfig   `mapstructure:"logging"   yaml:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`
}

// SweepConfig holds the physics and bookkeeping of the sweep.
type SweepConfig struct {
	FermiEnergy        float64       `mapstructure:"fermi_energy"        yaml:"fermi_energy"`
	Contacts           int           `mapstructure:"contacts"            yaml:"contacts"`
	ContactID          int           `mapstructure:"contact_id"          yaml:"contact_id"`
	DL                 float64       `mapstructure:"dl"                  yaml:"dl"`
	NTh                int           `mapstructure:"nth"                 yaml:"nth"`
	OutputDir          string        `mapstructure:"output_dir"          yaml:"output_dir"`
	OutputFile         string        `mapstructure:"output_file"         yaml:"output_file"`
	CheckpointInterval time.Duration `mapstructure:"checkpoint_interval" yaml:"checkpoint_interval"`
	Clean              bool          `mapstructure:"clean"               yaml:"clean"`
}

// OracleConfig describes the external transmission solver.
type OracleConfig struct {
	// Command is the solver argv. It reads one JSON request on stdin.
	Command []string `mapstructure:"command" yaml:"command"`
	// Timeout bounds a single solver call.
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
	// CacheEntries memoises results per worker; zero disables the cache.
	CacheEntries int `mapstructure:"cache_entries" yaml:"cache_entries"`
}

// ClusterConfig places this process in the worker group.
type ClusterConfig struct {
	Rank        int    `mapstructure:"rank"          yaml:"rank"`
	Size        int    `mapstructure:"size"          yaml:"size"`
	Coordinator string `mapstructure:"coordinator"   yaml:"coordinator"`
	// LocalWorkers runs that many workers in this process instead of joining
	// a multi-process group.
	LocalWorkers int `mapstructure:"local_workers" yaml:"local_workers"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
	JSON  bool   `mapstructure:"json"  yaml:"json"`
}

// TelemetryConfig holds tracing and metrics export configuration.
type TelemetryConfig struct {
	OTLPEndpoint string `mapstructure:"otlp_endpoint" yaml:"otlp_endpoint"`
	// OTLPHeaders are sent as gRPC metadata. Keys arrive lowercased.
	OTLPHeaders  map[string]string `mapstructure:"otlp_headers"  yaml:"otlp_headers,omitempty"`
	OTLPInsecure bool              `mapstructure:"otlp_insecure" yaml:"otlp_insecure"`
	MetricsAddr  string            `mapstructure:"metrics_addr"  yaml:"metrics_addr"`
	Environment  string            `mapstructure:"environment"   yaml:"environment"`
	TraceVerbose bool              `mapstructure:"trace_verbose" yaml:"trace_verbose"`
}

// LoadConfig loads configuration from file and environment variables.
// With an empty path it looks for DefaultFileName in the working directory
// and $HOME, falling back to defaults and environment alone.
func LoadConfig(configPath string) (*Config, error) {
	viperCfg := viper.New()

	setDefaults(viperCfg)

	viperCfg.SetConfigType("yaml")

	if configPath != "" {
		viperCfg.SetConfigFile(configPath)
	} else {
		viperCfg.SetConfigName(strings.TrimSuffix(DefaultFileName, filepath.Ext(DefaultFileName)))
		viperCfg.AddConfigPath(".")

		home, homeErr := os.UserHomeDir()
		if homeErr == nil {
			viperCfg.AddConfigPath(home)
		}
	}

	viperCfg.SetEnvPrefix(EnvPrefix)
	viperCfg.AutomaticEnv()
	viperCfg.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	readErr := viperCfg.ReadInConfig()
	if readErr != nil {
		var notFoundErr viper.ConfigFileNotFoundError
		if !errors.As(readErr, &notFoundErr) {
			return nil, fmt.Errorf("failed to read config file: %w", readErr)
		}
	}

	if used := viperCfg.ConfigFileUsed(); used != "" {
		schemaErr := checkSchema(used)
		if schemaErr != nil {
			return nil, schemaErr
		}
	}

	var config Config

	unmarshalErr := viperCfg.UnmarshalExact(&config)
	if unmarshalErr != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", unmarshalErr)
	}

	validateErr := config.Validate()
	if validateErr != nil {
		return nil, fmt.Errorf("invalid configuration: %w", validateErr)
	}

	return &config, nil
}

func checkSchema(path string) error {
	issues, err := ValidateFile(path)
	if err != nil {
		return err
	}

	if len(issues) == 0 {
		return nil
	}

	msgs := make([]string, 0, len(issues))
	for _, issue := range issues {
		msgs = append(msgs, issue.String())
	}

	return fmt.Errorf("%w: %s", ErrSchema, strings.Join(msgs, "; "))
}

// Validate checks cross-field constraints the schema cannot express.
func (c *Config) Validate() error {
	err := c.SweepSettings().Validate()
	if err != nil {
		return err
	}

	_, err = c.Space()
	if err != nil {
		return err
	}

	_, err = c.LogLevel()
	if err != nil {
		return err
	}

	if c.Oracle.Timeout < 0 || c.Oracle.CacheEntries < 0 {
		return fmt.Errorf("%w: timeout %s, cache entries %d", ErrInvalidOracle, c.Oracle.Timeout, c.Oracle.CacheEntries)
	}

	return c.Cluster.validate()
}

func (c ClusterConfig) validate() error {
	switch {
	case c.Size < 1:
		return fmt.Errorf("%w: size %d", ErrInvalidCluster, c.Size)
	case c.Rank < 0 || c.Rank >= c.Size:
		return fmt.Errorf("%w: rank %d not in [0, %d)", ErrInvalidCluster, c.Rank, c.Size)
	case c.LocalWorkers < 1:
		return fmt.Errorf("%w: local_workers %d", ErrInvalidCluster, c.LocalWorkers)
	case c.Size > 1 && c.LocalWorkers > 1:
		return fmt.Errorf("%w: local_workers and a multi-process size are exclusive", ErrInvalidCluster)
	case c.Size > 1 && c.Coordinator == "":
		return fmt.Errorf("%w: size %d needs a coordinator address", ErrInvalidCluster, c.Size)
	}

	return nil
}

// Distributed reports whether this process is one rank of a multi-process group.
func (c ClusterConfig) Distributed() bool {
	return c.Size > 1
}

// SweepSettings converts the sweep section.
func (c *Config) SweepSettings() sweep.Settings {
	s := c.Sweep

	return sweep.Settings{
		FermiEnergy:        s.FermiEnergy,
		Contacts:           s.Contacts,
		ContactID:          s.ContactID,
		DL:                 s.DL,
		NTh:                s.NTh,
		OutputDir:          s.OutputDir,
		OutputFile:         s.OutputFile,
		CheckpointInterval: s.CheckpointInterval,
		Clean:              s.Clean,
	}
}

// LogLevel parses logging.level ("debug", "info", "warn", "error").
func (c *Config) LogLevel() (slog.Level, error) {
	var level slog.Level

	err := level.UnmarshalText([]byte(c.Logging.Level))
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidLevel, c.Logging.Level)
	}

	return level, nil
}

// Observability builds the observability configuration for mode.
func (c *Config) Observability(mode observability.AppMode, version string) observability.Config {
	cfg := observability.DefaultConfig()
	cfg.ServiceVersion = version
	cfg.Mode = mode
	cfg.Environment = c.Telemetry.Environment
	cfg.Rank = c.Cluster.Rank
	cfg.OTLPEndpoint = c.Telemetry.OTLPEndpoint
	cfg.OTLPHeaders = c.Telemetry.OTLPHeaders
	cfg.OTLPInsecure = c.Telemetry.OTLPInsecure
	cfg.Prometheus = c.Telemetry.MetricsAddr != ""
	cfg.TraceVerbose = c.Telemetry.TraceVerbose
	cfg.LogJSON = c.Logging.JSON

	level, err := c.LogLevel()
	if err == nil {
		cfg.LogLevel = level
	}

	return cfg
}
