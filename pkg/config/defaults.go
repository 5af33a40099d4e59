package config

import (
	"github.com/spf13/viper"

	"github.com/Sumatoshi-tech/hallsweep/pkg/result"
	"github.com/Sumatoshi-tech/hallsweep/pkg/sweep"
)

// Sweep defaults.
const (
	DefaultContacts  = 4
	DefaultDL        = 5.0
	DefaultNTh       = 50
	DefaultOutputDir = "hallsweep-out"
)

// Oracle defaults.
const (
	DefaultOracleTimeout      = "10m"
	DefaultOracleCacheEntries = 0
)

// Cluster defaults.
const (
	DefaultClusterSize  = 1
	DefaultLocalWorkers = 1
)

// DefaultContactSeparation is the contact separation in nm used by the
// resonance rule when none is configured.
const DefaultContactSeparation = 350.0

// setDefaults sets default configuration values.
func setDefaults(viperCfg *viper.Viper) {
	// Sweep defaults.
	viperCfg.SetDefault("sweep.fermi_energy", 0.0)
	viperCfg.SetDefault("sweep.contacts", DefaultContacts)
	viperCfg.SetDefault("sweep.contact_id", 0)
	viperCfg.SetDefault("sweep.dl", DefaultDL)
	viperCfg.SetDefault("sweep.nth", DefaultNTh)
	viperCfg.SetDefault("sweep.output_dir", DefaultOutputDir)
	viperCfg.SetDefault("sweep.output_file", result.DefaultFileName)
	viperCfg.SetDefault("sweep.checkpoint_interval", sweep.DefaultCheckpointInterval.String())
	viperCfg.SetDefault("sweep.clean", false)

	// Oracle defaults.
	viperCfg.SetDefault("oracle.command", []string{})
	viperCfg.SetDefault("oracle.timeout", DefaultOracleTimeout)
	viperCfg.SetDefault("oracle.cache_entries", DefaultOracleCacheEntries)

	// Cluster defaults.
	viperCfg.SetDefault("cluster.rank", 0)
	viperCfg.SetDefault("cluster.size", DefaultClusterSize)
	viperCfg.SetDefault("cluster.coordinator", "")
	viperCfg.SetDefault("cluster.local_workers", DefaultLocalWorkers)

	// Logging defaults.
	viperCfg.SetDefault("logging.level", "info")
	viperCfg.SetDefault("logging.json", false)

	// Telemetry defaults.
	viperCfg.SetDefault("telemetry.otlp_endpoint", "")
	viperCfg.SetDefault("telemetry.otlp_insecure", false)
	viperCfg.SetDefault("telemetry.metrics_addr", "")
	viperCfg.SetDefault("telemetry.environment", "")
	viperCfg.SetDefault("telemetry.trace_verbose", false)
}
