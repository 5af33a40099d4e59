// Package observability provides OpenTelemetry-based tracing, metrics, and
// structured logging for hallsweep workers and coordinators.
package observability

import (
	"io"
	"log/slog"
	"time"
)

// AppMode identifies how the binary was launched.
type AppMode string

const (
	// ModeCLI covers one-shot commands (report, validate, single-point runs)
	// and sweeps whose workers all live in one process.
	ModeCLI AppMode = "cli"
	// ModeWorker is a sweep worker process that does not coordinate.
	ModeWorker AppMode = "worker"
	// ModeCoordinator is the sweep process that resumes and reduces.
	ModeCoordinator AppMode = "coordinator"
)

const (
	defaultServiceName     = "hallsweep"
	defaultShutdownTimeout = 5 * time.Second
)

// Config holds all observability configuration.
type Config struct {
	ServiceName    string
	ServiceVersion string
	// Environment is the deployment label (for example "cluster" or "laptop").
	Environment string
	Mode        AppMode
	// Rank is the process's worker rank. It is recorded on the resource for
	// worker and coordinator processes only.
	Rank int

	// OTLPEndpoint is the OTLP gRPC collector address (e.g. "localhost:4317").
	// Empty disables trace and push-metric export.
	OTLPEndpoint string
	OTLPHeaders  map[string]string
	OTLPInsecure bool

	// Prometheus attaches a pull reader and exposes its scrape handler in
	// Providers.MetricsHandler.
	Prometheus bool

	// DebugTrace samples every trace and logs span attributes dropped by the
	// export filter.
	DebugTrace bool
	// SampleRatio is the root sampling ratio when neither DebugTrace nor
	// OTEL_TRACES_SAMPLER decides. Zero samples everything.
	SampleRatio float64
	// TraceVerbose keeps per-point oracle spans. When false only run, phase
	// and checkpoint spans are recorded.
	TraceVerbose bool

	LogLevel slog.Level
	LogJSON  bool
	// LogOutput receives log records. Nil means standard error.
	LogOutput io.Writer

	// ShutdownTimeout bounds the final flush.
	ShutdownTimeout time.Duration
}

// DefaultConfig returns the configuration of a local run with no exporters.
func DefaultConfig() Config {
	return Config{
		ServiceName:     defaultServiceName,
		Mode:            ModeCLI,
		LogLevel:        slog.LevelInfo,
		ShutdownTimeout: defaultShutdownTimeout,
	}
}
