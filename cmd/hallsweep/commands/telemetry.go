package commands

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/Sumatoshi-tech/hallsweep/pkg/config"
	"github.com/Sumatoshi-tech/hallsweep/pkg/observability"
	"github.com/Sumatoshi-tech/hallsweep/pkg/version"
)

const (
	metricsPath            = "/metrics"
	metricsReadTimeout     = 10 * time.Second
	metricsShutdownTimeout = 5 * time.Second
)

// telemetry bundles the providers and instruments of one process.
type telemetry struct {
	observability.Providers

	sweep *observability.SweepMetrics
	red   *observability.REDMetrics

	metricsServer *http.Server
}

func appMode(cluster config.ClusterConfig) observability.AppMode {
	switch {
	case !cluster.Distributed():
		return observability.ModeCLI
	case cluster.Rank == 0:
		return observability.ModeCoordinator
	default:
		return observability.ModeWorker
	}
}

func startTelemetry(cfg *config.Config) (*telemetry, error) {
	providers, err := observability.Init(cfg.Observability(appMode(cfg.Cluster), version.Version))
	if err != nil {
		return nil, fmt.Errorf("init observability: %w", err)
	}

	tel := &telemetry{Providers: providers}

	tel.sweep, err = observability.NewSweepMetrics(providers.Meter)
	if err == nil {
		tel.red, err = observability.NewREDMetrics(providers.Meter)
	}

	if err != nil {
		return nil, errors.Join(err, providers.Shutdown(context.Background()))
	}

	if cfg.Telemetry.MetricsAddr != "" && providers.MetricsHandler != nil {
		err = tel.serveMetrics(cfg.Telemetry.MetricsAddr)
		if err != nil {
			return nil, errors.Join(err, providers.Shutdown(context.Background()))
		}
	}

	return tel, nil
}

func (t *telemetry) serveMetrics(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen metrics %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle(metricsPath, t.MetricsHandler)

	t.metricsServer = &http.Server{Handler: mux, ReadHeaderTimeout: metricsReadTimeout}

	go func() {
		serveErr := t.metricsServer.Serve(listener)
		if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			t.Logger.Error("metrics server stopped", "error", serveErr)
		}
	}()

	t.Logger.Info("serving metrics", "addr", listener.Addr().String(), "path", metricsPath)

	return nil
}

// close stops the metrics endpoint and flushes telemetry.
func (t *telemetry) close() {
	ctx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
	defer cancel()

	if t.metricsServer != nil {
		err := t.metricsServer.Shutdown(ctx)
		if err != nil {
			t.Logger.Warn("metrics server shutdown failed", "error", err)
		}
	}

	err := t.Shutdown(ctx)
	if err != nil {
		t.Logger.Warn("observability shutdown failed", "error", err)
	}
}
