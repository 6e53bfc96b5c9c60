package otel

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/tingly-dev/tea-assistant/internal/obs/exporter"
)

// MeterName scopes every instrument of the service.
const MeterName = "tea-assistant"

// MeterSetup holds the meter provider and relay tracker.
type MeterSetup struct {
	meterProvider *sdkmetric.MeterProvider
	tracker       *RelayTracker
}

// NewMeterSetup builds the exporter pipeline from cfg. A disabled config or
// one without exporters yields a nil setup, whose tracker is a no-op.
func NewMeterSetup(ctx context.Context, cfg Config) (*MeterSetup, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	var exporters []sdkmetric.Exporter
	if cfg.Stdout {
		exp, err := stdoutmetric.New()
		if err != nil {
			return nil, fmt.Errorf("create stdout exporter: %w", err)
		}
		exporters = append(exporters, exp)
	}
	if cfg.OTLPEndpoint != "" {
		exp, err := otlpmetrichttp.New(ctx, otlpmetrichttp.WithEndpointURL(cfg.OTLPEndpoint))
		if err != nil {
			return nil, fmt.Errorf("create otlp exporter: %w", err)
		}
		exporters = append(exporters, exp)
	}

	if len(exporters) == 0 {
		logrus.Warn("Metrics enabled but no exporter configured (set metrics.stdout or metrics.otlp_endpoint)")
		return nil, nil
	}

	opts := []sdkmetric.PeriodicReaderOption{}
	if cfg.ExportInterval > 0 {
		opts = append(opts, sdkmetric.WithInterval(cfg.ExportInterval))
	}
	if cfg.ExportTimeout > 0 {
		opts = append(opts, sdkmetric.WithTimeout(cfg.ExportTimeout))
	}
	reader := sdkmetric.NewPeriodicReader(exporter.NewMultiExporter(exporters...), opts...)

	return newMeterSetup(ctx, sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))
}

// NewMeterSetupWithReader is used when the caller owns the reader, e.g. a
// manual reader in tests or a pull based exporter.
func NewMeterSetupWithReader(ctx context.Context, reader sdkmetric.Reader) (*MeterSetup, error) {
	return newMeterSetup(ctx, sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))
}

func newMeterSetup(ctx context.Context, meterProvider *sdkmetric.MeterProvider) (*MeterSetup, error) {
	otel.SetMeterProvider(meterProvider)

	tracker, err := NewRelayTracker(meterProvider.Meter(MeterName))
	if err != nil {
		_ = meterProvider.Shutdown(ctx)
		return nil, fmt.Errorf("failed to create relay tracker: %w", err)
	}
	return &MeterSetup{
		meterProvider: meterProvider,
		tracker:       tracker,
	}, nil
}

// Tracker returns the relay tracker; nil for a nil setup.
func (ms *MeterSetup) Tracker() *RelayTracker {
	if ms == nil {
		return nil
	}
	return ms.tracker
}

// Shutdown flushes and stops the exporters.
func (ms *MeterSetup) Shutdown(ctx context.Context) error {
	if ms == nil || ms.meterProvider == nil {
		return nil
	}
	return ms.meterProvider.Shutdown(ctx)
}
