// Package exporter fans metric exports out to several OpenTelemetry exporters.
package exporter

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// MultiExporter lets one periodic reader feed every configured sink, e.g.
// stdout during development and an OTLP collector in production. A failing
// exporter does not stop the others.
//
// Temporality and aggregation follow the first exporter so all sinks see the
// same data points.
type MultiExporter struct {
	mu        sync.Mutex
	exporters []metric.Exporter
}

// NewMultiExporter wraps the non-nil exporters.
func NewMultiExporter(exporters ...metric.Exporter) *MultiExporter {
	m := &MultiExporter{}
	for _, e := range exporters {
		if e != nil {
			m.exporters = append(m.exporters, e)
		}
	}
	return m
}

// Len is the number of wrapped exporters.
func (m *MultiExporter) Len() int {
	return len(m.exporters)
}

func (m *MultiExporter) Temporality(kind metric.InstrumentKind) metricdata.Temporality {
	if len(m.exporters) == 0 {
		return metric.DefaultTemporalitySelector(kind)
	}
	return m.exporters[0].Temporality(kind)
}

func (m *MultiExporter) Aggregation(kind metric.InstrumentKind) metric.Aggregation {
	if len(m.exporters) == 0 {
		return metric.DefaultAggregationSelector(kind)
	}
	return m.exporters[0].Aggregation(kind)
}

func (m *MultiExporter) Export(ctx context.Context, rm *metricdata.ResourceMetrics) error {
	return m.each("export", func(e metric.Exporter) error { return e.Export(ctx, rm) })
}

func (m *MultiExporter) ForceFlush(ctx context.Context) error {
	return m.each("flush", func(e metric.Exporter) error { return e.ForceFlush(ctx) })
}

func (m *MultiExporter) Shutdown(ctx context.Context) error {
	return m.each("shutdown", func(e metric.Exporter) error { return e.Shutdown(ctx) })
}

func (m *MultiExporter) each(op string, fn func(metric.Exporter) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for i, e := range m.exporters {
		if err := fn(e); err != nil {
			logrus.Debugf("Metric %s failed on exporter %d (%T): %v", op, i, e, err)
			errs = append(errs, fmt.Errorf("%s exporter %d: %w", op, i, err))
		}
	}
	return errors.Join(errs...)
}
