package proximity

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/pathnote/pathnote/internal/proximity"

// Metrics holds the monitor's OpenTelemetry instruments. A nil *Metrics
// records nothing.
type Metrics struct {
	samples            metric.Int64Counter
	approaching        metric.Int64Counter
	arrivals           metric.Int64Counter
	markArrivedFailure metric.Int64Counter
	eta                metric.Float64Histogram
}

// NewMetrics creates the monitor instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)

	samples, err := meter.Int64Counter(
		"proximity.samples.processed",
		metric.WithDescription("Number of location samples evaluated"),
		metric.WithUnit("{sample}"),
	)
	if err != nil {
		return nil, err
	}

	approaching, err := meter.Int64Counter(
		"proximity.approaching.total",
		metric.WithDescription("Number of approaching notifications emitted"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, err
	}

	arrivals, err := meter.Int64Counter(
		"proximity.arrivals.total",
		metric.WithDescription("Number of arrivals detected"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, err
	}

	markArrivedFailure, err := meter.Int64Counter(
		"proximity.mark_arrived.failures",
		metric.WithDescription("Number of mark-arrived commands that failed after retries"),
		metric.WithUnit("{command}"),
	)
	if err != nil {
		return nil, err
	}

	eta, err := meter.Float64Histogram(
		"proximity.eta",
		metric.WithDescription("Estimated minutes to the active destination"),
		metric.WithUnit("min"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		samples:            samples,
		approaching:        approaching,
		arrivals:           arrivals,
		markArrivedFailure: markArrivedFailure,
		eta:                eta,
	}, nil
}

func (m *Metrics) sampleProcessed(ctx context.Context) {
	if m != nil {
		m.samples.Add(ctx, 1)
	}
}

func (m *Metrics) approachingEmitted(ctx context.Context) {
	if m != nil {
		m.approaching.Add(ctx, 1)
	}
}

func (m *Metrics) arrivalEmitted(ctx context.Context) {
	if m != nil {
		m.arrivals.Add(ctx, 1)
	}
}

func (m *Metrics) markArrivedFailed(ctx context.Context) {
	if m != nil {
		m.markArrivedFailure.Add(ctx, 1)
	}
}

func (m *Metrics) etaObserved(ctx context.Context, minutes float64) {
	if m != nil {
		m.eta.Record(ctx, minutes)
	}
}
