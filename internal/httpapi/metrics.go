package httpapi

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// serviceMetrics holds the counters exported by the API. With no meter
// provider installed these are no-ops, so wiring them costs nothing in tests.
type serviceMetrics struct {
	analyzeRequests metric.Int64Counter
	fallbacksServed metric.Int64Counter
}

func newServiceMetrics() *serviceMetrics {
	meter := otel.Meter("github.com/didifkup/vibecheck/internal/httpapi")

	analyzeRequests, _ := meter.Int64Counter("vibecheck.analyze.requests",
		metric.WithDescription("Analyze requests by response status"))
	fallbacksServed, _ := meter.Int64Counter("vibecheck.analyze.fallbacks",
		metric.WithDescription("Responses served from the static fallback"))

	return &serviceMetrics{
		analyzeRequests: analyzeRequests,
		fallbacksServed: fallbacksServed,
	}
}

func (m *serviceMetrics) recordAnalyze(ctx context.Context, status int) {
	m.analyzeRequests.Add(ctx, 1, metric.WithAttributes(attribute.Int("status", status)))
}

func (m *serviceMetrics) recordFallback(ctx context.Context) {
	m.fallbacksServed.Add(ctx, 1)
}
