package telemetry_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/smallbiznis/valora-filing/internal/config"
	"github.com/smallbiznis/valora-filing/internal/telemetry"
)

func TestNoopProvider(t *testing.T) {
	p, err := telemetry.New(context.Background(), config.Config{ServiceName: "valora-filing"}, nil)
	require.NoError(t, err)
	require.False(t, p.Enabled())

	_, span := p.Tracer().Start(context.Background(), "noop")
	require.False(t, span.SpanContext().IsValid())
	span.End()
	require.NoError(t, p.Shutdown(context.Background()))

	require.ElementsMatch(t, []string{"traceparent", "tracestate", "baggage"}, otel.GetTextMapPropagator().Fields())
}

func TestSampler(t *testing.T) {
	cases := map[float64]string{
		1:    sdktrace.ParentBased(sdktrace.AlwaysSample()).Description(),
		2:    sdktrace.ParentBased(sdktrace.AlwaysSample()).Description(),
		0:    sdktrace.ParentBased(sdktrace.NeverSample()).Description(),
		-1:   sdktrace.ParentBased(sdktrace.NeverSample()).Description(),
		0.25: sdktrace.ParentBased(sdktrace.TraceIDRatioBased(0.25)).Description(),
	}
	for ratio, want := range cases {
		require.Equal(t, want, telemetry.Sampler(ratio).Description(), "ratio %v", ratio)
	}
}
