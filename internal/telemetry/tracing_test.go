package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

func TestInitTracerProviderInstallsGlobals(t *testing.T) {
	ctx := context.Background()
	tp, err := InitTracerProvider(ctx, Config{Enabled: true, Version: "test"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	spanCtx, span := otel.Tracer("test").Start(ctx, "unit")
	defer span.End()
	require.True(t, span.SpanContext().IsValid())
	assert.True(t, span.SpanContext().IsSampled())

	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(spanCtx, carrier)
	assert.Contains(t, carrier.Get("traceparent"), span.SpanContext().TraceID().String())
}

func TestInitTracerProviderRatioSampler(t *testing.T) {
	tp, err := InitTracerProvider(context.Background(), Config{Enabled: true, SampleRatio: 0.5})
	require.NoError(t, err)
	require.NoError(t, tp.Shutdown(context.Background()))
}
