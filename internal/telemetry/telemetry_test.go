package telemetry

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"

	"binance-setup-scanner/config"
)

func TestSetupDisabled(t *testing.T) {
	p, err := Setup(context.Background(), config.TracingConfig{Enabled: false})
	require.NoError(t, err)

	assert.False(t, p.Enabled())
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestSpansAreExported(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	var buf bytes.Buffer
	p, err := setupWithWriter(context.Background(), config.TracingConfig{Enabled: true, ServiceName: "scanner-test"}, &buf, nil)
	require.NoError(t, err)
	require.True(t, p.Enabled())

	ctx, span := otel.Tracer("test").Start(context.Background(), "scan.run")
	traceID, spanID, ok := TraceFields(ctx)
	span.End()

	require.True(t, ok)
	assert.Len(t, traceID, 32)
	assert.Len(t, spanID, 16)

	require.NoError(t, p.Shutdown(context.Background()))
	assert.Contains(t, buf.String(), `"Name":"scan.run"`)
	assert.Contains(t, buf.String(), "scanner-test")
}

func TestTraceFieldsWithoutSpan(t *testing.T) {
	_, _, ok := TraceFields(context.Background())
	assert.False(t, ok)
}
