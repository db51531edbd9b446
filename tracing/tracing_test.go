package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestSetup(t *testing.T) {
	{ // No endpoint, no provider
		before := otel.GetTracerProvider()
		shutdown, err := Setup(context.Background(), "lesproj-test", "")
		require.NoError(t, err)
		assert.Equal(t, before, otel.GetTracerProvider())
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		assert.NoError(t, shutdown(ctx))
	}
	{ // Non routable endpoint, nothing is exported before shutdown
		shutdown, err := Setup(context.Background(), "lesproj-test", "http://192.0.2.1:4318")
		require.NoError(t, err)
		_, span := otel.Tracer("test").Start(context.Background(), "noop")
		span.End()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		// A cancelled flush may report the context error, the provider is shut down either way
		_ = shutdown(ctx)
	}
}
