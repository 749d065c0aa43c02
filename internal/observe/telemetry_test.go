package observe

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/youthweb/youthweb-bridge/internal/config"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
)

func TestConfigure_Disabled(t *testing.T) {
	before := otel.GetTracerProvider()

	shutdown, err := Configure(context.Background(), config.ObserveConfig{Enabled: false})
	require.NoError(t, err)

	assert.Same(t, before, otel.GetTracerProvider())
	assert.NoError(t, shutdown(context.Background()))
}

func TestConfigure_Stdout(t *testing.T) {
	previous := otel.GetTracerProvider()
	previousMeter := otel.GetMeterProvider()
	t.Cleanup(func() {
		otel.SetTracerProvider(previous)
		otel.SetMeterProvider(previousMeter)
	})

	shutdown, err := Configure(context.Background(), config.ObserveConfig{
		Enabled:                   true,
		MetricsEnabled:            true,
		Type:                      "stdout",
		ServiceName:               "youthweb-bridge-test",
		SDKLogLevel:               "warn",
		TraceBatchTimeoutSeconds:  1,
		MetricReadIntervalSeconds: 60,
	})
	require.NoError(t, err)

	assert.NotSame(t, previous, otel.GetTracerProvider())
	assert.NoError(t, shutdown(context.Background()))
}

func TestConfigure_UnsupportedType(t *testing.T) {
	_, err := Configure(context.Background(), config.ObserveConfig{
		Enabled: true,
		Type:    "zipkin",
	})

	assert.ErrorContains(t, err, `unsupported telemetry type "zipkin"`)
}

func TestHTTPTransport(t *testing.T) {
	base := http.DefaultTransport.(*http.Transport).Clone()

	tests := []struct {
		name    string
		cfg     config.ObserveConfig
		wrapped bool
	}{
		{
			name: "telemetry disabled",
			cfg:  config.ObserveConfig{Enabled: false, HTTPTransportEnabled: true},
		},
		{
			name: "transport disabled",
			cfg:  config.ObserveConfig{Enabled: true, HTTPTransportEnabled: false},
		},
		{
			name:    "enabled",
			cfg:     config.ObserveConfig{Enabled: true, HTTPTransportEnabled: true},
			wrapped: true,
		},
		{
			name:    "enabled with connection tracing",
			cfg:     config.ObserveConfig{Enabled: true, HTTPTransportEnabled: true, HTTPConnectionTraceEnabled: true},
			wrapped: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt := HTTPTransport(base, tt.cfg)
			if tt.wrapped {
				assert.IsType(t, &otelhttp.Transport{}, rt)
			} else {
				assert.Same(t, base, rt)
			}
		})
	}
}
