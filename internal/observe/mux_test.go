package observe

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestTrimMethod(t *testing.T) {
	tests := []struct {
		pattern  string
		expected string
	}{
		{pattern: "GET /authorize", expected: "/authorize"},
		{pattern: "POST /api/{path...}", expected: "/api/{path...}"},
		{pattern: "DELETE /token", expected: "/token"},
		{pattern: "/healthcheck", expected: "/healthcheck"},
		{pattern: "INVALID /path", expected: "INVALID /path"},
		{pattern: "get /status", expected: "get /status"},
		{pattern: "GET", expected: "GET"},
		{pattern: "", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.pattern, func(t *testing.T) {
			assert.Equal(t, tt.expected, TrimMethod(tt.pattern))
		})
	}
}

func TestMux_NamesSpansByRoute(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	t.Cleanup(func() { otel.SetTracerProvider(previous) })

	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	mux := NewMux(http.NewServeMux())
	mux.Handle("GET /stats/{id}", ok)
	mux.HandlePublic("GET /callback", ok)

	for _, target := range []string{"/stats/account", "/callback?code=abc"} {
		rr := httptest.NewRecorder()
		mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, target, nil))
		assert.Equal(t, http.StatusNoContent, rr.Code)
	}

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "/stats/{id}", spans[0].Name())
	assert.Equal(t, "/callback", spans[1].Name())
}
