package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/youthweb/youthweb-bridge/internal/config"
	"github.com/youthweb/youthweb-bridge/internal/server"
	"github.com/youthweb/youthweb-bridge/internal/testhelpers"
)

// BridgeTestHarness runs the bridge routes against a mock Youthweb server.
type BridgeTestHarness struct {
	t            *testing.T
	Server       *httptest.Server
	YouthwebMock *testhelpers.MockYouthwebServer
	client       *http.Client
}

// BridgeTestHarnessOption adjusts the bridge configuration before start.
type BridgeTestHarnessOption func(t *testing.T, cfg *config.Config)

// NewBridgeTestHarness starts the mock server and the bridge. Shutdown hooks
// run when the test ends.
func NewBridgeTestHarness(t *testing.T, options ...BridgeTestHarnessOption) *BridgeTestHarness {
	t.Helper()
	testhelpers.SetupLogger(t)

	hooks := &server.ShutdownHooks{}
	t.Cleanup(func() {
		_ = hooks.Execute(context.Background())
	})

	mock := testhelpers.SetupMockYouthwebServer(t)

	cfg := config.Config{
		Client: config.ClientConfig{
			APIDomain:    mock.URL(),
			AuthDomain:   mock.URL(),
			APIVersion:   "0.20",
			ClientID:     mock.ClientID,
			ClientSecret: "client-secret",
			RedirectURL:  "http://localhost:8080/callback",
			Scopes:       []string{"user:read"},
		},
		Cache: config.CacheConfig{
			Type:      "memory", // Default to memory cache for tests
			Namespace: "php_youthweb_api",
			MaxSize:   100,
		},
		Observe: config.ObserveConfig{
			Enabled: false, // Disable observability for tests
		},
	}

	for _, opt := range options {
		opt(t, &cfg)
	}

	handler, err := configureServerRoutes(context.Background(), cfg, hooks)
	require.NoError(t, err)

	srv := httptest.NewServer(handler)
	hooks.AddContext("bridge-server", func(context.Context) error {
		srv.Close()
		return nil
	})

	return &BridgeTestHarness{
		t:            t,
		Server:       srv,
		YouthwebMock: mock,
		client: &http.Client{
			// redirects are asserted, not followed
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// Response is a raw bridge response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// JSON decodes the body into a map.
func (r *Response) JSON(t *testing.T) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(r.Body, &out), "body: %s", r.Body)
	return out
}

// Get requests path from the bridge.
func (h *BridgeTestHarness) Get(path string) *Response {
	h.t.Helper()

	resp, err := h.client.Get(h.Server.URL + path)
	require.NoError(h.t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(h.t, err)

	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}
}

// Authorize walks through /authorize and /callback with the mock's code and
// returns the state that was used.
func (h *BridgeTestHarness) Authorize() string {
	h.t.Helper()

	resp := h.Get("/authorize")
	require.Equal(h.t, http.StatusFound, resp.StatusCode)

	location, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(h.t, err)
	state := location.Query().Get("state")
	require.NotEmpty(h.t, state)

	resp = h.Get(fmt.Sprintf("/callback?code=%s&state=%s", url.QueryEscape(h.YouthwebMock.Code), url.QueryEscape(state)))
	require.Equal(h.t, http.StatusOK, resp.StatusCode, "callback body: %s", resp.Body)

	return state
}
