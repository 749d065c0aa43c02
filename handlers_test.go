package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/youthweb/youthweb-bridge/internal/apierror"
	"github.com/youthweb/youthweb-bridge/internal/jsonapi"
	"github.com/youthweb/youthweb-bridge/internal/oauth"
	"github.com/youthweb/youthweb-bridge/internal/request"
)

type fakeAuthorizer struct {
	authorized bool

	urlOpts []oauth.AuthorizationOptions
	urlErr  error

	params       map[string]string
	authorizeErr error
}

func (f *fakeAuthorizer) IsAuthorized(context.Context) bool {
	return f.authorized
}

func (f *fakeAuthorizer) AuthorizationURL(_ context.Context, opts oauth.AuthorizationOptions) (string, error) {
	f.urlOpts = append(f.urlOpts, opts)
	return "https://youthweb.net/auth/authorize?state=abc", f.urlErr
}

func (f *fakeAuthorizer) Authorize(_ context.Context, grant string, params map[string]string) error {
	f.params = params
	return f.authorizeErr
}

type fakeCapability struct {
	paths []string
	opts  []request.Options
	body  string
	err   error
}

func (f *fakeCapability) respond(path string, opts request.Options) (*jsonapi.Document, error) {
	f.paths = append(f.paths, path)
	f.opts = append(f.opts, opts)
	if f.err != nil {
		return nil, f.err
	}
	return jsonapi.Parse([]byte(f.body))
}

func (f *fakeCapability) Get(_ context.Context, path string, opts request.Options) (*jsonapi.Document, error) {
	return f.respond(path, opts)
}

func (f *fakeCapability) GetUnauthorized(_ context.Context, path string, opts request.Options) (*jsonapi.Document, error) {
	return f.respond(path, opts)
}

func (f *fakeCapability) PostUnauthorized(_ context.Context, path string, opts request.Options) (*jsonapi.Document, error) {
	return f.respond(path, opts)
}

func TestHandleAuthorize_Redirects(t *testing.T) {
	client := &fakeAuthorizer{}
	req := httptest.NewRequest(http.MethodGet, "/authorize?scope=user:read,user:email", nil)
	rr := httptest.NewRecorder()

	handleAuthorize(client).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusFound, rr.Code)
	assert.Equal(t, "https://youthweb.net/auth/authorize?state=abc", rr.Header().Get("Location"))
	require.Len(t, client.urlOpts, 1)
	assert.Equal(t, []string{"user:read", "user:email"}, client.urlOpts[0].Scopes)
}

func TestHandleAuthorize_NoCache(t *testing.T) {
	client := &fakeAuthorizer{urlErr: apierror.ConfigurationError{Message: "a cache provider is needed for requesting protected API endpoints"}}
	req := httptest.NewRequest(http.MethodGet, "/authorize", nil)
	rr := httptest.NewRecorder()

	handleAuthorize(client).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.JSONEq(t, `{"error":"Internal Server Error"}`, rr.Body.String())
}

func TestHandleCallback_Success(t *testing.T) {
	client := &fakeAuthorizer{}
	req := httptest.NewRequest(http.MethodGet, "/callback?code=abc&state=xyz&extra=1", nil)
	rr := httptest.NewRecorder()

	handleCallback(client).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"authorized":true}`, rr.Body.String())
	assert.Equal(t, map[string]string{"code": "abc", "state": "xyz"}, client.params)
}

func TestHandleCallback_OmitsAbsentState(t *testing.T) {
	client := &fakeAuthorizer{}
	req := httptest.NewRequest(http.MethodGet, "/callback?code=abc", nil)
	rr := httptest.NewRecorder()

	handleCallback(client).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, map[string]string{"code": "abc"}, client.params)
}

func TestHandleCallback_MissingCodeRedirects(t *testing.T) {
	client := &fakeAuthorizer{authorizeErr: apierror.UnauthorizedError{
		Message:          "No authorization code supplied",
		AuthorizationURL: "https://youthweb.net/auth/authorize?state=fresh",
		State:            "fresh",
	}}
	req := httptest.NewRequest(http.MethodGet, "/callback", nil)
	rr := httptest.NewRecorder()

	handleCallback(client).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusFound, rr.Code)
	assert.Equal(t, "https://youthweb.net/auth/authorize?state=fresh", rr.Header().Get("Location"))
}

func TestHandleCallback_InvalidState(t *testing.T) {
	client := &fakeAuthorizer{authorizeErr: apierror.InvalidArgumentError{Message: "Invalid state"}}
	req := httptest.NewRequest(http.MethodGet, "/callback?code=abc&state=forged", nil)
	rr := httptest.NewRecorder()

	handleCallback(client).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.JSONEq(t, `{"error":"Invalid state"}`, rr.Body.String())
}

func TestHandleStatus(t *testing.T) {
	for _, authorized := range []bool{true, false} {
		rr := httptest.NewRecorder()
		handleStatus(&fakeAuthorizer{authorized: authorized}).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/status", nil))

		assert.Equal(t, http.StatusOK, rr.Code)
		if authorized {
			assert.JSONEq(t, `{"authorized":true}`, rr.Body.String())
		} else {
			assert.JSONEq(t, `{"authorized":false}`, rr.Body.String())
		}
	}
}

func TestHandleDocument_PassesThrough(t *testing.T) {
	body := `{"data":{"type":"users","id":"1","attributes":{"username":"Testuser"}}}`
	client := &fakeCapability{body: body}

	mux := http.NewServeMux()
	mux.Handle("GET /api/{path...}", handleDocument(proxyGet(client)))

	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/users/1?include=posts", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/vnd.api+json", rr.Header().Get("Content-Type"))
	assert.Equal(t, body, rr.Body.String())

	assert.Equal(t, []string{"/users/1"}, client.paths)
	assert.Equal(t, "posts", client.opts[0].Query.Get("include"))
}

func TestHandleDocument_Failures(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantBody   string
	}{
		{
			name:       "not authorized",
			err:        apierror.UnauthorizedError{Message: "No access token available, authorization is required"},
			wantStatus: http.StatusUnauthorized,
			wantBody:   `{"error":"No access token available, authorization is required"}`,
		},
		{
			name:       "upstream status",
			err:        apierror.RequestFailureError{Message: "Detailed error message", StatusCode: http.StatusUnauthorized},
			wantStatus: http.StatusUnauthorized,
			wantBody:   `{"error":"Detailed error message"}`,
		},
		{
			name:       "upstream unreachable",
			err:        apierror.RequestFailureError{Message: apierror.UnknownErrorMessage, Err: errors.New("dial tcp: refused")},
			wantStatus: http.StatusBadGateway,
			wantBody:   `{"error":"The server responses with an unknown error."}`,
		},
		{
			name:       "unknown error",
			err:        errors.New("unexpected"),
			wantStatus: http.StatusInternalServerError,
			wantBody:   `{"error":"Internal Server Error"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &fakeCapability{err: tt.err}
			rr := httptest.NewRecorder()

			handleDocument(proxyGet(client)).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/me", nil))

			assert.Equal(t, tt.wantStatus, rr.Code)
			assert.JSONEq(t, tt.wantBody, rr.Body.String())
		})
	}
}

func TestHandleHealthCheck_Success(t *testing.T) {
	rr := httptest.NewRecorder()

	handleHealthCheck().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthcheck", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "OK", rr.Body.String())
}

func TestSplitScopes(t *testing.T) {
	assert.Empty(t, splitScopes(""))
	assert.Equal(t, []string{"user:read"}, splitScopes("user:read"))
	assert.Equal(t, []string{"user:read", "user:email", "post:write"}, splitScopes("user:read user:email,post:write"))
}

func TestMaxRequestSizeMiddleware(t *testing.T) {
	mw := maxRequestSize(10)

	var readError error
	var readBytes int64

	innerHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		readBytes, readError = io.CopyN(io.Discard, r.Body, 5*1024*1024)

		status := http.StatusOK
		if readError != nil {
			status = http.StatusBadRequest
		}

		w.WriteHeader(status)
	})

	handler := mw(innerHandler)

	body := bytes.NewBufferString("0123456789n123456789")
	req, err := http.NewRequest(http.MethodGet, "/status", body)
	require.NoError(t, err)

	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.ErrorContains(t, readError, "http: request body too large")
	assert.Equal(t, int64(10), readBytes)
	assert.Equal(t, "", rr.Body.String())
}
