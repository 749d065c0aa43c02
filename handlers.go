package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/youthweb/youthweb-bridge/internal/apierror"
	"github.com/youthweb/youthweb-bridge/internal/audit"
	"github.com/youthweb/youthweb-bridge/internal/auth"
	"github.com/youthweb/youthweb-bridge/internal/jsonapi"
	"github.com/youthweb/youthweb-bridge/internal/oauth"
	"github.com/youthweb/youthweb-bridge/internal/request"
	"github.com/youthweb/youthweb-bridge/internal/youthweb"
)

// HTTPStatuser provides HTTP status information for errors
type HTTPStatuser interface {
	Status() (int, string)
}

// Authorizer is the part of the Youthweb client that drives the OAuth2 flow.
type Authorizer interface {
	IsAuthorized(ctx context.Context) bool
	AuthorizationURL(ctx context.Context, opts oauth.AuthorizationOptions) (string, error)
	Authorize(ctx context.Context, grant string, params map[string]string) error
}

// documentFetcher produces the JSON:API document for a request.
type documentFetcher func(r *http.Request) (*jsonapi.Document, error)

// handleAuthorize redirects the user to the consent page. A "scope" query
// parameter (space or comma separated) overrides the configured scopes.
func handleAuthorize(client Authorizer) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer drainRequestBody(r)

		opts := oauth.AuthorizationOptions{
			Scopes: splitScopes(r.URL.Query().Get("scope")),
		}
		audit.Log(r.Context()).Scopes = opts.Scopes

		authURL, err := client.AuthorizationURL(r.Context(), opts)
		if err != nil {
			writeFailure(w, r, "authorization URL creation failed", err)
			return
		}

		http.Redirect(w, r, authURL, http.StatusFound)
	})
}

// handleCallback completes the authorization-code flow. A callback without
// a code is sent back to the consent page.
func handleCallback(client Authorizer) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer drainRequestBody(r)

		ctx := r.Context()
		entry := audit.Log(ctx)

		query := r.URL.Query()
		params := map[string]string{}
		for _, name := range []string{"code", "state"} {
			if query.Has(name) {
				params[name] = query.Get(name)
			}
		}
		_, entry.StateChecked = params["state"]

		err := client.Authorize(ctx, auth.GrantAuthorizationCode, params)

		var unauthorized apierror.UnauthorizedError
		if errors.As(err, &unauthorized) && unauthorized.AuthorizationURL != "" {
			entry.Error = unauthorized.Message
			http.Redirect(w, r, unauthorized.AuthorizationURL, http.StatusFound)
			return
		}
		if err != nil {
			writeFailure(w, r, "authorization failed", err)
			return
		}

		entry.Authorized = true
		writeJSON(w, http.StatusOK, StatusResponse{Authorized: true})
	})
}

// StatusResponse reports whether the bridge holds an access token.
type StatusResponse struct {
	Authorized bool `json:"authorized"`
}

func handleStatus(client Authorizer) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer drainRequestBody(r)

		authorized := client.IsAuthorized(r.Context())
		audit.Log(r.Context()).Authorized = authorized

		writeJSON(w, http.StatusOK, StatusResponse{Authorized: authorized})
	})
}

// handleDocument writes the document returned by fetch unchanged.
func handleDocument(fetch documentFetcher) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer drainRequestBody(r)

		doc, err := fetch(r)
		if err != nil {
			var failure apierror.RequestFailureError
			if errors.As(err, &failure) {
				audit.Log(r.Context()).UpstreamStatus = failure.StatusCode
			}
			writeFailure(w, r, "upstream request failed", err)
			return
		}

		w.Header().Set("Content-Type", request.MediaType)
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write(doc.Raw()); err != nil {
			// record failure to log: trying to respond to the client at this
			// point will likely fail
			log.Info().Msgf("failed to write response: %v", err)
		}
	})
}

// proxyGet forwards the wildcard path and query to an authenticated GET.
func proxyGet(client youthweb.Capability) documentFetcher {
	return func(r *http.Request) (*jsonapi.Document, error) {
		path := "/" + r.PathValue("path")
		audit.Log(r.Context()).UpstreamPath = path

		return client.Get(r.Context(), path, request.Options{Query: r.URL.Query()})
	}
}

func handleHealthCheck() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer drainRequestBody(r)

		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
}

func maxRequestSize(limit int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.MaxBytesHandler(next, limit)
	}
}

func splitScopes(raw string) []string {
	return strings.FieldsFunc(raw, func(r rune) bool {
		return r == ' ' || r == ','
	})
}

// ErrorResponse represents a JSON error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// writeFailure logs err, records it in the audit entry and writes it as a
// JSON error using its HTTP status.
func writeFailure(w http.ResponseWriter, r *http.Request, msg string, err error) {
	status, message := errorStatus(err)
	log.Ctx(r.Context()).Info().Err(err).Int("status", status).Msg(msg)
	audit.Log(r.Context()).Error = err.Error()

	writeJSON(w, status, ErrorResponse{Error: message})
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		// At this point the status code has been written, so we can only log
		log.Info().Msgf("failed to write JSON response: %v", err)
	}
}

// errorStatus extracts HTTP status code and message from an error.
// Returns (StatusInternalServerError, StatusText) for errors that don't implement HTTPStatuser.
func errorStatus(err error) (int, string) {
	var statuser HTTPStatuser
	if errors.As(err, &statuser) {
		return statuser.Status()
	}
	return http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError)
}

// drainRequestBody drains the request body by reading and discarding the contents.
// This is useful to ensure the request body is fully consumed, which is important
// for connection reuse in HTTP/1 clients.
func drainRequestBody(r *http.Request) {
	if r.Body != nil {
		// 5kb max: after this we'll assume the client is broken or malicious
		// and close the connection
		_, _ = io.CopyN(io.Discard, r.Body, 5*1024)
	}
}
