// Package apierror holds the error types surfaced by the Youthweb client.
// Each type reports an HTTP status via Status() so that HTTP handlers can map
// failures without inspecting messages.
package apierror

import (
	"net/http"
)

// UnknownErrorMessage is used when an upstream failure carries no readable
// JSON:API error.
const UnknownErrorMessage = "The server responses with an unknown error."

// UnauthorizedError indicates that a protected call was attempted without a
// valid access token, or that an authorization callback arrived without a
// code. In the latter case AuthorizationURL and State describe where the
// caller should send the user next. Both cases report 401 from Status.
type UnauthorizedError struct {
	Message          string
	AuthorizationURL string
	State            string
}

func (e UnauthorizedError) Error() string {
	return e.Message
}

func (e UnauthorizedError) Status() (int, string) {
	return http.StatusUnauthorized, e.Message
}

// InvalidArgumentError is a local validation failure: state mismatch,
// unsupported grant, malformed cache key. It is never retried.
type InvalidArgumentError struct {
	Message string
}

func (e InvalidArgumentError) Error() string {
	return e.Message
}

func (e InvalidArgumentError) Status() (int, string) {
	return http.StatusBadRequest, e.Message
}

// RequestFailureError wraps a transport failure with the best-effort message
// extracted from the response body. StatusCode is zero when the failure
// happened below the HTTP layer.
type RequestFailureError struct {
	Message    string
	StatusCode int
	Err        error
}

// Error returns the upstream message unchanged; the status is available
// from StatusCode and Status.
func (e RequestFailureError) Error() string {
	return e.Message
}

func (e RequestFailureError) Unwrap() error {
	return e.Err
}

func (e RequestFailureError) Status() (int, string) {
	if e.StatusCode == 0 {
		return http.StatusBadGateway, e.Message
	}
	return e.StatusCode, e.Message
}

// ConfigurationError signals a deployment defect, such as persisting
// authentication state without a cache backend. It cannot be fixed by
// retrying.
type ConfigurationError struct {
	Message string
}

func (e ConfigurationError) Error() string {
	return e.Message
}

func (e ConfigurationError) Status() (int, string) {
	return http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError)
}
