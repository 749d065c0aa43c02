package request

import (
	"fmt"
	"io"
	"net/http"
)

// maxResponseBytes bounds how much of a response body is read.
const maxResponseBytes = 10 << 20

// Doer sends HTTP requests. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ResponseError is returned by Transport.Send for responses with a status of
// 400 or above.
type ResponseError struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("unexpected response status %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// Transport sends requests and returns the response body.
type Transport struct {
	doer Doer
}

func NewTransport(doer Doer) *Transport {
	return &Transport{doer: doer}
}

// Send performs req. Failures below the HTTP layer are returned wrapped;
// error statuses are returned as *ResponseError.
func (t *Transport) Send(req *http.Request) ([]byte, error) {
	resp, err := t.doer.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s failed: %w", req.Method, req.URL.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("reading response to %s %s: %w", req.Method, req.URL.Path, err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, &ResponseError{
			StatusCode: resp.StatusCode,
			Header:     resp.Header,
			Body:       body,
		}
	}

	return body, nil
}
