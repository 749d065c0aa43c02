// Package request builds Youthweb API requests and sends them.
package request

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/youthweb/youthweb-bridge/internal/apierror"
)

// MediaType is the JSON:API media type.
const MediaType = "application/vnd.api+json"

// DefaultProtocolVersion is the HTTP version requests are labelled with.
const DefaultProtocolVersion = "1.1"

// Options holds the caller-controlled parts of a request.
type Options struct {
	// Headers are added after the default headers.
	Headers http.Header

	// Query is merged into any query already present in the path.
	Query url.Values

	// Body may be a string, []byte or io.Reader. Any other non-nil value is
	// encoded as JSON.
	Body any

	// ProtocolVersion defaults to DefaultProtocolVersion.
	ProtocolVersion string
}

// Builder creates requests against a single API domain.
type Builder struct {
	base    *url.URL
	version string
}

func NewBuilder(apiDomain, apiVersion string) (*Builder, error) {
	base, err := url.Parse(strings.TrimSuffix(apiDomain, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid API domain %q: %w", apiDomain, err)
	}

	return &Builder{base: base, version: apiVersion}, nil
}

// DefaultHeaders returns the headers every request carries.
func (b *Builder) DefaultHeaders() http.Header {
	h := make(http.Header)
	h.Set("Content-Type", MediaType)
	h.Set("Accept", MediaType+", "+MediaType+"; net.youthweb.api.version="+b.version)
	return h
}

// Build creates a request for path, which is resolved below the API domain.
func (b *Builder) Build(ctx context.Context, method, path string, opts Options) (*http.Request, error) {
	target, err := b.resolve(path, opts.Query)
	if err != nil {
		return nil, err
	}

	body, err := bodyReader(opts.Body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("building %s %s: %w", method, path, err)
	}

	version := opts.ProtocolVersion
	if version == "" {
		version = DefaultProtocolVersion
	}
	proto := "HTTP/" + version
	major, minor, ok := http.ParseHTTPVersion(proto)
	if !ok {
		return nil, apierror.InvalidArgumentError{Message: fmt.Sprintf("invalid protocol version %q", version)}
	}
	req.Proto, req.ProtoMajor, req.ProtoMinor = proto, major, minor

	req.Header = b.DefaultHeaders()
	for key, values := range opts.Headers {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}

	return req, nil
}

func (b *Builder) resolve(path string, query url.Values) (string, error) {
	ref, err := url.Parse(path)
	if err != nil {
		return "", apierror.InvalidArgumentError{Message: fmt.Sprintf("invalid request path %q: %v", path, err)}
	}
	if ref.IsAbs() || ref.Host != "" {
		return "", apierror.InvalidArgumentError{Message: fmt.Sprintf("request path %q must be relative to the API domain", path)}
	}

	target := b.base.JoinPath(ref.EscapedPath())

	q := ref.Query()
	for key, values := range query {
		for _, v := range values {
			q.Add(key, v)
		}
	}
	target.RawQuery = q.Encode()

	return target.String(), nil
}

func bodyReader(body any) (io.Reader, error) {
	switch b := body.(type) {
	case nil:
		return nil, nil
	case string:
		return strings.NewReader(b), nil
	case []byte:
		return bytes.NewReader(b), nil
	case io.Reader:
		return b, nil
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, apierror.InvalidArgumentError{Message: fmt.Sprintf("request body cannot be encoded: %v", err)}
		}
		return bytes.NewReader(data), nil
	}
}
