package youthweb

import (
	"net/http"
	"time"

	"github.com/youthweb/youthweb-bridge/internal/auth"
	"github.com/youthweb/youthweb-bridge/internal/cache"
	"github.com/youthweb/youthweb-bridge/internal/config"
	"github.com/youthweb/youthweb-bridge/internal/oauth"
	"github.com/youthweb/youthweb-bridge/internal/request"
)

// DefaultNamespace prefixes cache keys unless WithNamespace is used.
const DefaultNamespace = "php_youthweb_api"

// Option configures a Client.
type Option func(*options)

type options struct {
	cache         cache.Pool
	authenticator Authenticator
	transport     Sender
	clock         func() time.Time
	namespace     string
}

// WithCache sets the pool used for the state and access token.
func WithCache(pool cache.Pool) Option {
	return func(o *options) {
		o.cache = pool
	}
}

// WithAuthenticator sets the authenticator used for URLs, states and code
// exchange.
func WithAuthenticator(a Authenticator) Option {
	return func(o *options) {
		o.authenticator = a
	}
}

// WithTransport sets the transport API requests are sent through.
func WithTransport(t Sender) Option {
	return func(o *options) {
		o.transport = t
	}
}

// WithClock replaces time.Now for every expiry decision the client makes:
// the state expiry it sets, and whether the cached state and access token
// are still valid. Cache backends keep evicting on the wall clock.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.clock = now
	}
}

// WithNamespace sets the prefix of every cache key.
func WithNamespace(namespace string) Option {
	return func(o *options) {
		o.namespace = namespace
	}
}

// DefaultCache returns the pool used when none is supplied. It cannot
// persist anything, so only unauthenticated calls succeed with it.
func DefaultCache() cache.Pool {
	return cache.NewNullPool()
}

// DefaultAuthenticator returns an authenticator for cfg using
// http.DefaultClient for the token exchange.
func DefaultAuthenticator(cfg config.ClientConfig) *auth.Authenticator {
	return auth.New(oauth.NewProvider(cfg, nil))
}

// DefaultTransport returns a transport over a plain http.Client.
func DefaultTransport() *request.Transport {
	return request.NewTransport(&http.Client{Timeout: 30 * time.Second})
}
