// Package youthweb is a client for the Youthweb JSON:API. It drives the
// OAuth2 authorization-code flow, keeps the CSRF state and access token in a
// cache pool, and translates upstream failures into apierror types.
package youthweb

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/youthweb/youthweb-bridge/internal/apierror"
	"github.com/youthweb/youthweb-bridge/internal/cache"
	"github.com/youthweb/youthweb-bridge/internal/config"
	"github.com/youthweb/youthweb-bridge/internal/jsonapi"
	"github.com/youthweb/youthweb-bridge/internal/oauth"
	"github.com/youthweb/youthweb-bridge/internal/request"
)

const (
	// KeyAccessToken is the logical cache key of the access token.
	KeyAccessToken = "access_token"

	// KeyState is the logical cache key of the CSRF state.
	KeyState = "state"

	// StateTTL is how long a generated state stays valid.
	StateTTL = 10 * time.Minute
)

// Authenticator issues authorization URLs and states and exchanges
// authorization codes for tokens.
type Authenticator interface {
	AuthorizationURL(opts oauth.AuthorizationOptions) string
	State() string
	AccessToken(ctx context.Context, grant string, params map[string]string) (oauth.Token, error)
}

// Sender sends a request and returns the response body. Error statuses are
// reported as *request.ResponseError.
type Sender interface {
	Send(req *http.Request) ([]byte, error)
}

// Capability is the request surface used by resource wrappers.
type Capability interface {
	Get(ctx context.Context, path string, opts request.Options) (*jsonapi.Document, error)
	GetUnauthorized(ctx context.Context, path string, opts request.Options) (*jsonapi.Document, error)
	PostUnauthorized(ctx context.Context, path string, opts request.Options) (*jsonapi.Document, error)
}

var _ Capability = (*Client)(nil)

// Client is a Youthweb API client. It is not safe for concurrent
// authorization flows against the same cache keys.
type Client struct {
	cfg           config.ClientConfig
	cache         cache.Pool
	authenticator Authenticator
	transport     Sender
	builder       *request.Builder
	now           func() time.Time
	namespace     string
}

// New creates a client for cfg. Collaborators not supplied through opts are
// created with DefaultCache, DefaultAuthenticator and DefaultTransport.
func New(cfg config.ClientConfig, opts ...Option) (*Client, error) {
	o := &options{
		clock:     time.Now,
		namespace: DefaultNamespace,
	}
	for _, opt := range opts {
		opt(o)
	}

	if o.cache == nil {
		o.cache = DefaultCache()
	}
	if o.authenticator == nil {
		o.authenticator = DefaultAuthenticator(cfg)
	}
	if o.transport == nil {
		o.transport = DefaultTransport()
	}

	builder, err := request.NewBuilder(cfg.APIDomain, cfg.APIVersion)
	if err != nil {
		return nil, err
	}

	return &Client{
		cfg:           cfg,
		cache:         o.cache,
		authenticator: o.authenticator,
		transport:     o.transport,
		builder:       builder,
		now:           o.clock,
		namespace:     o.namespace,
	}, nil
}

// IsAuthorized reports whether an access token is cached. Cache failures are
// logged and reported as not authorized.
func (c *Client) IsAuthorized(ctx context.Context) bool {
	item, err := c.CacheItem(ctx, KeyAccessToken)
	if err != nil {
		log.Warn().Err(err).Msg("access token lookup failed")
		return false
	}

	if item.IsHitAt(c.now()) {
		return true
	}

	if err := c.DeleteCacheItem(ctx, item); err != nil {
		log.Warn().Err(err).Msg("access token cleanup failed")
	}

	return false
}

// State returns the cached CSRF state, generating and caching a new one when
// none is present.
func (c *Client) State(ctx context.Context) (string, error) {
	item, err := c.CacheItem(ctx, KeyState)
	if err != nil {
		return "", err
	}

	if state, ok := item.StringAt(c.now()); ok {
		return state, nil
	}

	state := c.authenticator.State()
	item.Set(state).ExpiresAt(c.now().Add(StateTTL))

	if err := c.SaveCacheItem(ctx, item); err != nil {
		return "", err
	}

	return state, nil
}

// AuthorizationURL returns the URL the user is sent to for consent. Empty
// fields of opts default to the configured scopes and the current state.
func (c *Client) AuthorizationURL(ctx context.Context, opts oauth.AuthorizationOptions) (string, error) {
	if len(opts.Scopes) == 0 {
		opts.Scopes = c.cfg.Scopes
	}

	if opts.State == "" {
		state, err := c.State(ctx)
		if err != nil {
			return "", err
		}
		opts.State = state
	}

	return c.authenticator.AuthorizationURL(opts), nil
}

// Authorize completes the authorization-code flow with the parameters of a
// callback. A supplied state must match the cached one; the cached state is
// discarded whenever a state is supplied. The resulting access token is
// cached until it expires.
func (c *Client) Authorize(ctx context.Context, grant string, params map[string]string) error {
	if params["code"] == "" {
		return c.unauthorizedWithRedirect(ctx, "No authorization code supplied")
	}

	if supplied, ok := params[KeyState]; ok {
		if err := c.consumeState(ctx, supplied); err != nil {
			return err
		}
	}

	token, err := c.authenticator.AccessToken(ctx, grant, params)
	if err != nil {
		return err
	}

	item, err := c.CacheItem(ctx, KeyAccessToken)
	if err != nil {
		return err
	}
	item.Set(token.AccessToken).ExpiresAt(token.Expiry)

	if err := c.SaveCacheItem(ctx, item); err != nil {
		return err
	}

	log.Info().Time("expiry", token.Expiry).Msg("access token stored")

	return nil
}

func (c *Client) unauthorizedWithRedirect(ctx context.Context, message string) error {
	state, err := c.State(ctx)
	if err != nil {
		return err
	}

	authURL, err := c.AuthorizationURL(ctx, oauth.AuthorizationOptions{State: state})
	if err != nil {
		return err
	}

	return apierror.UnauthorizedError{
		Message:          message,
		AuthorizationURL: authURL,
		State:            state,
	}
}

// consumeState compares supplied with the cached state and deletes the
// cached state regardless of the outcome.
func (c *Client) consumeState(ctx context.Context, supplied string) error {
	item, err := c.CacheItem(ctx, KeyState)
	if err != nil {
		return err
	}

	cached, hit := item.StringAt(c.now())

	if err := c.DeleteCacheItem(ctx, item); err != nil {
		return err
	}

	if !hit || cached != supplied {
		return apierror.InvalidArgumentError{Message: "Invalid state"}
	}

	return nil
}

// Get requests path with the cached access token. Without a token it fails
// with apierror.UnauthorizedError before anything is sent. The bearer
// header replaces any Authorization header in opts.
func (c *Client) Get(ctx context.Context, path string, opts request.Options) (*jsonapi.Document, error) {
	item, err := c.CacheItem(ctx, KeyAccessToken)
	if err != nil {
		return nil, err
	}

	token, ok := item.StringAt(c.now())
	if !ok {
		return nil, apierror.UnauthorizedError{Message: "No access token available, authorization is required"}
	}

	return c.run(ctx, http.MethodGet, path, opts, token)
}

// GetUnauthorized requests path without an access token.
func (c *Client) GetUnauthorized(ctx context.Context, path string, opts request.Options) (*jsonapi.Document, error) {
	return c.run(ctx, http.MethodGet, path, opts, "")
}

// PostUnauthorized posts to path without an access token.
func (c *Client) PostUnauthorized(ctx context.Context, path string, opts request.Options) (*jsonapi.Document, error) {
	return c.run(ctx, http.MethodPost, path, opts, "")
}

func (c *Client) run(ctx context.Context, method, path string, opts request.Options, token string) (*jsonapi.Document, error) {
	req, err := c.builder.Build(ctx, method, path, opts)
	if err != nil {
		return nil, err
	}

	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	body, err := c.transport.Send(req)
	if err != nil {
		return nil, c.translate(ctx, err)
	}

	doc, err := jsonapi.Parse(body)
	if err != nil {
		return nil, apierror.RequestFailureError{
			Message: fmt.Sprintf("%s %s returned an unreadable document", method, path),
			Err:     err,
		}
	}

	return doc, nil
}

// translate converts a transport failure into apierror.RequestFailureError.
// A 401 response evicts the cached access token.
func (c *Client) translate(ctx context.Context, err error) error {
	var respErr *request.ResponseError
	if !errors.As(err, &respErr) {
		return apierror.RequestFailureError{
			Message: apierror.UnknownErrorMessage,
			Err:     err,
		}
	}

	if respErr.StatusCode == http.StatusUnauthorized {
		if err := c.evictAccessToken(ctx); err != nil {
			log.Warn().Err(err).Msg("access token eviction failed")
		}
	}

	return apierror.RequestFailureError{
		Message:    jsonapi.ErrorMessage(respErr.Body),
		StatusCode: respErr.StatusCode,
		Err:        err,
	}
}

func (c *Client) evictAccessToken(ctx context.Context) error {
	item, err := c.CacheItem(ctx, KeyAccessToken)
	if err != nil {
		return err
	}
	return c.DeleteCacheItem(ctx, item)
}

// CacheItem returns the item for the logical key, namespaced for this client.
func (c *Client) CacheItem(ctx context.Context, key string) (*cache.Item, error) {
	return c.cache.Item(ctx, c.namespace+"."+key)
}

// SaveCacheItem queues item and commits immediately. If the commit fails
// the item is deleted so that it does not remain a hit in memory.
func (c *Client) SaveCacheItem(ctx context.Context, item *cache.Item) error {
	if err := c.cache.SaveDeferred(ctx, item); err != nil {
		return err
	}

	err := c.cache.Commit(ctx)
	if err == nil {
		return nil
	}

	if delErr := c.DeleteCacheItem(ctx, item); delErr != nil {
		log.Warn().Err(delErr).Str("key", item.Key()).Msg("cache rollback failed")
	}

	return err
}

// DeleteCacheItem removes item by its own key.
func (c *Client) DeleteCacheItem(ctx context.Context, item *cache.Item) error {
	return c.cache.DeleteItem(ctx, item.Key())
}

// Close commits any deferred cache writes.
func (c *Client) Close(ctx context.Context) error {
	return c.cache.Commit(ctx)
}
