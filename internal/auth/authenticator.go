// Package auth wraps an OAuth2 provider with the grant policy of the
// Youthweb client.
package auth

import (
	"context"
	"fmt"

	"github.com/youthweb/youthweb-bridge/internal/apierror"
	"github.com/youthweb/youthweb-bridge/internal/oauth"
)

// GrantAuthorizationCode is the only supported grant.
const GrantAuthorizationCode = "authorization_code"

// Provider is the OAuth2 capability used by the Authenticator.
type Provider interface {
	AuthorizationURL(opts oauth.AuthorizationOptions) string
	State() string
	Exchange(ctx context.Context, code string) (oauth.Token, error)
}

// Authenticator issues authorization URLs and states and exchanges codes for
// tokens.
type Authenticator struct {
	provider Provider
}

func New(provider Provider) *Authenticator {
	return &Authenticator{provider: provider}
}

func (a *Authenticator) AuthorizationURL(opts oauth.AuthorizationOptions) string {
	return a.provider.AuthorizationURL(opts)
}

// State returns a state the provider has not handed out before. Providers
// only generate a state while building an authorization URL, so one is built
// and discarded when none is pending.
func (a *Authenticator) State() string {
	if state := a.provider.State(); state != "" {
		return state
	}

	_ = a.provider.AuthorizationURL(oauth.AuthorizationOptions{})

	return a.provider.State()
}

// AccessToken exchanges params["code"] for a token. Grants other than
// authorization_code are rejected before the provider is contacted.
func (a *Authenticator) AccessToken(ctx context.Context, grant string, params map[string]string) (oauth.Token, error) {
	if grant != GrantAuthorizationCode {
		return oauth.Token{}, apierror.InvalidArgumentError{
			Message: fmt.Sprintf("unsupported grant %q: only %q is allowed", grant, GrantAuthorizationCode),
		}
	}

	return a.provider.Exchange(ctx, params["code"])
}
