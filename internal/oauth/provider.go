// Package oauth adapts golang.org/x/oauth2 to the authorization-code flow
// used by Youthweb.
package oauth

import (
	"context"
	"crypto/rand"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/youthweb/youthweb-bridge/internal/config"
	"golang.org/x/oauth2"
)

// AuthorizationOptions are the parameters of an authorization URL. Empty
// fields are filled in by the caller's defaults.
type AuthorizationOptions struct {
	Scopes []string
	State  string
}

// Token is the result of a successful code exchange.
type Token struct {
	AccessToken string
	Expiry      time.Time
}

// Provider builds authorization URLs and exchanges authorization codes. When
// a URL is built without a state a random one is generated and remembered
// until State hands it out. Supplied states are never remembered.
type Provider struct {
	config     oauth2.Config
	httpClient *http.Client

	mu    sync.Mutex
	state string
}

// NewProvider creates a provider for the configured client. A nil httpClient
// uses http.DefaultClient.
func NewProvider(cfg config.ClientConfig, httpClient *http.Client) *Provider {
	authDomain := strings.TrimSuffix(cfg.AuthDomain, "/")

	return &Provider{
		config: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   authDomain + "/auth/authorize",
				TokenURL:  authDomain + "/auth/access_token",
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		httpClient: httpClient,
	}
}

// AuthorizationURL returns the URL the user is sent to for consent.
func (p *Provider) AuthorizationURL(opts AuthorizationOptions) string {
	cfg := p.config
	if len(opts.Scopes) > 0 {
		cfg.Scopes = opts.Scopes
	}

	state := opts.State
	if state == "" {
		state = rand.Text()

		p.mu.Lock()
		p.state = state
		p.mu.Unlock()
	}

	return cfg.AuthCodeURL(state)
}

// State returns the most recently generated state and forgets it, so each
// generated state is handed out once. It is empty when no URL has been built
// without a state since the last call.
func (p *Provider) State() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	state := p.state
	p.state = ""
	return state
}

// Exchange trades an authorization code for an access token.
func (p *Provider) Exchange(ctx context.Context, code string) (Token, error) {
	if p.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
	}

	token, err := p.config.Exchange(ctx, code)
	if err != nil {
		return Token{}, fmt.Errorf("authorization code exchange failed: %w", err)
	}

	return Token{
		AccessToken: token.AccessToken,
		Expiry:      token.Expiry,
	}, nil
}
