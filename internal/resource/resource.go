// Package resource maps Youthweb endpoints onto the client's request
// capability.
package resource

import (
	"context"
	"net/url"

	"github.com/youthweb/youthweb-bridge/internal/jsonapi"
	"github.com/youthweb/youthweb-bridge/internal/request"
	"github.com/youthweb/youthweb-bridge/internal/youthweb"
)

// Users reads user resources. All endpoints require authorization.
type Users struct {
	client          youthweb.Capability
	resourceOwnerID string
}

// NewUsers creates a Users resource. resourceOwnerID may be empty, in which
// case ShowResourceOwner falls back to /me.
func NewUsers(client youthweb.Capability, resourceOwnerID string) *Users {
	return &Users{client: client, resourceOwnerID: resourceOwnerID}
}

// Show returns the user with the given id.
func (u *Users) Show(ctx context.Context, id string) (*jsonapi.Document, error) {
	return u.client.Get(ctx, "/users/"+url.PathEscape(id), request.Options{})
}

// ShowMe returns the user the access token belongs to.
func (u *Users) ShowMe(ctx context.Context) (*jsonapi.Document, error) {
	return u.client.Get(ctx, "/me", request.Options{})
}

// ShowResourceOwner returns the configured resource owner.
func (u *Users) ShowResourceOwner(ctx context.Context) (*jsonapi.Document, error) {
	if u.resourceOwnerID == "" {
		return u.ShowMe(ctx)
	}
	return u.Show(ctx, u.resourceOwnerID)
}

// Stats reads public statistics.
type Stats struct {
	client youthweb.Capability
}

func NewStats(client youthweb.Capability) *Stats {
	return &Stats{client: client}
}

// Show returns a statistics resource such as "account", "forum" or "groups".
func (s *Stats) Show(ctx context.Context, id string) (*jsonapi.Document, error) {
	return s.client.GetUnauthorized(ctx, "/stats/"+url.PathEscape(id), request.Options{})
}

// Posts reads posts.
type Posts struct {
	client youthweb.Capability
}

func NewPosts(client youthweb.Capability) *Posts {
	return &Posts{client: client}
}

func (p *Posts) Show(ctx context.Context, id string) (*jsonapi.Document, error) {
	return p.client.Get(ctx, "/posts/"+url.PathEscape(id), request.Options{})
}
