package cache

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/youthweb/youthweb-bridge/internal/apierror"
)

// ErrNoCacheProvider is returned whenever NullPool is asked to persist an
// item.
var ErrNoCacheProvider = apierror.ConfigurationError{
	Message: "a cache provider is needed for requesting protected API endpoints",
}

// NullPool is the default pool used when no cache backend is configured.
// Lookups and deletes work against an in-process map so that unauthenticated
// requests behave normally, but persisting anything fails with
// ErrNoCacheProvider. Authenticated requests therefore fail early and loudly
// instead of silently losing tokens.
type NullPool struct {
	mu       sync.Mutex
	items    map[string]*Item
	deferred []*Item
}

// NewNullPool creates an empty NullPool.
func NewNullPool() *NullPool {
	return &NullPool{
		items: make(map[string]*Item),
	}
}

func (p *NullPool) Item(_ context.Context, key string) (*Item, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	item, ok := p.items[key]
	if !ok {
		item = NewItem(key)
		p.items[key] = item
	}

	return item, nil
}

func (p *NullPool) HasItem(ctx context.Context, key string) (bool, error) {
	item, err := p.Item(ctx, key)
	if err != nil {
		return false, err
	}
	return item.IsHit(), nil
}

func (p *NullPool) DeleteItem(_ context.Context, key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if item, ok := p.items[key]; ok {
		item.reset()
		delete(p.items, key)
	}

	return nil
}

// Save always fails: there is nowhere to persist the item.
func (p *NullPool) Save(_ context.Context, item *Item) error {
	log.Warn().Str("key", item.Key()).Msg("cache: no cache provider configured, item not saved")
	return ErrNoCacheProvider
}

func (p *NullPool) SaveDeferred(_ context.Context, item *Item) error {
	if err := ValidateKey(item.Key()); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.deferred = append(p.deferred, item)
	return nil
}

// Commit drains the deferred queue through Save, so it fails when anything
// was queued.
func (p *NullPool) Commit(ctx context.Context) error {
	p.mu.Lock()
	queued := p.deferred
	p.deferred = nil
	p.mu.Unlock()

	for _, item := range queued {
		if err := p.Save(ctx, item); err != nil {
			return err
		}
	}

	return nil
}

func (p *NullPool) Clear(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, item := range p.items {
		item.reset()
	}
	p.items = make(map[string]*Item)
	p.deferred = nil

	return nil
}

func (p *NullPool) Close() error {
	return nil
}
