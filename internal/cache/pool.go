package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// StorePool implements Pool on top of a Store. Items handed out by the pool
// are remembered for its lifetime. A lookup refreshes a remembered item from
// the store unless it carries unsaved changes, so entries deleted by another
// process sharing the store are seen as misses.
type StorePool struct {
	mu       sync.Mutex
	store    Store[Entry]
	items    map[string]*Item
	deferred []*Item
}

// NewStorePool creates a pool backed by store.
func NewStorePool(store Store[Entry]) *StorePool {
	return &StorePool{
		store: store,
		items: make(map[string]*Item),
	}
}

func (p *StorePool) Item(ctx context.Context, key string) (*Item, error) {
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
	if item.dirty {
		return item, nil
	}

	entry, found, err := p.store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("cache lookup for %q failed: %w", key, err)
	}

	if found {
		item.load(entry)
	} else {
		item.reset()
	}

	return item, nil
}

func (p *StorePool) HasItem(ctx context.Context, key string) (bool, error) {
	item, err := p.Item(ctx, key)
	if err != nil {
		return false, err
	}
	return item.IsHit(), nil
}

func (p *StorePool) DeleteItem(ctx context.Context, key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	return p.delete(ctx, key)
}

func (p *StorePool) delete(ctx context.Context, key string) error {
	if item, ok := p.items[key]; ok {
		item.reset()
		delete(p.items, key)
	}

	if err := p.store.Invalidate(ctx, key); err != nil {
		return fmt.Errorf("cache delete for %q failed: %w", key, err)
	}

	return nil
}

func (p *StorePool) Save(ctx context.Context, item *Item) error {
	if err := ValidateKey(item.Key()); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	return p.save(ctx, item)
}

func (p *StorePool) save(ctx context.Context, item *Item) error {
	ttl, expired := item.ttl()
	if expired {
		// saving an already expired item is equivalent to deleting it
		return p.delete(ctx, item.Key())
	}

	if err := p.store.Set(ctx, item.Key(), item.entry(), ttl); err != nil {
		return fmt.Errorf("cache save for %q failed: %w", item.Key(), err)
	}

	item.hit = true
	item.dirty = false
	p.items[item.Key()] = item

	return nil
}

func (p *StorePool) SaveDeferred(_ context.Context, item *Item) error {
	if err := ValidateKey(item.Key()); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	item.dirty = true
	p.deferred = append(p.deferred, item)
	p.items[item.Key()] = item

	return nil
}

// Commit persists queued items. Stores implementing Batcher receive all
// live items in one call; expired items are deleted individually.
func (p *StorePool) Commit(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	queued := p.deferred
	p.deferred = nil

	if len(queued) == 0 {
		return nil
	}

	batcher, ok := p.store.(Batcher[Entry])
	if !ok {
		var errs []error
		for _, item := range queued {
			if err := p.save(ctx, item); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}

	var errs []error
	writes := make([]Write[Entry], 0, len(queued))
	for _, item := range queued {
		ttl, expired := item.ttl()
		if expired {
			if err := p.delete(ctx, item.Key()); err != nil {
				errs = append(errs, err)
			}
			continue
		}
		writes = append(writes, Write[Entry]{Key: item.Key(), Value: item.entry(), TTL: ttl})
	}

	if len(writes) > 0 {
		if err := batcher.SetBatch(ctx, writes); err != nil {
			errs = append(errs, fmt.Errorf("cache commit failed: %w", err))
		} else {
			for _, item := range queued {
				if _, expired := item.ttl(); !expired {
					item.hit = true
					item.dirty = false
				}
			}
		}
	}

	return errors.Join(errs...)
}

// Clear removes every key this pool has handed out. Keys written by other
// processes sharing the store are left untouched.
func (p *StorePool) Clear(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	for key := range p.items {
		if err := p.delete(ctx, key); err != nil {
			errs = append(errs, err)
		}
	}
	p.deferred = nil

	return errors.Join(errs...)
}

func (p *StorePool) Close() error {
	return p.store.Close()
}
