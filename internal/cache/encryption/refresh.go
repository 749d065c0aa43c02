package encryption

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tink-crypto/tink-go/v2/tink"
)

// DefaultRefreshInterval is how often a RefreshableAEAD reloads its keyset.
const DefaultRefreshInterval = 15 * time.Minute

// aeadLoader loads an AEAD from external key material.
type aeadLoader func(ctx context.Context) (tink.AEAD, error)

// RefreshableAEAD wraps a tink.AEAD and reloads it periodically, so a rotated
// keyset is picked up without a restart. A failed reload is logged and the
// current AEAD stays in use.
type RefreshableAEAD struct {
	mu     sync.RWMutex
	aead   tink.AEAD
	loader aeadLoader

	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

// NewRefreshableAEAD creates an AEAD over a KMS-protected keyset held in
// Secrets Manager.
func NewRefreshableAEAD(ctx context.Context, keysetURI, kmsEnvelopeKeyURI string, opts ...AWSOption) (*RefreshableAEAD, error) {
	loader := func(ctx context.Context) (tink.AEAD, error) {
		return NewAEADFromKMS(ctx, keysetURI, kmsEnvelopeKeyURI, opts...)
	}

	return newRefreshableAEAD(ctx, loader, DefaultRefreshInterval)
}

// NewRefreshableAEADFromFile creates an AEAD over a cleartext keyset file.
// The file is re-read on every refresh.
func NewRefreshableAEADFromFile(ctx context.Context, path string) (*RefreshableAEAD, error) {
	loader := func(context.Context) (tink.AEAD, error) {
		return NewAEADFromFile(path)
	}

	return newRefreshableAEAD(ctx, loader, DefaultRefreshInterval)
}

// newRefreshableAEAD loads the initial AEAD synchronously. The refresh
// goroutine is only started once that succeeds.
func newRefreshableAEAD(ctx context.Context, loader aeadLoader, interval time.Duration) (*RefreshableAEAD, error) {
	initial, err := loader(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading initial AEAD: %w", err)
	}

	// refreshes outlive the constructor's context; Close stops them
	refreshCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	r := &RefreshableAEAD{
		aead:   initial,
		loader: loader,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go r.refreshLoop(refreshCtx, interval)

	return r, nil
}

// Encrypt delegates to the current AEAD under a read lock.
func (r *RefreshableAEAD) Encrypt(plaintext, associatedData []byte) ([]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.aead.Encrypt(plaintext, associatedData)
}

// Decrypt delegates to the current AEAD under a read lock.
func (r *RefreshableAEAD) Decrypt(ciphertext, associatedData []byte) ([]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.aead.Decrypt(ciphertext, associatedData)
}

// Close stops the refresh goroutine, cancelling any reload in progress, and
// waits for it to exit. It is safe to call more than once.
func (r *RefreshableAEAD) Close() error {
	r.closeOnce.Do(func() {
		r.cancel()
		<-r.done
	})
	return nil
}

func (r *RefreshableAEAD) refreshLoop(ctx context.Context, interval time.Duration) {
	defer close(r.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.refresh(ctx)
		}
	}
}

func (r *RefreshableAEAD) refresh(ctx context.Context) {
	next, err := r.loader(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		log.Warn().Err(err).Msg("cache keyset refresh failed, continuing with current keyset")
		return
	}

	r.mu.Lock()
	r.aead = next
	r.mu.Unlock()

	log.Debug().Msg("cache keyset refreshed")
}
