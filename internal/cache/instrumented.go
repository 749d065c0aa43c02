package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	metricsOnce     sync.Once
	cacheOperations metric.Int64Counter
	cacheDuration   metric.Float64Histogram
	sealOperations  metric.Int64Counter
)

func initMetrics() {
	metricsOnce.Do(func() {
		meter := otel.Meter("github.com/youthweb/youthweb-bridge/internal/cache")

		var err error
		cacheOperations, err = meter.Int64Counter(
			"cache.operations",
			metric.WithDescription("Total cache operations"),
		)
		if err != nil {
			otel.Handle(err)
		}

		cacheDuration, err = meter.Float64Histogram(
			"cache.operation.duration",
			metric.WithDescription("Cache operation duration"),
			metric.WithUnit("s"),
		)
		if err != nil {
			otel.Handle(err)
		}

		sealOperations, err = meter.Int64Counter(
			"cache.seal.operations",
			metric.WithDescription("Cache entries sealed and opened, by entry kind"),
		)
		if err != nil {
			otel.Handle(err)
		}
	})
}

// Instrumented wraps a Store with metrics instrumentation.
type Instrumented[T any] struct {
	wrapped   Store[T]
	cacheType string
}

// NewInstrumented creates an instrumented cache wrapper.
func NewInstrumented[T any](cache Store[T], cacheType string) *Instrumented[T] {
	initMetrics()
	return &Instrumented[T]{
		wrapped:   cache,
		cacheType: cacheType,
	}
}

// Get retrieves a value from the cache.
func (i *Instrumented[T]) Get(ctx context.Context, key string) (T, bool, error) {
	start := time.Now()

	value, found, err := i.wrapped.Get(ctx, key)

	duration := time.Since(start)
	i.recordDuration(ctx, "get", duration)

	status := "miss"
	if err != nil {
		status = "error"
	} else if found {
		status = "hit"
	}
	i.recordOperation(ctx, "get", status)
	i.setSpanAttributes(ctx, "get", status, duration)

	return value, found, err
}

// Set stores a value in the cache.
func (i *Instrumented[T]) Set(ctx context.Context, key string, value T, ttl time.Duration) error {
	return i.observe(ctx, "set", func() error {
		return i.wrapped.Set(ctx, key, value, ttl)
	})
}

// SetBatch forwards to the wrapped store when it supports batching and
// falls back to one Set per write otherwise.
func (i *Instrumented[T]) SetBatch(ctx context.Context, writes []Write[T]) error {
	return i.observe(ctx, "set_batch", func() error {
		if batcher, ok := i.wrapped.(Batcher[T]); ok {
			return batcher.SetBatch(ctx, writes)
		}
		for _, w := range writes {
			if err := i.wrapped.Set(ctx, w.Key, w.Value, w.TTL); err != nil {
				return err
			}
		}
		return nil
	})
}

// Invalidate removes a value from the cache.
func (i *Instrumented[T]) Invalidate(ctx context.Context, key string) error {
	return i.observe(ctx, "invalidate", func() error {
		return i.wrapped.Invalidate(ctx, key)
	})
}

func (i *Instrumented[T]) observe(ctx context.Context, operation string, fn func() error) error {
	start := time.Now()

	err := fn()

	duration := time.Since(start)
	i.recordDuration(ctx, operation, duration)

	status := "success"
	if err != nil {
		status = "error"
	}
	i.recordOperation(ctx, operation, status)
	i.setSpanAttributes(ctx, operation, status, duration)

	return err
}

// Close releases any resources held by the cache.
func (i *Instrumented[T]) Close() error {
	return i.wrapped.Close()
}

func (i *Instrumented[T]) recordOperation(ctx context.Context, operation, status string) {
	if cacheOperations == nil {
		return
	}
	cacheOperations.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("cache.type", i.cacheType),
			attribute.String("cache.operation", operation),
			attribute.String("cache.status", status),
		),
	)
}

func (i *Instrumented[T]) recordDuration(ctx context.Context, operation string, duration time.Duration) {
	if cacheDuration == nil {
		return
	}
	cacheDuration.Record(ctx, duration.Seconds(),
		metric.WithAttributes(
			attribute.String("cache.type", i.cacheType),
			attribute.String("cache.operation", operation),
		),
	)
}

func (i *Instrumented[T]) setSpanAttributes(ctx context.Context, operation, status string, duration time.Duration) {
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(
		attribute.String("cache.type", i.cacheType),
		attribute.String("cache."+operation+".status", status),
		attribute.Float64("cache."+operation+".duration", duration.Seconds()),
	)
}

// InstrumentedSealer records seal and open operations. Durations share the
// cache.operation.duration histogram under cache.type "sealer".
type InstrumentedSealer struct {
	wrapped Sealer
}

func NewInstrumentedSealer(sealer Sealer) *InstrumentedSealer {
	initMetrics()
	return &InstrumentedSealer{wrapped: sealer}
}

func (s *InstrumentedSealer) Seal(ctx context.Context, key string, plaintext []byte) (string, error) {
	var sealed string
	err := observeSeal(ctx, "seal", key, func() (err error) {
		sealed, err = s.wrapped.Seal(ctx, key, plaintext)
		return err
	})
	return sealed, err
}

func (s *InstrumentedSealer) Open(ctx context.Context, key string, sealed string) ([]byte, error) {
	var plaintext []byte
	err := observeSeal(ctx, "open", key, func() (err error) {
		plaintext, err = s.wrapped.Open(ctx, key, sealed)
		return err
	})
	return plaintext, err
}

func (s *InstrumentedSealer) StorageKey(key string) string {
	return s.wrapped.StorageKey(key)
}

func (s *InstrumentedSealer) Close() error {
	return s.wrapped.Close()
}

func observeSeal(ctx context.Context, operation, key string, fn func() error) error {
	start := time.Now()

	err := fn()

	duration := time.Since(start)
	kind := entryKind(key)

	outcome := "success"
	if err != nil {
		outcome = "error"
	}

	if sealOperations != nil {
		sealOperations.Add(ctx, 1,
			metric.WithAttributes(
				attribute.String("cache.operation", operation),
				attribute.String("cache.entry", kind),
				attribute.String("cache.status", outcome),
			),
		)
	}

	if cacheDuration != nil {
		cacheDuration.Record(ctx, duration.Seconds(),
			metric.WithAttributes(
				attribute.String("cache.type", "sealer"),
				attribute.String("cache.operation", operation),
			),
		)
	}

	trace.SpanFromContext(ctx).SetAttributes(
		attribute.String("cache."+operation+".entry", kind),
		attribute.String("cache."+operation+".status", outcome),
		attribute.Float64("cache."+operation+".duration", duration.Seconds()),
	)

	return err
}

// entryKind reduces a namespaced key to a low-cardinality label: the client's
// own entries by name, anything else as "other".
func entryKind(key string) string {
	name := key[strings.LastIndexByte(key, '.')+1:]

	switch name {
	case "access_token", "state":
		return name
	default:
		return "other"
	}
}
