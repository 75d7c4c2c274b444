// Package cache provides single-slot TTL caches for upstream payloads.
//
// A lookup returns the stored value while it is younger than the TTL and
// otherwise calls the supplied fetch function. A failed fetch never touches
// the slot. There is no request coalescing: concurrent misses each fetch and
// the last successful writer wins.
package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jmhodges/clock"

	"dayplanner/internal/metrics"
)

// ErrFetch matches every *FetchError via errors.Is.
var ErrFetch = errors.New("cache fetch failed")

// FetchError wraps the cause of a failed refresh.
type FetchError struct {
	Cache string
	Err   error
}

func (e *FetchError) Error() string {
	if e.Cache == "" {
		return fmt.Sprintf("%v: %v", ErrFetch, e.Err)
	}
	return fmt.Sprintf("%s: %v: %v", e.Cache, ErrFetch, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

func (e *FetchError) Is(target error) bool { return target == ErrFetch }

type Options struct {
	// Name labels metrics and errors.
	Name string
	TTL  time.Duration
	// Clock defaults to the wall clock.
	Clock clock.Clock
}

func (o Options) clock() clock.Clock {
	if o.Clock == nil {
		return clock.New()
	}
	return o.Clock
}

// Cache holds one value of type T.
type Cache[T any] struct {
	name  string
	ttl   time.Duration
	clock clock.Clock

	mu      sync.RWMutex
	value   T
	fetched time.Time
	ok      bool
}

func New[T any](opts Options) *Cache[T] {
	return &Cache[T]{name: opts.Name, ttl: opts.TTL, clock: opts.clock()}
}

// Peek returns the stored value and whether it is still fresh.
func (c *Cache[T]) Peek() (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.value, c.ok && c.fresh(c.fetched)
}

// GetOrFetch returns the fresh value or refreshes it with fetch.
func (c *Cache[T]) GetOrFetch(ctx context.Context, fetch func(context.Context) (T, error)) (T, error) {
	if v, ok := c.Peek(); ok {
		c.record("hit")
		return v, nil
	}

	v, err := fetch(ctx)
	if err != nil {
		c.record("error")
		var zero T
		return zero, &FetchError{Cache: c.name, Err: err}
	}
	c.record("miss")

	c.mu.Lock()
	c.value = v
	c.fetched = c.clock.Now()
	c.ok = true
	c.mu.Unlock()
	return v, nil
}

// Invalidate empties the slot.
func (c *Cache[T]) Invalidate() {
	c.mu.Lock()
	var zero T
	c.value = zero
	c.ok = false
	c.mu.Unlock()
}

func (c *Cache[T]) fresh(at time.Time) bool {
	return c.clock.Now().Sub(at) < c.ttl
}

func (c *Cache[T]) record(result string) {
	if c.name == "" {
		return
	}
	metrics.CacheLookupsTotal.WithLabelValues(c.name, result).Inc()
}

// Keyed holds one value tagged with the key it was fetched for. A lookup
// with a different key is a miss and a successful fetch replaces the slot.
type Keyed[K comparable, T any] struct {
	name  string
	ttl   time.Duration
	clock clock.Clock

	mu      sync.RWMutex
	key     K
	value   T
	fetched time.Time
	ok      bool
}

func NewKeyed[K comparable, T any](opts Options) *Keyed[K, T] {
	return &Keyed[K, T]{name: opts.Name, ttl: opts.TTL, clock: opts.clock()}
}

func (c *Keyed[K, T]) Peek(key K) (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.ok || c.key != key || c.clock.Now().Sub(c.fetched) >= c.ttl {
		var zero T
		return zero, false
	}
	return c.value, true
}

func (c *Keyed[K, T]) GetOrFetch(ctx context.Context, key K, fetch func(context.Context, K) (T, error)) (T, error) {
	if v, ok := c.Peek(key); ok {
		c.record("hit")
		return v, nil
	}

	v, err := fetch(ctx, key)
	if err != nil {
		c.record("error")
		var zero T
		return zero, &FetchError{Cache: c.name, Err: err}
	}
	c.record("miss")

	c.mu.Lock()
	c.key = key
	c.value = v
	c.fetched = c.clock.Now()
	c.ok = true
	c.mu.Unlock()
	return v, nil
}

func (c *Keyed[K, T]) Invalidate() {
	c.mu.Lock()
	var zeroK K
	var zeroT T
	c.key = zeroK
	c.value = zeroT
	c.ok = false
	c.mu.Unlock()
}

func (c *Keyed[K, T]) record(result string) {
	if c.name == "" {
		return
	}
	metrics.CacheLookupsTotal.WithLabelValues(c.name, result).Inc()
}
