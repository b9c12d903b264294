// Package lazy provides load-once handles for expensive process-wide
// resources such as model clients.
package lazy

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Loader builds the resource. It receives a context detached from the
// first caller so a single cancelled request cannot poison the load.
type Loader[T any] func(ctx context.Context) (T, error)

// Provider loads a value at most once and hands it to every caller.
// A failed load is remembered for Cooldown, after which the next caller retries.
type Provider[T any] struct {
	name     string
	load     Loader[T]
	timeout  time.Duration
	cooldown time.Duration
	now      func() time.Time

	group singleflight.Group

	mu       sync.RWMutex
	value    T
	ready    bool
	lastErr  error
	failedAt time.Time
}

// Option customizes a Provider.
type Option func(*providerOptions)

type providerOptions struct {
	timeout  time.Duration
	cooldown time.Duration
	now      func() time.Time
}

// WithTimeout bounds a single load attempt. Zero means no bound.
func WithTimeout(d time.Duration) Option {
	return func(o *providerOptions) { o.timeout = d }
}

// WithCooldown sets how long a load failure is served from memory.
func WithCooldown(d time.Duration) Option {
	return func(o *providerOptions) { o.cooldown = d }
}

// withClock overrides time for tests.
func withClock(now func() time.Time) Option {
	return func(o *providerOptions) { o.now = now }
}

// New creates a provider. Nothing is loaded until GetOrCreate.
func New[T any](name string, load Loader[T], opts ...Option) *Provider[T] {
	o := providerOptions{cooldown: 30 * time.Second, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return &Provider[T]{
		name:     name,
		load:     load,
		timeout:  o.timeout,
		cooldown: o.cooldown,
		now:      o.now,
	}
}

// Name returns the resource name.
func (p *Provider[T]) Name() string { return p.name }

// GetOrCreate returns the loaded value, loading it on first use. Concurrent
// first callers share one load. A caller whose ctx ends stops waiting but
// the load continues for the others.
func (p *Provider[T]) GetOrCreate(ctx context.Context) (T, error) {
	if v, err, ok := p.cached(); ok {
		return v, err
	}

	ch := p.group.DoChan(p.name, func() (any, error) {
		if v, err, ok := p.cached(); ok {
			return v, err
		}
		return p.doLoad(context.WithoutCancel(ctx))
	})

	select {
	case <-ctx.Done():
		var zero T
		return zero, fmt.Errorf("load %s: %w", p.name, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			var zero T
			return zero, res.Err
		}
		return res.Val.(T), nil
	}
}

// Loaded reports whether a value is available without triggering a load.
func (p *Provider[T]) Loaded() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.ready
}

// Reset drops the cached value or failure.
func (p *Provider[T]) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	var zero T
	p.value, p.ready, p.lastErr, p.failedAt = zero, false, nil, time.Time{}
}

func (p *Provider[T]) cached() (T, error, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.ready {
		return p.value, nil, true
	}
	if p.lastErr != nil && p.now().Sub(p.failedAt) < p.cooldown {
		var zero T
		return zero, p.lastErr, true
	}
	var zero T
	return zero, nil, false
}

func (p *Provider[T]) doLoad(ctx context.Context) (T, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	v, err := p.load(ctx)

	p.mu.Lock()
	defer p.mu.Unlock()
	if err != nil {
		p.lastErr = fmt.Errorf("load %s: %w", p.name, err)
		p.failedAt = p.now()
		var zero T
		return zero, p.lastErr
	}
	p.value, p.ready, p.lastErr = v, true, nil
	return v, nil
}
