package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Factory builds a Client from normalized options.
type Factory func(ctx context.Context, cfg Resolved) (Client, error)

var (
	factories = make(map[ProviderType]Factory)
	mu        sync.RWMutex
)

// Register makes a provider available by name. Provider packages call it
// from init; registering the same name twice panics.
func Register(name ProviderType, factory Factory) {
	mu.Lock()
	defer mu.Unlock()
	if factory == nil {
		panic("storage: Register factory is nil")
	}
	if _, dup := factories[name]; dup {
		panic("storage: Register called twice for provider " + string(name))
	}
	factories[name] = factory
}

// New normalizes opts and builds a client for opts.Provider.
func New(ctx context.Context, opts Options) (Client, error) {
	cfg, err := opts.Normalize()
	if err != nil {
		return nil, err
	}

	mu.RLock()
	factory, ok := factories[cfg.Provider]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, opts.Provider)
	}

	return factory(ctx, cfg)
}

// Providers returns the registered provider names in sorted order.
func Providers() []ProviderType {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]ProviderType, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}
