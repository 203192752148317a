package cluster

import (
	"context"
	"sync"

	"github.com/codewandler/cbridge-go/core/cache"
)

type ScopedHandlerOpts struct {
	Extract func(env Envelope) (key string, err error)
	Create  func(key string) (ServerHandlerFunc, error)

	// CacheSize caps the number of live per-key handlers; the least
	// recently used is dropped and recreated on its next message.
	// <= 0 keeps handlers forever.
	CacheSize int
}

// NewScopedHandler returns a handler that creates and caches one inner
// handler per key.
func NewScopedHandler(opts ScopedHandlerOpts) ServerHandlerFunc {
	var store cache.Cache
	if opts.CacheSize > 0 {
		store = cache.NewLRU(cache.LRUOpts{Size: opts.CacheSize})
	} else {
		store = cache.NewMem()
	}
	handlers := cache.NewTyped[ServerHandlerFunc](store)

	var mu sync.Mutex

	return func(ctx context.Context, env Envelope) ([]byte, error) {
		// extract key
		k, err := opts.Extract(env)
		if err != nil {
			return nil, err
		}

		if k == "" {
			return nil, ErrKeyRequired
		}

		// create handler if not exists
		mu.Lock()
		h, ok := handlers.Get(k)
		if !ok {
			h, err = opts.Create(k)
			if err != nil {
				mu.Unlock()
				return nil, err
			}
			handlers.Put(k, h)
		}
		mu.Unlock()

		return h(ctx, env)
	}
}

// NewKeyHandler scopes handlers by the routed key header set by
// [Client.Key].
func NewKeyHandler(createFunc func(key string) (ServerHandlerFunc, error)) ServerHandlerFunc {
	return NewKeyHandlerWithOpts(createFunc, 0)
}

// NewKeyHandlerWithOpts is NewKeyHandler with a handler cache cap.
func NewKeyHandlerWithOpts(createFunc func(key string) (ServerHandlerFunc, error), cacheSize int) ServerHandlerFunc {
	return NewScopedHandler(ScopedHandlerOpts{
		Extract: func(env Envelope) (string, error) {
			key, ok := env.GetHeader(envHeaderKey)
			if !ok {
				return "", ErrMissingKeyHeader
			}
			return key, nil
		},
		Create:    createFunc,
		CacheSize: cacheSize,
	})
}
