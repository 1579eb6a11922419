package token

import (
	"errors"
	"sync"
)

// ErrUnsupportedModel is returned when no tokenizer can be resolved for a model.
// Callers are expected to surface it; there is no fallback here.
var ErrUnsupportedModel = errors.New("token: unsupported model")

// Counter reports how many tokens a piece of text costs under a given model.
type Counter interface {
	Count(text, model string) (int, error)
}

type cacheKey struct {
	text  string
	model string
}

// Cached memoizes Count results per (text, model) for the process lifetime.
// Counting the same prompt against the same model is common during context
// trimming, so hits vastly outnumber misses.
type Cached struct {
	inner Counter

	mu      sync.RWMutex
	results map[cacheKey]int
}

func NewCached(inner Counter) *Cached {
	return &Cached{inner: inner, results: make(map[cacheKey]int)}
}

func (c *Cached) Count(text, model string) (int, error) {
	key := cacheKey{text: text, model: model}

	c.mu.RLock()
	n, ok := c.results[key]
	c.mu.RUnlock()
	if ok {
		return n, nil
	}

	n, err := c.inner.Count(text, model)
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	c.results[key] = n
	c.mu.Unlock()
	return n, nil
}
