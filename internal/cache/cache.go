package cache

import (
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// Cache defines a generic cache interface
type Cache[T any] interface {
	// Get retrieves a value from the cache
	Get(key string) (T, bool)

	// Set stores a value in the cache
	Set(key string, data T)

	// Delete removes a key from the cache
	Delete(key string)
}

// Ristretto is a Cache backed by ristretto. Every entry costs 1, so maxItems
// bounds the number of entries.
type Ristretto[T any] struct {
	c   *ristretto.Cache[string, T]
	ttl time.Duration
}

var _ Cache[int] = (*Ristretto[int])(nil)

// NewRistretto creates a cache holding up to maxItems entries for ttl each.
func NewRistretto[T any](maxItems int64, ttl time.Duration) (*Ristretto[T], error) {
	c, err := ristretto.NewCache(&ristretto.Config[string, T]{
		NumCounters: maxItems * 10, // ~10x expected items
		MaxCost:     maxItems,
		BufferItems: 64,
		// Costs count entries, not bytes.
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, err
	}
	return &Ristretto[T]{c: c, ttl: ttl}, nil
}

func (r *Ristretto[T]) Get(key string) (T, bool) {
	return r.c.Get(key)
}

// Set stores the value and waits for the write buffer to drain so the value
// is visible to the next Get.
func (r *Ristretto[T]) Set(key string, data T) {
	r.c.SetWithTTL(key, data, 1, r.ttl)
	r.c.Wait()
}

func (r *Ristretto[T]) Delete(key string) {
	r.c.Del(key)
}

// Close stops the cache's background goroutines.
func (r *Ristretto[T]) Close() {
	r.c.Close()
}
