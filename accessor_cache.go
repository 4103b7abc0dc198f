package statetree

import lru "github.com/hashicorp/golang-lru"

// AccessorCache caches resolved struct-field lookups so that repeatedly
// reading or writing the same paths avoids re-scanning struct types via
// reflection.
type AccessorCache interface {
	// Add caches a freshly-resolved accessor.
	Add(key, value interface{})
	// Get retrieves the already-resolved accessor, if cached.
	Get(key interface{}) (value interface{}, ok bool)
}

// NewAccessorCache creates a new LRU-based accessor cache of the given
// size. One cache can be shared by any number of models.
func NewAccessorCache(size int) AccessorCache {
	cache, err := lru.NewARC(size)
	if err != nil {
		panic(err)
	}
	return cache
}
