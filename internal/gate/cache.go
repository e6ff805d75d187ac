package gate

import (
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/zeebo/blake3"

	"github.com/aristath/minions/internal/edit"
)

const defaultCacheSize = 512

// CachedChecker memoises verdicts of a deterministic Checker. Retries of the
// same task often resubmit identical content, and the projected content of a
// localized edit is checked again before commit.
type CachedChecker struct {
	inner  Checker
	cache  *lru.Cache[[32]byte, edit.Verdict]
	hits   atomic.Int64
	misses atomic.Int64
}

// NewCachedChecker wraps inner with an LRU cache of size entries.
// A non-positive size falls back to the default.
func NewCachedChecker(inner Checker, size int) *CachedChecker {
	if size <= 0 {
		size = defaultCacheSize
	}
	// lru.New only errors on non-positive size which we guard above.
	cache, _ := lru.New[[32]byte, edit.Verdict](size)
	return &CachedChecker{inner: inner, cache: cache}
}

// Check implements Checker.
func (c *CachedChecker) Check(path, content string) edit.Verdict {
	key := cacheKey(FileKind(path), content)
	if v, ok := c.cache.Get(key); ok {
		c.hits.Add(1)
		return v
	}
	c.misses.Add(1)

	v := c.inner.Check(path, content)
	c.cache.Add(key, v)
	return v
}

// Stats returns cache hits and misses since creation.
func (c *CachedChecker) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func cacheKey(kind, content string) [32]byte {
	h := blake3.New()
	h.Write([]byte(kind))
	h.Write([]byte{0})
	h.Write([]byte(content))
	var sum [32]byte
	copy(sum[:], h.Sum(nil))
	return sum
}
