package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/cloo-solutions/veritexai/internal/domain"
)

// Query cache defaults.
const (
	DefaultQueryCapacity = 1000
	DefaultQueryTTL      = time.Hour
)

// QueryCache memoises assembled query results. Any write to the corpus
// (delete or re-ingest) invalidates the whole cache.
type QueryCache struct {
	lru *LRU[domain.ContextResult]
}

// NewQueryCache creates a query result cache with the given capacity
// and TTL.
func NewQueryCache(capacity int, ttl time.Duration) *QueryCache {
	if capacity <= 0 {
		capacity = DefaultQueryCapacity
	}
	if ttl <= 0 {
		ttl = DefaultQueryTTL
	}
	return &QueryCache{lru: NewLRU[domain.ContextResult](capacity, ttl)}
}

// QueryKey derives the cache key for a query and its effective
// parameters. The query text is normalised so trivially different
// spellings of the same question share an entry.
func QueryKey(query string, filter domain.Filter, topK, maxChars int) string {
	h := sha256.New()
	h.Write([]byte(normalizeQuery(query)))
	h.Write([]byte{0})
	h.Write([]byte(filter.Canonical()))
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(topK)))
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(maxChars)))
	return hex.EncodeToString(h.Sum(nil))
}

func normalizeQuery(q string) string {
	return strings.Join(strings.Fields(strings.ToLower(q)), " ")
}

// Get returns the cached result for key.
func (c *QueryCache) Get(key string) (domain.ContextResult, bool) {
	return c.lru.Get(key)
}

// Put stores the result for key.
func (c *QueryCache) Put(key string, res domain.ContextResult) {
	c.lru.Put(key, res)
}

// InvalidateAll drops every cached result. Called whenever documents
// are deleted or re-ingested, since any of them may appear in any
// cached context.
func (c *QueryCache) InvalidateAll() {
	c.lru.Purge()
}

// Len returns the number of cached results.
func (c *QueryCache) Len() int {
	return c.lru.Len()
}
