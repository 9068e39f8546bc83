package cache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cloo-solutions/veritexai/internal/domain"
)

// Embedding cache defaults.
const (
	DefaultEmbeddingCapacity = 5000
	DefaultEmbeddingTTL      = 7 * 24 * time.Hour
)

// TierStore is an optional persistence tier behind the in-memory
// embedding cache, typically Redis. A miss is (nil, false, nil); errors
// mean the tier itself is unreachable.
type TierStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// EmbeddingCache caches embedding vectors keyed by model and content
// hash, so re-ingesting unchanged documents skips inference entirely.
// Safe for concurrent use.
type EmbeddingCache struct {
	mem  *LRU[[]float32]
	tier TierStore
	ttl  time.Duration
	log  *logrus.Logger
}

// NewEmbeddingCache creates an embedding cache with the given capacity
// and TTL. tier may be nil for memory-only operation; log may be nil.
func NewEmbeddingCache(capacity int, ttl time.Duration, tier TierStore, log *logrus.Logger) *EmbeddingCache {
	if capacity <= 0 {
		capacity = DefaultEmbeddingCapacity
	}
	if ttl <= 0 {
		ttl = DefaultEmbeddingTTL
	}
	if log == nil {
		log = logrus.New()
	}
	return &EmbeddingCache{
		mem:  NewLRU[[]float32](capacity, ttl),
		tier: tier,
		ttl:  ttl,
		log:  log,
	}
}

// EmbeddingKey derives the cache key for a model/text pair. The text is
// hashed, not stored, so arbitrarily large chunks key cheaply.
func EmbeddingKey(model, text string) string {
	h := sha256.New()
	h.Write([]byte(model))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns the cached vector for the model/text pair. The
// persistence tier is consulted on a memory miss; a tier hit refills
// memory. Corrupted tier entries are deleted and reported as misses.
func (c *EmbeddingCache) Get(ctx context.Context, model, text string) ([]float32, bool) {
	key := EmbeddingKey(model, text)

	if vec, ok := c.mem.Get(key); ok {
		return vec, true
	}

	if c.tier == nil {
		return nil, false
	}

	payload, found, err := c.tier.Get(ctx, key)
	if err != nil {
		c.log.WithError(err).Warn("embedding cache tier unavailable, serving memory only")
		return nil, false
	}
	if !found {
		return nil, false
	}

	vec, err := decodeVector(payload)
	if err != nil {
		c.log.WithError(err).WithField("key", key).Warn("corrupted embedding cache entry, dropping")
		if delErr := c.tier.Delete(ctx, key); delErr != nil {
			c.log.WithError(delErr).WithField("key", key).Warn("failed to drop corrupted cache entry")
		}
		return nil, false
	}

	c.mem.Put(key, vec)
	return vec, true
}

// Put stores the vector in memory and writes through to the persistence
// tier when one is configured. Tier failures degrade to memory-only.
func (c *EmbeddingCache) Put(ctx context.Context, model, text string, vec []float32) {
	if len(vec) == 0 {
		return
	}
	key := EmbeddingKey(model, text)
	c.mem.Put(key, vec)

	if c.tier == nil {
		return
	}
	if err := c.tier.Set(ctx, key, encodeVector(vec), c.ttl); err != nil {
		c.log.WithError(err).Warn("embedding cache tier write failed")
	}
}

// Invalidate removes the entry for the model/text pair from both tiers.
func (c *EmbeddingCache) Invalidate(ctx context.Context, model, text string) {
	key := EmbeddingKey(model, text)
	c.mem.Delete(key)
	if c.tier != nil {
		if err := c.tier.Delete(ctx, key); err != nil {
			c.log.WithError(err).Warn("embedding cache tier delete failed")
		}
	}
}

// Len returns the number of entries resident in memory.
func (c *EmbeddingCache) Len() int {
	return c.mem.Len()
}

// Purge empties the in-memory cache. Tier entries expire by TTL.
func (c *EmbeddingCache) Purge() {
	c.mem.Purge()
}

// Vectors persist as a little-endian dimension header followed by the
// float32 components.
func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4+4*len(vec))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(vec)))
	for i, f := range vec {
		binary.LittleEndian.PutUint32(buf[4+4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) ([]float32, error) {
	if len(b) < 4 {
		return nil, domain.NewDomainError(domain.ErrCodeCacheCorruption, "embedding payload too short")
	}
	dim := binary.LittleEndian.Uint32(b[0:4])
	if int(dim) < 0 || len(b) != 4+4*int(dim) {
		return nil, domain.NewDomainError(domain.ErrCodeCacheCorruption, "embedding payload length mismatch")
	}
	vec := make([]float32, dim)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4+4*i:]))
	}
	return vec, nil
}
