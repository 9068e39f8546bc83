package cache

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testModel = "text-embedding-3-small"

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// fakeTier is an in-process TierStore with switchable failure modes.
type fakeTier struct {
	data    map[string][]byte
	failing bool
	deletes []string
}

func newFakeTier() *fakeTier {
	return &fakeTier{data: make(map[string][]byte)}
}

func (f *fakeTier) Get(_ context.Context, key string) ([]byte, bool, error) {
	if f.failing {
		return nil, false, assert.AnError
	}
	v, ok := f.data[key]
	return v, ok, nil
}

func (f *fakeTier) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	if f.failing {
		return assert.AnError
	}
	f.data[key] = value
	return nil
}

func (f *fakeTier) Delete(_ context.Context, key string) error {
	f.deletes = append(f.deletes, key)
	delete(f.data, key)
	return nil
}

func TestEmbeddingKeyDependsOnModelAndText(t *testing.T) {
	k1 := EmbeddingKey(testModel, "hello world")
	k2 := EmbeddingKey(testModel, "hello world")
	assert.Equal(t, k1, k2)

	assert.NotEqual(t, k1, EmbeddingKey(testModel, "hello worlds"))
	assert.NotEqual(t, k1, EmbeddingKey("other-model", "hello world"))
	assert.Len(t, k1, 64)
}

func TestEmbeddingCacheMemoryHit(t *testing.T) {
	ctx := context.Background()
	c := NewEmbeddingCache(10, time.Hour, nil, quietLogger())

	_, ok := c.Get(ctx, testModel, "some chunk text")
	require.False(t, ok)

	vec := []float32{0.1, 0.2, 0.3}
	c.Put(ctx, testModel, "some chunk text", vec)

	got, ok := c.Get(ctx, testModel, "some chunk text")
	require.True(t, ok)
	assert.Equal(t, vec, got)
	assert.Equal(t, 1, c.Len())
}

func TestEmbeddingCacheTierHitRefillsMemory(t *testing.T) {
	ctx := context.Background()
	tier := newFakeTier()
	c := NewEmbeddingCache(10, time.Hour, tier, quietLogger())

	vec := []float32{1.5, -2.25, 0}
	c.Put(ctx, testModel, "persisted chunk", vec)
	require.Equal(t, 1, c.Len())

	// Simulate a restart: memory gone, tier still warm.
	c.Purge()
	require.Equal(t, 0, c.Len())

	got, ok := c.Get(ctx, testModel, "persisted chunk")
	require.True(t, ok)
	assert.Equal(t, vec, got)
	assert.Equal(t, 1, c.Len(), "tier hit should refill memory")
}

func TestEmbeddingCacheCorruptedTierEntry(t *testing.T) {
	ctx := context.Background()
	tier := newFakeTier()
	c := NewEmbeddingCache(10, time.Hour, tier, quietLogger())

	key := EmbeddingKey(testModel, "chunk")
	tier.data[key] = []byte{0xde, 0xad, 0xbe} // truncated payload

	_, ok := c.Get(ctx, testModel, "chunk")
	assert.False(t, ok, "corrupted entry must read as a miss")
	assert.Equal(t, []string{key}, tier.deletes, "corrupted entry must be dropped")
	_, stillThere := tier.data[key]
	assert.False(t, stillThere)
}

func TestEmbeddingCacheTierLengthMismatch(t *testing.T) {
	ctx := context.Background()
	tier := newFakeTier()
	c := NewEmbeddingCache(10, time.Hour, tier, quietLogger())

	// Valid header claiming 8 floats, body holding 2.
	key := EmbeddingKey(testModel, "chunk")
	payload := encodeVector([]float32{1, 2})
	payload[0] = 8
	tier.data[key] = payload

	_, ok := c.Get(ctx, testModel, "chunk")
	assert.False(t, ok)
	assert.Contains(t, tier.deletes, key)
}

func TestEmbeddingCacheTierUnavailableDegrades(t *testing.T) {
	ctx := context.Background()
	tier := newFakeTier()
	tier.failing = true
	c := NewEmbeddingCache(10, time.Hour, tier, quietLogger())

	// Writes and reads keep working against memory.
	vec := []float32{0.5}
	c.Put(ctx, testModel, "chunk", vec)

	got, ok := c.Get(ctx, testModel, "chunk")
	require.True(t, ok)
	assert.Equal(t, vec, got)

	c.Purge()
	_, ok = c.Get(ctx, testModel, "chunk")
	assert.False(t, ok)
}

func TestEmbeddingCacheInvalidate(t *testing.T) {
	ctx := context.Background()
	tier := newFakeTier()
	c := NewEmbeddingCache(10, time.Hour, tier, quietLogger())

	c.Put(ctx, testModel, "chunk", []float32{1})
	c.Invalidate(ctx, testModel, "chunk")

	_, ok := c.Get(ctx, testModel, "chunk")
	assert.False(t, ok)
	assert.Empty(t, tier.data)
}

func TestVectorEncodeDecode(t *testing.T) {
	tests := []struct {
		name string
		vec  []float32
	}{
		{"empty", []float32{}},
		{"single", []float32{3.14}},
		{"negatives and zeros", []float32{-1.5, 0, 2.25, -0.001}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeVector(encodeVector(tt.vec))
			require.NoError(t, err)
			assert.Equal(t, tt.vec, got)
		})
	}
}

func TestVectorDecodeRejectsGarbage(t *testing.T) {
	_, err := decodeVector(nil)
	assert.Error(t, err)

	_, err = decodeVector([]byte{1, 2})
	assert.Error(t, err)

	_, err = decodeVector([]byte{2, 0, 0, 0, 1, 2, 3}) // claims 2 floats, 3 bytes of body
	assert.Error(t, err)
}
