//go:build integration

package vectorstore

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloo-solutions/veritexai/internal/domain"
	"github.com/cloo-solutions/veritexai/internal/testutil"
)

func qdrantRec(docID string, index int, vec []float32, content string) domain.ChunkRecord {
	return domain.ChunkRecord{
		Chunk: domain.Chunk{
			ID:           uuid.NewString(),
			DocumentID:   docID,
			Index:        index,
			Content:      content,
			SectionTitle: "Setup",
			PageNumber:   2,
			CharStart:    10,
			CharEnd:      10 + len(content),
		},
		Filename: docID + ".md",
		FileType: "md",
		Vector:   vec,
	}
}

func TestQdrantStore_ReplaceSearchDelete(t *testing.T) {
	ctx := context.Background()
	qc := testutil.NewQdrantContainer(ctx, t)
	defer qc.Terminate(ctx)

	store, err := NewQdrantStore(ctx, qc.Host, qc.GRPCPort, 4)
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Replace(ctx, "doc-a", []domain.ChunkRecord{
		qdrantRec("doc-a", 0, []float32{1, 0, 0, 0}, "aligned"),
		qdrantRec("doc-a", 1, []float32{1, 1, 0, 0}, "diagonal"),
	}))
	require.NoError(t, store.Replace(ctx, "doc-b", []domain.ChunkRecord{
		qdrantRec("doc-b", 0, []float32{0, 1, 0, 0}, "orthogonal"),
	}))

	t.Run("orders by similarity and restores payload", func(t *testing.T) {
		hits, err := store.Search(ctx, []float32{1, 0, 0, 0}, 10, 0, domain.Filter{})
		require.NoError(t, err)
		require.Len(t, hits, 3)

		assert.Equal(t, "aligned", hits[0].Content)
		assert.InDelta(t, 1.0, hits[0].Similarity, 1e-4)
		assert.Equal(t, "diagonal", hits[1].Content)
		assert.InDelta(t, 0.7071, hits[1].Similarity, 1e-3)

		first := hits[0]
		assert.Equal(t, "doc-a", first.DocumentID)
		assert.Equal(t, 0, first.Index)
		assert.Equal(t, "Setup", first.SectionTitle)
		assert.Equal(t, 2, first.PageNumber)
		assert.Equal(t, "doc-a.md", first.Filename)
		assert.Equal(t, 10, first.CharStart)
	})

	t.Run("min similarity threshold", func(t *testing.T) {
		hits, err := store.Search(ctx, []float32{1, 0, 0, 0}, 10, 0.5, domain.Filter{})
		require.NoError(t, err)
		require.Len(t, hits, 2)
	})

	t.Run("document filter", func(t *testing.T) {
		hits, err := store.Search(ctx, []float32{1, 0, 0, 0}, 10, 0, domain.Filter{DocumentID: "doc-b"})
		require.NoError(t, err)
		require.Len(t, hits, 1)
		assert.Equal(t, "orthogonal", hits[0].Content)
	})

	t.Run("replace swaps points", func(t *testing.T) {
		require.NoError(t, store.Replace(ctx, "doc-a", []domain.ChunkRecord{
			qdrantRec("doc-a", 0, []float32{0, 0, 1, 0}, "replacement"),
		}))

		hits, err := store.Search(ctx, []float32{0, 0, 1, 0}, 10, 0, domain.Filter{DocumentID: "doc-a"})
		require.NoError(t, err)
		require.Len(t, hits, 1)
		assert.Equal(t, "replacement", hits[0].Content)
	})

	t.Run("delete document", func(t *testing.T) {
		require.NoError(t, store.DeleteDocument(ctx, "doc-a"))
		require.NoError(t, store.DeleteDocument(ctx, "doc-a"))

		hits, err := store.Search(ctx, []float32{0, 0, 1, 0}, 10, 0, domain.Filter{DocumentID: "doc-a"})
		require.NoError(t, err)
		assert.Empty(t, hits)
	})
}
