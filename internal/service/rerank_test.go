package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/cloo-solutions/veritexai/internal/domain"
)

// MockCrossScorer mocks the reranking scorer.
type MockCrossScorer struct {
	mock.Mock
}

func (m *MockCrossScorer) Score(ctx context.Context, query string, candidates []domain.ScoredChunk) ([]float64, error) {
	args := m.Called(ctx, query, candidates)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]float64), args.Error(1)
}

func scored(docID string, index int, content string, score float64) domain.ScoredChunk {
	c := candidate(docID, index, content, score)
	c.Score = score
	return c
}

func newTestReranker(cfg RerankConfig) *Reranker {
	return NewReranker(nil, cfg, quietLogger())
}

func TestLexicalScorer_BlendsRetrievalAndOverlap(t *testing.T) {
	scorer := &LexicalScorer{}
	candidates := []domain.ScoredChunk{
		scored("doc-a", 0, "cache invalidation strategies", 1.0),
		scored("doc-b", 0, "unrelated text entirely", 1.0),
		scored("doc-c", 0, "the cache layer", 0.0),
	}

	scores, err := scorer.Score(context.Background(), "cache invalidation", candidates)

	require.NoError(t, err)
	require.Len(t, scores, 3)
	assert.InDelta(t, 1.0, scores[0], 1e-9)
	assert.InDelta(t, 0.7, scores[1], 1e-9)
	assert.InDelta(t, 0.15, scores[2], 1e-9)
}

func TestReranker_OrdersByScoreWithinTopK(t *testing.T) {
	r := newTestReranker(RerankConfig{})
	candidates := []domain.ScoredChunk{
		scored("doc-a", 0, "alpha material", 0.50),
		scored("doc-b", 0, "beta material", 0.90),
		scored("doc-c", 0, "gamma material", 0.70),
	}

	out, err := r.Rerank(context.Background(), "zebra", candidates, 2)

	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "doc-b", out[0].DocumentID)
	assert.InDelta(t, 0.63, out[0].Score, 1e-9)
	assert.Equal(t, "doc-c", out[1].DocumentID)
	assert.InDelta(t, 0.49, out[1].Score, 1e-9)
}

func TestReranker_DiversityDropsNearDuplicates(t *testing.T) {
	r := newTestReranker(RerankConfig{})
	candidates := []domain.ScoredChunk{
		scored("doc-a", 0, "the quick brown fox jumps over the lazy dog", 1.0),
		scored("doc-b", 0, "the quick brown fox jumps over the lazy dog today", 0.9),
		scored("doc-c", 0, "completely different content about postgres", 0.5),
	}

	out, err := r.Rerank(context.Background(), "zebra", candidates, 2)

	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "doc-a", out[0].DocumentID)
	assert.Equal(t, "doc-c", out[1].DocumentID)
}

func TestReranker_AdjacentChunksSuppressedWhenOverlapConfigured(t *testing.T) {
	r := newTestReranker(RerankConfig{ChunkOverlap: 150})
	candidates := []domain.ScoredChunk{
		scored("doc-a", 3, "postgres indexes speed up lookups", 1.0),
		scored("doc-a", 4, "vacuum reclaims dead tuples", 0.9),
		scored("doc-a", 7, "replication streams wal segments", 0.8),
	}

	out, err := r.Rerank(context.Background(), "zebra", candidates, 3)

	require.NoError(t, err)
	// Chunk 4 repeats chunk 3's tail, so only the higher scoring of
	// the pair survives. Nothing is padded in to reach topK.
	require.Len(t, out, 2)
	assert.Equal(t, 3, out[0].Index)
	assert.Equal(t, 7, out[1].Index)
}

func TestReranker_AdjacentChunksKeptWithoutOverlap(t *testing.T) {
	r := newTestReranker(RerankConfig{ChunkOverlap: 0})
	candidates := []domain.ScoredChunk{
		scored("doc-a", 3, "postgres indexes speed up lookups", 1.0),
		scored("doc-a", 4, "vacuum reclaims dead tuples", 0.9),
		scored("doc-a", 7, "replication streams wal segments", 0.8),
	}

	out, err := r.Rerank(context.Background(), "zebra", candidates, 3)

	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, []int{3, 4, 7}, []int{out[0].Index, out[1].Index, out[2].Index})
}

func TestReranker_ReadingOrderAcrossDocuments(t *testing.T) {
	r := newTestReranker(RerankConfig{})
	candidates := []domain.ScoredChunk{
		scored("doc-a", 2, "alpha two", 0.90),
		scored("doc-b", 0, "beta zero", 1.0),
		scored("doc-a", 0, "alpha zero", 0.85),
		scored("doc-b", 5, "beta five", 0.70),
	}

	out, err := r.Rerank(context.Background(), "zebra", candidates, 4)

	require.NoError(t, err)
	require.Len(t, out, 4)
	// doc-b holds the best chunk, so its chunks come first, each
	// document in ascending chunk order.
	want := []struct {
		doc   string
		index int
	}{
		{"doc-b", 0},
		{"doc-b", 5},
		{"doc-a", 0},
		{"doc-a", 2},
	}
	for i, w := range want {
		assert.Equal(t, w.doc, out[i].DocumentID, "position %d", i)
		assert.Equal(t, w.index, out[i].Index, "position %d", i)
	}
}

func TestReranker_ScoresOnlyTheCandidateHead(t *testing.T) {
	r := newTestReranker(RerankConfig{})
	candidates := []domain.ScoredChunk{
		scored("doc-a", 0, "something else entirely", 0.50),
		scored("doc-b", 0, "another thing", 0.40),
		// Would win on lexical overlap, but sits beyond the 2*topK head.
		scored("doc-c", 0, "alpha beta", 0.10),
	}

	out, err := r.Rerank(context.Background(), "alpha beta", candidates, 1)

	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "doc-a", out[0].DocumentID)
}

func TestReranker_EmptyCandidates(t *testing.T) {
	r := newTestReranker(RerankConfig{})

	out, err := r.Rerank(context.Background(), "anything", nil, 5)

	require.NoError(t, err)
	assert.Empty(t, out)
	assert.NotNil(t, out)
}

func TestReranker_FewerSurvivorsThanTopK(t *testing.T) {
	r := newTestReranker(RerankConfig{})
	candidates := []domain.ScoredChunk{
		scored("doc-a", 0, "alpha material", 0.9),
		scored("doc-b", 0, "beta material", 0.8),
	}

	out, err := r.Rerank(context.Background(), "zebra", candidates, 12)

	require.NoError(t, err)
	assert.Len(t, out, 2)
}

func TestReranker_ScorerFailureFallsBackToRetrievalOrder(t *testing.T) {
	mockScorer := new(MockCrossScorer)
	mockScorer.On("Score", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New("scorer offline"))

	r := NewReranker(mockScorer, RerankConfig{}, quietLogger())
	candidates := []domain.ScoredChunk{
		scored("doc-a", 0, "alpha material", 0.2),
		scored("doc-b", 0, "beta material", 0.9),
	}

	out, err := r.Rerank(context.Background(), "zebra", candidates, 2)

	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "doc-b", out[0].DocumentID)
	assert.InDelta(t, 0.9, out[0].Score, 1e-9)
	assert.Equal(t, "doc-a", out[1].DocumentID)
}

func TestJaccard(t *testing.T) {
	tests := []struct {
		name string
		a    string
		b    string
		want float64
	}{
		{"identical", "alpha beta gamma", "alpha beta gamma", 1.0},
		{"disjoint", "alpha beta", "gamma delta", 0.0},
		{"partial", "alpha beta gamma delta", "gamma delta epsilon zeta", 1.0 / 3.0},
		{"one empty", "alpha", "", 0.0},
		{"both empty", "", "", 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := jaccard(tokenSet(tt.a), tokenSet(tt.b))
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}
