package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cloo-solutions/veritexai/internal/domain"
)

// QueryEmbedder turns a query into its vector, normally the embedding
// pipeline so query vectors share the ingestion cache.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// ChunkSearcher is the read side of the vector store. Search returns
// the nearest chunks by cosine similarity, at most limit of them, all
// with similarity >= minSimilarity and matching the filter.
type ChunkSearcher interface {
	Search(ctx context.Context, vector []float32, limit int, minSimilarity float64, filter domain.Filter) ([]domain.ScoredChunk, error)
}

// RetrievalConfig tunes the hybrid retrieval stage.
type RetrievalConfig struct {
	// TopKCandidates is how many nearest neighbors to pull from the
	// vector store before keyword scoring.
	TopKCandidates int
	// MinSimilarity drops candidates below this cosine similarity.
	MinSimilarity float64
	// SemanticWeight balances vector similarity against the keyword
	// score in the combined ranking.
	SemanticWeight float64
	BM25K1         float64
	BM25B          float64
}

// DefaultRetrievalConfig provides the standard retrieval parameters.
func DefaultRetrievalConfig() RetrievalConfig {
	return RetrievalConfig{
		TopKCandidates: 40,
		MinSimilarity:  0.28,
		SemanticWeight: 0.70,
		BM25K1:         DefaultBM25K1,
		BM25B:          DefaultBM25B,
	}
}

// HybridRetriever ranks chunks by a blend of vector similarity and
// keyword relevance. The keyword signal is BM25 scored within the
// retrieved candidate set, then min-max normalized, so it reorders
// candidates rather than gating them.
type HybridRetriever struct {
	embedder QueryEmbedder
	store    ChunkSearcher
	cfg      RetrievalConfig
	log      *logrus.Logger
}

// NewHybridRetriever creates a retriever over the given embedder and
// chunk store.
func NewHybridRetriever(embedder QueryEmbedder, store ChunkSearcher, cfg RetrievalConfig, log *logrus.Logger) *HybridRetriever {
	def := DefaultRetrievalConfig()
	if cfg.TopKCandidates <= 0 {
		cfg.TopKCandidates = def.TopKCandidates
	}
	if cfg.MinSimilarity <= 0 {
		cfg.MinSimilarity = def.MinSimilarity
	}
	if cfg.SemanticWeight <= 0 || cfg.SemanticWeight > 1 {
		cfg.SemanticWeight = def.SemanticWeight
	}
	if cfg.BM25K1 <= 0 {
		cfg.BM25K1 = def.BM25K1
	}
	if cfg.BM25B <= 0 {
		cfg.BM25B = def.BM25B
	}
	if log == nil {
		log = logrus.New()
	}
	return &HybridRetriever{
		embedder: embedder,
		store:    store,
		cfg:      cfg,
		log:      log,
	}
}

// Retrieve returns up to k chunks ranked by combined score. An empty
// result means nothing cleared the similarity floor, which is a valid
// answer, not an error.
func (r *HybridRetriever) Retrieve(ctx context.Context, query string, k int, filter domain.Filter) ([]domain.ScoredChunk, error) {
	start := time.Now()

	vector, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	candidates, err := r.store.Search(ctx, vector, r.cfg.TopKCandidates, r.cfg.MinSimilarity, filter)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	if len(candidates) == 0 {
		return []domain.ScoredChunk{}, nil
	}

	texts := make([]string, len(candidates))
	for i := range candidates {
		texts[i] = candidates[i].Content
	}
	raw := newBM25Index(texts, r.cfg.BM25K1, r.cfg.BM25B).Score(query)
	norm := minMaxNormalize(raw)

	for i := range candidates {
		candidates[i].KeywordScore = raw[i]
		candidates[i].Score = r.cfg.SemanticWeight*candidates[i].Similarity + (1-r.cfg.SemanticWeight)*norm[i]
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		if candidates[i].DocumentID != candidates[j].DocumentID {
			return candidates[i].DocumentID < candidates[j].DocumentID
		}
		return candidates[i].Index < candidates[j].Index
	})

	if k > 0 && len(candidates) > k {
		candidates = candidates[:k]
	}

	r.log.WithFields(logrus.Fields{
		"candidates": len(texts),
		"returned":   len(candidates),
		"duration":   time.Since(start),
	}).Debug("hybrid retrieval complete")

	return candidates, nil
}
