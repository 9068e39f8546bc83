package service

import (
	"context"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/cloo-solutions/veritexai/internal/domain"
)

const (
	DefaultRerankTopK         = 12
	DefaultDiversityThreshold = 0.5

	lexicalRetrievalWeight = 0.7
	lexicalOverlapWeight   = 0.3
)

// CrossScorer scores a query against candidate chunks, one score per
// candidate. Higher means more relevant.
type CrossScorer interface {
	Score(ctx context.Context, query string, candidates []domain.ScoredChunk) ([]float64, error)
}

// LexicalScorer is the default CrossScorer. It blends the combined
// retrieval score with the fraction of query terms present in the
// chunk, so it is deterministic and needs no model call. A
// cross-encoder backed scorer can be swapped in through the same
// interface.
type LexicalScorer struct{}

// Score implements CrossScorer.
func (s *LexicalScorer) Score(_ context.Context, query string, candidates []domain.ScoredChunk) ([]float64, error) {
	queryTerms := tokenSet(query)
	scores := make([]float64, len(candidates))
	for i, c := range candidates {
		scores[i] = lexicalRetrievalWeight*c.Score + lexicalOverlapWeight*overlapRatio(queryTerms, tokenSet(c.Content))
	}
	return scores, nil
}

// RerankConfig tunes candidate selection.
type RerankConfig struct {
	// TopK is how many chunks survive reranking.
	TopK int
	// DiversityThreshold rejects a candidate whose token-set Jaccard
	// similarity to an already accepted chunk exceeds it.
	DiversityThreshold float64
	// ChunkOverlap mirrors the chunker's overlap setting. Adjacent
	// chunks of one document only repeat text when this is above zero,
	// so adjacency suppression is tied to it.
	ChunkOverlap int
}

// DefaultRerankConfig provides the standard reranking parameters.
func DefaultRerankConfig() RerankConfig {
	return RerankConfig{
		TopK:               DefaultRerankTopK,
		DiversityThreshold: DefaultDiversityThreshold,
		ChunkOverlap:       DefaultChunkConfig().Overlap,
	}
}

// Reranker reorders retrieval candidates by cross score, drops
// near-duplicates, and returns the survivors in reading order.
type Reranker struct {
	scorer CrossScorer
	cfg    RerankConfig
	log    *logrus.Logger
}

// NewReranker creates a reranker. A nil scorer falls back to the
// lexical default.
func NewReranker(scorer CrossScorer, cfg RerankConfig, log *logrus.Logger) *Reranker {
	if scorer == nil {
		scorer = &LexicalScorer{}
	}
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultRerankTopK
	}
	if cfg.DiversityThreshold <= 0 {
		cfg.DiversityThreshold = DefaultDiversityThreshold
	}
	if log == nil {
		log = logrus.New()
	}
	return &Reranker{
		scorer: scorer,
		cfg:    cfg,
		log:    log,
	}
}

// Rerank selects up to topK chunks from the candidate head and returns
// them in reading order: documents ordered by their best chunk's score,
// chunks within a document by index. Fewer than topK survivors are
// returned as-is; nothing is padded back in.
func (r *Reranker) Rerank(ctx context.Context, query string, candidates []domain.ScoredChunk, topK int) ([]domain.ScoredChunk, error) {
	if topK <= 0 {
		topK = r.cfg.TopK
	}
	if len(candidates) == 0 {
		return []domain.ScoredChunk{}, nil
	}

	head := candidates
	if limit := 2 * topK; len(head) > limit {
		head = head[:limit]
	}

	scores, err := r.scorer.Score(ctx, query, head)
	if err != nil || len(scores) != len(head) {
		// Retrieval order already carries signal; losing the cross
		// scores degrades ranking, not correctness.
		r.log.WithError(err).Warn("cross scoring failed, falling back to retrieval scores")
		scores = make([]float64, len(head))
		for i := range head {
			scores[i] = head[i].Score
		}
	}

	order := make([]int, len(head))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		i, j := order[a], order[b]
		if scores[i] != scores[j] {
			return scores[i] > scores[j]
		}
		if head[i].DocumentID != head[j].DocumentID {
			return head[i].DocumentID < head[j].DocumentID
		}
		return head[i].Index < head[j].Index
	})

	tokens := make([]map[string]struct{}, len(head))
	for i := range head {
		tokens[i] = tokenSet(head[i].Content)
	}

	accepted := make([]int, 0, topK)
	for _, i := range order {
		if len(accepted) == topK {
			break
		}
		if r.rejected(i, accepted, head, tokens) {
			continue
		}
		accepted = append(accepted, i)
	}

	out := make([]domain.ScoredChunk, 0, len(accepted))
	for _, i := range accepted {
		sc := head[i]
		sc.Score = scores[i]
		out = append(out, sc)
	}
	return readingOrder(out), nil
}

// rejected applies the diversity and adjacency rules against the
// already accepted set. Walking in score order means the rejected
// chunk is always the lower scoring of the pair.
func (r *Reranker) rejected(i int, accepted []int, head []domain.ScoredChunk, tokens []map[string]struct{}) bool {
	for _, a := range accepted {
		if jaccard(tokens[i], tokens[a]) > r.cfg.DiversityThreshold {
			return true
		}
		if r.cfg.ChunkOverlap > 0 && head[i].DocumentID == head[a].DocumentID {
			diff := head[i].Index - head[a].Index
			if diff >= -1 && diff <= 1 {
				return true
			}
		}
	}
	return false
}

// readingOrder groups the chunks by document, orders documents by
// their best score, and sorts chunks within a document by index.
func readingOrder(chunks []domain.ScoredChunk) []domain.ScoredChunk {
	best := make(map[string]float64)
	for _, c := range chunks {
		if s, ok := best[c.DocumentID]; !ok || c.Score > s {
			best[c.DocumentID] = c.Score
		}
	}
	sort.Slice(chunks, func(i, j int) bool {
		if chunks[i].DocumentID != chunks[j].DocumentID {
			bi, bj := best[chunks[i].DocumentID], best[chunks[j].DocumentID]
			if bi != bj {
				return bi > bj
			}
			return chunks[i].DocumentID < chunks[j].DocumentID
		}
		return chunks[i].Index < chunks[j].Index
	})
	return chunks
}

func tokenSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range tokenize(text) {
		set[tok] = struct{}{}
	}
	return set
}

// jaccard computes token-set similarity. Two empty sets count as
// dissimilar so blank chunks never suppress each other.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for tok := range a {
		if _, ok := b[tok]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

// overlapRatio is the fraction of query terms present in the chunk.
func overlapRatio(query, chunk map[string]struct{}) float64 {
	if len(query) == 0 {
		return 0
	}
	hits := 0
	for tok := range query {
		if _, ok := chunk[tok]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(query))
}
