package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cloo-solutions/veritexai/internal/cache"
	"github.com/cloo-solutions/veritexai/internal/domain"
)

// DefaultQueryTimeout bounds a query when the caller's context has no
// deadline of its own.
const DefaultQueryTimeout = 10 * time.Second

// Retriever produces scored candidates for a query.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int, filter domain.Filter) ([]domain.ScoredChunk, error)
}

// ChunkReranker reduces candidates to the final topK in reading order.
type ChunkReranker interface {
	Rerank(ctx context.Context, query string, candidates []domain.ScoredChunk, topK int) ([]domain.ScoredChunk, error)
}

// ContextBuilder renders the final chunks into bounded context text.
type ContextBuilder interface {
	Assemble(chunks []domain.ScoredChunk, maxChars int) domain.ContextResult
}

// QueryConfig tunes the query path.
type QueryConfig struct {
	// TopK is the default number of chunks in the final context.
	TopK int
	// MaxContextChars is the default context size bound.
	MaxContextChars int
	// Timeout applies when the caller's context has no deadline.
	Timeout time.Duration
}

// DefaultQueryConfig provides the standard query parameters.
func DefaultQueryConfig() QueryConfig {
	return QueryConfig{
		TopK:            DefaultRerankTopK,
		MaxContextChars: DefaultMaxContextChars,
		Timeout:         DefaultQueryTimeout,
	}
}

// QueryOptions are per-call overrides. Zero values fall back to the
// service configuration.
type QueryOptions struct {
	TopK            int
	MaxContextChars int
	Filter          domain.Filter
}

// QueryService answers queries by running retrieval, reranking, and
// assembly, with a result cache in front of the whole pipeline.
type QueryService struct {
	retriever Retriever
	reranker  ChunkReranker
	assembler ContextBuilder
	qcache    *cache.QueryCache
	cfg       QueryConfig
	log       *logrus.Logger
}

// NewQueryService wires the query path together.
func NewQueryService(retriever Retriever, reranker ChunkReranker, assembler ContextBuilder, qcache *cache.QueryCache, cfg QueryConfig, log *logrus.Logger) *QueryService {
	def := DefaultQueryConfig()
	if cfg.TopK <= 0 {
		cfg.TopK = def.TopK
	}
	if cfg.MaxContextChars <= 0 {
		cfg.MaxContextChars = def.MaxContextChars
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if qcache == nil {
		qcache = cache.NewQueryCache(0, 0)
	}
	if log == nil {
		log = logrus.New()
	}
	return &QueryService{
		retriever: retriever,
		reranker:  reranker,
		assembler: assembler,
		qcache:    qcache,
		cfg:       cfg,
		log:       log,
	}
}

// Query retrieves, reranks, and assembles context for the query text.
// An empty corpus or a query matching nothing yields an empty result
// with no error; a blank query is invalid input. On timeout or
// cancellation no partial result is returned.
func (s *QueryService) Query(ctx context.Context, query string, opts QueryOptions) (domain.ContextResult, error) {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return domain.ContextResult{}, domain.ErrEmptyQuery
	}

	topK := opts.TopK
	if topK <= 0 {
		topK = s.cfg.TopK
	}
	maxChars := opts.MaxContextChars
	if maxChars <= 0 {
		maxChars = s.cfg.MaxContextChars
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	key := cache.QueryKey(trimmed, opts.Filter, topK, maxChars)
	if result, ok := s.qcache.Get(key); ok {
		s.log.WithField("query", trimmed).Debug("query cache hit")
		return result, nil
	}

	start := time.Now()
	candidates, err := s.retriever.Retrieve(ctx, trimmed, 2*topK, opts.Filter)
	if err != nil {
		return domain.ContextResult{}, fmt.Errorf("retrieve: %w", err)
	}
	retrieved := time.Now()

	ranked, err := s.reranker.Rerank(ctx, trimmed, candidates, topK)
	if err != nil {
		return domain.ContextResult{}, fmt.Errorf("rerank: %w", err)
	}
	reranked := time.Now()

	result := s.assembler.Assemble(ranked, maxChars)

	if err := ctx.Err(); err != nil {
		return domain.ContextResult{}, fmt.Errorf("query aborted: %w", err)
	}

	s.qcache.Put(key, result)

	s.log.WithFields(logrus.Fields{
		"candidates":  len(candidates),
		"chunks":      len(result.Chunks),
		"retrieve_ms": retrieved.Sub(start).Milliseconds(),
		"rerank_ms":   reranked.Sub(retrieved).Milliseconds(),
		"assemble_ms": time.Since(reranked).Milliseconds(),
	}).Debug("query answered")

	return result, nil
}

// InvalidateCache drops every cached query result.
func (s *QueryService) InvalidateCache() {
	s.qcache.InvalidateAll()
}
