package service

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"github.com/cloo-solutions/veritexai/internal/cache"
	"github.com/cloo-solutions/veritexai/internal/domain"
	"github.com/cloo-solutions/veritexai/internal/jobs"
)

// InferenceClient defines the interface for generating embeddings in
// batches. Call-level errors mean nothing in the batch was embedded;
// itemErrs marks individual failures.
type InferenceClient interface {
	EmbedBatch(ctx context.Context, texts []string) (vectors [][]float32, itemErrs []error, err error)
	Model() string
	Dimensions() int
}

// Embedding is one output slot of the pipeline. Vector is nil exactly
// when Err is set.
type Embedding struct {
	Vector    []float32
	FromCache bool
	Err       error
}

// EmbeddingConfig controls batching and parallelism.
type EmbeddingConfig struct {
	// BatchSize is how many cache misses go into one inference call.
	BatchSize int
	// Workers bounds concurrent inference calls across all callers.
	Workers int
	// RetryDelay is the base delay before the single retry of a failed
	// batch call.
	RetryDelay time.Duration
}

// DefaultEmbeddingConfig provides sane defaults for the pipeline.
func DefaultEmbeddingConfig() EmbeddingConfig {
	return EmbeddingConfig{
		BatchSize:  64,
		Workers:    8,
		RetryDelay: 500 * time.Millisecond,
	}
}

// EmbeddingPipeline turns texts into vectors through the cache and a
// fixed worker pool. Batching misses is the main throughput lever;
// texts already cached never reach the network.
type EmbeddingPipeline struct {
	client InferenceClient
	cache  *cache.EmbeddingCache
	pool   *jobs.Pool
	cfg    EmbeddingConfig
	log    *logrus.Logger
}

// NewEmbeddingPipeline creates a pipeline and starts its worker pool.
// Call Close to release the workers.
func NewEmbeddingPipeline(client InferenceClient, embCache *cache.EmbeddingCache, cfg EmbeddingConfig, log *logrus.Logger) *EmbeddingPipeline {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultEmbeddingConfig().BatchSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultEmbeddingConfig().Workers
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultEmbeddingConfig().RetryDelay
	}
	if log == nil {
		log = logrus.New()
	}

	pool := jobs.NewPool(cfg.Workers, log)
	pool.Start()

	return &EmbeddingPipeline{
		client: client,
		cache:  embCache,
		pool:   pool,
		cfg:    cfg,
		log:    log,
	}
}

// Close stops the worker pool.
func (p *EmbeddingPipeline) Close() {
	p.pool.Stop()
}

// Model returns the underlying embedding model identifier.
func (p *EmbeddingPipeline) Model() string {
	return p.client.Model()
}

// Dimensions returns the embedding width produced by the pipeline.
func (p *EmbeddingPipeline) Dimensions() int {
	return p.client.Dimensions()
}

// EmbedTexts embeds every text, in order. The result always has
// len(texts) slots; a failed item carries its error in place rather
// than aborting its siblings. Only cancellation fails the whole call,
// after in-flight batches have drained.
func (p *EmbeddingPipeline) EmbedTexts(ctx context.Context, texts []string) ([]Embedding, error) {
	if len(texts) == 0 {
		return []Embedding{}, nil
	}

	result := make([]Embedding, len(texts))
	model := p.client.Model()

	missIdx := make([]int, 0, len(texts))
	for i, text := range texts {
		if vec, ok := p.cache.Get(ctx, model, text); ok {
			result[i] = Embedding{Vector: vec, FromCache: true}
			continue
		}
		missIdx = append(missIdx, i)
	}

	p.log.WithFields(logrus.Fields{
		"texts":  len(texts),
		"hits":   len(texts) - len(missIdx),
		"misses": len(missIdx),
	}).Debug("embedding pipeline dispatch")

	if len(missIdx) == 0 {
		return result, nil
	}

	var wg sync.WaitGroup
	dispatchErr := error(nil)
	for start := 0; start < len(missIdx); start += p.cfg.BatchSize {
		end := start + p.cfg.BatchSize
		if end > len(missIdx) {
			end = len(missIdx)
		}
		batch := missIdx[start:end]

		wg.Add(1)
		err := p.pool.Submit(ctx, func(ctx context.Context) {
			defer wg.Done()
			p.processBatch(ctx, texts, batch, result)
		})
		if err != nil {
			wg.Done()
			dispatchErr = err
			break
		}
	}

	// Wait for in-flight batches even when dispatch stopped early, so
	// no goroutine writes into result after return.
	wg.Wait()

	if dispatchErr != nil {
		return nil, dispatchErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// processBatch embeds one batch of cache misses, retrying a transient
// batch failure once before marking every slot in the batch failed.
func (p *EmbeddingPipeline) processBatch(ctx context.Context, texts []string, batch []int, result []Embedding) {
	if err := ctx.Err(); err != nil {
		for _, i := range batch {
			result[i] = Embedding{Err: err}
		}
		return
	}

	batchTexts := make([]string, len(batch))
	for j, i := range batch {
		batchTexts[j] = texts[i]
	}

	var vectors [][]float32
	var itemErrs []error

	operation := func() error {
		var err error
		vectors, itemErrs, err = p.client.EmbedBatch(ctx, batchTexts)
		if err == nil {
			return nil
		}
		if domain.IsTransient(err) {
			return err
		}
		return backoff.Permanent(err)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.cfg.RetryDelay
	err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(bo, 1), ctx))
	if err != nil {
		p.log.WithError(err).WithField("batch_size", len(batch)).Warn("embedding batch failed")
		for _, i := range batch {
			result[i] = Embedding{Err: err}
		}
		return
	}

	model := p.client.Model()
	for j, i := range batch {
		if itemErrs[j] != nil {
			result[i] = Embedding{Err: itemErrs[j]}
			continue
		}
		result[i] = Embedding{Vector: vectors[j]}
		p.cache.Put(ctx, model, texts[i], vectors[j])
	}
}

// EmbedQuery embeds a single query text through the same cache and
// pool as ingestion.
func (p *EmbeddingPipeline) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	out, err := p.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if out[0].Err != nil {
		return nil, out[0].Err
	}
	return out[0].Vector, nil
}
