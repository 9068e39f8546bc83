package e2e

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/cloo-solutions/veritexai/internal/cache"
	"github.com/cloo-solutions/veritexai/internal/domain"
	"github.com/cloo-solutions/veritexai/internal/loader"
	"github.com/cloo-solutions/veritexai/internal/service"
	"github.com/cloo-solutions/veritexai/internal/vectorstore"
)

const fakeDims = 64

// fakeInference embeds text as a normalized bag-of-words vector over
// hashed token buckets. Texts sharing vocabulary land close together
// in cosine space, which is all the scenarios need. Deterministic.
type fakeInference struct {
	mu        sync.Mutex
	calls     int
	failTexts map[string]error
}

func newFakeInference() *fakeInference {
	return &fakeInference{failTexts: make(map[string]error)}
}

// failOn fails every text containing the given marker substring.
func (f *fakeInference) failOn(marker string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failTexts[marker] = err
}

func (f *fakeInference) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeInference) Model() string   { return "fake-embedding-model" }
func (f *fakeInference) Dimensions() int { return fakeDims }

func (f *fakeInference) EmbedBatch(ctx context.Context, texts []string) ([][]float32, []error, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	f.mu.Lock()
	f.calls++
	failTexts := make(map[string]error, len(f.failTexts))
	for k, v := range f.failTexts {
		failTexts[k] = v
	}
	f.mu.Unlock()

	vectors := make([][]float32, len(texts))
	itemErrs := make([]error, len(texts))
	for i, text := range texts {
		if err := matchFailure(failTexts, text); err != nil {
			itemErrs[i] = err
			continue
		}
		vectors[i] = embedText(text)
	}
	return vectors, itemErrs, nil
}

func matchFailure(failTexts map[string]error, text string) error {
	for marker, err := range failTexts {
		if strings.Contains(text, marker) {
			return err
		}
	}
	return nil
}

func embedText(text string) []float32 {
	vec := make([]float32, fakeDims)
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		tok = strings.Trim(tok, ".,;:!?()[]#|-")
		if len(tok) < 2 {
			continue
		}
		h := fnv.New32a()
		h.Write([]byte(tok))
		vec[h.Sum32()%fakeDims]++
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		vec[0] = 1
		return vec
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec
}

// countingStore wraps the memory store to count vector searches, so
// cache-hit scenarios can assert the backend was not touched.
type countingStore struct {
	*vectorstore.MemoryStore
	mu       sync.Mutex
	searches int
}

func (s *countingStore) Search(ctx context.Context, vector []float32, limit int, minSimilarity float64, filter domain.Filter) ([]domain.ScoredChunk, error) {
	s.mu.Lock()
	s.searches++
	s.mu.Unlock()
	return s.MemoryStore.Search(ctx, vector, limit, minSimilarity, filter)
}

func (s *countingStore) searchCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.searches
}

// engine is a fully wired in-memory stack for one test.
type engine struct {
	inference *fakeInference
	store     *countingStore
	registry  *vectorstore.MemoryRegistry
	ingest    *service.IngestService
	query     *service.QueryService
}

type engineOptions struct {
	chunking  service.ChunkConfig
	retrieval service.RetrievalConfig
	rerank    service.RerankConfig
	maxChars  int
}

func defaultEngineOptions() engineOptions {
	return engineOptions{
		chunking: service.ChunkConfig{
			ChunkSize:      1200,
			Overlap:        150,
			TableChunkSize: 2000,
			MinChunkChars:  10,
		},
		retrieval: service.DefaultRetrievalConfig(),
		rerank:    service.DefaultRerankConfig(),
		maxChars:  service.DefaultMaxContextChars,
	}
}

func newEngine(t *testing.T, opts engineOptions) *engine {
	t.Helper()

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	inference := newFakeInference()
	embCache := cache.NewEmbeddingCache(500, 0, nil, log)
	qCache := cache.NewQueryCache(100, 0)

	pipeline := service.NewEmbeddingPipeline(inference, embCache, service.EmbeddingConfig{
		BatchSize: 8,
		Workers:   2,
	}, log)
	t.Cleanup(pipeline.Close)

	store := &countingStore{MemoryStore: vectorstore.NewMemoryStore()}
	registry := vectorstore.NewMemoryRegistry()

	ingest := service.NewIngestService(
		loader.NewTextLoader(),
		pipeline,
		store,
		registry,
		nil,
		qCache,
		service.IngestConfig{Workers: 2, Chunking: opts.chunking},
		log,
	)

	retriever := service.NewHybridRetriever(pipeline, store, opts.retrieval, log)
	reranker := service.NewReranker(nil, opts.rerank, log)
	assembler := service.NewContextAssembler(service.AssembleConfig{MaxContextChars: opts.maxChars})
	query := service.NewQueryService(retriever, reranker, assembler, qCache, service.QueryConfig{}, log)

	return &engine{
		inference: inference,
		store:     store,
		registry:  registry,
		ingest:    ingest,
		query:     query,
	}
}
