package vectorstore

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/cloo-solutions/veritexai/internal/domain"
	"github.com/cloo-solutions/veritexai/internal/pagination"
)

const defaultListLimit = 20

// MemoryStore keeps chunk vectors in process memory and searches them
// with an exact cosine scan. It backs unit tests, the e2e suite, and
// dry-run ingest from the CLI.
type MemoryStore struct {
	mu     sync.RWMutex
	chunks map[string][]domain.ChunkRecord
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		chunks: make(map[string][]domain.ChunkRecord),
	}
}

// Replace swaps all chunks of a document in one step.
func (s *MemoryStore) Replace(ctx context.Context, docID string, records []domain.ChunkRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	copied := make([]domain.ChunkRecord, len(records))
	copy(copied, records)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks[docID] = copied
	return nil
}

// Search scans every stored chunk, keeps those matching the filter
// with cosine similarity at or above minSimilarity, and returns the
// top limit of them ordered by similarity.
func (s *MemoryStore) Search(ctx context.Context, vector []float32, limit int, minSimilarity float64, filter domain.Filter) ([]domain.ScoredChunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var hits []domain.ScoredChunk
	for _, records := range s.chunks {
		for _, rec := range records {
			if !filter.Matches(rec.DocumentID, rec.Filename, rec.FileType) {
				continue
			}
			sim := cosineSimilarity(vector, rec.Vector)
			if sim < minSimilarity {
				continue
			}
			hits = append(hits, domain.ScoredChunk{
				Chunk:      rec.Chunk,
				Filename:   rec.Filename,
				Similarity: sim,
				Score:      sim,
			})
		}
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Similarity != hits[j].Similarity {
			return hits[i].Similarity > hits[j].Similarity
		}
		if hits[i].DocumentID != hits[j].DocumentID {
			return hits[i].DocumentID < hits[j].DocumentID
		}
		return hits[i].Index < hits[j].Index
	})

	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// DeleteDocument removes all chunks of a document. Deleting an unknown
// document is not an error.
func (s *MemoryStore) DeleteDocument(ctx context.Context, docID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.chunks, docID)
	return nil
}

// Len returns the total number of stored chunks.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, records := range s.chunks {
		n += len(records)
	}
	return n
}

// cosineSimilarity returns the cosine of the angle between a and b,
// or 0 when either vector is zero or the lengths differ.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// MemoryRegistry is an in-memory Registry for tests and dry runs.
type MemoryRegistry struct {
	mu   sync.RWMutex
	docs map[string]*domain.Document
}

// NewMemoryRegistry creates an empty in-memory registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		docs: make(map[string]*domain.Document),
	}
}

// Upsert inserts or overwrites a document row keyed by its ID.
func (r *MemoryRegistry) Upsert(ctx context.Context, doc *domain.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := domain.ValidateDocument(doc); err != nil {
		return err
	}

	copied := *doc
	r.mu.Lock()
	defer r.mu.Unlock()
	r.docs[doc.ID] = &copied
	return nil
}

// GetByID returns the document with the given ID.
func (r *MemoryRegistry) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	doc, ok := r.docs[id]
	if !ok {
		return nil, domain.ErrDocumentNotFound
	}
	copied := *doc
	return &copied, nil
}

// GetByFilename returns the document registered under the given filename.
func (r *MemoryRegistry) GetByFilename(ctx context.Context, filename string) (*domain.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, doc := range r.docs {
		if doc.Filename == filename {
			copied := *doc
			return &copied, nil
		}
	}
	return nil, domain.ErrDocumentNotFound
}

// List pages through documents newest first. The cursor encodes the
// last seen (id, ingested at) pair.
func (r *MemoryRegistry) List(ctx context.Context, cursor *pagination.Cursor, limit int) (*pagination.PageResult[*domain.Document], error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultListLimit
	}

	r.mu.RLock()
	all := make([]*domain.Document, 0, len(r.docs))
	for _, doc := range r.docs {
		copied := *doc
		all = append(all, &copied)
	}
	r.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if !all[i].IngestedAt.Equal(all[j].IngestedAt) {
			return all[i].IngestedAt.After(all[j].IngestedAt)
		}
		return all[i].ID > all[j].ID
	})

	if cursor != nil {
		kept := all[:0]
		for _, doc := range all {
			if doc.IngestedAt.Before(cursor.Timestamp) ||
				(doc.IngestedAt.Equal(cursor.Timestamp) && doc.ID < cursor.LastID) {
				kept = append(kept, doc)
			}
		}
		all = kept
	}

	hasMore := len(all) > limit
	if hasMore {
		all = all[:limit]
	}

	result := &pagination.PageResult[*domain.Document]{
		Items:   all,
		HasMore: hasMore,
	}
	if hasMore && len(all) > 0 {
		last := all[len(all)-1]
		result.Cursor = pagination.EncodeCursor(last.ID, last.IngestedAt)
	}
	return result, nil
}

// Delete removes a document row. Unknown IDs return
// domain.ErrDocumentNotFound.
func (r *MemoryRegistry) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.docs[id]; !ok {
		return domain.ErrDocumentNotFound
	}
	delete(r.docs, id)
	return nil
}
