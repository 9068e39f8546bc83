// Package vectorstore persists chunk embeddings and the document
// registry behind them, with Postgres/pgvector, Qdrant, and in-memory
// implementations.
package vectorstore

import (
	"context"

	"github.com/cloo-solutions/veritexai/internal/domain"
	"github.com/cloo-solutions/veritexai/internal/pagination"
)

// Store holds chunk vectors. Replace swaps a document's chunks
// atomically; Search returns the nearest chunks by cosine similarity,
// at most limit of them, all at or above minSimilarity and matching
// the filter.
type Store interface {
	Replace(ctx context.Context, docID string, records []domain.ChunkRecord) error
	Search(ctx context.Context, vector []float32, limit int, minSimilarity float64, filter domain.Filter) ([]domain.ScoredChunk, error)
	DeleteDocument(ctx context.Context, docID string) error
}

// Registry tracks document rows keyed by id, with filename as a
// secondary identity. Lookups return domain.ErrDocumentNotFound for
// unknown documents.
type Registry interface {
	Upsert(ctx context.Context, doc *domain.Document) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	GetByFilename(ctx context.Context, filename string) (*domain.Document, error)
	List(ctx context.Context, cursor *pagination.Cursor, limit int) (*pagination.PageResult[*domain.Document], error)
	Delete(ctx context.Context, id string) error
}

// unavailable classifies a backend failure so callers can match it
// with domain.IsStoreUnavailable.
func unavailable(op string, err error) error {
	return domain.NewDomainErrorWithCause(domain.ErrCodeVectorStoreUnavailable, op, err)
}
