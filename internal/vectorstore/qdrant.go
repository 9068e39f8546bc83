package vectorstore

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/qdrant/go-client/qdrant"

	"github.com/cloo-solutions/veritexai/internal/domain"
)

const (
	qdrantCollection  = "chunks"
	qdrantUpsertBatch = 100
)

var _ Store = (*QdrantStore)(nil)

// QdrantStore keeps chunk vectors in a Qdrant collection, one point
// per chunk with the chunk fields as payload.
type QdrantStore struct {
	client *qdrant.Client
	dims   uint64
}

// NewQdrantStore connects to Qdrant, waits for it to become healthy,
// and makes sure the chunk collection exists with cosine distance.
func NewQdrantStore(ctx context.Context, host string, port int, dims int) (*QdrantStore, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host: host,
		Port: port,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	s := &QdrantStore{client: client, dims: uint64(dims)}

	if err := s.waitHealthy(ctx); err != nil {
		_ = client.Close()
		return nil, unavailable("qdrant health check", err)
	}
	if err := s.ensureCollection(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the client connection.
func (s *QdrantStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// waitHealthy retries the health check with exponential backoff for
// up to 30 seconds, covering container startup.
func (s *QdrantStore) waitHealthy(ctx context.Context) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxInterval = 10 * time.Second
	bo.MaxElapsedTime = 30 * time.Second

	return backoff.Retry(func() error {
		result, err := s.client.HealthCheck(ctx)
		if err != nil {
			return err
		}
		if result == nil || result.Title == "" {
			return fmt.Errorf("health check returned invalid response")
		}
		return nil
	}, backoff.WithContext(bo, ctx))
}

// ensureCollection creates the chunk collection and its payload
// indexes if they are missing. Idempotent.
func (s *QdrantStore) ensureCollection(ctx context.Context) error {
	collections, err := s.client.ListCollections(ctx)
	if err != nil {
		return unavailable("list collections", err)
	}
	for _, name := range collections {
		if name == qdrantCollection {
			return nil
		}
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: qdrantCollection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     s.dims,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return unavailable("create collection", err)
	}

	// Filters without payload indexes fall back to full scans.
	for _, field := range []string{"document_id", "filename", "file_type"} {
		_, err := s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: qdrantCollection,
			FieldName:      field,
			FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
		})
		if err != nil {
			return unavailable(fmt.Sprintf("create index for %s", field), err)
		}
	}
	return nil
}

// Replace drops a document's points and upserts the new set in
// batches.
func (s *QdrantStore) Replace(ctx context.Context, docID string, records []domain.ChunkRecord) error {
	if err := s.deleteByDocument(ctx, docID); err != nil {
		return err
	}

	for start := 0; start < len(records); start += qdrantUpsertBatch {
		end := min(start+qdrantUpsertBatch, len(records))
		batch := records[start:end]

		points := make([]*qdrant.PointStruct, len(batch))
		for i, rec := range batch {
			points[i] = &qdrant.PointStruct{
				Id:      qdrant.NewIDUUID(rec.ID),
				Vectors: qdrant.NewVectors(rec.Vector...),
				Payload: qdrant.NewValueMap(map[string]any{
					"document_id":   rec.DocumentID,
					"chunk_index":   rec.Index,
					"content":       rec.Content,
					"section_title": rec.SectionTitle,
					"page_number":   rec.PageNumber,
					"is_table":      rec.IsTable,
					"char_start":    rec.CharStart,
					"char_end":      rec.CharEnd,
					"filename":      rec.Filename,
					"file_type":     rec.FileType,
				}),
			}
		}

		// Wait so the chunks are searchable the moment ingest returns.
		_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: qdrantCollection,
			Points:         points,
			Wait:           qdrant.PtrOf(true),
		})
		if err != nil {
			return unavailable(fmt.Sprintf("upsert batch %d-%d", start, end), err)
		}
	}
	return nil
}

// Search queries the collection by vector. Qdrant reports cosine
// similarity directly as the point score.
func (s *QdrantStore) Search(ctx context.Context, vector []float32, limit int, minSimilarity float64, filter domain.Filter) ([]domain.ScoredChunk, error) {
	if limit <= 0 {
		limit = 20
	}

	results, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: qdrantCollection,
		Query:          qdrant.NewQuery(vector...),
		Filter:         qdrantFilter(filter),
		Limit:          qdrant.PtrOf(uint64(limit)),
		ScoreThreshold: qdrant.PtrOf(float32(minSimilarity)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, unavailable("search chunks", err)
	}

	hits := make([]domain.ScoredChunk, 0, len(results))
	for _, res := range results {
		payload := res.Payload
		hit := domain.ScoredChunk{
			Chunk: domain.Chunk{
				ID:           res.Id.GetUuid(),
				DocumentID:   payload["document_id"].GetStringValue(),
				Index:        int(payload["chunk_index"].GetIntegerValue()),
				Content:      payload["content"].GetStringValue(),
				SectionTitle: payload["section_title"].GetStringValue(),
				PageNumber:   int(payload["page_number"].GetIntegerValue()),
				IsTable:      payload["is_table"].GetBoolValue(),
				CharStart:    int(payload["char_start"].GetIntegerValue()),
				CharEnd:      int(payload["char_end"].GetIntegerValue()),
			},
			Filename:   payload["filename"].GetStringValue(),
			Similarity: float64(res.Score),
		}
		hit.Score = hit.Similarity
		hits = append(hits, hit)
	}
	return hits, nil
}

// DeleteDocument removes all points of a document.
func (s *QdrantStore) DeleteDocument(ctx context.Context, docID string) error {
	return s.deleteByDocument(ctx, docID)
}

func (s *QdrantStore) deleteByDocument(ctx context.Context, docID string) error {
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: qdrantCollection,
		Points: qdrant.NewPointsSelectorFilter(&qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatch("document_id", docID),
			},
		}),
		Wait: qdrant.PtrOf(true),
	})
	if err != nil {
		return unavailable("delete points", err)
	}
	return nil
}

func qdrantFilter(filter domain.Filter) *qdrant.Filter {
	if filter.IsZero() {
		return nil
	}
	var must []*qdrant.Condition
	if filter.DocumentID != "" {
		must = append(must, qdrant.NewMatch("document_id", filter.DocumentID))
	}
	if filter.Filename != "" {
		must = append(must, qdrant.NewMatch("filename", filter.Filename))
	}
	if filter.FileType != "" {
		must = append(must, qdrant.NewMatch("file_type", filter.FileType))
	}
	return &qdrant.Filter{Must: must}
}
