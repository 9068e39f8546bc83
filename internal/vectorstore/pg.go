package vectorstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/cloo-solutions/veritexai/internal/domain"
	"github.com/cloo-solutions/veritexai/internal/pagination"
)

// dbtx is the subset of pgxpool.Pool and pgx.Tx the stores use.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var (
	_ Store    = (*PgStore)(nil)
	_ Registry = (*PgRegistry)(nil)
)

// PgStore persists chunk vectors in Postgres with pgvector. Filename
// and file type are denormalized onto every chunk row so filtered
// search never joins the documents table.
type PgStore struct {
	pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

// Replace deletes a document's chunks and inserts the new set in one
// transaction, so concurrent searches see the old chunks or the new
// ones but never a mix.
func (s *PgStore) Replace(ctx context.Context, docID string, records []domain.ChunkRecord) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return unavailable("begin replace", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM chunks WHERE document_id = $1`, docID); err != nil {
		_ = tx.Rollback(ctx)
		return unavailable("delete chunks", err)
	}

	for _, rec := range records {
		_, err := tx.Exec(ctx,
			`INSERT INTO chunks
				(id, document_id, chunk_index, content, section_title, page_number, is_table, char_start, char_end, filename, file_type, embedding)
			 VALUES
				($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
			rec.ID,
			rec.DocumentID,
			rec.Index,
			rec.Content,
			nullableString(rec.SectionTitle),
			rec.PageNumber,
			rec.IsTable,
			rec.CharStart,
			rec.CharEnd,
			rec.Filename,
			rec.FileType,
			pgvector.NewVector(rec.Vector),
		)
		if err != nil {
			_ = tx.Rollback(ctx)
			return unavailable("insert chunk", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return unavailable("commit replace", err)
	}
	return nil
}

// Search runs a cosine nearest-neighbour query. The <=> operator is
// cosine distance, so similarity is 1 minus it.
func (s *PgStore) Search(ctx context.Context, vector []float32, limit int, minSimilarity float64, filter domain.Filter) ([]domain.ScoredChunk, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `SELECT id, document_id, chunk_index, content, section_title, page_number, is_table, char_start, char_end, filename,
			1 - (embedding <=> $1) AS similarity
		FROM chunks
		WHERE 1 - (embedding <=> $1) >= $2`
	args := []interface{}{pgvector.NewVector(vector), minSimilarity}

	if filter.DocumentID != "" {
		args = append(args, filter.DocumentID)
		query += fmt.Sprintf(" AND document_id = $%d", len(args))
	}
	if filter.Filename != "" {
		args = append(args, filter.Filename)
		query += fmt.Sprintf(" AND filename = $%d", len(args))
	}
	if filter.FileType != "" {
		args = append(args, filter.FileType)
		query += fmt.Sprintf(" AND file_type = $%d", len(args))
	}

	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY embedding <=> $1 LIMIT $%d", len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, unavailable("search chunks", err)
	}
	defer rows.Close()

	hits := make([]domain.ScoredChunk, 0, limit)
	for rows.Next() {
		var hit domain.ScoredChunk
		var section *string
		if err := rows.Scan(
			&hit.ID,
			&hit.DocumentID,
			&hit.Index,
			&hit.Content,
			&section,
			&hit.PageNumber,
			&hit.IsTable,
			&hit.CharStart,
			&hit.CharEnd,
			&hit.Filename,
			&hit.Similarity,
		); err != nil {
			return nil, unavailable("scan chunk", err)
		}
		if section != nil {
			hit.SectionTitle = *section
		}
		hit.Score = hit.Similarity
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("read chunks", err)
	}
	return hits, nil
}

// DeleteDocument removes a document's chunks. Unknown documents are
// not an error.
func (s *PgStore) DeleteDocument(ctx context.Context, docID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM chunks WHERE document_id = $1`, docID); err != nil {
		return unavailable("delete chunks", err)
	}
	return nil
}

// PgRegistry stores document rows in Postgres.
type PgRegistry struct {
	db dbtx
}

func NewPgRegistry(pool *pgxpool.Pool) *PgRegistry {
	return &PgRegistry{db: pool}
}

func NewPgRegistryWithTx(tx pgx.Tx) *PgRegistry {
	return &PgRegistry{db: tx}
}

func (r *PgRegistry) Upsert(ctx context.Context, doc *domain.Document) error {
	if err := domain.ValidateDocument(doc); err != nil {
		return err
	}
	_, err := r.db.Exec(ctx,
		`INSERT INTO documents (id, filename, file_type, sha256, num_chunks, ingested_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO UPDATE SET
			filename = EXCLUDED.filename,
			file_type = EXCLUDED.file_type,
			sha256 = EXCLUDED.sha256,
			num_chunks = EXCLUDED.num_chunks,
			ingested_at = EXCLUDED.ingested_at`,
		doc.ID, doc.Filename, doc.FileType, doc.SHA256, doc.NumChunks, doc.IngestedAt,
	)
	return err
}

func (r *PgRegistry) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	return r.getBy(ctx, `SELECT id, filename, file_type, sha256, num_chunks, ingested_at FROM documents WHERE id = $1`, id)
}

func (r *PgRegistry) GetByFilename(ctx context.Context, filename string) (*domain.Document, error) {
	return r.getBy(ctx, `SELECT id, filename, file_type, sha256, num_chunks, ingested_at FROM documents WHERE filename = $1`, filename)
}

func (r *PgRegistry) getBy(ctx context.Context, query, arg string) (*domain.Document, error) {
	var d domain.Document
	err := r.db.QueryRow(ctx, query, arg).
		Scan(&d.ID, &d.Filename, &d.FileType, &d.SHA256, &d.NumChunks, &d.IngestedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrDocumentNotFound
		}
		return nil, err
	}
	return &d, nil
}

func (r *PgRegistry) List(ctx context.Context, cursor *pagination.Cursor, limit int) (*pagination.PageResult[*domain.Document], error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	var rows pgx.Rows
	var err error

	if cursor != nil {
		rows, err = r.db.Query(ctx,
			`SELECT id, filename, file_type, sha256, num_chunks, ingested_at
			 FROM documents
			 WHERE (ingested_at, id) < ($1, $2)
			 ORDER BY ingested_at DESC, id DESC
			 LIMIT $3`,
			cursor.Timestamp, cursor.LastID, limit+1,
		)
	} else {
		rows, err = r.db.Query(ctx,
			`SELECT id, filename, file_type, sha256, num_chunks, ingested_at
			 FROM documents
			 ORDER BY ingested_at DESC, id DESC
			 LIMIT $1`,
			limit+1,
		)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items, err := scanDocumentRows(rows)
	if err != nil {
		return nil, err
	}

	hasMore := len(items) > limit
	if hasMore {
		items = items[:limit]
	}

	var nextCursor string
	if hasMore && len(items) > 0 {
		lastItem := items[len(items)-1]
		nextCursor = pagination.EncodeCursor(lastItem.ID, lastItem.IngestedAt)
	}

	return &pagination.PageResult[*domain.Document]{
		Items:   items,
		Cursor:  nextCursor,
		HasMore: hasMore,
	}, nil
}

func (r *PgRegistry) Delete(ctx context.Context, id string) error {
	cmdTag, err := r.db.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrDocumentNotFound
	}
	return nil
}

func scanDocumentRows(rows pgx.Rows) ([]*domain.Document, error) {
	var docs []*domain.Document
	for rows.Next() {
		var d domain.Document
		if err := rows.Scan(&d.ID, &d.Filename, &d.FileType, &d.SHA256, &d.NumChunks, &d.IngestedAt); err != nil {
			return nil, err
		}
		docs = append(docs, &d)
	}
	return docs, rows.Err()
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
