package domain

import (
	"sort"
	"strings"
)

// Filter restricts retrieval to chunks whose metadata matches every
// non-empty field. An empty Filter matches everything.
type Filter struct {
	DocumentID string
	Filename   string
	FileType   string
}

// IsZero reports whether the filter matches everything.
func (f Filter) IsZero() bool {
	return f.DocumentID == "" && f.Filename == "" && f.FileType == ""
}

// Canonical returns a stable string form of the filter, used in cache keys.
func (f Filter) Canonical() string {
	parts := make([]string, 0, 3)
	if f.DocumentID != "" {
		parts = append(parts, "document_id="+f.DocumentID)
	}
	if f.Filename != "" {
		parts = append(parts, "filename="+f.Filename)
	}
	if f.FileType != "" {
		parts = append(parts, "file_type="+f.FileType)
	}
	sort.Strings(parts)
	return strings.Join(parts, "&")
}

// Matches reports whether the chunk metadata satisfies the filter.
func (f Filter) Matches(documentID, filename, fileType string) bool {
	if f.DocumentID != "" && f.DocumentID != documentID {
		return false
	}
	if f.Filename != "" && f.Filename != filename {
		return false
	}
	if f.FileType != "" && f.FileType != fileType {
		return false
	}
	return true
}

// ScoredChunk is a chunk with the scores it accumulated on the way
// through retrieval and reranking.
type ScoredChunk struct {
	Chunk
	Filename     string
	Similarity   float64
	KeywordScore float64
	Score        float64
}

// ChunkRecord is a chunk ready for the vector store: the chunk, its
// document's file metadata, and the embedding vector.
type ChunkRecord struct {
	Chunk
	Filename string
	FileType string
	Vector   []float32
}

// Citation points a consumer back at the source of one context chunk.
type Citation struct {
	Filename     string
	SectionTitle string
	PageNumber   int
	ChunkIndex   int
	Score        float64
}

// ContextResult is the final product of a query: an assembled context
// string bounded in size, plus the citations and chunks behind it in
// reading order.
type ContextResult struct {
	Text      string
	Citations []Citation
	Chunks    []ScoredChunk
}
