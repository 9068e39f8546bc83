package domain

import (
	"fmt"
	"time"
)

// Document represents an ingested source document.
type Document struct {
	ID         string
	Filename   string
	FileType   string
	SHA256     string
	NumChunks  int
	IngestedAt time.Time
}

// NewDocument creates a new Document instance
func NewDocument(id, filename, fileType, sha256 string, numChunks int, ingestedAt time.Time) *Document {
	return &Document{
		ID:         id,
		Filename:   filename,
		FileType:   fileType,
		SHA256:     sha256,
		NumChunks:  numChunks,
		IngestedAt: ingestedAt,
	}
}

// ValidateDocument validates a Document instance
func ValidateDocument(d *Document) error {
	if d == nil {
		return fmt.Errorf("document cannot be nil")
	}

	if d.ID == "" {
		return fmt.Errorf("document ID is required")
	}

	if d.Filename == "" {
		return fmt.Errorf("document Filename is required")
	}

	return nil
}

// Span marks a half-open rune range [Start, End) within a page's text.
type Span struct {
	Start int
	End   int
}

// PageContent is one page of extracted text handed over by a document
// loader, with any table regions marked so chunking can keep them whole.
type PageContent struct {
	PageNumber int
	Text       string
	TableSpans []Span
}

// Chunk represents one retrievable segment of a document.
type Chunk struct {
	ID           string
	DocumentID   string
	Index        int
	Content      string
	SectionTitle string
	PageNumber   int
	IsTable      bool
	CharStart    int
	CharEnd      int
}

// DocOutcome represents the per-document result of an ingest run
type DocOutcome string

const (
	DocOutcomeIngested DocOutcome = "ingested"
	DocOutcomeSkipped  DocOutcome = "skipped"
	DocOutcomeFailed   DocOutcome = "failed"
)

// DocReport records what happened to a single document during ingest.
type DocReport struct {
	Filename   string
	DocumentID string
	Outcome    DocOutcome
	Reason     string
	Chunks     int
	Embedded   int
	FromCache  int
	Failed     int
}

// IngestReport aggregates per-document outcomes for an ingest run.
// Every input document appears exactly once in Docs, whatever its fate.
type IngestReport struct {
	Docs      []DocReport
	StartedAt time.Time
	Duration  time.Duration
}

// Counts returns the number of ingested, skipped and failed documents.
func (r *IngestReport) Counts() (ingested, skipped, failed int) {
	for _, d := range r.Docs {
		switch d.Outcome {
		case DocOutcomeIngested:
			ingested++
		case DocOutcomeSkipped:
			skipped++
		case DocOutcomeFailed:
			failed++
		}
	}
	return ingested, skipped, failed
}
