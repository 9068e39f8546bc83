package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/cloo-solutions/veritexai/internal/cache"
	"github.com/cloo-solutions/veritexai/internal/domain"
)

// DocumentLoader extracts page text from a raw document stream.
type DocumentLoader interface {
	Load(ctx context.Context, name string, r io.Reader) ([]domain.PageContent, error)
}

// TextEmbedder is the slice of the embedding pipeline ingestion needs.
type TextEmbedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([]Embedding, error)
}

// ChunkWriter is the write side of the vector store.
type ChunkWriter interface {
	Replace(ctx context.Context, docID string, records []domain.ChunkRecord) error
	DeleteDocument(ctx context.Context, docID string) error
}

// DocumentRegistry tracks ingested documents by id and filename.
// Lookups return ErrDocumentNotFound for unknown documents.
type DocumentRegistry interface {
	Upsert(ctx context.Context, doc *domain.Document) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	GetByFilename(ctx context.Context, filename string) (*domain.Document, error)
	Delete(ctx context.Context, id string) error
}

// DocumentArchive keeps the raw text of ingested documents, typically
// object storage. Archival is best effort.
type DocumentArchive interface {
	PutDocument(ctx context.Context, docID string, body io.Reader) error
	DeleteDocument(ctx context.Context, docID string) error
}

// IngestConfig tunes ingestion.
type IngestConfig struct {
	// Workers bounds concurrent file loading in IngestAll.
	Workers int
	// Chunking is applied to every ingested document.
	Chunking ChunkConfig
}

// DefaultIngestConfig provides the standard ingestion parameters.
func DefaultIngestConfig() IngestConfig {
	return IngestConfig{
		Workers:  8,
		Chunking: DefaultChunkConfig(),
	}
}

// IngestService turns source files into searchable chunks: load,
// chunk, embed, store, register, archive. Re-ingesting a filename
// replaces its chunks under the same document identity.
type IngestService struct {
	loader   DocumentLoader
	embedder TextEmbedder
	store    ChunkWriter
	registry DocumentRegistry
	archive  DocumentArchive
	qcache   *cache.QueryCache
	cfg      IngestConfig
	log      *logrus.Logger
}

// NewIngestService creates an ingest service. archive may be nil when
// no object storage is configured.
func NewIngestService(
	loader DocumentLoader,
	embedder TextEmbedder,
	store ChunkWriter,
	registry DocumentRegistry,
	archive DocumentArchive,
	qcache *cache.QueryCache,
	cfg IngestConfig,
	log *logrus.Logger,
) *IngestService {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultIngestConfig().Workers
	}
	if (cfg.Chunking == ChunkConfig{}) {
		cfg.Chunking = DefaultChunkConfig()
	}
	if qcache == nil {
		qcache = cache.NewQueryCache(0, 0)
	}
	if log == nil {
		log = logrus.New()
	}
	return &IngestService{
		loader:   loader,
		embedder: embedder,
		store:    store,
		registry: registry,
		archive:  archive,
		qcache:   qcache,
		cfg:      cfg,
		log:      log,
	}
}

type loadedFile struct {
	name string
	raw  []byte
	err  error
}

// IngestAll ingests every path. Files load concurrently, bounded by
// Workers; documents are then processed one at a time in input order,
// checking for cancellation between documents. Every path gets exactly
// one entry in the report.
func (s *IngestService) IngestAll(ctx context.Context, paths []string) (*domain.IngestReport, error) {
	report := &domain.IngestReport{
		Docs:      make([]domain.DocReport, 0, len(paths)),
		StartedAt: time.Now(),
	}
	if len(paths) == 0 {
		return report, nil
	}

	loads := make([]loadedFile, len(paths))
	g := new(errgroup.Group)
	g.SetLimit(s.cfg.Workers)
	for i, path := range paths {
		g.Go(func() error {
			raw, err := os.ReadFile(path)
			loads[i] = loadedFile{name: filepath.Base(path), raw: raw, err: err}
			return nil
		})
	}
	// Read failures are reported per document, never as a group error.
	_ = g.Wait()

	cancelled := false
	for i, lf := range loads {
		if !cancelled && ctx.Err() != nil {
			cancelled = true
		}
		if cancelled {
			report.Docs = append(report.Docs, domain.DocReport{
				Filename: lf.name,
				Outcome:  domain.DocOutcomeSkipped,
				Reason:   "ingest cancelled",
			})
			continue
		}
		if lf.err != nil {
			s.log.WithError(lf.err).WithField("file", lf.name).Warn("failed to read document")
			report.Docs = append(report.Docs, domain.DocReport{
				Filename: lf.name,
				Outcome:  domain.DocOutcomeFailed,
				Reason:   lf.err.Error(),
			})
			continue
		}

		docReport, err := s.ingestOne(ctx, lf.name, lf.raw)
		report.Docs = append(report.Docs, docReport)
		if err != nil {
			for _, rest := range loads[i+1:] {
				report.Docs = append(report.Docs, domain.DocReport{
					Filename: rest.name,
					Outcome:  domain.DocOutcomeSkipped,
					Reason:   "ingest aborted",
				})
			}
			report.Duration = time.Since(report.StartedAt)
			return report, err
		}
	}

	report.Duration = time.Since(report.StartedAt)
	if cancelled {
		return report, ctx.Err()
	}
	return report, nil
}

// IngestFile ingests a single file from disk.
func (s *IngestService) IngestFile(ctx context.Context, path string) (*domain.IngestReport, error) {
	return s.IngestAll(ctx, []string{path})
}

// IngestReader ingests a single document from a stream under the
// given name.
func (s *IngestService) IngestReader(ctx context.Context, name string, r io.Reader) (*domain.DocReport, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	report, err := s.ingestOne(ctx, name, raw)
	return &report, err
}

// ingestOne runs the full pipeline for one document. A non-nil error
// aborts the whole run (store or registry down, cancellation); per
// document problems end up in the report instead.
func (s *IngestService) ingestOne(ctx context.Context, name string, raw []byte) (domain.DocReport, error) {
	report := domain.DocReport{Filename: name}
	log := s.log.WithField("file", name)

	pages, err := s.loader.Load(ctx, name, bytes.NewReader(raw))
	if err != nil {
		if domain.IsMalformed(err) {
			log.WithError(err).Warn("skipping malformed document")
			report.Outcome = domain.DocOutcomeSkipped
			report.Reason = err.Error()
			return report, nil
		}
		report.Outcome = domain.DocOutcomeFailed
		report.Reason = err.Error()
		return report, nil
	}

	docID, err := s.resolveDocumentID(ctx, name)
	if err != nil {
		report.Outcome = domain.DocOutcomeFailed
		report.Reason = err.Error()
		return report, fmt.Errorf("resolve document id for %s: %w", name, err)
	}
	report.DocumentID = docID

	chunks, err := ChunkDocument(docID, pages, s.cfg.Chunking)
	if err != nil {
		if domain.IsMalformed(err) {
			log.WithError(err).Warn("skipping document with no usable content")
			report.Outcome = domain.DocOutcomeSkipped
			report.Reason = err.Error()
			return report, nil
		}
		report.Outcome = domain.DocOutcomeFailed
		report.Reason = err.Error()
		return report, err
	}
	report.Chunks = len(chunks)

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	embeddings, err := s.embedder.EmbedTexts(ctx, texts)
	if err != nil {
		report.Outcome = domain.DocOutcomeFailed
		report.Reason = err.Error()
		return report, fmt.Errorf("embed %s: %w", name, err)
	}

	for _, e := range embeddings {
		if e.Err != nil {
			report.Failed++
			if report.Reason == "" {
				report.Reason = e.Err.Error()
			}
			continue
		}
		report.Embedded++
		if e.FromCache {
			report.FromCache++
		}
	}
	if report.Failed > 0 {
		// Partial vectors would silently hide chunks from retrieval,
		// so the document fails as a unit.
		log.WithFields(logrus.Fields{
			"failed": report.Failed,
			"total":  len(chunks),
		}).Warn("document failed embedding")
		report.Outcome = domain.DocOutcomeFailed
		return report, nil
	}

	fileType := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
	records := make([]domain.ChunkRecord, len(chunks))
	for i, c := range chunks {
		records[i] = domain.ChunkRecord{
			Chunk:    c,
			Filename: name,
			FileType: fileType,
			Vector:   embeddings[i].Vector,
		}
	}

	if err := s.store.Replace(ctx, docID, records); err != nil {
		report.Outcome = domain.DocOutcomeFailed
		report.Reason = err.Error()
		return report, fmt.Errorf("store chunks for %s: %w", name, err)
	}

	sum := sha256.Sum256(raw)
	doc := domain.NewDocument(docID, name, fileType, hex.EncodeToString(sum[:]), len(chunks), time.Now().UTC())
	if err := s.registry.Upsert(ctx, doc); err != nil {
		report.Outcome = domain.DocOutcomeFailed
		report.Reason = err.Error()
		return report, fmt.Errorf("register %s: %w", name, err)
	}

	if s.archive != nil {
		if err := s.archive.PutDocument(ctx, docID, bytes.NewReader(raw)); err != nil {
			log.WithError(err).Warn("failed to archive document")
		}
	}

	s.qcache.InvalidateAll()

	report.Outcome = domain.DocOutcomeIngested
	log.WithFields(logrus.Fields{
		"document_id": docID,
		"chunks":      report.Chunks,
		"from_cache":  report.FromCache,
	}).Info("document ingested")
	return report, nil
}

// resolveDocumentID reuses the registry identity for a known filename
// so re-ingestion replaces rather than duplicates.
func (s *IngestService) resolveDocumentID(ctx context.Context, filename string) (string, error) {
	existing, err := s.registry.GetByFilename(ctx, filename)
	if err == nil {
		return existing.ID, nil
	}
	if errors.Is(err, domain.ErrDocumentNotFound) {
		return uuid.NewString(), nil
	}
	return "", err
}

// DeleteDocument removes a document's vectors, registry row, and
// archived raw text. idOrFilename accepts either identifier.
func (s *IngestService) DeleteDocument(ctx context.Context, idOrFilename string) error {
	doc, err := s.registry.GetByID(ctx, idOrFilename)
	if errors.Is(err, domain.ErrDocumentNotFound) {
		doc, err = s.registry.GetByFilename(ctx, idOrFilename)
	}
	if err != nil {
		return fmt.Errorf("lookup document %s: %w", idOrFilename, err)
	}

	if err := s.store.DeleteDocument(ctx, doc.ID); err != nil {
		return fmt.Errorf("delete chunks for %s: %w", doc.ID, err)
	}
	if err := s.registry.Delete(ctx, doc.ID); err != nil {
		return fmt.Errorf("deregister %s: %w", doc.ID, err)
	}
	if s.archive != nil {
		if err := s.archive.DeleteDocument(ctx, doc.ID); err != nil {
			s.log.WithError(err).WithField("document_id", doc.ID).Warn("failed to delete archived document")
		}
	}

	s.qcache.InvalidateAll()

	s.log.WithFields(logrus.Fields{
		"document_id": doc.ID,
		"filename":    doc.Filename,
	}).Info("document deleted")
	return nil
}
