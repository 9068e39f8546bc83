// Package cli implements the veritex command set: thin cobra drivers
// over the ingest and query services.
package cli

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/cloo-solutions/veritexai/internal/cache"
	"github.com/cloo-solutions/veritexai/internal/config"
	"github.com/cloo-solutions/veritexai/internal/database"
	"github.com/cloo-solutions/veritexai/internal/loader"
	"github.com/cloo-solutions/veritexai/internal/openai"
	"github.com/cloo-solutions/veritexai/internal/service"
	"github.com/cloo-solutions/veritexai/internal/storage"
	"github.com/cloo-solutions/veritexai/internal/vectorstore"
)

// app holds the wired engine for one CLI invocation.
type app struct {
	cfg      *config.Config
	log      *logrus.Logger
	pool     *pgxpool.Pool
	store    vectorstore.Store
	registry vectorstore.Registry
	pipeline *service.EmbeddingPipeline
	ingest   *service.IngestService
	query    *service.QueryService

	closers []func()
}

// loadConfig reads the persistent flags and the environment into a
// config plus a configured logger.
func loadConfig(cmd *cobra.Command) (*config.Config, *logrus.Logger, error) {
	envFile, _ := cmd.Flags().GetString("env-file")
	cfg, err := config.LoadFile(envFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	log := logrus.New()
	levelName := cfg.Log.Level
	if flagLevel, _ := cmd.Flags().GetString("log-level"); flagLevel != "" {
		levelName = flagLevel
	}
	level, err := logrus.ParseLevel(levelName)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid log level %q: %w", levelName, err)
	}
	log.SetLevel(level)
	if cfg.Log.Format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	}
	return cfg, log, nil
}

// newApp wires the full engine from config. The store backend comes
// from the --store flag: pg (default), qdrant, or memory.
func newApp(ctx context.Context, cmd *cobra.Command) (*app, error) {
	cfg, log, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	if !cfg.HasOpenAI() {
		return nil, fmt.Errorf("VERITEX_OPENAI_API_KEY is required")
	}

	a := &app{cfg: cfg, log: log}

	inference := openai.NewClientWithConfig(openai.Config{
		APIKey:              cfg.OpenAI.APIKey,
		BaseURL:             cfg.OpenAI.BaseURL,
		EmbeddingModel:      openai.EmbeddingModel(cfg.OpenAI.Model),
		EmbeddingDimensions: cfg.OpenAI.Dimensions,
	})

	var tier cache.TierStore
	if cfg.HasRedis() {
		client, err := cache.ConnectRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password)
		if err != nil {
			// The tier is an optimization; ingest and query work without it.
			log.WithError(err).Warn("redis unavailable, embedding cache is memory only")
		} else {
			tier = cache.NewRedisTier(client, "", log)
			a.closers = append(a.closers, func() { _ = client.Close() })
		}
	}

	embCache := cache.NewEmbeddingCache(cfg.Embedding.CacheCapacity, cfg.Embedding.CacheTTL, tier, log)
	qCache := cache.NewQueryCache(cfg.Query.CacheCapacity, cfg.Query.CacheTTL)

	pipeline := service.NewEmbeddingPipeline(inference, embCache, service.EmbeddingConfig{
		BatchSize:  cfg.Embedding.BatchSize,
		Workers:    cfg.Embedding.Workers,
		RetryDelay: cfg.Embedding.RetryDelay,
	}, log)
	a.pipeline = pipeline
	a.closers = append(a.closers, pipeline.Close)

	storeKind, _ := cmd.Flags().GetString("store")
	if err := a.openStore(ctx, storeKind); err != nil {
		a.Close()
		return nil, err
	}

	var archive service.DocumentArchive
	if cfg.HasS3() {
		s3Client, err := storage.NewS3Client(ctx, storage.S3ClientConfig{
			Endpoint:        cfg.S3.Endpoint,
			Region:          cfg.S3.Region,
			AccessKeyID:     cfg.S3.AccessKey,
			SecretAccessKey: cfg.S3.SecretKey,
			Bucket:          cfg.S3.Bucket,
			UsePathStyle:    true,
		})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to create s3 client: %w", err)
		}
		if err := s3Client.EnsureBucket(ctx); err != nil {
			log.WithError(err).Warn("document archive unavailable, continuing without it")
		} else {
			archive = s3Client
		}
	}

	a.ingest = service.NewIngestService(
		loader.NewTextLoader(),
		pipeline,
		a.store,
		a.registry,
		archive,
		qCache,
		service.IngestConfig{
			Workers: cfg.Embedding.Workers,
			Chunking: service.ChunkConfig{
				ChunkSize:      cfg.Chunking.Size,
				Overlap:        cfg.Chunking.Overlap,
				TableChunkSize: cfg.Chunking.TableChunkSize,
				MinChunkChars:  cfg.Chunking.MinChunkChars,
			},
		},
		log,
	)

	retriever := service.NewHybridRetriever(pipeline, a.store, service.RetrievalConfig{
		TopKCandidates: cfg.Retrieval.TopKCandidates,
		MinSimilarity:  cfg.Retrieval.MinSimilarity,
		SemanticWeight: cfg.Retrieval.SemanticWeight,
		BM25K1:         cfg.Retrieval.BM25K1,
		BM25B:          cfg.Retrieval.BM25B,
	}, log)
	reranker := service.NewReranker(nil, service.RerankConfig{
		TopK:               cfg.Rerank.TopK,
		DiversityThreshold: cfg.Rerank.DiversityThreshold,
		ChunkOverlap:       cfg.Chunking.Overlap,
	}, log)
	assembler := service.NewContextAssembler(service.AssembleConfig{
		MaxContextChars: cfg.Context.MaxChars,
	})

	a.query = service.NewQueryService(retriever, reranker, assembler, qCache, service.QueryConfig{
		TopK:            cfg.Rerank.TopK,
		MaxContextChars: cfg.Context.MaxChars,
		Timeout:         cfg.Query.Timeout,
	}, log)

	return a, nil
}

// openStore picks the vector store backend and the matching document
// registry. Qdrant keeps vectors but the registry stays in Postgres.
func (a *app) openStore(ctx context.Context, kind string) error {
	switch kind {
	case "", "pg":
		pool, err := a.connectDB(ctx)
		if err != nil {
			return err
		}
		a.store = vectorstore.NewPgStore(pool)
		a.registry = vectorstore.NewPgRegistry(pool)
	case "qdrant":
		if !a.cfg.HasQdrant() {
			return fmt.Errorf("VERITEX_QDRANT_HOST is required for --store qdrant")
		}
		qs, err := vectorstore.NewQdrantStore(ctx, a.cfg.Qdrant.Host, a.cfg.Qdrant.Port, a.cfg.OpenAI.Dimensions)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func() { _ = qs.Close() })
		pool, err := a.connectDB(ctx)
		if err != nil {
			return err
		}
		a.store = qs
		a.registry = vectorstore.NewPgRegistry(pool)
	case "memory":
		a.store = vectorstore.NewMemoryStore()
		a.registry = vectorstore.NewMemoryRegistry()
	default:
		return fmt.Errorf("unknown store backend %q (want pg, qdrant, or memory)", kind)
	}
	return nil
}

func (a *app) connectDB(ctx context.Context) (*pgxpool.Pool, error) {
	pool, err := database.NewPool(ctx, database.Config{
		Host:     a.cfg.DB.Host,
		Port:     a.cfg.DB.Port,
		User:     a.cfg.DB.User,
		Password: a.cfg.DB.Password,
		Database: a.cfg.DB.Name,
		SSLMode:  a.cfg.DB.SSLMode,
		MaxConns: a.cfg.DB.MaxConns,
		MinConns: a.cfg.DB.MinConns,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	a.pool = pool
	a.closers = append(a.closers, pool.Close)
	return pool, nil
}

// Close releases every resource in reverse acquisition order.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}
