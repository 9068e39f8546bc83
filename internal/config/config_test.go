package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_WithEnvVars(t *testing.T) {
	t.Setenv("VERITEX_DB_HOST", "db.internal")
	t.Setenv("VERITEX_DB_PASSWORD", "secret")
	t.Setenv("VERITEX_REDIS_ADDR", "localhost:6379")
	t.Setenv("VERITEX_OPENAI_API_KEY", "sk-test")
	t.Setenv("VERITEX_EMBED_WORKERS", "4")
	t.Setenv("VERITEX_RERANK_DIVERSITY_THRESHOLD", "0.7")
	t.Setenv("VERITEX_QUERY_TIMEOUT", "30s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "db.internal", cfg.DB.Host)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "sk-test", cfg.OpenAI.APIKey)
	assert.Equal(t, 4, cfg.Embedding.Workers)
	assert.Equal(t, 0.7, cfg.Rerank.DiversityThreshold)
	assert.Equal(t, 30*time.Second, cfg.Query.Timeout)
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 1200, cfg.Chunking.Size)
	assert.Equal(t, 150, cfg.Chunking.Overlap)
	assert.Equal(t, 64, cfg.Embedding.BatchSize)
	assert.Equal(t, 8, cfg.Embedding.Workers)
	assert.Equal(t, 5000, cfg.Embedding.CacheCapacity)
	assert.Equal(t, 168*time.Hour, cfg.Embedding.CacheTTL)
	assert.Equal(t, 40, cfg.Retrieval.TopKCandidates)
	assert.Equal(t, 0.28, cfg.Retrieval.MinSimilarity)
	assert.Equal(t, 0.70, cfg.Retrieval.SemanticWeight)
	assert.Equal(t, 12, cfg.Rerank.TopK)
	assert.Equal(t, 0.5, cfg.Rerank.DiversityThreshold)
	assert.Equal(t, 12000, cfg.Context.MaxChars)
	assert.Equal(t, time.Hour, cfg.Query.CacheTTL)
	assert.Equal(t, "text-embedding-3-small", cfg.OpenAI.Model)
	assert.Equal(t, 1536, cfg.OpenAI.Dimensions)
	assert.Equal(t, "veritex-documents", cfg.S3.Bucket)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestDatabaseURL(t *testing.T) {
	cfg := &Config{
		DB: Database{
			Host:     "localhost",
			Port:     5432,
			User:     "veritex",
			Password: "pw",
			Name:     "veritex",
			SSLMode:  "disable",
		},
	}
	assert.Equal(t, "postgres://veritex:pw@localhost:5432/veritex?sslmode=disable", cfg.DatabaseURL())
}

func TestFeatureHelpers(t *testing.T) {
	cfg := &Config{
		S3: S3{
			Endpoint:  "http://localhost:9000",
			AccessKey: "key",
			SecretKey: "secret",
		},
	}
	assert.True(t, cfg.HasS3())
	cfg.S3.Endpoint = ""
	assert.False(t, cfg.HasS3())

	assert.False(t, cfg.HasRedis())
	cfg.Redis.Addr = "localhost:6379"
	assert.True(t, cfg.HasRedis())

	assert.False(t, cfg.HasQdrant())
	cfg.Qdrant.Host = "localhost"
	assert.True(t, cfg.HasQdrant())

	assert.False(t, cfg.HasOpenAI())
	cfg.OpenAI.APIKey = "sk-test"
	assert.True(t, cfg.HasOpenAI())
}
