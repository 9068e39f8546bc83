package config

import (
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config is the full engine configuration, loaded once at startup and
// passed into the components that need it. Nothing reads ambient state
// after Load returns. Variables are named VERITEX_<SECTION>_<FIELD>,
// e.g. VERITEX_DB_HOST or VERITEX_RERANK_DIVERSITY_THRESHOLD.
type Config struct {
	DB        Database  `envconfig:"DB"`
	Qdrant    Qdrant    `envconfig:"QDRANT"`
	Redis     Redis     `envconfig:"REDIS"`
	OpenAI    OpenAI    `envconfig:"OPENAI"`
	S3        S3        `envconfig:"S3"`
	Chunking  Chunking  `envconfig:"CHUNK"`
	Embedding Embedding `envconfig:"EMBED"`
	Retrieval Retrieval `envconfig:"RETRIEVAL"`
	Rerank    Rerank    `envconfig:"RERANK"`
	Context   Context   `envconfig:"CONTEXT"`
	Query     Query     `envconfig:"QUERY"`
	Log       Log       `envconfig:"LOG"`
}

// Database configures the Postgres pool backing the pgvector store and
// the document registry.
type Database struct {
	Host     string `default:"localhost"`
	Port     int    `default:"5432"`
	User     string `default:"veritex"`
	Password string
	Name     string `default:"veritex"`
	SSLMode  string `split_words:"true" default:"disable"`
	MaxConns int32  `split_words:"true" default:"10"`
	MinConns int32  `split_words:"true" default:"2"`
}

// Qdrant configures the alternative vector store backend.
type Qdrant struct {
	Host string
	Port int `default:"6334"`
}

// Redis configures the optional embedding-cache persistence tier.
type Redis struct {
	Addr     string
	Password string
}

// OpenAI configures the embedding inference client.
type OpenAI struct {
	APIKey     string `split_words:"true"`
	BaseURL    string `split_words:"true"`
	Model      string `envconfig:"EMBEDDING_MODEL" default:"text-embedding-3-small"`
	Dimensions int    `envconfig:"EMBEDDING_DIMENSIONS" default:"1536"`
}

// S3 configures the optional raw-document archive.
type S3 struct {
	Endpoint  string
	AccessKey string `envconfig:"ACCESS_KEY_ID"`
	SecretKey string `envconfig:"SECRET_ACCESS_KEY"`
	Bucket    string `default:"veritex-documents"`
	Region    string `default:"us-east-1"`
}

// Chunking mirrors service.ChunkConfig.
type Chunking struct {
	Size           int `default:"1200"`
	Overlap        int `default:"150"`
	TableChunkSize int `split_words:"true" default:"2000"`
	MinChunkChars  int `split_words:"true" default:"10"`
}

// Embedding tunes the batching pipeline and its cache.
type Embedding struct {
	BatchSize     int           `split_words:"true" default:"64"`
	Workers       int           `default:"8"`
	RetryDelay    time.Duration `split_words:"true" default:"500ms"`
	CacheCapacity int           `split_words:"true" default:"5000"`
	CacheTTL      time.Duration `split_words:"true" default:"168h"`
}

// Retrieval tunes the hybrid search stage.
type Retrieval struct {
	TopKCandidates int     `split_words:"true" default:"40"`
	MinSimilarity  float64 `split_words:"true" default:"0.28"`
	SemanticWeight float64 `split_words:"true" default:"0.70"`
	BM25K1         float64 `envconfig:"BM25_K1" default:"1.5"`
	BM25B          float64 `envconfig:"BM25_B" default:"0.75"`
}

// Rerank tunes candidate selection.
type Rerank struct {
	TopK               int     `split_words:"true" default:"12"`
	DiversityThreshold float64 `split_words:"true" default:"0.5"`
}

// Context bounds the assembled output.
type Context struct {
	MaxChars int `split_words:"true" default:"12000"`
}

// Query tunes the query path and its result cache.
type Query struct {
	Timeout       time.Duration `default:"10s"`
	CacheCapacity int           `split_words:"true" default:"1000"`
	CacheTTL      time.Duration `split_words:"true" default:"1h"`
}

// Log configures output of the CLI's logger.
type Log struct {
	Level  string `default:"info"`
	Format string `default:"text"`
}

// Load reads configuration from a .env file (when present) and the
// VERITEX_* environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("VERITEX", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	return &cfg, nil
}

// LoadFile is Load with an explicit .env path.
func LoadFile(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("failed to load env file %s: %w", envFile, err)
		}
	}
	return Load()
}

func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	return cfg
}

func (c *Config) HasS3() bool {
	return c.S3.Endpoint != "" && c.S3.AccessKey != "" && c.S3.SecretKey != ""
}

func (c *Config) HasRedis() bool {
	return c.Redis.Addr != ""
}

func (c *Config) HasQdrant() bool {
	return c.Qdrant.Host != ""
}

func (c *Config) HasOpenAI() bool {
	return c.OpenAI.APIKey != ""
}

// DatabaseURL renders the Postgres connection string, also used by the
// migration runner.
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DB.User,
		c.DB.Password,
		c.DB.Host,
		c.DB.Port,
		c.DB.Name,
		c.DB.SSLMode,
	)
}
