package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/cloo-solutions/veritexai/internal/domain"
)

const (
	// DefaultEmbeddingModel is the OpenAI model used for generating embeddings
	DefaultEmbeddingModel = openai.SmallEmbedding3
	// DefaultEmbeddingDimensions is the expected dimension of embeddings from text-embedding-3-small
	DefaultEmbeddingDimensions = 1536
)

var (
	// ErrEmptyText is returned for batch items that contain no text
	ErrEmptyText = errors.New("text cannot be empty")
	// ErrWrongDimensions is returned when an embedding has unexpected dimensions
	ErrWrongDimensions = errors.New("embedding has wrong dimensions")
	// ErrMissingEmbedding is returned when the API response omits a requested item
	ErrMissingEmbedding = errors.New("no embedding returned for input")
	// ErrNoAPIKey is returned when OpenAI API key is not set
	ErrNoAPIKey = errors.New("OPENAI_API_KEY environment variable not set")
)

// EmbeddingModel aliases the SDK model identifier so callers configure
// the client without importing the SDK themselves.
type EmbeddingModel = openai.EmbeddingModel

// EmbeddingAPI is the slice of the OpenAI SDK the client depends on.
// *openai.Client satisfies it directly.
type EmbeddingAPI interface {
	CreateEmbeddings(ctx context.Context, conv openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error)
}

// Client wraps the OpenAI API client for batch embedding generation.
type Client struct {
	api        EmbeddingAPI
	model      openai.EmbeddingModel
	dimensions int
}

type Config struct {
	APIKey              string
	BaseURL             string
	EmbeddingModel      openai.EmbeddingModel
	EmbeddingDimensions int
}

// NewClient creates a new OpenAI client using defaults.
func NewClient(apiKey string) *Client {
	return NewClientWithConfig(Config{APIKey: apiKey})
}

// NewClientWithConfig creates a new OpenAI client with explicit configuration.
func NewClientWithConfig(cfg Config) *Client {
	model := cfg.EmbeddingModel
	if model == "" {
		model = DefaultEmbeddingModel
	}
	dimensions := cfg.EmbeddingDimensions
	if dimensions <= 0 {
		dimensions = DefaultEmbeddingDimensions
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &Client{
		api:        openai.NewClientWithConfig(clientCfg),
		model:      model,
		dimensions: dimensions,
	}
}

// NewClientFromEnv creates a new OpenAI client using OPENAI_API_KEY environment variable
func NewClientFromEnv() (*Client, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, ErrNoAPIKey
	}
	return NewClient(apiKey), nil
}

// Model returns the embedding model identifier, used in cache keys.
func (c *Client) Model() string {
	return string(c.model)
}

// Dimensions returns the expected embedding width.
func (c *Client) Dimensions() int {
	return c.dimensions
}

// EmbedBatch generates embeddings for texts in one API call. The
// returned slices are index-aligned with texts: vectors[i] is nil
// exactly when itemErrs[i] is set. A non-nil call error means the whole
// batch failed and nothing was embedded; use IsRetryable to decide
// whether another attempt makes sense.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) (vectors [][]float32, itemErrs []error, err error) {
	if len(texts) == 0 {
		return nil, nil, nil
	}

	vectors = make([][]float32, len(texts))
	itemErrs = make([]error, len(texts))

	// Empty inputs would fail the whole request, so they are resolved
	// locally and only real texts go to the API.
	send := make([]string, 0, len(texts))
	sendIdx := make([]int, 0, len(texts))
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			itemErrs[i] = ErrEmptyText
			continue
		}
		send = append(send, t)
		sendIdx = append(sendIdx, i)
	}
	if len(send) == 0 {
		return vectors, itemErrs, nil
	}

	resp, err := c.api.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: send,
		Model: c.model,
	})
	if err != nil {
		if IsRetryable(err) {
			return nil, nil, domain.NewDomainErrorWithCause(domain.ErrCodeInferenceUnavailable, "failed to create embeddings", err)
		}
		return nil, nil, fmt.Errorf("failed to create embeddings: %w", err)
	}

	seen := make([]bool, len(send))
	for _, data := range resp.Data {
		if data.Index < 0 || data.Index >= len(send) {
			continue
		}
		seen[data.Index] = true
		orig := sendIdx[data.Index]
		if len(data.Embedding) != c.dimensions {
			itemErrs[orig] = fmt.Errorf("%w: expected %d, got %d", ErrWrongDimensions, c.dimensions, len(data.Embedding))
			continue
		}
		vectors[orig] = data.Embedding
	}
	for j, ok := range seen {
		if !ok {
			itemErrs[sendIdx[j]] = ErrMissingEmbedding
		}
	}

	return vectors, itemErrs, nil
}

// IsRetryable reports whether a batch-level failure is transient:
// rate limits, server errors and transport failures qualify, context
// cancellation and request rejections do not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= 500
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusTooManyRequests || reqErr.HTTPStatusCode >= 500
	}

	// Anything below the HTTP layer (DNS, dial, reset) is worth a retry.
	return true
}
