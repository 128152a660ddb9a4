package openai

import (
	"context"
	"errors"
	"net"
	"sync"

	"github.com/OFFIS-RIT/clarifier/pkg/ai"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"golang.org/x/sync/semaphore"
)

// CatalogOpenAIClient is a client for the AI operations of the catalog
// pipeline, backed by OpenAI-compatible endpoints. It manages separate
// clients for embeddings and chat tasks so both can point at different
// deployments.
//
// A CatalogOpenAIClient should be created using NewCatalogOpenAIClient.
type CatalogOpenAIClient struct {
	chatModel      string
	embeddingModel string

	embeddingURL string
	embeddingKey string
	chatURL      string
	chatKey      string

	timeoutMin    int
	embeddingLock *semaphore.Weighted

	metricsLock sync.Mutex
	metrics     ai.ModelMetrics

	ChatClient      *openai.Client
	EmbeddingClient *openai.Client
}

// NewCatalogOpenAIClientParams defines the configuration parameters for
// creating a new CatalogOpenAIClient.
//
// ChatModel is the default model for discovery and drafting completions.
// EmbeddingModel specifies the model used for embeddings.
// EmbeddingURL and EmbeddingKey configure the embedding API endpoint.
// ChatURL and ChatKey configure the chat/completion API endpoint.
// RequestTimeoutMin bounds a single request in minutes (default 5).
// MaxConcurrentEmbeddings caps parallel embedding requests (default 4).
type NewCatalogOpenAIClientParams struct {
	ChatModel      string
	EmbeddingModel string

	EmbeddingURL string
	EmbeddingKey string
	ChatURL      string
	ChatKey      string

	RequestTimeoutMin       int
	MaxConcurrentEmbeddings int64
}

// NewCatalogOpenAIClient creates and returns a new CatalogOpenAIClient
// configured with the provided parameters.
//
// Example:
//
//	params := openai.NewCatalogOpenAIClientParams{
//		ChatModel:      "gpt-4o-mini",
//		EmbeddingModel: "text-embedding-3-small",
//		ChatURL:        "https://api.openai.com/v1",
//		ChatKey:        os.Getenv("OPENAI_API_KEY"),
//		EmbeddingURL:   "https://api.openai.com/v1",
//		EmbeddingKey:   os.Getenv("OPENAI_API_KEY"),
//	}
//	client := openai.NewCatalogOpenAIClient(params)
func NewCatalogOpenAIClient(
	params NewCatalogOpenAIClientParams,
) *CatalogOpenAIClient {
	chatClient := newOpenaiClient(params.ChatURL, params.ChatKey)
	embedClient := newOpenaiClient(params.EmbeddingURL, params.EmbeddingKey)

	timeoutMin := params.RequestTimeoutMin
	if timeoutMin <= 0 {
		timeoutMin = 5
	}
	maxEmbed := params.MaxConcurrentEmbeddings
	if maxEmbed <= 0 {
		maxEmbed = 4
	}

	return &CatalogOpenAIClient{
		chatModel:      params.ChatModel,
		embeddingModel: params.EmbeddingModel,

		chatURL:      params.ChatURL,
		chatKey:      params.ChatKey,
		embeddingURL: params.EmbeddingURL,
		embeddingKey: params.EmbeddingKey,

		timeoutMin:    timeoutMin,
		embeddingLock: semaphore.NewWeighted(maxEmbed),

		metricsLock: sync.Mutex{},
		metrics: ai.ModelMetrics{
			InputTokens:  0,
			OutputTokens: 0,
			TotalTokens:  0,
			DurationMs:   0,
		},

		ChatClient:      chatClient,
		EmbeddingClient: embedClient,
	}
}

func newOpenaiClient(
	baseURL string,
	apiKey string,
) *openai.Client {
	if apiKey == "" {
		return nil
	}
	options := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}

	if baseURL != "" {
		options = append(options, option.WithBaseURL(baseURL))
	}

	client := openai.NewClient(options...)

	return &client
}

// classifyErr folds SDK failures onto the shared error taxonomy. Network
// trouble, timeouts, rate limits, and upstream 5xx are transient; other API
// errors pass through unchanged.
func classifyErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var apierr *openai.Error
	if errors.As(err, &apierr) {
		switch {
		case apierr.StatusCode == 408, apierr.StatusCode == 429:
			return ai.Transient(err)
		case apierr.StatusCode >= 500:
			return ai.Transient(err)
		default:
			return err
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return ai.Transient(err)
	}

	// The SDK wraps plain transport failures without a status code.
	return ai.Transient(err)
}
