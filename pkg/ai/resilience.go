package ai

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// ResilienceConfig bounds the pressure put on the inference backend: a
// request rate shared by all generation calls plus circuit breakers that
// stop hammering a backend that is already failing.
type ResilienceConfig struct {
	// RequestsPerSecond caps outgoing calls. Zero or negative disables
	// rate limiting.
	RequestsPerSecond float64
	// Burst is the limiter bucket size. Defaults to 1 when unset.
	Burst int
	// BreakerMaxFailures is the number of consecutive transient failures
	// that trips a breaker.
	BreakerMaxFailures uint32
	// BreakerTimeout is how long a tripped breaker stays open before
	// allowing probe requests.
	BreakerTimeout time.Duration
	// BreakerHalfOpenMax is the number of probe requests allowed while
	// half-open.
	BreakerHalfOpenMax uint32
}

// DefaultResilienceConfig mirrors the production defaults: no rate cap,
// three consecutive failures to trip, 30 seconds open.
func DefaultResilienceConfig() ResilienceConfig {
	return ResilienceConfig{
		BreakerMaxFailures: 3,
		BreakerTimeout:     30 * time.Second,
		BreakerHalfOpenMax: 2,
	}
}

// ResilientClient decorates a CatalogAIClient with rate limiting and
// per-concern circuit breakers. Generation and embedding calls trip
// independently: a dead embedding backend must not block drafting, and vice
// versa.
//
// When the embedding breaker is open, GenerateEmbedding returns
// ErrEmbeddingUnavailable so callers degrade to retrieval-free operation.
// When a generation breaker is open the error is transient, so the caller's
// retry policy backs off and tries again.
type ResilientClient struct {
	inner   CatalogAIClient
	limiter *rate.Limiter
	chat    *gobreaker.CircuitBreaker
	embed   *gobreaker.CircuitBreaker
}

// NewResilientClient wraps inner with the given resilience configuration.
func NewResilientClient(inner CatalogAIClient, cfg ResilienceConfig) *ResilientClient {
	if cfg.BreakerMaxFailures == 0 {
		cfg.BreakerMaxFailures = 3
	}
	if cfg.BreakerTimeout == 0 {
		cfg.BreakerTimeout = 30 * time.Second
	}
	if cfg.BreakerHalfOpenMax == 0 {
		cfg.BreakerHalfOpenMax = 2
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	settings := func(name string) gobreaker.Settings {
		return gobreaker.Settings{
			Name:        name,
			MaxRequests: cfg.BreakerHalfOpenMax,
			Timeout:     cfg.BreakerTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= cfg.BreakerMaxFailures
			},
			// Malformed output means the backend is up; only transport
			// trouble should trip the breaker.
			IsSuccessful: func(err error) bool {
				return err == nil || !IsTransient(err)
			},
		}
	}

	return &ResilientClient{
		inner:   inner,
		limiter: limiter,
		chat:    gobreaker.NewCircuitBreaker(settings("ai-generate")),
		embed:   gobreaker.NewCircuitBreaker(settings("ai-embed")),
	}
}

func (c *ResilientClient) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

func breakerOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

// GenerateCompletion rate-limits and routes the call through the generation
// breaker.
func (c *ResilientClient) GenerateCompletion(ctx context.Context, prompt string, opts ...GenerateOption) (string, error) {
	if err := c.wait(ctx); err != nil {
		return "", err
	}
	result, err := c.chat.Execute(func() (any, error) {
		return c.inner.GenerateCompletion(ctx, prompt, opts...)
	})
	if err != nil {
		if breakerOpen(err) {
			return "", Transient(err)
		}
		return "", err
	}
	return result.(string), nil
}

// GenerateCompletionWithFormat rate-limits and routes the call through the
// generation breaker.
func (c *ResilientClient) GenerateCompletionWithFormat(ctx context.Context, name string, description string, prompt string, out any, opts ...GenerateOption) error {
	if err := c.wait(ctx); err != nil {
		return err
	}
	_, err := c.chat.Execute(func() (any, error) {
		return nil, c.inner.GenerateCompletionWithFormat(ctx, name, description, prompt, out, opts...)
	})
	if breakerOpen(err) {
		return Transient(err)
	}
	return err
}

// GenerateEmbedding rate-limits and routes the call through the embedding
// breaker. An open breaker surfaces as ErrEmbeddingUnavailable.
func (c *ResilientClient) GenerateEmbedding(ctx context.Context, input []byte) ([]float32, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	result, err := c.embed.Execute(func() (any, error) {
		return c.inner.GenerateEmbedding(ctx, input)
	})
	if err != nil {
		if breakerOpen(err) {
			return nil, ErrEmbeddingUnavailable
		}
		return nil, err
	}
	return result.([]float32), nil
}

func (c *ResilientClient) LoadModel(ctx context.Context, opts ...GenerateOption) error {
	return c.inner.LoadModel(ctx, opts...)
}

func (c *ResilientClient) ResetMetrics() {
	c.inner.ResetMetrics()
}

func (c *ResilientClient) GetMetrics() ModelMetrics {
	return c.inner.GetMetrics()
}
