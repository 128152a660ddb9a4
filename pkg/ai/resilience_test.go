package ai

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestResilientClient_CompletionPassthrough(t *testing.T) {
	stub := &stubAIClient{
		completion: func(ctx context.Context, prompt string) (string, error) {
			return "answer", nil
		},
	}
	client := NewResilientClient(stub, DefaultResilienceConfig())

	got, err := client.GenerateCompletion(context.Background(), "prompt")
	if err != nil {
		t.Fatalf("GenerateCompletion() error = %v", err)
	}
	if got != "answer" {
		t.Errorf("GenerateCompletion() = %q, want %q", got, "answer")
	}
}

func TestResilientClient_EmbeddingBreakerDegrades(t *testing.T) {
	calls := 0
	stub := &stubAIClient{
		embedding: func(ctx context.Context, input []byte) ([]float32, error) {
			calls++
			return nil, Transient(errors.New("connection refused"))
		},
	}
	cfg := DefaultResilienceConfig()
	cfg.BreakerMaxFailures = 2
	cfg.BreakerTimeout = time.Minute
	client := NewResilientClient(stub, cfg)

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if _, err := client.GenerateEmbedding(ctx, []byte("text")); err == nil {
			t.Fatalf("GenerateEmbedding() call %d expected error", i)
		}
	}

	// Breaker is open now; the inner client must not be reached again.
	_, err := client.GenerateEmbedding(ctx, []byte("text"))
	if !errors.Is(err, ErrEmbeddingUnavailable) {
		t.Fatalf("GenerateEmbedding() error = %v, want ErrEmbeddingUnavailable", err)
	}
	if calls != 2 {
		t.Errorf("inner calls = %d, want 2", calls)
	}
}

func TestResilientClient_MalformedDoesNotTrip(t *testing.T) {
	stub := &stubAIClient{
		format: func(ctx context.Context, prompt string, out any) error {
			return Malformed("bad json", "{", nil)
		},
	}
	cfg := DefaultResilienceConfig()
	cfg.BreakerMaxFailures = 2
	client := NewResilientClient(stub, cfg)

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		err := client.GenerateCompletionWithFormat(ctx, "draft", "", "prompt", nil)
		if !IsMalformed(err) {
			t.Fatalf("call %d: error = %v, want malformed passthrough (breaker must stay closed)", i, err)
		}
	}
}

func TestResilientClient_OpenGenerateBreakerIsTransient(t *testing.T) {
	stub := &stubAIClient{
		completion: func(ctx context.Context, prompt string) (string, error) {
			return "", Transient(errors.New("timeout"))
		},
	}
	cfg := DefaultResilienceConfig()
	cfg.BreakerMaxFailures = 1
	cfg.BreakerTimeout = time.Minute
	client := NewResilientClient(stub, cfg)

	ctx := context.Background()
	if _, err := client.GenerateCompletion(ctx, "p"); err == nil {
		t.Fatal("first call expected error")
	}

	_, err := client.GenerateCompletion(ctx, "p")
	if !IsTransient(err) {
		t.Fatalf("open breaker error = %v, want transient so retries back off", err)
	}
}

func TestResilientClient_RateLimiterHonorsContext(t *testing.T) {
	stub := &stubAIClient{
		completion: func(ctx context.Context, prompt string) (string, error) {
			return "ok", nil
		},
	}
	cfg := DefaultResilienceConfig()
	cfg.RequestsPerSecond = 0.1 // next token ~10s away
	client := NewResilientClient(stub, cfg)

	ctx := context.Background()
	if _, err := client.GenerateCompletion(ctx, "p"); err != nil {
		t.Fatalf("first call error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := client.GenerateCompletion(ctx, "p"); err == nil {
		t.Fatal("second call expected context error from limiter wait")
	}
}

// stubAIClient implements CatalogAIClient for tests.
type stubAIClient struct {
	completion func(ctx context.Context, prompt string) (string, error)
	format     func(ctx context.Context, prompt string, out any) error
	embedding  func(ctx context.Context, input []byte) ([]float32, error)
}

func (s *stubAIClient) GenerateCompletion(ctx context.Context, prompt string, opts ...GenerateOption) (string, error) {
	if s.completion == nil {
		return "", nil
	}
	return s.completion(ctx, prompt)
}

func (s *stubAIClient) GenerateCompletionWithFormat(ctx context.Context, name string, description string, prompt string, out any, opts ...GenerateOption) error {
	if s.format == nil {
		return nil
	}
	return s.format(ctx, prompt, out)
}

func (s *stubAIClient) GenerateEmbedding(ctx context.Context, input []byte) ([]float32, error) {
	if s.embedding == nil {
		return nil, nil
	}
	return s.embedding(ctx, input)
}

func (s *stubAIClient) LoadModel(ctx context.Context, opts ...GenerateOption) error {
	return nil
}

func (s *stubAIClient) ResetMetrics() {}

func (s *stubAIClient) GetMetrics() ModelMetrics {
	return ModelMetrics{}
}
