package store

import (
	"context"
	"fmt"

	"github.com/OFFIS-RIT/clarifier/pkg/ai"
	"golang.org/x/sync/errgroup"
)

// BatchRange calls fn over [start, end) windows of at most batchSize until
// total is covered. Used to keep database transactions and embedding
// requests bounded.
func BatchRange(total, batchSize int, fn func(start, end int) error) error {
	if total <= 0 {
		return nil
	}
	if batchSize <= 0 {
		batchSize = total
	}
	for start := 0; start < total; start += batchSize {
		end := min(start+batchSize, total)
		if err := fn(start, end); err != nil {
			return err
		}
	}
	return nil
}

// DedupeStrings returns in without empty strings or repeats, preserving
// first-seen order.
func DedupeStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

type embeddingBatcher interface {
	GenerateEmbeddings(ctx context.Context, inputs [][]byte) ([][]float32, error)
}

// GenerateEmbeddings embeds all inputs, using the client's batch fast path
// when it has one and falling back to parallel single-input calls otherwise.
func GenerateEmbeddings(
	ctx context.Context,
	client ai.CatalogAIClient,
	inputs [][]byte,
) ([][]float32, error) {
	if client == nil {
		return nil, fmt.Errorf("ai client is nil")
	}
	if len(inputs) == 0 {
		return nil, nil
	}
	if b, ok := client.(embeddingBatcher); ok {
		return b.GenerateEmbeddings(ctx, inputs)
	}

	out := make([][]float32, len(inputs))

	eg, ectx := errgroup.WithContext(ctx)
	for i := range inputs {
		idx := i
		in := inputs[i]
		eg.Go(func() error {
			emb, err := client.GenerateEmbedding(ectx, in)
			if err != nil {
				return err
			}
			out[idx] = emb
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	return out, nil
}
