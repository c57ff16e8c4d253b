package memory

import (
	"context"
	"fmt"
	"log"

	"github.com/dgraph-io/ristretto"

	"github.com/xiaot623/recall/domain"
)

// Retriever performs similarity retrieval over the long-term tier. It is
// reentrant: topK is a per-call argument, never shared state, so
// concurrent queries cannot interfere with each other.
type Retriever struct {
	embedder Embedder
	index    Index
	cache    *ristretto.Cache
}

// NewRetriever creates a retriever with a query-embedding cache in front
// of the embedder. Repeated queries for the same text skip the embedding
// call.
func NewRetriever(embedder Embedder, index Index) (*Retriever, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 10_000,
		MaxCost:     1 << 24, // ~16MB of cached vectors
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create embedding cache: %w", err)
	}
	return &Retriever{
		embedder: embedder,
		index:    index,
		cache:    cache,
	}, nil
}

// Retrieve embeds the query text and returns the topK most similar
// long-term chunks.
func (r *Retriever) Retrieve(ctx context.Context, query string, topK int) ([]domain.Source, error) {
	vector, err := r.embedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	sources, err := r.index.Query(ctx, vector, topK)
	if err != nil {
		return nil, fmt.Errorf("query index: %w", err)
	}
	log.Printf("[RETRIEVER] %d long-term matches for topK=%d", len(sources), topK)
	return sources, nil
}

func (r *Retriever) embedQuery(ctx context.Context, query string) ([]float32, error) {
	if cached, ok := r.cache.Get(query); ok {
		if vec, ok := cached.([]float32); ok {
			return vec, nil
		}
	}

	vector, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	r.cache.Set(query, vector, int64(len(vector)*4))
	return vector, nil
}
