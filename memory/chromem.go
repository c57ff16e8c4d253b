package memory

import (
	"context"
	"fmt"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	"github.com/xiaot623/recall/domain"
)

// ChromemIndex implements Index on chromem-go, an embedded pure-Go
// vector database. One collection holds all conversation chunks.
type ChromemIndex struct {
	col *chromem.Collection
	mu  sync.RWMutex
}

// NewChromemIndex creates the index with a single collection.
func NewChromemIndex(name string) (*ChromemIndex, error) {
	db := chromem.NewDB()
	// Embeddings are supplied by the caller, so no embedding func here.
	col, err := db.CreateCollection(name, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}
	return &ChromemIndex{col: col}, nil
}

// Upsert stores one chunk vector with its text and metadata.
func (x *ChromemIndex) Upsert(ctx context.Context, id string, vector []float32, text string, metadata map[string]string) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	doc := chromem.Document{
		ID:        id,
		Content:   text,
		Embedding: vector,
		Metadata:  metadata,
	}
	if err := x.col.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("add document: %w", err)
	}
	return nil
}

// Query returns the topK most similar chunks, best first.
func (x *ChromemIndex) Query(ctx context.Context, vector []float32, topK int) ([]domain.Source, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	// chromem rejects nResults larger than the collection, so clamp.
	count := x.col.Count()
	if count == 0 {
		return nil, nil
	}
	if topK > count {
		topK = count
	}
	if topK <= 0 {
		topK = 1
	}

	results, err := x.col.QueryEmbedding(ctx, vector, topK, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query embedding: %w", err)
	}

	sources := make([]domain.Source, 0, len(results))
	for _, r := range results {
		sources = append(sources, domain.Source{
			Text:     r.Content,
			Score:    r.Similarity,
			Metadata: r.Metadata,
		})
	}
	return sources, nil
}
