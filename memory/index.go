package memory

import (
	"context"

	"github.com/xiaot623/recall/domain"
)

// Index is the vector index holding embedded conversation chunks.
// Implementations may be eventually consistent: a just-upserted chunk
// need not be immediately queryable.
type Index interface {
	// Upsert stores a vector with its source text and metadata under id.
	Upsert(ctx context.Context, id string, vector []float32, text string, metadata map[string]string) error

	// Query returns the topK most similar entries, best first.
	Query(ctx context.Context, vector []float32, topK int) ([]domain.Source, error)
}
