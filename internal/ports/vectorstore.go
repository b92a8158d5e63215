package ports

import (
	"context"

	"github.com/atlasvoice/assistant/internal/domain/models"
)

// VectorStore (C4) is polymorphic over {InMemory, Remote, Postgres} variants.
// Similarity is cosine; SearchTopK results are sorted descending and
// filtered by minSimilarity when supplied. Implementations reject upserts
// whose vector dimension does not match the configured dimension.
type VectorStore interface {
	Upsert(ctx context.Context, doc *models.EmbeddingDocument) error
	Delete(ctx context.Context, docID string) error
	Get(ctx context.Context, docID string) (*models.EmbeddingDocument, error)
	SearchTopK(ctx context.Context, queryVec []float32, k int, minSimilarity *float64) ([]models.ScoredDocument, error)
	Dimension() int
}
