// Package vectorstore implements the Vector Store (C4): cosine top-k
// search over EmbeddingDocuments, polymorphic over {InMemory, Remote,
// Postgres} variants sharing ports.VectorStore.
package vectorstore

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/atlasvoice/assistant/internal/domain"
	"github.com/atlasvoice/assistant/internal/domain/models"
)

// InMemory is a flat-slice, brute-force cosine-scoring implementation,
// adequate at the expected corpus sizes (a few hundred example utterances
// per intent).
type InMemory struct {
	mu        sync.RWMutex
	dimension int
	docs      map[string]*models.EmbeddingDocument
}

// NewInMemory creates an InMemory vector store fixed to dimension.
func NewInMemory(dimension int) *InMemory {
	return &InMemory{
		dimension: dimension,
		docs:      make(map[string]*models.EmbeddingDocument),
	}
}

// Upsert implements ports.VectorStore. Last write wins by call order,
// since the store takes no timestamp; callers needing last-write-wins by
// timestamp should compare before calling.
func (s *InMemory) Upsert(ctx context.Context, doc *models.EmbeddingDocument) error {
	if len(doc.Vector) != s.dimension {
		return domain.ErrDimensionMismatch
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *doc
	cp.Vector = append([]float32(nil), doc.Vector...)
	s.docs[doc.DocID] = &cp
	return nil
}

// Delete implements ports.VectorStore.
func (s *InMemory) Delete(ctx context.Context, docID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, docID)
	return nil
}

// Get implements ports.VectorStore.
func (s *InMemory) Get(ctx context.Context, docID string) (*models.EmbeddingDocument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[docID]
	if !ok {
		return nil, domain.ErrDocumentNotFound
	}
	return doc, nil
}

// SearchTopK implements ports.VectorStore. When every candidate falls
// below minSimilarity, the returned slice is empty — never the
// best-below-floor item (resolved Open Question, see DESIGN.md).
func (s *InMemory) SearchTopK(ctx context.Context, queryVec []float32, k int, minSimilarity *float64) ([]models.ScoredDocument, error) {
	if len(queryVec) != s.dimension {
		return nil, domain.ErrDimensionMismatch
	}
	s.mu.RLock()
	scored := make([]models.ScoredDocument, 0, len(s.docs))
	for _, doc := range s.docs {
		sim := cosineSimilarity(queryVec, doc.Vector)
		if minSimilarity != nil && sim < *minSimilarity {
			continue
		}
		scored = append(scored, models.ScoredDocument{Document: doc, Similarity: sim})
	}
	s.mu.RUnlock()

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Similarity != scored[j].Similarity {
			return scored[i].Similarity > scored[j].Similarity
		}
		return scored[i].Document.DocID < scored[j].Document.DocID
	})
	if k >= 0 && len(scored) > k {
		scored = scored[:k]
	}
	return scored, nil
}

// Dimension implements ports.VectorStore.
func (s *InMemory) Dimension() int {
	return s.dimension
}

func cosineSimilarity(a, b []float32) float64 {
	var dot, normA, normB float64
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
