package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/atlasvoice/assistant/internal/adapters/postgres"
	"github.com/atlasvoice/assistant/internal/domain"
	"github.com/atlasvoice/assistant/internal/domain/models"
)

// Postgres is the Vector Store (C4) variant backed by a pgvector-enabled
// Postgres table, an alternative to Remote's Qdrant backing for
// deployments that already run Postgres for the catalogue (C2) and want
// one fewer moving part. Cosine distance uses pgvector's `<=>` operator.
type Postgres struct {
	postgres.BaseRepository
	dimension int
}

// NewPostgres creates a Postgres vector store fixed to dimension. The
// backing table must already exist with a `vector(dimension)` column;
// schema migration is out of this package's scope.
func NewPostgres(pool *pgxpool.Pool, dimension int) *Postgres {
	return &Postgres{
		BaseRepository: postgres.NewBaseRepository(pool),
		dimension:      dimension,
	}
}

func (s *Postgres) Upsert(ctx context.Context, doc *models.EmbeddingDocument) error {
	if len(doc.Vector) != s.dimension {
		return domain.ErrDimensionMismatch
	}
	metadata, err := json.Marshal(doc.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	vec := pgvector.NewVector(doc.Vector)
	_, err = postgres.GetConn(ctx, s.Pool()).Exec(ctx, `
		INSERT INTO embedding_documents (doc_id, content, intent_id, vector, metadata)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (doc_id) DO UPDATE SET
			content = EXCLUDED.content,
			intent_id = EXCLUDED.intent_id,
			vector = EXCLUDED.vector,
			metadata = EXCLUDED.metadata`,
		doc.DocID, doc.Content, doc.IntentID, vec, metadata)
	if err != nil {
		return fmt.Errorf("upsert embedding document %q: %w", doc.DocID, err)
	}
	return nil
}

func (s *Postgres) Delete(ctx context.Context, docID string) error {
	_, err := postgres.GetConn(ctx, s.Pool()).Exec(ctx, `DELETE FROM embedding_documents WHERE doc_id = $1`, docID)
	if err != nil {
		return fmt.Errorf("delete embedding document %q: %w", docID, err)
	}
	return nil
}

func (s *Postgres) Get(ctx context.Context, docID string) (*models.EmbeddingDocument, error) {
	row := postgres.GetConn(ctx, s.Pool()).QueryRow(ctx, `
		SELECT doc_id, content, intent_id, vector, metadata, 0.0
		FROM embedding_documents WHERE doc_id = $1`, docID)
	doc, _, err := scanDocument(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.ErrDocumentNotFound
		}
		return nil, fmt.Errorf("get embedding document %q: %w", docID, err)
	}
	return doc, nil
}

// SearchTopK implements ports.VectorStore via pgvector's `<=>` cosine
// distance operator; similarity is reported as 1 - distance, matching
// InMemory's [-1, 1] cosine-similarity convention. minSimilarity is
// applied in SQL so a HAVING-less filter never requires fetching more
// rows than necessary.
func (s *Postgres) SearchTopK(ctx context.Context, queryVec []float32, k int, minSimilarity *float64) ([]models.ScoredDocument, error) {
	if len(queryVec) != s.dimension {
		return nil, domain.ErrDimensionMismatch
	}
	vec := pgvector.NewVector(queryVec)

	query := `
		SELECT doc_id, content, intent_id, vector, metadata, 1 - (vector <=> $1) AS similarity
		FROM embedding_documents`
	args := []any{vec}
	if minSimilarity != nil {
		query += ` WHERE 1 - (vector <=> $1) >= $2`
		args = append(args, *minSimilarity)
	}
	query += ` ORDER BY vector <=> $1 LIMIT $` + fmt.Sprintf("%d", len(args)+1)
	args = append(args, k)

	rows, err := postgres.GetConn(ctx, s.Pool()).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search embedding documents: %w", err)
	}
	defer rows.Close()

	results := make([]models.ScoredDocument, 0, k)
	for rows.Next() {
		doc, similarity, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan embedding document row: %w", err)
		}
		results = append(results, models.ScoredDocument{Document: doc, Similarity: similarity})
	}
	return results, rows.Err()
}

func (s *Postgres) Dimension() int {
	return s.dimension
}

// rowScanner covers both pgx.Row (Get) and pgx.Rows (SearchTopK), which
// share a Scan method but not a common named interface in pgx/v5.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanDocument scans a row shaped like both Get's and SearchTopK's
// queries: doc_id, content, intent_id, vector, metadata, similarity (Get
// selects a literal 0.0 for the last column since it has no query vector
// to score against).
func scanDocument(r rowScanner) (*models.EmbeddingDocument, float64, error) {
	var doc models.EmbeddingDocument
	var vec pgvector.Vector
	var metadata []byte
	var similarity float64
	if err := r.Scan(&doc.DocID, &doc.Content, &doc.IntentID, &vec, &metadata, &similarity); err != nil {
		return nil, 0, err
	}
	doc.Vector = vec.Slice()
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &doc.Metadata); err != nil {
			return nil, 0, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	return &doc, similarity, nil
}
