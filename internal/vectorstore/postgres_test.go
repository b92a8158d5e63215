package vectorstore

import (
	"context"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/pgvector/pgvector-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlasvoice/assistant/internal/adapters/postgres"
	"github.com/atlasvoice/assistant/internal/domain"
	"github.com/atlasvoice/assistant/internal/domain/models"
)

func newMockPostgresStore(t *testing.T) (*Postgres, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	store := &Postgres{
		BaseRepository: postgres.NewBaseRepository(nil),
		dimension:      3,
	}
	return store, mock
}

func mockCtx(mock pgxmock.PgxPoolIface) context.Context {
	return postgres.ContextWithTx(context.Background(), mock)
}

func TestPostgres_Upsert(t *testing.T) {
	store, mock := newMockPostgresStore(t)
	doc := &models.EmbeddingDocument{
		DocID:    "doc_1",
		Content:  "turn off the lights",
		IntentID: "lights_off",
		Vector:   []float32{0.1, 0.2, 0.3},
		Metadata: map[string]any{"source": "seed"},
	}

	mock.ExpectExec("INSERT INTO embedding_documents").
		WithArgs(doc.DocID, doc.Content, doc.IntentID, pgvector.NewVector(doc.Vector), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := store.Upsert(mockCtx(mock), doc)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_Upsert_DimensionMismatch(t *testing.T) {
	store, _ := newMockPostgresStore(t)
	doc := &models.EmbeddingDocument{DocID: "doc_1", Vector: []float32{0.1, 0.2}}

	err := store.Upsert(context.Background(), doc)
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
}

func TestPostgres_Delete(t *testing.T) {
	store, mock := newMockPostgresStore(t)

	mock.ExpectExec("DELETE FROM embedding_documents").
		WithArgs("doc_1").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	err := store.Delete(mockCtx(mock), "doc_1")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_Get(t *testing.T) {
	store, mock := newMockPostgresStore(t)
	vec := pgvector.NewVector([]float32{0.1, 0.2, 0.3})

	rows := pgxmock.NewRows([]string{"doc_id", "content", "intent_id", "vector", "metadata", "similarity"}).
		AddRow("doc_1", "turn off the lights", "lights_off", vec, []byte(`{"source":"seed"}`), 0.0)
	mock.ExpectQuery("SELECT doc_id, content, intent_id, vector, metadata, 0.0").
		WithArgs("doc_1").
		WillReturnRows(rows)

	doc, err := store.Get(mockCtx(mock), "doc_1")
	require.NoError(t, err)
	assert.Equal(t, "doc_1", doc.DocID)
	assert.Equal(t, "lights_off", doc.IntentID)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, doc.Vector)
	assert.Equal(t, "seed", doc.Metadata["source"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_Get_NotFound(t *testing.T) {
	store, mock := newMockPostgresStore(t)

	rows := pgxmock.NewRows([]string{"doc_id", "content", "intent_id", "vector", "metadata", "similarity"})
	mock.ExpectQuery("SELECT doc_id, content, intent_id, vector, metadata, 0.0").
		WithArgs("missing").
		WillReturnRows(rows)

	_, err := store.Get(mockCtx(mock), "missing")
	assert.ErrorIs(t, err, domain.ErrDocumentNotFound)
}

func TestPostgres_SearchTopK(t *testing.T) {
	store, mock := newMockPostgresStore(t)
	query := []float32{1, 0, 0}
	min := 0.5

	rows := pgxmock.NewRows([]string{"doc_id", "content", "intent_id", "vector", "metadata", "similarity"}).
		AddRow("doc_1", "turn off the lights", "lights_off", pgvector.NewVector([]float32{1, 0, 0}), []byte(`{}`), 0.98).
		AddRow("doc_2", "dim the lights", "lights_dim", pgvector.NewVector([]float32{0.9, 0.1, 0}), []byte(`{}`), 0.91)
	mock.ExpectQuery("SELECT doc_id, content, intent_id, vector, metadata, 1 - \\(vector <=> \\$1\\)").
		WithArgs(pgvector.NewVector(query), min, 5).
		WillReturnRows(rows)

	results, err := store.SearchTopK(mockCtx(mock), query, 5, &min)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "doc_1", results[0].Document.DocID)
	assert.InDelta(t, 0.98, results[0].Similarity, 0.0001)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_SearchTopK_DimensionMismatch(t *testing.T) {
	store, _ := newMockPostgresStore(t)
	_, err := store.SearchTopK(context.Background(), []float32{1, 2}, 5, nil)
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
}

func TestPostgres_Dimension(t *testing.T) {
	store, _ := newMockPostgresStore(t)
	assert.Equal(t, 3, store.Dimension())
}
