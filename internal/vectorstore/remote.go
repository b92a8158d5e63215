package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"github.com/atlasvoice/assistant/internal/domain"
	"github.com/atlasvoice/assistant/internal/domain/models"
)

// payloadContentField and payloadIntentField/payloadMetadataField hold the
// EmbeddingDocument fields that Qdrant cannot index as the point id itself.
// Qdrant points require UUID or positive-integer ids, so doc_id is always
// stored in the payload and the point id is a deterministic UUID derived
// from it.
const (
	payloadDocIDField    = "doc_id"
	payloadContentField  = "content"
	payloadIntentField   = "intent_id"
	payloadMetadataField = "metadata"
)

// Remote is the Vector Store (C4) variant backed by Qdrant over gRPC, one
// collection per embedding dimension.
type Remote struct {
	client     *qdrant.Client
	collection string
	dimension  int
}

// RemoteConfig configures a Remote vector store connection.
type RemoteConfig struct {
	Host       string
	Port       int
	APIKey     string
	UseTLS     bool
	Collection string
	Dimension  int
}

// NewRemote connects to Qdrant and ensures the configured collection
// exists with cosine distance, matching the registry's configured
// dimension.
func NewRemote(ctx context.Context, cfg RemoteConfig) (*Remote, error) {
	if cfg.Collection == "" {
		return nil, fmt.Errorf("collection name is required")
	}
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("qdrant requires dimensions > 0")
	}
	qcfg := &qdrant.Config{Host: cfg.Host, Port: cfg.Port, UseTLS: cfg.UseTLS}
	if cfg.APIKey != "" {
		qcfg.APIKey = cfg.APIKey
	}
	client, err := qdrant.NewClient(qcfg)
	if err != nil {
		return nil, fmt.Errorf("create qdrant client: %w", err)
	}
	r := &Remote{client: client, collection: cfg.Collection, dimension: cfg.Dimension}
	if err := r.ensureCollection(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("ensure collection: %w", err)
	}
	return r, nil
}

func (r *Remote) ensureCollection(ctx context.Context) error {
	exists, err := r.client.CollectionExists(ctx, r.collection)
	if err != nil {
		return fmt.Errorf("check collection exists: %w", err)
	}
	if exists {
		return nil
	}
	return r.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: r.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(r.dimension),
			Distance: qdrant.Distance_Cosine,
		}),
	})
}

func pointID(docID string) *qdrant.PointId {
	if _, err := uuid.Parse(docID); err == nil {
		return qdrant.NewIDUUID(docID)
	}
	return qdrant.NewIDUUID(uuid.NewSHA1(uuid.NameSpaceOID, []byte(docID)).String())
}

// Upsert implements ports.VectorStore.
func (r *Remote) Upsert(ctx context.Context, doc *models.EmbeddingDocument) error {
	if len(doc.Vector) != r.dimension {
		return domain.ErrDimensionMismatch
	}
	metaJSON, err := json.Marshal(doc.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	payload := qdrant.NewValueMap(map[string]any{
		payloadDocIDField:    doc.DocID,
		payloadContentField:  doc.Content,
		payloadIntentField:   doc.IntentID,
		payloadMetadataField: string(metaJSON),
	})
	vec := append([]float32(nil), doc.Vector...)
	_, err = r.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: r.collection,
		Points: []*qdrant.PointStruct{{
			Id:      pointID(doc.DocID),
			Vectors: qdrant.NewVectorsDense(vec),
			Payload: payload,
		}},
	})
	return err
}

// Delete implements ports.VectorStore.
func (r *Remote) Delete(ctx context.Context, docID string) error {
	_, err := r.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: r.collection,
		Points:         qdrant.NewPointsSelector(pointID(docID)),
	})
	return err
}

// Get implements ports.VectorStore via a filtered query for the doc_id
// payload field, since Qdrant's own point id is a derived UUID.
func (r *Remote) Get(ctx context.Context, docID string) (*models.EmbeddingDocument, error) {
	limit := uint32(1)
	points, err := r.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: r.collection,
		Filter: &qdrant.Filter{
			Must: []*qdrant.Condition{qdrant.NewMatch(payloadDocIDField, docID)},
		},
		Limit:       &limit,
		WithPayload: qdrant.NewWithPayload(true),
		WithVectors: qdrant.NewWithVectors(true),
	})
	if err != nil {
		return nil, fmt.Errorf("scroll: %w", err)
	}
	if len(points) == 0 {
		return nil, domain.ErrDocumentNotFound
	}
	return documentFromPayload(points[0].Payload, points[0].GetVectors()), nil
}

// SearchTopK implements ports.VectorStore. When every candidate falls
// below minSimilarity, the returned slice is empty.
func (r *Remote) SearchTopK(ctx context.Context, queryVec []float32, k int, minSimilarity *float64) ([]models.ScoredDocument, error) {
	if len(queryVec) != r.dimension {
		return nil, domain.ErrDimensionMismatch
	}
	if k <= 0 {
		k = 10
	}
	limit := uint64(k)
	vec := append([]float32(nil), queryVec...)
	hits, err := r.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: r.collection,
		Query:          qdrant.NewQueryDense(vec),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	out := make([]models.ScoredDocument, 0, len(hits))
	for _, hit := range hits {
		sim := float64(hit.Score)
		if minSimilarity != nil && sim < *minSimilarity {
			continue
		}
		out = append(out, models.ScoredDocument{
			Document:   documentFromPayload(hit.Payload, nil),
			Similarity: sim,
		})
	}
	return out, nil
}

// Dimension implements ports.VectorStore.
func (r *Remote) Dimension() int {
	return r.dimension
}

// Close releases the underlying gRPC connection.
func (r *Remote) Close() error {
	return r.client.Close()
}

func documentFromPayload(payload map[string]*qdrant.Value, vectors *qdrant.VectorsOutput) *models.EmbeddingDocument {
	doc := &models.EmbeddingDocument{}
	if v, ok := payload[payloadDocIDField]; ok {
		doc.DocID = v.GetStringValue()
	}
	if v, ok := payload[payloadContentField]; ok {
		doc.Content = v.GetStringValue()
	}
	if v, ok := payload[payloadIntentField]; ok {
		doc.IntentID = v.GetStringValue()
	}
	if v, ok := payload[payloadMetadataField]; ok {
		var meta map[string]any
		if err := json.Unmarshal([]byte(v.GetStringValue()), &meta); err == nil {
			doc.Metadata = meta
		}
	}
	if vectors != nil {
		if dense := vectors.GetVector(); dense != nil {
			doc.Vector = dense.GetData()
		}
	}
	return doc
}
