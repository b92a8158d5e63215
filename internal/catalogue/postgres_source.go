package catalogue

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atlasvoice/assistant/internal/adapters/postgres"
	"github.com/atlasvoice/assistant/internal/domain/models"
)

// PostgresSource is the source-of-truth CatalogueSource for server
// deployments, reading the `intent_definitions` table. It implements the
// same ports.CatalogueSource contract as YAMLSource so hot-reload
// checksumming works identically over either backend.
type PostgresSource struct {
	postgres.BaseRepository
}

// NewPostgresSource creates a PostgresSource over pool.
func NewPostgresSource(pool *pgxpool.Pool) *PostgresSource {
	return &PostgresSource{BaseRepository: postgres.NewBaseRepository(pool)}
}

// Checksum hashes every row's updated_at alongside its intent_id, cheap
// enough to poll without deserializing full definitions.
func (s *PostgresSource) Checksum(ctx context.Context) (string, error) {
	rows, err := postgres.GetConn(ctx, s.Pool()).Query(ctx, `
		SELECT intent_id, updated_at FROM intent_definitions ORDER BY intent_id`)
	if err != nil {
		return "", fmt.Errorf("query intent checksums: %w", err)
	}
	defer rows.Close()

	h := sha256.New()
	for rows.Next() {
		var intentID, updatedAt string
		if err := rows.Scan(&intentID, &updatedAt); err != nil {
			return "", fmt.Errorf("scan intent checksum row: %w", err)
		}
		h.Write([]byte(intentID))
		h.Write([]byte(updatedAt))
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("iterate intent checksum rows: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Load reads every intent definition row, deserializing the
// jsonb-encoded slot/example columns.
func (s *PostgresSource) Load(ctx context.Context) ([]*models.IntentDefinition, error) {
	rows, err := postgres.GetConn(ctx, s.Pool()).Query(ctx, `
		SELECT intent_id, description, expert_domain, example_utterances,
		       required_slots, optional_slots, slot_prompt_templates,
		       tool_action_id, confidence_threshold, max_rag_examples
		FROM intent_definitions`)
	if err != nil {
		return nil, fmt.Errorf("query intent definitions: %w", err)
	}
	defer rows.Close()

	var defs []*models.IntentDefinition
	for rows.Next() {
		d := &models.IntentDefinition{}
		var examples, required, optional, templates []byte
		if err := rows.Scan(&d.IntentID, &d.Description, &d.ExpertDomain, &examples,
			&required, &optional, &templates,
			&d.ToolActionID, &d.ConfidenceThreshold, &d.MaxRAGExamples); err != nil {
			return nil, fmt.Errorf("scan intent definition: %w", err)
		}
		if err := json.Unmarshal(examples, &d.ExampleUtterances); err != nil {
			return nil, fmt.Errorf("decode example_utterances for %q: %w", d.IntentID, err)
		}
		if err := json.Unmarshal(required, &d.RequiredSlots); err != nil {
			return nil, fmt.Errorf("decode required_slots for %q: %w", d.IntentID, err)
		}
		if err := json.Unmarshal(optional, &d.OptionalSlots); err != nil {
			return nil, fmt.Errorf("decode optional_slots for %q: %w", d.IntentID, err)
		}
		if err := json.Unmarshal(templates, &d.SlotPromptTemplates); err != nil {
			return nil, fmt.Errorf("decode slot_prompt_templates for %q: %w", d.IntentID, err)
		}
		defs = append(defs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate intent definitions: %w", err)
	}
	return defs, nil
}

// Upsert writes one intent definition, used by administrative tooling to
// seed or update the catalogue's source of truth.
func (s *PostgresSource) Upsert(ctx context.Context, d *models.IntentDefinition) error {
	examples, err := json.Marshal(d.ExampleUtterances)
	if err != nil {
		return fmt.Errorf("encode example_utterances: %w", err)
	}
	required, err := json.Marshal(d.RequiredSlots)
	if err != nil {
		return fmt.Errorf("encode required_slots: %w", err)
	}
	optional, err := json.Marshal(d.OptionalSlots)
	if err != nil {
		return fmt.Errorf("encode optional_slots: %w", err)
	}
	templates, err := json.Marshal(d.SlotPromptTemplates)
	if err != nil {
		return fmt.Errorf("encode slot_prompt_templates: %w", err)
	}

	_, err = postgres.GetConn(ctx, s.Pool()).Exec(ctx, `
		INSERT INTO intent_definitions
			(intent_id, description, expert_domain, example_utterances, required_slots,
			 optional_slots, slot_prompt_templates, tool_action_id, confidence_threshold,
			 max_rag_examples, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10, now())
		ON CONFLICT (intent_id) DO UPDATE SET
			description = EXCLUDED.description,
			expert_domain = EXCLUDED.expert_domain,
			example_utterances = EXCLUDED.example_utterances,
			required_slots = EXCLUDED.required_slots,
			optional_slots = EXCLUDED.optional_slots,
			slot_prompt_templates = EXCLUDED.slot_prompt_templates,
			tool_action_id = EXCLUDED.tool_action_id,
			confidence_threshold = EXCLUDED.confidence_threshold,
			max_rag_examples = EXCLUDED.max_rag_examples,
			updated_at = now()`,
		d.IntentID, d.Description, d.ExpertDomain, examples, required,
		optional, templates, d.ToolActionID, d.ConfidenceThreshold, d.MaxRAGExamples)
	if err != nil {
		return fmt.Errorf("upsert intent definition %q: %w", d.IntentID, err)
	}
	return nil
}
