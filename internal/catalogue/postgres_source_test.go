package catalogue

import (
	"context"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlasvoice/assistant/internal/adapters/postgres"
	"github.com/atlasvoice/assistant/internal/domain/models"
)

func newMockPostgresSource(t *testing.T) (*PostgresSource, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	src := &PostgresSource{BaseRepository: postgres.NewBaseRepository(nil)}
	return src, mock
}

func TestPostgresSource_Checksum(t *testing.T) {
	src, mock := newMockPostgresSource(t)

	rows := pgxmock.NewRows([]string{"intent_id", "updated_at"}).
		AddRow("lights_off", "2026-07-30T00:00:00Z").
		AddRow("lights_on", "2026-07-29T00:00:00Z")
	mock.ExpectQuery("SELECT intent_id, updated_at FROM intent_definitions").
		WillReturnRows(rows)

	ctx := postgres.ContextWithTx(context.Background(), mock)
	sum, err := src.Checksum(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, sum)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSource_Load(t *testing.T) {
	src, mock := newMockPostgresSource(t)

	rows := pgxmock.NewRows([]string{
		"intent_id", "description", "expert_domain", "example_utterances",
		"required_slots", "optional_slots", "slot_prompt_templates",
		"tool_action_id", "confidence_threshold", "max_rag_examples",
	}).AddRow(
		"lights_off", "turn the lights off", "home_automation", []byte(`["turn off the lights"]`),
		[]byte(`[]`), []byte(`["room"]`), []byte(`{"room":"which room?"}`),
		"lights_toggle", 0.75, 5,
	)
	mock.ExpectQuery("SELECT intent_id, description, expert_domain, example_utterances").
		WillReturnRows(rows)

	ctx := postgres.ContextWithTx(context.Background(), mock)
	defs, err := src.Load(ctx)
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.Equal(t, "lights_off", defs[0].IntentID)
	assert.Equal(t, []string{"turn off the lights"}, defs[0].ExampleUtterances)
	assert.Equal(t, "which room?", defs[0].SlotPromptTemplates["room"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSource_Upsert(t *testing.T) {
	src, mock := newMockPostgresSource(t)
	def := &models.IntentDefinition{
		IntentID:            "lights_off",
		Description:         "turn the lights off",
		ExpertDomain:        "home_automation",
		ExampleUtterances:   []string{"turn off the lights"},
		RequiredSlots:       []string{},
		OptionalSlots:       []string{"room"},
		SlotPromptTemplates: map[string]string{"room": "which room?"},
		ToolActionID:        "lights_toggle",
		ConfidenceThreshold: 0.75,
		MaxRAGExamples:      5,
	}

	mock.ExpectExec("INSERT INTO intent_definitions").
		WithArgs(def.IntentID, def.Description, def.ExpertDomain, pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			def.ToolActionID, def.ConfidenceThreshold, def.MaxRAGExamples).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	ctx := postgres.ContextWithTx(context.Background(), mock)
	err := src.Upsert(ctx, def)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
