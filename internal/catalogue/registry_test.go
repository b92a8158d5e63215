package catalogue

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlasvoice/assistant/internal/domain/models"
	"github.com/atlasvoice/assistant/internal/ports"
)

type fakeSource struct {
	checksum string
	defs     []*models.IntentDefinition
	loads    int
}

func (f *fakeSource) Checksum(ctx context.Context) (string, error) { return f.checksum, nil }
func (f *fakeSource) Load(ctx context.Context) ([]*models.IntentDefinition, error) {
	f.loads++
	return f.defs, nil
}

func validIntent(id string) *models.IntentDefinition {
	return &models.IntentDefinition{
		IntentID:          id,
		Description:       "desc",
		ExampleUtterances: []string{"example"},
		ToolActionID:      "action_" + id,
	}
}

func TestRegistry_ReloadSwapsOnChecksumChange(t *testing.T) {
	src := &fakeSource{checksum: "v1", defs: []*models.IntentDefinition{validIntent("encender_luz")}}
	reg := New(src, nil, nil)

	swapped, err := reg.Reload(context.Background())
	require.NoError(t, err)
	assert.True(t, swapped)
	assert.NotNil(t, reg.Lookup("encender_luz"))

	swapped, err = reg.Reload(context.Background())
	require.NoError(t, err)
	assert.False(t, swapped, "unchanged checksum should not reload")
	assert.Equal(t, 1, src.loads)

	src.checksum = "v2"
	src.defs = append(src.defs, validIntent("apagar_luz"))
	swapped, err = reg.Reload(context.Background())
	require.NoError(t, err)
	assert.True(t, swapped)
	assert.NotNil(t, reg.Lookup("apagar_luz"))
}

func TestRegistry_ReloadRejectsInvalidIntent(t *testing.T) {
	src := &fakeSource{checksum: "v1", defs: []*models.IntentDefinition{{IntentID: "bad"}}}
	reg := New(src, nil, nil)

	_, err := reg.Reload(context.Background())
	assert.Error(t, err)
	assert.Nil(t, reg.Current())
}

func TestRegistry_ReloadRejectsDuplicateIntentID(t *testing.T) {
	src := &fakeSource{checksum: "v1", defs: []*models.IntentDefinition{validIntent("a"), validIntent("a")}}
	reg := New(src, nil, nil)

	_, err := reg.Reload(context.Background())
	assert.Error(t, err)
}

func TestRegistry_ReloadAtomicityNeverObservesPartialCatalogue(t *testing.T) {
	src := &fakeSource{checksum: "v1", defs: []*models.IntentDefinition{validIntent("a")}}
	reg := New(src, nil, nil)
	_, err := reg.Reload(context.Background())
	require.NoError(t, err)

	before := reg.Current()
	src.checksum = "v2"
	src.defs = []*models.IntentDefinition{validIntent("b")}

	// Readers holding the snapshot from before Reload must keep seeing a
	// complete, self-consistent catalogue even while Reload runs.
	assert.NotNil(t, before.Lookup("a"))
	assert.Nil(t, before.Lookup("b"))

	_, err = reg.Reload(context.Background())
	require.NoError(t, err)
	after := reg.Current()
	assert.Nil(t, after.Lookup("a"))
	assert.NotNil(t, after.Lookup("b"))
}

func TestRegistry_WarnsOnDanglingToolAction(t *testing.T) {
	src := &fakeSource{checksum: "v1", defs: []*models.IntentDefinition{validIntent("a")}}
	var warnings []string
	reg := New(src, &fakeToolRegistry{}, func(format string, args ...any) {
		warnings = append(warnings, format)
	})
	_, err := reg.Reload(context.Background())
	require.NoError(t, err)
	assert.Len(t, warnings, 1)
}

type fakeToolRegistry struct{}

func (fakeToolRegistry) Lookup(actionID string) *models.ToolAction { return nil }
func (fakeToolRegistry) Validate(actionID string, args map[string]string) ports.ValidationResult {
	return ports.ValidationResult{}
}
func (fakeToolRegistry) Invoke(ctx context.Context, actionID string, args map[string]string) (map[string]any, error) {
	return nil, nil
}
func (fakeToolRegistry) Rollback(ctx context.Context, actionID string, args map[string]string, priorResult map[string]any) error {
	return nil
}
