package toolregistry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlasvoice/assistant/internal/domain/models"
)

type fakeExecutor struct {
	invoked    map[string][]map[string]string
	result     map[string]any
	err        error
	rolledBack []string
}

func (f *fakeExecutor) Invoke(ctx context.Context, action *models.ToolAction, args map[string]string) (map[string]any, error) {
	if f.invoked == nil {
		f.invoked = map[string][]map[string]string{}
	}
	f.invoked[action.ActionID] = append(f.invoked[action.ActionID], args)
	return f.result, f.err
}

func (f *fakeExecutor) Rollback(ctx context.Context, action *models.ToolAction, args map[string]string, priorResult map[string]any) error {
	f.rolledBack = append(f.rolledBack, action.ActionID)
	return nil
}

func encenderLuz() *models.ToolAction {
	return &models.ToolAction{
		ActionID: "encender_luz",
		InputSchema: []models.ParamSchema{
			{Name: "lugar", Type: "string", Required: true},
			{Name: "brillo", Type: "number", Required: false},
		},
		RollbackCapable: true,
	}
}

func TestRegistry_ValidateMissingRequired(t *testing.T) {
	reg := New([]*models.ToolAction{encenderLuz()}, &fakeExecutor{})
	result := reg.Validate("encender_luz", map[string]string{})
	assert.False(t, result.Valid)
	assert.Contains(t, result.Missing, "lugar")
}

func TestRegistry_ValidateExtraArgument(t *testing.T) {
	reg := New([]*models.ToolAction{encenderLuz()}, &fakeExecutor{})
	result := reg.Validate("encender_luz", map[string]string{"lugar": "salón", "color": "azul"})
	assert.False(t, result.Valid)
	assert.Contains(t, result.Extra, "color")
}

func TestRegistry_ValidateTypeError(t *testing.T) {
	reg := New([]*models.ToolAction{encenderLuz()}, &fakeExecutor{})
	result := reg.Validate("encender_luz", map[string]string{"lugar": "salón", "brillo": "not-a-number"})
	assert.False(t, result.Valid)
	assert.Contains(t, result.TypeErrors, "brillo")
}

func TestRegistry_ValidateSuccess(t *testing.T) {
	reg := New([]*models.ToolAction{encenderLuz()}, &fakeExecutor{})
	result := reg.Validate("encender_luz", map[string]string{"lugar": "salón", "brillo": "80"})
	assert.True(t, result.Valid)
}

func TestRegistry_InvokeRejectsInvalidArgs(t *testing.T) {
	exec := &fakeExecutor{}
	reg := New([]*models.ToolAction{encenderLuz()}, exec)
	_, err := reg.Invoke(context.Background(), "encender_luz", map[string]string{})
	require.Error(t, err)
	assert.Empty(t, exec.invoked)
}

func TestRegistry_InvokeDelegatesToExecutor(t *testing.T) {
	exec := &fakeExecutor{result: map[string]any{"ok": true}}
	reg := New([]*models.ToolAction{encenderLuz()}, exec)
	result, err := reg.Invoke(context.Background(), "encender_luz", map[string]string{"lugar": "salón"})
	require.NoError(t, err)
	assert.Equal(t, true, result["ok"])
	assert.Len(t, exec.invoked["encender_luz"], 1)
}

func TestRegistry_RollbackRequiresCapability(t *testing.T) {
	noRollback := &models.ToolAction{ActionID: "leer_sensor", RollbackCapable: false}
	exec := &fakeExecutor{}
	reg := New([]*models.ToolAction{noRollback}, exec)
	err := reg.Rollback(context.Background(), "leer_sensor", nil, nil)
	assert.Error(t, err)
	assert.Empty(t, exec.rolledBack)
}

func TestRegistry_RollbackDelegatesWhenCapable(t *testing.T) {
	exec := &fakeExecutor{}
	reg := New([]*models.ToolAction{encenderLuz()}, exec)
	err := reg.Rollback(context.Background(), "encender_luz", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"encender_luz"}, exec.rolledBack)
}
