package subtaskvalidator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/atlasvoice/assistant/internal/domain/models"
	"github.com/atlasvoice/assistant/internal/ports"
)

type fakeActionRegistry struct {
	actions map[string]*models.ToolAction
}

func (f *fakeActionRegistry) Lookup(actionID string) *models.ToolAction {
	return f.actions[actionID]
}

func (f *fakeActionRegistry) Validate(actionID string, args map[string]string) ports.ValidationResult {
	return ports.ValidationResult{Valid: true}
}

func (f *fakeActionRegistry) Invoke(ctx context.Context, actionID string, args map[string]string) (map[string]any, error) {
	return nil, nil
}

func (f *fakeActionRegistry) Rollback(ctx context.Context, actionID string, args map[string]string, priorResult map[string]any) error {
	return nil
}

func registryWithAlarmAction() *fakeActionRegistry {
	return &fakeActionRegistry{
		actions: map[string]*models.ToolAction{
			"programar_alarma": {
				ActionID: "programar_alarma",
				InputSchema: []models.ParamSchema{
					{Name: "time", Type: "string", Required: true},
				},
			},
		},
	}
}

func TestValidator_DropsUnknownActionID(t *testing.T) {
	v := New(registryWithAlarmAction())
	kept, dropped := v.ValidateBatch([]*models.Subtask{
		{SubtaskID: "s1", ActionID: "no_existe", Description: "algo"},
	})
	assert.Empty(t, kept)
	assert.Len(t, dropped, 1)
}

func TestValidator_DropsMissingRequiredEntity(t *testing.T) {
	v := New(registryWithAlarmAction())
	kept, dropped := v.ValidateBatch([]*models.Subtask{
		{SubtaskID: "s1", ActionID: "programar_alarma", Description: "poner alarma", Entities: map[string]string{}},
	})
	assert.Empty(t, kept)
	assert.Len(t, dropped, 1)
}

func TestValidator_DropsMalformedTimeEntity(t *testing.T) {
	v := New(registryWithAlarmAction())
	kept, _ := v.ValidateBatch([]*models.Subtask{
		{SubtaskID: "s1", ActionID: "programar_alarma", Description: "poner alarma", Entities: map[string]string{"time": "99:99"}},
	})
	assert.Empty(t, kept)
}

func TestValidator_KeepsValidSubtask(t *testing.T) {
	v := New(registryWithAlarmAction())
	kept, dropped := v.ValidateBatch([]*models.Subtask{
		{SubtaskID: "s1", ActionID: "programar_alarma", Description: "poner alarma", Entities: map[string]string{"time": "07:00"}, Confidence: 1.5},
	})
	assert.Empty(t, dropped)
	assert.Len(t, kept, 1)
	assert.InDelta(t, 1.0, kept[0].Confidence, 1e-9)
}

func TestValidator_DropsOutOfBatchDependency(t *testing.T) {
	v := New(registryWithAlarmAction())
	kept, dropped := v.ValidateBatch([]*models.Subtask{
		{SubtaskID: "s1", ActionID: "programar_alarma", Description: "poner alarma", Entities: map[string]string{"time": "07:00"}, Dependencies: []string{"ghost"}},
	})
	assert.Empty(t, kept)
	assert.Len(t, dropped, 1)
}

func TestValidator_UniquifiesDuplicateSubtaskIDs(t *testing.T) {
	v := New(registryWithAlarmAction())
	kept, _ := v.ValidateBatch([]*models.Subtask{
		{SubtaskID: "s1", ActionID: "programar_alarma", Description: "uno", Entities: map[string]string{"time": "07:00"}},
		{SubtaskID: "s1", ActionID: "programar_alarma", Description: "dos", Entities: map[string]string{"time": "08:00"}},
	})
	assert.Len(t, kept, 2)
	assert.Equal(t, "s1", kept[0].SubtaskID)
	assert.Equal(t, "s1-1", kept[1].SubtaskID)
}

func TestValidator_DropsEmptyDescription(t *testing.T) {
	v := New(registryWithAlarmAction())
	kept, dropped := v.ValidateBatch([]*models.Subtask{
		{SubtaskID: "s1", ActionID: "programar_alarma", Description: "   ", Entities: map[string]string{"time": "07:00"}},
	})
	assert.Empty(t, kept)
	assert.Len(t, dropped, 1)
}
