package dependency

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlasvoice/assistant/internal/domain/models"
)

func TestResolver_ActionPairOrdersDependentSubtasks(t *testing.T) {
	r := New(Config{
		ActionPairs: map[string][]string{
			"consultar_tiempo": {"programar_alarma_condicional"},
		},
	})
	weather := &models.Subtask{SubtaskID: "s1", ActionID: "consultar_tiempo", Description: "consulta el tiempo en Madrid", Confidence: 0.9}
	alarm := &models.Subtask{SubtaskID: "s2", ActionID: "programar_alarma_condicional", Description: "si llueve programa una alarma", Confidence: 0.9}

	plan := r.Resolve([]*models.Subtask{weather, alarm})

	require.Len(t, plan.Levels, 2)
	assert.Equal(t, "s1", plan.Levels[0].Subtasks[0].SubtaskID)
	assert.Equal(t, "s2", plan.Levels[1].Subtasks[0].SubtaskID)
	assert.Contains(t, plan.Lookup("s2").Dependencies, "s1")
}

func TestResolver_IndependentSubtasksShareLevelZero(t *testing.T) {
	r := New(Config{})
	a := &models.Subtask{SubtaskID: "s1", ActionID: "encender_luz", Confidence: 0.8, Priority: models.PriorityMedium}
	b := &models.Subtask{SubtaskID: "s2", ActionID: "apagar_tv", Confidence: 0.7, Priority: models.PriorityMedium}

	plan := r.Resolve([]*models.Subtask{a, b})
	require.Len(t, plan.Levels, 1)
	assert.Len(t, plan.Levels[0].Subtasks, 2)
}

func TestResolver_LevelOrdersByPriorityThenConfidence(t *testing.T) {
	r := New(Config{})
	low := &models.Subtask{SubtaskID: "s1", ActionID: "a", Confidence: 0.9, Priority: models.PriorityLow}
	high := &models.Subtask{SubtaskID: "s2", ActionID: "b", Confidence: 0.5, Priority: models.PriorityHigh}

	plan := r.Resolve([]*models.Subtask{low, high})
	require.Len(t, plan.Levels, 1)
	assert.Equal(t, "s2", plan.Levels[0].Subtasks[0].SubtaskID)
}

func TestResolver_SharedCriticalEntityOrdersByPrecedence(t *testing.T) {
	r := New(Config{})
	read := &models.Subtask{SubtaskID: "s1", ActionID: "consultar_estado", Entities: map[string]string{"location": "cocina"}, Confidence: 0.8}
	write := &models.Subtask{SubtaskID: "s2", ActionID: "encender_luz", Entities: map[string]string{"location": "cocina"}, Confidence: 0.8}

	plan := r.Resolve([]*models.Subtask{read, write})
	require.Len(t, plan.Levels, 2)
	assert.Equal(t, "s1", plan.Levels[0].Subtasks[0].SubtaskID)
	assert.Equal(t, "s2", plan.Levels[1].Subtasks[0].SubtaskID)
}

func TestResolver_BreaksCyclesByDroppingLowestConfidenceEdge(t *testing.T) {
	r := New(Config{
		ActionPairs: map[string][]string{
			"a": {"b"},
			"b": {"a"},
		},
	})
	s1 := &models.Subtask{SubtaskID: "s1", ActionID: "a", Confidence: 0.9}
	s2 := &models.Subtask{SubtaskID: "s2", ActionID: "b", Confidence: 0.9}

	plan := r.Resolve([]*models.Subtask{s1, s2})
	total := 0
	for _, lvl := range plan.Levels {
		total += len(lvl.Subtasks)
	}
	assert.Equal(t, 2, total)
}
