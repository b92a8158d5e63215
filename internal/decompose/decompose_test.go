package decompose

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlasvoice/assistant/internal/domain/models"
	"github.com/atlasvoice/assistant/internal/ports"
)

func actions() []*models.ToolAction {
	return []*models.ToolAction{
		{ActionID: "encender_luz"},
		{ActionID: "programar_alarma"},
		{ActionID: "consultar_tiempo"},
	}
}

type scriptedLLM struct {
	response string
}

func (s *scriptedLLM) Complete(ctx context.Context, prompt string, params ports.CompletionParams) (string, error) {
	return s.response, nil
}

func TestDecomposer_PatternStrategySplitsMultiActionUtterance(t *testing.T) {
	d := New(nil, Config{})
	result, err := d.Decompose(context.Background(), Input{
		Utterance:        "enciende la luz y programa una alarma a las 07:00",
		AvailableActions: actions(),
	})
	require.NoError(t, err)

	var foundLight, foundAlarm bool
	for _, st := range result {
		if st.ActionID == "encender_luz" {
			foundLight = true
		}
		if st.ActionID == "programar_alarma" {
			foundAlarm = true
			assert.Equal(t, "07:00", st.Entities["time"])
		}
	}
	assert.True(t, foundLight)
	assert.True(t, foundAlarm)
}

func TestDecomposer_DedupesPatternAndLLMOverlap(t *testing.T) {
	llm := &scriptedLLM{response: `{"subtasks":[{"action_id":"encender_luz","description":"turn on the light","entities":{},"confidence":0.9}]}`}
	d := New(llm, Config{MaxSubtasks: 5})
	result, err := d.Decompose(context.Background(), Input{
		Utterance:        "enciende la luz",
		AvailableActions: actions(),
	})
	require.NoError(t, err)

	count := 0
	var confidence float64
	for _, st := range result {
		if st.ActionID == "encender_luz" {
			count++
			confidence = st.Confidence
		}
	}
	assert.Equal(t, 1, count)
	assert.InDelta(t, 0.9, confidence, 1e-9)
}

func TestDecomposer_LLMRespectsMaxSubtasks(t *testing.T) {
	llm := &scriptedLLM{response: `{"subtasks":[
		{"action_id":"encender_luz","description":"a","confidence":0.9},
		{"action_id":"programar_alarma","description":"b","confidence":0.8},
		{"action_id":"consultar_tiempo","description":"c","confidence":0.7}
	]}`}
	d := New(llm, Config{MaxSubtasks: 2})
	result, err := d.Decompose(context.Background(), Input{Utterance: "algo", AvailableActions: actions()})
	require.NoError(t, err)
	assert.Len(t, result, 2)
}

func TestDecomposer_UnparsableLLMResponseStillYieldsPatternResults(t *testing.T) {
	llm := &scriptedLLM{response: "not json"}
	d := New(llm, Config{})
	result, err := d.Decompose(context.Background(), Input{
		Utterance:        "enciende la luz",
		AvailableActions: actions(),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, result)
}

func TestDecomposer_NoMatchingActionYieldsNoSubtask(t *testing.T) {
	d := New(nil, Config{})
	result, err := d.Decompose(context.Background(), Input{
		Utterance:        "cuéntame un chiste",
		AvailableActions: actions(),
	})
	require.NoError(t, err)
	assert.Empty(t, result)
}
