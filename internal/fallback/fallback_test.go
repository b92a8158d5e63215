package fallback

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlasvoice/assistant/internal/domain/models"
)

func fullConfig() Config {
	return Config{
		EnableGradualDegradation:    true,
		SimilarityReductionFactor:   0.5,
		MinConfidenceForDegradation: 0.4,
		LevelEnabled:                [5]bool{true, true, true, true, true},
		Greetings:                   map[string]string{"hola": "saludo", "buenos días": "saludo"},
		Thanks:                      map[string]string{"gracias": "agradecimiento"},
		Goodbyes:                    map[string]string{"adiós": "despedida"},
		HelpWords:                   map[string]string{"ayuda": "ayuda_general"},
		KeywordMap: map[string][]string{
			"encender_luz":      {"luz", "encender"},
			"reproducir_musica": {"música", "canción"},
		},
		ContextRules: []ContextRule{
			{Intent: "rutina_nocturna", Confidence: 0.5, Match: func(m SessionMeta) bool { return m.TimeOfDay == "night" }},
		},
		HelpIntent:     "help",
		HelpConfidence: 0.1,
	}
}

func TestEngine_DegradeLevel1ReducedSimilarityAccepted(t *testing.T) {
	e := New(fullConfig())
	reclassify := func(ctx context.Context, floor float64) (*models.ClassificationResult, error) {
		assert.InDelta(t, 0.5, floor, 1e-9)
		return &models.ClassificationResult{IntentID: "encender_luz", Confidence: 0.6}, nil
	}
	result, err := e.Degrade(context.Background(), "enciende algo", SessionMeta{}, reclassify)
	require.NoError(t, err)
	assert.Equal(t, "encender_luz", result.IntentID)
	assert.Equal(t, models.FallbackReducedSimilarity, result.FallbackLevel)
	assert.InDelta(t, 0.48, result.Confidence, 1e-9)
}

func TestEngine_DegradeFallsThroughToLevel2OnLowReclassifyConfidence(t *testing.T) {
	e := New(fullConfig())
	reclassify := func(ctx context.Context, floor float64) (*models.ClassificationResult, error) {
		return &models.ClassificationResult{IntentID: "x", Confidence: 0.3}, nil
	}
	result, err := e.Degrade(context.Background(), "hola buenos días", SessionMeta{}, reclassify)
	require.NoError(t, err)
	assert.Equal(t, "saludo", result.IntentID)
	assert.Equal(t, models.FallbackGeneralHeuristics, result.FallbackLevel)
}

func TestEngine_DegradeLevel1ErrorFallsThrough(t *testing.T) {
	e := New(fullConfig())
	reclassify := func(ctx context.Context, floor float64) (*models.ClassificationResult, error) {
		return nil, errors.New("provider down")
	}
	result, err := e.Degrade(context.Background(), "gracias", SessionMeta{}, reclassify)
	require.NoError(t, err)
	assert.Equal(t, "agradecimiento", result.IntentID)
	assert.Equal(t, models.FallbackGeneralHeuristics, result.FallbackLevel)
}

func TestEngine_DegradeLevel3KeywordMapping(t *testing.T) {
	e := New(fullConfig())
	result, err := e.Degrade(context.Background(), "pon una canción por favor", SessionMeta{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "reproducir_musica", result.IntentID)
	assert.Equal(t, models.FallbackKeywordMapping, result.FallbackLevel)
}

func TestEngine_DegradeLevel3PicksEarliestPositionOnTie(t *testing.T) {
	e := New(fullConfig())
	result, err := e.Degrade(context.Background(), "enciende la luz y pon una canción", SessionMeta{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "encender_luz", result.IntentID)
}

func TestEngine_DegradeLevel4ContextAnalysis(t *testing.T) {
	e := New(fullConfig())
	result, err := e.Degrade(context.Background(), "algo sin sentido", SessionMeta{TimeOfDay: "night"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "rutina_nocturna", result.IntentID)
	assert.Equal(t, models.FallbackContextAnalysis, result.FallbackLevel)
}

func TestEngine_DegradeLevel5GenericHelp(t *testing.T) {
	e := New(fullConfig())
	result, err := e.Degrade(context.Background(), "completamente incomprensible", SessionMeta{TimeOfDay: "morning"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "help", result.IntentID)
	assert.Equal(t, models.FallbackGeneric, result.FallbackLevel)
	assert.InDelta(t, 0.1, result.Confidence, 1e-9)
}

func TestEngine_DegradeDisabledSkipsStraightToGeneric(t *testing.T) {
	cfg := fullConfig()
	cfg.EnableGradualDegradation = false
	e := New(cfg)
	result, err := e.Degrade(context.Background(), "hola", SessionMeta{}, nil)
	require.NoError(t, err)
	assert.Equal(t, models.FallbackGeneric, result.FallbackLevel)
}

func TestEngine_DegradeSkipsDisabledLevels(t *testing.T) {
	cfg := fullConfig()
	cfg.LevelEnabled = [5]bool{false, false, false, false, true}
	e := New(cfg)
	result, err := e.Degrade(context.Background(), "hola", SessionMeta{}, nil)
	require.NoError(t, err)
	assert.Equal(t, models.FallbackGeneric, result.FallbackLevel)
}
