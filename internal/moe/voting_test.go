package moe

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlasvoice/assistant/internal/ports"
)

type scriptedLLM struct {
	responses []string
	calls     int
}

func (s *scriptedLLM) Complete(ctx context.Context, prompt string, params ports.CompletionParams) (string, error) {
	r := s.responses[s.calls%len(s.responses)]
	s.calls++
	return r, nil
}

func TestEngine_RoundDisabledDegradesToSingleLLM(t *testing.T) {
	primary := &scriptedLLM{responses: []string{`{"intent":"encender_luz","confidence":0.9,"entities":{},"reasoning":"ok"}`}}
	e := New(nil, primary, Config{Enabled: false})
	round, err := e.Round(context.Background(), "req1", Input{Utterance: "enciende la luz"})
	require.NoError(t, err)
	assert.True(t, round.UsedFallback)
	assert.Equal(t, "encender_luz", round.Consensus.FinalIntent)
}

func TestEngine_RoundMajorityConsensusAccepted(t *testing.T) {
	participants := []Participant{
		{LLMID: "a", Role: "musician", Weight: 1.0, Provider: &scriptedLLM{responses: []string{`{"intent":"reproducir_musica","confidence":0.9,"entities":{},"reasoning":"r"}`}}},
		{LLMID: "b", Role: "generalist", Weight: 0.8, Provider: &scriptedLLM{responses: []string{`{"intent":"reproducir_musica","confidence":0.8,"entities":{},"reasoning":"r"}`}}},
		{LLMID: "c", Role: "scheduler", Weight: 0.9, Provider: &scriptedLLM{responses: []string{`{"intent":"programar_alarma","confidence":0.95,"entities":{},"reasoning":"r"}`}}},
	}
	primary := &scriptedLLM{responses: []string{`{"intent":"help","confidence":0.3,"entities":{},"reasoning":"r"}`}}
	e := New(participants, primary, Config{
		Enabled:             true,
		ParallelVoting:       true,
		TimeoutPerVote:       time.Second,
		ConsensusThreshold:   0.5,
		MaxDebateRounds:      1,
		HelpIntent:           "help",
	})
	round, err := e.Round(context.Background(), "req1", Input{Utterance: "pon música y si llueve activa la alarma"})
	require.NoError(t, err)
	assert.False(t, round.UsedFallback)
	assert.Equal(t, "reproducir_musica", round.Consensus.FinalIntent)
}

func TestEngine_RoundFallsBackWhenConsensusIsHelp(t *testing.T) {
	participants := []Participant{
		{LLMID: "a", Role: "x", Weight: 1.0, Provider: &scriptedLLM{responses: []string{`{"intent":"help","confidence":0.9,"entities":{},"reasoning":"r"}`}}},
	}
	primary := &scriptedLLM{responses: []string{`{"intent":"encender_luz","confidence":0.8,"entities":{},"reasoning":"fallback"}`}}
	e := New(participants, primary, Config{
		Enabled:            true,
		ConsensusThreshold: 0.5,
		MaxDebateRounds:    1,
		HelpIntent:         "help",
	})
	round, err := e.Round(context.Background(), "req1", Input{Utterance: "algo"})
	require.NoError(t, err)
	assert.True(t, round.UsedFallback)
	assert.Equal(t, "encender_luz", round.Consensus.FinalIntent)
}

func TestEngine_RoundFailedVoteRecordedNotDropped(t *testing.T) {
	failing := &failingLLM{}
	participants := []Participant{
		{LLMID: "a", Role: "x", Weight: 1.0, Provider: failing},
		{LLMID: "b", Role: "y", Weight: 1.0, Provider: &scriptedLLM{responses: []string{`{"intent":"encender_luz","confidence":0.9,"entities":{},"reasoning":"r"}`}}},
	}
	primary := &scriptedLLM{responses: []string{`{"intent":"encender_luz","confidence":0.9,"entities":{},"reasoning":"r"}`}}
	e := New(participants, primary, Config{Enabled: true, ConsensusThreshold: 0.5, MaxDebateRounds: 1})
	round, err := e.Round(context.Background(), "req1", Input{Utterance: "algo"})
	require.NoError(t, err)
	require.Len(t, round.Rounds[0], 2)
	assert.Equal(t, "a", round.Rounds[0][0].LLMID)
	assert.NotEqual(t, "", round.Rounds[0][0].FailureReason)
}

type failingLLM struct{}

func (failingLLM) Complete(ctx context.Context, prompt string, params ports.CompletionParams) (string, error) {
	return "", assert.AnError
}
