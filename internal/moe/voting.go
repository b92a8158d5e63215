// Package moe implements the MoE Voting Engine (C8): multi-LLM voting,
// optional debate rounds, consensus aggregation, and fallback to
// single-LLM mode.
package moe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/atlasvoice/assistant/internal/domain/models"
	id "github.com/atlasvoice/assistant/internal/idgen"
	"github.com/atlasvoice/assistant/internal/ports"
)

// Participant is one MoE expert: a role-specific prompt template, a
// weight, and the LLM provider that answers for it. Distinct participants
// may share the same underlying provider/model with different roles.
type Participant struct {
	LLMID    string
	Role     string
	Weight   float64
	Provider ports.LLMProvider
}

// Config controls C8's voting and debate behavior (spec §6 moe.* keys).
type Config struct {
	Enabled                            bool
	ParallelVoting                     bool
	TimeoutPerVote                     time.Duration
	ConsensusThreshold                 float64
	MaxDebateRounds                    int
	DebateConsensusImprovementThreshold float64
	HelpIntent                         string
}

// Engine runs voting rounds over a fixed set of Participants, with
// primary as the single-LLM fallback used when MoE is disabled or when
// the round's consensus is rejected.
type Engine struct {
	participants []Participant
	primary      ports.LLMProvider
	cfg          Config
}

// New creates an Engine.
func New(participants []Participant, primary ports.LLMProvider, cfg Config) *Engine {
	return &Engine{participants: participants, primary: primary, cfg: cfg}
}

// Input bundles one voting round's request context.
type Input struct {
	Utterance    string
	KnownIntents []string
	History      string
}

type voteResponse struct {
	Intent     string            `json:"intent"`
	Confidence float64           `json:"confidence"`
	Entities   map[string]string `json:"entities"`
	Reasoning  string            `json:"reasoning"`
}

// Round runs one full MoE voting round: N participant votes, optional
// debate, consensus, and single-LLM fallback when the consensus is weak.
func (e *Engine) Round(ctx context.Context, requestID string, in Input) (*models.VotingRound, error) {
	if !e.cfg.Enabled || len(e.participants) == 0 {
		return e.singleLLMRound(ctx, requestID, in, "moe disabled")
	}

	round := &models.VotingRound{RequestID: requestID}
	var priorVotes []*models.Vote
	var priorConsensus *models.Consensus

	maxRounds := e.cfg.MaxDebateRounds
	if maxRounds < 1 {
		maxRounds = 1
	}

	for roundNum := 1; roundNum <= maxRounds; roundNum++ {
		votes := e.castVotes(ctx, in, priorVotes, roundNum)
		round.Rounds = append(round.Rounds, votes)
		consensus := CalculateConsensus(votes)
		round.DebateRounds = roundNum

		if priorConsensus != nil {
			if unanimous(votes) {
				round.Consensus = consensus
				break
			}
			improvement := consensus.Confidence - priorConsensus.Confidence
			if improvement < e.cfg.DebateConsensusImprovementThreshold {
				round.Consensus = consensus
				break
			}
		}

		round.Consensus = consensus
		priorConsensus = consensus
		priorVotes = votes
	}

	if e.shouldFallback(round.Consensus) {
		fallbackRound, err := e.singleLLMRound(ctx, requestID, in, "consensus rejected")
		if err != nil {
			return round, err
		}
		round.Consensus = fallbackRound.Consensus
		round.UsedFallback = true
	}

	return round, nil
}

func unanimous(votes []*models.Vote) bool {
	var intent string
	seen := false
	for _, v := range votes {
		if !v.Valid() {
			continue
		}
		if !seen {
			intent = v.Intent
			seen = true
			continue
		}
		if v.Intent != intent {
			return false
		}
	}
	return seen
}

func (e *Engine) shouldFallback(c *models.Consensus) bool {
	if c == nil {
		return true
	}
	if c.AgreementLevel == models.AgreementFailed {
		return true
	}
	if c.Confidence < e.cfg.ConsensusThreshold {
		return true
	}
	if e.cfg.HelpIntent != "" && c.FinalIntent == e.cfg.HelpIntent {
		return true
	}
	return false
}

// castVotes runs one round of voting across all participants, in
// parallel when ParallelVoting is set, sequentially otherwise. A
// cancelled or timed-out vote is recorded Failed/Timeout, never dropped
// silently, so it is visible in round.Rounds.
func (e *Engine) castVotes(ctx context.Context, in Input, prior []*models.Vote, roundNum int) []*models.Vote {
	votes := make([]*models.Vote, len(e.participants))

	cast := func(i int) {
		votes[i] = e.castOne(ctx, e.participants[i], in, prior, roundNum)
	}

	if e.cfg.ParallelVoting {
		var g errgroup.Group
		for i := range e.participants {
			i := i
			g.Go(func() error {
				cast(i)
				return nil
			})
		}
		_ = g.Wait()
	} else {
		for i := range e.participants {
			cast(i)
		}
	}
	return votes
}

func (e *Engine) castOne(ctx context.Context, p Participant, in Input, prior []*models.Vote, roundNum int) *models.Vote {
	vote := &models.Vote{
		VoteID: id.New(id.PrefixVote),
		LLMID:  p.LLMID,
		Role:   p.Role,
		Weight: p.Weight,
		Status: models.VoteInProgress,
	}

	timeout := e.cfg.TimeoutPerVote
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	voteCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	prompt := buildVotePrompt(p.Role, in, prior, roundNum)
	raw, err := p.Provider.Complete(voteCtx, prompt, ports.CompletionParams{Temperature: 0.2, MaxTokens: 400, JSONMode: true})
	if err != nil {
		vote.Status = statusForError(voteCtx, err)
		vote.FailureReason = err.Error()
		return vote
	}

	parsed, err := parseVoteResponse(raw)
	if err != nil {
		vote.Status = models.VoteFailed
		vote.FailureReason = err.Error()
		return vote
	}

	vote.Intent = parsed.Intent
	vote.Confidence = clamp01(parsed.Confidence)
	vote.Entities = parsed.Entities
	vote.Reasoning = parsed.Reasoning
	vote.Status = models.VoteCompleted
	return vote
}

func statusForError(ctx context.Context, err error) models.VoteStatus {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return models.VoteTimeout
	}
	if errors.Is(ctx.Err(), context.Canceled) {
		return models.VoteFailed
	}
	return models.VoteFailed
}

func buildVotePrompt(role string, in Input, prior []*models.Vote, roundNum int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are the %q expert in a panel classifying a voice assistant request.\n", role)
	b.WriteString("Utterance: ")
	b.WriteString(in.Utterance)
	b.WriteString("\n")
	if in.History != "" {
		b.WriteString("Conversation history: ")
		b.WriteString(in.History)
		b.WriteString("\n")
	}
	if len(in.KnownIntents) > 0 {
		b.WriteString("Known intents: ")
		b.WriteString(strings.Join(in.KnownIntents, ", "))
		b.WriteString("\n")
	}
	if roundNum > 1 && len(prior) > 0 {
		b.WriteString("\nPrior round's votes (maintain or revise your answer):\n")
		for _, v := range prior {
			if !v.Valid() {
				continue
			}
			fmt.Fprintf(&b, "- %s proposed %q (confidence %.2f): %s\n", v.Role, v.Intent, v.Confidence, v.Reasoning)
		}
	}
	b.WriteString(`Respond with JSON only: {"intent": string, "confidence": number 0-1, "entities": object, "reasoning": string}`)
	return b.String()
}

func parseVoteResponse(raw string) (*voteResponse, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	raw = strings.TrimSpace(raw)

	var parsed voteResponse
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, fmt.Errorf("unparsable vote response: %w", err)
	}
	if parsed.Intent == "" {
		return nil, fmt.Errorf("vote response missing intent field")
	}
	return &parsed, nil
}

// singleLLMRound degrades to one primary-LLM call and wraps it as a
// one-vote consensus, used when MoE is disabled or a round's consensus
// is rejected.
func (e *Engine) singleLLMRound(ctx context.Context, requestID string, in Input, reason string) (*models.VotingRound, error) {
	vote := e.castOne(ctx, Participant{LLMID: "primary", Role: "generalist", Weight: 1.0, Provider: e.primary}, in, nil, 1)
	consensus := CalculateConsensus([]*models.Vote{vote})
	if consensus.Method == "weighted_vote" {
		consensus.Method = "single_llm_fallback"
	}
	consensus.Reasoning = reason + "; " + consensus.Reasoning
	return &models.VotingRound{
		RequestID:    requestID,
		Rounds:       [][]*models.Vote{{vote}},
		Consensus:    consensus,
		DebateRounds: 1,
		UsedFallback: true,
	}, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
