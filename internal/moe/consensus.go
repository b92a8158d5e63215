package moe

import (
	"sort"

	"github.com/atlasvoice/assistant/internal/domain/models"
)

// CalculateConsensus implements spec §4.7's per-round aggregation: group
// valid votes by intent, pick the intent with the greatest weighted vote
// sum, break ties by higher mean confidence then alphabetical intent_id,
// and classify agreement level. Deterministic given the same multiset of
// valid votes and is independent of vote arrival order (the testable
// "consensus determinism" property from spec §8).
func CalculateConsensus(votes []*models.Vote) *models.Consensus {
	valid := make([]*models.Vote, 0, len(votes))
	for _, v := range votes {
		if v.Valid() {
			valid = append(valid, v)
		}
	}

	if len(valid) == 0 {
		return &models.Consensus{
			AgreementLevel: models.AgreementFailed,
			TotalVotes:     len(votes),
			Method:         "weighted_vote",
			Reasoning:      "no valid votes in round",
		}
	}

	byIntent := make(map[string][]*models.Vote)
	for _, v := range valid {
		byIntent[v.Intent] = append(byIntent[v.Intent], v)
	}

	type candidate struct {
		intent           string
		weightedSum      float64
		meanConf         float64
		weightedMeanConf float64
		votes            []*models.Vote
	}
	candidates := make([]candidate, 0, len(byIntent))
	for intent, vs := range byIntent {
		var weightedSum, confSum, weightedConfSum float64
		for _, v := range vs {
			weightedSum += v.Weight
			confSum += v.Confidence
			weightedConfSum += v.Weight * v.Confidence
		}
		candidates = append(candidates, candidate{
			intent:           intent,
			weightedSum:      weightedSum,
			meanConf:         confSum / float64(len(vs)),
			weightedMeanConf: weightedConfSum / weightedSum,
			votes:            vs,
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].weightedSum != candidates[j].weightedSum {
			return candidates[i].weightedSum > candidates[j].weightedSum
		}
		if candidates[i].meanConf != candidates[j].meanConf {
			return candidates[i].meanConf > candidates[j].meanConf
		}
		return candidates[i].intent < candidates[j].intent
	})

	winner := candidates[0]
	agreement := agreementLevel(len(byIntent), len(winner.votes), len(valid))

	entities := mergeEntities(winner.votes)
	subtasks := mergeSubtasks(winner.votes)

	var reason string
	switch agreement {
	case models.AgreementUnanimous:
		reason = "all valid votes agreed on " + winner.intent
	case models.AgreementMajority:
		reason = winner.intent + " won more than half of valid votes"
	case models.AgreementPlurality:
		reason = winner.intent + " won a plurality of valid votes"
	case models.AgreementSplit:
		reason = "every valid vote proposed a distinct intent; " + winner.intent + " won by weight"
	}

	return &models.Consensus{
		FinalIntent:        winner.intent,
		Confidence:         winner.weightedMeanConf,
		AgreementLevel:     agreement,
		ParticipatingVotes: winner.votes,
		TotalVotes:         len(votes),
		Method:             "weighted_vote",
		Reasoning:          reason,
		Entities:           entities,
		ProposedSubtasks:   subtasks,
	}
}

func agreementLevel(distinctIntents, winnerCount, validCount int) models.AgreementLevel {
	if distinctIntents == 1 {
		return models.AgreementUnanimous
	}
	if winnerCount*2 > validCount {
		return models.AgreementMajority
	}
	if winnerCount > 1 {
		return models.AgreementPlurality
	}
	return models.AgreementSplit
}

// mergeEntities merges entities across the winning votes; conflicts are
// resolved in favor of the higher-confidence vote.
func mergeEntities(votes []*models.Vote) map[string]string {
	merged := make(map[string]string)
	bestConf := make(map[string]float64)
	// Iterate in a stable order (vote_id) so merge is deterministic even
	// though map iteration order within a single vote's Entities is not
	// itself significant (keys, not iteration, determine the outcome).
	ordered := append([]*models.Vote(nil), votes...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].VoteID < ordered[j].VoteID })

	for _, v := range ordered {
		for entityType, value := range v.Entities {
			if existing, ok := bestConf[entityType]; !ok || v.Confidence > existing {
				merged[entityType] = value
				bestConf[entityType] = v.Confidence
			}
		}
	}
	if len(merged) == 0 {
		return nil
	}
	return merged
}

// mergeSubtasks unions proposed subtasks across winning votes, deduplicated
// by action_id since votes do not share subtask ids.
func mergeSubtasks(votes []*models.Vote) []*models.Subtask {
	seen := make(map[string]bool)
	var out []*models.Subtask
	ordered := append([]*models.Vote(nil), votes...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].VoteID < ordered[j].VoteID })
	for _, v := range ordered {
		for _, st := range v.ProposedSubtasks {
			if seen[st.ActionID] {
				continue
			}
			seen[st.ActionID] = true
			out = append(out, st)
		}
	}
	return out
}
