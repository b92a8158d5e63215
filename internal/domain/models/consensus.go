package models

// AgreementLevel classifies how strongly the participating votes agreed.
type AgreementLevel string

const (
	AgreementUnanimous AgreementLevel = "unanimous"
	AgreementMajority  AgreementLevel = "majority"
	AgreementPlurality AgreementLevel = "plurality"
	AgreementSplit     AgreementLevel = "split"
	AgreementFailed    AgreementLevel = "failed"
)

// Consensus is the aggregated decision from one MoE voting round.
type Consensus struct {
	FinalIntent        string            `json:"final_intent"`
	Confidence         float64           `json:"confidence"`
	AgreementLevel     AgreementLevel    `json:"agreement_level"`
	ParticipatingVotes []*Vote           `json:"participating_votes"`
	TotalVotes         int               `json:"total_votes"`
	Method             string            `json:"method"`
	Reasoning          string            `json:"reasoning"`
	Entities           map[string]string `json:"entities,omitempty"`
	ProposedSubtasks   []*Subtask        `json:"proposed_subtasks,omitempty"`
}

// VotingRound is C8's top-level result: the full set of votes cast plus the
// consensus computed from them, across however many debate rounds ran.
type VotingRound struct {
	RequestID    string       `json:"request_id"`
	Rounds       [][]*Vote    `json:"rounds"`
	Consensus    *Consensus   `json:"consensus"`
	DebateRounds int          `json:"debate_rounds"`
	UsedFallback bool         `json:"used_fallback"`
}
