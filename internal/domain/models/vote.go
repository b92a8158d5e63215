package models

// VoteStatus is the terminal or in-flight status of one expert's vote (C8).
type VoteStatus string

const (
	VoteInProgress VoteStatus = "in_progress"
	VoteCompleted  VoteStatus = "completed"
	VoteFailed     VoteStatus = "failed"
	VoteTimeout    VoteStatus = "timeout"
)

// Vote is one expert LLM's structured answer in a voting round.
type Vote struct {
	VoteID           string            `json:"vote_id"`
	LLMID            string            `json:"llm_id"`
	Role             string            `json:"role"`
	Weight           float64           `json:"weight"`
	Intent           string            `json:"intent"`
	Confidence       float64           `json:"confidence"`
	Entities         map[string]string `json:"entities,omitempty"`
	ProposedSubtasks []*Subtask        `json:"proposed_subtasks,omitempty"`
	Reasoning        string            `json:"reasoning"`
	Status           VoteStatus        `json:"status"`
	FailureReason    string            `json:"failure_reason,omitempty"`
}

// Valid reports whether the vote counts toward consensus: only Completed
// votes with a non-empty intent participate.
func (v *Vote) Valid() bool {
	return v.Status == VoteCompleted && v.Intent != ""
}
