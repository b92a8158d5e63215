package models

import "time"

// Turn is one immutable exchange within a session: the user's utterance,
// the system's reply, and the classification/slot state at the time it was
// produced. Identity is TurnID, monotonically ordered within the session.
type Turn struct {
	TurnID        string            `json:"turn_id"`
	Index         int               `json:"index"`
	UserText      string            `json:"user_text"`
	AssistantText string            `json:"assistant_text"`
	IntentID      string            `json:"intent_id"`
	Confidence    float64           `json:"confidence"`
	SlotsSnapshot map[string]string `json:"slots_snapshot"`
	CreatedAt     time.Time         `json:"created_at"`
	Failed        bool              `json:"failed"`
}

// NewTurn constructs an immutable Turn record.
func NewTurn(turnID string, index int, userText, assistantText, intentID string, confidence float64, slots map[string]string, now time.Time) *Turn {
	snapshot := make(map[string]string, len(slots))
	for k, v := range slots {
		snapshot[k] = v
	}
	return &Turn{
		TurnID:        turnID,
		Index:         index,
		UserText:      userText,
		AssistantText: assistantText,
		IntentID:      intentID,
		Confidence:    confidence,
		SlotsSnapshot: snapshot,
		CreatedAt:     now,
	}
}

// Successful reports whether the turn produced a usable classification.
func (t *Turn) Successful() bool {
	return !t.Failed && t.IntentID != ""
}
