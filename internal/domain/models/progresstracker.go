package models

import "time"

// ProgressTracker (C16) holds real-time per-subtask progress for one
// orchestrated execution. Counts are monotonic except that completed and
// failed counts never exceed total; pending + in_progress + completed +
// failed + cancelled always equals total.
type ProgressTracker struct {
	TrackerID            string                     `json:"tracker_id"`
	ExecutionSessionID   string                     `json:"execution_session_id"`
	ConversationSessionID string                    `json:"conversation_session_id"`
	Total                int                        `json:"total"`
	Completed            int                        `json:"completed"`
	Failed               int                        `json:"failed"`
	InProgress           int                        `json:"in_progress"`
	Pending              int                        `json:"pending"`
	Cancelled            int                        `json:"cancelled"`
	PerSubtask           map[string]SubtaskStatus   `json:"per_subtask"`
	StartedAt            time.Time                  `json:"started_at"`
	UpdatedAt            time.Time                  `json:"updated_at"`
	Frozen               bool                       `json:"frozen"`
}

// NewProgressTracker initializes a tracker with every subtask Pending.
func NewProgressTracker(trackerID, executionSessionID, conversationSessionID string, subtaskIDs []string, now time.Time) *ProgressTracker {
	per := make(map[string]SubtaskStatus, len(subtaskIDs))
	for _, id := range subtaskIDs {
		per[id] = SubtaskPending
	}
	return &ProgressTracker{
		TrackerID:             trackerID,
		ExecutionSessionID:    executionSessionID,
		ConversationSessionID: conversationSessionID,
		Total:                 len(subtaskIDs),
		Pending:               len(subtaskIDs),
		PerSubtask:            per,
		StartedAt:             now,
		UpdatedAt:             now,
	}
}

// Percentage returns overall completion: completed / total * 100.
func (t *ProgressTracker) Percentage() float64 {
	if t.Total == 0 {
		return 0
	}
	return float64(t.Completed) / float64(t.Total) * 100
}

// ConsistentCounts reports the invariant that all bucket counts sum to total.
func (t *ProgressTracker) ConsistentCounts() bool {
	return t.Pending+t.InProgress+t.Completed+t.Failed+t.Cancelled == t.Total
}

// Done reports whether every subtask has reached a terminal state.
func (t *ProgressTracker) Done() bool {
	return t.Pending == 0 && t.InProgress == 0
}
