package models

import "time"

// SessionState is the lifecycle state of a conversational session.
type SessionState string

const (
	SessionStateActive    SessionState = "active"
	SessionStateWaiting   SessionState = "waiting"
	SessionStateCompleted SessionState = "completed"
	SessionStateExpired   SessionState = "expired"
	SessionStateCancelled SessionState = "cancelled"
)

// Session is the root aggregate for one conversation: it exclusively owns
// its Turns, Context, and any pending Subtasks of the active execution.
type Session struct {
	SessionID      string       `json:"session_id"`
	UserID         string       `json:"user_id"`
	State          SessionState `json:"state"`
	CreatedAt      time.Time    `json:"created_at"`
	LastActivityAt time.Time    `json:"last_activity_at"`
	TTL            time.Duration `json:"ttl"`
	Turns          []*Turn      `json:"turns"`
	Context        *Context     `json:"context"`
	TotalTurns     int          `json:"total_turns"`
	SuccessfulTurns int         `json:"successful_turns"`
}

// NewSession creates a fresh session in the Active state, as happens when a
// request arrives without a valid session_id.
func NewSession(sessionID, userID string, ttl time.Duration, now time.Time) *Session {
	return &Session{
		SessionID:      sessionID,
		UserID:         userID,
		State:          SessionStateActive,
		CreatedAt:      now,
		LastActivityAt: now,
		TTL:            ttl,
		Turns:          make([]*Turn, 0),
		Context:        NewContext(),
	}
}

// IsExpired reports whether now is past the session's idle TTL.
func (s *Session) IsExpired(now time.Time) bool {
	if s.State == SessionStateExpired {
		return true
	}
	return now.Sub(s.LastActivityAt) > s.TTL
}

// NextTurnIndex returns the turn index the next AppendTurn call will assign,
// i.e. the session's current turn count. Turn indices are strictly
// increasing within a session.
func (s *Session) NextTurnIndex() int {
	return len(s.Turns)
}

// AppendTurn records a new, immutable Turn and refreshes activity metadata.
// Turns are never mutated once appended.
func (s *Session) AppendTurn(turn *Turn, now time.Time) {
	s.Turns = append(s.Turns, turn)
	s.TotalTurns++
	if turn.Successful() {
		s.SuccessfulTurns++
	}
	s.LastActivityAt = now
	if s.State == SessionStateExpired || s.State == SessionStateCancelled {
		return
	}
	s.State = SessionStateActive
}

// MarkWaiting transitions the session into Waiting, used while the
// slot-filling state machine is gathering required entities.
func (s *Session) MarkWaiting() {
	if s.State == SessionStateExpired || s.State == SessionStateCancelled {
		return
	}
	s.State = SessionStateWaiting
}

// MarkCompleted transitions the session into Completed after an
// orchestration run finishes.
func (s *Session) MarkCompleted() {
	if s.State == SessionStateExpired || s.State == SessionStateCancelled {
		return
	}
	s.State = SessionStateCompleted
}

// Expire marks the session Expired; it is a terminal state reachable from
// any non-cancelled state.
func (s *Session) Expire() {
	if s.State == SessionStateCancelled {
		return
	}
	s.State = SessionStateExpired
}

// Cancel marks the session Cancelled, a terminal state.
func (s *Session) Cancel() {
	s.State = SessionStateCancelled
}
