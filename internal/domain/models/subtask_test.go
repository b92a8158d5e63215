package models

import (
	"testing"
	"time"
)

func TestValidSubtaskTransition(t *testing.T) {
	tests := []struct {
		name string
		from SubtaskStatus
		to   SubtaskStatus
		ok   bool
	}{
		{"pending to executing", SubtaskPending, SubtaskExecuting, true},
		{"executing to completed", SubtaskExecuting, SubtaskCompleted, true},
		{"executing to failed", SubtaskExecuting, SubtaskFailed, true},
		{"failed to retrying", SubtaskFailed, SubtaskRetrying, true},
		{"retrying to executing", SubtaskRetrying, SubtaskExecuting, true},
		{"completed to cancelled", SubtaskCompleted, SubtaskCancelled, true},
		{"pending to completed direct", SubtaskPending, SubtaskCompleted, false},
		{"cancelled to anything", SubtaskCancelled, SubtaskExecuting, false},
		{"same state", SubtaskExecuting, SubtaskExecuting, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidSubtaskTransition(tt.from, tt.to); got != tt.ok {
				t.Errorf("ValidSubtaskTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.ok)
			}
		})
	}
}

func TestSubtaskTransitionRejectsIllegalEdge(t *testing.T) {
	s := &Subtask{Status: SubtaskPending}
	if s.Transition(SubtaskCompleted, time.Now()) {
		t.Fatal("expected illegal transition to be rejected")
	}
	if s.Status != SubtaskPending {
		t.Fatalf("status mutated on rejected transition: %s", s.Status)
	}
}

func TestSubtaskTransitionRecordsCompletionTime(t *testing.T) {
	s := &Subtask{Status: SubtaskExecuting}
	now := time.Now()
	if !s.Transition(SubtaskCompleted, now) {
		t.Fatal("expected transition to succeed")
	}
	if s.CompletedAt == nil || !s.CompletedAt.Equal(now) {
		t.Fatalf("expected CompletedAt to be set to %v, got %v", now, s.CompletedAt)
	}
}

func TestSubtaskTerminal(t *testing.T) {
	if (&Subtask{Status: SubtaskExecuting}).Terminal() {
		t.Fatal("executing should not be terminal")
	}
	if !(&Subtask{Status: SubtaskCompleted}).Terminal() {
		t.Fatal("completed should be terminal")
	}
	if !(&Subtask{Status: SubtaskCancelled}).Terminal() {
		t.Fatal("cancelled should be terminal")
	}
}
