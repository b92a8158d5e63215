package models

import (
	"testing"
	"time"
)

func TestProgressTrackerConsistentCounts(t *testing.T) {
	tr := NewProgressTracker("trk_1", "exec_1", "sess_1", []string{"a", "b", "c"}, time.Now())
	if !tr.ConsistentCounts() {
		t.Fatal("fresh tracker should be consistent")
	}

	tr.Pending--
	tr.InProgress++
	if !tr.ConsistentCounts() {
		t.Fatal("pending->in_progress move should remain consistent")
	}

	tr.InProgress--
	tr.Completed++
	if !tr.ConsistentCounts() {
		t.Fatal("in_progress->completed move should remain consistent")
	}
	if tr.Percentage() < 33.3 || tr.Percentage() > 33.4 {
		t.Fatalf("expected ~33.3%%, got %v", tr.Percentage())
	}
}

func TestProgressTrackerDone(t *testing.T) {
	tr := NewProgressTracker("trk_1", "exec_1", "sess_1", []string{"a"}, time.Now())
	if tr.Done() {
		t.Fatal("fresh tracker with pending subtask should not be done")
	}
	tr.Pending = 0
	tr.Completed = 1
	if !tr.Done() {
		t.Fatal("tracker with no pending/in_progress should be done")
	}
}
