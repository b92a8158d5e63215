// Package progress implements the Progress Tracker (C16): starting and
// updating per-execution subtask counters, validating completion, and
// sweeping stale trackers.
package progress

import (
	"sync"
	"time"

	"github.com/atlasvoice/assistant/internal/domain/models"
	id "github.com/atlasvoice/assistant/internal/idgen"
)

// Config controls C16's behavior (spec §6 progress.* keys).
type Config struct {
	// StaleAfter is how long a tracker may go without an Update before the
	// sweep considers it stale and cancels its remaining subtasks.
	StaleAfter time.Duration
}

// Manager holds every in-flight ProgressTracker, guarded by a mutex, the
// same shape as circuitbreaker.CircuitBreaker's internal state guard.
type Manager struct {
	mu       sync.Mutex
	trackers map[string]*models.ProgressTracker
	cfg      Config
}

// New constructs a Manager.
func New(cfg Config) *Manager {
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 10 * time.Minute
	}
	return &Manager{trackers: make(map[string]*models.ProgressTracker), cfg: cfg}
}

// Start creates and registers a new tracker for an execution plan's
// subtask ids, all initially Pending.
func (m *Manager) Start(executionSessionID, conversationSessionID string, subtaskIDs []string, now time.Time) *models.ProgressTracker {
	tracker := models.NewProgressTracker(id.NewTracker(), executionSessionID, conversationSessionID, subtaskIDs, now)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trackers[tracker.TrackerID] = tracker
	return tracker
}

// Get returns the tracker by id, or nil if it does not exist (already
// swept, or never started).
func (m *Manager) Get(trackerID string) *models.ProgressTracker {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.trackers[trackerID]
}

// Update transitions one subtask's status within a tracker, adjusting the
// bucket counts to match, and returns the updated tracker. Returns false
// if the tracker or subtask id is unknown.
func (m *Manager) Update(trackerID, subtaskID string, newStatus models.SubtaskStatus, now time.Time) (*models.ProgressTracker, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tracker, ok := m.trackers[trackerID]
	if !ok {
		return nil, false
	}
	prior, ok := tracker.PerSubtask[subtaskID]
	if !ok {
		return nil, false
	}

	decrementBucket(tracker, prior)
	tracker.PerSubtask[subtaskID] = newStatus
	incrementBucket(tracker, newStatus)
	tracker.UpdatedAt = now
	return tracker, true
}

func decrementBucket(t *models.ProgressTracker, status models.SubtaskStatus) {
	switch status {
	case models.SubtaskPending:
		t.Pending--
	case models.SubtaskExecuting, models.SubtaskRetrying:
		t.InProgress--
	case models.SubtaskCompleted:
		t.Completed--
	case models.SubtaskFailed, models.SubtaskTimeout:
		t.Failed--
	case models.SubtaskCancelled:
		t.Cancelled--
	}
}

func incrementBucket(t *models.ProgressTracker, status models.SubtaskStatus) {
	switch status {
	case models.SubtaskPending:
		t.Pending++
	case models.SubtaskExecuting, models.SubtaskRetrying:
		t.InProgress++
	case models.SubtaskCompleted:
		t.Completed++
	case models.SubtaskFailed, models.SubtaskTimeout:
		t.Failed++
	case models.SubtaskCancelled:
		t.Cancelled++
	}
}

// ValidateCompletion checks spec §4.16's completion rule: every
// non-optional subtask (identified by subtaskID presence in
// requiredSubtaskIDs) must be Completed, and every subtask's declared
// dependencies must also be Completed. Returns the list of subtask ids
// still blocking completion.
func ValidateCompletion(tracker *models.ProgressTracker, plan *models.ExecutionPlan, requiredSubtaskIDs map[string]bool) []string {
	var blocking []string
	for subtaskID, status := range tracker.PerSubtask {
		if !requiredSubtaskIDs[subtaskID] {
			continue
		}
		if status != models.SubtaskCompleted {
			blocking = append(blocking, subtaskID)
			continue
		}
		st := plan.Lookup(subtaskID)
		if st == nil {
			continue
		}
		for _, dep := range st.Dependencies {
			if tracker.PerSubtask[dep] != models.SubtaskCompleted {
				blocking = append(blocking, dep)
			}
		}
	}
	return blocking
}

// Sweep cancels every non-terminal subtask in trackers that have not been
// updated within cfg.StaleAfter, and removes fully-done trackers from the
// manager. Intended to run periodically from a background goroutine.
func (m *Manager) Sweep(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for trackerID, tracker := range m.trackers {
		if tracker.Done() {
			delete(m.trackers, trackerID)
			continue
		}
		if now.Sub(tracker.UpdatedAt) < m.cfg.StaleAfter {
			continue
		}
		for subtaskID, status := range tracker.PerSubtask {
			if status == models.SubtaskPending || status == models.SubtaskExecuting || status == models.SubtaskRetrying {
				decrementBucket(tracker, status)
				tracker.PerSubtask[subtaskID] = models.SubtaskCancelled
				tracker.Cancelled++
			}
		}
		tracker.UpdatedAt = now
		tracker.Frozen = true
	}
}
