// Package orchestrator implements the Task Orchestrator (C15): executing
// an ExecutionPlan level by level with a bounded worker pool, retrying
// idempotent failures with linear backoff, publishing progress, and
// rolling back on a critical failure.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/atlasvoice/assistant/internal/domain/models"
	"github.com/atlasvoice/assistant/internal/ports"
	"github.com/atlasvoice/assistant/internal/progress"
)

// Config controls C15's behavior (spec §6 orchestrator.* keys).
type Config struct {
	MaxParallelTasks int
	DefaultTimeout   time.Duration
	RetryBackoffUnit time.Duration

	// EnableParallelExecution selects the bounded worker pool within each
	// level; when false, a level's subtasks run one at a time in order.
	EnableParallelExecution bool
	// EnableRollbackOnFailure gates whether a critical failure triggers
	// rollback of completed, rollback-capable subtasks; when false, a
	// critical failure still halts further levels but leaves completed
	// work in place.
	EnableRollbackOnFailure bool
}

// Orchestrator executes ExecutionPlans against the tool action registry.
type Orchestrator struct {
	actions  ports.ToolActionRegistry
	progress *progress.Manager
	cfg      Config
}

// New constructs an Orchestrator.
func New(actions ports.ToolActionRegistry, progressMgr *progress.Manager, cfg Config) *Orchestrator {
	if cfg.MaxParallelTasks <= 0 {
		cfg.MaxParallelTasks = 4
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = 10 * time.Second
	}
	if cfg.RetryBackoffUnit <= 0 {
		cfg.RetryBackoffUnit = 500 * time.Millisecond
	}
	return &Orchestrator{actions: actions, progress: progressMgr, cfg: cfg}
}

// Execute runs plan level by level, with a buffered-channel-bounded
// worker pool of size cfg.MaxParallelTasks within each level. Any
// subtask that ends Failed or Timeout after its allowed attempts halts
// further levels; when cfg.EnableRollbackOnFailure is set, every
// already-completed, rollback-capable subtask is then rolled back in
// reverse completion order.
func (o *Orchestrator) Execute(ctx context.Context, plan *models.ExecutionPlan, executionSessionID, conversationSessionID string) *models.TaskExecutionResult {
	start := time.Now()
	all := plan.AllSubtasks()

	ids := make([]string, len(all))
	for i, st := range all {
		ids[i] = st.SubtaskID
	}
	tracker := o.progress.Start(executionSessionID, conversationSessionID, ids, start)

	var completedOrder []string
	criticalFailure := false

	for _, level := range plan.Levels {
		if criticalFailure {
			break
		}
		if o.cfg.EnableParallelExecution {
			completedOrder, criticalFailure = o.runLevelParallel(ctx, level, tracker, completedOrder)
		} else {
			completedOrder, criticalFailure = o.runLevelSequential(ctx, level, tracker, completedOrder)
		}
	}

	var rolledBack []string
	if criticalFailure && o.cfg.EnableRollbackOnFailure {
		rolledBack = o.rollback(ctx, plan, completedOrder, tracker)
	}

	return summarize(plan, tracker, rolledBack, start)
}

// runLevelParallel runs a level's subtasks concurrently through a
// cfg.MaxParallelTasks-bounded worker pool.
func (o *Orchestrator) runLevelParallel(ctx context.Context, level models.DependencyLevel, tracker *models.ProgressTracker, completedOrder []string) ([]string, bool) {
	var mu sync.Mutex
	criticalFailure := false

	sem := make(chan struct{}, o.cfg.MaxParallelTasks)
	var wg sync.WaitGroup
	for _, st := range level.Subtasks {
		st := st
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			o.runSubtask(ctx, st, tracker)

			mu.Lock()
			defer mu.Unlock()
			if st.Status == models.SubtaskCompleted {
				completedOrder = append(completedOrder, st.SubtaskID)
			} else if st.Status == models.SubtaskFailed || st.Status == models.SubtaskTimeout {
				criticalFailure = true
			}
		}()
	}
	wg.Wait()
	return completedOrder, criticalFailure
}

// runLevelSequential runs a level's subtasks one at a time in order,
// stopping early on a critical failure within the level.
func (o *Orchestrator) runLevelSequential(ctx context.Context, level models.DependencyLevel, tracker *models.ProgressTracker, completedOrder []string) ([]string, bool) {
	for _, st := range level.Subtasks {
		o.runSubtask(ctx, st, tracker)
		if st.Status == models.SubtaskCompleted {
			completedOrder = append(completedOrder, st.SubtaskID)
		} else if st.Status == models.SubtaskFailed || st.Status == models.SubtaskTimeout {
			return completedOrder, true
		}
	}
	return completedOrder, false
}

// runSubtask invokes one subtask's action with a per-action timeout and
// linear-backoff retries, but only when the action is idempotent — a
// non-idempotent action's failure is terminal on the first attempt since
// retrying it could repeat an irreversible side effect.
func (o *Orchestrator) runSubtask(ctx context.Context, st *models.Subtask, tracker *models.ProgressTracker) {
	action := o.actions.Lookup(st.ActionID)
	if action == nil {
		st.Transition(models.SubtaskExecuting, time.Now())
		st.Transition(models.SubtaskFailed, time.Now())
		st.Error = "unknown action_id"
		o.progress.Update(tracker.TrackerID, st.SubtaskID, st.Status, time.Now())
		return
	}

	st.Transition(models.SubtaskExecuting, time.Now())
	o.progress.Update(tracker.TrackerID, st.SubtaskID, st.Status, time.Now())

	timeout := o.cfg.DefaultTimeout
	if action.TimeoutSeconds > 0 {
		timeout = time.Duration(action.TimeoutSeconds) * time.Second
	}

	maxAttempts := 1
	if action.Idempotent && st.MaxRetries > 0 {
		maxAttempts = st.MaxRetries + 1
	}

	var lastErr error
	var timedOut bool
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			st.RetryCount++
			if timedOut {
				st.Transition(models.SubtaskTimeout, time.Now())
			} else {
				st.Transition(models.SubtaskFailed, time.Now())
			}
			st.Transition(models.SubtaskRetrying, time.Now())
			o.progress.Update(tracker.TrackerID, st.SubtaskID, st.Status, time.Now())
			time.Sleep(time.Duration(attempt) * o.cfg.RetryBackoffUnit)
			st.Transition(models.SubtaskExecuting, time.Now())
		}

		callCtx, cancel := context.WithTimeout(ctx, timeout)
		result, err := o.actions.Invoke(callCtx, st.ActionID, st.Entities)
		timedOut = callCtx.Err() != nil
		cancel()
		if err == nil {
			st.Result = result
			st.Transition(models.SubtaskCompleted, time.Now())
			o.progress.Update(tracker.TrackerID, st.SubtaskID, st.Status, time.Now())
			return
		}
		lastErr = err
	}

	if timedOut {
		st.Transition(models.SubtaskTimeout, time.Now())
	} else {
		st.Transition(models.SubtaskFailed, time.Now())
	}
	if lastErr != nil {
		st.Error = lastErr.Error()
	}
	o.progress.Update(tracker.TrackerID, st.SubtaskID, st.Status, time.Now())
}

// rollback walks completedOrder in reverse and invokes the compensating
// operation for every rollback-capable action, recording which subtasks
// were rolled back.
func (o *Orchestrator) rollback(ctx context.Context, plan *models.ExecutionPlan, completedOrder []string, tracker *models.ProgressTracker) []string {
	var rolledBack []string
	for i := len(completedOrder) - 1; i >= 0; i-- {
		subtaskID := completedOrder[i]
		st := plan.Lookup(subtaskID)
		if st == nil {
			continue
		}
		action := o.actions.Lookup(st.ActionID)
		if action == nil || !action.RollbackCapable {
			continue
		}
		if err := o.actions.Rollback(ctx, st.ActionID, st.Entities, st.Result); err != nil {
			continue
		}
		st.Transition(models.SubtaskCancelled, time.Now())
		o.progress.Update(tracker.TrackerID, st.SubtaskID, st.Status, time.Now())
		rolledBack = append(rolledBack, subtaskID)
	}
	return rolledBack
}

func summarize(plan *models.ExecutionPlan, tracker *models.ProgressTracker, rolledBack []string, start time.Time) *models.TaskExecutionResult {
	results := make(map[string]*models.Subtask)
	completed, failed := 0, 0
	for _, st := range plan.AllSubtasks() {
		results[st.SubtaskID] = st
		switch st.Status {
		case models.SubtaskCompleted:
			completed++
		case models.SubtaskFailed, models.SubtaskTimeout:
			failed++
		}
	}
	total := len(results)
	return &models.TaskExecutionResult{
		TotalSubtasks:  total,
		CompletedCount: completed,
		FailedCount:    failed,
		RolledBack:     rolledBack,
		AllSuccessful:  completed == total,
		Results:        results,
		DurationMS:     time.Since(start).Milliseconds(),
	}
}
