package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlasvoice/assistant/internal/domain/models"
	"github.com/atlasvoice/assistant/internal/ports"
	"github.com/atlasvoice/assistant/internal/progress"
)

type fakeRegistry struct {
	mu          sync.Mutex
	actions     map[string]*models.ToolAction
	invocations map[string]int
	failUntil   map[string]int
	invokeErr   map[string]error
	rollbackErr map[string]error
	sleepFor    map[string]time.Duration
	rolledBack  []string
}

func newFakeRegistry(actions ...*models.ToolAction) *fakeRegistry {
	r := &fakeRegistry{
		actions:     make(map[string]*models.ToolAction),
		invocations: make(map[string]int),
		failUntil:   make(map[string]int),
		invokeErr:   make(map[string]error),
		rollbackErr: make(map[string]error),
		sleepFor:    make(map[string]time.Duration),
	}
	for _, a := range actions {
		r.actions[a.ActionID] = a
	}
	return r
}

func (r *fakeRegistry) Lookup(actionID string) *models.ToolAction {
	return r.actions[actionID]
}

func (r *fakeRegistry) Validate(actionID string, args map[string]string) ports.ValidationResult {
	return ports.ValidationResult{Valid: true}
}

func (r *fakeRegistry) Invoke(ctx context.Context, actionID string, args map[string]string) (map[string]any, error) {
	r.mu.Lock()
	r.invocations[actionID]++
	attempt := r.invocations[actionID]
	r.mu.Unlock()

	if d, ok := r.sleepFor[actionID]; ok {
		select {
		case <-time.After(d):
		case <-ctx.Done():
		}
	}

	if err, ok := r.invokeErr[actionID]; ok {
		return nil, err
	}
	if until, ok := r.failUntil[actionID]; ok && attempt <= until {
		return nil, errors.New("transient failure")
	}
	return map[string]any{"ok": true}, nil
}

func (r *fakeRegistry) Rollback(ctx context.Context, actionID string, args map[string]string, priorResult map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err, ok := r.rollbackErr[actionID]; ok {
		return err
	}
	r.rolledBack = append(r.rolledBack, actionID)
	return nil
}

func planOf(levels ...[]*models.Subtask) *models.ExecutionPlan {
	var dl []models.DependencyLevel
	for i, subs := range levels {
		dl = append(dl, models.DependencyLevel{Index: i, Subtasks: subs})
	}
	return models.NewExecutionPlan(dl)
}

func TestOrchestrator_ExecutesSingleLevelToCompletion(t *testing.T) {
	registry := newFakeRegistry(&models.ToolAction{ActionID: "encender_luz", Idempotent: true})
	mgr := progress.New(progress.Config{})
	o := New(registry, mgr, Config{})

	plan := planOf([]*models.Subtask{
		{SubtaskID: "s1", ActionID: "encender_luz", Entities: map[string]string{}},
	})

	result := o.Execute(context.Background(), plan, "exec1", "sess1")
	require.NotNil(t, result)
	assert.True(t, result.AllSuccessful)
	assert.Equal(t, 1, result.CompletedCount)
	assert.Equal(t, models.SubtaskCompleted, plan.Lookup("s1").Status)
}

func TestOrchestrator_RetriesIdempotentActionUntilSuccess(t *testing.T) {
	registry := newFakeRegistry(&models.ToolAction{ActionID: "consultar_tiempo", Idempotent: true})
	registry.failUntil["consultar_tiempo"] = 2
	mgr := progress.New(progress.Config{})
	o := New(registry, mgr, Config{RetryBackoffUnit: time.Millisecond})

	plan := planOf([]*models.Subtask{
		{SubtaskID: "s1", ActionID: "consultar_tiempo", MaxRetries: 3, Entities: map[string]string{}},
	})

	result := o.Execute(context.Background(), plan, "exec1", "sess1")
	assert.True(t, result.AllSuccessful)
	assert.Equal(t, models.SubtaskCompleted, plan.Lookup("s1").Status)
	assert.Equal(t, 2, plan.Lookup("s1").RetryCount)
}

func TestOrchestrator_NonIdempotentFailureDoesNotRetry(t *testing.T) {
	registry := newFakeRegistry(&models.ToolAction{ActionID: "enviar_mensaje", Idempotent: false})
	registry.invokeErr["enviar_mensaje"] = errors.New("boom")
	mgr := progress.New(progress.Config{})
	o := New(registry, mgr, Config{RetryBackoffUnit: time.Millisecond})

	plan := planOf([]*models.Subtask{
		{SubtaskID: "s1", ActionID: "enviar_mensaje", MaxRetries: 5, Entities: map[string]string{}},
	})

	result := o.Execute(context.Background(), plan, "exec1", "sess1")
	assert.False(t, result.AllSuccessful)
	assert.Equal(t, models.SubtaskFailed, plan.Lookup("s1").Status)
	assert.Equal(t, 0, plan.Lookup("s1").RetryCount)
}

func TestOrchestrator_CriticalFailureRollsBackCompletedLevel(t *testing.T) {
	registry := newFakeRegistry(
		&models.ToolAction{ActionID: "encender_luz", Idempotent: true, RollbackCapable: true},
		&models.ToolAction{ActionID: "enviar_mensaje", Idempotent: false},
	)
	registry.invokeErr["enviar_mensaje"] = errors.New("boom")
	mgr := progress.New(progress.Config{})
	o := New(registry, mgr, Config{RetryBackoffUnit: time.Millisecond, EnableParallelExecution: true, EnableRollbackOnFailure: true})

	plan := planOf(
		[]*models.Subtask{{SubtaskID: "s1", ActionID: "encender_luz", Entities: map[string]string{}}},
		[]*models.Subtask{{SubtaskID: "s2", ActionID: "enviar_mensaje", Entities: map[string]string{}}},
	)

	result := o.Execute(context.Background(), plan, "exec1", "sess1")
	assert.False(t, result.AllSuccessful)
	assert.Contains(t, result.RolledBack, "s1")
	assert.Equal(t, models.SubtaskCancelled, plan.Lookup("s1").Status)
	assert.Equal(t, []string{"encender_luz"}, registry.rolledBack)
}

func TestOrchestrator_RollbackDisabledLeavesCompletedWorkInPlace(t *testing.T) {
	registry := newFakeRegistry(
		&models.ToolAction{ActionID: "encender_luz", Idempotent: true, RollbackCapable: true},
		&models.ToolAction{ActionID: "enviar_mensaje", Idempotent: false},
	)
	registry.invokeErr["enviar_mensaje"] = errors.New("boom")
	mgr := progress.New(progress.Config{})
	o := New(registry, mgr, Config{RetryBackoffUnit: time.Millisecond, EnableParallelExecution: true, EnableRollbackOnFailure: false})

	plan := planOf(
		[]*models.Subtask{{SubtaskID: "s1", ActionID: "encender_luz", Entities: map[string]string{}}},
		[]*models.Subtask{{SubtaskID: "s2", ActionID: "enviar_mensaje", Entities: map[string]string{}}},
	)

	result := o.Execute(context.Background(), plan, "exec1", "sess1")
	assert.False(t, result.AllSuccessful)
	assert.Empty(t, result.RolledBack)
	assert.Equal(t, models.SubtaskCompleted, plan.Lookup("s1").Status)
	assert.Empty(t, registry.rolledBack)
}

func TestOrchestrator_SequentialModeRunsSubtasksOneAtATimeInOrder(t *testing.T) {
	registry := newFakeRegistry(
		&models.ToolAction{ActionID: "encender_luz", Idempotent: true},
		&models.ToolAction{ActionID: "apagar_luz", Idempotent: true},
	)
	mgr := progress.New(progress.Config{})
	o := New(registry, mgr, Config{EnableParallelExecution: false})

	plan := planOf([]*models.Subtask{
		{SubtaskID: "s1", ActionID: "encender_luz", Entities: map[string]string{}},
		{SubtaskID: "s2", ActionID: "apagar_luz", Entities: map[string]string{}},
	})

	result := o.Execute(context.Background(), plan, "exec1", "sess1")
	assert.True(t, result.AllSuccessful)
	assert.Equal(t, 2, result.CompletedCount)
}

func TestOrchestrator_SequentialModeHaltsLevelOnCriticalFailure(t *testing.T) {
	registry := newFakeRegistry(
		&models.ToolAction{ActionID: "encender_luz", Idempotent: true},
		&models.ToolAction{ActionID: "enviar_mensaje", Idempotent: false},
		&models.ToolAction{ActionID: "apagar_luz", Idempotent: true},
	)
	registry.invokeErr["enviar_mensaje"] = errors.New("boom")
	mgr := progress.New(progress.Config{})
	o := New(registry, mgr, Config{EnableParallelExecution: false})

	plan := planOf([]*models.Subtask{
		{SubtaskID: "s1", ActionID: "encender_luz", Entities: map[string]string{}},
		{SubtaskID: "s2", ActionID: "enviar_mensaje", Entities: map[string]string{}},
		{SubtaskID: "s3", ActionID: "apagar_luz", Entities: map[string]string{}},
	})

	result := o.Execute(context.Background(), plan, "exec1", "sess1")
	assert.False(t, result.AllSuccessful)
	assert.Equal(t, models.SubtaskCompleted, plan.Lookup("s1").Status)
	assert.Equal(t, models.SubtaskFailed, plan.Lookup("s2").Status)
	assert.Equal(t, models.SubtaskPending, plan.Lookup("s3").Status)
}

func TestOrchestrator_TimeoutIsCriticalAndTriggersRollback(t *testing.T) {
	registry := newFakeRegistry(
		&models.ToolAction{ActionID: "encender_luz", Idempotent: true, RollbackCapable: true},
		&models.ToolAction{ActionID: "consultar_tiempo", Idempotent: false},
	)
	registry.sleepFor["consultar_tiempo"] = 20 * time.Millisecond
	mgr := progress.New(progress.Config{})
	o := New(registry, mgr, Config{
		DefaultTimeout:          time.Millisecond,
		RetryBackoffUnit:        time.Millisecond,
		EnableParallelExecution: true,
		EnableRollbackOnFailure: true,
	})

	plan := planOf(
		[]*models.Subtask{{SubtaskID: "s1", ActionID: "encender_luz", Entities: map[string]string{}}},
		[]*models.Subtask{{SubtaskID: "s2", ActionID: "consultar_tiempo", Entities: map[string]string{}}},
	)

	result := o.Execute(context.Background(), plan, "exec1", "sess1")
	assert.False(t, result.AllSuccessful)
	assert.Equal(t, models.SubtaskTimeout, plan.Lookup("s2").Status)
	assert.Contains(t, result.RolledBack, "s1")
}

func TestOrchestrator_UnknownActionFailsSubtask(t *testing.T) {
	registry := newFakeRegistry()
	mgr := progress.New(progress.Config{})
	o := New(registry, mgr, Config{})

	plan := planOf([]*models.Subtask{
		{SubtaskID: "s1", ActionID: "no_such_action", Entities: map[string]string{}},
	})

	result := o.Execute(context.Background(), plan, "exec1", "sess1")
	assert.False(t, result.AllSuccessful)
	assert.Equal(t, models.SubtaskFailed, plan.Lookup("s1").Status)
	assert.Equal(t, "unknown action_id", plan.Lookup("s1").Error)
}

func TestOrchestrator_NonRollbackCapableActionIsSkippedOnRollback(t *testing.T) {
	registry := newFakeRegistry(
		&models.ToolAction{ActionID: "encender_luz", Idempotent: true, RollbackCapable: false},
		&models.ToolAction{ActionID: "enviar_mensaje", Idempotent: false},
	)
	registry.invokeErr["enviar_mensaje"] = errors.New("boom")
	mgr := progress.New(progress.Config{})
	o := New(registry, mgr, Config{RetryBackoffUnit: time.Millisecond, EnableParallelExecution: true, EnableRollbackOnFailure: true})

	plan := planOf(
		[]*models.Subtask{{SubtaskID: "s1", ActionID: "encender_luz", Entities: map[string]string{}}},
		[]*models.Subtask{{SubtaskID: "s2", ActionID: "enviar_mensaje", Entities: map[string]string{}}},
	)

	result := o.Execute(context.Background(), plan, "exec1", "sess1")
	assert.Empty(t, result.RolledBack)
	assert.Equal(t, models.SubtaskCompleted, plan.Lookup("s1").Status)
}
