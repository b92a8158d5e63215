// Package application holds the top-level use cases that wire together
// the session store, classification, slot-filling, decomposition, and
// orchestration components, one file per use case: a constructor taking
// ports interfaces and an Execute(ctx, input) (*Output, error) shape.
package application

import (
	"context"
	"fmt"
	"time"

	"github.com/atlasvoice/assistant/internal/decompose"
	"github.com/atlasvoice/assistant/internal/dependency"
	"github.com/atlasvoice/assistant/internal/domain/models"
	"github.com/atlasvoice/assistant/internal/entity"
	"github.com/atlasvoice/assistant/internal/fallback"
	id "github.com/atlasvoice/assistant/internal/idgen"
	"github.com/atlasvoice/assistant/internal/intent"
	"github.com/atlasvoice/assistant/internal/orchestrator"
	"github.com/atlasvoice/assistant/internal/ports"
	"github.com/atlasvoice/assistant/internal/slotfill"
	"github.com/atlasvoice/assistant/internal/subtaskvalidator"
)

// ProcessUtterance implements spec §2's per-utterance data flow: load the
// session, classify the intent (C7-C9), extract and validate entities
// (C10), drive slot-filling (C11) until required slots are present, then
// decompose (C12), validate (C13), resolve dependencies (C14), and
// orchestrate execution (C15), tracking progress (C16) throughout. Every
// step reads or writes the session (C1).
type ProcessUtterance struct {
	sessions     ports.SessionStore
	catalogue    ports.IntentRegistry
	actions      ports.ToolActionRegistry
	intentEngine *intent.Engine
	recognizer   *entity.Recognizer
	validator    *entity.Validator
	slotfill     *slotfill.Engine
	decomposer   *decompose.Decomposer
	subtaskValid *subtaskvalidator.Validator
	resolver     *dependency.Resolver
	orchestrator *orchestrator.Orchestrator
}

// NewProcessUtterance constructs the use case from its component
// collaborators. Every argument is a narrow ports interface or a
// component's own exported type, never a concrete adapter, so tests can
// substitute fakes at any layer.
func NewProcessUtterance(
	sessions ports.SessionStore,
	catalogue ports.IntentRegistry,
	actions ports.ToolActionRegistry,
	intentEngine *intent.Engine,
	recognizer *entity.Recognizer,
	validator *entity.Validator,
	slotfillEngine *slotfill.Engine,
	decomposer *decompose.Decomposer,
	subtaskValid *subtaskvalidator.Validator,
	resolver *dependency.Resolver,
	orch *orchestrator.Orchestrator,
) *ProcessUtterance {
	return &ProcessUtterance{
		sessions:     sessions,
		catalogue:    catalogue,
		actions:      actions,
		intentEngine: intentEngine,
		recognizer:   recognizer,
		validator:    validator,
		slotfill:     slotfillEngine,
		decomposer:   decomposer,
		subtaskValid: subtaskValid,
		resolver:     resolver,
		orchestrator: orch,
	}
}

// Input bundles one incoming utterance.
type Input struct {
	SessionID   string
	UserID      string
	Utterance   string
	SessionMeta fallback.SessionMeta
	Now         time.Time
}

// Outcome discriminates what ProcessUtterance did with the turn, since a
// single call may stop at classification, at slot-filling, or run all the
// way through orchestration.
type Outcome string

const (
	OutcomeClarify    Outcome = "clarify"     // asking a slot-filling follow-up question
	OutcomeAbandoned  Outcome = "abandoned"   // a slot exceeded max_attempts
	OutcomeExecuted   Outcome = "executed"    // orchestration ran to completion
	OutcomeNoIntent   Outcome = "no_intent"   // classified intent not in the catalogue
)

// Output is the use case's structured result. Subtask execution failures
// are reported inside ExecutionResult. A failure to load the session,
// classify, extract entities, run slot-filling, decompose, or save
// slot-filling state is returned by Execute as a wrapped error with no
// Output.
type Output struct {
	SessionID       string
	TurnID          string
	Outcome         Outcome
	Classification  *models.ClassificationResult
	AssistantText   string
	ExecutionResult *models.TaskExecutionResult
}

// Execute runs the full per-utterance pipeline.
func (uc *ProcessUtterance) Execute(ctx context.Context, in Input) (*Output, error) {
	now := in.Now
	if now.IsZero() {
		now = time.Now()
	}

	session, err := uc.sessions.CreateOrLoad(ctx, in.SessionID, in.UserID)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}

	intentID := session.Context.ActiveIntent
	var intentDef *models.IntentDefinition
	var result *models.ClassificationResult

	if intentID != "" {
		intentDef = uc.catalogue.Lookup(intentID)
	}
	if intentDef == nil {
		classified, err := uc.intentEngine.Classify(ctx, intent.Input{
			RequestID:      id.NewRequest(),
			Utterance:      in.Utterance,
			KnownIntents:   uc.catalogue.Current().IDs(),
			SessionMeta:    in.SessionMeta,
			HasContextMeta: in.SessionMeta != (fallback.SessionMeta{}),
		})
		if err != nil {
			return nil, fmt.Errorf("classify utterance: %w", err)
		}
		result = classified.Result
		intentDef = uc.catalogue.Lookup(result.IntentID)
		if intentDef == nil {
			turn := uc.recordTurn(ctx, session, in.Utterance, "", result, now)
			return &Output{SessionID: session.SessionID, TurnID: turn.TurnID, Outcome: OutcomeNoIntent, Classification: result}, nil
		}
	}

	extracted, err := uc.recognizer.Recognize(ctx, entity.Input{
		Utterance:   in.Utterance,
		WantedTypes: append(append([]string(nil), intentDef.RequiredSlots...), intentDef.OptionalSlots...),
		Context:     session.Context,
		RecentTurns: recentTurns(session, 3),
	})
	if err != nil {
		return nil, fmt.Errorf("extract entities: %w", err)
	}
	validated, _ := uc.validator.ValidateAll(extracted)

	state := slotStateFor(session, intentDef.IntentID)
	slotResult, err := uc.slotfill.ProcessTurn(ctx, intentDef, state, validated)
	if err != nil {
		return nil, fmt.Errorf("slot fill: %w", err)
	}

	if err := uc.sessions.UpdateContext(ctx, session.SessionID, func(c *models.Context) error {
		c.ActiveIntent = intentDef.IntentID
		c.PendingSlots = slotResult.Session.Filled
		return nil
	}); err != nil {
		return nil, fmt.Errorf("persist slot state: %w", err)
	}

	if slotResult.Abandoned {
		turn := uc.recordTurn(ctx, session, in.Utterance, "lo siento, no pude completar la solicitud", result, now)
		return &Output{SessionID: session.SessionID, TurnID: turn.TurnID, Outcome: OutcomeAbandoned, Classification: result}, nil
	}
	if !slotResult.Ready {
		turn := uc.recordTurn(ctx, session, in.Utterance, slotResult.Question, result, now)
		return &Output{SessionID: session.SessionID, TurnID: turn.TurnID, Outcome: OutcomeClarify, AssistantText: slotResult.Question, Classification: result}, nil
	}

	action := uc.actions.Lookup(intentDef.ToolActionID)
	var availableActions []*models.ToolAction
	if action != nil {
		availableActions = []*models.ToolAction{action}
	}
	subtasks, err := uc.decomposer.Decompose(ctx, decompose.Input{
		Utterance:        in.Utterance,
		Context:          session.Context,
		AvailableActions: availableActions,
	})
	if err != nil {
		return nil, fmt.Errorf("decompose utterance: %w", err)
	}

	validSubtasks, _ := uc.subtaskValid.ValidateBatch(subtasks)
	plan := uc.resolver.Resolve(validSubtasks)

	execResult := uc.orchestrator.Execute(ctx, plan, id.NewExecution(), session.SessionID)

	assistantText := "hecho"
	if !execResult.AllSuccessful {
		assistantText = "no se pudo completar la acción"
	}
	turn := uc.recordTurn(ctx, session, in.Utterance, assistantText, result, now)

	if err := uc.sessions.UpdateContext(ctx, session.SessionID, func(c *models.Context) error {
		c.ActiveIntent = ""
		c.PendingSlots = map[string]string{}
		return nil
	}); err != nil {
		return nil, fmt.Errorf("clear slot state: %w", err)
	}

	return &Output{
		SessionID:       session.SessionID,
		TurnID:          turn.TurnID,
		Outcome:         OutcomeExecuted,
		Classification:  result,
		AssistantText:   assistantText,
		ExecutionResult: execResult,
	}, nil
}

func (uc *ProcessUtterance) recordTurn(ctx context.Context, session *models.Session, userText, assistantText string, result *models.ClassificationResult, now time.Time) *models.Turn {
	intentID, confidence := "", 0.0
	if result != nil {
		intentID, confidence = result.IntentID, result.Confidence
	}
	turn := models.NewTurn(id.NewTurn(), session.NextTurnIndex(), userText, assistantText, intentID, confidence, session.Context.PendingSlots, now)
	if err := uc.sessions.AppendTurn(ctx, session.SessionID, turn); err != nil {
		turn.Failed = true
	}
	return turn
}

func recentTurns(session *models.Session, n int) []*models.Turn {
	if len(session.Turns) <= n {
		return session.Turns
	}
	return session.Turns[len(session.Turns)-n:]
}

func slotStateFor(session *models.Session, intentID string) *slotfill.State {
	st := slotfill.NewState(intentID)
	for slot, value := range session.Context.PendingSlots {
		st.Session.Filled[slot] = value
	}
	return st
}
