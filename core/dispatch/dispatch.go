// Package dispatch executes a tool-call directive against the matching
// capability and converts every possible ending into a uniform outcome
// with exactly one terminal assistant message. The dispatcher never
// loops: multi-step plans happen across rounds, driven by the model.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mudler/xlog"

	"github.com/herald-ai/herald/core/memory"
	"github.com/herald-ai/herald/core/registry"
	"github.com/herald-ai/herald/core/types"
	models "github.com/herald-ai/herald/dbmodels"
)

type OutcomeKind string

const (
	OutcomeSuccess          OutcomeKind = "success"
	OutcomeUnknownAction    OutcomeKind = "unknown-action"
	OutcomeNotConnected     OutcomeKind = "not-connected"
	OutcomeInvalidArguments OutcomeKind = "invalid-arguments"
	OutcomeMissingParameter OutcomeKind = "missing-parameter"
	OutcomeFailed           OutcomeKind = "failed"
)

// Outcome is the uniform result of one dispatch. Whatever happened, a
// terminal assistant Message with the same text has been appended to
// the conversation.
type Outcome struct {
	Kind       OutcomeKind
	ActionName string
	// Message is the user-visible terminal text.
	Message string
	Result  *types.CapabilityResult
	// MemoryStatus records whether the interaction summary reached
	// semantic memory, so a degraded embedder is observable.
	MemoryStatus memory.InsertStatus
	TaskID       *uuid.UUID
	Err          error
}

type Dispatcher struct {
	registry  *registry.Registry
	store     types.Store
	memory    *memory.Store
	refresher types.TokenRefresher
}

type Option func(*Dispatcher)

// WithMemory enables the side-effect hook that summarizes successful
// actions into semantic memory.
func WithMemory(mem *memory.Store) Option {
	return func(d *Dispatcher) { d.memory = mem }
}

// WithRefresher enables the single refresh-and-retry on
// credential-expired signals.
func WithRefresher(r types.TokenRefresher) Option {
	return func(d *Dispatcher) { d.refresher = r }
}

func New(reg *registry.Registry, store types.Store, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		registry: reg,
		store:    store,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Dispatch runs one tool call for the user inside the conversation.
func (d *Dispatcher) Dispatch(ctx context.Context, user *models.User, conv *models.Conversation, call types.ToolCall) *Outcome {
	outcome := d.run(ctx, user, conv, call)

	msg := &models.Message{
		ConversationID: conv.ID,
		Role:           models.RoleAssistant,
		Content:        outcome.Message,
		ToolCallName:   call.Name,
		ToolCallArgs:   call.Arguments,
	}
	if err := d.store.AppendMessage(ctx, msg); err != nil {
		xlog.Error("Failed to append terminal message", "conversation", conv.ID, "error", err)
	}

	return outcome
}

func (d *Dispatcher) run(ctx context.Context, user *models.User, conv *models.Conversation, call types.ToolCall) *Outcome {
	capability, ok := d.registry.Resolve(call.Name)
	if !ok {
		return &Outcome{
			Kind:       OutcomeUnknownAction,
			ActionName: call.Name,
			Message:    fmt.Sprintf("I'm sorry, I tried to perform %q but no such action exists.", call.Name),
		}
	}

	if !user.Connected(capability.Provider()) {
		return &Outcome{
			Kind:       OutcomeNotConnected,
			ActionName: call.Name,
			Message: fmt.Sprintf("I'm sorry, I can't perform %q: your %s account is not connected.",
				call.Name, capability.Provider()),
		}
	}

	params, err := call.Params()
	if err != nil {
		return &Outcome{
			Kind:       OutcomeInvalidArguments,
			ActionName: call.Name,
			Message:    fmt.Sprintf("I'm sorry, I couldn't understand the arguments for %q.", call.Name),
			Err:        err,
		}
	}

	if missing := missingRequired(capability.Definition(), params); len(missing) > 0 {
		return &Outcome{
			Kind:       OutcomeMissingParameter,
			ActionName: call.Name,
			Message: fmt.Sprintf("I'm sorry, I couldn't perform %q: missing required parameter %q.",
				call.Name, missing[0]),
			Err: fmt.Errorf("missing required parameters: %v", missing),
		}
	}

	result, err := d.execute(ctx, user, capability, params)
	if err != nil {
		xlog.Warn("Capability execution failed",
			"action", call.Name, "user", user.ID, "kind", types.FailureKindOf(err), "error", err)
		return &Outcome{
			Kind:       OutcomeFailed,
			ActionName: call.Name,
			Message:    failureMessage(call.Name, err),
			Err:        err,
		}
	}

	outcome := &Outcome{
		Kind:       OutcomeSuccess,
		ActionName: call.Name,
		Message:    result.Result,
		Result:     &result,
	}

	if d.memory != nil {
		status, err := d.memory.Insert(ctx, user.ID, result.Result, models.SourceInteraction, map[string]string{
			"action":       call.Name,
			"conversation": conv.ID.String(),
		})
		if err != nil {
			xlog.Warn("Interaction memory insert failed", "action", call.Name, "error", err)
		}
		outcome.MemoryStatus = status
	}

	if result.FollowUp != "" {
		task := &models.AgentTask{
			UserID:         user.ID,
			ConversationID: &conv.ID,
			Description:    result.FollowUp,
			Status:         models.TaskPending,
			NotBefore:      time.Now(),
		}
		if err := d.store.CreateTask(ctx, task); err != nil {
			xlog.Error("Failed to create follow-up task", "action", call.Name, "error", err)
		} else {
			outcome.TaskID = &task.ID
		}
	}

	return outcome
}

// execute invokes the capability with the user's credential, allowing
// exactly one refresh-and-retry on a credential-expiry signal.
func (d *Dispatcher) execute(ctx context.Context, user *models.User, capability types.Capability, params types.ToolParams) (types.CapabilityResult, error) {
	conn, err := d.store.ConnectionFor(ctx, user.ID, capability.Provider())
	if err != nil {
		return types.CapabilityResult{}, &types.CapabilityError{
			Kind:    types.FailureCredentialExpired,
			Message: "no credential on record",
		}
	}

	result, err := capability.Execute(ctx, credential(conn), params)
	if err == nil || types.FailureKindOf(err) != types.FailureCredentialExpired {
		return result, err
	}

	if d.refresher == nil {
		return types.CapabilityResult{}, err
	}

	xlog.Info("Credential expired, attempting refresh", "user", user.ID, "provider", capability.Provider())
	refreshed, refreshErr := d.refresher.Refresh(ctx, conn)
	if refreshErr != nil {
		return types.CapabilityResult{}, errors.Join(err, refreshErr)
	}
	if updateErr := d.store.UpdateConnection(ctx, refreshed); updateErr != nil {
		xlog.Error("Failed to persist refreshed credential", "user", user.ID, "error", updateErr)
	}

	return capability.Execute(ctx, credential(refreshed), params)
}

func credential(conn *models.Connection) types.Credential {
	return types.Credential{
		AccessToken:  conn.AccessToken,
		RefreshToken: conn.RefreshToken,
	}
}

func missingRequired(def types.ToolDefinition, params types.ToolParams) []string {
	var missing []string
	for _, name := range def.Required {
		v, ok := params[name]
		if !ok || v == nil {
			missing = append(missing, name)
			continue
		}
		if s, isString := v.(string); isString && s == "" {
			missing = append(missing, name)
		}
	}
	return missing
}

func failureMessage(action string, err error) string {
	switch types.FailureKindOf(err) {
	case types.FailureCredentialExpired:
		return fmt.Sprintf("I'm sorry, I couldn't perform %q: your credentials have expired. Please reconnect the account.", action)
	case types.FailureRateLimited:
		return fmt.Sprintf("I'm sorry, %q is rate limited right now. Please try again in a moment.", action)
	case types.FailureNotFound:
		return fmt.Sprintf("I'm sorry, I couldn't perform %q: the requested item was not found.", action)
	default:
		return fmt.Sprintf("I'm sorry, %q failed due to a service error. Please try again.", action)
	}
}
