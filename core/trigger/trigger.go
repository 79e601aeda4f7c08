// Package trigger matches external events against standing instructions
// and replays matches through the engine pipeline, guarded by the
// idempotency ledger. At-least-once event delivery is expected; the
// ledger's unique constraint makes redelivery a silent no-op.
package trigger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/mudler/xlog"

	"github.com/herald-ai/herald/core/engine"
	"github.com/herald-ai/herald/core/types"
	models "github.com/herald-ai/herald/dbmodels"
)

// State is the terminal state of one event's run.
type State string

const (
	// StateIgnoredNoUser: the addressing field resolved no user.
	StateIgnoredNoUser State = "ignored-no-user"
	// StateIgnoredNoMatch: no active instruction for the event type.
	StateIgnoredNoMatch State = "ignored-no-match"
	// StateDuplicate: the ledger already holds this (user, event id).
	StateDuplicate State = "duplicate"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// Report describes how an event run ended.
type Report struct {
	State          State
	UserID         uuid.UUID
	EventID        string
	InstructionIDs []uuid.UUID
	ConversationID uuid.UUID
	Reply          *engine.Reply
	Err            error
}

type Runner struct {
	store  types.Store
	engine *engine.Engine
}

func NewRunner(store types.Store, eng *engine.Engine) *Runner {
	return &Runner{store: store, engine: eng}
}

// HandleEvent runs the per-event state machine:
// received -> matched -> deduplicated -> directed -> completed/failed.
// Failures are reported, never retried: the dedup entry already exists
// and a retry could double side effects.
func (r *Runner) HandleEvent(ctx context.Context, ev types.Event) *Report {
	report := &Report{EventID: ev.ExternalID}

	user, err := r.store.UserByEmail(ctx, ev.Address)
	if errors.Is(err, types.ErrNotFound) {
		report.State = StateIgnoredNoUser
		return report
	}
	if err != nil {
		report.State = StateFailed
		report.Err = fmt.Errorf("resolving user: %w", err)
		xlog.Error("User lookup failed", "address", ev.Address, "event", ev.ExternalID, "error", err)
		return report
	}
	report.UserID = user.ID

	instructions, err := r.store.ActiveInstructions(ctx, user.ID, ev.Type)
	if err != nil {
		report.State = StateFailed
		report.Err = fmt.Errorf("loading instructions: %w", err)
		xlog.Error("Instruction lookup failed", "user", user.ID, "event", ev.ExternalID, "error", err)
		return report
	}
	if len(instructions) == 0 {
		report.State = StateIgnoredNoMatch
		return report
	}
	for _, instr := range instructions {
		report.InstructionIDs = append(report.InstructionIDs, instr.ID)
	}

	// The ledger insert is the sole concurrency control: whoever gets
	// the row acts, every other delivery of this event no-ops.
	if err := r.store.CreateProcessedEvent(ctx, user.ID, ev.ExternalID); err != nil {
		if errors.Is(err, types.ErrDuplicate) {
			report.State = StateDuplicate
			return report
		}
		report.State = StateFailed
		report.Err = fmt.Errorf("ledger insert: %w", err)
		xlog.Error("Ledger insert failed", "user", user.ID, "event", ev.ExternalID, "error", err)
		return report
	}

	conv := &models.Conversation{
		UserID: user.ID,
		Title:  fmt.Sprintf("Automation: %s %s", ev.Type, ev.ExternalID),
		Origin: models.ConversationOriginProactive,
	}
	if err := r.store.CreateConversation(ctx, conv); err != nil {
		report.State = StateFailed
		report.Err = fmt.Errorf("creating conversation: %w", err)
		xlog.Error("Proactive conversation creation failed", "user", user.ID, "event", ev.ExternalID, "error", err)
		return report
	}
	report.ConversationID = conv.ID

	directive := SynthesizeDirective(ev, instructions)
	reply, err := r.engine.RunDirective(ctx, user, conv, directive, ev.Type)
	if err != nil {
		report.State = StateFailed
		report.Err = err
		xlog.Error("Proactive run failed",
			"user", user.ID, "event", ev.ExternalID,
			"instructions", report.InstructionIDs, "error", err)
		return report
	}

	report.State = StateCompleted
	report.Reply = reply
	xlog.Info("Proactive run completed",
		"user", user.ID, "event", ev.ExternalID, "conversation", conv.ID,
		"degraded", reply.Degraded)
	return report
}

// SynthesizeDirective renders the event's salient fields and the
// matched instruction text into a single directive string.
func SynthesizeDirective(ev types.Event, instructions []models.AgentInstruction) string {
	var b strings.Builder

	fmt.Fprintf(&b, "An external event of type %q occurred.\n", ev.Type)

	keys := make([]string, 0, len(ev.Payload))
	for k := range ev.Payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "%s: %s\n", k, ev.Payload[k])
	}

	b.WriteString("\nFollow these standing instructions:\n")
	for _, instr := range instructions {
		fmt.Fprintf(&b, "- %s\n", instr.Directive)
	}

	return b.String()
}
