// Package engine wires the pipeline: Context Assembler, Provider
// Gateway, then Action Dispatcher. Interactive messages and proactive
// directives both flow through the same path, one gateway call in
// flight per conversation.
package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/mudler/xlog"

	"github.com/herald-ai/herald/core/assembler"
	"github.com/herald-ai/herald/core/conversations"
	"github.com/herald-ai/herald/core/dispatch"
	"github.com/herald-ai/herald/core/gateway"
	"github.com/herald-ai/herald/core/registry"
	"github.com/herald-ai/herald/core/types"
	models "github.com/herald-ai/herald/dbmodels"
)

const noProviderReply = "I'm sorry, I couldn't reach any of my language-model providers. Your message is saved; please try again shortly."

type Engine struct {
	store      types.Store
	registry   *registry.Registry
	assembler  *assembler.Assembler
	gateway    *gateway.Gateway
	dispatcher *dispatch.Dispatcher
	guard      *conversations.Guard
	maxRounds  int
}

type Option func(*Engine)

// WithMaxRounds bounds how many successful tool calls the model may
// chain within one invocation.
func WithMaxRounds(n int) Option {
	return func(e *Engine) { e.maxRounds = n }
}

func New(store types.Store, reg *registry.Registry, asm *assembler.Assembler, gw *gateway.Gateway, disp *dispatch.Dispatcher, guard *conversations.Guard, opts ...Option) *Engine {
	e := &Engine{
		store:      store,
		registry:   reg,
		assembler:  asm,
		gateway:    gw,
		dispatcher: disp,
		guard:      guard,
		maxRounds:  4,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Reply is the terminal result of one pipeline round. Exactly one
// assistant message with Text has been appended to the conversation.
type Reply struct {
	ConversationID uuid.UUID
	Text           string
	// Backend names the backend that answered, empty when none did.
	Backend string
	// Outcome is set when the round dispatched a tool call.
	Outcome *dispatch.Outcome
	// Degraded is set when every backend failed and the safe default
	// reply was used.
	Degraded bool
}

// HandleMessage processes one interactive user message. A nil
// conversation id starts a new interactive conversation.
func (e *Engine) HandleMessage(ctx context.Context, userID uuid.UUID, conversationID *uuid.UUID, text string) (*Reply, error) {
	user, err := e.store.UserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("resolving user: %w", err)
	}

	var conv *models.Conversation
	if conversationID != nil {
		conv, err = e.store.ConversationByID(ctx, *conversationID)
		if err != nil {
			return nil, fmt.Errorf("resolving conversation: %w", err)
		}
	} else {
		conv = &models.Conversation{
			UserID: user.ID,
			Title:  title(text),
			Origin: models.ConversationOriginInteractive,
		}
		if err := e.store.CreateConversation(ctx, conv); err != nil {
			return nil, fmt.Errorf("creating conversation: %w", err)
		}
	}

	release := e.guard.Acquire(conv.ID)
	defer release()

	return e.run(ctx, user, conv, text, assembler.ModeInteractive)
}

// RunDirective replays a synthesized directive through the pipeline in
// the given conversation, with the proactive context for the event
// type. Used by the trigger runner and the task runner.
func (e *Engine) RunDirective(ctx context.Context, user *models.User, conv *models.Conversation, directive string, mode models.TriggerType) (*Reply, error) {
	release := e.guard.Acquire(conv.ID)
	defer release()

	return e.run(ctx, user, conv, directive, mode)
}

// run persists the incoming message first so it is never lost, then
// rounds through assemble -> gateway -> dispatch. The dispatcher is
// single-turn; multi-step plans happen as the model issues another
// tool call in the next round, bounded by maxRounds. Failed dispatches
// and plain-text completions are terminal.
func (e *Engine) run(ctx context.Context, user *models.User, conv *models.Conversation, input string, mode models.TriggerType) (*Reply, error) {
	if err := e.store.AppendMessage(ctx, &models.Message{
		ConversationID: conv.ID,
		Role:           models.RoleUser,
		Content:        input,
	}); err != nil {
		return nil, fmt.Errorf("appending message: %w", err)
	}

	tools := e.registry.ToolsFor(user)

	var lastOutcome *dispatch.Outcome
	for round := 0; round < e.maxRounds; round++ {
		actx, err := e.assembler.Assemble(ctx, user, conv, input, mode)
		if err != nil {
			return nil, fmt.Errorf("assembling context: %w", err)
		}

		completion, err := e.gateway.Complete(ctx, actx.ToMessages(), tools.ToTools())
		if err != nil {
			var noProvider *gateway.ErrNoProvider
			if !errors.As(err, &noProvider) {
				return nil, err
			}
			xlog.Error("All backends unavailable", "user", user.ID, "conversation", conv.ID, "attempts", noProvider.Attempts)
			if lastOutcome != nil {
				// a dispatch already produced the visible terminal
				// message, stand on it
				return &Reply{
					ConversationID: conv.ID,
					Text:           lastOutcome.Message,
					Outcome:        lastOutcome,
					Degraded:       true,
				}, nil
			}
			if err := e.store.AppendMessage(ctx, &models.Message{
				ConversationID: conv.ID,
				Role:           models.RoleAssistant,
				Content:        noProviderReply,
			}); err != nil {
				xlog.Error("Failed to append fallback reply", "conversation", conv.ID, "error", err)
			}
			return &Reply{
				ConversationID: conv.ID,
				Text:           noProviderReply,
				Degraded:       true,
			}, nil
		}

		if completion.ToolCall == nil {
			if err := e.store.AppendMessage(ctx, &models.Message{
				ConversationID: conv.ID,
				Role:           models.RoleAssistant,
				Content:        completion.Text,
			}); err != nil {
				xlog.Error("Failed to append reply", "conversation", conv.ID, "error", err)
			}
			return &Reply{
				ConversationID: conv.ID,
				Text:           completion.Text,
				Backend:        completion.Backend,
				Outcome:        lastOutcome,
			}, nil
		}

		outcome := e.dispatcher.Dispatch(ctx, user, conv, *completion.ToolCall)
		lastOutcome = outcome

		// validation, credential, and capability failures are terminal,
		// never retried against the model
		if outcome.Kind != dispatch.OutcomeSuccess {
			return &Reply{
				ConversationID: conv.ID,
				Text:           outcome.Message,
				Backend:        completion.Backend,
				Outcome:        outcome,
			}, nil
		}
	}

	return &Reply{
		ConversationID: conv.ID,
		Text:           lastOutcome.Message,
		Outcome:        lastOutcome,
	}, nil
}

// title derives a conversation title from the first message, cut on a
// rune boundary.
func title(text string) string {
	const max = 64
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max])
}
