// Package assembler builds the prompt context for a gateway call:
// recent turns, semantically retrieved memory, matching standing
// instructions, and static user facts. Assembly has no side effects and
// is deterministic given its inputs and the injected clock.
package assembler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/herald-ai/herald/core/memory"
	"github.com/herald-ai/herald/core/types"
	models "github.com/herald-ai/herald/dbmodels"
)

// ModeInteractive selects the interactive context; any TriggerType value
// selects the proactive context for that event type.
const ModeInteractive = models.TriggerType("")

type Assembler struct {
	store  types.Store
	memory *memory.Store
	turns  int
	topK   int
	now    func() time.Time
}

type Option func(*Assembler)

func WithTurns(n int) Option {
	return func(a *Assembler) { a.turns = n }
}

func WithTopK(k int) Option {
	return func(a *Assembler) { a.topK = k }
}

func WithClock(now func() time.Time) Option {
	return func(a *Assembler) { a.now = now }
}

func New(store types.Store, mem *memory.Store, opts ...Option) *Assembler {
	a := &Assembler{
		store:  store,
		memory: mem,
		turns:  10,
		topK:   5,
		now:    time.Now,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Context is the assembled prompt context.
type Context struct {
	User         *models.User
	Turns        []models.Message
	MemoryHits   []memory.Hit
	Instructions []models.AgentInstruction
	Input        string
	Timestamp    time.Time
}

// Assemble gathers the context for the given input. Mode distinguishes
// interactive requests from proactive runs for a specific event type.
func (a *Assembler) Assemble(ctx context.Context, user *models.User, conv *models.Conversation, input string, mode models.TriggerType) (*Context, error) {
	if user == nil {
		return nil, fmt.Errorf("no user")
	}

	out := &Context{
		User:      user,
		Input:     input,
		Timestamp: a.now(),
	}

	if conv != nil {
		turns, err := a.store.LastMessages(ctx, conv.ID, a.turns)
		if err != nil {
			return nil, fmt.Errorf("loading conversation turns: %w", err)
		}
		out.Turns = turns
	}

	if a.memory != nil {
		out.MemoryHits = a.memory.Search(ctx, user.ID, input, a.topK)
	}

	if mode != ModeInteractive {
		instructions, err := a.store.ActiveInstructions(ctx, user.ID, mode)
		if err != nil {
			return nil, fmt.Errorf("loading instructions: %w", err)
		}
		out.Instructions = instructions
	}

	return out, nil
}

// ToMessages renders the context as a chat transcript: one system
// message with facts, memory, and instructions, then the conversation
// turns in chronological order. The current input is expected to be
// the last persisted turn; Input itself only drives memory retrieval.
func (c *Context) ToMessages() []openai.ChatCompletionMessage {
	messages := []openai.ChatCompletionMessage{
		{
			Role:    models.RoleSystem,
			Content: c.systemPrompt(),
		},
	}

	for _, turn := range c.Turns {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    turn.Role,
			Content: turn.Content,
		})
	}

	return messages
}

func (c *Context) systemPrompt() string {
	var b strings.Builder

	b.WriteString("You are a personal assistant that can act on the user's connected services by calling tools.\n")
	fmt.Fprintf(&b, "User: %s\n", c.User.Name)
	fmt.Fprintf(&b, "Current time: %s\n", c.Timestamp.Format(time.RFC3339))

	providers := c.User.ConnectedProviders()
	if len(providers) == 0 {
		b.WriteString("Connected services: none. Do not attempt tool calls; reply in plain text.\n")
	} else {
		names := make([]string, 0, len(providers))
		for _, p := range providers {
			names = append(names, string(p))
		}
		fmt.Fprintf(&b, "Connected services: %s\n", strings.Join(names, ", "))
	}

	if len(c.MemoryHits) > 0 {
		b.WriteString("\nRelevant things you remember:\n")
		for _, hit := range c.MemoryHits {
			fmt.Fprintf(&b, "- [%s] %s\n", hit.Source, hit.Content)
		}
	}

	if len(c.Instructions) > 0 {
		b.WriteString("\nStanding instructions from the user for this kind of event:\n")
		for _, instr := range c.Instructions {
			fmt.Fprintf(&b, "- %s\n", instr.Directive)
		}
	}

	return b.String()
}
