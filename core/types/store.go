package types

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	models "github.com/herald-ai/herald/dbmodels"
)

var (
	// ErrDuplicate signals a unique-constraint conflict. For the
	// idempotency ledger it means the event was already processed.
	ErrDuplicate = errors.New("duplicate entry")
	ErrNotFound  = errors.New("not found")
)

// Store is the narrow persistence contract the engine depends on. The
// gorm-backed implementation lives in db; tests and credential-less local
// runs use the in-memory one.
type Store interface {
	CreateUser(ctx context.Context, user *models.User) error
	// UserByID returns the user with connections preloaded.
	UserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	// UserByEmail resolves a user from an event's addressing field.
	UserByEmail(ctx context.Context, email string) (*models.User, error)

	CreateConnection(ctx context.Context, conn *models.Connection) error
	ConnectionFor(ctx context.Context, userID uuid.UUID, provider models.Provider) (*models.Connection, error)
	UpdateConnection(ctx context.Context, conn *models.Connection) error

	CreateConversation(ctx context.Context, conv *models.Conversation) error
	ConversationByID(ctx context.Context, id uuid.UUID) (*models.Conversation, error)
	AppendMessage(ctx context.Context, msg *models.Message) error
	// LastMessages returns up to n most recent messages in
	// chronological order.
	LastMessages(ctx context.Context, conversationID uuid.UUID, n int) ([]models.Message, error)

	CreateInstruction(ctx context.Context, instr *models.AgentInstruction) error
	// ActiveInstructions lists the user's active standing instructions
	// for the given trigger type.
	ActiveInstructions(ctx context.Context, userID uuid.UUID, trigger models.TriggerType) ([]models.AgentInstruction, error)

	// CreateProcessedEvent inserts an idempotency ledger entry and
	// returns ErrDuplicate when the (user, external id) pair exists.
	CreateProcessedEvent(ctx context.Context, userID uuid.UUID, externalID string) error

	CreateTask(ctx context.Context, task *models.AgentTask) error
	// DueTasks lists pending tasks whose NotBefore is at or past now.
	DueTasks(ctx context.Context, now time.Time) ([]models.AgentTask, error)
	// TransitionTask applies a monotonic status change, persisting the
	// result text alongside terminal states.
	TransitionTask(ctx context.Context, id uuid.UUID, next models.TaskStatus, result string) error

	CreateEmbedding(ctx context.Context, row *models.VectorEmbedding) error
}
