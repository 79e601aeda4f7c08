package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/herald-ai/herald/core/types"
	models "github.com/herald-ai/herald/dbmodels"
)

// GormStore implements types.Store on a gorm database handle.
type GormStore struct {
	db *gorm.DB
}

var _ types.Store = &GormStore{}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return types.ErrDuplicate
	case errors.Is(err, gorm.ErrRecordNotFound):
		return types.ErrNotFound
	default:
		return err
	}
}

func (s *GormStore) CreateUser(ctx context.Context, user *models.User) error {
	return translate(s.db.WithContext(ctx).Create(user).Error)
}

func (s *GormStore) UserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Preload("Connections").First(&user, "id = ?", id).Error
	if err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

func (s *GormStore) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Preload("Connections").First(&user, "email = ?", email).Error
	if err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

func (s *GormStore) CreateConnection(ctx context.Context, conn *models.Connection) error {
	return translate(s.db.WithContext(ctx).Create(conn).Error)
}

func (s *GormStore) ConnectionFor(ctx context.Context, userID uuid.UUID, provider models.Provider) (*models.Connection, error) {
	var conn models.Connection
	err := s.db.WithContext(ctx).
		First(&conn, "user_id = ? AND provider = ?", userID, provider).Error
	if err != nil {
		return nil, translate(err)
	}
	return &conn, nil
}

func (s *GormStore) UpdateConnection(ctx context.Context, conn *models.Connection) error {
	return translate(s.db.WithContext(ctx).Save(conn).Error)
}

func (s *GormStore) CreateConversation(ctx context.Context, conv *models.Conversation) error {
	return translate(s.db.WithContext(ctx).Create(conv).Error)
}

func (s *GormStore) ConversationByID(ctx context.Context, id uuid.UUID) (*models.Conversation, error) {
	var conv models.Conversation
	err := s.db.WithContext(ctx).First(&conv, "id = ?", id).Error
	if err != nil {
		return nil, translate(err)
	}
	return &conv, nil
}

func (s *GormStore) AppendMessage(ctx context.Context, msg *models.Message) error {
	return translate(s.db.WithContext(ctx).Create(msg).Error)
}

func (s *GormStore) LastMessages(ctx context.Context, conversationID uuid.UUID, n int) ([]models.Message, error) {
	var messages []models.Message
	err := s.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at DESC").
		Limit(n).
		Find(&messages).Error
	if err != nil {
		return nil, translate(err)
	}
	// reverse into chronological order
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

func (s *GormStore) CreateInstruction(ctx context.Context, instr *models.AgentInstruction) error {
	return translate(s.db.WithContext(ctx).Create(instr).Error)
}

func (s *GormStore) ActiveInstructions(ctx context.Context, userID uuid.UUID, trigger models.TriggerType) ([]models.AgentInstruction, error) {
	var instructions []models.AgentInstruction
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND trigger = ? AND active = ?", userID, trigger, true).
		Find(&instructions).Error
	if err != nil {
		return nil, translate(err)
	}
	return instructions, nil
}

func (s *GormStore) CreateProcessedEvent(ctx context.Context, userID uuid.UUID, externalID string) error {
	entry := &models.ProcessedEvent{
		UserID:     userID,
		ExternalID: externalID,
	}
	return translate(s.db.WithContext(ctx).Create(entry).Error)
}

func (s *GormStore) CreateTask(ctx context.Context, task *models.AgentTask) error {
	return translate(s.db.WithContext(ctx).Create(task).Error)
}

func (s *GormStore) DueTasks(ctx context.Context, now time.Time) ([]models.AgentTask, error) {
	var tasks []models.AgentTask
	err := s.db.WithContext(ctx).
		Where("status = ? AND not_before <= ?", models.TaskPending, now).
		Find(&tasks).Error
	if err != nil {
		return nil, translate(err)
	}
	return tasks, nil
}

func (s *GormStore) TransitionTask(ctx context.Context, id uuid.UUID, next models.TaskStatus, result string) error {
	return translate(s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var task models.AgentTask
		if err := tx.First(&task, "id = ?", id).Error; err != nil {
			return err
		}
		if err := task.Transition(next); err != nil {
			return fmt.Errorf("task %s: %w", id, err)
		}
		if result != "" {
			task.Result = result
		}
		return tx.Save(&task).Error
	}))
}

func (s *GormStore) CreateEmbedding(ctx context.Context, row *models.VectorEmbedding) error {
	return translate(s.db.WithContext(ctx).Create(row).Error)
}
