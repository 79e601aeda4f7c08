package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
)

// AgentTask is a unit of deferred work created when a tool call implies a
// follow-up. Status transitions are monotonic: a completed or failed task
// is never resurrected.
type AgentTask struct {
	ID             uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	UserID         uuid.UUID  `gorm:"type:uuid;index;not null" json:"userId"`
	ConversationID *uuid.UUID `gorm:"type:uuid;index" json:"conversationId,omitempty"`
	Description    string     `gorm:"type:text;not null" json:"description"`
	Status         TaskStatus `gorm:"type:varchar(32);index;not null;default:pending" json:"status"`
	NotBefore      time.Time  `gorm:"index" json:"notBefore"`
	Result         string     `gorm:"type:text" json:"result,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

func (t *AgentTask) BeforeCreate(tx *gorm.DB) (err error) {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return
}

// CanTransition enforces the monotonic task lifecycle.
func (t *AgentTask) CanTransition(next TaskStatus) bool {
	switch t.Status {
	case TaskPending:
		return next == TaskRunning || next == TaskFailed
	case TaskRunning:
		return next == TaskCompleted || next == TaskFailed
	default:
		return false
	}
}

// Transition moves the task to the next status, rejecting resurrection.
func (t *AgentTask) Transition(next TaskStatus) error {
	if !t.CanTransition(next) {
		return fmt.Errorf("invalid task transition %s -> %s", t.Status, next)
	}
	t.Status = next
	return nil
}
