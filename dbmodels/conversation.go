package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	ConversationOriginInteractive = "interactive"
	ConversationOriginProactive   = "proactive"
)

type Conversation struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID    uuid.UUID `gorm:"type:uuid;index;not null" json:"userId"`
	Title     string    `gorm:"type:varchar(255)" json:"title"`
	Origin    string    `gorm:"type:varchar(32);not null;default:interactive" json:"origin"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (c *Conversation) BeforeCreate(tx *gorm.DB) (err error) {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
	RoleTool      = "tool"
)

// Message is a single turn in a conversation. Messages are append-only:
// nothing in the engine updates or deletes a row once written.
type Message struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ConversationID uuid.UUID `gorm:"type:uuid;index;not null" json:"conversationId"`
	Role           string    `gorm:"type:varchar(32);not null" json:"role"`
	Content        string    `gorm:"type:text;not null" json:"content"`
	ToolCallName   string    `gorm:"type:varchar(255)" json:"toolCallName,omitempty"`
	ToolCallArgs   string    `gorm:"type:text" json:"toolCallArgs,omitempty"`
	CreatedAt      time.Time `gorm:"index" json:"createdAt"`
}

func (m *Message) BeforeCreate(tx *gorm.DB) (err error) {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return
}
