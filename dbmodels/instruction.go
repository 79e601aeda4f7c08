package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TriggerType is the fixed vocabulary of external events an instruction
// can bind to. It is an explicit field set when the instruction is
// created, never inferred from the directive text.
type TriggerType string

const (
	TriggerMailboxReceived TriggerType = "mailbox-received"
	TriggerCalendarEvent   TriggerType = "calendar-event"
	TriggerCRMUpdate       TriggerType = "crm-update"
)

// AgentInstruction is a user-authored standing instruction: a free-text
// directive the engine replays when a matching external event arrives.
// The engine reads these, it never writes them.
type AgentInstruction struct {
	ID         uuid.UUID   `gorm:"type:uuid;primaryKey" json:"id"`
	UserID     uuid.UUID   `gorm:"type:uuid;index;not null" json:"userId"`
	Directive  string      `gorm:"type:text;not null" json:"directive"`
	Trigger    TriggerType `gorm:"type:varchar(64);index;not null" json:"trigger"`
	Active     bool        `gorm:"not null;default:true" json:"active"`
	Conditions string      `gorm:"type:text" json:"conditions,omitempty"`
	CreatedAt  time.Time   `json:"createdAt"`
	UpdatedAt  time.Time   `json:"updatedAt"`
}

func (i *AgentInstruction) BeforeCreate(tx *gorm.DB) (err error) {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return
}
