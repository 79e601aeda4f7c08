package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ProcessedEvent is the idempotency ledger. The unique index over
// (user, external id) is the only concurrency control the proactive path
// needs: whoever inserts first wins, everyone else no-ops.
type ProcessedEvent struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID     uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_user_event" json:"userId"`
	ExternalID string    `gorm:"type:varchar(512);not null;uniqueIndex:idx_user_event" json:"externalId"`
	CreatedAt  time.Time `json:"createdAt"`
}

func (p *ProcessedEvent) BeforeCreate(tx *gorm.DB) (err error) {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return
}
