package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Provider identifies an external service a user can connect.
type Provider string

const (
	ProviderMailbox  Provider = "mailbox"
	ProviderCalendar Provider = "calendar"
	ProviderCRM      Provider = "crm"
	ProviderContacts Provider = "contacts"
)

// Connection is a user's credential for a single external provider.
// At most one connection per (user, provider) pair.
type Connection struct {
	ID           uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	UserID       uuid.UUID  `gorm:"type:uuid;index;not null;uniqueIndex:idx_user_provider" json:"userId"`
	Provider     Provider   `gorm:"type:varchar(64);not null;uniqueIndex:idx_user_provider" json:"provider"`
	AccessToken  string     `gorm:"type:text" json:"-"`
	RefreshToken string     `gorm:"type:text" json:"-"`
	ExpiresAt    *time.Time `json:"expiresAt"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

func (c *Connection) BeforeCreate(tx *gorm.DB) (err error) {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return
}
