package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type User struct {
	ID          uuid.UUID    `gorm:"type:uuid;primaryKey" json:"id"`
	Email       string       `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	Name        string       `gorm:"type:varchar(255)" json:"name"`
	Connections []Connection `gorm:"foreignKey:UserID" json:"connections,omitempty"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}

func (u *User) BeforeCreate(tx *gorm.DB) (err error) {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return
}

// Connected reports whether the user holds a usable credential for the
// given provider.
func (u *User) Connected(provider Provider) bool {
	for _, c := range u.Connections {
		if c.Provider == provider && c.AccessToken != "" {
			return true
		}
	}
	return false
}

// ConnectedProviders lists the providers the user holds credentials for.
func (u *User) ConnectedProviders() []Provider {
	providers := []Provider{}
	for _, c := range u.Connections {
		if c.AccessToken != "" {
			providers = append(providers, c.Provider)
		}
	}
	return providers
}
