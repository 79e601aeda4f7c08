package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MemorySource tags where a piece of semantic memory came from.
type MemorySource string

const (
	SourceMailboxItem MemorySource = "mailbox-item"
	SourceCRMContact  MemorySource = "crm-contact"
	SourceCRMNote     MemorySource = "crm-note"
	SourceInteraction MemorySource = "interaction"
)

// VectorEmbedding is a persisted semantic memory row. Rows are never
// mutated, only superseded by new ones.
type VectorEmbedding struct {
	ID        uuid.UUID    `gorm:"type:uuid;primaryKey" json:"id"`
	UserID    uuid.UUID    `gorm:"type:uuid;index;not null" json:"userId"`
	Content   string       `gorm:"type:text;not null" json:"content"`
	Source    MemorySource `gorm:"type:varchar(64);index;not null" json:"source"`
	Metadata  string       `gorm:"type:text" json:"metadata,omitempty"`
	Vector    []byte       `gorm:"type:bytea" json:"-"`
	CreatedAt time.Time    `json:"createdAt"`
}

func (v *VectorEmbedding) BeforeCreate(tx *gorm.DB) (err error) {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	return
}

// SetVector serializes the embedding vector for storage.
func (v *VectorEmbedding) SetVector(vec []float32) error {
	b, err := json.Marshal(vec)
	if err != nil {
		return err
	}
	v.Vector = b
	return nil
}

// GetVector deserializes the stored embedding vector.
func (v *VectorEmbedding) GetVector() ([]float32, error) {
	var vec []float32
	if err := json.Unmarshal(v.Vector, &vec); err != nil {
		return nil, err
	}
	return vec, nil
}
