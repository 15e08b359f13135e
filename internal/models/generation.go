package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	GenerationPending  = "pending"
	GenerationIssued   = "issued"
	GenerationRefunded = "refunded"
)

// GenerationRecord tracks one paid credential from charge to delivery.
type GenerationRecord struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID    int64     `gorm:"not null;index"`
	Kind      string    `gorm:"size:16;not null"`
	Status    string    `gorm:"size:16;not null;index;default:'pending'"`
	Charged   int64     `gorm:"not null;default:0"`
	Config    string    `gorm:"type:text"` // credential text shown in /history
	CreatedAt time.Time
	UpdatedAt time.Time
}
