package models

import (
	"time"

	"github.com/google/uuid"
)

type LedgerEntry struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID       int64     `gorm:"not null;index"`
	Delta        int64     `gorm:"not null"`
	Reason       string    `gorm:"size:64;not null"`
	BalanceAfter int64     `gorm:"not null"`
	CreatedAt    time.Time
}
