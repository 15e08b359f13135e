package models

import (
	"time"
)

// Referral links a referred user to the account credited for them. The
// unique index on ReferredID keeps a user from being referred twice.
type Referral struct {
	ID         uint  `gorm:"primaryKey"`
	ReferrerID int64 `gorm:"not null;index"`
	ReferredID int64 `gorm:"not null;uniqueIndex"`
	CreatedAt  time.Time
}
