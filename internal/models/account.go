package models

import (
	"time"
)

type Account struct {
	UserID              int64  `gorm:"primaryKey;autoIncrement:false"`
	Balance             int64  `gorm:"not null;default:0;check:chk_accounts_balance,balance >= 0"`
	ReferrerID          *int64 `gorm:"index"`
	ChannelBonusClaimed bool   `gorm:"not null;default:false"`
	FreeTierClaimed     bool   `gorm:"not null;default:false"`
	TotalGenerations    int64  `gorm:"not null;default:0"`
	CreatedAt           time.Time
	LastActiveAt        time.Time `gorm:"index"`
}
