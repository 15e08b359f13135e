// Package store persists ledger state in Postgres through gorm.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"ssh-v2ray-bot/internal/ledger"
	"ssh-v2ray-bot/internal/models"
)

// Accounts is the Postgres ledger.Store. Update locks the account row with
// SELECT ... FOR UPDATE, so concurrent mutations of one user queue up.
type Accounts struct {
	db *gorm.DB
}

func NewAccounts(db *gorm.DB) *Accounts {
	return &Accounts{db: db}
}

var (
	_ ledger.Store   = (*Accounts)(nil)
	_ ledger.Journal = (*Accounts)(nil)
)

func (s *Accounts) Get(ctx context.Context, userID int64) (*ledger.Account, error) {
	db := s.db.WithContext(ctx)
	var row models.Account
	if err := db.First(&row, "user_id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ledger.ErrAccountNotFound
		}
		return nil, fmt.Errorf("get account %d: %w", userID, err)
	}
	referred, err := referredIDs(db, userID)
	if err != nil {
		return nil, fmt.Errorf("get referrals of %d: %w", userID, err)
	}
	return toLedger(&row, referred), nil
}

func (s *Accounts) Create(ctx context.Context, acc *ledger.Account) error {
	row := models.Account{
		UserID:              acc.UserID,
		Balance:             acc.Balance,
		ReferrerID:          acc.ReferrerID,
		ChannelBonusClaimed: acc.ChannelBonusClaimed,
		FreeTierClaimed:     acc.FreeTierClaimed,
		TotalGenerations:    acc.TotalGenerations,
		CreatedAt:           acc.CreatedAt,
		LastActiveAt:        acc.LastActiveAt,
	}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
	if res.Error != nil {
		return fmt.Errorf("insert account %d: %w", acc.UserID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ledger.ErrAlreadyExists
	}
	return nil
}

func (s *Accounts) Update(ctx context.Context, userID int64, fn func(acc *ledger.Account) error) (*ledger.Account, error) {
	var result *ledger.Account
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row models.Account
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&row, "user_id = ?", userID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ledger.ErrAccountNotFound
			}
			return err
		}
		referred, err := referredIDs(tx, userID)
		if err != nil {
			return err
		}

		acc := toLedger(&row, referred)
		if err := fn(acc); err != nil {
			return err
		}
		if len(acc.ReferredIDs) < len(referred) {
			return fmt.Errorf("referred ids of %d shrank", userID)
		}

		// referrer_id is written once on insert and never here.
		if err := tx.Model(&models.Account{}).Where("user_id = ?", userID).Updates(map[string]interface{}{
			"balance":               acc.Balance,
			"channel_bonus_claimed": acc.ChannelBonusClaimed,
			"free_tier_claimed":     acc.FreeTierClaimed,
			"total_generations":     acc.TotalGenerations,
			"last_active_at":        acc.LastActiveAt,
		}).Error; err != nil {
			return err
		}

		for _, id := range acc.ReferredIDs[len(referred):] {
			if err := tx.Create(&models.Referral{ReferrerID: userID, ReferredID: id}).Error; err != nil {
				if errors.Is(err, gorm.ErrDuplicatedKey) {
					return ledger.ErrAlreadyReferred
				}
				return err
			}
		}

		result = acc
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Record writes a journal row for a committed balance movement.
func (s *Accounts) Record(ctx context.Context, e ledger.Entry) error {
	return s.db.WithContext(ctx).Create(&models.LedgerEntry{
		ID:           uuid.New(),
		UserID:       e.UserID,
		Delta:        e.Delta,
		Reason:       e.Reason,
		BalanceAfter: e.BalanceAfter,
	}).Error
}

type Stats struct {
	TotalUsers       int64
	ActiveUsers      int64
	TotalGenerations int64
	SSHConfigs       int64
	V2RayConfigs     int64
	Referrals        int64
}

// SuccessRate is issued configs per registered user, in percent.
func (st Stats) SuccessRate() float64 {
	if st.TotalUsers == 0 {
		return 0
	}
	return float64(st.SSHConfigs+st.V2RayConfigs) / float64(st.TotalUsers) * 100
}

// Stats summarises all accounts; users seen at or after activeSince count as active.
func (s *Accounts) Stats(ctx context.Context, activeSince time.Time) (Stats, error) {
	var st Stats
	db := s.db.WithContext(ctx)
	if err := db.Model(&models.Account{}).Count(&st.TotalUsers).Error; err != nil {
		return st, fmt.Errorf("count accounts: %w", err)
	}
	if err := db.Model(&models.Account{}).Where("last_active_at >= ?", activeSince).Count(&st.ActiveUsers).Error; err != nil {
		return st, fmt.Errorf("count active accounts: %w", err)
	}
	if err := db.Model(&models.Account{}).Select("COALESCE(SUM(total_generations), 0)").Scan(&st.TotalGenerations).Error; err != nil {
		return st, fmt.Errorf("sum generations: %w", err)
	}
	if err := db.Model(&models.Referral{}).Count(&st.Referrals).Error; err != nil {
		return st, fmt.Errorf("count referrals: %w", err)
	}

	var perKind []struct {
		Kind  string
		Total int64
	}
	err := db.Model(&models.GenerationRecord{}).
		Select("kind, COUNT(*) AS total").
		Where("status = ?", models.GenerationIssued).
		Group("kind").
		Scan(&perKind).Error
	if err != nil {
		return st, fmt.Errorf("count issued configs: %w", err)
	}
	for _, k := range perKind {
		if k.Kind == "ssh" {
			st.SSHConfigs += k.Total
		} else {
			st.V2RayConfigs += k.Total
		}
	}
	return st, nil
}

func referredIDs(db *gorm.DB, referrerID int64) ([]int64, error) {
	var ids []int64
	err := db.Model(&models.Referral{}).
		Where("referrer_id = ?", referrerID).
		Order("id").
		Pluck("referred_id", &ids).Error
	return ids, err
}

func toLedger(row *models.Account, referred []int64) *ledger.Account {
	return &ledger.Account{
		UserID:              row.UserID,
		Balance:             row.Balance,
		ReferrerID:          row.ReferrerID,
		ReferredIDs:         referred,
		ChannelBonusClaimed: row.ChannelBonusClaimed,
		FreeTierClaimed:     row.FreeTierClaimed,
		TotalGenerations:    row.TotalGenerations,
		CreatedAt:           row.CreatedAt,
		LastActiveAt:        row.LastActiveAt,
	}
}
