package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"ssh-v2ray-bot/internal/models"
)

// Generations records every credential request from the moment it is paid for.
type Generations struct {
	db *gorm.DB
}

func NewGenerations(db *gorm.DB) *Generations {
	return &Generations{db: db}
}

func (s *Generations) CreatePending(ctx context.Context, userID int64, kind string, charged int64) (uuid.UUID, error) {
	rec := models.GenerationRecord{
		ID:      uuid.New(),
		UserID:  userID,
		Kind:    kind,
		Status:  models.GenerationPending,
		Charged: charged,
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return uuid.Nil, fmt.Errorf("create generation record: %w", err)
	}
	return rec.ID, nil
}

func (s *Generations) MarkIssued(ctx context.Context, id uuid.UUID, config string) error {
	res := s.db.WithContext(ctx).Model(&models.GenerationRecord{}).
		Where("id = ? AND status = ?", id, models.GenerationPending).
		Updates(map[string]interface{}{"status": models.GenerationIssued, "config": config})
	if res.Error != nil {
		return fmt.Errorf("mark generation %s issued: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("generation %s is no longer pending", id)
	}
	return nil
}

// MarkRefunded moves a pending record to refunded. It reports false when the
// record had already left pending, so each charge is refunded at most once.
func (s *Generations) MarkRefunded(ctx context.Context, id uuid.UUID) (bool, error) {
	res := s.db.WithContext(ctx).Model(&models.GenerationRecord{}).
		Where("id = ? AND status = ?", id, models.GenerationPending).
		Update("status", models.GenerationRefunded)
	if res.Error != nil {
		return false, fmt.Errorf("mark generation %s refunded: %w", id, res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (s *Generations) StalePending(ctx context.Context, before time.Time, limit int) ([]models.GenerationRecord, error) {
	var recs []models.GenerationRecord
	err := s.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", models.GenerationPending, before).
		Order("created_at").
		Limit(limit).
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("query stale generations: %w", err)
	}
	return recs, nil
}

// History returns the user's most recent issued credentials, newest first.
func (s *Generations) History(ctx context.Context, userID int64, limit int) ([]models.GenerationRecord, error) {
	var recs []models.GenerationRecord
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, models.GenerationIssued).
		Order("created_at DESC").
		Limit(limit).
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("query history of %d: %w", userID, err)
	}
	return recs, nil
}
