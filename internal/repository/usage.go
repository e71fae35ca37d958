package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/odiadev/tts-gateway/internal/models"
	"github.com/odiadev/tts-gateway/internal/storage"
)

type UsageRepository struct {
	db *storage.Postgres
}

func NewUsageRepository(db *storage.Postgres) *UsageRepository {
	return &UsageRepository{db: db}
}

// Creates the pending record before the provider call, so a crash
// mid-call still leaves an auditable failed attempt.
func (r *UsageRepository) Create(ctx context.Context, record *models.UsageRecord) error {
	return r.db.DB.WithContext(ctx).Create(record).Error
}

// Finalize writes the resolved outcome exactly once; the record is never
// mutated afterwards.
func (r *UsageRepository) Finalize(ctx context.Context, id uint, status string, audioSeconds *float64, errorDetail string) error {
	updates := map[string]interface{}{
		"status":       status,
		"error_detail": errorDetail,
	}
	if audioSeconds != nil {
		updates["audio_seconds"] = *audioSeconds
	}

	return r.db.DB.WithContext(ctx).
		Model(&models.UsageRecord{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *UsageRepository) ListByAccount(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]models.UsageRecord, error) {
	var records []models.UsageRecord
	err := r.db.DB.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("timestamp DESC").
		Limit(limit).
		Offset(offset).
		Find(&records).Error

	return records, err
}

func (r *UsageRepository) CountByStatus(ctx context.Context, status string, from, to time.Time) (int64, error) {
	var count int64
	err := r.db.DB.WithContext(ctx).
		Model(&models.UsageRecord{}).
		Where("status = ? AND timestamp BETWEEN ? AND ?", status, from, to).
		Count(&count).Error

	return count, err
}

func (r *UsageRepository) TotalAudioSeconds(ctx context.Context, from, to time.Time) (float64, error) {
	var total float64
	err := r.db.DB.WithContext(ctx).
		Model(&models.UsageRecord{}).
		Where("status = ? AND timestamp BETWEEN ? AND ?", models.UsageStatusSuccess, from, to).
		Select("COALESCE(SUM(audio_seconds), 0)").
		Scan(&total).Error

	return total, err
}

// Returns the most requested voices in the interval.
func (r *UsageRepository) TopVoices(ctx context.Context, from, to time.Time, limit int) ([]map[string]interface{}, error) {
	var results []map[string]interface{}

	rows, err := r.db.DB.WithContext(ctx).
		Model(&models.UsageRecord{}).
		Select("voice_name, COUNT(*) as count").
		Where("timestamp BETWEEN ? AND ?", from, to).
		Group("voice_name").
		Order("count DESC").
		Limit(limit).
		Rows()

	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var voiceName string
		var count int64
		if err := rows.Scan(&voiceName, &count); err != nil {
			return nil, err
		}
		results = append(results, map[string]interface{}{
			"voice_name": voiceName,
			"count":      count,
		})
	}

	return results, nil
}
