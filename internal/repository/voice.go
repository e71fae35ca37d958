package repository

import (
	"context"
	"errors"

	"github.com/odiadev/tts-gateway/internal/models"
	"github.com/odiadev/tts-gateway/internal/storage"
	"gorm.io/gorm"
)

type VoiceRepository struct {
	db *storage.Postgres
}

func NewVoiceRepository(db *storage.Postgres) *VoiceRepository {
	return &VoiceRepository{db: db}
}

func (r *VoiceRepository) Create(ctx context.Context, voice *models.Voice) error {
	return r.db.DB.WithContext(ctx).Create(voice).Error
}

func (r *VoiceRepository) FindByName(ctx context.Context, friendlyName string) (*models.Voice, error) {
	var voice models.Voice
	err := r.db.DB.WithContext(ctx).
		Where("friendly_name = ? AND is_active = ?", friendlyName, true).
		First(&voice).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}

	return &voice, err
}

// FirstActive is the default voice when a request names none.
func (r *VoiceRepository) FirstActive(ctx context.Context) (*models.Voice, error) {
	var voice models.Voice
	err := r.db.DB.WithContext(ctx).
		Where("is_active = ?", true).
		Order("id ASC").
		First(&voice).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}

	return &voice, err
}

func (r *VoiceRepository) ListActive(ctx context.Context, language, gender string) ([]models.Voice, error) {
	query := r.db.DB.WithContext(ctx).Where("is_active = ?", true)

	if language != "" {
		query = query.Where("language LIKE ?", language+"%")
	}
	if gender != "" {
		query = query.Where("gender = ?", gender)
	}

	var voices []models.Voice
	err := query.Order("friendly_name ASC").Find(&voices).Error

	return voices, err
}
