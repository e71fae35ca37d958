package repository

import (
	"context"
	"errors"

	"github.com/odiadev/tts-gateway/internal/models"
	"github.com/odiadev/tts-gateway/internal/storage"
	"gorm.io/gorm"
)

type AdminRepository struct {
	db *storage.Postgres
}

func NewAdminRepository(db *storage.Postgres) *AdminRepository {
	return &AdminRepository{db: db}
}

func (r *AdminRepository) Create(ctx context.Context, user *models.AdminUser) error {
	return r.db.DB.WithContext(ctx).Create(user).Error
}

func (r *AdminRepository) FindByEmail(ctx context.Context, email string) (*models.AdminUser, error) {
	var user models.AdminUser
	err := r.db.DB.WithContext(ctx).
		Where("email = ?", email).
		First(&user).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}

	return &user, err
}

func (r *AdminRepository) FindByID(ctx context.Context, id string) (*models.AdminUser, error) {
	var user models.AdminUser
	err := r.db.DB.WithContext(ctx).
		Where("id = ?", id).
		First(&user).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}

	return &user, err
}

func (r *AdminRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.DB.WithContext(ctx).
		Model(&models.AdminUser{}).
		Count(&count).Error

	return count, err
}
