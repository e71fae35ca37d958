package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/odiadev/tts-gateway/internal/models"
	"github.com/odiadev/tts-gateway/internal/quota"
	"github.com/odiadev/tts-gateway/internal/storage"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type AccountRepository struct {
	db *storage.Postgres
}

func NewAccountRepository(db *storage.Postgres) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) Create(ctx context.Context, account *models.Account) error {
	return r.db.DB.WithContext(ctx).Create(account).Error
}

func (r *AccountRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	var account models.Account
	err := r.db.DB.WithContext(ctx).
		Where("id = ?", id).
		First(&account).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}

	return &account, err
}

func (r *AccountRepository) FindByEmail(ctx context.Context, email string) (*models.Account, error) {
	var account models.Account
	err := r.db.DB.WithContext(ctx).
		Where("email = ?", email).
		First(&account).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}

	return &account, err
}

// FindByDigest matches the current or a still-deprecated digest,
// regardless of active status - the authenticator decides what an
// inactive match means.
func (r *AccountRepository) FindByDigest(ctx context.Context, digest string) (*models.Account, error) {
	var account models.Account
	err := r.db.DB.WithContext(ctx).
		Where("credential_digest = ? OR deprecated_digest = ?", digest, digest).
		First(&account).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}

	return &account, err
}

func (r *AccountRepository) ListActive(ctx context.Context) ([]models.Account, error) {
	var accounts []models.Account
	err := r.db.DB.WithContext(ctx).
		Where("is_active = ?", true).
		Find(&accounts).Error

	return accounts, err
}

func (r *AccountRepository) List(ctx context.Context) ([]models.Account, error) {
	var accounts []models.Account
	err := r.db.DB.WithContext(ctx).
		Order("created_at DESC").
		Find(&accounts).Error

	return accounts, err
}

func (r *AccountRepository) Update(ctx context.Context, id uuid.UUID, updates map[string]interface{}) error {
	return r.db.DB.WithContext(ctx).
		Model(&models.Account{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// WithAccountLock runs fn while holding SELECT ... FOR UPDATE on the
// account row and persists the mutation iff fn succeeds. Serializes
// concurrent debits for one account.
func (r *AccountRepository) WithAccountLock(ctx context.Context, id uuid.UUID, fn func(*models.Account) error) error {
	return r.db.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var account models.Account
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", id).
			First(&account).Error

		if errors.Is(err, gorm.ErrRecordNotFound) {
			return quota.ErrAccountNotFound
		}
		if err != nil {
			return err
		}

		if err := fn(&account); err != nil {
			return err
		}

		return tx.Save(&account).Error
	})
}
