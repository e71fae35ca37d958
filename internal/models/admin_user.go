package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Operator account for the admin API. Authenticates with email/password
// and receives a short-lived JWT.
type AdminUser struct {
	ID           uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	Email        string    `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string    `gorm:"not null" json:"-"`
	Name         string    `json:"name"`
	Role         string    `gorm:"default:'admin'" json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}

func (u *AdminUser) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

func (AdminUser) TableName() string {
	return "admin_users"
}
