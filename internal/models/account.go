package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Plan tiers, ordered from smallest to largest quota
const (
	PlanFree       = "free"
	PlanBasic      = "basic"
	PlanPro        = "pro"
	PlanEnterprise = "enterprise"
)

func ValidPlan(plan string) bool {
	switch plan {
	case PlanFree, PlanBasic, PlanPro, PlanEnterprise:
		return true
	}
	return false
}

// Represents a metered caller identity. The credential itself is never
// stored - only its SHA-256 digest.
type Account struct {
	ID               uuid.UUID  `gorm:"type:uuid;primary_key" json:"id"`
	Name             string     `gorm:"not null" json:"name"`
	Email            string     `gorm:"uniqueIndex;not null" json:"email"`
	CredentialDigest string     `gorm:"uniqueIndex;not null;size:64" json:"-"`
	DeprecatedDigest string     `gorm:"size:64" json:"-"`
	DeprecatedUntil  *time.Time `json:"-"`
	Plan             string     `gorm:"default:'free'" json:"plan"`
	QuotaSeconds     float64    `gorm:"not null;default:600" json:"quota_seconds"`
	UsedSeconds      float64    `gorm:"not null;default:0" json:"used_seconds"`
	IsActive         bool       `gorm:"default:true" json:"is_active"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

func (a *Account) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

func (Account) TableName() string {
	return "accounts"
}

// Remaining quota in seconds, never negative.
func (a *Account) RemainingSeconds() float64 {
	remaining := a.QuotaSeconds - a.UsedSeconds
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Percentage of quota consumed, capped at 100.
func (a *Account) QuotaPercentageUsed() float64 {
	if a.QuotaSeconds == 0 {
		return 100
	}
	pct := (a.UsedSeconds / a.QuotaSeconds) * 100
	if pct > 100 {
		return 100
	}
	return pct
}
