package models

import (
	"time"
)

// Maps a friendly voice name to the provider-specific voice identifier.
type Voice struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	FriendlyName    string    `gorm:"uniqueIndex;not null;size:100" json:"friendly_name"`
	ProviderVoiceID string    `gorm:"not null" json:"-"`
	Language        string    `gorm:"not null;size:10" json:"language"`
	Gender          string    `gorm:"not null" json:"gender"`
	Description     string    `json:"description,omitempty"`
	IsCloned        bool      `gorm:"default:false" json:"is_cloned"`
	IsActive        bool      `gorm:"default:true" json:"is_active"`
	CreatedAt       time.Time `json:"created_at"`
}

func (Voice) TableName() string {
	return "voices"
}
