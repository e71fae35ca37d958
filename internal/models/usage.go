package models

import (
	"time"

	"github.com/google/uuid"
)

// Outcome of one synthesis attempt
const (
	UsageStatusSuccess       = "success"
	UsageStatusError         = "error"
	UsageStatusQuotaExceeded = "quota_exceeded"
	UsageStatusRateLimited   = "rate_limited"
)

// Append-only log entry for one synthesis attempt. Created before the
// provider call and finalized exactly once after it resolves.
type UsageRecord struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	AccountID    uuid.UUID `gorm:"type:uuid;index;not null" json:"account_id"`
	VoiceName    string    `json:"voice_name,omitempty"`
	TextLength   int       `gorm:"not null" json:"text_length"`
	AudioSeconds *float64  `json:"audio_seconds,omitempty"`
	Status       string    `gorm:"not null" json:"status"`
	ErrorDetail  string    `json:"error_detail,omitempty"`
	Model        string    `json:"model,omitempty"`
	Timestamp    time.Time `gorm:"index" json:"timestamp"`
}

func (UsageRecord) TableName() string {
	return "usage_records"
}
