package service

import (
	"context"
	"encoding/base64"
	"errors"
	"log"
	"time"

	"github.com/odiadev/tts-gateway/internal/config"
	"github.com/odiadev/tts-gateway/internal/models"
	"github.com/odiadev/tts-gateway/internal/provider"
	"github.com/odiadev/tts-gateway/internal/quota"
)

var (
	ErrEmptyText     = errors.New("text is required")
	ErrTextTooLong   = errors.New("text exceeds maximum length")
	ErrVoiceNotFound = errors.New("voice not found")
	ErrNoVoices      = errors.New("no voices configured")
)

// Narrow ports so the orchestration sequence is testable without postgres
// or a live provider.
type Synthesizer interface {
	Synthesize(ctx context.Context, req provider.SynthesisRequest) (*provider.SynthesisResult, error)
}

type VoiceCatalog interface {
	FindByName(ctx context.Context, friendlyName string) (*models.Voice, error)
	FirstActive(ctx context.Context) (*models.Voice, error)
}

type UsageLog interface {
	Create(ctx context.Context, record *models.UsageRecord) error
	Finalize(ctx context.Context, id uint, status string, audioSeconds *float64, errorDetail string) error
}

type SynthesisInput struct {
	Text      string  `json:"text" binding:"required"`
	VoiceName string  `json:"voice_name"`
	Model     string  `json:"model"`
	Speed     float64 `json:"speed"`
	Pitch     int     `json:"pitch"`
	Emotion   string  `json:"emotion"`
}

type SynthesisOutput struct {
	AudioBase64     string  `json:"audio_base64"`
	DurationSeconds float64 `json:"duration_seconds"`
	SampleRate      int     `json:"sample_rate"`
	VoiceUsed       string  `json:"voice_used"`
	TextLength      int     `json:"text_length"`
	RemainingQuota  float64 `json:"remaining_quota"`
}

// SynthesisService drives one synthesis request end to end: text
// validation, voice lookup, quota pre-flight, usage logging, the provider
// call, and the quota debit or fallback afterwards.
type SynthesisService struct {
	gateway Synthesizer
	voices  VoiceCatalog
	usage   UsageLog
	ledger  *quota.Ledger
	cfg     config.ProviderConfig
}

func NewSynthesisService(gateway Synthesizer, voices VoiceCatalog, usage UsageLog, ledger *quota.Ledger, cfg config.ProviderConfig) *SynthesisService {
	return &SynthesisService{
		gateway: gateway,
		voices:  voices,
		usage:   usage,
		ledger:  ledger,
		cfg:     cfg,
	}
}

func (s *SynthesisService) Synthesize(ctx context.Context, account *models.Account, input SynthesisInput) (*SynthesisOutput, error) {
	if input.Text == "" {
		return nil, ErrEmptyText
	}
	if len(input.Text) > s.cfg.MaxTextLength {
		return nil, ErrTextTooLong
	}

	if input.Model == "" {
		input.Model = s.cfg.DefaultModel
	}
	if input.Speed == 0 {
		input.Speed = s.cfg.DefaultSpeed
	}
	if input.Emotion == "" {
		input.Emotion = "neutral"
	}

	voice, err := s.resolveVoice(ctx, input.VoiceName)
	if err != nil {
		return nil, err
	}

	estimated := provider.EstimateDuration(input.Text, input.Speed)

	if err := s.ledger.CheckAndReserve(ctx, account.ID, estimated); err != nil {
		if errors.Is(err, quota.ErrInsufficientQuota) {
			s.recordRejection(ctx, account, voice, input, models.UsageStatusQuotaExceeded, "estimated duration exceeds remaining quota")
		}
		return nil, err
	}

	// Pending record first, assumed failed: a crash mid-call still
	// leaves an auditable attempt.
	record := &models.UsageRecord{
		AccountID:  account.ID,
		VoiceName:  voice.FriendlyName,
		TextLength: len(input.Text),
		Status:     models.UsageStatusError,
		Model:      input.Model,
		Timestamp:  time.Now().UTC(),
	}
	if err := s.usage.Create(ctx, record); err != nil {
		log.Printf("failed to create usage record for account %s: %v", account.ID, err)
	}

	result, err := s.gateway.Synthesize(ctx, provider.SynthesisRequest{
		Text:    input.Text,
		VoiceID: voice.ProviderVoiceID,
		Model:   input.Model,
		Speed:   input.Speed,
		Pitch:   input.Pitch,
		Emotion: input.Emotion,
	})

	if err != nil {
		return s.handleFailure(ctx, account, record, input, err)
	}

	// Finalize even if the caller has disconnected by now
	s.finalize(ctx, record.ID, models.UsageStatusSuccess, &result.DurationSeconds, "")

	remaining := account.RemainingSeconds()
	if err := s.ledger.Commit(ctx, account.ID, result.DurationSeconds); err != nil {
		// The audio already exists; a post-lock rejection is an
		// accounting exception to reconcile out-of-band, not a
		// reason to discard output.
		log.Printf("quota commit failed for account %s (%.1fs, reconcile manually): %v",
			account.ID, result.DurationSeconds, err)
	} else {
		remaining = remaining - result.DurationSeconds
		if remaining < 0 {
			remaining = 0
		}
	}

	return &SynthesisOutput{
		AudioBase64:     base64.StdEncoding.EncodeToString(result.Audio),
		DurationSeconds: result.DurationSeconds,
		SampleRate:      result.SampleRate,
		VoiceUsed:       voice.FriendlyName,
		TextLength:      len(input.Text),
		RemainingQuota:  remaining,
	}, nil
}

func (s *SynthesisService) resolveVoice(ctx context.Context, name string) (*models.Voice, error) {
	if name != "" {
		voice, err := s.voices.FindByName(ctx, name)
		if err != nil {
			return nil, err
		}
		if voice == nil {
			return nil, ErrVoiceNotFound
		}
		return voice, nil
	}

	voice, err := s.voices.FirstActive(ctx)
	if err != nil {
		return nil, err
	}
	if voice == nil {
		return nil, ErrNoVoices
	}
	return voice, nil
}

func (s *SynthesisService) handleFailure(ctx context.Context, account *models.Account, record *models.UsageRecord, input SynthesisInput, err error) (*SynthesisOutput, error) {
	s.finalize(ctx, record.ID, models.UsageStatusError, nil, err.Error())

	// Validation failures are the caller's to fix; masking them with
	// silence would hide a real 400.
	if provider.IsValidation(err) {
		return nil, err
	}

	if !s.cfg.FallbackSilent {
		return nil, err
	}

	log.Printf("masking provider failure with silent audio for account %s: %v", account.ID, err)

	const fallbackSeconds = 1.0
	return &SynthesisOutput{
		AudioBase64:     base64.StdEncoding.EncodeToString(provider.SilentWAV(fallbackSeconds)),
		DurationSeconds: fallbackSeconds,
		SampleRate:      32000,
		VoiceUsed:       input.VoiceName,
		TextLength:      len(input.Text),
		RemainingQuota:  account.RemainingSeconds(),
	}, nil
}

func (s *SynthesisService) recordRejection(ctx context.Context, account *models.Account, voice *models.Voice, input SynthesisInput, status, detail string) {
	record := &models.UsageRecord{
		AccountID:   account.ID,
		VoiceName:   voice.FriendlyName,
		TextLength:  len(input.Text),
		Status:      status,
		ErrorDetail: detail,
		Model:       input.Model,
		Timestamp:   time.Now().UTC(),
	}
	if err := s.usage.Create(ctx, record); err != nil {
		log.Printf("failed to record %s attempt for account %s: %v", status, account.ID, err)
	}
}

// finalize must run even when the request context is already canceled.
func (s *SynthesisService) finalize(ctx context.Context, id uint, status string, audioSeconds *float64, errorDetail string) {
	detached, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := s.usage.Finalize(detached, id, status, audioSeconds, errorDetail); err != nil {
		log.Printf("failed to finalize usage record %d: %v", id, err)
	}
}
