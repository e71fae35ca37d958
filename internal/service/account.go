package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/odiadev/tts-gateway/internal/auth"
	"github.com/odiadev/tts-gateway/internal/config"
	"github.com/odiadev/tts-gateway/internal/models"
	"github.com/odiadev/tts-gateway/internal/repository"
)

var ErrEmailTaken = errors.New("email already registered")

// Issues and administers caller accounts. The plaintext credential exists
// only in the Create/Rotate return value - it is shown once and never
// stored.
type AccountService struct {
	repo          *repository.AccountRepository
	authenticator *auth.Authenticator
	cfg           *config.Config
}

func NewAccountService(repo *repository.AccountRepository, authenticator *auth.Authenticator, cfg *config.Config) *AccountService {
	return &AccountService{
		repo:          repo,
		authenticator: authenticator,
		cfg:           cfg,
	}
}

// Create provisions an account on the given plan and returns the one-time
// plaintext credential alongside it.
func (s *AccountService) Create(ctx context.Context, name, email, plan string) (*models.Account, string, error) {
	if !models.ValidPlan(plan) {
		return nil, "", fmt.Errorf("unknown plan %q", plan)
	}

	existing, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return nil, "", err
	}
	if existing != nil {
		return nil, "", ErrEmailTaken
	}

	plaintext, err := auth.GenerateCredential()
	if err != nil {
		return nil, "", err
	}

	planCfg := s.cfg.PlanFor(plan)
	account := &models.Account{
		Name:             name,
		Email:            email,
		CredentialDigest: auth.Digest(plaintext),
		Plan:             plan,
		QuotaSeconds:     planCfg.QuotaSeconds,
		UsedSeconds:      0,
		IsActive:         true,
	}

	if err := s.repo.Create(ctx, account); err != nil {
		return nil, "", fmt.Errorf("failed to create account: %w", err)
	}

	return account, plaintext, nil
}

func (s *AccountService) Get(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	return s.repo.FindByID(ctx, id)
}

func (s *AccountService) List(ctx context.Context) ([]models.Account, error) {
	return s.repo.List(ctx)
}

// Rotate issues a fresh credential and keeps the previous digest accepted
// for a grace window, so callers can swap keys without an outage.
func (s *AccountService) Rotate(ctx context.Context, id uuid.UUID) (string, error) {
	account, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return "", err
	}
	if account == nil {
		return "", errors.New("account not found")
	}

	plaintext, err := auth.GenerateCredential()
	if err != nil {
		return "", err
	}

	grace := time.Duration(s.cfg.Auth.RotationGraceHours) * time.Hour
	deadline := time.Now().Add(grace)

	updates := map[string]interface{}{
		"deprecated_digest": account.CredentialDigest,
		"deprecated_until":  deadline,
		"credential_digest": auth.Digest(plaintext),
	}

	if err := s.repo.Update(ctx, id, updates); err != nil {
		return "", fmt.Errorf("failed to rotate credential: %w", err)
	}

	s.authenticator.InvalidateCache(ctx, account.CredentialDigest)
	s.authenticator.InvalidateCache(ctx, account.DeprecatedDigest)

	return plaintext, nil
}

// UpdateQuota is the admin override for quota ceiling or consumed
// seconds.
func (s *AccountService) UpdateQuota(ctx context.Context, id uuid.UUID, quotaSeconds, usedSeconds *float64) (*models.Account, error) {
	account, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, errors.New("account not found")
	}

	updates := make(map[string]interface{})
	if quotaSeconds != nil {
		if *quotaSeconds < 0 {
			return nil, errors.New("quota_seconds must be non-negative")
		}
		updates["quota_seconds"] = *quotaSeconds
	}
	if usedSeconds != nil {
		if *usedSeconds < 0 {
			return nil, errors.New("used_seconds must be non-negative")
		}
		updates["used_seconds"] = *usedSeconds
	}

	if len(updates) > 0 {
		if err := s.repo.Update(ctx, id, updates); err != nil {
			return nil, err
		}
		s.authenticator.InvalidateCache(ctx, account.CredentialDigest)
	}

	return s.repo.FindByID(ctx, id)
}

// Deactivate flips the active flag. Accounts are never physically
// deleted.
func (s *AccountService) Deactivate(ctx context.Context, id uuid.UUID) error {
	account, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if account == nil {
		return errors.New("account not found")
	}

	if err := s.repo.Update(ctx, id, map[string]interface{}{"is_active": false}); err != nil {
		return err
	}

	s.authenticator.InvalidateCache(ctx, account.CredentialDigest)
	return nil
}
