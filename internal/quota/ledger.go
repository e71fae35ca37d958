package quota

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/odiadev/tts-gateway/internal/models"
)

var (
	ErrAccountNotFound   = errors.New("account not found")
	ErrAccountInactive   = errors.New("account is inactive")
	ErrInsufficientQuota = errors.New("insufficient quota")
)

// AccountStore is the persistence port for the ledger. WithAccountLock
// must run fn while holding a row-level exclusive lock on the account and
// persist the mutated account iff fn returns nil.
type AccountStore interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Account, error)
	WithAccountLock(ctx context.Context, id uuid.UUID, fn func(*models.Account) error) error
}

// Ledger meters usage-seconds against per-account balances. The pre-flight
// check is optimistic; the commit re-verifies under the row lock, which
// closes the race where two requests both pass the pre-flight check.
type Ledger struct {
	store AccountStore
}

func NewLedger(store AccountStore) *Ledger {
	return &Ledger{store: store}
}

// CheckAndReserve rejects a request whose estimate exceeds the remaining
// balance. No seconds are debited here - this is an estimate check, not a
// reservation.
func (l *Ledger) CheckAndReserve(ctx context.Context, accountID uuid.UUID, estimatedSeconds float64) error {
	account, err := l.store.FindByID(ctx, accountID)
	if err != nil {
		return err
	}
	if account == nil {
		return ErrAccountNotFound
	}
	if !account.IsActive {
		return ErrAccountInactive
	}

	remaining := account.RemainingSeconds()
	if remaining <= 0 || estimatedSeconds > remaining {
		return ErrInsufficientQuota
	}

	return nil
}

// Commit debits actualSeconds under the account's row lock, re-checking
// active status and balance after acquiring it. A post-lock rejection
// means the provider call already succeeded: the caller logs it as a
// billing reconciliation case and keeps the generated output.
func (l *Ledger) Commit(ctx context.Context, accountID uuid.UUID, actualSeconds float64) error {
	if actualSeconds < 0 {
		return errors.New("cannot debit a negative duration")
	}

	return l.store.WithAccountLock(ctx, accountID, func(account *models.Account) error {
		if !account.IsActive {
			return ErrAccountInactive
		}
		if account.RemainingSeconds() < actualSeconds {
			return ErrInsufficientQuota
		}

		account.UsedSeconds += actualSeconds
		return nil
	})
}
