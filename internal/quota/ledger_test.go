package quota

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/odiadev/tts-gateway/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// In-memory AccountStore whose WithAccountLock serializes mutations the way
// a SELECT FOR UPDATE would.
type fakeAccountStore struct {
	mu       sync.Mutex
	accounts map[uuid.UUID]*models.Account
}

func newFakeAccountStore(accounts ...*models.Account) *fakeAccountStore {
	store := &fakeAccountStore{accounts: make(map[uuid.UUID]*models.Account)}
	for _, a := range accounts {
		store.accounts[a.ID] = a
	}
	return store
}

func (s *fakeAccountStore) FindByID(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[id]
	if !ok {
		return nil, nil
	}
	copied := *account
	return &copied, nil
}

func (s *fakeAccountStore) WithAccountLock(ctx context.Context, id uuid.UUID, fn func(*models.Account) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[id]
	if !ok {
		return ErrAccountNotFound
	}

	working := *account
	if err := fn(&working); err != nil {
		return err
	}

	*account = working
	return nil
}

func testAccount(quota, used float64) *models.Account {
	return &models.Account{
		ID:           uuid.New(),
		Name:         "tester",
		Plan:         models.PlanFree,
		QuotaSeconds: quota,
		UsedSeconds:  used,
		IsActive:     true,
	}
}

func TestCheckAndReserveAllowsWithinBalance(t *testing.T) {
	account := testAccount(600, 100)
	ledger := NewLedger(newFakeAccountStore(account))

	assert.NoError(t, ledger.CheckAndReserve(context.Background(), account.ID, 60))
}

func TestCheckAndReserveRejectsOverBalance(t *testing.T) {
	account := testAccount(600, 590)
	ledger := NewLedger(newFakeAccountStore(account))

	err := ledger.CheckAndReserve(context.Background(), account.ID, 20)
	assert.ErrorIs(t, err, ErrInsufficientQuota)
}

func TestCheckAndReserveRejectsExhausted(t *testing.T) {
	account := testAccount(600, 600)
	ledger := NewLedger(newFakeAccountStore(account))

	err := ledger.CheckAndReserve(context.Background(), account.ID, 1)
	assert.ErrorIs(t, err, ErrInsufficientQuota)
}

func TestCheckAndReserveUnknownAccount(t *testing.T) {
	ledger := NewLedger(newFakeAccountStore())

	err := ledger.CheckAndReserve(context.Background(), uuid.New(), 1)
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestCheckAndReserveInactiveAccount(t *testing.T) {
	account := testAccount(600, 0)
	account.IsActive = false
	ledger := NewLedger(newFakeAccountStore(account))

	err := ledger.CheckAndReserve(context.Background(), account.ID, 1)
	assert.ErrorIs(t, err, ErrAccountInactive)
}

func TestCommitDebitsBalance(t *testing.T) {
	account := testAccount(600, 100)
	store := newFakeAccountStore(account)
	ledger := NewLedger(store)

	require.NoError(t, ledger.Commit(context.Background(), account.ID, 42.5))

	updated, _ := store.FindByID(context.Background(), account.ID)
	assert.Equal(t, 142.5, updated.UsedSeconds)
}

func TestCommitRejectsNegativeDebit(t *testing.T) {
	account := testAccount(600, 0)
	ledger := NewLedger(newFakeAccountStore(account))

	assert.Error(t, ledger.Commit(context.Background(), account.ID, -1))
}

func TestCommitRechecksUnderLock(t *testing.T) {
	account := testAccount(600, 580)
	store := newFakeAccountStore(account)
	ledger := NewLedger(store)

	err := ledger.Commit(context.Background(), account.ID, 50)
	assert.ErrorIs(t, err, ErrInsufficientQuota)

	// A rejected commit must not move the balance.
	updated, _ := store.FindByID(context.Background(), account.ID)
	assert.Equal(t, 580.0, updated.UsedSeconds)
}

func TestCommitInactiveAccount(t *testing.T) {
	account := testAccount(600, 0)
	account.IsActive = false
	ledger := NewLedger(newFakeAccountStore(account))

	err := ledger.Commit(context.Background(), account.ID, 1)
	assert.ErrorIs(t, err, ErrAccountInactive)
}

// Two callers race for the last slice of balance. The row lock guarantees
// exactly one wins.
func TestCommitConcurrentOverdraw(t *testing.T) {
	account := testAccount(100, 40)
	store := newFakeAccountStore(account)
	ledger := NewLedger(store)

	const workers = 2
	errs := make(chan error, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- ledger.Commit(context.Background(), account.ID, 50)
		}()
	}
	wg.Wait()
	close(errs)

	var committed, rejected int
	for err := range errs {
		if err == nil {
			committed++
		} else {
			require.ErrorIs(t, err, ErrInsufficientQuota)
			rejected++
		}
	}

	assert.Equal(t, 1, committed)
	assert.Equal(t, 1, rejected)

	updated, _ := store.FindByID(context.Background(), account.ID)
	assert.Equal(t, 90.0, updated.UsedSeconds)
}
