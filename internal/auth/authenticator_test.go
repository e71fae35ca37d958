package auth

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/odiadev/tts-gateway/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAccountSource struct {
	accounts    []models.Account
	listCalls   int
	digestCalls int
}

func (f *fakeAccountSource) FindByDigest(ctx context.Context, digest string) (*models.Account, error) {
	f.digestCalls++
	for i := range f.accounts {
		if f.accounts[i].CredentialDigest == digest || f.accounts[i].DeprecatedDigest == digest {
			return &f.accounts[i], nil
		}
	}
	return nil, nil
}

func (f *fakeAccountSource) ListActive(ctx context.Context) ([]models.Account, error) {
	f.listCalls++
	var active []models.Account
	for _, a := range f.accounts {
		if a.IsActive {
			active = append(active, a)
		}
	}
	return active, nil
}

func newTestAuthenticator(store AccountSource, mode string) (*Authenticator, *[]time.Duration) {
	a := NewAuthenticator(store, nil, mode, 365)

	var slept []time.Duration
	a.sleep = func(d time.Duration) { slept = append(slept, d) }

	return a, &slept
}

func testCredential(t *testing.T) string {
	t.Helper()
	cred, err := GenerateCredential()
	require.NoError(t, err)
	return cred
}

func TestAuthenticateScanSuccess(t *testing.T) {
	cred := testCredential(t)
	store := &fakeAccountSource{accounts: []models.Account{
		{ID: uuid.New(), Name: "other", CredentialDigest: Digest("v1_20240101120000_" + strings.Repeat("x", 60)), IsActive: true},
		{ID: uuid.New(), Name: "caller", CredentialDigest: Digest(cred), IsActive: true},
	}}

	a, _ := newTestAuthenticator(store, ModeScan)

	account, err := a.Authenticate(context.Background(), cred)
	require.NoError(t, err)
	assert.Equal(t, "caller", account.Name)
	assert.Equal(t, 1, store.listCalls)
}

func TestAuthenticateUnknownCredential(t *testing.T) {
	store := &fakeAccountSource{accounts: []models.Account{
		{ID: uuid.New(), CredentialDigest: Digest(testCredential(t)), IsActive: true},
	}}

	a, _ := newTestAuthenticator(store, ModeScan)

	account, err := a.Authenticate(context.Background(), testCredential(t))
	assert.ErrorIs(t, err, ErrInvalidCredential)
	assert.Nil(t, account)
}

func TestAuthenticateEmptyAndMalformed(t *testing.T) {
	store := &fakeAccountSource{}
	a, _ := newTestAuthenticator(store, ModeScan)

	_, err := a.Authenticate(context.Background(), "")
	assert.ErrorIs(t, err, ErrNoCredential)

	_, err = a.Authenticate(context.Background(), "too short")
	assert.ErrorIs(t, err, ErrBadFormat)

	// Format failures never touch the store.
	assert.Equal(t, 0, store.listCalls)
	assert.Equal(t, 0, store.digestCalls)
}

func TestAuthenticateExpiredCredential(t *testing.T) {
	old := "v1_" + time.Now().UTC().AddDate(-2, 0, 0).Format(timestampLayout) + "_" + strings.Repeat("a", 60)
	store := &fakeAccountSource{accounts: []models.Account{
		{ID: uuid.New(), CredentialDigest: Digest(old), IsActive: true},
	}}

	a, _ := newTestAuthenticator(store, ModeScan)

	_, err := a.Authenticate(context.Background(), old)
	assert.ErrorIs(t, err, ErrExpiredCredential)
	assert.Equal(t, 0, store.listCalls)
}

func TestAuthenticateInactiveAccount(t *testing.T) {
	cred := testCredential(t)
	store := &fakeAccountSource{accounts: []models.Account{
		{ID: uuid.New(), CredentialDigest: Digest(cred), IsActive: false},
	}}

	a, _ := newTestAuthenticator(store, ModeScan)

	_, err := a.Authenticate(context.Background(), cred)
	assert.ErrorIs(t, err, ErrInactiveAccount)
}

func TestAuthenticatePadsToFloor(t *testing.T) {
	store := &fakeAccountSource{}
	a, slept := newTestAuthenticator(store, ModeScan)

	_, err := a.Authenticate(context.Background(), testCredential(t))
	require.Error(t, err)

	require.Len(t, *slept, 1)
	assert.GreaterOrEqual(t, (*slept)[0], time.Duration(0))
	assert.LessOrEqual(t, (*slept)[0], responseFloor+50*time.Millisecond)
}

func TestAuthenticateDeprecatedDigestGrace(t *testing.T) {
	oldCred := testCredential(t)
	newCred := testCredential(t)

	until := time.Now().Add(time.Hour)
	store := &fakeAccountSource{accounts: []models.Account{
		{
			ID:               uuid.New(),
			Name:             "rotated",
			CredentialDigest: Digest(newCred),
			DeprecatedDigest: Digest(oldCred),
			DeprecatedUntil:  &until,
			IsActive:         true,
		},
	}}

	a, _ := newTestAuthenticator(store, ModeScan)

	account, err := a.Authenticate(context.Background(), oldCred)
	require.NoError(t, err)
	assert.Equal(t, "rotated", account.Name)

	account, err = a.Authenticate(context.Background(), newCred)
	require.NoError(t, err)
	assert.Equal(t, "rotated", account.Name)
}

func TestAuthenticateDeprecatedDigestAfterGrace(t *testing.T) {
	oldCred := testCredential(t)

	expired := time.Now().Add(-time.Minute)
	store := &fakeAccountSource{accounts: []models.Account{
		{
			ID:               uuid.New(),
			CredentialDigest: Digest(testCredential(t)),
			DeprecatedDigest: Digest(oldCred),
			DeprecatedUntil:  &expired,
			IsActive:         true,
		},
	}}

	a, _ := newTestAuthenticator(store, ModeScan)

	account, err := a.Authenticate(context.Background(), oldCred)
	assert.ErrorIs(t, err, ErrInvalidCredential)
	assert.Nil(t, account)
}

func TestAuthenticateIndexedMode(t *testing.T) {
	cred := testCredential(t)
	store := &fakeAccountSource{accounts: []models.Account{
		{ID: uuid.New(), Name: "indexed", CredentialDigest: Digest(cred), IsActive: true},
	}}

	a, _ := newTestAuthenticator(store, ModeIndexed)

	account, err := a.Authenticate(context.Background(), cred)
	require.NoError(t, err)
	assert.Equal(t, "indexed", account.Name)
	assert.Equal(t, 0, store.listCalls)
	assert.Equal(t, 1, store.digestCalls)
}
