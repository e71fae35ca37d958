package auth

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"math/rand"
	"time"

	"github.com/odiadev/tts-gateway/internal/models"
)

var (
	ErrNoCredential      = errors.New("missing credential")
	ErrBadFormat         = errors.New("malformed credential")
	ErrExpiredCredential = errors.New("credential expired")
	ErrInvalidCredential = errors.New("invalid credential")
	ErrInactiveAccount   = errors.New("account is inactive")
)

// Modes for looking up the account behind a digest. Scan compares against
// every active account in constant time; indexed does a direct lookup with
// a path-independent delay. Scan trades O(active accounts) per request for
// side-channel resistance and is the default.
const (
	ModeScan    = "scan"
	ModeIndexed = "indexed"
)

// Minimum wall-clock time for any authentication outcome, so the failure
// reason is not recoverable from response timing.
const responseFloor = 100 * time.Millisecond

type AccountSource interface {
	FindByDigest(ctx context.Context, digest string) (*models.Account, error)
	ListActive(ctx context.Context) ([]models.Account, error)
}

type DigestCache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

type Authenticator struct {
	store      AccountSource
	cache      DigestCache // optional, indexed mode only
	mode       string
	maxAgeDays int
	sleep      func(time.Duration)
	now        func() time.Time
}

func NewAuthenticator(store AccountSource, cache DigestCache, mode string, maxAgeDays int) *Authenticator {
	if mode != ModeIndexed {
		mode = ModeScan
	}

	return &Authenticator{
		store:      store,
		cache:      cache,
		mode:       mode,
		maxAgeDays: maxAgeDays,
		sleep:      time.Sleep,
		now:        time.Now,
	}
}

// Resolves a bearer credential to its account. All failure paths take at
// least responseFloor of wall-clock time.
func (a *Authenticator) Authenticate(ctx context.Context, plaintext string) (*models.Account, error) {
	start := a.now()

	if plaintext == "" {
		a.padToFloor(start)
		return nil, ErrNoCredential
	}

	if ok, _ := ValidateFormat(plaintext); !ok {
		// No store access on format failures - the check is constant
		// time with respect to store size.
		a.padToFloor(start)
		return nil, ErrBadFormat
	}

	if IsExpired(plaintext, a.maxAgeDays) {
		a.padToFloor(start)
		return nil, ErrExpiredCredential
	}

	digest := Digest(plaintext)

	var account *models.Account
	var err error
	if a.mode == ModeIndexed {
		account, err = a.lookupIndexed(ctx, digest)
	} else {
		account, err = a.lookupScan(ctx, digest)
	}
	if err != nil {
		a.padToFloor(start)
		return nil, err
	}

	a.padToFloor(start)

	if account == nil {
		return nil, ErrInvalidCredential
	}
	if !account.IsActive {
		return nil, ErrInactiveAccount
	}

	return account, nil
}

// Compares the digest against every active account without short-circuiting
// on the first match.
func (a *Authenticator) lookupScan(ctx context.Context, digest string) (*models.Account, error) {
	accounts, err := a.store.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	var matched *models.Account
	for i := range accounts {
		if a.digestMatches(&accounts[i], digest) && matched == nil {
			matched = &accounts[i]
		}
	}

	if matched != nil {
		return matched, nil
	}

	// Distinguish a deactivated account (403) from an unknown credential
	// (401). Timing is already fixed by the response floor.
	account, err := a.store.FindByDigest(ctx, digest)
	if err != nil || account == nil {
		return nil, err
	}
	if !a.digestMatches(account, digest) {
		// Deprecated digest past its grace window.
		return nil, nil
	}
	return account, nil
}

func (a *Authenticator) lookupIndexed(ctx context.Context, digest string) (*models.Account, error) {
	if a.cache != nil {
		if cached, err := a.cache.Get(ctx, cacheKey(digest)); err == nil && cached != "" {
			var account models.Account
			if err := json.Unmarshal([]byte(cached), &account); err == nil && a.digestMatches(&account, digest) {
				return &account, nil
			}
		}
	}

	account, err := a.store.FindByDigest(ctx, digest)
	if err != nil {
		return nil, err
	}
	if account != nil && !a.digestMatches(account, digest) {
		return nil, nil
	}

	if account != nil && a.cache != nil {
		if encoded, err := json.Marshal(account); err == nil {
			a.cache.Set(ctx, cacheKey(digest), encoded, 5*time.Minute)
		}
	}

	return account, nil
}

// Accepts the current digest, or a deprecated one still inside its
// rotation grace window. Both comparisons always run.
func (a *Authenticator) digestMatches(account *models.Account, digest string) bool {
	current := subtle.ConstantTimeCompare([]byte(account.CredentialDigest), []byte(digest)) == 1
	deprecated := subtle.ConstantTimeCompare([]byte(account.DeprecatedDigest), []byte(digest)) == 1

	if current {
		return true
	}
	if deprecated && account.DeprecatedUntil != nil && a.now().Before(*account.DeprecatedUntil) {
		return true
	}
	return false
}

func (a *Authenticator) padToFloor(start time.Time) {
	elapsed := a.now().Sub(start)
	if elapsed < responseFloor {
		jitter := time.Duration(rand.Int63n(int64(50 * time.Millisecond)))
		a.sleep(responseFloor - elapsed + jitter)
	}
}

// InvalidateCache drops the cached account entry for a digest. Called on
// rotation, quota override and deactivation.
func (a *Authenticator) InvalidateCache(ctx context.Context, digest string) {
	if a.cache == nil || digest == "" {
		return
	}
	a.cache.Del(ctx, cacheKey(digest))
}

func cacheKey(digest string) string {
	return "auth:digest:" + digest
}
