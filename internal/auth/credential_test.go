package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateCredentialFormat(t *testing.T) {
	cred, err := GenerateCredential()
	require.NoError(t, err)

	parts := strings.SplitN(cred, "_", 3)
	require.Len(t, parts, 3)
	assert.Equal(t, "v1", parts[0])
	assert.Len(t, parts[1], 14)
	assert.NotEmpty(t, parts[2])

	ok, reason := ValidateFormat(cred)
	assert.True(t, ok, reason)
}

func TestGenerateCredentialUnique(t *testing.T) {
	a, err := GenerateCredential()
	require.NoError(t, err)
	b, err := GenerateCredential()
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestDigestVerifyRoundTrip(t *testing.T) {
	cred, err := GenerateCredential()
	require.NoError(t, err)

	digest := Digest(cred)
	assert.Len(t, digest, 64)
	assert.True(t, Verify(cred, digest))
}

func TestVerifyRejectsOtherCredential(t *testing.T) {
	a, err := GenerateCredential()
	require.NoError(t, err)
	b, err := GenerateCredential()
	require.NoError(t, err)

	assert.False(t, Verify(b, Digest(a)))
	assert.False(t, Verify(a, Digest(b)))
}

func TestValidateFormat(t *testing.T) {
	tests := []struct {
		name       string
		credential string
		valid      bool
	}{
		{"empty", "", false},
		{"too short", "v1_20240101120000_abc", false},
		{"too long", "v1_20240101120000_" + strings.Repeat("a", 300), false},
		{"legacy token", strings.Repeat("a", 60), true},
		{"legacy with invalid chars", strings.Repeat("a", 55) + "!@#$%", false},
		{"bad timestamp", "v1_notanumber1234_" + strings.Repeat("a", 60), false},
		{"bad token chars", "v1_20240101120000_" + strings.Repeat("a", 55) + "+/==", false},
		{"well formed", "v1_20240101120000_" + strings.Repeat("a", 60), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, reason := ValidateFormat(tt.credential)
			assert.Equal(t, tt.valid, ok, reason)
		})
	}
}

func TestIsExpired(t *testing.T) {
	token := strings.Repeat("a", 60)

	fresh := "v1_" + time.Now().UTC().Format(timestampLayout) + "_" + token
	assert.False(t, IsExpired(fresh, 365))

	old := "v1_" + time.Now().UTC().AddDate(-2, 0, 0).Format(timestampLayout) + "_" + token
	assert.True(t, IsExpired(old, 365))

	// Legacy credentials carry no timestamp and never expire.
	assert.False(t, IsExpired(token, 1))
}

func TestHashWithSaltRoundTrip(t *testing.T) {
	salt, err := GenerateSalt()
	require.NoError(t, err)

	stored, err := HashWithSalt("some-secret-value", salt)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(stored, salt+":"))

	assert.True(t, VerifyWithSalt("some-secret-value", stored))
	assert.False(t, VerifyWithSalt("some-secret-valuf", stored))
}

func TestVerifyWithSaltRejectsMalformedStored(t *testing.T) {
	assert.False(t, VerifyWithSalt("anything", "no-separator"))
	assert.False(t, VerifyWithSalt("anything", "nothex:deadbeef"))
}
