package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"time"

	"golang.org/x/crypto/pbkdf2"
)

const (
	credentialVersion = "v1"
	credentialBytes   = 64 // 512 bits of entropy

	minCredentialLength = 50
	maxCredentialLength = 200

	timestampLayout = "20060102150405"

	// OWASP recommendation for PBKDF2-SHA256
	pbkdf2Iterations = 100_000
	pbkdf2KeyLength  = 32
	saltBytes        = 16
)

var (
	tokenPattern     = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
	timestampPattern = regexp.MustCompile(`^\d{14}$`)
)

// Produces an opaque bearer credential of the form
// v1_<timestamp>_<random token>. The embedded issuance timestamp allows
// offline expiry checks without a store lookup.
func GenerateCredential() (string, error) {
	raw := make([]byte, credentialBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("failed to generate random credential: %w", err)
	}

	timestamp := time.Now().UTC().Format(timestampLayout)
	token := base64.RawURLEncoding.EncodeToString(raw)

	return credentialVersion + "_" + timestamp + "_" + token, nil
}

// One-way digest of a plaintext credential. SHA-256 is sufficient here
// because the credential itself carries high entropy.
func Digest(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}

// Recomputes the digest and compares in constant time.
func Verify(plaintext, digest string) bool {
	computed := Digest(plaintext)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(digest)) == 1
}

// Cheap format pre-check before any store lookup. Legacy un-versioned
// credentials remain accepted during the migration window.
func ValidateFormat(plaintext string) (bool, string) {
	if plaintext == "" {
		return false, "credential is empty"
	}
	if len(plaintext) < minCredentialLength {
		return false, "credential too short"
	}
	if len(plaintext) > maxCredentialLength {
		return false, "credential too long"
	}

	if !strings.HasPrefix(plaintext, credentialVersion+"_") {
		if !tokenPattern.MatchString(plaintext) {
			return false, "credential contains invalid characters"
		}
		return true, ""
	}

	parts := strings.SplitN(plaintext, "_", 3)
	if len(parts) != 3 {
		return false, "invalid credential format"
	}

	if !timestampPattern.MatchString(parts[1]) {
		return false, "invalid timestamp format"
	}
	if !tokenPattern.MatchString(parts[2]) {
		return false, "invalid token format"
	}

	return true, ""
}

// Reports whether a versioned credential is older than maxAgeDays.
// Legacy credentials carry no timestamp and never expire.
func IsExpired(plaintext string, maxAgeDays int) bool {
	if !strings.HasPrefix(plaintext, credentialVersion+"_") {
		return false
	}

	parts := strings.SplitN(plaintext, "_", 3)
	if len(parts) != 3 {
		return false
	}

	issued, err := time.Parse(timestampLayout, parts[1])
	if err != nil {
		return false
	}

	age := time.Since(issued)
	return age > time.Duration(maxAgeDays)*24*time.Hour
}

func GenerateSalt() (string, error) {
	salt := make([]byte, saltBytes)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}
	return hex.EncodeToString(salt), nil
}

// Derives a salted hash in "salt:hash" form using PBKDF2-SHA256.
func HashWithSalt(plaintext, salt string) (string, error) {
	saltRaw, err := hex.DecodeString(salt)
	if err != nil {
		return "", fmt.Errorf("invalid salt: %w", err)
	}

	derived := pbkdf2.Key([]byte(plaintext), saltRaw, pbkdf2Iterations, pbkdf2KeyLength, sha256.New)
	return salt + ":" + hex.EncodeToString(derived), nil
}

// Verifies a plaintext against a stored "salt:hash" value in constant time.
func VerifyWithSalt(plaintext, stored string) bool {
	salt, expected, ok := strings.Cut(stored, ":")
	if !ok {
		return false
	}

	computed, err := HashWithSalt(plaintext, salt)
	if err != nil {
		return false
	}
	_, computedHash, _ := strings.Cut(computed, ":")

	return subtle.ConstantTimeCompare([]byte(computedHash), []byte(expected)) == 1
}
