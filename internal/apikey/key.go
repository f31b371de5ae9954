package apikey

import (
	"encoding/base64"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

const (
	// KeyPrefix is the prefix for all API keys issued by the gateway.
	KeyPrefix = "gov_"

	// KeyRegexPattern is the regular expression for validating key format.
	KeyRegexPattern = `^gov_[A-Za-z0-9_-]{22}$`
)

var (
	// KeyRegex is the compiled regular expression for key format validation.
	KeyRegex = regexp.MustCompile(KeyRegexPattern)

	// ErrInvalidKeyFormat is returned when the key format is invalid.
	ErrInvalidKeyFormat = errors.New("invalid API key format")

	// ErrKeyDecodingFailed is returned when the key cannot be decoded.
	ErrKeyDecodingFailed = errors.New("API key decoding failed")
)

// GenerateKey generates a new API key with the gateway prefix and a UUIDv7.
// The UUIDv7 includes the current timestamp, making keys time-ordered.
func GenerateKey() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("failed to generate UUID: %w", err)
	}

	uuidBytes, err := id.MarshalBinary()
	if err != nil {
		return "", fmt.Errorf("failed to marshal UUID: %w", err)
	}

	// URL-safe base64 without padding keeps the key compact and header-safe.
	encoded := base64.RawURLEncoding.EncodeToString(uuidBytes)

	return KeyPrefix + encoded, nil
}

// ValidateKeyFormat checks if the given key string follows the expected format.
// It does not check if the key exists or is usable in the store.
func ValidateKeyFormat(key string) error {
	// Fast-path structural validation: "gov_" + base64url(16 UUID bytes) => 22 chars.
	if len(key) != len(KeyPrefix)+22 {
		return ErrInvalidKeyFormat
	}
	if !strings.HasPrefix(key, KeyPrefix) {
		return ErrInvalidKeyFormat
	}

	if _, err := DecodeKey(key); err != nil {
		if errors.Is(err, ErrInvalidKeyFormat) {
			return ErrInvalidKeyFormat
		}
		return fmt.Errorf("%w: %v", ErrKeyDecodingFailed, err)
	}

	return nil
}

// DecodeKey extracts the UUID from a key string.
func DecodeKey(key string) (uuid.UUID, error) {
	if !strings.HasPrefix(key, KeyPrefix) {
		return uuid.UUID{}, ErrInvalidKeyFormat
	}

	encodedPart := strings.TrimPrefix(key, KeyPrefix)

	uuidBytes, err := base64.RawURLEncoding.DecodeString(encodedPart)
	if err != nil {
		return uuid.UUID{}, fmt.Errorf("failed to decode key: %w", err)
	}

	var id uuid.UUID
	if err := id.UnmarshalBinary(uuidBytes); err != nil {
		return uuid.UUID{}, fmt.Errorf("failed to unmarshal UUID: %w", err)
	}

	return id, nil
}

// ObfuscateKey returns a redacted form of a key safe for logs and audit
// entries: the prefix, the first four encoded characters, and the length.
func ObfuscateKey(key string) string {
	if len(key) <= len(KeyPrefix)+4 {
		return "****"
	}
	return key[:len(KeyPrefix)+4] + "****"
}
