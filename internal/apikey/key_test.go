package apikey

import (
	"strings"
	"testing"
)

func TestGenerateKey(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}

	if !strings.HasPrefix(key, KeyPrefix) {
		t.Errorf("key %q missing prefix %q", key, KeyPrefix)
	}
	if len(key) != len(KeyPrefix)+22 {
		t.Errorf("key length = %d, want %d", len(key), len(KeyPrefix)+22)
	}
	if !KeyRegex.MatchString(key) {
		t.Errorf("key %q does not match %q", key, KeyRegexPattern)
	}
	if err := ValidateKeyFormat(key); err != nil {
		t.Errorf("ValidateKeyFormat(%q) error = %v", key, err)
	}
}

func TestGenerateKeyUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		key, err := GenerateKey()
		if err != nil {
			t.Fatalf("GenerateKey() error = %v", err)
		}
		if seen[key] {
			t.Fatalf("duplicate key generated: %s", key)
		}
		seen[key] = true
	}
}

func TestValidateKeyFormat(t *testing.T) {
	valid, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}

	tests := []struct {
		name    string
		key     string
		wantErr bool
	}{
		{"valid key", valid, false},
		{"empty", "", true},
		{"missing prefix", strings.TrimPrefix(valid, KeyPrefix), true},
		{"wrong prefix", "sk_" + strings.TrimPrefix(valid, KeyPrefix), true},
		{"too short", KeyPrefix + "abc", true},
		{"too long", valid + "x", true},
		{"invalid base64 chars", KeyPrefix + strings.Repeat("!", 22), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateKeyFormat(tt.key)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateKeyFormat(%q) error = %v, wantErr %v", tt.key, err, tt.wantErr)
			}
		})
	}
}

func TestDecodeKeyRoundTrip(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}

	id, err := DecodeKey(key)
	if err != nil {
		t.Fatalf("DecodeKey(%q) error = %v", key, err)
	}
	if id.Version() != 7 {
		t.Errorf("decoded UUID version = %d, want 7", id.Version())
	}
}

func TestObfuscateKey(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}

	obfuscated := ObfuscateKey(key)
	if !strings.HasPrefix(obfuscated, KeyPrefix) {
		t.Errorf("obfuscated key %q missing prefix", obfuscated)
	}
	if !strings.HasSuffix(obfuscated, "****") {
		t.Errorf("obfuscated key %q missing mask", obfuscated)
	}
	if strings.Contains(obfuscated, key[len(KeyPrefix)+4:len(KeyPrefix)+10]) {
		t.Errorf("obfuscated key %q leaks key material", obfuscated)
	}

	if got := ObfuscateKey("short"); got != "****" {
		t.Errorf("ObfuscateKey(short) = %q, want ****", got)
	}
}
