package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"strings"
	"testing"
)

func testKey(t *testing.T) string {
	t.Helper()
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		t.Fatal(err)
	}
	return base64.StdEncoding.EncodeToString(raw)
}

func TestNewAESEncryptor(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		wantErr string
	}{
		{name: "valid key", key: base64.StdEncoding.EncodeToString(make([]byte, 32))},
		{name: "empty key", key: "", wantErr: "empty"},
		{name: "not base64", key: "!!!", wantErr: "base64"},
		{name: "wrong length", key: base64.StdEncoding.EncodeToString(make([]byte, 16)), wantErr: "32 bytes"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewAESEncryptor(tt.key)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("NewAESEncryptor() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("NewAESEncryptor() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestEncryptDecryptString(t *testing.T) {
	enc, err := NewAESEncryptor(testKey(t))
	if err != nil {
		t.Fatal(err)
	}

	const token = "oauth-token-abc123"
	stored, err := EncryptString(enc, token)
	if err != nil {
		t.Fatalf("EncryptString() error = %v", err)
	}
	if stored == token {
		t.Fatal("ciphertext equals plaintext")
	}
	got, err := DecryptString(enc, stored)
	if err != nil {
		t.Fatalf("DecryptString() error = %v", err)
	}
	if got != token {
		t.Fatalf("roundtrip = %q, want %q", got, token)
	}
}

func TestDecryptTamperDetected(t *testing.T) {
	enc, err := NewAESEncryptor(testKey(t))
	if err != nil {
		t.Fatal(err)
	}
	stored, err := EncryptString(enc, "secret")
	if err != nil {
		t.Fatal(err)
	}
	raw, _ := base64.StdEncoding.DecodeString(stored)
	raw[len(raw)-1] ^= 0xff
	if _, err := enc.Decrypt(raw); err == nil {
		t.Fatal("Decrypt() accepted tampered ciphertext")
	}
}

func TestEmptyStringsPassThrough(t *testing.T) {
	enc, err := NewAESEncryptor(testKey(t))
	if err != nil {
		t.Fatal(err)
	}
	if s, err := EncryptString(enc, ""); err != nil || s != "" {
		t.Fatalf("EncryptString(\"\") = (%q, %v), want (\"\", nil)", s, err)
	}
	if s, err := DecryptString(enc, ""); err != nil || s != "" {
		t.Fatalf("DecryptString(\"\") = (%q, %v), want (\"\", nil)", s, err)
	}
}
