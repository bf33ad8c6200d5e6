package crypto

import (
	"bytes"
	"encoding/base64"
	"testing"
)

func testKey() string {
	return base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{0x42}, 32))
}

func TestNewAESEncryptor(t *testing.T) {
	cases := []struct {
		name    string
		key     string
		wantErr bool
	}{
		{"valid 32-byte key", testKey(), false},
		{"empty key", "", true},
		{"not base64", "!!not-base64!!", true},
		{"too short", base64.StdEncoding.EncodeToString([]byte("short")), true},
		{"too long", base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{1}, 48)), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewAESEncryptor(tc.key)
			if (err != nil) != tc.wantErr {
				t.Errorf("NewAESEncryptor err = %v, wantErr = %v", err, tc.wantErr)
			}
		})
	}
}

func TestEncryptDecryptRoundtrip(t *testing.T) {
	enc, err := NewAESEncryptor(testKey())
	if err != nil {
		t.Fatalf("NewAESEncryptor: %v", err)
	}

	plaintext := []byte("ya29.a0AfB_secret-access-token")
	ct, err := enc.Encrypt(plaintext)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if bytes.Contains(ct, plaintext) {
		t.Error("ciphertext contains the plaintext")
	}

	pt, err := enc.Decrypt(ct)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if !bytes.Equal(pt, plaintext) {
		t.Errorf("roundtrip mismatch: got %q", pt)
	}
}

func TestEncryptUniqueNonce(t *testing.T) {
	enc, _ := NewAESEncryptor(testKey())
	a, err := enc.Encrypt([]byte("same input"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	b, err := enc.Encrypt([]byte("same input"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if bytes.Equal(a, b) {
		t.Error("two encryptions of the same input produced identical ciphertext")
	}
}

func TestDecryptRejectsTampering(t *testing.T) {
	enc, _ := NewAESEncryptor(testKey())
	ct, err := enc.Encrypt([]byte("token"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	ct[len(ct)-1] ^= 0xFF
	if _, err := enc.Decrypt(ct); err == nil {
		t.Fatal("expected error for tampered ciphertext")
	}
}

func TestDecryptRejectsWrongKey(t *testing.T) {
	encA, _ := NewAESEncryptor(testKey())
	encB, _ := NewAESEncryptor(base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{0x99}, 32)))

	ct, err := encA.Encrypt([]byte("token"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if _, err := encB.Decrypt(ct); err == nil {
		t.Fatal("expected error when decrypting with a different key")
	}
}

func TestDecryptRejectsShortCiphertext(t *testing.T) {
	enc, _ := NewAESEncryptor(testKey())
	if _, err := enc.Decrypt([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected error for truncated ciphertext")
	}
}

func TestEncryptEmptyPlaintext(t *testing.T) {
	enc, _ := NewAESEncryptor(testKey())
	if _, err := enc.Encrypt(nil); err == nil {
		t.Fatal("expected error for empty plaintext")
	}
}

func TestStringHelpers(t *testing.T) {
	enc, _ := NewAESEncryptor(testKey())

	stored, err := EncryptString(enc, "refresh-token-value")
	if err != nil {
		t.Fatalf("EncryptString: %v", err)
	}
	if _, err := base64.StdEncoding.DecodeString(stored); err != nil {
		t.Errorf("stored value is not base64: %v", err)
	}

	got, err := DecryptString(enc, stored)
	if err != nil {
		t.Fatalf("DecryptString: %v", err)
	}
	if got != "refresh-token-value" {
		t.Errorf("roundtrip = %q", got)
	}

	if _, err := DecryptString(enc, "%%%not-base64%%%"); err == nil {
		t.Fatal("expected error for non-base64 input")
	}
}
