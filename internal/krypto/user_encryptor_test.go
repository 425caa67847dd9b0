package krypto_test

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/habitkeep/habitkeep/internal/krypto"
)

const testMasterKey = "2b671594b775f371eab4050b4d58326682df6b1a6cc2e886717b1a26b4d6c45d"

func testEncryptor(t *testing.T) *krypto.UserEncryptor {
	t.Helper()
	return krypto.NewUserEncryptor(must(krypto.ParseKey(testMasterKey)))
}

func Test_UserEncryptor_EncryptAndDecrypt(t *testing.T) {
	okCases := map[string]string{
		"ok, single byte":     "a",
		"ok, typical input":   "Morning run",
		"ok, non-ascii input": "Дневник 🏃",
		"ok, long input":      strings.Repeat("drink 8 glasses of water ", 40),
	}

	for name, raw := range okCases {
		t.Run(name, func(t *testing.T) {
			enc := testEncryptor(t)

			envelope, err := enc.Encrypt("user-1", []byte(raw))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			decrypted, err := enc.Decrypt("user-1", envelope)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if !bytes.Equal(decrypted, []byte(raw)) {
				t.Fatalf("want %q, got %q", raw, decrypted)
			}
		})
	}

	t.Run("fail, empty plaintext", func(t *testing.T) {
		enc := testEncryptor(t)
		_, err := enc.Encrypt("user-1", nil)
		if !errors.Is(err, krypto.ErrInvalidInput) {
			t.Fatalf("expected %v, got %v (via errors.Is)", krypto.ErrInvalidInput, err)
		}
	})
}

func Test_UserEncryptor_DecryptOtherUserFails(t *testing.T) {
	enc := testEncryptor(t)

	envelope, err := enc.Encrypt("user-1", []byte("Stop smoking"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = enc.Decrypt("user-2", envelope)
	if !errors.Is(err, krypto.ErrInvalidEnvelope) {
		t.Fatalf("expected %v, got %v (via errors.Is)", krypto.ErrInvalidEnvelope, err)
	}
}

func Test_UserEncryptor_NonceUniqueness(t *testing.T) {
	enc := testEncryptor(t)

	a := must(enc.Encrypt("user-1", []byte("Meditate")))
	b := must(enc.Encrypt("user-1", []byte("Meditate")))

	if a == b {
		t.Fatalf("two encryptions of the same plaintext produced identical envelopes")
	}
}

func Test_UserEncryptor_DeriveKeyIsDeterministic(t *testing.T) {
	enc := testEncryptor(t)

	a := enc.DeriveKey("user-1")
	b := enc.DeriveKey("user-1")
	c := enc.DeriveKey("user-2")

	if !bytes.Equal(a.SecretValue(), b.SecretValue()) {
		t.Errorf("expected identical keys for the same user")
	}

	if bytes.Equal(a.SecretValue(), c.SecretValue()) {
		t.Errorf("expected different keys for different users")
	}
}

func Test_UserEncryptor_InvalidEnvelopes(t *testing.T) {
	enc := testEncryptor(t)

	valid := must(enc.Encrypt("user-1", []byte("Read 10 pages")))

	tests := map[string]string{
		"fail, not base64":  "%%%not-base64%%%",
		"fail, empty":       "",
		"fail, too short":   "YWJj", // "abc", shorter than a nonce
		"fail, truncated":   valid[:len(valid)-8],
		"fail, bit flipped": flipLastByte(valid),
	}

	for name, envelope := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := enc.Decrypt("user-1", envelope)
			if !errors.Is(err, krypto.ErrInvalidEnvelope) {
				t.Fatalf("expected %v, got %v (via errors.Is)", krypto.ErrInvalidEnvelope, err)
			}
		})
	}
}

func flipLastByte(envelope string) string {
	b := []byte(envelope)
	last := b[len(b)-1]
	if last == 'A' {
		b[len(b)-1] = 'B'
	} else {
		b[len(b)-1] = 'A'
	}
	return string(b)
}

func must[T any](t T, err error) T {
	if err != nil {
		panic(err)
	}
	return t
}
