package krypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
)

var (
	// ErrInvalidEnvelope indicates an envelope is malformed, truncated or
	// failed authentication during decryption.
	ErrInvalidEnvelope = errors.New("invalid envelope")
)

// UserEncryptor encrypts and decrypts field values using AES-256-GCM under
// a key that is unique per user.
//
// The per-user key is derived on every call as HMAC-SHA256 keyed with the
// master key over the user id. Derived keys are never persisted, so
// compromise of one derived key does not expose other users' data.
//
// Encrypted values are stored as a single opaque envelope:
//
//	base64(nonce || ciphertext)
//
// A fresh random nonce is generated for every Encrypt call. Nonce reuse
// under the same key breaks GCM completely, so there is no code path that
// accepts a caller-provided nonce.
type UserEncryptor struct {
	master Key
}

// NewUserEncryptor creates an encryptor from the master key.
func NewUserEncryptor(master Key) *UserEncryptor {
	return &UserEncryptor{
		master: master,
	}
}

// DeriveKey derives the symmetric key for the given user id.
// The derivation is deterministic and one-way.
func (e *UserEncryptor) DeriveKey(userID string) Key {
	mac := hmac.New(sha256.New, e.master.SecretValue())
	mac.Write([]byte(userID))

	return Key{
		value: mac.Sum(nil),
	}
}

// Encrypt encrypts plaintext under the key derived for userID and returns
// the storage envelope.
func (e *UserEncryptor) Encrypt(userID string, plaintext []byte) (string, error) {
	if len(plaintext) == 0 {
		return "", fmt.Errorf("refusing to encrypt empty value: %w", ErrInvalidInput)
	}

	gcm, err := e.aead(userID)
	if err != nil {
		return "", err
	}

	nonce, err := genRandomBytes(gcm.NonceSize())
	if err != nil {
		return "", err
	}

	sealed := gcm.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens an envelope using the key derived for userID.
// It returns ErrInvalidEnvelope if the envelope is malformed, truncated or
// was not sealed under this user's key.
func (e *UserEncryptor) Decrypt(userID string, envelope string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(envelope)
	if err != nil {
		return nil, fmt.Errorf("envelope is not valid base64: %w", ErrInvalidEnvelope)
	}

	gcm, err := e.aead(userID)
	if err != nil {
		return nil, err
	}

	if len(raw) <= gcm.NonceSize() {
		return nil, fmt.Errorf("envelope too short: %w", ErrInvalidEnvelope)
	}

	nonce := raw[:gcm.NonceSize()]
	ciphertext := raw[gcm.NonceSize():]

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("authentication failed: %w", ErrInvalidEnvelope)
	}

	return plaintext, nil
}

func (e *UserEncryptor) aead(userID string) (cipher.AEAD, error) {
	key := e.DeriveKey(userID)

	block, err := aes.NewCipher(key.SecretValue())
	if err != nil {
		return nil, err
	}

	return cipher.NewGCM(block)
}
