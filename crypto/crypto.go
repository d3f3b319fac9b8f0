// Package crypto seals stored credentials with AES-256-GCM. Each key carries a
// short identifier so rows written under an old key can still be opened after
// rotation.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrUnknownKey is returned when a ciphertext names a key the Keyring does not hold.
var ErrUnknownKey = errors.New("unknown encryption key")

// Encryptor seals and opens byte slices with authenticated encryption.
type Encryptor interface {
	Encrypt(plaintext []byte) ([]byte, error)
	Decrypt(ciphertext []byte) ([]byte, error)
	// KeyID names the key for storage alongside the ciphertext.
	KeyID() string
}

// AESEncryptor implements Encryptor using AES-256-GCM.
type AESEncryptor struct {
	aead  cipher.AEAD
	keyID string
}

// NewAESEncryptor creates an encryptor from a base64-encoded 32-byte key
// (for example the output of `openssl rand -base64 32`).
func NewAESEncryptor(base64Key string) (*AESEncryptor, error) {
	base64Key = strings.TrimSpace(base64Key)
	if base64Key == "" {
		return nil, fmt.Errorf("encryption key is empty")
	}
	key, err := base64.StdEncoding.DecodeString(base64Key)
	if err != nil {
		return nil, fmt.Errorf("invalid encryption key: base64 decode failed: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("invalid encryption key: must be 32 bytes (256 bits), got %d bytes", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}
	sum := sha256.Sum256(key)
	return &AESEncryptor{aead: gcm, keyID: hex.EncodeToString(sum[:4])}, nil
}

// KeyID is the first four bytes of the key's SHA-256, hex encoded.
func (e *AESEncryptor) KeyID() string { return e.keyID }

// Encrypt returns nonce || ciphertext || tag.
func (e *AESEncryptor) Encrypt(plaintext []byte) ([]byte, error) {
	if len(plaintext) == 0 {
		return nil, fmt.Errorf("plaintext is empty")
	}
	nonce := make([]byte, e.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return e.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt opens a value produced by Encrypt.
func (e *AESEncryptor) Decrypt(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) == 0 {
		return nil, fmt.Errorf("ciphertext is empty")
	}
	n := e.aead.NonceSize()
	if len(ciphertext) < n {
		return nil, fmt.Errorf("ciphertext too short: expected at least %d bytes, got %d", n, len(ciphertext))
	}
	plaintext, err := e.aead.Open(nil, ciphertext[:n], ciphertext[n:], nil)
	if err != nil {
		// don't leak which check failed
		return nil, fmt.Errorf("decryption failed: authentication or integrity check failed")
	}
	return plaintext, nil
}

// Keyring encrypts with a primary key and decrypts with any key it holds.
type Keyring struct {
	primary Encryptor
	byID    map[string]Encryptor
}

// NewKeyring builds a keyring from a primary key and optional retired keys,
// all base64 encoded.
func NewKeyring(primary string, retired ...string) (*Keyring, error) {
	p, err := NewAESEncryptor(primary)
	if err != nil {
		return nil, err
	}
	k := &Keyring{primary: p, byID: map[string]Encryptor{p.KeyID(): p}}
	for i, r := range retired {
		if strings.TrimSpace(r) == "" {
			continue
		}
		e, err := NewAESEncryptor(r)
		if err != nil {
			return nil, fmt.Errorf("retired key %d: %w", i, err)
		}
		if _, dup := k.byID[e.KeyID()]; !dup {
			k.byID[e.KeyID()] = e
		}
	}
	return k, nil
}

// Primary returns the encryptor new values are sealed with.
func (k *Keyring) Primary() Encryptor { return k.primary }

// For returns the encryptor for keyID. An empty keyID selects the primary key.
func (k *Keyring) For(keyID string) (Encryptor, error) {
	if keyID == "" {
		return k.primary, nil
	}
	e, ok := k.byID[keyID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKey, keyID)
	}
	return e, nil
}

// EncryptString encrypts plaintext and base64-encodes the result for text
// columns. An empty input stays empty.
func EncryptString(enc Encryptor, plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	ciphertext, err := enc.Encrypt([]byte(plaintext))
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// DecryptString reverses EncryptString.
func DecryptString(enc Encryptor, base64Ciphertext string) (string, error) {
	if base64Ciphertext == "" {
		return "", nil
	}
	ciphertext, err := base64.StdEncoding.DecodeString(base64Ciphertext)
	if err != nil {
		return "", fmt.Errorf("base64 decode failed: %w", err)
	}
	plaintext, err := enc.Decrypt(ciphertext)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}
