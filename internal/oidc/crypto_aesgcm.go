package oidc

import (
	"crypto/aes"
	"crypto/cipher"
	crand "crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"sync"

	"golang.org/x/crypto/scrypt"
)

// SecretSource supplies the raw key material an AESGCMEncryptor derives
// cipher keys from. A file-backed source lives in secretsource.go; tests and
// callers that already hold secrets in memory can implement this directly.
type SecretSource interface {
	GetSecret() ([][]byte, error)
}

// AESGCMEncryptor is the default Encryptor: AES-256-GCM with keys derived
// via scrypt from one or more rotating secrets. Encrypt always uses the
// newest (first) key; Decrypt tries every configured key so a cookie sealed
// under a since-rotated secret still opens.
type AESGCMEncryptor struct {
	mu     sync.RWMutex
	aeads  []cipher.AEAD
	source SecretSource
}

// NewAESGCMEncryptor builds an encryptor and performs an initial key load.
func NewAESGCMEncryptor(source SecretSource) (*AESGCMEncryptor, error) {
	e := &AESGCMEncryptor{source: source}
	if err := e.RefreshKeys(); err != nil {
		return nil, err
	}
	return e, nil
}

// RefreshKeys re-derives the cipher set from the current secret source. Safe
// to call concurrently with Encrypt/Decrypt.
func (e *AESGCMEncryptor) RefreshKeys() error {
	secrets, err := e.source.GetSecret()
	if err != nil {
		return fmt.Errorf("reading encryption secrets: %w", err)
	}
	if len(secrets) == 0 {
		return fmt.Errorf("no encryption secrets configured")
	}

	aeads := make([]cipher.AEAD, len(secrets))
	for i, s := range secrets {
		key, err := scrypt.Key(s, []byte{}, 1<<15, 8, 1, 32)
		if err != nil {
			return fmt.Errorf("deriving key: %w", err)
		}
		block, err := aes.NewCipher(key)
		if err != nil {
			return fmt.Errorf("creating cipher: %w", err)
		}
		aead, err := cipher.NewGCM(block)
		if err != nil {
			return fmt.Errorf("creating GCM: %w", err)
		}
		aeads[i] = aead
	}

	e.mu.Lock()
	e.aeads = aeads
	e.mu.Unlock()
	return nil
}

// Encrypt implements Encryptor.
func (e *AESGCMEncryptor) Encrypt(plaintext string) (string, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if len(e.aeads) == 0 {
		return "", fmt.Errorf("no ciphers available")
	}
	aead := e.aeads[0]
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(crand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}
	sealed := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Decrypt implements Encryptor.
func (e *AESGCMEncryptor) Decrypt(ciphertext string) (string, bool) {
	raw, err := base64.RawURLEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", false
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, aead := range e.aeads {
		nonceSize := aead.NonceSize()
		if len(raw) < nonceSize {
			continue
		}
		nonce, body := raw[:nonceSize], raw[nonceSize:]
		plain, err := aead.Open(nil, nonce, body, nil)
		if err == nil {
			return string(plain), true
		}
	}
	return "", false
}
