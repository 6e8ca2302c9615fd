package security

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
	"sync"

	"golang.org/x/crypto/hkdf"
)

const (
	aesGCMNonceSize = 12
	aesGCMTagSize   = 16
)

// AESGCMEncryptor derives a distinct AES-256 key per message type from a
// master secret via HKDF-SHA256, so a key leak for one message type does
// not expose every other type's ciphertext.
type AESGCMEncryptor struct {
	master []byte

	mu   sync.Mutex
	aead map[string]cipher.AEAD
}

func NewAESGCMEncryptor(master []byte) *AESGCMEncryptor {
	return &AESGCMEncryptor{master: master, aead: make(map[string]cipher.AEAD)}
}

func (e *AESGCMEncryptor) Algorithm() string { return "AES-256-GCM" }
func (e *AESGCMEncryptor) IVSize() int       { return aesGCMNonceSize }
func (e *AESGCMEncryptor) TagSize() int      { return aesGCMTagSize }

func (e *AESGCMEncryptor) aeadFor(messageType string) (cipher.AEAD, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if a, ok := e.aead[messageType]; ok {
		return a, nil
	}

	key := make([]byte, 32)
	derive := hkdf.New(sha256.New, e.master, nil, []byte("heromessaging:"+messageType))
	if _, err := io.ReadFull(derive, key); err != nil {
		return nil, fmt.Errorf("derive key for %s: %w", messageType, err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("new gcm: %w", err)
	}

	e.aead[messageType] = aead
	return aead, nil
}

func (e *AESGCMEncryptor) Encrypt(ctx context.Context, messageType string, plaintext []byte) ([]byte, error) {
	aead, err := e.aeadFor(messageType)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

func (e *AESGCMEncryptor) Decrypt(ctx context.Context, messageType string, ciphertext []byte) ([]byte, error) {
	aead, err := e.aeadFor(messageType)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < aead.NonceSize() {
		return nil, fmt.Errorf("ciphertext shorter than nonce")
	}
	nonce, sealed := ciphertext[:aead.NonceSize()], ciphertext[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypt: %w", err)
	}
	return plaintext, nil
}

// HMACSigner signs with HMAC-SHA256. Standard library only — no example
// repo in the pack imports a dedicated signing library for a detached
// MAC; crypto/hmac is the idiomatic choice the ecosystem itself reaches
// for here, so substituting a third-party package would add an import
// with no capability this doesn't already have.
type HMACSigner struct {
	key []byte
}

func NewHMACSigner(key []byte) *HMACSigner {
	return &HMACSigner{key: key}
}

func (s *HMACSigner) Algorithm() string { return "HMAC-SHA256" }

func (s *HMACSigner) Sign(ctx context.Context, payload []byte) ([]byte, error) {
	mac := hmac.New(sha256.New, s.key)
	mac.Write(payload)
	return mac.Sum(nil), nil
}

func (s *HMACSigner) Verify(ctx context.Context, payload, signature []byte) bool {
	expected, _ := s.Sign(ctx, payload)
	return hmac.Equal(expected, signature)
}
