// Package crypto provides AES-256-GCM encryption of trace bodies and
// conversation content, with per-tenant keys derived from a process-wide
// master key.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"sync"

	"golang.org/x/crypto/hkdf"
)

const (
	// MasterKeySize is the required master key length (AES-256).
	MasterKeySize = 32
	// ivSize is the GCM standard nonce size (96 bits).
	ivSize = 12
	// keyInfo is the fixed HKDF info string. Changing it invalidates
	// every derived key, so it is versioned together with KeyVersion.
	keyInfo = "axon/tenant-data-key/v1"
)

var (
	// ErrInvalidMasterKey is returned when the master key is not 32 bytes.
	ErrInvalidMasterKey = fmt.Errorf("master key must be exactly %d bytes", MasterKeySize)
	// ErrKeyVersionMismatch is returned when a ciphertext was produced
	// under a different key version than the service runs with.
	ErrKeyVersionMismatch = errors.New("encryption key version mismatch")
	// ErrDecryptFailed is returned on tag verification or encoding failure.
	ErrDecryptFailed = errors.New("decryption failed")
)

// Service encrypts and decrypts per-tenant payloads. Derived keys are
// memoized per tenant; the cache is unbounded but keyed by tenant ID,
// which is bounded by the tenant population.
type Service struct {
	masterKey  []byte
	keyVersion int

	mu   sync.RWMutex
	keys map[string][]byte // tenant_id → derived data key
}

// NewService creates a crypto service from a 32-byte master key.
func NewService(masterKey []byte, keyVersion int) (*Service, error) {
	if len(masterKey) != MasterKeySize {
		return nil, ErrInvalidMasterKey
	}
	key := make([]byte, MasterKeySize)
	copy(key, masterKey)
	return &Service{
		masterKey:  key,
		keyVersion: keyVersion,
		keys:       make(map[string][]byte),
	}, nil
}

// NewEphemeralService creates a service with a random master key.
// Development-mode fallback: everything encrypted with it is
// unreadable after restart.
func NewEphemeralService() (*Service, error) {
	key := make([]byte, MasterKeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("failed to generate ephemeral master key: %w", err)
	}
	return NewService(key, 1)
}

// KeyVersion returns the version recorded alongside new ciphertexts.
func (s *Service) KeyVersion() int {
	return s.keyVersion
}

// Encrypt encrypts plaintext under the tenant's derived key. It returns
// the base64 ciphertext (GCM tag appended) and the base64url IV.
func (s *Service) Encrypt(tenantID, plaintext string) (ciphertext, iv string, err error) {
	gcm, err := s.aeadFor(tenantID)
	if err != nil {
		return "", "", err
	}

	nonce := make([]byte, ivSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", "", fmt.Errorf("failed to generate iv: %w", err)
	}

	sealed := gcm.Seal(nil, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed),
		base64.RawURLEncoding.EncodeToString(nonce),
		nil
}

// Decrypt reverses Encrypt. keyVersion must match the service's version;
// any tag or encoding failure yields ErrDecryptFailed, never a panic.
func (s *Service) Decrypt(tenantID, ciphertext, iv string, keyVersion int) (string, error) {
	if keyVersion != s.keyVersion {
		return "", ErrKeyVersionMismatch
	}

	gcm, err := s.aeadFor(tenantID)
	if err != nil {
		return "", err
	}

	nonce, err := base64.RawURLEncoding.DecodeString(iv)
	if err != nil || len(nonce) != ivSize {
		return "", ErrDecryptFailed
	}
	sealed, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", ErrDecryptFailed
	}

	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", ErrDecryptFailed
	}
	return string(plaintext), nil
}

// aeadFor returns the tenant's AES-GCM AEAD, deriving and caching the
// data key on first use.
func (s *Service) aeadFor(tenantID string) (cipher.AEAD, error) {
	key, err := s.deriveKey(tenantID)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create gcm: %w", err)
	}
	return gcm, nil
}

// deriveKey derives the tenant data key: HKDF-SHA-256 over the master
// key with the tenant ID as salt and a fixed info string.
func (s *Service) deriveKey(tenantID string) ([]byte, error) {
	s.mu.RLock()
	key, ok := s.keys[tenantID]
	s.mu.RUnlock()
	if ok {
		return key, nil
	}

	reader := hkdf.New(sha256.New, s.masterKey, []byte(tenantID), []byte(keyInfo))
	key = make([]byte, MasterKeySize)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("failed to derive tenant key: %w", err)
	}

	s.mu.Lock()
	s.keys[tenantID] = key
	s.mu.Unlock()
	return key, nil
}
