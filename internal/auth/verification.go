package auth

import (
	"context"
	"fmt"
	"sync"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	qrcode "github.com/skip2/go-qrcode"
)

// VerificationSecretStore persists enrolled verification secrets by identity.
type VerificationSecretStore interface {
	SecretFor(ctx context.Context, identity string) (string, error)
	SaveSecret(ctx context.Context, identity, secret string) error
}

// VerificationManager backs the human-verification gate. Identities that
// trip the gate must present a time-based one-time code from an enrolled
// authenticator with their next attempt.
type VerificationManager struct {
	issuer  string
	secrets VerificationSecretStore
}

// NewVerificationManager creates a new verification manager
func NewVerificationManager(issuer string, secrets VerificationSecretStore) *VerificationManager {
	return &VerificationManager{issuer: issuer, secrets: secrets}
}

// Enroll generates a fresh secret for an identity and returns the
// provisioning URL plus a QR code PNG for authenticator setup.
func (vm *VerificationManager) Enroll(ctx context.Context, identity string) (string, []byte, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      vm.issuer,
		AccountName: identity,
		SecretSize:  32,
		Period:      30,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return "", nil, fmt.Errorf("failed to generate verification secret: %w", err)
	}

	if err := vm.secrets.SaveSecret(ctx, identity, key.Secret()); err != nil {
		return "", nil, fmt.Errorf("failed to save verification secret: %w", err)
	}

	png, err := qrcode.Encode(key.URL(), qrcode.Medium, 256)
	if err != nil {
		return "", nil, fmt.Errorf("failed to render provisioning QR: %w", err)
	}

	return key.URL(), png, nil
}

// Enrolled reports whether the identity has a verification secret on file.
func (vm *VerificationManager) Enrolled(ctx context.Context, identity string) (bool, error) {
	secret, err := vm.secrets.SecretFor(ctx, identity)
	if err != nil {
		return false, err
	}
	return secret != "", nil
}

// Validate checks a one-time code for the identity. An identity with no
// enrolled secret never validates; absence of a code is a rejection, not a
// silent pass.
func (vm *VerificationManager) Validate(ctx context.Context, identity, code string) (bool, error) {
	if code == "" {
		return false, nil
	}

	secret, err := vm.secrets.SecretFor(ctx, identity)
	if err != nil {
		return false, err
	}
	if secret == "" {
		return false, nil
	}

	return totp.Validate(code, secret), nil
}

// MemorySecretStore is a process-local VerificationSecretStore.
type MemorySecretStore struct {
	mu      sync.RWMutex
	secrets map[string]string
}

// NewMemorySecretStore creates an empty in-memory secret store.
func NewMemorySecretStore() *MemorySecretStore {
	return &MemorySecretStore{secrets: make(map[string]string)}
}

func (s *MemorySecretStore) SecretFor(_ context.Context, identity string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.secrets[identity], nil
}

func (s *MemorySecretStore) SaveSecret(_ context.Context, identity, secret string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.secrets[identity] = secret
	return nil
}
