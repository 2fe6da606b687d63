// Package security provides credential handling for devremote: the
// one-shot pre-supplied password of a connection attempt and its storage
// in the OS keyring.
package security

import (
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/zalando/go-keyring"
)

const (
	// KeyringService is the service name used for keyring entries.
	KeyringService = "devremote"

	keyPasswordFmt = "password:%s@%s"
)

// ErrKeyringUnavailable is returned when the OS keyring cannot be used.
var ErrKeyringUnavailable = errors.New("keyring not available")

// KeyringStore provides OS keyring integration for credential storage.
// It uses the system keyring (macOS Keychain, Linux Secret Service, Windows Credential Manager).
type KeyringStore struct {
	enabled bool
	mu      sync.RWMutex
}

// NewKeyringStore creates a new keyring store.
// If the system keyring is not available, the store will be disabled.
func NewKeyringStore() *KeyringStore {
	ks := &KeyringStore{
		enabled: true,
	}

	// Test if keyring is available by trying a dummy operation
	testKey := "__devremote_probe__"
	err := keyring.Set(KeyringService, testKey, "probe")
	if err != nil {
		slog.Debug("keyring not available",
			slog.String("error", err.Error()),
		)
		ks.enabled = false
		return ks
	}

	// Clean up test entry
	_ = keyring.Delete(KeyringService, testKey)

	slog.Debug("keyring storage enabled")
	return ks
}

// IsEnabled returns true if the keyring is available and enabled.
func (ks *KeyringStore) IsEnabled() bool {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	return ks.enabled
}

// SetEnabled allows enabling/disabling keyring usage.
func (ks *KeyringStore) SetEnabled(enabled bool) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	ks.enabled = enabled
}

// StorePassword stores the SSH password for user@host.
func (ks *KeyringStore) StorePassword(host, user string, password []byte) error {
	if !ks.IsEnabled() {
		return ErrKeyringUnavailable
	}

	// Base64 encode to safely store binary data
	encoded := base64.StdEncoding.EncodeToString(password)
	if err := keyring.Set(KeyringService, fmt.Sprintf(keyPasswordFmt, user, host), encoded); err != nil {
		return fmt.Errorf("failed to store password: %w", err)
	}

	slog.Debug("stored password in keyring",
		slog.String("user", user),
		slog.String("host", host),
	)
	return nil
}

// Password retrieves the SSH password for user@host. A missing entry
// returns nil without error.
func (ks *KeyringStore) Password(host, user string) ([]byte, error) {
	if !ks.IsEnabled() {
		return nil, ErrKeyringUnavailable
	}

	encoded, err := keyring.Get(KeyringService, fmt.Sprintf(keyPasswordFmt, user, host))
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get password: %w", err)
	}

	password, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode password: %w", err)
	}
	return password, nil
}

// DeletePassword removes the SSH password for user@host. Deleting a
// missing entry is not an error.
func (ks *KeyringStore) DeletePassword(host, user string) error {
	if !ks.IsEnabled() {
		return ErrKeyringUnavailable
	}

	if err := keyring.Delete(KeyringService, fmt.Sprintf(keyPasswordFmt, user, host)); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("failed to delete password: %w", err)
	}
	return nil
}
