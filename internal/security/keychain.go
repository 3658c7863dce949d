package security

import (
	"fmt"

	"github.com/zalando/go-keyring"
)

// keychainService namespaces our entries in the OS keychain.
const keychainService = "irc-core"

// Keychain stores SASL credentials in the OS keychain so they never have to
// live in the config file.
type Keychain struct{}

// NewKeychain creates a keychain accessor.
func NewKeychain() *Keychain {
	return &Keychain{}
}

// StorePassword stores the password for an account key (network/username).
// An empty password deletes the entry.
func (k *Keychain) StorePassword(account, password string) error {
	if password == "" {
		return k.DeletePassword(account)
	}
	if err := keyring.Set(keychainService, account, password); err != nil {
		return fmt.Errorf("failed to store password in keychain: %w", err)
	}
	return nil
}

// GetPassword looks up the password for an account key. A missing entry is
// not an error; it returns the empty string.
func (k *Keychain) GetPassword(account string) (string, error) {
	password, err := keyring.Get(keychainService, account)
	if err != nil {
		if err == keyring.ErrNotFound {
			return "", nil
		}
		return "", fmt.Errorf("failed to get password from keychain: %w", err)
	}
	return password, nil
}

// DeletePassword removes an account's entry.
func (k *Keychain) DeletePassword(account string) error {
	if err := keyring.Delete(keychainService, account); err != nil && err != keyring.ErrNotFound {
		return fmt.Errorf("failed to delete password from keychain: %w", err)
	}
	return nil
}
