package secret

import (
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// keychainNotFound is the exit code of `security` when no item matches.
const keychainNotFound = 44

// KeychainStore implements SecretStore on the macOS Keychain via the
// `security` CLI. Items are generic passwords under one service name.
type KeychainStore struct {
	service string
}

func NewKeychainStore(service string) *KeychainStore {
	return &KeychainStore{service: service}
}

// Set stores a secret, replacing any existing value.
func (k *KeychainStore) Set(key string, value []byte) error {
	cmd := exec.Command("security", "add-generic-password",
		"-a", key,
		"-s", k.service,
		"-w", string(value),
		"-U",
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("keychain set: %s: %w", strings.TrimSpace(string(out)), err)
	}
	return nil
}

func (k *KeychainStore) Get(key string) ([]byte, error) {
	out, err := exec.Command("security", "find-generic-password",
		"-a", key,
		"-s", k.service,
		"-w",
	).Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == keychainNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("keychain get: %w", err)
	}
	return []byte(strings.TrimSpace(string(out))), nil
}

// Delete removes a secret; a missing item is not an error.
func (k *KeychainStore) Delete(key string) error {
	err := exec.Command("security", "delete-generic-password",
		"-a", key,
		"-s", k.service,
	).Run()
	var exitErr *exec.ExitError
	if err != nil && !(errors.As(err, &exitErr) && exitErr.ExitCode() == keychainNotFound) {
		return fmt.Errorf("keychain delete: %w", err)
	}
	return nil
}
