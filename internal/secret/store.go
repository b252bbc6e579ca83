package secret

import "fmt"

// SecretStore holds database passwords for stored connections, keyed by
// connection ID.
type SecretStore interface {
	// Set stores a secret value under the given key.
	Set(key string, value []byte) error

	// Get retrieves the secret value for the given key.
	// Returns empty slice and nil error if key does not exist.
	Get(key string) ([]byte, error)

	// Delete removes the secret for the given key.
	Delete(key string) error
}

// New returns the store for backend: "env" (default) or "keychain".
func New(backend, envPrefix string) (SecretStore, error) {
	switch backend {
	case "", "env":
		return NewEnvStore(envPrefix), nil
	case "keychain":
		return NewKeychainStore("jsonjoin"), nil
	default:
		return nil, fmt.Errorf("unknown secrets backend: %q", backend)
	}
}
