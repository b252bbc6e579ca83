package secret

import (
	"os"
	"strings"
	"sync"
)

// EnvStore reads secrets from environment variables named
// <prefix><KEY>, where KEY is the upper-cased key with every
// non-alphanumeric rune replaced by '_'. Values set at runtime are kept
// in memory and shadow the environment.
type EnvStore struct {
	prefix string

	mu     sync.RWMutex
	values map[string][]byte
}

func NewEnvStore(prefix string) *EnvStore {
	return &EnvStore{prefix: prefix, values: make(map[string][]byte)}
}

// VarName returns the environment variable consulted for key.
func (s *EnvStore) VarName(key string) string {
	return s.prefix + strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - 'a' + 'A'
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, key)
}

func (s *EnvStore) Set(key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = append([]byte(nil), value...)
	return nil
}

func (s *EnvStore) Get(key string) ([]byte, error) {
	s.mu.RLock()
	v, ok := s.values[key]
	s.mu.RUnlock()
	if ok {
		return v, nil
	}
	if env, ok := os.LookupEnv(s.VarName(key)); ok {
		return []byte(env), nil
	}
	return nil, nil
}

func (s *EnvStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return nil
}
