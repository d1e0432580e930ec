package oidc

import (
	"fmt"
	"os"
	"strings"
)

// FileSecretSource reads comma-separated secret values from a file. The
// first secret is the active encryption key; any additional ones are kept
// only to decrypt cookies sealed before a rotation.
type FileSecretSource struct {
	path string
}

// NewFileSecretSource builds a FileSecretSource over path.
func NewFileSecretSource(path string) *FileSecretSource {
	return &FileSecretSource{path: path}
}

// GetSecret implements SecretSource.
func (s *FileSecretSource) GetSecret() ([][]byte, error) {
	contents, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("reading secrets file %s: %w", s.path, err)
	}
	parts := strings.Split(strings.TrimSpace(string(contents)), ",")
	secrets := make([][]byte, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			continue
		}
		secrets = append(secrets, []byte(p))
	}
	if len(secrets) == 0 {
		return nil, fmt.Errorf("secrets file %s contains no secrets", s.path)
	}
	return secrets, nil
}

// StaticSecretSource serves secrets supplied directly (e.g. from config or
// tests) rather than read from a file.
type StaticSecretSource struct {
	secrets [][]byte
}

// NewStaticSecretSource wraps a fixed secret list. Values should be ordered
// newest-first, matching FileSecretSource's convention.
func NewStaticSecretSource(values ...string) *StaticSecretSource {
	secrets := make([][]byte, len(values))
	for i, v := range values {
		secrets[i] = []byte(v)
	}
	return &StaticSecretSource{secrets: secrets}
}

// GetSecret implements SecretSource.
func (s *StaticSecretSource) GetSecret() ([][]byte, error) {
	if len(s.secrets) == 0 {
		return nil, fmt.Errorf("no secrets configured")
	}
	return s.secrets, nil
}
