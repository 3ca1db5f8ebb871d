package auth

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const defaultKeysFile = "chargeq.keys.yaml"

type keysFile struct {
	DefaultPolicy struct {
		AllowLocalhostWithoutAuth *bool `yaml:"allow_localhost_without_auth"`
	} `yaml:"default_policy"`
	Keys []string `yaml:"keys"`
}

// Keyring holds the accepted API keys for write access from non-local
// clients. Requests from loopback addresses may bypass auth entirely,
// which keeps local development and the co-located cron trigger simple.
type Keyring struct {
	AllowLocalhostWithoutAuth bool
	keys                      map[string]struct{}
}

func ResolveKeysPath() string {
	if v := strings.TrimSpace(os.Getenv("CHARGEQ_KEYS_FILE")); v != "" {
		return v
	}
	return filepath.Join(".", defaultKeysFile)
}

func LoadKeyringFromEnv() (*Keyring, error) {
	return LoadKeyring(ResolveKeysPath())
}

func LoadKeyring(path string) (*Keyring, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return defaultKeyring(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return defaultKeyring(), nil
		}
		return nil, fmt.Errorf("read keys file: %w", err)
	}
	var cfg keysFile
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse keys file: %w", err)
	}
	ring := &Keyring{
		AllowLocalhostWithoutAuth: true,
		keys:                      make(map[string]struct{}),
	}
	if cfg.DefaultPolicy.AllowLocalhostWithoutAuth != nil {
		ring.AllowLocalhostWithoutAuth = *cfg.DefaultPolicy.AllowLocalhostWithoutAuth
	}
	for _, key := range cfg.Keys {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		ring.keys[key] = struct{}{}
	}
	return ring, nil
}

func defaultKeyring() *Keyring {
	return &Keyring{AllowLocalhostWithoutAuth: true, keys: make(map[string]struct{})}
}

// NewKeyring builds a keyring from an explicit key list, mainly for tests.
func NewKeyring(allowLocalhost bool, keys ...string) *Keyring {
	ring := &Keyring{AllowLocalhostWithoutAuth: allowLocalhost, keys: make(map[string]struct{}, len(keys))}
	for _, k := range keys {
		ring.keys[k] = struct{}{}
	}
	return ring
}

// HasKey reports whether key is accepted.
func (k *Keyring) HasKey(key string) bool {
	if k == nil {
		return false
	}
	_, ok := k.keys[key]
	return ok
}
