// Package auth maps bearer keys to projects. Localhost callers are trusted
// by default; anything else needs a key from the keys file, and the key
// decides which project the caller may touch.
package auth

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const defaultKeysFile = "farmhand.keys.yaml"

type keysFile struct {
	DefaultPolicy struct {
		AllowLocalhostWithoutAuth *bool `yaml:"allow_localhost_without_auth"`
	} `yaml:"default_policy"`
	Projects map[string]projectKeys `yaml:"projects"`
}

type projectKeys struct {
	Keys []string `yaml:"keys"`
}

// Keyring holds the parsed key to project mapping. A nil or empty ring
// still admits localhost when AllowLocalhostWithoutAuth is set.
type Keyring struct {
	AllowLocalhostWithoutAuth bool
	byKey                     map[string]string
}

// ResolveKeysPath returns the keys file location: FARMHAND_KEYS_FILE when
// set, else farmhand.keys.yaml in the working directory.
func ResolveKeysPath() string {
	if v := strings.TrimSpace(os.Getenv("FARMHAND_KEYS_FILE")); v != "" {
		return v
	}
	return filepath.Join(".", defaultKeysFile)
}

func LoadKeyringFromEnv() (*Keyring, error) {
	return LoadKeyring(ResolveKeysPath())
}

// LoadKeyring reads and parses the keys file. A missing file is
// bootstrapped with a fresh dev key so a first run needs no setup.
func LoadKeyring(path string) (*Keyring, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return defaultKeyring(), nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		if _, err := BootstrapDevKey(path, "dev"); err != nil {
			return nil, fmt.Errorf("bootstrap dev key: %w", err)
		}
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read keys file: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("read keys file: %w", err)
	}

	var cfg keysFile
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse keys file: %w", err)
	}
	return buildKeyring(cfg)
}

func buildKeyring(cfg keysFile) (*Keyring, error) {
	ring := defaultKeyring()
	if cfg.DefaultPolicy.AllowLocalhostWithoutAuth != nil {
		ring.AllowLocalhostWithoutAuth = *cfg.DefaultPolicy.AllowLocalhostWithoutAuth
	}
	for project, keys := range cfg.Projects {
		for _, key := range keys.Keys {
			key = strings.TrimSpace(key)
			if key == "" {
				continue
			}
			// A key grants exactly one project; a shared key would make
			// project scoping ambiguous.
			if existing, ok := ring.byKey[key]; ok && existing != project {
				return nil, fmt.Errorf("key reused across projects: %q", key)
			}
			ring.byKey[key] = project
		}
	}
	return ring, nil
}

func defaultKeyring() *Keyring {
	return &Keyring{AllowLocalhostWithoutAuth: true, byKey: make(map[string]string)}
}

// NewKeyring builds a ring directly, mainly for tests.
func NewKeyring(allowLocalhost bool, keyToProject map[string]string) *Keyring {
	ring := &Keyring{AllowLocalhostWithoutAuth: allowLocalhost, byKey: make(map[string]string, len(keyToProject))}
	for k, v := range keyToProject {
		ring.byKey[k] = v
	}
	return ring
}

func (k *Keyring) ProjectForKey(key string) (string, bool) {
	if k == nil {
		return "", false
	}
	project, ok := k.byKey[key]
	return project, ok
}
