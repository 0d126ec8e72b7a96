package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// BootstrapResult reports what BootstrapDevKey did. Created is false when
// the keys file already existed and nothing was written.
type BootstrapResult struct {
	KeysFile string
	Project  string
	Key      string
	Created  bool
}

// BootstrapDevKey writes a keys file with one generated key for project,
// unless the file already exists. First-run servers call this so a local
// setup works before anyone edits a keys file.
func BootstrapDevKey(keysPath, project string) (*BootstrapResult, error) {
	if keysPath == "" {
		keysPath = ResolveKeysPath()
	}
	if project == "" {
		project = "dev"
	}

	if _, err := os.Stat(keysPath); err == nil {
		return &BootstrapResult{KeysFile: keysPath, Created: false}, nil
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("check keys file: %w", err)
	}

	key, err := generateDevKey()
	if err != nil {
		return nil, err
	}

	cfg := keysFile{
		Projects: map[string]projectKeys{
			project: {Keys: []string{key}},
		},
	}
	allowLocalhost := true
	cfg.DefaultPolicy.AllowLocalhostWithoutAuth = &allowLocalhost

	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return nil, fmt.Errorf("marshal keys file: %w", err)
	}
	if err := os.WriteFile(keysPath, data, 0600); err != nil {
		return nil, fmt.Errorf("write keys file: %w", err)
	}

	return &BootstrapResult{
		KeysFile: keysPath,
		Project:  project,
		Key:      key,
		Created:  true,
	}, nil
}

// AppendProjectKey generates a fresh key for project and adds it to the
// keys file at path, creating the file when missing. Existing keys and the
// localhost policy are preserved; the new key is returned for display.
func AppendProjectKey(path, project string) (string, error) {
	path = strings.TrimSpace(path)
	project = strings.TrimSpace(project)
	if path == "" {
		return "", fmt.Errorf("keys file path required")
	}
	if project == "" {
		return "", fmt.Errorf("project required")
	}

	cfg, err := readKeysFile(path)
	if err != nil {
		return "", err
	}
	key, err := generateDevKey()
	if err != nil {
		return "", err
	}

	if cfg.Projects == nil {
		cfg.Projects = make(map[string]projectKeys)
	}
	pk := cfg.Projects[project]
	pk.Keys = append(pk.Keys, key)
	cfg.Projects[project] = pk
	if cfg.DefaultPolicy.AllowLocalhostWithoutAuth == nil {
		allow := true
		cfg.DefaultPolicy.AllowLocalhostWithoutAuth = &allow
	}

	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return "", fmt.Errorf("marshal keys file: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return "", fmt.Errorf("write keys file: %w", err)
	}
	return key, nil
}

// readKeysFile parses path, treating a missing file as empty.
func readKeysFile(path string) (keysFile, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return keysFile{}, nil
	}
	if err != nil {
		return keysFile{}, fmt.Errorf("read keys file: %w", err)
	}
	var cfg keysFile
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return keysFile{}, fmt.Errorf("parse keys file: %w", err)
	}
	return cfg, nil
}

func generateDevKey() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate key: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
