// Package state persists a small per-identity cache of what an agent
// believes about itself: whether it registered and which patterns it last
// reserved. The store is always ground truth; the cache only short-circuits
// the common case in hook hot paths.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// LocalAgentState is the cached view for one identity.
type LocalAgentState struct {
	Registered   bool     `json:"registered"`
	AgentName    string   `json:"agent_name,omitempty"`
	Reservations []string `json:"reservations"`
}

// Cache reads and writes LocalAgentState files under dir, one per
// identity cache key.
type Cache struct {
	dir string
}

func NewCache(dir string) *Cache {
	return &Cache{dir: dir}
}

func (c *Cache) path(key string) string {
	return filepath.Join(c.dir, key+".json")
}

// Load returns the cached state for key. A missing file is a zero state,
// not an error; a corrupt file is an error so callers can decide whether
// to fail open.
func (c *Cache) Load(key string) (LocalAgentState, error) {
	data, err := os.ReadFile(c.path(key))
	if os.IsNotExist(err) {
		return LocalAgentState{}, nil
	}
	if err != nil {
		return LocalAgentState{}, fmt.Errorf("read state: %w", err)
	}
	var st LocalAgentState
	if err := json.Unmarshal(data, &st); err != nil {
		return LocalAgentState{}, fmt.Errorf("parse state: %w", err)
	}
	return st, nil
}

// Save writes the state atomically (temp file + rename) so a concurrent
// reader never sees a partial file.
func (c *Cache) Save(key string, st LocalAgentState) error {
	if err := os.MkdirAll(c.dir, 0755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	tmp, err := os.CreateTemp(c.dir, key+".*.tmp")
	if err != nil {
		return fmt.Errorf("temp state: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close state: %w", err)
	}
	if err := os.Rename(tmp.Name(), c.path(key)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("rename state: %w", err)
	}
	return nil
}

// Reset deletes key's cache file. Only the invoking identity's file is
// touched; other agents' caches on the same machine are left alone.
func (c *Cache) Reset(key string) error {
	err := os.Remove(c.path(key))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("reset state: %w", err)
	}
	return nil
}
