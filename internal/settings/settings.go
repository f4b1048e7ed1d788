// Package settings provides the JSON file-backed adapter for application
// settings and the auto-backup policy. Defaults are resolved once at load:
// absent files and absent fields come back filled in, so readers never
// fall back ad hoc.
package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ceroware/ceropos/internal/domain"
)

const (
	settingsFile = "settings.json"
	policyFile   = "backup_policy.json"
)

// Store persists settings and policy as JSON files under a directory.
// Safe for concurrent use within one process; writes go through a temp file
// and rename so a crash never leaves a half-written document.
type Store struct {
	mu  sync.Mutex
	dir string
}

// New returns a Store rooted at dir, creating it if needed.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create settings dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Settings loads the persisted settings merged over defaults. A missing
// file yields pure defaults.
func (s *Store) Settings() (domain.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := domain.DefaultSettings()
	err := s.load(settingsFile, &out)
	return out, err
}

// SetSettings persists settings atomically.
func (s *Store) SetSettings(v domain.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(settingsFile, v)
}

// Policy loads the persisted auto-backup policy, defaulting when absent.
func (s *Store) Policy() (domain.BackupPolicy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := domain.DefaultBackupPolicy()
	if err := s.load(policyFile, &out); err != nil {
		return out, err
	}
	if _, err := domain.ParseFrequency(string(out.Frequency)); err != nil {
		return domain.DefaultBackupPolicy(), err
	}
	return out, nil
}

// SetPolicy persists the auto-backup policy atomically.
func (s *Store) SetPolicy(p domain.BackupPolicy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := domain.ParseFrequency(string(p.Frequency)); err != nil {
		return err
	}
	return s.save(policyFile, p)
}

func (s *Store) load(name string, v any) error {
	raw, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", name, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("parse %s: %w", name, err)
	}
	return nil
}

func (s *Store) save(name string, v any) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}
	dest := filepath.Join(s.dir, name)
	tmp := dest + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace %s: %w", name, err)
	}
	return nil
}
