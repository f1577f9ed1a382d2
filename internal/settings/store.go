// Package settings persists plugin-private state in a YAML file.
package settings

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/starford/tasklink/internal/registry"
)

// Data is the on-disk layout of the settings file.
type Data struct {
	ListID       string            `yaml:"list_id,omitempty"`
	TaskIDIndex  int               `yaml:"task_id_index"`
	TaskIDLookup map[string]string `yaml:"task_id_lookup"`
}

// Store reads and writes Data at a fixed path.
type Store struct {
	path string

	mu   sync.Mutex
	data Data
}

var _ registry.Persister = (*Store)(nil)

// Open reads the settings file at path. A missing file yields empty settings.
func Open(path string) (*Store, error) {
	s := &Store{path: path, data: Data{TaskIDLookup: map[string]string{}}}
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return s, nil
		}
		return nil, fmt.Errorf("settings: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &s.data); err != nil {
		return nil, fmt.Errorf("settings: parse %s: %w", path, err)
	}
	if s.data.TaskIDLookup == nil {
		s.data.TaskIDLookup = map[string]string{}
	}
	return s, nil
}

// Data returns a copy of the current settings.
func (s *Store) Data() Data {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copyLocked()
}

// SetListID records the remote list that tasks are synced into.
func (s *Store) SetListID(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.data.ListID
	s.data.ListID = id
	if err := s.saveLocked(); err != nil {
		s.data.ListID = prev
		return err
	}
	return nil
}

// LoadRegistry implements registry.Persister.
func (s *Store) LoadRegistry(_ context.Context) (registry.Snapshot, error) {
	d := s.Data()
	return registry.Snapshot{Lookup: d.TaskIDLookup, Counter: d.TaskIDIndex}, nil
}

// RecordMint implements registry.Persister. The file is rewritten before
// the call returns; on failure the in-memory state is rolled back.
func (s *Store) RecordMint(_ context.Context, token, remoteID string, counter int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prevIndex := s.data.TaskIDIndex
	s.data.TaskIDLookup[token] = remoteID
	if counter > s.data.TaskIDIndex {
		s.data.TaskIDIndex = counter
	}
	if err := s.saveLocked(); err != nil {
		delete(s.data.TaskIDLookup, token)
		s.data.TaskIDIndex = prevIndex
		return err
	}
	return nil
}

func (s *Store) copyLocked() Data {
	out := s.data
	out.TaskIDLookup = make(map[string]string, len(s.data.TaskIDLookup))
	for k, v := range s.data.TaskIDLookup {
		out.TaskIDLookup[k] = v
	}
	return out
}

// saveLocked writes the file atomically: temp file, fsync, rename.
func (s *Store) saveLocked() error {
	raw, err := yaml.Marshal(s.data)
	if err != nil {
		return fmt.Errorf("settings: marshal: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("settings: mkdir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".tasklink-settings-*")
	if err != nil {
		return fmt.Errorf("settings: create temp: %w", err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(raw); err != nil {
		return fmt.Errorf("settings: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("settings: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("settings: close temp: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("settings: rename: %w", err)
	}
	success = true
	return nil
}
