// Package state records which extensions are downloaded and active.
package state

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/ralt/extmgr/internal/lock"
	"github.com/ralt/extmgr/internal/messages"
	"github.com/ralt/extmgr/internal/utils"
)

// Entry describes one downloaded extension
type Entry struct {
	Version      string    `toml:"version"`
	Path         string    `toml:"path"`
	DownloadPath string    `toml:"download_path,omitempty"`
	Active       bool      `toml:"active"`
	InstalledAt  time.Time `toml:"installed_at"`
}

type stateFile struct {
	Extensions map[string]Entry `toml:"extensions"`
}

// Store is the state file of downloaded extensions plus the read-only
// packages provided by the system itself
type Store struct {
	path   string
	system map[string]string

	mu      sync.RWMutex
	entries map[string]Entry
}

var now = time.Now

// Open loads the state file at path. A missing file is an empty state.
func Open(path string, system map[string]string) (*Store, error) {
	s := &Store{
		path:    path,
		system:  make(map[string]string, len(system)),
		entries: map[string]Entry{},
	}
	for k, v := range system {
		s.system[k] = v
	}

	entries, err := s.read()
	if err != nil {
		return nil, err
	}
	s.entries = entries
	return s, nil
}

func (s *Store) read() (map[string]Entry, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]Entry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf(messages.StateReadFmt, s.path, err)
	}

	var f stateFile
	if err := toml.NewDecoder(bytes.NewReader(data)).Decode(&f); err != nil {
		return nil, fmt.Errorf(messages.StateDecodeFmt, s.path, err)
	}
	if f.Extensions == nil {
		f.Extensions = map[string]Entry{}
	}
	return f.Extensions, nil
}

// update reloads the file under an exclusive lock, applies fn and writes the
// result back so concurrent processes do not lose each other's changes
func (s *Store) update(fn func(entries map[string]Entry) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := utils.EnsureDir(filepath.Dir(s.path)); err != nil {
		return err
	}

	return lock.WithFileLock(s.path+".lock", func() error {
		entries, err := s.read()
		if err != nil {
			return err
		}
		if err := fn(entries); err != nil {
			return err
		}

		data, err := toml.Marshal(stateFile{Extensions: entries})
		if err != nil {
			return fmt.Errorf(messages.StateWriteFmt, s.path, err)
		}
		if err := utils.WriteFileAtomic(s.path, data, 0644); err != nil {
			return fmt.Errorf(messages.StateWriteFmt, s.path, err)
		}
		s.entries = entries
		return nil
	})
}

// Record stores a downloaded extension version, keeping its active flag
func (s *Store) Record(key string, entry Entry) error {
	return s.update(func(entries map[string]Entry) error {
		if previous, ok := entries[key]; ok && !entry.Active {
			entry.Active = previous.Active
		}
		if entry.InstalledAt.IsZero() {
			entry.InstalledAt = now().UTC().Truncate(time.Second)
		}
		entries[key] = entry
		return nil
	})
}

// Activate marks a downloaded extension as active
func (s *Store) Activate(key string) error {
	return s.update(func(entries map[string]Entry) error {
		entry, ok := entries[key]
		if !ok {
			return fmt.Errorf(messages.StateNotRecordedFmt, key)
		}
		entry.Active = true
		entries[key] = entry
		return nil
	})
}

// Get returns the recorded entry for key
func (s *Store) Get(key string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[key]
	return e, ok
}

// InstalledVersion returns the version of a downloaded extension
func (s *Store) InstalledVersion(key string) (string, bool) {
	if e, ok := s.Get(key); ok {
		return e.Version, true
	}
	return "", false
}

// SystemVersion returns the version of a package provided by the system
func (s *Store) SystemVersion(key string) (string, bool) {
	v, ok := s.system[key]
	return v, ok
}

// IsActive reports whether key is a system package or an active extension
func (s *Store) IsActive(key string) bool {
	if _, ok := s.system[key]; ok {
		return true
	}
	e, ok := s.Get(key)
	return ok && e.Active
}

// Keys returns the recorded extension keys in sorted order
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
