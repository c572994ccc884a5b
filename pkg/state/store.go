package state

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/natefinch/atomic"
)

const (
	configName = "config.json"
	logName    = "container.log"
)

// Store keeps records under Root
type Store struct {
	Root string
}

func validName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, "/\x00") {
		return fmt.Errorf("state: invalid container name %q", name)
	}
	return nil
}

// Dir returns the directory of the container called name
func (s *Store) Dir(name string) string {
	return filepath.Join(s.Root, name)
}

// LogPath returns the log file of the container called name
func (s *Store) LogPath(name string) string {
	return filepath.Join(s.Dir(name), logName)
}

// Create claims name by creating its directory exclusively, then saves r
func (s *Store) Create(r *Record) error {
	if err := validName(r.Name); err != nil {
		return err
	}
	if err := os.MkdirAll(s.Root, 0755); err != nil {
		return fmt.Errorf("state: mkdir %s: %w", s.Root, err)
	}
	if err := os.Mkdir(s.Dir(r.Name), 0755); err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("%w: %s", ErrExists, r.Name)
		}
		return fmt.Errorf("state: mkdir: %w", err)
	}
	if err := s.Save(r); err != nil {
		os.RemoveAll(s.Dir(r.Name))
		return err
	}
	return nil
}

// Save writes r, replacing any previous record of the same name
func (s *Store) Save(r *Record) error {
	if err := validName(r.Name); err != nil {
		return err
	}
	if err := r.Validate(); err != nil {
		return err
	}
	b, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(s.Dir(r.Name), 0755); err != nil {
		return fmt.Errorf("state: mkdir: %w", err)
	}
	if err := atomic.WriteFile(filepath.Join(s.Dir(r.Name), configName), bytes.NewReader(b)); err != nil {
		return fmt.Errorf("state: save %s: %w", r.Name, err)
	}
	return nil
}

// Load reads the record of name
func (s *Store) Load(name string) (*Record, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	b, err := os.ReadFile(filepath.Join(s.Dir(name), configName))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("state: load %s: %w", name, err)
	}
	r := new(Record)
	if err := json.Unmarshal(b, r); err != nil {
		return nil, fmt.Errorf("state: decode %s: %w", name, err)
	}
	return r, nil
}

// List returns every parsable record ordered by creation time
func (s *Store) List() ([]*Record, error) {
	entries, err := os.ReadDir(s.Root)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("state: list: %w", err)
	}
	var rt []*Record
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		r, err := s.Load(e.Name())
		if err != nil {
			continue
		}
		rt = append(rt, r)
	}
	sort.SliceStable(rt, func(i, j int) bool {
		if rt[i].CreatedAt != rt[j].CreatedAt {
			return rt[i].CreatedAt < rt[j].CreatedAt
		}
		return rt[i].Name < rt[j].Name
	})
	return rt, nil
}

// Remove deletes the directory of name with its log
func (s *Store) Remove(name string) error {
	if err := validName(name); err != nil {
		return err
	}
	if _, err := os.Stat(s.Dir(name)); errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return os.RemoveAll(s.Dir(name))
}

// OpenLog opens the log of name for appending, creating it if needed
func (s *Store) OpenLog(name string) (*os.File, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(s.Dir(name), 0755); err != nil {
		return nil, fmt.Errorf("state: mkdir: %w", err)
	}
	return os.OpenFile(s.LogPath(name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
}
