package network

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gofrs/flock"
	"github.com/natefinch/atomic"
)

const lockName = ".lock"

// Store keeps one JSON file per network in Dir
type Store struct {
	Dir string
}

// Lock takes the exclusive lock of the store directory
func (s *Store) Lock() (func(), error) {
	if err := os.MkdirAll(s.Dir, 0755); err != nil {
		return nil, fmt.Errorf("network: mkdir %s: %w", s.Dir, err)
	}
	lock := flock.New(filepath.Join(s.Dir, lockName))
	if err := lock.Lock(); err != nil {
		return nil, fmt.Errorf("network: lock: %w", err)
	}
	return func() { lock.Unlock() }, nil
}

func (s *Store) path(name string) string {
	return filepath.Join(s.Dir, name)
}

// Save writes the network definition
func (s *Store) Save(n *Network) error {
	if err := validateName(n.Name); err != nil {
		return err
	}
	b, err := json.MarshalIndent(n, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(s.Dir, 0755); err != nil {
		return err
	}
	if err := atomic.WriteFile(s.path(n.Name), bytes.NewReader(b)); err != nil {
		return fmt.Errorf("network: save %s: %w", n.Name, err)
	}
	return nil
}

// Load reads the network definition called name
func (s *Store) Load(name string) (*Network, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	b, err := os.ReadFile(s.path(name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return nil, err
	}
	n := new(Network)
	if err := json.Unmarshal(b, n); err != nil {
		return nil, fmt.Errorf("network: decode %s: %w", name, err)
	}
	if n.Name != name {
		return nil, fmt.Errorf("network: config %s names %q", name, n.Name)
	}
	return n, nil
}

// Exists reports whether a config for name is present
func (s *Store) Exists(name string) bool {
	_, err := os.Stat(s.path(name))
	return err == nil
}

// List returns every readable network sorted by name
func (s *Store) List() ([]Network, error) {
	entries, err := os.ReadDir(s.Dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var rt []Network
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		n, err := s.Load(e.Name())
		if err != nil {
			continue
		}
		rt = append(rt, *n)
	}
	sort.Slice(rt, func(i, j int) bool { return rt[i].Name < rt[j].Name })
	return rt, nil
}

// Remove deletes the config of name
func (s *Store) Remove(name string) error {
	if err := validateName(name); err != nil {
		return err
	}
	err := os.Remove(s.path(name))
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return err
}
