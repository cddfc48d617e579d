package preset

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

// Store persists presets in a JSON file.
//
// A missing or unreadable file yields Defaults, mirroring the behaviour of
// a first run.
type Store struct {
	path string

	mu sync.Mutex
}

// NewStore returns a store backed by path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the backing file.
func (s *Store) Path() string {
	return s.path
}

// Load returns the stored presets or Defaults.
func (s *Store) Load() []Preset {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *Store) load() []Preset {
	if s.path == "" {
		return Defaults()
	}

	//nolint:gosec // G304: The preset file location comes from configuration.
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			log.Warn().Err(err).Str("path", s.path).Msg("failed to read presets, using defaults")
		}
		return Defaults()
	}

	presets, err := Import(data)
	if err != nil {
		log.Warn().Err(err).Str("path", s.path).Msg("invalid presets file, using defaults")
		return Defaults()
	}
	return presets
}

// Save replaces the stored presets.
func (s *Store) Save(presets []Preset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(presets)
}

func (s *Store) save(presets []Preset) error {
	if s.path == "" {
		return errors.New("no presets file configured")
	}

	data, err := Export(presets)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o750); err != nil {
		return fmt.Errorf("failed to create presets directory: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write presets: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to write presets: %w", err)
	}
	return nil
}

// ImportMerge parses data, merges it into the stored presets and saves the
// result.
func (s *Store) ImportMerge(data []byte) ([]Preset, error) {
	imported, err := Import(data)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	merged := Merge(s.load(), imported)
	if err := s.save(merged); err != nil {
		return nil, err
	}
	return merged, nil
}

// Add validates p's name and appends it.
func (s *Store) Add(p Preset) ([]Preset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing := s.load()
	if err := ValidateName(p.Name, existing); err != nil {
		return nil, err
	}
	p.Name = strings.TrimSpace(p.Name)

	updated := append(existing, p)
	if err := s.save(updated); err != nil {
		return nil, err
	}
	return updated, nil
}
