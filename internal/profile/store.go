// Package profile persists named terminal presets (command + working
// directory) as a JSON file under the user's data directory.
package profile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kballard/go-shellquote"
)

// Profile is a saved terminal preset. Cwd may contain the literal
// placeholder "{{workspace}}", which the UI substitutes before spawning.
type Profile struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Command string `json:"command,omitempty"`
	Cwd     string `json:"cwd,omitempty"`
}

type Store struct {
	path string
}

// NewStore creates a store backed by the given file path, or the default
// location when path is empty.
func NewStore(path string) *Store {
	if path == "" {
		path = DefaultPath()
	}
	return &Store{path: path}
}

// DefaultPath resolves $XDG_DATA_HOME (falling back to ~/.local/share)
// and appends the mdview profile file.
func DefaultPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		home, _ := os.UserHomeDir()
		dataDir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataDir, "mdview", "terminal-profiles.json")
}

// Load reads the saved profiles. A missing file is not an error: the
// built-in default shell profile is synthesized instead.
func (s *Store) Load() ([]Profile, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return []Profile{
				{ID: "default-shell", Name: "Shell", Cwd: "{{workspace}}"},
			}, nil
		}
		return nil, err
	}
	var profiles []Profile
	if err := json.Unmarshal(data, &profiles); err != nil {
		return nil, fmt.Errorf("failed to parse profiles file %q: %w", s.path, err)
	}
	return profiles, nil
}

// Save validates and writes the profiles, creating the data directory if
// needed.
func (s *Store) Save(profiles []Profile) error {
	for _, p := range profiles {
		if err := Validate(p); err != nil {
			return err
		}
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(profiles, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0o644)
}

// Validate rejects profiles with missing identity fields or commands the
// shell could not parse (unbalanced quotes and the like).
func Validate(p Profile) error {
	if strings.TrimSpace(p.ID) == "" {
		return fmt.Errorf("profile is missing an id")
	}
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("profile %q is missing a name", p.ID)
	}
	if p.Command != "" {
		if _, err := shellquote.Split(p.Command); err != nil {
			return fmt.Errorf("profile %q has an invalid command: %w", p.ID, err)
		}
	}
	return nil
}
