package declarative

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"converge/internal/config"
	"converge/pkg/logging"
)

// Store installs and removes definition files in a controllers directory.
// Installed files are named after their controller.
type Store struct {
	mu  sync.Mutex
	dir string
}

// NewStore creates a Store for dir. The directory is created on the first
// install.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the controllers directory.
func (s *Store) Dir() string {
	return s.dir
}

// StoredDefinition is one file of the controllers directory. Definition is nil
// when the file does not load; Err says why.
type StoredDefinition struct {
	Path       string
	Definition *ControllerDefinition
	Err        error
}

// Name returns the controller name, or the file name without its extension
// when the file does not load.
func (d StoredDefinition) Name() string {
	if d.Definition != nil {
		return d.Definition.Name
	}
	base := filepath.Base(d.Path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// List loads every definition file, broken ones included, sorted by file
// name. A missing directory holds no definitions.
func (s *Store) List() ([]StoredDefinition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	files, err := definitionFiles(s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	out := make([]StoredDefinition, 0, len(files))
	for _, path := range files {
		def, err := Load(path)
		out = append(out, StoredDefinition{Path: path, Definition: def, Err: err})
	}
	return out, nil
}

// Install validates data, read from source, and writes it to <name>.yaml in
// the controllers directory, replacing an earlier install of the same
// controller. Nothing is written when the definition is invalid or another
// file already defines a controller of that name.
func (s *Store) Install(data []byte, source string) (*ControllerDefinition, error) {
	def, err := Parse(data, source)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	target := filepath.Join(s.dir, def.Name+".yaml")
	files, err := definitionFiles(s.dir)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	for _, path := range files {
		if path == target {
			continue
		}
		if other, err := Load(path); err == nil && other.Name == def.Name {
			return nil, config.NewConfigurationError(source, "validation",
				fmt.Sprintf("controller %q is already installed in %s", def.Name, filepath.Base(path)))
		}
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating %s: %w", s.dir, err)
	}
	if err := writeFileAtomic(s.dir, target, data); err != nil {
		return nil, err
	}
	logging.Info("Declarative", "Installed controller %s to %s", def.Name, target)
	return def, nil
}

// Remove deletes the file of the named controller.
func (s *Store) Remove(name string) error {
	if err := config.ValidateEntityName(name, "controller"); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, ext := range []string{".yaml", ".yml"} {
		path := filepath.Join(s.dir, name+ext)
		err := os.Remove(path)
		if err == nil {
			logging.Info("Declarative", "Removed controller %s from %s", name, path)
			return nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("removing %s: %w", path, err)
		}
	}
	return fmt.Errorf("controller %q not found in %s", name, s.dir)
}

// writeFileAtomic writes through a hidden temporary file in dir, which
// definitionFiles never lists, so readers see the old or the new content.
func writeFileAtomic(dir, target string, data []byte) error {
	tmp, err := os.CreateTemp(dir, ".install-*")
	if err != nil {
		return fmt.Errorf("creating temporary file in %s: %w", dir, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", tmp.Name(), err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return fmt.Errorf("installing %s: %w", target, err)
	}
	return nil
}
