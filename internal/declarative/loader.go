package declarative

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"sigs.k8s.io/yaml"

	"converge/internal/config"
	"converge/internal/workflow"
	"converge/pkg/logging"
)

// Parse decodes and validates a definition. path is used in errors and to
// resolve a relative file trigger directory.
func Parse(data []byte, path string) (*ControllerDefinition, error) {
	var def ControllerDefinition
	if err := yaml.UnmarshalStrict(data, &def); err != nil {
		return nil, config.NewConfigurationErrorWithDetails(path, "parse", err.Error(), "",
			[]string{"check the YAML syntax and the field names"})
	}
	def.path = path
	def.applyDefaults()

	if err := Validate(&def); err != nil {
		return nil, config.NewConfigurationError(path, "validation", err.Error())
	}
	return &def, nil
}

// Load reads one definition file.
func Load(path string) (*ControllerDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, config.NewConfigurationError(path, "io", err.Error())
	}
	return Parse(data, path)
}

// LoadDir loads every *.yaml and *.yml file in dir, sorted by file name. A
// missing directory holds no definitions. All broken files are reported
// together as a config.ConfigurationErrorCollection; the valid definitions are
// returned alongside it.
func LoadDir(dir string) ([]*ControllerDefinition, error) {
	files, err := definitionFiles(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logging.Info("Declarative", "No controller definitions directory at %s", dir)
			return nil, nil
		}
		return nil, err
	}

	errs := config.NewConfigurationErrorCollection()
	seen := make(map[string]string)
	var defs []*ControllerDefinition
	for _, path := range files {
		def, err := Load(path)
		if err != nil {
			var ce config.ConfigurationError
			if errors.As(err, &ce) {
				errs.Add(ce)
			} else {
				errs.Add(config.NewConfigurationError(path, "io", err.Error()))
			}
			continue
		}
		if other, dup := seen[def.Name]; dup {
			errs.Add(config.NewConfigurationError(path, "validation",
				fmt.Sprintf("controller %q is already defined in %s", def.Name, filepath.Base(other))))
			continue
		}
		seen[def.Name] = path
		defs = append(defs, def)
	}

	logging.Info("Declarative", "Loaded %d controller definitions from %s (%d invalid)", len(defs), dir, errs.Count())
	return defs, errs.Err()
}

// definitionFiles returns the *.yaml and *.yml files of dir, sorted. The
// error wraps os.ErrNotExist when dir is missing.
func definitionFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", dir, err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch filepath.Ext(e.Name()) {
		case ".yaml", ".yml":
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

func (d *ControllerDefinition) applyDefaults() {
	for i := range d.Dependents {
		if d.Dependents[i].Mode == "" {
			d.Dependents[i].Mode = workflow.CreateUpdateDelete.String()
		}
	}
	if d.FileTrigger != nil && d.FileTrigger.Dir != "" && !filepath.IsAbs(d.FileTrigger.Dir) && d.path != "" {
		d.FileTrigger.Dir = filepath.Join(filepath.Dir(d.path), d.FileTrigger.Dir)
	}
}
