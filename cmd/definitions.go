package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"converge/internal/cli"
	"converge/internal/config"
	"converge/internal/declarative"
)

// loadDefinitions loads one definition file, or every definition in a
// directory. Definitions that failed are returned as a collection next to the
// ones that loaded. A missing path is an error only when it was given explicitly.
func loadDefinitions(path string, explicit bool) ([]*declarative.ControllerDefinition, *config.ConfigurationErrorCollection, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	failed := config.NewConfigurationErrorCollection()
	if !info.IsDir() {
		def, err := declarative.Load(path)
		if err != nil {
			var ce config.ConfigurationError
			if !errors.As(err, &ce) {
				return nil, nil, err
			}
			failed.Add(ce)
			return nil, failed, nil
		}
		return []*declarative.ControllerDefinition{def}, failed, nil
	}

	defs, err := declarative.LoadDir(path)
	if err != nil {
		var coll config.ConfigurationErrorCollection
		if !errors.As(err, &coll) {
			return nil, nil, err
		}
		failed = &coll
	}
	return defs, failed, nil
}

// reportInvalid writes the detailed report of failed definitions to w and
// returns the matching error, or nil when nothing failed.
func reportInvalid(w io.Writer, failed *config.ConfigurationErrorCollection) error {
	if failed == nil || !failed.HasErrors() {
		return nil
	}
	fmt.Fprintln(w, failed.GetDetailedReport())
	return &InvalidDefinitionsError{Count: failed.Count()}
}

// defaultControllersDir is the controllers directory of the given
// configuration directory, honouring controllersDir in config.yaml.
func defaultControllersDir(configPath string) string {
	cc, err := config.LoadConfig(configPath)
	if err != nil {
		return filepath.Join(configPath, config.DefaultControllersDir)
	}
	return cc.ControllersDir
}

// newDefinitionTable creates the table listing definitions.
func newDefinitionTable() *cli.Table {
	return cli.NewTable(
		cli.Column{Name: "Controller"},
		cli.Column{Name: "Primary"},
		cli.Column{Name: "Dependents"},
		cli.Column{Name: "Order"},
		cli.Column{Name: "Deletion Order"},
		cli.Column{Name: "Finalizer", Wide: true},
		cli.Column{Name: "File", Wide: true},
	)
}
