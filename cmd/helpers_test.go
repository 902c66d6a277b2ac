package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"converge/internal/cli"
)

const widgetsDefinition = `
name: widgets
description: Config and app for every Widget
primary:
  apiVersion: test.converge.io/v1
  kind: Widget
dependents:
  - name: config
    apiVersion: v1
    kind: ConfigMap
    template: |
      metadata:
        name: {{ .name }}-config
  - name: app
    apiVersion: apps/v1
    kind: Deployment
    mode: CreateUpdate
    dependsOn: [config]
    reconcileWhen: '{{ gt (int .primary.spec.size) 0 }}'
    template: |
      metadata:
        name: {{ .name }}
`

const brokenDefinition = `
name: broken
primary:
  apiVersion: test.converge.io/v1
dependents: []
`

// execute runs the root command with args and returns what it printed.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	validateFlags = cli.CommandFlags{OutputFormat: string(cli.OutputFormatTable)}
	controllersFlags = cli.CommandFlags{OutputFormat: string(cli.OutputFormatTable)}
	statusFlags = cli.CommandFlags{OutputFormat: string(cli.OutputFormatTable)}

	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})
	err := rootCmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
}
