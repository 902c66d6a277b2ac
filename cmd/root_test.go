package cmd

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetVersion(t *testing.T) {
	original := GetVersion()
	defer SetVersion(original)

	SetVersion("1.2.3-test")
	assert.Equal(t, "1.2.3-test", rootCmd.Version)
	assert.Equal(t, "1.2.3-test", GetVersion())
}

func TestRootCommand(t *testing.T) {
	assert.Equal(t, "converge", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
	assert.True(t, rootCmd.SilenceUsage)
}

func TestSubcommands(t *testing.T) {
	found := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		found[c.Name()] = true
	}
	for _, name := range []string{"version", "run", "validate", "graph", "controllers", "status"} {
		assert.True(t, found[name], "expected subcommand %q", name)
	}
}

func TestRunFlags(t *testing.T) {
	for _, name := range []string{"debug", "config-path", "kubeconfig"} {
		assert.NotNil(t, runCmd.Flags().Lookup(name), "expected flag %q", name)
	}
}

func TestGetExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "generic", err: errors.New("boom"), want: ExitCodeError},
		{name: "invalid definitions", err: &InvalidDefinitionsError{Count: 2}, want: ExitCodeInvalidDefinitions},
		{name: "wrapped invalid definitions", err: fmt.Errorf("validate: %w", &InvalidDefinitionsError{Count: 1}), want: ExitCodeInvalidDefinitions},
		{name: "unavailable", err: &UnavailableError{Endpoint: "http://localhost:8081", Err: errors.New("refused")}, want: ExitCodeUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, getExitCode(tt.err))
		})
	}
}

func TestErrorMessages(t *testing.T) {
	assert.Equal(t, "1 controller definition is invalid", (&InvalidDefinitionsError{Count: 1}).Error())
	assert.Equal(t, "3 controller definitions are invalid", (&InvalidDefinitionsError{Count: 3}).Error())

	cause := errors.New("connection refused")
	err := &UnavailableError{Endpoint: "http://localhost:8081", Err: cause}
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "http://localhost:8081")
}
