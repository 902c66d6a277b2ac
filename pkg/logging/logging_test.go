package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	ctrl "sigs.k8s.io/controller-runtime"
)

func TestLogLevel_String(t *testing.T) {
	tests := []struct {
		level    LogLevel
		expected string
	}{
		{LevelDebug, "DEBUG"},
		{LevelInfo, "INFO"},
		{LevelWarn, "WARN"},
		{LevelError, "ERROR"},
		{LogLevel(999), "UNKNOWN"},
	}

	for _, test := range tests {
		result := test.level.String()
		if result != test.expected {
			t.Errorf("LogLevel(%d).String() = %s, expected %s", test.level, result, test.expected)
		}
	}
}

func TestLogLevel_SlogLevel(t *testing.T) {
	tests := []struct {
		level    LogLevel
		expected slog.Level
	}{
		{LevelDebug, slog.LevelDebug},
		{LevelInfo, slog.LevelInfo},
		{LevelWarn, slog.LevelWarn},
		{LevelError, slog.LevelError},
		{LogLevel(999), slog.LevelInfo}, // Default for unknown
	}

	for _, test := range tests {
		result := test.level.SlogLevel()
		if result != test.expected {
			t.Errorf("LogLevel(%d).SlogLevel() = %v, expected %v", test.level, result, test.expected)
		}
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    LogLevel
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{"", LevelInfo, false},
		{" warning ", LevelWarn, false},
		{"error", LevelError, false},
		{"verbose", LevelInfo, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCLILevelFiltering(t *testing.T) {
	var buf bytes.Buffer

	// Initialize with INFO level
	InitForCLI(LevelInfo, &buf)

	// Debug should be filtered out
	Debug("test", "debug message")

	// Info should appear
	Info("test", "info message")

	output := buf.String()
	if strings.Contains(output, "debug message") {
		t.Error("Debug message should be filtered out at INFO level")
	}

	if !strings.Contains(output, "info message") {
		t.Error("Info message should appear at INFO level")
	}
	if !strings.Contains(output, "subsystem=test") {
		t.Errorf("expected subsystem attribute in %q", output)
	}
}

func TestJSONFormatWithAttributes(t *testing.T) {
	var buf bytes.Buffer
	Init(LevelDebug, FormatJSON, &buf)

	log := With("Dispatcher", "resource", "Widget/default/a")
	log.With("attempt", 2).Error(errors.New("boom"), "attempt %d failed", 2)

	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	assert.Equal(t, "attempt 2 failed", line["msg"])
	assert.Equal(t, "Dispatcher", line["subsystem"])
	assert.Equal(t, "boom", line["error"])
	assert.Equal(t, "Widget/default/a", line["resource"])
	assert.EqualValues(t, 2, line["attempt"])
}

func TestLoggerWithDoesNotAlias(t *testing.T) {
	base := With("x", "a", 1)
	one := base.With("b", 2)
	two := base.With("c", 3)

	assert.Len(t, base.attrs, 1)
	assert.Equal(t, "b", one.attrs[1].Key)
	assert.Equal(t, "c", two.attrs[1].Key)
}

func TestControllerRuntimeLoggerInitialization(t *testing.T) {
	var buf bytes.Buffer

	// Initialize for CLI mode which should also initialize controller-runtime logger
	InitForCLI(LevelInfo, &buf)

	// ctrl.Log returns the global logger set by ctrl.SetLogger
	logger := ctrl.Log

	if logger.GetSink() == nil {
		t.Error("Expected controller-runtime logger sink to be initialized")
	}

	if !logger.Enabled() {
		t.Error("Expected controller-runtime logger to be enabled")
	}

	logger.Info("test message from controller-runtime logger", "key", "value")
	assert.Contains(t, buf.String(), "test message from controller-runtime logger")
}

func TestLogrNamed(t *testing.T) {
	var buf bytes.Buffer
	InitForCLI(LevelInfo, &buf)

	Logr("cache").Info("synced")
	assert.Contains(t, buf.String(), "synced")
}

func TestControllerRuntimeLoggerFollowsReinit(t *testing.T) {
	var cli, operator bytes.Buffer

	InitForCLI(LevelError, &cli)
	Init(LevelDebug, FormatJSON, &operator)

	ctrl.Log.WithName("cache").WithValues("kind", "Widget").Info("informer synced")
	assert.Empty(t, cli.String())

	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(operator.Bytes()), &line))
	assert.Equal(t, "informer synced", line["msg"])
	assert.Equal(t, "Widget", line["kind"])

	operator.Reset()
	Init(LevelError, FormatText, &operator)
	ctrl.Log.Info("dropped below error level")
	assert.Empty(t, operator.String())
}
