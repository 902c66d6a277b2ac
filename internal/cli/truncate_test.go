package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTruncateMessage(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		maxLen int
		want   string
	}{
		{name: "short", input: "conflict", maxLen: 10, want: "conflict"},
		{name: "exact length", input: "conflict", maxLen: 8, want: "conflict"},
		{name: "truncated", input: "failed to render dependent config", maxLen: 16, want: "failed to ren..."},
		{name: "multi-line error", input: "render failed\n  at line 3\r\n", maxLen: 60, want: "render failed at line 3"},
		{name: "whitespace collapsed", input: "a \t  b", maxLen: 10, want: "a b"},
		{name: "unicode kept whole", input: "héllo wörld", maxLen: 8, want: "héllo..."},
		{name: "clamped", input: "abcdef", maxLen: 1, want: "a..."},
		{name: "empty", input: "", maxLen: 10, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TruncateMessage(tt.input, tt.maxLen))
		})
	}
}
